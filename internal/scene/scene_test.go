package scene

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytearena/liquidbox"
)

const damScene = `
bodies:
  - name: ground
    type: static
    fixtures:
      - name: floor
        shape: {type: edge, vertices: [[-20, 0], [20, 0]]}
      - name: wall
        shape: {type: box, half_width: 0.5, half_height: 5, center: [10, 5]}
  - name: ball
    type: dynamic
    position: [0, 10]
    fixtures:
      - name: ball
        shape: {type: circle, radius: 0.5}
        density: 1
        restitution: 0.3
  - name: wedge
    type: dynamic
    position: [4, 10]
    fixtures:
      - shape: {type: polygon, vertices: [[0, 0], [1, 0], [0, 1]]}
        density: 2
joints:
  - name: rope
    type: distance
    body_a: ball
    body_b: wedge
    anchor_a: [0, 10]
    anchor_b: [4, 10]
    frequency_hz: 4
    damping_ratio: 0.5
particle_systems:
  - name: water
    radius: 0.25
    gravity_scale: 1
    groups:
      - name: block
        shape: {type: box, half_width: 1, half_height: 1}
        position: [-5, 3]
        flags: [water, color_mixing]
        color: [0, 0, 255, 255]
      - name: jelly
        shape: {type: circle, radius: 0.8}
        position: [5, 3]
        flags: [elastic]
        group_flags: [solid]
`

func TestBuildCreatesNamedEntities(t *testing.T) {
	s, err := Parse([]byte(damScene))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	built, err := s.Build(w)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := w.BodyCount(); got != 3 {
		t.Errorf("BodyCount = %d, want 3", got)
	}
	if got := w.JointCount(); got != 1 {
		t.Errorf("JointCount = %d, want 1", got)
	}

	ball := built.Body("ball")
	if ball == nil || ball.Type() != liquidbox.DynamicBody {
		t.Fatalf("ball = %v", ball)
	}
	if got := ball.Position(); got != (liquidbox.Vec2{X: 0, Y: 10}) {
		t.Errorf("ball position = %v", got)
	}
	if _, ok := built.Fixtures["wall"]; !ok {
		t.Error("wall fixture not indexed")
	}
	if len(built.Fixtures) != 3 {
		t.Errorf("indexed %d fixtures, want 3 (one is unnamed)", len(built.Fixtures))
	}

	rope, ok := built.Joints["rope"].(*liquidbox.DistanceJoint)
	if !ok {
		t.Fatalf("rope = %T", built.Joints["rope"])
	}
	if got := rope.Length(); got != 4 {
		t.Errorf("rope length = %v, want anchor separation 4", got)
	}

	water := built.ParticleSystem("water")
	if water == nil {
		t.Fatal("water system missing")
	}
	if water.Radius() != 0.25 {
		t.Errorf("radius = %v", water.Radius())
	}
	block := built.ParticleGroup("block")
	jelly := built.ParticleGroup("jelly")
	if block == nil || jelly == nil {
		t.Fatal("groups missing")
	}
	if block.ParticleCount() == 0 || jelly.ParticleCount() == 0 {
		t.Errorf("empty groups: block %d jelly %d", block.ParticleCount(), jelly.ParticleCount())
	}
	if got := block.ParticleCount() + jelly.ParticleCount(); got != water.ParticleCount() {
		t.Errorf("group particles %d != system particles %d", got, water.ParticleCount())
	}
	if jelly.GroupFlags()&liquidbox.SolidParticleGroup == 0 {
		t.Error("jelly is not solid")
	}
	if water.Colors()[block.BufferIndex()] != (liquidbox.ParticleColor{B: 255, A: 255}) {
		t.Errorf("block color = %v", water.Colors()[block.BufferIndex()])
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		scene string
		want  error
	}{
		{
			name:  "unknown body type",
			scene: "bodies: [{name: a, type: floating}]",
			want:  ErrUnknownType,
		},
		{
			name:  "unknown shape",
			scene: "bodies: [{name: a, fixtures: [{shape: {type: star}}]}]",
			want:  ErrUnknownType,
		},
		{
			name:  "bad circle",
			scene: "bodies: [{name: a, fixtures: [{shape: {type: circle}}]}]",
			want:  ErrInvalidParameter,
		},
		{
			name:  "duplicate body",
			scene: "bodies: [{name: a}, {name: a}]",
			want:  ErrDuplicateName,
		},
		{
			name:  "joint to unknown body",
			scene: "bodies: [{name: a}]\njoints: [{type: distance, body_a: a, body_b: b}]",
			want:  ErrUnknownBody,
		},
		{
			name: "unknown particle flag",
			scene: `particle_systems:
  - groups: [{shape: {type: box, half_width: 1, half_height: 1}, flags: [lava]}]`,
			want: ErrUnknownFlag,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.scene))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = s.Build(liquidbox.NewWorld(liquidbox.Vec2{}))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Build error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBadShapeLeavesNoBody(t *testing.T) {
	s, err := Parse([]byte("bodies: [{name: a, fixtures: [{shape: {type: box}}]}]"))
	if err != nil {
		t.Fatal(err)
	}
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	if _, err := s.Build(w); err == nil {
		t.Fatal("Build accepted a zero-sized box")
	}
	if w.BodyCount() != 0 {
		t.Errorf("BodyCount = %d, want 0", w.BodyCount())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dam.yaml")
	if err := os.WriteFile(path, []byte(damScene), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Bodies) != 3 || len(s.ParticleSystems) != 1 {
		t.Errorf("loaded %d bodies, %d systems", len(s.Bodies), len(s.ParticleSystems))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
	if _, err := Parse([]byte("bodies: {")); err == nil {
		t.Error("Parse accepted malformed YAML")
	}
}
