// Package scene loads YAML scene descriptions and builds them into a
// liquidbox World.
package scene

import (
	"errors"
	"fmt"
	"os"

	"github.com/bytearena/liquidbox"
	"gopkg.in/yaml.v3"
)

// Scene is the YAML document: bodies with their fixtures, joints between
// named bodies, and particle systems with their groups.
type Scene struct {
	Bodies          []BodyEntry           `yaml:"bodies"`
	Joints          []JointEntry          `yaml:"joints"`
	ParticleSystems []ParticleSystemEntry `yaml:"particle_systems"`
}

type BodyEntry struct {
	Name            string         `yaml:"name"`
	Type            string         `yaml:"type"` // static, kinematic or dynamic
	Position        [2]float64     `yaml:"position"`
	Angle           float64        `yaml:"angle"`
	LinearVelocity  [2]float64     `yaml:"linear_velocity"`
	AngularVelocity float64        `yaml:"angular_velocity"`
	LinearDamping   float64        `yaml:"linear_damping"`
	AngularDamping  float64        `yaml:"angular_damping"`
	GravityScale    *float64       `yaml:"gravity_scale"`
	Bullet          bool           `yaml:"bullet"`
	FixedRotation   bool           `yaml:"fixed_rotation"`
	Fixtures        []FixtureEntry `yaml:"fixtures"`
}

type FixtureEntry struct {
	Name        string     `yaml:"name"`
	Shape       ShapeEntry `yaml:"shape"`
	Density     float64    `yaml:"density"`
	Friction    *float64   `yaml:"friction"`
	Restitution float64    `yaml:"restitution"`
	Sensor      bool       `yaml:"sensor"`
	Category    uint16     `yaml:"category"`
	Mask        uint16     `yaml:"mask"`
	Group       int16      `yaml:"group"`
}

// ShapeEntry is one of circle, box, polygon or edge.
type ShapeEntry struct {
	Type       string       `yaml:"type"`
	Radius     float64      `yaml:"radius"`
	Center     [2]float64   `yaml:"center"`
	HalfWidth  float64      `yaml:"half_width"`
	HalfHeight float64      `yaml:"half_height"`
	Angle      float64      `yaml:"angle"`
	Vertices   [][2]float64 `yaml:"vertices"`
}

type JointEntry struct {
	Name             string     `yaml:"name"`
	Type             string     `yaml:"type"` // distance
	BodyA            string     `yaml:"body_a"`
	BodyB            string     `yaml:"body_b"`
	AnchorA          [2]float64 `yaml:"anchor_a"` // world space
	AnchorB          [2]float64 `yaml:"anchor_b"`
	Length           float64    `yaml:"length"` // 0 = anchor separation
	FrequencyHz      float64    `yaml:"frequency_hz"`
	DampingRatio     float64    `yaml:"damping_ratio"`
	CollideConnected bool       `yaml:"collide_connected"`
}

type ParticleSystemEntry struct {
	Name         string               `yaml:"name"`
	Radius       float64              `yaml:"radius"`
	Density      float64              `yaml:"density"`
	GravityScale *float64             `yaml:"gravity_scale"`
	Damping      *float64             `yaml:"damping"`
	MaxCount     int                  `yaml:"max_count"`
	DestroyByAge *bool                `yaml:"destroy_by_age"`
	Groups       []ParticleGroupEntry `yaml:"groups"`
}

type ParticleGroupEntry struct {
	Name           string     `yaml:"name"`
	Shape          ShapeEntry `yaml:"shape"`
	Position       [2]float64 `yaml:"position"`
	Angle          float64    `yaml:"angle"`
	LinearVelocity [2]float64 `yaml:"linear_velocity"`
	Flags          []string   `yaml:"flags"`
	GroupFlags     []string   `yaml:"group_flags"`
	Color          [4]uint8   `yaml:"color"`
	Strength       *float64   `yaml:"strength"`
	Lifetime       float64    `yaml:"lifetime"`
}

// Load reads and parses a scene file.
func Load(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene %s: %w", path, err)
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return s, nil
}

func Parse(raw []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	return &s, nil
}

var (
	ErrUnknownBody      = errors.New("unknown body")
	ErrUnknownType      = errors.New("unknown type")
	ErrUnknownFlag      = errors.New("unknown flag")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Built holds the entities a Build created, by name. Unnamed entities
// are created but not indexed.
type Built struct {
	Bodies          map[string]*liquidbox.Body
	Fixtures        map[string]*liquidbox.Fixture
	Joints          map[string]liquidbox.Joint
	ParticleSystems map[string]*liquidbox.ParticleSystem
	ParticleGroups  map[string]*liquidbox.ParticleGroup
}

func (b *Built) Body(name string) *liquidbox.Body {
	return b.Bodies[name]
}

func (b *Built) ParticleSystem(name string) *liquidbox.ParticleSystem {
	return b.ParticleSystems[name]
}

func (b *Built) ParticleGroup(name string) *liquidbox.ParticleGroup {
	return b.ParticleGroups[name]
}

// Build creates the scene in w. The scene is validated entry by entry;
// on error, entities created so far stay in the world.
func (s *Scene) Build(w *liquidbox.World) (*Built, error) {
	built := &Built{
		Bodies:          make(map[string]*liquidbox.Body),
		Fixtures:        make(map[string]*liquidbox.Fixture),
		Joints:          make(map[string]liquidbox.Joint),
		ParticleSystems: make(map[string]*liquidbox.ParticleSystem),
		ParticleGroups:  make(map[string]*liquidbox.ParticleGroup),
	}

	for i := range s.Bodies {
		if err := built.buildBody(w, &s.Bodies[i]); err != nil {
			return built, fmt.Errorf("body %d (%s): %w", i, s.Bodies[i].Name, err)
		}
	}
	for i := range s.Joints {
		if err := built.buildJoint(w, &s.Joints[i]); err != nil {
			return built, fmt.Errorf("joint %d (%s): %w", i, s.Joints[i].Name, err)
		}
	}
	for i := range s.ParticleSystems {
		if err := built.buildParticleSystem(w, &s.ParticleSystems[i]); err != nil {
			return built, fmt.Errorf("particle system %d (%s): %w", i, s.ParticleSystems[i].Name, err)
		}
	}
	return built, nil
}

func vec(v [2]float64) liquidbox.Vec2 {
	return liquidbox.Vec2{X: v[0], Y: v[1]}
}

func register[T any](m map[string]T, name string, v T) error {
	if name == "" {
		return nil
	}
	if _, ok := m[name]; ok {
		return fmt.Errorf("%w %q", ErrDuplicateName, name)
	}
	m[name] = v
	return nil
}

var bodyTypes = map[string]liquidbox.BodyType{
	"":          liquidbox.StaticBody,
	"static":    liquidbox.StaticBody,
	"kinematic": liquidbox.KinematicBody,
	"dynamic":   liquidbox.DynamicBody,
}

func (built *Built) buildBody(w *liquidbox.World, e *BodyEntry) error {
	typ, ok := bodyTypes[e.Type]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownType, e.Type)
	}
	if _, ok := built.Bodies[e.Name]; ok {
		return fmt.Errorf("%w %q", ErrDuplicateName, e.Name)
	}

	def := liquidbox.MakeBodyDef()
	def.Type = typ
	def.Position = vec(e.Position)
	def.Angle = e.Angle
	def.LinearVelocity = vec(e.LinearVelocity)
	def.AngularVelocity = e.AngularVelocity
	def.LinearDamping = e.LinearDamping
	def.AngularDamping = e.AngularDamping
	def.Bullet = e.Bullet
	def.FixedRotation = e.FixedRotation
	if e.GravityScale != nil {
		def.GravityScale = *e.GravityScale
	}
	def.UserData = e.Name

	// Shapes are checked before the body exists so a bad fixture does
	// not leave a half-built body behind.
	shapes := make([]liquidbox.Shape, len(e.Fixtures))
	for i := range e.Fixtures {
		shape, err := buildShape(&e.Fixtures[i].Shape)
		if err != nil {
			return fmt.Errorf("fixture %d (%s): %w", i, e.Fixtures[i].Name, err)
		}
		shapes[i] = shape
	}

	body := w.CreateBody(&def)
	if err := register(built.Bodies, e.Name, body); err != nil {
		return err
	}

	for i := range e.Fixtures {
		fe := &e.Fixtures[i]
		fd := liquidbox.MakeFixtureDef()
		fd.Shape = shapes[i]
		fd.Density = fe.Density
		if fe.Friction != nil {
			fd.Friction = *fe.Friction
		}
		fd.Restitution = fe.Restitution
		fd.IsSensor = fe.Sensor
		if fe.Category != 0 {
			fd.Filter.CategoryBits = fe.Category
		}
		if fe.Mask != 0 {
			fd.Filter.MaskBits = fe.Mask
		}
		fd.Filter.GroupIndex = fe.Group
		fd.UserData = fe.Name
		f := body.CreateFixture(&fd)
		if err := register(built.Fixtures, fe.Name, f); err != nil {
			return err
		}
	}
	return nil
}

func buildShape(e *ShapeEntry) (liquidbox.Shape, error) {
	switch e.Type {
	case "circle":
		if !(e.Radius > 0) {
			return nil, fmt.Errorf("%w: circle radius %v", ErrInvalidParameter, e.Radius)
		}
		return liquidbox.NewCircleShape(vec(e.Center), e.Radius), nil
	case "box":
		if !(e.HalfWidth > 0) || !(e.HalfHeight > 0) {
			return nil, fmt.Errorf("%w: box extents %v x %v", ErrInvalidParameter, e.HalfWidth, e.HalfHeight)
		}
		box := liquidbox.NewBoxShape(e.HalfWidth, e.HalfHeight)
		if e.Center != [2]float64{} || e.Angle != 0 {
			box.SetAsOrientedBox(e.HalfWidth, e.HalfHeight, vec(e.Center), e.Angle)
		}
		return box, nil
	case "polygon":
		vertices := make([]liquidbox.Vec2, len(e.Vertices))
		for i, v := range e.Vertices {
			vertices[i] = vec(v)
		}
		polygon, err := liquidbox.NewPolygonShape(vertices)
		if err != nil {
			return nil, fmt.Errorf("polygon: %w", err)
		}
		return polygon, nil
	case "edge":
		if len(e.Vertices) != 2 {
			return nil, fmt.Errorf("%w: edge needs 2 vertices, got %d", ErrInvalidParameter, len(e.Vertices))
		}
		return liquidbox.NewEdgeShape(vec(e.Vertices[0]), vec(e.Vertices[1])), nil
	}
	return nil, fmt.Errorf("%w: shape %q", ErrUnknownType, e.Type)
}

func (built *Built) buildJoint(w *liquidbox.World, e *JointEntry) error {
	if e.Type != "distance" && e.Type != "" {
		return fmt.Errorf("%w %q", ErrUnknownType, e.Type)
	}
	bodyA, ok := built.Bodies[e.BodyA]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownBody, e.BodyA)
	}
	bodyB, ok := built.Bodies[e.BodyB]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownBody, e.BodyB)
	}
	if bodyA == bodyB {
		return fmt.Errorf("%w: joint connects %q to itself", ErrInvalidParameter, e.BodyA)
	}

	def := liquidbox.MakeDistanceJointDef()
	def.Initialize(bodyA, bodyB, vec(e.AnchorA), vec(e.AnchorB))
	if e.Length > 0 {
		def.Length = e.Length
	}
	if !(def.Length > 0) {
		return fmt.Errorf("%w: joint length %v", ErrInvalidParameter, def.Length)
	}
	def.FrequencyHz = e.FrequencyHz
	def.DampingRatio = e.DampingRatio
	def.CollideConnected = e.CollideConnected
	def.UserData = e.Name

	return register(built.Joints, e.Name, w.CreateJoint(&def))
}

var particleFlags = map[string]liquidbox.ParticleFlag{
	"water":           liquidbox.WaterParticle,
	"wall":            liquidbox.WallParticle,
	"spring":          liquidbox.SpringParticle,
	"elastic":         liquidbox.ElasticParticle,
	"viscous":         liquidbox.ViscousParticle,
	"powder":          liquidbox.PowderParticle,
	"tensile":         liquidbox.TensileParticle,
	"color_mixing":    liquidbox.ColorMixingParticle,
	"barrier":         liquidbox.BarrierParticle,
	"static_pressure": liquidbox.StaticPressureParticle,
	"reactive":        liquidbox.ReactiveParticle,
	"repulsive":       liquidbox.RepulsiveParticle,
	"destruction":     liquidbox.ParticleDestructionListener,
	"contact":         liquidbox.ParticleFixtureContactListener,
}

var groupFlags = map[string]liquidbox.ParticleGroupFlag{
	"solid":        liquidbox.SolidParticleGroup,
	"rigid":        liquidbox.RigidParticleGroup,
	"can_be_empty":  liquidbox.ParticleGroupCanBeEmpty,
}

func parseFlags[F ~uint32](names []string, table map[string]F) (F, error) {
	var flags F
	for _, name := range names {
		f, ok := table[name]
		if !ok {
			return 0, fmt.Errorf("%w %q", ErrUnknownFlag, name)
		}
		flags |= f
	}
	return flags, nil
}

func (built *Built) buildParticleSystem(w *liquidbox.World, e *ParticleSystemEntry) error {
	def := liquidbox.MakeParticleSystemDef()
	if e.Radius != 0 {
		def.Radius = e.Radius
	}
	if e.Density != 0 {
		def.Density = e.Density
	}
	if !(def.Radius > 0) || !(def.Density > 0) {
		return fmt.Errorf("%w: radius %v density %v", ErrInvalidParameter, def.Radius, def.Density)
	}
	if e.GravityScale != nil {
		def.GravityScale = *e.GravityScale
	}
	if e.Damping != nil {
		def.DampingStrength = *e.Damping
	}
	if e.MaxCount < 0 {
		return fmt.Errorf("%w: max_count %d", ErrInvalidParameter, e.MaxCount)
	}
	def.MaxCount = e.MaxCount
	if e.DestroyByAge != nil {
		def.DestroyByAge = *e.DestroyByAge
	}

	groupDefs := make([]liquidbox.ParticleGroupDef, len(e.Groups))
	for i := range e.Groups {
		gd, err := buildGroupDef(&e.Groups[i])
		if err != nil {
			return fmt.Errorf("group %d (%s): %w", i, e.Groups[i].Name, err)
		}
		groupDefs[i] = gd
	}

	if _, ok := built.ParticleSystems[e.Name]; ok {
		return fmt.Errorf("%w %q", ErrDuplicateName, e.Name)
	}
	ps := w.CreateParticleSystem(&def)
	if err := register(built.ParticleSystems, e.Name, ps); err != nil {
		return err
	}

	for i := range groupDefs {
		g := ps.CreateParticleGroup(&groupDefs[i])
		if err := register(built.ParticleGroups, e.Groups[i].Name, g); err != nil {
			return err
		}
	}
	return nil
}

func buildGroupDef(e *ParticleGroupEntry) (liquidbox.ParticleGroupDef, error) {
	def := liquidbox.MakeParticleGroupDef()
	shape, err := buildShape(&e.Shape)
	if err != nil {
		return def, err
	}
	flags, err := parseFlags(e.Flags, particleFlags)
	if err != nil {
		return def, err
	}
	gflags, err := parseFlags(e.GroupFlags, groupFlags)
	if err != nil {
		return def, err
	}

	def.Shape = shape
	def.Flags = flags
	def.GroupFlags = gflags
	def.Position = vec(e.Position)
	def.Angle = e.Angle
	def.LinearVelocity = vec(e.LinearVelocity)
	def.Color = liquidbox.ParticleColor{R: e.Color[0], G: e.Color[1], B: e.Color[2], A: e.Color[3]}
	if e.Strength != nil {
		def.Strength = *e.Strength
	}
	def.Lifetime = e.Lifetime
	def.UserData = e.Name
	return def, nil
}
