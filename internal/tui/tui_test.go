package tui

import (
	"context"
	"testing"
	"time"

	"github.com/bytearena/liquidbox"
	"github.com/gdamore/tcell/v2"
)

func newScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	screen.SetSize(80, 24)
	t.Cleanup(screen.Fini)
	return screen
}

func countRune(screen tcell.Screen, ch rune) int {
	w, h := screen.Size()
	n := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if r, _, _, _ := screen.GetContent(x, y); r == ch {
				n++
			}
		}
	}
	return n
}

func TestCellMapping(t *testing.T) {
	r := NewRenderer(newScreen(t), 0)
	r.Scale = 2
	if x, y := r.Cell(liquidbox.Vec2{}); x != 40 || y != 12 {
		t.Errorf("origin -> (%d, %d), want (40, 12)", x, y)
	}
	// One metre right is four columns, one metre up is two rows up.
	if x, y := r.Cell(liquidbox.Vec2{X: 1, Y: 1}); x != 44 || y != 10 {
		t.Errorf("(1, 1) -> (%d, %d), want (44, 10)", x, y)
	}
	r.Center = liquidbox.Vec2{X: 1, Y: 1}
	if x, y := r.Cell(liquidbox.Vec2{X: 1, Y: 1}); x != 40 || y != 12 {
		t.Errorf("centered -> (%d, %d), want (40, 12)", x, y)
	}
}

func TestDrawSegmentClipsOffScreen(t *testing.T) {
	screen := newScreen(t)
	r := NewRenderer(screen, 0)
	r.DrawSegment(liquidbox.Vec2{X: -100}, liquidbox.Vec2{X: 100}, liquidbox.Color{R: 1, A: 1})
	if got := countRune(screen, '='); got != 80 {
		t.Errorf("segment covers %d cells, want the full row of 80", got)
	}
}

func TestRenderWorld(t *testing.T) {
	screen := newScreen(t)
	r := NewRenderer(screen, liquidbox.DrawShape|liquidbox.DrawParticle)

	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	def := liquidbox.MakeBodyDef()
	def.Type = liquidbox.DynamicBody
	def.Position = liquidbox.Vec2{X: -3}
	w.CreateBody(&def).CreateFixtureFromShape(liquidbox.NewBoxShape(1, 1), 1)

	psDef := liquidbox.MakeParticleSystemDef()
	psDef.Radius = 0.1
	ps := w.CreateParticleSystem(&psDef)
	ps.CreateParticle(&liquidbox.ParticleDef{Position: liquidbox.Vec2{X: 3}})

	r.Render(w, "t=0")

	if countRune(screen, '#') == 0 {
		t.Error("box outline not drawn")
	}
	x, y := r.Cell(liquidbox.Vec2{X: 3})
	if ch, _, _, _ := screen.GetContent(x, y); ch != '~' {
		t.Errorf("particle cell holds %q", ch)
	}
	if ch, _, _, _ := screen.GetContent(0, 0); ch != 't' {
		t.Errorf("status line starts with %q", ch)
	}
}

func TestRunQuitsOnKey(t *testing.T) {
	screen := newScreen(t)
	frames := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	}()
	err := Run(context.Background(), screen, 1000, func(paused bool) bool {
		frames++
		return true
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if frames == 0 {
		t.Error("no frame ran before quitting")
	}
}

func TestRunTogglesPause(t *testing.T) {
	screen := newScreen(t)
	screen.InjectKey(tcell.KeyRune, ' ', tcell.ModNone)
	sawPaused := false
	err := Run(context.Background(), screen, 1000, func(paused bool) bool {
		if paused {
			sawPaused = true
			return false
		}
		return true
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sawPaused {
		t.Error("space did not pause")
	}
}

func TestRunStopsOnContext(t *testing.T) {
	screen := newScreen(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Run(ctx, screen, 100, func(bool) bool { return true })
	if err != context.DeadlineExceeded {
		t.Fatalf("Run = %v, want deadline exceeded", err)
	}
}
