package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bytearena/liquidbox"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// dropScene creates a static floor and two dynamic boxes, "ghost" and
// "crate", one metre above it.
func dropScene(t *testing.T, e *Engine) (w *liquidbox.World, ghost, crate *liquidbox.Body) {
	t.Helper()
	w = liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	w.SetContactFilter(e)
	w.SetContactListener(e)

	groundDef := liquidbox.MakeBodyDef()
	groundDef.UserData = "ground"
	ground := w.CreateBody(&groundDef)
	ground.CreateFixtureFromShape(liquidbox.NewEdgeShape(liquidbox.Vec2{X: -10}, liquidbox.Vec2{X: 10}), 0)

	for i, name := range []string{"ghost", "crate"} {
		def := liquidbox.MakeBodyDef()
		def.Type = liquidbox.DynamicBody
		def.Position = liquidbox.Vec2{X: float64(i*4 - 2), Y: 1}
		def.UserData = name
		b := w.CreateBody(&def)
		b.CreateFixtureFromShape(liquidbox.NewBoxShape(0.5, 0.5), 1)
		if name == "ghost" {
			ghost = b
		} else {
			crate = b
		}
	}
	return w, ghost, crate
}

func run(w *liquidbox.World, steps int) {
	for range steps {
		w.Step(1.0/60.0, 8, 3)
	}
}

func TestShouldCollideFiltersBodies(t *testing.T) {
	e, err := NewEngineFromString(`
function should_collide(a, b)
  return a.body ~= "ghost" and b.body ~= "ghost"
end
`, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	w, ghost, crate := dropScene(t, e)
	run(w, 120)

	if y := ghost.Position().Y; y > -1 {
		t.Errorf("ghost y = %v, want it to fall through the floor", y)
	}
	if y := crate.Position().Y; y < 0.4 || y > 0.6 {
		t.Errorf("crate y = %v, want it resting on the floor", y)
	}
}

func TestPreSolveDisablesContact(t *testing.T) {
	e, err := NewEngineFromString(`
begins = 0
function begin_contact(c)
  begins = begins + 1
end
function pre_solve(c)
  if c.a.body == "ghost" or c.b.body == "ghost" then
    return false
  end
  return nil
end
`, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	w, ghost, crate := dropScene(t, e)
	run(w, 120)

	if y := ghost.Position().Y; y > -1 {
		t.Errorf("ghost y = %v, want it to pass through", y)
	}
	if y := crate.Position().Y; y < 0.4 || y > 0.6 {
		t.Errorf("crate y = %v, want it resting", y)
	}
	if begins := e.vm.GetGlobal("begins"); begins.String() == "0" {
		t.Error("begin_contact never ran")
	}
}

func TestMissingHooksUseDefaults(t *testing.T) {
	e, err := NewEngineFromString(`x = 1`, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if e.HasHook("should_collide") {
		t.Fatal("HasHook reported an undefined hook")
	}

	w, ghost, crate := dropScene(t, e)
	run(w, 120)
	for _, b := range []*liquidbox.Body{ghost, crate} {
		if y := b.Position().Y; y < 0.4 || y > 0.6 {
			t.Errorf("%v y = %v, want it resting", b.UserData(), y)
		}
	}
}

func TestHookErrorIsLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e, err := NewEngineFromString(`
function should_collide(a, b)
  error("boom")
end
`, zap.New(core))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	w, _, crate := dropScene(t, e)
	run(w, 120)

	if y := crate.Position().Y; y < 0.4 || y > 0.6 {
		t.Errorf("crate y = %v, want the default filter to let it land", y)
	}
	if n := logs.FilterMessage("lua hook error; using default").Len(); n != 1 {
		t.Errorf("logged %d hook errors, want 1", n)
	}
}

func TestNewEngineErrors(t *testing.T) {
	if _, err := NewEngine(filepath.Join(t.TempDir(), "missing.lua"), zap.NewNop()); err == nil {
		t.Error("NewEngine accepted a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.lua")
	if err := os.WriteFile(path, []byte("function ("), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewEngine(path, zap.NewNop()); err == nil {
		t.Error("NewEngine accepted a syntax error")
	}
}
