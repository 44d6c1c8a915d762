// Package script lets a Lua file filter and observe contacts.
//
// The script may define any of these globals; missing ones fall back to
// the engine defaults:
//
//	should_collide(a, b) -> bool   a, b are fixture tables
//	pre_solve(contact)   -> bool   false disables the contact this step
//	begin_contact(contact)
//	end_contact(contact)
//
// A fixture table has body, fixture, sensor, category, mask and group
// fields. A contact table has a, b (fixture tables), touching and, when
// touching, normal_x, normal_y and points.
package script

import (
	"fmt"

	"github.com/bytearena/liquidbox"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. Callbacks run on the goroutine
// that steps the world; the engine is not safe for concurrent use.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger

	// Failed hooks are reported once and then skipped.
	failed map[string]bool
}

var (
	_ liquidbox.ContactFilter   = (*Engine)(nil)
	_ liquidbox.ContactListener = (*Engine)(nil)
)

// NewEngine creates a Lua VM and runs the script at path.
func NewEngine(path string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	if err := e.vm.DoFile(path); err != nil {
		e.vm.Close()
		return nil, fmt.Errorf("load script %s: %w", path, err)
	}
	e.log.Debug("loaded lua script", zap.String("file", path))
	return e, nil
}

// NewEngineFromString is NewEngine for an in-memory script.
func NewEngineFromString(source string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	if err := e.vm.DoString(source); err != nil {
		e.vm.Close()
		return nil, fmt.Errorf("load script: %w", err)
	}
	return e, nil
}

func newEngine(log *zap.Logger) *Engine {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	e := &Engine{vm: vm, log: log, failed: make(map[string]bool)}
	vm.SetGlobal("log_info", vm.NewFunction(e.luaLogInfo))
	return e
}

func (e *Engine) Close() {
	e.vm.Close()
}

// HasHook reports whether the script defines the named global function.
func (e *Engine) HasHook(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

func (e *Engine) luaLogInfo(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)))
	return 0
}

// call invokes the named hook with args and returns its single result.
// ok is false when the hook is missing or raised an error.
func (e *Engine) call(name string, args ...lua.LValue) (result lua.LValue, ok bool) {
	fn, isFn := e.vm.GetGlobal(name).(*lua.LFunction)
	if !isFn || e.failed[name] {
		return lua.LNil, false
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua hook error; using default", zap.String("hook", name), zap.Error(err))
		e.failed[name] = true
		return lua.LNil, false
	}
	result = e.vm.Get(-1)
	e.vm.Pop(1)
	return result, true
}

func nameOf(data any) lua.LValue {
	if s, ok := data.(string); ok && s != "" {
		return lua.LString(s)
	}
	return lua.LNil
}

func (e *Engine) fixtureTable(f *liquidbox.Fixture) *lua.LTable {
	filter := f.FilterData()
	t := e.vm.NewTable()
	t.RawSetString("body", nameOf(f.Body().UserData()))
	t.RawSetString("fixture", nameOf(f.UserData()))
	t.RawSetString("sensor", lua.LBool(f.IsSensor()))
	t.RawSetString("category", lua.LNumber(filter.CategoryBits))
	t.RawSetString("mask", lua.LNumber(filter.MaskBits))
	t.RawSetString("group", lua.LNumber(filter.GroupIndex))
	return t
}

func (e *Engine) contactTable(c *liquidbox.Contact) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("a", e.fixtureTable(c.FixtureA()))
	t.RawSetString("b", e.fixtureTable(c.FixtureB()))
	t.RawSetString("touching", lua.LBool(c.IsTouching()))
	if c.IsTouching() {
		wm := c.WorldManifold()
		t.RawSetString("normal_x", lua.LNumber(wm.Normal.X))
		t.RawSetString("normal_y", lua.LNumber(wm.Normal.Y))
		t.RawSetString("points", lua.LNumber(c.Manifold().PointCount))
	}
	return t
}

// ShouldCollide calls should_collide, falling back to the fixture
// filter data.
func (e *Engine) ShouldCollide(fixtureA, fixtureB *liquidbox.Fixture) bool {
	result, ok := e.call("should_collide", e.fixtureTable(fixtureA), e.fixtureTable(fixtureB))
	if !ok || result == lua.LNil {
		return liquidbox.DefaultContactFilter{}.ShouldCollide(fixtureA, fixtureB)
	}
	return lua.LVAsBool(result)
}

func (e *Engine) BeginContact(c *liquidbox.Contact) {
	e.call("begin_contact", e.contactTable(c))
}

func (e *Engine) EndContact(c *liquidbox.Contact) {
	e.call("end_contact", e.contactTable(c))
}

// PreSolve calls pre_solve and disables the contact for this step when
// it returns false.
func (e *Engine) PreSolve(c *liquidbox.Contact, oldManifold *liquidbox.Manifold) {
	result, ok := e.call("pre_solve", e.contactTable(c))
	if ok && result != lua.LNil && !lua.LVAsBool(result) {
		c.SetEnabled(false)
	}
}

func (e *Engine) PostSolve(*liquidbox.Contact, *liquidbox.ContactImpulse) {}
