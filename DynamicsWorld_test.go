package liquidbox_test

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/bytearena/liquidbox"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	timeStep           = 1.0 / 60.0
	velocityIterations = 8
	positionIterations = 3
)

func step(w *liquidbox.World, n int) {
	for range n {
		w.Step(timeStep, velocityIterations, positionIterations)
	}
}

func newGround(t *testing.T, w *liquidbox.World) *liquidbox.Body {
	t.Helper()
	def := liquidbox.MakeBodyDef()
	def.UserData = "ground"
	ground := w.CreateBody(&def)
	ground.CreateFixtureFromShape(liquidbox.NewEdgeShape(liquidbox.Vec2{X: -40}, liquidbox.Vec2{X: 40}), 0)
	return ground
}

func newBox(t *testing.T, w *liquidbox.World, position liquidbox.Vec2, half float64) *liquidbox.Body {
	t.Helper()
	def := liquidbox.MakeBodyDef()
	def.Type = liquidbox.DynamicBody
	def.Position = position
	b := w.CreateBody(&def)
	fd := liquidbox.MakeFixtureDef()
	fd.Shape = liquidbox.NewBoxShape(half, half)
	fd.Density = 1
	fd.Friction = 0.6
	b.CreateFixture(&fd)
	return b
}

// expectViolation runs fn and checks it panics with a contract error
// wrapping want.
func expectViolation(t *testing.T, want error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("recovered %v, want a panic wrapping %v", r, want)
		}
		var ce *liquidbox.ContractError
		if !errors.As(err, &ce) || !errors.Is(err, want) {
			t.Fatalf("recovered %v, want a *ContractError wrapping %v", err, want)
		}
	}()
	fn()
}

// TestFreeFallTrace checks the integrator against the closed form of
// semi-implicit Euler under constant gravity:
// v_n = g*n*h and y_n = y_0 + g*h*h*n*(n+1)/2.
func TestFreeFallTrace(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	body := newBox(t, w, liquidbox.Vec2{Y: 10}, 0.5)

	var got, want strings.Builder
	for n := 1; n <= 60; n++ {
		w.Step(timeStep, velocityIterations, positionIterations)
		if n%10 != 0 {
			continue
		}
		p, v := body.Position(), body.LinearVelocity()
		fmt.Fprintf(&got, "step %2d x=%.4f y=%.4f vy=%.4f angle=%.4f\n", n, p.X, p.Y, v.Y, body.Angle())

		fn := float64(n)
		y := 10 - 10*timeStep*timeStep*fn*(fn+1)/2
		vy := -10 * timeStep * fn
		fmt.Fprintf(&want, "step %2d x=%.4f y=%.4f vy=%.4f angle=%.4f\n", n, 0.0, y, vy, 0.0)
	}

	if got.String() != want.String() {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(want.String()),
			B:        difflib.SplitLines(got.String()),
			FromFile: "closed form",
			ToFile:   "simulated",
			Context:  2,
		})
		t.Errorf("free fall trace differs:\n%s", diff)
	}
}

func TestBoxComesToRest(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	newGround(t, w)
	box := newBox(t, w, liquidbox.Vec2{Y: 4}, 0.5)

	step(w, 180)

	p := box.Position()
	if math.Abs(p.Y-0.5) > 0.03 {
		t.Errorf("resting y = %v, want 0.5 within the slop", p.Y)
	}
	if math.Abs(p.X) > 1e-3 || math.Abs(box.Angle()) > 1e-3 {
		t.Errorf("box drifted to x=%v angle=%v", p.X, box.Angle())
	}
	if v := box.LinearVelocity().Length(); v > 0.01 {
		t.Errorf("speed %v at rest", v)
	}
	if box.IsAwake() {
		t.Error("box still awake after three seconds at rest")
	}

	w.SetAllowSleeping(false)
	if !box.IsAwake() {
		t.Error("disabling sleep did not wake the box")
	}
}

type impulseRecorder struct {
	liquidbox.NopContactListener
	begins, ends int
	impulses     []float64
}

func (r *impulseRecorder) BeginContact(*liquidbox.Contact) { r.begins++ }
func (r *impulseRecorder) EndContact(*liquidbox.Contact) { r.ends++ }

func (r *impulseRecorder) PostSolve(_ *liquidbox.Contact, impulse *liquidbox.ContactImpulse) {
	r.impulses = append(r.impulses, impulse.NormalImpulses[:impulse.Count]...)
}

func TestNormalImpulsesNeverPull(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	rec := &impulseRecorder{}
	w.SetContactListener(rec)
	newGround(t, w)
	for i := range 4 {
		newBox(t, w, liquidbox.Vec2{X: float64(i) * 0.3, Y: 1 + 1.2*float64(i)}, 0.5)
	}

	step(w, 240)

	if rec.begins == 0 || len(rec.impulses) == 0 {
		t.Fatal("no contact was reported")
	}
	for i, imp := range rec.impulses {
		if imp < 0 {
			t.Fatalf("impulse %d = %v, want non-negative", i, imp)
		}
	}
}

// settleStack drops five boxes on the ground and returns where they rest.
func settleStack(t *testing.T, warm bool) (positions []liquidbox.Vec2, asleep bool) {
	t.Helper()
	s := liquidbox.DefaultSettings()
	s.Gravity = liquidbox.Vec2{Y: -10}
	s.WarmStarting = warm
	w := liquidbox.NewWorld(liquidbox.Vec2{}, liquidbox.WithConfig(s))
	if w.WarmStarting() != warm {
		t.Fatalf("WarmStarting = %v", w.WarmStarting())
	}
	newGround(t, w)

	var boxes []*liquidbox.Body
	for i := range 5 {
		boxes = append(boxes, newBox(t, w, liquidbox.Vec2{Y: 0.5 + 1.0*float64(i)}, 0.5))
	}
	step(w, 600)

	asleep = true
	for _, b := range boxes {
		positions = append(positions, b.Position())
		asleep = asleep && !b.IsAwake()
	}
	return positions, asleep
}

func TestStackStandsWithAndWithoutWarmStarting(t *testing.T) {
	warm, warmAsleep := settleStack(t, true)
	cold, _ := settleStack(t, false)

	for _, run := range [][]liquidbox.Vec2{warm, cold} {
		top := run[len(run)-1]
		if math.Abs(top.X) > 0.1 || math.Abs(top.Y-4.5) > 0.15 {
			t.Errorf("top box at %v, want the stack standing near (0, 4.5)", top)
		}
	}
	// Both runs settle into the same stack.
	for i := range warm {
		if d := liquidbox.Distance(warm[i], cold[i]); d > 0.05 {
			t.Errorf("box %d rests at %v warm and %v cold", i, warm[i], cold[i])
		}
	}
	if !warmAsleep {
		t.Error("warm-started stack still awake after ten seconds")
	}
}

func TestRestingBodyStaysPut(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	start := liquidbox.Vec2{X: 1.25, Y: -3.5}
	box := newBox(t, w, start, 0.5)

	step(w, 500)

	if p := box.Position(); p != start || box.Angle() != 0 {
		t.Errorf("force-free box moved to %v, angle %v", p, box.Angle())
	}
	if v := box.LinearVelocity(); v != (liquidbox.Vec2{}) || box.AngularVelocity() != 0 {
		t.Errorf("force-free box gained velocity %v, %v", v, box.AngularVelocity())
	}
}

func TestSleepingBodyWakesOnNewContact(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	newGround(t, w)
	box := newBox(t, w, liquidbox.Vec2{Y: 0.5}, 0.5)

	step(w, 120)
	if box.IsAwake() {
		t.Fatal("box did not fall asleep")
	}

	// Asleep bodies are not integrated.
	p, angle := box.Position(), box.Angle()
	step(w, 60)
	if box.Position() != p || box.Angle() != angle || box.IsAwake() {
		t.Fatalf("sleeping box moved from %v to %v", p, box.Position())
	}

	newBox(t, w, liquidbox.Vec2{Y: 3}, 0.5)
	woke := false
	for range 120 {
		step(w, 1)
		if box.IsAwake() {
			woke = true
			break
		}
	}
	if !woke {
		t.Error("landing box did not wake the sleeping one")
	}
}

type mutatingListener struct {
	liquidbox.NopContactListener
	world *liquidbox.World
}

func (l *mutatingListener) BeginContact(*liquidbox.Contact) {
	def := liquidbox.MakeBodyDef()
	l.world.CreateBody(&def)
}

func TestLockedWorldRejectsMutation(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10}, liquidbox.WithLogger(zap.New(core)))
	ground := newGround(t, w)
	newBox(t, w, liquidbox.Vec2{Y: 0.52}, 0.5)
	w.SetContactListener(&mutatingListener{world: w})

	expectViolation(t, liquidbox.ErrWorldLocked, func() { step(w, 10) })
	if w.IsLocked() {
		t.Error("world still locked after the panic unwound")
	}
	if logs.FilterMessage("contract violation").Len() == 0 {
		t.Error("violation was not logged")
	}

	w.SetContactListener(nil)
	w.QueryAABB(func(f *liquidbox.Fixture) bool {
		if !w.IsLocked() {
			t.Error("world unlocked during the query callback")
		}
		expectViolation(t, liquidbox.ErrWorldLocked, func() { w.DestroyBody(ground) })
		return false
	}, liquidbox.AABB{LowerBound: liquidbox.Vec2{X: -1, Y: -1}, UpperBound: liquidbox.Vec2{X: 1, Y: 1}})

	if w.BodyCount() != 2 {
		t.Errorf("BodyCount = %d, want the rejected mutations to leave 2", w.BodyCount())
	}
}

type goodbyes struct {
	joints, fixtures, groups, particles int
}

func (g *goodbyes) SayGoodbyeJoint(liquidbox.Joint) { g.joints++ }
func (g *goodbyes) SayGoodbyeFixture(*liquidbox.Fixture) { g.fixtures++ }
func (g *goodbyes) SayGoodbyeParticleGroup(*liquidbox.ParticleGroup) { g.groups++ }
func (g *goodbyes) SayGoodbyeParticle(*liquidbox.ParticleSystem, int) { g.particles++ }

func TestDestroyBodyCascades(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	gb := &goodbyes{}
	w.SetDestructionListener(gb)
	ground := newGround(t, w)
	a := newBox(t, w, liquidbox.Vec2{X: -2, Y: 0.5}, 0.5)
	b := newBox(t, w, liquidbox.Vec2{X: 2, Y: 0.5}, 0.5)
	a.CreateFixtureFromShape(liquidbox.NewCircleShape(liquidbox.Vec2{Y: 0.5}, 0.25), 1)

	jd := liquidbox.MakeDistanceJointDef()
	jd.Initialize(a, b, a.Position(), b.Position())
	w.CreateJoint(&jd)
	step(w, 5)
	if w.ContactCount() == 0 {
		t.Fatal("boxes never touched the ground")
	}

	w.DestroyBody(a)

	if gb.joints != 1 || gb.fixtures != 2 {
		t.Errorf("goodbyes: %d joints, %d fixtures; want 1 and 2", gb.joints, gb.fixtures)
	}
	if w.BodyCount() != 2 || w.JointCount() != 0 {
		t.Errorf("BodyCount = %d, JointCount = %d", w.BodyCount(), w.JointCount())
	}
	if b.JointList() != nil {
		t.Error("surviving body still lists the joint")
	}
	for c := range w.Contacts() {
		if c.FixtureA().Body() == a || c.FixtureB().Body() == a {
			t.Fatal("contact on the destroyed body survived")
		}
	}
	w.QueryAABB(func(f *liquidbox.Fixture) bool {
		if f.Body() == a {
			t.Error("query found a fixture of the destroyed body")
		}
		return true
	}, liquidbox.AABB{LowerBound: liquidbox.Vec2{X: -3, Y: -1}, UpperBound: liquidbox.Vec2{X: -1, Y: 2}})

	expectViolation(t, liquidbox.ErrStaleHandle, func() { w.DestroyBody(a) })
	expectViolation(t, liquidbox.ErrStaleHandle, func() { w.DestroyBody(nil) })
	expectViolation(t, liquidbox.ErrStaleHandle, func() { w.DestroyJoint(nil) })
	expectViolation(t, liquidbox.ErrStaleHandle, func() { w.DestroyParticleSystem(nil) })
	if _, ok := w.Body(a.Handle()); ok {
		t.Error("stale handle still resolves")
	}
	if got, ok := w.Body(ground.Handle()); !ok || got != ground {
		t.Error("live handle does not resolve")
	}

	step(w, 5)
}

func TestRayCastClosestHit(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	near := newBox(t, w, liquidbox.Vec2{X: 3}, 0.5)
	newBox(t, w, liquidbox.Vec2{X: 6}, 0.5)

	var closest *liquidbox.Fixture
	var point liquidbox.Vec2
	w.RayCast(func(f *liquidbox.Fixture, p, normal liquidbox.Vec2, fraction float64) float64 {
		closest, point = f, p
		return fraction
	}, liquidbox.Vec2{}, liquidbox.Vec2{X: 10})

	if closest == nil || closest.Body() != near {
		t.Fatalf("closest hit %v, want the near box", closest)
	}
	if math.Abs(point.X-2.5) > 1e-6 {
		t.Errorf("hit point %v, want x = 2.5", point)
	}
}

func TestSettingsAndIntrospection(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	newGround(t, w)
	newBox(t, w, liquidbox.Vec2{Y: 2}, 0.5)

	if w.BodyCount() != 2 || w.ProxyCount() != 2 {
		t.Errorf("BodyCount = %d, ProxyCount = %d", w.BodyCount(), w.ProxyCount())
	}
	if !w.AllowSleeping() || !w.ContinuousPhysics() || !w.AutoClearForces() || w.SubStepping() {
		t.Error("unexpected default settings")
	}
	w.SetGravity(liquidbox.Vec2{Y: -5})
	if w.Gravity().Y != -5 {
		t.Errorf("Gravity = %v", w.Gravity())
	}

	n := 0
	for b := w.BodyList(); b != nil; b = b.Next() {
		n++
	}
	if n != 2 {
		t.Errorf("BodyList walked %d bodies", n)
	}

	step(w, 1)
	if w.Profile().Step < 0 {
		t.Errorf("profile %+v", w.Profile())
	}
}

func TestForcesClearAfterStep(t *testing.T) {
	for _, auto := range []bool{true, false} {
		w := liquidbox.NewWorld(liquidbox.Vec2{})
		w.SetAutoClearForces(auto)
		box := newBox(t, w, liquidbox.Vec2{}, 0.5)
		box.ApplyForceToCenter(liquidbox.Vec2{X: 60}, true)

		step(w, 2)

		// One step of force 60 on a 1 kg box adds 1 m/s.
		want := 1.0
		if !auto {
			want = 2.0
		}
		if v := box.LinearVelocity().X; math.Abs(v-want) > 1e-9 {
			t.Errorf("auto=%v: vx = %v, want %v", auto, v, want)
		}
	}
}

func TestShiftOriginAndDump(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10}, liquidbox.WithLogger(zap.New(core)))
	newGround(t, w)
	box := newBox(t, w, liquidbox.Vec2{X: 5, Y: 2}, 0.5)
	def := liquidbox.MakeParticleSystemDef()
	def.Radius = 0.1
	ps := w.CreateParticleSystem(&def)
	ps.CreateParticle(&liquidbox.ParticleDef{Position: liquidbox.Vec2{X: 5, Y: 1}})

	w.ShiftOrigin(liquidbox.Vec2{X: 5})

	if p := box.Position(); math.Abs(p.X) > 1e-12 || math.Abs(p.Y-2) > 1e-12 {
		t.Errorf("box at %v after the shift", p)
	}
	if p := ps.Positions()[0]; math.Abs(p.X) > 1e-12 || math.Abs(p.Y-1) > 1e-12 {
		t.Errorf("particle at %v after the shift", p)
	}
	// The ground is still found where it now lies.
	hits := 0
	w.QueryAABB(func(*liquidbox.Fixture) bool {
		hits++
		return true
	}, liquidbox.AABB{LowerBound: liquidbox.Vec2{X: -44, Y: -0.1}, UpperBound: liquidbox.Vec2{X: -43, Y: 0.1}})
	if hits != 1 {
		t.Errorf("query at the shifted ground end found %d fixtures", hits)
	}

	w.Dump()
	if n := logs.FilterMessage("world").Len(); n != 1 {
		t.Errorf("%d world lines", n)
	}
	if n := logs.FilterMessage("body").Len(); n != 2 {
		t.Errorf("%d body lines, want 2", n)
	}
	if n := logs.FilterMessage("particle system").Len(); n != 1 {
		t.Errorf("%d particle system lines, want 1", n)
	}
}
