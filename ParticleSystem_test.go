package liquidbox_test

import (
	"math"
	"slices"
	"testing"

	"github.com/bytearena/liquidbox"
)

func newParticleSystem(w *liquidbox.World, radius float64) *liquidbox.ParticleSystem {
	def := liquidbox.MakeParticleSystemDef()
	def.Radius = radius
	return w.CreateParticleSystem(&def)
}

func boxGroup(ps *liquidbox.ParticleSystem, flags liquidbox.ParticleFlag, center liquidbox.Vec2, half float64) *liquidbox.ParticleGroup {
	gd := liquidbox.MakeParticleGroupDef()
	gd.Flags = flags
	gd.Position = center
	gd.Shape = liquidbox.NewBoxShape(half, half)
	return ps.CreateParticleGroup(&gd)
}

func stepParticles(w *liquidbox.World, n int) {
	for range n {
		w.StepWithParticles(timeStep, velocityIterations, positionIterations, 2)
	}
}

func TestParticleGroupFill(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	ps := newParticleSystem(w, 0.1)

	a := boxGroup(ps, liquidbox.WaterParticle, liquidbox.Vec2{X: -2, Y: 2}, 0.5)
	b := boxGroup(ps, liquidbox.WaterParticle, liquidbox.Vec2{X: 2, Y: 2}, 0.5)
	if a.ParticleCount() == 0 {
		t.Fatal("box produced no particles")
	}
	if a.ParticleCount() != b.ParticleCount() {
		t.Errorf("equal boxes filled %d and %d particles", a.ParticleCount(), b.ParticleCount())
	}
	if ps.ParticleCount() != a.ParticleCount()+b.ParticleCount() || ps.GroupCount() != 2 {
		t.Fatalf("ParticleCount = %d, GroupCount = %d", ps.ParticleCount(), ps.GroupCount())
	}
	if a.BufferIndex() != 0 || b.BufferIndex() != a.ParticleCount() {
		t.Errorf("BufferIndex = %d, %d", a.BufferIndex(), b.BufferIndex())
	}
	if !b.ContainsParticle(b.BufferIndex()) || a.ContainsParticle(b.BufferIndex()) {
		t.Error("ContainsParticle disagrees with the buffer ranges")
	}

	for i := a.BufferIndex(); i < a.BufferIndex()+a.ParticleCount(); i++ {
		p := ps.Positions()[i]
		if math.Abs(p.X+2) > 0.5 || math.Abs(p.Y-2) > 0.5 {
			t.Fatalf("particle %d at %v lies outside its box", i, p)
		}
	}

	want := float64(a.ParticleCount()) * ps.ParticleMass()
	if math.Abs(a.Mass()-want) > 1e-9 {
		t.Errorf("group mass %v, want %v", a.Mass(), want)
	}
	if c := a.Center(); math.Abs(c.X+2) > 0.1 || math.Abs(c.Y-2) > 0.1 {
		t.Errorf("group centre %v", c)
	}

	var seen []*liquidbox.ParticleGroup
	for g := range ps.Groups() {
		seen = append(seen, g)
	}
	if len(seen) != 2 || !slices.Contains(seen, a) || !slices.Contains(seen, b) {
		t.Errorf("Groups yielded %d groups", len(seen))
	}
}

func TestWaterSettlesOnGround(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	ground := newGround(t, w)
	ps := newParticleSystem(w, 0.1)
	boxGroup(ps, liquidbox.WaterParticle, liquidbox.Vec2{Y: 1}, 0.5)
	n := ps.ParticleCount()

	stepParticles(w, 120)

	if ps.ParticleCount() != n {
		t.Fatalf("lost particles: %d of %d", ps.ParticleCount(), n)
	}
	lowest := math.Inf(1)
	for i, p := range ps.Positions() {
		if p.Y < -0.1 {
			t.Fatalf("particle %d fell through the ground: %v", i, p)
		}
		lowest = math.Min(lowest, p.Y)
	}
	if lowest > 0.3 {
		t.Errorf("water never reached the ground, lowest particle at %v", lowest)
	}

	touching := 0
	for _, c := range ps.BodyContacts() {
		if c.Body == ground {
			touching++
		}
	}
	if touching == 0 {
		t.Error("no particle reports a contact with the ground")
	}
	if len(ps.Contacts()) == 0 {
		t.Error("settled water has no particle contacts")
	}
}

func TestDestroyedParticlesLeaveAtNextStep(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	gb := &goodbyes{}
	w.SetDestructionListener(gb)
	ps := newParticleSystem(w, 0.1)
	for i := range 4 {
		ps.CreateParticle(&liquidbox.ParticleDef{
			Position: liquidbox.Vec2{X: float64(i)},
			UserData: i,
		})
	}

	ps.DestroyParticle(1, true)
	ps.DestroyParticle(2, false)
	if ps.ParticleCount() != 4 {
		t.Fatalf("ParticleCount = %d before the step, want 4", ps.ParticleCount())
	}
	if ps.ParticleFlags(1)&liquidbox.ZombieParticle == 0 {
		t.Error("destroyed particle not marked")
	}

	step(w, 1)

	if ps.ParticleCount() != 2 {
		t.Fatalf("ParticleCount = %d after the step, want 2", ps.ParticleCount())
	}
	if gb.particles != 1 {
		t.Errorf("listener heard %d particles, want 1", gb.particles)
	}
	if ps.ParticleUserData(0) != 0 || ps.ParticleUserData(1) != 3 {
		t.Errorf("survivors %v, %v; want 0 and 3", ps.ParticleUserData(0), ps.ParticleUserData(1))
	}
	if p := ps.Positions()[1]; p.X != 3 {
		t.Errorf("survivor moved to %v", p)
	}
}

func TestDestroyParticlesInShape(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	ps := newParticleSystem(w, 0.1)
	for i := range 10 {
		ps.CreateParticle(&liquidbox.ParticleDef{Position: liquidbox.Vec2{X: float64(i) * 0.5}})
	}

	// Covers x in (-0.9, 1.9): particles 0 through 3.
	box := liquidbox.NewBoxShape(1.4, 1)
	marked := ps.DestroyParticlesInShape(box, liquidbox.NewTransform(liquidbox.Vec2{X: 0.5}, 0), false)
	if marked != 4 {
		t.Fatalf("marked %d particles, want 4", marked)
	}
	step(w, 1)
	if ps.ParticleCount() != 6 {
		t.Fatalf("ParticleCount = %d, want 6", ps.ParticleCount())
	}
	for i, p := range ps.Positions() {
		if p.X < 1.9 {
			t.Errorf("particle %d at %v survived", i, p)
		}
	}
}

func TestJoinParticleGroups(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	gb := &goodbyes{}
	w.SetDestructionListener(gb)
	ps := newParticleSystem(w, 0.1)

	a := boxGroup(ps, liquidbox.SpringParticle, liquidbox.Vec2{X: -0.5}, 0.5)
	ps.CreateParticle(&liquidbox.ParticleDef{Position: liquidbox.Vec2{Y: 5}})
	b := boxGroup(ps, liquidbox.SpringParticle, liquidbox.Vec2{X: 0.5}, 0.5)
	total := a.ParticleCount() + b.ParticleCount()
	pairs := ps.PairCount()

	ps.JoinParticleGroups(a, b)

	if ps.GroupCount() != 1 || a.ParticleCount() != total {
		t.Fatalf("GroupCount = %d, joined count = %d; want 1 and %d", ps.GroupCount(), a.ParticleCount(), total)
	}
	if b.ParticleSystem() != nil || gb.groups != 1 {
		t.Errorf("the absorbed group was not destroyed")
	}
	if ps.PairCount() <= pairs {
		t.Errorf("no springs across the seam: %d pairs before, %d after", pairs, ps.PairCount())
	}
	// The loose particle was moved out of the joined range.
	for i := range ps.ParticleCount() {
		inGroup := a.ContainsParticle(i)
		isFree := ps.Positions()[i].Y == 5
		if inGroup == isFree {
			t.Fatalf("particle %d: in group %v, free %v", i, inGroup, isFree)
		}
	}

	expectViolation(t, liquidbox.ErrSameGroup, func() { ps.JoinParticleGroups(a, a) })
}

func TestParticleLifetimeExpires(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	ps := newParticleSystem(w, 0.1)
	keep := ps.CreateParticle(&liquidbox.ParticleDef{UserData: "keep"})
	brief := ps.CreateParticle(&liquidbox.ParticleDef{Position: liquidbox.Vec2{X: 1}, Lifetime: 0.5, UserData: "brief"})

	if got := ps.ParticleLifetime(brief); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("ParticleLifetime = %v, want 0.5", got)
	}
	if ps.ParticleLifetime(keep) != 0 {
		t.Errorf("immortal particle has lifetime %v", ps.ParticleLifetime(keep))
	}

	step(w, 29)
	if ps.ParticleCount() != 2 {
		t.Fatalf("particle expired early, %d left", ps.ParticleCount())
	}
	if got := ps.ParticleLifetime(brief); got <= 0 || got > 0.05 {
		t.Errorf("remaining lifetime %v after 29 steps", got)
	}

	step(w, 2)
	if ps.ParticleCount() != 1 || ps.ParticleUserData(0) != "keep" {
		t.Errorf("after expiry: %d particles, first %v", ps.ParticleCount(), ps.ParticleUserData(0))
	}
}

func TestGroupsConnectTheirParticles(t *testing.T) {
	for _, tc := range []struct {
		name   string
		flags  liquidbox.ParticleFlag
		pairs  bool
		triads bool
	}{
		{"water", liquidbox.WaterParticle, false, false},
		{"spring", liquidbox.SpringParticle, true, false},
		{"elastic", liquidbox.ElasticParticle, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := liquidbox.NewWorld(liquidbox.Vec2{})
			ps := newParticleSystem(w, 0.1)
			boxGroup(ps, tc.flags, liquidbox.Vec2{}, 0.5)
			if got := ps.PairCount() > 0; got != tc.pairs {
				t.Errorf("PairCount = %d", ps.PairCount())
			}
			if got := ps.TriadCount() > 0; got != tc.triads {
				t.Errorf("TriadCount = %d", ps.TriadCount())
			}
		})
	}
}

func TestElasticGroupKeepsItsShape(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	newGround(t, w)
	ps := newParticleSystem(w, 0.1)
	g := boxGroup(ps, liquidbox.ElasticParticle, liquidbox.Vec2{Y: 1}, 0.5)

	stepParticles(w, 120)

	first := g.BufferIndex()
	lo := liquidbox.Vec2{X: math.Inf(1), Y: math.Inf(1)}
	hi := liquidbox.Vec2{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range ps.Positions()[first : first+g.ParticleCount()] {
		lo = liquidbox.Vec2Min(lo, p)
		hi = liquidbox.Vec2Max(hi, p)
	}
	// A puddle would spread far wider than the block.
	if width := hi.X - lo.X; width > 2 {
		t.Errorf("elastic block spread to %v wide", width)
	}
	if height := hi.Y - lo.Y; height < 0.4 {
		t.Errorf("elastic block flattened to %v high", height)
	}
}

func TestParticleCapacity(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		w := liquidbox.NewWorld(liquidbox.Vec2{})
		def := liquidbox.MakeParticleSystemDef()
		def.MaxCount = 3
		def.DestroyByAge = false
		ps := w.CreateParticleSystem(&def)
		for range 3 {
			ps.CreateParticle(&liquidbox.ParticleDef{})
		}
		expectViolation(t, liquidbox.ErrParticleCapacity, func() { ps.CreateParticle(&liquidbox.ParticleDef{}) })
		if ps.ParticleCount() != 3 {
			t.Errorf("ParticleCount = %d", ps.ParticleCount())
		}
	})

	t.Run("replace oldest", func(t *testing.T) {
		w := liquidbox.NewWorld(liquidbox.Vec2{})
		def := liquidbox.MakeParticleSystemDef()
		def.MaxCount = 3
		ps := w.CreateParticleSystem(&def)
		for i := range 4 {
			ps.CreateParticle(&liquidbox.ParticleDef{UserData: i})
		}
		if ps.ParticleCount() != 3 {
			t.Fatalf("ParticleCount = %d, want 3", ps.ParticleCount())
		}
		var got []any
		for i := range ps.ParticleCount() {
			got = append(got, ps.ParticleUserData(i))
		}
		if !slices.Equal(got, []any{1, 2, 3}) {
			t.Errorf("survivors %v, want [1 2 3]", got)
		}
	})
}

func TestParticleQueries(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	ps := newParticleSystem(w, 0.1)
	for i := range 3 {
		ps.CreateParticle(&liquidbox.ParticleDef{Position: liquidbox.Vec2{X: 1 + 2*float64(i)}})
	}

	var found []int
	ps.QueryAABB(func(_ *liquidbox.ParticleSystem, index int) bool {
		found = append(found, index)
		return true
	}, liquidbox.AABB{LowerBound: liquidbox.Vec2{X: 0, Y: -1}, UpperBound: liquidbox.Vec2{X: 4, Y: 1}})
	slices.Sort(found)
	if !slices.Equal(found, []int{0, 1}) {
		t.Errorf("QueryAABB found %v, want [0 1]", found)
	}

	closest, hitX := -1, 0.0
	ps.RayCast(func(_ *liquidbox.ParticleSystem, index int, point, normal liquidbox.Vec2, fraction float64) float64 {
		closest, hitX = index, point.X
		if normal.X >= 0 {
			t.Errorf("normal %v does not face the ray", normal)
		}
		return fraction
	}, liquidbox.Vec2{}, liquidbox.Vec2{X: 10})
	// The ray hits the disc of one diameter around the first particle.
	if closest != 0 || math.Abs(hitX-0.8) > 1e-9 {
		t.Errorf("closest hit particle %d at x = %v, want 0 at 0.8", closest, hitX)
	}

	expectViolation(t, liquidbox.ErrWorldLocked, func() {
		ps.QueryAABB(func(*liquidbox.ParticleSystem, int) bool {
			ps.CreateParticle(&liquidbox.ParticleDef{})
			return false
		}, ps.ComputeAABB())
	})
}

func TestDestroyParticleGroupIsImmediate(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	gb := &goodbyes{}
	w.SetDestructionListener(gb)
	ps := newParticleSystem(w, 0.1)
	g := boxGroup(ps, liquidbox.ElasticParticle, liquidbox.Vec2{}, 0.3)
	n := g.ParticleCount()

	ps.DestroyParticleGroup(g, true)

	if ps.ParticleCount() != 0 || ps.GroupCount() != 0 || ps.TriadCount() != 0 {
		t.Errorf("left %d particles, %d groups, %d triads", ps.ParticleCount(), ps.GroupCount(), ps.TriadCount())
	}
	if gb.groups != 1 || gb.particles != n {
		t.Errorf("goodbyes: %d groups, %d particles; want 1 and %d", gb.groups, gb.particles, n)
	}
	expectViolation(t, liquidbox.ErrStaleHandle, func() { ps.DestroyParticleGroup(g, false) })
}

func TestCalculateReasonableParticleIterations(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	if got := w.CalculateReasonableParticleIterations(timeStep); got != 1 {
		t.Errorf("no systems: %d, want 1", got)
	}

	for _, tc := range []struct {
		radius float64
		want   int
	}{
		{0.1, 2},
		{0.01, 6},
		{0.001, 8},
	} {
		w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
		newParticleSystem(w, 1)
		newParticleSystem(w, tc.radius)
		got := w.CalculateReasonableParticleIterations(timeStep)
		if got != tc.want {
			t.Errorf("radius %v: %d iterations, want %d", tc.radius, got, tc.want)
		}
		if got < 8 {
			h := timeStep / float64(got)
			if ratio := 10 / tc.radius * h * h; ratio > 0.01 {
				t.Errorf("radius %v: stability ratio %v", tc.radius, ratio)
			}
		}
	}
}

func TestParticleGroupPastCapacity(t *testing.T) {
	w := liquidbox.NewWorld(liquidbox.Vec2{})
	def := liquidbox.MakeParticleSystemDef()
	def.Radius = 0.1
	def.MaxCount = 10
	ps := w.CreateParticleSystem(&def)
	for i := range 5 {
		ps.CreateParticle(&liquidbox.ParticleDef{Position: liquidbox.Vec2{X: float64(i), Y: 5}, UserData: i})
	}

	// Eight springs in a row, 0.15 apart: only neighbours touch.
	gd := liquidbox.MakeParticleGroupDef()
	gd.Flags = liquidbox.SpringParticle
	for i := range 8 {
		gd.PositionData = append(gd.PositionData, liquidbox.Vec2{X: 0.15 * float64(i)})
	}
	g := ps.CreateParticleGroup(&gd)

	if ps.ParticleCount() != 10 {
		t.Fatalf("ParticleCount = %d, want the cap of 10", ps.ParticleCount())
	}
	if g.ParticleCount() != 8 || g.BufferIndex() != 2 {
		t.Fatalf("group holds %d particles from %d, want 8 from 2", g.ParticleCount(), g.BufferIndex())
	}
	owners := ps.ParticleGroups()
	for i := range ps.ParticleCount() {
		if inGroup := owners[i] == g; inGroup != g.ContainsParticle(i) {
			t.Errorf("particle %d: owner %p, in range %v", i, owners[i], g.ContainsParticle(i))
		}
	}
	// The three oldest made room.
	if ps.ParticleUserData(0) != 3 || ps.ParticleUserData(1) != 4 {
		t.Errorf("survivors %v, %v; want 3 and 4", ps.ParticleUserData(0), ps.ParticleUserData(1))
	}
	if ps.PairCount() != 7 {
		t.Errorf("PairCount = %d, want 7 springs along the row", ps.PairCount())
	}
}
