package liquidbox

// DestructionListener is notified when the world destroys an entity
// implicitly, because its owner was destroyed. Explicit destruction of
// the entity itself is not reported.
type DestructionListener interface {
	// SayGoodbyeJoint is called when a joint is about to be destroyed
	// due to the destruction of one of its attached bodies.
	SayGoodbyeJoint(joint Joint)

	// SayGoodbyeFixture is called when a fixture is about to be
	// destroyed due to the destruction of its parent body.
	SayGoodbyeFixture(fixture *Fixture)

	// SayGoodbyeParticleGroup is called when a group is about to be
	// destroyed, either explicitly or because it became empty.
	SayGoodbyeParticleGroup(group *ParticleGroup)

	// SayGoodbyeParticle is called when a particle flagged with
	// ParticleDestructionListener is about to be destroyed.
	SayGoodbyeParticle(system *ParticleSystem, index int)
}

// ContactFilter decides whether two fixtures may form a contact.
type ContactFilter interface {
	ShouldCollide(fixtureA, fixtureB *Fixture) bool
}

// ParticleContactFilter is implemented by contact filters that also
// filter particle contacts. It is only consulted for particles with
// ParticleFixtureContactFilter or ParticleParticleContactFilter set.
type ParticleContactFilter interface {
	ShouldCollideFixtureParticle(fixture *Fixture, system *ParticleSystem, index int) bool
	ShouldCollideParticles(system *ParticleSystem, indexA, indexB int) bool
}

// DefaultContactFilter applies the fixture Filter: a shared non-zero
// group index decides first, then the category and mask bits.
type DefaultContactFilter struct{}

func (DefaultContactFilter) ShouldCollide(fixtureA, fixtureB *Fixture) bool {
	filterA := fixtureA.filter
	filterB := fixtureB.filter

	if filterA.GroupIndex == filterB.GroupIndex && filterA.GroupIndex != 0 {
		return filterA.GroupIndex > 0
	}

	return filterA.MaskBits&filterB.CategoryBits != 0 && filterA.CategoryBits&filterB.MaskBits != 0
}

// ContactImpulse reports the impulses applied at each manifold point
// during the step. Impulses are used instead of forces because sub-step
// forces may approach infinity for rigid collisions.
type ContactImpulse struct {
	NormalImpulses  [maxManifoldPoints]float64
	TangentImpulses [maxManifoldPoints]float64
	Count           int
}

// ContactListener receives contact events. Callbacks run while the world
// is locked; structural mutations from inside them panic.
type ContactListener interface {
	// BeginContact is called when two fixtures begin to touch.
	BeginContact(contact *Contact)

	// EndContact is called when two fixtures cease to touch.
	EndContact(contact *Contact)

	// PreSolve is called after a touching, non-sensor contact is updated
	// and before it is solved. The listener may disable the contact for
	// this step with Contact.SetEnabled(false). oldManifold is the
	// manifold before the update.
	PreSolve(contact *Contact, oldManifold *Manifold)

	// PostSolve reports the solver impulses of touching, enabled
	// contacts in awake islands. TOI sub-step impulses are reported
	// separately per sub-step.
	PostSolve(contact *Contact, impulse *ContactImpulse)
}

// ParticleContactListener is implemented by contact listeners that want
// particle to body contact transitions. Only particles flagged with
// ParticleFixtureContactListener are reported.
type ParticleContactListener interface {
	BeginParticleBodyContact(system *ParticleSystem, contact *ParticleBodyContact)
	EndParticleBodyContact(fixture *Fixture, system *ParticleSystem, index int)
}

// NopContactListener ignores every event. Embed it to implement only the
// callbacks you need.
type NopContactListener struct{}

func (NopContactListener) BeginContact(*Contact) {}
func (NopContactListener) EndContact(*Contact) {}
func (NopContactListener) PreSolve(*Contact, *Manifold) {}
func (NopContactListener) PostSolve(*Contact, *ContactImpulse) {}

// ContactListeners fans each event out to several listeners in order.
type ContactListeners []ContactListener

func (ls ContactListeners) BeginContact(c *Contact) {
	for _, l := range ls {
		l.BeginContact(c)
	}
}

func (ls ContactListeners) EndContact(c *Contact) {
	for _, l := range ls {
		l.EndContact(c)
	}
}

func (ls ContactListeners) PreSolve(c *Contact, oldManifold *Manifold) {
	for _, l := range ls {
		l.PreSolve(c, oldManifold)
	}
}

func (ls ContactListeners) PostSolve(c *Contact, impulse *ContactImpulse) {
	for _, l := range ls {
		l.PostSolve(c, impulse)
	}
}

func (ls ContactListeners) BeginParticleBodyContact(system *ParticleSystem, contact *ParticleBodyContact) {
	for _, l := range ls {
		if pl, ok := l.(ParticleContactListener); ok {
			pl.BeginParticleBodyContact(system, contact)
		}
	}
}

func (ls ContactListeners) EndParticleBodyContact(fixture *Fixture, system *ParticleSystem, index int) {
	for _, l := range ls {
		if pl, ok := l.(ParticleContactListener); ok {
			pl.EndParticleBodyContact(fixture, system, index)
		}
	}
}

// QueryCallback is called for each fixture whose fat AABB overlaps the
// query box. Return false to terminate the query.
type QueryCallback func(fixture *Fixture) bool

// RayCastCallback is called for each fixture hit by the ray. The return
// value controls the cast: -1 ignores this fixture and continues, 0
// terminates, a fraction clips the ray to that point, and 1 continues
// without clipping.
type RayCastCallback func(fixture *Fixture, point, normal Vec2, fraction float64) float64

// ParticleQueryCallback is called for each particle inside the query box.
// Return false to terminate the query.
type ParticleQueryCallback func(system *ParticleSystem, index int) bool

// ParticleRayCastCallback follows the RayCastCallback conventions for
// particles.
type ParticleRayCastCallback func(system *ParticleSystem, index int, point, normal Vec2, fraction float64) float64

// Color is an RGBA color in [0, 1] used by Draw.
type Color struct {
	R, G, B, A float64
}

// DrawFlags selects what DrawDebugData renders.
type DrawFlags uint32

const (
	DrawShape DrawFlags = 1 << iota
	DrawJoint
	DrawAABB
	DrawPair
	DrawCenterOfMass
	DrawParticle
)

// Draw renders debug geometry for World.DrawDebugData.
type Draw interface {
	Flags() DrawFlags
	DrawPolygon(vertices []Vec2, color Color)
	DrawSolidPolygon(vertices []Vec2, color Color)
	DrawCircle(center Vec2, radius float64, color Color)
	DrawSolidCircle(center Vec2, radius float64, axis Vec2, color Color)
	DrawSegment(p1, p2 Vec2, color Color)
	DrawTransform(xf Transform)
	DrawPoint(p Vec2, size float64, color Color)
	// DrawParticles draws particles of one radius. colors is either nil
	// or as long as centers.
	DrawParticles(centers []Vec2, radius float64, colors []ParticleColor)
}
