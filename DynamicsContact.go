package liquidbox

import (
	"math"
)

// MixFriction is the friction mixing law: the geometric mean, so a
// frictionless fixture slides on anything.
func MixFriction(friction1, friction2 float64) float64 {
	return math.Sqrt(friction1 * friction2)
}

// MixRestitution is the restitution mixing law: anything bounces on a
// bouncy fixture.
func MixRestitution(restitution1, restitution2 float64) float64 {
	return math.Max(restitution1, restitution2)
}

// ContactEdge connects bodies and contacts in the contact graph. Each
// body keeps a doubly linked list of its edges; each contact owns two.
type ContactEdge struct {
	Other   *Body    // the other body in the contact
	Contact *Contact // the contact
	Prev    *ContactEdge
	Next    *ContactEdge
}

type contactFlags uint32

const (
	// Used when crawling the contact graph to form islands.
	contactIsland contactFlags = 1 << iota
	// Set when the shapes are touching.
	contactTouching
	// Cleared by a PreSolve listener to disable the contact for a step.
	contactEnabled
	// Set when the contact needs filtering because a fixture filter
	// changed.
	contactFilter
	// This bullet contact had a TOI event.
	contactBulletHit
	// The contact has a valid TOI in toi.
	contactTOI
)

// evaluateFunc computes the manifold for a shape pair in the order the
// contact registry chose.
type evaluateFunc func(m *Manifold, shapeA Shape, xfA Transform, shapeB Shape, xfB Transform)

type contactRegister struct {
	evaluate evaluateFunc
	primary  bool
}

// contactRegisters maps a shape-type pair to its narrow-phase routine.
// The primary entry holds the routine; the mirrored entry swaps the
// fixtures before calling it.
var contactRegisters = buildContactRegisters()

func buildContactRegisters() (r [shapeTypeCount][shapeTypeCount]contactRegister) {
	add := func(fn evaluateFunc, typeA, typeB ShapeType) {
		r[typeA][typeB] = contactRegister{evaluate: fn, primary: true}
		if typeA != typeB {
			r[typeB][typeA] = contactRegister{evaluate: fn, primary: false}
		}
	}

	add(func(m *Manifold, a Shape, xfA Transform, b Shape, xfB Transform) {
		CollideCircles(m, a.(*CircleShape), xfA, b.(*CircleShape), xfB)
	}, ShapeCircle, ShapeCircle)
	add(func(m *Manifold, a Shape, xfA Transform, b Shape, xfB Transform) {
		CollidePolygonAndCircle(m, a.(*PolygonShape), xfA, b.(*CircleShape), xfB)
	}, ShapePolygon, ShapeCircle)
	add(func(m *Manifold, a Shape, xfA Transform, b Shape, xfB Transform) {
		CollidePolygons(m, a.(*PolygonShape), xfA, b.(*PolygonShape), xfB)
	}, ShapePolygon, ShapePolygon)
	add(func(m *Manifold, a Shape, xfA Transform, b Shape, xfB Transform) {
		CollideEdgeAndCircle(m, a.(*EdgeShape), xfA, b.(*CircleShape), xfB)
	}, ShapeEdge, ShapeCircle)
	add(func(m *Manifold, a Shape, xfA Transform, b Shape, xfB Transform) {
		CollideEdgeAndPolygon(m, a.(*EdgeShape), xfA, b.(*PolygonShape), xfB)
	}, ShapeEdge, ShapePolygon)
	return r
}

// Contact manages the contact between two fixture children. A contact
// exists for each overlapping fat AABB pair in the broad-phase, so it may
// exist while the shapes are not touching.
type Contact struct {
	flags  contactFlags
	handle Handle

	fixtureA *Fixture
	fixtureB *Fixture
	indexA   int
	indexB   int

	// Nodes for connecting bodies.
	nodeA ContactEdge
	nodeB ContactEdge

	manifold Manifold
	evaluate evaluateFunc

	toiCount int
	toi      float64

	friction     float64
	restitution  float64
	tangentSpeed float64
}

func (c *Contact) init(fA *Fixture, indexA int, fB *Fixture, indexB int, evaluate evaluateFunc) {
	c.flags = contactEnabled
	c.fixtureA = fA
	c.fixtureB = fB
	c.indexA = indexA
	c.indexB = indexB
	c.evaluate = evaluate
	c.friction = MixFriction(fA.friction, fB.friction)
	c.restitution = MixRestitution(fA.restitution, fB.restitution)
}

func (c *Contact) Handle() Handle {
	return c.handle
}

// Next returns the next contact in the world's contact list, or nil.
func (c *Contact) Next() *Contact {
	if c.fixtureA == nil || c.fixtureA.body == nil {
		return nil
	}
	next, _ := c.fixtureA.body.world.contactManager.contacts.Next(c.handle)
	return next
}

// Manifold returns the contact manifold in local coordinates. Do not
// modify it outside of PreSolve.
func (c *Contact) Manifold() *Manifold {
	return &c.manifold
}

// WorldManifold returns the manifold in world coordinates.
func (c *Contact) WorldManifold() WorldManifold {
	bodyA := c.fixtureA.body
	bodyB := c.fixtureB.body
	var wm WorldManifold
	wm.Initialize(&c.manifold, bodyA.xf, c.fixtureA.shape.Radius(), bodyB.xf, c.fixtureB.shape.Radius())
	return wm
}

func (c *Contact) IsTouching() bool {
	return c.flags&contactTouching != 0
}

// SetEnabled disables the contact for the current step when called from
// PreSolve. The flag is restored on the next update.
func (c *Contact) SetEnabled(flag bool) {
	if flag {
		c.flags |= contactEnabled
	} else {
		c.flags &^= contactEnabled
	}
}

func (c *Contact) IsEnabled() bool {
	return c.flags&contactEnabled != 0
}

func (c *Contact) FixtureA() *Fixture {
	return c.fixtureA
}

func (c *Contact) ChildIndexA() int {
	return c.indexA
}

func (c *Contact) FixtureB() *Fixture {
	return c.fixtureB
}

func (c *Contact) ChildIndexB() int {
	return c.indexB
}

// SetFriction overrides the mixed friction. It persists for the life of
// the contact.
func (c *Contact) SetFriction(friction float64) {
	c.friction = friction
}

func (c *Contact) Friction() float64 {
	return c.friction
}

func (c *Contact) ResetFriction() {
	c.friction = MixFriction(c.fixtureA.friction, c.fixtureB.friction)
}

func (c *Contact) SetRestitution(restitution float64) {
	c.restitution = restitution
}

func (c *Contact) Restitution() float64 {
	return c.restitution
}

func (c *Contact) ResetRestitution() {
	c.restitution = MixRestitution(c.fixtureA.restitution, c.fixtureB.restitution)
}

// SetTangentSpeed sets the desired tangent speed for a conveyor belt
// behavior, in meters per second.
func (c *Contact) SetTangentSpeed(speed float64) {
	c.tangentSpeed = speed
}

func (c *Contact) TangentSpeed() float64 {
	return c.tangentSpeed
}

// FlagForFiltering makes the next step re-run the filter on this
// contact.
func (c *Contact) FlagForFiltering() {
	c.flags |= contactFilter
}

// update refreshes the manifold and touching state and notifies the
// listener. The fixture AABBs may not overlap here.
func (c *Contact) update(listener ContactListener) {
	oldManifold := c.manifold

	// Re-enable this contact.
	c.flags |= contactEnabled

	touching := false
	wasTouching := c.flags&contactTouching != 0

	sensor := c.fixtureA.isSensor || c.fixtureB.isSensor

	bodyA := c.fixtureA.body
	bodyB := c.fixtureB.body
	xfA := bodyA.xf
	xfB := bodyB.xf

	if sensor {
		touching = TestOverlapShapes(c.fixtureA.shape, c.indexA, c.fixtureB.shape, c.indexB, xfA, xfB)

		// Sensors don't generate manifolds.
		c.manifold.PointCount = 0
	} else {
		c.evaluate(&c.manifold, c.fixtureA.shape, xfA, c.fixtureB.shape, xfB)
		touching = c.manifold.PointCount > 0

		// Match old contact ids to new contact ids and copy the stored
		// impulses to warm start the solver.
		for i := 0; i < c.manifold.PointCount; i++ {
			mp2 := &c.manifold.Points[i]
			mp2.NormalImpulse = 0.0
			mp2.TangentImpulse = 0.0
			key := mp2.ID.Key()

			for j := 0; j < oldManifold.PointCount; j++ {
				mp1 := &oldManifold.Points[j]
				if mp1.ID.Key() == key {
					mp2.NormalImpulse = mp1.NormalImpulse
					mp2.TangentImpulse = mp1.TangentImpulse
					break
				}
			}
		}

		if touching != wasTouching {
			bodyA.SetAwake(true)
			bodyB.SetAwake(true)
		}
	}

	if touching {
		c.flags |= contactTouching
	} else {
		c.flags &^= contactTouching
	}

	if listener == nil {
		return
	}
	if !wasTouching && touching {
		listener.BeginContact(c)
	}
	if wasTouching && !touching {
		listener.EndContact(c)
	}
	if !sensor && touching {
		listener.PreSolve(c, &oldManifold)
	}
}
