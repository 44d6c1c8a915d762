package liquidbox

import (
	"go.uber.org/zap"
)

// BodyType selects how a body is simulated.
type BodyType uint8

const (
	// StaticBody has zero mass and zero velocity; it may be moved
	// manually.
	StaticBody BodyType = iota
	// KinematicBody has zero mass and a velocity set by the user. It is
	// moved by the solver but not affected by forces.
	KinematicBody
	// DynamicBody has positive mass and is moved by forces and contacts.
	DynamicBody
)

func (t BodyType) String() string {
	switch t {
	case StaticBody:
		return "static"
	case KinematicBody:
		return "kinematic"
	case DynamicBody:
		return "dynamic"
	}
	return "unknown"
}

// BodyDef holds the data needed to construct a body. Use MakeBodyDef for
// the defaults; the zero value describes an inactive, sleeping body.
type BodyDef struct {
	Type BodyType

	// The world position of the body origin.
	Position Vec2
	Angle    float64

	// The linear velocity of the body origin in world coordinates.
	LinearVelocity  Vec2
	AngularVelocity float64

	LinearDamping  float64
	AngularDamping float64

	// Set AllowSleep false to keep this body awake; it raises CPU usage.
	AllowSleep bool
	Awake      bool

	// Prevents rotation; useful for characters.
	FixedRotation bool

	// Bullets are swept against dynamic bodies too, not just static ones.
	Bullet bool
	Active bool

	// Scales the world gravity applied to this body.
	GravityScale float64

	UserData any
}

func MakeBodyDef() BodyDef {
	return BodyDef{
		Type:         StaticBody,
		AllowSleep:   true,
		Awake:        true,
		Active:       true,
		GravityScale: 1.0,
	}
}

type bodyFlags uint16

const (
	bodyIsland bodyFlags = 1 << iota
	bodyAwake
	bodyAutoSleep
	bodyBullet
	bodyFixedRotation
	bodyActive
	bodyTOI
)

// Body is a rigid body owned by a World. Create one with
// World.CreateBody.
type Body struct {
	typ   BodyType
	flags bodyFlags

	islandIndex int

	xf    Transform // the body origin transform
	sweep Sweep     // the swept motion for CCD

	linearVelocity  Vec2
	angularVelocity float64

	force  Vec2
	torque float64

	world  *World
	handle Handle

	fixtures    []*Fixture
	jointList   *JointEdge
	contactList *ContactEdge

	mass, invMass float64

	// Rotational inertia about the center of mass.
	I, invI float64

	linearDamping  float64
	angularDamping float64
	gravityScale   float64

	sleepTime float64

	userData any
}

func newBody(def *BodyDef, world *World) *Body {
	assert(def.Position.IsValid())
	assert(def.LinearVelocity.IsValid())
	assert(IsValid(def.Angle))
	assert(IsValid(def.AngularVelocity))
	assert(IsValid(def.AngularDamping) && def.AngularDamping >= 0.0)
	assert(IsValid(def.LinearDamping) && def.LinearDamping >= 0.0)

	b := &Body{world: world, typ: def.Type}
	if def.Bullet {
		b.flags |= bodyBullet
	}
	if def.FixedRotation {
		b.flags |= bodyFixedRotation
	}
	if def.AllowSleep {
		b.flags |= bodyAutoSleep
	}
	if def.Awake {
		b.flags |= bodyAwake
	}
	if def.Active {
		b.flags |= bodyActive
	}

	b.xf = NewTransform(def.Position, def.Angle)
	b.sweep = Sweep{C0: b.xf.P, C: b.xf.P, A0: def.Angle, A: def.Angle}

	b.linearVelocity = def.LinearVelocity
	b.angularVelocity = def.AngularVelocity
	b.linearDamping = def.LinearDamping
	b.angularDamping = def.AngularDamping
	b.gravityScale = def.GravityScale

	if b.typ == DynamicBody {
		b.mass = 1.0
		b.invMass = 1.0
	}
	b.userData = def.UserData
	return b
}

func (b *Body) Type() BodyType {
	return b.typ
}

func (b *Body) Handle() Handle {
	return b.handle
}

func (b *Body) World() *World {
	return b.world
}

// Next returns the next body in the world's body list, or nil.
func (b *Body) Next() *Body {
	if b.world == nil {
		return nil
	}
	next, _ := b.world.bodies.Next(b.handle)
	return next
}

func (b *Body) Transform() Transform {
	return b.xf
}

// Position returns the world position of the body origin.
func (b *Body) Position() Vec2 {
	return b.xf.P
}

func (b *Body) Angle() float64 {
	return b.sweep.A
}

// WorldCenter returns the world position of the center of mass.
func (b *Body) WorldCenter() Vec2 {
	return b.sweep.C
}

// LocalCenter returns the center of mass in body coordinates.
func (b *Body) LocalCenter() Vec2 {
	return b.sweep.LocalCenter
}

func (b *Body) LinearVelocity() Vec2 {
	return b.linearVelocity
}

func (b *Body) SetLinearVelocity(v Vec2) {
	if b.typ == StaticBody {
		return
	}
	if v.Dot(v) > 0.0 {
		b.SetAwake(true)
	}
	b.linearVelocity = v
}

func (b *Body) AngularVelocity() float64 {
	return b.angularVelocity
}

func (b *Body) SetAngularVelocity(w float64) {
	if b.typ == StaticBody {
		return
	}
	if w*w > 0.0 {
		b.SetAwake(true)
	}
	b.angularVelocity = w
}

func (b *Body) Mass() float64 {
	return b.mass
}

// Inertia returns the rotational inertia about the body origin.
func (b *Body) Inertia() float64 {
	return b.I + b.mass*b.sweep.LocalCenter.Dot(b.sweep.LocalCenter)
}

func (b *Body) MassData() MassData {
	return MassData{Mass: b.mass, Center: b.sweep.LocalCenter, I: b.Inertia()}
}

func (b *Body) WorldPoint(localPoint Vec2) Vec2 {
	return b.xf.MulV(localPoint)
}

func (b *Body) WorldVector(localVector Vec2) Vec2 {
	return b.xf.Q.MulV(localVector)
}

func (b *Body) LocalPoint(worldPoint Vec2) Vec2 {
	return b.xf.MulTV(worldPoint)
}

func (b *Body) LocalVector(worldVector Vec2) Vec2 {
	return b.xf.Q.MulTV(worldVector)
}

func (b *Body) LinearVelocityFromWorldPoint(worldPoint Vec2) Vec2 {
	return b.linearVelocity.Add(CrossSV(b.angularVelocity, worldPoint.Sub(b.sweep.C)))
}

func (b *Body) LinearVelocityFromLocalPoint(localPoint Vec2) Vec2 {
	return b.LinearVelocityFromWorldPoint(b.WorldPoint(localPoint))
}

func (b *Body) LinearDamping() float64 {
	return b.linearDamping
}

func (b *Body) SetLinearDamping(d float64) {
	b.linearDamping = d
}

func (b *Body) AngularDamping() float64 {
	return b.angularDamping
}

func (b *Body) SetAngularDamping(d float64) {
	b.angularDamping = d
}

func (b *Body) GravityScale() float64 {
	return b.gravityScale
}

func (b *Body) SetGravityScale(scale float64) {
	b.gravityScale = scale
}

func (b *Body) UserData() any {
	return b.userData
}

func (b *Body) SetUserData(data any) {
	b.userData = data
}

// Fixtures returns the attached fixtures. The slice must not be
// modified.
func (b *Body) Fixtures() []*Fixture {
	return b.fixtures
}

func (b *Body) JointList() *JointEdge {
	return b.jointList
}

func (b *Body) ContactList() *ContactEdge {
	return b.contactList
}

func (b *Body) IsBullet() bool {
	return b.flags&bodyBullet != 0
}

func (b *Body) IsAwake() bool {
	return b.flags&bodyAwake != 0
}

func (b *Body) IsActive() bool {
	return b.flags&bodyActive != 0
}

func (b *Body) IsFixedRotation() bool {
	return b.flags&bodyFixedRotation != 0
}

func (b *Body) IsSleepingAllowed() bool {
	return b.flags&bodyAutoSleep != 0
}

func (b *Body) setFlag(f bodyFlags, on bool) {
	if on {
		b.flags |= f
	} else {
		b.flags &^= f
	}
}

// SetBullet marks the body for continuous collision against other
// dynamic bodies.
func (b *Body) SetBullet(flag bool) {
	b.setFlag(bodyBullet, flag)
}

// SetSleepingAllowed enables or disables automatic sleep. Disabling it
// wakes the body.
func (b *Body) SetSleepingAllowed(flag bool) {
	b.setFlag(bodyAutoSleep, flag)
	if !flag {
		b.SetAwake(true)
	}
}

// SetAwake wakes or sleeps the body. A sleeping body has its velocity and
// accumulated force cleared.
func (b *Body) SetAwake(flag bool) {
	if flag {
		if b.flags&bodyAwake == 0 {
			b.flags |= bodyAwake
			b.sleepTime = 0.0
		}
		return
	}
	b.flags &^= bodyAwake
	b.sleepTime = 0.0
	b.linearVelocity = Vec2{}
	b.angularVelocity = 0.0
	b.force = Vec2{}
	b.torque = 0.0
}

// ApplyForce applies a world force at a world point. Only dynamic bodies
// accumulate forces; a sleeping body is left alone unless wake is set.
func (b *Body) ApplyForce(force, point Vec2, wake bool) {
	if b.typ != DynamicBody {
		return
	}
	if wake && b.flags&bodyAwake == 0 {
		b.SetAwake(true)
	}
	if b.flags&bodyAwake != 0 {
		b.force = b.force.Add(force)
		b.torque += point.Sub(b.sweep.C).Cross(force)
	}
}

func (b *Body) ApplyForceToCenter(force Vec2, wake bool) {
	if b.typ != DynamicBody {
		return
	}
	if wake && b.flags&bodyAwake == 0 {
		b.SetAwake(true)
	}
	if b.flags&bodyAwake != 0 {
		b.force = b.force.Add(force)
	}
}

func (b *Body) ApplyTorque(torque float64, wake bool) {
	if b.typ != DynamicBody {
		return
	}
	if wake && b.flags&bodyAwake == 0 {
		b.SetAwake(true)
	}
	if b.flags&bodyAwake != 0 {
		b.torque += torque
	}
}

// ApplyLinearImpulse changes the velocity immediately by impulse applied
// at a world point.
func (b *Body) ApplyLinearImpulse(impulse, point Vec2, wake bool) {
	if b.typ != DynamicBody {
		return
	}
	if wake && b.flags&bodyAwake == 0 {
		b.SetAwake(true)
	}
	if b.flags&bodyAwake != 0 {
		b.linearVelocity = b.linearVelocity.Add(impulse.Scale(b.invMass))
		b.angularVelocity += b.invI * point.Sub(b.sweep.C).Cross(impulse)
	}
}

func (b *Body) ApplyLinearImpulseToCenter(impulse Vec2, wake bool) {
	if b.typ != DynamicBody {
		return
	}
	if wake && b.flags&bodyAwake == 0 {
		b.SetAwake(true)
	}
	if b.flags&bodyAwake != 0 {
		b.linearVelocity = b.linearVelocity.Add(impulse.Scale(b.invMass))
	}
}

func (b *Body) ApplyAngularImpulse(impulse float64, wake bool) {
	if b.typ != DynamicBody {
		return
	}
	if wake && b.flags&bodyAwake == 0 {
		b.SetAwake(true)
	}
	if b.flags&bodyAwake != 0 {
		b.angularVelocity += b.invI * impulse
	}
}

func (b *Body) synchronizeTransform() {
	b.xf.Q = NewRot(b.sweep.A)
	b.xf.P = b.sweep.C.Sub(b.xf.Q.MulV(b.sweep.LocalCenter))
}

// advance moves the body to a safe time without touching the
// broad-phase.
func (b *Body) advance(alpha float64) {
	b.sweep.Advance(alpha)
	b.sweep.C = b.sweep.C0
	b.sweep.A = b.sweep.A0
	b.synchronizeTransform()
}

// SetType changes the body type, resetting mass and contacts.
func (b *Body) SetType(t BodyType) {
	b.world.checkUnlocked("Body.SetType")
	if b.typ == t {
		return
	}
	b.typ = t
	b.ResetMassData()

	if b.typ == StaticBody {
		b.linearVelocity = Vec2{}
		b.angularVelocity = 0.0
		b.sweep.A0 = b.sweep.A
		b.sweep.C0 = b.sweep.C
		b.synchronizeFixtures()
	}

	b.SetAwake(true)
	b.force = Vec2{}
	b.torque = 0.0

	b.destroyContacts()

	// Touch the proxies so that new contacts are created when
	// appropriate.
	bp := b.world.contactManager.broadPhase
	for _, f := range b.fixtures {
		for i := range f.proxies {
			bp.TouchProxy(f.proxies[i].proxyID)
		}
	}
}

func (b *Body) destroyContacts() {
	ce := b.contactList
	for ce != nil {
		ce0 := ce
		ce = ce.Next
		b.world.contactManager.destroy(ce0.Contact)
	}
	b.contactList = nil
}

// CreateFixture attaches a shape to the body. The shape is cloned. Mass
// is recomputed when the density is positive. Contacts for the fixture
// are found at the start of the next step.
func (b *Body) CreateFixture(def *FixtureDef) *Fixture {
	b.world.checkUnlocked("Body.CreateFixture")

	f := newFixture(b, def)
	if b.flags&bodyActive != 0 {
		f.createProxies(b.world.contactManager.broadPhase, b.xf)
	}
	b.fixtures = append(b.fixtures, f)

	if f.density > 0.0 {
		b.ResetMassData()
	}

	b.world.newFixture = true
	return f
}

// CreateFixtureFromShape is shorthand for a fixture with default
// friction and filtering.
func (b *Body) CreateFixtureFromShape(shape Shape, density float64) *Fixture {
	def := MakeFixtureDef()
	def.Shape = shape
	def.Density = density
	return b.CreateFixture(&def)
}

// DestroyFixture detaches and destroys f, its contacts and its proxies.
// The destruction listener is not notified.
func (b *Body) DestroyFixture(f *Fixture) {
	b.world.checkUnlocked("Body.DestroyFixture")
	if f == nil {
		return
	}
	if f.body != b {
		violation(b.world.log, "Body.DestroyFixture", ErrForeignEntity)
	}
	b.destroyFixture(f)
	b.ResetMassData()
}

func (b *Body) destroyFixture(f *Fixture) {
	index := -1
	for i, g := range b.fixtures {
		if g == f {
			index = i
			break
		}
	}
	if index < 0 {
		violation(b.world.log, "Body.DestroyFixture", ErrStaleHandle)
	}
	b.fixtures = append(b.fixtures[:index], b.fixtures[index+1:]...)

	edge := b.contactList
	for edge != nil {
		c := edge.Contact
		edge = edge.Next
		if c.fixtureA == f || c.fixtureB == f {
			b.world.contactManager.destroy(c)
		}
	}

	if b.flags&bodyActive != 0 {
		f.destroyProxies(b.world.contactManager.broadPhase)
	}
	for ps := range b.world.particleSystems.All() {
		ps.forgetFixture(f)
	}
	f.body = nil
}

// ResetMassData recomputes mass, center and inertia from the fixture
// densities. Dynamic bodies always end up with positive mass.
func (b *Body) ResetMassData() {
	b.mass = 0.0
	b.invMass = 0.0
	b.I = 0.0
	b.invI = 0.0
	b.sweep.LocalCenter = Vec2{}

	if b.typ == StaticBody || b.typ == KinematicBody {
		b.sweep.C0 = b.xf.P
		b.sweep.C = b.xf.P
		b.sweep.A0 = b.sweep.A
		return
	}

	var localCenter Vec2
	for _, f := range b.fixtures {
		if f.density == 0.0 {
			continue
		}
		md := f.MassData()
		b.mass += md.Mass
		localCenter = localCenter.Add(md.Center.Scale(md.Mass))
		b.I += md.I
	}

	if b.mass > 0.0 {
		b.invMass = 1.0 / b.mass
		localCenter = localCenter.Scale(b.invMass)
	} else {
		b.mass = 1.0
		b.invMass = 1.0
	}

	if b.I > 0.0 && b.flags&bodyFixedRotation == 0 {
		// Center the inertia about the center of mass.
		b.I -= b.mass * localCenter.Dot(localCenter)
		assert(b.I > 0.0)
		b.invI = 1.0 / b.I
	} else {
		b.I = 0.0
		b.invI = 0.0
	}

	b.moveCenter(localCenter)
}

// SetMassData overrides the mass properties computed from fixtures.
func (b *Body) SetMassData(md MassData) {
	b.world.checkUnlocked("Body.SetMassData")
	if b.typ != DynamicBody {
		return
	}

	b.invMass = 0.0
	b.I = 0.0
	b.invI = 0.0

	b.mass = md.Mass
	if b.mass <= 0.0 {
		b.mass = 1.0
	}
	b.invMass = 1.0 / b.mass

	if md.I > 0.0 && b.flags&bodyFixedRotation == 0 {
		b.I = md.I - b.mass*md.Center.Dot(md.Center)
		assert(b.I > 0.0)
		b.invI = 1.0 / b.I
	}

	b.moveCenter(md.Center)
}

func (b *Body) moveCenter(localCenter Vec2) {
	oldCenter := b.sweep.C
	b.sweep.LocalCenter = localCenter
	b.sweep.C = b.xf.MulV(localCenter)
	b.sweep.C0 = b.sweep.C

	// Update center of mass velocity.
	b.linearVelocity = b.linearVelocity.Add(CrossSV(b.angularVelocity, b.sweep.C.Sub(oldCenter)))
}

// ShouldCollide reports whether contacts between b and other may exist:
// at least one must be dynamic and no joint between them may forbid it.
func (b *Body) ShouldCollide(other *Body) bool {
	if b.typ != DynamicBody && other.typ != DynamicBody {
		return false
	}
	for jn := b.jointList; jn != nil; jn = jn.Next {
		if jn.Other == other && !jn.Joint.CollideConnected() {
			return false
		}
	}
	return true
}

// SetTransform teleports the body. Contacts are updated on the next step.
func (b *Body) SetTransform(position Vec2, angle float64) {
	b.world.checkUnlocked("Body.SetTransform")

	b.xf = NewTransform(position, angle)
	b.sweep.C = b.xf.MulV(b.sweep.LocalCenter)
	b.sweep.A = angle
	b.sweep.C0 = b.sweep.C
	b.sweep.A0 = angle

	bp := b.world.contactManager.broadPhase
	for _, f := range b.fixtures {
		f.synchronize(bp, b.xf, b.xf)
	}
}

func (b *Body) synchronizeFixtures() {
	xf1 := Transform{Q: NewRot(b.sweep.A0)}
	xf1.P = b.sweep.C0.Sub(xf1.Q.MulV(b.sweep.LocalCenter))

	bp := b.world.contactManager.broadPhase
	for _, f := range b.fixtures {
		f.synchronize(bp, xf1, b.xf)
	}
}

// SetActive adds or removes the body from simulation. An inactive body
// keeps its fixtures and joints but has no proxies and no contacts.
func (b *Body) SetActive(flag bool) {
	b.world.checkUnlocked("Body.SetActive")
	if flag == b.IsActive() {
		return
	}

	bp := b.world.contactManager.broadPhase
	if flag {
		b.flags |= bodyActive
		for _, f := range b.fixtures {
			f.createProxies(bp, b.xf)
		}
		// Contacts are created the next time step.
		return
	}

	b.flags &^= bodyActive
	for _, f := range b.fixtures {
		f.destroyProxies(bp)
	}
	b.destroyContacts()
}

func (b *Body) SetFixedRotation(flag bool) {
	if flag == b.IsFixedRotation() {
		return
	}
	b.setFlag(bodyFixedRotation, flag)
	b.angularVelocity = 0.0
	b.ResetMassData()
}

func (b *Body) dump(log *zap.Logger, bodyIndex int) {
	log.Info("body",
		zap.Int("index", bodyIndex),
		zap.Stringer("type", b.typ),
		zap.Float64s("position", []float64{b.xf.P.X, b.xf.P.Y}),
		zap.Float64("angle", b.sweep.A),
		zap.Float64s("linearVelocity", []float64{b.linearVelocity.X, b.linearVelocity.Y}),
		zap.Float64("angularVelocity", b.angularVelocity),
		zap.Float64("linearDamping", b.linearDamping),
		zap.Float64("angularDamping", b.angularDamping),
		zap.Bool("allowSleep", b.IsSleepingAllowed()),
		zap.Bool("awake", b.IsAwake()),
		zap.Bool("fixedRotation", b.IsFixedRotation()),
		zap.Bool("bullet", b.IsBullet()),
		zap.Bool("active", b.IsActive()),
		zap.Float64("gravityScale", b.gravityScale),
	)
	for _, f := range b.fixtures {
		f.dump(log, bodyIndex)
	}
}
