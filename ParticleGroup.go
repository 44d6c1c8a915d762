package liquidbox

type ParticleGroupFlag uint32

const (
	// SolidParticleGroup prevents overlap with other groups.
	SolidParticleGroup ParticleGroupFlag = 1 << 0
	// RigidParticleGroup keeps its shape: its particles move as one body.
	RigidParticleGroup ParticleGroupFlag = 1 << 1
	// ParticleGroupCanBeEmpty keeps the group alive with no particles.
	ParticleGroupCanBeEmpty ParticleGroupFlag = 1 << 2

	groupWillBeDestroyed  ParticleGroupFlag = 1 << 3
	groupNeedsUpdateDepth ParticleGroupFlag = 1 << 4
)

// ParticleGroupDef describes a group for
// ParticleSystem.CreateParticleGroup. Particles are placed on a lattice
// inside Shape and Shapes, then at PositionData.
type ParticleGroupDef struct {
	Flags      ParticleFlag
	GroupFlags ParticleGroupFlag

	// The world position and angle of the group. Shapes and PositionData
	// are given relative to them.
	Position Vec2
	Angle    float64

	LinearVelocity  Vec2
	AngularVelocity float64

	Color ParticleColor

	// Strength scales the spring and elastic constraints.
	Strength float64

	Shape  Shape
	Shapes []Shape

	// Stride is the lattice spacing. Zero picks 0.75 times the particle
	// diameter.
	Stride float64

	PositionData []Vec2

	// Lifetime in seconds for each particle; zero or less lives forever.
	Lifetime float64

	UserData any

	// Group, when set, is joined with the new particles.
	Group *ParticleGroup
}

func MakeParticleGroupDef() ParticleGroupDef {
	return ParticleGroupDef{Strength: 1.0}
}

// ParticleGroup is a contiguous range of particles in a ParticleSystem.
// Index ranges move when particles are created or destroyed; read them
// again after any such change.
type ParticleGroup struct {
	system *ParticleSystem

	firstIndex int
	lastIndex  int
	groupFlags ParticleGroupFlag
	strength   float64

	prev *ParticleGroup
	next *ParticleGroup

	timestamp       int
	mass            float64
	inertia         float64
	center          Vec2
	linearVelocity  Vec2
	angularVelocity float64
	transform       Transform

	userData any
}

// ParticleSystem returns the owning system, or nil once destroyed.
func (g *ParticleGroup) ParticleSystem() *ParticleSystem {
	return g.system
}

// Next returns the next group of the system, or nil.
func (g *ParticleGroup) Next() *ParticleGroup {
	return g.next
}

func (g *ParticleGroup) ParticleCount() int {
	return g.lastIndex - g.firstIndex
}

// BufferIndex returns the index of the group's first particle.
func (g *ParticleGroup) BufferIndex() int {
	return g.firstIndex
}

func (g *ParticleGroup) ContainsParticle(index int) bool {
	return g.firstIndex <= index && index < g.lastIndex
}

// AllParticleFlags returns the union of the flags of every particle.
func (g *ParticleGroup) AllParticleFlags() ParticleFlag {
	var flags ParticleFlag
	for i := g.firstIndex; i < g.lastIndex; i++ {
		flags |= g.system.flags[i]
	}
	return flags
}

func (g *ParticleGroup) GroupFlags() ParticleGroupFlag {
	return g.groupFlags &^ (groupWillBeDestroyed | groupNeedsUpdateDepth)
}

func (g *ParticleGroup) SetGroupFlags(flags ParticleGroupFlag) {
	flags &= SolidParticleGroup | RigidParticleGroup | ParticleGroupCanBeEmpty
	flags |= g.groupFlags & (groupWillBeDestroyed | groupNeedsUpdateDepth)
	g.system.setGroupFlags(g, flags)
}

func (g *ParticleGroup) Mass() float64 {
	g.updateStatistics()
	return g.mass
}

// Inertia returns the rotational inertia about the center of mass.
func (g *ParticleGroup) Inertia() float64 {
	g.updateStatistics()
	return g.inertia
}

func (g *ParticleGroup) Center() Vec2 {
	g.updateStatistics()
	return g.center
}

func (g *ParticleGroup) LinearVelocity() Vec2 {
	g.updateStatistics()
	return g.linearVelocity
}

func (g *ParticleGroup) AngularVelocity() float64 {
	g.updateStatistics()
	return g.angularVelocity
}

// Transform returns the group transform. Only rigid groups move it.
func (g *ParticleGroup) Transform() Transform {
	return g.transform
}

func (g *ParticleGroup) Position() Vec2 {
	return g.transform.P
}

func (g *ParticleGroup) Angle() float64 {
	return g.transform.Q.Angle()
}

func (g *ParticleGroup) LinearVelocityFromWorldPoint(worldPoint Vec2) Vec2 {
	g.updateStatistics()
	return g.linearVelocity.Add(CrossSV(g.angularVelocity, worldPoint.Sub(g.center)))
}

func (g *ParticleGroup) UserData() any {
	return g.userData
}

func (g *ParticleGroup) SetUserData(data any) {
	g.userData = data
}

// ApplyForce spreads force evenly over the group's particles.
func (g *ParticleGroup) ApplyForce(force Vec2) {
	g.system.ApplyForce(g.firstIndex, g.lastIndex, force)
}

// ApplyLinearImpulse changes the velocity of every particle by
// impulse/groupMass.
func (g *ParticleGroup) ApplyLinearImpulse(impulse Vec2) {
	g.system.ApplyLinearImpulse(g.firstIndex, g.lastIndex, impulse)
}

// DestroyParticles marks every particle of the group for removal at the
// next step. The group goes with its last particle unless it can be
// empty.
func (g *ParticleGroup) DestroyParticles(callDestructionListener bool) {
	g.system.world.checkUnlocked("ParticleGroup.DestroyParticles")
	for i := g.firstIndex; i < g.lastIndex; i++ {
		g.system.DestroyParticle(i, callDestructionListener)
	}
}

// updateStatistics recomputes the mass properties and velocities once
// per particle iteration.
func (g *ParticleGroup) updateStatistics() {
	ps := g.system
	if ps == nil || g.timestamp == ps.timestamp {
		return
	}

	m := ps.particleMass()
	g.mass = 0.0
	g.center = Vec2{}
	g.linearVelocity = Vec2{}
	for i := g.firstIndex; i < g.lastIndex; i++ {
		g.mass += m
		g.center = g.center.Add(ps.positions[i].Scale(m))
		g.linearVelocity = g.linearVelocity.Add(ps.velocities[i].Scale(m))
	}
	if g.mass > 0.0 {
		g.center = g.center.Scale(1.0 / g.mass)
		g.linearVelocity = g.linearVelocity.Scale(1.0 / g.mass)
	}

	g.inertia = 0.0
	g.angularVelocity = 0.0
	for i := g.firstIndex; i < g.lastIndex; i++ {
		p := ps.positions[i].Sub(g.center)
		v := ps.velocities[i].Sub(g.linearVelocity)
		g.inertia += m * p.Dot(p)
		g.angularVelocity += m * p.Cross(v)
	}
	if g.inertia > 0.0 {
		g.angularVelocity *= 1.0 / g.inertia
	}

	g.timestamp = ps.timestamp
}

func (g *ParticleGroup) isRigid() bool {
	return g != nil && g.groupFlags&RigidParticleGroup != 0
}
