package liquidbox

// ParticleFlag selects the behaviours applied to a particle. Flags are
// combined with bitwise or; a particle with no flags is water.
type ParticleFlag uint32

const (
	// WaterParticle is the default: pressure and damping only.
	WaterParticle ParticleFlag = 0
	// ZombieParticle is removed at the start of the next step.
	ZombieParticle ParticleFlag = 1 << 1
	// WallParticle has zero velocity and does not move.
	WallParticle ParticleFlag = 1 << 2
	// SpringParticle keeps its distance to the particles it was created
	// next to.
	SpringParticle ParticleFlag = 1 << 3
	// ElasticParticle keeps the shape of the triangles it was created in.
	ElasticParticle ParticleFlag = 1 << 4
	// ViscousParticle damps the relative velocity of its neighbours.
	ViscousParticle ParticleFlag = 1 << 5
	// PowderParticle has no pressure and repels only when packed.
	PowderParticle ParticleFlag = 1 << 6
	// TensileParticle has surface tension.
	TensileParticle ParticleFlag = 1 << 7
	// ColorMixingParticle mixes its color with touching particles.
	ColorMixingParticle ParticleFlag = 1 << 8
	// ParticleDestructionListener reports the particle's destruction to
	// the DestructionListener.
	ParticleDestructionListener ParticleFlag = 1 << 9
	// BarrierParticle stops other groups passing between barrier pairs.
	BarrierParticle ParticleFlag = 1 << 10
	// StaticPressureParticle is less compressible.
	StaticPressureParticle ParticleFlag = 1 << 11
	// ReactiveParticle makes springs and triads with any group it meets.
	ReactiveParticle ParticleFlag = 1 << 12
	// RepulsiveParticle pushes away particles of other groups.
	RepulsiveParticle ParticleFlag = 1 << 13
	// ParticleFixtureContactListener reports particle to body contact
	// transitions to a ParticleContactListener.
	ParticleFixtureContactListener ParticleFlag = 1 << 14
	// ParticleFixtureContactFilter consults ShouldCollideFixtureParticle.
	ParticleFixtureContactFilter ParticleFlag = 1 << 16
	// ParticleParticleContactFilter consults ShouldCollideParticles.
	ParticleParticleContactFilter ParticleFlag = 1 << 17
)

const (
	pairFlags          = SpringParticle | BarrierParticle
	triadFlags         = ElasticParticle
	noPressureFlags    = PowderParticle | TensileParticle
	extraDampingFlags  = StaticPressureParticle
	barrierWallFlags   = BarrierParticle | WallParticle
	particleFlagsValid = ZombieParticle | WallParticle | SpringParticle | ElasticParticle |
		ViscousParticle | PowderParticle | TensileParticle | ColorMixingParticle |
		ParticleDestructionListener | BarrierParticle | StaticPressureParticle |
		ReactiveParticle | RepulsiveParticle | ParticleFixtureContactListener |
		ParticleFixtureContactFilter | ParticleParticleContactFilter
)

// ParticleColor is an 8 bit per channel RGBA color.
type ParticleColor struct {
	R, G, B, A uint8
}

// IsZero reports whether every channel is zero.
func (c ParticleColor) IsZero() bool {
	return c == ParticleColor{}
}

// Color converts c to the floating point color used by Draw.
func (c ParticleColor) Color() Color {
	const s = 1.0 / 255.0
	return Color{float64(c.R) * s, float64(c.G) * s, float64(c.B) * s, float64(c.A) * s}
}

// mixColors moves a and b towards each other by strength/256 of their
// difference, preserving the channel sums.
func mixColors(a, b *ParticleColor, strength int) {
	mix := func(x, y *uint8) {
		d := (strength * (int(*y) - int(*x))) >> 8
		*x = uint8(int(*x) + d)
		*y = uint8(int(*y) - d)
	}
	mix(&a.R, &b.R)
	mix(&a.G, &b.G)
	mix(&a.B, &b.B)
	mix(&a.A, &b.A)
}

// ParticleDef describes a single particle for
// ParticleSystem.CreateParticle.
type ParticleDef struct {
	Flags    ParticleFlag
	Position Vec2
	Velocity Vec2
	Color    ParticleColor

	// Lifetime in seconds; zero or less lives forever.
	Lifetime float64

	UserData any

	// Group, when set, receives the particle.
	Group *ParticleGroup
}

// ParticleContact is a touching pair of particles.
type ParticleContact struct {
	IndexA, IndexB int

	// Weight is 1 at full overlap and 0 at one diameter apart.
	Weight float64

	// Normal points from particle A to particle B.
	Normal Vec2

	// Flags is the union of both particles' flags.
	Flags ParticleFlag
}

// ParticleBodyContact is a particle touching a fixture.
type ParticleBodyContact struct {
	Index   int
	Body    *Body
	Fixture *Fixture

	// Weight is 1 at full overlap and 0 at one diameter apart.
	Weight float64

	// Normal points from the particle into the fixture.
	Normal Vec2

	// Mass is the effective mass of the contact.
	Mass float64
}

// particlePair connects two particles for springs and barriers.
type particlePair struct {
	a, b     int
	flags    ParticleFlag
	strength float64
	distance float64 // rest distance
}

// particleTriad connects three particles for elasticity. pa, pb and pc
// are the rest positions relative to the triangle centroid.
type particleTriad struct {
	a, b, c    int
	flags      ParticleFlag
	strength   float64
	pa, pb, pc Vec2
}
