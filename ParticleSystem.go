package liquidbox

import (
	"iter"
	"math"
	"slices"

	"go.uber.org/zap"
)

// ParticleSystemDef holds the parameters shared by every particle of a
// system.
type ParticleSystemDef struct {
	// Radius of every particle.
	Radius float64

	// Density of every particle; mass is density times the stride squared.
	Density float64

	GravityScale float64

	// MaxCount caps the number of particles. Zero means no cap.
	MaxCount int

	// Increases pressure in response to compression. Smaller values
	// allow more compression.
	PressureStrength float64

	// Reduces velocity along the collision normal. Smaller values reduce
	// less.
	DampingStrength float64

	// Restores the shape of elastic particle groups. Larger values
	// increase elastic particle velocity.
	ElasticStrength float64

	// Restores the length of spring particle groups. Larger values
	// increase spring particle velocity.
	SpringStrength float64

	// Reduces relative velocity of viscous particles.
	ViscousStrength float64

	// Produces pressure on tensile particles, 0~0.2.
	SurfaceTensionPressureStrength float64

	// Smoothes the outline of tensile particles, 0~0.2.
	SurfaceTensionNormalStrength float64

	// Produces additional pressure on repulsive particles.
	RepulsiveStrength float64

	// Produces repulsion between powder particles.
	PowderStrength float64

	// Pushes particles out of solid particle groups.
	EjectionStrength float64

	// Produces static pressure.
	StaticPressureStrength float64

	// Reduces instability in static pressure calculation.
	StaticPressureRelaxation float64

	// Computes static pressure more precisely.
	StaticPressureIterations int

	// Determines how fast colors are mixed, 0~1.
	ColorMixingStrength float64

	// When full, destroy the oldest particle to make room for a new one.
	DestroyByAge bool

	// Lifetimes are rounded to this granularity, in seconds.
	LifetimeGranularity float64
}

func MakeParticleSystemDef() ParticleSystemDef {
	return ParticleSystemDef{
		Radius:                         1.0,
		Density:                        1.0,
		GravityScale:                   1.0,
		PressureStrength:               0.05,
		DampingStrength:                1.0,
		ElasticStrength:                0.25,
		SpringStrength:                 0.25,
		ViscousStrength:                0.25,
		SurfaceTensionPressureStrength: 0.2,
		SurfaceTensionNormalStrength:   0.2,
		RepulsiveStrength:              1.0,
		PowderStrength:                 0.5,
		EjectionStrength:               0.5,
		StaticPressureStrength:         0.2,
		StaticPressureRelaxation:       0.2,
		StaticPressureIterations:       8,
		ColorMixingStrength:            0.5,
		DestroyByAge:                   true,
		LifetimeGranularity:            1.0 / 60.0,
	}
}

// ParticleSystem simulates a population of particles. It is owned by a
// World and created with World.CreateParticleSystem.
type ParticleSystem struct {
	world  *World
	handle Handle
	def    ParticleSystemDef
	paused bool

	timestamp   int
	timeElapsed float64
	sequence    uint64

	particleDiameter float64
	inverseDiameter  float64
	squaredDiameter  float64
	inverseDensity   float64

	allParticleFlags ParticleFlag
	allGroupFlags    ParticleGroupFlag
	hasForce         bool

	// Per-particle buffers, all of the same length.
	flags           []ParticleFlag
	positions       []Vec2
	velocities      []Vec2
	forces          []Vec2
	staticPressures []float64
	depths          []float64
	colors          []ParticleColor
	groups          []*ParticleGroup
	userData        []any
	expirations     []float64
	created         []uint64

	// Per-iteration scratch sized to the particle count.
	weights        []float64
	accumulations  []float64
	accumulations2 []Vec2

	proxies      []particleProxy
	proxiesStale bool

	contacts     []ParticleContact
	bodyContacts []ParticleBodyContact
	pairs        []particlePair
	triads       []particleTriad

	groupList  *ParticleGroup
	groupCount int
}

func newParticleSystem(def *ParticleSystemDef, world *World) *ParticleSystem {
	if !(def.Radius > 0.0) || !(def.Density > 0.0) {
		violation(world.log, "World.CreateParticleSystem", ErrInvalidShape)
	}
	assert(def.MaxCount >= 0)
	assert(def.LifetimeGranularity > 0.0)

	ps := &ParticleSystem{world: world, def: *def}
	ps.SetRadius(def.Radius)
	ps.SetDensity(def.Density)
	ps.reserve(minParticleSystemBufferCapacity)
	return ps
}

// reserve grows the buffer capacity up front so early creation does not
// reallocate on every particle.
func (ps *ParticleSystem) reserve(n int) {
	if ps.def.MaxCount > 0 {
		n = min(n, ps.def.MaxCount)
	}
	ps.flags = slices.Grow(ps.flags, n)
	ps.positions = slices.Grow(ps.positions, n)
	ps.velocities = slices.Grow(ps.velocities, n)
	ps.forces = slices.Grow(ps.forces, n)
	ps.colors = slices.Grow(ps.colors, n)
	ps.groups = slices.Grow(ps.groups, n)
	ps.proxies = slices.Grow(ps.proxies, n)
}

// destroy releases everything the system owns. No listener is called.
func (ps *ParticleSystem) destroy() {
	for g := ps.groupList; g != nil; g = g.next {
		g.system = nil
	}
	ps.groupList = nil
	ps.groupCount = 0
	ps.truncate(0)
	ps.proxies = nil
	ps.contacts = nil
	ps.bodyContacts = nil
	ps.pairs = nil
	ps.triads = nil
	ps.world = nil
}

func (ps *ParticleSystem) Handle() Handle {
	return ps.handle
}

// World returns the owning world, or nil once destroyed.
func (ps *ParticleSystem) World() *World {
	return ps.world
}

// Next returns the next particle system in the world, or nil.
func (ps *ParticleSystem) Next() *ParticleSystem {
	if ps.world == nil {
		return nil
	}
	next, _ := ps.world.particleSystems.Next(ps.handle)
	return next
}

func (ps *ParticleSystem) ParticleCount() int {
	return len(ps.positions)
}

func (ps *ParticleSystem) GroupCount() int {
	return ps.groupCount
}

// GroupList returns the most recently created group, or nil. Continue
// with ParticleGroup.Next.
func (ps *ParticleSystem) GroupList() *ParticleGroup {
	return ps.groupList
}

// Groups yields the groups, newest first.
func (ps *ParticleSystem) Groups() iter.Seq[*ParticleGroup] {
	return func(yield func(*ParticleGroup) bool) {
		for g := ps.groupList; g != nil; {
			next := g.next
			if !yield(g) {
				return
			}
			g = next
		}
	}
}

func (ps *ParticleSystem) MaxParticleCount() int {
	return ps.def.MaxCount
}

// SetMaxParticleCount caps the particle count. It must not be below the
// current count; zero removes the cap.
func (ps *ParticleSystem) SetMaxParticleCount(count int) {
	assert(count == 0 || count >= ps.ParticleCount())
	ps.def.MaxCount = count
}

// Positions returns the particle positions. The slice is owned by the
// system and is invalidated by the next mutation or step.
func (ps *ParticleSystem) Positions() []Vec2 {
	return ps.positions
}

func (ps *ParticleSystem) Velocities() []Vec2 {
	return ps.velocities
}

func (ps *ParticleSystem) Colors() []ParticleColor {
	return ps.colors
}

func (ps *ParticleSystem) Flags() []ParticleFlag {
	return ps.flags
}

func (ps *ParticleSystem) Weights() []float64 {
	return ps.weights
}

// ParticleGroups returns the group of each particle; nil for ungrouped
// ones.
func (ps *ParticleSystem) ParticleGroups() []*ParticleGroup {
	return ps.groups
}

func (ps *ParticleSystem) ParticleUserData(index int) any {
	return ps.userData[index]
}

func (ps *ParticleSystem) SetParticleUserData(index int, data any) {
	ps.userData[index] = data
}

func (ps *ParticleSystem) SetParticleVelocity(index int, v Vec2) {
	ps.velocities[index] = v
	ps.timestamp++
}

// Contacts returns the particle pairs that touched in the last
// iteration.
func (ps *ParticleSystem) Contacts() []ParticleContact {
	return ps.contacts
}

// BodyContacts returns the particle to fixture contacts of the last
// iteration.
func (ps *ParticleSystem) BodyContacts() []ParticleBodyContact {
	return ps.bodyContacts
}

// PairCount returns the number of spring and barrier pairs.
func (ps *ParticleSystem) PairCount() int {
	return len(ps.pairs)
}

// TriadCount returns the number of elastic triads.
func (ps *ParticleSystem) TriadCount() int {
	return len(ps.triads)
}

func (ps *ParticleSystem) ParticleFlags(index int) ParticleFlag {
	return ps.flags[index]
}

func (ps *ParticleSystem) SetParticleFlags(index int, flags ParticleFlag) {
	ps.setParticleFlags(index, flags&particleFlagsValid)
}

func (ps *ParticleSystem) setParticleFlags(index int, flags ParticleFlag) {
	ps.flags[index] = flags
	ps.allParticleFlags |= flags
}

func (ps *ParticleSystem) updateAllParticleFlags() {
	ps.allParticleFlags = 0
	for _, f := range ps.flags {
		ps.allParticleFlags |= f
	}
}

func (ps *ParticleSystem) setGroupFlags(g *ParticleGroup, flags ParticleGroupFlag) {
	if (g.groupFlags^flags)&SolidParticleGroup != 0 {
		flags |= groupNeedsUpdateDepth
	}
	g.groupFlags = flags
	ps.updateAllGroupFlags()
}

func (ps *ParticleSystem) updateAllGroupFlags() {
	ps.allGroupFlags = 0
	for g := ps.groupList; g != nil; g = g.next {
		ps.allGroupFlags |= g.groupFlags
	}
}

func (ps *ParticleSystem) SetPaused(paused bool) {
	ps.paused = paused
}

func (ps *ParticleSystem) Paused() bool {
	return ps.paused
}

func (ps *ParticleSystem) SetRadius(radius float64) {
	ps.particleDiameter = 2.0 * radius
	ps.squaredDiameter = ps.particleDiameter * ps.particleDiameter
	ps.inverseDiameter = 1.0 / ps.particleDiameter
	ps.proxiesStale = true
}

func (ps *ParticleSystem) Radius() float64 {
	return ps.radius()
}

func (ps *ParticleSystem) radius() float64 {
	return ps.particleDiameter / 2.0
}

func (ps *ParticleSystem) SetDensity(density float64) {
	ps.def.Density = density
	ps.inverseDensity = 1.0 / density
}

func (ps *ParticleSystem) Density() float64 {
	return ps.def.Density
}

func (ps *ParticleSystem) SetGravityScale(scale float64) {
	ps.def.GravityScale = scale
}

func (ps *ParticleSystem) GravityScale() float64 {
	return ps.def.GravityScale
}

func (ps *ParticleSystem) SetDamping(damping float64) {
	ps.def.DampingStrength = damping
}

func (ps *ParticleSystem) Damping() float64 {
	return ps.def.DampingStrength
}

func (ps *ParticleSystem) SetStaticPressureIterations(iterations int) {
	ps.def.StaticPressureIterations = iterations
}

func (ps *ParticleSystem) StaticPressureIterations() int {
	return ps.def.StaticPressureIterations
}

func (ps *ParticleSystem) SetDestructionByAge(enable bool) {
	ps.def.DestroyByAge = enable
}

func (ps *ParticleSystem) DestructionByAge() bool {
	return ps.def.DestroyByAge
}

func (ps *ParticleSystem) particleStride() float64 {
	return particleStride * ps.particleDiameter
}

func (ps *ParticleSystem) particleMass() float64 {
	stride := ps.particleStride()
	return ps.def.Density * stride * stride
}

func (ps *ParticleSystem) particleInvMass() float64 {
	inverseStride := ps.inverseDiameter * (1.0 / particleStride)
	return ps.inverseDensity * inverseStride * inverseStride
}

// ParticleMass returns the mass of one particle.
func (ps *ParticleSystem) ParticleMass() float64 {
	return ps.particleMass()
}

func (ps *ParticleSystem) quantizeLifetime(lifetime float64) float64 {
	g := ps.def.LifetimeGranularity
	return math.Max(math.Round(lifetime/g), 1.0) * g
}

// SetParticleLifetime makes the particle expire lifetime seconds from
// now. Zero or less makes it live forever.
func (ps *ParticleSystem) SetParticleLifetime(index int, lifetime float64) {
	if lifetime > 0.0 {
		ps.expirations[index] = ps.timeElapsed + ps.quantizeLifetime(lifetime)
	} else {
		ps.expirations[index] = 0.0
	}
}

// ParticleLifetime returns the remaining lifetime of the particle, or
// zero when it lives forever.
func (ps *ParticleSystem) ParticleLifetime(index int) float64 {
	if ps.expirations[index] <= 0.0 {
		return 0.0
	}
	return ps.expirations[index] - ps.timeElapsed
}

// CreateParticle adds a particle and returns its index. When the system
// is full the oldest particle is replaced if destruction by age is on;
// otherwise it is a contract violation. Rejected while the world is
// locked.
func (ps *ParticleSystem) CreateParticle(def *ParticleDef) int {
	ps.world.checkUnlocked("ParticleSystem.CreateParticle")
	return ps.createParticle(def)
}

func (ps *ParticleSystem) createParticle(def *ParticleDef) int {
	if ps.def.MaxCount > 0 && ps.ParticleCount() >= ps.def.MaxCount {
		if !ps.def.DestroyByAge || ps.ParticleCount() == 0 {
			violation(ps.world.log, "ParticleSystem.CreateParticle", ErrParticleCapacity)
		}
		ps.destroyOldestParticle()
		ps.solveZombie()
	}

	index := ps.ParticleCount()
	flags := def.Flags & particleFlagsValid
	ps.flags = append(ps.flags, 0)
	ps.positions = append(ps.positions, def.Position)
	ps.velocities = append(ps.velocities, def.Velocity)
	ps.forces = append(ps.forces, Vec2{})
	ps.staticPressures = append(ps.staticPressures, 0.0)
	ps.depths = append(ps.depths, 0.0)
	ps.colors = append(ps.colors, def.Color)
	ps.groups = append(ps.groups, nil)
	ps.userData = append(ps.userData, def.UserData)
	ps.expirations = append(ps.expirations, 0.0)
	ps.created = append(ps.created, ps.sequence)
	ps.sequence++
	ps.setParticleFlags(index, flags)
	ps.SetParticleLifetime(index, def.Lifetime)

	ps.proxies = append(ps.proxies, particleProxy{index: index})
	ps.proxiesStale = true
	ps.timestamp++

	if g := def.Group; g != nil {
		if g.firstIndex < g.lastIndex {
			// Move the group's particles next to the new one.
			ps.rotateBuffer(g.firstIndex, g.lastIndex, index)
			assert(g.lastIndex == index)
			g.lastIndex = index + 1
		} else {
			g.firstIndex = index
			g.lastIndex = index + 1
		}
		ps.groups[index] = g
	}
	return index
}

// destroyOldestParticle marks the particle closest to expiring, or the
// earliest created when none expires.
func (ps *ParticleSystem) destroyOldestParticle() {
	older := func(i, j int) bool {
		ei, ej := ps.expirations[i], ps.expirations[j]
		if (ei > 0.0) != (ej > 0.0) {
			return ei > 0.0
		}
		if ei > 0.0 && ei != ej {
			return ei < ej
		}
		return ps.created[i] < ps.created[j]
	}

	oldest := -1
	for i := range ps.expirations {
		if ps.flags[i]&ZombieParticle != 0 {
			continue
		}
		if oldest < 0 || older(i, oldest) {
			oldest = i
		}
	}
	if oldest >= 0 {
		ps.DestroyParticle(oldest, false)
	}
}

// DestroyParticle marks the particle for removal at the start of the
// next step. Indices stay valid until then.
func (ps *ParticleSystem) DestroyParticle(index int, callDestructionListener bool) {
	flags := ZombieParticle
	if callDestructionListener {
		flags |= ParticleDestructionListener
	}
	ps.setParticleFlags(index, ps.flags[index]|flags)
}

// DestroyParticlesInShape marks every particle inside shape, placed at
// xf, for removal and returns how many were marked. Rejected while the
// world is locked.
func (ps *ParticleSystem) DestroyParticlesInShape(shape Shape, xf Transform, callDestructionListener bool) int {
	ps.world.checkUnlocked("ParticleSystem.DestroyParticlesInShape")

	destroyed := 0
	for child := 0; child < shape.ChildCount(); child++ {
		aabb := shape.ComputeAABB(xf, child)
		ps.queryAABB(aabb, func(index int) bool {
			if ps.flags[index]&ZombieParticle == 0 && shape.TestPoint(xf, ps.positions[index]) {
				ps.DestroyParticle(index, callDestructionListener)
				destroyed++
			}
			return true
		})
	}
	return destroyed
}

// CreateParticleGroup creates the particles described by def as a new
// group. With def.Group set the new particles join that group, which is
// returned. Rejected while the world is locked.
func (ps *ParticleSystem) CreateParticleGroup(def *ParticleGroupDef) *ParticleGroup {
	ps.world.checkUnlocked("ParticleSystem.CreateParticleGroup")

	xf := NewTransform(def.Position, def.Angle)
	sequence := ps.sequence
	if def.Shape != nil {
		ps.createParticlesWithShape(def, def.Shape, xf)
	}
	for _, shape := range def.Shapes {
		ps.createParticlesWithShape(def, shape, xf)
	}
	for _, p := range def.PositionData {
		ps.createParticleForGroup(def, xf, p)
	}
	// At capacity the fill may evict older particles and compact the
	// buffers; the new particles stay a contiguous suffix.
	lastIndex := ps.ParticleCount()
	firstIndex := lastIndex
	for firstIndex > 0 && ps.created[firstIndex-1] >= sequence {
		firstIndex--
	}

	g := &ParticleGroup{
		system:     ps,
		firstIndex: firstIndex,
		lastIndex:  lastIndex,
		strength:   def.Strength,
		transform:  xf,
		timestamp:  ps.timestamp - 1,
		userData:   def.UserData,
	}

	// Insert into the doubly linked list.
	g.next = ps.groupList
	if ps.groupList != nil {
		ps.groupList.prev = g
	}
	ps.groupList = g
	ps.groupCount++

	for i := firstIndex; i < lastIndex; i++ {
		ps.groups[i] = g
	}
	ps.setGroupFlags(g, def.GroupFlags&(SolidParticleGroup|RigidParticleGroup|ParticleGroupCanBeEmpty))

	// Create pairs and triads between particles in the group.
	ps.updateContacts(true)
	ps.updatePairsAndTriads(firstIndex, lastIndex, connectionFilter{})

	if def.Group != nil {
		ps.joinParticleGroups(def.Group, g)
		g = def.Group
	}

	ps.world.log.Debug("particle group created",
		zap.Stringer("system", ps.handle),
		zap.Int("particles", g.ParticleCount()),
		zap.Uint32("groupFlags", uint32(g.groupFlags)),
	)
	return g
}

func (ps *ParticleSystem) groupStride(def *ParticleGroupDef) float64 {
	if def.Stride > 0.0 {
		return def.Stride
	}
	return ps.particleStride()
}

func (ps *ParticleSystem) createParticlesWithShape(def *ParticleGroupDef, shape Shape, xf Transform) {
	switch s := shape.(type) {
	case *EdgeShape:
		ps.createParticlesStroke(def, s, xf)
	default:
		ps.createParticlesFill(def, shape, xf)
	}
}

// createParticlesStroke places particles along an edge at stride
// intervals.
func (ps *ParticleSystem) createParticlesStroke(def *ParticleGroupDef, edge *EdgeShape, xf Transform) {
	stride := ps.groupStride(def)
	d := edge.Vertex2.Sub(edge.Vertex1)
	edgeLength := d.Length()
	for positionOnEdge := 0.0; positionOnEdge < edgeLength; positionOnEdge += stride {
		p := edge.Vertex1.Add(d.Scale(positionOnEdge / edgeLength))
		ps.createParticleForGroup(def, xf, p)
	}
}

// createParticlesFill places particles on a square lattice inside the
// shape.
func (ps *ParticleSystem) createParticlesFill(def *ParticleGroupDef, shape Shape, xf Transform) {
	stride := ps.groupStride(def)
	identity := NewTransform(Vec2{}, 0.0)
	for child := 0; child < shape.ChildCount(); child++ {
		aabb := shape.ComputeAABB(identity, child)
		for y := math.Floor(aabb.LowerBound.Y/stride) * stride; y < aabb.UpperBound.Y; y += stride {
			for x := math.Floor(aabb.LowerBound.X/stride) * stride; x < aabb.UpperBound.X; x += stride {
				p := Vec2{x, y}
				if shape.TestPoint(identity, p) {
					ps.createParticleForGroup(def, xf, p)
				}
			}
		}
	}
}

func (ps *ParticleSystem) createParticleForGroup(def *ParticleGroupDef, xf Transform, p Vec2) {
	position := xf.MulV(p)
	ps.createParticle(&ParticleDef{
		Flags:    def.Flags,
		Position: position,
		Velocity: def.LinearVelocity.Add(CrossSV(def.AngularVelocity, position.Sub(def.Position))),
		Color:    def.Color,
		Lifetime: def.Lifetime,
		UserData: def.UserData,
	})
}

// JoinParticleGroups merges b into a and destroys b. Springs and triads
// are created across the seam where the particle flags ask for them.
// Rejected while the world is locked.
func (ps *ParticleSystem) JoinParticleGroups(a, b *ParticleGroup) {
	ps.world.checkUnlocked("ParticleSystem.JoinParticleGroups")
	if a.system != ps || b.system != ps {
		violation(ps.world.log, "ParticleSystem.JoinParticleGroups", ErrForeignEntity)
	}
	if a == b {
		violation(ps.world.log, "ParticleSystem.JoinParticleGroups", ErrSameGroup)
	}
	ps.joinParticleGroups(a, b)
}

func (ps *ParticleSystem) joinParticleGroups(a, b *ParticleGroup) {
	ps.rotateBuffer(b.firstIndex, b.lastIndex, ps.ParticleCount())
	assert(b.lastIndex == ps.ParticleCount())
	ps.rotateBuffer(a.firstIndex, a.lastIndex, b.firstIndex)
	assert(a.lastIndex == b.firstIndex)

	// Connect only across the two groups.
	threshold := b.firstIndex
	filter := connectionFilter{
		pair: func(i, j int) bool {
			return (i < threshold && threshold <= j) || (j < threshold && threshold <= i)
		},
		triad: func(i, j, k int) bool {
			return (i < threshold || j < threshold || k < threshold) &&
				(threshold <= i || threshold <= j || threshold <= k)
		},
	}
	ps.updateContacts(true)
	ps.updatePairsAndTriads(a.firstIndex, b.lastIndex, filter)

	for i := b.firstIndex; i < b.lastIndex; i++ {
		ps.groups[i] = a
	}
	flags := a.groupFlags | b.groupFlags
	a.lastIndex = b.lastIndex
	b.firstIndex = b.lastIndex
	ps.setGroupFlags(a, flags&^groupWillBeDestroyed)
	ps.destroyGroup(b)
	a.timestamp = ps.timestamp - 1
}

// DestroyParticleGroup destroys g and all of its particles immediately.
// The destruction listener hears about the group, and about each particle
// when callDestructionListener is set. Rejected while the world is
// locked.
func (ps *ParticleSystem) DestroyParticleGroup(g *ParticleGroup, callDestructionListener bool) {
	ps.world.checkUnlocked("ParticleSystem.DestroyParticleGroup")
	if g.system != ps {
		if g.system == nil {
			violation(ps.world.log, "ParticleSystem.DestroyParticleGroup", ErrStaleHandle)
		}
		violation(ps.world.log, "ParticleSystem.DestroyParticleGroup", ErrForeignEntity)
	}

	for i := g.firstIndex; i < g.lastIndex; i++ {
		ps.DestroyParticle(i, callDestructionListener)
	}
	g.groupFlags |= groupWillBeDestroyed
	ps.solveZombie()
}

func (ps *ParticleSystem) destroyGroup(g *ParticleGroup) {
	if l := ps.world.destructionListener; l != nil {
		l.SayGoodbyeParticleGroup(g)
	}

	for i := g.firstIndex; i < g.lastIndex; i++ {
		ps.groups[i] = nil
	}

	if g.prev != nil {
		g.prev.next = g.next
	}
	if g.next != nil {
		g.next.prev = g.prev
	}
	if g == ps.groupList {
		ps.groupList = g.next
	}
	g.prev = nil
	g.next = nil
	ps.groupCount--
	g.system = nil
	ps.updateAllGroupFlags()
}

// ApplyForce spreads force evenly over the particles in [first, last).
// It is applied in the next step.
func (ps *ParticleSystem) ApplyForce(first, last int, force Vec2) {
	n := last - first
	if n <= 0 {
		return
	}
	distributed := force.Scale(1.0 / float64(n))
	if distributed == (Vec2{}) {
		return
	}
	for i := first; i < last; i++ {
		ps.forces[i] = ps.forces[i].Add(distributed)
	}
	ps.hasForce = true
}

// ApplyLinearImpulse changes the velocity of the particles in
// [first, last) by impulse divided by their total mass.
func (ps *ParticleSystem) ApplyLinearImpulse(first, last int, impulse Vec2) {
	n := last - first
	if n <= 0 {
		return
	}
	totalMass := float64(n) * ps.particleMass()
	dv := impulse.Scale(1.0 / totalMass)
	for i := first; i < last; i++ {
		ps.velocities[i] = ps.velocities[i].Add(dv)
	}
	ps.timestamp++
}

func (ps *ParticleSystem) ParticleApplyForce(index int, force Vec2) {
	ps.ApplyForce(index, index+1, force)
}

func (ps *ParticleSystem) ParticleApplyLinearImpulse(index int, impulse Vec2) {
	ps.ApplyLinearImpulse(index, index+1, impulse)
}

// ComputeAABB returns the bounds of every particle, grown by one
// diameter. An empty system yields an inverted box.
func (ps *ParticleSystem) ComputeAABB() AABB {
	aabb := AABB{
		LowerBound: Vec2{maxFloat, maxFloat},
		UpperBound: Vec2{-maxFloat, -maxFloat},
	}
	if len(ps.positions) == 0 {
		return aabb
	}
	for _, p := range ps.positions {
		aabb.LowerBound = Vec2Min(aabb.LowerBound, p)
		aabb.UpperBound = Vec2Max(aabb.UpperBound, p)
	}
	return aabb.Extend(ps.particleDiameter)
}

// QueryAABB calls callback for each particle strictly inside aabb until
// it returns false. The world is locked during the dispatch.
func (ps *ParticleSystem) QueryAABB(callback ParticleQueryCallback, aabb AABB) {
	token := ps.world.acquire("ParticleSystem.QueryAABB")
	defer token.release()

	ps.queryAABB(aabb, func(index int) bool {
		return callback(ps, index)
	})
}

func (ps *ParticleSystem) queryAABB(aabb AABB, fn func(index int) bool) {
	if len(ps.proxies) == 0 {
		return
	}
	ps.ensureProxies()

	lowerTag := computeTag(ps.inverseDiameter*aabb.LowerBound.X, ps.inverseDiameter*aabb.LowerBound.Y)
	upperTag := computeTag(ps.inverseDiameter*aabb.UpperBound.X, ps.inverseDiameter*aabb.UpperBound.Y)
	first, last := ps.proxyRange(lowerTag, upperTag)
	for _, proxy := range ps.proxies[first:last] {
		p := ps.positions[proxy.index]
		if aabb.LowerBound.X < p.X && p.X < aabb.UpperBound.X &&
			aabb.LowerBound.Y < p.Y && p.Y < aabb.UpperBound.Y {
			if !fn(proxy.index) {
				return
			}
		}
	}
}

// RayCast calls callback for each particle whose disc of one diameter is
// hit by the segment p1-p2, following the RayCastCallback conventions.
// The world is locked during the dispatch.
func (ps *ParticleSystem) RayCast(callback ParticleRayCastCallback, p1, p2 Vec2) {
	token := ps.world.acquire("ParticleSystem.RayCast")
	defer token.release()

	if len(ps.proxies) == 0 {
		return
	}
	ps.ensureProxies()

	aabb := AABB{LowerBound: Vec2Min(p1, p2), UpperBound: Vec2Max(p1, p2)}
	fraction := 1.0

	// Solve ((1-t)*p1 + t*p2 - position)^2 = diameter^2 for t.
	v := p2.Sub(p1)
	v2 := v.Dot(v)
	if v2 == 0.0 {
		return
	}
	for i := range ps.insideBounds(aabb) {
		p := p1.Sub(ps.positions[i])
		pv := p.Dot(v)
		pp := p.Dot(p)
		determinant := pv*pv - v2*(pp-ps.squaredDiameter)
		if determinant < 0.0 {
			continue
		}
		sqrtDeterminant := math.Sqrt(determinant)

		// Find a solution between 0 and fraction.
		t := (-pv - sqrtDeterminant) / v2
		if t > fraction {
			continue
		}
		if t < 0.0 {
			t = (-pv + sqrtDeterminant) / v2
			if t < 0.0 || t > fraction {
				continue
			}
		}

		n := p.Add(v.Scale(t))
		n.Normalize()
		f := callback(ps, i, p1.Add(v.Scale(t)), n, t)
		if f < 0.0 {
			continue
		}
		if f == 0.0 {
			return
		}
		fraction = math.Min(fraction, f)
	}
}

// forgetFixture drops body contacts that reference f, which is being
// destroyed.
func (ps *ParticleSystem) forgetFixture(f *Fixture) {
	ps.bodyContacts = slices.DeleteFunc(ps.bodyContacts, func(c ParticleBodyContact) bool {
		return c.Fixture == f
	})
}

func (ps *ParticleSystem) shiftOrigin(newOrigin Vec2) {
	for i := range ps.positions {
		ps.positions[i] = ps.positions[i].Sub(newOrigin)
	}
	for g := ps.groupList; g != nil; g = g.next {
		g.transform.P = g.transform.P.Sub(newOrigin)
		g.center = g.center.Sub(newOrigin)
	}
	ps.proxiesStale = true
}

func (ps *ParticleSystem) dump(log *zap.Logger) {
	log.Info("particle system",
		zap.Stringer("handle", ps.handle),
		zap.Float64("radius", ps.radius()),
		zap.Float64("density", ps.def.Density),
		zap.Float64("gravityScale", ps.def.GravityScale),
		zap.Int("maxCount", ps.def.MaxCount),
		zap.Int("particles", ps.ParticleCount()),
		zap.Int("groups", ps.groupCount),
		zap.Int("pairs", len(ps.pairs)),
		zap.Int("triads", len(ps.triads)),
	)
}
