package liquidbox

import (
	"fmt"
	"iter"
	"math"

	"go.uber.org/zap"
)

// Settings holds the world-wide simulation switches.
type Settings struct {
	Gravity Vec2

	// AllowSleep lets resting islands go to sleep.
	AllowSleep bool

	// WarmStarting seeds the solver with the previous step's impulses.
	WarmStarting bool

	// ContinuousPhysics enables the time-of-impact pass.
	ContinuousPhysics bool

	// SubStepping stops the time-of-impact pass after the first event,
	// completing the step on the next call to Step.
	SubStepping bool

	// AutoClearForces clears body forces at the end of every step.
	AutoClearForces bool
}

func DefaultSettings() Settings {
	return Settings{
		AllowSleep:        true,
		WarmStarting:      true,
		ContinuousPhysics: true,
		AutoClearForces:   true,
	}
}

// Option configures a World at construction.
type Option func(*World)

// WithLogger sets the logger for lifecycle events, contract violations
// and Dump. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(w *World) {
		if log != nil {
			w.log = log
		}
	}
}

// WithConfig applies s, including its gravity, over the NewWorld
// arguments.
func WithConfig(s Settings) Option {
	return func(w *World) {
		w.gravity = s.Gravity
		w.allowSleep = s.AllowSleep
		w.warmStarting = s.WarmStarting
		w.continuousPhysics = s.ContinuousPhysics
		w.subStepping = s.SubStepping
		w.autoClearForces = s.AutoClearForces
	}
}

// World manages all physics entities, dynamic simulation and queries.
// A World must not be used from more than one goroutine at a time.
type World struct {
	log *zap.Logger

	bodies          registry[*Body]
	joints          registry[Joint]
	particleSystems registry[*ParticleSystem]

	contactManager *contactManager
	stack          *stackAllocator

	destructionListener DestructionListener
	debugDraw           Draw

	gravity           Vec2
	allowSleep        bool
	warmStarting      bool
	continuousPhysics bool
	subStepping       bool
	autoClearForces   bool

	// phase names the operation holding the world, or is empty.
	phase string

	newFixture   bool
	stepComplete bool

	// This is used to compute the time step ratio to support a variable
	// time step.
	invDt0 float64

	profile Profile
}

// NewWorld creates an empty world with the given gravity and the
// default settings.
func NewWorld(gravity Vec2, opts ...Option) *World {
	s := DefaultSettings()
	s.Gravity = gravity

	w := &World{
		log:          zap.NewNop(),
		stepComplete: true,
	}
	WithConfig(s)(w)
	for _, opt := range opts {
		opt(w)
	}

	w.contactManager = newContactManager()
	w.stack = newStackAllocator(w.log)

	w.log.Debug("world created",
		zap.Float64s("gravity", []float64{w.gravity.X, w.gravity.Y}),
		zap.Bool("allowSleep", w.allowSleep),
		zap.Bool("continuous", w.continuousPhysics),
	)
	return w
}

// phaseToken is held by an operation that locks the world. Releasing it
// restores the enclosing phase, so queries issued from step callbacks
// leave the world locked.
type phaseToken struct {
	world *World
	prev  string
}

func (w *World) acquire(op string) phaseToken {
	t := phaseToken{world: w, prev: w.phase}
	w.phase = op
	return t
}

func (t phaseToken) release() {
	t.world.phase = t.prev
}

// IsLocked reports whether the world is in the middle of a step or a
// query dispatch.
func (w *World) IsLocked() bool {
	return w.phase != ""
}

// checkUnlocked rejects a structural mutation while the world is locked.
func (w *World) checkUnlocked(op string) {
	if w.phase != "" {
		violation(w.log, op, fmt.Errorf("%w (during %s)", ErrWorldLocked, w.phase))
	}
}

// Destroy tears down every entity, children before parents, and drops
// the pools. No destruction listener is called. The world must not be
// used afterwards.
func (w *World) Destroy() {
	w.checkUnlocked("World.Destroy")

	for ps := range w.particleSystems.All() {
		ps.destroy()
	}
	w.particleSystems.Clear()

	for j := range w.joints.All() {
		w.unlinkJoint(j)
	}
	w.joints.Clear()

	for b := range w.bodies.All() {
		b.destroyContacts()
		for _, f := range b.fixtures {
			if b.flags&bodyActive != 0 {
				f.destroyProxies(w.contactManager.broadPhase)
			}
			f.body = nil
		}
		b.fixtures = nil
		b.world = nil
	}
	w.bodies.Clear()

	w.contactManager.contacts.Clear()
	w.contactManager.pool.Clear()
	w.log.Debug("world destroyed")
}

// SetDestructionListener registers the listener for implicit
// destruction. It is owned by the caller.
func (w *World) SetDestructionListener(listener DestructionListener) {
	w.destructionListener = listener
}

// SetContactFilter replaces the contact filter. nil restores
// DefaultContactFilter.
func (w *World) SetContactFilter(filter ContactFilter) {
	if filter == nil {
		filter = DefaultContactFilter{}
	}
	w.contactManager.filter = filter
}

// SetContactListener registers the contact event listener. Use
// ContactListeners to attach several.
func (w *World) SetContactListener(listener ContactListener) {
	w.contactManager.listener = listener
}

// SetDebugDraw registers the renderer used by DrawDebugData.
func (w *World) SetDebugDraw(draw Draw) {
	w.debugDraw = draw
}

// CreateBody creates a rigid body. Rejected while the world is locked.
func (w *World) CreateBody(def *BodyDef) *Body {
	w.checkUnlocked("World.CreateBody")

	b := newBody(def, w)
	b.handle = w.bodies.Insert(b)

	w.log.Debug("body created", zap.Stringer("handle", b.handle), zap.Stringer("type", b.typ))
	return b
}

// DestroyBody destroys b together with its joints, contacts and
// fixtures. The destruction listener is told about each joint and
// fixture before it goes. Rejected while the world is locked.
func (w *World) DestroyBody(b *Body) {
	w.checkUnlocked("World.DestroyBody")
	w.checkOwnedBody("World.DestroyBody", b)

	w.teardownBody(b)
}

func (w *World) checkOwnedBody(op string, b *Body) {
	if b == nil {
		violation(w.log, op, ErrStaleHandle)
	}
	if b.world != w {
		if b.world == nil {
			violation(w.log, op, ErrStaleHandle)
		}
		violation(w.log, op, ErrForeignEntity)
	}
	if !w.bodies.Contains(b.handle) {
		violation(w.log, op, ErrStaleHandle)
	}
}

// teardownBody removes b and everything that depends on it, in
// dependency order: joints, contacts, then fixtures and their proxies.
func (w *World) teardownBody(b *Body) {
	je := b.jointList
	for je != nil {
		je0 := je
		je = je.Next

		if w.destructionListener != nil {
			w.destructionListener.SayGoodbyeJoint(je0.Joint)
		}
		w.destroyJoint(je0.Joint)
		b.jointList = je
	}
	b.jointList = nil

	b.destroyContacts()

	fixtures := append([]*Fixture(nil), b.fixtures...)
	for _, f := range fixtures {
		if w.destructionListener != nil {
			w.destructionListener.SayGoodbyeFixture(f)
		}
		b.destroyFixture(f)
	}
	b.fixtures = nil

	w.bodies.Remove(b.handle)
	w.log.Debug("body destroyed", zap.Stringer("handle", b.handle), zap.Int("fixtures", len(fixtures)))
	b.world = nil
}

// CreateJoint creates a joint from def, dispatching on its concrete
// type. The bodies are woken. Rejected while the world is locked.
func (w *World) CreateJoint(def JointDef) Joint {
	w.checkUnlocked("World.CreateJoint")

	base := def.jointDefBase()
	w.checkOwnedBody("World.CreateJoint", base.BodyA)
	w.checkOwnedBody("World.CreateJoint", base.BodyB)
	if base.BodyA == base.BodyB {
		violation(w.log, "World.CreateJoint", ErrSameBody)
	}

	j := createJoint(w.log, def)
	jb := j.base()
	jb.world = w
	jb.handle = w.joints.Insert(j)

	bodyA := jb.bodyA
	bodyB := jb.bodyB

	// Connect to the bodies' doubly linked lists.
	jb.edgeA.Joint = j
	jb.edgeA.Other = bodyB
	jb.edgeA.Prev = nil
	jb.edgeA.Next = bodyA.jointList
	if bodyA.jointList != nil {
		bodyA.jointList.Prev = &jb.edgeA
	}
	bodyA.jointList = &jb.edgeA

	jb.edgeB.Joint = j
	jb.edgeB.Other = bodyA
	jb.edgeB.Prev = nil
	jb.edgeB.Next = bodyB.jointList
	if bodyB.jointList != nil {
		bodyB.jointList.Prev = &jb.edgeB
	}
	bodyB.jointList = &jb.edgeB

	// If the joint prevents collisions, then flag any contacts for
	// filtering.
	if !jb.collideConnected {
		for edge := bodyB.contactList; edge != nil; edge = edge.Next {
			if edge.Other == bodyA {
				edge.Contact.FlagForFiltering()
			}
		}
	}

	bodyA.SetAwake(true)
	bodyB.SetAwake(true)

	w.log.Debug("joint created", zap.Stringer("handle", jb.handle), zap.Stringer("type", jb.typ))
	return j
}

// DestroyJoint destroys j and wakes its bodies. Rejected while the
// world is locked; a nil or already destroyed joint is ErrStaleHandle.
func (w *World) DestroyJoint(j Joint) {
	w.checkUnlocked("World.DestroyJoint")
	if j == nil {
		violation(w.log, "World.DestroyJoint", ErrStaleHandle)
	}
	jb := j.base()
	if jb.world != w {
		if jb.world == nil {
			violation(w.log, "World.DestroyJoint", ErrStaleHandle)
		}
		violation(w.log, "World.DestroyJoint", ErrForeignEntity)
	}
	w.destroyJoint(j)
}

func (w *World) destroyJoint(j Joint) {
	jb := j.base()
	collideConnected := jb.collideConnected

	w.joints.Remove(jb.handle)
	w.unlinkJoint(j)

	bodyA := jb.bodyA
	bodyB := jb.bodyB

	// Wake up connected bodies.
	bodyA.SetAwake(true)
	bodyB.SetAwake(true)

	// If the joint prevented collisions, then flag any contacts for
	// filtering.
	if !collideConnected {
		for edge := bodyB.contactList; edge != nil; edge = edge.Next {
			if edge.Other == bodyA {
				edge.Contact.FlagForFiltering()
			}
		}
	}

	w.log.Debug("joint destroyed", zap.Stringer("handle", jb.handle))
	jb.world = nil
}

// unlinkJoint removes j's edges from both body joint lists.
func (w *World) unlinkJoint(j Joint) {
	jb := j.base()
	bodyA := jb.bodyA
	bodyB := jb.bodyB

	// Remove from body A.
	if jb.edgeA.Prev != nil {
		jb.edgeA.Prev.Next = jb.edgeA.Next
	}
	if jb.edgeA.Next != nil {
		jb.edgeA.Next.Prev = jb.edgeA.Prev
	}
	if &jb.edgeA == bodyA.jointList {
		bodyA.jointList = jb.edgeA.Next
	}
	jb.edgeA.Prev = nil
	jb.edgeA.Next = nil

	// Remove from body B.
	if jb.edgeB.Prev != nil {
		jb.edgeB.Prev.Next = jb.edgeB.Next
	}
	if jb.edgeB.Next != nil {
		jb.edgeB.Next.Prev = jb.edgeB.Prev
	}
	if &jb.edgeB == bodyB.jointList {
		bodyB.jointList = jb.edgeB.Next
	}
	jb.edgeB.Prev = nil
	jb.edgeB.Next = nil
}

// CreateParticleSystem creates a particle system. Rejected while the
// world is locked.
func (w *World) CreateParticleSystem(def *ParticleSystemDef) *ParticleSystem {
	w.checkUnlocked("World.CreateParticleSystem")

	ps := newParticleSystem(def, w)
	ps.handle = w.particleSystems.Insert(ps)

	w.log.Debug("particle system created",
		zap.Stringer("handle", ps.handle),
		zap.Float64("radius", ps.radius()),
		zap.Int("maxCount", def.MaxCount),
	)
	return ps
}

// DestroyParticleSystem destroys ps with all of its particles and
// groups. Rejected while the world is locked; a nil or already destroyed
// system is ErrStaleHandle.
func (w *World) DestroyParticleSystem(ps *ParticleSystem) {
	w.checkUnlocked("World.DestroyParticleSystem")
	if ps == nil {
		violation(w.log, "World.DestroyParticleSystem", ErrStaleHandle)
	}
	if ps.world != w {
		if ps.world == nil {
			violation(w.log, "World.DestroyParticleSystem", ErrStaleHandle)
		}
		violation(w.log, "World.DestroyParticleSystem", ErrForeignEntity)
	}

	w.particleSystems.Remove(ps.handle)
	ps.destroy()
	w.log.Debug("particle system destroyed", zap.Stringer("handle", ps.handle))
}

// Step advances the world by dt with one particle iteration.
func (w *World) Step(dt float64, velocityIterations, positionIterations int) {
	w.StepWithParticles(dt, velocityIterations, positionIterations, 1)
}

// StepWithParticles advances the world by dt. This performs collision
// detection, integration and constraint solution. Particles are
// sub-stepped particleIterations times; see
// CalculateReasonableParticleIterations.
func (w *World) StepWithParticles(dt float64, velocityIterations, positionIterations, particleIterations int) {
	stepTimer := NewTimer()

	// If new fixtures were added, we need to find the new contacts.
	if w.newFixture {
		w.contactManager.findNewContacts()
		w.newFixture = false
	}

	token := w.acquire("World.Step")
	defer token.release()

	step := TimeStep{
		Dt:                 dt,
		VelocityIterations: velocityIterations,
		PositionIterations: positionIterations,
		ParticleIterations: max(particleIterations, 1),
		DtRatio:            w.invDt0 * dt,
		WarmStarting:       w.warmStarting,
	}
	if dt > 0.0 {
		step.InvDt = 1.0 / dt
	}

	// Update contacts. This is where some contacts are destroyed.
	{
		timer := NewTimer()
		w.contactManager.collide()
		w.profile.Collide = timer.Milliseconds()
	}

	// Integrate velocities, solve velocity constraints, and integrate
	// positions.
	if w.stepComplete && step.Dt > 0.0 {
		timer := NewTimer()
		w.solve(step)
		w.profile.Solve = timer.Milliseconds()
	}

	// Handle TOI events.
	if w.continuousPhysics && step.Dt > 0.0 {
		timer := NewTimer()
		w.solveTOI(step)
		w.profile.SolveTOI = timer.Milliseconds()
	}

	if step.Dt > 0.0 {
		timer := NewTimer()
		for ps := range w.particleSystems.All() {
			ps.solve(step)
		}
		w.profile.Particles = timer.Milliseconds()
	}

	if step.Dt > 0.0 {
		w.invDt0 = step.InvDt
	}

	if w.autoClearForces {
		w.ClearForces()
	}

	w.stack.checkEmpty("World.Step")

	w.profile.Step = stepTimer.Milliseconds()
}

// ClearForces zeroes the force and torque of every body. Step calls it
// unless auto-clearing is disabled, for sub-stepped game loops that
// accumulate forces over several steps.
func (w *World) ClearForces() {
	for b := range w.bodies.All() {
		b.force = Vec2{}
		b.torque = 0.0
	}
}

func (w *World) solve(step TimeStep) {
	w.profile.SolveInit = 0.0
	w.profile.SolveVelocity = 0.0
	w.profile.SolvePosition = 0.0

	// Size the island for the worst case.
	is := newIsland(w.stack, w.log,
		w.bodies.Len(),
		w.contactManager.contacts.Len(),
		w.joints.Len(),
		w.contactManager.listener,
	)
	defer is.free()

	// Clear all the island flags.
	for b := range w.bodies.All() {
		b.flags &^= bodyIsland
	}
	for c := range w.contactManager.contacts.All() {
		c.flags &^= contactIsland
	}
	for j := range w.joints.All() {
		j.base().islandFlag = false
	}

	// Build and simulate all awake islands.
	stackBuf := stackAlloc[*Body](w.stack, w.bodies.Len())
	defer stackFree(w.stack, stackBuf)
	stack := stackBuf.Items[:0]

	for seed := range w.bodies.All() {
		if seed.flags&bodyIsland != 0 {
			continue
		}
		if !seed.IsAwake() || !seed.IsActive() {
			continue
		}

		// The seed can be dynamic or kinematic.
		if seed.typ == StaticBody {
			continue
		}

		// Reset island and stack.
		is.clear()
		stack = append(stack[:0], seed)
		seed.flags |= bodyIsland

		// Perform a depth first search (DFS) on the constraint graph.
		for len(stack) > 0 {
			// Grab the next body off the stack and add it to the island.
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			assert(b.IsActive())
			is.addBody(b)

			// Make sure the body is awake (without resetting sleep timer).
			b.flags |= bodyAwake

			// To keep islands as small as possible, we don't propagate
			// islands across static bodies.
			if b.typ == StaticBody {
				continue
			}

			// Search all contacts connected to this body.
			for ce := b.contactList; ce != nil; ce = ce.Next {
				contact := ce.Contact

				// Has this contact already been added to an island?
				if contact.flags&contactIsland != 0 {
					continue
				}

				// Is this contact solid and touching?
				if !contact.IsEnabled() || !contact.IsTouching() {
					continue
				}

				// Skip sensors.
				if contact.fixtureA.isSensor || contact.fixtureB.isSensor {
					continue
				}

				is.addContact(contact)
				contact.flags |= contactIsland

				other := ce.Other

				// Was the other body already added to this island?
				if other.flags&bodyIsland != 0 {
					continue
				}

				stack = append(stack, other)
				other.flags |= bodyIsland
			}

			// Search all joints connected to this body.
			for je := b.jointList; je != nil; je = je.Next {
				jb := je.Joint.base()
				if jb.islandFlag {
					continue
				}

				other := je.Other

				// Don't simulate joints connected to inactive bodies.
				if !other.IsActive() {
					continue
				}

				is.addJoint(je.Joint)
				jb.islandFlag = true

				if other.flags&bodyIsland != 0 {
					continue
				}

				stack = append(stack, other)
				other.flags |= bodyIsland
			}
		}

		var profile Profile
		is.solve(&profile, step, w.gravity, w.allowSleep)
		w.profile.SolveInit += profile.SolveInit
		w.profile.SolveVelocity += profile.SolveVelocity
		w.profile.SolvePosition += profile.SolvePosition

		// Post solve cleanup.
		for _, b := range is.bodies {
			// Allow static bodies to participate in other islands.
			if b.typ == StaticBody {
				b.flags &^= bodyIsland
			}
		}
	}

	{
		timer := NewTimer()

		// Synchronize fixtures, check for out of range bodies.
		for b := range w.bodies.All() {
			// If a body was not in an island then it did not move.
			if b.flags&bodyIsland == 0 {
				continue
			}
			if b.typ == StaticBody {
				continue
			}

			// Update fixtures (for broad-phase).
			b.synchronizeFixtures()
		}

		// Look for new contacts.
		w.contactManager.findNewContacts()
		w.profile.Broadphase = timer.Milliseconds()
	}
}

// solveTOI finds TOI events and solves them, earliest first.
func (w *World) solveTOI(step TimeStep) {
	is := newIsland(w.stack, w.log, 2*maxTOIContacts, maxTOIContacts, 0, w.contactManager.listener)
	defer is.free()

	if w.stepComplete {
		for b := range w.bodies.All() {
			b.flags &^= bodyIsland
			b.sweep.Alpha0 = 0.0
		}

		for c := range w.contactManager.contacts.All() {
			// Invalidate TOI
			c.flags &^= contactTOI | contactIsland
			c.toiCount = 0
			c.toi = 1.0
		}
	}

	// Find TOI events and solve them.
	for {
		// Find the first TOI.
		var minContact *Contact
		minAlpha := 1.0

		for c := range w.contactManager.contacts.All() {
			// Is this contact disabled?
			if !c.IsEnabled() {
				continue
			}

			// Prevent excessive sub-stepping.
			if c.toiCount > maxSubSteps {
				continue
			}

			alpha := 1.0
			if c.flags&contactTOI != 0 {
				// This contact has a valid cached TOI.
				alpha = c.toi
			} else {
				fA := c.fixtureA
				fB := c.fixtureB

				// Is there a sensor?
				if fA.isSensor || fB.isSensor {
					continue
				}

				bA := fA.body
				bB := fB.body

				typeA := bA.typ
				typeB := bB.typ
				assert(typeA == DynamicBody || typeB == DynamicBody)

				activeA := bA.IsAwake() && typeA != StaticBody
				activeB := bB.IsAwake() && typeB != StaticBody

				// Is at least one body active (awake and dynamic or
				// kinematic)?
				if !activeA && !activeB {
					continue
				}

				collideA := bA.IsBullet() || typeA != DynamicBody
				collideB := bB.IsBullet() || typeB != DynamicBody

				// Are these two non-bullet dynamic bodies?
				if !collideA && !collideB {
					continue
				}

				// Compute the TOI for this contact.
				// Put the sweeps onto the same time interval.
				alpha0 := bA.sweep.Alpha0
				if bA.sweep.Alpha0 < bB.sweep.Alpha0 {
					alpha0 = bB.sweep.Alpha0
					bA.sweep.Advance(alpha0)
				} else if bB.sweep.Alpha0 < bA.sweep.Alpha0 {
					alpha0 = bA.sweep.Alpha0
					bB.sweep.Advance(alpha0)
				}

				assert(alpha0 < 1.0)

				// Compute the time of impact in interval [0, minTOI].
				input := TOIInput{
					ProxyA: NewDistanceProxy(fA.shape, c.indexA),
					ProxyB: NewDistanceProxy(fB.shape, c.indexB),
					SweepA: bA.sweep,
					SweepB: bB.sweep,
					TMax:   1.0,
				}
				output := TimeOfImpact(&input)

				// Beta is the fraction of the remaining portion of the
				// step.
				beta := output.T
				if output.State == TOITouching {
					alpha = math.Min(alpha0+(1.0-alpha0)*beta, 1.0)
				} else {
					alpha = 1.0
				}

				c.toi = alpha
				c.flags |= contactTOI
			}

			if alpha < minAlpha {
				// This is the minimum TOI found so far.
				minContact = c
				minAlpha = alpha
			}
		}

		if minContact == nil || 1.0-10.0*epsilon < minAlpha {
			// No more TOI events. Done!
			w.stepComplete = true
			break
		}

		// Advance the bodies to the TOI.
		fA := minContact.fixtureA
		fB := minContact.fixtureB
		bA := fA.body
		bB := fB.body

		backup1 := bA.sweep
		backup2 := bB.sweep

		bA.advance(minAlpha)
		bB.advance(minAlpha)

		// The TOI contact likely has some new contact points.
		minContact.update(w.contactManager.listener)
		minContact.flags &^= contactTOI
		minContact.toiCount++

		// Is the contact solid?
		if !minContact.IsEnabled() || !minContact.IsTouching() {
			// Restore the sweeps.
			minContact.SetEnabled(false)
			bA.sweep = backup1
			bB.sweep = backup2
			bA.synchronizeTransform()
			bB.synchronizeTransform()
			continue
		}

		bA.SetAwake(true)
		bB.SetAwake(true)

		// Build the island.
		is.clear()
		is.addBody(bA)
		is.addBody(bB)
		is.addContact(minContact)

		bA.flags |= bodyIsland
		bB.flags |= bodyIsland
		minContact.flags |= contactIsland

		// Get contacts on bodyA and bodyB.
		for _, body := range [2]*Body{bA, bB} {
			if body.typ != DynamicBody {
				continue
			}
			for ce := body.contactList; ce != nil; ce = ce.Next {
				if len(is.bodies) == len(is.bodyBuf.Items) {
					break
				}
				if len(is.contacts) == len(is.contactBuf.Items) {
					break
				}

				contact := ce.Contact

				// Has this contact already been added to the island?
				if contact.flags&contactIsland != 0 {
					continue
				}

				// Only add static, kinematic, or bullet bodies.
				other := ce.Other
				if other.typ == DynamicBody && !body.IsBullet() && !other.IsBullet() {
					continue
				}

				// Skip sensors.
				if contact.fixtureA.isSensor || contact.fixtureB.isSensor {
					continue
				}

				// Tentatively advance the body to the TOI.
				backup := other.sweep
				if other.flags&bodyIsland == 0 {
					other.advance(minAlpha)
				}

				// Update the contact points.
				contact.update(w.contactManager.listener)

				// Was the contact disabled by the user, or are there no
				// contact points?
				if !contact.IsEnabled() || !contact.IsTouching() {
					other.sweep = backup
					other.synchronizeTransform()
					continue
				}

				// Add the contact to the island.
				contact.flags |= contactIsland
				is.addContact(contact)

				// Has the other body already been added to the island?
				if other.flags&bodyIsland != 0 {
					continue
				}

				// Add the other body to the island.
				other.flags |= bodyIsland

				if other.typ != StaticBody {
					other.SetAwake(true)
				}

				is.addBody(other)
			}
		}

		subStep := TimeStep{
			Dt:                 (1.0 - minAlpha) * step.Dt,
			DtRatio:            1.0,
			PositionIterations: 20,
			VelocityIterations: step.VelocityIterations,
			ParticleIterations: step.ParticleIterations,
			WarmStarting:       false,
		}
		subStep.InvDt = 1.0 / subStep.Dt
		is.solveTOI(subStep, bA.islandIndex, bB.islandIndex)

		// Reset island flags and synchronize broad-phase proxies.
		for _, body := range is.bodies {
			body.flags &^= bodyIsland

			if body.typ != DynamicBody {
				continue
			}

			body.synchronizeFixtures()

			// Invalidate all contact TOIs on this displaced body.
			for ce := body.contactList; ce != nil; ce = ce.Next {
				ce.Contact.flags &^= contactTOI | contactIsland
			}
		}

		// Commit fixture proxy movements to the broad-phase so that new
		// contacts are created. Also, some contacts can be destroyed.
		w.contactManager.findNewContacts()

		if w.subStepping {
			w.stepComplete = false
			break
		}
	}
}

// QueryAABB calls callback for each fixture whose fat AABB overlaps
// aabb. The world is locked during the dispatch.
func (w *World) QueryAABB(callback QueryCallback, aabb AABB) {
	token := w.acquire("World.QueryAABB")
	defer token.release()

	bp := w.contactManager.broadPhase
	bp.Query(func(proxyID int) bool {
		proxy := bp.UserData(proxyID).(*fixtureProxy)
		return callback(proxy.fixture)
	}, aabb)
}

// RayCast calls callback for each fixture hit by the segment p1-p2. See
// RayCastCallback for how the return value steers the cast. The world
// is locked during the dispatch.
func (w *World) RayCast(callback RayCastCallback, p1, p2 Vec2) {
	token := w.acquire("World.RayCast")
	defer token.release()

	bp := w.contactManager.broadPhase
	input := RayCastInput{P1: p1, P2: p2, MaxFraction: 1.0}
	bp.RayCast(func(input RayCastInput, proxyID int) float64 {
		proxy := bp.UserData(proxyID).(*fixtureProxy)
		fixture := proxy.fixture
		output, hit := fixture.RayCast(input, proxy.childIndex)
		if !hit {
			return input.MaxFraction
		}
		fraction := output.Fraction
		point := input.P1.Scale(1.0 - fraction).Add(input.P2.Scale(fraction))
		return callback(fixture, point, output.Normal, fraction)
	}, input)
}

// QueryAABBParticles calls callback for each particle of every system
// inside aabb. Returning false stops the whole query.
func (w *World) QueryAABBParticles(callback ParticleQueryCallback, aabb AABB) {
	token := w.acquire("World.QueryAABBParticles")
	defer token.release()

	for ps := range w.particleSystems.All() {
		stopped := false
		ps.QueryAABB(func(system *ParticleSystem, index int) bool {
			if !callback(system, index) {
				stopped = true
				return false
			}
			return true
		}, aabb)
		if stopped {
			return
		}
	}
}

// RayCastParticles casts the segment p1-p2 against every particle system.
// Each system clips the ray independently.
func (w *World) RayCastParticles(callback ParticleRayCastCallback, p1, p2 Vec2) {
	token := w.acquire("World.RayCastParticles")
	defer token.release()

	for ps := range w.particleSystems.All() {
		stopped := false
		ps.RayCast(func(system *ParticleSystem, index int, point, normal Vec2, fraction float64) float64 {
			f := callback(system, index, point, normal, fraction)
			if f == 0.0 {
				stopped = true
			}
			return f
		}, p1, p2)
		if stopped {
			return
		}
	}
}

// CalculateReasonableParticleIterations recommends a particle iteration
// count for timeStep. It keeps gravity/radius*(timeStep/iterations)^2
// under the stability threshold for the smallest particle radius in the
// world, clamped to [1, 8]. Without particle systems it returns 1.
func (w *World) CalculateReasonableParticleIterations(timeStep float64) int {
	if w.particleSystems.Len() == 0 {
		return 1
	}

	smallestRadius := maxFloat
	for ps := range w.particleSystems.All() {
		smallestRadius = math.Min(smallestRadius, ps.radius())
	}
	return calculateParticleIterations(w.gravity.Length(), smallestRadius, timeStep)
}

func calculateParticleIterations(gravity, radius, timeStep float64) int {
	// In some situations you may want more particle iterations than this,
	// but to avoid excessive cycle cost, don't recommend more than this.
	radiusThreshold := particleStabilityThreshold * radius
	iterations := int(math.Ceil(math.Sqrt(gravity/radiusThreshold) * timeStep))
	return clampi(iterations, 1, maxRecommendedParticleIterations)
}

// Bodies yields the bodies in registry order.
func (w *World) Bodies() iter.Seq[*Body] {
	return w.bodies.All()
}

// Joints yields the joints in registry order.
func (w *World) Joints() iter.Seq[Joint] {
	return w.joints.All()
}

// Contacts yields the contacts in registry order.
func (w *World) Contacts() iter.Seq[*Contact] {
	return w.contactManager.contacts.All()
}

// ParticleSystems yields the particle systems in registry order.
func (w *World) ParticleSystems() iter.Seq[*ParticleSystem] {
	return w.particleSystems.All()
}

// BodyList returns the first body, or nil. Continue with Body.Next.
func (w *World) BodyList() *Body {
	b, _ := w.bodies.First()
	return b
}

// JointList returns the first joint, or nil. Continue with Joint.Next.
func (w *World) JointList() Joint {
	j, _ := w.joints.First()
	return j
}

// ContactList returns the first contact, or nil. Continue with
// Contact.Next. Touching status must be checked with IsTouching.
func (w *World) ContactList() *Contact {
	c, _ := w.contactManager.contacts.First()
	return c
}

// ParticleSystemList returns the first particle system, or nil.
func (w *World) ParticleSystemList() *ParticleSystem {
	ps, _ := w.particleSystems.First()
	return ps
}

// Body resolves a body handle. It reports false once the body is gone.
func (w *World) Body(h Handle) (*Body, bool) {
	return w.bodies.Get(h)
}

func (w *World) Joint(h Handle) (Joint, bool) {
	return w.joints.Get(h)
}

func (w *World) ParticleSystem(h Handle) (*ParticleSystem, bool) {
	return w.particleSystems.Get(h)
}

func (w *World) BodyCount() int {
	return w.bodies.Len()
}

func (w *World) JointCount() int {
	return w.joints.Len()
}

func (w *World) ContactCount() int {
	return w.contactManager.contacts.Len()
}

func (w *World) ParticleSystemCount() int {
	return w.particleSystems.Len()
}

// ProxyCount returns the number of broad-phase proxies.
func (w *World) ProxyCount() int {
	return w.contactManager.broadPhase.ProxyCount()
}

func (w *World) TreeHeight() int {
	return w.contactManager.broadPhase.TreeHeight()
}

func (w *World) TreeBalance() int {
	return w.contactManager.broadPhase.TreeBalance()
}

// TreeQuality returns the ratio of the sum of node perimeters to the root
// perimeter.
func (w *World) TreeQuality() float64 {
	return w.contactManager.broadPhase.TreeQuality()
}

func (w *World) Gravity() Vec2 {
	return w.gravity
}

func (w *World) SetGravity(gravity Vec2) {
	w.gravity = gravity
}

// SetAllowSleeping enables or disables sleep. Disabling it wakes every
// body.
func (w *World) SetAllowSleeping(flag bool) {
	if flag == w.allowSleep {
		return
	}
	w.allowSleep = flag
	if !w.allowSleep {
		for b := range w.bodies.All() {
			b.SetAwake(true)
		}
	}
}

func (w *World) AllowSleeping() bool {
	return w.allowSleep
}

// SetWarmStarting enables warm starting. For testing.
func (w *World) SetWarmStarting(flag bool) {
	w.warmStarting = flag
}

func (w *World) WarmStarting() bool {
	return w.warmStarting
}

// SetContinuousPhysics enables the time-of-impact pass. For testing.
func (w *World) SetContinuousPhysics(flag bool) {
	w.continuousPhysics = flag
}

func (w *World) ContinuousPhysics() bool {
	return w.continuousPhysics
}

// SetSubStepping enables single-event TOI stepping.
func (w *World) SetSubStepping(flag bool) {
	w.subStepping = flag
}

func (w *World) SubStepping() bool {
	return w.subStepping
}

// SetAutoClearForces controls whether Step clears forces when it ends.
func (w *World) SetAutoClearForces(flag bool) {
	w.autoClearForces = flag
}

func (w *World) AutoClearForces() bool {
	return w.autoClearForces
}

// Profile returns the timings of the last step.
func (w *World) Profile() Profile {
	return w.profile
}

// ShiftOrigin moves the world origin to newOrigin, for large worlds.
// Rejected while the world is locked.
func (w *World) ShiftOrigin(newOrigin Vec2) {
	w.checkUnlocked("World.ShiftOrigin")

	for b := range w.bodies.All() {
		b.xf.P = b.xf.P.Sub(newOrigin)
		b.sweep.C0 = b.sweep.C0.Sub(newOrigin)
		b.sweep.C = b.sweep.C.Sub(newOrigin)
	}
	for j := range w.joints.All() {
		j.ShiftOrigin(newOrigin)
	}
	for ps := range w.particleSystems.All() {
		ps.shiftOrigin(newOrigin)
	}
	w.contactManager.broadPhase.ShiftOrigin(newOrigin)
}

// Dump logs the bodies, fixtures and joints at Info level, in enough
// detail to rebuild the world.
func (w *World) Dump() {
	if w.IsLocked() {
		return
	}

	w.log.Info("world",
		zap.String("version", fmt.Sprintf("%d.%d.%d", Version.Major, Version.Minor, Version.Revision)),
		zap.Float64s("gravity", []float64{w.gravity.X, w.gravity.Y}),
		zap.Int("bodies", w.bodies.Len()),
		zap.Int("joints", w.joints.Len()),
		zap.Int("particleSystems", w.particleSystems.Len()),
	)

	i := 0
	for b := range w.bodies.All() {
		b.islandIndex = i
		b.dump(w.log, i)
		i++
	}

	i = 0
	for j := range w.joints.All() {
		j.base().index = i
		j.dump(w.log, i)
		i++
	}

	for ps := range w.particleSystems.All() {
		ps.dump(w.log)
	}
}

var (
	colorInactive  = Color{0.5, 0.5, 0.3, 1}
	colorStatic    = Color{0.5, 0.9, 0.5, 1}
	colorKinematic = Color{0.5, 0.5, 0.9, 1}
	colorSleeping  = Color{0.6, 0.6, 0.6, 1}
	colorDynamic   = Color{0.9, 0.7, 0.7, 1}
	colorJoint     = Color{0.5, 0.8, 0.8, 1}
	colorPair      = Color{0.3, 0.9, 0.9, 1}
	colorAABB      = Color{0.9, 0.3, 0.9, 1}
)

// DrawDebugData renders the world through the registered Draw.
func (w *World) DrawDebugData() {
	if w.debugDraw == nil {
		return
	}
	flags := w.debugDraw.Flags()

	if flags&DrawShape != 0 {
		for b := range w.bodies.All() {
			xf := b.xf
			for _, f := range b.fixtures {
				switch {
				case !b.IsActive():
					w.drawShape(f, xf, colorInactive)
				case b.typ == StaticBody:
					w.drawShape(f, xf, colorStatic)
				case b.typ == KinematicBody:
					w.drawShape(f, xf, colorKinematic)
				case !b.IsAwake():
					w.drawShape(f, xf, colorSleeping)
				default:
					w.drawShape(f, xf, colorDynamic)
				}
			}
		}
	}

	if flags&DrawParticle != 0 {
		for ps := range w.particleSystems.All() {
			w.debugDraw.DrawParticles(ps.positions, ps.radius(), ps.colors)
		}
	}

	if flags&DrawJoint != 0 {
		for j := range w.joints.All() {
			w.drawJoint(j)
		}
	}

	if flags&DrawPair != 0 {
		for c := range w.contactManager.contacts.All() {
			cA := c.fixtureA.AABB(c.indexA).Center()
			cB := c.fixtureB.AABB(c.indexB).Center()
			w.debugDraw.DrawSegment(cA, cB, colorPair)
		}
	}

	if flags&DrawAABB != 0 {
		bp := w.contactManager.broadPhase
		for b := range w.bodies.All() {
			if !b.IsActive() {
				continue
			}
			for _, f := range b.fixtures {
				for i := 0; i < f.live; i++ {
					aabb := bp.FatAABB(f.proxies[i].proxyID)
					vs := []Vec2{
						aabb.LowerBound,
						{aabb.UpperBound.X, aabb.LowerBound.Y},
						aabb.UpperBound,
						{aabb.LowerBound.X, aabb.UpperBound.Y},
					}
					w.debugDraw.DrawPolygon(vs, colorAABB)
				}
			}
		}
	}

	if flags&DrawCenterOfMass != 0 {
		for b := range w.bodies.All() {
			xf := b.xf
			xf.P = b.WorldCenter()
			w.debugDraw.DrawTransform(xf)
		}
	}
}

func (w *World) drawShape(f *Fixture, xf Transform, color Color) {
	switch s := f.shape.(type) {
	case *CircleShape:
		center := xf.MulV(s.P)
		axis := xf.Q.MulV(Vec2{1.0, 0.0})
		w.debugDraw.DrawSolidCircle(center, s.radius, axis, color)

	case *EdgeShape:
		w.debugDraw.DrawSegment(xf.MulV(s.Vertex1), xf.MulV(s.Vertex2), color)

	case *PolygonShape:
		vertices := make([]Vec2, s.Count)
		for i := 0; i < s.Count; i++ {
			vertices[i] = xf.MulV(s.Vertices[i])
		}
		w.debugDraw.DrawSolidPolygon(vertices, color)
	}
}

func (w *World) drawJoint(j Joint) {
	xf1 := j.BodyA().xf
	xf2 := j.BodyB().xf
	x1 := xf1.P
	x2 := xf2.P
	p1 := j.AnchorA()
	p2 := j.AnchorB()

	switch j.Type() {
	case DistanceJointType:
		w.debugDraw.DrawSegment(p1, p2, colorJoint)
	default:
		w.debugDraw.DrawSegment(x1, p1, colorJoint)
		w.debugDraw.DrawSegment(p1, p2, colorJoint)
		w.debugDraw.DrawSegment(x2, p2, colorJoint)
	}
}
