package liquidbox

import (
	"math"

	"go.uber.org/zap"
)

// island is a set of bodies connected by touching contacts and joints,
// solved together. Its arrays are borrowed from the world's stack
// allocator for the duration of one solve.
type island struct {
	log      *zap.Logger
	listener ContactListener
	stack    *stackAllocator

	bodyBuf     scratch[*Body]
	contactBuf  scratch[*Contact]
	jointBuf    scratch[Joint]
	positionBuf scratch[position]
	velocityBuf scratch[velocity]

	bodies     []*Body
	contacts   []*Contact
	joints     []Joint
	positions  []position
	velocities []velocity
}

func newIsland(stack *stackAllocator, log *zap.Logger, bodyCapacity, contactCapacity, jointCapacity int, listener ContactListener) *island {
	is := &island{log: log, listener: listener, stack: stack}
	is.bodyBuf = stackAlloc[*Body](stack, bodyCapacity)
	is.contactBuf = stackAlloc[*Contact](stack, contactCapacity)
	is.jointBuf = stackAlloc[Joint](stack, jointCapacity)
	is.positionBuf = stackAlloc[position](stack, bodyCapacity)
	is.velocityBuf = stackAlloc[velocity](stack, bodyCapacity)

	is.bodies = is.bodyBuf.Items[:0]
	is.contacts = is.contactBuf.Items[:0]
	is.joints = is.jointBuf.Items[:0]
	is.positions = is.positionBuf.Items
	is.velocities = is.velocityBuf.Items
	return is
}

// free releases the scratch arrays in reverse order of allocation.
func (is *island) free() {
	stackFree(is.stack, is.velocityBuf)
	stackFree(is.stack, is.positionBuf)
	stackFree(is.stack, is.jointBuf)
	stackFree(is.stack, is.contactBuf)
	stackFree(is.stack, is.bodyBuf)
}

func (is *island) clear() {
	is.bodies = is.bodies[:0]
	is.contacts = is.contacts[:0]
	is.joints = is.joints[:0]
}

func (is *island) addBody(b *Body) {
	assert(len(is.bodies) < len(is.bodyBuf.Items))
	b.islandIndex = len(is.bodies)
	is.bodies = append(is.bodies, b)
}

func (is *island) addContact(c *Contact) {
	assert(len(is.contacts) < len(is.contactBuf.Items))
	is.contacts = append(is.contacts, c)
}

func (is *island) addJoint(j Joint) {
	assert(len(is.joints) < len(is.jointBuf.Items))
	is.joints = append(is.joints, j)
}

// solve advances the island by one full step: velocity integration,
// the velocity and position constraint passes, position integration and
// the sleep update.
func (is *island) solve(profile *Profile, step TimeStep, gravity Vec2, allowSleep bool) {
	timer := NewTimer()

	h := step.Dt

	// Integrate velocities and apply damping. Initialize the body state.
	for i, b := range is.bodies {
		c := b.sweep.C
		a := b.sweep.A
		v := b.linearVelocity
		w := b.angularVelocity

		// Store positions for continuous collision.
		b.sweep.C0 = b.sweep.C
		b.sweep.A0 = b.sweep.A

		if b.typ == DynamicBody {
			v = v.Add(gravity.Scale(b.gravityScale).Add(b.force.Scale(b.invMass)).Scale(h))
			w += h * b.invI * b.torque

			// Pade approximation of the ODE dv/dt + c * v = 0, which
			// stays stable for large damping:
			// v2 = v1 * 1 / (1 + c * dt)
			v = v.Scale(1.0 / (1.0 + h*b.linearDamping))
			w *= 1.0 / (1.0 + h*b.angularDamping)
		}

		is.positions[i] = position{c, a}
		is.velocities[i] = velocity{v, w}
	}

	timer.Reset()

	data := solverData{
		step:       step,
		positions:  is.positions,
		velocities: is.velocities,
	}

	cs := newContactSolver(is.stack, step, is.contacts, is.positions, is.velocities)
	defer cs.free()
	cs.initializeVelocityConstraints()

	// Joints warm start before contacts, the order they are solved in.
	for _, j := range is.joints {
		j.initVelocityConstraints(&data)
	}

	if step.WarmStarting {
		cs.warmStart()
	}

	profile.SolveInit = timer.Milliseconds()

	// Solve velocity constraints.
	timer.Reset()
	for i := 0; i < step.VelocityIterations; i++ {
		for _, j := range is.joints {
			j.solveVelocityConstraints(&data)
		}
		cs.solveVelocityConstraints()
	}

	// Store impulses for warm starting.
	cs.storeImpulses()
	profile.SolveVelocity = timer.Milliseconds()

	// Integrate positions.
	for i := range is.bodies {
		c := is.positions[i].c
		a := is.positions[i].a
		v := is.velocities[i].v
		w := is.velocities[i].w

		// Check for large velocities.
		translation := v.Scale(h)
		if translation.Dot(translation) > maxTranslationSquared {
			ratio := maxTranslation / translation.Length()
			v = v.Scale(ratio)
		}

		rotation := h * w
		if rotation*rotation > maxRotationSquared {
			ratio := maxRotation / math.Abs(rotation)
			w *= ratio
		}

		c = c.Add(v.Scale(h))
		a += h * w

		is.positions[i] = position{c, a}
		is.velocities[i] = velocity{v, w}
	}

	// Solve position constraints.
	timer.Reset()
	positionSolved := false
	for i := 0; i < step.PositionIterations; i++ {
		contactsOkay := cs.solvePositionConstraints()

		jointsOkay := true
		for _, j := range is.joints {
			jointOkay := j.solvePositionConstraints(&data)
			jointsOkay = jointsOkay && jointOkay
		}

		if contactsOkay && jointsOkay {
			// Exit early if the position errors are small.
			positionSolved = true
			break
		}
	}

	// Copy state buffers back to the bodies.
	for i, b := range is.bodies {
		b.sweep.C = is.positions[i].c
		b.sweep.A = is.positions[i].a
		b.linearVelocity = is.velocities[i].v
		b.angularVelocity = is.velocities[i].w
		b.synchronizeTransform()
	}

	profile.SolvePosition = timer.Milliseconds()

	is.report(cs.velocityCons)

	if !allowSleep {
		return
	}

	minSleepTime := maxFloat

	const linTolSqr = linearSleepTolerance * linearSleepTolerance
	const angTolSqr = angularSleepTolerance * angularSleepTolerance

	for _, b := range is.bodies {
		if b.typ == StaticBody {
			continue
		}

		if b.flags&bodyAutoSleep == 0 ||
			b.angularVelocity*b.angularVelocity > angTolSqr ||
			b.linearVelocity.Dot(b.linearVelocity) > linTolSqr {
			b.sleepTime = 0.0
			minSleepTime = 0.0
		} else {
			b.sleepTime += h
			minSleepTime = math.Min(minSleepTime, b.sleepTime)
		}
	}

	if minSleepTime >= timeToSleep && positionSolved {
		for _, b := range is.bodies {
			b.SetAwake(false)
		}
		is.log.Debug("island asleep",
			zap.Int("bodies", len(is.bodies)),
			zap.Int("contacts", len(is.contacts)),
			zap.Int("joints", len(is.joints)),
		)
	}
}

// solveTOI resolves the overlap of a mini-island at its time of impact.
// Only the two TOI bodies are moved by the position pass; the velocity
// pass then gives every body a velocity consistent with the sub-step.
func (is *island) solveTOI(subStep TimeStep, toiIndexA, toiIndexB int) {
	assert(toiIndexA < len(is.bodies))
	assert(toiIndexB < len(is.bodies))

	// Initialize the body state.
	for i, b := range is.bodies {
		is.positions[i] = position{b.sweep.C, b.sweep.A}
		is.velocities[i] = velocity{b.linearVelocity, b.angularVelocity}
	}

	cs := newContactSolver(is.stack, subStep, is.contacts, is.positions, is.velocities)
	defer cs.free()

	// Solve position constraints.
	for i := 0; i < subStep.PositionIterations; i++ {
		if cs.solveTOIPositionConstraints(toiIndexA, toiIndexB) {
			break
		}
	}

	// Leap of faith to new safe state.
	bodyA := is.bodies[toiIndexA]
	bodyB := is.bodies[toiIndexB]
	bodyA.sweep.C0 = is.positions[toiIndexA].c
	bodyA.sweep.A0 = is.positions[toiIndexA].a
	bodyB.sweep.C0 = is.positions[toiIndexB].c
	bodyB.sweep.A0 = is.positions[toiIndexB].a

	// No warm starting is needed for TOI events because warm starting
	// impulses were applied in the discrete solver.
	cs.initializeVelocityConstraints()

	// Solve velocity constraints.
	for i := 0; i < subStep.VelocityIterations; i++ {
		cs.solveVelocityConstraints()
	}

	// Don't store the TOI contact forces for warm starting because they
	// can be quite large.

	h := subStep.Dt

	// Integrate positions.
	for i, b := range is.bodies {
		c := is.positions[i].c
		a := is.positions[i].a
		v := is.velocities[i].v
		w := is.velocities[i].w

		translation := v.Scale(h)
		if translation.Dot(translation) > maxTranslationSquared {
			ratio := maxTranslation / translation.Length()
			v = v.Scale(ratio)
		}

		rotation := h * w
		if rotation*rotation > maxRotationSquared {
			ratio := maxRotation / math.Abs(rotation)
			w *= ratio
		}

		c = c.Add(v.Scale(h))
		a += h * w

		is.positions[i] = position{c, a}
		is.velocities[i] = velocity{v, w}

		// Sync bodies.
		b.sweep.C = c
		b.sweep.A = a
		b.linearVelocity = v
		b.angularVelocity = w
		b.synchronizeTransform()
	}

	is.report(cs.velocityCons)
}

func (is *island) report(constraints []contactVelocityConstraint) {
	if is.listener == nil {
		return
	}

	for i, c := range is.contacts {
		vc := &constraints[i]

		var impulse ContactImpulse
		impulse.Count = vc.pointCount
		for j := 0; j < vc.pointCount; j++ {
			impulse.NormalImpulses[j] = vc.points[j].normalImpulse
			impulse.TangentImpulses[j] = vc.points[j].tangentImpulse
		}

		is.listener.PostSolve(c, &impulse)
	}
}
