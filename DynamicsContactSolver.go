package liquidbox

import (
	"math"
)

type velocityConstraintPoint struct {
	rA             Vec2
	rB             Vec2
	normalImpulse  float64
	tangentImpulse float64
	normalMass     float64
	tangentMass    float64
	velocityBias   float64
}

type contactVelocityConstraint struct {
	points       [maxManifoldPoints]velocityConstraintPoint
	normal       Vec2
	normalMass   Mat22
	K            Mat22
	indexA       int
	indexB       int
	invMassA     float64
	invMassB     float64
	invIA        float64
	invIB        float64
	friction     float64
	restitution  float64
	tangentSpeed float64
	pointCount   int
	contactIndex int
}

type contactPositionConstraint struct {
	localPoints  [maxManifoldPoints]Vec2
	localNormal  Vec2
	localPoint   Vec2
	indexA       int
	indexB       int
	invMassA     float64
	invMassB     float64
	localCenterA Vec2
	localCenterB Vec2
	invIA        float64
	invIB        float64
	kind         ManifoldType
	radiusA      float64
	radiusB      float64
	pointCount   int
}

// Ensure a reasonable condition number for the block solver.
const maxConditionNumber = 1000.0

// contactSolver solves the contact constraints of one island with
// sequential impulses. Its constraint arrays are borrowed from the
// world's stack allocator and must be released with free.
type contactSolver struct {
	step       TimeStep
	positions  []position
	velocities []velocity
	contacts   []*Contact

	stack        *stackAllocator
	positionBuf  scratch[contactPositionConstraint]
	velocityBuf  scratch[contactVelocityConstraint]
	positionCons []contactPositionConstraint
	velocityCons []contactVelocityConstraint
}

func newContactSolver(stack *stackAllocator, step TimeStep, contacts []*Contact, positions []position, velocities []velocity) *contactSolver {
	s := &contactSolver{
		step:       step,
		positions:  positions,
		velocities: velocities,
		contacts:   contacts,
		stack:      stack,
	}
	s.positionBuf = stackAlloc[contactPositionConstraint](stack, len(contacts))
	s.velocityBuf = stackAlloc[contactVelocityConstraint](stack, len(contacts))
	s.positionCons = s.positionBuf.Items
	s.velocityCons = s.velocityBuf.Items

	for i, contact := range contacts {
		fixtureA := contact.fixtureA
		fixtureB := contact.fixtureB
		bodyA := fixtureA.body
		bodyB := fixtureB.body
		manifold := &contact.manifold

		pointCount := manifold.PointCount
		assert(pointCount > 0)

		vc := &s.velocityCons[i]
		vc.friction = contact.friction
		vc.restitution = contact.restitution
		vc.tangentSpeed = contact.tangentSpeed
		vc.indexA = bodyA.islandIndex
		vc.indexB = bodyB.islandIndex
		vc.invMassA = bodyA.invMass
		vc.invMassB = bodyB.invMass
		vc.invIA = bodyA.invI
		vc.invIB = bodyB.invI
		vc.contactIndex = i
		vc.pointCount = pointCount

		pc := &s.positionCons[i]
		pc.indexA = bodyA.islandIndex
		pc.indexB = bodyB.islandIndex
		pc.invMassA = bodyA.invMass
		pc.invMassB = bodyB.invMass
		pc.localCenterA = bodyA.sweep.LocalCenter
		pc.localCenterB = bodyB.sweep.LocalCenter
		pc.invIA = bodyA.invI
		pc.invIB = bodyB.invI
		pc.localNormal = manifold.LocalNormal
		pc.localPoint = manifold.LocalPoint
		pc.pointCount = pointCount
		pc.radiusA = fixtureA.shape.Radius()
		pc.radiusB = fixtureB.shape.Radius()
		pc.kind = manifold.Type

		for j := 0; j < pointCount; j++ {
			cp := &manifold.Points[j]
			vcp := &vc.points[j]
			if step.WarmStarting {
				vcp.normalImpulse = step.DtRatio * cp.NormalImpulse
				vcp.tangentImpulse = step.DtRatio * cp.TangentImpulse
			}
			pc.localPoints[j] = cp.LocalPoint
		}
	}
	return s
}

func (s *contactSolver) free() {
	stackFree(s.stack, s.velocityBuf)
	stackFree(s.stack, s.positionBuf)
}

// initializeVelocityConstraints computes the world-space anchors,
// effective masses and restitution bias from the current positions.
func (s *contactSolver) initializeVelocityConstraints() {
	for i, contact := range s.contacts {
		vc := &s.velocityCons[i]
		pc := &s.positionCons[i]

		radiusA := pc.radiusA
		radiusB := pc.radiusB
		manifold := &contact.manifold

		indexA := vc.indexA
		indexB := vc.indexB

		mA := vc.invMassA
		mB := vc.invMassB
		iA := vc.invIA
		iB := vc.invIB
		localCenterA := pc.localCenterA
		localCenterB := pc.localCenterB

		cA := s.positions[indexA].c
		aA := s.positions[indexA].a
		vA := s.velocities[indexA].v
		wA := s.velocities[indexA].w

		cB := s.positions[indexB].c
		aB := s.positions[indexB].a
		vB := s.velocities[indexB].v
		wB := s.velocities[indexB].w

		assert(manifold.PointCount > 0)

		xfA := Transform{Q: NewRot(aA)}
		xfB := Transform{Q: NewRot(aB)}
		xfA.P = cA.Sub(xfA.Q.MulV(localCenterA))
		xfB.P = cB.Sub(xfB.Q.MulV(localCenterB))

		var wm WorldManifold
		wm.Initialize(manifold, xfA, radiusA, xfB, radiusB)

		vc.normal = wm.Normal

		pointCount := vc.pointCount
		for j := 0; j < pointCount; j++ {
			vcp := &vc.points[j]

			vcp.rA = wm.Points[j].Sub(cA)
			vcp.rB = wm.Points[j].Sub(cB)

			rnA := vcp.rA.Cross(vc.normal)
			rnB := vcp.rB.Cross(vc.normal)
			kNormal := mA + mB + iA*rnA*rnA + iB*rnB*rnB
			if kNormal > 0.0 {
				vcp.normalMass = 1.0 / kNormal
			} else {
				vcp.normalMass = 0.0
			}

			tangent := CrossVS(vc.normal, 1.0)
			rtA := vcp.rA.Cross(tangent)
			rtB := vcp.rB.Cross(tangent)
			kTangent := mA + mB + iA*rtA*rtA + iB*rtB*rtB
			if kTangent > 0.0 {
				vcp.tangentMass = 1.0 / kTangent
			} else {
				vcp.tangentMass = 0.0
			}

			// Setup a velocity bias for restitution.
			vcp.velocityBias = 0.0
			vRel := vc.normal.Dot(vB.Add(CrossSV(wB, vcp.rB)).Sub(vA).Sub(CrossSV(wA, vcp.rA)))
			if vRel < -velocityThreshold {
				vcp.velocityBias = -vc.restitution * vRel
			}
		}

		// If we have two points, then prepare the block solver.
		if vc.pointCount == 2 {
			vcp1 := &vc.points[0]
			vcp2 := &vc.points[1]

			rn1A := vcp1.rA.Cross(vc.normal)
			rn1B := vcp1.rB.Cross(vc.normal)
			rn2A := vcp2.rA.Cross(vc.normal)
			rn2B := vcp2.rB.Cross(vc.normal)

			k11 := mA + mB + iA*rn1A*rn1A + iB*rn1B*rn1B
			k22 := mA + mB + iA*rn2A*rn2A + iB*rn2B*rn2B
			k12 := mA + mB + iA*rn1A*rn2A + iB*rn1B*rn2B

			if k11*k11 < maxConditionNumber*(k11*k22-k12*k12) {
				// K is safe to invert.
				vc.K = Mat22{Ex: Vec2{k11, k12}, Ey: Vec2{k12, k22}}
				vc.normalMass = vc.K.Inverse()
			} else {
				// The constraints are redundant, just use one.
				vc.pointCount = 1
			}
		}
	}
}

func (s *contactSolver) warmStart() {
	for i := range s.velocityCons {
		vc := &s.velocityCons[i]

		indexA := vc.indexA
		indexB := vc.indexB
		mA := vc.invMassA
		iA := vc.invIA
		mB := vc.invMassB
		iB := vc.invIB

		vA := s.velocities[indexA].v
		wA := s.velocities[indexA].w
		vB := s.velocities[indexB].v
		wB := s.velocities[indexB].w

		normal := vc.normal
		tangent := CrossVS(normal, 1.0)

		for j := 0; j < vc.pointCount; j++ {
			vcp := &vc.points[j]
			P := normal.Scale(vcp.normalImpulse).Add(tangent.Scale(vcp.tangentImpulse))
			wA -= iA * vcp.rA.Cross(P)
			vA = vA.Sub(P.Scale(mA))
			wB += iB * vcp.rB.Cross(P)
			vB = vB.Add(P.Scale(mB))
		}

		s.velocities[indexA] = velocity{vA, wA}
		s.velocities[indexB] = velocity{vB, wB}
	}
}

func (s *contactSolver) solveVelocityConstraints() {
	for i := range s.velocityCons {
		vc := &s.velocityCons[i]

		indexA := vc.indexA
		indexB := vc.indexB
		mA := vc.invMassA
		iA := vc.invIA
		mB := vc.invMassB
		iB := vc.invIB
		pointCount := vc.pointCount

		vA := s.velocities[indexA].v
		wA := s.velocities[indexA].w
		vB := s.velocities[indexB].v
		wB := s.velocities[indexB].w

		normal := vc.normal
		tangent := CrossVS(normal, 1.0)
		friction := vc.friction

		assert(pointCount == 1 || pointCount == 2)

		// Solve tangent constraints first because non-penetration is more
		// important than friction.
		for j := 0; j < pointCount; j++ {
			vcp := &vc.points[j]

			// Relative velocity at contact.
			dv := vB.Add(CrossSV(wB, vcp.rB)).Sub(vA).Sub(CrossSV(wA, vcp.rA))

			// Compute tangent force.
			vt := dv.Dot(tangent) - vc.tangentSpeed
			lambda := vcp.tangentMass * (-vt)

			// Clamp the accumulated force.
			maxFriction := friction * vcp.normalImpulse
			newImpulse := clampf(vcp.tangentImpulse+lambda, -maxFriction, maxFriction)
			lambda = newImpulse - vcp.tangentImpulse
			vcp.tangentImpulse = newImpulse

			P := tangent.Scale(lambda)
			vA = vA.Sub(P.Scale(mA))
			wA -= iA * vcp.rA.Cross(P)
			vB = vB.Add(P.Scale(mB))
			wB += iB * vcp.rB.Cross(P)
		}

		if pointCount == 1 {
			vcp := &vc.points[0]

			dv := vB.Add(CrossSV(wB, vcp.rB)).Sub(vA).Sub(CrossSV(wA, vcp.rA))

			// Compute normal impulse.
			vn := dv.Dot(normal)
			lambda := -vcp.normalMass * (vn - vcp.velocityBias)

			// Clamp the accumulated impulse.
			newImpulse := math.Max(vcp.normalImpulse+lambda, 0.0)
			lambda = newImpulse - vcp.normalImpulse
			vcp.normalImpulse = newImpulse

			P := normal.Scale(lambda)
			vA = vA.Sub(P.Scale(mA))
			wA -= iA * vcp.rA.Cross(P)
			vB = vB.Add(P.Scale(mB))
			wB += iB * vcp.rB.Cross(P)
		} else {
			vA, wA, vB, wB = s.solveBlock(vc, vA, wA, vB, wB)
		}

		s.velocities[indexA] = velocity{vA, wA}
		s.velocities[indexB] = velocity{vB, wB}
	}
}

// solveBlock solves the two-point normal constraint as a linear
// complementarity problem (Murty's total enumeration):
//
//	vn = A * x + b, vn >= 0, x >= 0 and vn_i * x_i = 0
//
// The accumulated impulse a is solved incrementally as x = a + d, so
// b' = b - A * a. The four cases are tried in order; the first whose
// solution satisfies the constraints wins. If none does (numerical
// trouble), the impulses are left unchanged.
func (s *contactSolver) solveBlock(vc *contactVelocityConstraint, vA Vec2, wA float64, vB Vec2, wB float64) (Vec2, float64, Vec2, float64) {
	mA := vc.invMassA
	iA := vc.invIA
	mB := vc.invMassB
	iB := vc.invIB
	normal := vc.normal

	cp1 := &vc.points[0]
	cp2 := &vc.points[1]

	a := Vec2{cp1.normalImpulse, cp2.normalImpulse}
	assert(a.X >= 0.0 && a.Y >= 0.0)

	// Relative velocity at contact.
	dv1 := vB.Add(CrossSV(wB, cp1.rB)).Sub(vA).Sub(CrossSV(wA, cp1.rA))
	dv2 := vB.Add(CrossSV(wB, cp2.rB)).Sub(vA).Sub(CrossSV(wA, cp2.rA))

	vn1 := dv1.Dot(normal)
	vn2 := dv2.Dot(normal)

	b := Vec2{vn1 - cp1.velocityBias, vn2 - cp2.velocityBias}
	b = b.Sub(vc.K.MulV(a))

	apply := func(x Vec2) (Vec2, float64, Vec2, float64) {
		d := x.Sub(a)

		P1 := normal.Scale(d.X)
		P2 := normal.Scale(d.Y)
		vA = vA.Sub(P1.Add(P2).Scale(mA))
		wA -= iA * (cp1.rA.Cross(P1) + cp2.rA.Cross(P2))
		vB = vB.Add(P1.Add(P2).Scale(mB))
		wB += iB * (cp1.rB.Cross(P1) + cp2.rB.Cross(P2))

		cp1.normalImpulse = x.X
		cp2.normalImpulse = x.Y
		return vA, wA, vB, wB
	}

	// Case 1: both constraints active, vn = 0.
	x := vc.normalMass.MulV(b).Neg()
	if x.X >= 0.0 && x.Y >= 0.0 {
		return apply(x)
	}

	// Case 2: vn1 = 0 and x2 = 0.
	x = Vec2{-cp1.normalMass * b.X, 0.0}
	vn2 = vc.K.Ex.Y*x.X + b.Y
	if x.X >= 0.0 && vn2 >= 0.0 {
		return apply(x)
	}

	// Case 3: vn2 = 0 and x1 = 0.
	x = Vec2{0.0, -cp2.normalMass * b.Y}
	vn1 = vc.K.Ey.X*x.Y + b.X
	if x.Y >= 0.0 && vn1 >= 0.0 {
		return apply(x)
	}

	// Case 4: x1 = x2 = 0.
	x = Vec2{}
	vn1 = b.X
	vn2 = b.Y
	if vn1 >= 0.0 && vn2 >= 0.0 {
		return apply(x)
	}

	return vA, wA, vB, wB
}

func (s *contactSolver) storeImpulses() {
	for i := range s.velocityCons {
		vc := &s.velocityCons[i]
		manifold := &s.contacts[vc.contactIndex].manifold
		for j := 0; j < vc.pointCount; j++ {
			manifold.Points[j].NormalImpulse = vc.points[j].normalImpulse
			manifold.Points[j].TangentImpulse = vc.points[j].tangentImpulse
		}
	}
}

// positionSolverManifold evaluates a contact point of pc at the given
// body transforms.
func positionSolverManifold(pc *contactPositionConstraint, xfA, xfB Transform, index int) (normal, point Vec2, separation float64) {
	assert(pc.pointCount > 0)

	switch pc.kind {
	case ManifoldCircles:
		pointA := xfA.MulV(pc.localPoint)
		pointB := xfB.MulV(pc.localPoints[0])
		normal = pointB.Sub(pointA)
		normal.Normalize()
		point = pointA.Add(pointB).Scale(0.5)
		separation = pointB.Sub(pointA).Dot(normal) - pc.radiusA - pc.radiusB

	case ManifoldFaceA:
		normal = xfA.Q.MulV(pc.localNormal)
		planePoint := xfA.MulV(pc.localPoint)
		clipPoint := xfB.MulV(pc.localPoints[index])
		separation = clipPoint.Sub(planePoint).Dot(normal) - pc.radiusA - pc.radiusB
		point = clipPoint

	case ManifoldFaceB:
		normal = xfB.Q.MulV(pc.localNormal)
		planePoint := xfB.MulV(pc.localPoint)
		clipPoint := xfA.MulV(pc.localPoints[index])
		separation = clipPoint.Sub(planePoint).Dot(normal) - pc.radiusA - pc.radiusB
		point = clipPoint

		// Ensure normal points from A to B.
		normal = normal.Neg()
	}
	return normal, point, separation
}

// solvePositionConstraints runs one NGS pass. It reports whether the
// worst separation is within tolerance.
func (s *contactSolver) solvePositionConstraints() bool {
	minSeparation := 0.0

	for i := range s.positionCons {
		pc := &s.positionCons[i]

		indexA := pc.indexA
		indexB := pc.indexB
		localCenterA := pc.localCenterA
		mA := pc.invMassA
		iA := pc.invIA
		localCenterB := pc.localCenterB
		mB := pc.invMassB
		iB := pc.invIB

		cA := s.positions[indexA].c
		aA := s.positions[indexA].a
		cB := s.positions[indexB].c
		aB := s.positions[indexB].a

		// Solve normal constraints.
		for j := 0; j < pc.pointCount; j++ {
			xfA := Transform{Q: NewRot(aA)}
			xfB := Transform{Q: NewRot(aB)}
			xfA.P = cA.Sub(xfA.Q.MulV(localCenterA))
			xfB.P = cB.Sub(xfB.Q.MulV(localCenterB))

			normal, point, separation := positionSolverManifold(pc, xfA, xfB, j)

			rA := point.Sub(cA)
			rB := point.Sub(cB)

			// Track max constraint error.
			minSeparation = math.Min(minSeparation, separation)

			// Prevent large corrections and allow slop.
			C := clampf(baumgarte*(separation+linearSlop), -maxLinearCorrection, 0.0)

			// Compute the effective mass.
			rnA := rA.Cross(normal)
			rnB := rB.Cross(normal)
			K := mA + mB + iA*rnA*rnA + iB*rnB*rnB

			// Compute normal impulse.
			impulse := 0.0
			if K > 0.0 {
				impulse = -C / K
			}

			P := normal.Scale(impulse)

			cA = cA.Sub(P.Scale(mA))
			aA -= iA * rA.Cross(P)

			cB = cB.Add(P.Scale(mB))
			aB += iB * rB.Cross(P)
		}

		s.positions[indexA] = position{cA, aA}
		s.positions[indexB] = position{cB, aB}
	}

	// We can't expect minSeparation >= -linearSlop because we don't push
	// the separation above -linearSlop.
	return minSeparation >= -3.0*linearSlop
}

// solveTOIPositionConstraints is the sub-step variant: only the two TOI
// bodies move, and the tolerance is tighter.
func (s *contactSolver) solveTOIPositionConstraints(toiIndexA, toiIndexB int) bool {
	minSeparation := 0.0

	for i := range s.positionCons {
		pc := &s.positionCons[i]

		indexA := pc.indexA
		indexB := pc.indexB
		localCenterA := pc.localCenterA
		localCenterB := pc.localCenterB

		mA := 0.0
		iA := 0.0
		if indexA == toiIndexA || indexA == toiIndexB {
			mA = pc.invMassA
			iA = pc.invIA
		}

		mB := 0.0
		iB := 0.0
		if indexB == toiIndexA || indexB == toiIndexB {
			mB = pc.invMassB
			iB = pc.invIB
		}

		cA := s.positions[indexA].c
		aA := s.positions[indexA].a
		cB := s.positions[indexB].c
		aB := s.positions[indexB].a

		for j := 0; j < pc.pointCount; j++ {
			xfA := Transform{Q: NewRot(aA)}
			xfB := Transform{Q: NewRot(aB)}
			xfA.P = cA.Sub(xfA.Q.MulV(localCenterA))
			xfB.P = cB.Sub(xfB.Q.MulV(localCenterB))

			normal, point, separation := positionSolverManifold(pc, xfA, xfB, j)

			rA := point.Sub(cA)
			rB := point.Sub(cB)

			minSeparation = math.Min(minSeparation, separation)

			C := clampf(toiBaumgarte*(separation+linearSlop), -maxLinearCorrection, 0.0)

			rnA := rA.Cross(normal)
			rnB := rB.Cross(normal)
			K := mA + mB + iA*rnA*rnA + iB*rnB*rnB

			impulse := 0.0
			if K > 0.0 {
				impulse = -C / K
			}

			P := normal.Scale(impulse)

			cA = cA.Sub(P.Scale(mA))
			aA -= iA * rA.Cross(P)

			cB = cB.Add(P.Scale(mB))
			aB += iB * rB.Cross(P)
		}

		s.positions[indexA] = position{cA, aA}
		s.positions[indexB] = position{cB, aB}
	}

	return minSeparation >= -1.5*linearSlop
}
