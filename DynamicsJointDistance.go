package liquidbox

import (
	"math"

	"go.uber.org/zap"
)

// DistanceJointDef requires defining an anchor point on both bodies and
// the non-zero length of the distance joint. The definition uses local
// anchor points so that the initial configuration can violate the
// constraint slightly. This helps when saving and loading a game.
// Do not use a zero or short length.
type DistanceJointDef struct {
	JointDefBase

	// The local anchor point relative to bodyA's origin.
	LocalAnchorA Vec2

	// The local anchor point relative to bodyB's origin.
	LocalAnchorB Vec2

	// The natural length between the anchor points.
	Length float64

	// The mass-spring-damper frequency in Hertz. A value of 0 disables
	// softness.
	FrequencyHz float64

	// The damping ratio. 0 = no damping, 1 = critical damping.
	DampingRatio float64
}

func MakeDistanceJointDef() DistanceJointDef {
	return DistanceJointDef{Length: 1.0}
}

// Initialize sets the bodies and anchors from world points and derives
// the length from the current anchor separation.
func (def *DistanceJointDef) Initialize(bodyA, bodyB *Body, anchorA, anchorB Vec2) {
	def.BodyA = bodyA
	def.BodyB = bodyB
	def.LocalAnchorA = bodyA.LocalPoint(anchorA)
	def.LocalAnchorB = bodyB.LocalPoint(anchorB)
	def.Length = anchorB.Sub(anchorA).Length()
}

// DistanceJoint keeps two anchor points at a fixed distance, like a
// massless rigid rod. With a positive frequency it becomes a spring.
type DistanceJoint struct {
	jointBase

	frequencyHz  float64
	dampingRatio float64
	bias         float64

	// Solver shared
	localAnchorA Vec2
	localAnchorB Vec2
	gamma        float64
	impulse      float64
	length       float64

	// Solver temp
	indexA       int
	indexB       int
	u            Vec2
	rA           Vec2
	rB           Vec2
	localCenterA Vec2
	localCenterB Vec2
	invMassA     float64
	invMassB     float64
	invIA        float64
	invIB        float64
	mass         float64
}

func newDistanceJoint(log *zap.Logger, def *DistanceJointDef) *DistanceJoint {
	if !(def.Length > 0.0) || !IsValid(def.Length) {
		violation(log, "World.CreateJoint", ErrInvalidJointLength)
	}
	assert(IsValid(def.FrequencyHz) && def.FrequencyHz >= 0.0)
	assert(IsValid(def.DampingRatio) && def.DampingRatio >= 0.0)

	return &DistanceJoint{
		jointBase:    newJointBase(DistanceJointType, &def.JointDefBase),
		localAnchorA: def.LocalAnchorA,
		localAnchorB: def.LocalAnchorB,
		length:       def.Length,
		frequencyHz:  def.FrequencyHz,
		dampingRatio: def.DampingRatio,
	}
}

func (j *DistanceJoint) AnchorA() Vec2 {
	return j.bodyA.WorldPoint(j.localAnchorA)
}

func (j *DistanceJoint) AnchorB() Vec2 {
	return j.bodyB.WorldPoint(j.localAnchorB)
}

func (j *DistanceJoint) ReactionForce(invDt float64) Vec2 {
	return j.u.Scale(invDt * j.impulse)
}

func (j *DistanceJoint) ReactionTorque(float64) float64 {
	return 0.0
}

// LocalAnchorA returns the local anchor point relative to bodyA's origin.
func (j *DistanceJoint) LocalAnchorA() Vec2 {
	return j.localAnchorA
}

// LocalAnchorB returns the local anchor point relative to bodyB's origin.
func (j *DistanceJoint) LocalAnchorB() Vec2 {
	return j.localAnchorB
}

// SetLength sets the natural length. It takes effect on the next step.
func (j *DistanceJoint) SetLength(length float64) {
	if !(length > 0.0) {
		violation(j.world.log, "DistanceJoint.SetLength", ErrInvalidJointLength)
	}
	j.length = length
}

func (j *DistanceJoint) Length() float64 {
	return j.length
}

func (j *DistanceJoint) SetFrequency(hz float64) {
	j.frequencyHz = hz
}

func (j *DistanceJoint) Frequency() float64 {
	return j.frequencyHz
}

func (j *DistanceJoint) SetDampingRatio(ratio float64) {
	j.dampingRatio = ratio
}

func (j *DistanceJoint) DampingRatio() float64 {
	return j.dampingRatio
}

// 1-D constrained system
// m (v2 - v1) = lambda
// v2 + (beta/h) * x1 + gamma * lambda = 0, gamma has units of inverse mass.
// x2 = x1 + h * v2
//
// 1-D mass-damper-spring system
//
// C = norm(p2 - p1) - L
// u = (p2 - p1) / norm(p2 - p1)
// Cdot = dot(u, v2 + cross(w2, r2) - v1 - cross(w1, r1))
// J = [-u -cross(r1, u) u cross(r2, u)]
// K = J * invM * JT
//   = invMass1 + invI1 * cross(r1, u)^2 + invMass2 + invI2 * cross(r2, u)^2

func (j *DistanceJoint) initVelocityConstraints(data *solverData) {
	j.indexA = j.bodyA.islandIndex
	j.indexB = j.bodyB.islandIndex
	j.localCenterA = j.bodyA.sweep.LocalCenter
	j.localCenterB = j.bodyB.sweep.LocalCenter
	j.invMassA = j.bodyA.invMass
	j.invMassB = j.bodyB.invMass
	j.invIA = j.bodyA.invI
	j.invIB = j.bodyB.invI

	cA := data.positions[j.indexA].c
	aA := data.positions[j.indexA].a
	vA := data.velocities[j.indexA].v
	wA := data.velocities[j.indexA].w

	cB := data.positions[j.indexB].c
	aB := data.positions[j.indexB].a
	vB := data.velocities[j.indexB].v
	wB := data.velocities[j.indexB].w

	qA := NewRot(aA)
	qB := NewRot(aB)

	j.rA = qA.MulV(j.localAnchorA.Sub(j.localCenterA))
	j.rB = qB.MulV(j.localAnchorB.Sub(j.localCenterB))
	j.u = cB.Add(j.rB).Sub(cA).Sub(j.rA)

	// Handle singularity.
	length := j.u.Length()
	if length > linearSlop {
		j.u = j.u.Scale(1.0 / length)
	} else {
		j.u = Vec2{}
	}

	crAu := j.rA.Cross(j.u)
	crBu := j.rB.Cross(j.u)
	invMass := j.invMassA + j.invIA*crAu*crAu + j.invMassB + j.invIB*crBu*crBu

	// Compute the effective mass matrix.
	j.mass = 0.0
	if invMass != 0.0 {
		j.mass = 1.0 / invMass
	}

	if j.frequencyHz > 0.0 {
		C := length - j.length

		// Frequency
		omega := 2.0 * math.Pi * j.frequencyHz

		// Damping coefficient
		d := 2.0 * j.mass * j.dampingRatio * omega

		// Spring stiffness
		k := j.mass * omega * omega

		// magic formulas
		h := data.step.Dt
		j.gamma = h * (d + h*k)
		if j.gamma != 0.0 {
			j.gamma = 1.0 / j.gamma
		}
		j.bias = C * h * k * j.gamma

		invMass += j.gamma
		j.mass = 0.0
		if invMass != 0.0 {
			j.mass = 1.0 / invMass
		}
	} else {
		j.gamma = 0.0
		j.bias = 0.0
	}

	if data.step.WarmStarting {
		// Scale the impulse to support a variable time step.
		j.impulse *= data.step.DtRatio

		P := j.u.Scale(j.impulse)
		vA = vA.Sub(P.Scale(j.invMassA))
		wA -= j.invIA * j.rA.Cross(P)
		vB = vB.Add(P.Scale(j.invMassB))
		wB += j.invIB * j.rB.Cross(P)
	} else {
		j.impulse = 0.0
	}

	data.velocities[j.indexA] = velocity{vA, wA}
	data.velocities[j.indexB] = velocity{vB, wB}
}

func (j *DistanceJoint) solveVelocityConstraints(data *solverData) {
	vA := data.velocities[j.indexA].v
	wA := data.velocities[j.indexA].w
	vB := data.velocities[j.indexB].v
	wB := data.velocities[j.indexB].w

	// Cdot = dot(u, v + cross(w, r))
	vpA := vA.Add(CrossSV(wA, j.rA))
	vpB := vB.Add(CrossSV(wB, j.rB))
	Cdot := j.u.Dot(vpB.Sub(vpA))

	impulse := -j.mass * (Cdot + j.bias + j.gamma*j.impulse)
	j.impulse += impulse

	P := j.u.Scale(impulse)
	vA = vA.Sub(P.Scale(j.invMassA))
	wA -= j.invIA * j.rA.Cross(P)
	vB = vB.Add(P.Scale(j.invMassB))
	wB += j.invIB * j.rB.Cross(P)

	data.velocities[j.indexA] = velocity{vA, wA}
	data.velocities[j.indexB] = velocity{vB, wB}
}

func (j *DistanceJoint) solvePositionConstraints(data *solverData) bool {
	if j.frequencyHz > 0.0 {
		// There is no position correction for soft distance constraints.
		return true
	}

	cA := data.positions[j.indexA].c
	aA := data.positions[j.indexA].a
	cB := data.positions[j.indexB].c
	aB := data.positions[j.indexB].a

	qA := NewRot(aA)
	qB := NewRot(aB)

	rA := qA.MulV(j.localAnchorA.Sub(j.localCenterA))
	rB := qB.MulV(j.localAnchorB.Sub(j.localCenterB))
	u := cB.Add(rB).Sub(cA).Sub(rA)

	length := u.Normalize()
	C := clampf(length-j.length, -maxLinearCorrection, maxLinearCorrection)

	impulse := -j.mass * C
	P := u.Scale(impulse)

	cA = cA.Sub(P.Scale(j.invMassA))
	aA -= j.invIA * rA.Cross(P)
	cB = cB.Add(P.Scale(j.invMassB))
	aB += j.invIB * rB.Cross(P)

	data.positions[j.indexA] = position{cA, aA}
	data.positions[j.indexB] = position{cB, aB}

	return math.Abs(C) < linearSlop
}

func (j *DistanceJoint) dump(log *zap.Logger, index int) {
	log.Info("distance joint",
		zap.Int("index", index),
		zap.Int("bodyA", j.bodyA.islandIndex),
		zap.Int("bodyB", j.bodyB.islandIndex),
		zap.Bool("collideConnected", j.collideConnected),
		zap.Float64s("localAnchorA", []float64{j.localAnchorA.X, j.localAnchorA.Y}),
		zap.Float64s("localAnchorB", []float64{j.localAnchorB.X, j.localAnchorB.Y}),
		zap.Float64("length", j.length),
		zap.Float64("frequencyHz", j.frequencyHz),
		zap.Float64("dampingRatio", j.dampingRatio),
	)
}
