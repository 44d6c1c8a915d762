package liquidbox

import (
	"go.uber.org/zap"
)

type JointType uint8

const (
	UnknownJoint JointType = iota
	DistanceJointType
)

func (t JointType) String() string {
	switch t {
	case DistanceJointType:
		return "distance"
	}
	return "unknown"
}

// JointEdge connects bodies and joints in the joint graph. Each body
// keeps a doubly linked list of its edges; each joint owns two.
type JointEdge struct {
	Other *Body // the other body attached to the joint
	Joint Joint
	Prev  *JointEdge
	Next  *JointEdge
}

// JointDef is implemented by every joint definition. Embed JointDefBase
// to satisfy it.
type JointDef interface {
	jointDefBase() *JointDefBase
}

// JointDefBase holds the fields common to all joint definitions.
type JointDefBase struct {
	UserData any
	BodyA    *Body
	BodyB    *Body

	// Set CollideConnected if the attached bodies should collide.
	CollideConnected bool
}

func (d *JointDefBase) jointDefBase() *JointDefBase {
	return d
}

// Joint constrains two bodies. Every joint kind provides the reporting
// methods below plus the solver hooks the island calls each step.
type Joint interface {
	Type() JointType
	BodyA() *Body
	BodyB() *Body

	// AnchorA and AnchorB return the anchor points in world coordinates.
	AnchorA() Vec2
	AnchorB() Vec2

	// ReactionForce returns the reaction force on body B at the joint
	// anchor, in Newtons.
	ReactionForce(invDt float64) Vec2

	// ReactionTorque returns the reaction torque on body B, in N*m.
	ReactionTorque(invDt float64) float64

	CollideConnected() bool
	UserData() any
	SetUserData(data any)
	Handle() Handle

	// Next returns the next joint in the world's joint list, or nil.
	Next() Joint

	// ShiftOrigin moves any points stored in world coordinates.
	ShiftOrigin(newOrigin Vec2)

	base() *jointBase
	initVelocityConstraints(data *solverData)
	solveVelocityConstraints(data *solverData)
	// solvePositionConstraints reports whether the position error is
	// within tolerance.
	solvePositionConstraints(data *solverData) bool
	dump(log *zap.Logger, index int)
}

// jointBase carries the graph and bookkeeping state shared by all
// joints.
type jointBase struct {
	typ    JointType
	world  *World
	handle Handle

	edgeA JointEdge
	edgeB JointEdge
	bodyA *Body
	bodyB *Body

	index            int
	islandFlag       bool
	collideConnected bool

	userData any
}

func newJointBase(typ JointType, def *JointDefBase) jointBase {
	return jointBase{
		typ:              typ,
		bodyA:            def.BodyA,
		bodyB:            def.BodyB,
		collideConnected: def.CollideConnected,
		userData:         def.UserData,
	}
}

func (j *jointBase) base() *jointBase {
	return j
}

func (j *jointBase) Type() JointType {
	return j.typ
}

func (j *jointBase) BodyA() *Body {
	return j.bodyA
}

func (j *jointBase) BodyB() *Body {
	return j.bodyB
}

func (j *jointBase) CollideConnected() bool {
	return j.collideConnected
}

func (j *jointBase) UserData() any {
	return j.userData
}

func (j *jointBase) SetUserData(data any) {
	j.userData = data
}

func (j *jointBase) Handle() Handle {
	return j.handle
}

func (j *jointBase) Next() Joint {
	if j.world == nil {
		return nil
	}
	next, _ := j.world.joints.Next(j.handle)
	return next
}

func (j *jointBase) ShiftOrigin(Vec2) {}

// IsActive reports whether both bodies are active.
func (j *jointBase) IsActive() bool {
	return j.bodyA.IsActive() && j.bodyB.IsActive()
}

// createJoint builds the concrete joint for def. New joint kinds are
// added here.
func createJoint(log *zap.Logger, def JointDef) Joint {
	switch d := def.(type) {
	case *DistanceJointDef:
		return newDistanceJoint(log, d)
	}
	violation(log, "World.CreateJoint", ErrUnknownJointDef)
	return nil
}
