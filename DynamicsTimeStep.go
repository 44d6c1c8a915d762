package liquidbox

// Profile holds per-step timings in milliseconds.
type Profile struct {
	Step          float64
	Collide       float64
	Solve         float64
	SolveInit     float64
	SolveVelocity float64
	SolvePosition float64
	Broadphase    float64
	SolveTOI      float64
	Particles     float64
}

// TimeStep carries the per-step parameters through the solvers.
type TimeStep struct {
	Dt                 float64 // time step
	InvDt              float64 // inverse time step (0 if dt == 0)
	DtRatio            float64 // dt * invDt0
	VelocityIterations int
	PositionIterations int
	ParticleIterations int
	WarmStarting       bool
}

type position struct {
	c Vec2
	a float64
}

type velocity struct {
	v Vec2
	w float64
}

// solverData is shared by the contact and joint solvers during an
// island solve. The position and velocity slices are indexed by
// Body.islandIndex.
type solverData struct {
	step       TimeStep
	positions  []position
	velocities []velocity
}
