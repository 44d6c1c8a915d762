package liquidbox

import "math"

const (
	maxFloat = math.MaxFloat64
	epsilon  = 2.220446049250313e-16
)

// Collision

// The maximum number of contact points between two convex shapes.
const maxManifoldPoints = 2

// The maximum number of vertices on a convex polygon.
const maxPolygonVertices = 8

// Fattens AABBs in the dynamic tree so proxies can move a small amount
// without a tree update.
const aabbExtension = 0.1

// Predicts AABB motion from the displacement.
const aabbMultiplier = 2.0

// A small length used as a collision and constraint tolerance.
const linearSlop = 0.005

// A small angle used as a collision and constraint tolerance.
const angularSlop = 2.0 / 180.0 * math.Pi

// The skin around polygons and edges.
const polygonRadius = 2.0 * linearSlop

// Maximum number of sub-steps per contact in continuous physics.
const maxSubSteps = 8

// Dynamics

// Maximum number of contacts handled by a TOI island.
const maxTOIContacts = 32

// Relative speed below which collisions are treated as inelastic.
const velocityThreshold = 1.0

// The maximum linear position correction used when solving constraints.
const maxLinearCorrection = 0.2

// The maximum angular position correction used when solving constraints.
const maxAngularCorrection = 8.0 / 180.0 * math.Pi

// The maximum linear velocity of a body, expressed as a distance per step.
const maxTranslation = 2.0
const maxTranslationSquared = maxTranslation * maxTranslation

// The maximum angular velocity of a body, expressed as an angle per step.
const maxRotation = 0.5 * math.Pi
const maxRotationSquared = maxRotation * maxRotation

// How fast overlap is resolved; 1 would remove it in one step but overshoots.
const baumgarte = 0.2
const toiBaumgarte = 0.75

// Sleep

// The time a body must be still before it sleeps.
const timeToSleep = 0.5

const linearSleepTolerance = 0.01

const angularSleepTolerance = 2.0 / 180.0 * math.Pi

// Particles

// Upper bound returned by CalculateReasonableParticleIterations.
const maxRecommendedParticleIterations = 8

// Target for gravity/radius*(dt/iterations)^2.
const particleStabilityThreshold = 0.01

const minParticleWeight = 1.0
const maxParticlePressure = 0.25
const maxParticleForce = 0.5
const maxTriadDistance = 2
const maxTriadDistanceSquared = maxTriadDistance * maxTriadDistance
const minParticleSystemBufferCapacity = 256
const barrierCollisionTime = 2.5

// Lattice spacing for group fills, as a fraction of the diameter.
const particleStride = 0.75

// Version of the engine, reported by Dump.
var Version = struct{ Major, Minor, Revision int }{1, 0, 0}
