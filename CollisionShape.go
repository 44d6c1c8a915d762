package liquidbox

// MassData holds the mass properties computed for a shape.
type MassData struct {
	// The mass of the shape, usually in kilograms.
	Mass float64

	// The position of the shape's centroid relative to the shape's origin.
	Center Vec2

	// The rotational inertia of the shape about the local origin.
	I float64
}

type ShapeType uint8

const (
	ShapeCircle ShapeType = iota
	ShapeEdge
	ShapePolygon
	shapeTypeCount
)

func (t ShapeType) String() string {
	switch t {
	case ShapeCircle:
		return "circle"
	case ShapeEdge:
		return "edge"
	case ShapePolygon:
		return "polygon"
	}
	return "unknown"
}

// Shape is the collision geometry attached to a fixture. A shape may be
// made of several child primitives; every method taking a child index
// addresses one of them.
type Shape interface {
	Type() ShapeType

	// Radius is the skin radius. Polygons and edges use polygonRadius.
	Radius() float64

	ChildCount() int

	// TestPoint reports whether p, in world coordinates, is inside the
	// shape placed at xf. Only meaningful for convex solids.
	TestPoint(xf Transform, p Vec2) bool

	RayCast(input RayCastInput, xf Transform, childIndex int) (RayCastOutput, bool)

	ComputeAABB(xf Transform, childIndex int) AABB

	// ComputeMass computes mass, centroid and inertia about the local
	// origin for the given density in kg/m^2.
	ComputeMass(density float64) MassData

	// ComputeDistance returns the signed distance from p to the child
	// and the outward direction at the closest feature.
	ComputeDistance(xf Transform, p Vec2, childIndex int) (float64, Vec2)

	Clone() Shape
}
