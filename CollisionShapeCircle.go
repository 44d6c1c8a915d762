package liquidbox

import (
	"math"
)

// CircleShape is a solid circle.
type CircleShape struct {
	// P is the center in body coordinates.
	P      Vec2
	radius float64
}

func NewCircleShape(center Vec2, radius float64) *CircleShape {
	return &CircleShape{P: center, radius: radius}
}

func (c *CircleShape) Type() ShapeType {
	return ShapeCircle
}

func (c *CircleShape) Radius() float64 {
	return c.radius
}

func (c *CircleShape) SetRadius(r float64) {
	c.radius = r
}

func (c *CircleShape) Clone() Shape {
	clone := *c
	return &clone
}

func (c *CircleShape) ChildCount() int {
	return 1
}

func (c *CircleShape) TestPoint(xf Transform, p Vec2) bool {
	center := xf.MulV(c.P)
	d := p.Sub(center)
	return d.Dot(d) <= c.radius*c.radius
}

// RayCast solves |s + t*r| = radius for the smallest t (van den Bergen,
// Collision Detection in Interactive 3D Environments, 3.1.2).
func (c *CircleShape) RayCast(input RayCastInput, xf Transform, childIndex int) (RayCastOutput, bool) {
	position := xf.MulV(c.P)
	s := input.P1.Sub(position)
	b := s.Dot(s) - c.radius*c.radius

	r := input.P2.Sub(input.P1)
	cc := s.Dot(r)
	rr := r.Dot(r)
	sigma := cc*cc - rr*b

	// Check for negative discriminant and short segment.
	if sigma < 0.0 || rr < epsilon {
		return RayCastOutput{}, false
	}

	a := -(cc + math.Sqrt(sigma))

	// Is the intersection point on the segment?
	if 0.0 <= a && a <= input.MaxFraction*rr {
		a /= rr
		return RayCastOutput{
			Fraction: a,
			Normal:   s.Add(r.Scale(a)).Normalized(),
		}, true
	}
	return RayCastOutput{}, false
}

func (c *CircleShape) ComputeAABB(xf Transform, childIndex int) AABB {
	p := xf.MulV(c.P)
	return AABB{
		LowerBound: Vec2{p.X - c.radius, p.Y - c.radius},
		UpperBound: Vec2{p.X + c.radius, p.Y + c.radius},
	}
}

func (c *CircleShape) ComputeMass(density float64) MassData {
	mass := density * math.Pi * c.radius * c.radius
	return MassData{
		Mass:   mass,
		Center: c.P,
		// inertia about the local origin
		I: mass * (0.5*c.radius*c.radius + c.P.Dot(c.P)),
	}
}

func (c *CircleShape) ComputeDistance(xf Transform, p Vec2, childIndex int) (float64, Vec2) {
	center := xf.MulV(c.P)
	d := p.Sub(center)
	length := d.Normalize()
	return length - c.radius, d
}
