package liquidbox

import (
	"fmt"
	"math"
)

// PolygonShape is a convex polygon whose interior lies to the left of
// each edge. It holds at most maxPolygonVertices vertices. A polygon with
// two vertices is used internally to collide edges.
type PolygonShape struct {
	Centroid Vec2
	Vertices [maxPolygonVertices]Vec2
	Normals  [maxPolygonVertices]Vec2
	Count    int
	radius   float64
}

// NewBoxShape returns an axis-aligned box with half-widths hx and hy
// centered on the body origin.
func NewBoxShape(hx, hy float64) *PolygonShape {
	p := &PolygonShape{radius: polygonRadius}
	p.SetAsBox(hx, hy)
	return p
}

// NewPolygonShape builds the convex hull of vertices.
func NewPolygonShape(vertices []Vec2) (*PolygonShape, error) {
	p := &PolygonShape{radius: polygonRadius}
	if err := p.Set(vertices); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PolygonShape) Type() ShapeType {
	return ShapePolygon
}

func (p *PolygonShape) Radius() float64 {
	return p.radius
}

func (p *PolygonShape) Clone() Shape {
	clone := *p
	return &clone
}

func (p *PolygonShape) ChildCount() int {
	return 1
}

func (p *PolygonShape) SetAsBox(hx, hy float64) {
	p.Count = 4
	p.Vertices[0] = Vec2{-hx, -hy}
	p.Vertices[1] = Vec2{hx, -hy}
	p.Vertices[2] = Vec2{hx, hy}
	p.Vertices[3] = Vec2{-hx, hy}
	p.Normals[0] = Vec2{0.0, -1.0}
	p.Normals[1] = Vec2{1.0, 0.0}
	p.Normals[2] = Vec2{0.0, 1.0}
	p.Normals[3] = Vec2{-1.0, 0.0}
	p.Centroid = Vec2{}
	if p.radius == 0 {
		p.radius = polygonRadius
	}
}

// SetAsOrientedBox builds a box with half-widths hx, hy placed at center
// and rotated by angle in body coordinates.
func (p *PolygonShape) SetAsOrientedBox(hx, hy float64, center Vec2, angle float64) {
	p.SetAsBox(hx, hy)
	p.Centroid = center

	xf := NewTransform(center, angle)
	for i := 0; i < p.Count; i++ {
		p.Vertices[i] = xf.MulV(p.Vertices[i])
		p.Normals[i] = xf.Q.MulV(p.Normals[i])
	}
}

func computeCentroid(vs []Vec2) (Vec2, error) {
	var c Vec2
	area := 0.0

	// pRef is the reference point for forming triangles; inside the
	// polygon to limit rounding error.
	var pRef Vec2
	for _, v := range vs {
		pRef = pRef.Add(v)
	}
	pRef = pRef.Scale(1.0 / float64(len(vs)))

	const inv3 = 1.0 / 3.0
	for i := range vs {
		p1 := pRef
		p2 := vs[i]
		p3 := vs[(i+1)%len(vs)]

		e1 := p2.Sub(p1)
		e2 := p3.Sub(p1)
		triangleArea := 0.5 * e1.Cross(e2)
		area += triangleArea

		// Area weighted centroid.
		c = c.Add(p1.Add(p2).Add(p3).Scale(triangleArea * inv3))
	}

	if area <= epsilon {
		return Vec2{}, fmt.Errorf("polygon area %g: %w", area, ErrInvalidShape)
	}
	return c.Scale(1.0 / area), nil
}

// Set computes the convex hull of vertices with gift wrapping, welding
// points closer than half the linear slop. Fewer than three distinct
// points, or more than maxPolygonVertices, is an error.
func (p *PolygonShape) Set(vertices []Vec2) error {
	if len(vertices) < 3 || len(vertices) > maxPolygonVertices {
		return fmt.Errorf("polygon with %d vertices: %w", len(vertices), ErrInvalidShape)
	}

	// Perform welding and copy vertices into a local buffer.
	ps := make([]Vec2, 0, maxPolygonVertices)
	const weld = (0.5 * linearSlop) * (0.5 * linearSlop)
	for _, v := range vertices {
		unique := true
		for _, q := range ps {
			if DistanceSquared(v, q) < weld {
				unique = false
				break
			}
		}
		if unique {
			ps = append(ps, v)
		}
	}

	n := len(ps)
	if n < 3 {
		return fmt.Errorf("polygon is degenerate: %w", ErrInvalidShape)
	}

	// Find the right most point on the hull.
	i0 := 0
	x0 := ps[0].X
	for i := 1; i < n; i++ {
		x := ps[i].X
		if x > x0 || (x == x0 && ps[i].Y < ps[i0].Y) {
			i0 = i
			x0 = x
		}
	}

	hull := make([]int, 0, maxPolygonVertices)
	ih := i0
	for {
		if len(hull) == maxPolygonVertices {
			return fmt.Errorf("polygon hull too large: %w", ErrInvalidShape)
		}
		hull = append(hull, ih)
		m := len(hull) - 1

		ie := 0
		for j := 1; j < n; j++ {
			if ie == ih {
				ie = j
				continue
			}

			r := ps[ie].Sub(ps[hull[m]])
			v := ps[j].Sub(ps[hull[m]])
			c := r.Cross(v)
			if c < 0.0 {
				ie = j
			}

			// Collinearity check.
			if c == 0.0 && v.LengthSquared() > r.LengthSquared() {
				ie = j
			}
		}

		ih = ie
		if ie == i0 {
			break
		}
	}

	if len(hull) < 3 {
		return fmt.Errorf("polygon hull is degenerate: %w", ErrInvalidShape)
	}

	p.Count = len(hull)
	for i, h := range hull {
		p.Vertices[i] = ps[h]
	}

	// Compute normals. Ensure the edges have non-zero length.
	for i := 0; i < p.Count; i++ {
		edge := p.Vertices[(i+1)%p.Count].Sub(p.Vertices[i])
		if edge.LengthSquared() <= epsilon*epsilon {
			return fmt.Errorf("polygon edge %d has zero length: %w", i, ErrInvalidShape)
		}
		p.Normals[i] = CrossVS(edge, 1.0).Normalized()
	}

	centroid, err := computeCentroid(p.Vertices[:p.Count])
	if err != nil {
		return err
	}
	p.Centroid = centroid
	if p.radius == 0 {
		p.radius = polygonRadius
	}
	return nil
}

func (p *PolygonShape) TestPoint(xf Transform, point Vec2) bool {
	pLocal := xf.Q.MulTV(point.Sub(xf.P))
	for i := 0; i < p.Count; i++ {
		if p.Normals[i].Dot(pLocal.Sub(p.Vertices[i])) > 0.0 {
			return false
		}
	}
	return true
}

func (p *PolygonShape) RayCast(input RayCastInput, xf Transform, childIndex int) (RayCastOutput, bool) {
	// Put the ray into the polygon's frame of reference.
	p1 := xf.Q.MulTV(input.P1.Sub(xf.P))
	p2 := xf.Q.MulTV(input.P2.Sub(xf.P))
	d := p2.Sub(p1)

	lower, upper := 0.0, input.MaxFraction
	index := -1

	for i := 0; i < p.Count; i++ {
		// p = p1 + a * d
		// dot(normal, p - v) = 0
		// dot(normal, p1 - v) + a * dot(normal, d) = 0
		numerator := p.Normals[i].Dot(p.Vertices[i].Sub(p1))
		denominator := p.Normals[i].Dot(d)

		if denominator == 0.0 {
			if numerator < 0.0 {
				return RayCastOutput{}, false
			}
		} else {
			// lower < numerator / denominator with denominator < 0 flips
			// to denominator * lower > numerator.
			if denominator < 0.0 && numerator < lower*denominator {
				// The segment enters this half-space.
				lower = numerator / denominator
				index = i
			} else if denominator > 0.0 && numerator < upper*denominator {
				// The segment exits this half-space.
				upper = numerator / denominator
			}
		}

		if upper < lower {
			return RayCastOutput{}, false
		}
	}

	if index >= 0 {
		return RayCastOutput{Fraction: lower, Normal: xf.Q.MulV(p.Normals[index])}, true
	}
	return RayCastOutput{}, false
}

func (p *PolygonShape) ComputeAABB(xf Transform, childIndex int) AABB {
	lower := xf.MulV(p.Vertices[0])
	upper := lower
	for i := 1; i < p.Count; i++ {
		v := xf.MulV(p.Vertices[i])
		lower = Vec2Min(lower, v)
		upper = Vec2Max(upper, v)
	}
	return AABB{LowerBound: lower, UpperBound: upper}.Extend(p.radius)
}

// ComputeMass integrates over the triangles fanned from a point inside
// the polygon. For a triangle (s, s+e1, s+e2) with D = cross(e1, e2):
// area = D/2, centroid = s + (e1+e2)/3, and the inertia about s is
// D/12 * (e1x^2 + e1x*e2x + e2x^2 + the same in y).
func (p *PolygonShape) ComputeMass(density float64) MassData {
	assert(p.Count >= 3)

	var center Vec2
	area := 0.0
	I := 0.0

	var s Vec2
	for i := 0; i < p.Count; i++ {
		s = s.Add(p.Vertices[i])
	}
	s = s.Scale(1.0 / float64(p.Count))

	const inv3 = 1.0 / 3.0
	for i := 0; i < p.Count; i++ {
		e1 := p.Vertices[i].Sub(s)
		e2 := p.Vertices[(i+1)%p.Count].Sub(s)

		D := e1.Cross(e2)
		triangleArea := 0.5 * D
		area += triangleArea

		center = center.Add(e1.Add(e2).Scale(triangleArea * inv3))

		intx2 := e1.X*e1.X + e2.X*e1.X + e2.X*e2.X
		inty2 := e1.Y*e1.Y + e2.Y*e1.Y + e2.Y*e2.Y
		I += (0.25 * inv3 * D) * (intx2 + inty2)
	}

	var md MassData
	md.Mass = density * area

	assert(area > epsilon)
	center = center.Scale(1.0 / area)
	md.Center = center.Add(s)

	// Inertia about s, shifted to the center of mass and then to the
	// body origin.
	md.I = density*I + md.Mass*(md.Center.Dot(md.Center)-center.Dot(center))
	return md
}

func (p *PolygonShape) ComputeDistance(xf Transform, point Vec2, childIndex int) (float64, Vec2) {
	pLocal := xf.MulTV(point)
	maxDistance := -maxFloat
	normalForMaxDistance := pLocal

	for i := 0; i < p.Count; i++ {
		dot := p.Normals[i].Dot(pLocal.Sub(p.Vertices[i]))
		if dot > maxDistance {
			maxDistance = dot
			normalForMaxDistance = p.Normals[i]
		}
	}

	if maxDistance > 0 {
		// Outside: the closest feature may be a vertex.
		minDistance := normalForMaxDistance
		minDistance2 := maxDistance * maxDistance
		for i := 0; i < p.Count; i++ {
			d := pLocal.Sub(p.Vertices[i])
			d2 := d.LengthSquared()
			if minDistance2 > d2 {
				minDistance = d
				minDistance2 = d2
			}
		}
		normal := xf.Q.MulV(minDistance)
		normal.Normalize()
		return math.Sqrt(minDistance2), normal
	}
	return maxDistance, xf.Q.MulV(normalForMaxDistance)
}

// Validate reports whether the polygon is convex.
func (p *PolygonShape) Validate() bool {
	for i := 0; i < p.Count; i++ {
		i1 := i
		i2 := (i + 1) % p.Count
		v := p.Vertices[i1]
		e := p.Vertices[i2].Sub(v)

		for j := 0; j < p.Count; j++ {
			if j == i1 || j == i2 {
				continue
			}
			if e.Cross(p.Vertices[j].Sub(v)) < 0.0 {
				return false
			}
		}
	}
	return true
}
