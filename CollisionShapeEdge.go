package liquidbox

// EdgeShape is a two-sided line segment, typically used for static
// ground. Edges have no volume and therefore no mass.
type EdgeShape struct {
	Vertex1, Vertex2 Vec2
	radius           float64
}

func NewEdgeShape(v1, v2 Vec2) *EdgeShape {
	return &EdgeShape{Vertex1: v1, Vertex2: v2, radius: polygonRadius}
}

func (e *EdgeShape) Type() ShapeType {
	return ShapeEdge
}

func (e *EdgeShape) Radius() float64 {
	return e.radius
}

func (e *EdgeShape) Set(v1, v2 Vec2) {
	e.Vertex1 = v1
	e.Vertex2 = v2
}

func (e *EdgeShape) Clone() Shape {
	clone := *e
	return &clone
}

func (e *EdgeShape) ChildCount() int {
	return 1
}

func (e *EdgeShape) TestPoint(xf Transform, p Vec2) bool {
	return false
}

// RayCast intersects the ray with the segment line, then checks that the
// hit lies between the vertices.
func (e *EdgeShape) RayCast(input RayCastInput, xf Transform, childIndex int) (RayCastOutput, bool) {
	// Put the ray into the edge's frame of reference.
	p1 := xf.Q.MulTV(input.P1.Sub(xf.P))
	p2 := xf.Q.MulTV(input.P2.Sub(xf.P))
	d := p2.Sub(p1)

	v1 := e.Vertex1
	v2 := e.Vertex2
	edge := v2.Sub(v1)
	normal := Vec2{edge.Y, -edge.X}.Normalized()

	// q = p1 + t * d
	// dot(normal, q - v1) = 0
	numerator := normal.Dot(v1.Sub(p1))
	denominator := normal.Dot(d)
	if denominator == 0.0 {
		return RayCastOutput{}, false
	}

	t := numerator / denominator
	if t < 0.0 || input.MaxFraction < t {
		return RayCastOutput{}, false
	}

	q := p1.Add(d.Scale(t))

	// q = v1 + s * r
	r := v2.Sub(v1)
	rr := r.Dot(r)
	if rr == 0.0 {
		return RayCastOutput{}, false
	}
	s := q.Sub(v1).Dot(r) / rr
	if s < 0.0 || 1.0 < s {
		return RayCastOutput{}, false
	}

	out := RayCastOutput{Fraction: t, Normal: xf.Q.MulV(normal)}
	if numerator > 0.0 {
		out.Normal = out.Normal.Neg()
	}
	return out, true
}

func (e *EdgeShape) ComputeAABB(xf Transform, childIndex int) AABB {
	v1 := xf.MulV(e.Vertex1)
	v2 := xf.MulV(e.Vertex2)
	return AABB{LowerBound: Vec2Min(v1, v2), UpperBound: Vec2Max(v1, v2)}.Extend(e.radius)
}

func (e *EdgeShape) ComputeMass(density float64) MassData {
	return MassData{Center: e.Vertex1.Add(e.Vertex2).Scale(0.5)}
}

func (e *EdgeShape) ComputeDistance(xf Transform, p Vec2, childIndex int) (float64, Vec2) {
	v1 := xf.MulV(e.Vertex1)
	v2 := xf.MulV(e.Vertex2)

	d := p.Sub(v1)
	s := v2.Sub(v1)
	ds := d.Dot(s)
	if ds > 0 {
		s2 := s.Dot(s)
		if ds > s2 {
			d = p.Sub(v2)
		} else {
			d = d.Sub(s.Scale(ds / s2))
		}
	}

	length := d.Normalize()
	return length, d
}

// asPolygon returns the edge as a two-vertex polygon whose two faces
// point to either side of the segment.
func (e *EdgeShape) asPolygon() PolygonShape {
	var p PolygonShape
	p.radius = e.radius
	p.Count = 2
	p.Vertices[0] = e.Vertex1
	p.Vertices[1] = e.Vertex2
	n := CrossVS(e.Vertex2.Sub(e.Vertex1), 1.0)
	if n.Normalize() == 0 {
		n = Vec2{0, 1}
	}
	p.Normals[0] = n
	p.Normals[1] = n.Neg()
	p.Centroid = e.Vertex1.Add(e.Vertex2).Scale(0.5)
	return p
}
