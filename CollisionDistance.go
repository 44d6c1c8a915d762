package liquidbox

// DistanceProxy wraps the vertices and radius of one child of a shape
// for GJK.
type DistanceProxy struct {
	buffer   [2]Vec2
	vertices []Vec2
	radius   float64
}

// NewDistanceProxy builds a proxy for child index of shape.
func NewDistanceProxy(shape Shape, index int) DistanceProxy {
	var p DistanceProxy
	switch s := shape.(type) {
	case *CircleShape:
		p.buffer[0] = s.P
		p.vertices = p.buffer[:1]
		p.radius = s.radius
	case *PolygonShape:
		p.vertices = s.Vertices[:s.Count]
		p.radius = s.radius
	case *EdgeShape:
		p.buffer[0] = s.Vertex1
		p.buffer[1] = s.Vertex2
		p.vertices = p.buffer[:2]
		p.radius = s.radius
	default:
		assert(false)
	}
	return p
}

func (p *DistanceProxy) VertexCount() int {
	return len(p.vertices)
}

func (p *DistanceProxy) Vertex(index int) Vec2 {
	return p.vertices[index]
}

func (p *DistanceProxy) Radius() float64 {
	return p.radius
}

// Support returns the index of the vertex furthest along d.
func (p *DistanceProxy) Support(d Vec2) int {
	bestIndex := 0
	bestValue := p.vertices[0].Dot(d)
	for i := 1; i < len(p.vertices); i++ {
		if value := p.vertices[i].Dot(d); value > bestValue {
			bestIndex = i
			bestValue = value
		}
	}
	return bestIndex
}

// SimplexCache warm starts ShapeDistance. Set Count to zero on the first
// call.
type SimplexCache struct {
	Metric float64 // length or area
	Count  int
	IndexA [3]int
	IndexB [3]int
}

// DistanceInput holds the proxies and transforms for ShapeDistance. The
// radii are only applied when UseRadii is set.
type DistanceInput struct {
	ProxyA     DistanceProxy
	ProxyB     DistanceProxy
	TransformA Transform
	TransformB Transform
	UseRadii   bool
}

type DistanceOutput struct {
	PointA     Vec2 // closest point on shape A
	PointB     Vec2 // closest point on shape B
	Distance   float64
	Iterations int // GJK iterations used
}

type simplexVertex struct {
	wA     Vec2    // support point in proxy A
	wB     Vec2    // support point in proxy B
	w      Vec2    // wB - wA
	a      float64 // barycentric coordinate for closest point
	indexA int
	indexB int
}

type simplex struct {
	v     [3]simplexVertex
	count int
}

func (s *simplex) readCache(cache *SimplexCache, proxyA *DistanceProxy, xfA Transform, proxyB *DistanceProxy, xfB Transform) {
	assert(cache.Count <= 3)

	s.count = cache.Count
	for i := 0; i < s.count; i++ {
		v := &s.v[i]
		v.indexA = cache.IndexA[i]
		v.indexB = cache.IndexB[i]
		v.wA = xfA.MulV(proxyA.Vertex(v.indexA))
		v.wB = xfB.MulV(proxyB.Vertex(v.indexB))
		v.w = v.wB.Sub(v.wA)
		v.a = 0.0
	}

	// Flush the simplex if its metric changed substantially.
	if s.count > 1 {
		metric1 := cache.Metric
		metric2 := s.metric()
		if metric2 < 0.5*metric1 || 2.0*metric1 < metric2 || metric2 < epsilon {
			s.count = 0
		}
	}

	if s.count == 0 {
		v := &s.v[0]
		v.indexA = 0
		v.indexB = 0
		v.wA = xfA.MulV(proxyA.Vertex(0))
		v.wB = xfB.MulV(proxyB.Vertex(0))
		v.w = v.wB.Sub(v.wA)
		v.a = 1.0
		s.count = 1
	}
}

func (s *simplex) writeCache(cache *SimplexCache) {
	cache.Metric = s.metric()
	cache.Count = s.count
	for i := 0; i < s.count; i++ {
		cache.IndexA[i] = s.v[i].indexA
		cache.IndexB[i] = s.v[i].indexB
	}
}

func (s *simplex) searchDirection() Vec2 {
	switch s.count {
	case 1:
		return s.v[0].w.Neg()
	case 2:
		e12 := s.v[1].w.Sub(s.v[0].w)
		if e12.Cross(s.v[0].w.Neg()) > 0.0 {
			// Origin is left of e12.
			return CrossSV(1.0, e12)
		}
		return CrossVS(e12, 1.0)
	default:
		assert(false)
		return Vec2{}
	}
}

func (s *simplex) witnessPoints() (pA, pB Vec2) {
	switch s.count {
	case 1:
		return s.v[0].wA, s.v[0].wB
	case 2:
		pA = s.v[0].wA.Scale(s.v[0].a).Add(s.v[1].wA.Scale(s.v[1].a))
		pB = s.v[0].wB.Scale(s.v[0].a).Add(s.v[1].wB.Scale(s.v[1].a))
		return pA, pB
	case 3:
		pA = s.v[0].wA.Scale(s.v[0].a).Add(s.v[1].wA.Scale(s.v[1].a)).Add(s.v[2].wA.Scale(s.v[2].a))
		return pA, pA
	default:
		assert(false)
		return Vec2{}, Vec2{}
	}
}

func (s *simplex) metric() float64 {
	switch s.count {
	case 1:
		return 0.0
	case 2:
		return Distance(s.v[0].w, s.v[1].w)
	case 3:
		return s.v[1].w.Sub(s.v[0].w).Cross(s.v[2].w.Sub(s.v[0].w))
	default:
		assert(false)
		return 0.0
	}
}

// solve2 reduces a segment simplex using barycentric coordinates.
func (s *simplex) solve2() {
	w1 := s.v[0].w
	w2 := s.v[1].w
	e12 := w2.Sub(w1)

	// w1 region
	d12n2 := -w1.Dot(e12)
	if d12n2 <= 0.0 {
		s.v[0].a = 1.0
		s.count = 1
		return
	}

	// w2 region
	d12n1 := w2.Dot(e12)
	if d12n1 <= 0.0 {
		s.v[1].a = 1.0
		s.count = 1
		s.v[0] = s.v[1]
		return
	}

	inv := 1.0 / (d12n1 + d12n2)
	s.v[0].a = d12n1 * inv
	s.v[1].a = d12n2 * inv
	s.count = 2
}

// solve3 reduces a triangle simplex. The origin lies in the region of a
// vertex, an edge, or the triangle interior.
func (s *simplex) solve3() {
	w1 := s.v[0].w
	w2 := s.v[1].w
	w3 := s.v[2].w

	e12 := w2.Sub(w1)
	d12n1 := w2.Dot(e12)
	d12n2 := -w1.Dot(e12)

	e13 := w3.Sub(w1)
	d13n1 := w3.Dot(e13)
	d13n2 := -w1.Dot(e13)

	e23 := w3.Sub(w2)
	d23n1 := w3.Dot(e23)
	d23n2 := -w2.Dot(e23)

	n123 := e12.Cross(e13)
	d123n1 := n123 * w2.Cross(w3)
	d123n2 := n123 * w3.Cross(w1)
	d123n3 := n123 * w1.Cross(w2)

	switch {
	case d12n2 <= 0.0 && d13n2 <= 0.0:
		s.v[0].a = 1.0
		s.count = 1

	case d12n1 > 0.0 && d12n2 > 0.0 && d123n3 <= 0.0:
		inv := 1.0 / (d12n1 + d12n2)
		s.v[0].a = d12n1 * inv
		s.v[1].a = d12n2 * inv
		s.count = 2

	case d13n1 > 0.0 && d13n2 > 0.0 && d123n2 <= 0.0:
		inv := 1.0 / (d13n1 + d13n2)
		s.v[0].a = d13n1 * inv
		s.v[2].a = d13n2 * inv
		s.count = 2
		s.v[1] = s.v[2]

	case d12n1 <= 0.0 && d23n2 <= 0.0:
		s.v[1].a = 1.0
		s.count = 1
		s.v[0] = s.v[1]

	case d13n1 <= 0.0 && d23n1 <= 0.0:
		s.v[2].a = 1.0
		s.count = 1
		s.v[0] = s.v[2]

	case d23n1 > 0.0 && d23n2 > 0.0 && d123n1 <= 0.0:
		inv := 1.0 / (d23n1 + d23n2)
		s.v[1].a = d23n1 * inv
		s.v[2].a = d23n2 * inv
		s.count = 2
		s.v[0] = s.v[2]

	default:
		inv := 1.0 / (d123n1 + d123n2 + d123n3)
		s.v[0].a = d123n1 * inv
		s.v[1].a = d123n2 * inv
		s.v[2].a = d123n3 * inv
		s.count = 3
	}
}

const gjkMaxIterations = 20

// ShapeDistance computes the closest points between two convex proxies
// with GJK. The cache is read on entry and updated on exit.
func ShapeDistance(cache *SimplexCache, input *DistanceInput) DistanceOutput {
	proxyA := &input.ProxyA
	proxyB := &input.ProxyB
	xfA := input.TransformA
	xfB := input.TransformB

	var s simplex
	s.readCache(cache, proxyA, xfA, proxyB, xfB)

	// Vertices of the last simplex, used to detect cycling.
	var saveA, saveB [3]int

	iterations := 0
	for iterations < gjkMaxIterations {
		saveCount := s.count
		for i := 0; i < saveCount; i++ {
			saveA[i] = s.v[i].indexA
			saveB[i] = s.v[i].indexB
		}

		switch s.count {
		case 2:
			s.solve2()
		case 3:
			s.solve3()
		}

		// The origin is inside the triangle.
		if s.count == 3 {
			break
		}

		d := s.searchDirection()

		// The origin is probably on a segment or inside the triangle; the
		// shapes overlap but it is hard to say how much.
		if d.LengthSquared() < epsilon*epsilon {
			break
		}

		vertex := &s.v[s.count]
		vertex.indexA = proxyA.Support(xfA.Q.MulTV(d.Neg()))
		vertex.wA = xfA.MulV(proxyA.Vertex(vertex.indexA))
		vertex.indexB = proxyB.Support(xfB.Q.MulTV(d))
		vertex.wB = xfB.MulV(proxyB.Vertex(vertex.indexB))
		vertex.w = vertex.wB.Sub(vertex.wA)

		iterations++

		duplicate := false
		for i := 0; i < saveCount; i++ {
			if vertex.indexA == saveA[i] && vertex.indexB == saveB[i] {
				duplicate = true
				break
			}
		}
		if duplicate {
			break
		}

		s.count++
	}

	var out DistanceOutput
	out.PointA, out.PointB = s.witnessPoints()
	out.Distance = Distance(out.PointA, out.PointB)
	out.Iterations = iterations

	s.writeCache(cache)

	if input.UseRadii {
		rA := proxyA.radius
		rB := proxyB.radius

		if out.Distance > rA+rB && out.Distance > epsilon {
			// Move the witness points to the outer surface.
			out.Distance -= rA + rB
			normal := out.PointB.Sub(out.PointA)
			normal.Normalize()
			out.PointA = out.PointA.Add(normal.Scale(rA))
			out.PointB = out.PointB.Sub(normal.Scale(rB))
		} else {
			// Overlapping when radii are considered.
			p := out.PointA.Add(out.PointB).Scale(0.5)
			out.PointA = p
			out.PointB = p
			out.Distance = 0.0
		}
	}
	return out
}
