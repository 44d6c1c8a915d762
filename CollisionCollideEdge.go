package liquidbox

// CollideEdgeAndCircle computes the manifold between an edge and a circle
// by classifying the circle center against the Voronoi regions of the
// segment: vertex A, vertex B, or the face.
func CollideEdgeAndCircle(manifold *Manifold, edgeA *EdgeShape, xfA Transform, circleB *CircleShape, xfB Transform) {
	manifold.PointCount = 0

	// Compute circle in frame of edge.
	Q := xfA.MulTV(xfB.MulV(circleB.P))

	A := edgeA.Vertex1
	B := edgeA.Vertex2
	e := B.Sub(A)

	// Barycentric coordinates.
	u := e.Dot(B.Sub(Q))
	v := e.Dot(Q.Sub(A))

	radius := edgeA.radius + circleB.radius

	id := ContactID{IndexB: 0, TypeB: FeatureVertex}

	vertexContact := func(P Vec2, index uint8) {
		if DistanceSquared(Q, P) > radius*radius {
			return
		}
		id.IndexA = index
		id.TypeA = FeatureVertex
		manifold.PointCount = 1
		manifold.Type = ManifoldCircles
		manifold.LocalNormal = Vec2{}
		manifold.LocalPoint = P
		manifold.Points[0].ID = id
		manifold.Points[0].LocalPoint = circleB.P
	}

	// Region A
	if v <= 0.0 {
		vertexContact(A, 0)
		return
	}

	// Region B
	if u <= 0.0 {
		vertexContact(B, 1)
		return
	}

	// Region AB
	den := e.Dot(e)
	assert(den > 0.0)
	P := A.Scale(u).Add(B.Scale(v)).Scale(1.0 / den)
	if DistanceSquared(Q, P) > radius*radius {
		return
	}

	n := Vec2{-e.Y, e.X}
	if n.Dot(Q.Sub(A)) < 0.0 {
		n = n.Neg()
	}
	n.Normalize()

	id.IndexA = 0
	id.TypeA = FeatureFace
	manifold.PointCount = 1
	manifold.Type = ManifoldFaceA
	manifold.LocalNormal = n
	manifold.LocalPoint = A
	manifold.Points[0].ID = id
	manifold.Points[0].LocalPoint = circleB.P
}

// CollideEdgeAndPolygon treats the edge as a two-sided degenerate
// polygon and runs the polygon clipper.
func CollideEdgeAndPolygon(manifold *Manifold, edgeA *EdgeShape, xfA Transform, polygonB *PolygonShape, xfB Transform) {
	poly := edgeA.asPolygon()
	CollidePolygons(manifold, &poly, xfA, polygonB, xfB)
}
