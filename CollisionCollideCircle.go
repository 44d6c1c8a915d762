package liquidbox

// CollideCircles computes the manifold between two circles.
func CollideCircles(manifold *Manifold, circleA *CircleShape, xfA Transform, circleB *CircleShape, xfB Transform) {
	manifold.PointCount = 0

	pA := xfA.MulV(circleA.P)
	pB := xfB.MulV(circleB.P)

	d := pB.Sub(pA)
	distSqr := d.Dot(d)
	radius := circleA.radius + circleB.radius
	if distSqr > radius*radius {
		return
	}

	manifold.Type = ManifoldCircles
	manifold.LocalPoint = circleA.P
	manifold.LocalNormal = Vec2{}
	manifold.PointCount = 1

	manifold.Points[0].LocalPoint = circleB.P
	manifold.Points[0].ID = ContactID{}
}

// CollidePolygonAndCircle computes the manifold between a polygon and a
// circle.
func CollidePolygonAndCircle(manifold *Manifold, polygonA *PolygonShape, xfA Transform, circleB *CircleShape, xfB Transform) {
	manifold.PointCount = 0

	// Compute circle position in the frame of the polygon.
	c := xfB.MulV(circleB.P)
	cLocal := xfA.MulTV(c)

	// Find the min separating edge.
	normalIndex := 0
	separation := -maxFloat
	radius := polygonA.radius + circleB.radius
	vertexCount := polygonA.Count
	vertices := &polygonA.Vertices
	normals := &polygonA.Normals

	for i := 0; i < vertexCount; i++ {
		s := normals[i].Dot(cLocal.Sub(vertices[i]))
		if s > radius {
			// Early out.
			return
		}
		if s > separation {
			separation = s
			normalIndex = i
		}
	}

	// Vertices that subtend the incident face.
	vertIndex1 := normalIndex
	vertIndex2 := (vertIndex1 + 1) % vertexCount
	v1 := vertices[vertIndex1]
	v2 := vertices[vertIndex2]

	manifold.Type = ManifoldFaceA
	manifold.Points[0].LocalPoint = circleB.P
	manifold.Points[0].ID = ContactID{}

	// If the center is inside the polygon ...
	if separation < epsilon {
		manifold.PointCount = 1
		manifold.LocalNormal = normals[normalIndex]
		manifold.LocalPoint = v1.Add(v2).Scale(0.5)
		return
	}

	// Compute barycentric coordinates.
	u1 := cLocal.Sub(v1).Dot(v2.Sub(v1))
	u2 := cLocal.Sub(v2).Dot(v1.Sub(v2))
	switch {
	case u1 <= 0.0:
		if DistanceSquared(cLocal, v1) > radius*radius {
			return
		}
		manifold.PointCount = 1
		manifold.LocalNormal = cLocal.Sub(v1).Normalized()
		manifold.LocalPoint = v1

	case u2 <= 0.0:
		if DistanceSquared(cLocal, v2) > radius*radius {
			return
		}
		manifold.PointCount = 1
		manifold.LocalNormal = cLocal.Sub(v2).Normalized()
		manifold.LocalPoint = v2

	default:
		faceCenter := v1.Add(v2).Scale(0.5)
		if cLocal.Sub(faceCenter).Dot(normals[vertIndex1]) > radius {
			return
		}
		manifold.PointCount = 1
		manifold.LocalNormal = normals[vertIndex1]
		manifold.LocalPoint = faceCenter
	}
}
