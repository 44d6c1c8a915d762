package liquidbox

// findMaxSeparation finds the edge normal of poly1 with the largest
// separation from poly2.
func findMaxSeparation(poly1 *PolygonShape, xf1 Transform, poly2 *PolygonShape, xf2 Transform) (int, float64) {
	xf := xf2.MulT(xf1)

	bestIndex := 0
	maxSeparation := -maxFloat
	for i := 0; i < poly1.Count; i++ {
		// Get poly1 normal in frame2.
		n := xf.Q.MulV(poly1.Normals[i])
		v1 := xf.MulV(poly1.Vertices[i])

		// Find deepest point for normal i.
		si := maxFloat
		for j := 0; j < poly2.Count; j++ {
			sij := n.Dot(poly2.Vertices[j].Sub(v1))
			if sij < si {
				si = sij
			}
		}

		if si > maxSeparation {
			maxSeparation = si
			bestIndex = i
		}
	}
	return bestIndex, maxSeparation
}

func findIncidentEdge(poly1 *PolygonShape, xf1 Transform, edge1 int, poly2 *PolygonShape, xf2 Transform) [2]clipVertex {
	assert(0 <= edge1 && edge1 < poly1.Count)

	// Get the normal of the reference edge in poly2's frame.
	normal1 := xf2.Q.MulTV(xf1.Q.MulV(poly1.Normals[edge1]))

	// Find the incident edge on poly2.
	index := 0
	minDot := maxFloat
	for i := 0; i < poly2.Count; i++ {
		dot := normal1.Dot(poly2.Normals[i])
		if dot < minDot {
			minDot = dot
			index = i
		}
	}

	i1 := index
	i2 := (i1 + 1) % poly2.Count

	var c [2]clipVertex
	c[0].V = xf2.MulV(poly2.Vertices[i1])
	c[0].ID = ContactID{IndexA: uint8(edge1), IndexB: uint8(i1), TypeA: FeatureFace, TypeB: FeatureVertex}
	c[1].V = xf2.MulV(poly2.Vertices[i2])
	c[1].ID = ContactID{IndexA: uint8(edge1), IndexB: uint8(i2), TypeA: FeatureFace, TypeB: FeatureVertex}
	return c
}

// CollidePolygons computes the manifold between two polygons:
// find the axis of max separation on A then B and return if either
// separates, choose the reference face with a small bias towards A, find
// the incident edge, and clip it against the reference face sides.
// The normal points from A to B.
func CollidePolygons(manifold *Manifold, polyA *PolygonShape, xfA Transform, polyB *PolygonShape, xfB Transform) {
	manifold.PointCount = 0
	totalRadius := polyA.radius + polyB.radius

	edgeA, separationA := findMaxSeparation(polyA, xfA, polyB, xfB)
	if separationA > totalRadius {
		return
	}

	edgeB, separationB := findMaxSeparation(polyB, xfB, polyA, xfA)
	if separationB > totalRadius {
		return
	}

	var (
		poly1, poly2 *PolygonShape // reference and incident polygon
		xf1, xf2     Transform
		edge1        int
		flip         bool
	)
	const tol = 0.1 * linearSlop

	if separationB > separationA+tol {
		poly1, poly2 = polyB, polyA
		xf1, xf2 = xfB, xfA
		edge1 = edgeB
		manifold.Type = ManifoldFaceB
		flip = true
	} else {
		poly1, poly2 = polyA, polyB
		xf1, xf2 = xfA, xfB
		edge1 = edgeA
		manifold.Type = ManifoldFaceA
		flip = false
	}

	incidentEdge := findIncidentEdge(poly1, xf1, edge1, poly2, xf2)

	iv1 := edge1
	iv2 := (edge1 + 1) % poly1.Count

	v11 := poly1.Vertices[iv1]
	v12 := poly1.Vertices[iv2]

	localTangent := v12.Sub(v11).Normalized()
	localNormal := CrossVS(localTangent, 1.0)
	planePoint := v11.Add(v12).Scale(0.5)

	tangent := xf1.Q.MulV(localTangent)
	normal := CrossVS(tangent, 1.0)

	v11 = xf1.MulV(v11)
	v12 = xf1.MulV(v12)

	// Face offset.
	frontOffset := normal.Dot(v11)

	// Side offsets, extended by polytope skin thickness.
	sideOffset1 := -tangent.Dot(v11) + totalRadius
	sideOffset2 := tangent.Dot(v12) + totalRadius

	// Clip incident edge against extruded edge1 side edges.
	var clipPoints1, clipPoints2 [2]clipVertex
	if clipSegmentToLine(&clipPoints1, incidentEdge, tangent.Neg(), sideOffset1, iv1) < 2 {
		return
	}
	if clipSegmentToLine(&clipPoints2, clipPoints1, tangent, sideOffset2, iv2) < 2 {
		return
	}

	manifold.LocalNormal = localNormal
	manifold.LocalPoint = planePoint

	pointCount := 0
	for i := 0; i < maxManifoldPoints; i++ {
		separation := normal.Dot(clipPoints2[i].V) - frontOffset
		if separation > totalRadius {
			continue
		}
		cp := &manifold.Points[pointCount]
		cp.LocalPoint = xf2.MulTV(clipPoints2[i].V)
		cp.ID = clipPoints2[i].ID
		if flip {
			cp.ID = cp.ID.swapped()
		}
		pointCount++
	}
	manifold.PointCount = pointCount
}
