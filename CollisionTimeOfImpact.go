package liquidbox

import (
	"math"
)

// TOIInput holds the proxies and sweeps for TimeOfImpact. The sweep
// interval is [0, TMax].
type TOIInput struct {
	ProxyA DistanceProxy
	ProxyB DistanceProxy
	SweepA Sweep
	SweepB Sweep
	TMax   float64
}

type TOIState uint8

const (
	TOIUnknown TOIState = iota
	TOIFailed
	TOIOverlapped
	TOITouching
	TOISeparated
)

func (s TOIState) String() string {
	switch s {
	case TOIFailed:
		return "failed"
	case TOIOverlapped:
		return "overlapped"
	case TOITouching:
		return "touching"
	case TOISeparated:
		return "separated"
	}
	return "unknown"
}

type TOIOutput struct {
	State TOIState
	T     float64
}

const (
	toiMaxIterations     = 20
	toiMaxRootIterations = 50
)

type separationType uint8

const (
	separationPoints separationType = iota
	separationFaceA
	separationFaceB
)

type separationFunction struct {
	proxyA, proxyB *DistanceProxy
	sweepA, sweepB Sweep
	kind           separationType
	localPoint     Vec2
	axis           Vec2
}

func (f *separationFunction) initialize(cache *SimplexCache, proxyA *DistanceProxy, sweepA Sweep, proxyB *DistanceProxy, sweepB Sweep, t1 float64) float64 {
	f.proxyA = proxyA
	f.proxyB = proxyB
	count := cache.Count
	assert(0 < count && count < 3)

	f.sweepA = sweepA
	f.sweepB = sweepB

	xfA := f.sweepA.Transform(t1)
	xfB := f.sweepB.Transform(t1)

	if count == 1 {
		f.kind = separationPoints
		pointA := xfA.MulV(proxyA.Vertex(cache.IndexA[0]))
		pointB := xfB.MulV(proxyB.Vertex(cache.IndexB[0]))
		f.axis = pointB.Sub(pointA)
		return f.axis.Normalize()
	}

	if cache.IndexA[0] == cache.IndexA[1] {
		// Two points on B and one on A.
		f.kind = separationFaceB
		localPointB1 := proxyB.Vertex(cache.IndexB[0])
		localPointB2 := proxyB.Vertex(cache.IndexB[1])

		f.axis = CrossVS(localPointB2.Sub(localPointB1), 1.0)
		f.axis.Normalize()
		normal := xfB.Q.MulV(f.axis)

		f.localPoint = localPointB1.Add(localPointB2).Scale(0.5)
		pointB := xfB.MulV(f.localPoint)
		pointA := xfA.MulV(proxyA.Vertex(cache.IndexA[0]))

		s := pointA.Sub(pointB).Dot(normal)
		if s < 0.0 {
			f.axis = f.axis.Neg()
			s = -s
		}
		return s
	}

	// Two points on A and one or two points on B.
	f.kind = separationFaceA
	localPointA1 := proxyA.Vertex(cache.IndexA[0])
	localPointA2 := proxyA.Vertex(cache.IndexA[1])

	f.axis = CrossVS(localPointA2.Sub(localPointA1), 1.0)
	f.axis.Normalize()
	normal := xfA.Q.MulV(f.axis)

	f.localPoint = localPointA1.Add(localPointA2).Scale(0.5)
	pointA := xfA.MulV(f.localPoint)
	pointB := xfB.MulV(proxyB.Vertex(cache.IndexB[0]))

	s := pointB.Sub(pointA).Dot(normal)
	if s < 0.0 {
		f.axis = f.axis.Neg()
		s = -s
	}
	return s
}

func (f *separationFunction) findMinSeparation(t float64) (indexA, indexB int, separation float64) {
	xfA := f.sweepA.Transform(t)
	xfB := f.sweepB.Transform(t)

	switch f.kind {
	case separationPoints:
		indexA = f.proxyA.Support(xfA.Q.MulTV(f.axis))
		indexB = f.proxyB.Support(xfB.Q.MulTV(f.axis.Neg()))
		pointA := xfA.MulV(f.proxyA.Vertex(indexA))
		pointB := xfB.MulV(f.proxyB.Vertex(indexB))
		return indexA, indexB, pointB.Sub(pointA).Dot(f.axis)

	case separationFaceA:
		normal := xfA.Q.MulV(f.axis)
		pointA := xfA.MulV(f.localPoint)
		indexB = f.proxyB.Support(xfB.Q.MulTV(normal.Neg()))
		pointB := xfB.MulV(f.proxyB.Vertex(indexB))
		return -1, indexB, pointB.Sub(pointA).Dot(normal)

	case separationFaceB:
		normal := xfB.Q.MulV(f.axis)
		pointB := xfB.MulV(f.localPoint)
		indexA = f.proxyA.Support(xfA.Q.MulTV(normal.Neg()))
		pointA := xfA.MulV(f.proxyA.Vertex(indexA))
		return indexA, -1, pointA.Sub(pointB).Dot(normal)
	}
	assert(false)
	return -1, -1, 0.0
}

func (f *separationFunction) evaluate(indexA, indexB int, t float64) float64 {
	xfA := f.sweepA.Transform(t)
	xfB := f.sweepB.Transform(t)

	switch f.kind {
	case separationPoints:
		pointA := xfA.MulV(f.proxyA.Vertex(indexA))
		pointB := xfB.MulV(f.proxyB.Vertex(indexB))
		return pointB.Sub(pointA).Dot(f.axis)

	case separationFaceA:
		normal := xfA.Q.MulV(f.axis)
		pointA := xfA.MulV(f.localPoint)
		pointB := xfB.MulV(f.proxyB.Vertex(indexB))
		return pointB.Sub(pointA).Dot(normal)

	case separationFaceB:
		normal := xfB.Q.MulV(f.axis)
		pointB := xfB.MulV(f.localPoint)
		pointA := xfA.MulV(f.proxyA.Vertex(indexA))
		return pointA.Sub(pointB).Dot(normal)
	}
	assert(false)
	return 0.0
}

// TimeOfImpact computes the upper bound on time before two shapes
// penetrate, using conservative advancement with a separating axis root
// finder. Time is a fraction of the sweep interval in [0, TMax]. The
// result is only valid for non-overlapping shapes at t = 0.
func TimeOfImpact(input *TOIInput) TOIOutput {
	out := TOIOutput{State: TOIUnknown, T: input.TMax}

	proxyA := &input.ProxyA
	proxyB := &input.ProxyB

	sweepA := input.SweepA
	sweepB := input.SweepB

	// Large rotations can make the root finder fail.
	sweepA.Normalize()
	sweepB.Normalize()

	tMax := input.TMax

	totalRadius := proxyA.radius + proxyB.radius
	target := math.Max(linearSlop, totalRadius-3.0*linearSlop)
	tolerance := 0.25 * linearSlop
	assert(target > tolerance)

	t1 := 0.0
	var cache SimplexCache
	distanceInput := DistanceInput{ProxyA: input.ProxyA, ProxyB: input.ProxyB}

	// The outer loop progressively attempts to compute new separating
	// axes; it exits when an axis is repeated (no progress).
	for iter := 0; ; {
		distanceInput.TransformA = sweepA.Transform(t1)
		distanceInput.TransformB = sweepB.Transform(t1)

		// Get the distance between shapes. The radii are ignored so the
		// core polygons can be measured.
		distanceOutput := ShapeDistance(&cache, &distanceInput)

		if distanceOutput.Distance <= 0.0 {
			out.State = TOIOverlapped
			out.T = 0.0
			break
		}

		if distanceOutput.Distance < target+tolerance {
			out.State = TOITouching
			out.T = t1
			break
		}

		var fcn separationFunction
		fcn.initialize(&cache, proxyA, sweepA, proxyB, sweepB, t1)

		// Resolve the deepest point on the separating axis, processing
		// at most one vertex per polygon vertex.
		done := false
		t2 := tMax
		for pushBackIter := 0; pushBackIter < maxPolygonVertices; pushBackIter++ {
			indexA, indexB, s2 := fcn.findMinSeparation(t2)

			// Final configuration is separated.
			if s2 > target+tolerance {
				out.State = TOISeparated
				out.T = tMax
				done = true
				break
			}

			// Separation reached tolerance; advance the sweep.
			if s2 > target-tolerance {
				t1 = t2
				break
			}

			s1 := fcn.evaluate(indexA, indexB, t1)

			// The initial separation must not be below target.
			if s1 < target-tolerance {
				out.State = TOIFailed
				out.T = t1
				done = true
				break
			}

			if s1 <= target+tolerance {
				out.State = TOITouching
				out.T = t1
				done = true
				break
			}

			// Mix secant and bisection to find the root of s(t) - target.
			a1, a2 := t1, t2
			for rootIter := 0; rootIter < toiMaxRootIterations; rootIter++ {
				var t float64
				if rootIter&1 != 0 {
					t = a1 + (target-s1)*(a2-a1)/(s2-s1)
				} else {
					t = 0.5 * (a1 + a2)
				}

				s := fcn.evaluate(indexA, indexB, t)
				if math.Abs(s-target) < tolerance {
					t2 = t
					break
				}

				if s > target {
					a1 = t
					s1 = s
				} else {
					a2 = t
					s2 = s
				}
			}
		}

		iter++
		if done {
			break
		}

		if iter == toiMaxIterations {
			// Root finder got stuck.
			out.State = TOIFailed
			out.T = t1
			break
		}
	}
	return out
}
