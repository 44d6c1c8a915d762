package liquidbox

import (
	"math"
)

const nullFeature uint8 = math.MaxUint8

// ContactFeatureType tells whether a feature index names a vertex or a face.
type ContactFeatureType uint8

const (
	FeatureVertex ContactFeatureType = iota
	FeatureFace
)

// ContactID identifies the pair of features that produced a contact
// point, so impulses can be matched across steps for warm starting.
type ContactID struct {
	IndexA uint8
	IndexB uint8
	TypeA  ContactFeatureType
	TypeB  ContactFeatureType
}

// Key packs the id into one comparable value.
func (id ContactID) Key() uint32 {
	return uint32(id.IndexA) | uint32(id.IndexB)<<8 | uint32(id.TypeA)<<16 | uint32(id.TypeB)<<24
}

func (id ContactID) swapped() ContactID {
	return ContactID{IndexA: id.IndexB, IndexB: id.IndexA, TypeA: id.TypeB, TypeB: id.TypeA}
}

// ManifoldPoint is one contact point in a manifold. LocalPoint depends on
// the manifold type:
//   - ManifoldCircles: the local center of circle B
//   - ManifoldFaceA: the local center of circle B or the clip point of polygon B
//   - ManifoldFaceB: the clip point of polygon A
//
// The impulses are solver caches and are not reliable contact forces.
type ManifoldPoint struct {
	LocalPoint     Vec2
	NormalImpulse  float64
	TangentImpulse float64
	ID             ContactID
}

type ManifoldType uint8

const (
	ManifoldCircles ManifoldType = iota
	ManifoldFaceA
	ManifoldFaceB
)

// Manifold holds the contact points of two touching convex shapes in
// body-local coordinates, so position correction can account for motion.
type Manifold struct {
	Points      [maxManifoldPoints]ManifoldPoint
	LocalNormal Vec2 // unused for ManifoldCircles
	LocalPoint  Vec2
	Type        ManifoldType
	PointCount  int
}

// WorldManifold is a manifold evaluated at the current body transforms.
type WorldManifold struct {
	Normal      Vec2 // from A to B
	Points      [maxManifoldPoints]Vec2
	Separations [maxManifoldPoints]float64 // negative means overlap
}

// Initialize evaluates manifold using the shape transforms and radii.
func (wm *WorldManifold) Initialize(manifold *Manifold, xfA Transform, radiusA float64, xfB Transform, radiusB float64) {
	if manifold.PointCount == 0 {
		return
	}

	switch manifold.Type {
	case ManifoldCircles:
		wm.Normal = Vec2{1, 0}
		pointA := xfA.MulV(manifold.LocalPoint)
		pointB := xfB.MulV(manifold.Points[0].LocalPoint)
		if DistanceSquared(pointA, pointB) > epsilon*epsilon {
			wm.Normal = pointB.Sub(pointA).Normalized()
		}
		cA := pointA.Add(wm.Normal.Scale(radiusA))
		cB := pointB.Sub(wm.Normal.Scale(radiusB))
		wm.Points[0] = cA.Add(cB).Scale(0.5)
		wm.Separations[0] = cB.Sub(cA).Dot(wm.Normal)

	case ManifoldFaceA:
		wm.Normal = xfA.Q.MulV(manifold.LocalNormal)
		planePoint := xfA.MulV(manifold.LocalPoint)
		for i := 0; i < manifold.PointCount; i++ {
			clipPoint := xfB.MulV(manifold.Points[i].LocalPoint)
			cA := clipPoint.Add(wm.Normal.Scale(radiusA - clipPoint.Sub(planePoint).Dot(wm.Normal)))
			cB := clipPoint.Sub(wm.Normal.Scale(radiusB))
			wm.Points[i] = cA.Add(cB).Scale(0.5)
			wm.Separations[i] = cB.Sub(cA).Dot(wm.Normal)
		}

	case ManifoldFaceB:
		wm.Normal = xfB.Q.MulV(manifold.LocalNormal)
		planePoint := xfB.MulV(manifold.LocalPoint)
		for i := 0; i < manifold.PointCount; i++ {
			clipPoint := xfA.MulV(manifold.Points[i].LocalPoint)
			cB := clipPoint.Add(wm.Normal.Scale(radiusB - clipPoint.Sub(planePoint).Dot(wm.Normal)))
			cA := clipPoint.Sub(wm.Normal.Scale(radiusA))
			wm.Points[i] = cA.Add(cB).Scale(0.5)
			wm.Separations[i] = cA.Sub(cB).Dot(wm.Normal)
		}
		// Ensure normal points from A to B.
		wm.Normal = wm.Normal.Neg()
	}
}

// PointState describes how a manifold point changed between updates.
type PointState uint8

const (
	PointNull PointState = iota
	PointAdd
	PointPersist
	PointRemove
)

// GetPointStates compares two manifolds by contact id. state1 describes
// the points of manifold1 and state2 those of manifold2.
func GetPointStates(manifold1, manifold2 *Manifold) (state1, state2 [maxManifoldPoints]PointState) {
	for i := 0; i < manifold1.PointCount; i++ {
		key := manifold1.Points[i].ID.Key()
		state1[i] = PointRemove
		for j := 0; j < manifold2.PointCount; j++ {
			if manifold2.Points[j].ID.Key() == key {
				state1[i] = PointPersist
				break
			}
		}
	}

	for i := 0; i < manifold2.PointCount; i++ {
		key := manifold2.Points[i].ID.Key()
		state2[i] = PointAdd
		for j := 0; j < manifold1.PointCount; j++ {
			if manifold1.Points[j].ID.Key() == key {
				state2[i] = PointPersist
				break
			}
		}
	}
	return state1, state2
}

type clipVertex struct {
	V  Vec2
	ID ContactID
}

// RayCastInput describes the ray p1 + t*(p2-p1) for t in [0, MaxFraction].
type RayCastInput struct {
	P1, P2      Vec2
	MaxFraction float64
}

// RayCastOutput is a hit at p1 + Fraction*(p2-p1).
type RayCastOutput struct {
	Normal   Vec2
	Fraction float64
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	LowerBound Vec2
	UpperBound Vec2
}

func (bb AABB) Center() Vec2 {
	return bb.LowerBound.Add(bb.UpperBound).Scale(0.5)
}

// Extents returns the half-widths.
func (bb AABB) Extents() Vec2 {
	return bb.UpperBound.Sub(bb.LowerBound).Scale(0.5)
}

func (bb AABB) Perimeter() float64 {
	wx := bb.UpperBound.X - bb.LowerBound.X
	wy := bb.UpperBound.Y - bb.LowerBound.Y
	return 2.0 * (wx + wy)
}

// Combine returns the union of two boxes.
func (bb AABB) Combine(o AABB) AABB {
	return AABB{
		LowerBound: Vec2Min(bb.LowerBound, o.LowerBound),
		UpperBound: Vec2Max(bb.UpperBound, o.UpperBound),
	}
}

// Contains reports whether o lies inside bb.
func (bb AABB) Contains(o AABB) bool {
	return bb.LowerBound.X <= o.LowerBound.X &&
		bb.LowerBound.Y <= o.LowerBound.Y &&
		o.UpperBound.X <= bb.UpperBound.X &&
		o.UpperBound.Y <= bb.UpperBound.Y
}

func (bb AABB) IsValid() bool {
	d := bb.UpperBound.Sub(bb.LowerBound)
	return d.X >= 0.0 && d.Y >= 0.0 && bb.LowerBound.IsValid() && bb.UpperBound.IsValid()
}

// Extend grows bb by r on every side.
func (bb AABB) Extend(r float64) AABB {
	e := Vec2{r, r}
	return AABB{LowerBound: bb.LowerBound.Sub(e), UpperBound: bb.UpperBound.Add(e)}
}

// TestOverlapAABB reports whether two boxes intersect, touching included.
func TestOverlapAABB(a, b AABB) bool {
	d1 := b.LowerBound.Sub(a.UpperBound)
	d2 := a.LowerBound.Sub(b.UpperBound)
	if d1.X > 0.0 || d1.Y > 0.0 {
		return false
	}
	if d2.X > 0.0 || d2.Y > 0.0 {
		return false
	}
	return true
}

// RayCast intersects the ray with bb (slab method). A ray starting
// inside the box does not hit it.
func (bb AABB) RayCast(input RayCastInput) (RayCastOutput, bool) {
	tmin := -maxFloat
	tmax := maxFloat

	p := input.P1
	d := input.P2.Sub(input.P1)
	absD := d.Abs()

	var normal Vec2
	for i := 0; i < 2; i++ {
		if absD.Index(i) < epsilon {
			// Parallel.
			if p.Index(i) < bb.LowerBound.Index(i) || bb.UpperBound.Index(i) < p.Index(i) {
				return RayCastOutput{}, false
			}
			continue
		}

		invD := 1.0 / d.Index(i)
		t1 := (bb.LowerBound.Index(i) - p.Index(i)) * invD
		t2 := (bb.UpperBound.Index(i) - p.Index(i)) * invD

		// Sign of the normal vector.
		s := -1.0
		if t1 > t2 {
			t1, t2 = t2, t1
			s = 1.0
		}

		if t1 > tmin {
			normal = Vec2{}
			normal.SetIndex(i, s)
			tmin = t1
		}
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return RayCastOutput{}, false
		}
	}

	if tmin < 0.0 || input.MaxFraction < tmin {
		return RayCastOutput{}, false
	}
	return RayCastOutput{Fraction: tmin, Normal: normal}, true
}

// clipSegmentToLine clips vIn against the half-plane dot(normal, v) <= offset
// (Sutherland-Hodgman) and returns the number of output points.
func clipSegmentToLine(vOut *[2]clipVertex, vIn [2]clipVertex, normal Vec2, offset float64, vertexIndexA int) int {
	numOut := 0

	distance0 := normal.Dot(vIn[0].V) - offset
	distance1 := normal.Dot(vIn[1].V) - offset

	if distance0 <= 0.0 {
		vOut[numOut] = vIn[0]
		numOut++
	}
	if distance1 <= 0.0 {
		vOut[numOut] = vIn[1]
		numOut++
	}

	if distance0*distance1 < 0.0 {
		interp := distance0 / (distance0 - distance1)
		vOut[numOut].V = vIn[0].V.Add(vIn[1].V.Sub(vIn[0].V).Scale(interp))

		// Vertex A is hitting edge B.
		vOut[numOut].ID = ContactID{
			IndexA: uint8(vertexIndexA),
			IndexB: vIn[0].ID.IndexB,
			TypeA:  FeatureVertex,
			TypeB:  FeatureFace,
		}
		numOut++
	}
	return numOut
}

// TestOverlapShapes runs GJK on two shape children.
func TestOverlapShapes(shapeA Shape, indexA int, shapeB Shape, indexB int, xfA, xfB Transform) bool {
	input := DistanceInput{
		ProxyA:     NewDistanceProxy(shapeA, indexA),
		ProxyB:     NewDistanceProxy(shapeB, indexB),
		TransformA: xfA,
		TransformB: xfB,
		UseRadii:   true,
	}
	var cache SimplexCache
	output := ShapeDistance(&cache, &input)
	return output.Distance < 10.0*epsilon
}
