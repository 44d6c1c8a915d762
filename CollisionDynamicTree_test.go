package liquidbox

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"
)

func randomBox(rng *rand.Rand) AABB {
	c := Vec2{rng.Float64()*100 - 50, rng.Float64()*100 - 50}
	e := Vec2{rng.Float64()*2 + 0.1, rng.Float64()*2 + 0.1}
	return AABB{LowerBound: c.Sub(e), UpperBound: c.Add(e)}
}

func treeQuery(tree *DynamicTree, aabb AABB) []int {
	var ids []int
	tree.Query(func(id int) bool {
		ids = append(ids, id)
		return true
	}, aabb)
	slices.Sort(ids)
	return ids
}

func bruteQuery(fat map[int]AABB, aabb AABB) []int {
	var ids []int
	for id, box := range fat {
		if TestOverlapAABB(box, aabb) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func TestDynamicTreeMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tree := NewDynamicTree()
	boxes := map[int]AABB{}

	for i := range 200 {
		id := tree.CreateProxy(randomBox(rng), i)
		boxes[id] = tree.FatAABB(id)
	}
	tree.Validate()

	// Move some, destroy some.
	for id := range boxes {
		switch rng.IntN(3) {
		case 0:
			b := randomBox(rng)
			tree.MoveProxy(id, b, b.Center().Sub(boxes[id].Center()))
			boxes[id] = tree.FatAABB(id)
		case 1:
			tree.DestroyProxy(id)
			delete(boxes, id)
		}
	}
	tree.Validate()

	if b, h := tree.MaxBalance(), tree.Height(); b >= h {
		t.Errorf("MaxBalance = %d with height %d", b, h)
	}
	if r := tree.AreaRatio(); r < 1 {
		t.Errorf("AreaRatio = %v, want at least 1", r)
	}

	for range 50 {
		q := randomBox(rng)
		if got, want := treeQuery(tree, q), bruteQuery(boxes, q); !slices.Equal(got, want) {
			t.Fatalf("query %v:\n got %v\nwant %v", q, got, want)
		}
	}

	height := tree.Height()
	tree.RebuildBottomUp()
	tree.Validate()
	if tree.Height() < 1 || height < 1 {
		t.Errorf("heights %d, %d", height, tree.Height())
	}
	q := AABB{LowerBound: Vec2{-50, -50}, UpperBound: Vec2{50, 50}}
	if got, want := treeQuery(tree, q), bruteQuery(boxes, q); !slices.Equal(got, want) {
		t.Fatalf("after rebuild got %d proxies, want %d", len(got), len(want))
	}
}

func TestDynamicTreeMoveKeepsFatBox(t *testing.T) {
	tree := NewDynamicTree()
	box := AABB{LowerBound: Vec2{0, 0}, UpperBound: Vec2{1, 1}}
	id := tree.CreateProxy(box, "a")

	fat := tree.FatAABB(id)
	if math.Abs(fat.LowerBound.X+aabbExtension) > 1e-12 || math.Abs(fat.UpperBound.Y-1-aabbExtension) > 1e-12 {
		t.Fatalf("fat box %v", fat)
	}

	small := Vec2{0.05, 0}
	if tree.MoveProxy(id, AABB{LowerBound: box.LowerBound.Add(small), UpperBound: box.UpperBound.Add(small)}, small) {
		t.Error("moved inside the fat box but the leaf was reinserted")
	}

	big := Vec2{1, 0}
	if !tree.MoveProxy(id, AABB{LowerBound: box.LowerBound.Add(big), UpperBound: box.UpperBound.Add(big)}, big) {
		t.Fatal("left the fat box but the leaf was not reinserted")
	}
	// The box is extended forward by the predicted displacement.
	fat = tree.FatAABB(id)
	if want := 2 + aabbExtension + aabbMultiplier*big.X; math.Abs(fat.UpperBound.X-want) > 1e-12 {
		t.Errorf("UpperBound.X = %v, want %v", fat.UpperBound.X, want)
	}
	if tree.UserData(id) != "a" {
		t.Errorf("UserData = %v", tree.UserData(id))
	}
}

func TestDynamicTreeRayCastClips(t *testing.T) {
	tree := NewDynamicTree()
	near := tree.CreateProxy(AABB{LowerBound: Vec2{2, -1}, UpperBound: Vec2{3, 1}}, nil)
	far := tree.CreateProxy(AABB{LowerBound: Vec2{6, -1}, UpperBound: Vec2{7, 1}}, nil)
	tree.CreateProxy(AABB{LowerBound: Vec2{2, 5}, UpperBound: Vec2{3, 6}}, nil)

	var hits []int
	tree.RayCast(func(input RayCastInput, id int) float64 {
		hits = append(hits, id)
		if id == near {
			// Clip the ray at the near box.
			return 0.25
		}
		return input.MaxFraction
	}, RayCastInput{P1: Vec2{0, 0}, P2: Vec2{10, 0}, MaxFraction: 1})

	if !slices.Contains(hits, near) {
		t.Fatalf("near box not reported: %v", hits)
	}
	if slices.Contains(hits[slices.Index(hits, near)+1:], far) {
		t.Errorf("far box reported after the ray was clipped: %v", hits)
	}
	if len(hits) > 2 {
		t.Errorf("off-axis box reported: %v", hits)
	}
}

func TestBroadPhasePairs(t *testing.T) {
	bp := NewBroadPhase()
	a := bp.CreateProxy(AABB{LowerBound: Vec2{0, 0}, UpperBound: Vec2{1, 1}}, "a")
	bp.CreateProxy(AABB{LowerBound: Vec2{0.5, 0.5}, UpperBound: Vec2{2, 2}}, "b")
	bp.CreateProxy(AABB{LowerBound: Vec2{10, 10}, UpperBound: Vec2{11, 11}}, "c")

	var pairs [][2]any
	bp.UpdatePairs(func(x, y any) { pairs = append(pairs, [2]any{x, y}) })
	if len(pairs) != 1 {
		t.Fatalf("pairs = %v, want a single a-b pair", pairs)
	}
	if bp.ProxyCount() != 3 {
		t.Errorf("ProxyCount = %d", bp.ProxyCount())
	}

	pairs = pairs[:0]
	bp.UpdatePairs(func(x, y any) { pairs = append(pairs, [2]any{x, y}) })
	if len(pairs) != 0 {
		t.Errorf("pairs repeated without movement: %v", pairs)
	}

	bp.TouchProxy(a)
	bp.UpdatePairs(func(x, y any) { pairs = append(pairs, [2]any{x, y}) })
	if len(pairs) != 1 {
		t.Errorf("touch produced %d pairs, want 1", len(pairs))
	}
}
