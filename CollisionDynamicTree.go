package liquidbox

import (
	"math"
)

// TreeQueryCallback is called for each leaf overlapping the query box.
// Return false to stop the query.
type TreeQueryCallback func(proxyID int) bool

// TreeRayCastCallback is called for each leaf the ray may hit. It returns
// the new max fraction: 0 terminates, a positive value clips the ray, and
// a negative value ignores the proxy.
type TreeRayCastCallback func(input RayCastInput, proxyID int) float64

const nullNode = -1

type treeNode struct {
	// Enlarged AABB.
	aabb     AABB
	userData any

	// parent links the tree; next links the free list.
	parent int
	next   int

	child1 int
	child2 int

	// leaf = 0, free node = -1
	height int
}

func (n *treeNode) isLeaf() bool {
	return n.child1 == nullNode
}

// DynamicTree is a bounding volume hierarchy over proxy AABBs. Leaf boxes
// are fattened so a proxy can move a little without restructuring the
// tree. Nodes are pooled in a slice and addressed by index.
type DynamicTree struct {
	root     int
	nodes    []treeNode
	count    int
	freeList int

	insertionCount int

	stack *growableStack[int]
}

func NewDynamicTree() *DynamicTree {
	tree := &DynamicTree{
		root:  nullNode,
		stack: newGrowableStack[int](256),
	}
	tree.nodes = make([]treeNode, 16)
	tree.linkFree(0)
	return tree
}

// linkFree threads nodes[from:] into the free list.
func (tree *DynamicTree) linkFree(from int) {
	n := len(tree.nodes)
	for i := from; i < n-1; i++ {
		tree.nodes[i].next = i + 1
		tree.nodes[i].height = -1
	}
	tree.nodes[n-1].next = nullNode
	tree.nodes[n-1].height = -1
	tree.freeList = from
}

func (tree *DynamicTree) allocateNode() int {
	if tree.freeList == nullNode {
		assert(tree.count == len(tree.nodes))
		old := len(tree.nodes)
		tree.nodes = append(tree.nodes, make([]treeNode, old)...)
		tree.linkFree(old)
	}

	id := tree.freeList
	node := &tree.nodes[id]
	tree.freeList = node.next
	node.parent = nullNode
	node.child1 = nullNode
	node.child2 = nullNode
	node.height = 0
	node.userData = nil
	tree.count++
	return id
}

func (tree *DynamicTree) freeNode(id int) {
	assert(0 <= id && id < len(tree.nodes))
	assert(0 < tree.count)
	tree.nodes[id].next = tree.freeList
	tree.nodes[id].height = -1
	tree.nodes[id].userData = nil
	tree.freeList = id
	tree.count--
}

// CreateProxy inserts a fattened copy of aabb and returns the proxy id.
func (tree *DynamicTree) CreateProxy(aabb AABB, userData any) int {
	id := tree.allocateNode()
	node := &tree.nodes[id]
	node.aabb = aabb.Extend(aabbExtension)
	node.userData = userData
	node.height = 0

	tree.insertLeaf(id)
	return id
}

func (tree *DynamicTree) DestroyProxy(proxyID int) {
	assert(0 <= proxyID && proxyID < len(tree.nodes))
	assert(tree.nodes[proxyID].isLeaf())

	tree.removeLeaf(proxyID)
	tree.freeNode(proxyID)
}

// MoveProxy updates a proxy whose object moved by displacement. It
// reinserts the leaf only when aabb escapes the fat box and reports
// whether it did.
func (tree *DynamicTree) MoveProxy(proxyID int, aabb AABB, displacement Vec2) bool {
	assert(0 <= proxyID && proxyID < len(tree.nodes))
	assert(tree.nodes[proxyID].isLeaf())

	if tree.nodes[proxyID].aabb.Contains(aabb) {
		return false
	}

	tree.removeLeaf(proxyID)

	// Extend the box and predict its motion.
	b := aabb.Extend(aabbExtension)
	d := displacement.Scale(aabbMultiplier)
	if d.X < 0.0 {
		b.LowerBound.X += d.X
	} else {
		b.UpperBound.X += d.X
	}
	if d.Y < 0.0 {
		b.LowerBound.Y += d.Y
	} else {
		b.UpperBound.Y += d.Y
	}
	tree.nodes[proxyID].aabb = b

	tree.insertLeaf(proxyID)
	return true
}

func (tree *DynamicTree) UserData(proxyID int) any {
	assert(0 <= proxyID && proxyID < len(tree.nodes))
	return tree.nodes[proxyID].userData
}

func (tree *DynamicTree) FatAABB(proxyID int) AABB {
	assert(0 <= proxyID && proxyID < len(tree.nodes))
	return tree.nodes[proxyID].aabb
}

func (tree *DynamicTree) insertLeaf(leaf int) {
	tree.insertionCount++

	if tree.root == nullNode {
		tree.root = leaf
		tree.nodes[tree.root].parent = nullNode
		return
	}

	// Find the best sibling for this node.
	leafAABB := tree.nodes[leaf].aabb
	index := tree.root
	for !tree.nodes[index].isLeaf() {
		child1 := tree.nodes[index].child1
		child2 := tree.nodes[index].child2

		area := tree.nodes[index].aabb.Perimeter()
		combinedArea := tree.nodes[index].aabb.Combine(leafAABB).Perimeter()

		// Cost of creating a new parent for this node and the new leaf.
		cost := 2.0 * combinedArea

		// Minimum cost of pushing the leaf further down the tree.
		inheritanceCost := 2.0 * (combinedArea - area)

		cost1 := tree.descendCost(child1, leafAABB) + inheritanceCost
		cost2 := tree.descendCost(child2, leafAABB) + inheritanceCost

		if cost < cost1 && cost < cost2 {
			break
		}
		if cost1 < cost2 {
			index = child1
		} else {
			index = child2
		}
	}

	sibling := index

	// Create a new parent.
	oldParent := tree.nodes[sibling].parent
	newParent := tree.allocateNode()
	tree.nodes[newParent].parent = oldParent
	tree.nodes[newParent].aabb = leafAABB.Combine(tree.nodes[sibling].aabb)
	tree.nodes[newParent].height = tree.nodes[sibling].height + 1

	if oldParent != nullNode {
		// The sibling was not the root.
		if tree.nodes[oldParent].child1 == sibling {
			tree.nodes[oldParent].child1 = newParent
		} else {
			tree.nodes[oldParent].child2 = newParent
		}
	} else {
		tree.root = newParent
	}
	tree.nodes[newParent].child1 = sibling
	tree.nodes[newParent].child2 = leaf
	tree.nodes[sibling].parent = newParent
	tree.nodes[leaf].parent = newParent

	// Walk back up the tree fixing heights and AABBs.
	tree.refit(tree.nodes[leaf].parent)
}

// descendCost is the cost of inserting leafAABB below child.
func (tree *DynamicTree) descendCost(child int, leafAABB AABB) float64 {
	node := &tree.nodes[child]
	combined := leafAABB.Combine(node.aabb).Perimeter()
	if node.isLeaf() {
		return combined
	}
	return combined - node.aabb.Perimeter()
}

// refit walks from index to the root, balancing and recomputing boxes.
func (tree *DynamicTree) refit(index int) {
	for index != nullNode {
		index = tree.balance(index)

		child1 := tree.nodes[index].child1
		child2 := tree.nodes[index].child2
		assert(child1 != nullNode && child2 != nullNode)

		tree.nodes[index].height = 1 + max(tree.nodes[child1].height, tree.nodes[child2].height)
		tree.nodes[index].aabb = tree.nodes[child1].aabb.Combine(tree.nodes[child2].aabb)

		index = tree.nodes[index].parent
	}
}

func (tree *DynamicTree) removeLeaf(leaf int) {
	if leaf == tree.root {
		tree.root = nullNode
		return
	}

	parent := tree.nodes[leaf].parent
	grandParent := tree.nodes[parent].parent
	sibling := tree.nodes[parent].child1
	if sibling == leaf {
		sibling = tree.nodes[parent].child2
	}

	if grandParent == nullNode {
		tree.root = sibling
		tree.nodes[sibling].parent = nullNode
		tree.freeNode(parent)
		return
	}

	// Destroy parent and connect sibling to grandParent.
	if tree.nodes[grandParent].child1 == parent {
		tree.nodes[grandParent].child1 = sibling
	} else {
		tree.nodes[grandParent].child2 = sibling
	}
	tree.nodes[sibling].parent = grandParent
	tree.freeNode(parent)

	tree.refit(grandParent)
}

// balance performs a left or right rotation if node A is imbalanced and
// returns the new root of the subtree.
func (tree *DynamicTree) balance(iA int) int {
	assert(iA != nullNode)

	A := &tree.nodes[iA]
	if A.isLeaf() || A.height < 2 {
		return iA
	}

	iB := A.child1
	iC := A.child2
	B := &tree.nodes[iB]
	C := &tree.nodes[iC]

	bal := C.height - B.height

	// Rotate C up.
	if bal > 1 {
		iF := C.child1
		iG := C.child2
		F := &tree.nodes[iF]
		G := &tree.nodes[iG]

		// Swap A and C.
		C.child1 = iA
		C.parent = A.parent
		A.parent = iC

		// A's old parent should point to C.
		if C.parent != nullNode {
			if tree.nodes[C.parent].child1 == iA {
				tree.nodes[C.parent].child1 = iC
			} else {
				assert(tree.nodes[C.parent].child2 == iA)
				tree.nodes[C.parent].child2 = iC
			}
		} else {
			tree.root = iC
		}

		// Rotate.
		if F.height > G.height {
			C.child2 = iF
			A.child2 = iG
			G.parent = iA
			A.aabb = B.aabb.Combine(G.aabb)
			C.aabb = A.aabb.Combine(F.aabb)
			A.height = 1 + max(B.height, G.height)
			C.height = 1 + max(A.height, F.height)
		} else {
			C.child2 = iG
			A.child2 = iF
			F.parent = iA
			A.aabb = B.aabb.Combine(F.aabb)
			C.aabb = A.aabb.Combine(G.aabb)
			A.height = 1 + max(B.height, F.height)
			C.height = 1 + max(A.height, G.height)
		}
		return iC
	}

	// Rotate B up.
	if bal < -1 {
		iD := B.child1
		iE := B.child2
		D := &tree.nodes[iD]
		E := &tree.nodes[iE]

		// Swap A and B.
		B.child1 = iA
		B.parent = A.parent
		A.parent = iB

		// A's old parent should point to B.
		if B.parent != nullNode {
			if tree.nodes[B.parent].child1 == iA {
				tree.nodes[B.parent].child1 = iB
			} else {
				assert(tree.nodes[B.parent].child2 == iA)
				tree.nodes[B.parent].child2 = iB
			}
		} else {
			tree.root = iB
		}

		// Rotate.
		if D.height > E.height {
			B.child2 = iD
			A.child1 = iE
			E.parent = iA
			A.aabb = C.aabb.Combine(E.aabb)
			B.aabb = A.aabb.Combine(D.aabb)
			A.height = 1 + max(C.height, E.height)
			B.height = 1 + max(A.height, D.height)
		} else {
			B.child2 = iE
			A.child1 = iD
			D.parent = iA
			A.aabb = C.aabb.Combine(D.aabb)
			B.aabb = A.aabb.Combine(E.aabb)
			A.height = 1 + max(C.height, D.height)
			B.height = 1 + max(A.height, E.height)
		}
		return iB
	}

	return iA
}

// Height returns the height of the tree; an empty tree has height 0.
func (tree *DynamicTree) Height() int {
	if tree.root == nullNode {
		return 0
	}
	return tree.nodes[tree.root].height
}

// AreaRatio is the sum of node perimeters over the root perimeter, a
// SAH-like quality measure: lower is better.
func (tree *DynamicTree) AreaRatio() float64 {
	if tree.root == nullNode {
		return 0.0
	}

	rootArea := tree.nodes[tree.root].aabb.Perimeter()
	totalArea := 0.0
	for i := range tree.nodes {
		node := &tree.nodes[i]
		if node.height < 0 {
			// Free node in pool.
			continue
		}
		totalArea += node.aabb.Perimeter()
	}
	return totalArea / rootArea
}

// MaxBalance returns the largest height difference between two siblings.
func (tree *DynamicTree) MaxBalance() int {
	maxBalance := 0
	for i := range tree.nodes {
		node := &tree.nodes[i]
		if node.height <= 1 {
			continue
		}
		assert(!node.isLeaf())
		balance := abs(tree.nodes[node.child2].height - tree.nodes[node.child1].height)
		maxBalance = max(maxBalance, balance)
	}
	return maxBalance
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// computeHeight recomputes a subtree height from scratch.
func (tree *DynamicTree) computeHeight(nodeID int) int {
	node := &tree.nodes[nodeID]
	if node.isLeaf() {
		return 0
	}
	return 1 + max(tree.computeHeight(node.child1), tree.computeHeight(node.child2))
}

// Validate checks the tree structure and metrics and panics on damage.
func (tree *DynamicTree) Validate() {
	tree.validateStructure(tree.root)
	tree.validateMetrics(tree.root)

	freeCount := 0
	for freeIndex := tree.freeList; freeIndex != nullNode; freeIndex = tree.nodes[freeIndex].next {
		assert(0 <= freeIndex && freeIndex < len(tree.nodes))
		freeCount++
	}
	assert(tree.Height() == tree.computeHeightRoot())
	assert(tree.count+freeCount == len(tree.nodes))
}

func (tree *DynamicTree) computeHeightRoot() int {
	if tree.root == nullNode {
		return 0
	}
	return tree.computeHeight(tree.root)
}

func (tree *DynamicTree) validateStructure(index int) {
	if index == nullNode {
		return
	}
	if index == tree.root {
		assert(tree.nodes[index].parent == nullNode)
	}

	node := &tree.nodes[index]
	if node.isLeaf() {
		assert(node.child2 == nullNode && node.height == 0)
		return
	}

	assert(0 <= node.child1 && node.child1 < len(tree.nodes))
	assert(0 <= node.child2 && node.child2 < len(tree.nodes))
	assert(tree.nodes[node.child1].parent == index)
	assert(tree.nodes[node.child2].parent == index)

	tree.validateStructure(node.child1)
	tree.validateStructure(node.child2)
}

func (tree *DynamicTree) validateMetrics(index int) {
	if index == nullNode {
		return
	}

	node := &tree.nodes[index]
	if node.isLeaf() {
		assert(node.child2 == nullNode && node.height == 0)
		return
	}

	height1 := tree.nodes[node.child1].height
	height2 := tree.nodes[node.child2].height
	assert(node.height == 1+max(height1, height2))

	combined := tree.nodes[node.child1].aabb.Combine(tree.nodes[node.child2].aabb)
	assert(combined.LowerBound == node.aabb.LowerBound)
	assert(combined.UpperBound == node.aabb.UpperBound)

	tree.validateMetrics(node.child1)
	tree.validateMetrics(node.child2)
}

// RebuildBottomUp rebuilds an optimal tree from the current leaves. It is
// slow and meant for diagnostics.
func (tree *DynamicTree) RebuildBottomUp() {
	leaves := make([]int, 0, tree.count)

	// Collect leaves and free internal nodes.
	for i := range tree.nodes {
		if tree.nodes[i].height < 0 {
			continue
		}
		if tree.nodes[i].isLeaf() {
			tree.nodes[i].parent = nullNode
			leaves = append(leaves, i)
		} else {
			tree.freeNode(i)
		}
	}

	for len(leaves) > 1 {
		minCost := maxFloat
		iMin, jMin := -1, -1
		for i := 0; i < len(leaves); i++ {
			aabbi := tree.nodes[leaves[i]].aabb
			for j := i + 1; j < len(leaves); j++ {
				cost := aabbi.Combine(tree.nodes[leaves[j]].aabb).Perimeter()
				if cost < minCost {
					iMin, jMin = i, j
					minCost = cost
				}
			}
		}

		index1 := leaves[iMin]
		index2 := leaves[jMin]

		parentIndex := tree.allocateNode()
		parent := &tree.nodes[parentIndex]
		parent.child1 = index1
		parent.child2 = index2
		parent.height = 1 + max(tree.nodes[index1].height, tree.nodes[index2].height)
		parent.aabb = tree.nodes[index1].aabb.Combine(tree.nodes[index2].aabb)
		parent.parent = nullNode

		tree.nodes[index1].parent = parentIndex
		tree.nodes[index2].parent = parentIndex

		leaves[jMin] = leaves[len(leaves)-1]
		leaves[iMin] = parentIndex
		leaves = leaves[:len(leaves)-1]
	}

	if len(leaves) == 1 {
		tree.root = leaves[0]
	}
	tree.Validate()
}

// ShiftOrigin translates every node by -newOrigin.
func (tree *DynamicTree) ShiftOrigin(newOrigin Vec2) {
	for i := range tree.nodes {
		tree.nodes[i].aabb.LowerBound = tree.nodes[i].aabb.LowerBound.Sub(newOrigin)
		tree.nodes[i].aabb.UpperBound = tree.nodes[i].aabb.UpperBound.Sub(newOrigin)
	}
}

// Query calls callback for every proxy whose fat AABB overlaps aabb.
func (tree *DynamicTree) Query(callback TreeQueryCallback, aabb AABB) {
	stack := tree.stack
	base := stack.Count()
	stack.Push(tree.root)

	for stack.Count() > base {
		nodeID := stack.Pop()
		if nodeID == nullNode {
			continue
		}

		node := &tree.nodes[nodeID]
		if !TestOverlapAABB(node.aabb, aabb) {
			continue
		}
		if node.isLeaf() {
			if !callback(nodeID) {
				stack.items = stack.items[:base]
				return
			}
			continue
		}
		stack.Push(node.child1)
		stack.Push(node.child2)
	}
}

// RayCast calls callback for every proxy the ray might hit. The callback
// performs the exact test and controls the remaining ray length.
func (tree *DynamicTree) RayCast(callback TreeRayCastCallback, input RayCastInput) {
	p1 := input.P1
	p2 := input.P2
	r := p2.Sub(p1)
	assert(r.LengthSquared() > 0.0)
	r.Normalize()

	// v is perpendicular to the segment.
	v := CrossSV(1.0, r)
	absV := v.Abs()

	maxFraction := input.MaxFraction
	segmentAABB := segmentBox(p1, p2, maxFraction)

	stack := tree.stack
	base := stack.Count()
	stack.Push(tree.root)

	for stack.Count() > base {
		nodeID := stack.Pop()
		if nodeID == nullNode {
			continue
		}

		node := &tree.nodes[nodeID]
		if !TestOverlapAABB(node.aabb, segmentAABB) {
			continue
		}

		// Separating axis for segment (Gino, p80).
		// |dot(v, p1 - c)| > dot(|v|, h)
		c := node.aabb.Center()
		h := node.aabb.Extents()
		separation := math.Abs(v.Dot(p1.Sub(c))) - absV.Dot(h)
		if separation > 0.0 {
			continue
		}

		if !node.isLeaf() {
			stack.Push(node.child1)
			stack.Push(node.child2)
			continue
		}

		value := callback(RayCastInput{P1: p1, P2: p2, MaxFraction: maxFraction}, nodeID)
		if value == 0.0 {
			// The client has terminated the ray cast.
			stack.items = stack.items[:base]
			return
		}
		if value > 0.0 {
			maxFraction = value
			segmentAABB = segmentBox(p1, p2, maxFraction)
		}
	}
}

func segmentBox(p1, p2 Vec2, fraction float64) AABB {
	t := p1.Add(p2.Sub(p1).Scale(fraction))
	return AABB{LowerBound: Vec2Min(p1, t), UpperBound: Vec2Max(p1, t)}
}
