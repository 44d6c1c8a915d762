package liquidbox

import (
	"cmp"
	"slices"
)

// AddPairCallback receives the user data of two newly overlapping proxies.
type AddPairCallback func(userDataA, userDataB any)

type proxyPair struct {
	proxyIDA int
	proxyIDB int
}

const nullProxy = -1

// BroadPhase tracks moved proxies and turns their overlaps into a sorted,
// deduplicated stream of candidate pairs.
type BroadPhase struct {
	tree       *DynamicTree
	proxyCount int

	moveBuffer []int
	pairBuffer []proxyPair

	queryProxyID int
}

func NewBroadPhase() *BroadPhase {
	return &BroadPhase{
		tree:       NewDynamicTree(),
		moveBuffer: make([]int, 0, 16),
		pairBuffer: make([]proxyPair, 0, 16),
	}
}

// CreateProxy adds a proxy and schedules it for pairing on the next update.
func (bp *BroadPhase) CreateProxy(aabb AABB, userData any) int {
	proxyID := bp.tree.CreateProxy(aabb, userData)
	bp.proxyCount++
	bp.bufferMove(proxyID)
	return proxyID
}

func (bp *BroadPhase) DestroyProxy(proxyID int) {
	bp.unbufferMove(proxyID)
	bp.proxyCount--
	bp.tree.DestroyProxy(proxyID)
}

// MoveProxy should be called whenever the proxy's object moves.
func (bp *BroadPhase) MoveProxy(proxyID int, aabb AABB, displacement Vec2) {
	if bp.tree.MoveProxy(proxyID, aabb, displacement) {
		bp.bufferMove(proxyID)
	}
}

// TouchProxy forces a re-pairing of the proxy on the next update.
func (bp *BroadPhase) TouchProxy(proxyID int) {
	bp.bufferMove(proxyID)
}

func (bp *BroadPhase) bufferMove(proxyID int) {
	bp.moveBuffer = append(bp.moveBuffer, proxyID)
}

func (bp *BroadPhase) unbufferMove(proxyID int) {
	for i, id := range bp.moveBuffer {
		if id == proxyID {
			bp.moveBuffer[i] = nullProxy
		}
	}
}

func (bp *BroadPhase) FatAABB(proxyID int) AABB {
	return bp.tree.FatAABB(proxyID)
}

func (bp *BroadPhase) UserData(proxyID int) any {
	return bp.tree.UserData(proxyID)
}

// TestOverlap compares the fat AABBs of two proxies.
func (bp *BroadPhase) TestOverlap(proxyIDA, proxyIDB int) bool {
	return TestOverlapAABB(bp.tree.FatAABB(proxyIDA), bp.tree.FatAABB(proxyIDB))
}

func (bp *BroadPhase) ProxyCount() int {
	return bp.proxyCount
}

func (bp *BroadPhase) TreeHeight() int {
	return bp.tree.Height()
}

func (bp *BroadPhase) TreeBalance() int {
	return bp.tree.MaxBalance()
}

func (bp *BroadPhase) TreeQuality() float64 {
	return bp.tree.AreaRatio()
}

// UpdatePairs queries the tree with every moved proxy and reports each
// new overlapping pair once.
func (bp *BroadPhase) UpdatePairs(callback AddPairCallback) {
	bp.pairBuffer = bp.pairBuffer[:0]

	for _, proxyID := range bp.moveBuffer {
		bp.queryProxyID = proxyID
		if proxyID == nullProxy {
			continue
		}
		// Query the tree with the fat AABB so we don't fail to create a
		// pair that may touch later.
		bp.tree.Query(bp.queryCallback, bp.tree.FatAABB(proxyID))
	}
	bp.moveBuffer = bp.moveBuffer[:0]

	slices.SortFunc(bp.pairBuffer, func(a, b proxyPair) int {
		if c := cmp.Compare(a.proxyIDA, b.proxyIDA); c != 0 {
			return c
		}
		return cmp.Compare(a.proxyIDB, b.proxyIDB)
	})

	// Send the pairs back to the client, skipping duplicates.
	for i := 0; i < len(bp.pairBuffer); {
		primary := bp.pairBuffer[i]
		callback(bp.tree.UserData(primary.proxyIDA), bp.tree.UserData(primary.proxyIDB))
		i++
		for i < len(bp.pairBuffer) && bp.pairBuffer[i] == primary {
			i++
		}
	}
}

func (bp *BroadPhase) queryCallback(proxyID int) bool {
	// A proxy cannot form a pair with itself.
	if proxyID == bp.queryProxyID {
		return true
	}
	bp.pairBuffer = append(bp.pairBuffer, proxyPair{
		proxyIDA: min(proxyID, bp.queryProxyID),
		proxyIDB: max(proxyID, bp.queryProxyID),
	})
	return true
}

func (bp *BroadPhase) Query(callback TreeQueryCallback, aabb AABB) {
	bp.tree.Query(callback, aabb)
}

func (bp *BroadPhase) RayCast(callback TreeRayCastCallback, input RayCastInput) {
	bp.tree.RayCast(callback, input)
}

func (bp *BroadPhase) ShiftOrigin(newOrigin Vec2) {
	bp.tree.ShiftOrigin(newOrigin)
}
