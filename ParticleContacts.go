package liquidbox

import (
	"cmp"
	"iter"
	"math"
	"slices"
	"sort"
)

// Particles are bucketed on a grid one diameter wide. A tag packs the
// row into the high bits and the column, with eight fractional bits,
// into the low bits, so sorting by tag sorts by row then column.
const (
	xTruncBits = 12
	yTruncBits = 12
	tagBits    = 32
	yOffset    = 1 << (yTruncBits - 1)
	yShift     = tagBits - yTruncBits
	xShift     = tagBits - yTruncBits - xTruncBits
	xScale     = 1 << xShift
	xOffset    = xScale * (1 << (xTruncBits - 1))
	yMask      = uint32((1<<yTruncBits)-1) << yShift
	xMask      = ^yMask
)

func computeTag(x, y float64) uint32 {
	return uint32(int64(y+yOffset))<<yShift + uint32(int64(xScale*x+xOffset))
}

func computeRelativeTag(tag uint32, x, y int32) uint32 {
	return tag + uint32(y<<yShift) + uint32(x<<xShift)
}

type particleProxy struct {
	index int
	tag   uint32
}

// ensureProxies retags and sorts the proxies when positions moved since
// the last sort.
func (ps *ParticleSystem) ensureProxies() {
	if !ps.proxiesStale {
		return
	}
	for i := range ps.proxies {
		p := ps.positions[ps.proxies[i].index]
		ps.proxies[i].tag = computeTag(ps.inverseDiameter*p.X, ps.inverseDiameter*p.Y)
	}
	slices.SortFunc(ps.proxies, func(a, b particleProxy) int {
		return cmp.Compare(a.tag, b.tag)
	})
	ps.proxiesStale = false
}

// proxyRange returns the proxies with lowerTag <= tag <= upperTag.
func (ps *ParticleSystem) proxyRange(lowerTag, upperTag uint32) (first, last int) {
	first = sort.Search(len(ps.proxies), func(i int) bool { return ps.proxies[i].tag >= lowerTag })
	last = sort.Search(len(ps.proxies), func(i int) bool { return ps.proxies[i].tag > upperTag })
	return first, max(first, last)
}

// insideBounds yields the particles in the grid cells covering aabb grown
// by one cell. It may yield particles slightly outside aabb.
func (ps *ParticleSystem) insideBounds(aabb AABB) iter.Seq[int] {
	lowerTag := computeTag(ps.inverseDiameter*aabb.LowerBound.X-1, ps.inverseDiameter*aabb.LowerBound.Y-1)
	upperTag := computeTag(ps.inverseDiameter*aabb.UpperBound.X+1, ps.inverseDiameter*aabb.UpperBound.Y+1)
	xLower := lowerTag & xMask
	xUpper := upperTag & xMask
	first, last := ps.proxyRange(lowerTag, upperTag)
	proxies := ps.proxies[first:last]
	return func(yield func(int) bool) {
		for _, proxy := range proxies {
			xTag := proxy.tag & xMask
			if xTag < xLower || xTag > xUpper {
				continue
			}
			if !yield(proxy.index) {
				return
			}
		}
	}
}

// updateContacts rebuilds the particle pairs closer than one diameter.
// Each proxy is compared with its right neighbours in the same row and
// with the three cells of the row below.
func (ps *ParticleSystem) updateContacts(exceptZombie bool) {
	ps.proxiesStale = true
	ps.ensureProxies()

	filter, _ := ps.world.contactManager.filter.(ParticleContactFilter)

	ps.contacts = ps.contacts[:0]
	proxies := ps.proxies
	c := 0
	for i := range proxies {
		a := proxies[i]
		rightTag := computeRelativeTag(a.tag, 1, 0)
		for j := i + 1; j < len(proxies); j++ {
			if rightTag < proxies[j].tag {
				break
			}
			ps.addContact(a.index, proxies[j].index, filter)
		}

		bottomLeftTag := computeRelativeTag(a.tag, -1, 1)
		for c < len(proxies) && proxies[c].tag < bottomLeftTag {
			c++
		}
		bottomRightTag := computeRelativeTag(a.tag, 1, 1)
		for j := c; j < len(proxies); j++ {
			if bottomRightTag < proxies[j].tag {
				break
			}
			ps.addContact(a.index, proxies[j].index, filter)
		}
	}

	if exceptZombie {
		ps.contacts = slices.DeleteFunc(ps.contacts, func(c ParticleContact) bool {
			return c.Flags&ZombieParticle != 0
		})
	}
}

func (ps *ParticleSystem) addContact(a, b int, filter ParticleContactFilter) {
	d := ps.positions[b].Sub(ps.positions[a])
	distSquared := d.Dot(d)
	if distSquared >= ps.squaredDiameter {
		return
	}

	flags := ps.flags[a] | ps.flags[b]
	if filter != nil && flags&ParticleParticleContactFilter != 0 &&
		!filter.ShouldCollideParticles(ps, a, b) {
		return
	}

	contact := ParticleContact{IndexA: a, IndexB: b, Flags: flags}
	dist := math.Sqrt(distSquared)
	if dist > epsilon {
		contact.Weight = 1.0 - dist*ps.inverseDiameter
		contact.Normal = d.Scale(1.0 / dist)
	} else {
		contact.Weight = 1.0
	}
	ps.contacts = append(ps.contacts, contact)
}

type fixtureParticle struct {
	fixture *Fixture
	index   int
}

// updateBodyContacts rebuilds the particle to fixture contacts from the
// fixtures overlapping the particles, and reports begin and end events
// for particles that asked for them.
func (ps *ParticleSystem) updateBodyContacts() {
	listener, _ := ps.world.contactManager.listener.(ParticleContactListener)

	var previous map[fixtureParticle]struct{}
	if listener != nil && ps.allParticleFlags&ParticleFixtureContactListener != 0 {
		previous = make(map[fixtureParticle]struct{})
		for _, c := range ps.bodyContacts {
			if ps.flags[c.Index]&ParticleFixtureContactListener != 0 {
				previous[fixtureParticle{c.Fixture, c.Index}] = struct{}{}
			}
		}
	}

	ps.bodyContacts = ps.bodyContacts[:0]
	if len(ps.positions) > 0 {
		ps.queryFixtures(ps.ComputeAABB(), ps.addBodyContact)
	}

	if previous == nil {
		return
	}
	for i := range ps.bodyContacts {
		c := &ps.bodyContacts[i]
		if ps.flags[c.Index]&ParticleFixtureContactListener == 0 {
			continue
		}
		key := fixtureParticle{c.Fixture, c.Index}
		if _, ok := previous[key]; ok {
			delete(previous, key)
			continue
		}
		listener.BeginParticleBodyContact(ps, c)
	}
	for key := range previous {
		listener.EndParticleBodyContact(key.fixture, ps, key.index)
	}
}

func (ps *ParticleSystem) addBodyContact(f *Fixture, childIndex, a int) {
	ap := ps.positions[a]
	d, n := f.shape.ComputeDistance(f.body.xf, ap, childIndex)
	if d >= ps.particleDiameter {
		return
	}

	b := f.body
	invAm := ps.particleInvMass()
	if ps.flags[a]&WallParticle != 0 {
		invAm = 0.0
	}
	rpn := ap.Sub(b.WorldCenter()).Cross(n)
	invM := invAm + b.invMass + b.invI*rpn*rpn

	contact := ParticleBodyContact{
		Index:   a,
		Body:    b,
		Fixture: f,
		Weight:  1.0 - d*ps.inverseDiameter,
		Normal:  n.Neg(),
	}
	if invM > 0.0 {
		contact.Mass = 1.0 / invM
	}
	ps.bodyContacts = append(ps.bodyContacts, contact)
}

// queryFixtures calls fn for every non-sensor fixture child overlapping
// aabb and every particle near that child that may collide with it.
func (ps *ParticleSystem) queryFixtures(aabb AABB, fn func(f *Fixture, childIndex, index int)) {
	filter, _ := ps.world.contactManager.filter.(ParticleContactFilter)
	bp := ps.world.contactManager.broadPhase
	bp.Query(func(proxyID int) bool {
		proxy := bp.UserData(proxyID).(*fixtureProxy)
		f := proxy.fixture
		if f.isSensor {
			return true
		}
		for index := range ps.insideBounds(f.AABB(proxy.childIndex)) {
			if filter != nil && ps.flags[index]&ParticleFixtureContactFilter != 0 &&
				!filter.ShouldCollideFixtureParticle(f, ps, index) {
				continue
			}
			fn(f, proxy.childIndex, index)
		}
		return true
	}, aabb)
}

// connectionFilter restricts which pairs and triads are created. Nil
// fields allow everything.
type connectionFilter struct {
	necessary func(index int) bool
	pair      func(a, b int) bool
	triad     func(a, b, c int) bool
}

func (f connectionFilter) isNecessary(index int) bool {
	return f.necessary == nil || f.necessary(index)
}

func (f connectionFilter) shouldCreatePair(a, b int) bool {
	return f.pair == nil || f.pair(a, b)
}

func (f connectionFilter) shouldCreateTriad(a, b, c int) bool {
	return f.triad == nil || f.triad(a, b, c)
}

func (ps *ParticleSystem) groupStrength(g *ParticleGroup) float64 {
	if g == nil {
		return 1.0
	}
	return g.strength
}

// updatePairsAndTriads connects particles in [firstIndex, lastIndex):
// springs and barriers from the current contacts, triads from a local
// Delaunay triangulation.
func (ps *ParticleSystem) updatePairsAndTriads(firstIndex, lastIndex int, filter connectionFilter) {
	var particleFlags ParticleFlag
	for i := firstIndex; i < lastIndex; i++ {
		particleFlags |= ps.flags[i]
	}
	inRange := func(i int) bool { return firstIndex <= i && i < lastIndex }

	if particleFlags&pairFlags != 0 {
		for _, c := range ps.contacts {
			a, b := c.IndexA, c.IndexB
			flags := ps.flags[a] | ps.flags[b]
			if !inRange(a) || !inRange(b) || flags&ZombieParticle != 0 || flags&pairFlags == 0 {
				continue
			}
			if !(filter.isNecessary(a) || filter.isNecessary(b)) || !filter.shouldCreatePair(a, b) {
				continue
			}
			if a > b {
				a, b = b, a
			}
			ps.pairs = append(ps.pairs, particlePair{
				a:        a,
				b:        b,
				flags:    c.Flags,
				strength: math.Min(ps.groupStrength(ps.groups[a]), ps.groupStrength(ps.groups[b])),
				distance: Distance(ps.positions[a], ps.positions[b]),
			})
		}
		slices.SortFunc(ps.pairs, func(x, y particlePair) int {
			return cmp.Or(cmp.Compare(x.a, y.a), cmp.Compare(x.b, y.b))
		})
		ps.pairs = slices.CompactFunc(ps.pairs, func(x, y particlePair) bool {
			return x.a == y.a && x.b == y.b
		})
	}

	if particleFlags&triadFlags != 0 {
		var candidates []int
		for i := firstIndex; i < lastIndex; i++ {
			if ps.flags[i]&ZombieParticle == 0 && filter.isNecessary(i) {
				candidates = append(candidates, i)
			}
		}
		ps.triangulate(candidates, func(a, b, c int) {
			flags := ps.flags[a] | ps.flags[b] | ps.flags[c]
			if flags&triadFlags == 0 || !filter.shouldCreateTriad(a, b, c) {
				return
			}
			ps.addTriad(a, b, c, flags)
		})
		slices.SortFunc(ps.triads, func(x, y particleTriad) int {
			return cmp.Or(cmp.Compare(x.a, y.a), cmp.Compare(x.b, y.b), cmp.Compare(x.c, y.c))
		})
		ps.triads = slices.CompactFunc(ps.triads, func(x, y particleTriad) bool {
			return x.a == y.a && x.b == y.b && x.c == y.c
		})
	}
}

func (ps *ParticleSystem) addTriad(a, b, c int, flags ParticleFlag) {
	pa := ps.positions[a]
	pb := ps.positions[b]
	pc := ps.positions[c]
	maxDistanceSquared := maxTriadDistanceSquared * ps.squaredDiameter
	if DistanceSquared(pa, pb) >= maxDistanceSquared ||
		DistanceSquared(pb, pc) >= maxDistanceSquared ||
		DistanceSquared(pc, pa) >= maxDistanceSquared {
		return
	}

	strength := math.Min(ps.groupStrength(ps.groups[a]), math.Min(ps.groupStrength(ps.groups[b]), ps.groupStrength(ps.groups[c])))
	mid := pa.Add(pb).Add(pc).Scale(1.0 / 3.0)
	ps.triads = append(ps.triads, particleTriad{
		a:        a,
		b:        b,
		c:        c,
		flags:    flags,
		strength: strength,
		pa:       pa.Sub(mid),
		pb:       pb.Sub(mid),
		pc:       pc.Sub(mid),
	})
}

// triangulate reports the Delaunay triangles among candidates whose
// edges are shorter than the triad limit and whose circumradius is at
// most one diameter. Indices are reported in ascending order.
func (ps *ParticleSystem) triangulate(candidates []int, fn func(a, b, c int)) {
	if len(candidates) < 3 {
		return
	}

	cell := maxTriadDistance * ps.particleDiameter
	type cellKey struct{ x, y int }
	keyOf := func(p Vec2) cellKey {
		return cellKey{int(math.Floor(p.X / cell)), int(math.Floor(p.Y / cell))}
	}
	grid := make(map[cellKey][]int)
	for _, i := range candidates {
		k := keyOf(ps.positions[i])
		grid[k] = append(grid[k], i)
	}
	near := func(p Vec2, radius float64, yield func(int)) {
		lo := keyOf(p.Sub(Vec2{radius, radius}))
		hi := keyOf(p.Add(Vec2{radius, radius}))
		for x := lo.x; x <= hi.x; x++ {
			for y := lo.y; y <= hi.y; y++ {
				for _, i := range grid[cellKey{x, y}] {
					yield(i)
				}
			}
		}
	}

	maxEdgeSquared := maxTriadDistanceSquared * ps.squaredDiameter
	maxRadius := ps.particleDiameter
	var neighbours []int
	for _, a := range candidates {
		pa := ps.positions[a]
		neighbours = neighbours[:0]
		near(pa, cell, func(i int) {
			if i > a && DistanceSquared(pa, ps.positions[i]) < maxEdgeSquared {
				neighbours = append(neighbours, i)
			}
		})
		slices.Sort(neighbours)

		for j, b := range neighbours {
			pb := ps.positions[b]
			for _, c := range neighbours[j+1:] {
				pc := ps.positions[c]
				if DistanceSquared(pb, pc) >= maxEdgeSquared {
					continue
				}
				center, radiusSquared, ok := circumcircle(pa, pb, pc)
				if !ok || radiusSquared > maxRadius*maxRadius {
					continue
				}

				// Reject when another candidate lies strictly inside.
				empty := true
				tolerance := radiusSquared * 1e-6
				near(center, math.Sqrt(radiusSquared), func(i int) {
					if !empty || i == a || i == b || i == c {
						return
					}
					if DistanceSquared(center, ps.positions[i]) < radiusSquared-tolerance {
						empty = false
					}
				})
				if empty {
					fn(a, b, c)
				}
			}
		}
	}
}

// circumcircle returns the center and squared radius of the circle
// through a, b and c. ok is false for collinear points.
func circumcircle(a, b, c Vec2) (center Vec2, radiusSquared float64, ok bool) {
	ab := b.Sub(a)
	ac := c.Sub(a)
	d := 2.0 * ab.Cross(ac)
	if math.Abs(d) < epsilon {
		return Vec2{}, 0.0, false
	}
	abLen := ab.Dot(ab)
	acLen := ac.Dot(ac)
	offset := Vec2{
		X: (ac.Y*abLen - ab.Y*acLen) / d,
		Y: (ab.X*acLen - ac.X*abLen) / d,
	}
	return a.Add(offset), offset.Dot(offset), true
}

// rotateBuffer rotates the particles in [start, end) so that those in
// [mid, end) come first, and remaps every stored index.
func (ps *ParticleSystem) rotateBuffer(start, mid, end int) {
	if start == mid || mid == end {
		return
	}
	assert(start <= mid && mid <= end && end <= ps.ParticleCount())

	newIndex := func(i int) int {
		switch {
		case i < start:
			return i
		case i < mid:
			return i + end - mid
		case i < end:
			return i + start - mid
		}
		return i
	}

	rotate(ps.flags, start, mid, end)
	rotate(ps.positions, start, mid, end)
	rotate(ps.velocities, start, mid, end)
	rotate(ps.forces, start, mid, end)
	rotate(ps.staticPressures, start, mid, end)
	rotate(ps.depths, start, mid, end)
	rotate(ps.colors, start, mid, end)
	rotate(ps.groups, start, mid, end)
	rotate(ps.userData, start, mid, end)
	rotate(ps.expirations, start, mid, end)
	rotate(ps.created, start, mid, end)

	for i := range ps.proxies {
		ps.proxies[i].index = newIndex(ps.proxies[i].index)
	}
	for i := range ps.contacts {
		ps.contacts[i].IndexA = newIndex(ps.contacts[i].IndexA)
		ps.contacts[i].IndexB = newIndex(ps.contacts[i].IndexB)
	}
	for i := range ps.bodyContacts {
		ps.bodyContacts[i].Index = newIndex(ps.bodyContacts[i].Index)
	}
	for i := range ps.pairs {
		p := &ps.pairs[i]
		p.a, p.b = newIndex(p.a), newIndex(p.b)
		if p.a > p.b {
			p.a, p.b = p.b, p.a
		}
	}
	for i := range ps.triads {
		t := &ps.triads[i]
		t.a, t.b, t.c = newIndex(t.a), newIndex(t.b), newIndex(t.c)
	}
	for g := ps.groupList; g != nil; g = g.next {
		if g.firstIndex < g.lastIndex {
			g.firstIndex = newIndex(g.firstIndex)
			g.lastIndex = newIndex(g.lastIndex-1) + 1
		}
	}
	ps.proxiesStale = true
}

func rotate[T any](s []T, start, mid, end int) {
	slices.Reverse(s[start:mid])
	slices.Reverse(s[mid:end])
	slices.Reverse(s[start:end])
}

// solveZombie removes zombie particles, compacting every buffer and
// remapping stored indices, then destroys groups left empty.
func (ps *ParticleSystem) solveZombie() {
	count := ps.ParticleCount()
	newIndices := stackAlloc[int](ps.world.stack, count)
	defer stackFree(ps.world.stack, newIndices)

	listener := ps.world.destructionListener
	newCount := 0
	var allFlags ParticleFlag
	for i := 0; i < count; i++ {
		flags := ps.flags[i]
		if flags&ZombieParticle != 0 {
			if listener != nil && flags&ParticleDestructionListener != 0 {
				listener.SayGoodbyeParticle(ps, i)
			}
			newIndices.Items[i] = -1
			continue
		}
		newIndices.Items[i] = newCount
		if i != newCount {
			ps.flags[newCount] = ps.flags[i]
			ps.positions[newCount] = ps.positions[i]
			ps.velocities[newCount] = ps.velocities[i]
			ps.forces[newCount] = ps.forces[i]
			ps.staticPressures[newCount] = ps.staticPressures[i]
			ps.depths[newCount] = ps.depths[i]
			ps.colors[newCount] = ps.colors[i]
			ps.groups[newCount] = ps.groups[i]
			ps.userData[newCount] = ps.userData[i]
			ps.expirations[newCount] = ps.expirations[i]
			ps.created[newCount] = ps.created[i]
		}
		newCount++
		allFlags |= flags
	}
	if newCount == count {
		ps.destroyMarkedGroups()
		return
	}
	remap := newIndices.Items

	ps.proxies = slices.DeleteFunc(ps.proxies, func(p particleProxy) bool {
		return remap[p.index] < 0
	})
	for i := range ps.proxies {
		ps.proxies[i].index = remap[ps.proxies[i].index]
	}

	ps.contacts = slices.DeleteFunc(ps.contacts, func(c ParticleContact) bool {
		return remap[c.IndexA] < 0 || remap[c.IndexB] < 0
	})
	for i := range ps.contacts {
		ps.contacts[i].IndexA = remap[ps.contacts[i].IndexA]
		ps.contacts[i].IndexB = remap[ps.contacts[i].IndexB]
	}

	ps.bodyContacts = slices.DeleteFunc(ps.bodyContacts, func(c ParticleBodyContact) bool {
		return remap[c.Index] < 0
	})
	for i := range ps.bodyContacts {
		ps.bodyContacts[i].Index = remap[ps.bodyContacts[i].Index]
	}

	ps.pairs = slices.DeleteFunc(ps.pairs, func(p particlePair) bool {
		return remap[p.a] < 0 || remap[p.b] < 0
	})
	for i := range ps.pairs {
		ps.pairs[i].a = remap[ps.pairs[i].a]
		ps.pairs[i].b = remap[ps.pairs[i].b]
	}

	ps.triads = slices.DeleteFunc(ps.triads, func(t particleTriad) bool {
		return remap[t.a] < 0 || remap[t.b] < 0 || remap[t.c] < 0
	})
	for i := range ps.triads {
		t := &ps.triads[i]
		t.a, t.b, t.c = remap[t.a], remap[t.b], remap[t.c]
	}

	for g := ps.groupList; g != nil; g = g.next {
		firstIndex := newCount
		lastIndex := 0
		modified := false
		for i := g.firstIndex; i < g.lastIndex; i++ {
			j := remap[i]
			if j >= 0 {
				firstIndex = min(firstIndex, j)
				lastIndex = max(lastIndex, j+1)
			} else {
				modified = true
			}
		}
		if firstIndex < lastIndex {
			g.firstIndex = firstIndex
			g.lastIndex = lastIndex
			if modified && g.groupFlags&SolidParticleGroup != 0 {
				g.groupFlags |= groupNeedsUpdateDepth
			}
		} else {
			g.firstIndex = 0
			g.lastIndex = 0
			if g.groupFlags&ParticleGroupCanBeEmpty == 0 {
				g.groupFlags |= groupWillBeDestroyed
			}
		}
		g.timestamp = ps.timestamp - 1
	}

	ps.truncate(newCount)
	ps.allParticleFlags = allFlags
	ps.proxiesStale = true
	ps.destroyMarkedGroups()
}

func (ps *ParticleSystem) destroyMarkedGroups() {
	for g := ps.groupList; g != nil; {
		next := g.next
		if g.groupFlags&groupWillBeDestroyed != 0 {
			ps.destroyGroup(g)
		}
		g = next
	}
	ps.updateAllGroupFlags()
}

// truncate shortens every per-particle buffer to n.
func (ps *ParticleSystem) truncate(n int) {
	clear(ps.groups[n:])
	clear(ps.userData[n:])
	ps.flags = ps.flags[:n]
	ps.positions = ps.positions[:n]
	ps.velocities = ps.velocities[:n]
	ps.forces = ps.forces[:n]
	ps.staticPressures = ps.staticPressures[:n]
	ps.depths = ps.depths[:n]
	ps.colors = ps.colors[:n]
	ps.groups = ps.groups[:n]
	ps.userData = ps.userData[:n]
	ps.expirations = ps.expirations[:n]
	ps.created = ps.created[:n]
	ps.weights = ps.weights[:min(n, len(ps.weights))]
	ps.accumulations = ps.accumulations[:min(n, len(ps.accumulations))]
	ps.accumulations2 = ps.accumulations2[:min(n, len(ps.accumulations2))]
	if n == 0 {
		ps.proxies = ps.proxies[:0]
	}
}
