package liquidbox

// contactManager owns the contacts of a world and keeps them in step
// with the broad-phase.
type contactManager struct {
	broadPhase *BroadPhase
	contacts   registry[*Contact]
	pool       *blockPool[Contact]
	filter     ContactFilter
	listener   ContactListener
}

func newContactManager() *contactManager {
	return &contactManager{
		broadPhase: NewBroadPhase(),
		pool:       newBlockPool[Contact](),
		filter:     DefaultContactFilter{},
	}
}

// destroy unlinks c from the bodies, fires EndContact when it was
// touching, and returns it to the pool.
func (mgr *contactManager) destroy(c *Contact) {
	fixtureA := c.fixtureA
	fixtureB := c.fixtureB
	bodyA := fixtureA.body
	bodyB := fixtureB.body

	if mgr.listener != nil && c.IsTouching() {
		mgr.listener.EndContact(c)
	}

	mgr.contacts.Remove(c.handle)

	// Remove from body A.
	if c.nodeA.Prev != nil {
		c.nodeA.Prev.Next = c.nodeA.Next
	}
	if c.nodeA.Next != nil {
		c.nodeA.Next.Prev = c.nodeA.Prev
	}
	if &c.nodeA == bodyA.contactList {
		bodyA.contactList = c.nodeA.Next
	}

	// Remove from body B.
	if c.nodeB.Prev != nil {
		c.nodeB.Prev.Next = c.nodeB.Next
	}
	if c.nodeB.Next != nil {
		c.nodeB.Next.Prev = c.nodeB.Prev
	}
	if &c.nodeB == bodyB.contactList {
		bodyB.contactList = c.nodeB.Next
	}

	if c.manifold.PointCount > 0 && !fixtureA.isSensor && !fixtureB.isSensor {
		bodyA.SetAwake(true)
		bodyB.SetAwake(true)
	}

	mgr.pool.Put(c)
}

// collide is the narrow phase for the step: it refilters flagged
// contacts, drops contacts whose fat AABBs separated, and updates the
// rest.
func (mgr *contactManager) collide() {
	for c := range mgr.contacts.All() {
		fixtureA := c.fixtureA
		fixtureB := c.fixtureB
		bodyA := fixtureA.body
		bodyB := fixtureB.body

		if c.flags&contactFilter != 0 {
			if !bodyB.ShouldCollide(bodyA) || !mgr.filter.ShouldCollide(fixtureA, fixtureB) {
				mgr.destroy(c)
				continue
			}
			c.flags &^= contactFilter
		}

		activeA := bodyA.IsAwake() && bodyA.typ != StaticBody
		activeB := bodyB.IsAwake() && bodyB.typ != StaticBody

		// At least one body must be awake and it must be dynamic or
		// kinematic.
		if !activeA && !activeB {
			continue
		}

		proxyIDA := fixtureA.proxies[c.indexA].proxyID
		proxyIDB := fixtureB.proxies[c.indexB].proxyID
		if !mgr.broadPhase.TestOverlap(proxyIDA, proxyIDB) {
			mgr.destroy(c)
			continue
		}

		c.update(mgr.listener)
	}
}

func (mgr *contactManager) findNewContacts() {
	mgr.broadPhase.UpdatePairs(mgr.addPair)
}

// addPair is the broad-phase pair callback.
func (mgr *contactManager) addPair(userDataA, userDataB any) {
	proxyA := userDataA.(*fixtureProxy)
	proxyB := userDataB.(*fixtureProxy)

	fixtureA := proxyA.fixture
	fixtureB := proxyB.fixture
	indexA := proxyA.childIndex
	indexB := proxyB.childIndex
	bodyA := fixtureA.body
	bodyB := fixtureB.body

	if bodyA == bodyB {
		return
	}

	// Does a contact already exist?
	for edge := bodyB.contactList; edge != nil; edge = edge.Next {
		if edge.Other != bodyA {
			continue
		}
		c := edge.Contact
		if c.fixtureA == fixtureA && c.fixtureB == fixtureB && c.indexA == indexA && c.indexB == indexB {
			return
		}
		if c.fixtureA == fixtureB && c.fixtureB == fixtureA && c.indexA == indexB && c.indexB == indexA {
			return
		}
	}

	if !bodyB.ShouldCollide(bodyA) {
		return
	}
	if !mgr.filter.ShouldCollide(fixtureA, fixtureB) {
		return
	}

	reg := contactRegisters[fixtureA.shape.Type()][fixtureB.shape.Type()]
	if reg.evaluate == nil {
		return
	}
	if !reg.primary {
		fixtureA, fixtureB = fixtureB, fixtureA
		indexA, indexB = indexB, indexA
		bodyA, bodyB = bodyB, bodyA
	}

	c := mgr.pool.Get()
	c.init(fixtureA, indexA, fixtureB, indexB, reg.evaluate)
	c.handle = mgr.contacts.Insert(c)

	// Connect to body A.
	c.nodeA.Contact = c
	c.nodeA.Other = bodyB
	c.nodeA.Prev = nil
	c.nodeA.Next = bodyA.contactList
	if bodyA.contactList != nil {
		bodyA.contactList.Prev = &c.nodeA
	}
	bodyA.contactList = &c.nodeA

	// Connect to body B.
	c.nodeB.Contact = c
	c.nodeB.Other = bodyA
	c.nodeB.Prev = nil
	c.nodeB.Next = bodyB.contactList
	if bodyB.contactList != nil {
		bodyB.contactList.Prev = &c.nodeB
	}
	bodyB.contactList = &c.nodeB

	if !fixtureA.isSensor && !fixtureB.isSensor {
		bodyA.SetAwake(true)
		bodyB.SetAwake(true)
	}
}
