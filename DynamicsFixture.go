package liquidbox

import (
	"go.uber.org/zap"
)

// Filter holds contact filtering data.
type Filter struct {
	// The collision category bits. Normally you would just set one bit.
	CategoryBits uint16

	// The collision mask bits: the categories this shape accepts.
	MaskBits uint16

	// Fixtures in the same non-zero group always collide (positive) or
	// never collide (negative). Zero means no group; the bits decide.
	GroupIndex int16
}

func DefaultFilter() Filter {
	return Filter{CategoryBits: 0x0001, MaskBits: 0xFFFF}
}

// FixtureDef is used to create a fixture. The shape is cloned, so the
// definition may be reused. Use MakeFixtureDef for the defaults.
type FixtureDef struct {
	Shape       Shape
	UserData    any
	Friction    float64
	Restitution float64
	Density     float64 // usually in kg/m^2
	IsSensor    bool
	Filter      Filter
}

func MakeFixtureDef() FixtureDef {
	return FixtureDef{Friction: 0.2, Filter: DefaultFilter()}
}

// fixtureProxy connects a fixture child to the broad-phase.
type fixtureProxy struct {
	aabb       AABB
	fixture    *Fixture
	childIndex int
	proxyID    int
}

// Fixture attaches a shape to a body for collision detection. Fixtures
// are created with Body.CreateFixture.
type Fixture struct {
	body    *Body
	shape   Shape
	proxies []fixtureProxy
	live    int // proxies present in the broad-phase

	density     float64
	friction    float64
	restitution float64
	filter      Filter
	isSensor    bool

	userData any
}

func newFixture(body *Body, def *FixtureDef) *Fixture {
	if def.Shape == nil {
		violation(body.world.log, "Body.CreateFixture", ErrInvalidShape)
	}
	assert(def.Density >= 0.0)

	f := &Fixture{
		body:        body,
		shape:       def.Shape.Clone(),
		density:     def.Density,
		friction:    def.Friction,
		restitution: def.Restitution,
		filter:      def.Filter,
		isSensor:    def.IsSensor,
		userData:    def.UserData,
	}
	f.proxies = make([]fixtureProxy, f.shape.ChildCount())
	for i := range f.proxies {
		f.proxies[i].proxyID = nullProxy
	}
	return f
}

func (f *Fixture) Type() ShapeType {
	return f.shape.Type()
}

// Shape returns the fixture's own copy of the shape. Changing it does
// not update mass or the broad-phase.
func (f *Fixture) Shape() Shape {
	return f.shape
}

func (f *Fixture) Body() *Body {
	return f.body
}

func (f *Fixture) IsSensor() bool {
	return f.isSensor
}

// SetSensor switches sensor mode. Sensors detect overlap but generate no
// collision response.
func (f *Fixture) SetSensor(sensor bool) {
	if sensor != f.isSensor {
		f.body.SetAwake(true)
		f.isSensor = sensor
	}
}

func (f *Fixture) FilterData() Filter {
	return f.filter
}

// SetFilterData replaces the filter. Existing contacts are re-evaluated
// on the next step.
func (f *Fixture) SetFilterData(filter Filter) {
	f.filter = filter
	f.Refilter()
}

// Refilter flags the fixture's contacts for filtering and touches its
// proxies so new pairs may form.
func (f *Fixture) Refilter() {
	if f.body == nil {
		return
	}

	for edge := f.body.contactList; edge != nil; edge = edge.Next {
		c := edge.Contact
		if c.fixtureA == f || c.fixtureB == f {
			c.FlagForFiltering()
		}
	}

	w := f.body.world
	if w == nil {
		return
	}
	for i := 0; i < f.live; i++ {
		w.contactManager.broadPhase.TouchProxy(f.proxies[i].proxyID)
	}
}

func (f *Fixture) UserData() any {
	return f.userData
}

func (f *Fixture) SetUserData(data any) {
	f.userData = data
}

func (f *Fixture) Density() float64 {
	return f.density
}

// SetDensity changes the density. Call Body.ResetMassData to apply it.
func (f *Fixture) SetDensity(density float64) {
	assert(IsValid(density) && density >= 0.0)
	f.density = density
}

func (f *Fixture) Friction() float64 {
	return f.friction
}

// SetFriction does not change existing contacts until they are
// recreated.
func (f *Fixture) SetFriction(friction float64) {
	f.friction = friction
}

func (f *Fixture) Restitution() float64 {
	return f.restitution
}

func (f *Fixture) SetRestitution(restitution float64) {
	f.restitution = restitution
}

// TestPoint tests a world point for containment.
func (f *Fixture) TestPoint(p Vec2) bool {
	return f.shape.TestPoint(f.body.xf, p)
}

func (f *Fixture) RayCast(input RayCastInput, childIndex int) (RayCastOutput, bool) {
	return f.shape.RayCast(input, f.body.xf, childIndex)
}

func (f *Fixture) MassData() MassData {
	return f.shape.ComputeMass(f.density)
}

// AABB returns the fat AABB of a child, which may lag the body
// transform.
func (f *Fixture) AABB(childIndex int) AABB {
	return f.proxies[childIndex].aabb
}

func (f *Fixture) createProxies(bp *BroadPhase, xf Transform) {
	assert(f.live == 0)

	f.live = len(f.proxies)
	for i := range f.proxies {
		proxy := &f.proxies[i]
		proxy.aabb = f.shape.ComputeAABB(xf, i)
		proxy.fixture = f
		proxy.childIndex = i
		proxy.proxyID = bp.CreateProxy(proxy.aabb, proxy)
	}
}

func (f *Fixture) destroyProxies(bp *BroadPhase) {
	for i := 0; i < f.live; i++ {
		proxy := &f.proxies[i]
		bp.DestroyProxy(proxy.proxyID)
		proxy.proxyID = nullProxy
	}
	f.live = 0
}

// synchronize covers the swept shape between two transforms; some
// rotation may be missed.
func (f *Fixture) synchronize(bp *BroadPhase, xf1, xf2 Transform) {
	displacement := xf2.P.Sub(xf1.P)
	for i := 0; i < f.live; i++ {
		proxy := &f.proxies[i]
		aabb1 := f.shape.ComputeAABB(xf1, proxy.childIndex)
		aabb2 := f.shape.ComputeAABB(xf2, proxy.childIndex)
		proxy.aabb = aabb1.Combine(aabb2)
		bp.MoveProxy(proxy.proxyID, proxy.aabb, displacement)
	}
}

func (f *Fixture) dump(log *zap.Logger, bodyIndex int) {
	fields := []zap.Field{
		zap.Int("body", bodyIndex),
		zap.Float64("friction", f.friction),
		zap.Float64("restitution", f.restitution),
		zap.Float64("density", f.density),
		zap.Bool("isSensor", f.isSensor),
		zap.Uint16("categoryBits", f.filter.CategoryBits),
		zap.Uint16("maskBits", f.filter.MaskBits),
		zap.Int16("groupIndex", f.filter.GroupIndex),
		zap.Stringer("shape", f.shape.Type()),
		zap.Float64("radius", f.shape.Radius()),
	}
	switch s := f.shape.(type) {
	case *CircleShape:
		fields = append(fields, zap.Float64s("p", []float64{s.P.X, s.P.Y}))
	case *EdgeShape:
		fields = append(fields, zap.Float64s("vertices", []float64{s.Vertex1.X, s.Vertex1.Y, s.Vertex2.X, s.Vertex2.Y}))
	case *PolygonShape:
		vs := make([]float64, 0, 2*s.Count)
		for i := 0; i < s.Count; i++ {
			vs = append(vs, s.Vertices[i].X, s.Vertices[i].Y)
		}
		fields = append(fields, zap.Float64s("vertices", vs))
	}
	log.Info("fixture", fields...)
}
