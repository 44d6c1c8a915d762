package liquidbox_test

import (
	"math"
	"testing"

	"github.com/bytearena/liquidbox"
)

// pendulum hangs a 1 kg ball two metres under a static anchor and joins
// them with a distance joint of the given softness.
func pendulum(t *testing.T, frequencyHz, dampingRatio float64, offset liquidbox.Vec2) (*liquidbox.World, *liquidbox.Body, *liquidbox.DistanceJoint) {
	t.Helper()
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})

	anchorDef := liquidbox.MakeBodyDef()
	anchorDef.Position = liquidbox.Vec2{Y: 5}
	anchor := w.CreateBody(&anchorDef)

	ballDef := liquidbox.MakeBodyDef()
	ballDef.Type = liquidbox.DynamicBody
	ballDef.Position = liquidbox.Vec2{Y: 3}.Add(offset)
	ball := w.CreateBody(&ballDef)
	ball.CreateFixtureFromShape(liquidbox.NewCircleShape(liquidbox.Vec2{}, 0.25), 1/(math.Pi*0.25*0.25))

	jd := liquidbox.MakeDistanceJointDef()
	jd.Initialize(anchor, ball, anchor.Position(), ball.Position())
	jd.FrequencyHz = frequencyHz
	jd.DampingRatio = dampingRatio
	j, ok := w.CreateJoint(&jd).(*liquidbox.DistanceJoint)
	if !ok {
		t.Fatal("CreateJoint did not return a *DistanceJoint")
	}
	return w, ball, j
}

func TestRigidDistanceJointHoldsLength(t *testing.T) {
	w, ball, j := pendulum(t, 0, 0, liquidbox.Vec2{X: 2, Y: 2})
	if math.Abs(j.Length()-2) > 1e-9 {
		t.Fatalf("Initialize derived length %v, want 2", j.Length())
	}

	maxError := 0.0
	for range 300 {
		step(w, 1)
		d := liquidbox.Distance(j.AnchorA(), j.AnchorB())
		maxError = math.Max(maxError, math.Abs(d-2))
	}
	if maxError > 0.02 {
		t.Errorf("length drifted by %v", maxError)
	}
	if ball.Position().Y > 5.1 {
		t.Errorf("ball swung above the anchor: %v", ball.Position())
	}
	if f := j.ReactionForce(1 / timeStep); f.Length() == 0 {
		t.Error("a loaded joint reports no reaction force")
	}
}

func TestSoftDistanceJointStretches(t *testing.T) {
	// A 1 kg mass on a 1 Hz spring sags by g/omega^2.
	const hz = 1.0
	omega := 2 * math.Pi * hz
	w, ball, j := pendulum(t, hz, 0.7, liquidbox.Vec2{})
	if mass := ball.Mass(); math.Abs(mass-1) > 1e-9 {
		t.Fatalf("ball mass %v, want 1", mass)
	}

	step(w, 600)

	stretch := liquidbox.Distance(j.AnchorA(), j.AnchorB()) - 2
	if want := 10 / (omega * omega); math.Abs(stretch-want) > 0.05 {
		t.Errorf("stretch %v, want about %v", stretch, want)
	}
	if v := ball.LinearVelocity().Length(); v > 0.05 {
		t.Errorf("spring still oscillating at %v m/s", v)
	}
}

// springPeaks releases a ball from the unstretched length of a 1 Hz soft
// joint and returns the peaks of its excursion above the equilibrium sag,
// with the step each occurred at.
func springPeaks(t *testing.T, dampingRatio float64) (peaks []float64, at []int) {
	t.Helper()
	omega := 2 * math.Pi
	sag := 10 / (omega * omega)
	w, _, j := pendulum(t, 1, dampingRatio, liquidbox.Vec2{})

	var xs []float64
	for range 240 {
		step(w, 1)
		xs = append(xs, liquidbox.Distance(j.AnchorA(), j.AnchorB())-2-sag)
	}
	for n := 1; n+1 < len(xs); n++ {
		if xs[n] > 0.005 && xs[n-1] < xs[n] && xs[n] >= xs[n+1] {
			peaks = append(peaks, xs[n])
			at = append(at, n)
		}
	}
	return peaks, at
}

func TestSoftDistanceJointOscillationDecays(t *testing.T) {
	light, at := springPeaks(t, 0.1)
	if len(light) < 3 {
		t.Fatalf("lightly damped spring peaked %d times in 4 s: %v", len(light), light)
	}
	if light[0] < 0.08 {
		t.Errorf("first overshoot %v, want a clear oscillation", light[0])
	}
	for k := 1; k < len(light); k++ {
		// exp(-2*pi*zeta/sqrt(1-zeta^2)) is about 0.53 per period.
		if r := light[k] / light[k-1]; r < 0.2 || r > 0.75 {
			t.Errorf("peak %d decayed by %v", k, r)
		}
		// One period is about 60 steps.
		if d := at[k] - at[k-1]; d < 54 || d > 66 {
			t.Errorf("peaks %d steps apart", d)
		}
	}

	heavier, _ := springPeaks(t, 0.3)
	if len(heavier) > 0 && heavier[0] >= light[0] {
		t.Errorf("overshoot %v at damping 0.3, %v at 0.1", heavier[0], light[0])
	}

	if critical, _ := springPeaks(t, 1); len(critical) > 0 && critical[0] > 0.02 {
		t.Errorf("critically damped spring overshot by %v", critical[0])
	}
}

func TestDistanceJointSetters(t *testing.T) {
	w, ball, j := pendulum(t, 0, 0, liquidbox.Vec2{})
	j.SetLength(1)
	step(w, 120)
	if d := liquidbox.Distance(j.AnchorA(), j.AnchorB()); math.Abs(d-1) > 0.02 {
		t.Errorf("distance %v after SetLength(1)", d)
	}
	if ball.Position().Y < 3.9 {
		t.Errorf("ball at %v, want it pulled up to y = 4", ball.Position())
	}

	j.SetFrequency(2)
	j.SetDampingRatio(1)
	if j.Frequency() != 2 || j.DampingRatio() != 1 {
		t.Errorf("Frequency = %v, DampingRatio = %v", j.Frequency(), j.DampingRatio())
	}

	expectViolation(t, liquidbox.ErrInvalidJointLength, func() { j.SetLength(0) })
}

func TestDistanceJointContract(t *testing.T) {
	w, ball, _ := pendulum(t, 0, 0, liquidbox.Vec2{})

	jd := liquidbox.MakeDistanceJointDef()
	jd.BodyA, jd.BodyB = ball, ball
	expectViolation(t, liquidbox.ErrSameBody, func() { w.CreateJoint(&jd) })

	other := w.BodyList()
	if other == ball {
		other = ball.Next()
	}
	jd.BodyA = other
	jd.Length = 0
	expectViolation(t, liquidbox.ErrInvalidJointLength, func() { w.CreateJoint(&jd) })

	if w.JointCount() != 1 {
		t.Errorf("JointCount = %d after rejected joints", w.JointCount())
	}
}

func TestDestroyJointReleasesBodies(t *testing.T) {
	w, ball, j := pendulum(t, 0, 0, liquidbox.Vec2{})
	step(w, 30)
	w.DestroyJoint(j)
	if w.JointCount() != 0 || ball.JointList() != nil {
		t.Fatal("joint still linked")
	}
	y := ball.Position().Y
	step(w, 30)
	if ball.Position().Y >= y {
		t.Errorf("ball did not fall after the joint went: %v -> %v", y, ball.Position().Y)
	}
	expectViolation(t, liquidbox.ErrStaleHandle, func() { w.DestroyJoint(j) })
}

func TestTetheredBoxRestsWithWarmStarting(t *testing.T) {
	rest := func(warm bool) liquidbox.Vec2 {
		w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
		w.SetWarmStarting(warm)
		ground := newGround(t, w)
		box := newBox(t, w, liquidbox.Vec2{X: 2, Y: 0.6}, 0.5)

		// Joint and ground contact end up in one island.
		jd := liquidbox.MakeDistanceJointDef()
		jd.Initialize(ground, box, liquidbox.Vec2{Y: 0.6}, box.Position())
		w.CreateJoint(&jd)

		step(w, 300)
		return box.Position()
	}

	warm, cold := rest(true), rest(false)
	if d := liquidbox.Distance(warm, cold); d > 0.05 {
		t.Errorf("rest at %v warm and %v cold", warm, cold)
	}
	if math.Abs(warm.X-2) > 0.05 || math.Abs(warm.Y-0.5) > 0.05 {
		t.Errorf("tethered box rests at %v, want near (2, 0.5)", warm)
	}
}
