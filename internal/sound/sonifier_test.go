package sound

import (
	"math"
	"testing"
	"time"

	"github.com/bytearena/liquidbox"
	"github.com/gopxl/beep"
)

func TestImpactToneDecays(t *testing.T) {
	tone := newImpactTone(beep.SampleRate(1000), 50, 0.8, 200*time.Millisecond)
	samples := make([][2]float64, 500)
	n, ok := tone.Stream(samples)
	if !ok || n != 200 {
		t.Fatalf("Stream = (%d, %v), want (200, true)", n, ok)
	}
	peak := func(from, to int) float64 {
		p := 0.0
		for _, s := range samples[from:to] {
			p = math.Max(p, math.Abs(s[0]))
			if s[0] != s[1] {
				t.Fatalf("channels differ: %v", s)
			}
		}
		return p
	}
	head, tail := peak(0, 40), peak(160, 200)
	if head > 0.8 || head < 0.5 {
		t.Errorf("head peak %v, want close to the amplitude", head)
	}
	if tail > head/5 {
		t.Errorf("tail peak %v did not decay from %v", tail, head)
	}
	if n, ok := tone.Stream(samples); n != 0 || ok {
		t.Errorf("drained tone streamed (%d, %v)", n, ok)
	}
}

// drop lands a heavy box on the ground and steps until it rests.
func drop(s *Sonifier) {
	w := liquidbox.NewWorld(liquidbox.Vec2{Y: -10})
	w.SetContactListener(s)

	groundDef := liquidbox.MakeBodyDef()
	ground := w.CreateBody(&groundDef)
	ground.CreateFixtureFromShape(liquidbox.NewEdgeShape(liquidbox.Vec2{X: -10}, liquidbox.Vec2{X: 10}), 0)

	def := liquidbox.MakeBodyDef()
	def.Type = liquidbox.DynamicBody
	def.Position = liquidbox.Vec2{Y: 4}
	w.CreateBody(&def).CreateFixtureFromShape(liquidbox.NewBoxShape(0.5, 0.5), 5)

	for range 120 {
		w.Step(1.0/60.0, 8, 3)
	}
}

func TestSonifierPlaysImpacts(t *testing.T) {
	s := NewSonifier(1)
	drop(s)

	if s.Mixer().Len() == 0 {
		t.Fatal("landing produced no tone")
	}
	if s.Mixer().Len() > maxVoices {
		t.Errorf("%d voices, want at most %d", s.Mixer().Len(), maxVoices)
	}
	samples := make([][2]float64, 512)
	if _, ok := s.Mixer().Stream(samples); !ok {
		t.Fatal("mixer stopped streaming")
	}
	loud := false
	for _, v := range samples {
		if math.Abs(v[0]) > 1e-3 {
			loud = true
		}
	}
	if !loud {
		t.Error("mixer output is silent")
	}
}

func TestSonifierIgnoresSoftContacts(t *testing.T) {
	s := NewSonifier(1e6)
	drop(s)
	if n := s.Mixer().Len(); n != 0 {
		t.Errorf("%d tones below the threshold", n)
	}
}
