// Package sound turns contact impulses into short impact tones.
package sound

import (
	"fmt"
	"math"
	"time"

	"github.com/bytearena/liquidbox"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const (
	sampleRate = beep.SampleRate(44100)

	// maxVoices bounds the tones playing at once; extra impacts are
	// dropped.
	maxVoices = 16

	toneDuration = 250 * time.Millisecond
)

// Sonifier is a contact listener that plays a decaying tone for every
// contact whose largest normal impulse exceeds the threshold. Louder
// impacts play louder; heavier bodies play lower.
type Sonifier struct {
	liquidbox.NopContactListener

	threshold float64
	mixer     *beep.Mixer
	started   bool
}

func NewSonifier(threshold float64) *Sonifier {
	return &Sonifier{threshold: threshold, mixer: &beep.Mixer{}}
}

// Start opens the audio device and plays the mixer on it. Without Start,
// tones accumulate in the mixer, which can be streamed directly.
func (s *Sonifier) Start() error {
	if s.started {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(s.mixer)
	s.started = true
	return nil
}

// Close stops playback. The speaker stays initialized.
func (s *Sonifier) Close() {
	if !s.started {
		return
	}
	speaker.Lock()
	s.mixer.Clear()
	speaker.Unlock()
	s.started = false
}

// Mixer returns the mixer the tones are added to.
func (s *Sonifier) Mixer() *beep.Mixer {
	return s.mixer
}

func (s *Sonifier) PostSolve(c *liquidbox.Contact, impulse *liquidbox.ContactImpulse) {
	peak := 0.0
	for i := 0; i < impulse.Count; i++ {
		peak = math.Max(peak, impulse.NormalImpulses[i])
	}
	if peak <= s.threshold {
		return
	}

	mass := c.FixtureA().Body().Mass() + c.FixtureB().Body().Mass()
	freq := 880.0 / math.Sqrt(1.0+mass)
	amplitude := math.Min(1.0, 0.2*peak/math.Max(s.threshold, 1e-3))
	s.play(newImpactTone(sampleRate, freq, amplitude, toneDuration))
}

func (s *Sonifier) play(st beep.Streamer) {
	if s.started {
		speaker.Lock()
		defer speaker.Unlock()
	}
	if s.mixer.Len() >= maxVoices {
		return
	}
	s.mixer.Add(st)
}

// impactTone is a sine whose amplitude decays exponentially to about 1%
// over its duration.
type impactTone struct {
	freq      float64
	amplitude float64
	decay     float64 // per sample
	position  int
	duration  int
	rate      beep.SampleRate
}

func newImpactTone(rate beep.SampleRate, freq, amplitude float64, duration time.Duration) *impactTone {
	n := rate.N(duration)
	return &impactTone{
		freq:      freq,
		amplitude: amplitude,
		decay:     math.Log(100) / float64(max(n, 1)),
		duration:  n,
		rate:      rate,
	}
}

func (t *impactTone) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if t.position >= t.duration {
			return i, i > 0
		}
		at := float64(t.position) / float64(t.rate)
		val := t.amplitude * math.Exp(-t.decay*float64(t.position)) * math.Sin(2*math.Pi*t.freq*at)
		samples[i][0] = val
		samples[i][1] = val
		t.position++
	}
	return len(samples), true
}

func (t *impactTone) Err() error { return nil }
