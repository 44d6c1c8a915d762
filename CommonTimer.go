package liquidbox

import "time"

// Timer measures elapsed wall time for the step profile.
type Timer struct {
	start time.Time
}

func NewTimer() Timer {
	return Timer{start: time.Now()}
}

func (t *Timer) Reset() {
	t.start = time.Now()
}

// Milliseconds returns the time since the last reset.
func (t Timer) Milliseconds() float64 {
	return float64(time.Since(t.start)) / float64(time.Millisecond)
}
