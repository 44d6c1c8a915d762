package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
)

// Frame advances and draws one frame. It returns false to stop the loop.
type Frame func(paused bool) bool

// Run calls frame hz times per second until frame returns false, ctx is
// done, or the user presses q, Esc or Ctrl-C. Space toggles pause. The
// caller owns screen and must Fini it after Run returns.
func Run(ctx context.Context, screen tcell.Screen, hz float64, frame Frame) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / hz))
	defer ticker.Stop()

	done := make(chan struct{})
	defer close(done)
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	paused := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				switch {
				case ev.Key() == tcell.KeyEscape, ev.Key() == tcell.KeyCtrlC,
					ev.Key() == tcell.KeyRune && ev.Rune() == 'q':
					return nil
				case ev.Key() == tcell.KeyRune && ev.Rune() == ' ':
					paused = !paused
				}
			case *tcell.EventResize:
				screen.Sync()
			}

		case <-ticker.C:
			if !frame(paused) {
				return nil
			}
		}
	}
}
