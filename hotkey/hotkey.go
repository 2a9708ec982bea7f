// Package hotkey watches the global Ctrl+Shift+Space chord so recording
// can be toggled while another window has focus.
package hotkey

import (
	"context"
	"time"
)

// Chord is the human-readable form of the watched key combination.
const Chord = "Ctrl+Shift+Space"

// LongPress is the hold time after which a press counts as push-to-talk.
const LongPress = 400 * time.Millisecond

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Listen registers hk and calls toggle once when recording should start
// and once when it should stop, until ctx is done.
func Listen(ctx context.Context, hk Hotkey, longPress time.Duration, toggle func()) error {
	if err := hk.Register(); err != nil {
		return err
	}
	defer hk.Unregister()

	hy := NewHybrid(ctx, hk, longPress)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hy.Start():
			toggle()
		case <-hy.StopChan():
			toggle()
		}
	}
}
