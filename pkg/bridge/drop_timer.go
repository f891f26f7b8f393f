package bridge

import (
	"sync"
	"time"
)

// dropTimer fires once if no audio refreshes it within its configured
// window, ending a call that the far end stopped feeding without a clean
// terminator. One instance guards the single in-progress TX call; CallBridge
// only ever has at most one active ingress call at a time.
type dropTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	onDrop   func()
}

func newDropTimer(duration time.Duration, onDrop func()) *dropTimer {
	return &dropTimer{duration: duration, onDrop: onDrop}
}

// Start begins (or restarts) the countdown.
func (d *dropTimer) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.duration <= 0 {
		return
	}
	d.timer = time.AfterFunc(d.duration, func() {
		if d.onDrop != nil {
			d.onDrop()
		}
	})
}

// Refresh restarts the countdown without changing its configuration,
// equivalent to Start; kept as a distinct name for call-site clarity.
func (d *dropTimer) Refresh() { d.Start() }

// Stop cancels the countdown, called when a call ends cleanly.
func (d *dropTimer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
