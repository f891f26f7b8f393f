// Package keepalive runs a periodic ping/pong liveness timer, the same
// shape used by the FNE peer RPTPING/MSTPONG cycle and by Zello's
// WebSocket-level ping control message.
package keepalive

import (
	"context"
	"sync"
	"time"
)

// Timer ticks every Interval, invoking Send, and independently tracks the
// last time Touch was called so callers can detect a missed-pong timeout.
type Timer struct {
	Interval time.Duration
	Timeout  time.Duration
	Send     func() error
	OnTimeout func()

	mu       sync.RWMutex
	lastSeen time.Time
}

// New builds a Timer. interval is how often Send fires; timeout is how long
// since the last Touch before OnTimeout is invoked (0 disables the check).
func New(interval, timeout time.Duration, send func() error, onTimeout func()) *Timer {
	return &Timer{
		Interval:  interval,
		Timeout:   timeout,
		Send:      send,
		OnTimeout: onTimeout,
		lastSeen:  time.Now(),
	}
}

// Touch records that a liveness response was just received.
func (t *Timer) Touch() {
	t.mu.Lock()
	t.lastSeen = time.Now()
	t.mu.Unlock()
}

// LastSeen returns the last Touch time.
func (t *Timer) LastSeen() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSeen
}

// Run blocks, sending on every tick and checking the timeout, until ctx is
// canceled. Send errors are swallowed by design: a single failed ping should
// not terminate the loop that owns the connection — the connection's own
// read/write errors will surface separately.
func (t *Timer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.Timeout > 0 && time.Since(t.LastSeen()) > t.Timeout {
				if t.OnTimeout != nil {
					t.OnTimeout()
				}
				continue
			}
			if t.Send != nil {
				_ = t.Send()
			}
		}
	}
}
