package bridge

import (
	"sync"
	"time"
)

// streamInfo tracks how long a given stream_id has been seen without a
// terminator, so a CallSlot can tell a fresh call from a retransmitted
// fragment of one already in progress.
type streamInfo struct {
	streamID  uint32
	startTime time.Time
}

// streamDedup remembers active stream IDs per radio leg (DMR1/DMR2/P25) so
// CallBridge can detect "new stream_id" transitions without re-deriving them
// from packet sequence gaps.
type streamDedup struct {
	mu      sync.Mutex
	streams map[uint32]*streamInfo
}

func newStreamDedup() *streamDedup {
	return &streamDedup{streams: make(map[uint32]*streamInfo)}
}

// Seen reports whether streamID was already tracked, and starts tracking it
// if not.
func (d *streamDedup) Seen(streamID uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.streams[streamID]; exists {
		return true
	}
	d.streams[streamID] = &streamInfo{streamID: streamID, startTime: time.Now()}
	return false
}

// End stops tracking streamID, typically on TDU/TDULC.
func (d *streamDedup) End(streamID uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.streams, streamID)
}

// CleanupOlderThan drops tracked streams that never saw a terminator within
// maxAge, guarding against a leaked slot from a dropped TDU.
func (d *streamDedup) CleanupOlderThan(maxAge time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, info := range d.streams {
		if now.Sub(info.startTime) > maxAge {
			delete(d.streams, id)
		}
	}
}
