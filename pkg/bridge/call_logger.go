package bridge

import (
	"sync"
	"time"

	"github.com/openfne/zello-gateway/pkg/database"
	"github.com/openfne/zello-gateway/pkg/logger"
)

// CallLogger records completed call legs to the CallRecord table, tracking
// in-progress legs by stream_id the same way a DMR transmission logger
// tracks an active burst sequence.
type CallLogger struct {
	repo   *database.CallRecordRepository
	logger *logger.Logger

	mu     sync.Mutex
	active map[uint32]*activeCall
}

type activeCall struct {
	streamID    uint32
	radioID     uint32
	talkgroupID uint32
	system      string
	timeslot    int
	repeaterID  uint32
	startTime   time.Time
	lastSeen    time.Time
	packetCount int
}

// NewCallLogger builds a CallLogger backed by repo.
func NewCallLogger(repo *database.CallRecordRepository, log *logger.Logger) *CallLogger {
	return &CallLogger{
		repo:   repo,
		logger: log,
		active: make(map[uint32]*activeCall),
	}
}

// LogPacket records one voice unit belonging to streamID, flushing a
// CallRecord when terminated is true.
func (cl *CallLogger) LogPacket(streamID, radioID, talkgroupID, repeaterID uint32, system string, timeslot int, terminated bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	call, exists := cl.active[streamID]
	if !exists {
		call = &activeCall{
			streamID:    streamID,
			radioID:     radioID,
			talkgroupID: talkgroupID,
			system:      system,
			timeslot:    timeslot,
			repeaterID:  repeaterID,
			startTime:   now,
			lastSeen:    now,
			packetCount: 1,
		}
		cl.active[streamID] = call
	} else {
		call.lastSeen = now
		call.packetCount++
	}

	if terminated {
		cl.flush(call)
		delete(cl.active, streamID)
	}
}

func (cl *CallLogger) flush(call *activeCall) {
	duration := call.lastSeen.Sub(call.startTime).Seconds()
	if duration < 0.5 {
		cl.logger.Debug("skipped saving very short call",
			logger.Any("stream_id", call.streamID), logger.Any("duration", duration))
		return
	}

	rec := &database.CallRecord{
		RadioID:     call.radioID,
		TalkgroupID: call.talkgroupID,
		System:      call.system,
		Timeslot:    call.timeslot,
		Duration:    duration,
		StreamID:    call.streamID,
		StartTime:   call.startTime,
		EndTime:     call.lastSeen,
		RepeaterID:  call.repeaterID,
		PacketCount: call.packetCount,
	}
	if err := cl.repo.Create(rec); err != nil {
		cl.logger.Error("failed to save call record", logger.Error(err), logger.Any("stream_id", call.streamID))
		return
	}
	cl.logger.Debug("saved call record",
		logger.Any("stream_id", call.streamID),
		logger.Any("system", call.system),
		logger.Any("duration", duration))
}

// CleanupStale flushes any call that hasn't seen a packet within maxAge,
// for calls that end without an explicit terminator.
func (cl *CallLogger) CleanupStale(maxAge time.Duration) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	for streamID, call := range cl.active {
		if now.Sub(call.lastSeen) > maxAge {
			cl.flush(call)
			delete(cl.active, streamID)
		}
	}
}

// ActiveCount returns the number of calls currently tracked as in progress.
func (cl *CallLogger) ActiveCount() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.active)
}
