package bridge

import (
	"os"
	"testing"
	"time"

	"github.com/openfne/zello-gateway/pkg/database"
	"github.com/openfne/zello-gateway/pkg/logger"
)

func newTestCallLogger(t *testing.T) *CallLogger {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	dbPath := "/tmp/test_call_logger.db"
	t.Cleanup(func() { _ = os.Remove(dbPath) })

	db, err := database.NewDB(database.Config{Path: dbPath}, log)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := database.NewCallRecordRepository(db.GetDB())
	return NewCallLogger(repo, log)
}

func TestCallLoggerTracksActiveCallUntilTerminated(t *testing.T) {
	cl := newTestCallLogger(t)

	cl.LogPacket(100, 3112345, 9, 1, "p25", 0, false)
	if got := cl.ActiveCount(); got != 1 {
		t.Fatalf("expected 1 active call, got %d", got)
	}

	time.Sleep(600 * time.Millisecond)
	cl.LogPacket(100, 3112345, 9, 1, "p25", 0, true)

	if got := cl.ActiveCount(); got != 0 {
		t.Fatalf("expected 0 active calls after terminator, got %d", got)
	}
}

func TestCallLoggerSkipsVeryShortCalls(t *testing.T) {
	cl := newTestCallLogger(t)

	cl.LogPacket(200, 3112345, 9, 1, "dmr1", 1, false)
	cl.LogPacket(200, 3112345, 9, 1, "dmr1", 1, true)

	if got := cl.ActiveCount(); got != 0 {
		t.Fatalf("expected active call cleared regardless of save outcome, got %d", got)
	}
}

func TestCallLoggerCleanupStaleFlushesAbandonedCalls(t *testing.T) {
	cl := newTestCallLogger(t)

	cl.LogPacket(300, 3112345, 9, 1, "p25", 0, false)
	cl.mu.Lock()
	cl.active[300].startTime = time.Now().Add(-time.Minute)
	cl.active[300].lastSeen = time.Now().Add(-time.Minute)
	cl.mu.Unlock()

	cl.CleanupStale(time.Second)

	if got := cl.ActiveCount(); got != 0 {
		t.Fatalf("expected stale call to be flushed, got %d active", got)
	}
}
