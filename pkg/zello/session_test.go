package zello

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openfne/zello-gateway/pkg/codecheader"
	"github.com/openfne/zello-gateway/pkg/logger"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// mockZelloServer accepts one WebSocket connection, replies to logon with
// on_channel_status, and echoes back stream_id on start_stream.
func mockZelloServer(t *testing.T, onConn func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		onConn(conn)
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.PingInterval != 30*time.Second {
		t.Errorf("expected default ping interval, got %v", cfg.PingInterval)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 5*time.Second {
		t.Errorf("expected default retry delay 5s, got %v", cfg.RetryDelay)
	}
}

func TestParsePageDestinationVariants(t *testing.T) {
	cases := map[string]uint32{
		"page 3112345": 3112345,
		"page3112345":  3112345,
		"page  42":     42,
	}
	for text, want := range cases {
		got, err := parsePageDestination(text)
		if err != nil {
			t.Fatalf("parsePageDestination(%q) error: %v", text, err)
		}
		if got != want {
			t.Errorf("parsePageDestination(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestParsePageDestinationRejectsGarbage(t *testing.T) {
	if _, err := parsePageDestination("page abc"); err == nil {
		t.Fatal("expected error for non-numeric destination")
	}
}

func TestNewSessionStartsDisconnected(t *testing.T) {
	s, err := New(Config{URL: "ws://example.invalid"}, logger.New(logger.Config{Level: "info"}), Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("expected StateDisconnected, got %v", s.State())
	}
}

func TestSessionAuthenticatesToOnChannelStatus(t *testing.T) {
	srv := mockZelloServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var logon map[string]interface{}
		if err := conn.ReadJSON(&logon); err != nil {
			return
		}
		if logon["command"] != "logon" {
			t.Errorf("expected logon command, got %v", logon["command"])
		}
		conn.WriteJSON(map[string]interface{}{
			"command":       "on_channel_status",
			"refresh_token": "rt-123",
		})
		// keep the connection open until the test cancels it
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})
	defer srv.Close()

	s, err := New(Config{URL: wsURL(srv.URL), Username: "bot", Channel: "dispatch"},
		logger.New(logger.Config{Level: "debug"}), Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	go s.receiveLoopForTest(ctx)

	if err := s.authenticate(ctx); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("expected StateAuthenticated, got %v", s.State())
	}

	s.mu.Lock()
	rt := s.refreshToken
	s.mu.Unlock()
	if rt != "rt-123" {
		t.Errorf("expected refresh token to be cached, got %q", rt)
	}
}

func TestSessionHandleTextOnAlertPageRaisesRadioCommand(t *testing.T) {
	got := make(chan [2]uint32, 1)
	s, err := New(Config{URL: "ws://example.invalid", SourceID: 3100}, logger.New(logger.Config{Level: "info"}),
		Callbacks{OnRadioCommand: func(cmd string, src, dst uint32) {
			if cmd == "page" {
				got <- [2]uint32{src, dst}
			}
		}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, _ := json.Marshal(map[string]interface{}{"command": "on_alert", "text": "page 3112345"})
	s.handleText(data)

	select {
	case pair := <-got:
		if pair[0] != 3100 || pair[1] != 3112345 {
			t.Errorf("unexpected page command args: %v", pair)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for on_radio_command")
	}
}

func TestSessionHandleTextOnStreamStopRaisesStreamEnd(t *testing.T) {
	called := make(chan struct{}, 1)
	s, err := New(Config{URL: "ws://example.invalid"}, logger.New(logger.Config{Level: "info"}),
		Callbacks{OnStreamEnd: func() { called <- struct{}{} }})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id := uint32(7)
	msg := controlMessage{Command: "on_stream_stop", StreamID: &id}
	data, _ := json.Marshal(msg)
	s.handleText(data)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnStreamEnd")
	}
}

// receiveLoopForTest runs receiveLoop in the background for tests that need
// the connection actively drained while exercising authenticate().
func (s *Session) receiveLoopForTest(ctx context.Context) {
	_ = s.receiveLoop(ctx)
}

// TestHandleBinaryPassesThrough8kHzStreamWithoutResample covers the
// regression where a stream negotiated at 8kHz was run through a fixed
// 16000->8000 resampler anyway, halving the sample count a second time.
// With the per-stream downsampler tracking rx.header.SampleRate, an
// 8kHz-negotiated stream's decoded PCM should pass straight through.
func TestHandleBinaryPassesThrough8kHzStreamWithoutResample(t *testing.T) {
	got := make(chan []int16, 1)
	s, err := New(Config{URL: "ws://example.invalid"}, logger.New(logger.Config{Level: "info"}),
		Callbacks{OnPCMReceived: func(pcm []int16, from string) { got <- pcm }})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const streamID = uint32(42)
	hdr := codecheader.Header{SampleRate: 8000, Channels: 1, FrameSizeMs: 60}
	s.mu.Lock()
	s.rx[streamID] = &rxStream{header: hdr}
	s.mu.Unlock()

	frameSamples := hdr.FrameSamples() // 480 @ 8kHz/60ms
	pcm := make([]int16, frameSamples)
	for i := range pcm {
		pcm[i] = int16(i)
	}
	payload := make([]byte, frameSamples*2)
	for i, v := range pcm {
		payload[i*2] = byte(v)
		payload[i*2+1] = byte(v >> 8)
	}

	frame := make([]byte, 9+len(payload))
	frame[0] = 0x01
	frame[1] = byte(streamID >> 24)
	frame[2] = byte(streamID >> 16)
	frame[3] = byte(streamID >> 8)
	frame[4] = byte(streamID)
	copy(frame[9:], payload)

	s.handleBinary(frame)

	select {
	case out := <-got:
		if len(out) != frameSamples {
			t.Fatalf("expected %d samples with no resample, got %d", frameSamples, len(out))
		}
		for i, v := range out {
			if v != pcm[i] {
				t.Fatalf("sample %d: expected %d, got %d", i, pcm[i], v)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded PCM")
	}
}
