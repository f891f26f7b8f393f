package mqtt

import (
	"context"
	"testing"
	"time"
)

func TestNewPublisher(t *testing.T) {
	config := Config{
		Enabled:     true,
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "zello-gateway",
		ClientID:    "test-client",
		QoS:         1,
		Retained:    false,
	}

	pub := New(config, nil)
	if pub == nil {
		t.Fatal("expected non-nil publisher")
	}
	if pub.config.Broker != config.Broker {
		t.Errorf("expected broker %s, got %s", config.Broker, pub.config.Broker)
	}
}

func TestPublisher_StartWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false}, nil)
	if err := pub.Start(context.Background()); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_StopWithoutStart(t *testing.T) {
	pub := New(Config{Enabled: false}, nil)
	pub.Stop()
}

func TestPublisher_PublishCallStartWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false, TopicPrefix: "zello-gateway"}, nil)

	err := pub.PublishCallStart(CallStartEvent{
		Leg:       "p25",
		StreamID:  12345,
		SourceID:  312000,
		DestID:    3100,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishCallEndWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false, TopicPrefix: "zello-gateway"}, nil)

	err := pub.PublishCallEnd(CallEndEvent{
		Leg:         "dmr1",
		StreamID:    12345,
		SourceID:    312000,
		DestID:      3100,
		DurationSec: 4.2,
		Timestamp:   time.Now(),
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishPageWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false, TopicPrefix: "zello-gateway"}, nil)

	err := pub.PublishPage(PageEvent{
		Direction: "radio_to_zello",
		SourceID:  312000,
		DestID:    3100,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishZelloConnectionWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false, TopicPrefix: "zello-gateway"}, nil)

	err := pub.PublishZelloConnection(ZelloConnectionEvent{
		State:     "connected",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishSkipsWhenClientNil(t *testing.T) {
	// Enabled but never Start()ed, so the client is nil: publish must
	// no-op rather than panic.
	pub := New(Config{Enabled: true, TopicPrefix: "zello-gateway"}, nil)

	err := pub.PublishCallStart(CallStartEvent{Leg: "p25", Timestamp: time.Now()})
	if err != nil {
		t.Errorf("expected no error with nil client, got %v", err)
	}
}

func TestFormatTopic(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		suffix   string
		expected string
	}{
		{"simple topic", "zello-gateway", "calls/start", "zello-gateway/calls/start"},
		{"trailing slash in prefix", "zello-gateway/", "calls/start", "zello-gateway/calls/start"},
		{"empty prefix", "", "calls/start", "calls/start"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := New(Config{TopicPrefix: tt.prefix}, nil)
			if got := pub.formatTopic(tt.suffix); got != tt.expected {
				t.Errorf("expected topic %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestEventSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event interface{}
	}{
		{"CallStartEvent", CallStartEvent{Leg: "p25", StreamID: 1, SourceID: 312000, DestID: 3100, Timestamp: time.Now()}},
		{"CallEndEvent", CallEndEvent{Leg: "p25", StreamID: 1, SourceID: 312000, DestID: 3100, DurationSec: 3.1, Timestamp: time.Now()}},
		{"PageEvent", PageEvent{Direction: "zello_to_radio", SourceID: 312000, DestID: 3100, Timestamp: time.Now()}},
		{"ZelloConnectionEvent", ZelloConnectionEvent{State: "reconnecting", Timestamp: time.Now()}},
	}

	pub := New(Config{Enabled: false}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := pub.publish("test/topic", tt.event); err != nil {
				t.Errorf("failed to serialize %s: %v", tt.name, err)
			}
		})
	}
}
