// Package mqtt publishes gateway call and page events to an MQTT broker
// for external dashboards and automations to consume.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/openfne/zello-gateway/pkg/logger"
)

// Config holds MQTT publisher configuration.
type Config struct {
	Enabled     bool
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Retained    bool
}

// Publisher handles MQTT event publishing for the gateway.
type Publisher struct {
	config Config
	log    *logger.Logger
	client paho.Client
}

// CallStartEvent reports a call beginning on one leg.
type CallStartEvent struct {
	Leg       string    `json:"leg"`
	StreamID  uint32    `json:"stream_id"`
	SourceID  uint32    `json:"source_id"`
	DestID    uint32    `json:"dest_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CallEndEvent reports a call ending on one leg.
type CallEndEvent struct {
	Leg         string    `json:"leg"`
	StreamID    uint32    `json:"stream_id"`
	SourceID    uint32    `json:"source_id"`
	DestID      uint32    `json:"dest_id"`
	DurationSec float64   `json:"duration_seconds"`
	Timestamp   time.Time `json:"timestamp"`
}

// PageEvent reports a CALL_ALRT/page translation in either direction.
type PageEvent struct {
	Direction string    `json:"direction"` // "radio_to_zello" or "zello_to_radio"
	SourceID  uint32    `json:"source_id"`
	DestID    uint32    `json:"dest_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ZelloConnectionEvent reports a ZelloSession state transition.
type ZelloConnectionEvent struct {
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a new MQTT publisher.
func New(config Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &Publisher{
		config: config,
		log:    log.WithComponent("mqtt"),
	}
}

// Start connects the MQTT client. It blocks until ctx is canceled, at
// which point the client disconnects.
func (p *Publisher) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.log.Info("MQTT publisher disabled")
		return nil
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(paho.Client) {
		p.log.Info("MQTT connected", logger.String("broker", p.config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Warn("MQTT connection lost", logger.Error(err))
	})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt: timed out connecting to %s", p.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: failed to connect to %s: %w", p.config.Broker, err)
	}

	p.log.Info("MQTT publisher connected",
		logger.String("broker", p.config.Broker),
		logger.String("client_id", p.config.ClientID))

	<-ctx.Done()
	p.Stop()
	return ctx.Err()
}

// Stop disconnects the MQTT client.
func (p *Publisher) Stop() {
	if !p.config.Enabled || p.client == nil {
		return
	}
	p.log.Info("Stopping MQTT publisher")
	p.client.Disconnect(250)
}

// PublishCallStart publishes a call-start event.
func (p *Publisher) PublishCallStart(event CallStartEvent) error {
	return p.publish(p.formatTopic("calls/start"), event)
}

// PublishCallEnd publishes a call-end event.
func (p *Publisher) PublishCallEnd(event CallEndEvent) error {
	return p.publish(p.formatTopic("calls/end"), event)
}

// PublishPage publishes a page translation event.
func (p *Publisher) PublishPage(event PageEvent) error {
	return p.publish(p.formatTopic("pages"), event)
}

// PublishZelloConnection publishes a ZelloSession connection state event.
func (p *Publisher) PublishZelloConnection(event ZelloConnectionEvent) error {
	return p.publish(p.formatTopic("zello/connection"), event)
}

func (p *Publisher) publish(topic string, event interface{}) error {
	if !p.config.Enabled {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to serialize MQTT event", logger.String("topic", topic), logger.Error(err))
		return err
	}

	if p.client == nil || !p.client.IsConnected() {
		p.log.Debug("Skipping MQTT publish, client not connected", logger.String("topic", topic))
		return nil
	}

	token := p.client.Publish(topic, p.config.QoS, p.config.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt: timed out publishing to %s", topic)
	}
	return token.Error()
}

func (p *Publisher) formatTopic(suffix string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}
