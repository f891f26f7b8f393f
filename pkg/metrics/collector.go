// Package metrics exposes the gateway's Prometheus metrics: call volume
// and duration per radio leg, Zello reconnect/auth events, and bridge
// packet/byte counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the gateway's Prometheus metric instruments, registered
// against a private registry so multiple Collectors (e.g. in tests) never
// collide on the global default registry.
type Collector struct {
	registry *prometheus.Registry

	callsTotal        *prometheus.CounterVec
	callDuration      *prometheus.HistogramVec
	activeCalls       *prometheus.GaugeVec
	packetsReceived   *prometheus.CounterVec
	packetsSent       *prometheus.CounterVec
	bytesReceived     prometheus.Counter
	bytesSent         prometheus.Counter
	zelloReconnects   prometheus.Counter
	zelloState        prometheus.Gauge
	pagesTotal        *prometheus.CounterVec
	encryptedRejected *prometheus.CounterVec
}

// NewCollector builds a Collector and registers its instruments.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zellogw_calls_total",
			Help: "Total number of completed calls, by radio leg.",
		}, []string{"leg"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zellogw_call_duration_seconds",
			Help:    "Call duration in seconds, by radio leg.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}, []string{"leg"}),
		activeCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zellogw_active_calls",
			Help: "Number of calls currently in progress, by radio leg.",
		}, []string{"leg"}),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zellogw_packets_received_total",
			Help: "Total packets received, by protocol.",
		}, []string{"protocol"}),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zellogw_packets_sent_total",
			Help: "Total packets sent, by protocol.",
		}, []string{"protocol"}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zellogw_bytes_received_total",
			Help: "Total bytes received across all legs.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zellogw_bytes_sent_total",
			Help: "Total bytes sent across all legs.",
		}),
		zelloReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zellogw_zello_reconnects_total",
			Help: "Total number of Zello WebSocket reconnect attempts.",
		}),
		zelloState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zellogw_zello_state",
			Help: "Current ZelloSession state (matches zello.State ordinal).",
		}),
		pagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zellogw_pages_total",
			Help: "Total page (CALL_ALRT) events, by direction.",
		}, []string{"direction"}),
		encryptedRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zellogw_encrypted_calls_rejected_total",
			Help: "Total encrypted calls rejected, by radio leg.",
		}, []string{"leg"}),
	}

	registry.MustRegister(
		c.callsTotal, c.callDuration, c.activeCalls,
		c.packetsReceived, c.packetsSent,
		c.bytesReceived, c.bytesSent,
		c.zelloReconnects, c.zelloState,
		c.pagesTotal, c.encryptedRejected,
	)
	return c
}

// Registry returns the private registry these metrics are registered
// against, for use by a promhttp.Handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// CallStarted records a call beginning on leg.
func (c *Collector) CallStarted(leg string) {
	c.activeCalls.WithLabelValues(leg).Inc()
}

// CallEnded records a call ending on leg after durationSeconds.
func (c *Collector) CallEnded(leg string, durationSeconds float64) {
	c.activeCalls.WithLabelValues(leg).Dec()
	c.callsTotal.WithLabelValues(leg).Inc()
	c.callDuration.WithLabelValues(leg).Observe(durationSeconds)
}

// PacketReceived records one inbound packet of the given protocol
// ("dmrd", "p25d", "zello-binary", "zello-text").
func (c *Collector) PacketReceived(protocol string) {
	c.packetsReceived.WithLabelValues(protocol).Inc()
}

// PacketSent records one outbound packet of the given protocol.
func (c *Collector) PacketSent(protocol string) {
	c.packetsSent.WithLabelValues(protocol).Inc()
}

// BytesReceived adds n to the received byte counter.
func (c *Collector) BytesReceived(n uint64) { c.bytesReceived.Add(float64(n)) }

// BytesSent adds n to the sent byte counter.
func (c *Collector) BytesSent(n uint64) { c.bytesSent.Add(float64(n)) }

// ZelloReconnected records one Zello WebSocket reconnect attempt.
func (c *Collector) ZelloReconnected() { c.zelloReconnects.Inc() }

// ZelloStateChanged records the ZelloSession's current state ordinal.
func (c *Collector) ZelloStateChanged(state int) { c.zelloState.Set(float64(state)) }

// PageSent records an outbound page (radio-originated CALL_ALRT forwarded
// to Zello, or vice versa).
func (c *Collector) PageSent(direction string) { c.pagesTotal.WithLabelValues(direction).Inc() }

// EncryptedCallRejected records an encrypted call dropped on leg.
func (c *Collector) EncryptedCallRejected(leg string) { c.encryptedRejected.WithLabelValues(leg).Inc() }
