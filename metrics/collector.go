// Package metrics provides optional Prometheus instrumentation for peerwire
// transports. A Collector is attached through the transport options; a nil
// Collector disables instrumentation, so transports call the recording
// methods unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backend label values used by the transports.
const (
	BackendWebSocket = "websocket"
	BackendTCP       = "tcp"
)

// Direction label values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Collector holds the Prometheus series a transport instance feeds. All
// recording methods are safe on a nil receiver.
type Collector struct {
	connectionsTotal    *prometheus.CounterVec
	disconnectionsTotal *prometheus.CounterVec
	framesReceivedTotal *prometheus.CounterVec
	framesSentTotal     *prometheus.CounterVec
	bytesReceivedTotal  *prometheus.CounterVec
	bytesSentTotal      *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	connectedPeers      *prometheus.GaugeVec
}

// NewCollector registers the peerwire metric series with the given registry
// and returns a collector ready to attach to transport options. Pass
// prometheus.DefaultRegisterer for the process-global registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerwire",
			Name:      "connections_total",
			Help:      "Identified peer connections, by backend and direction.",
		}, []string{"backend", "direction"}),
		disconnectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerwire",
			Name:      "disconnections_total",
			Help:      "Torn-down identified connections, by backend.",
		}, []string{"backend"}),
		framesReceivedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerwire",
			Name:      "frames_received_total",
			Help:      "Payload frames delivered to the frame handler, by backend.",
		}, []string{"backend"}),
		framesSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerwire",
			Name:      "frames_sent_total",
			Help:      "Payload frames written to identified peers, by backend.",
		}, []string{"backend"}),
		bytesReceivedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerwire",
			Name:      "frame_bytes_received_total",
			Help:      "Payload bytes delivered to the frame handler, by backend.",
		}, []string{"backend"}),
		bytesSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerwire",
			Name:      "frame_bytes_sent_total",
			Help:      "Payload bytes written to identified peers, by backend.",
		}, []string{"backend"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerwire",
			Name:      "connection_errors_total",
			Help:      "Per-connection faults surfaced as error events, by backend.",
		}, []string{"backend"}),
		connectedPeers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "peerwire",
			Name:      "connected_peers",
			Help:      "Currently identified peers, by backend.",
		}, []string{"backend"}),
	}
}

// ConnectionOpened records an identified connection.
func (c *Collector) ConnectionOpened(backend, direction string) {
	if c == nil {
		return
	}
	c.connectionsTotal.WithLabelValues(backend, direction).Inc()
	c.connectedPeers.WithLabelValues(backend).Inc()
}

// ConnectionClosed records the teardown of an identified connection.
func (c *Collector) ConnectionClosed(backend string) {
	if c == nil {
		return
	}
	c.disconnectionsTotal.WithLabelValues(backend).Inc()
	c.connectedPeers.WithLabelValues(backend).Dec()
}

// FrameReceived records one delivered payload frame.
func (c *Collector) FrameReceived(backend string, bytes int) {
	if c == nil {
		return
	}
	c.framesReceivedTotal.WithLabelValues(backend).Inc()
	c.bytesReceivedTotal.WithLabelValues(backend).Add(float64(bytes))
}

// FrameSent records one written payload frame.
func (c *Collector) FrameSent(backend string, bytes int) {
	if c == nil {
		return
	}
	c.framesSentTotal.WithLabelValues(backend).Inc()
	c.bytesSentTotal.WithLabelValues(backend).Add(float64(bytes))
}

// ConnectionError records a per-connection fault.
func (c *Collector) ConnectionError(backend string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(backend).Inc()
}
