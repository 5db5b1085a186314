package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NXWeb-Group/wisp-client-go/types"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "wisp").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "wisp",
		Subsystem: "client",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors shared by every connection configured with
// it. Create it once per registry; a nil *Metrics records nothing.
type Metrics struct {
	packetsReceived *prometheus.CounterVec
	packetsSent     *prometheus.CounterVec
	packetsDropped  *prometheus.CounterVec
	activeStreams   prometheus.Gauge
	streamsOpened   prometheus.Counter
	streamsClosed   *prometheus.CounterVec
	queuedSends     prometheus.Counter
	handshakes      *prometheus.CounterVec
}

// NewMetrics registers the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packets_received_total",
			Help:        "Total number of decoded packets received",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packets_sent_total",
			Help:        "Total number of packets written to the transport",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "packets_dropped_total",
			Help:        "Total number of inbound messages dropped",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_streams",
			Help:        "Current number of open streams",
			ConstLabels: config.ConstLabels,
		}),

		streamsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "streams_opened_total",
			Help:        "Total number of streams created",
			ConstLabels: config.ConstLabels,
		}),

		streamsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "streams_closed_total",
			Help:        "Total number of streams closed, by initiator",
			ConstLabels: config.ConstLabels,
		}, []string{"initiator"}),

		queuedSends: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "queued_sends_total",
			Help:        "Total number of sends queued waiting for credit",
			ConstLabels: config.ConstLabels,
		}),

		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handshakes_total",
			Help:        "Total number of completed handshakes by negotiated version",
			ConstLabels: config.ConstLabels,
		}, []string{"version"}),
	}
}

const (
	closedByLocal    = "local"
	closedByPeer     = "peer"
	closedByTeardown = "teardown"
)

func (m *Metrics) received(t types.PACKET_TYPE) {
	if m != nil {
		m.packetsReceived.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) sent(t types.PACKET_TYPE) {
	if m != nil {
		m.packetsSent.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) dropped(reason DropReason) {
	if m != nil {
		m.packetsDropped.WithLabelValues(string(reason)).Inc()
	}
}

func (m *Metrics) streamOpened() {
	if m != nil {
		m.streamsOpened.Inc()
		m.activeStreams.Inc()
	}
}

func (m *Metrics) streamClosed(initiator string) {
	if m != nil {
		m.streamsClosed.WithLabelValues(initiator).Inc()
		m.activeStreams.Dec()
	}
}

func (m *Metrics) queued() {
	if m != nil {
		m.queuedSends.Inc()
	}
}

func (m *Metrics) handshake(version uint8) {
	if m != nil {
		label := "1"
		if version == 2 {
			label = "2"
		}
		m.handshakes.WithLabelValues(label).Inc()
	}
}
