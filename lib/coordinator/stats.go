package coordinator

import (
	"github.com/ValentinKolb/solo/rpc/codec"
	"github.com/rcrowley/go-metrics"
	"time"
)

// metric names within the registry of a coordinator
const (
	metricConnections       = "connections"
	metricDispatched        = "dispatched"
	metricHandshakes        = "handshakes"
	metricHandshakeFailures = "handshake.failures"
)

// Stats is a snapshot of the counters of a coordinator
type Stats struct {
	Role       Role   `json:"role"`
	InstanceID uint16 `json:"instance_id"`
	Endpoint   string `json:"endpoint"`

	// primary side
	Connections    int64   `json:"connections"`
	Dispatched     int64   `json:"dispatched"`
	DispatchRate1m float64 `json:"dispatch_rate_1m"`

	// secondary side
	Handshakes        int64         `json:"handshakes"`
	HandshakeFailures int64         `json:"handshake_failures"`
	HandshakeMean     time.Duration `json:"handshake_mean"`
	HandshakeP99      time.Duration `json:"handshake_p99"`

	// process wide frame counters
	Codec codec.Stats `json:"codec"`
}

// coordinatorMetrics holds the metrics of one coordinator in its own registry
type coordinatorMetrics struct {
	registry          metrics.Registry
	dispatched        metrics.Meter
	handshakes        metrics.Timer
	handshakeFailures metrics.Counter
}

func newCoordinatorMetrics(connections func() int64) *coordinatorMetrics {
	registry := metrics.NewRegistry()
	metrics.NewRegisteredFunctionalGauge(metricConnections, registry, connections)

	return &coordinatorMetrics{
		registry:          registry,
		dispatched:        metrics.NewRegisteredMeter(metricDispatched, registry),
		handshakes:        metrics.NewRegisteredTimer(metricHandshakes, registry),
		handshakeFailures: metrics.NewRegisteredCounter(metricHandshakeFailures, registry),
	}
}

// snapshot fills the metric fields of stats
func (m *coordinatorMetrics) snapshot(stats *Stats) {
	if gauge, ok := m.registry.Get(metricConnections).(metrics.Gauge); ok {
		stats.Connections = gauge.Value()
	}

	dispatched := m.dispatched.Snapshot()
	stats.Dispatched = dispatched.Count()
	stats.DispatchRate1m = dispatched.Rate1()

	handshakes := m.handshakes.Snapshot()
	stats.Handshakes = handshakes.Count()
	stats.HandshakeMean = time.Duration(handshakes.Mean())
	stats.HandshakeP99 = time.Duration(handshakes.Percentile(0.99))
	stats.HandshakeFailures = m.handshakeFailures.Count()

	stats.Codec = codec.ReadStats()
}

// stop releases the meters of the registry
func (m *coordinatorMetrics) stop() {
	m.registry.UnregisterAll()
}
