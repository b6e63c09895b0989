// Package metrics exposes Prometheus instruments for router sessions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all client metrics.
type Registry struct {
	// Handshakes counts Connect outcomes by error kind ("ok" on success).
	Handshakes *prometheus.CounterVec
	// HandshakeLatency covers key exchange through the final login reply.
	HandshakeLatency prometheus.Histogram

	Calls       *prometheus.CounterVec
	CallLatency *prometheus.HistogramVec

	Logouts        *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.Handshakes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archer_handshakes_total",
		Help: "Login handshakes by outcome",
	}, []string{"outcome"})

	r.HandshakeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archer_handshake_duration_seconds",
		Help:    "Time from key exchange to the final login reply",
		Buckets: prometheus.DefBuckets,
	})

	r.Calls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archer_calls_total",
		Help: "Encrypted calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	r.CallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archer_call_duration_seconds",
		Help:    "Encrypted call round trip latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	r.Logouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archer_logouts_total",
		Help: "Logouts by outcome",
	}, []string{"outcome"})

	r.ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archer_active_sessions",
		Help: "Authenticated sessions currently held",
	})

	return r
}

// RecordHandshake records one Connect.
func (r *Registry) RecordHandshake(outcome string, d time.Duration) {
	r.Handshakes.WithLabelValues(outcome).Inc()
	r.HandshakeLatency.Observe(d.Seconds())
}

// RecordCall records one encrypted call.
func (r *Registry) RecordCall(endpoint, outcome string, d time.Duration) {
	r.Calls.WithLabelValues(endpoint, outcome).Inc()
	r.CallLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordLogout records one logout.
func (r *Registry) RecordLogout(outcome string) {
	r.Logouts.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the active session gauge.
func (r *Registry) SessionOpened() { r.ActiveSessions.Inc() }

// SessionClosed decrements the active session gauge.
func (r *Registry) SessionClosed() { r.ActiveSessions.Dec() }

// WriteTextfile writes every registered metric to path in the text format
// read by the node_exporter textfile collector. One-shot CLI runs have no
// scrape endpoint, so this is how their metrics leave the process.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
