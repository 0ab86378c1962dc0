package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records provider calls and node outcomes. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerRetries  *prometheus.CounterVec
	nodeResults      *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stackforge",
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Total number of provider calls by resource type, operation and result",
			},
			[]string{"type", "operation", "result"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stackforge",
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "Duration of provider calls including retries",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
			},
			[]string{"type", "operation"},
		),
		providerRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stackforge",
				Subsystem: "provider",
				Name:      "retries_total",
				Help:      "Total number of retried provider calls",
			},
			[]string{"type", "operation"},
		),
		nodeResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stackforge",
				Subsystem: "engine",
				Name:      "node_results_total",
				Help:      "Total number of processed nodes by planned action and status",
			},
			[]string{"action", "status"},
		),
	}
	m.registry.MustRegister(m.providerCalls, m.providerDuration, m.providerRetries, m.nodeResults)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the collectors in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeCall(resourceType, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.providerCalls.WithLabelValues(resourceType, op, result).Inc()
	m.providerDuration.WithLabelValues(resourceType, op).Observe(d.Seconds())
}

func (m *Metrics) observeRetry(resourceType, op string) {
	if m == nil {
		return
	}
	m.providerRetries.WithLabelValues(resourceType, op).Inc()
}

func (m *Metrics) observeNode(action Action, status Status) {
	if m == nil {
		return
	}
	m.nodeResults.WithLabelValues(string(action), string(status)).Inc()
}
