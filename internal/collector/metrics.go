package collector

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collector's Prometheus metrics. They live in a private
// registry that is only ever flushed to a textfile.
type Metrics struct {
	registry *prometheus.Registry

	Queries      prometheus.Counter
	Collections  prometheus.Counter
	Failures     *prometheus.CounterVec
	SourceResets prometheus.Counter

	BreakerOpen   prometheus.Gauge
	BackoffDelay  prometheus.Gauge
	UniqueDevices prometheus.Gauge
	Position      prometheus.Gauge
}

// NewMetrics creates and registers the collector metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnslogd_queries_total",
			Help: "Total number of DNS queries parsed from the ctrld log",
		}),
		Collections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnslogd_collections_total",
			Help: "Total number of successful collection cycles",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dnslogd_collection_failures_total",
			Help: "Total number of failed collection cycles by failure kind",
		}, []string{"kind"}),
		SourceResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnslogd_source_resets_total",
			Help: "Number of times the log source shrank below the stored offset",
		}),
		BreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnslogd_breaker_open",
			Help: "1 while the circuit breaker is open",
		}),
		BackoffDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnslogd_backoff_seconds",
			Help: "Current retry delay applied while the breaker is open",
		}),
		UniqueDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnslogd_unique_devices",
			Help: "Distinct client IPs seen in the current session",
		}),
		Position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnslogd_last_processed_position_bytes",
			Help: "Byte offset of the ctrld log processed so far",
		}),
	}

	m.registry.MustRegister(
		m.Queries,
		m.Collections,
		m.Failures,
		m.SourceResets,
		m.BreakerOpen,
		m.BackoffDelay,
		m.UniqueDevices,
		m.Position,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// failureKind maps a cycle error to its metric label.
func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrSourceUnavailable):
		return "source"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrPersist):
		return "persist"
	default:
		return "other"
	}
}
