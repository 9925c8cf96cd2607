// Package metrics exposes Prometheus counters for the event processor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for EventsTotal.
const (
	OutcomeApplied   = "applied"
	OutcomeDropped   = "dropped"
	OutcomeDenied    = "denied"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the processor metrics registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	EventsTotal       *prometheus.CounterVec
	EventLatency      *prometheus.HistogramVec
	SnapshotsExported prometheus.Counter
	LastBlock         prometheus.Gauge
	LastFlush         prometheus.Gauge
}

// New creates metrics on a fresh registry. An empty namespace defaults to "positionscope".
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "positionscope"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events handled by the processor, by event name and outcome",
		}, []string{"event", "outcome"}),
		EventLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handle_seconds",
			Help:      "Time spent handling one event, including collaborator calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		SnapshotsExported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "snapshots_total",
			Help:      "Position snapshots flushed to the analytics sink",
		}),
		LastBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_block",
			Help:      "Block number of the last applied event",
		}),
		LastFlush: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_flush_timestamp",
			Help:      "Unix timestamp of the last successful flush",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent records one handled event.
func (m *Metrics) ObserveEvent(event, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(event, outcome).Inc()
	m.EventLatency.WithLabelValues(event).Observe(elapsed.Seconds())
}

// ObserveBlock moves the last-block gauge.
func (m *Metrics) ObserveBlock(block uint64) {
	if m == nil {
		return
	}
	m.LastBlock.Set(float64(block))
}

// ObserveFlush records a successful flush of n snapshots.
func (m *Metrics) ObserveFlush(n int, at time.Time) {
	if m == nil {
		return
	}
	m.SnapshotsExported.Add(float64(n))
	m.LastFlush.Set(float64(at.Unix()))
}
