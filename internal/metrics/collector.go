// Package metrics holds the Prometheus instrumentation for an idalloc
// node: a Collector struct of pre-registered vectors plus small
// increment/set methods called from the allocator's hot paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arkose-id/idalloc/internal/idcompressor"
)

const (
	namespace = "idalloc"
	subsystem = ""
)

// Label values for the generated-ids counter.
const (
	kindEagerFinal = "eager_final"
	kindLocal      = "local"
)

// Label values for the cluster-events counter.
const (
	eventExpansion = "expansion"
	eventCreation  = "creation"
)

// Collector holds all idalloc Prometheus metrics.
type Collector struct {
	// GeneratedIDs counts ids returned by GenerateNextID, labeled by
	// whether they landed in reserved capacity (eager_final) or were
	// brand-new locals (local).
	GeneratedIDs *prometheus.CounterVec

	// ClusterEvents counts FinalizeRange calls that grew a cluster in
	// place (expansion) or created a new one (creation).
	ClusterEvents *prometheus.CounterVec

	// Sessions tracks the number of sessions this node is actively
	// serializing generation for.
	Sessions prometheus.Gauge

	// FinalIDLimit tracks one past the largest finalized final id.
	FinalIDLimit prometheus.Gauge

	// FinalizeErrors counts FinalizeRange failures, labeled by cause.
	FinalizeErrors *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.GeneratedIDs,
		c.ClusterEvents,
		c.Sessions,
		c.FinalIDLimit,
		c.FinalizeErrors,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		GeneratedIDs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generated_ids_total",
			Help:      "Total ids returned by GenerateNextID, by kind.",
		}, []string{"kind"}),

		ClusterEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cluster_events_total",
			Help:      "Total cluster expansion/creation events during FinalizeRange.",
		}, []string{"kind"}),

		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of sessions this node is serializing generation for.",
		}),

		FinalIDLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "final_id_limit",
			Help:      "One past the largest finalized final id.",
		}),

		FinalizeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "finalize_errors_total",
			Help:      "Total FinalizeRange failures, by cause.",
		}, []string{"kind"}),
	}
}

// ObserveGenerate records the telemetry delta from a single GenerateNextID
// call (stats is reset-on-read, so callers must pass the delta, not a
// running total).
func (c *Collector) ObserveGenerate(stats idcompressor.TelemetryStats) {
	if stats.EagerFinalCount > 0 {
		c.GeneratedIDs.WithLabelValues(kindEagerFinal).Add(float64(stats.EagerFinalCount))
	}
	if stats.LocalIDCount > 0 {
		c.GeneratedIDs.WithLabelValues(kindLocal).Add(float64(stats.LocalIDCount))
	}
}

// ObserveFinalize records the telemetry delta from a single FinalizeRange
// call.
func (c *Collector) ObserveFinalize(stats idcompressor.TelemetryStats) {
	if stats.ExpansionCount > 0 {
		c.ClusterEvents.WithLabelValues(eventExpansion).Add(float64(stats.ExpansionCount))
	}
	if stats.ClusterCreationCount > 0 {
		c.ClusterEvents.WithLabelValues(eventCreation).Add(float64(stats.ClusterCreationCount))
	}
}

// ObserveFinalizeError increments the finalize-error counter for kind.
func (c *Collector) ObserveFinalizeError(kind string) {
	c.FinalizeErrors.WithLabelValues(kind).Inc()
}

// SetSessionCount sets the active-session gauge.
func (c *Collector) SetSessionCount(n int) {
	c.Sessions.Set(float64(n))
}

// SetFinalIDLimit sets the final-id-limit gauge.
func (c *Collector) SetFinalIDLimit(limit uint64) {
	c.FinalIDLimit.Set(float64(limit))
}
