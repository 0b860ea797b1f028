package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/arkose-id/idalloc/internal/idcompressor"
	"github.com/arkose-id/idalloc/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.GeneratedIDs == nil {
		t.Error("GeneratedIDs is nil")
	}
	if c.ClusterEvents == nil {
		t.Error("ClusterEvents is nil")
	}
	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.FinalIDLimit == nil {
		t.Error("FinalIDLimit is nil")
	}
	if c.FinalizeErrors == nil {
		t.Error("FinalizeErrors is nil")
	}

	// Registration must not panic and must gather cleanly even with no
	// data recorded yet.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestObserveGenerate(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.ObserveGenerate(idcompressor.TelemetryStats{EagerFinalCount: 2, LocalIDCount: 5})
	c.ObserveGenerate(idcompressor.TelemetryStats{EagerFinalCount: 1})

	if got := counterValue(t, c.GeneratedIDs, "eager_final"); got != 3 {
		t.Errorf("GeneratedIDs{eager_final} = %v, want 3", got)
	}
	if got := counterValue(t, c.GeneratedIDs, "local"); got != 5 {
		t.Errorf("GeneratedIDs{local} = %v, want 5", got)
	}
}

func TestObserveGenerateZeroDeltaNoOp(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.ObserveGenerate(idcompressor.TelemetryStats{})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "idalloc_generated_ids_total" && len(f.GetMetric()) != 0 {
			t.Errorf("expected no generated_ids_total series recorded, got %d", len(f.GetMetric()))
		}
	}
}

func TestObserveFinalize(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.ObserveFinalize(idcompressor.TelemetryStats{ExpansionCount: 4, ClusterCreationCount: 1})
	c.ObserveFinalize(idcompressor.TelemetryStats{ExpansionCount: 1})

	if got := counterValue(t, c.ClusterEvents, "expansion"); got != 5 {
		t.Errorf("ClusterEvents{expansion} = %v, want 5", got)
	}
	if got := counterValue(t, c.ClusterEvents, "creation"); got != 1 {
		t.Errorf("ClusterEvents{creation} = %v, want 1", got)
	}
}

func TestObserveFinalizeError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.ObserveFinalizeError("out_of_order")
	c.ObserveFinalizeError("out_of_order")
	c.ObserveFinalizeError("collision")

	if got := counterValue(t, c.FinalizeErrors, "out_of_order"); got != 2 {
		t.Errorf("FinalizeErrors{out_of_order} = %v, want 2", got)
	}
	if got := counterValue(t, c.FinalizeErrors, "collision"); got != 1 {
		t.Errorf("FinalizeErrors{collision} = %v, want 1", got)
	}
}

func TestSetSessionCountAndFinalIDLimit(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetSessionCount(3)
	c.SetFinalIDLimit(42)

	if got := gaugeValue(t, c.Sessions); got != 3 {
		t.Errorf("Sessions = %v, want 3", got)
	}
	if got := gaugeValue(t, c.FinalIDLimit); got != 42 {
		t.Errorf("FinalIDLimit = %v, want 42", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
