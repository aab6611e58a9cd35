package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOpportunityMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOpportunityMetrics(reg)
	m.ObservePipelineRun("success")
	m.ObservePipelineRun("success")
	m.ObserveCacheLookup("hit")
	m.ObserveStage("evaluate", 0.01)
	m.ObserveFetchFailure("coverage")
	m.ObserveEnhancementFallback()
	m.ObserveAction("order_product", true)
	m.ObserveIdentified("wound_care")

	if got := testutil.ToFloat64(m.pipelineRuns.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successful runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.fetchFailures.WithLabelValues("coverage")); got != 1 {
		t.Fatalf("expected 1 coverage failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.actions.WithLabelValues("order_product", "success")); got != 1 {
		t.Fatalf("expected 1 successful action, got %v", got)
	}
}

func TestOpportunityMetricsNilSafe(t *testing.T) {
	var m *OpportunityMetrics
	m.ObservePipelineRun("failure")
	m.ObserveCacheLookup("miss")
	m.ObserveStage("enrich", 0.1)
	m.ObserveFetchFailure("wounds")
	m.ObserveEnhancementFallback()
	m.ObserveAction("dismiss", false)
	m.ObserveIdentified("quality")
}
