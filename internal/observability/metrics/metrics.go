package metrics

import "github.com/prometheus/client_golang/prometheus"

// OpportunityMetrics exposes counters/histograms for the identification pipeline.
type OpportunityMetrics struct {
	pipelineRuns  *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	fetchFailures *prometheus.CounterVec
	enhanceFalls  prometheus.Counter
	actions       *prometheus.CounterVec
	identified    *prometheus.CounterVec
}

func NewOpportunityMetrics(reg prometheus.Registerer) *OpportunityMetrics {
	m := &OpportunityMetrics{
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "woundcare",
			Subsystem: "opportunity",
			Name:      "pipeline_runs_total",
			Help:      "Total identification pipeline runs by outcome",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "woundcare",
			Subsystem: "opportunity",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result (hit, miss, error, bypass)",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "woundcare",
			Subsystem: "opportunity",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "woundcare",
			Subsystem: "context",
			Name:      "fetch_failures_total",
			Help:      "Context builder sub-fetch failures by source",
		}, []string{"source"}),
		enhanceFalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "woundcare",
			Subsystem: "opportunity",
			Name:      "enhancement_fallbacks_total",
			Help:      "Enhancement calls that failed and fell back to rule-based results",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "woundcare",
			Subsystem: "opportunity",
			Name:      "actions_total",
			Help:      "Actions taken against opportunities by type and outcome",
		}, []string{"action_type", "outcome"}),
		identified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "woundcare",
			Subsystem: "opportunity",
			Name:      "identified_total",
			Help:      "Opportunities identified by category",
		}, []string{"category"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.pipelineRuns, m.cacheLookups, m.stageDuration, m.fetchFailures, m.enhanceFalls, m.actions, m.identified)
	return m
}

func (m *OpportunityMetrics) ObservePipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(outcome).Inc()
}

func (m *OpportunityMetrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *OpportunityMetrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *OpportunityMetrics) ObserveFetchFailure(source string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(source).Inc()
}

func (m *OpportunityMetrics) ObserveEnhancementFallback() {
	if m == nil {
		return
	}
	m.enhanceFalls.Inc()
}

func (m *OpportunityMetrics) ObserveAction(actionType string, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.actions.WithLabelValues(actionType, outcome).Inc()
}

func (m *OpportunityMetrics) ObserveIdentified(category string) {
	if m == nil {
		return
	}
	m.identified.WithLabelValues(category).Inc()
}
