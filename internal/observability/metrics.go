// Package observability provides Prometheus metrics for the research pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	researchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_research_runs_total",
			Help: "Total number of research pipeline runs",
		},
		[]string{"status"}, // status: done, failed
	)

	researchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_research_duration_seconds",
			Help:    "Research pipeline duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	researchIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_research_iterations",
			Help:    "Research-critique refinement cycles per run",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
		},
	)
)

var (
	searchCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_search_calls_total",
			Help: "Total search provider calls, including retries",
		},
		[]string{"status"}, // status: success, retryable_error, fatal_error
	)

	searchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_search_retries_total",
			Help: "Total search retry attempts after retryable failures",
		},
	)

	searchResultsFilteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_search_results_filtered_total",
			Help: "Search results dropped by the domain blacklist",
		},
	)
)

var (
	generationCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_generation_calls_total",
			Help: "Structured generation attempts by resolution tier",
		},
		[]string{"node", "tier"}, // tier: structured, freetext, fallback, error
	)

	planCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_plan_cache_lookups_total",
			Help: "Plan cache lookups by outcome",
		},
		[]string{"outcome"}, // outcome: hit, miss, error
	)
)

// RecordResearchRun records a completed pipeline run.
func RecordResearchRun(status string, durationMS int64, iterations int) {
	researchRunsTotal.WithLabelValues(status).Inc()
	researchDurationSeconds.Observe(float64(durationMS) / 1000.0)
	researchIterations.Observe(float64(iterations))
}

// RecordSearchCall records one provider call outcome.
func RecordSearchCall(status string) {
	searchCallsTotal.WithLabelValues(status).Inc()
}

// RecordSearchRetry records one retry after a retryable failure.
func RecordSearchRetry() {
	searchRetriesTotal.Inc()
}

// RecordFilteredResults records results dropped by the blacklist.
func RecordFilteredResults(count int) {
	if count <= 0 {
		return
	}
	searchResultsFilteredTotal.Add(float64(count))
}

// RecordGenerationTier records which fallback tier resolved a generation call.
func RecordGenerationTier(node, tier string) {
	generationCallsTotal.WithLabelValues(node, tier).Inc()
}

// RecordPlanCacheLookup records a cache lookup outcome.
func RecordPlanCacheLookup(outcome string) {
	planCacheLookupsTotal.WithLabelValues(outcome).Inc()
}
