package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	ResearchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_runs_total",
			Help: "Total number of research runs by final status",
		},
		[]string{"status", "stop_reason"},
	)

	ResearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	LoopsCompleted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_loops_completed",
			Help:    "Research/reflect rounds completed per run",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8},
		},
	)

	SourcesFound = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_sources_found",
			Help:    "Unique sources discovered per run",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 200},
		},
	)

	// Stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Provider metrics; outcome is ok, failed, fallback or unrecognized.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_provider_calls_total",
			Help: "External calls by component and outcome",
		},
		[]string{"component", "outcome"},
	)

	RetrievalPoolInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "research_retrieval_pool_in_use",
			Help: "Retrieval worker pool slots currently held",
		},
	)
)
