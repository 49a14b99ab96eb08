package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageAttempts tracks every stage attempt by outcome
	StageAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autowriter_stage_attempts_total",
			Help: "Total number of stage attempts",
		},
		[]string{"stage", "outcome"},
	)

	// StageDuration tracks how long a single stage attempt takes
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autowriter_stage_duration_seconds",
			Help:    "Stage attempt latency in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"stage"},
	)

	// ChaptersFinalized tracks chapters that completed finalize
	ChaptersFinalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autowriter_chapters_finalized_total",
			Help: "Total number of chapters finalized",
		},
	)

	// ChaptersSkipped tracks chapters abandoned after exhausted retries
	ChaptersSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autowriter_chapters_skipped_total",
			Help: "Total number of chapters skipped after exhausted retries",
		},
		[]string{"stage"},
	)

	// Enrichments tracks drafts expanded to reach the target length
	Enrichments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autowriter_enrichments_total",
			Help: "Total number of under-length drafts enriched",
		},
	)

	// CheckpointNextChapter tracks the persisted next chapter
	CheckpointNextChapter = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autowriter_checkpoint_next_chapter",
			Help: "Persisted next chapter to produce",
		},
	)

	// StateTransitions tracks chapter state machine transitions
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autowriter_state_transitions_total",
			Help: "Total number of chapter state transitions",
		},
		[]string{"from", "to"},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "autowriter_db_connection_pool_usage_percent",
			Help: "Percentage of database connections in use",
		},
	)

	// LLMRequests tracks requests to the generation service by call and status
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autowriter_llm_requests_total",
			Help: "Total number of generation service requests",
		},
		[]string{"call", "status"},
	)

	// LLMLatency tracks generation service latency
	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autowriter_llm_request_duration_seconds",
			Help:    "Generation service request latency in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"call"},
	)
)

// ObserveAttempt records one stage attempt. Its signature matches retry.Observer.
func ObserveAttempt(stage string, attempt int, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	StageAttempts.WithLabelValues(stage, outcome).Inc()
	StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}
