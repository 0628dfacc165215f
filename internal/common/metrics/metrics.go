// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_sweep_runs_total",
			Help: "Total number of sweep executions per job",
		},
		[]string{"job", "result"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "engine_sweep_duration_seconds",
			Help: "Duration of sweep executions in seconds",
		},
		[]string{"job"},
	)

	RemindersDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_reminders_dispatched_total",
			Help: "Total reminder dispatch attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	EscalationsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_escalations_total",
			Help: "Total escalation events emitted after exhausted retries",
		},
	)

	OccurrencesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_occurrences_generated_total",
			Help: "Total task occurrences materialized by the generator",
		},
	)

	TransitionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_transitions_applied_total",
			Help: "Total state transitions applied per entity type",
		},
		[]string{"entity"},
	)
)
