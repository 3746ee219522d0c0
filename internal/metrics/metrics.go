// Package metrics exposes the Prometheus collectors for the runtime.
// Collectors are registered on the default registry and served by the
// HTTP server under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts runs that entered the running state.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weft_runs_started_total",
		Help: "Total number of runs started.",
	})

	// RunsFinished counts finished runs by terminal status
	// (completed, failed, cancelled).
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weft_runs_total",
		Help: "Total number of finished runs by terminal status.",
	}, []string{"status"})

	// RunDuration observes wall-clock run duration from start to
	// terminal state.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weft_run_duration_seconds",
		Help:    "Run duration in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	// EventsAppended counts events durably appended to run logs.
	EventsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weft_events_appended_total",
		Help: "Total number of events appended to run logs.",
	})

	// StepsTotal counts executed steps by outcome.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weft_steps_total",
		Help: "Total number of executed steps by outcome.",
	}, []string{"status"})

	// ActiveRuns tracks the number of runs currently executing.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "weft_active_runs",
		Help: "Number of runs currently executing.",
	})
)
