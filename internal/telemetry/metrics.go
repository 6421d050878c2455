package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки job для JobsHandledTotal.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeLockLost  = "lock_lost"
)

// Стадии pipeline для DecoratorFailuresTotal.
const (
	StageBefore = "before"
	StageAfter  = "after"
)

var (
	// JobsActivatedTotal — количество активированных jobs.
	JobsActivatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_jobs_activated_total",
			Help: "Total number of jobs activated by dispatch loops",
		},
		[]string{"task_type"},
	)

	// JobsHandledTotal — количество обработанных jobs по исходу.
	JobsHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_jobs_handled_total",
			Help: "Total number of jobs passed through the handler pipeline",
		},
		[]string{"task_type", "outcome"},
	)

	// JobDurationSeconds — длительность pipeline одной job.
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conveyor_job_duration_seconds",
			Help:    "Duration of the handler pipeline per job",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type"},
	)

	// DecoratorFailuresTotal — подавленные ошибки декораторов.
	DecoratorFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_decorator_failures_total",
			Help: "Total number of suppressed decorator failures",
		},
		[]string{"task_type", "stage"},
	)

	// TaskThreadRestartsTotal — перезапуски dispatch loop'ов супервизором.
	TaskThreadRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conveyor_task_thread_restarts_total",
			Help: "Total number of dead dispatch loops restarted by the watcher",
		},
		[]string{"task_type"},
	)

	// WatcherConsecutiveErrors — текущее значение счётчика ошибок супервизора.
	WatcherConsecutiveErrors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conveyor_watcher_consecutive_errors",
			Help: "Consecutive task thread deaths observed by the watcher",
		},
	)
)
