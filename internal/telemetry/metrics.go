package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты цикла scheduler'а (label "result").
const (
	CycleResultCompleted = "completed"
	CycleResultSkipped   = "skipped" // lock занят другим экземпляром
	CycleResultAborted   = "aborted" // инфраструктурная ошибка
)

// Исходы обработки work item (label "outcome").
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeDropped = "dropped"
)

var (
	// SchedulerCycles — число циклов scheduler'а по результату.
	SchedulerCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronqueue_scheduler_cycles_total",
		Help: "Scheduling cycles by result",
	}, []string{"result"})

	// SchedulerExecutionsQueued — созданные execution records.
	SchedulerExecutionsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cronqueue_scheduler_executions_queued_total",
		Help: "Execution records created and enqueued by the scheduler",
	})

	// SchedulerDuplicates — срабатывания, уже занятые предыдущими циклами.
	SchedulerDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cronqueue_scheduler_duplicates_total",
		Help: "Occurrences rejected by the (job_id, scheduled_time) uniqueness constraint",
	})

	// SchedulerEnqueueFailures — записи, созданные без элемента в очереди.
	SchedulerEnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cronqueue_scheduler_enqueue_failures_total",
		Help: "Execution records left QUEUED because enqueue failed",
	})

	// SchedulerStaleQueued — QUEUED-записи старше порога (требуют ручной сверки).
	SchedulerStaleQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cronqueue_scheduler_stale_queued_executions",
		Help: "QUEUED execution records older than the stale threshold",
	})

	// WorkerItems — обработанные work items по исходу.
	WorkerItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronqueue_worker_items_total",
		Help: "Work items processed by outcome",
	}, []string{"outcome"})

	// WorkerTaskDuration — длительность выполнения задач.
	WorkerTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cronqueue_worker_task_duration_seconds",
		Help:    "Task execution duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"task_type"})

	// APIRequests — HTTP-запросы к management API.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronqueue_api_requests_total",
		Help: "Management API requests by route and status code",
	}, []string{"method", "route", "status"})

	// APIRequestDuration — время обработки запросов API.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cronqueue_api_request_duration_seconds",
		Help:    "Management API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
