package observability

import (
	"database/sql"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every custom collector of the API and worker processes.
// All helper methods are safe on a nil receiver so packages can record
// without checking whether metrics were initialised.
type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Task Metrics
	TasksCreatedTotal      *prometheus.CounterVec
	TasksProcessedTotal    *prometheus.CounterVec
	TaskProcessingDuration *prometheus.HistogramVec
	TasksFailedTotal       *prometheus.CounterVec
	TaskRetriesTotal       *prometheus.CounterVec
	TasksCancelledTotal    *prometheus.CounterVec

	// Import / export Metrics
	ImportRowsTotal      *prometheus.CounterVec
	ExportDocumentsTotal *prometheus.CounterVec

	// Cache (Redis) Metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Queue Metrics
	QueueMessagesPublished *prometheus.CounterVec
	QueueMessagesConsumed  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		TasksCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulk_tasks_created_total",
				Help: "Total number of bulk operation tasks created",
			},
			[]string{"operation"},
		),

		TasksProcessedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulk_tasks_processed_total",
				Help: "Total number of bulk operation tasks that reached a terminal state in a worker",
			},
			[]string{"operation", "status"},
		),

		TaskProcessingDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bulk_task_processing_duration_seconds",
				Help:    "Duration of bulk operation runs in seconds",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
			},
			[]string{"operation"},
		),

		TasksFailedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulk_tasks_failed_total",
				Help: "Total number of bulk operation tasks that failed",
			},
			[]string{"operation", "error_type"},
		),

		TaskRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulk_task_retries_total",
				Help: "Total number of task redeliveries after infrastructure errors",
			},
			[]string{"operation"},
		),

		TasksCancelledTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulk_tasks_cancelled_total",
				Help: "Total number of cancelled tasks",
			},
			[]string{"operation"},
		),

		ImportRowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_rows_total",
				Help: "Total number of imported rows by outcome",
			},
			[]string{"operation", "outcome"}, // created, updated, failed
		),

		ExportDocumentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "export_documents_total",
				Help: "Total number of export documents by outcome",
			},
			[]string{"operation", "outcome"}, // produced, skipped
		),

		CacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_type"},
		),

		CacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_type"},
		),

		QueueMessagesPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_messages_published_total",
				Help: "Total number of messages published to the queue",
			},
			[]string{"queue_name"},
		),

		QueueMessagesConsumed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_messages_consumed_total",
				Help: "Total number of messages consumed from the queue",
			},
			[]string{"queue_name"},
		),
	}
}

// GlobalMetrics is nil until InitMetrics runs.
var GlobalMetrics *Metrics

var initOnce sync.Once

// InitMetrics registers the collectors once per process.
func InitMetrics() {
	initOnce.Do(func() {
		GlobalMetrics = NewMetrics()
	})
}

// RegisterDBStats exposes connection pool statistics of db.
func RegisterDBStats(db *sql.DB, name string) {
	if err := prometheus.Register(collectors.NewDBStatsCollector(db, name)); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			panic(err)
		}
	}
}

func (m *Metrics) TaskCreated(operation string) {
	if m == nil {
		return
	}
	m.TasksCreatedTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) TaskProcessed(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.TasksProcessedTotal.WithLabelValues(operation, status).Inc()
	m.TaskProcessingDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) TaskFailed(operation, errorType string) {
	if m == nil {
		return
	}
	m.TasksFailedTotal.WithLabelValues(operation, errorType).Inc()
}

func (m *Metrics) TaskRetried(operation string) {
	if m == nil {
		return
	}
	m.TaskRetriesTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) TaskCancelled(operation string) {
	if m == nil {
		return
	}
	m.TasksCancelledTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) ImportRows(operation string, created, updated, failed int) {
	if m == nil {
		return
	}
	m.ImportRowsTotal.WithLabelValues(operation, "created").Add(float64(created))
	m.ImportRowsTotal.WithLabelValues(operation, "updated").Add(float64(updated))
	m.ImportRowsTotal.WithLabelValues(operation, "failed").Add(float64(failed))
}

func (m *Metrics) ExportDocuments(operation string, produced, skipped int) {
	if m == nil {
		return
	}
	m.ExportDocumentsTotal.WithLabelValues(operation, "produced").Add(float64(produced))
	m.ExportDocumentsTotal.WithLabelValues(operation, "skipped").Add(float64(skipped))
}

func (m *Metrics) CacheHit(keyType string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(keyType).Inc()
}

func (m *Metrics) CacheMiss(keyType string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(keyType).Inc()
}

func (m *Metrics) MessagePublished(queueName string) {
	if m == nil {
		return
	}
	m.QueueMessagesPublished.WithLabelValues(queueName).Inc()
}

func (m *Metrics) MessageConsumed(queueName string) {
	if m == nil {
		return
	}
	m.QueueMessagesConsumed.WithLabelValues(queueName).Inc()
}
