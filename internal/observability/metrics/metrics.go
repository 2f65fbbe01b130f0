package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "stream_"

	resultSuccess = "success"
	resultError   = "error"
	resultNoop    = "noop"
)

var (
	registerOnce sync.Once

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	operationErrors  *prometheus.CounterVec
	transferredTotal *prometheus.CounterVec
	casConflicts     prometheus.Counter

	inactiveStreams *prometheus.GaugeVec
	alertsTotal     *prometheus.CounterVec

	consumerLag *prometheus.GaugeVec

	outboxPublishTotal    *prometheus.CounterVec
	outboxPublishLatency  *prometheus.HistogramVec
	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxDispatchEvents  *prometheus.CounterVec

	statementExportTotal   *prometheus.CounterVec
	statementExportLatency *prometheus.HistogramVec
)

// Init registers stream metrics and, when db is set, the DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total lifecycle operations by operation and result",
			},
			[]string{"operation", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Lifecycle operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)
		operationErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operation_errors_total",
				Help: "Rejected lifecycle operations by error kind",
			},
			[]string{"operation", "kind"},
		)
		transferredTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transferred_amount_total",
				Help: "Minor units moved by lifecycle operations",
			},
			[]string{"operation"},
		)
		casConflicts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "cas_conflicts_total",
				Help: "Compare-and-swap conflicts retried by the controller",
			},
		)

		inactiveStreams = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "inactive_streams",
				Help: "Active streams past the inactivity warning or emergency threshold",
			},
			[]string{"level"},
		)
		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "inactivity_alerts_total",
				Help: "Inactivity alerts sent by level and result",
			},
			[]string{"level", "result"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Outbox inserts by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox insert latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_events_total",
				Help: "Outbox records handled by outcome",
			},
			[]string{"outcome"},
		)

		statementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total statement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		statementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			operationTotal,
			operationLatency,
			operationErrors,
			transferredTotal,
			casConflicts,
			inactiveStreams,
			alertsTotal,
			consumerLag,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxDispatchEvents,
			statementExportTotal,
			statementExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveOperation records a lifecycle operation outcome.
func ObserveOperation(operation, result string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if operationTotal != nil {
		operationTotal.WithLabelValues(operation, result).Inc()
	}
	if operationLatency != nil {
		operationLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// IncOperationError counts a rejected operation by error kind.
func IncOperationError(operation, kind string) {
	if operation == "" {
		operation = "unknown"
	}
	if kind == "" {
		kind = "unknown"
	}
	if operationErrors != nil {
		operationErrors.WithLabelValues(operation, kind).Inc()
	}
}

// AddTransferred adds moved minor units for an operation.
func AddTransferred(operation string, amount uint64) {
	if amount == 0 {
		return
	}
	if transferredTotal != nil {
		transferredTotal.WithLabelValues(operation).Add(float64(amount))
	}
}

// IncCASConflict counts a lost compare-and-swap.
func IncCASConflict() {
	if casConflicts != nil {
		casConflicts.Inc()
	}
}

// SetInactiveStreams sets the number of streams at an inactivity level.
func SetInactiveStreams(level string, count int) {
	if count < 0 {
		count = 0
	}
	if inactiveStreams != nil {
		inactiveStreams.WithLabelValues(level).Set(float64(count))
	}
}

// IncInactivityAlert counts an inactivity alert.
func IncInactivityAlert(level, result string) {
	if result == "" {
		result = resultSuccess
	}
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(level, result).Inc()
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// ObserveOutboxPublish records an outbox insert.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records a dispatch run and its per-record outcomes.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDispatchEvents != nil {
		if sent > 0 {
			outboxDispatchEvents.WithLabelValues("sent").Add(float64(sent))
		}
		if failed > 0 {
			outboxDispatchEvents.WithLabelValues("failed").Add(float64(failed))
		}
		if dlq > 0 {
			outboxDispatchEvents.WithLabelValues("dlq").Add(float64(dlq))
		}
	}
}

// ObserveStatementExport records export latency and result.
func ObserveStatementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if statementExportTotal != nil {
		statementExportTotal.WithLabelValues(format, result).Inc()
	}
	if statementExportLatency != nil {
		statementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultNoop    = resultNoop
)
