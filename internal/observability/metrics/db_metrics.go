package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

// dbGauge is a gauge sampled from Postgres at scrape time.
type dbGauge struct {
	name  string
	help  string
	query string
}

var dbGauges = []dbGauge{
	{"active_streams", "Streams in the active state", `SELECT COUNT(*) FROM streams WHERE status = 1`},
	{"closed_streams", "Streams that have been closed or drained", `SELECT COUNT(*) FROM streams WHERE status = 2`},
	{"escrow_balance", "Funds held in stream escrow accounts", `SELECT COALESCE(SUM(balance), 0)::float8 FROM ledger_balances WHERE account LIKE 'escrow:%'`},
	{"event_outbox_pending", "Pending outbox records", `SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'`},
	{"event_dlq_count", "Dead letter queue records", `SELECT COUNT(*) FROM dead_letter_events`},
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	for _, g := range dbGauges {
		query := g.query
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: metricPrefix + g.name, Help: g.help},
			func() float64 { return sampleGauge(db, logger, query) },
		))
	}
}

func sampleGauge(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var value float64
	if err := db.QueryRow(query).Scan(&value); err != nil {
		if logger != nil {
			logger.Printf("metrics: gauge query %q: %v", query, err)
		}
		return 0
	}
	if value < 0 {
		return 0
	}
	return value
}
