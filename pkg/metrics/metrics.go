// Package metrics - Prometheus-метрики хранилища фич
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Причины отказа записи строки
const (
	ReasonBind    = "bind"
	ReasonExec    = "exec"
	ReasonUnknown = "unknown_feature_set"
	ReasonDecode  = "decode"
)

var (
	// RowsWritten counts feature rows committed to the store.
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_rows_written_total",
			Help: "Total number of feature rows written",
		},
		[]string{"feature_set"},
	)

	// RowsFailed counts feature rows that could not be written.
	RowsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_rows_failed_total",
			Help: "Total number of feature rows rejected by the writer",
		},
		[]string{"feature_set", "reason"},
	)

	// SchemaChanges counts table creations and migrations.
	SchemaChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_schema_changes_total",
			Help: "Total number of feature set tables created or altered",
		},
		[]string{"feature_set", "action"},
	)

	// Retrievals counts historical retrieval requests by outcome.
	Retrievals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_retrievals_total",
			Help: "Total number of historical retrieval requests",
		},
		[]string{"status"},
	)

	// RetrievalDuration tracks end-to-end retrieval latency.
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "featurestore_retrieval_duration_seconds",
			Help:    "Historical retrieval duration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// TempTablesDropped counts temporary tables removed after retrieval.
	TempTablesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurestore_temp_tables_dropped_total",
			Help: "Temporary retrieval tables dropped, by result",
		},
		[]string{"result"},
	)
)

// Handler возвращает HTTP-обработчик /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
