// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Total number of rows processed by ingestion, by outcome",
		},
		[]string{"branch", "status"},
	)

	IngestBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Total number of ingestion batches run",
		},
		[]string{"branch"},
	)

	IngestBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ingest_batch_duration_seconds",
			Help: "Duration of a full batch ingestion run in seconds",
		},
		[]string{"branch"},
	)

	StoreRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_retries_total",
			Help: "Total number of retried lead store operations",
		},
		[]string{"operation"},
	)

	MappingCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapping_cache_requests_total",
			Help: "Mapping cache lookups, by result",
		},
		[]string{"result"},
	)
)
