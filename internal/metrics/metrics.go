// Package metrics defines the prometheus instrumentation for the ingestion
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecordsIngested counts parsed records delivered to the consumer,
	// labelled by channel.
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventscope_records_ingested_total",
			Help: "Parsed records delivered through the batch conduit",
		},
		[]string{"channel"},
	)

	// BatchesDelivered counts batches sent through the delivery channel.
	BatchesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventscope_batches_delivered_total",
			Help: "Record batches delivered to the consumer",
		},
	)

	// RecordsSkipped counts records dropped due to render or parse
	// failures, labelled by reason.
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventscope_records_skipped_total",
			Help: "Records skipped during ingestion",
		},
		[]string{"reason"},
	)

	// Retries counts backoff retries after transient source errors.
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventscope_retries_total",
			Help: "Retries after transient source errors",
		},
		[]string{"channel"},
	)

	// ChannelErrors counts per-channel read failures.
	ChannelErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventscope_channel_errors_total",
			Help: "Channel reads that ended in an error",
		},
		[]string{"channel"},
	)

	// LoadDuration observes wall time of complete load operations.
	LoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "eventscope_load_duration_seconds",
			Help: "Duration of complete load operations",
		},
	)

	// StoredRecords tracks the current size of the in-memory record set.
	StoredRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventscope_stored_records",
			Help: "Records currently held in the in-memory store",
		},
	)
)

// Handler returns the HTTP handler that serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
