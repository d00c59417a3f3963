package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route pattern and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media_replace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "media_replace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)

	// ReplacementsTotal counts replacement attempts by outcome: "success"
	// or one of the failure kinds.
	ReplacementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media_replace",
			Subsystem: "core",
			Name:      "replacements_total",
			Help:      "Total media replacement attempts",
		},
		[]string{"outcome"},
	)

	// ReplacedBytesTotal counts the bytes of accepted replacement uploads.
	ReplacedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "media_replace",
			Subsystem: "core",
			Name:      "replaced_bytes_total",
			Help:      "Total bytes of files that replaced existing media",
		},
	)

	// IngestsTotal counts ingestion attempts by outcome.
	IngestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media_replace",
			Subsystem: "core",
			Name:      "ingests_total",
			Help:      "Total media ingestion attempts",
		},
		[]string{"outcome"},
	)

	// LastReplacement is the time of the last successful replacement.
	LastReplacement = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "media_replace",
			Subsystem: "core",
			Name:      "last_replacement_timestamp_seconds",
			Help:      "Unix time of the last successful replacement",
		},
	)
)

// ReplacedObserver returns a replacement observer that stamps
// LastReplacement.
func ReplacedObserver() func(ctx context.Context, recordID int64, finalPath string) error {
	return func(context.Context, int64, string) error {
		LastReplacement.SetToCurrentTime()
		return nil
	}
}
