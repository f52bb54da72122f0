// Package metrics provides Prometheus metrics for the filesystem and the
// object-store client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fuseOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcscfuse_fuse_ops_total",
			Help: "Total number of FUSE operations by result",
		},
		[]string{"op", "errno"},
	)

	fuseOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gcscfuse_fuse_op_duration_seconds",
			Help:    "FUSE operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	storeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcscfuse_store_ops_total",
			Help: "Total number of object-store operations",
		},
		[]string{"op", "success"},
	)

	storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gcscfuse_store_op_duration_seconds",
			Help:    "Object-store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	statCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcscfuse_stat_cache_lookups_total",
			Help: "Stat cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	contentCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcscfuse_content_cache_lookups_total",
			Help: "Content cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gcscfuse_bytes_downloaded_total",
			Help: "Total bytes read from the object store",
		},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gcscfuse_bytes_uploaded_total",
			Help: "Total bytes written to the object store",
		},
	)

	dirtyBuffers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gcscfuse_dirty_buffers",
			Help: "Number of write buffers with unflushed changes",
		},
	)
)

// RecordFuseOp records one FUSE operation with its POSIX result code.
func RecordFuseOp(op string, duration time.Duration, errno int) {
	fuseOpsTotal.WithLabelValues(op, strconv.Itoa(errno)).Inc()
	fuseOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordStoreOp records one object-store call.
func RecordStoreOp(op string, duration time.Duration, success bool) {
	storeOpsTotal.WithLabelValues(op, strconv.FormatBool(success)).Inc()
	storeOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordStatCache records a stat cache lookup.
func RecordStatCache(hit bool) {
	statCacheLookups.WithLabelValues(outcome(hit)).Inc()
}

// RecordContentCache records a content cache lookup.
func RecordContentCache(hit bool) {
	contentCacheLookups.WithLabelValues(outcome(hit)).Inc()
}

// AddBytesDownloaded accounts bytes fetched from the store.
func AddBytesDownloaded(n int64) {
	if n > 0 {
		bytesDownloaded.Add(float64(n))
	}
}

// AddBytesUploaded accounts bytes pushed to the store.
func AddBytesUploaded(n int64) {
	if n > 0 {
		bytesUploaded.Add(float64(n))
	}
}

// SetDirtyBuffers reports the current number of dirty write buffers.
func SetDirtyBuffers(n int) {
	dirtyBuffers.Set(float64(n))
}

func outcome(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// Serve exposes /metrics on addr. Blocks until the listener fails.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
