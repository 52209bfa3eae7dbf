// Package metrics is the Prometheus-backed implementation of
// ingest.Metrics, plus the gauges the admin/metrics surface exposes for
// queue depth and admission. Construction follows the nil-when-disabled
// idiom: a nil *Collector discards every observation, so callers can pass
// one around unconditionally instead of threading an enabled bool through
// every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshotter is the subset of worker.Admission the gauges read at scrape
// time. Matches autoscale.Snapshotter so both can share one implementation.
type Snapshotter interface {
	Counts() (queued, inflight, workers int)
}

// Collector is the Prometheus implementation of ingest.Metrics.
type Collector struct {
	reg *prometheus.Registry

	chunkUploads       *prometheus.CounterVec
	chunkUploadFailed  prometheus.Counter
	retries            prometheus.Counter
	throttled          *prometheus.CounterVec
	uploadsCompleted   prometheus.Counter
	chunkWriteDuration prometheus.Histogram
	chunkWriteBytes    prometheus.Histogram
}

// New creates a Collector registered against reg. Pass nil to disable
// metrics entirely — every method on a nil *Collector is a no-op, so
// callers never need to branch on whether metrics are enabled.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		return nil
	}

	return &Collector{
		reg: reg,
		chunkUploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dfsingest_chunk_uploads_total",
				Help: "Total number of chunk upload attempts by outcome",
			},
			[]string{"status"},
		),
		chunkUploadFailed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dfsingest_chunk_upload_failed_total",
				Help: "Total number of chunk uploads that exhausted retries",
			},
		),
		retries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dfsingest_chunk_persist_retries_total",
				Help: "Total number of chunk persistence retry attempts",
			},
		),
		throttled: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dfsingest_admission_throttled_total",
				Help: "Total number of chunk uploads rejected by the admission gate, by reason",
			},
			[]string{"reason"},
		),
		uploadsCompleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dfsingest_uploads_completed_total",
				Help: "Total number of uploads that reached COMPLETED",
			},
		),
		chunkWriteDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dfsingest_chunk_write_duration_seconds",
				Help:    "Duration of a single chunk persistence attempt",
				Buckets: prometheus.DefBuckets,
			},
		),
		chunkWriteBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dfsingest_chunk_write_bytes",
				Help: "Size in bytes of each persisted chunk",
				Buckets: []float64{
					1 << 16, // 64KiB
					1 << 20, // 1MiB
					5 << 20, // 5MiB
					16 << 20,
					64 << 20,
					256 << 20,
				},
			},
		),
	}
}

func (c *Collector) ChunkUploaded(status string) {
	if c == nil {
		return
	}
	c.chunkUploads.WithLabelValues(status).Inc()
}

func (c *Collector) ChunkUploadFailed() {
	if c == nil {
		return
	}
	c.chunkUploadFailed.Inc()
}

func (c *Collector) Retry() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

func (c *Collector) Throttled(reason string) {
	if c == nil {
		return
	}
	c.throttled.WithLabelValues(reason).Inc()
}

func (c *Collector) UploadCompleted() {
	if c == nil {
		return
	}
	c.uploadsCompleted.Inc()
}

func (c *Collector) ChunkWriteObserved(d time.Duration, bytes int64) {
	if c == nil {
		return
	}
	c.chunkWriteDuration.Observe(d.Seconds())
	c.chunkWriteBytes.Observe(float64(bytes))
}

// RegisterAdmissionGauges registers GaugeFuncs that read snap at scrape
// time. Safe to call at most once per Collector; a nil Collector or nil
// snap skips registration.
func (c *Collector) RegisterAdmissionGauges(snap Snapshotter) {
	if c == nil || snap == nil {
		return
	}

	promauto.With(c.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dfsingest_queue_depth",
		Help: "Current number of chunk write tasks queued",
	}, func() float64 {
		queued, _, _ := snap.Counts()
		return float64(queued)
	})
	promauto.With(c.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dfsingest_chunks_inflight",
		Help: "Current number of chunk writes in flight",
	}, func() float64 {
		_, inflight, _ := snap.Counts()
		return float64(inflight)
	})
	promauto.With(c.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dfsingest_worker_count",
		Help: "Current size of the chunk worker pool",
	}, func() float64 {
		_, _, workers := snap.Counts()
		return float64(workers)
	})
}

// Handler returns the http.Handler serving GET /metrics. A nil Collector
// serves promhttp's handler for the default global registry, so the route
// can always be mounted.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
