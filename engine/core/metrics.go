package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StreamingMetrics exposes the pipeline counters. A nil *StreamingMetrics is
// valid and records nothing.
type StreamingMetrics struct {
	assetsRequested  *prometheus.CounterVec
	assetsReady      *prometheus.CounterVec
	decodeFailures   *prometheus.CounterVec
	oversizeRejected prometheus.Counter
	batchesSubmitted prometheus.Counter
	batchBytes       prometheus.Histogram
	batchAssets      prometheus.Histogram
	batchDuration    prometheus.Histogram
	pendingUploads   prometheus.Gauge
	queuedJobs       prometheus.Gauge
	frameDuration    prometheus.Histogram
}

func NewStreamingMetrics(reg prometheus.Registerer) *StreamingMetrics {
	if reg == nil {
		return nil
	}

	return &StreamingMetrics{
		assetsRequested: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetstream_assets_requested_total",
				Help: "Total number of asset load requests by asset type",
			},
			[]string{"asset_type"},
		),
		assetsReady: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetstream_assets_ready_total",
				Help: "Total number of assets that became device resident by asset type",
			},
			[]string{"asset_type"},
		),
		decodeFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetstream_decode_failures_total",
				Help: "Total number of decode jobs that failed by asset type",
			},
			[]string{"asset_type"},
		),
		oversizeRejected: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "assetstream_oversize_rejected_total",
				Help: "Total number of uploads rejected because they exceed the staging arena",
			},
		),
		batchesSubmitted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "assetstream_batches_submitted_total",
				Help: "Total number of transfer batches submitted to the device",
			},
		),
		batchBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "assetstream_batch_bytes",
				Help: "Distribution of staged bytes per transfer batch",
				Buckets: []float64{
					65536,     // 64KB
					1048576,   // 1MB
					16777216,  // 16MB
					67108864,  // 64MB
					134217728, // 128MB
					268435456, // 256MB
				},
			},
		),
		batchAssets: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assetstream_batch_assets",
				Help:    "Distribution of assets per transfer batch",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
		),
		batchDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "assetstream_batch_duration_milliseconds",
				Help: "Duration of a transfer batch from copy to fence signal in milliseconds",
				Buckets: []float64{
					1,    // 1ms
					5,    // 5ms
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms
					1000, // 1s
				},
			},
		),
		pendingUploads: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "assetstream_pending_uploads",
				Help: "Number of decoded assets waiting for a transfer batch",
			},
		),
		queuedJobs: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "assetstream_queued_jobs",
				Help: "Number of decode jobs waiting for a worker",
			},
		),
		frameDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assetstream_frame_duration_milliseconds",
				Help:    "Duration of an engine tick in milliseconds",
				Buckets: []float64{1, 2, 4, 8, 16, 33, 66, 100},
			},
		),
	}
}

func (m *StreamingMetrics) AssetRequested(assetType string) {
	if m == nil {
		return
	}
	m.assetsRequested.WithLabelValues(assetType).Inc()
}

func (m *StreamingMetrics) AssetReady(assetType string) {
	if m == nil {
		return
	}
	m.assetsReady.WithLabelValues(assetType).Inc()
}

func (m *StreamingMetrics) DecodeFailed(assetType string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(assetType).Inc()
}

func (m *StreamingMetrics) OversizeRejected() {
	if m == nil {
		return
	}
	m.oversizeRejected.Inc()
}

func (m *StreamingMetrics) ObserveBatch(assets int, bytes uint64, durationMs float64) {
	if m == nil {
		return
	}
	m.batchesSubmitted.Inc()
	m.batchAssets.Observe(float64(assets))
	m.batchBytes.Observe(float64(bytes))
	m.batchDuration.Observe(durationMs)
}

func (m *StreamingMetrics) SetPendingUploads(n int) {
	if m == nil {
		return
	}
	m.pendingUploads.Set(float64(n))
}

func (m *StreamingMetrics) SetQueuedJobs(n int) {
	if m == nil {
		return
	}
	m.queuedJobs.Set(float64(n))
}

func (m *StreamingMetrics) ObserveFrame(durationMs float64) {
	if m == nil {
		return
	}
	m.frameDuration.Observe(durationMs)
}
