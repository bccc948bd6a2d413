package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Producer side
	FramesCapturedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "traffic_frames_captured_total",
		Help: "Total number of frames captured from the frame source",
	})
	CaptureFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "traffic_capture_failures_total",
		Help: "Total number of skipped captures",
	})
	RecordsPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "traffic_records_published_total",
		Help: "Total number of records accepted by the ingestion channel",
	})
	PublishFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "traffic_publish_failures_total",
		Help: "Total number of records lost on publish",
	})

	// Consumer side
	BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "traffic_batch_size",
		Help:    "Number of records per consumed batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})
	RecordsDecodedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "traffic_records_decoded_total",
		Help: "Total number of records decoded to image bytes",
	})
	DecodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "traffic_decode_failures_total",
		Help: "Total number of records skipped for a malformed payload",
	})
	ImageDecodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "traffic_image_decode_failures_total",
		Help: "Total number of frames skipped because the bytes were not an image",
	})
	SegmentationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "traffic_segmentation_duration_seconds",
		Help:    "Duration of lane segmentation per frame in seconds",
		Buckets: prometheus.DefBuckets,
	})
	VehiclesCountedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "traffic_vehicles_counted_total",
		Help: "Total number of vehicles counted per lane",
	}, []string{"lane"})
	ObservationsPersistedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "traffic_observations_persisted_total",
		Help: "Total number of persisted observations per direction",
	}, []string{"direction"})
	PersistFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "traffic_persist_failures_total",
		Help: "Total number of observations lost on persist",
	})

	registerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all Prometheus collectors used by the application.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			FramesCapturedTotal,
			CaptureFailuresTotal,
			RecordsPublishedTotal,
			PublishFailuresTotal,
			BatchSize,
			RecordsDecodedTotal,
			DecodeFailuresTotal,
			ImageDecodeFailuresTotal,
			SegmentationDurationSeconds,
			VehiclesCountedTotal,
			ObservationsPersistedTotal,
			PersistFailuresTotal,
		)
	})
}

// Handler returns an HTTP handler that exposes the registered Prometheus metrics.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}
