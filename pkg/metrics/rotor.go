package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RotationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logrotor_rotations_total",
		Help: "Total number of completed segment rotations",
	}, []string{"stream"})

	RotatedBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "logrotor_rotated_segment_bytes",
		Help:    "Size of segments at the moment they were rotated",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})

	CompressionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logrotor_compressions_total",
		Help: "Compression attempts by result (ok, failed)",
	}, []string{"stream", "result"})

	CompressionSavedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logrotor_compression_saved_bytes_total",
		Help: "Bytes reclaimed by compressing rotated segments",
	})

	RetentionDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logrotor_retention_deleted_segments_total",
		Help: "Rotated segments deleted by retention",
	}, []string{"stream"})

	RetentionFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logrotor_retention_failures_total",
		Help: "Rotated segments retention failed to delete",
	}, []string{"stream"})

	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logrotor_errors_total",
		Help: "Errors reported by stream pipelines",
	}, []string{"stream"})

	StreamBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logrotor_stream_bytes",
		Help: "Bytes held on disk by a stream (active plus rotated segments)",
	}, []string{"stream"})

	StreamSegments = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logrotor_stream_rotated_segments",
		Help: "Rotated segments currently kept by a stream",
	}, []string{"stream"})
)
