package metrics

import "github.com/downfa11-org/logrotor/pkg/types"

// Observer feeds pipeline notifications into the collectors.
type Observer struct{}

func (Observer) OnRotation(ev types.RotationEvent) {
	RotationsTotal.WithLabelValues(ev.Stream).Inc()
	RotatedBytes.Observe(float64(ev.Old.Size))
}

func (Observer) OnCompression(res types.CompressionResult) {
	if res.Skipped {
		return
	}
	if res.Err != nil {
		CompressionsTotal.WithLabelValues(res.Stream, "failed").Inc()
		return
	}
	CompressionsTotal.WithLabelValues(res.Stream, "ok").Inc()
	if saved := res.OriginalSize - res.CompressedSize; saved > 0 {
		CompressionSavedBytes.Add(float64(saved))
	}
}

func (Observer) OnSweep(res types.SweepResult) {
	RetentionDeletedTotal.WithLabelValues(res.Stream).Add(float64(len(res.Deleted)))
	RetentionFailuresTotal.WithLabelValues(res.Stream).Add(float64(len(res.Errors)))
}

func (Observer) OnError(stream string, _ error) {
	ErrorsTotal.WithLabelValues(stream).Inc()
}
