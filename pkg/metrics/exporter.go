package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/downfa11-org/logrotor/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(RotationsTotal, RotatedBytes, CompressionsTotal, CompressionSavedBytes)
	prometheus.MustRegister(RetentionDeletedTotal, RetentionFailuresTotal, ErrorsTotal, StreamBytes, StreamSegments)
}

func StartMetricsServer(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		util.Info("[METRICS] Prometheus exporter listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			util.Error("[METRICS] Failed to start metrics server: %v", err)
		}
	}()
}

// Health reports readiness on /health. It answers 503 until SetReady(true).
type Health struct {
	ready atomic.Bool
}

func (h *Health) SetReady(ready bool) { h.ready.Store(ready) }

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func StartHealthServer(port int, h *Health) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/health", h)
		addr := fmt.Sprintf(":%d", port)
		util.Info("[HEALTH] health check listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			util.Error("[HEALTH] Failed to start health server: %v", err)
		}
	}()
}

// ObserveStream records the current footprint of a stream.
func ObserveStream(stream string, bytes int64, rotated int) {
	StreamBytes.WithLabelValues(stream).Set(float64(bytes))
	StreamSegments.WithLabelValues(stream).Set(float64(rotated))
}

// ForgetStream drops the gauges of a deregistered stream.
func ForgetStream(stream string) {
	StreamBytes.DeleteLabelValues(stream)
	StreamSegments.DeleteLabelValues(stream)
}
