package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the recorder.
type Metrics struct {
	registry               *prometheus.Registry
	captureRestartsTotal   prometheus.Counter
	assembliesTotal        prometheus.Counter
	assemblyFailuresTotal  prometheus.Counter
	recordingsServedTotal  prometheus.Counter
	activeCaptureWorkers   prometheus.Gauge
	retainedSegmentsBytes  prometheus.Gauge
}

// New creates and registers Prometheus metrics for the recorder.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	captureRestartsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dvr_capture_session_restarts_total",
		Help: "Total number of capture session teardown/restart cycles",
	})
	assembliesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dvr_assemblies_total",
		Help: "Total number of deliverables assembled successfully",
	})
	assemblyFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dvr_assembly_failures_total",
		Help: "Total number of failed assembly attempts",
	})
	recordingsServedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dvr_recordings_served_total",
		Help: "Total number of deliverables streamed to callers",
	})
	activeCaptureWorkers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dvr_active_capture_workers",
		Help: "Number of capture workers currently running",
	})
	retainedSegmentsBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dvr_retained_segment_bytes",
		Help: "Total bytes held in segment ring buffers",
	})

	registry.MustRegister(
		captureRestartsTotal,
		assembliesTotal,
		assemblyFailuresTotal,
		recordingsServedTotal,
		activeCaptureWorkers,
		retainedSegmentsBytes,
	)

	return &Metrics{
		registry:              registry,
		captureRestartsTotal:  captureRestartsTotal,
		assembliesTotal:       assembliesTotal,
		assemblyFailuresTotal: assemblyFailuresTotal,
		recordingsServedTotal: recordingsServedTotal,
		activeCaptureWorkers:  activeCaptureWorkers,
		retainedSegmentsBytes: retainedSegmentsBytes,
	}
}

// IncCaptureRestarts increments the session restart counter.
func (m *Metrics) IncCaptureRestarts() {
	m.captureRestartsTotal.Inc()
}

// IncAssemblies increments the successful assembly counter.
func (m *Metrics) IncAssemblies() {
	m.assembliesTotal.Inc()
}

// IncAssemblyFailures increments the failed assembly counter.
func (m *Metrics) IncAssemblyFailures() {
	m.assemblyFailuresTotal.Inc()
}

// IncRecordingsServed increments the served deliverables counter.
func (m *Metrics) IncRecordingsServed() {
	m.recordingsServedTotal.Inc()
}

// SetActiveWorkers sets the active capture workers gauge.
func (m *Metrics) SetActiveWorkers(n int) {
	m.activeCaptureWorkers.Set(float64(n))
}

// SetRetainedSegmentBytes sets the retained segment bytes gauge.
func (m *Metrics) SetRetainedSegmentBytes(b int64) {
	m.retainedSegmentsBytes.Set(float64(b))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
