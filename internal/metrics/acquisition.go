// Package metrics exposes Prometheus collectors for the acquisition core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Acquisition holds the collectors tracked per acquisition manager.
// A nil *Acquisition is valid and records nothing, so callers can wire
// metrics optionally.
type Acquisition struct {
	registry *prometheus.Registry

	framesFetched   *prometheus.CounterVec
	fetchTimeouts   *prometheus.CounterVec
	fetchAborts     *prometheus.CounterVec
	backendFailures *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	inflightBuffers prometheus.Gauge
}

// NewAcquisition creates and registers the acquisition collectors. If
// registry is nil a private registry is created.
func NewAcquisition(registry *prometheus.Registry) *Acquisition {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	a := &Acquisition{
		registry: registry,
		framesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camnode_frames_fetched_total",
			Help: "Frame buffers fetched, per device.",
		}, []string{"device_id"}),
		fetchTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camnode_fetch_timeouts_total",
			Help: "Fetch calls that timed out waiting for a buffer, per device.",
		}, []string{"device_id"}),
		fetchAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camnode_fetch_aborts_total",
			Help: "Fetch calls aborted by cooperative shutdown, per device.",
		}, []string{"device_id"}),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camnode_backend_failures_total",
			Help: "Backend faults surfaced through fetch, per device.",
		}, []string{"device_id"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camnode_active_sessions",
			Help: "Sessions currently tracked by the manager.",
		}),
		inflightBuffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camnode_inflight_buffers",
			Help: "Buffer handles currently held by callers.",
		}),
	}

	registry.MustRegister(
		a.framesFetched,
		a.fetchTimeouts,
		a.fetchAborts,
		a.backendFailures,
		a.activeSessions,
		a.inflightBuffers,
	)

	return a
}

// Handler returns an HTTP handler serving the registry in Prometheus format.
func (a *Acquisition) Handler() http.Handler {
	if a == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// FrameFetched records one successful fetch.
func (a *Acquisition) FrameFetched(deviceID string) {
	if a == nil {
		return
	}
	a.framesFetched.WithLabelValues(deviceID).Inc()
	a.inflightBuffers.Inc()
}

// BufferReleased records a buffer handle returning to the pool.
func (a *Acquisition) BufferReleased() {
	if a == nil {
		return
	}
	a.inflightBuffers.Dec()
}

// FetchTimeout records a fetch deadline expiry.
func (a *Acquisition) FetchTimeout(deviceID string) {
	if a == nil {
		return
	}
	a.fetchTimeouts.WithLabelValues(deviceID).Inc()
}

// FetchAborted records a fetch cut short by stop or reset.
func (a *Acquisition) FetchAborted(deviceID string) {
	if a == nil {
		return
	}
	a.fetchAborts.WithLabelValues(deviceID).Inc()
}

// BackendFailure records a backend fault surfaced through fetch.
func (a *Acquisition) BackendFailure(deviceID string) {
	if a == nil {
		return
	}
	a.backendFailures.WithLabelValues(deviceID).Inc()
}

// SessionOpened increments the active session gauge.
func (a *Acquisition) SessionOpened() {
	if a == nil {
		return
	}
	a.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (a *Acquisition) SessionClosed() {
	if a == nil {
		return
	}
	a.activeSessions.Dec()
}
