package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAcquisitionCounters(t *testing.T) {
	a := NewAcquisition(prometheus.NewRegistry())

	a.SessionOpened()
	a.FrameFetched("sim-0")
	a.FrameFetched("sim-0")
	a.BufferReleased()
	a.FetchTimeout("sim-0")
	a.FetchAborted("sim-1")

	if got := testutil.ToFloat64(a.framesFetched.WithLabelValues("sim-0")); got != 2 {
		t.Errorf("expected 2 frames fetched, got %v", got)
	}
	if got := testutil.ToFloat64(a.inflightBuffers); got != 1 {
		t.Errorf("expected 1 inflight buffer, got %v", got)
	}
	if got := testutil.ToFloat64(a.fetchTimeouts.WithLabelValues("sim-0")); got != 1 {
		t.Errorf("expected 1 timeout, got %v", got)
	}
	if got := testutil.ToFloat64(a.fetchAborts.WithLabelValues("sim-1")); got != 1 {
		t.Errorf("expected 1 abort, got %v", got)
	}
	if got := testutil.ToFloat64(a.activeSessions); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}
}

func TestNilAcquisitionIsSafe(_ *testing.T) {
	var a *Acquisition

	a.FrameFetched("sim-0")
	a.BufferReleased()
	a.FetchTimeout("sim-0")
	a.FetchAborted("sim-0")
	a.BackendFailure("sim-0")
	a.SessionOpened()
	a.SessionClosed()
}

func TestHandlerServesMetrics(t *testing.T) {
	a := NewAcquisition(prometheus.NewRegistry())
	a.FrameFetched("sim-0")

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "camnode_frames_fetched_total") {
		t.Error("expected frames fetched metric in output")
	}
}
