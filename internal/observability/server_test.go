package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"caption-stream-client/internal/observability/metrics"
)

func TestServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordSegmentCommitted()

	srv := NewServer(":0", reg)

	tests := []struct {
		path     string
		contains string
	}{
		{"/healthz", "ok"},
		{"/readyz", "ready"},
		{"/metrics", "caption_client_segments_committed_total 1"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("expected body to contain %q, got %q", tt.contains, rec.Body.String())
			}
		})
	}
}

func TestSessionTracker_StartEnd(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	tr := NewSessionTracker(m, zerolog.Nop(), "azure")

	tr.Start("capture")
	if got := testutil.ToFloat64(m.SessionsActive.WithLabelValues("azure", "capture")); got != 1 {
		t.Fatalf("expected 1 active session, got %v", got)
	}

	tr.End("transport_error")
	tr.End("") // no open session, ignored

	if got := testutil.ToFloat64(m.SessionsActive.WithLabelValues("azure", "capture")); got != 0 {
		t.Errorf("expected 0 active sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsFailed.WithLabelValues("azure", "transport_error")); got != 1 {
		t.Errorf("expected 1 failed session, got %v", got)
	}
}

func TestSessionTracker_StartWhileOpenEndsPrevious(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	tr := NewSessionTracker(m, zerolog.Nop(), "mock")

	tr.Start("listen")
	tr.Start("capture")

	if got := testutil.ToFloat64(m.SessionsActive.WithLabelValues("mock", "listen")); got != 0 {
		t.Errorf("expected listen session closed, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive.WithLabelValues("mock", "capture")); got != 1 {
		t.Errorf("expected capture session open, got %v", got)
	}
}

func TestSessionTracker_FailureBeforeStartIsCounted(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	tr := NewSessionTracker(m, zerolog.Nop(), "deepgram")

	tr.End("connect_failed")

	if got := testutil.ToFloat64(m.SessionsFailed.WithLabelValues("deepgram", "connect_failed")); got != 1 {
		t.Errorf("expected 1 failed attempt, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive.WithLabelValues("deepgram", "")); got != 0 {
		t.Errorf("expected no active session change, got %v", got)
	}
}
