package observability

import (
	"time"

	"github.com/rs/zerolog"

	"caption-stream-client/internal/observability/metrics"
)

// SessionTracker records the lifetime of one connection session: a metric
// pair and a log line at each end.
type SessionTracker struct {
	metrics  *metrics.Metrics
	log      zerolog.Logger
	provider string

	mode    string
	started time.Time
	open    bool
}

// NewSessionTracker creates a tracker for one provider's controller.
func NewSessionTracker(m *metrics.Metrics, log zerolog.Logger, provider string) *SessionTracker {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &SessionTracker{metrics: m, log: log, provider: provider}
}

// Start marks a session as started in the given mode. A session that is
// still open is ended first.
func (t *SessionTracker) Start(mode string) {
	if t.open {
		t.End("")
	}
	t.mode = mode
	t.started = time.Now()
	t.open = true
	t.metrics.RecordSessionStart(t.provider, mode)

	t.log.Info().
		Str("mode", mode).
		Msg("session started")
}

// End marks the open session as ended. failureKind is empty for a clean
// stop. Without an open session only a failure is counted.
func (t *SessionTracker) End(failureKind string) {
	if !t.open {
		if failureKind != "" {
			t.metrics.RecordSessionFailure(t.provider, failureKind)
			t.log.Warn().Str("failure", failureKind).Msg("session attempt failed")
		}
		return
	}
	t.open = false
	duration := time.Since(t.started)
	t.metrics.RecordSessionEnd(t.provider, t.mode, failureKind, duration.Seconds())

	ev := t.log.Info()
	if failureKind != "" {
		ev = t.log.Warn().Str("failure", failureKind)
	}
	ev.Str("mode", t.mode).
		Dur("duration", duration).
		Bool("success", failureKind == "").
		Msg("session ended")
}

// Transition records a controller state change.
func (t *SessionTracker) Transition(from, to string) {
	t.metrics.RecordTransition(t.provider, from, to)
	t.log.Debug().Str("from", from).Str("to", to).Msg("state transition")
}
