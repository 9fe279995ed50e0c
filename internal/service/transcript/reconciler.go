// Package transcript reconciles inbound transcript events into an ordered
// list of final segments and a single live partial.
package transcript

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"caption-stream-client/internal/models"
	"caption-stream-client/internal/observability/metrics"
)

// UnknownSpeaker is used when an event carries no speaker.
const UnknownSpeaker = "Unknown"

// Segment is a committed final transcript. Segments are never mutated.
type Segment struct {
	ID        string
	Text      string
	Speaker   string
	Timestamp int64 // Unix milliseconds
	IsFinal   bool
}

// Partial is the live, replaceable transcript.
type Partial struct {
	Text    string
	Speaker string
}

// Sink is notified after each accepted change.
type Sink interface {
	OnPartial(p Partial)
	OnSegment(s Segment)
}

// Reconciler is not safe for concurrent use; it is confined to the event
// loop that owns it.
type Reconciler struct {
	segments []Segment
	partial  *Partial

	lastFinal string
	hasLast   bool

	sinks   []Sink
	metrics *metrics.Metrics
	log     zerolog.Logger

	now   func() time.Time
	newID func() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the segment timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithIDs overrides the segment ID source.
func WithIDs(newID func() string) Option {
	return func(r *Reconciler) { r.newID = newID }
}

// WithSink registers a change listener.
func WithSink(s Sink) Option {
	return func(r *Reconciler) { r.sinks = append(r.sinks, s) }
}

// New creates an empty reconciler.
func New(m *metrics.Metrics, log zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		metrics: m,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddSink registers a change listener.
func (r *Reconciler) AddSink(s Sink) {
	r.sinks = append(r.sinks, s)
}

// Apply folds one inbound event into the transcript. It reports whether the
// event changed anything.
func (r *Reconciler) Apply(ev models.TranscriptEvent) bool {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return false
	}
	speaker := strings.TrimSpace(ev.Speaker)

	if ev.IsPartial {
		if speaker == "" {
			speaker = UnknownSpeaker
			if r.partial != nil {
				speaker = r.partial.Speaker
			}
		}
		p := Partial{Text: text, Speaker: speaker}
		r.partial = &p
		r.metrics.RecordPartialTranscript()
		for _, s := range r.sinks {
			s.OnPartial(p)
		}
		return true
	}

	if r.hasLast && text == r.lastFinal {
		r.metrics.RecordDuplicateSuppressed()
		r.log.Debug().Str("text", text).Msg("Dropped repeated final")
		return false
	}
	if speaker == "" {
		speaker = UnknownSpeaker
	}

	seg := Segment{
		ID:        r.newID(),
		Text:      text,
		Speaker:   speaker,
		Timestamp: r.now().UnixMilli(),
		IsFinal:   true,
	}
	r.segments = append(r.segments, seg)
	r.partial = nil
	r.lastFinal, r.hasLast = text, true

	r.metrics.RecordSegmentCommitted()
	r.log.Debug().Str("segmentId", seg.ID).Str("speaker", speaker).Msg("Segment committed")
	for _, s := range r.sinks {
		s.OnSegment(seg)
	}
	return true
}

// Segments returns a copy of the committed segments in arrival order.
func (r *Reconciler) Segments() []Segment {
	out := make([]Segment, len(r.segments))
	copy(out, r.segments)
	return out
}

// Partial returns the live partial, if any.
func (r *Reconciler) Partial() (Partial, bool) {
	if r.partial == nil {
		return Partial{}, false
	}
	return *r.partial, true
}

// ClearPartial drops the live partial.
func (r *Reconciler) ClearPartial() {
	r.partial = nil
}

// ResetSession forgets the last committed text so a new session can commit
// it again.
func (r *Reconciler) ResetSession() {
	r.lastFinal, r.hasLast = "", false
}

// Reset discards the whole transcript.
func (r *Reconciler) Reset() {
	r.segments = nil
	r.partial = nil
	r.ResetSession()
}

// Speakers returns the distinct known speakers of committed segments in
// order of first appearance.
func (r *Reconciler) Speakers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.segments {
		if s.Speaker == UnknownSpeaker || seen[s.Speaker] {
			continue
		}
		seen[s.Speaker] = true
		out = append(out, s.Speaker)
	}
	return out
}
