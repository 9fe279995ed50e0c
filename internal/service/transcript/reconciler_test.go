package transcript

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"caption-stream-client/internal/models"
	"caption-stream-client/internal/observability/metrics"
)

type recordingSink struct {
	partials []Partial
	segments []Segment
}

func (s *recordingSink) OnPartial(p Partial) { s.partials = append(s.partials, p) }
func (s *recordingSink) OnSegment(seg Segment) { s.segments = append(s.segments, seg) }

func newTestReconciler(opts ...Option) (*Reconciler, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	n := 0
	base := []Option{
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
		WithIDs(func() string { n++; return fmt.Sprintf("seg-%d", n) }),
	}
	return New(m, zerolog.Nop(), append(base, opts...)...), m
}

func partial(text string) models.TranscriptEvent {
	return models.TranscriptEvent{Text: text, IsPartial: true}
}

func final(text string) models.TranscriptEvent {
	return models.TranscriptEvent{Text: text}
}

func TestReconciler_PartialThenFinal(t *testing.T) {
	r, _ := newTestReconciler()

	r.Apply(partial("Hall"))
	if p, ok := r.Partial(); !ok || p.Text != "Hall" {
		t.Fatalf("expected partial 'Hall', got %+v (ok=%v)", p, ok)
	}

	r.Apply(final("Hallo"))

	if _, ok := r.Partial(); ok {
		t.Error("expected partial cleared after final")
	}
	segs := r.Segments()
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	want := Segment{ID: "seg-1", Text: "Hallo", Speaker: UnknownSpeaker, Timestamp: 1700000000000, IsFinal: true}
	if segs[0] != want {
		t.Errorf("expected %+v, got %+v", want, segs[0])
	}
}

func TestReconciler_PartialReplacesWholesale(t *testing.T) {
	r, _ := newTestReconciler()

	r.Apply(models.TranscriptEvent{Text: "I want", IsPartial: true, Speaker: "Guest-1"})
	r.Apply(partial("I want to"))

	p, _ := r.Partial()
	if p.Text != "I want to" {
		t.Errorf("expected replaced text, got %q", p.Text)
	}
	if p.Speaker != "Guest-1" {
		t.Errorf("expected speaker kept from previous partial, got %q", p.Speaker)
	}
}

func TestReconciler_DuplicateSuppression(t *testing.T) {
	tests := []struct {
		name   string
		finals []string
		want   int
	}{
		{"identical finals", []string{"Guten Tag", "Guten Tag"}, 1},
		{"identical after trim", []string{"Guten Tag", "  Guten Tag "}, 1},
		{"different finals", []string{"Guten Tag", "Hallo"}, 2},
		{"repeat after intervening final", []string{"Guten Tag", "Hallo", "Guten Tag"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := newTestReconciler()
			for _, f := range tt.finals {
				r.Apply(final(f))
			}
			if got := len(r.Segments()); got != tt.want {
				t.Errorf("expected %d segments, got %d", tt.want, got)
			}
			dups := float64(len(tt.finals) - tt.want)
			if got := testutil.ToFloat64(m.DuplicatesSuppressed); got != dups {
				t.Errorf("expected %v suppressed, got %v", dups, got)
			}
		})
	}
}

func TestReconciler_ResetSessionAllowsRepeat(t *testing.T) {
	r, _ := newTestReconciler()

	r.Apply(final("Guten Tag"))
	r.ResetSession()
	r.Apply(final("Guten Tag"))

	if got := len(r.Segments()); got != 2 {
		t.Errorf("expected 2 segments after session reset, got %d", got)
	}
}

func TestReconciler_IgnoresEmptyText(t *testing.T) {
	sink := &recordingSink{}
	r, _ := newTestReconciler(WithSink(sink))

	for _, ev := range []models.TranscriptEvent{partial(""), partial("   "), final(""), final("\n\t")} {
		if r.Apply(ev) {
			t.Errorf("expected %+v to be ignored", ev)
		}
	}
	if _, ok := r.Partial(); ok {
		t.Error("expected no partial")
	}
	if len(r.Segments()) != 0 || len(sink.partials) != 0 || len(sink.segments) != 0 {
		t.Error("expected no downstream events")
	}
}

func TestReconciler_SpeakerDefaultsAndTrim(t *testing.T) {
	r, _ := newTestReconciler()

	r.Apply(models.TranscriptEvent{Text: "a", Speaker: "  Guest-2 "})
	r.Apply(models.TranscriptEvent{Text: "b", Speaker: "   "})

	segs := r.Segments()
	if segs[0].Speaker != "Guest-2" {
		t.Errorf("expected trimmed speaker, got %q", segs[0].Speaker)
	}
	if segs[1].Speaker != UnknownSpeaker {
		t.Errorf("expected %q, got %q", UnknownSpeaker, segs[1].Speaker)
	}
}

func TestReconciler_SinkAndSpeakers(t *testing.T) {
	sink := &recordingSink{}
	r, _ := newTestReconciler()
	r.AddSink(sink)

	r.Apply(models.TranscriptEvent{Text: "hi", IsPartial: true, Speaker: "Guest-1"})
	r.Apply(models.TranscriptEvent{Text: "hi there", Speaker: "Guest-1"})
	r.Apply(models.TranscriptEvent{Text: "hello", Speaker: "Guest-2"})
	r.Apply(final("who"))

	if len(sink.partials) != 1 || len(sink.segments) != 3 {
		t.Fatalf("expected 1 partial and 3 segments, got %d and %d", len(sink.partials), len(sink.segments))
	}
	got := r.Speakers()
	if len(got) != 2 || got[0] != "Guest-1" || got[1] != "Guest-2" {
		t.Errorf("unexpected speakers: %v", got)
	}

	r.Reset()
	if len(r.Segments()) != 0 {
		t.Error("expected segments discarded")
	}
}

func TestReconciler_SegmentsIsCopy(t *testing.T) {
	r, _ := newTestReconciler()
	r.Apply(final("one"))

	segs := r.Segments()
	segs[0].Text = "changed"
	if r.Segments()[0].Text != "one" {
		t.Error("expected segments to be immutable through the returned slice")
	}
}
