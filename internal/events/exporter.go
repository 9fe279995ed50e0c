package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"caption-stream-client/internal/models"
	"caption-stream-client/internal/service/transcript"
)

// Exporter forwards one provider's transcript changes to the publisher,
// keyed by room.
type Exporter struct {
	publisher *Publisher
	provider  string
	room      string
	now       func() time.Time
}

var _ transcript.Sink = (*Exporter)(nil)

// NewExporter creates an exporter for provider in room.
func NewExporter(p *Publisher, provider, room string) *Exporter {
	return &Exporter{publisher: p, provider: provider, room: room, now: time.Now}
}

// SetRoom changes the room used for subsequent events.
func (e *Exporter) SetRoom(room string) {
	e.room = room
}

// Room returns the room events are keyed by.
func (e *Exporter) Room() string { return e.room }

// OnPartial implements transcript.Sink.
func (e *Exporter) OnPartial(p transcript.Partial) {
	ev := models.TranscriptPartial{
		EventType: models.EventTypePartial,
		RoomID:    e.room,
		Provider:  e.provider,
		Timestamp: e.now().UnixMilli(),
		Speaker:   p.Speaker,
		Text:      p.Text,
	}
	if err := e.publisher.PublishPartial(context.Background(), e.room, ev); err != nil {
		log.Warn().Err(err).Msg("Partial export failed")
	}
}

// OnSegment implements transcript.Sink.
func (e *Exporter) OnSegment(s transcript.Segment) {
	ev := models.TranscriptFinal{
		EventType: models.EventTypeFinal,
		RoomID:    e.room,
		Provider:  e.provider,
		Timestamp: s.Timestamp,
		SegmentID: s.ID,
		Speaker:   s.Speaker,
		Text:      s.Text,
	}
	if err := e.publisher.PublishFinal(context.Background(), e.room, ev); err != nil {
		log.Warn().Err(err).Str("segmentId", s.ID).Msg("Final export failed")
	}
}
