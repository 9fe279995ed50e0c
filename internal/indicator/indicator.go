// Package indicator publishes the direction of the current speaker so an
// external device can point at whoever is talking.
package indicator

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"caption-stream-client/internal/service/transcript"
)

// ErrNotConnected is returned when the broker connection is down.
var ErrNotConnected = errors.New("indicator not connected")

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Locator resolves speakers to names and calibrated directions.
type Locator interface {
	Direction(id string) (float64, bool)
	Name(id string) string
	Hidden(id string) bool
}

// Message is the published payload.
type Message struct {
	SpeakerID string  `json:"speakerId"`
	Name      string  `json:"name"`
	Direction float64 `json:"direction"`
}

// Indicator is a transcript.Sink. It runs on the event loop with the
// registry it reads from.
type Indicator struct {
	pub     Publisher
	locator Locator
	topic   string
	log     zerolog.Logger

	last    Message
	hasLast bool
}

var _ transcript.Sink = (*Indicator)(nil)

// New creates an indicator publishing to topic.
func New(pub Publisher, locator Locator, topic string, log zerolog.Logger) *Indicator {
	return &Indicator{pub: pub, locator: locator, topic: topic, log: log}
}

// OnPartial implements transcript.Sink.
func (i *Indicator) OnPartial(p transcript.Partial) {
	i.point(p.Speaker)
}

// OnSegment implements transcript.Sink.
func (i *Indicator) OnSegment(s transcript.Segment) {
	i.point(s.Speaker)
}

func (i *Indicator) point(speaker string) {
	if speaker == "" || speaker == transcript.UnknownSpeaker || i.locator.Hidden(speaker) {
		return
	}
	dir, ok := i.locator.Direction(speaker)
	if !ok {
		return
	}

	msg := Message{SpeakerID: speaker, Name: i.locator.Name(speaker), Direction: dir}
	if i.hasLast && msg == i.last {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		i.log.Error().Err(err).Msg("Failed to marshal indicator message")
		return
	}
	if err := i.pub.Publish(i.topic, payload); err != nil {
		i.log.Debug().Err(err).Str("speakerId", speaker).Msg("Indicator publish dropped")
		return
	}
	i.last, i.hasLast = msg, true
}

// Reset forgets the last published message.
func (i *Indicator) Reset() {
	i.hasLast = false
}
