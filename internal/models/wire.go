package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Message types on the control channel.
const (
	TypeGetSpeakers   = "get_speakers"
	TypeUpdateSpeaker = "update_speaker"
	TypeSpeakerUpdate = "speaker_update"
	TypeTranscript    = "transcript"
)

// ErrMalformed reports an inbound message that could not be decoded.
var ErrMalformed = errors.New("malformed inbound message")

// TranscriptEvent is an inbound transcript update.
type TranscriptEvent struct {
	Text      string `json:"text"`
	IsPartial bool   `json:"is_partial"`
	Speaker   string `json:"speaker,omitempty"`
}

// SpeakerEntry is one registry entry as broadcast by the backend. Hidden is
// nil when the broadcast does not carry the flag.
type SpeakerEntry struct {
	Name     string  `json:"name"`
	Position float64 `json:"position"`
	Hidden   *bool   `json:"hidden,omitempty"`
}

// GetSpeakers asks the backend for the full registry.
type GetSpeakers struct {
	Type string `json:"type"`
}

// NewGetSpeakers returns a get_speakers control message.
func NewGetSpeakers() GetSpeakers {
	return GetSpeakers{Type: TypeGetSpeakers}
}

// UpdateSpeaker describes a local registry change. The backend reads
// position as whole degrees.
type UpdateSpeaker struct {
	Type      string  `json:"type"`
	SpeakerID string  `json:"speakerId"`
	Name      string  `json:"name"`
	Position  float64 `json:"position"`
	Hidden    bool    `json:"hidden"`
}

// NewUpdateSpeaker returns an update_speaker control message with position
// rounded to whole degrees.
func NewUpdateSpeaker(id, name string, position float64, hidden bool) UpdateSpeaker {
	return UpdateSpeaker{
		Type:      TypeUpdateSpeaker,
		SpeakerID: id,
		Name:      name,
		Position:  math.Round(position),
		Hidden:    hidden,
	}
}

// InboundKind classifies a decoded inbound message.
type InboundKind int

const (
	// InboundTranscript carries a TranscriptEvent.
	InboundTranscript InboundKind = iota
	// InboundSpeakers carries a registry broadcast.
	InboundSpeakers
)

// Inbound is a decoded inbound text frame.
type Inbound struct {
	Kind       InboundKind
	Transcript TranscriptEvent
	Speakers   map[string]SpeakerEntry
}

// DecodeInbound parses one inbound text frame. Registry broadcasts are
// recognised by their type; everything else is read as a transcript event,
// either at the top level or nested under "payload".
func DecodeInbound(data []byte) (Inbound, error) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.Type == TypeSpeakerUpdate {
		var speakers map[string]SpeakerEntry
		if err := json.Unmarshal(env.Payload, &speakers); err != nil {
			return Inbound{}, fmt.Errorf("%w: speaker_update payload: %v", ErrMalformed, err)
		}
		return Inbound{Kind: InboundSpeakers, Speakers: speakers}, nil
	}

	body := data
	if p := bytes.TrimSpace(env.Payload); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		body = p
	}
	var ev TranscriptEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return Inbound{}, fmt.Errorf("%w: transcript: %v", ErrMalformed, err)
	}
	return Inbound{Kind: InboundTranscript, Transcript: ev}, nil
}
