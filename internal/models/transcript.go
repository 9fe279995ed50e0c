// Package models defines the wire messages exchanged with the captioning
// backend and the transcript events exported downstream.
package models

// Export event types.
const (
	EventTypePartial = "caption.transcript.partial"
	EventTypeFinal   = "caption.transcript.final"
)

// TranscriptPartial is the exported form of a partial buffer update.
type TranscriptPartial struct {
	EventType string `json:"eventType"`
	RoomID    string `json:"roomId"`
	Provider  string `json:"provider"`
	Timestamp int64  `json:"timestamp"`
	Speaker   string `json:"speaker,omitempty"`
	Text      string `json:"text"`
}

// TranscriptFinal is the exported form of a committed segment.
type TranscriptFinal struct {
	EventType string `json:"eventType"`
	RoomID    string `json:"roomId"`
	Provider  string `json:"provider"`
	Timestamp int64  `json:"timestamp"`
	SegmentID string `json:"segmentId"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}
