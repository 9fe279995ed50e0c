// Package schema validates registry entries before they enter the local
// registry or leave as control messages.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"caption-stream-client/internal/models"
)

var (
	ErrEmptySpeakerID  = errors.New("speaker id is empty")
	ErrInvalidPosition = errors.New("position is not a finite number")
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateEntry checks one registry entry keyed by id.
func (v *Validator) ValidateEntry(id string, e models.SpeakerEntry) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptySpeakerID
	}
	if err := v.ValidateAngle(e.Position); err != nil {
		return fmt.Errorf("speaker %q: %w", id, err)
	}
	return nil
}

// ValidateAngle rejects NaN and infinite angles.
func (v *Validator) ValidateAngle(deg float64) error {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return ErrInvalidPosition
	}
	return nil
}

// FilterEntries returns the valid subset of a registry broadcast. Invalid
// entries are logged and skipped; they never fail the whole broadcast.
func (v *Validator) FilterEntries(entries map[string]models.SpeakerEntry) map[string]models.SpeakerEntry {
	out := make(map[string]models.SpeakerEntry, len(entries))
	for id, e := range entries {
		if err := v.ValidateEntry(id, e); err != nil {
			log.Debug().Err(err).Str("speakerId", id).Msg("registry entry rejected")
			continue
		}
		out[id] = e
	}
	return out
}

// ValidateUpdate checks an outbound update_speaker message.
func (v *Validator) ValidateUpdate(msg models.UpdateSpeaker) error {
	return v.ValidateEntry(msg.SpeakerID, models.SpeakerEntry{
		Name:     msg.Name,
		Position: msg.Position,
	})
}
