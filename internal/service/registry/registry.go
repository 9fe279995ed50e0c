// Package registry keeps the speaker registry shared with the backend and
// the viewer's spatial calibration.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"caption-stream-client/internal/models"
	"caption-stream-client/internal/observability/metrics"
	"caption-stream-client/internal/schema"
)

// DefaultHostName is used by ClaimHost when no name is given.
const DefaultHostName = "Host"

// ErrUnknownSpeaker is returned for operations on ids with no entry.
var ErrUnknownSpeaker = errors.New("unknown speaker")

// Sender delivers outbound control messages on the current connection.
type Sender interface {
	SendControl(v any) error
}

// Speaker is a snapshot of one registry entry.
type Speaker struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Position float64 `json:"position"`
	// Placed is false for speakers only seen in transcripts.
	Placed bool `json:"placed"`
	Hidden bool `json:"hidden"`
}

type entry struct {
	name     string
	position float64
	placed   bool
	hidden   bool
}

// Registry is confined to the event loop that owns it.
type Registry struct {
	entries map[string]entry
	offset  float64

	sender Sender
	synced bool

	validator *schema.Validator
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// New creates an empty registry.
func New(m *metrics.Metrics, log zerolog.Logger) *Registry {
	return &Registry{
		entries:   make(map[string]entry),
		validator: schema.New(),
		metrics:   m,
		log:       log,
	}
}

// OnConnected binds the registry to a fresh connection and requests the full
// registry once per connection.
func (r *Registry) OnConnected(s Sender) {
	r.sender = s
	if r.synced {
		return
	}
	r.synced = true
	err := s.SendControl(models.NewGetSpeakers())
	r.metrics.RecordControlMessage(models.TypeGetSpeakers, err)
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to request speaker registry")
	}
}

// OnDisconnected unbinds the connection. The next connection syncs again and
// the calibration offset is dropped.
func (r *Registry) OnDisconnected() {
	r.sender = nil
	r.synced = false
	r.offset = 0
}

// Merge folds a backend broadcast into the registry, overwriting known ids
// entry by entry. A broadcast without a hidden flag keeps the local one, so
// the echo of a rename does not reveal a hidden speaker.
func (r *Registry) Merge(entries map[string]models.SpeakerEntry) {
	valid := r.validator.FilterEntries(entries)
	for id, e := range valid {
		hidden := r.entries[id].hidden
		if e.Hidden != nil {
			hidden = *e.Hidden
		}
		r.entries[id] = entry{
			name:     e.Name,
			position: Normalize(e.Position),
			placed:   true,
			hidden:   hidden,
		}
	}
	r.metrics.RecordRegistryMerge()
	r.log.Debug().Int("entries", len(valid)).Int("rejected", len(entries)-len(valid)).Msg("Registry merged")
}

// Observe records a speaker first seen in a transcript. Known ids are left
// untouched.
func (r *Registry) Observe(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if _, ok := r.entries[id]; ok {
		return
	}
	r.entries[id] = entry{name: id}
}

// UpdateSpeaker writes name and position locally and announces the change.
// The hidden flag is kept.
func (r *Registry) UpdateSpeaker(id, name string, position float64) error {
	e := r.entries[id]
	e.name = name
	e.position = position
	e.placed = true
	return r.write(id, e, "speaker")
}

// SetHidden toggles visibility without touching name or position.
func (r *Registry) SetHidden(id string, hidden bool) error {
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSpeaker, id)
	}
	e.hidden = hidden
	return r.write(id, e, "hidden")
}

// ClaimHost places id at the reference seat.
func (r *Registry) ClaimHost(id, name string) error {
	if strings.TrimSpace(name) == "" {
		name = DefaultHostName
	}
	return r.UpdateSpeaker(id, name, ReferenceAngle)
}

func (r *Registry) write(id string, e entry, field string) error {
	msg := models.NewUpdateSpeaker(id, e.name, e.position, e.hidden)
	if err := r.validator.ValidateUpdate(msg); err != nil {
		return err
	}
	// Stored as sent so the echo leaves the entry unchanged.
	e.position = Normalize(msg.Position)
	msg.Position = e.position

	r.entries[id] = e
	r.metrics.RecordLocalUpdate(field)

	if r.sender == nil {
		r.log.Debug().Str("speakerId", id).Msg("Speaker updated locally; not connected")
		return nil
	}
	err := r.sender.SendControl(msg)
	r.metrics.RecordControlMessage(models.TypeUpdateSpeaker, err)
	if err != nil {
		r.log.Warn().Err(err).Str("speakerId", id).Msg("Failed to send speaker update")
	}
	return nil
}

// CalibrateView records the angle at which the viewer currently perceives
// the host.
func (r *Registry) CalibrateView(observedHostAngle float64) error {
	if err := r.validator.ValidateAngle(observedHostAngle); err != nil {
		return err
	}
	r.offset = observedHostAngle - ReferenceAngle
	r.log.Info().Float64("offset", r.offset).Msg("View calibrated")
	return nil
}

// Offset returns the calibration offset in degrees.
func (r *Registry) Offset() float64 {
	return r.offset
}

// Direction returns the calibrated angle of a speaker, or false when the
// speaker has no stored position.
func (r *Registry) Direction(id string) (float64, bool) {
	e, ok := r.entries[id]
	if !ok || !e.placed {
		return 0, false
	}
	return Normalize(e.position + r.offset), true
}

// Name returns the display name of id, or id itself when unknown.
func (r *Registry) Name(id string) string {
	if e, ok := r.entries[id]; ok && e.name != "" {
		return e.name
	}
	return id
}

// Hidden reports whether id is hidden.
func (r *Registry) Hidden(id string) bool {
	return r.entries[id].hidden
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Speaker, bool) {
	e, ok := r.entries[id]
	if !ok {
		return Speaker{}, false
	}
	return toSpeaker(id, e), true
}

// All returns every entry sorted by id, hidden ones included.
func (r *Registry) All() []Speaker {
	return r.list(true)
}

// Visible returns the entries used for rendering, sorted by id.
func (r *Registry) Visible() []Speaker {
	return r.list(false)
}

func (r *Registry) list(includeHidden bool) []Speaker {
	out := make([]Speaker, 0, len(r.entries))
	for id, e := range r.entries {
		if e.hidden && !includeHidden {
			continue
		}
		out = append(out, toSpeaker(id, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func toSpeaker(id string, e entry) Speaker {
	return Speaker{ID: id, Name: e.name, Position: e.position, Placed: e.placed, Hidden: e.hidden}
}
