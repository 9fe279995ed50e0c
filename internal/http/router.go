// Package http serves the local control API a UI process uses to drive the
// captioning client.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"caption-stream-client/internal/schema"
	"caption-stream-client/internal/service/registry"
	"caption-stream-client/internal/service/transcription"
)

// Captioner is the facade the API drives.
type Captioner interface {
	Snapshot() (transcription.Snapshot, error)
	Session() (transcription.Session, error)
	SetSession(s transcription.Session) error
	SetProvider(p transcription.Provider) error
	StartCapture() error
	StopCapture() error
	ConnectListenOnly() error
	Disconnect() error
	Speakers(includeHidden bool) ([]registry.Speaker, error)
	UpdateSpeaker(id, name string, position float64) error
	SetHidden(id string, hidden bool) error
	ClaimHost(id, name string) error
	Direction(id string) (float64, bool, error)
	CalibrateView(observedHostAngle float64) error
}

type api struct {
	c Captioner
}

// NewRouter constructs the control API router.
func NewRouter(c Captioner) http.Handler {
	a := &api{c: c}
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := c.Snapshot(); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", a.state)
		r.Get("/providers", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, transcription.Providers())
		})
		r.Put("/provider", a.setProvider)
		r.Put("/session", a.setSession)

		r.Post("/capture/start", a.action(c.StartCapture))
		r.Post("/capture/stop", a.action(c.StopCapture))
		r.Post("/listen/connect", a.action(c.ConnectListenOnly))
		r.Post("/listen/disconnect", a.action(c.Disconnect))

		r.Post("/calibrate", a.calibrate)

		r.Route("/speakers", func(r chi.Router) {
			r.Get("/", a.speakers)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", a.updateSpeaker)
				r.Put("/hidden", a.setHidden)
				r.Post("/claim-host", a.claimHost)
				r.Get("/direction", a.direction)
			})
		})
	})

	return r
}

func (a *api) state(w http.ResponseWriter, _ *http.Request) {
	s, err := a.c.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) action(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := fn(); err != nil {
			writeError(w, err)
			return
		}
		a.state(w, nil)
	}
}

type providerRequest struct {
	Provider string `json:"provider"`
}

func (a *api) setProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.c.SetProvider(transcription.ParseProvider(req.Provider)); err != nil {
		writeError(w, err)
		return
	}
	a.state(w, r)
}

type sessionRequest struct {
	ServerURL string `json:"serverUrl,omitempty"`
	Room      string `json:"room"`
	Role      string `json:"role"`
	Token     string `json:"token,omitempty"`
}

func (a *api) setSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decode(w, r, &req) {
		return
	}
	role, err := transcription.ParseRole(req.Role)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	current, err := a.c.Session()
	if err != nil {
		writeError(w, err)
		return
	}
	s := transcription.Session{BaseURL: current.BaseURL, Room: req.Room, Role: role, Token: req.Token}
	if req.ServerURL != "" {
		s.BaseURL = req.ServerURL
	}
	if err := a.c.SetSession(s); err != nil {
		writeError(w, err)
		return
	}
	a.state(w, r)
}

func (a *api) speakers(w http.ResponseWriter, r *http.Request) {
	includeHidden, _ := strconv.ParseBool(r.URL.Query().Get("hidden"))
	list, err := a.c.Speakers(includeHidden)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type speakerRequest struct {
	Name     string   `json:"name"`
	Position *float64 `json:"position"`
}

func (a *api) updateSpeaker(w http.ResponseWriter, r *http.Request) {
	var req speakerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Position == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "position is required"})
		return
	}
	if err := a.c.UpdateSpeaker(chi.URLParam(r, "id"), req.Name, *req.Position); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type hiddenRequest struct {
	Hidden bool `json:"hidden"`
}

func (a *api) setHidden(w http.ResponseWriter, r *http.Request) {
	var req hiddenRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.c.SetHidden(chi.URLParam(r, "id"), req.Hidden); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type claimRequest struct {
	Name string `json:"name"`
}

func (a *api) claimHost(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if err := a.c.ClaimHost(chi.URLParam(r, "id"), req.Name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type directionResponse struct {
	SpeakerID string   `json:"speakerId"`
	Direction *float64 `json:"direction"`
}

func (a *api) direction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir, ok, err := a.c.Direction(id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := directionResponse{SpeakerID: id}
	if ok {
		resp.Direction = &dir
	}
	writeJSON(w, http.StatusOK, resp)
}

type calibrateRequest struct {
	ObservedAngle *float64 `json:"observedAngle"`
}

func (a *api) calibrate(w http.ResponseWriter, r *http.Request) {
	var req calibrateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ObservedAngle == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "observedAngle is required"})
		return
	}
	if err := a.c.CalibrateView(*req.ObservedAngle); err != nil {
		writeError(w, err)
		return
	}
	a.state(w, r)
}

type errorBody struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, transcription.ErrNotHost):
		status = http.StatusForbidden
	case errors.Is(err, registry.ErrUnknownSpeaker):
		status = http.StatusNotFound
	case errors.Is(err, schema.ErrEmptySpeakerID), errors.Is(err, schema.ErrInvalidPosition):
		status = http.StatusBadRequest
	case errors.Is(err, transcription.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Control request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
