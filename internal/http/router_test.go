package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"caption-stream-client/internal/service/registry"
	"caption-stream-client/internal/service/transcription"
)

type fakeCaptioner struct {
	session   transcription.Session
	provider  transcription.Provider
	started   int
	stopped   int
	listening int
	calls     []string
	updated   map[string]float64
	hidden    map[string]bool
	offset    float64
	err       error
}

func newFakeCaptioner() *fakeCaptioner {
	return &fakeCaptioner{
		session: transcription.Session{BaseURL: "ws://base", Room: "r1", Role: transcription.RoleHost},
		updated: map[string]float64{},
		hidden:  map[string]bool{},
	}
}

func (f *fakeCaptioner) Snapshot() (transcription.Snapshot, error) {
	return transcription.Snapshot{
		Provider: f.provider.Info(),
		Room:     f.session.Room,
		Role:     f.session.Role,
		State:    "IDLE",
		Offset:   f.offset,
	}, nil
}

func (f *fakeCaptioner) Session() (transcription.Session, error) { return f.session, nil }

func (f *fakeCaptioner) SetSession(s transcription.Session) error {
	f.session = s
	return nil
}

func (f *fakeCaptioner) SetProvider(p transcription.Provider) error {
	f.provider = p
	return nil
}

func (f *fakeCaptioner) StartCapture() error {
	if f.err != nil {
		return f.err
	}
	f.started++
	return nil
}

func (f *fakeCaptioner) StopCapture() error {
	f.stopped++
	return nil
}

func (f *fakeCaptioner) ConnectListenOnly() error {
	f.listening++
	return nil
}

func (f *fakeCaptioner) Disconnect() error {
	f.calls = append(f.calls, "disconnect")
	return nil
}

func (f *fakeCaptioner) Speakers(includeHidden bool) ([]registry.Speaker, error) {
	out := []registry.Speaker{{ID: "Guest-1", Name: "Alice", Position: 90, Placed: true}}
	if includeHidden {
		out = append(out, registry.Speaker{ID: "Guest-2", Hidden: true})
	}
	return out, nil
}

func (f *fakeCaptioner) UpdateSpeaker(id, name string, position float64) error {
	f.updated[id] = position
	return nil
}

func (f *fakeCaptioner) SetHidden(id string, hidden bool) error {
	if id == "missing" {
		return registry.ErrUnknownSpeaker
	}
	f.hidden[id] = hidden
	return nil
}

func (f *fakeCaptioner) ClaimHost(id, name string) error {
	f.calls = append(f.calls, "claim:"+id+":"+name)
	return nil
}

func (f *fakeCaptioner) Direction(id string) (float64, bool, error) {
	if id == "Guest-1" {
		return 90, true, nil
	}
	return 0, false, nil
}

func (f *fakeCaptioner) CalibrateView(angle float64) error {
	f.offset = angle - registry.ReferenceAngle
	return nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h := NewRouter(newFakeCaptioner())

	for path, want := range map[string]string{"/v1/liveness": "ok", "/v1/readiness": "ready"} {
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Errorf("%s: expected 200 %q, got %d %q", path, want, rec.Code, rec.Body.String())
		}
	}
}

func TestRouter_CaptureAndListen(t *testing.T) {
	f := newFakeCaptioner()
	h := NewRouter(f)

	tests := []struct {
		path  string
		check func() bool
	}{
		{"/v1/capture/start", func() bool { return f.started == 1 }},
		{"/v1/capture/stop", func() bool { return f.stopped == 1 }},
		{"/v1/listen/connect", func() bool { return f.listening == 1 }},
		{"/v1/listen/disconnect", func() bool { return len(f.calls) == 1 && f.calls[0] == "disconnect" }},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, tt.path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", tt.path, rec.Code)
		}
		if !tt.check() {
			t.Errorf("%s: action not invoked", tt.path)
		}
	}
}

func TestRouter_NotHostIsForbidden(t *testing.T) {
	f := newFakeCaptioner()
	f.err = transcription.ErrNotHost
	rec := do(t, NewRouter(f), http.MethodPost, "/v1/capture/start", "")

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestRouter_ProviderAndSession(t *testing.T) {
	f := newFakeCaptioner()
	h := NewRouter(f)

	rec := do(t, h, http.MethodPut, "/v1/provider", `{"provider":"deepgram"}`)
	if rec.Code != http.StatusOK || f.provider != transcription.ProviderDeepgram {
		t.Fatalf("expected provider switch, got %d %s", rec.Code, f.provider)
	}
	var snap transcription.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Provider.Label != "Deepgram Nova-3" {
		t.Errorf("unexpected provider in state: %+v", snap.Provider)
	}

	rec = do(t, h, http.MethodPut, "/v1/session", `{"room":"r9","role":"viewer","token":"tok"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := transcription.Session{BaseURL: "ws://base", Room: "r9", Role: transcription.RoleViewer, Token: "tok"}
	if f.session != want {
		t.Errorf("expected %+v, got %+v", want, f.session)
	}

	rec = do(t, h, http.MethodPut, "/v1/session", `{"room":"r9","role":"admin"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad role, got %d", rec.Code)
	}
}

func TestRouter_Speakers(t *testing.T) {
	f := newFakeCaptioner()
	h := NewRouter(f)

	rec := do(t, h, http.MethodGet, "/v1/speakers?hidden=true", "")
	var list []registry.Speaker
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected hidden speakers included, got %d", len(list))
	}

	rec = do(t, h, http.MethodPut, "/v1/speakers/Guest-1", `{"name":"Alice","position":90}`)
	if rec.Code != http.StatusNoContent || f.updated["Guest-1"] != 90 {
		t.Errorf("expected update, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/v1/speakers/Guest-1", `{"name":"Alice"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without position, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/v1/speakers/Guest-1/hidden", `{"hidden":true}`)
	if rec.Code != http.StatusNoContent || !f.hidden["Guest-1"] {
		t.Errorf("expected hidden, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/v1/speakers/missing/hidden", `{"hidden":true}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown speaker, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/v1/speakers/Guest-1/claim-host", "")
	if rec.Code != http.StatusNoContent || f.calls[len(f.calls)-1] != "claim:Guest-1:" {
		t.Errorf("expected claim without body, got %d %v", rec.Code, f.calls)
	}
}

func TestRouter_DirectionAndCalibrate(t *testing.T) {
	f := newFakeCaptioner()
	h := NewRouter(f)

	rec := do(t, h, http.MethodGet, "/v1/speakers/Guest-1/direction", "")
	if !strings.Contains(rec.Body.String(), `"direction":90`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/v1/speakers/Guest-7/direction", "")
	if !strings.Contains(rec.Body.String(), `"direction":null`) {
		t.Errorf("expected unknown direction, got %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/calibrate", `{"observedAngle":90}`)
	if rec.Code != http.StatusOK || f.offset != -90 {
		t.Errorf("expected offset -90, got %d %v", rec.Code, f.offset)
	}

	rec = do(t, h, http.MethodPost, "/v1/calibrate", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
