package orchestrator

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Post("/", h.StartSession)
		r.Delete("/", h.StopSession)
		r.Post("/replay", h.Replay)
	})
	r.Post("/playback", h.Play)
	r.Get("/config/delay", h.GetDelay)
	r.Put("/config/delay", h.SetDelay)
	return r
}

func newTestHandler(t *testing.T) (*harness, *chi.Mux) {
	t.Helper()
	hs := newHarness(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return hs, newTestRouter(NewHandler(hs.orch, log))
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestHandler_StartSession(t *testing.T) {
	hs, r := newTestHandler(t)

	rec := do(r, http.MethodPost, "/session", `{"host":"127.0.0.1","port":4444}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg, _ := decodeBody(t, rec)["message"].(string); !strings.Contains(msg, "127.0.0.1:4444") {
		t.Errorf("message = %q", msg)
	}
	if !hs.state.Running() {
		t.Error("session should be running")
	}

	rec = do(r, http.MethodPost, "/session", `{"host":"127.0.0.1","port":4444}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start: expected 409, got %d", rec.Code)
	}
}

func TestHandler_StartSession_bad_request(t *testing.T) {
	_, r := newTestHandler(t)
	for _, body := range []string{"not json", `{"host":"","port":4455}`, `{"host":"h","port":0}`, `{"host":"h","port":70000}`} {
		if rec := do(r, http.MethodPost, "/session", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestHandler_StartSession_backend_failure(t *testing.T) {
	hs, r := newTestHandler(t)
	hs.dialer.setup = func(int, *stubBackend) error { return errStub }

	rec := do(r, http.MethodPost, "/session", `{"host":"127.0.0.1","port":4455}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if e, _ := decodeBody(t, rec)["error"].(string); !strings.Contains(e, "connect to recording backend") {
		t.Errorf("error = %q", e)
	}
}

func TestHandler_StopSession(t *testing.T) {
	hs, r := newTestHandler(t)
	if rec := do(r, http.MethodDelete, "/session", ""); rec.Code != http.StatusConflict {
		t.Errorf("stop idle: expected 409, got %d", rec.Code)
	}
	hs.startSession(t)
	if rec := do(r, http.MethodDelete, "/session", ""); rec.Code != http.StatusOK {
		t.Errorf("stop running: expected 200, got %d", rec.Code)
	}
	if hs.state.Current() != StateIdle {
		t.Errorf("state = %v", hs.state.Current())
	}
}

func TestHandler_GetStatus(t *testing.T) {
	_, r := newTestHandler(t)
	rec := do(r, http.MethodGet, "/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	m := decodeBody(t, rec)
	if m["state"] != "idle" || m["running"] != false || m["delay_seconds"].(float64) != DefaultDelay {
		t.Errorf("status = %v", m)
	}
}

func TestHandler_Replay(t *testing.T) {
	hs, r := newTestHandler(t)
	if rec := do(r, http.MethodPost, "/session/replay", ""); rec.Code != http.StatusConflict {
		t.Errorf("idle replay: expected 409, got %d", rec.Code)
	}
	b := hs.startSession(t)
	if rec := do(r, http.MethodPost, "/session/replay", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	eventually(t, func() bool { return len(hs.timer.waits()) == 1 })
	hs.timer.fire <- time.Now()
	eventually(t, func() bool { return b.saveCount() == 1 })
}

func TestHandler_Play(t *testing.T) {
	hs, r := newTestHandler(t)

	if rec := do(r, http.MethodPost, "/playback", "nope"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/playback", `{"clips":[]}`); rec.Code != http.StatusOK {
		t.Errorf("empty: expected 200, got %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/playback", `{"clips":["/r/a.mkv"]}`); rec.Code != http.StatusPreconditionFailed {
		t.Errorf("no session: expected 412, got %d", rec.Code)
	}

	hs.startSession(t)
	rec := do(r, http.MethodPost, "/playback", `{"clips":["/r/a.mkv","/r/b.mkv"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg, _ := decodeBody(t, rec)["message"].(string); msg != "Playing 2 clip(s)" {
		t.Errorf("message = %q", msg)
	}

	hs.dialer.mu.Lock()
	hs.dialer.setup = func(_ int, b *stubBackend) error { b.playErr = errStub; return nil }
	hs.dialer.mu.Unlock()
	if rec := do(r, http.MethodPost, "/playback", `{"clips":["/r/a.mkv"]}`); rec.Code != http.StatusBadGateway {
		t.Errorf("play failure: expected 502, got %d", rec.Code)
	}
}

func TestHandler_Delay(t *testing.T) {
	hs, r := newTestHandler(t)

	rec := do(r, http.MethodGet, "/config/delay", "")
	if rec.Code != http.StatusOK || decodeBody(t, rec)["delay_seconds"].(float64) != 3 {
		t.Fatalf("get delay: %d %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		body string
		want float64
	}{
		{`{"delay_seconds":5}`, 5},
		{`{"delay_seconds":0}`, 1},
		{`{"delay_seconds":99}`, 30},
		{`{"delay_seconds":-4}`, 1},
	}
	for _, tt := range tests {
		rec := do(r, http.MethodPut, "/config/delay", tt.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.body, rec.Code)
		}
		m := decodeBody(t, rec)
		if m["delay_seconds"].(float64) != tt.want {
			t.Errorf("%s: stored %v, want %v", tt.body, m["delay_seconds"], tt.want)
		}
		if float64(hs.config.Delay()) != tt.want {
			t.Errorf("%s: config holds %d", tt.body, hs.config.Delay())
		}
	}

	for _, body := range []string{"x", `{}`, `{"delay_seconds":"5"}`} {
		if rec := do(r, http.MethodPut, "/config/delay", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}
