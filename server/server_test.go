package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/dj-tender/dj"
)

type fakeSessions struct {
	list    []dj.Status
	skipped []string
	stopped []string
	err     error
}

func (f *fakeSessions) Sessions() []dj.Status { return f.list }

func (f *fakeSessions) Skip(guildID, userID string) error {
	f.skipped = append(f.skipped, guildID+"/"+userID)
	return f.err
}

func (f *fakeSessions) Stop(guildID string) error {
	f.stopped = append(f.stopped, guildID)
	return f.err
}

func newTestMux(t *testing.T, s Sessions) http.Handler {
	t.Helper()
	t.Setenv("ADMIN_TOKEN", "")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
	return NewMux(NewHandlers(nil, s, nil))
}

func TestHealthzWithoutDatabase(t *testing.T) {
	mux := newTestMux(t, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}

func TestReadyzReportsFailedCheck(t *testing.T) {
	mux := newTestMux(t, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz code = %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["failed_check"] != "database" {
		t.Errorf("failed_check = %q", body["failed_check"])
	}
}

func TestSessionsList(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fs := &fakeSessions{list: []dj.Status{{ID: "s1", GuildID: "g1", State: "idle", QueueSize: 4, StartedAt: started}}}
	mux := newTestMux(t, fs)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	var got []dj.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].GuildID != "g1" || got[0].QueueSize != 4 || !got[0].StartedAt.Equal(started) {
		t.Errorf("sessions = %+v", got)
	}
}

func TestSessionActions(t *testing.T) {
	fs := &fakeSessions{}
	mux := newTestMux(t, fs)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions/g1/skip?user=alice", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("skip code = %d", rr.Code)
	}
	if len(fs.skipped) != 1 || fs.skipped[0] != "g1/alice" {
		t.Errorf("skipped = %v", fs.skipped)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/sessions/g1", nil))
	if rr.Code != http.StatusNoContent || len(fs.stopped) != 1 {
		t.Fatalf("stop code = %d stopped = %v", rr.Code, fs.stopped)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/g1/skip", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET skip code = %d", rr.Code)
	}

	fs.err = dj.ErrNoSession
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/sessions/g2", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown session code = %d", rr.Code)
	}

	fs.err = dj.ErrNothingPlaying
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions/g1/skip", nil))
	if rr.Code != http.StatusConflict {
		t.Errorf("nothing playing code = %d", rr.Code)
	}
}

func TestVoicesList(t *testing.T) {
	mux := newTestMux(t, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/voices", nil))
	var keys []string
	if err := json.Unmarshal(rr.Body.Bytes(), &keys); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(keys) == 0 {
		t.Error("no voices listed")
	}
}

func TestCorrelationHeader(t *testing.T) {
	mux := newTestMux(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	mux.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("echoed corr = %q", got)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rr.Header().Get("X-Correlation-ID"); len(got) != 36 {
		t.Errorf("generated corr = %q", got)
	}
}
