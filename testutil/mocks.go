package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockTwitchServer mocks the Twitch token endpoint and the Helix video/clip lookups.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockVideosResponse serves /helix/videos.
func (m *MockTwitchServer) MockVideosResponse(videos []map[string]string) {
	m.Handlers["/helix/videos"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": videos})
	}
}

// MockClipsResponse serves /helix/clips.
func (m *MockTwitchServer) MockClipsResponse(clips []map[string]any) {
	m.Handlers["/helix/clips"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": clips})
	}
}

// MockOAuthTokenResponse serves /oauth2/token.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	}
}

// MockOllamaServer answers /api/generate with a fixed response body and
// /api/tags with a single model.
func MockOllamaServer(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			writeJSON(w, map[string]any{"response": response, "done": true})
		case "/api/tags":
			writeJSON(w, map[string]any{"models": []map[string]string{{"name": "llama3.1:latest"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}
