package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/onnwee/dj-tender/testutil"
)

func newTestHelix(t *testing.T) (*HelixClient, *testutil.MockTwitchServer) {
	t.Helper()
	mock := testutil.NewMockTwitchServer(t)
	mock.MockOAuthTokenResponse("app-token", 3600)
	hc := &HelixClient{
		AppTokenSource: &TokenSource{ClientID: "cid", ClientSecret: "secret", TokenURL: mock.URL + "/oauth2/token"},
		ClientID:       "cid",
		BaseURL:        mock.URL + "/helix",
	}
	return hc, mock
}

func TestGetVideo(t *testing.T) {
	hc, mock := newTestHelix(t)
	mock.MockVideosResponse([]map[string]string{
		{"id": "123", "title": "Late night vinyl", "user_name": "djcat", "url": "https://www.twitch.tv/videos/123", "duration": "1h2m3s"},
	})

	v, err := hc.GetVideo(context.Background(), "123")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if v.Title != "Late night vinyl" || v.Author != "djcat" {
		t.Errorf("unexpected video %+v", v)
	}
	if v.Duration != time.Hour+2*time.Minute+3*time.Second {
		t.Errorf("Duration = %v", v.Duration)
	}
}

func TestGetVideoNotFound(t *testing.T) {
	hc, mock := newTestHelix(t)
	mock.MockVideosResponse([]map[string]string{})
	if _, err := hc.GetVideo(context.Background(), "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := hc.GetVideo(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestGetClip(t *testing.T) {
	hc, mock := newTestHelix(t)
	mock.Handlers["/helix/clips"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer app-token" || r.Header.Get("Client-Id") != "cid" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if r.URL.Query().Get("id") != "FunnySlug" {
			t.Errorf("id = %q", r.URL.Query().Get("id"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"FunnySlug","title":"drop","broadcaster_name":"djcat","duration":29.5}]}`))
	}
	c, err := hc.GetClip(context.Background(), "FunnySlug")
	if err != nil {
		t.Fatalf("GetClip: %v", err)
	}
	if c.Author != "djcat" || c.Duration != 29500*time.Millisecond {
		t.Errorf("unexpected clip %+v", c)
	}
}

func TestHelixStatusError(t *testing.T) {
	hc, _ := newTestHelix(t) // no /helix/clips handler: 404
	if _, err := hc.GetClip(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 404")
	}
}
