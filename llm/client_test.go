package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/dj-tender/media"
	"github.com/onnwee/dj-tender/testutil"
)

func mockOllama(t *testing.T, status int, response string, seen *generateRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		if status != http.StatusOK {
			http.Error(w, "model not found", status)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: response, Done: true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRecommendParsesTracks(t *testing.T) {
	var seen generateRequest
	srv := mockOllama(t, http.StatusOK, `{"tracks":[{"title":"Blue Monday","artist":"New Order"},{"title":"","artist":"ghost"},{"title":" Age of Consent ","artist":"New Order"}]}`, &seen)
	c := NewClient(srv.URL+"/", "test-model")

	got, err := c.Recommend(context.Background(), RecommendRequest{
		Song: "Blue", Artist: "X", History: []string{"Ceremony"}, Count: 5,
	})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	want := []media.Candidate{{Title: "Blue Monday", Artist: "New Order"}, {Title: "Age of Consent", Artist: "New Order"}}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if seen.Model != "test-model" || seen.Format != "json" || seen.Stream {
		t.Errorf("unexpected request: %+v", seen)
	}
	for _, frag := range []string{"Seed song: Blue", "Seed artist: X", "Already played: Ceremony", "Suggest 5 songs"} {
		if !strings.Contains(seen.Prompt, frag) {
			t.Errorf("prompt missing %q:\n%s", frag, seen.Prompt)
		}
	}
}

func TestRecommendEmpty(t *testing.T) {
	srv := mockOllama(t, http.StatusOK, `{"tracks":[]}`, nil)
	got, err := NewClient(srv.URL, "m").Recommend(context.Background(), RecommendRequest{})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestGenerateStatusError(t *testing.T) {
	srv := mockOllama(t, http.StatusNotFound, "", nil)
	_, err := NewClient(srv.URL, "m").Generate(context.Background(), "", "hi", false)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"wrapped", `{"tracks":[{"title":"a","artist":"b"}]}`, 1, false},
		{"bare array", `[{"title":"a"},{"title":"b","artist":"c"}]`, 2, false},
		{"fenced", "```json\n[{\"title\":\"a\",\"artist\":\"b\"}]\n```", 1, false},
		{"blank", "  ", 0, false},
		{"garbage", "sorry, I can't", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCandidates(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestCommentaryCleansText(t *testing.T) {
	var seen generateRequest
	srv := mockOllama(t, http.StatusOK, "<think>plan</think>\n\"Here comes **Blue Monday**!\"", &seen)
	got, err := NewClient(srv.URL, "m").Commentary(context.Background(), []media.Track{{Title: "Blue Monday", Author: "New Order"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Here comes Blue Monday!" {
		t.Errorf("Commentary = %q", got)
	}
	if seen.Format != "" {
		t.Errorf("commentary should not request json, got %q", seen.Format)
	}
	if !strings.Contains(seen.Prompt, "1. Blue Monday by New Order") {
		t.Errorf("prompt = %q", seen.Prompt)
	}
}

func TestBanterEmpty(t *testing.T) {
	srv := mockOllama(t, http.StatusOK, "<think>hmm</think>", nil)
	_, err := NewClient(srv.URL, "m").Banter(context.Background(), media.Track{Title: "x"}, "u")
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("err = %v, want ErrNoText", err)
	}
}

func TestRequestPromptTrimsHistory(t *testing.T) {
	h := make([]string, maxHistoryHint+10)
	for i := range h {
		h[i] = "t"
	}
	h[0] = "oldest"
	p := RecommendRequest{History: h}.prompt()
	if strings.Contains(p, "oldest") {
		t.Error("history not trimmed to most recent entries")
	}
}

func TestAvailable(t *testing.T) {
	srv := testutil.MockOllamaServer(t, `[{"title":"Strobe","artist":"deadmau5"}]`)
	c := NewClient(srv.URL, "llama3.1")
	if !c.Available(context.Background()) {
		t.Fatal("expected server to be available")
	}
	got, err := c.Recommend(context.Background(), RecommendRequest{Genre: "progressive house", Count: 1})
	if err != nil || len(got) != 1 || got[0].Artist != "deadmau5" {
		t.Fatalf("Recommend = %+v, %v", got, err)
	}

	down := NewClient("http://127.0.0.1:1", "llama3.1")
	if down.Available(context.Background()) {
		t.Error("unreachable server reported available")
	}
}
