package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/dj-tender/media"
)

// fakeSearch resolves queries listed in hits; everything else returns no results.
type fakeSearch struct {
	hits  map[string]media.Track
	delay time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	mu       sync.Mutex
	queries  []string
}

func (f *fakeSearch) Search(ctx context.Context, q string, limit int) ([]media.Track, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if strings.Contains(q, "boom") {
		return nil, errors.New("backend down")
	}
	if t, ok := f.hits[q]; ok {
		return []media.Track{t}, nil
	}
	return nil, nil
}

func song(name string) media.Track {
	return media.Track{Title: name, Author: "X", Locator: "https://youtu.be/" + name, Duration: 3 * time.Minute}
}

func TestResolveBatchesAndOrder(t *testing.T) {
	cands := []media.Candidate{
		{Title: "t1", Artist: "X"}, {Title: "miss1", Artist: "X"}, {Title: "t2", Artist: "X"},
		{Title: "t3", Artist: "X"}, {Title: "t4", Artist: "X"}, {Title: "miss2", Artist: "X"},
		{Title: "t5", Artist: "X"},
	}
	fs := &fakeSearch{hits: map[string]media.Track{}, delay: 30 * time.Millisecond}
	for _, n := range []string{"t1", "t2", "t3", "t4", "t5"} {
		fs.hits["X - "+n] = song(n)
	}
	r := New(fs, Options{})
	var sizes []int
	r.onBatch = func(n int) { sizes = append(sizes, n) }

	got := r.Resolve(context.Background(), cands, "user1")

	if want := []int{3, 3, 1}; len(sizes) != 3 || sizes[0] != want[0] || sizes[1] != want[1] || sizes[2] != want[2] {
		t.Fatalf("batch sizes = %v, want %v", sizes, want)
	}
	if fs.maxSeen.Load() > 3 {
		t.Errorf("max concurrent searches = %d, want <= 3", fs.maxSeen.Load())
	}
	if fs.calls.Load() != 7 {
		t.Errorf("search calls = %d, want 7", fs.calls.Load())
	}
	if len(got) != 5 {
		t.Fatalf("resolved %d tracks, want 5", len(got))
	}
	for i, tr := range got {
		if want := "t" + string(rune('1'+i)); tr.Title != want {
			t.Errorf("track %d = %q, want %q", i, tr.Title, want)
		}
		if tr.RequestedBy != "user1" || tr.Origin != media.OriginRegular {
			t.Errorf("track %d metadata = %+v", i, tr)
		}
	}
}

func TestResolveBatchesRunConcurrently(t *testing.T) {
	fs := &fakeSearch{hits: map[string]media.Track{}, delay: 50 * time.Millisecond}
	r := New(fs, Options{})
	start := time.Now()
	r.Resolve(context.Background(), []media.Candidate{{Title: "a"}, {Title: "b"}, {Title: "c"}}, "")
	if elapsed := time.Since(start); elapsed > 140*time.Millisecond {
		t.Errorf("one batch of 3 took %v; calls are not concurrent", elapsed)
	}
	if fs.maxSeen.Load() < 2 {
		t.Errorf("max concurrent = %d, expected parallel calls", fs.maxSeen.Load())
	}
}

func TestResolveAllMissing(t *testing.T) {
	fs := &fakeSearch{hits: map[string]media.Track{}}
	got := New(fs, Options{}).Resolve(context.Background(), []media.Candidate{{Title: "boom"}, {Title: "nothing"}}, "")
	if len(got) != 0 {
		t.Fatalf("expected no tracks, got %+v", got)
	}
}

func TestResolveOneCaches(t *testing.T) {
	fs := &fakeSearch{hits: map[string]media.Track{"X - t1": song("t1")}}
	r := New(fs, Options{CacheTTL: time.Minute})
	if _, ok := r.ResolveOne(context.Background(), media.Candidate{Title: "t1", Artist: "X"}, "u"); !ok {
		t.Fatal("expected hit")
	}
	before := fs.calls.Load()
	if _, ok := r.ResolveOne(context.Background(), media.Candidate{Title: "t1", Artist: "X"}, "u2"); !ok {
		t.Fatal("expected cached hit")
	}
	if fs.calls.Load() != before {
		t.Errorf("cached query reached the backend")
	}
}

func TestUsable(t *testing.T) {
	tests := []struct {
		name string
		tr   media.Track
		want bool
	}{
		{"regular", song("a"), true},
		{"unknown duration", media.Track{Title: "a", Locator: "https://x/a"}, true},
		{"short", media.Track{Title: "a", Locator: "https://x/a", Duration: 45 * time.Second}, false},
		{"shorts url", media.Track{Title: "a", Locator: "https://youtube.com/shorts/a", Duration: 3 * time.Minute}, false},
		{"shorts tag", media.Track{Title: "dance #Shorts", Locator: "https://x/a", Duration: 3 * time.Minute}, false},
		{"no locator", media.Track{Title: "a"}, false},
	}
	for _, tt := range tests {
		if got := Usable(tt.tr); got != tt.want {
			t.Errorf("%s: Usable = %v, want %v", tt.name, got, tt.want)
		}
	}
}
