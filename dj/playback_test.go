package dj

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onnwee/dj-tender/commentary"
	"github.com/onnwee/dj-tender/linkmeta"
	"github.com/onnwee/dj-tender/media"
	"github.com/onnwee/dj-tender/player"
	"github.com/onnwee/dj-tender/resolver"
)

type stubWriter struct{}

func (stubWriter) Commentary(context.Context, []media.Track) (string, error) {
	return "Coming up, two from X.", nil
}

func (stubWriter) Banter(context.Context, media.Track, string) (string, error) {
	return "Fair enough.", nil
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

type liveHarness struct {
	o     *Orchestrator
	m     *player.Manager
	rec   *fakeRecommender
	stats *fakeStats
	note  *fakeNotifier
	j     *journal
	// tick ends the current track when sent to.
	tick chan time.Time
}

// newLiveHarness drives the real player and a commentary pipeline whose
// synthesizer and transcoder are shell scripts copying the text through.
func newLiveHarness(t *testing.T) *liveHarness {
	t.Helper()
	dir := t.TempDir()
	tick := make(chan time.Time)
	m := player.NewManager(player.WithClock(func(time.Duration) <-chan time.Time { return tick }))

	pipe := commentary.New(commentary.Config{
		PiperPath:   writeScript(t, dir, "piper", "cat\n"),
		FFmpegPath:  writeScript(t, dir, "ffmpeg", "for a; do last=$a; done\ncat > \"$last\"\n"),
		FFprobePath: writeScript(t, dir, "ffprobe", "echo 4.5\n"),
		TempDir:     filepath.Join(dir, "out"),
	}, stubWriter{}, nil)

	fs := &fakeSearch{hits: map[string]media.Track{"X - t1": song("t1"), "X - t2": song("t2")}}
	j := &journal{}
	h := &liveHarness{
		m:     m,
		rec:   &fakeRecommender{cands: []media.Candidate{{Title: "t1", Artist: "X"}, {Title: "t2", Artist: "X"}}},
		stats: &fakeStats{j: j},
		note:  &fakeNotifier{},
		j:     j,
		tick:  tick,
	}
	h.o = New(Config{NearEmptyThreshold: 1, CycleTimeout: 5 * time.Second}, Deps{
		Queues:      func(guildID string) Queue { return m.Create(guildID) },
		Recommender: h.rec,
		Resolver:    resolver.New(fs, resolver.Options{}),
		Commentary:  pipe,
		Links:       &fakeLinks{err: linkmeta.ErrNotLink},
		Stats:       h.stats,
		Notifier:    h.note,
	})
	t.Cleanup(h.o.Close)
	return h
}

func (h *liveHarness) next(t *testing.T) player.Event {
	t.Helper()
	select {
	case e := <-h.m.Events():
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for player event")
		return player.Event{}
	}
}

func TestCommentaryFileKeptUntilItFinishes(t *testing.T) {
	h := newLiveHarness(t)
	ctx := context.Background()
	if _, err := h.o.Start(ctx, "g1", "chan", "alice", media.Seeds{Genre: "house"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.o.Wait()
	q, ok := h.m.Get("g1")
	if !ok {
		t.Fatal("no player queue for g1")
	}

	start := h.next(t)
	if start.Type != player.EventTrackStart || start.Track.Origin != media.OriginCommentary {
		t.Fatalf("first event = %s %+v, want commentary start", start.Type, start.Track)
	}
	h.o.HandleEvent(ctx, start)
	h.o.Wait()

	cur, ok := q.Current()
	if !ok || cur.TempPath == "" || cur.TempPath != start.Track.TempPath {
		t.Fatalf("current = %+v, %v", cur, ok)
	}
	if _, err := os.Stat(cur.TempPath); err != nil {
		t.Fatalf("commentary file missing while playing: %v", err)
	}

	h.tick <- time.Time{}
	finish := h.next(t)
	if finish.Type != player.EventTrackFinish || finish.Track.TempPath != cur.TempPath {
		t.Fatalf("second event = %s %+v, want commentary finish", finish.Type, finish.Track)
	}
	if _, err := os.Stat(cur.TempPath); err != nil {
		t.Fatalf("commentary file removed before its finish was handled: %v", err)
	}
	h.o.HandleEvent(ctx, finish)
	if _, err := os.Stat(cur.TempPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("commentary file still present after finish: %v", err)
	}

	next := h.next(t)
	if next.Type != player.EventTrackStart || next.Track.Title != "t1" {
		t.Errorf("third event = %s %q, want start of t1", next.Type, next.Track.Title)
	}
}

func TestRecommendFailureFreesGuildForRestart(t *testing.T) {
	h := newLiveHarness(t)
	h.rec.err = errors.New("decode candidates: unexpected end of JSON input")
	ctx := context.Background()

	if _, err := h.o.Start(ctx, "g1", "chan", "alice", media.Seeds{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.o.Wait()
	if st := h.o.Sessions(); len(st) != 0 {
		t.Fatalf("sessions after failed first cycle = %+v", st)
	}
	if h.note.count() != 1 {
		t.Errorf("notifications = %d, want 1", h.note.count())
	}

	h.rec.mu.Lock()
	h.rec.err = nil
	h.rec.mu.Unlock()
	if _, err := h.o.Start(ctx, "g1", "chan", "alice", media.Seeds{}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	h.o.Wait()
	if st := h.o.Sessions(); len(st) != 1 || !st[0].Playing {
		t.Errorf("sessions after restart = %+v", st)
	}
}

func TestEventsFromReplacedQueueIgnored(t *testing.T) {
	h := newLiveHarness(t)
	ctx := context.Background()
	if _, err := h.o.Start(ctx, "g1", "chan", "alice", media.Seeds{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.o.Wait()
	old, _ := h.m.Get("g1")
	oldID := old.ID()

	if err := h.o.Stop("g1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := h.o.Start(ctx, "g1", "chan", "bob", media.Seeds{}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	h.o.Wait()
	cur, _ := h.m.Get("g1")
	if cur.ID() == oldID {
		t.Fatal("restart reused the old queue")
	}

	played := song("t1")
	played.RequestedBy = "alice"
	h.o.HandleEvent(ctx, player.Event{Type: player.EventTrackFinish, GuildID: "g1", QueueID: oldID, Track: played})
	if got := h.j.list(); len(got) != 0 {
		t.Fatalf("stale finish was counted: %v", got)
	}

	played.RequestedBy = "bob"
	h.o.HandleEvent(ctx, player.Event{Type: player.EventTrackFinish, GuildID: "g1", QueueID: cur.ID(), Track: played})
	if got := h.j.list(); len(got) != 1 || got[0] != "play:"+played.Identifier()+":bob" {
		t.Errorf("journal = %v", got)
	}
}
