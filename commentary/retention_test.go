package commentary

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPruneSkipsOwnedAndFreshFiles(t *testing.T) {
	f := newFixture(t, "", "", stubWriter{text: "hi"})
	live, err := f.p.Intro(context.Background(), testSession{id: "s1"}, nil)
	if err != nil {
		t.Fatalf("Intro: %v", err)
	}

	orphan := filepath.Join(f.tempDir, "dj-old-commentary-9.ogg")
	fresh := filepath.Join(f.tempDir, "dj-new-commentary-10.ogg")
	for _, p := range []string{orphan, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	if err := os.Chtimes(orphan, old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(live.TempPath, old, old); err != nil {
		t.Fatal(err)
	}

	n, err := f.p.Prune(time.Hour, now)
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v; want 1", n, err)
	}
	if _, err := os.Stat(orphan); !errors.Is(err, os.ErrNotExist) {
		t.Error("orphan not pruned")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file pruned")
	}
	if _, err := os.Stat(live.TempPath); err != nil {
		t.Error("owned file pruned")
	}
}

func TestRunRetentionStopsOnCancel(t *testing.T) {
	f := newFixture(t, "", "", stubWriter{text: "hi"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.p.RunRetention(ctx, 10*time.Millisecond, time.Hour)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunRetention did not return after cancel")
	}
}
