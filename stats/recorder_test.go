package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/onnwee/dj-tender/telemetry"
)

type call struct {
	kind                 Kind
	ident, session, user string
	button               bool
}

type fakeStore struct {
	mu    sync.Mutex
	calls []call
	fail  bool
	done  chan struct{}
}

func newFakeStore() *fakeStore { return &fakeStore{done: make(chan struct{}, 16)} }

func (f *fakeStore) record(c call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	f.done <- struct{}{}
	if f.fail {
		return errors.New("db down")
	}
	return nil
}

func (f *fakeStore) IncrementMedia(_ context.Context, kind Kind, ident, session, user string) error {
	return f.record(call{kind: kind, ident: ident, session: session, user: user})
}

func (f *fakeStore) IncrementSkipButton(_ context.Context, session, user string) error {
	return f.record(call{button: true, session: session, user: user})
}

func (f *fakeStore) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d store calls", i, n)
		}
	}
}

func TestRecorderAppliesUpdates(t *testing.T) {
	store := newFakeStore()
	r := NewRecorder(store, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.IncrementSkipCount("https://youtu.be/a", "s1", "u1")
	r.IncrementSkipButtonPresses("s1", "u1")
	r.IncrementPlayCount("https://youtu.be/b", "s1", "u2")
	store.wait(t, 3)

	store.mu.Lock()
	defer store.mu.Unlock()
	want := []call{
		{kind: KindSkip, ident: "https://youtu.be/a", session: "s1", user: "u1"},
		{button: true, session: "s1", user: "u1"},
		{kind: KindPlay, ident: "https://youtu.be/b", session: "s1", user: "u2"},
	}
	for i := range want {
		if store.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, store.calls[i], want[i])
		}
	}
}

func TestRecorderSwallowsFailures(t *testing.T) {
	store := newFakeStore()
	store.fail = true
	r := NewRecorder(store, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.IncrementPlayCount("a", "s", "u")
	r.IncrementPlayCount("b", "s", "u")
	store.wait(t, 2) // worker keeps going after the first failure
}

func TestRecorderDropsWhenFull(t *testing.T) {
	telemetry.Init()
	before := testutil.ToFloat64(telemetry.StatsDropped)

	r := NewRecorder(newFakeStore(), 1) // no worker running
	done := make(chan struct{})
	go func() {
		r.IncrementPlayCount("a", "s", "u")
		r.IncrementPlayCount("b", "s", "u")
		r.IncrementSkipButtonPresses("s", "u")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	if got := testutil.ToFloat64(telemetry.StatsDropped) - before; got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.IncrementPlayCount("a", "s", "u")
	r.IncrementSkipButtonPresses("s", "u")
	r.Run(context.Background())
}
