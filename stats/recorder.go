package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/dj-tender/telemetry"
)

const jobTimeout = 5 * time.Second

type job struct {
	kind       Kind
	identifier string
	sessionID  string
	userID     string
	button     bool
}

// Recorder queues counter updates for a background worker. Enqueueing never
// blocks: when the queue is full the update is dropped and counted. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	store Store
	jobs  chan job
	log   *slog.Logger
}

func NewRecorder(store Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		store: store,
		jobs:  make(chan job, buffer),
		log:   slog.Default().With(slog.String("component", "stats")),
	}
}

// Run applies queued updates until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	if r == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-r.jobs:
			r.apply(ctx, j)
		}
	}
}

func (r *Recorder) apply(ctx context.Context, j job) {
	jctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	var err error
	if j.button {
		err = r.store.IncrementSkipButton(jctx, j.sessionID, j.userID)
	} else {
		err = r.store.IncrementMedia(jctx, j.kind, j.identifier, j.sessionID, j.userID)
	}
	if err != nil {
		r.log.Warn("stats update failed",
			slog.String("kind", string(j.kind)),
			slog.Bool("skip_button", j.button),
			slog.String("session", j.sessionID),
			slog.Any("err", err))
	}
}

func (r *Recorder) enqueue(j job) {
	if r == nil || r.store == nil {
		return
	}
	select {
	case r.jobs <- j:
	default:
		telemetry.IncStatsDropped()
		r.log.Debug("stats queue full, dropping update", slog.String("kind", string(j.kind)))
	}
}

func (r *Recorder) IncrementPlayCount(identifier, sessionID, userID string) {
	r.enqueue(job{kind: KindPlay, identifier: identifier, sessionID: sessionID, userID: userID})
}

func (r *Recorder) IncrementSkipCount(identifier, sessionID, userID string) {
	r.enqueue(job{kind: KindSkip, identifier: identifier, sessionID: sessionID, userID: userID})
}

func (r *Recorder) IncrementSkipButtonPresses(sessionID, userID string) {
	r.enqueue(job{button: true, sessionID: sessionID, userID: userID})
}
