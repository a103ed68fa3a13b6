// Package dj is the playlist orchestrator: it keeps an AI-curated queue alive by
// reacting to playback events, regenerating tracks when the queue runs low and
// injecting spoken commentary and skip banter.
package dj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/dj-tender/commentary"
	"github.com/onnwee/dj-tender/linkmeta"
	"github.com/onnwee/dj-tender/llm"
	"github.com/onnwee/dj-tender/media"
	"github.com/onnwee/dj-tender/player"
	"github.com/onnwee/dj-tender/telemetry"
)

// Queue is the playback queue API the orchestrator drives.
type Queue interface {
	ID() string
	Add(tracks ...media.Track) error
	Insert(track media.Track, idx int) error
	Current() (media.Track, bool)
	Size() int
	IsPlaying() bool
	Play(ctx context.Context) error
	Skip(by string) bool
	Destroy()
}

// QueueFactory creates the queue for a new session.
type QueueFactory func(guildID string) Queue

type Recommender interface {
	Recommend(ctx context.Context, req llm.RecommendRequest) ([]media.Candidate, error)
}

type TrackResolver interface {
	Resolve(ctx context.Context, cands []media.Candidate, requestedBy string) []media.Track
}

type Commentator interface {
	Intro(ctx context.Context, sess commentary.Session, tracks []media.Track) (media.Track, error)
	Banter(ctx context.Context, sess commentary.Session, skipped media.Track, skipper string) (media.Track, error)
	Release(t media.Track)
	ReleaseSession(sessionID string)
}

type LinkResolver interface {
	Resolve(ctx context.Context, raw string) (linkmeta.Info, error)
}

type StatsRecorder interface {
	IncrementPlayCount(identifier, sessionID, userID string)
	IncrementSkipCount(identifier, sessionID, userID string)
	IncrementSkipButtonPresses(sessionID, userID string)
}

// Notifier delivers the one user-facing message sent when a session ends on failure.
type Notifier interface {
	Notify(ctx context.Context, channel, msg string) error
}

const (
	endNotice     = "DJ mode stopped: I couldn't find anything else to play. Start it again with a new request."
	stalledNotice = "DJ mode stopped: I couldn't get the next batch of tracks ready. Start it again in a moment."
)

type Config struct {
	// NearEmptyThreshold triggers a pre-fetch when the upcoming count drops to it.
	NearEmptyThreshold int
	// RecommendCount is how many candidates to ask for per cycle.
	RecommendCount int
	// CycleTimeout bounds one regeneration cycle.
	CycleTimeout time.Duration
}

type Deps struct {
	Queues      QueueFactory
	Recommender Recommender
	Resolver    TrackResolver
	Commentary  Commentator // optional
	Links       LinkResolver
	Stats       StatsRecorder
	Notifier    Notifier
}

type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session // by guild

	wg sync.WaitGroup
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.NearEmptyThreshold <= 0 {
		cfg.NearEmptyThreshold = 3
	}
	if cfg.RecommendCount <= 0 {
		cfg.RecommendCount = 10
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 3 * time.Minute
	}
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		log:      slog.Default().With(slog.String("component", "dj")),
		sessions: make(map[string]*Session),
	}
}

// Start creates a session for guildID and kicks off the first cycle.
func (o *Orchestrator) Start(ctx context.Context, guildID, channelID, userID string, seeds media.Seeds) (*Session, error) {
	o.mu.Lock()
	if _, ok := o.sessions[guildID]; ok {
		o.mu.Unlock()
		return nil, ErrSessionExists
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &Session{
		id:        uuid.NewString(),
		guild:     guildID,
		channel:   channelID,
		initiator: userID,
		started:   time.Now(),
		queue:     o.deps.Queues(guildID),
		ctx:       sctx,
		cancel:    cancel,
		seeds:     seeds,
	}
	o.sessions[guildID] = sess
	n := len(o.sessions)
	o.mu.Unlock()

	telemetry.SetActiveSessions(n)
	o.log.Info("dj session started", slog.String("guild", guildID), slog.String("session", sess.id), slog.String("user", userID))

	sess.mu.Lock()
	o.trigger(sess, false)
	sess.mu.Unlock()
	return sess, nil
}

// Session returns the live session for guildID, or nil.
func (o *Orchestrator) Session(guildID string) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[guildID]
}

// Sessions snapshots every live session, ordered by start time.
func (o *Orchestrator) Sessions() []Status {
	o.mu.Lock()
	list := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		list = append(list, s)
	}
	o.mu.Unlock()
	out := make([]Status, 0, len(list))
	for _, s := range list {
		out = append(out, s.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Skip records a skip-button press and skips the current track.
func (o *Orchestrator) Skip(guildID, userID string) error {
	sess := o.Session(guildID)
	if sess == nil {
		return ErrNoSession
	}
	if o.deps.Stats != nil {
		o.deps.Stats.IncrementSkipButtonPresses(sess.id, userID)
	}
	if !sess.queue.Skip(userID) {
		return ErrNothingPlaying
	}
	return nil
}

// Stop tears the session down without a failure notice.
func (o *Orchestrator) Stop(guildID string) error {
	sess := o.Session(guildID)
	if sess == nil {
		return ErrNoSession
	}
	o.endSession(sess, "")
	return nil
}

// Run dispatches player events until ctx is done or events closes.
func (o *Orchestrator) Run(ctx context.Context, events <-chan player.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			o.HandleEvent(ctx, e)
		}
	}
}

// Wait blocks until background cycles and banter renders finish.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// Close ends every session and waits for background work.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	list := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		list = append(list, s)
	}
	o.mu.Unlock()
	for _, s := range list {
		o.endSession(s, "")
	}
	o.wg.Wait()
}

// HandleEvent reacts to one playback event. Events for guilds without a DJ
// session, or from a queue other than the session's own, are ignored apart
// from releasing finished commentary. Nothing here returns an error to the player.
func (o *Orchestrator) HandleEvent(ctx context.Context, e player.Event) {
	sess := o.Session(e.GuildID)
	if sess == nil || sess.ended.Load() || e.QueueID != sess.queue.ID() {
		if e.Type == player.EventTrackFinish && e.Track.Synthetic() && o.deps.Commentary != nil {
			o.deps.Commentary.Release(e.Track)
		}
		return
	}
	switch e.Type {
	case player.EventTrackStart:
		if sess.queue.Size() <= o.cfg.NearEmptyThreshold {
			o.trigger(sess, true)
		}
	case player.EventQueueEnd:
		o.onQueueEnd(sess)
	case player.EventTrackSkipped:
		o.onSkipped(sess, e)
	case player.EventTrackFinish:
		o.onFinished(sess, e)
	case player.EventError:
		o.log.Error("playback error", slog.String("guild", sess.guild), slog.String("track", e.Track.Title), slog.Any("err", e.Err))
		if e.Track.Synthetic() && o.deps.Commentary != nil {
			o.deps.Commentary.Release(e.Track)
		}
	}
}

// onQueueEnd: tracks already waiting win, then a running cycle is told to
// start playback when it injects, otherwise a fresh cycle starts.
func (o *Orchestrator) onQueueEnd(sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended.Load() {
		return
	}
	if sess.queue.Size() > 0 {
		if !sess.queue.IsPlaying() {
			if err := sess.queue.Play(sess.ctx); err != nil {
				o.log.Warn("resume playback failed", slog.String("guild", sess.guild), slog.Any("err", err))
			}
		}
		return
	}
	o.trigger(sess, false)
}

// trigger starts a cycle unless one is already running. A queue-empty trigger
// that loses the race marks the running cycle to start playback on inject.
// Queue-empty callers hold sess.mu.
func (o *Orchestrator) trigger(sess *Session, prefetch bool) bool {
	if sess.ended.Load() {
		return false
	}
	if !sess.generating.CompareAndSwap(false, true) {
		if !prefetch {
			sess.playOnInject.Store(true)
		}
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		func() {
			defer sess.generating.Store(false)
			o.regenerate(sess, prefetch)
		}()
		// The queue emptied during a cycle that did not inject.
		if sess.playOnInject.Swap(false) {
			o.onQueueEnd(sess)
		}
	}()
	return true
}

func (o *Orchestrator) regenerate(sess *Session, prefetch bool) {
	ctx := telemetry.WithCorrelation(sess.ctx, uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, o.cfg.CycleTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "dj.regenerate",
		attribute.String("guild", sess.guild), attribute.String("session", sess.id), attribute.Bool("prefetch", prefetch))
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "dj"), slog.String("guild", sess.guild), slog.String("session", sess.id))

	telemetry.IncRegeneration()
	var err error
	telemetry.TimeFunc(telemetry.RegenerationDuration, func() {
		err = o.cycle(ctx, sess, prefetch, log)
	})
	telemetry.EndSpan(span, err)
	if err == nil {
		return
	}

	class := ClassifyError(err)
	telemetry.IncRegenerationFailure(class.String())
	if class == ClassUpstreamEmpty {
		log.Warn("regeneration found nothing, ending session", slog.Any("err", err))
		o.endSession(sess, endNotice)
		return
	}
	log.Error("regeneration failed", slog.String("class", class.String()), slog.Any("err", err))
	if sess.ended.Load() {
		return
	}
	// An idle, empty queue emits no further events, so nothing would retry.
	if sess.queue.Size() == 0 && !sess.queue.IsPlaying() {
		log.Warn("queue is idle after a failed cycle, ending session")
		o.endSession(sess, stalledNotice)
	}
}

func (o *Orchestrator) cycle(ctx context.Context, sess *Session, prefetch bool, log *slog.Logger) error {
	seeds := sess.Seeds()
	if seeds.Prompt != "" && o.deps.Links != nil {
		info, err := o.deps.Links.Resolve(ctx, seeds.Prompt)
		switch {
		case err == nil:
			seeds = sess.setLinkSeeds(info.Title, info.Author)
			log.Info("prompt link resolved", slog.String("platform", string(info.Platform)), slog.String("song", info.Title))
		case !errors.Is(err, linkmeta.ErrNotLink):
			log.Warn("prompt link lookup failed", slog.Any("err", err))
		}
	}

	cands, err := o.deps.Recommender.Recommend(ctx, llm.RecommendRequest{
		Song:    seeds.Song,
		Artist:  seeds.Artist,
		Genre:   seeds.Genre,
		Prompt:  seeds.Prompt,
		History: sess.History(),
		Count:   o.cfg.RecommendCount,
	})
	if err != nil {
		return fmt.Errorf("%w: recommend: %w", ErrTransient, err)
	}
	if len(cands) == 0 {
		return fmt.Errorf("recommendation: %w", ErrUpstreamEmpty)
	}

	tracks := o.deps.Resolver.Resolve(ctx, cands, sess.initiator)
	if len(tracks) == 0 {
		return fmt.Errorf("resolution of %d candidates: %w", len(cands), ErrUpstreamEmpty)
	}
	sess.appendHistory(tracks)

	batch := tracks
	if o.deps.Commentary != nil {
		intro, err := o.deps.Commentary.Intro(ctx, sess, tracks)
		if err != nil {
			log.Warn("commentary omitted", slog.String("class", ClassifyError(err).String()), slog.Any("err", err))
		} else {
			batch = append([]media.Track{intro}, tracks...)
		}
	}

	log.Info("injecting tracks", slog.Int("candidates", len(cands)), slog.Int("tracks", len(tracks)), slog.Bool("commentary", len(batch) > len(tracks)))
	return o.inject(sess, batch, prefetch)
}

func (o *Orchestrator) inject(sess *Session, batch []media.Track, prefetch bool) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended.Load() {
		o.releaseSynthetic(batch)
		return nil
	}
	if err := sess.queue.Add(batch...); err != nil {
		o.releaseSynthetic(batch)
		return fmt.Errorf("%w: add tracks: %v", ErrTransient, err)
	}
	pending := sess.playOnInject.Swap(false)
	if !sess.queue.IsPlaying() && (!prefetch || pending) {
		if err := sess.queue.Play(sess.ctx); err != nil {
			return fmt.Errorf("%w: play: %v", ErrTransient, err)
		}
	}
	return nil
}

func (o *Orchestrator) releaseSynthetic(batch []media.Track) {
	if o.deps.Commentary == nil {
		return
	}
	for _, t := range batch {
		if t.Synthetic() {
			o.deps.Commentary.Release(t)
		}
	}
}

func (o *Orchestrator) onSkipped(sess *Session, e player.Event) {
	if e.Track.Synthetic() {
		return
	}
	if o.deps.Stats != nil {
		o.deps.Stats.IncrementSkipCount(e.Track.Identifier(), sess.id, e.Skipper)
	}
	telemetry.IncTrackSkip()
	if o.deps.Commentary == nil {
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(sess.ctx, o.cfg.CycleTimeout)
		defer cancel()
		banter, err := o.deps.Commentary.Banter(ctx, sess, e.Track, e.Skipper)
		if err != nil {
			o.log.Warn("banter omitted", slog.String("guild", sess.guild), slog.Any("err", err))
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if sess.ended.Load() {
			o.deps.Commentary.Release(banter)
			return
		}
		if err := sess.queue.Insert(banter, 0); err != nil {
			o.deps.Commentary.Release(banter)
			o.log.Warn("banter insert failed", slog.String("guild", sess.guild), slog.Any("err", err))
			return
		}
		if !sess.queue.IsPlaying() && !sess.generating.Load() {
			if err := sess.queue.Play(sess.ctx); err != nil {
				o.log.Warn("banter playback failed", slog.String("guild", sess.guild), slog.Any("err", err))
			}
		}
	}()
}

func (o *Orchestrator) onFinished(sess *Session, e player.Event) {
	if e.Track.Synthetic() {
		if o.deps.Commentary != nil {
			o.deps.Commentary.Release(e.Track)
		}
		return
	}
	if e.Skipped {
		return
	}
	user := e.Track.RequestedBy
	if user == "" {
		user = sess.initiator
	}
	if o.deps.Stats != nil {
		o.deps.Stats.IncrementPlayCount(e.Track.Identifier(), sess.id, user)
	}
	telemetry.IncTrackPlay()
}

// endSession tears a session down exactly once. A non-empty notice is sent to
// the session channel first.
func (o *Orchestrator) endSession(sess *Session, notice string) {
	sess.endOnce.Do(func() {
		sess.mu.Lock()
		sess.ended.Store(true)
		sess.mu.Unlock()

		if notice != "" && o.deps.Notifier != nil {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(sess.ctx), 10*time.Second)
			if err := o.deps.Notifier.Notify(nctx, sess.channel, notice); err != nil {
				o.log.Warn("failure notice not delivered", slog.String("guild", sess.guild), slog.String("class", ClassTransient.String()), slog.Any("err", err))
			}
			cancel()
		}
		sess.queue.Destroy()
		sess.cancel()
		if o.deps.Commentary != nil {
			o.deps.Commentary.ReleaseSession(sess.id)
		}

		o.mu.Lock()
		if o.sessions[sess.guild] == sess {
			delete(o.sessions, sess.guild)
		}
		n := len(o.sessions)
		o.mu.Unlock()
		telemetry.SetActiveSessions(n)
		o.log.Info("dj session ended", slog.String("guild", sess.guild), slog.String("session", sess.id), slog.Int("history", len(sess.History())))
	})
}
