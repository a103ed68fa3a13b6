// Package player is the in-process playback engine: one queue per guild, each
// advancing on a simulated clock and reporting lifecycle events on a shared channel.
package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/dj-tender/media"
)

var (
	ErrDestroyed  = errors.New("queue destroyed")
	ErrEmptyQueue = errors.New("queue is empty")
	ErrBadIndex   = errors.New("index out of range")
)

type EventType int

const (
	EventTrackStart EventType = iota
	EventTrackFinish
	EventTrackSkipped
	EventQueueEnd
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventTrackStart:
		return "track_start"
	case EventTrackFinish:
		return "track_finish"
	case EventTrackSkipped:
		return "track_skipped"
	case EventQueueEnd:
		return "queue_end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a playback lifecycle notification. Skipped is set on the finish
// event of a track that a listener skipped. QueueID identifies the emitting
// queue, so events buffered from a destroyed queue can be told apart from
// those of its replacement in the same guild.
type Event struct {
	Type    EventType
	GuildID string
	QueueID string
	Track   media.Track
	Skipper string
	Skipped bool
	Err     error
}

// Clock returns a channel that fires after d.
type Clock func(d time.Duration) <-chan time.Time

// Manager owns the per-guild queues and the shared event stream.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*Queue
	events chan Event
	clock  Clock
}

type Option func(*Manager)

// WithClock overrides time.After, letting tests compress track durations.
func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

// WithEventBuffer sets the event channel capacity (default 64).
func WithEventBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.events = make(chan Event, n)
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		queues: make(map[string]*Queue),
		events: make(chan Event, 64),
		clock:  time.After,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Events is the stream every queue publishes to.
func (m *Manager) Events() <-chan Event { return m.events }

// Create returns a fresh queue for guildID, destroying any previous one.
func (m *Manager) Create(guildID string) *Queue {
	q := &Queue{
		id:     uuid.NewString(),
		guild:  guildID,
		m:      m,
		skipCh: make(chan string, 1),
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	old := m.queues[guildID]
	m.queues[guildID] = q
	m.mu.Unlock()
	if old != nil {
		old.Destroy()
	}
	return q
}

// Get returns the live queue for guildID.
func (m *Manager) Get(guildID string) (*Queue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[guildID]
	return q, ok
}

func (m *Manager) forget(q *Queue) {
	m.mu.Lock()
	if m.queues[q.guild] == q {
		delete(m.queues, q.guild)
	}
	m.mu.Unlock()
}

// Queue is an ordered list of upcoming tracks plus the one currently playing.
type Queue struct {
	id    string
	guild string
	m     *Manager

	mu        sync.Mutex
	upcoming  []media.Track
	current   *media.Track
	playing   bool
	destroyed bool

	skipCh      chan string
	done        chan struct{}
	destroyOnce sync.Once
}

func (q *Queue) GuildID() string { return q.guild }

// ID is unique per Create call.
func (q *Queue) ID() string { return q.id }

func prepare(t media.Track) media.Track {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return t
}

// Add appends tracks to the end of the queue.
func (q *Queue) Add(tracks ...media.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return ErrDestroyed
	}
	for _, t := range tracks {
		q.upcoming = append(q.upcoming, prepare(t))
	}
	return nil
}

// Insert places track at idx among the upcoming tracks; 0 means "play next".
// An index past the end appends.
func (q *Queue) Insert(track media.Track, idx int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return ErrDestroyed
	}
	if idx < 0 {
		return ErrBadIndex
	}
	if idx > len(q.upcoming) {
		idx = len(q.upcoming)
	}
	q.upcoming = append(q.upcoming, media.Track{})
	copy(q.upcoming[idx+1:], q.upcoming[idx:])
	q.upcoming[idx] = prepare(track)
	return nil
}

// Remove drops the upcoming track at idx and returns it.
func (q *Queue) Remove(idx int) (media.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx < 0 || idx >= len(q.upcoming) {
		return media.Track{}, ErrBadIndex
	}
	t := q.upcoming[idx]
	q.upcoming = append(q.upcoming[:idx], q.upcoming[idx+1:]...)
	return t, nil
}

// Current returns the playing track, if any.
func (q *Queue) Current() (media.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return media.Track{}, false
	}
	return *q.current, true
}

// Size is the number of upcoming tracks, excluding the current one.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.upcoming)
}

// Tracks returns a copy of the upcoming tracks.
func (q *Queue) Tracks() []media.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]media.Track(nil), q.upcoming...)
}

func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Play starts advancing through the queue. It is a no-op when already playing.
func (q *Queue) Play(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.destroyed:
		return ErrDestroyed
	case q.playing:
		return nil
	case len(q.upcoming) == 0:
		return ErrEmptyQueue
	}
	q.playing = true
	go q.run(ctx)
	return nil
}

// Skip ends the current track early. It reports whether a track was playing.
func (q *Queue) Skip(by string) bool {
	q.mu.Lock()
	active := q.current != nil && !q.destroyed
	q.mu.Unlock()
	if !active {
		return false
	}
	select {
	case q.skipCh <- by:
	default: // a skip is already pending
	}
	return true
}

// Destroy stops playback and drops all tracks. Safe to call more than once.
func (q *Queue) Destroy() {
	q.destroyOnce.Do(func() {
		q.mu.Lock()
		q.destroyed = true
		q.upcoming = nil
		q.mu.Unlock()
		close(q.done)
		q.m.forget(q)
	})
}

func (q *Queue) emit(e Event) {
	e.GuildID = q.guild
	e.QueueID = q.id
	select {
	case q.m.events <- e:
	case <-q.done:
	}
}

// run never emits while holding q.mu: consumers call back into the queue.
func (q *Queue) run(ctx context.Context) {
	log := slog.Default().With(slog.String("component", "player"), slog.String("guild", q.guild))
	for {
		q.mu.Lock()
		if q.destroyed {
			q.playing, q.current = false, nil
			q.mu.Unlock()
			return
		}
		if len(q.upcoming) == 0 {
			q.playing, q.current = false, nil
			q.mu.Unlock()
			q.emit(Event{Type: EventQueueEnd})
			return
		}
		t := q.upcoming[0]
		q.upcoming = q.upcoming[1:]
		q.current = &t
		select {
		case <-q.skipCh: // stale press from the previous track
		default:
		}
		q.mu.Unlock()

		log.Debug("track start", slog.String("title", t.Title), slog.String("origin", t.Origin.String()))
		q.emit(Event{Type: EventTrackStart, Track: t})

		var timer <-chan time.Time
		if t.Duration > 0 {
			timer = q.m.clock(t.Duration)
		} else {
			ch := make(chan time.Time, 1)
			ch <- time.Time{}
			timer = ch
		}

		select {
		case <-timer:
			q.clearCurrent()
			q.emit(Event{Type: EventTrackFinish, Track: t})
		case by := <-q.skipCh:
			q.clearCurrent()
			q.emit(Event{Type: EventTrackSkipped, Track: t, Skipper: by})
			q.emit(Event{Type: EventTrackFinish, Track: t, Skipper: by, Skipped: true})
		case <-ctx.Done():
			q.stop()
			return
		case <-q.done:
			q.stop()
			return
		}
	}
}

func (q *Queue) clearCurrent() {
	q.mu.Lock()
	q.current = nil
	q.mu.Unlock()
}

func (q *Queue) stop() {
	q.mu.Lock()
	q.playing, q.current = false, nil
	q.mu.Unlock()
}
