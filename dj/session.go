package dj

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/dj-tender/media"
)

type State int

const (
	StateIdle State = iota
	StateGenerating
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Session is one guild's DJ context. The orchestrator owns it; everything
// else sees it through the read-only accessors.
type Session struct {
	id        string
	guild     string
	channel   string
	initiator string
	started   time.Time
	queue     Queue

	ctx    context.Context
	cancel context.CancelFunc

	// generating is the single regeneration-in-flight flag.
	generating atomic.Bool
	// playOnInject records a queue-empty that arrived while a pre-fetch ran.
	playOnInject atomic.Bool
	ended        atomic.Bool
	endOnce      sync.Once

	// mu serialises queue injection against queue-end handling and guards seeds/history.
	mu      sync.Mutex
	seeds   media.Seeds
	history []string
}

func (s *Session) ID() string        { return s.id }
func (s *Session) GuildID() string   { return s.guild }
func (s *Session) Channel() string   { return s.channel }
func (s *Session) Initiator() string { return s.initiator }

func (s *Session) State() State {
	switch {
	case s.ended.Load():
		return StateEnded
	case s.generating.Load():
		return StateGenerating
	default:
		return StateIdle
	}
}

func (s *Session) Seeds() media.Seeds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeds
}

// History returns a copy of the titles played or queued so far.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

func (s *Session) setLinkSeeds(title, author string) media.Seeds {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds.Song, s.seeds.Artist, s.seeds.Prompt = title, author, ""
	return s.seeds
}

func (s *Session) appendHistory(tracks []media.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tracks {
		s.history = append(s.history, t.Title)
	}
}

// Status is a point-in-time snapshot for the HTTP status endpoint.
type Status struct {
	ID         string      `json:"id"`
	GuildID    string      `json:"guild_id"`
	Channel    string      `json:"channel"`
	Initiator  string      `json:"initiator"`
	State      string      `json:"state"`
	Seeds      media.Seeds `json:"seeds"`
	History    int         `json:"history"`
	QueueSize  int         `json:"queue_size"`
	Playing    bool        `json:"playing"`
	NowPlaying string      `json:"now_playing,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
}

func (s *Session) status() Status {
	st := Status{
		ID:        s.id,
		GuildID:   s.guild,
		Channel:   s.channel,
		Initiator: s.initiator,
		State:     s.State().String(),
		Seeds:     s.Seeds(),
		History:   len(s.History()),
		QueueSize: s.queue.Size(),
		Playing:   s.queue.IsPlaying(),
		StartedAt: s.started,
	}
	if cur, ok := s.queue.Current(); ok {
		st.NowPlaying = cur.Title
	}
	return st
}
