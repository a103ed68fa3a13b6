// Package media defines the playable handle shared by the resolver, the
// commentary pipeline and the playback queue.
package media

import (
	"strings"
	"time"
)

// Origin tags where a handle came from. Commentary and banter handles are
// synthesized locally and own a temp file.
type Origin int

const (
	OriginRegular Origin = iota
	OriginCommentary
	OriginBanter
)

// String returns the label used in logs and metric labels.
func (o Origin) String() string {
	switch o {
	case OriginRegular:
		return "regular"
	case OriginCommentary:
		return "commentary"
	case OriginBanter:
		return "banter"
	default:
		return "unknown"
	}
}

// Track is a playable media handle.
type Track struct {
	// ID is assigned by the queue when the track is added.
	ID          string
	Title       string
	Author      string
	Locator     string
	Thumbnail   string
	Duration    time.Duration
	Origin      Origin
	Source      string
	RequestedBy string

	// TempPath is set for commentary and banter handles only.
	TempPath string
}

// Synthetic reports whether the handle was produced by the commentary pipeline.
func (t Track) Synthetic() bool { return t.Origin != OriginRegular }

// Identifier is the stable key used for play/skip statistics.
func (t Track) Identifier() string {
	if t.Locator != "" {
		return t.Locator
	}
	return strings.ToLower(strings.TrimSpace(t.Author + " - " + t.Title))
}

// Candidate is an unresolved suggestion from the recommendation service.
type Candidate struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Query builds the free-text search query for the candidate.
func (c Candidate) Query() string {
	title := strings.TrimSpace(c.Title)
	artist := strings.TrimSpace(c.Artist)
	switch {
	case title == "":
		return artist
	case artist == "":
		return title
	default:
		return artist + " - " + title
	}
}

// Seeds are the optional criteria a session was started with.
type Seeds struct {
	Song   string `json:"song,omitempty"`
	Artist string `json:"artist,omitempty"`
	Genre  string `json:"genre,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// Empty reports whether no seed was provided.
func (s Seeds) Empty() bool {
	return s.Song == "" && s.Artist == "" && s.Genre == "" && s.Prompt == ""
}
