// Package linkmeta recognises links to known media platforms in a free-text DJ
// prompt and turns them into {title, author} seeds.
package linkmeta

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/onnwee/dj-tender/media"
	"github.com/onnwee/dj-tender/twitchapi"
	"github.com/onnwee/dj-tender/youtubeapi"
)

type Platform string

const (
	YouTube    Platform = "youtube"
	Twitch     Platform = "twitch"
	SoundCloud Platform = "soundcloud"
	Bandcamp   Platform = "bandcamp"
	Spotify    Platform = "spotify"
)

var (
	ErrNotLink     = errors.New("not a recognised media link")
	ErrUnsupported = errors.New("no metadata source for platform")
)

// Info is what a link resolves to.
type Info struct {
	Title    string
	Author   string
	Platform Platform
}

// Detect reports whether raw is a single link to a known platform.
func Detect(raw string) (Platform, *url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return "", nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", nil, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	switch {
	case host == "youtu.be" || host == "youtube.com" || host == "music.youtube.com":
		if _, ok := youtubeapi.VideoID(u); ok {
			return YouTube, u, true
		}
	case host == "twitch.tv" || host == "clips.twitch.tv":
		if _, _, ok := twitchRef(u); ok {
			return Twitch, u, true
		}
	case host == "soundcloud.com":
		return SoundCloud, u, true
	case strings.HasSuffix(host, ".bandcamp.com"):
		return Bandcamp, u, true
	case host == "open.spotify.com":
		return Spotify, u, true
	}
	return "", nil, false
}

// twitchRef returns ("video", id) or ("clip", slug).
func twitchRef(u *url.URL) (kind, id string, ok bool) {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "clips.twitch.tv" && len(parts) == 1 && parts[0] != "":
		return "clip", parts[0], true
	case len(parts) == 2 && parts[0] == "videos" && parts[1] != "":
		return "video", parts[1], true
	case len(parts) == 3 && parts[1] == "clip" && parts[2] != "":
		return "clip", parts[2], true
	}
	return "", "", false
}

type YouTubeSource interface {
	VideoInfo(ctx context.Context, id string) (media.Track, error)
}

type TwitchSource interface {
	GetVideo(ctx context.Context, id string) (twitchapi.Media, error)
	GetClip(ctx context.Context, slug string) (twitchapi.Media, error)
}

// GenericSource handles any URL, typically yt-dlp.
type GenericSource interface {
	Metadata(ctx context.Context, u string) (media.Track, error)
}

// Resolver dispatches a link to the best metadata source and caches the answer.
// Any source may be nil; YouTube falls back to the generic source.
type Resolver struct {
	YouTube YouTubeSource
	Twitch  TwitchSource
	Generic GenericSource

	cache *cache.Cache
}

func NewResolver(yt YouTubeSource, tw TwitchSource, generic GenericSource, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{YouTube: yt, Twitch: tw, Generic: generic, cache: cache.New(ttl, 2*ttl)}
}

// Resolve returns ErrNotLink when raw is not a recognised link.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Info, error) {
	platform, u, ok := Detect(raw)
	if !ok {
		return Info{}, ErrNotLink
	}
	key := u.String()
	if r.cache != nil {
		if v, found := r.cache.Get(key); found {
			return v.(Info), nil
		}
	}

	info, err := r.lookup(ctx, platform, u)
	if err != nil {
		return Info{}, fmt.Errorf("%s link: %w", platform, err)
	}
	info.Platform = platform
	info.Title, info.Author = CleanTitle(info.Title, info.Author)
	if info.Title == "" {
		return Info{}, fmt.Errorf("%s link: empty title", platform)
	}
	if r.cache != nil {
		r.cache.Set(key, info, cache.DefaultExpiration)
	}
	return info, nil
}

func (r *Resolver) lookup(ctx context.Context, platform Platform, u *url.URL) (Info, error) {
	switch platform {
	case YouTube:
		if r.YouTube != nil {
			id, _ := youtubeapi.VideoID(u)
			t, err := r.YouTube.VideoInfo(ctx, id)
			if err == nil {
				return Info{Title: t.Title, Author: t.Author}, nil
			}
			if r.Generic == nil {
				return Info{}, err
			}
		}
	case Twitch:
		if r.Twitch != nil {
			kind, id, _ := twitchRef(u)
			var m twitchapi.Media
			var err error
			if kind == "clip" {
				m, err = r.Twitch.GetClip(ctx, id)
			} else {
				m, err = r.Twitch.GetVideo(ctx, id)
			}
			if err != nil {
				return Info{}, err
			}
			return Info{Title: m.Title, Author: m.Author}, nil
		}
	}
	if r.Generic == nil {
		return Info{}, ErrUnsupported
	}
	t, err := r.Generic.Metadata(ctx, u.String())
	if err != nil {
		return Info{}, err
	}
	return Info{Title: t.Title, Author: t.Author}, nil
}

var noiseRe = regexp.MustCompile(`(?i)\s*[\(\[](official\s*(music\s*)?(video|audio|lyric\s*video|visualizer)|lyrics?|audio|hd|hq|4k|remastered(\s*\d{4})?)[\)\]]`)

// CleanTitle strips upload decorations and splits "Artist - Title" uploads.
func CleanTitle(title, author string) (string, string) {
	title = strings.TrimSpace(noiseRe.ReplaceAllString(title, ""))
	author = strings.TrimSpace(author)
	author = strings.TrimSuffix(author, " - Topic")
	if strings.HasSuffix(author, "VEVO") && len(author) > len("VEVO") {
		author = strings.TrimSuffix(author, "VEVO")
	}
	if artist, song, ok := strings.Cut(title, " - "); ok && strings.TrimSpace(artist) != "" && strings.TrimSpace(song) != "" {
		return strings.TrimSpace(song), strings.TrimSpace(artist)
	}
	return title, author
}
