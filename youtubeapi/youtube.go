// Package youtubeapi wraps the YouTube Data API for the two lookups the DJ needs:
// free-text video search during resolution and metadata for pasted YouTube links.
// It authenticates with an API key, or with a stored OAuth refresh token when no key is set.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/dj-tender/config"
	"github.com/onnwee/dj-tender/media"
)

var (
	ErrNotConfigured = errors.New("youtube api not configured")
	ErrNotFound      = errors.New("video not found")
)

const readonlyScope = "https://www.googleapis.com/auth/youtube.readonly"

type Service struct {
	svc *yt.Service
}

// New builds a Service from config. API key wins over the refresh-token flow.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	var opts []option.ClientOption
	switch {
	case cfg.YTAPIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.YTAPIKey))
	case cfg.YTClientID != "" && cfg.YTClientSecret != "" && cfg.YTRefreshToken != "":
		oc := &oauth2.Config{
			ClientID:     cfg.YTClientID,
			ClientSecret: cfg.YTClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{readonlyScope},
		}
		ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.YTRefreshToken})
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	default:
		return nil, ErrNotConfigured
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Service{svc: svc}, nil
}

// NewWithService wraps an already constructed API client (tests point it at httptest).
func NewWithService(svc *yt.Service) *Service { return &Service{svc: svc} }

// Search returns up to limit videos for q with durations filled in.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]media.Track, error) {
	if s == nil || s.svc == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 5
	}
	res, err := s.svc.Search.List([]string{"snippet"}).
		Q(q).
		Type("video").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}

	var ids []string
	tracks := make([]media.Track, 0, len(res.Items))
	for _, it := range res.Items {
		if it.Id == nil || it.Id.VideoId == "" || it.Snippet == nil {
			continue
		}
		ids = append(ids, it.Id.VideoId)
		tracks = append(tracks, media.Track{
			Title:     html.UnescapeString(it.Snippet.Title),
			Author:    html.UnescapeString(it.Snippet.ChannelTitle),
			Locator:   WatchURL(it.Id.VideoId),
			Thumbnail: thumbnail(it.Snippet.Thumbnails),
			Source:    "youtube",
		})
	}
	if len(ids) == 0 {
		return tracks, nil
	}

	durations, err := s.durations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tracks {
		tracks[i].Duration = durations[ids[i]]
	}
	return tracks, nil
}

func (s *Service) durations(ctx context.Context, ids []string) (map[string]time.Duration, error) {
	res, err := s.svc.Videos.List([]string{"contentDetails"}).Id(ids...).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube videos: %w", err)
	}
	out := make(map[string]time.Duration, len(res.Items))
	for _, v := range res.Items {
		if v.ContentDetails != nil {
			out[v.Id] = ParseDuration(v.ContentDetails.Duration)
		}
	}
	return out, nil
}

// VideoInfo fetches title, channel and duration for one video id.
func (s *Service) VideoInfo(ctx context.Context, id string) (media.Track, error) {
	if s == nil || s.svc == nil {
		return media.Track{}, ErrNotConfigured
	}
	res, err := s.svc.Videos.List([]string{"snippet", "contentDetails"}).Id(id).Context(ctx).Do()
	if err != nil {
		return media.Track{}, fmt.Errorf("youtube videos: %w", err)
	}
	if len(res.Items) == 0 || res.Items[0].Snippet == nil {
		return media.Track{}, ErrNotFound
	}
	v := res.Items[0]
	t := media.Track{
		Title:     v.Snippet.Title,
		Author:    v.Snippet.ChannelTitle,
		Locator:   WatchURL(v.Id),
		Thumbnail: thumbnail(v.Snippet.Thumbnails),
		Source:    "youtube",
	}
	if v.ContentDetails != nil {
		t.Duration = ParseDuration(v.ContentDetails.Duration)
	}
	return t, nil
}

func thumbnail(td *yt.ThumbnailDetails) string {
	if td == nil {
		return ""
	}
	for _, th := range []*yt.Thumbnail{td.High, td.Medium, td.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func WatchURL(id string) string { return "https://www.youtube.com/watch?v=" + id }

// VideoID extracts the video id from watch, youtu.be, shorts, embed and music links.
func VideoID(u *url.URL) (string, bool) {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	switch host {
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		return id, id != ""
	case "youtube.com", "music.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			return v, true
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") && parts[1] != "" {
			return parts[1], true
		}
	}
	return "", false
}

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO-8601 duration such as PT4M13S; unparseable input yields 0.
func ParseDuration(s string) time.Duration {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0
		}
		d += time.Duration(n) * unit
	}
	return d
}
