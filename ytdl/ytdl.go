// Package ytdl is the keyless search and metadata backend built on yt-dlp.
package ytdl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/onnwee/dj-tender/media"
)

var ErrNoMetadata = errors.New("yt-dlp returned no metadata")

const searchFormat = "%(id)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(webpage_url)s\t%(thumbnail)s"

// Client shells out to the yt-dlp found on PATH.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) command() *ytdlp.Command {
	return ytdlp.New().NoWarnings().IgnoreConfig()
}

// Search runs a ytsearchN: query and returns at most limit entries.
func (c *Client) Search(ctx context.Context, q string, limit int) ([]media.Track, error) {
	if limit <= 0 {
		limit = 5
	}
	res, err := c.command().
		FlatPlaylist().
		Print(searchFormat).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		Run(ctx, fmt.Sprintf("ytsearch%d:%s", limit, q))
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}
	return parseOutput(res.Stdout), nil
}

// Metadata resolves one URL (any site yt-dlp supports) without downloading it.
func (c *Client) Metadata(ctx context.Context, u string) (media.Track, error) {
	res, err := c.command().
		Print(searchFormat).
		NoPlaylist().
		Run(ctx, "--skip-download", u)
	if err != nil {
		if res != nil && strings.Contains(strings.ToLower(res.Stderr), "drm") {
			return media.Track{}, fmt.Errorf("yt-dlp metadata: DRM protected: %w", err)
		}
		return media.Track{}, fmt.Errorf("yt-dlp metadata: %w", err)
	}
	tracks := parseOutput(res.Stdout)
	if len(tracks) == 0 {
		return media.Track{}, ErrNoMetadata
	}
	return tracks[0], nil
}

// parseOutput reads tab-separated lines produced by searchFormat.
// yt-dlp prints "NA" for fields a site does not provide.
func parseOutput(out string) []media.Track {
	var tracks []media.Track
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		ps := strings.Split(line, "\t")
		if len(ps) < 4 {
			continue
		}
		field := func(i int) string {
			if i >= len(ps) || ps[i] == "NA" {
				return ""
			}
			return strings.TrimSpace(ps[i])
		}
		id, title := field(0), field(1)
		if title == "" {
			continue
		}
		t := media.Track{
			Title:     title,
			Author:    field(2),
			Locator:   field(4),
			Thumbnail: field(5),
			Source:    "ytdlp",
		}
		if secs, err := strconv.ParseFloat(field(3), 64); err == nil && secs > 0 {
			t.Duration = time.Duration(secs * float64(time.Second))
		}
		if t.Locator == "" && id != "" {
			t.Locator = "https://www.youtube.com/watch?v=" + id
		}
		if t.Locator == "" {
			continue
		}
		tracks = append(tracks, t)
	}
	return tracks
}
