// Package twitchapi contains minimal Helix helpers for turning pasted Twitch
// VOD and clip links into title/author metadata, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twitch.tv/helix"

var ErrNotFound = errors.New("twitch resource not found")

type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	// BaseURL overrides https://api.twitch.tv/helix.
	BaseURL string
}

// Media is the subset of video/clip fields the DJ uses.
type Media struct {
	ID       string
	Title    string
	Author   string
	URL      string
	Duration time.Duration
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) get(ctx context.Context, path, key, value string, out any) error {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	base := hc.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set(key, value)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		hc.AppTokenSource.Invalidate()
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetVideo looks up a VOD by id.
func (hc *HelixClient) GetVideo(ctx context.Context, id string) (Media, error) {
	if id == "" {
		return Media{}, fmt.Errorf("video id empty")
	}
	var body struct {
		Data []struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			UserName string `json:"user_name"`
			URL      string `json:"url"`
			Duration string `json:"duration"` // e.g. 1h2m3s
		} `json:"data"`
	}
	if err := hc.get(ctx, "/videos", "id", id, &body); err != nil {
		return Media{}, err
	}
	if len(body.Data) == 0 {
		return Media{}, ErrNotFound
	}
	v := body.Data[0]
	d, _ := time.ParseDuration(v.Duration)
	return Media{ID: v.ID, Title: v.Title, Author: v.UserName, URL: v.URL, Duration: d}, nil
}

// GetClip looks up a clip by slug.
func (hc *HelixClient) GetClip(ctx context.Context, slug string) (Media, error) {
	if slug == "" {
		return Media{}, fmt.Errorf("clip slug empty")
	}
	var body struct {
		Data []struct {
			ID              string  `json:"id"`
			Title           string  `json:"title"`
			BroadcasterName string  `json:"broadcaster_name"`
			URL             string  `json:"url"`
			Duration        float64 `json:"duration"` // seconds
		} `json:"data"`
	}
	if err := hc.get(ctx, "/clips", "id", slug, &body); err != nil {
		return Media{}, err
	}
	if len(body.Data) == 0 {
		return Media{}, ErrNotFound
	}
	c := body.Data[0]
	return Media{
		ID:       c.ID,
		Title:    c.Title,
		Author:   c.BroadcasterName,
		URL:      c.URL,
		Duration: time.Duration(c.Duration * float64(time.Second)),
	}, nil
}
