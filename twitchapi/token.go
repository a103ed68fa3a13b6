package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"
	// tokens closer than this to expiry are refetched
	expirySkew = time.Minute
)

// ErrMissingCredentials is returned when no client id/secret pair is configured.
var ErrMissingCredentials = errors.New("twitch app token: missing client id or secret")

// TokenSource hands out a client-credentials app token for Helix lookups.
// The chat bot authenticates with its own user token instead.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	// TokenURL overrides the id.twitch.tv endpoint.
	TokenURL string

	mu     sync.Mutex
	cached appToken
}

type appToken struct {
	value   string
	expires time.Time
}

func (a appToken) usable(now time.Time) bool {
	return a.value != "" && a.expires.Sub(now) > expirySkew
}

// Get returns the cached token, fetching a new one when it is missing or about to expire.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.cached.usable(time.Now()) {
		return ts.cached.value, nil
	}
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", ErrMissingCredentials
	}
	tok, err := ts.fetch(ctx)
	if err != nil {
		return "", err
	}
	ts.cached = tok
	return tok.value, nil
}

// Invalidate forgets the cached token. Helix calls use it after a 401.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.cached = appToken{}
	ts.mu.Unlock()
}

func (ts *TokenSource) valid() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.cached.usable(time.Now())
}

func (ts *TokenSource) fetch(ctx context.Context) (appToken, error) {
	endpoint := ts.TokenURL
	if endpoint == "" {
		endpoint = defaultTokenURL
	}
	form := url.Values{
		"client_id":     {ts.ClientID},
		"client_secret": {ts.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return appToken{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	hc := ts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	requestedAt := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return appToken{}, fmt.Errorf("twitch app token: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close token response body", slog.Any("err", cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return appToken{}, fmt.Errorf("twitch app token: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return appToken{}, fmt.Errorf("twitch app token: decode: %w", err)
	}
	if payload.AccessToken == "" {
		return appToken{}, errors.New("twitch app token: empty access_token")
	}
	slog.Debug("fetched twitch app token", slog.String("component", "twitch_helix"), slog.Int("expires_in", payload.ExpiresIn))
	return appToken{
		value:   payload.AccessToken,
		expires: requestedAt.Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}
