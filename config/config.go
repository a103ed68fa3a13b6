// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required chat credentials, use ValidateChatReady.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP
	HTTPAddr string

	// Twitch chat (notification target + commands)
	TwitchChannels     []string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string

	// Database
	DBDsn string

	// Recommendation / commentary text service
	OllamaURL   string
	OllamaModel string
	LLMTimeout  time.Duration

	// Search backend
	SearchBackend  string
	SearchCacheTTL time.Duration
	YTAPIKey       string
	YTClientID     string
	YTClientSecret string
	YTRefreshToken string

	// Speech synthesis / transcoding
	PiperPath     string
	PiperModelDir string
	FFmpegPath    string
	FFprobePath   string
	TempDir       string
	DefaultVoice  string

	// Orchestration
	NearEmptyThreshold int
	CycleTimeout       time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use ValidateChatReady() when the chat bridge is required. Missing optional variables disable features.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = envStr("HTTP_ADDR", ":8080")

	for _, ch := range strings.Split(os.Getenv("TWITCH_CHANNELS"), ",") {
		if ch = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ch), "#"))); ch != "" {
			cfg.TwitchChannels = append(cfg.TwitchChannels, ch)
		}
	}
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	// Default to local Postgres (matches docker-compose).
	cfg.DBDsn = envStr("DB_DSN", "postgres://dj:dj@localhost:5432/dj?sslmode=disable")

	cfg.OllamaURL = strings.TrimRight(envStr("OLLAMA_URL", "http://localhost:11434"), "/")
	cfg.OllamaModel = envStr("OLLAMA_MODEL", "llama3.1")

	var err error
	if cfg.LLMTimeout, err = envDuration("LLM_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.SearchCacheTTL, err = envDuration("SEARCH_CACHE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout, err = envDuration("DJ_CYCLE_TIMEOUT", 3*time.Minute); err != nil {
		return nil, err
	}

	cfg.YTAPIKey = os.Getenv("YT_API_KEY")
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRefreshToken = os.Getenv("YT_REFRESH_TOKEN")

	cfg.SearchBackend = strings.ToLower(os.Getenv("SEARCH_BACKEND"))
	switch cfg.SearchBackend {
	case "":
		if cfg.YouTubeConfigured() {
			cfg.SearchBackend = "youtube"
		} else {
			cfg.SearchBackend = "ytdlp"
		}
	case "youtube", "ytdlp":
	default:
		return nil, fmt.Errorf("invalid SEARCH_BACKEND %q (want youtube or ytdlp)", cfg.SearchBackend)
	}

	cfg.PiperPath = envStr("PIPER_PATH", "piper")
	cfg.PiperModelDir = envStr("PIPER_MODEL_DIR", filepath.Join("models", "piper"))
	cfg.FFmpegPath = envStr("FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = envStr("FFPROBE_PATH", "ffprobe")
	cfg.TempDir = envStr("DJ_TEMP_DIR", filepath.Join(os.TempDir(), "dj-tender"))
	cfg.DefaultVoice = envStr("DJ_DEFAULT_VOICE", "lessac")

	if cfg.NearEmptyThreshold, err = envInt("DJ_NEAR_EMPTY", 3); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateChatReady checks required fields when the chat bridge is enabled.
func (c *Config) ValidateChatReady() error {
	if len(c.TwitchChannels) == 0 || c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNELS, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

// YouTubeConfigured reports whether the YouTube Data API can be used (API key or refresh token).
func (c *Config) YouTubeConfigured() bool {
	return c.YTAPIKey != "" || (c.YTClientID != "" && c.YTClientSecret != "" && c.YTRefreshToken != "")
}

// HelixConfigured reports whether Twitch app credentials are present.
func (c *Config) HelixConfigured() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
