package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TWITCH_CHANNELS", "TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN",
		"YT_API_KEY", "YT_CLIENT_ID", "YT_CLIENT_SECRET", "YT_REFRESH_TOKEN",
		"SEARCH_BACKEND", "DJ_NEAR_EMPTY", "LLM_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.NearEmptyThreshold != 3 {
		t.Errorf("NearEmptyThreshold = %d, want 3", cfg.NearEmptyThreshold)
	}
	if cfg.SearchBackend != "ytdlp" {
		t.Errorf("SearchBackend = %q, want ytdlp without youtube credentials", cfg.SearchBackend)
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Errorf("LLMTimeout = %v, want 60s", cfg.LLMTimeout)
	}
	if cfg.DefaultVoice != "lessac" {
		t.Errorf("DefaultVoice = %q, want lessac", cfg.DefaultVoice)
	}
}

func TestLoadSearchBackendFromKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("YT_API_KEY", "key")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SearchBackend != "youtube" {
		t.Errorf("SearchBackend = %q, want youtube", cfg.SearchBackend)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SEARCH_BACKEND", "bing"},
		{"DJ_NEAR_EMPTY", "three"},
		{"LLM_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestChannelsParsed(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CHANNELS", " #Foo, bar ,,")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.TwitchChannels) != 2 || cfg.TwitchChannels[0] != "foo" || cfg.TwitchChannels[1] != "bar" {
		t.Errorf("TwitchChannels = %v, want [foo bar]", cfg.TwitchChannels)
	}
}

func TestValidateChatReady(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_CHANNELS", "chan")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}
	t.Setenv("TWITCH_CHANNELS", "")
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}
