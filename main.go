// Command dj-tender runs the AI DJ: it keeps a recommendation-driven music
// queue alive per Twitch channel, with spoken introductions and skip banter.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations (statistics, voice settings).
//   - Wires the recommendation client, the search backend (YouTube Data API or
//     yt-dlp), the commentary pipeline and the playlist orchestrator.
//   - Starts the Twitch chat bridge and an HTTP server with /healthz, /readyz,
//     /metrics and /sessions.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/dj-tender/chat"
	"github.com/onnwee/dj-tender/commentary"
	"github.com/onnwee/dj-tender/config"
	"github.com/onnwee/dj-tender/db"
	"github.com/onnwee/dj-tender/dj"
	"github.com/onnwee/dj-tender/linkmeta"
	"github.com/onnwee/dj-tender/llm"
	"github.com/onnwee/dj-tender/player"
	"github.com/onnwee/dj-tender/resolver"
	"github.com/onnwee/dj-tender/server"
	"github.com/onnwee/dj-tender/stats"
	"github.com/onnwee/dj-tender/telemetry"
	"github.com/onnwee/dj-tender/twitchapi"
	"github.com/onnwee/dj-tender/youtubeapi"
	"github.com/onnwee/dj-tender/ytdl"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("dj-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database := openDatabase(ctx, cfg)
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}

	llmClient := llm.NewClient(cfg.OllamaURL, cfg.OllamaModel, llm.WithTimeout(cfg.LLMTimeout))
	if !llmClient.Available(ctx) {
		slog.Warn("recommendation service not reachable yet", slog.String("url", cfg.OllamaURL), slog.String("model", cfg.OllamaModel))
	}

	// Search backend + link metadata sources.
	ytdlClient := ytdl.New()
	var searcher resolver.Searcher = ytdlClient
	var ytSource linkmeta.YouTubeSource
	var twSource linkmeta.TwitchSource
	if cfg.SearchBackend == "youtube" || cfg.YouTubeConfigured() {
		svc, err := youtubeapi.New(ctx, cfg)
		switch {
		case err != nil:
			slog.Warn("youtube data api unavailable, using yt-dlp", slog.Any("err", err))
		default:
			ytSource = svc
			if cfg.SearchBackend == "youtube" {
				searcher = svc
			}
		}
	}
	if cfg.HelixConfigured() {
		twSource = &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			ClientID:       cfg.TwitchClientID,
		}
	}
	slog.Info("search backend selected", slog.String("backend", cfg.SearchBackend), slog.Bool("youtube_links", ytSource != nil), slog.Bool("twitch_links", twSource != nil))

	links := linkmeta.NewResolver(ytSource, twSource, ytdlClient, cfg.SearchCacheTTL)
	res := resolver.New(searcher, resolver.Options{CacheTTL: cfg.SearchCacheTTL})

	// Commentary pipeline; voices come from guild settings when a database is available.
	var voiceStore commentary.VoiceStore
	var voiceSettings chat.VoiceSettings
	if database != nil {
		gs := db.GuildSettings{DB: database}
		voiceStore, voiceSettings = gs, gs
	}
	pipeline := commentary.New(commentary.Config{
		PiperPath:    cfg.PiperPath,
		ModelDir:     cfg.PiperModelDir,
		FFmpegPath:   cfg.FFmpegPath,
		FFprobePath:  cfg.FFprobePath,
		TempDir:      cfg.TempDir,
		DefaultVoice: cfg.DefaultVoice,
	}, llmClient, voiceStore)
	if n, err := pipeline.Sweep(); err != nil {
		slog.Warn("temp audio sweep failed", slog.String("dir", cfg.TempDir), slog.Any("err", err))
	} else if n > 0 {
		slog.Info("removed stale temp audio", slog.Int("files", n))
	}
	go pipeline.RunRetention(ctx, 15*time.Minute, time.Hour)

	// Statistics: best effort, in the background.
	var recorder *stats.Recorder
	if database != nil {
		recorder = stats.NewRecorder(stats.NewPostgresStore(database), 0)
		go recorder.Run(ctx)
	}

	players := player.NewManager()
	deps := dj.Deps{
		Queues:      func(guildID string) dj.Queue { return players.Create(guildID) },
		Recommender: llmClient,
		Resolver:    res,
		Commentary:  pipeline,
		Links:       links,
		Stats:       recorder,
	}

	var bot *chat.Bot
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("twitch chat bridge disabled", slog.Any("reason", err))
	} else {
		bot = chat.NewBot(cfg, nil, voiceSettings)
		deps.Notifier = bot
	}

	orch := dj.New(dj.Config{
		NearEmptyThreshold: cfg.NearEmptyThreshold,
		CycleTimeout:       cfg.CycleTimeout,
	}, deps)
	go orch.Run(ctx, players.Events())

	if bot != nil {
		bot.SetController(orch)
		go func() {
			if err := bot.Run(ctx); err != nil {
				slog.Error("twitch chat bridge exited", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, server.NewHandlers(database, orch, llmClient)); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	orch.Close()
	if n := pipeline.Pending(); n > 0 {
		slog.Warn("temp audio left after shutdown", slog.Int("files", n))
	}
}

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

// openDatabase returns nil when DB_DSN is unset; statistics and voice settings
// are then disabled.
func openDatabase(ctx context.Context, cfg *config.Config) *sql.DB {
	if cfg.DBDsn == "" {
		slog.Warn("DB_DSN not set; statistics and per-channel voices disabled")
		return nil
	}
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}

	// Versioned migrations first; the plain embedded script is the fallback
	// for databases a migrator cannot lock.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded SQL", slog.Any("err", err), slog.String("component", "db_migrate"))
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := db.Migrate(mctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}
	return database
}
