package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/selam-labs/selam/internal/agent"
	"github.com/selam-labs/selam/internal/assistant"
	"github.com/selam-labs/selam/internal/channel/matrix"
	"github.com/selam-labs/selam/internal/channel/telegram"
	"github.com/selam-labs/selam/internal/convo"
	"github.com/selam-labs/selam/internal/delivery"
	"github.com/selam-labs/selam/internal/dispatch"
	"github.com/selam-labs/selam/internal/fallback"
	"github.com/selam-labs/selam/internal/llm"
	"github.com/selam-labs/selam/internal/platform"
	"github.com/selam-labs/selam/internal/speech"
	"github.com/selam-labs/selam/pkg/channel"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("selam %s (%s)\n", version, commit)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	cp := *configPath
	if cp == "" {
		cp = os.Getenv("SELAM_CONFIG_PATH")
	}
	cfg, err := assistant.LoadConfig(cp)
	if err != nil {
		slog.Error("failed to load config", "path", cp, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Domain store: Postgres in production, SQLite for single-node dev.
	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open domain store", "error", err)
		os.Exit(1)
	}

	actions := platform.NewActionClient(cfg.Platform.ActionsURL, cfg.Platform.ActionsToken, 0)

	// Conversation cache: Redis when configured, process memory otherwise.
	var conv convo.Store
	if cfg.Redis.Addr != "" {
		conv = convo.NewRedisStore(convo.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Conversation.TTLOrDefault(),
			MaxTurns: cfg.Conversation.MaxTurns,
		})
	} else {
		slog.Warn("no conversation cache configured, history lives in process memory")
		conv = convo.NewMemoryStore(cfg.Conversation.MaxTurns)
	}

	dispatcher := dispatch.New(store, actions, 0)

	// Reasoning brain is optional: without an API key every request is
	// answered deterministically.
	var orch *agent.Orchestrator
	if cfg.Brain.APIKey != "" {
		var provider llm.ToolProvider
		if cfg.Brain.BaseURL != "" {
			provider = llm.NewAnthropicCompat(cfg.Brain.Provider, cfg.Brain.BaseURL, cfg.Brain.APIKey, cfg.Brain.Model, cfg.Brain.TimeoutOrDefault())
		} else {
			provider = llm.NewAnthropic(cfg.Brain.APIKey, cfg.Brain.Model, cfg.Brain.TimeoutOrDefault())
		}
		orch = agent.New(provider, dispatcher, conv, agent.Config{
			MaxTurns:    cfg.Brain.MaxTurns,
			MaxTokens:   cfg.Brain.MaxTokens,
			Temperature: cfg.Brain.Temperature,
		})
	} else {
		slog.Warn("no brain API key configured, running deterministic-only")
	}

	fb := fallback.NewRouter(store, actions, conv)

	// Speech is optional: without it voice notes are refused and replies
	// stay text-only.
	var transcriber speech.Transcriber
	var renderer speech.Renderer
	if cfg.Speech.URL != "" {
		sp := speech.NewHTTPSpeech(cfg.Speech.URL, cfg.Speech.Token, 0)
		transcriber = sp
		renderer = sp
	}

	deliverer := delivery.New(renderer, store, cfg.Speech.RenderTimeoutOrDefault())

	var channels []channel.Channel
	if cfg.Telegram.Token != "" {
		channels = append(channels, telegram.New(telegram.Config{
			Token:        cfg.Telegram.Token,
			AllowedUsers: cfg.Telegram.AllowedUsers,
		}, transcriber))
	}
	if cfg.Matrix.Homeserver != "" {
		channels = append(channels, matrix.New(matrix.Config{
			Homeserver:   cfg.Matrix.Homeserver,
			UserID:       cfg.Matrix.UserID,
			Password:     cfg.Matrix.Password,
			ServerName:   cfg.Matrix.ServerName,
			AllowedUsers: cfg.Matrix.AllowedUsers,
			DataDir:      cfg.Matrix.DataDir,
		}, transcriber))
	}

	svc := assistant.New(cfg, orch, fb, deliverer, store, transcriber, channels)

	slog.Info("selam starting",
		"version", version,
		"channels", len(channels),
		"brain", orch != nil,
		"voice", renderer != nil,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("assistant error", "error", err)
		os.Exit(1)
	}

	slog.Info("selam stopped")
}

func openStore(ctx context.Context, cfg *assistant.Config) (platform.Store, error) {
	if cfg.Platform.PostgresURL != "" {
		return platform.NewPostgresStore(ctx, cfg.Platform.PostgresURL)
	}
	if cfg.Platform.SQLitePath != "" {
		return platform.OpenSQLite(cfg.Platform.SQLitePath)
	}
	return nil, fmt.Errorf("no domain store configured: set platform.postgres_url or platform.sqlite_path")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
