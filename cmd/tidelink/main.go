// Command tidelink is the daemon entry point: it connects the chat gateway,
// brings up the worker node fleet, restores persisted players, and serves
// metrics and health probes over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tidelink-audio/tidelink/internal/config"
	"github.com/tidelink-audio/tidelink/internal/health"
	"github.com/tidelink-audio/tidelink/internal/observe"
	"github.com/tidelink-audio/tidelink/pkg/gateway/discord"
	"github.com/tidelink-audio/tidelink/pkg/storage"
	"github.com/tidelink-audio/tidelink/pkg/tidelink"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "tidelink.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tidelink: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tidelink: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := newLevelVar(cfg.Server.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("tidelink starting",
		"version", tidelink.Version,
		"config", *configPath,
		"nodes", len(cfg.Nodes),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "tidelink",
		ServiceVersion: tidelink.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Snapshot store ────────────────────────────────────────────────────────
	store, err := config.NewRegistry().CreateStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open snapshot store", "adapter", cfg.Storage.Adapter, "err", err)
		return 1
	}
	defer closeStore(store)
	slog.Info("snapshot store ready", "adapter", orMemory(cfg.Storage.Adapter))

	// ── Discord session ───────────────────────────────────────────────────────
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		slog.Error("failed to create discord session", "err", err)
		return 1
	}
	session.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildVoiceStates

	gw := discord.New(session)

	// ── Orchestrator ──────────────────────────────────────────────────────────
	client, err := tidelink.New(tidelink.Config{
		Nodes:          cfg.NodeConfigs(),
		Gateway:        gw,
		Store:          store,
		Prefix:         cfg.Storage.Prefix,
		SearchEngine:   cfg.Search.Engine,
		PlaybackEngine: cfg.Search.PlaybackEngine,
		PlayerDefaults: cfg.PlayerDefaults(),
		Log:            logger,
	})
	if err != nil {
		slog.Error("failed to assemble client", "err", err)
		return 1
	}

	// Voice event forwarders must be in place before the session opens.
	gw.Attach(client)

	if err := session.Open(); err != nil {
		slog.Error("failed to open discord session", "err", err)
		return 1
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("discord session close error", "err", err)
		}
	}()
	slog.Info("discord gateway connected", "user_id", gw.UserID())

	client.Start(ctx)
	defer client.Close()

	if restored, err := client.RestorePlayers(ctx); err != nil {
		slog.Warn("player restore incomplete", "err", err)
	} else if restored > 0 {
		slog.Info("players restored from snapshots", "count", restored)
	}

	// ── Config watcher (log level hot reload) ─────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.NodesChanged {
			slog.Warn("node list changed on disk; restart to apply", "changes", len(d.NodeChanges))
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP surface ──────────────────────────────────────────────────────────
	httpErr := make(chan error, 1)
	srv := newHTTPServer(cfg, client, store)
	if srv != nil {
		go func() {
			var err error
			if cfg.Server.TLS != nil {
				err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr, "tls", cfg.Server.TLS != nil)
	}

	slog.Info("tidelink ready, press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		slog.Error("http server error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
	}

	slog.Info("goodbye")
	return 0
}

// newHTTPServer builds the metrics/health server, or nil when no listen
// address is configured.
func newHTTPServer(cfg *config.Config, client *tidelink.Client, store storage.Store) *http.Server {
	if cfg.Server.ListenAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.NodePool(client.Nodes()),
		health.Storage(store),
	).Register(mux)

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// closeStore releases backend connections for adapters that hold them.
func closeStore(store any) {
	switch s := store.(type) {
	case interface{ Close() error }:
		if err := s.Close(); err != nil {
			slog.Warn("snapshot store close error", "err", err)
		}
	case interface{ Close() }:
		s.Close()
	}
}

func orMemory(a config.Adapter) config.Adapter {
	if a == "" {
		return config.AdapterMemory
	}
	return a
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLevelVar(level config.LogLevel) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(slogLevel(level))
	return v
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
