package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/matchsync/internal/api"
	"github.com/rickgao/matchsync/internal/auth"
	"github.com/rickgao/matchsync/internal/config"
	"github.com/rickgao/matchsync/internal/connection"
	"github.com/rickgao/matchsync/internal/dedup"
	"github.com/rickgao/matchsync/internal/engine"
	"github.com/rickgao/matchsync/internal/kvstore"
	"github.com/rickgao/matchsync/internal/model"
	"github.com/rickgao/matchsync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/matchwatch.local.yaml", "path to config file")
	matchID := flag.String("match", "", "match id to track (defaults to the picks file's match_id)")
	picksPath := flag.String("picks", "", "path to picks YAML file")
	healthAddr := flag.String("health-addr", ":8080", "health server listen address, empty to disable")
	verbose := flag.Bool("verbose", false, "log at debug level")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	logger := setupLogger(cfg.Log)

	logger.Info("starting matchwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := run(cfg, *matchID, *picksPath, *healthAddr, logger); err != nil {
		logger.Error("matchwatch failed", "error", err)
		os.Exit(1)
	}
	logger.Info("matchwatch stopped")
}

func run(cfg *config.Config, matchID, picksPath, healthAddr string, logger *slog.Logger) error {
	var picks []model.TrackedPick
	if picksPath != "" {
		var err error
		matchID, picks, err = loadPicks(picksPath, matchID)
		if err != nil {
			return err
		}
	}
	if matchID == "" {
		return errors.New("no match id: pass -match or set match_id in the picks file")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Notification dedupe store
	kv, err := kvstore.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()

	store := dedup.New(kv, dedup.Options{
		StorageKey: cfg.Settlement.DedupeStorageKey,
		Retention:  cfg.Settlement.DedupeRetention,
	}, logger)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load dedupe set: %w", err)
	}

	// Credentials, REST client and the shared refresh gate
	creds := auth.NewMemoryCredentials()
	apiClient := api.NewClient(
		cfg.Server.RestURL,
		creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Server.RequestTimeout),
		api.WithRetries(cfg.Server.MaxRetries, time.Second),
	)
	gate := auth.NewRefreshGate(api.NewSessionRefresher(apiClient, creds), logger)
	apiClient.SetRefreshGate(gate)

	if cfg.Auth.AccessToken != "" {
		creds.SetSession(cfg.Auth.UserID, cfg.Auth.AccessToken, cfg.Auth.RefreshToken)
	} else {
		creds.MarkReady()
	}

	conn := connection.NewManager(connection.ManagerConfigFrom(cfg), creds, gate, creds, logger)

	opts, err := engine.OptionsFrom(cfg)
	if err != nil {
		return err
	}
	opts.OnSettlement = printSettlement(os.Stdout)
	opts.OnQueueExpired = func(q model.QueueExpired) {
		fmt.Fprintf(os.Stdout, "queue %s expired: %s\n", q.QueueID, q.Reason)
	}
	eng := engine.New(engine.Deps{Conn: conn, Dedupe: store, Events: apiClient}, opts, logger)

	if err := conn.Start(ctx); err != nil {
		return fmt.Errorf("start connection manager: %w", err)
	}
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	var healthServer *http.Server
	if healthAddr != "" {
		healthServer = &http.Server{
			Addr:              healthAddr,
			Handler:           createHealthHandler(eng, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting health server", "addr", healthAddr)
			if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()
	}

	if err := conn.Connect(ctx); err != nil {
		logger.Warn("initial connect failed", "error", err, "state", conn.State())
	}
	if err := eng.Track(ctx, matchID, picks); err != nil {
		logger.Warn("join failed, will retry on next connect", "match_id", matchID, "error", err)
	}

	logger.Info("matchwatch running", "match_id", matchID, "picks", len(picks))

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if healthServer != nil {
		healthServer.Shutdown(shutdownCtx)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Warn("engine stop", "error", err)
	}
	if err := conn.Stop(shutdownCtx); err != nil {
		logger.Warn("connection manager stop", "error", err)
	}
	if err := store.Flush(shutdownCtx); err != nil {
		logger.Warn("final dedupe flush failed", "error", err)
	}

	printSummary(os.Stdout, eng.Snapshot(), eng.Momentum(cfg.Auth.UserID))
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func printSettlement(w io.Writer) func(model.SettlementResult) {
	return func(r model.SettlementResult) {
		source := "provisional"
		if r.Authoritative {
			source = "final"
		}
		fmt.Fprintf(w, "[%s] %s %s %s -> %s (%d-%d, %s)\n",
			r.SettledAt.Format(time.TimeOnly), r.PickID, r.MarketType, pickLabel(r), r.Status,
			r.HomeScore, r.AwayScore, source)
	}
}
