// Package main is the entry point for the StayLedger booking server.
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
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata" // feed TZIDs resolve without system zoneinfo

	"github.com/stayledger/backend/internal/api"
	"github.com/stayledger/backend/internal/calendar"
	"github.com/stayledger/backend/internal/config"
	"github.com/stayledger/backend/internal/logging"
	"github.com/stayledger/backend/internal/notify"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	// Parse command-line flags
	dataDir := flag.String("data", "/data", "Data directory for the SQLite database and config")
	configPath := flag.String("config", "", "Path to the YAML config (default <data>/config.yaml)")
	addr := flag.String("addr", "", "HTTP server address (overrides config listen)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		listen := *addr
		if listen == "" {
			listen = config.DefaultListen
		}
		if err := runHealthCheck(listen); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *configPath == "" {
		*configPath = filepath.Join(*dataDir, "config.yaml")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if *addr != "" {
		cfg.Listen = *addr
	}

	// Allow overriding version via environment (e.g., injected by container build/runtime)
	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, *dataDir, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, dataDir string, logger *slog.Logger) error {
	logger.Info("starting stayledger", "version", version, "listen", cfg.Listen, "database", cfg.Database.Driver)

	db, err := storage.Open(cfg.Database.Driver, cfg.DatabasePath(dataDir), cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// Initialize repositories
	properties := storage.NewPropertyRepository(db)
	bookings := storage.NewBookingRepository(db)
	channels := storage.NewChannelRepository(db)

	feeds := calendar.NewFeedClient(cfg.Sync.FetchTimeout.Std(),
		calendar.WithRecurrenceWindow(cfg.Sync.StaleAfter.Std(), cfg.Sync.RecurrenceHorizon.Std()))
	syncService := calendar.NewSyncService(properties, bookings, channels, feeds, logger,
		calendar.WithMaxParallelFetches(cfg.Sync.MaxParallelFetches),
		calendar.WithNormalizer(&calendar.Normalizer{
			BlockLabel:    cfg.Labels.CalendarBlock,
			ExternalLabel: cfg.Labels.ExternalBooking,
			StaleAfter:    cfg.Sync.StaleAfter.Std(),
		}),
	)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Warn("telegram alerts disabled", "error", err)
		} else {
			notifier = tg
		}
	}

	scheduler := calendar.NewScheduler(syncService, hub, notifier, logger,
		cfg.Sync.Interval.Std(), cfg.Sync.StartupDelay.Std())
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	router := api.NewRouter(api.Services{
		DB:          db,
		Config:      cfg,
		Properties:  properties,
		Bookings:    bookings,
		Channels:    channels,
		SyncService: syncService,
		Scheduler:   scheduler,
		Hub:         hub,
		Logger:      logger,
		Version:     version,
	})

	// Manual syncs run inside the request, so writes get a long timeout.
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Listen)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("http server: %w", err)
	}

	scheduler.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
