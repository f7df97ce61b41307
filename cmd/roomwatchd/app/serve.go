package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roomwatch/roomwatch/internal/api"
	"github.com/roomwatch/roomwatch/internal/cache"
	"github.com/roomwatch/roomwatch/internal/config"
	"github.com/roomwatch/roomwatch/internal/notify"
	"github.com/roomwatch/roomwatch/internal/platforms"
	"github.com/roomwatch/roomwatch/internal/refresh"
	"github.com/roomwatch/roomwatch/internal/room"
	"github.com/roomwatch/roomwatch/internal/store"
	"github.com/roomwatch/roomwatch/internal/telemetry"
	"github.com/roomwatch/roomwatch/pkg/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the room watcher daemon",
	Long: `Start the room watcher daemon.

The daemon requires a configuration file (--config) that specifies:
- The monitored rooms (platform, id, favorite)
- Refresh cadence, persistence, and notification settings

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

// openRoomStore opens the configured persistence backend, or a no-op store
// when persistence is disabled.
func openRoomStore(cfg *config.Config) (store.RoomStore, error) {
	if cfg.Store == nil || cfg.Store.Path == "" {
		slog.Info("Persistence disabled, room state will not survive restarts")
		return store.Noop{}, nil
	}
	s, err := store.Open(cfg.Store.Path, cfg.GetFlushInterval())
	if err != nil {
		return nil, fmt.Errorf("failed to open room store: %w", err)
	}
	slog.Info("Opened room store", "path", cfg.Store.Path)
	return s, nil
}

// buildNotifier assembles the cycle notifier chain.
func buildNotifier(cfg *config.Config) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier()}
	if cfg.Notify != nil && cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notify.WebhookURL))
		slog.Info("Webhook notifications enabled")
	}
	return notifiers
}

func runServe(_ *cobra.Command, _ []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	address := viper.GetString("address")
	if address == "" {
		address = cfg.GetAddress()
	}

	slog.Info("Starting room watcher daemon",
		"address", address,
		"rooms", len(cfg.Rooms),
		"version", versions.GetVersionInfo().Version)

	// Persistence and the cache it feeds.
	roomStore, err := openRoomStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := roomStore.Close(); err != nil {
			slog.Error("Failed to close room store", "error", err)
		}
	}()

	cacheStore := cache.NewStore(cache.WithCommitHook(roomStore.Save))

	persisted, err := roomStore.Load()
	if err != nil {
		slog.Warn("Failed to load persisted room state", "error", err)
	} else if len(persisted) > 0 {
		cacheStore.Seed(persisted)
		slog.Info("Seeded cache from persisted state", "entries", len(persisted))
	}

	// Telemetry is optional; a nil RefreshMetrics records nothing.
	var refreshMetrics *telemetry.RefreshMetrics
	var metricsHandler http.Handler
	if cfg.Telemetry != nil && cfg.Telemetry.Metrics {
		registry := prom.NewRegistry()
		provider, err := telemetry.NewMeterProvider("roomwatchd", versions.GetVersionInfo().Version, registry)
		if err != nil {
			return fmt.Errorf("failed to create meter provider: %w", err)
		}
		refreshMetrics, err = telemetry.NewRefreshMetrics(provider)
		if err != nil {
			return fmt.Errorf("failed to create refresh metrics: %w", err)
		}
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		slog.Info("Metrics enabled at /metrics")
	}

	// The refresh engine.
	adapters := platforms.NewRegistry(cfg.GetRequestTimeout())
	fetcher := refresh.NewFetcher(adapters, cacheStore, cfg.GetAvatarTTL(), refreshMetrics)

	roster := cfg.Roster()
	orchestrator := refresh.New(
		func() []room.Descriptor { return roster },
		fetcher,
		cacheStore,
		refresh.Config{
			Cooldown:  cfg.GetCooldown(),
			JitterMax: cfg.GetJitterMax(),
			AvatarTTL: cfg.GetAvatarTTL(),
			Sizing:    cfg.GetSizing(),
		},
		refresh.WithNotifier(buildNotifier(cfg)),
		refresh.WithMetrics(refreshMetrics),
	)
	coordinator := refresh.NewCoordinator(orchestrator, cfg.GetAutoInterval())

	coordCtx, coordCancel := context.WithCancel(context.Background())
	defer coordCancel()
	go func() {
		if err := coordinator.Start(coordCtx); err != nil {
			slog.Error("Refresh coordinator failed", "error", err)
		}
	}()

	// The API server.
	serverOpts := []api.ServerOption{
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	}
	if metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(metricsHandler))
	}
	router := api.NewServer(cacheStore, coordinator, serverOpts...)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the daemon.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down...")

	if err := coordinator.Stop(); err != nil {
		slog.Error("Failed to stop refresh coordinator", "error", err)
	}

	if err := roomStore.Flush(); err != nil {
		slog.Error("Failed to flush room store", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Shutdown complete")
	return nil
}
