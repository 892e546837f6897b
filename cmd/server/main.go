package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/whatasoda/twitch-clips-todo/internal/adapter/httpserver"
	"github.com/whatasoda/twitch-clips-todo/internal/adapter/metrics"
	"github.com/whatasoda/twitch-clips-todo/internal/adapter/storage"
	"github.com/whatasoda/twitch-clips-todo/internal/app"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/config"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/crypto"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/logging"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/scheduler"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/version"
	"github.com/whatasoda/twitch-clips-todo/internal/twitch"
)

func runGracefulShutdown(srv *httpserver.Server, sched *scheduler.Scheduler, stopCaches func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		sched.Stop()
		stopCaches()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStorage(cfg *config.Config, reg prometheus.Registerer) *storage.Backend {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var observer storage.Observer
	if cfg.StorageBackend != config.StorageMemory {
		observer = metrics.NewStorageMetrics(reg, cfg.StorageBackend)
	}

	backend, err := storage.Open(ctx, cfg.StorageBackend, storage.URL(cfg), storage.Options{
		Observer: observer,
		LeaseTTL: cfg.LeaderLeaseTTL,
	})
	if err != nil {
		slog.Error("Failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	slog.Info("Storage ready", "backend", backend.Name)
	return backend
}

func setupTwitch(cfg *config.Config, backend *storage.Backend, clock clockwork.Clock, reg prometheus.Registerer) (*twitch.AuthManager, *twitch.Client) {
	cryptoSvc, err := crypto.New(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}
	if cfg.TokenEncryptionKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, credentials are stored unencrypted")
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	auth := twitch.NewAuthManager(twitch.AuthConfig{
		ClientID:   cfg.TwitchClientID,
		Scopes:     cfg.Scopes(),
		BaseURL:    cfg.TwitchAuthURL,
		HTTPClient: httpClient,
		Clock:      clock,
	}, twitch.NewKVCredentialStore(backend.Store, cryptoSvc))

	client := twitch.NewClient(twitch.ClientConfig{
		ClientID:        cfg.TwitchClientID,
		BaseURL:         cfg.TwitchAPIURL,
		HTTPClient:      httpClient,
		Clock:           clock,
		PointsPerMinute: cfg.APIPointsPerMinute,
		Observer:        metrics.NewTwitchMetrics(reg),
	}, auth)

	return auth, client
}

// twitchAuthCheck fails while no token is stored. An expired token still passes since the next
// API call refreshes it.
func twitchAuthCheck(auth *twitch.AuthManager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		token, err := auth.StoredToken(ctx)
		if err != nil {
			return err
		}
		if token == nil {
			return domain.ErrNotAuthenticated
		}
		return nil
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	registry := metrics.NewRegistry()

	backend := setupStorage(cfg, registry)
	defer backend.Close()

	auth, client := setupTwitch(cfg, backend, clock, registry)

	cacheMetrics := metrics.NewCacheMetrics(registry)
	caches, stopCaches := app.NewTwitchCaches(backend.Store, clock, cacheMetrics.For)

	twitchSvc := app.NewTwitchService(auth, client, caches)
	recordSvc := app.NewRecordService(backend.Store, clock)
	linkingSvc := app.NewLinkingService(recordSvc)

	var schedOpts []scheduler.Option
	if backend.Guard != nil {
		schedOpts = append(schedOpts, scheduler.WithGuard(backend.Guard))
	}
	sched := scheduler.New(context.Background(), clock, schedOpts...)

	discoverySvc := app.NewDiscoveryService(recordSvc, twitchSvc, linkingSvc, sched, app.DiscoveryConfig{
		Interval:     cfg.DiscoveryInterval,
		StartupDelay: cfg.DiscoveryStartupDelay,
		Clock:        clock,
		Observer:     metrics.NewDiscoveryMetrics(registry),
	})
	discoverySvc.Initialize(context.Background())

	if cfg.CompletedRecordRetention > 0 {
		recordSvc.ScheduleRetention(sched, cfg.CompletedRecordRetention)
	}

	srv := httpserver.NewServer(httpserver.Services{
		Twitch:    twitchSvc,
		Records:   recordSvc,
		Linking:   linkingSvc,
		Discovery: discoverySvc,
	}, httpserver.Options{
		Port: cfg.Port,
		HealthChecks: []httpserver.HealthCheck{
			{Name: "storage", Backend: backend.Name, Check: backend.Store.Ping},
			{Name: "twitch_auth", Check: twitchAuthCheck(auth), Optional: true},
		},
		Registry: registry,
		Clock:    clock,
	})

	done := runGracefulShutdown(srv, sched, stopCaches)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
