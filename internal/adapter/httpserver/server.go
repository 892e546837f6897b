// Package httpserver exposes the engine over a JSON HTTP API built on echo. Handlers validate
// request shape and map engine errors onto structured responses; all behavior lives in app.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/whatasoda/twitch-clips-todo/internal/adapter/metrics"
	"github.com/whatasoda/twitch-clips-todo/internal/app"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/correlation"
)

type twitchService interface {
	GetStreamerInfo(ctx context.Context, login string) (*domain.StreamerInfo, error)
	GetCurrentStream(ctx context.Context, login string, force bool) (*domain.StreamInfo, error)
	GetStreamsByLogins(ctx context.Context, logins []string) ([]domain.StreamInfo, error)
	GetRecentVods(ctx context.Context, userID string, limit int) ([]domain.VodSummary, error)
	GetVodMetadata(ctx context.Context, vodID string) (*domain.VodSummary, error)

	StartAuth(ctx context.Context) (*domain.DeviceAuthorization, error)
	PollAuth(ctx context.Context) (*domain.Token, error)
	CancelAuth()
	AwaitNextPoll(ctx context.Context) error
	AuthStatus(ctx context.Context) (*app.AuthView, error)
	Logout(ctx context.Context) error
}

type recordService interface {
	List(ctx context.Context) ([]domain.Record, error)
	ListByStreamer(ctx context.Context, streamerID string) ([]domain.Record, error)
	Get(ctx context.Context, id string) (*domain.Record, error)
	Create(ctx context.Context, in domain.CreateRecordInput) (*domain.Record, error)
	UpdateMemo(ctx context.Context, id, memo string) (*domain.Record, error)
	Complete(ctx context.Context, id string) (*domain.Record, error)
	Uncomplete(ctx context.Context, id string) (*domain.Record, error)
	Delete(ctx context.Context, id string) error
	DeleteCompleted(ctx context.Context, olderThan time.Duration) (int, error)
}

type linkingService interface {
	LinkVod(ctx context.Context, req app.LinkVodRequest) ([]domain.Record, error)
}

type discoveryService interface {
	RunDiscovery(ctx context.Context) ([]app.DiscoveryResult, error)
}

// Services are the engine operations the API dispatches to.
type Services struct {
	Twitch    twitchService
	Records   recordService
	Linking   linkingService
	Discovery discoveryService
}

type Options struct {
	Port         string
	HealthChecks []HealthCheck
	// Registry enables request metrics and the /metrics endpoint when non-nil.
	Registry *prometheus.Registry
	Clock    clockwork.Clock
	// Zero values fall back to DefaultAPIRateLimit and DefaultUpstreamRateLimit.
	APIRateLimit      RateLimit
	UpstreamRateLimit RateLimit
}

type Server struct {
	echo *echo.Echo
	port string

	twitch    twitchService
	records   recordService
	linking   linkingService
	discovery discoveryService

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time

	apiLimit      echo.MiddlewareFunc
	upstreamLimit echo.MiddlewareFunc

	// background work (device-code polling) outlives the request that started it
	baseCtx    context.Context
	cancelBase context.CancelFunc
	background sync.WaitGroup
}

func NewServer(services Services, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.APIRateLimit == (RateLimit{}) {
		opts.APIRateLimit = DefaultAPIRateLimit
	}
	if opts.UpstreamRateLimit == (RateLimit{}) {
		opts.UpstreamRateLimit = DefaultUpstreamRateLimit
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	baseCtx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		echo:         e,
		port:         opts.Port,
		twitch:       services.Twitch,
		records:      services.Records,
		linking:      services.Linking,
		discovery:    services.Discovery,
		registry:     opts.Registry,
		healthChecks: opts.HealthChecks,
		clock:        opts.Clock,
		startTime:    opts.Clock.Now(),
		baseCtx:      baseCtx,
		cancelBase:   cancel,
	}

	var onDeny func(string)
	if opts.Registry != nil {
		srv.httpMetrics = metrics.NewHTTPMetrics(opts.Registry)
		onDeny = srv.httpMetrics.ObserveRateLimited
	}
	srv.apiLimit = newRateLimiter(scopeAPI, opts.APIRateLimit, onDeny)
	srv.upstreamLimit = newRateLimiter(scopeUpstream, opts.UpstreamRateLimit, onDeny)

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then cancels and waits for background polling.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)

	s.cancelBase()
	s.background.Wait()

	if err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// goBackground runs fn detached from the request, keeping its correlation id.
func (s *Server) goBackground(requestCtx context.Context, name string, fn func(ctx context.Context) error) {
	ctx := s.baseCtx
	if id, ok := correlation.ID(requestCtx); ok {
		ctx = correlation.WithID(ctx, id)
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if err := fn(ctx); err != nil {
			slog.WarnContext(ctx, "Background task ended with error", "task", name, "error", err)
			return
		}
		slog.InfoContext(ctx, "Background task finished", "task", name)
	}()
}
