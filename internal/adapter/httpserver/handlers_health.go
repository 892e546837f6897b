package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

const (
	statusReady     = "ready"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthCheck is a named dependency check, such as the storage backend's Ping.
type HealthCheck struct {
	Name string
	// Backend identifies what was checked, e.g. "redis" or "postgres".
	Backend string
	Check   func(ctx context.Context) error
	// Optional failures degrade readiness without failing it.
	Optional bool
}

type checkResult struct {
	Name      string `json:"name"`
	Backend   string `json:"backend,omitempty"`
	Healthy   bool   `json:"healthy"`
	Optional  bool   `json:"optional,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status      string        `json:"status"`
	FailedCheck string        `json:"failed_check,omitempty"`
	Checks      []checkResult `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleStartup only waits for the required checks; optional ones never hold startup back.
func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	var required []HealthCheck
	for _, hc := range s.healthChecks {
		if !hc.Optional {
			required = append(required, hc)
		}
	}
	return s.writeHealth(c, s.runHealthChecks(ctx, required))
}

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Since(s.startTime).Seconds()

	response := map[string]any{
		"status": "ok",
		"uptime": uptime,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}

	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	return s.writeHealth(c, s.runHealthChecks(ctx, s.healthChecks))
}

// runHealthChecks runs every check concurrently and reports each outcome in declaration order.
func (s *Server) runHealthChecks(ctx context.Context, checks []HealthCheck) healthResponse {
	results := make([]checkResult, len(checks))

	var g errgroup.Group
	for i, hc := range checks {
		i, hc := i, hc
		g.Go(func() error {
			start := s.clock.Now()
			err := hc.Check(ctx)
			results[i] = checkResult{
				Name:      hc.Name,
				Backend:   hc.Backend,
				Healthy:   err == nil,
				Optional:  hc.Optional,
				LatencyMS: s.clock.Since(start).Milliseconds(),
			}
			if err != nil {
				results[i].Error = err.Error()
				slog.WarnContext(ctx, "Health check failed", "check", hc.Name, "backend", hc.Backend, "optional", hc.Optional, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{Status: statusReady, Checks: results}
	for _, r := range results {
		switch {
		case r.Healthy:
		case !r.Optional:
			resp.Status = statusUnhealthy
			if resp.FailedCheck == "" {
				resp.FailedCheck = r.Name
			}
		case resp.Status == statusReady:
			resp.Status = statusDegraded
		}
	}
	return resp
}

func (s *Server) writeHealth(c echo.Context, resp healthResponse) error {
	code := http.StatusOK
	if resp.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	if err := c.JSON(code, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
