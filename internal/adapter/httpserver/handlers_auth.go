package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	apperrors "github.com/whatasoda/twitch-clips-todo/internal/platform/errors"
)

const (
	pollTaskName       = "device-auth-poll"
	statusLongPollWait = 30 * time.Second
)

func (s *Server) registerAuthRoutes(g *echo.Group) {
	g.POST("/auth/start", s.handleAuthStart)
	g.POST("/auth/poll", s.handleAuthPoll)
	g.POST("/auth/cancel", s.handleAuthCancel)
	g.GET("/auth/status", s.handleAuthStatus)
	g.POST("/auth/logout", s.handleAuthLogout)
}

type deviceAuthResponse struct {
	UserCode        string    `json:"userCode"`
	VerificationURI string    `json:"verificationUri"`
	Interval        int       `json:"interval"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

func (s *Server) handleAuthStart(c echo.Context) error {
	auth, err := s.twitch.StartAuth(c.Request().Context())
	if err != nil {
		return mapError(err)
	}

	response := deviceAuthResponse{
		UserCode:        auth.UserCode,
		VerificationURI: auth.VerificationURI,
		Interval:        auth.Interval,
		ExpiresAt:       auth.ExpiresAt,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleAuthPoll starts polling the pending session in the background. Progress is observed
// through /auth/status.
func (s *Server) handleAuthPoll(c echo.Context) error {
	ctx := c.Request().Context()

	view, err := s.twitch.AuthStatus(ctx)
	if err != nil {
		return mapError(err)
	}
	if view.Pending == nil {
		return apperrors.ConflictError("no pending device authorization")
	}

	s.goBackground(ctx, pollTaskName, func(ctx context.Context) error {
		_, err := s.twitch.PollAuth(ctx)
		return err
	})

	if err := c.JSON(http.StatusAccepted, map[string]string{"status": "polling"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAuthCancel(c echo.Context) error {
	s.twitch.CancelAuth()
	return c.NoContent(http.StatusNoContent)
}

// handleAuthStatus reports the auth view. With wait=true and a session pending, it first
// blocks until the next poll attempt completes or the long-poll window closes.
func (s *Server) handleAuthStatus(c echo.Context) error {
	ctx := c.Request().Context()

	if c.QueryParam("wait") == "true" {
		view, err := s.twitch.AuthStatus(ctx)
		if err != nil {
			return mapError(err)
		}
		if view.Pending != nil {
			waitCtx, cancel := context.WithTimeout(ctx, statusLongPollWait)
			err := s.twitch.AwaitNextPoll(waitCtx)
			cancel()
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return mapError(err)
			}
		}
	}

	view, err := s.twitch.AuthStatus(ctx)
	if err != nil {
		return mapError(err)
	}
	if err := c.JSON(http.StatusOK, view); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAuthLogout(c echo.Context) error {
	if err := s.twitch.Logout(c.Request().Context()); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
