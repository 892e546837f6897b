package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	apperrors "github.com/whatasoda/twitch-clips-todo/internal/platform/errors"
	"github.com/whatasoda/twitch-clips-todo/internal/twitch"
)

const (
	defaultVodLimit = 20
	maxStreamLogins = 500
)

func (s *Server) registerTwitchRoutes(g *echo.Group) {
	g.GET("/streams", s.handleGetStreams, s.upstreamLimit)
	g.GET("/streamers/:login", s.handleGetStreamer, s.upstreamLimit)
	g.GET("/streamers/:login/stream", s.handleGetCurrentStream, s.upstreamLimit)
	g.GET("/users/:id/vods", s.handleGetRecentVods, s.upstreamLimit)
	g.GET("/vods/:id", s.handleGetVod, s.upstreamLimit)
}

func (s *Server) handleGetStreamer(c echo.Context) error {
	login := c.Param("login")

	info, err := s.twitch.GetStreamerInfo(c.Request().Context(), login)
	if err != nil {
		return mapError(err)
	}
	if info == nil {
		return apperrors.NotFoundError("streamer not found").WithField("login", login)
	}

	if err := c.JSON(http.StatusOK, info); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type currentStreamResponse struct {
	Live   bool               `json:"live"`
	Stream *domain.StreamInfo `json:"stream,omitempty"`
}

func (s *Server) handleGetCurrentStream(c echo.Context) error {
	force := c.QueryParam("force") == "true"

	stream, err := s.twitch.GetCurrentStream(c.Request().Context(), c.Param("login"), force)
	if err != nil {
		return mapError(err)
	}

	if err := c.JSON(http.StatusOK, currentStreamResponse{Live: stream != nil, Stream: stream}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleGetStreams reports which of the repeated ?login= channels are live.
func (s *Server) handleGetStreams(c echo.Context) error {
	var logins []string
	for _, login := range c.QueryParams()["login"] {
		if login = strings.TrimSpace(login); login != "" {
			logins = append(logins, login)
		}
	}
	if len(logins) == 0 {
		return apperrors.ValidationError("at least one login is required")
	}
	if len(logins) > maxStreamLogins {
		return apperrors.ValidationError("too many logins").WithField("max", maxStreamLogins)
	}

	streams, err := s.twitch.GetStreamsByLogins(c.Request().Context(), logins)
	if err != nil {
		return mapError(err)
	}
	if streams == nil {
		streams = []domain.StreamInfo{}
	}

	if err := c.JSON(http.StatusOK, streams); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetRecentVods(c echo.Context) error {
	limit := defaultVodLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > twitch.MaxIDsPerRequest {
			return apperrors.ValidationError("limit must be between 1 and 100").WithField("limit", raw)
		}
		limit = n
	}

	vods, err := s.twitch.GetRecentVods(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return mapError(err)
	}
	if vods == nil {
		vods = []domain.VodSummary{}
	}

	if err := c.JSON(http.StatusOK, vods); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetVod(c echo.Context) error {
	vodID := c.Param("id")

	vod, err := s.twitch.GetVodMetadata(c.Request().Context(), vodID)
	if err != nil {
		return mapError(err)
	}
	if vod == nil {
		return apperrors.NotFoundError("vod not found").WithField("vod_id", vodID)
	}

	if err := c.JSON(http.StatusOK, vod); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
