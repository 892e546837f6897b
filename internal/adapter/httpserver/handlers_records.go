package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/whatasoda/twitch-clips-todo/internal/app"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	apperrors "github.com/whatasoda/twitch-clips-todo/internal/platform/errors"
)

const maxMemoLength = 1000

func (s *Server) registerRecordRoutes(g *echo.Group) {
	g.GET("/records", s.handleListRecords)
	g.POST("/records", s.handleCreateRecord)
	g.DELETE("/records/completed", s.handleDeleteCompleted)
	g.GET("/records/:id", s.handleGetRecord)
	g.DELETE("/records/:id", s.handleDeleteRecord)
	g.PATCH("/records/:id/memo", s.handleUpdateMemo)
	g.POST("/records/:id/complete", s.handleCompleteRecord)
	g.DELETE("/records/:id/complete", s.handleUncompleteRecord)

	g.POST("/link-vod", s.handleLinkVod)
	g.POST("/discovery/run", s.handleRunDiscovery, s.upstreamLimit)
}

type createRecordRequest struct {
	StreamerID       string            `json:"streamerId"`
	StreamerName     string            `json:"streamerName"`
	TimestampSeconds int64             `json:"timestampSeconds"`
	Memo             string            `json:"memo"`
	SourceType       domain.SourceType `json:"sourceType"`
	VodID            *string           `json:"vodId"`
	BroadcastID      *string           `json:"broadcastId"`
	RecordedAt       *time.Time        `json:"recordedAt"`
}

func (r createRecordRequest) validate() *apperrors.Error {
	switch {
	case strings.TrimSpace(r.StreamerID) == "":
		return apperrors.ValidationError("streamerId is required")
	case r.SourceType != domain.SourceLive && r.SourceType != domain.SourceVod:
		return apperrors.ValidationError("sourceType must be live or vod").WithField("source_type", string(r.SourceType))
	case r.TimestampSeconds < 0:
		return apperrors.ValidationError("timestampSeconds must not be negative")
	case r.SourceType == domain.SourceVod && (r.VodID == nil || *r.VodID == ""):
		return apperrors.ValidationError("vodId is required for vod records")
	case r.SourceType == domain.SourceLive && r.VodID != nil:
		return apperrors.ValidationError("vodId is only allowed on vod records")
	case len(r.Memo) > maxMemoLength:
		return apperrors.ValidationError("memo is too long")
	}
	return nil
}

func (r createRecordRequest) input() domain.CreateRecordInput {
	in := domain.CreateRecordInput{
		StreamerID:       strings.TrimSpace(r.StreamerID),
		StreamerName:     r.StreamerName,
		TimestampSeconds: r.TimestampSeconds,
		Memo:             r.Memo,
		SourceType:       r.SourceType,
		VodID:            r.VodID,
		BroadcastID:      r.BroadcastID,
	}
	if r.RecordedAt != nil {
		in.RecordedAt = *r.RecordedAt
	}
	return in
}

func (s *Server) handleListRecords(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		records []domain.Record
		err     error
	)
	if streamer := c.QueryParam("streamer"); streamer != "" {
		records, err = s.records.ListByStreamer(ctx, streamer)
	} else {
		records, err = s.records.List(ctx)
	}
	if err != nil {
		return mapError(err)
	}

	if err := c.JSON(http.StatusOK, records); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCreateRecord(c echo.Context) error {
	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	if verr := req.validate(); verr != nil {
		return verr
	}

	record, err := s.records.Create(c.Request().Context(), req.input())
	if err != nil {
		return mapError(err)
	}

	if err := c.JSON(http.StatusCreated, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetRecord(c echo.Context) error {
	record, err := s.records.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return s.sendRecord(c, record)
}

func (s *Server) handleDeleteRecord(c echo.Context) error {
	if err := s.records.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type updateMemoRequest struct {
	Memo *string `json:"memo"`
}

func (s *Server) handleUpdateMemo(c echo.Context) error {
	var req updateMemoRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	if req.Memo == nil {
		return apperrors.ValidationError("memo is required")
	}
	if len(*req.Memo) > maxMemoLength {
		return apperrors.ValidationError("memo is too long")
	}

	record, err := s.records.UpdateMemo(c.Request().Context(), c.Param("id"), *req.Memo)
	if err != nil {
		return mapError(err)
	}
	return s.sendRecord(c, record)
}

func (s *Server) handleCompleteRecord(c echo.Context) error {
	record, err := s.records.Complete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return s.sendRecord(c, record)
}

func (s *Server) handleUncompleteRecord(c echo.Context) error {
	record, err := s.records.Uncomplete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return s.sendRecord(c, record)
}

// handleDeleteCompleted purges records completed more than olderThan ago (default 30 days).
func (s *Server) handleDeleteCompleted(c echo.Context) error {
	olderThan := 30 * 24 * time.Hour
	if raw := c.QueryParam("olderThan"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return apperrors.ValidationError("olderThan must be a non-negative duration").WithField("older_than", raw)
		}
		olderThan = d
	}

	removed, err := s.records.DeleteCompleted(c.Request().Context(), olderThan)
	if err != nil {
		return mapError(err)
	}

	if err := c.JSON(http.StatusOK, map[string]int{"removed": removed}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) sendRecord(c echo.Context, record *domain.Record) error {
	if err := c.JSON(http.StatusOK, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type linkVodResponse struct {
	Linked []domain.Record `json:"linked"`
	Count  int             `json:"count"`
}

func (s *Server) handleLinkVod(c echo.Context) error {
	var req app.LinkVodRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	switch {
	case req.VodID == "":
		return apperrors.ValidationError("vodId is required")
	case req.StreamerID == "":
		return apperrors.ValidationError("streamerId is required")
	case req.StreamID == "":
		return apperrors.ValidationError("streamId is required")
	case req.DurationSeconds < 0:
		return apperrors.ValidationError("durationSeconds must not be negative")
	}

	linked, err := s.linking.LinkVod(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}

	if err := c.JSON(http.StatusOK, linkVodResponse{Linked: linked, Count: len(linked)}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRunDiscovery(c echo.Context) error {
	results, err := s.discovery.RunDiscovery(c.Request().Context())
	if err != nil {
		return mapError(err)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"results": results}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
