package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/matching"
)

// LinkVodRequest identifies a VOD and the broadcast it recorded.
type LinkVodRequest struct {
	VodID           string    `json:"vodId"`
	StreamerID      string    `json:"streamerId"`
	StreamID        string    `json:"streamId"`
	StartedAt       time.Time `json:"startedAt"`
	DurationSeconds int64     `json:"durationSeconds"`
}

// LinkingService attaches unlinked live bookmarks to the VOD of the broadcast they were taken on.
type LinkingService struct {
	records domain.RecordRepository
}

func NewLinkingService(records domain.RecordRepository) *LinkingService {
	return &LinkingService{records: records}
}

// LinkVod links every unlinked live record of req.StreamerID whose broadcast id equals
// req.StreamID and returns the updated records. Non-matching records are left alone. An empty
// req.StreamID links nothing.
func (s *LinkingService) LinkVod(ctx context.Context, req LinkVodRequest) ([]domain.Record, error) {
	if req.StreamID == "" {
		return []domain.Record{}, nil
	}

	records, err := s.records.ListByStreamer(ctx, req.StreamerID)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if !r.IsLinked() && r.SourceType == domain.SourceLive {
			candidates = append(candidates, r)
		}
	}

	streamID := req.StreamID
	vod := domain.VodInfoWithStreamID{
		VodInfo: domain.VodInfo{
			VodID:           req.VodID,
			StreamerID:      req.StreamerID,
			StartedAt:       req.StartedAt,
			DurationSeconds: req.DurationSeconds,
		},
		StreamID: &streamID,
	}

	links := matching.LinkRecordsByStreamID(candidates, vod)
	updated := make([]domain.Record, 0, len(links))
	for _, link := range links {
		r, err := s.records.LinkToVod(ctx, link.Record.ID, req.VodID, link.Offset)
		if err != nil {
			return updated, fmt.Errorf("failed to link record %s to vod %s: %w", link.Record.ID, req.VodID, err)
		}
		updated = append(updated, *r)
	}

	if len(updated) > 0 {
		slog.InfoContext(ctx, "Linked records to VOD", "streamer_id", req.StreamerID, "vod_id", req.VodID, "count", len(updated))
	}
	return updated, nil
}
