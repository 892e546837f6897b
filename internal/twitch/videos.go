package twitch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nicklaw5/helix/v2"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
)

const (
	VideoTypeAll       = "all"
	VideoTypeArchive   = "archive"
	VideoTypeHighlight = "highlight"
	VideoTypeUpload    = "upload"
)

var errMissingVideoFilter = errors.New("get videos: ids or user id is required")

// Video is a Helix video with its timestamps parsed and a missing stream id kept as nil.
type Video struct {
	ID           string
	StreamID     *string
	UserID       string
	UserLogin    string
	UserName     string
	Title        string
	Description  string
	CreatedAt    time.Time
	PublishedAt  time.Time
	URL          string
	ThumbnailURL string
	Viewable     string
	ViewCount    int
	Language     string
	Type         string
	Duration     string
}

func videoFromHelix(v helix.Video) (Video, error) {
	createdAt, err := parseHelixTime(v.CreatedAt)
	if err != nil {
		return Video{}, fmt.Errorf("video %s: %w", v.ID, err)
	}
	publishedAt, err := parseHelixTime(v.PublishedAt)
	if err != nil {
		return Video{}, fmt.Errorf("video %s: %w", v.ID, err)
	}

	var streamID *string
	if v.StreamID != "" {
		streamID = &v.StreamID
	}

	return Video{
		ID:           v.ID,
		StreamID:     streamID,
		UserID:       v.UserID,
		UserLogin:    v.UserLogin,
		UserName:     v.UserName,
		Title:        v.Title,
		Description:  v.Description,
		CreatedAt:    createdAt,
		PublishedAt:  publishedAt,
		URL:          v.URL,
		ThumbnailURL: v.ThumbnailURL,
		Viewable:     v.Viewable,
		ViewCount:    v.ViewCount,
		Language:     v.Language,
		Type:         v.Type,
		Duration:     v.Duration,
	}, nil
}

func parseHelixTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// DurationSeconds parses Duration ("1h2m3s").
func (v Video) DurationSeconds() (int64, error) {
	return ParseVideoDuration(v.Duration)
}

// Summary converts v to the domain shape. CreatedAt is when the broadcast started for archives.
func (v Video) Summary() (domain.VodSummary, error) {
	seconds, err := v.DurationSeconds()
	if err != nil {
		return domain.VodSummary{}, err
	}

	streamID := v.StreamID
	if streamID != nil && *streamID == "" {
		streamID = nil
	}

	return domain.VodSummary{
		VodInfoWithStreamID: domain.VodInfoWithStreamID{
			VodInfo: domain.VodInfo{
				VodID:           v.ID,
				StreamerID:      v.UserLogin,
				StartedAt:       v.CreatedAt,
				DurationSeconds: seconds,
			},
			StreamID: streamID,
		},
		UserID:       v.UserID,
		Title:        v.Title,
		URL:          v.URL,
		ThumbnailURL: v.ThumbnailURL,
	}, nil
}

type VideosParams = helix.VideosParams

func (c *Client) GetVideos(ctx context.Context, p VideosParams) (*Page[Video], error) {
	if len(p.IDs) == 0 && p.UserID == "" {
		return nil, errMissingVideoFilter
	}
	if len(p.IDs) > MaxIDsPerRequest {
		return nil, fmt.Errorf("get videos: %w", ErrTooManyIDs)
	}

	var resp *helix.VideosResponse
	err := c.call(ctx, "/videos", func(hc *helix.Client) (*helix.ResponseCommon, error) {
		var err error
		if resp, err = hc.GetVideos(&p); err != nil {
			return nil, err
		}
		return &resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(resp.Data.Videos))
	for _, v := range resp.Data.Videos {
		video, err := videoFromHelix(v)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return &Page[Video]{Data: videos, Pagination: resp.Data.Pagination}, nil
}

// ParseVideoDuration converts a Helix duration such as "1h2m3s" or "45s" to whole seconds.
func ParseVideoDuration(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid video duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid video duration %q: negative", s)
	}
	return int64(d / time.Second), nil
}
