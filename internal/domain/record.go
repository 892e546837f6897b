package domain

import (
	"context"
	"time"
)

// SourceType tells whether a bookmark was taken on a live broadcast or on a VOD.
type SourceType string

const (
	SourceLive SourceType = "live"
	SourceVod  SourceType = "vod"
)

// Record is a user-captured moment within a broadcast.
//
// TimestampSeconds is the offset into the VOD once linked; for live records it is the
// offset into the broadcast as observed by the client when the bookmark was taken.
type Record struct {
	ID               string     `json:"id"`
	StreamerID       string     `json:"streamerId"`
	StreamerName     string     `json:"streamerName"`
	TimestampSeconds int64      `json:"timestampSeconds"`
	Memo             string     `json:"memo"`
	SourceType       SourceType `json:"sourceType"`
	VodID            *string    `json:"vodId"`
	BroadcastID      *string    `json:"broadcastId"`
	RecordedAt       time.Time  `json:"recordedAt"`
	CompletedAt      *time.Time `json:"completedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// IsLinked reports whether the record has been resolved against a VOD.
func (r *Record) IsLinked() bool {
	return r.VodID != nil
}

// IsCompleted reports whether a clip has been made for this record.
func (r *Record) IsCompleted() bool {
	return r.CompletedAt != nil
}

// Validate checks the record-level invariants.
func (r *Record) Validate() error {
	if r.StreamerID == "" {
		return ErrInvalidRecord
	}
	if r.SourceType != SourceLive && r.SourceType != SourceVod {
		return ErrInvalidRecord
	}
	if r.VodID != nil && r.SourceType != SourceVod {
		return ErrInvalidRecord
	}
	if r.TimestampSeconds < 0 {
		return ErrInvalidRecord
	}
	return nil
}

// CreateRecordInput carries an already-validated create-bookmark request.
type CreateRecordInput struct {
	StreamerID       string
	StreamerName     string
	TimestampSeconds int64
	Memo             string
	SourceType       SourceType
	VodID            *string
	BroadcastID      *string
	RecordedAt       time.Time
}

// RecordRepository is the CRUD surface over the local bookmark store.
type RecordRepository interface {
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	ListByStreamer(ctx context.Context, streamerID string) ([]Record, error)
	Create(ctx context.Context, in CreateRecordInput) (*Record, error)
	UpdateMemo(ctx context.Context, id, memo string) (*Record, error)
	Complete(ctx context.Context, id string) (*Record, error)
	Uncomplete(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	LinkToVod(ctx context.Context, id, vodID string, offsetSeconds int64) (*Record, error)
}
