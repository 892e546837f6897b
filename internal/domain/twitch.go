package domain

import "time"

// StreamerInfo is a resolved Twitch channel.
type StreamerInfo struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"displayName"`
	ProfileImageURL string `json:"profileImageUrl"`
}

// StreamInfo is a snapshot of a channel's current live broadcast.
type StreamInfo struct {
	StreamID    string    `json:"streamId"`
	UserID      string    `json:"userId"`
	UserLogin   string    `json:"userLogin"`
	UserName    string    `json:"userName"`
	Title       string    `json:"title"`
	StartedAt   time.Time `json:"startedAt"`
	ViewerCount int       `json:"viewerCount"`
}

// VodInfo describes the live interval covered by a VOD.
type VodInfo struct {
	VodID           string    `json:"vodId"`
	StreamerID      string    `json:"streamerId"`
	StartedAt       time.Time `json:"startedAt"`
	DurationSeconds int64     `json:"durationSeconds"`
}

// EndsAt returns the end of the covered interval.
func (v VodInfo) EndsAt() time.Time {
	return v.StartedAt.Add(time.Duration(v.DurationSeconds) * time.Second)
}

// VodInfoWithStreamID additionally carries the broadcast identifier the VOD was recorded from.
// StreamID is nil for uploads and highlights.
type VodInfoWithStreamID struct {
	VodInfo
	StreamID *string `json:"streamId"`
}

// VodSummary is a VOD as listed for a channel.
type VodSummary struct {
	VodInfoWithStreamID
	UserID       string `json:"userId"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
}
