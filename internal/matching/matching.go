// Package matching decides whether bookmarks belong to a VOD and where in the VOD they land.
//
// Every function is pure: inputs are never mutated and "no match" is an empty result, not an error.
package matching

import (
	"time"

	"github.com/whatasoda/twitch-clips-todo/internal/domain"
)

// Link pairs a matched record with its offset into the VOD, in whole seconds.
type Link struct {
	Record domain.Record
	Offset int64
}

// MatchRecordToVod reports whether a live record of the same streamer was taken inside
// [StartedAt, StartedAt+Duration], both ends inclusive.
func MatchRecordToVod(record domain.Record, vod domain.VodInfo) bool {
	if record.SourceType != domain.SourceLive || record.StreamerID != vod.StreamerID {
		return false
	}
	return !record.RecordedAt.Before(vod.StartedAt) && !record.RecordedAt.After(vod.EndsAt())
}

// CalculateVodOffset returns the whole seconds between the VOD start and recordedAt.
// Records taken before the nominal start clamp to zero.
func CalculateVodOffset(recordedAt, vodStartedAt time.Time) int64 {
	delta := recordedAt.Sub(vodStartedAt)
	if delta <= 0 {
		return 0
	}
	return int64(delta / time.Second)
}

// MatchRecordToVodByStreamID matches a live record whose captured broadcast id equals the
// VOD's stream id exactly. There is no time-window fallback.
func MatchRecordToVodByStreamID(record domain.Record, vod domain.VodInfoWithStreamID) bool {
	if record.SourceType != domain.SourceLive || record.BroadcastID == nil || vod.StreamID == nil {
		return false
	}
	return record.StreamerID == vod.StreamerID && *record.BroadcastID == *vod.StreamID
}

// LinkRecordsToVod returns the time-window matches of records with their offsets.
func LinkRecordsToVod(records []domain.Record, vod domain.VodInfo) []Link {
	var links []Link
	for _, r := range records {
		if MatchRecordToVod(r, vod) {
			links = append(links, Link{Record: r, Offset: CalculateVodOffset(r.RecordedAt, vod.StartedAt)})
		}
	}
	return links
}

// LinkRecordsByStreamID returns the stream-id matches of records with their offsets.
func LinkRecordsByStreamID(records []domain.Record, vod domain.VodInfoWithStreamID) []Link {
	var links []Link
	for _, r := range records {
		if MatchRecordToVodByStreamID(r, vod) {
			links = append(links, Link{Record: r, Offset: CalculateVodOffset(r.RecordedAt, vod.StartedAt)})
		}
	}
	return links
}
