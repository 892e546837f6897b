package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
)

func ptr(s string) *string { return &s }

var vodStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func testVod() domain.VodInfo {
	return domain.VodInfo{VodID: "v1", StreamerID: "foo", StartedAt: vodStart, DurationSeconds: 7200}
}

func liveRecord(id string, recordedAt time.Time) domain.Record {
	return domain.Record{ID: id, StreamerID: "foo", SourceType: domain.SourceLive, RecordedAt: recordedAt}
}

func TestMatchRecordToVod(t *testing.T) {
	vod := testVod()

	tests := []struct {
		name   string
		record domain.Record
		want   bool
	}{
		{"inside window", liveRecord("a", vodStart.Add(time.Hour)), true},
		{"at start", liveRecord("b", vodStart), true},
		{"at end", liveRecord("c", vodStart.Add(2*time.Hour)), true},
		{"after end", liveRecord("d", time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)), false},
		{"before start", liveRecord("e", vodStart.Add(-time.Second)), false},
		{"other streamer", domain.Record{StreamerID: "bar", SourceType: domain.SourceLive, RecordedAt: vodStart}, false},
		{"vod source", domain.Record{StreamerID: "foo", SourceType: domain.SourceVod, RecordedAt: vodStart}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchRecordToVod(tt.record, vod))
		})
	}
}

func TestCalculateVodOffset(t *testing.T) {
	assert.Equal(t, int64(3600), CalculateVodOffset(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), vodStart))
	assert.Equal(t, int64(1), CalculateVodOffset(vodStart.Add(1999*time.Millisecond), vodStart), "floors partial seconds")
	assert.Equal(t, int64(0), CalculateVodOffset(vodStart.Add(-time.Minute), vodStart), "clamps to zero")
}

func TestMatchRecordToVodByStreamID(t *testing.T) {
	vod := domain.VodInfoWithStreamID{VodInfo: testVod(), StreamID: ptr("X")}

	withBroadcast := func(streamer string, broadcast *string) domain.Record {
		r := liveRecord("r", vodStart)
		r.StreamerID = streamer
		r.BroadcastID = broadcast
		return r
	}

	assert.True(t, MatchRecordToVodByStreamID(withBroadcast("foo", ptr("X")), vod))
	assert.False(t, MatchRecordToVodByStreamID(withBroadcast("foo", ptr("x")), vod), "case-sensitive")
	assert.False(t, MatchRecordToVodByStreamID(withBroadcast("Foo", ptr("X")), vod), "streamer must match")
	assert.False(t, MatchRecordToVodByStreamID(withBroadcast("foo", nil), vod))

	farAway := withBroadcast("foo", ptr("X"))
	farAway.RecordedAt = vodStart.Add(48 * time.Hour)
	assert.True(t, MatchRecordToVodByStreamID(farAway, vod), "no time-window check")

	assert.False(t, MatchRecordToVodByStreamID(withBroadcast("foo", ptr("X")), domain.VodInfoWithStreamID{VodInfo: testVod()}))
}

func TestLinkRecordsToVod(t *testing.T) {
	records := []domain.Record{
		liveRecord("in", time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)),
		liveRecord("out", time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)),
	}

	links := LinkRecordsToVod(records, testVod())
	require.Len(t, links, 1)
	assert.Equal(t, "in", links[0].Record.ID)
	assert.Equal(t, int64(3600), links[0].Offset)

	assert.Equal(t, domain.SourceLive, records[0].SourceType, "input left untouched")
	assert.Empty(t, LinkRecordsToVod(nil, testVod()))
}

func TestLinkRecordsByStreamID(t *testing.T) {
	a := liveRecord("a", vodStart.Add(90*time.Second))
	a.BroadcastID = ptr("s1")
	b := liveRecord("b", vodStart.Add(time.Minute))
	b.BroadcastID = ptr("s2")

	vod := domain.VodInfoWithStreamID{VodInfo: testVod(), StreamID: ptr("s1")}
	links := LinkRecordsByStreamID([]domain.Record{a, b}, vod)

	require.Len(t, links, 1)
	assert.Equal(t, "a", links[0].Record.ID)
	assert.Equal(t, int64(90), links[0].Offset)
	assert.Nil(t, a.VodID)
}
