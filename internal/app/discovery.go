package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/correlation"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/logging"
	"golang.org/x/sync/singleflight"
)

const (
	DiscoveryJobName        = "vod-discovery"
	DiscoveryStartupJobName = "vod-discovery-startup"

	DefaultDiscoveryInterval     = 30 * time.Minute
	DefaultDiscoveryStartupDelay = time.Minute

	discoveryVodLimit = 20

	ReasonStreamerNotFound = "Streamer not found"
	ReasonNoVodsAvailable  = "No VODs available"
)

type RecordLister interface {
	List(ctx context.Context) ([]domain.Record, error)
}

type StreamerDirectory interface {
	GetStreamerInfo(ctx context.Context, login string) (*domain.StreamerInfo, error)
	GetRecentVods(ctx context.Context, userID string, limit int) ([]domain.VodSummary, error)
}

type VodLinker interface {
	LinkVod(ctx context.Context, req LinkVodRequest) ([]domain.Record, error)
}

// DiscoveryObserver is notified after each discovery pass.
type DiscoveryObserver interface {
	ObserveDiscovery(duration time.Duration, results []DiscoveryResult)
}

type noopDiscoveryObserver struct{}

func (noopDiscoveryObserver) ObserveDiscovery(time.Duration, []DiscoveryResult) {}

// DiscoveryResult is the outcome for one streamer. Error is empty on success.
type DiscoveryResult struct {
	StreamerID  string `json:"streamerId"`
	LinkedCount int    `json:"linkedCount"`
	Error       string `json:"error,omitempty"`
}

type DiscoveryConfig struct {
	Interval     time.Duration
	StartupDelay time.Duration
	Clock        clockwork.Clock
	Observer     DiscoveryObserver
}

// DiscoveryService periodically links unlinked live bookmarks to the VODs their broadcasts
// produced. A failure for one streamer never stops the others.
type DiscoveryService struct {
	records   RecordLister
	streamers StreamerDirectory
	linker    VodLinker
	scheduler domain.Scheduler

	interval     time.Duration
	startupDelay time.Duration
	clock        clockwork.Clock
	observer     DiscoveryObserver

	runGroup singleflight.Group
}

func NewDiscoveryService(records RecordLister, streamers StreamerDirectory, linker VodLinker, scheduler domain.Scheduler, cfg DiscoveryConfig) *DiscoveryService {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDiscoveryInterval
	}
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = DefaultDiscoveryStartupDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopDiscoveryObserver{}
	}

	return &DiscoveryService{
		records:      records,
		streamers:    streamers,
		linker:       linker,
		scheduler:    scheduler,
		interval:     cfg.Interval,
		startupDelay: cfg.StartupDelay,
		clock:        cfg.Clock,
		observer:     cfg.Observer,
	}
}

// Initialize registers the periodic discovery job and a one-shot pass shortly after startup.
func (s *DiscoveryService) Initialize(ctx context.Context) {
	s.scheduler.Every(DiscoveryJobName, s.interval, s.runJob)
	s.scheduler.Once(DiscoveryStartupJobName, s.startupDelay, s.runJob)
	slog.InfoContext(ctx, "VOD discovery scheduled", "interval", s.interval, "startup_delay", s.startupDelay)
}

func (s *DiscoveryService) runJob(ctx context.Context) {
	if _, err := s.RunDiscovery(ctx); err != nil {
		slog.ErrorContext(ctx, "VOD discovery failed", "error", err)
	}
}

// RunDiscovery runs one pass over every streamer with unlinked live bookmarks that carry a
// broadcast id. A call made while a pass is running joins that pass. The pass itself is detached
// from cancellation so that a caller giving up does not fail the callers that joined it.
func (s *DiscoveryService) RunDiscovery(ctx context.Context) ([]DiscoveryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	ch := s.runGroup.DoChan("run", func() (any, error) {
		return s.runDiscovery(runCtx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Shared {
		slog.DebugContext(ctx, "Joined in-progress VOD discovery")
	}
	if res.Err != nil {
		return nil, res.Err
	}

	results := res.Val.([]DiscoveryResult)
	return append([]DiscoveryResult(nil), results...), nil
}

func (s *DiscoveryService) runDiscovery(ctx context.Context) ([]DiscoveryResult, error) {
	start := s.clock.Now()

	records, err := s.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	var order []string
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.SourceType != domain.SourceLive || r.IsLinked() || r.BroadcastID == nil {
			continue
		}
		if _, ok := seen[r.StreamerID]; !ok {
			seen[r.StreamerID] = struct{}{}
			order = append(order, r.StreamerID)
		}
	}

	results := make([]DiscoveryResult, 0, len(order))
	for _, streamerID := range order {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		streamerCtx := correlation.WithID(ctx, correlation.NewID())
		results = append(results, s.DiscoverAndLinkForStreamer(streamerCtx, streamerID))
	}

	linked := 0
	for _, r := range results {
		linked += r.LinkedCount
	}
	duration := s.clock.Since(start)
	s.observer.ObserveDiscovery(duration, results)
	slog.InfoContext(ctx, "VOD discovery finished", "streamers", len(results), "linked", linked, "duration", duration)

	return results, nil
}

// DiscoverAndLinkForStreamer links streamerID's bookmarks against its recent archives. Errors
// and panics are reported on the result rather than returned.
func (s *DiscoveryService) DiscoverAndLinkForStreamer(ctx context.Context, streamerID string) (result DiscoveryResult) {
	result.StreamerID = streamerID
	logger := logging.WithStreamer(streamerID)

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprint(r)
			logger.ErrorContext(ctx, "Panic during VOD discovery", "panic", r)
		}
	}()

	info, err := s.streamers.GetStreamerInfo(ctx, streamerID)
	if err != nil {
		result.Error = err.Error()
		logger.WarnContext(ctx, "Streamer lookup failed", "error", err)
		return result
	}
	if info == nil {
		result.Error = ReasonStreamerNotFound
		return result
	}

	vods, err := s.streamers.GetRecentVods(ctx, info.ID, discoveryVodLimit)
	if err != nil {
		result.Error = err.Error()
		logger.WarnContext(ctx, "Recent VOD lookup failed", "error", err)
		return result
	}
	if len(vods) == 0 {
		result.Error = ReasonNoVodsAvailable
		return result
	}

	for _, vod := range vods {
		if vod.StreamID == nil {
			continue
		}

		linked, err := s.linker.LinkVod(ctx, LinkVodRequest{
			VodID:           vod.VodID,
			StreamerID:      streamerID,
			StreamID:        *vod.StreamID,
			StartedAt:       vod.StartedAt,
			DurationSeconds: vod.DurationSeconds,
		})
		result.LinkedCount += len(linked)
		if err != nil {
			result.Error = err.Error()
			logger.WarnContext(ctx, "Linking failed", "vod_id", vod.VodID, "error", err)
			return result
		}
	}

	logger.DebugContext(ctx, "VOD discovery for streamer done", "linked", result.LinkedCount)
	return result
}
