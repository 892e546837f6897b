package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/whatasoda/twitch-clips-todo/internal/cache"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/twitch"
	"golang.org/x/sync/singleflight"
)

const (
	streamerTTL   = 24 * time.Hour
	streamTTL     = 60 * time.Second
	vodTTL        = time.Hour
	recentVodsTTL = 5 * time.Minute

	defaultRecentVods = 20
)

var ErrNoPendingAuth = errors.New("no pending device authorization")

// TwitchAuth is the device-flow and token custody surface used by TwitchService.
type TwitchAuth interface {
	StartDeviceAuth(ctx context.Context) (*domain.DeviceAuthorization, error)
	PollForToken(ctx context.Context, auth *domain.DeviceAuthorization) (*domain.Token, error)
	CancelPolling()
	AwaitNextPoll(ctx context.Context) error
	Pending() *domain.DeviceAuthorization
	Status(ctx context.Context) (*domain.AuthStatus, error)
	StoredToken(ctx context.Context) (*domain.Token, error)
	ClearToken(ctx context.Context) error
	RevokeToken(ctx context.Context, accessToken string) error
}

// TwitchAPI is the typed Helix surface used by TwitchService.
type TwitchAPI interface {
	GetUsers(ctx context.Context, p twitch.UsersParams) ([]twitch.User, error)
	GetStreams(ctx context.Context, p twitch.StreamsParams) (*twitch.Page[twitch.Stream], error)
	GetVideos(ctx context.Context, p twitch.VideosParams) (*twitch.Page[twitch.Video], error)
	IsAuthenticated(ctx context.Context) bool
}

// TwitchCaches holds one cache per cached lookup.
type TwitchCaches struct {
	Streamers cache.Cache[domain.StreamerInfo]
	Streams   cache.Cache[*domain.StreamInfo]
	Vods      cache.Cache[domain.VodSummary]
	VodLists  cache.Cache[[]domain.VodSummary]
}

// AuthView is the combined authentication state shown to clients.
type AuthView struct {
	Authenticated bool                        `json:"authenticated"`
	Pending       *domain.DeviceAuthorization `json:"pending,omitempty"`
	Status        *domain.AuthStatus          `json:"status,omitempty"`
}

// TwitchService maps Helix responses to domain values and keeps them cached. Concurrent misses
// for the same key share one upstream request.
type TwitchService struct {
	auth   TwitchAuth
	api    TwitchAPI
	caches TwitchCaches
	group  singleflight.Group
}

func NewTwitchService(auth TwitchAuth, api TwitchAPI, caches TwitchCaches) *TwitchService {
	return &TwitchService{auth: auth, api: api, caches: caches}
}

// GetStreamerInfo resolves a channel login. Unknown logins return nil without error.
func (s *TwitchService) GetStreamerInfo(ctx context.Context, login string) (*domain.StreamerInfo, error) {
	info, found, err := loadThrough(ctx, &s.group, s.caches.Streamers, "streamer:"+login, streamerTTL,
		func(ctx context.Context) (domain.StreamerInfo, bool, error) {
			users, err := s.api.GetUsers(ctx, twitch.UsersParams{Logins: []string{login}})
			if err != nil || len(users) == 0 {
				return domain.StreamerInfo{}, false, err
			}
			return toStreamerInfo(users[0]), true, nil
		})
	if err != nil || !found {
		return nil, err
	}
	return &info, nil
}

// GetCurrentStream returns the live stream of login, or nil when offline. Offline answers are
// cached too. force drops the cached answer first.
func (s *TwitchService) GetCurrentStream(ctx context.Context, login string, force bool) (*domain.StreamInfo, error) {
	key := "stream:" + login
	if force {
		if err := s.caches.Streams.Delete(ctx, key); err != nil {
			slog.WarnContext(ctx, "Failed to invalidate stream cache", "key", key, "error", err)
		}
	}

	stream, _, err := loadThrough(ctx, &s.group, s.caches.Streams, key, streamTTL,
		func(ctx context.Context) (*domain.StreamInfo, bool, error) {
			page, err := s.api.GetStreams(ctx, twitch.StreamsParams{UserLogins: []string{login}})
			if err != nil {
				return nil, false, err
			}
			if len(page.Data) == 0 {
				return nil, true, nil
			}
			info := toStreamInfo(page.Data[0])
			return &info, true, nil
		})
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, nil
	}
	copied := *stream
	return &copied, nil
}

// GetStreamsByLogins returns the live streams among logins, querying in batches of 100.
// Always goes upstream.
func (s *TwitchService) GetStreamsByLogins(ctx context.Context, logins []string) ([]domain.StreamInfo, error) {
	var streams []domain.StreamInfo
	for start := 0; start < len(logins); start += twitch.MaxIDsPerRequest {
		end := min(start+twitch.MaxIDsPerRequest, len(logins))

		page, err := s.api.GetStreams(ctx, twitch.StreamsParams{
			UserLogins: logins[start:end],
			First:      twitch.MaxIDsPerRequest,
		})
		if err != nil {
			return nil, err
		}
		for _, st := range page.Data {
			streams = append(streams, toStreamInfo(st))
		}
	}
	return streams, nil
}

// GetVodMetadata looks a VOD up by id. Unknown ids return nil without error.
func (s *TwitchService) GetVodMetadata(ctx context.Context, vodID string) (*domain.VodSummary, error) {
	vod, found, err := loadThrough(ctx, &s.group, s.caches.Vods, "vod:"+vodID, vodTTL,
		func(ctx context.Context) (domain.VodSummary, bool, error) {
			page, err := s.api.GetVideos(ctx, twitch.VideosParams{IDs: []string{vodID}})
			if err != nil {
				var apiErr *twitch.APIError
				if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
					return domain.VodSummary{}, false, nil
				}
				return domain.VodSummary{}, false, err
			}
			if len(page.Data) == 0 {
				return domain.VodSummary{}, false, nil
			}
			summary, err := page.Data[0].Summary()
			if err != nil {
				return domain.VodSummary{}, false, err
			}
			return summary, true, nil
		})
	if err != nil || !found {
		return nil, err
	}
	return &vod, nil
}

// GetRecentVods lists up to limit archived broadcasts of userID, newest first.
func (s *TwitchService) GetRecentVods(ctx context.Context, userID string, limit int) ([]domain.VodSummary, error) {
	if limit <= 0 {
		limit = defaultRecentVods
	}
	limit = min(limit, twitch.MaxIDsPerRequest)

	key := "vods:" + userID + ":" + strconv.Itoa(limit)
	vods, _, err := loadThrough(ctx, &s.group, s.caches.VodLists, key, recentVodsTTL,
		func(ctx context.Context) ([]domain.VodSummary, bool, error) {
			page, err := s.api.GetVideos(ctx, twitch.VideosParams{UserID: userID, Type: twitch.VideoTypeArchive, First: limit})
			if err != nil {
				return nil, false, err
			}

			summaries := make([]domain.VodSummary, 0, len(page.Data))
			for _, v := range page.Data {
				summary, err := v.Summary()
				if err != nil {
					slog.WarnContext(ctx, "Skipping VOD with unparseable duration", "vod_id", v.ID, "error", err)
					continue
				}
				summaries = append(summaries, summary)
			}
			return summaries, true, nil
		})
	if err != nil {
		return nil, err
	}
	return append([]domain.VodSummary(nil), vods...), nil
}

func (s *TwitchService) StartAuth(ctx context.Context) (*domain.DeviceAuthorization, error) {
	return s.auth.StartDeviceAuth(ctx)
}

// PollAuth polls the pending device authorization until it reaches a terminal state.
func (s *TwitchService) PollAuth(ctx context.Context) (*domain.Token, error) {
	pending := s.auth.Pending()
	if pending == nil {
		return nil, ErrNoPendingAuth
	}
	return s.auth.PollForToken(ctx, pending)
}

func (s *TwitchService) CancelAuth() {
	s.auth.CancelPolling()
}

func (s *TwitchService) AwaitNextPoll(ctx context.Context) error {
	return s.auth.AwaitNextPoll(ctx)
}

func (s *TwitchService) AuthStatus(ctx context.Context) (*AuthView, error) {
	status, err := s.auth.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &AuthView{
		Authenticated: s.api.IsAuthenticated(ctx),
		Pending:       s.auth.Pending(),
		Status:        status,
	}, nil
}

func (s *TwitchService) IsAuthenticated(ctx context.Context) bool {
	return s.api.IsAuthenticated(ctx)
}

// Logout stops any pending flow, revokes the token upstream when possible, and forgets it.
func (s *TwitchService) Logout(ctx context.Context) error {
	s.auth.CancelPolling()

	token, err := s.auth.StoredToken(ctx)
	if err != nil {
		return err
	}
	if token != nil {
		if err := s.auth.RevokeToken(ctx, token.AccessToken); err != nil {
			slog.WarnContext(ctx, "Token revocation failed, clearing locally", "error", err)
		}
	}

	return s.auth.ClearToken(ctx)
}

type loadResult[T any] struct {
	value T
	found bool
}

// loadThrough reads key from c, falling back to fetch on a miss. Found values are written back
// with ttl; concurrent misses for key share one fetch, which outlives the caller that started it.
func loadThrough[T any](ctx context.Context, group *singleflight.Group, c cache.Cache[T], key string, ttl time.Duration,
	fetch func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	if v, ok, err := c.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "Cache read failed, fetching upstream", "key", key, "error", err)
	} else if ok {
		return v, true, nil
	}

	if err := ctx.Err(); err != nil {
		var zero T
		return zero, false, err
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := group.DoChan(key, func() (any, error) {
		v, found, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if found {
			if err := c.Set(fetchCtx, key, v, ttl); err != nil {
				slog.WarnContext(fetchCtx, "Cache write failed", "key", key, "error", err)
			}
		}
		return loadResult[T]{value: v, found: found}, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		r := res.Val.(loadResult[T])
		return r.value, r.found, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func toStreamerInfo(u twitch.User) domain.StreamerInfo {
	return domain.StreamerInfo{
		ID:              u.ID,
		Login:           u.Login,
		DisplayName:     u.DisplayName,
		ProfileImageURL: u.ProfileImageURL,
	}
}

func toStreamInfo(s twitch.Stream) domain.StreamInfo {
	return domain.StreamInfo{
		StreamID:    s.ID,
		UserID:      s.UserID,
		UserLogin:   s.UserLogin,
		UserName:    s.UserName,
		Title:       s.Title,
		StartedAt:   s.StartedAt,
		ViewerCount: s.ViewerCount,
	}
}
