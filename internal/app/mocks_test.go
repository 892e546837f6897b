package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/twitch"
)

// --- Mock implementations ---

type mockTwitchAPI struct {
	mu sync.Mutex

	getUsersFn   func(ctx context.Context, p twitch.UsersParams) ([]twitch.User, error)
	getStreamsFn func(ctx context.Context, p twitch.StreamsParams) (*twitch.Page[twitch.Stream], error)
	getVideosFn  func(ctx context.Context, p twitch.VideosParams) (*twitch.Page[twitch.Video], error)
	authed       bool

	usersCalls   int
	streamsCalls int
	videosCalls  int
}

func (m *mockTwitchAPI) GetUsers(ctx context.Context, p twitch.UsersParams) ([]twitch.User, error) {
	m.mu.Lock()
	m.usersCalls++
	m.mu.Unlock()
	if m.getUsersFn != nil {
		return m.getUsersFn(ctx, p)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTwitchAPI) GetStreams(ctx context.Context, p twitch.StreamsParams) (*twitch.Page[twitch.Stream], error) {
	m.mu.Lock()
	m.streamsCalls++
	m.mu.Unlock()
	if m.getStreamsFn != nil {
		return m.getStreamsFn(ctx, p)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTwitchAPI) GetVideos(ctx context.Context, p twitch.VideosParams) (*twitch.Page[twitch.Video], error) {
	m.mu.Lock()
	m.videosCalls++
	m.mu.Unlock()
	if m.getVideosFn != nil {
		return m.getVideosFn(ctx, p)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTwitchAPI) IsAuthenticated(context.Context) bool { return m.authed }

func (m *mockTwitchAPI) calls() (users, streams, videos int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usersCalls, m.streamsCalls, m.videosCalls
}

type mockTwitchAuth struct {
	startFn  func(ctx context.Context) (*domain.DeviceAuthorization, error)
	pollFn   func(ctx context.Context, auth *domain.DeviceAuthorization) (*domain.Token, error)
	revokeFn func(ctx context.Context, accessToken string) error

	pending   *domain.DeviceAuthorization
	status    *domain.AuthStatus
	token     *domain.Token
	cancelled int
	cleared   bool
}

func (m *mockTwitchAuth) StartDeviceAuth(ctx context.Context) (*domain.DeviceAuthorization, error) {
	if m.startFn != nil {
		return m.startFn(ctx)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTwitchAuth) PollForToken(ctx context.Context, auth *domain.DeviceAuthorization) (*domain.Token, error) {
	if m.pollFn != nil {
		return m.pollFn(ctx, auth)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockTwitchAuth) CancelPolling()                        { m.cancelled++ }
func (m *mockTwitchAuth) AwaitNextPoll(context.Context) error   { return nil }
func (m *mockTwitchAuth) Pending() *domain.DeviceAuthorization { return m.pending }

func (m *mockTwitchAuth) Status(context.Context) (*domain.AuthStatus, error) { return m.status, nil }

func (m *mockTwitchAuth) StoredToken(context.Context) (*domain.Token, error) { return m.token, nil }

func (m *mockTwitchAuth) ClearToken(context.Context) error {
	m.cleared = true
	m.token = nil
	return nil
}

func (m *mockTwitchAuth) RevokeToken(ctx context.Context, accessToken string) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, accessToken)
	}
	return nil
}

type mockStreamerDirectory struct {
	getStreamerInfoFn func(ctx context.Context, login string) (*domain.StreamerInfo, error)
	getRecentVodsFn   func(ctx context.Context, userID string, limit int) ([]domain.VodSummary, error)
}

func (m *mockStreamerDirectory) GetStreamerInfo(ctx context.Context, login string) (*domain.StreamerInfo, error) {
	if m.getStreamerInfoFn != nil {
		return m.getStreamerInfoFn(ctx, login)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStreamerDirectory) GetRecentVods(ctx context.Context, userID string, limit int) ([]domain.VodSummary, error) {
	if m.getRecentVodsFn != nil {
		return m.getRecentVodsFn(ctx, userID, limit)
	}
	return nil, fmt.Errorf("not implemented")
}

type scheduledJob struct {
	name     string
	interval time.Duration
	delay    time.Duration
	job      domain.Job
}

type mockScheduler struct {
	every []scheduledJob
	once  []scheduledJob
}

func (m *mockScheduler) Every(name string, interval time.Duration, job domain.Job) {
	m.every = append(m.every, scheduledJob{name: name, interval: interval, job: job})
}

func (m *mockScheduler) Once(name string, delay time.Duration, job domain.Job) {
	m.once = append(m.once, scheduledJob{name: name, delay: delay, job: job})
}

func ptr(s string) *string { return &s }
