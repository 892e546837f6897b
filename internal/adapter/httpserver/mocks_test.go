package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/whatasoda/twitch-clips-todo/internal/app"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
)

// --- Mock implementations ---

type mockTwitchService struct {
	getStreamerInfoFn  func(ctx context.Context, login string) (*domain.StreamerInfo, error)
	getCurrentStreamFn func(ctx context.Context, login string, force bool) (*domain.StreamInfo, error)
	getStreamsFn       func(ctx context.Context, logins []string) ([]domain.StreamInfo, error)
	getRecentVodsFn    func(ctx context.Context, userID string, limit int) ([]domain.VodSummary, error)
	getVodMetadataFn   func(ctx context.Context, vodID string) (*domain.VodSummary, error)
	startAuthFn        func(ctx context.Context) (*domain.DeviceAuthorization, error)
	pollAuthFn         func(ctx context.Context) (*domain.Token, error)
	awaitNextPollFn    func(ctx context.Context) error
	authStatusFn       func(ctx context.Context) (*app.AuthView, error)
	logoutFn           func(ctx context.Context) error

	cancelled int
}

func (m *mockTwitchService) GetStreamerInfo(ctx context.Context, login string) (*domain.StreamerInfo, error) {
	if m.getStreamerInfoFn != nil {
		return m.getStreamerInfoFn(ctx, login)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTwitchService) GetCurrentStream(ctx context.Context, login string, force bool) (*domain.StreamInfo, error) {
	if m.getCurrentStreamFn != nil {
		return m.getCurrentStreamFn(ctx, login, force)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTwitchService) GetStreamsByLogins(ctx context.Context, logins []string) ([]domain.StreamInfo, error) {
	if m.getStreamsFn != nil {
		return m.getStreamsFn(ctx, logins)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTwitchService) GetRecentVods(ctx context.Context, userID string, limit int) ([]domain.VodSummary, error) {
	if m.getRecentVodsFn != nil {
		return m.getRecentVodsFn(ctx, userID, limit)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTwitchService) GetVodMetadata(ctx context.Context, vodID string) (*domain.VodSummary, error) {
	if m.getVodMetadataFn != nil {
		return m.getVodMetadataFn(ctx, vodID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTwitchService) StartAuth(ctx context.Context) (*domain.DeviceAuthorization, error) {
	if m.startAuthFn != nil {
		return m.startAuthFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTwitchService) PollAuth(ctx context.Context) (*domain.Token, error) {
	if m.pollAuthFn != nil {
		return m.pollAuthFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTwitchService) CancelAuth() { m.cancelled++ }

func (m *mockTwitchService) AwaitNextPoll(ctx context.Context) error {
	if m.awaitNextPollFn != nil {
		return m.awaitNextPollFn(ctx)
	}
	return nil
}

func (m *mockTwitchService) AuthStatus(ctx context.Context) (*app.AuthView, error) {
	if m.authStatusFn != nil {
		return m.authStatusFn(ctx)
	}
	return &app.AuthView{}, nil
}

func (m *mockTwitchService) Logout(ctx context.Context) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return nil
}

type mockRecordService struct {
	listFn            func(ctx context.Context) ([]domain.Record, error)
	listByStreamerFn  func(ctx context.Context, streamerID string) ([]domain.Record, error)
	getFn             func(ctx context.Context, id string) (*domain.Record, error)
	createFn          func(ctx context.Context, in domain.CreateRecordInput) (*domain.Record, error)
	updateMemoFn      func(ctx context.Context, id, memo string) (*domain.Record, error)
	completeFn        func(ctx context.Context, id string) (*domain.Record, error)
	uncompleteFn      func(ctx context.Context, id string) (*domain.Record, error)
	deleteFn          func(ctx context.Context, id string) error
	deleteCompletedFn func(ctx context.Context, olderThan time.Duration) (int, error)
}

func (m *mockRecordService) List(ctx context.Context) ([]domain.Record, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []domain.Record{}, nil
}

func (m *mockRecordService) ListByStreamer(ctx context.Context, streamerID string) ([]domain.Record, error) {
	if m.listByStreamerFn != nil {
		return m.listByStreamerFn(ctx, streamerID)
	}
	return []domain.Record{}, nil
}

func (m *mockRecordService) Get(ctx context.Context, id string) (*domain.Record, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, domain.ErrRecordNotFound
}

func (m *mockRecordService) Create(ctx context.Context, in domain.CreateRecordInput) (*domain.Record, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockRecordService) UpdateMemo(ctx context.Context, id, memo string) (*domain.Record, error) {
	if m.updateMemoFn != nil {
		return m.updateMemoFn(ctx, id, memo)
	}
	return nil, domain.ErrRecordNotFound
}

func (m *mockRecordService) Complete(ctx context.Context, id string) (*domain.Record, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, id)
	}
	return nil, domain.ErrRecordNotFound
}

func (m *mockRecordService) Uncomplete(ctx context.Context, id string) (*domain.Record, error) {
	if m.uncompleteFn != nil {
		return m.uncompleteFn(ctx, id)
	}
	return nil, domain.ErrRecordNotFound
}

func (m *mockRecordService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return domain.ErrRecordNotFound
}

func (m *mockRecordService) DeleteCompleted(ctx context.Context, olderThan time.Duration) (int, error) {
	if m.deleteCompletedFn != nil {
		return m.deleteCompletedFn(ctx, olderThan)
	}
	return 0, nil
}

type mockLinkingService struct {
	linkVodFn func(ctx context.Context, req app.LinkVodRequest) ([]domain.Record, error)
}

func (m *mockLinkingService) LinkVod(ctx context.Context, req app.LinkVodRequest) ([]domain.Record, error) {
	if m.linkVodFn != nil {
		return m.linkVodFn(ctx, req)
	}
	return nil, nil
}

type mockDiscoveryService struct {
	runFn func(ctx context.Context) ([]app.DiscoveryResult, error)
}

func (m *mockDiscoveryService) RunDiscovery(ctx context.Context) ([]app.DiscoveryResult, error) {
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return []app.DiscoveryResult{}, nil
}

// --- Test helpers ---

type testDeps struct {
	twitch    *mockTwitchService
	records   *mockRecordService
	linking   *mockLinkingService
	discovery *mockDiscoveryService
	opts      Options
}

func newTestServer(t *testing.T, configure ...func(*testDeps)) (*Server, *testDeps) {
	t.Helper()

	deps := &testDeps{
		twitch:    &mockTwitchService{},
		records:   &mockRecordService{},
		linking:   &mockLinkingService{},
		discovery: &mockDiscoveryService{},
		opts:      Options{Clock: clockwork.NewFakeClock()},
	}
	for _, fn := range configure {
		fn(deps)
	}

	srv := NewServer(Services{
		Twitch:    deps.twitch,
		Records:   deps.records,
		Linking:   deps.linking,
		Discovery: deps.discovery,
	}, deps.opts)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return srv, deps
}

func withHealthChecks(checks ...HealthCheck) func(*testDeps) {
	return func(d *testDeps) {
		d.opts.HealthChecks = checks
	}
}

// do sends a request through the full middleware stack.
func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func ptr(s string) *string { return &s }

