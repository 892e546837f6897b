package twitch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
)

type mockTokenSource struct {
	token     *domain.Token
	refreshFn func(ctx context.Context, refreshToken string) (*domain.Token, error)
	cleared   bool
}

func (m *mockTokenSource) StoredToken(context.Context) (*domain.Token, error) {
	return m.token, nil
}

func (m *mockTokenSource) RefreshToken(ctx context.Context, refreshToken string) (*domain.Token, error) {
	if m.refreshFn == nil {
		return nil, errors.New("refresh not configured")
	}
	return m.refreshFn(ctx, refreshToken)
}

func (m *mockTokenSource) ClearToken(context.Context) error {
	m.cleared = true
	m.token = nil
	return nil
}

func validToken(clock clockwork.Clock) *domain.Token {
	return &domain.Token{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 14400, ObtainedAt: clock.Now()}
}

func newTestClient(t *testing.T, clock *clockwork.FakeClock, handler http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{ClientID: "test_client", BaseURL: server.URL, Clock: clock}, tokens)
}

func setRateLimit(w http.ResponseWriter, limit, remaining int, reset time.Time) {
	w.Header().Set("Ratelimit-Limit", strconv.Itoa(limit))
	w.Header().Set("Ratelimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("Ratelimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

func getUsers(ctx context.Context, c *Client) error {
	_, err := c.GetUsers(ctx, UsersParams{Logins: []string{"foo"}})
	return err
}

func getStreams(ctx context.Context, c *Client) error {
	_, err := c.GetStreams(ctx, StreamsParams{UserLogins: []string{"foo"}})
	return err
}

func TestClient_NotAuthenticated(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, clockwork.NewFakeClock(), func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }, &mockTokenSource{})

	_, err := c.GetUsers(context.Background(), UsersParams{Logins: []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Zero(t, hits.Load())
	assert.False(t, c.IsAuthenticated(context.Background()))
}

func TestClient_HeadersQueryAndRateLimit(t *testing.T) {
	fake := clockwork.NewFakeClock()
	tokens := &mockTokenSource{token: validToken(fake)}
	c := newTestClient(t, fake, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.Equal(t, "test_client", r.Header.Get("Client-Id"))
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, []string{"a", "b"}, r.URL.Query()["login"])
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		setRateLimit(w, 800, 799, fake.Now().Add(time.Minute))
		_, _ = w.Write([]byte(`{"data":[{"id":"1","login":"a"}]}`))
	}, tokens)

	users, err := c.GetUsers(context.Background(), UsersParams{Logins: []string{"a", "b"}})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "a", users[0].Login)

	info := c.RateLimitInfo()
	assert.True(t, info.Known)
	assert.Equal(t, 800, info.Limit)
	assert.Equal(t, 799, info.Remaining)
	assert.True(t, info.ResetAt.Equal(fake.Now().Add(time.Minute)))
	assert.True(t, c.IsAuthenticated(context.Background()))
}

func TestClient_MissingHeadersKeepPreviousValues(t *testing.T) {
	var calls atomic.Int32
	fake := clockwork.NewFakeClock()
	c := newTestClient(t, fake, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			setRateLimit(w, 800, 700, fake.Now().Add(time.Minute))
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, &mockTokenSource{token: validToken(fake)})

	require.NoError(t, getStreams(context.Background(), c))
	require.NoError(t, getStreams(context.Background(), c))

	info := c.RateLimitInfo()
	assert.Equal(t, 800, info.Limit)
	assert.Equal(t, 700, info.Remaining)
}

func TestClient_RefreshesExpiredToken(t *testing.T) {
	tokens := &mockTokenSource{}
	tokens.refreshFn = func(_ context.Context, refreshToken string) (*domain.Token, error) {
		assert.Equal(t, "old-refresh", refreshToken)
		return &domain.Token{AccessToken: "fresh", RefreshToken: "new-refresh", ExpiresIn: 14400}, nil
	}

	clock := clockwork.NewFakeClock()
	tokens.token = &domain.Token{AccessToken: "stale", RefreshToken: "old-refresh", ExpiresIn: 299, ObtainedAt: clock.Now()}
	c := newTestClient(t, clock, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, tokens)

	require.NoError(t, getUsers(context.Background(), c))
	assert.False(t, tokens.cleared)
}

func TestClient_RefreshFailureClearsToken(t *testing.T) {
	refreshErr := &RefreshError{Revoked: true, Err: errors.New("invalid refresh token")}
	tokens := &mockTokenSource{refreshFn: func(context.Context, string) (*domain.Token, error) {
		return nil, refreshErr
	}}

	var hits atomic.Int32
	clock := clockwork.NewFakeClock()
	tokens.token = &domain.Token{AccessToken: "stale", RefreshToken: "bad", ExpiresIn: 60, ObtainedAt: clock.Now()}
	c := newTestClient(t, clock, func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }, tokens)

	err := getUsers(context.Background(), c)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	var re *RefreshError
	assert.ErrorAs(t, err, &re)
	assert.True(t, tokens.cleared)
	assert.Zero(t, hits.Load())
}

func TestClient_RetriesAfterTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	fake := clockwork.NewFakeClock()
	c := newTestClient(t, fake, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			setRateLimit(w, 800, 0, fake.Now().Add(2*time.Second))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		setRateLimit(w, 800, 799, fake.Now().Add(time.Minute))
		_, _ = w.Write([]byte(`{"data":[{"id":"42"}]}`))
	}, &mockTokenSource{token: validToken(fake)})

	done := make(chan error, 1)
	var users []User
	go func() {
		var err error
		users, err = c.GetUsers(context.Background(), UsersParams{IDs: []string{"42"}})
		done <- err
	}()

	// reset in 2s plus the 1s buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fake.BlockUntilContext(ctx, 1))
	fake.Advance(2 * time.Second)
	assert.Equal(t, int32(1), calls.Load())
	fake.Advance(time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Get did not return after reset")
	}
	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, users, 1)
	assert.Equal(t, "42", users[0].ID)
}

func TestClient_WaitsWhenBudgetLow(t *testing.T) {
	var calls atomic.Int32
	fake := clockwork.NewFakeClock()
	c := newTestClient(t, fake, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		setRateLimit(w, 800, 5, fake.Now().Add(30*time.Second))
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, &mockTokenSource{token: validToken(fake)})

	require.NoError(t, getStreams(context.Background(), c))

	done := make(chan error, 1)
	go func() { done <- getStreams(context.Background(), c) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fake.BlockUntilContext(ctx, 1))
	assert.Equal(t, int32(1), calls.Load(), "second request must wait for the reset")

	fake.Advance(30 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Get did not resume after reset")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_WaitForBudgetHonoursContext(t *testing.T) {
	fake := clockwork.NewFakeClock()
	c := newTestClient(t, fake, func(w http.ResponseWriter, r *http.Request) {
		setRateLimit(w, 800, 0, fake.Now().Add(time.Minute))
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, &mockTokenSource{token: validToken(fake)})

	require.NoError(t, getStreams(context.Background(), c))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, getStreams(ctx, c), context.Canceled)
}

func TestClient_APIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantCode    string
	}{
		{"message from body", http.StatusBadRequest, `{"error":"Bad Request","status":400,"message":"Invalid login names"}`, "Invalid login names", "Bad Request"},
		{"error only", http.StatusNotFound, `{"error":"Not Found","status":404}`, "Not Found", "Not Found"},
		{"status text fallback", http.StatusInternalServerError, `oops`, "Internal Server Error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := clockwork.NewFakeClock()
			c := newTestClient(t, fake, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, &mockTokenSource{token: validToken(fake)})

			err := getUsers(context.Background(), c)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	clock := clockwork.NewFakeClock()
	c := NewClient(ClientConfig{ClientID: "c", BaseURL: server.URL, Clock: clock},
		&mockTokenSource{token: validToken(clock)})

	err := getUsers(context.Background(), c)
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}
