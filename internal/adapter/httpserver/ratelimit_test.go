package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	apperrors "github.com/whatasoda/twitch-clips-todo/internal/platform/errors"
)

const testRemoteAddr = "1.2.3.4:1234"

func limitedHandler(limit RateLimit) echo.HandlerFunc {
	return ErrorHandlingMiddleware()(newRateLimiter(scopeAPI, limit, nil)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}))
}

func send(t *testing.T, handler echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	require.NoError(t, handler(echo.New().NewContext(req, rec)))
	return rec
}

func TestRateLimiterAllowsRequestsUnderLimit(t *testing.T) {
	handler := limitedHandler(RateLimit{PerSecond: 10, Burst: 3})

	for range make([]struct{}, 3) {
		assert.Equal(t, http.StatusOK, send(t, handler, testRemoteAddr).Code)
	}
}

func TestRateLimiterBlocksExcessiveRequests(t *testing.T) {
	handler := limitedHandler(RateLimit{PerSecond: 0.01, Burst: 1})

	assert.Equal(t, http.StatusOK, send(t, handler, testRemoteAddr).Code)

	rec := send(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("Retry-After"))

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.TypeRateLimited, resp.Type)
	assert.Equal(t, "rate limit exceeded", resp.Error)
	assert.Equal(t, scopeAPI, resp.Context["scope"])
}

func TestRateLimiterTracksClientsSeparately(t *testing.T) {
	handler := limitedHandler(RateLimit{PerSecond: 0.01, Burst: 1})

	assert.Equal(t, http.StatusOK, send(t, handler, testRemoteAddr).Code)
	assert.Equal(t, http.StatusOK, send(t, handler, "5.6.7.8:5678").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(t, handler, testRemoteAddr).Code)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(RateLimit{PerSecond: 20}))
	assert.Equal(t, 1, retryAfterSeconds(RateLimit{PerSecond: 1}))
	assert.Equal(t, 4, retryAfterSeconds(RateLimit{PerSecond: 0.25}))
	assert.Equal(t, 300, retryAfterSeconds(RateLimit{}))
}

func TestUpstreamRoutesHaveTheirOwnLimit(t *testing.T) {
	srv, deps := newTestServer(t, func(d *testDeps) {
		d.opts.UpstreamRateLimit = RateLimit{PerSecond: 0.01, Burst: 1}
	})
	deps.twitch.getStreamerInfoFn = func(context.Context, string) (*domain.StreamerInfo, error) {
		return &domain.StreamerInfo{ID: "1", Login: "foo"}, nil
	}

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/streamers/foo", nil).Code)

	rec := do(t, srv, http.MethodGet, "/api/streamers/foo", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decode[apperrors.ErrorResponse](t, rec)
	assert.Equal(t, scopeUpstream, resp.Context["scope"])

	for range make([]struct{}, 3) {
		assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/records", nil).Code,
			"record routes only draw from the general bucket")
	}
}

func TestRateLimiterReportsDenials(t *testing.T) {
	var denied []string
	handler := ErrorHandlingMiddleware()(newRateLimiter(scopeUpstream, RateLimit{PerSecond: 0.01, Burst: 1}, func(scope string) {
		denied = append(denied, scope)
	})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}))

	send(t, handler, testRemoteAddr)
	assert.Empty(t, denied)

	send(t, handler, testRemoteAddr)
	assert.Equal(t, []string{scopeUpstream}, denied)
}
