package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/whatasoda/twitch-clips-todo/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// RateLimit is a per-client token bucket.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

var (
	// DefaultAPIRateLimit applies to every /api route.
	DefaultAPIRateLimit = RateLimit{PerSecond: 20, Burst: 40}
	// DefaultUpstreamRateLimit additionally applies to routes that can spend Twitch API points.
	DefaultUpstreamRateLimit = RateLimit{PerSecond: 2, Burst: 10}
)

const (
	scopeAPI      = "api"
	scopeUpstream = "upstream"
)

// newRateLimiter throttles callers per client IP. Denials name scope, carry Retry-After and
// are reported to onDeny when it is non-nil.
func newRateLimiter(scope string, limit RateLimit, onDeny func(scope string)) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(limit.PerSecond),
			Burst:     limit.Burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := strconv.Itoa(retryAfterSeconds(limit))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if onDeny != nil {
				onDeny(scope)
			}
			c.Response().Header().Set("Retry-After", retryAfter)
			return apperrors.RateLimitedError("rate limit exceeded").
				WithField("client", identifier).
				WithField("scope", scope)
		},
	})
}

// retryAfterSeconds is the time for one token to refill, at least a second.
func retryAfterSeconds(limit RateLimit) int {
	if limit.PerSecond <= 0 {
		return int(rateLimiterExpiry / time.Second)
	}
	return max(1, int(math.Ceil(1/limit.PerSecond)))
}
