package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/version"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL = "https://api.twitch.tv/helix"

	// LowWaterMark is the remaining-points threshold below which requests wait for the reset.
	LowWaterMark = 10
	// resetBuffer is added to the reset instant when retrying after a 429.
	resetBuffer = time.Second
)

// TokenSource resolves and renews the bearer token used by Client.
type TokenSource interface {
	StoredToken(ctx context.Context) (*domain.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*domain.Token, error)
	ClearToken(ctx context.Context) error
}

// RequestObserver receives one call per HTTP response from the API.
type RequestObserver interface {
	ObserveRequest(endpoint string, status int, duration time.Duration)
	ObserveRateLimit(remaining int)
}

type noopRequestObserver struct{}

func (noopRequestObserver) ObserveRequest(string, int, time.Duration) {}
func (noopRequestObserver) ObserveRateLimit(int)                      {}

// RateLimitInfo is the budget reported by the last response. Remaining is only meaningful once
// Known is true.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Known     bool
}

type ClientConfig struct {
	ClientID   string
	BaseURL    string
	HTTPClient *http.Client
	Clock      clockwork.Clock
	// PointsPerMinute enables client-side pacing when positive.
	PointsPerMinute int
	Observer        RequestObserver
}

// Client is the transport behind the typed Helix endpoints. Safe for concurrent use.
type Client struct {
	clientID   string
	baseURL    string
	httpClient *http.Client
	clock      clockwork.Clock
	tokens     TokenSource
	limiter    *rate.Limiter
	observer   RequestObserver

	mu        sync.Mutex
	rateLimit RateLimitInfo
}

func NewClient(cfg ClientConfig, tokens TokenSource) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopRequestObserver{}
	}

	var limiter *rate.Limiter
	if cfg.PointsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PointsPerMinute)), cfg.PointsPerMinute)
	}

	return &Client{
		clientID:   cfg.ClientID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		clock:      cfg.Clock,
		tokens:     tokens,
		limiter:    limiter,
		observer:   cfg.Observer,
	}
}

// IsAuthenticated reports whether a usable token is available, refreshing it if needed.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	_, err := c.accessToken(ctx)
	return err == nil
}

// RateLimitInfo returns a copy of the last reported budget.
func (c *Client) RateLimitInfo() RateLimitInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLimit
}

// accessToken returns a non-expired access token. A failed refresh clears the stored token.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	token, err := c.tokens.StoredToken(ctx)
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", domain.ErrNotAuthenticated
	}
	if !IsTokenExpired(token, c.clock.Now()) {
		return token.AccessToken, nil
	}

	refreshed, err := c.tokens.RefreshToken(ctx, token.RefreshToken)
	if err != nil {
		slog.WarnContext(ctx, "Token refresh failed, clearing stored token", "error", err)
		if clearErr := c.tokens.ClearToken(ctx); clearErr != nil {
			slog.ErrorContext(ctx, "Failed to clear stored token", "error", clearErr)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
	}
	return refreshed.AccessToken, nil
}

// waitForBudget blocks until the reset instant while the remaining budget is below the low-water mark.
func (c *Client) waitForBudget(ctx context.Context) error {
	c.mu.Lock()
	info := c.rateLimit
	c.mu.Unlock()

	if !info.Known || info.Remaining >= LowWaterMark {
		return nil
	}

	wait := info.ResetAt.Sub(c.clock.Now())
	if wait <= 0 {
		return nil
	}

	slog.DebugContext(ctx, "Rate-limit budget low, waiting for reset", "remaining", info.Remaining, "wait", wait)
	return c.sleep(ctx, wait)
}

func (c *Client) retryAfter() time.Duration {
	c.mu.Lock()
	resetAt := c.rateLimit.ResetAt
	c.mu.Unlock()

	wait := resetAt.Sub(c.clock.Now()) + resetBuffer
	if wait < resetBuffer {
		wait = resetBuffer
	}
	return wait
}

// send issues req under ctx. 429 answers are replayed after the reported reset; every other
// response is handed back to helix.
func (c *Client) send(ctx context.Context, endpoint string, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", version.UserAgent())

	for {
		start := c.clock.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &NetworkError{Op: req.Method + " " + endpoint, Err: err}
		}
		c.updateRateLimit(resp.Header)
		c.observer.ObserveRequest(endpoint, resp.StatusCode, c.clock.Since(start))

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		wait := c.retryAfter()
		slog.WarnContext(ctx, "Twitch API rate limited, waiting for reset", "endpoint", endpoint, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// updateRateLimit copies the Ratelimit-* headers that are present and parse cleanly.
func (c *Client) updateRateLimit(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, err := strconv.Atoi(h.Get("Ratelimit-Limit")); err == nil {
		c.rateLimit.Limit = v
	}
	if v, err := strconv.Atoi(h.Get("Ratelimit-Remaining")); err == nil {
		c.rateLimit.Remaining = v
		c.rateLimit.Known = true
		c.observer.ObserveRateLimit(v)
	}
	if v, err := strconv.ParseInt(h.Get("Ratelimit-Reset"), 10, 64); err == nil {
		c.rateLimit.ResetAt = time.Unix(v, 0)
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsNotAuthenticated reports whether err means no usable token is available.
func IsNotAuthenticated(err error) bool {
	return errors.Is(err, domain.ErrNotAuthenticated)
}
