package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/version"
)

const (
	DefaultAuthURL      = "https://id.twitch.tv/oauth2"
	DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// MinPollInterval is the floor applied to the server-suggested polling interval.
	MinPollInterval = 5 * time.Second
	// SlowDownPenalty is the extra wait after a slow_down answer.
	SlowDownPenalty = 5 * time.Second
)

var (
	errAuthorizationPending = errors.New("authorization pending")
	errSlowDown             = errors.New("slow down")
)

type AuthConfig struct {
	ClientID   string
	Scopes     []string
	BaseURL    string
	HTTPClient *http.Client
	Clock      clockwork.Clock
}

// AuthManager drives the OAuth device authorization grant for the single upstream account.
//
// State machine: Idle -> Pending -> Authenticated | Failed(reason) | Idle(cancelled).
// At most one session is pending; starting another supersedes it.
type AuthManager struct {
	clientID   string
	scopes     []string
	baseURL    string
	httpClient *http.Client
	clock      clockwork.Clock
	store      CredentialStore

	mu      sync.Mutex
	pending *domain.DeviceAuthorization
	cancel  context.CancelFunc // non-nil while a polling loop runs
	done    chan struct{}      // closed once that loop has fully stopped
	cycle   chan struct{}      // closed and replaced at every poll-cycle boundary
}

func NewAuthManager(cfg AuthConfig, store CredentialStore) *AuthManager {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAuthURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &AuthManager{
		clientID:   cfg.ClientID,
		scopes:     cfg.Scopes,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		clock:      cfg.Clock,
		store:      store,
		cycle:      make(chan struct{}),
	}
}

// StartDeviceAuth requests a new device code. A session already pending is cancelled first.
func (m *AuthManager) StartDeviceAuth(ctx context.Context) (*domain.DeviceAuthorization, error) {
	m.CancelPolling()

	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("scopes", strings.Join(m.scopes, " "))

	status, body, err := m.postForm(ctx, "/device", form)
	if err != nil {
		return nil, &NetworkError{Op: "device authorization", Err: err}
	}
	if !isSuccess(status) {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		return nil, &AuthRequestError{Status: status, Message: eb.text(status)}
	}

	var dr struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, fmt.Errorf("failed to decode device authorization: %w", err)
	}

	auth := &domain.DeviceAuthorization{
		DeviceCode:      dr.DeviceCode,
		UserCode:        dr.UserCode,
		VerificationURI: dr.VerificationURI,
		Interval:        dr.Interval,
		ExpiresAt:       m.clock.Now().Add(time.Duration(dr.ExpiresIn) * time.Second),
	}

	m.mu.Lock()
	m.pending = auth
	m.mu.Unlock()

	expiresAt := auth.ExpiresAt
	m.saveStatus(ctx, domain.AuthStatus{
		Status:          domain.AuthStatePending,
		UserCode:        auth.UserCode,
		VerificationURI: auth.VerificationURI,
		ExpiresAt:       &expiresAt,
	})

	slog.InfoContext(ctx, "Device authorization started", "user_code", auth.UserCode, "expires_at", auth.ExpiresAt)
	copied := *auth
	return &copied, nil
}

// PollForToken polls the token endpoint until the user approves, denies, the device code
// expires, the transport fails, or polling is cancelled through CancelPolling or ctx.
func (m *AuthManager) PollForToken(ctx context.Context, auth *domain.DeviceAuthorization) (*domain.Token, error) {
	if auth == nil {
		return nil, errors.New("device authorization is required")
	}

	pollCtx, cancel, done := m.beginPolling(ctx, auth)
	token, err := m.poll(pollCtx, auth)
	m.finishPolling(ctx, cancel, done, err)
	return token, err
}

// CancelPolling stops the pending session, if any, and returns once the manager is idle.
func (m *AuthManager) CancelPolling() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	if cancel == nil {
		hadPending := m.pending != nil
		m.pending = nil
		m.mu.Unlock()
		if hadPending {
			m.saveStatus(context.Background(), domain.AuthStatus{Status: domain.AuthStateFailed, Reason: domain.AuthReasonCancelled})
		}
		return
	}
	m.mu.Unlock()

	cancel()
	<-done
}

// AwaitNextPoll blocks until the running polling loop finishes its current cycle. It returns
// immediately when nothing is polling.
func (m *AuthManager) AwaitNextPoll(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return nil
	}
	ch := m.cycle
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns a copy of the pending device authorization, or nil.
func (m *AuthManager) Pending() *domain.DeviceAuthorization {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return nil
	}
	copied := *m.pending
	return &copied
}

// RefreshToken exchanges refreshToken for a new token pair and stores it.
func (m *AuthManager) RefreshToken(ctx context.Context, refreshToken string) (*domain.Token, error) {
	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	status, body, err := m.postForm(ctx, "/token", form)
	if err != nil {
		return nil, &RefreshError{Err: &NetworkError{Op: "token refresh", Err: err}}
	}
	if !isSuccess(status) {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		return nil, &RefreshError{
			Revoked: status == http.StatusBadRequest || status == http.StatusUnauthorized,
			Err:     fmt.Errorf("refresh failed with status %d: %s", status, eb.text(status)),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &RefreshError{Err: err}
	}

	token := tr.token(m.clock.Now())
	if err := m.store.StoreToken(ctx, token); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Access token refreshed", "expires_at", token.ExpiresAt())
	return token, nil
}

// RevokeToken invalidates accessToken upstream.
func (m *AuthManager) RevokeToken(ctx context.Context, accessToken string) error {
	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("token", accessToken)

	status, body, err := m.postForm(ctx, "/revoke", form)
	if err != nil {
		return &NetworkError{Op: "token revoke", Err: err}
	}
	if !isSuccess(status) {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		return fmt.Errorf("revoke failed with status %d: %s", status, eb.text(status))
	}
	return nil
}

func (m *AuthManager) StoredToken(ctx context.Context) (*domain.Token, error) {
	return m.store.StoredToken(ctx)
}

func (m *AuthManager) StoreToken(ctx context.Context, token *domain.Token) error {
	return m.store.StoreToken(ctx, token)
}

func (m *AuthManager) ClearToken(ctx context.Context) error {
	return m.store.ClearToken(ctx)
}

// IsTokenExpired applies IsTokenExpired at the manager's current time.
func (m *AuthManager) IsTokenExpired(token *domain.Token) bool {
	return IsTokenExpired(token, m.clock.Now())
}

// Status returns the persisted outcome of the latest device flow, or nil if none ran.
func (m *AuthManager) Status(ctx context.Context) (*domain.AuthStatus, error) {
	return m.store.AuthStatus(ctx)
}

// beginPolling installs a polling loop for auth, stopping any loop that is already running.
func (m *AuthManager) beginPolling(ctx context.Context, auth *domain.DeviceAuthorization) (context.Context, context.CancelFunc, chan struct{}) {
	for {
		m.mu.Lock()
		if m.cancel == nil {
			pollCtx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			m.pending = auth
			m.cancel = cancel
			m.done = done
			m.mu.Unlock()
			return pollCtx, cancel, done
		}
		prevCancel, prevDone := m.cancel, m.done
		m.mu.Unlock()

		prevCancel()
		<-prevDone
	}
}

func (m *AuthManager) finishPolling(ctx context.Context, cancel context.CancelFunc, done chan struct{}, err error) {
	status := domain.AuthStatus{Status: domain.AuthStateSuccess}
	if err != nil {
		status = domain.AuthStatus{Status: domain.AuthStateFailed, Reason: failureReason(err)}
		slog.WarnContext(ctx, "Device authorization ended", "reason", status.Reason, "error", err)
	} else {
		slog.InfoContext(ctx, "Device authorization succeeded")
	}
	m.saveStatus(context.WithoutCancel(ctx), status)

	m.mu.Lock()
	if m.done == done {
		m.pending = nil
		m.cancel = nil
		m.done = nil
	}
	m.signalCycleLocked()
	m.mu.Unlock()

	cancel()
	close(done)
}

func (m *AuthManager) poll(ctx context.Context, auth *domain.DeviceAuthorization) (*domain.Token, error) {
	interval := max(time.Duration(auth.Interval)*time.Second, MinPollInterval)

	for {
		if err := m.sleep(ctx, interval); err != nil {
			return nil, ErrPollingCancelled
		}

		if !auth.ExpiresAt.IsZero() && !m.clock.Now().Before(auth.ExpiresAt) {
			return nil, ErrDeviceCodeExpired
		}

		token, err := m.requestDeviceToken(ctx, auth.DeviceCode)
		if ctx.Err() != nil {
			return nil, ErrPollingCancelled
		}

		switch {
		case err == nil:
			if err := m.store.StoreToken(ctx, token); err != nil {
				return nil, err
			}
			return token, nil
		case errors.Is(err, errAuthorizationPending):
			m.signalCycle()
		case errors.Is(err, errSlowDown):
			m.signalCycle()
			if err := m.sleep(ctx, SlowDownPenalty); err != nil {
				return nil, ErrPollingCancelled
			}
		default:
			return nil, err
		}
	}
}

func (m *AuthManager) requestDeviceToken(ctx context.Context, deviceCode string) (*domain.Token, error) {
	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("scopes", strings.Join(m.scopes, " "))
	form.Set("device_code", deviceCode)
	form.Set("grant_type", DeviceCodeGrantType)

	status, body, err := m.postForm(ctx, "/token", form)
	if err != nil {
		return nil, &NetworkError{Op: "device token", Err: err}
	}

	if !isSuccess(status) {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		return nil, classifyDeviceTokenError(status, eb)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return tr.token(m.clock.Now()), nil
}

func classifyDeviceTokenError(status int, eb errorBody) error {
	for _, text := range []string{eb.Message, eb.Error} {
		switch t := strings.ToLower(text); {
		case t == "authorization_pending":
			return errAuthorizationPending
		case t == "slow_down":
			return errSlowDown
		case t == "expired_token", strings.Contains(t, "invalid device code"):
			return ErrDeviceCodeExpired
		case t == "access_denied":
			return ErrAccessDenied
		}
	}
	return &AuthRequestError{Status: status, Message: eb.text(status)}
}

func failureReason(err error) string {
	var netErr *NetworkError
	switch {
	case errors.Is(err, ErrPollingCancelled):
		return domain.AuthReasonCancelled
	case errors.Is(err, ErrDeviceCodeExpired):
		return domain.AuthReasonExpiredToken
	case errors.Is(err, ErrAccessDenied):
		return domain.AuthReasonAccessDenied
	case errors.As(err, &netErr):
		return domain.AuthReasonNetworkError
	default:
		return domain.AuthReasonUnknown
	}
}

func (m *AuthManager) signalCycle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalCycleLocked()
}

func (m *AuthManager) signalCycleLocked() {
	close(m.cycle)
	m.cycle = make(chan struct{})
}

func (m *AuthManager) sleep(ctx context.Context, d time.Duration) error {
	timer := m.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *AuthManager) saveStatus(ctx context.Context, status domain.AuthStatus) {
	status.UpdatedAt = m.clock.Now()
	if err := m.store.SaveAuthStatus(ctx, status); err != nil {
		slog.WarnContext(ctx, "Failed to persist auth status", "status", status.Status, "error", err)
	}
}

func (m *AuthManager) postForm(ctx context.Context, path string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	Scope        []string `json:"scope"`
	TokenType    string   `json:"token_type"`
}

func (r tokenResponse) token(now time.Time) *domain.Token {
	return &domain.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    r.ExpiresIn,
		Scope:        r.Scope,
		TokenType:    r.TokenType,
		ObtainedAt:   now,
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
