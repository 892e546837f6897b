package domain

import (
	"context"
	"time"
)

// TokenExpiryMargin is how long before its nominal expiry a token stops being used.
const TokenExpiryMargin = 5 * time.Minute

// Token is an OAuth bearer token pair obtained through the device flow or a refresh.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	Scope        []string  `json:"scope"`
	TokenType    string    `json:"token_type"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

// ExpiresAt returns the nominal expiry instant.
func (t *Token) ExpiresAt() time.Time {
	return t.ObtainedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// IsExpired reports whether fewer than TokenExpiryMargin remain before expiry.
func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt().Sub(now) < TokenExpiryMargin
}

// DeviceAuthorization is the pending state of one device-authorization-grant session.
type DeviceAuthorization struct {
	DeviceCode      string    `json:"device_code"`
	UserCode        string    `json:"user_code"`
	VerificationURI string    `json:"verification_uri"`
	Interval        int       `json:"interval"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type AuthState string

const (
	AuthStatePending AuthState = "pending"
	AuthStateSuccess AuthState = "success"
	AuthStateFailed  AuthState = "failed"
)

// Reasons recorded on a failed AuthStatus.
const (
	AuthReasonNetworkError = "network_error"
	AuthReasonCancelled    = "cancelled"
	AuthReasonExpiredToken = "expired_token"
	AuthReasonAccessDenied = "access_denied"
	AuthReasonUnknown      = "unknown"
)

// AuthStatus is the persisted outcome of the latest device flow.
type AuthStatus struct {
	Status          AuthState  `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	UserCode        string     `json:"user_code,omitempty"`
	VerificationURI string     `json:"verification_uri,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TokenStore persists the single upstream account's credentials.
type TokenStore interface {
	StoredToken(ctx context.Context) (*Token, error)
	StoreToken(ctx context.Context, token *Token) error
	ClearToken(ctx context.Context) error
}
