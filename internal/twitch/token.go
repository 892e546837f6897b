package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/crypto"
)

const (
	TokenStorageKey  = "auth_token"
	StatusStorageKey = "auth_status"
)

// CredentialStore persists the account token and the outcome of the latest device flow.
type CredentialStore interface {
	domain.TokenStore
	AuthStatus(ctx context.Context) (*domain.AuthStatus, error)
	SaveAuthStatus(ctx context.Context, status domain.AuthStatus) error
}

var _ CredentialStore = (*KVCredentialStore)(nil)

// KVCredentialStore keeps credentials in a domain.KVStore. Access and refresh tokens are
// encrypted with the configured crypto.Service before they are written.
type KVCredentialStore struct {
	store  domain.KVStore
	crypto crypto.Service
}

func NewKVCredentialStore(store domain.KVStore, cryptoSvc crypto.Service) *KVCredentialStore {
	if cryptoSvc == nil {
		cryptoSvc = crypto.NoopService{}
	}
	return &KVCredentialStore{store: store, crypto: cryptoSvc}
}

// storedToken is domain.Token with its secrets sealed.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	Scope        []string  `json:"scope"`
	TokenType    string    `json:"token_type"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

func (s *KVCredentialStore) StoredToken(ctx context.Context) (*domain.Token, error) {
	raw, ok, err := s.store.Get(ctx, TokenStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	access, err := s.crypto.Decrypt(st.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := s.crypto.Decrypt(st.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return &domain.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    st.ExpiresIn,
		Scope:        st.Scope,
		TokenType:    st.TokenType,
		ObtainedAt:   st.ObtainedAt,
	}, nil
}

func (s *KVCredentialStore) StoreToken(ctx context.Context, token *domain.Token) error {
	access, err := s.crypto.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := s.crypto.Encrypt(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	raw, err := json.Marshal(storedToken{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    token.ExpiresIn,
		Scope:        token.Scope,
		TokenType:    token.TokenType,
		ObtainedAt:   token.ObtainedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := s.store.Set(ctx, TokenStorageKey, raw); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

func (s *KVCredentialStore) ClearToken(ctx context.Context) error {
	if err := s.store.Remove(ctx, TokenStorageKey); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// AuthStatus returns nil when no device flow has ever been started.
func (s *KVCredentialStore) AuthStatus(ctx context.Context) (*domain.AuthStatus, error) {
	raw, ok, err := s.store.Get(ctx, StatusStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth status: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var status domain.AuthStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to decode auth status: %w", err)
	}
	return &status, nil
}

func (s *KVCredentialStore) SaveAuthStatus(ctx context.Context, status domain.AuthStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode auth status: %w", err)
	}
	if err := s.store.Set(ctx, StatusStorageKey, raw); err != nil {
		return fmt.Errorf("failed to write auth status: %w", err)
	}
	return nil
}

// IsTokenExpired reports whether token has fewer than domain.TokenExpiryMargin left at now.
// A nil token counts as expired.
func IsTokenExpired(token *domain.Token, now time.Time) bool {
	if token == nil {
		return true
	}
	return token.IsExpired(now)
}
