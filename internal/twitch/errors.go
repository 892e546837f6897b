package twitch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrPollingCancelled  = errors.New("device authorization polling cancelled")
	ErrDeviceCodeExpired = errors.New("device code expired")
	ErrAccessDenied      = errors.New("device authorization denied")
	ErrTooManyIDs        = errors.New("too many identifiers in one request")
)

// AuthRequestError is a non-2xx answer from the device authorization endpoint.
type AuthRequestError struct {
	Status  int
	Message string
}

func (e *AuthRequestError) Error() string {
	return fmt.Sprintf("device authorization request failed with status %d: %s", e.Status, e.Message)
}

// RefreshError reports a failed token refresh. Revoked is set when the identity provider
// rejected the refresh token itself.
type RefreshError struct {
	Revoked bool
	Err     error
}

func (e *RefreshError) Error() string {
	if e.Revoked {
		return fmt.Sprintf("token revoked: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// NetworkError is a transport-level failure: the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx, non-429 answer from the Helix API.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("twitch api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("twitch api error %d: %s", e.Status, e.Message)
}

// errorBody is the error envelope shared by the identity and Helix endpoints.
type errorBody struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// text returns message, then error, then the status text.
func (b errorBody) text(status int) string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Error != "":
		return b.Error
	default:
		return http.StatusText(status)
	}
}
