package httpserver

import (
	"errors"

	"github.com/whatasoda/twitch-clips-todo/internal/app"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	apperrors "github.com/whatasoda/twitch-clips-todo/internal/platform/errors"
	"github.com/whatasoda/twitch-clips-todo/internal/twitch"
)

// mapError translates engine errors into their structured API counterparts.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var (
		apiErr     *twitch.APIError
		netErr     *twitch.NetworkError
		authReqErr *twitch.AuthRequestError
		refreshErr *twitch.RefreshError
	)

	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		return apperrors.NotFoundError("record not found")
	case errors.Is(err, domain.ErrInvalidRecord):
		return apperrors.ValidationError("invalid record")
	case errors.Is(err, twitch.ErrTooManyIDs):
		return apperrors.ValidationError(err.Error())
	case twitch.IsNotAuthenticated(err):
		return apperrors.UnauthenticatedError("not authenticated with Twitch", err)
	case errors.Is(err, app.ErrNoPendingAuth):
		return apperrors.ConflictError("no pending device authorization")
	case errors.As(err, &apiErr):
		return apperrors.ExternalError("twitch API request failed", err).WithField("upstream_status", apiErr.Status)
	case errors.As(err, &authReqErr):
		return apperrors.ExternalError("twitch authorization request failed", err).WithField("upstream_status", authReqErr.Status)
	case errors.As(err, &refreshErr), errors.As(err, &netErr):
		return apperrors.ExternalError("twitch is unreachable", err)
	default:
		return apperrors.InternalError("internal server error", err)
	}
}
