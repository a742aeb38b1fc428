package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
)

// StatusClientClosedRequest - the client went away before the answer was ready.
const StatusClientClosedRequest = 499

// Describe - maps a use case error to an HTTP status and a message safe to show to clients.
// Store failures never leak their cause.
func Describe(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrInvalidColumn):
		return http.StatusBadRequest, apperror.ErrInvalidColumn.Error()
	case errors.Is(err, apperror.ErrInvalidInput):
		return http.StatusBadRequest, apperror.ErrInvalidInput.Error()
	case errors.Is(err, apperror.ErrColumnFull):
		return http.StatusConflict, apperror.ErrColumnFull.Error()
	case errors.Is(err, apperror.ErrGameOver):
		return http.StatusConflict, apperror.ErrGameOver.Error()
	case errors.Is(err, apperror.ErrGameNotFound):
		return http.StatusNotFound, apperror.ErrGameNotFound.Error()
	case errors.Is(err, apperror.ErrGameAlreadyExists):
		return http.StatusConflict, apperror.ErrGameAlreadyExists.Error()
	case errors.Is(err, apperror.ErrConcurrentUpdateExhausted):
		return http.StatusConflict, apperror.ErrConcurrentUpdateExhausted.Error()
	case errors.Is(err, apperror.ErrArchiveDisabled):
		return http.StatusNotFound, apperror.ErrArchiveDisabled.Error()
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "request cancelled"
	case errors.Is(err, apperror.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, apperror.ErrStoreUnavailable.Error()
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

// IsRetryable - the client may resend the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, apperror.ErrConcurrentUpdateExhausted) || errors.Is(err, apperror.ErrStoreUnavailable)
}
