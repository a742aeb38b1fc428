package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
)

func TestDescribe(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid column", apperror.ErrInvalidColumn, http.StatusBadRequest, "invalid input: column out of range"},
		{"column full", fmt.Errorf("wrapped: %w", apperror.ErrColumnFull), http.StatusConflict, "illegal move: column is full"},
		{"game over", apperror.ErrGameOver, http.StatusConflict, "illegal move: game is already finished"},
		{"not found", fmt.Errorf("failed to get game: %w", apperror.ErrGameNotFound), http.StatusNotFound, "game not found"},
		{"exhausted", apperror.ErrConcurrentUpdateExhausted, http.StatusConflict, "too many concurrent updates, try again"},
		{"store down hides cause", fmt.Errorf("%w: dial tcp 10.0.0.1:6379", apperror.ErrStoreUnavailable), http.StatusServiceUnavailable, "game store unavailable"},
		{"archive disabled", apperror.ErrArchiveDisabled, http.StatusNotFound, "game archive is not configured"},
		{"caller cancelled", fmt.Errorf("failed to get game: %w", context.Canceled), StatusClientClosedRequest, "request cancelled"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, message := Describe(tc.err)

			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.message, message)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(apperror.ErrConcurrentUpdateExhausted))
	assert.True(t, IsRetryable(apperror.ErrStoreUnavailable))
	assert.False(t, IsRetryable(apperror.ErrColumnFull))
	assert.False(t, IsRetryable(apperror.ErrGameNotFound))
	assert.False(t, IsRetryable(apperror.StoreFailure("failed to get game", context.Canceled)))
}
