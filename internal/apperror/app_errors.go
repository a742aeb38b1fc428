package apperror

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrIllegalMove  = errors.New("illegal move")

	ErrInvalidColumn = fmt.Errorf("%w: column out of range", ErrInvalidInput)
	ErrColumnFull    = fmt.Errorf("%w: column is full", ErrIllegalMove)
	ErrGameOver      = fmt.Errorf("%w: game is already finished", ErrIllegalMove)

	ErrConcurrentUpdate          = errors.New("game was updated concurrently")
	ErrConcurrentUpdateExhausted = errors.New("too many concurrent updates, try again")
	ErrStoreUnavailable          = errors.New("game store unavailable")

	ErrGameNotFound      = errors.New("game not found")
	ErrGameAlreadyExists = errors.New("game already exists")

	ErrArchiveDisabled = errors.New("game archive is not configured")
)

// StoreFailure - wraps err as ErrStoreUnavailable. A caller that cancelled is not a store failure
// and keeps context.Canceled as the only sentinel.
func StoreFailure(msg string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", msg, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, msg, err)
}
