package service

import (
	"errors"
	"fmt"

	"guesswho/internal/game"
	"guesswho/internal/repository"
)

// Error taxonomy surfaced to callers. Only ErrTransient is ever retried.
var (
	ErrValidation        = game.ErrValidation
	ErrNotFound          = game.ErrNotFound
	ErrInvalidTransition = game.ErrInvalidTransition
	ErrPermissionDenied  = game.ErrPermissionDenied
	ErrTransient         = repository.ErrTransient
)

// classify maps store errors onto the taxonomy. A conflict means the data
// moved on under the caller, which is an invalid transition from their view.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}
	return err
}
