package repository

import (
	"context"
	"errors"

	"guesswho/internal/model"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrConflict means a write violated a uniqueness rule, such as a second
	// active session for the same external instance.
	ErrConflict = errors.New("repository: conflict")
	// ErrTransient covers timeouts, dropped connections and serialization
	// failures. The same call may succeed if retried.
	ErrTransient = errors.New("repository: transient failure")
)

// MutateFunc decides what to write from a consistent read of one session.
// Returning an error aborts the transaction and is passed back unchanged.
type MutateFunc func(st *model.SessionState) (*model.StateChanges, error)

// Store persists sessions. Every mutating call is one all-or-nothing unit, and
// Mutate reads and writes a session inside the same transaction so concurrent
// callers on one session are serialized.
type Store interface {
	ListRoles(ctx context.Context) ([]model.Role, error)
	UpsertRoles(ctx context.Context, roles []model.Role) error

	// CreateSession inserts the session with its roles and players.
	// Returns ErrConflict if the instance already has an active session.
	CreateSession(ctx context.Context, st *model.SessionState) error
	// GetSessionByInstance returns the active session for the instance, or the
	// most recent completed one.
	GetSessionByInstance(ctx context.Context, externalInstanceID string) (*model.SessionState, error)
	GetState(ctx context.Context, sessionID string) (*model.SessionState, error)
	FindPlayer(ctx context.Context, playerID string) (*model.Player, error)

	Mutate(ctx context.Context, sessionID string, fn MutateFunc) error

	Close(ctx context.Context) error
}
