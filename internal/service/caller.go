package service

import (
	"context"
	"fmt"

	"guesswho/internal/game"
	"guesswho/internal/model"
)

type callerKey struct{}

// WithCaller attaches the authenticated caller to a request context.
func WithCaller(ctx context.Context, caller *model.CallerClaims) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller, or nil for trusted internal calls.
func CallerFrom(ctx context.Context) *model.CallerClaims {
	caller, _ := ctx.Value(callerKey{}).(*model.CallerClaims)
	return caller
}

// authorizeActor checks that the caller belongs to the session's instance and
// is the player they act as. Unknown players are left for the state machine
// to report as not found.
func authorizeActor(caller *model.CallerClaims, st *model.SessionState, playerID string) error {
	if caller == nil {
		return nil
	}
	if caller.ExternalInstanceID != st.Session.ExternalInstanceID {
		return fmt.Errorf("%w: caller is not part of this instance", ErrPermissionDenied)
	}
	p := game.FindPlayer(st, playerID)
	if p != nil && p.ExternalUserID != caller.ExternalUserID {
		return fmt.Errorf("%w: cannot act for another player", ErrPermissionDenied)
	}
	return nil
}

// authorizeObserver checks that the caller is on the session's roster.
func authorizeObserver(caller *model.CallerClaims, st *model.SessionState) error {
	if caller == nil {
		return nil
	}
	if caller.ExternalInstanceID != st.Session.ExternalInstanceID || game.FindPlayerByUser(st, caller.ExternalUserID) == nil {
		return fmt.Errorf("%w: caller is not part of this session", ErrPermissionDenied)
	}
	return nil
}
