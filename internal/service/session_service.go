package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"guesswho/internal/cache"
	"guesswho/internal/game"
	"guesswho/internal/model"
	"guesswho/internal/notify"
	"guesswho/internal/repository"
)

const leaderboardLimit = 100

// SessionService is the facade over the state machine, the store and the
// notifier. Decisions always run on a read taken inside the store transaction
// that writes them, and transitions are announced only after commit.
type SessionService struct {
	store             repository.Store
	notifier          Notifier
	assets            *AssetResolver
	retry             RetryPolicy
	defaultScoreToWin int

	sessionCache cache.SessionCache
	leaderboard  cache.LeaderboardCache

	newID func() string
	now   func() time.Time
	log   *logrus.Entry
}

// SessionOptions tunes the facade.
type SessionOptions struct {
	DefaultScoreToWin int
	Retry             RetryPolicy
}

// NewSessionService creates a new session service
func NewSessionService(store repository.Store, notifier Notifier, assets *AssetResolver, opts SessionOptions) *SessionService {
	if opts.DefaultScoreToWin < 1 {
		opts.DefaultScoreToWin = 18
	}
	return &SessionService{
		store:             store,
		notifier:          notifier,
		assets:            assets,
		retry:             opts.Retry,
		defaultScoreToWin: opts.DefaultScoreToWin,
		newID:             uuid.NewString,
		now:               func() time.Time { return time.Now().UTC() },
		log:               logrus.WithField("component", "session_service"),
	}
}

// SetCaches enables the Redis read caches. Either may be nil.
func (s *SessionService) SetCaches(sessions cache.SessionCache, leaderboard cache.LeaderboardCache) {
	s.sessionCache = sessions
	s.leaderboard = leaderboard
}

// CreateSessionInput is the createSession payload. HostUserID is taken from
// the caller when one is present.
type CreateSessionInput struct {
	ExternalInstanceID string              `json:"externalInstanceId"`
	Hosting            bool                `json:"hosting"`
	ScoreToWin         int                 `json:"scoreToWin"`
	Players            []model.RosterEntry `json:"players"`
	RoleIDs            []string            `json:"roleIds"`
	HostUserID         string              `json:"-"`
}

type SubmitGuessesInput struct {
	SessionID string            `json:"-"`
	PlayerID  string            `json:"playerId"`
	Completed bool              `json:"completed"`
	Guesses   []game.GuessInput `json:"guesses"`
}

// ListRoles returns the catalog sorted by name
func (s *SessionService) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := s.retry.Do(ctx, "list_roles", func(ctx context.Context) error {
		var err error
		roles, err = s.store.ListRoles(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", classify(err))
	}
	game.SortRoles(roles)
	return roles, nil
}

// CreateSession opens a session for the instance with the given roster and role pool
func (s *SessionService) CreateSession(ctx context.Context, in CreateSessionInput) (*model.SessionView, error) {
	if caller := CallerFrom(ctx); caller != nil {
		if caller.ExternalInstanceID != in.ExternalInstanceID {
			return nil, fmt.Errorf("%w: caller is not part of this instance", ErrPermissionDenied)
		}
		in.HostUserID = caller.ExternalUserID
	}
	if in.ScoreToWin == 0 {
		in.ScoreToWin = s.defaultScoreToWin
	}

	catalog, err := s.ListRoles(ctx)
	if err != nil {
		return nil, err
	}

	roster := make([]model.RosterEntry, len(in.Players))
	for i, p := range in.Players {
		roster[i] = p
		roster[i].AvatarURL = s.assets.ResolveAvatar(p.ExternalUserID, p.AvatarURL)
	}

	st, err := game.NewSession(game.CreateInput{
		ExternalInstanceID: in.ExternalInstanceID,
		Hosting:            in.Hosting,
		HostUserID:         in.HostUserID,
		ScoreToWin:         in.ScoreToWin,
		Players:            roster,
		RoleIDs:            in.RoleIDs,
	}, catalog, s.newID, nil, s.now())
	if err != nil {
		return nil, err
	}

	wctx := context.WithoutCancel(ctx)
	err = s.retry.Do(wctx, "create_session", func(ctx context.Context) error {
		err := s.store.CreateSession(ctx, st)
		if errors.Is(err, repository.ErrConflict) {
			// A retry after an unknown commit finds its own session.
			if existing, getErr := s.store.GetState(ctx, st.Session.ID); getErr == nil && existing != nil {
				return nil
			}
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", classify(err))
	}

	s.log.WithFields(logrus.Fields{
		"session_id":  st.Session.ID,
		"instance_id": st.Session.ExternalInstanceID,
		"players":     len(st.Players),
		"roles":       len(st.Roles),
	}).Info("session created")

	s.afterCommit(wctx, st, "", st.Players)
	return s.buildView(st, in.HostUserID), nil
}

// GetSession returns the instance's current session as seen by the caller
func (s *SessionService) GetSession(ctx context.Context, externalInstanceID string) (*model.SessionView, error) {
	caller := CallerFrom(ctx)
	if caller != nil && caller.ExternalInstanceID != externalInstanceID {
		return nil, fmt.Errorf("%w: caller is not part of this instance", ErrPermissionDenied)
	}

	st := s.cachedSession(ctx, externalInstanceID)
	if st == nil {
		err := s.retry.Do(ctx, "get_session", func(ctx context.Context) error {
			var err error
			st, err = s.store.GetSessionByInstance(ctx, externalInstanceID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", classify(err))
		}
		s.cacheSession(ctx, st)
	}

	viewer := ""
	if caller != nil {
		viewer = caller.ExternalUserID
	}
	return s.buildView(st, viewer), nil
}

// AssignRole sets the player's role for the current round. The player record
// is returned only to the caller; other players learn nothing but readiness.
func (s *SessionService) AssignRole(ctx context.Context, playerID, sessionRoleID string) (*model.Player, error) {
	if playerID == "" {
		return nil, fmt.Errorf("%w: playerId is required", ErrValidation)
	}
	caller := CallerFrom(ctx)

	var player *model.Player
	err := s.retry.Do(ctx, "find_player", func(ctx context.Context) error {
		var err error
		player, err = s.store.FindPlayer(ctx, playerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find player: %w", classify(err))
	}

	var assigned model.Player
	var committed *model.SessionState
	ready, attempted := false, false
	wctx := context.WithoutCancel(ctx)
	err = s.mutate(wctx, "assign_role", player.SessionID, func(st *model.SessionState) (*model.StateChanges, error) {
		if err := authorizeActor(caller, st, playerID); err != nil {
			return nil, err
		}
		// An earlier attempt of this call whose commit outcome was unknown
		// already set the role; keep that attempt's view of readiness.
		if attempted {
			if p := game.FindPlayer(st, playerID); p != nil && p.HasRole() && *p.AssignedSessionRoleID == sessionRoleID {
				assigned = p.Clone()
				return nil, nil
			}
		}
		attempted = true
		r, err := game.AssignRole(st, playerID, sessionRoleID)
		if err != nil {
			return nil, err
		}
		committed, ready, assigned = st, r.BecameReady, r.Player
		return r.Changes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}

	if committed != nil {
		event := notify.Event("")
		if ready {
			event = notify.EventPlayersReady
		}
		s.afterCommit(wctx, committed, event, nil)
	}
	return &assigned, nil
}

// SubmitGuesses records a player's guess sheet for the current round.
// Replaying a sheet that already committed changes nothing.
func (s *SessionService) SubmitGuesses(ctx context.Context, in SubmitGuessesInput) error {
	if in.SessionID == "" || in.PlayerID == "" {
		return fmt.Errorf("%w: sessionId and playerId are required", ErrValidation)
	}
	caller := CallerFrom(ctx)

	var committed *model.SessionState
	awarded, ready := 0, false
	wctx := context.WithoutCancel(ctx)
	err := s.mutate(wctx, "submit_guesses", in.SessionID, func(st *model.SessionState) (*model.StateChanges, error) {
		if err := authorizeActor(caller, st, in.PlayerID); err != nil {
			return nil, err
		}
		r, err := game.SubmitGuesses(st, game.SubmitInput{
			PlayerID:  in.PlayerID,
			Completed: in.Completed,
			Guesses:   in.Guesses,
		}, s.newID, s.now())
		if err != nil {
			return nil, err
		}
		if !r.Replayed {
			committed, ready, awarded = st, r.BecameReady, r.Awarded[in.PlayerID]
		}
		return r.Changes, nil
	})
	if err != nil {
		return fmt.Errorf("failed to submit guesses: %w", err)
	}
	if committed == nil {
		s.log.WithFields(logrus.Fields{"session_id": in.SessionID, "player_id": in.PlayerID}).Info("guess sheet replayed, ignoring")
		return nil
	}

	s.log.WithFields(logrus.Fields{
		"session_id": in.SessionID,
		"player_id":  in.PlayerID,
		"awarded":    awarded,
	}).Info("guesses submitted")

	event := notify.Event("")
	if ready {
		event = notify.EventGuessesSubmitted
	}
	s.afterCommit(wctx, committed, event, committed.Players)
	return nil
}

// AdvanceRound closes the round on the host's request, completing the session
// once someone reached scoreToWin.
func (s *SessionService) AdvanceRound(ctx context.Context, sessionID, requestedBy string) error {
	if sessionID == "" || requestedBy == "" {
		return fmt.Errorf("%w: sessionId and requestedBy are required", ErrValidation)
	}
	caller := CallerFrom(ctx)

	var committed *model.SessionState
	completed := false
	fromRound := 0
	wctx := context.WithoutCancel(ctx)
	err := s.mutate(wctx, "advance_round", sessionID, func(st *model.SessionState) (*model.StateChanges, error) {
		if err := authorizeActor(caller, st, requestedBy); err != nil {
			return nil, err
		}
		// An earlier attempt whose commit outcome was unknown already advanced it.
		if fromRound != 0 && (st.Session.Round > fromRound || st.Session.Completed) {
			return nil, nil
		}
		fromRound = st.Session.Round
		r, err := game.AdvanceRound(st, requestedBy, s.now())
		if err != nil {
			return nil, err
		}
		committed, completed = st, r.Completed
		return r.Changes, nil
	})
	if err != nil {
		return fmt.Errorf("failed to advance round: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"round":      committed.Session.Round,
		"completed":  completed,
	}).Info("round advanced")

	s.afterCommit(wctx, committed, notify.EventNextRound, nil)
	return nil
}

// GetRoundResults returns the current round's guess matrix
func (s *SessionService) GetRoundResults(ctx context.Context, sessionID string) (*model.RoundResults, error) {
	st, err := s.state(ctx, "get_results", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	if err := authorizeObserver(CallerFrom(ctx), st); err != nil {
		return nil, err
	}
	results, err := game.RoundResults(st)
	if err != nil {
		return nil, err
	}
	for i := range results.Rows {
		results.Rows[i].AvatarURL = s.assets.ResolveAvatar(results.Rows[i].ExternalUserID, results.Rows[i].AvatarURL)
	}
	return results, nil
}

// GetLeaderboard ranks the session's players by score, from the Redis ZSET
// when it is populated.
func (s *SessionService) GetLeaderboard(ctx context.Context, sessionID string) ([]model.LeaderboardEntry, error) {
	var st *model.SessionState
	if caller := CallerFrom(ctx); caller != nil {
		var err error
		if st, err = s.state(ctx, "get_leaderboard", sessionID); err != nil {
			return nil, fmt.Errorf("failed to get leaderboard: %w", err)
		}
		if err := authorizeObserver(caller, st); err != nil {
			return nil, err
		}
	}

	if s.leaderboard != nil {
		entries, err := s.leaderboard.GetTop(ctx, sessionID, leaderboardLimit)
		if err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("leaderboard cache read failed")
		} else if len(entries) > 0 {
			return entries, nil
		}
	}

	if st == nil {
		var err error
		if st, err = s.state(ctx, "get_leaderboard", sessionID); err != nil {
			return nil, fmt.Errorf("failed to get leaderboard: %w", err)
		}
	}
	return game.Leaderboard(st.Players), nil
}

// CanObserve reports whether the caller may subscribe to the session's notifications
func (s *SessionService) CanObserve(ctx context.Context, sessionID string, caller *model.CallerClaims) error {
	st, err := s.state(ctx, "can_observe", sessionID)
	if err != nil {
		return err
	}
	if caller == nil {
		return fmt.Errorf("%w: caller required", ErrPermissionDenied)
	}
	return authorizeObserver(caller, st)
}

func (s *SessionService) state(ctx context.Context, op, sessionID string) (*model.SessionState, error) {
	var st *model.SessionState
	err := s.retry.Do(ctx, op, func(ctx context.Context) error {
		var err error
		st, err = s.store.GetState(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return st, nil
}

// mutate runs fn in a store transaction with bounded retries. fn must be safe
// to run again after an attempt whose commit outcome was unknown.
func (s *SessionService) mutate(ctx context.Context, op, sessionID string, fn repository.MutateFunc) error {
	err := s.retry.Do(ctx, op, func(ctx context.Context) error {
		return s.store.Mutate(ctx, sessionID, fn)
	})
	return classify(err)
}

// afterCommit refreshes read caches and announces the transition, if any.
// It runs only once the write is durable.
func (s *SessionService) afterCommit(ctx context.Context, st *model.SessionState, event notify.Event, scored []model.Player) {
	log := s.log.WithField("session_id", st.Session.ID)
	s.refreshSessionCache(ctx, st)
	if s.leaderboard != nil && len(scored) > 0 {
		if err := s.leaderboard.UpdateScores(ctx, st.Session.ID, scored); err != nil {
			log.WithError(err).Warn("failed to update leaderboard")
		}
	}
	if event == "" {
		return
	}
	phaseTransitionsTotal.WithLabelValues(string(event)).Inc()
	log.WithField("event", event).Info("phase transition")
	s.notifier.Notify(ctx, st.Session.ID, event)
}

func (s *SessionService) cachedSession(ctx context.Context, externalInstanceID string) *model.SessionState {
	if s.sessionCache == nil {
		return nil
	}
	st, err := s.sessionCache.Get(ctx, externalInstanceID)
	if err != nil {
		s.log.WithError(err).Warn("session cache read failed")
		return nil
	}
	if st == nil || st.Session == nil {
		return nil
	}
	return st
}

// refreshSessionCache stores a read taken after the commit. The cache keeps
// whichever snapshot is newest, so a getSession that read before the commit
// cannot put its older state back once clients have been told to refetch.
func (s *SessionService) refreshSessionCache(ctx context.Context, st *model.SessionState) {
	if s.sessionCache == nil {
		return
	}
	var fresh *model.SessionState
	err := s.retry.Do(ctx, "refresh_session_cache", func(ctx context.Context) error {
		var err error
		fresh, err = s.store.GetState(ctx, st.Session.ID)
		return err
	})
	if err != nil {
		s.log.WithError(err).WithField("session_id", st.Session.ID).Warn("failed to reload session, invalidating cache")
		if err := s.sessionCache.Delete(ctx, st.Session.ExternalInstanceID); err != nil {
			s.log.WithError(err).Warn("failed to invalidate session cache")
		}
		return
	}
	s.cacheSession(ctx, fresh)
}

func (s *SessionService) cacheSession(ctx context.Context, st *model.SessionState) {
	if s.sessionCache == nil {
		return
	}
	if err := s.sessionCache.Set(ctx, st); err != nil {
		s.log.WithError(err).Warn("session cache write failed")
	}
}
