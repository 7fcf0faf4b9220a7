package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guesswho/internal/cache"
	"guesswho/internal/game"
	"guesswho/internal/model"
	"guesswho/internal/notify"
	"guesswho/internal/repository"
)

const instance = "room-1"

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, sessionID string, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count(event notify.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

// flakyStore fails Mutate calls on demand, either before touching the data or
// after committing it.
type flakyStore struct {
	*repository.MemoryStore
	mu         sync.Mutex
	failBefore int
	failAfter  int
	calls      int
	afterRead  func()
}

// GetSessionByInstance runs afterRead, if set, between the read and the return.
func (f *flakyStore) GetSessionByInstance(ctx context.Context, externalInstanceID string) (*model.SessionState, error) {
	st, err := f.MemoryStore.GetSessionByInstance(ctx, externalInstanceID)
	f.mu.Lock()
	hook := f.afterRead
	f.afterRead = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return st, err
}

func (f *flakyStore) Mutate(ctx context.Context, sessionID string, fn repository.MutateFunc) error {
	f.mu.Lock()
	f.calls++
	before := f.failBefore > 0
	if before {
		f.failBefore--
	}
	after := !before && f.failAfter > 0
	if after {
		f.failAfter--
	}
	f.mu.Unlock()

	if before {
		return fmt.Errorf("%w: injected failure", repository.ErrTransient)
	}
	err := f.MemoryStore.Mutate(ctx, sessionID, fn)
	if err == nil && after {
		return fmt.Errorf("%w: commit outcome unknown", repository.ErrTransient)
	}
	return err
}

type fixture struct {
	svc   *SessionService
	store *flakyStore
	notes *recordingNotifier
	view  *model.SessionView
}

func user(i int) string { return fmt.Sprintf("u%d", i+1) }

func as(i int) context.Context {
	return WithCaller(context.Background(), &model.CallerClaims{ExternalInstanceID: instance, ExternalUserID: user(i)})
}

func newFixture(t *testing.T, scoreToWin int, roles ...string) *fixture {
	t.Helper()
	store := &flakyStore{MemoryStore: repository.NewMemoryStore()}
	require.NoError(t, store.UpsertRoles(context.Background(), game.DefaultRoles(time.Now())))

	notes := &recordingNotifier{}
	svc := NewSessionService(store, notes, NewAssetResolver("https://assets.test", "https://cdn.test"), SessionOptions{
		DefaultScoreToWin: 18,
		Retry:             RetryPolicy{Attempts: 3, Backoff: time.Millisecond, Timeout: time.Second},
	})

	roster := make([]model.RosterEntry, len(roles))
	roleIDs := make([]string, len(roles))
	for i, name := range roles {
		roster[i] = model.RosterEntry{ExternalUserID: user(i), DisplayName: fmt.Sprintf("Player %d", i+1)}
		roleIDs[i] = game.RoleID(name)
	}
	view, err := svc.CreateSession(as(0), CreateSessionInput{
		ExternalInstanceID: instance,
		Hosting:            true,
		ScoreToWin:         scoreToWin,
		Players:            roster,
		RoleIDs:            roleIDs,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, notes: notes, view: view}
}

func (f *fixture) player(i int) string { return f.view.Players[i].ID }

func (f *fixture) role(t *testing.T, name string) string {
	t.Helper()
	for _, r := range f.view.Roles {
		if r.Name == name {
			return r.ID
		}
	}
	t.Fatalf("role %s not in session", name)
	return ""
}

func (f *fixture) session(t *testing.T, i int) *model.SessionView {
	t.Helper()
	view, err := f.svc.GetSession(as(i), instance)
	require.NoError(t, err)
	return view
}

// assign gives player i the i-th role name.
func (f *fixture) assign(t *testing.T, names ...string) {
	t.Helper()
	for i, name := range names {
		_, err := f.svc.AssignRole(as(i), f.player(i), f.role(t, name))
		require.NoError(t, err)
	}
}

// sheet guesses the named roles for every other player in seat order.
func (f *fixture) sheet(t *testing.T, guesser int, names ...string) []game.GuessInput {
	t.Helper()
	var out []game.GuessInput
	k := 0
	for i := range f.view.Players {
		if i == guesser {
			continue
		}
		out = append(out, game.GuessInput{TargetPlayerID: f.player(i), GuessedSessionRoleID: f.role(t, names[k])})
		k++
	}
	return out
}

func (f *fixture) submit(t *testing.T, i int, completed bool, names ...string) error {
	t.Helper()
	return f.svc.SubmitGuesses(as(i), SubmitGuessesInput{
		SessionID: f.view.ID,
		PlayerID:  f.player(i),
		Completed: completed,
		Guesses:   f.sheet(t, i, names...),
	})
}

var fourRoles = []string{"Agent", "King", "Mafia", "Villager"}

// playRound assigns the four roles and has everyone submit, leaving the
// session in RoundComplete. Player 1 completes with 2 correct guesses.
func (f *fixture) playRound(t *testing.T) {
	t.Helper()
	f.assign(t, fourRoles...)
	require.NoError(t, f.submit(t, 0, true, "King", "Mafia", "Agent"))
	require.NoError(t, f.submit(t, 1, false, "Agent", "Mafia", "Villager"))
	require.NoError(t, f.submit(t, 2, false, "King", "King", "King"))
	require.NoError(t, f.submit(t, 3, true, "Mafia", "Agent", "King"))
}

func TestCreateSessionAndGetSession(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)

	view := f.session(t, 1)
	assert.Len(t, view.Roles, 4)
	assert.Len(t, view.Players, 4)
	assert.False(t, view.RoleReady)
	assert.False(t, view.Completed)
	assert.Equal(t, string(game.PhaseAwaitingRoles), view.Phase)
	assert.Equal(t, 1, view.Round)
	assert.Equal(t, 18, view.ScoreToWin)

	cosmetics := map[string]bool{}
	for i, p := range view.Players {
		assert.Equal(t, i == 0, p.IsHost)
		assert.Contains(t, p.AvatarURL, "https://cdn.test/embed/avatars/")
		assert.Equal(t, "https://assets.test/cosmetics/"+p.Cosmetic+".png", p.CosmeticURL)
		assert.False(t, cosmetics[p.Cosmetic])
		cosmetics[p.Cosmetic] = true
		assert.Nil(t, p.Role)
	}
	assert.Equal(t, "https://assets.test/roles/agent.png", view.Roles[0].ImageURL)
	assert.Empty(t, f.notes.events)
}

func TestCreateSessionRejections(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)
	roster := []model.RosterEntry{{ExternalUserID: "u1", DisplayName: "A"}, {ExternalUserID: "u2", DisplayName: "B"}}
	in := CreateSessionInput{ExternalInstanceID: instance, Hosting: true, Players: roster, RoleIDs: []string{game.RoleID("Agent")}}

	_, err := f.svc.CreateSession(as(0), in)
	assert.ErrorIs(t, err, ErrInvalidTransition, "instance already has an active session")

	other := in
	other.ExternalInstanceID = "room-2"
	_, err = f.svc.CreateSession(as(0), other)
	assert.ErrorIs(t, err, ErrPermissionDenied, "token is for another instance")

	notHosting := other
	notHosting.Hosting = false
	_, err = f.svc.CreateSession(context.Background(), notHosting)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	badScore := other
	badScore.ScoreToWin = -1
	badScore.HostUserID = "u1"
	_, err = f.svc.CreateSession(context.Background(), badScore)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.GetSession(context.Background(), "room-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignRoleReadiness(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)

	for i, name := range fourRoles[:3] {
		p, err := f.svc.AssignRole(as(i), f.player(i), f.role(t, name))
		require.NoError(t, err)
		require.NotNil(t, p.AssignedSessionRoleID)
		assert.Equal(t, f.role(t, name), *p.AssignedSessionRoleID)
		assert.False(t, f.session(t, 0).RoleReady)
	}
	assert.Zero(t, f.notes.count(notify.EventPlayersReady))

	_, err := f.svc.AssignRole(as(3), f.player(3), f.role(t, "Villager"))
	require.NoError(t, err)
	view := f.session(t, 3)
	assert.True(t, view.RoleReady)
	assert.Equal(t, string(game.PhaseAwaitingGuesses), view.Phase)
	assert.Equal(t, 1, f.notes.count(notify.EventPlayersReady))

	t.Run("roles are only visible to their owner", func(t *testing.T) {
		for i, p := range view.Players {
			if i == 3 {
				require.NotNil(t, p.Role)
				assert.Equal(t, "Villager", p.Role.Name)
			} else {
				assert.Nil(t, p.Role)
			}
			assert.True(t, p.HasRole)
		}
	})

	t.Run("assigning the same role twice is rejected", func(t *testing.T) {
		_, err := f.svc.AssignRole(as(3), f.player(3), f.role(t, "Villager"))
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, 1, f.notes.count(notify.EventPlayersReady))
	})

	t.Run("changing role mid-round is rejected", func(t *testing.T) {
		_, err := f.svc.AssignRole(as(3), f.player(3), f.role(t, "Agent"))
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("acting for another player is denied", func(t *testing.T) {
		_, err := f.svc.AssignRole(as(1), f.player(0), f.role(t, "Agent"))
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("unknown player", func(t *testing.T) {
		_, err := f.svc.AssignRole(as(0), "ghost", f.role(t, "Agent"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSubmitGuessesScoresOnce(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)
	f.assign(t, fourRoles...)

	// Two correct and one wrong, mission completed.
	require.NoError(t, f.submit(t, 0, true, "King", "Mafia", "Agent"))
	assert.Equal(t, 6, f.session(t, 0).Players[0].Score)

	require.NoError(t, f.submit(t, 0, true, "King", "Mafia", "Villager"))
	assert.Equal(t, 6, f.session(t, 0).Players[0].Score, "replayed sheet must not score again")
	assert.Zero(t, f.notes.count(notify.EventGuessesSubmitted))

	err := f.svc.SubmitGuesses(as(1), SubmitGuessesInput{SessionID: f.view.ID, PlayerID: f.player(1), Guesses: f.sheet(t, 1, "Agent")[:1]})
	assert.ErrorIs(t, err, ErrValidation)

	err = f.submit(t, 0, true, "King", "Mafia", "Agent")
	require.NoError(t, err)

	err = f.svc.SubmitGuesses(as(2), SubmitGuessesInput{SessionID: f.view.ID, PlayerID: f.player(1), Guesses: f.sheet(t, 1, "Agent", "Mafia", "Villager")})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSubmitBeforeRolesAreIn(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)
	_, err := f.svc.AssignRole(as(0), f.player(0), f.role(t, "Agent"))
	require.NoError(t, err)

	err = f.submit(t, 0, true, "King", "Mafia", "Villager")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.GetRoundResults(as(0), f.view.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRoundCompletesOnceEveryoneSubmitted(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)
	f.playRound(t)

	assert.Equal(t, 1, f.notes.count(notify.EventGuessesSubmitted))
	view := f.session(t, 2)
	assert.Equal(t, string(game.PhaseRoundComplete), view.Phase)
	assert.True(t, view.GuessesReady)
	for _, p := range view.Players {
		assert.NotNil(t, p.Role, "roles are revealed once the round is complete")
	}

	require.NoError(t, f.submit(t, 3, false, "Agent", "Agent", "Agent"))
	after := f.session(t, 2)
	for i := range view.Players {
		assert.Equal(t, view.Players[i].Score, after.Players[i].Score)
	}

	results, err := f.svc.GetRoundResults(as(1), f.view.ID)
	require.NoError(t, err)
	require.Len(t, results.Rows, 4)

	total, correct, completed := 0, 0, 0
	for i, row := range results.Rows {
		assert.Equal(t, user(i), row.ExternalUserID)
		assert.Equal(t, fourRoles[i], row.RoleName)
		total += row.Points
		for _, g := range row.Guesses {
			if g.Correct {
				correct++
			}
		}
		if row.Completed {
			completed++
		}
		assert.Equal(t, after.Players[i].Score, row.Points)
	}
	assert.Equal(t, correct+4*completed, total)
	assert.Equal(t, 6, results.Rows[0].Points)
}

func TestAdvanceRound(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)
	f.playRound(t)

	err := f.svc.AdvanceRound(as(1), f.view.ID, f.player(1))
	assert.ErrorIs(t, err, ErrPermissionDenied)
	err = f.svc.AdvanceRound(as(1), f.view.ID, f.player(0))
	assert.ErrorIs(t, err, ErrPermissionDenied, "cannot borrow the host's id")
	assert.Zero(t, f.notes.count(notify.EventNextRound))

	require.NoError(t, f.svc.AdvanceRound(as(0), f.view.ID, f.player(0)))
	view := f.session(t, 0)
	assert.Equal(t, string(game.PhaseAwaitingRoles), view.Phase)
	assert.Equal(t, 2, view.Round)
	assert.False(t, view.Completed)
	for _, p := range view.Players {
		assert.False(t, p.HasRole)
		assert.False(t, p.RoundCompleted)
		assert.Nil(t, p.Role)
	}
	assert.Equal(t, 1, f.notes.count(notify.EventNextRound))

	err = f.svc.AdvanceRound(as(0), f.view.ID, f.player(0))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Scores carry over and the next round plays normally.
	f.assign(t, "Villager", "Mafia", "King", "Agent")
	assert.Equal(t, 2, f.notes.count(notify.EventPlayersReady))
}

func TestSessionCompletes(t *testing.T) {
	f := newFixture(t, 5, fourRoles...)
	f.playRound(t)

	require.NoError(t, f.svc.AdvanceRound(as(0), f.view.ID, f.player(0)))
	view := f.session(t, 0)
	assert.True(t, view.Completed)
	assert.Equal(t, string(game.PhaseCompleted), view.Phase)
	assert.Equal(t, 1, f.notes.count(notify.EventNextRound))

	_, err := f.svc.AssignRole(as(0), f.player(0), f.role(t, "Agent"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = f.svc.AdvanceRound(as(0), f.view.ID, f.player(0))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	board, err := f.svc.GetLeaderboard(as(2), f.view.ID)
	require.NoError(t, err)
	require.Len(t, board, 4)
	assert.Equal(t, f.player(0), board[0].PlayerID)
	assert.Equal(t, 1, board[0].Rank)

	// The instance is free for a new game.
	_, err = f.svc.CreateSession(as(0), CreateSessionInput{
		ExternalInstanceID: instance,
		Hosting:            true,
		Players:            []model.RosterEntry{{ExternalUserID: "u1", DisplayName: "A"}, {ExternalUserID: "u2", DisplayName: "B"}},
		RoleIDs:            []string{game.RoleID("Agent"), game.RoleID("King")},
	})
	require.NoError(t, err)
	assert.False(t, f.session(t, 0).Completed)
}

func TestSpecialRoleAdjudicatedAtRoundEnd(t *testing.T) {
	f := newFixture(t, 0, "Agent", "Fool", "King")
	f.assign(t, "Agent", "Fool", "King")

	require.NoError(t, f.svc.SubmitGuesses(as(1), SubmitGuessesInput{SessionID: f.view.ID, PlayerID: f.player(1), Completed: true}))
	require.NoError(t, f.submit(t, 0, false, "King", "King"))
	assert.Zero(t, f.notes.count(notify.EventGuessesSubmitted))
	require.NoError(t, f.submit(t, 2, false, "Agent", "Agent"))
	assert.Equal(t, 1, f.notes.count(notify.EventGuessesSubmitted))

	view := f.session(t, 1)
	fool := view.Players[1]
	assert.True(t, fool.RoundCompleted)
	assert.Equal(t, 4, fool.Score)
}

func TestConcurrentActionsTransitionOnce(t *testing.T) {
	roles := []string{"Agent", "Detonator", "Guardian", "King", "Mafia", "Pacifist", "Villager"}
	f := newFixture(t, 0, roles...)

	var wg sync.WaitGroup
	for i := range roles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.AssignRole(as(i), f.player(i), f.role(t, roles[i]))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, f.notes.count(notify.EventPlayersReady))

	for i := range roles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var names []string
			for j := range roles {
				if j == i {
					continue
				}
				if (i+j)%2 == 0 {
					names = append(names, roles[j])
				} else {
					names = append(names, roles[(j+1)%len(roles)])
				}
			}
			assert.NoError(t, f.submit(t, i, i%2 == 0, names...))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, f.notes.count(notify.EventGuessesSubmitted))

	results, err := f.svc.GetRoundResults(as(0), f.view.ID)
	require.NoError(t, err)
	view := f.session(t, 0)
	total, correct, completed := 0, 0, 0
	for _, p := range view.Players {
		total += p.Score
	}
	for _, row := range results.Rows {
		for _, g := range row.Guesses {
			if g.Correct {
				correct++
			}
		}
		if row.Completed {
			completed++
		}
	}
	assert.Equal(t, correct+4*completed, total)
}

func TestTransientFailuresAreRetried(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)
	f.assign(t, fourRoles...)

	f.store.failBefore = 2
	require.NoError(t, f.submit(t, 0, true, "King", "Mafia", "Agent"))
	assert.Equal(t, 6, f.session(t, 0).Players[0].Score)

	f.store.failBefore = 3
	err := f.submit(t, 1, true, "Agent", "Mafia", "Villager")
	assert.ErrorIs(t, err, ErrTransient)
	assert.Zero(t, f.session(t, 1).Players[1].Score, "nothing committed")
}

func TestUnknownCommitOutcomeIsNotDoubleApplied(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)
	f.assign(t, fourRoles[:3]...)

	f.store.failAfter = 1
	_, err := f.svc.AssignRole(as(3), f.player(3), f.role(t, "Villager"))
	require.NoError(t, err, "retry of a committed assignment succeeds")
	assert.Equal(t, 1, f.notes.count(notify.EventPlayersReady))
	assert.True(t, f.session(t, 3).RoleReady)

	f.store.failAfter = 1
	require.NoError(t, f.submit(t, 0, true, "King", "Mafia", "Agent"))
	assert.Equal(t, 6, f.session(t, 0).Players[0].Score)

	require.NoError(t, f.submit(t, 1, false, "Agent", "Mafia", "Villager"))
	require.NoError(t, f.submit(t, 2, false, "King", "King", "King"))
	f.store.failAfter = 1
	require.NoError(t, f.submit(t, 3, true, "Mafia", "Agent", "King"))
	assert.Equal(t, 1, f.notes.count(notify.EventGuessesSubmitted), "last sheet still announces the round")

	f.store.failAfter = 1
	require.NoError(t, f.svc.AdvanceRound(as(0), f.view.ID, f.player(0)))
	view := f.session(t, 0)
	assert.Equal(t, 2, view.Round, "round advanced exactly once")
	assert.Equal(t, 1, f.notes.count(notify.EventNextRound))
}

func TestSessionCacheNeverServesStateOlderThanNotification(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	f.svc.SetCaches(cache.NewSessionCache(rdb, time.Minute), nil)

	f.assign(t, fourRoles[:3]...)
	mr.FlushAll()

	read, resume := make(chan struct{}), make(chan struct{})
	f.store.mu.Lock()
	f.store.afterRead = func() {
		close(read)
		<-resume
	}
	f.store.mu.Unlock()

	done := make(chan *model.SessionView)
	go func() {
		view, err := f.svc.GetSession(as(1), instance)
		assert.NoError(t, err)
		done <- view
	}()
	<-read

	_, err := f.svc.AssignRole(as(3), f.player(3), f.role(t, "Villager"))
	require.NoError(t, err)
	require.Equal(t, 1, f.notes.count(notify.EventPlayersReady))

	close(resume)
	stale := <-done
	assert.False(t, stale.RoleReady, "the slow reader saw the state before the commit")

	view := f.session(t, 2)
	assert.True(t, view.RoleReady)
	assert.Equal(t, string(game.PhaseAwaitingGuesses), view.Phase)
}

func TestCanObserve(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)

	assert.NoError(t, f.svc.CanObserve(context.Background(), f.view.ID, &model.CallerClaims{ExternalInstanceID: instance, ExternalUserID: "u2"}))
	assert.ErrorIs(t, f.svc.CanObserve(context.Background(), f.view.ID, &model.CallerClaims{ExternalInstanceID: instance, ExternalUserID: "stranger"}), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.CanObserve(context.Background(), f.view.ID, &model.CallerClaims{ExternalInstanceID: "room-2", ExternalUserID: "u2"}), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.CanObserve(context.Background(), "missing", &model.CallerClaims{}), ErrNotFound)
}

func TestListRolesSorted(t *testing.T) {
	f := newFixture(t, 0, fourRoles...)
	roles, err := f.svc.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 8)
	for i := 1; i < len(roles); i++ {
		assert.Less(t, roles[i-1].Name, roles[i].Name)
	}
}
