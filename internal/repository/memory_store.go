package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"guesswho/internal/model"
)

// MemoryStore keeps everything in process. Each session has its own lock so
// unrelated sessions never wait on each other.
type MemoryStore struct {
	mu       sync.RWMutex
	roles    map[string]model.Role
	sessions map[string]*memSession
	players  map[string]string // player id -> session id
}

type memSession struct {
	mu      sync.Mutex
	state   *model.SessionState
	history []model.Guess
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:    make(map[string]model.Role),
		sessions: make(map[string]*memSession),
		players:  make(map[string]string),
	}
}

func (s *MemoryStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]model.Role, 0, len(s.roles))
	for _, r := range s.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (s *MemoryStore) UpsertRoles(ctx context.Context, roles []model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range roles {
		for id, existing := range s.roles {
			if existing.Name == r.Name && id != r.ID {
				delete(s.roles, id)
			}
		}
		s.roles[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, st *model.SessionState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ms := range s.sessions {
		ms.mu.Lock()
		active := ms.state.Session.ExternalInstanceID == st.Session.ExternalInstanceID && !ms.state.Session.Completed
		ms.mu.Unlock()
		if active {
			return fmt.Errorf("%w: instance %s already has an active session", ErrConflict, st.Session.ExternalInstanceID)
		}
	}
	if _, ok := s.sessions[st.Session.ID]; ok {
		return fmt.Errorf("%w: session %s exists", ErrConflict, st.Session.ID)
	}
	s.sessions[st.Session.ID] = &memSession{state: st.Clone()}
	for _, p := range st.Players {
		s.players[p.ID] = st.Session.ID
	}
	return nil
}

func (s *MemoryStore) GetSessionByInstance(ctx context.Context, externalInstanceID string) (*model.SessionState, error) {
	s.mu.RLock()
	var best *memSession
	var bestSession model.Session
	for _, ms := range s.sessions {
		ms.mu.Lock()
		sess := *ms.state.Session
		ms.mu.Unlock()
		if sess.ExternalInstanceID != externalInstanceID {
			continue
		}
		if best == nil || newer(sess, bestSession) {
			best, bestSession = ms, sess
		}
	}
	s.mu.RUnlock()
	if best == nil {
		return nil, ErrNotFound
	}
	return best.snapshot(), nil
}

// newer prefers an active session, then the latest created.
func newer(a, b model.Session) bool {
	if a.Completed != b.Completed {
		return !a.Completed
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (s *MemoryStore) GetState(ctx context.Context, sessionID string) (*model.SessionState, error) {
	ms, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return ms.snapshot(), nil
}

func (s *MemoryStore) FindPlayer(ctx context.Context, playerID string) (*model.Player, error) {
	s.mu.RLock()
	sessionID, ok := s.players[playerID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	ms, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, p := range ms.state.Players {
		if p.ID == playerID {
			c := p.Clone()
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Mutate(ctx context.Context, sessionID string, fn MutateFunc) error {
	ms, err := s.session(sessionID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	work := ms.state.Clone()
	changes, err := fn(work)
	if err != nil {
		return err
	}
	if changes.Empty() {
		return nil
	}

	next := ms.state.Clone()
	if changes.Session != nil {
		sess := *changes.Session
		sess.Version = next.Session.Version + 1
		next.Session = &sess
	} else {
		next.Session.Version++
	}
	for _, p := range changes.Players {
		for i := range next.Players {
			if next.Players[i].ID == p.ID {
				next.Players[i] = p.Clone()
			}
		}
	}
	for _, g := range changes.Guesses {
		for _, existing := range next.Guesses {
			if existing.Round == g.Round && existing.GuessingPlayerID == g.GuessingPlayerID && existing.TargetPlayerID == g.TargetPlayerID {
				return fmt.Errorf("%w: guess %s -> %s already recorded", ErrConflict, g.GuessingPlayerID, g.TargetPlayerID)
			}
		}
		next.Guesses = append(next.Guesses, g.Clone())
	}
	if next.Session.Round != ms.state.Session.Round {
		ms.history = append(ms.history, next.Guesses...)
		next.Guesses = nil
	}
	ms.state = next
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) session(sessionID string) (*memSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return ms, nil
}

func (ms *memSession) snapshot() *model.SessionState {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.state.Clone()
}
