package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm/logger"

	"guesswho/internal/game"
	"guesswho/internal/model"
)

// These run against live databases and are skipped unless
// TEST_MONGO_URI (a replica set) or TEST_DATABASE_URL is set.

func TestMongoStoreIntegration(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	dbName := "guesswho_test_" + uuid.NewString()[:8]
	s := NewMongoStore(ctx, client, dbName)
	t.Cleanup(func() {
		_ = client.Database(dbName).Drop(context.Background())
		_ = s.Close(context.Background())
	})

	runStoreSuite(t, s)
}

func TestGormStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := OpenPostgres(dsn, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	s := NewGormStore(db)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	runStoreSuite(t, s)
}

func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()
	names := []string{"Agent", "Guardian", "King", "Mafia", "Pacifist", "Villager"}
	instance := "it-" + uuid.NewString()
	st := seedSession(t, s, instance, len(names), names...)

	t.Run("one active session per instance", func(t *testing.T) {
		dup, err := game.NewSession(game.CreateInput{
			ExternalInstanceID: instance,
			Hosting:            true,
			HostUserID:         "u0",
			ScoreToWin:         18,
			Players:            []model.RosterEntry{{ExternalUserID: "u0", DisplayName: "P0"}},
			RoleIDs:            []string{game.RoleID("Agent")},
		}, game.DefaultRoles(time.Now()), uuid.NewString, nil, time.Now())
		require.NoError(t, err)
		assert.ErrorIs(t, s.CreateSession(ctx, dup), ErrConflict)
	})

	t.Run("concurrent assignments become ready once", func(t *testing.T) {
		before, err := s.GetState(ctx, st.Session.ID)
		require.NoError(t, err)

		var mu sync.Mutex
		ready := 0
		var wg sync.WaitGroup
		for i := range st.Players {
			playerID := st.Players[i].ID
			roleID := st.Roles[i].ID
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Write conflicts surface as ErrTransient; retry like the facade does.
				for attempt := 0; attempt < 20; attempt++ {
					became := false
					err := s.Mutate(ctx, st.Session.ID, func(st *model.SessionState) (*model.StateChanges, error) {
						res, err := game.AssignRole(st, playerID, roleID)
						if err != nil {
							return nil, err
						}
						became = res.BecameReady
						return res.Changes, nil
					})
					if errors.Is(err, ErrTransient) {
						time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
						continue
					}
					assert.NoError(t, err)
					if err == nil && became {
						mu.Lock()
						ready++
						mu.Unlock()
					}
					return
				}
				t.Errorf("assignment for %s never committed", playerID)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, ready)
		got, err := s.GetState(ctx, st.Session.ID)
		require.NoError(t, err)
		assert.True(t, game.RoleReady(got))
		assert.Greater(t, got.Session.Version, before.Session.Version)

		byInstance, err := s.GetSessionByInstance(ctx, instance)
		require.NoError(t, err)
		assert.Equal(t, st.Session.ID, byInstance.Session.ID)
	})

	t.Run("duplicate guess is a conflict and nothing is written", func(t *testing.T) {
		guess := model.Guess{
			ID:               uuid.NewString(),
			SessionID:        st.Session.ID,
			Round:            1,
			GuessingPlayerID: st.Players[0].ID,
			TargetPlayerID:   st.Players[1].ID,
			CreatedAt:        time.Now().UTC(),
		}
		require.NoError(t, s.Mutate(ctx, st.Session.ID, func(*model.SessionState) (*model.StateChanges, error) {
			return &model.StateChanges{Guesses: []model.Guess{guess}}, nil
		}))

		again := guess
		again.ID = uuid.NewString()
		err := s.Mutate(ctx, st.Session.ID, func(st *model.SessionState) (*model.StateChanges, error) {
			st.Players[0].Score = 50
			return &model.StateChanges{Players: []model.Player{st.Players[0]}, Guesses: []model.Guess{again}}, nil
		})
		assert.ErrorIs(t, err, ErrConflict)

		got, err := s.GetState(ctx, st.Session.ID)
		require.NoError(t, err)
		assert.Len(t, got.Guesses, 1)
		assert.Zero(t, got.Players[0].Score)
	})
}
