package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guesswho/internal/model"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func snapshot(id string, created time.Time, version int64, round int) *model.SessionState {
	return &model.SessionState{
		Session: &model.Session{
			ID:                 id,
			ExternalInstanceID: "room-1",
			ScoreToWin:         18,
			Round:              round,
			Version:            version,
			CreatedAt:          created,
		},
	}
}

func TestSessionCacheKeepsNewestSnapshot(t *testing.T) {
	_, client := newRedis(t)
	c := NewSessionCache(client, time.Minute)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := c.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, snapshot("s1", created, 3, 1)))
	require.NoError(t, c.Set(ctx, snapshot("s1", created, 5, 2)))

	t.Run("older version of the same session is ignored", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, snapshot("s1", created, 4, 1)))
		got, err := c.Get(ctx, "room-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 2, got.Session.Round)
	})

	t.Run("same version is rewritten", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, snapshot("s1", created, 5, 2)))
		got, err := c.Get(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, "s1", got.Session.ID)
	})

	t.Run("older version cannot come back after delete", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, "room-1"))
		require.NoError(t, c.Set(ctx, snapshot("s1", created, 4, 1)))
		got, err := c.Get(ctx, "room-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("a later session replaces the old one", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, snapshot("s2", created.Add(time.Hour), 0, 1)))
		got, err := c.Get(ctx, "room-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "s2", got.Session.ID)

		require.NoError(t, c.Set(ctx, snapshot("s1", created, 9, 3)))
		got, err = c.Get(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, "s2", got.Session.ID)
	})
}

func TestSessionCacheExpires(t *testing.T) {
	mr, client := newRedis(t)
	c := NewSessionCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, snapshot("s1", time.Now(), 1, 1)))
	assert.Equal(t, time.Minute, mr.TTL("session:instance:room-1"))
	assert.Equal(t, 2*time.Minute, mr.TTL("session:instance:room-1:version"))

	mr.FastForward(time.Minute + time.Second)
	got, err := c.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLeaderboardCache(t *testing.T) {
	_, client := newRedis(t)
	c := NewLeaderboardCache(client)
	ctx := context.Background()

	entries, err := c.GetTop(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, c.UpdateScores(ctx, "s1", []model.Player{
		{ID: "p1", DisplayName: "Ada", Score: 4},
		{ID: "p2", DisplayName: "Bo", Score: 9},
		{ID: "p3", DisplayName: "Cy", Score: 4},
	}))

	entries, err = c.GetTop(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, model.LeaderboardEntry{PlayerID: "p2", DisplayName: "Bo", Score: 9, Rank: 1}, entries[0])
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, 2, entries[2].Rank)

	top, err := c.GetTop(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "p2", top[0].PlayerID)
}
