package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"guesswho/internal/model"
)

// LeaderboardCache keeps a ZSET of scores per session plus a hash of display names.
type LeaderboardCache interface {
	UpdateScores(ctx context.Context, sessionID string, players []model.Player) error
	GetTop(ctx context.Context, sessionID string, limit int) ([]model.LeaderboardEntry, error)
}

type leaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client) LeaderboardCache {
	return &leaderboardCache{
		client: client,
		ttl:    24 * time.Hour,
	}
}

func (c *leaderboardCache) key(sessionID string) string {
	return fmt.Sprintf("session:%s:lb", sessionID)
}

func (c *leaderboardCache) namesKey(sessionID string) string {
	return fmt.Sprintf("session:%s:names", sessionID)
}

// UpdateScores rewrites every player's score in one pipeline.
func (c *leaderboardCache) UpdateScores(ctx context.Context, sessionID string, players []model.Player) error {
	if len(players) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(players))
	names := make(map[string]interface{}, len(players))
	for _, p := range players {
		members = append(members, redis.Z{Score: float64(p.Score), Member: p.ID})
		names[p.ID] = p.DisplayName
	}

	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, c.key(sessionID), members...)
	pipe.HSet(ctx, c.namesKey(sessionID), names)
	pipe.Expire(ctx, c.key(sessionID), c.ttl)
	pipe.Expire(ctx, c.namesKey(sessionID), c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// GetTop returns up to limit entries, best first. Equal scores share a rank.
func (c *leaderboardCache) GetTop(ctx context.Context, sessionID string, limit int) ([]model.LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, z := range results {
		ids[i], _ = z.Member.(string)
	}
	names, err := c.client.HMGet(ctx, c.namesKey(sessionID), ids...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, len(results))
	for i, z := range results {
		entries[i] = model.LeaderboardEntry{
			PlayerID: ids[i],
			Score:    int(z.Score),
			Rank:     i + 1,
		}
		if name, ok := names[i].(string); ok {
			entries[i].DisplayName = name
		}
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
		}
	}
	return entries, nil
}
