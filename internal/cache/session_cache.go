package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"guesswho/internal/model"
)

// SessionCache holds recent session reads keyed by external instance.
// Only getSession reads through it; every decision reads the store.
type SessionCache interface {
	// Set stores the snapshot unless a newer one for the same instance is
	// already recorded. Newer means a later session, or a higher version of
	// the same session.
	Set(ctx context.Context, st *model.SessionState) error
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, externalInstanceID string) (*model.SessionState, error)
	Delete(ctx context.Context, externalInstanceID string) error
}

// setIfNewer writes KEYS[1] (snapshot) and KEYS[2] (its ordering marker)
// when ARGV[2] (session created, ms) and ARGV[3] (version) are not older
// than the recorded marker. The marker outlives the snapshot.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[2], 'created', 'version')
if cur[1] then
	local created, version = tonumber(cur[1]), tonumber(cur[2])
	local nc, nv = tonumber(ARGV[2]), tonumber(ARGV[3])
	if created > nc or (created == nc and version > nv) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[4])
redis.call('HSET', KEYS[2], 'created', ARGV[2], 'version', ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[5])
return 1
`)

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionCache(client *redis.Client, ttl time.Duration) SessionCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &sessionCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *sessionCache) key(externalInstanceID string) string {
	return "session:instance:" + externalInstanceID
}

func (c *sessionCache) versionKey(externalInstanceID string) string {
	return "session:instance:" + externalInstanceID + ":version"
}

func (c *sessionCache) Set(ctx context.Context, st *model.SessionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	instance := st.Session.ExternalInstanceID
	return setIfNewer.Run(ctx, c.client,
		[]string{c.key(instance), c.versionKey(instance)},
		string(data),
		strconv.FormatInt(st.Session.CreatedAt.UnixMilli(), 10),
		strconv.FormatInt(st.Session.Version, 10),
		c.ttl.Milliseconds(),
		(2 * c.ttl).Milliseconds(),
	).Err()
}

func (c *sessionCache) Get(ctx context.Context, externalInstanceID string) (*model.SessionState, error) {
	data, err := c.client.Get(ctx, c.key(externalInstanceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var st model.SessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Delete drops the snapshot but keeps the ordering marker.
func (c *sessionCache) Delete(ctx context.Context, externalInstanceID string) error {
	return c.client.Del(ctx, c.key(externalInstanceID)).Err()
}
