package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm/logger"

	"guesswho/internal/cache"
	"guesswho/internal/config"
	"guesswho/internal/game"
	"guesswho/internal/notify"
	"guesswho/internal/repository"
	"guesswho/internal/service"
	"guesswho/internal/transport/ws"
)

// App holds the process-wide dependencies shared by the binaries.
type App struct {
	Config *config.Config

	Store repository.Store
	Redis *redis.Client

	WSHub  *ws.Hub
	Stream *ws.Stream
	relay  *notify.RedisTransport

	AuthService    *service.AuthService
	SessionService *service.SessionService
}

// OpenStore connects the store selected by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		logrus.WithField("db", cfg.MongoDB).Info("connected to MongoDB")
		return repository.NewMongoStore(ctx, client, cfg.MongoDB), nil

	case "postgres":
		level := logger.Warn
		if cfg.LogLevel == "debug" {
			level = logger.Info
		}
		db, err := repository.OpenPostgres(cfg.DatabaseURL, level)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := repository.Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate PostgreSQL: %w", err)
		}
		logrus.Info("connected to PostgreSQL")
		return repository.NewGormStore(db), nil

	case "memory":
		logrus.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

// OpenRedis connects to Redis, or returns nil when REDIS_URI is unset.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURI == "" {
		logrus.Warn("REDIS_URI not set, notifications stay in-process and caches are off")
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURI)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URI: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	logrus.Info("connected to Redis")
	return rdb, nil
}

// SeedRoles installs the default catalog when the store has none.
func SeedRoles(ctx context.Context, store repository.Store, force bool) (int, error) {
	if !force {
		existing, err := store.ListRoles(ctx)
		if err != nil {
			return 0, err
		}
		if len(existing) > 0 {
			return 0, nil
		}
	}
	roles := game.DefaultRoles(time.Now().UTC())
	if err := store.UpsertRoles(ctx, roles); err != nil {
		return 0, err
	}
	return len(roles), nil
}

// New wires the store, Redis, notifier and services together.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if n, err := SeedRoles(ctx, store, false); err != nil {
		store.Close(ctx)
		return nil, fmt.Errorf("failed to seed roles: %w", err)
	} else if n > 0 {
		logrus.WithField("roles", n).Info("role catalog seeded")
	}

	rdb, err := OpenRedis(ctx, cfg)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}

	a := &App{
		Config: cfg,
		Store:  store,
		Redis:  rdb,
		WSHub:  ws.NewHub(),
		Stream: ws.NewStream(),
	}

	var transport notify.Transport = notify.NewLocalTransport(a.WSHub, a.Stream)
	if rdb != nil {
		a.relay = notify.NewRedisTransport(rdb)
		transport = a.relay
	}

	a.AuthService = service.NewAuthService(cfg.JWTSecret, cfg.TokenTTL)
	a.SessionService = service.NewSessionService(
		store,
		notify.NewNotifier(transport),
		service.NewAssetResolver(cfg.AssetBaseURL, cfg.AvatarCDNURL),
		service.SessionOptions{
			DefaultScoreToWin: cfg.DefaultScoreToWin,
			Retry: service.RetryPolicy{
				Attempts: cfg.StoreRetries,
				Backoff:  cfg.RetryBackoff,
				Timeout:  cfg.StoreTimeout,
			},
		},
	)
	if rdb != nil {
		a.SessionService.SetCaches(cache.NewSessionCache(rdb, cfg.SessionCacheTTL), cache.NewLeaderboardCache(rdb))
	}
	return a, nil
}

// RunRelay forwards Redis notifications to the local hub and stream until ctx
// is done, resubscribing after failures. It returns at once without Redis.
func (a *App) RunRelay(ctx context.Context) {
	if a.relay == nil {
		return
	}
	for {
		err := a.relay.Relay(ctx, a.WSHub, a.Stream)
		if ctx.Err() != nil {
			return
		}
		logrus.WithError(err).Warn("notification relay stopped, resubscribing")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// Close releases the store and Redis connections.
func (a *App) Close(ctx context.Context) {
	if err := a.Store.Close(ctx); err != nil {
		logrus.WithError(err).Warn("failed to close store")
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close Redis")
		}
	}
}
