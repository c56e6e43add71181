package repository

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/pawchat/internal/config"
)

// Repositories holds all repositories
type Repositories struct {
	Redis *redis.Client
	Rooms *RoomCache
}

// NewRepositories creates all repositories. With redis disabled the client
// is nil and the caches become no-ops.
func NewRepositories(cfg *config.Config) *Repositories {
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = initRedis(cfg)
	}

	return &Repositories{
		Redis: rdb,
		Rooms: NewRoomCache(rdb, cfg.Redis.SnapshotTTL),
	}
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Close closes all connections
func (r *Repositories) Close() error {
	if r.Redis == nil {
		return nil
	}
	return r.Redis.Close()
}

// CheckConnection checks if the redis connection is alive
func (r *Repositories) CheckConnection(ctx context.Context) error {
	if r.Redis == nil {
		return nil
	}
	if err := r.Redis.Ping(ctx).Err(); err != nil {
		log.CtxError(ctx, "redis ping failed: %v", err)
		return err
	}
	return nil
}
