package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/pawchat/internal/store"
	"github.com/mbeoliero/pawchat/pkg/constant"
)

// RoomCache keeps the last known room list per user so a restart can render
// rooms before the first refresh returns.
type RoomCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRoomCache creates a new RoomCache; rdb may be nil
func NewRoomCache(rdb *redis.Client, ttl time.Duration) *RoomCache {
	return &RoomCache{rdb: rdb, ttl: ttl}
}

// Enabled reports whether a redis client is configured
func (c *RoomCache) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *RoomCache) key(userId int64) string {
	return fmt.Sprintf(constant.RedisKeyRooms(), userId)
}

// Save stores the snapshot of its user
func (c *RoomCache) Save(ctx context.Context, snap store.Snapshot) error {
	if !c.Enabled() || snap.UserId == 0 {
		return nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal room snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(snap.UserId), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save room snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot of userId; found is false when none is stored
func (c *RoomCache) Load(ctx context.Context, userId int64) (snap store.Snapshot, found bool, err error) {
	if !c.Enabled() {
		return store.Snapshot{}, false, nil
	}

	data, err := c.rdb.Get(ctx, c.key(userId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Snapshot{}, false, nil
	}
	if err != nil {
		return store.Snapshot{}, false, fmt.Errorf("failed to load room snapshot: %w", err)
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, false, fmt.Errorf("failed to decode room snapshot: %w", err)
	}
	return snap, snap.UserId == userId, nil
}

// Delete drops the snapshot of userId
func (c *RoomCache) Delete(ctx context.Context, userId int64) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Del(ctx, c.key(userId)).Err()
}
