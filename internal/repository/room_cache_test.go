package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/pawchat/internal/entity"
	"github.com/mbeoliero/pawchat/internal/store"
	"github.com/mbeoliero/pawchat/pkg/constant"
)

func TestRoomCache_Disabled(t *testing.T) {
	cache := NewRoomCache(nil, time.Hour)
	assert.False(t, cache.Enabled())

	require.NoError(t, cache.Save(context.Background(), store.Snapshot{UserId: 1}))
	_, found, err := cache.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(context.Background(), 1))

	var none *RoomCache
	assert.False(t, none.Enabled())
}

// TestRoomCache_Redis runs against the redis at PAWCHAT_TEST_REDIS (host:port)
func TestRoomCache_Redis(t *testing.T) {
	addr := os.Getenv("PAWCHAT_TEST_REDIS")
	if addr == "" {
		t.Skip("PAWCHAT_TEST_REDIS not set")
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	constant.InitRedisKeyPrefix("pawchat-test:")
	cache := NewRoomCache(rdb, time.Minute)
	const userId int64 = 424242
	t.Cleanup(func() { _ = cache.Delete(ctx, userId) })

	snap := store.Snapshot{
		UserId: userId,
		Rooms: []entity.ChatRoom{{
			Id: 1, ChatUserId: userId, TargetUserId: 2, UnreadCount: 3,
			ChatMessages: []entity.ChatMessage{{Id: 9, Content: "found him", MemberId: 2}},
		}},
		SavedAt: time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, cache.Save(ctx, snap))

	ttl, err := rdb.TTL(ctx, cache.key(userId)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	got, found, err := cache.Load(ctx, userId)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.SavedAt.Equal(snap.SavedAt))
	require.Len(t, got.Rooms, 1)
	assert.Equal(t, 3, got.Rooms[0].UnreadCount)
	assert.Equal(t, "found him", got.Rooms[0].ChatMessages[0].Content)

	require.NoError(t, cache.Delete(ctx, userId))
	_, found, err = cache.Load(ctx, userId)
	require.NoError(t, err)
	assert.False(t, found)
}
