package constant

// Outbound request headers
const (
	HeaderAuthorization = "Authorization"
	HeaderCookie        = "Cookie"
	HeaderOperationId   = "X-Operation-Id"
	BearerPrefix        = "Bearer "
)

// REST endpoints of the chat backend
const (
	PathMe            = "/members/me"
	PathRoomsUnread   = "/chat/rooms/list-with-unread"
	PathMarkRead      = "/chat/%d/read"
	PathLeaveRoom     = "/chat/rooms/%d/leave"
	SSEUserIdTemplate = "{userId}"
)

// Broker topic names, relative to the configured prefix
const (
	TopicNewRoom     = "new-room"
	TopicReadStatus  = "read-status"
	TopicRoomMessage = "%d/messages" // {roomId}/messages
)

// Notification kinds emitted by the engine
const (
	NotifyRoomsChanged = "rooms_changed"
	NotifyNewActivity  = "new_activity"
	NotifyAlert        = "alert"
	NotifyError        = "error"
)

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyRooms = "rooms:%d" // rooms:{user_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "pawchat:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// RedisKeyRooms returns the room snapshot key pattern
func RedisKeyRooms() string { return redisKeyPrefix + redisKeyRooms }
