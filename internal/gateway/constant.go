package gateway

import "time"

// SSE field names
const (
	sseFieldEvent = "event"
	sseFieldData  = "data"
	sseFieldId    = "id"
	sseFieldRetry = "retry"
)

// STOMP over WebSocket subprotocols, newest first
var stompSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// Timeout constants for the broker socket, used when config leaves them zero
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer
	PongWait = 60 * time.Second

	// PingPeriod is period between pings. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is maximum message size allowed from peer
	MaxMessageSize = 512 * 1024
)
