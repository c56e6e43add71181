package codec

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// EventKind classifies a push event after normalization
type EventKind int

const (
	KindUnknown EventKind = iota
	KindReadStatus
	KindNewMessage
)

func (k EventKind) String() string {
	switch k {
	case KindReadStatus:
		return "read_status"
	case KindNewMessage:
		return "new_message"
	default:
		return "unknown"
	}
}

// SSE event names
const (
	StreamEventMessage    = "message"
	StreamEventNewMessage = "new_message"
	StreamEventReadStatus = "read_status"
)

const typeReadStatus = "READ_STATUS"

// messageTypes are the aliases the backend uses for "a message was posted"
var messageTypes = map[string]struct{}{
	"NEW_MESSAGE":      {},
	"MESSAGE":          {},
	"CHAT_MESSAGE":     {},
	"NEW_CHAT_MESSAGE": {},
	"CHAT":             {},
	"MESSAGE_CREATED":  {},
}

// StreamEvent is a normalized server-sent event
type StreamEvent struct {
	Kind    EventKind
	Type    string
	RoomId  int64
	ActorId int64
}

// normalizeType upper-cases a discriminator and unifies separators
func normalizeType(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(s)
}

// DecodeStreamEvent normalizes an SSE frame. The discriminator is read from
// the payload first and falls back to the SSE event name.
func DecodeStreamEvent(name string, data []byte) (StreamEvent, error) {
	if !gjson.ValidBytes(data) {
		return StreamEvent{}, ErrInvalidJSON
	}
	res := gjson.ParseBytes(data)

	typ := normalizeType(first(res, eventTypeKeys...).String())
	if typ == "" {
		switch name {
		case StreamEventReadStatus:
			typ = typeReadStatus
		case StreamEventNewMessage:
			typ = "NEW_MESSAGE"
		}
	}

	evt := StreamEvent{Type: typ}
	switch {
	case typ == typeReadStatus:
		evt.Kind = KindReadStatus
		evt.ActorId, _ = intOf(first(res, readerKeys...))
	case isMessageType(typ):
		evt.Kind = KindNewMessage
		sender := first(res, senderKeys...)
		if !sender.Exists() {
			sender = first(res.Get("message"), senderKeys...)
		}
		evt.ActorId, _ = intOf(sender)
	default:
		return evt, nil
	}

	roomId, ok := intOf(first(res, eventRoomKeys...))
	if !ok {
		roomId, ok = intOf(first(res.Get("message"), eventRoomKeys...))
	}
	if !ok {
		return StreamEvent{}, fmt.Errorf("%s event: %w", evt.Kind, ErrMissingId)
	}
	evt.RoomId = roomId
	return evt, nil
}

func isMessageType(typ string) bool {
	_, ok := messageTypes[typ]
	return ok
}

// DecodeReadStatus normalizes a read-status topic frame
func DecodeReadStatus(data []byte) (roomId, readerId int64, err error) {
	if !gjson.ValidBytes(data) {
		return 0, 0, ErrInvalidJSON
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Number {
		return res.Int(), 0, nil
	}
	roomId, ok := intOf(first(res, readStatusRoomKeys...))
	if !ok {
		return 0, 0, fmt.Errorf("read status: %w", ErrMissingId)
	}
	readerId, _ = intOf(first(res, readerKeys...))
	return roomId, readerId, nil
}
