package codec

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/mbeoliero/pawchat/internal/entity"
)

// RoomPayload is a normalized room as returned by the REST list endpoint
type RoomPayload struct {
	Room entity.ChatRoom
	// HasUnreadAggregate is true when the server supplied unreadCount itself
	HasUnreadAggregate bool
	// Skipped counts malformed messages dropped while decoding the room
	Skipped int
}

// DecodeMessage normalizes one message object from REST history or a socket push
func DecodeMessage(res gjson.Result) (entity.ChatMessage, error) {
	if !res.IsObject() {
		return entity.ChatMessage{}, fmt.Errorf("message is not an object: %w", ErrMalformed)
	}

	id, ok := intOf(first(res, messageIdKeys...))
	if !ok {
		return entity.ChatMessage{}, fmt.Errorf("message: %w", ErrMissingId)
	}

	msg := entity.ChatMessage{
		Id:             id,
		Content:        res.Get("content").String(),
		ChatUserRead:   res.Get("chatUserRead").Bool(),
		TargetUserRead: res.Get("targetUserRead").Bool(),
	}
	if sender, ok := intOf(first(res, senderKeys...)); ok {
		msg.MemberId = sender
	}
	if t, ok := ParseTime(first(res, createdKeys...)); ok {
		msg.CreatedDate = t
	}
	return msg, nil
}

// DecodeMessageBytes decodes a raw message frame
func DecodeMessageBytes(data []byte) (entity.ChatMessage, error) {
	if !gjson.ValidBytes(data) {
		return entity.ChatMessage{}, ErrInvalidJSON
	}
	return DecodeMessage(gjson.ParseBytes(data))
}

// DecodeRoom normalizes one room object, skipping malformed messages
func DecodeRoom(res gjson.Result) (RoomPayload, error) {
	if !res.IsObject() {
		return RoomPayload{}, fmt.Errorf("room is not an object: %w", ErrMalformed)
	}

	id, ok := intOf(first(res, roomIdKeys...))
	if !ok {
		return RoomPayload{}, fmt.Errorf("room: %w", ErrMissingId)
	}

	room := entity.ChatRoom{
		Id:                 id,
		ChatUserNickname:   res.Get("chatUserNickname").String(),
		ChatUserImageUrl:   res.Get("chatUserImageUrl").String(),
		TargetUserNickname: res.Get("targetUserNickname").String(),
		TargetUserImageUrl: res.Get("targetUserImageUrl").String(),
		ChatMessages:       []entity.ChatMessage{},
	}
	room.ChatUserId, _ = intOf(res.Get("chatUserId"))
	room.TargetUserId, _ = intOf(res.Get("targetUserId"))
	if t, ok := ParseTime(first(res, "modifiedDate", "modifyDate", "updatedAt")); ok {
		room.ModifiedDate = t
	}

	payload := RoomPayload{}
	seen := make(map[int64]struct{})
	for _, raw := range res.Get("chatMessages").Array() {
		msg, err := DecodeMessage(raw)
		if err != nil {
			payload.Skipped++
			continue
		}
		if _, dup := seen[msg.Id]; dup {
			continue
		}
		seen[msg.Id] = struct{}{}
		room.ChatMessages = append(room.ChatMessages, msg)
	}

	if agg := first(res, unreadCountKeys...); agg.Exists() {
		if n, ok := intOf(agg); ok {
			payload.HasUnreadAggregate = true
			if n < 0 {
				n = 0
			}
			room.UnreadCount = int(n)
		}
	}

	payload.Room = room
	return payload, nil
}

// DecodeRoomBytes decodes a single raw room frame
func DecodeRoomBytes(data []byte) (RoomPayload, error) {
	if !gjson.ValidBytes(data) {
		return RoomPayload{}, ErrInvalidJSON
	}
	return DecodeRoom(gjson.ParseBytes(data))
}

// DecodeRoomList decodes the list-with-unread response. Empty bodies and null
// decode to an empty list; both bare arrays and {"data": [...]} envelopes are
// accepted. Dropped rooms and messages are counted in skipped.
func DecodeRoomList(body []byte) (rooms []RoomPayload, skipped int, err error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []RoomPayload{}, 0, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, 0, ErrInvalidJSON
	}

	res := gjson.ParseBytes(trimmed)
	if res.IsObject() {
		res = first(res, "data", "rooms", "content")
	}
	if !res.Exists() || res.Type == gjson.Null {
		return []RoomPayload{}, 0, nil
	}
	if !res.IsArray() {
		return nil, 0, fmt.Errorf("room list is not an array: %w", ErrMalformed)
	}

	rooms = make([]RoomPayload, 0, len(res.Array()))
	for _, raw := range res.Array() {
		payload, err := DecodeRoom(raw)
		if err != nil {
			skipped++
			continue
		}
		skipped += payload.Skipped
		rooms = append(rooms, payload)
	}
	return rooms, skipped, nil
}

// DecodeMemberId extracts the current member id from GET /members/me
func DecodeMemberId(body []byte) (int64, error) {
	if !gjson.ValidBytes(body) {
		return 0, ErrInvalidJSON
	}
	res := gjson.ParseBytes(body)
	if data := res.Get("data"); data.IsObject() {
		res = data
	}
	id, ok := intOf(first(res, memberIdKeys...))
	if !ok {
		return 0, fmt.Errorf("member: %w", ErrMissingId)
	}
	return id, nil
}
