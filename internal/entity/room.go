package entity

import (
	"sort"
	"time"
)

// ChatRoom represents a conversation between two members
type ChatRoom struct {
	Id                 int64         `json:"id"`
	ChatUserId         int64         `json:"chatUserId"`
	ChatUserNickname   string        `json:"chatUserNickname"`
	ChatUserImageUrl   string        `json:"chatUserImageUrl"`
	TargetUserId       int64         `json:"targetUserId"`
	TargetUserNickname string        `json:"targetUserNickname"`
	TargetUserImageUrl string        `json:"targetUserImageUrl"`
	ChatMessages       []ChatMessage `json:"chatMessages"`
	ModifiedDate       time.Time     `json:"modifiedDate"`
	UnreadCount        int           `json:"unreadCount"`

	// ZeroedAt is the last time the unread count was zeroed locally.
	ZeroedAt time.Time `json:"-"`
	// Local marks rooms announced by a push event and not yet returned by a refresh.
	Local bool `json:"-"`
}

// Participant is one side of a chat room
type Participant struct {
	Id       int64  `json:"id"`
	Nickname string `json:"nickname"`
	ImageUrl string `json:"imageUrl"`
}

// OpenChatRoom is a chat room with a window currently rendered
type OpenChatRoom struct {
	ChatRoom
	IsOpen bool `json:"isOpen"`
}

// Clone returns a deep copy of the room
func (r *ChatRoom) Clone() *ChatRoom {
	cp := *r
	if r.ChatMessages != nil {
		cp.ChatMessages = make([]ChatMessage, len(r.ChatMessages))
		copy(cp.ChatMessages, r.ChatMessages)
	}
	return &cp
}

// Involves reports whether the member is either participant of the room
func (r *ChatRoom) Involves(memberId int64) bool {
	return r.ChatUserId == memberId || r.TargetUserId == memberId
}

// Peer returns the participant on the other side from me
func (r *ChatRoom) Peer(me int64) Participant {
	if r.ChatUserId == me {
		return Participant{Id: r.TargetUserId, Nickname: r.TargetUserNickname, ImageUrl: r.TargetUserImageUrl}
	}
	return Participant{Id: r.ChatUserId, Nickname: r.ChatUserNickname, ImageUrl: r.ChatUserImageUrl}
}

// LastMessage returns the chronologically latest message, if any
func (r *ChatRoom) LastMessage() (ChatMessage, bool) {
	if len(r.ChatMessages) == 0 {
		return ChatMessage{}, false
	}
	var last ChatMessage
	for i, m := range r.ChatMessages {
		if i == 0 || m.CreatedDate.After(last.CreatedDate) ||
			(m.CreatedDate.Equal(last.CreatedDate) && m.Id > last.Id) {
			last = m
		}
	}
	return last, true
}

// LastActivity is the recency sort key: last message time, falling back to ModifiedDate
func (r *ChatRoom) LastActivity() time.Time {
	if last, ok := r.LastMessage(); ok && !last.CreatedDate.IsZero() {
		return last.CreatedDate
	}
	return r.ModifiedDate
}

// ReadBy reports whether msg has been read from the point of view of me
func (r *ChatRoom) ReadBy(me int64, msg *ChatMessage) bool {
	if r.ChatUserId == me {
		return msg.ChatUserRead
	}
	return msg.TargetUserRead
}

// CountUnread recomputes the unread count from per-message read flags
func (r *ChatRoom) CountUnread(me int64) int {
	count := 0
	for i := range r.ChatMessages {
		msg := &r.ChatMessages[i]
		if msg.IsFrom(me) {
			continue
		}
		if !r.ReadBy(me, msg) {
			count++
		}
	}
	return count
}

// SortRooms orders rooms by most recent activity descending, ties by id descending
func SortRooms(rooms []ChatRoom) {
	sort.SliceStable(rooms, func(i, j int) bool {
		ai, aj := rooms[i].LastActivity(), rooms[j].LastActivity()
		if ai.Equal(aj) {
			return rooms[i].Id > rooms[j].Id
		}
		return ai.After(aj)
	})
}
