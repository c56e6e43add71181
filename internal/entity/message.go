package entity

import (
	"sort"
	"time"
)

// ChatMessage represents a single message inside a chat room
type ChatMessage struct {
	Id             int64     `json:"id"`
	Content        string    `json:"content"`
	CreatedDate    time.Time `json:"createdDate"`
	MemberId       int64     `json:"memberId"`
	ChatUserRead   bool      `json:"chatUserRead"`
	TargetUserRead bool      `json:"targetUserRead"`

	// ReceivedAt is the local arrival time of a pushed message. It stays zero
	// for messages loaded from REST and for pushes a read already covered.
	ReceivedAt time.Time `json:"-"`
}

// IsFrom reports whether the message was sent by the given member
func (m *ChatMessage) IsFrom(memberId int64) bool {
	return m.MemberId == memberId
}

// SortMessages returns a chronological copy of msgs; ties keep id order
func SortMessages(msgs []ChatMessage) []ChatMessage {
	sorted := make([]ChatMessage, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedDate.Equal(sorted[j].CreatedDate) {
			return sorted[i].Id < sorted[j].Id
		}
		return sorted[i].CreatedDate.Before(sorted[j].CreatedDate)
	})
	return sorted
}

// ContainsMessage checks if msgs already holds a message with the given id
func ContainsMessage(msgs []ChatMessage, id int64) bool {
	for i := range msgs {
		if msgs[i].Id == id {
			return true
		}
	}
	return false
}
