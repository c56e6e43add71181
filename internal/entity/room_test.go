package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestChatRoom_PeerAndInvolves(t *testing.T) {
	room := ChatRoom{
		ChatUserId: 1, ChatUserNickname: "mia",
		TargetUserId: 2, TargetUserNickname: "leo", TargetUserImageUrl: "leo.png",
	}

	assert.Equal(t, Participant{Id: 2, Nickname: "leo", ImageUrl: "leo.png"}, room.Peer(1))
	assert.Equal(t, Participant{Id: 1, Nickname: "mia"}, room.Peer(2))
	assert.True(t, room.Involves(2))
	assert.False(t, room.Involves(3))
}

func TestChatRoom_CountUnread(t *testing.T) {
	room := ChatRoom{
		ChatUserId:   1,
		TargetUserId: 2,
		ChatMessages: []ChatMessage{
			{Id: 1, MemberId: 2},
			{Id: 2, MemberId: 2, ChatUserRead: true},
			{Id: 3, MemberId: 1},
			{Id: 4, MemberId: 1, TargetUserRead: true},
		},
	}

	assert.Equal(t, 1, room.CountUnread(1))
	t.Log("the target side reads its own flag")
	assert.Equal(t, 1, room.CountUnread(2))
}

func TestChatRoom_CloneIsDeep(t *testing.T) {
	room := &ChatRoom{Id: 1, ChatMessages: []ChatMessage{{Id: 1, Content: "a"}}}
	cp := room.Clone()
	cp.ChatMessages[0].Content = "b"
	cp.ChatMessages = append(cp.ChatMessages, ChatMessage{Id: 2})

	assert.Equal(t, "a", room.ChatMessages[0].Content)
	assert.Len(t, room.ChatMessages, 1)
}

func TestChatRoom_LastActivity(t *testing.T) {
	room := ChatRoom{ModifiedDate: base}
	assert.Equal(t, base, room.LastActivity())

	room.ChatMessages = []ChatMessage{
		{Id: 2, CreatedDate: base.Add(2 * time.Minute)},
		{Id: 1, CreatedDate: base.Add(time.Minute)},
	}
	last, ok := room.LastMessage()
	assert.True(t, ok)
	assert.Equal(t, int64(2), last.Id)
	assert.Equal(t, base.Add(2*time.Minute), room.LastActivity())
}

func TestSortRooms(t *testing.T) {
	rooms := []ChatRoom{
		{Id: 1, ModifiedDate: base},
		{Id: 2, ModifiedDate: base.Add(time.Hour)},
		{Id: 3, ModifiedDate: base},
		{Id: 4, ChatMessages: []ChatMessage{{Id: 9, CreatedDate: base.Add(2 * time.Hour)}}},
	}

	SortRooms(rooms)

	ids := make([]int64, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.Id)
	}
	assert.Equal(t, []int64{4, 2, 3, 1}, ids)
}

func TestSortMessages(t *testing.T) {
	msgs := []ChatMessage{
		{Id: 3, CreatedDate: base.Add(time.Minute)},
		{Id: 2, CreatedDate: base},
		{Id: 1, CreatedDate: base},
	}

	sorted := SortMessages(msgs)

	assert.Equal(t, int64(1), sorted[0].Id)
	assert.Equal(t, int64(2), sorted[1].Id)
	assert.Equal(t, int64(3), sorted[2].Id)
	assert.Equal(t, int64(3), msgs[0].Id)
	assert.True(t, ContainsMessage(msgs, 2))
	assert.False(t, ContainsMessage(msgs, 4))
}
