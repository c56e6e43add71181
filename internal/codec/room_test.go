package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestDecodeRoomList_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty body", body: "", want: 0},
		{name: "null", body: "null", want: 0},
		{name: "bare array", body: `[{"id":1},{"id":2}]`, want: 2},
		{name: "data envelope", body: `{"code":0,"data":[{"id":1}]}`, want: 1},
		{name: "null data", body: `{"code":0,"data":null}`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms, skipped, err := DecodeRoomList([]byte(tt.body))
			require.NoError(t, err)
			assert.Zero(t, skipped)
			assert.Len(t, rooms, tt.want)
		})
	}
}

func TestDecodeRoomList_Errors(t *testing.T) {
	_, _, err := DecodeRoomList([]byte(`{"data":`))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, _, err = DecodeRoomList([]byte(`{"data":"nope"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRoomList_SkipsMalformed(t *testing.T) {
	body := `[
		{"id": 1, "chatMessages": [
			{"chatMessageId": 10, "content": "a", "memberId": 2},
			{"content": "no id"},
			"garbage"
		]},
		{"chatUserId": 1},
		42
	]`

	rooms, skipped, err := DecodeRoomList([]byte(body))
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 4, skipped)
	assert.Len(t, rooms[0].Room.ChatMessages, 1)
	assert.Equal(t, 2, rooms[0].Skipped)
}

func TestDecodeRoom_Fields(t *testing.T) {
	body := `{
		"chatRoomId": "7",
		"chatUserId": 1,
		"chatUserNickname": "mia",
		"targetUserId": 2,
		"targetUserNickname": "leo",
		"targetUserImageUrl": "https://img/leo.png",
		"modifiedDate": "2024-05-01T12:00:00Z",
		"unreadMessageCount": 3,
		"chatMessages": [
			{"id": 10, "senderId": 2, "content": "found your cat", "createdAt": 1714564800000, "chatUserRead": false},
			{"id": 10, "senderId": 2, "content": "dup"},
			{"messageId": 11, "memberId": 1, "createDate": [2024, 5, 1, 12, 30, 0, 0], "targetUserRead": true}
		]
	}`

	payload, err := DecodeRoomBytes([]byte(body))
	require.NoError(t, err)

	room := payload.Room
	assert.Equal(t, int64(7), room.Id)
	assert.Equal(t, int64(1), room.ChatUserId)
	assert.Equal(t, "leo", room.TargetUserNickname)
	assert.Equal(t, "https://img/leo.png", room.TargetUserImageUrl)
	assert.True(t, room.ModifiedDate.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, payload.HasUnreadAggregate)
	assert.Equal(t, 3, room.UnreadCount)

	require.Len(t, room.ChatMessages, 2)
	assert.Equal(t, "found your cat", room.ChatMessages[0].Content)
	assert.Equal(t, int64(2), room.ChatMessages[0].MemberId)
	assert.Equal(t, int64(1714564800000), room.ChatMessages[0].CreatedDate.UnixMilli())
	assert.Equal(t, int64(11), room.ChatMessages[1].Id)
	assert.True(t, room.ChatMessages[1].TargetUserRead)
	assert.Equal(t, 30, room.ChatMessages[1].CreatedDate.Minute())
}

func TestDecodeRoom_NoAggregate(t *testing.T) {
	payload, err := DecodeRoomBytes([]byte(`{"id": 1, "unreadCount": null}`))
	require.NoError(t, err)
	assert.False(t, payload.HasUnreadAggregate)
	assert.NotNil(t, payload.Room.ChatMessages)

	payload, err = DecodeRoomBytes([]byte(`{"id": 1, "unreadCount": -4}`))
	require.NoError(t, err)
	assert.True(t, payload.HasUnreadAggregate)
	assert.Zero(t, payload.Room.UnreadCount)
}

func TestDecodeMessage_Errors(t *testing.T) {
	_, err := DecodeMessageBytes([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeMessageBytes([]byte(`{"content":"x"}`))
	assert.ErrorIs(t, err, ErrMissingId)

	_, err = DecodeMessageBytes([]byte(`{`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestDecodeMemberId(t *testing.T) {
	id, err := DecodeMemberId([]byte(`{"data": {"memberId": 42}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	id, err = DecodeMemberId([]byte(`{"id": "17", "nickname": "mia"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	_, err = DecodeMemberId([]byte(`{"nickname": "mia"}`))
	assert.ErrorIs(t, err, ErrMissingId)
}

func TestParseTime(t *testing.T) {
	utc := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	local := utc

	tests := []struct {
		name string
		raw  string
		want time.Time
		ok   bool
	}{
		{name: "rfc3339", raw: `"2024-05-01T12:00:00Z"`, want: utc, ok: true},
		{name: "zone-less date time", raw: `"2024-05-01T12:00:00"`, want: local, ok: true},
		{name: "zone-less with space", raw: `"2024-05-01 12:00:00"`, want: local, ok: true},
		{name: "epoch seconds", raw: `1714564800`, want: utc, ok: true},
		{name: "epoch millis string", raw: `"1714564800000"`, want: utc, ok: true},
		{name: "array", raw: `[2024,5,1,12,0,0]`, want: local, ok: true},
		{name: "short array", raw: `[2024,5]`, ok: false},
		{name: "empty", raw: `""`, ok: false},
		{name: "garbage", raw: `"yesterday"`, ok: false},
		{name: "bool", raw: `true`, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(gjson.Parse(tt.raw))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			}
		})
	}
}

func TestParseTimeIn_ServerZone(t *testing.T) {
	kst := time.FixedZone("KST", 9*3600)

	got, ok := ParseTimeIn(gjson.Parse(`"2024-05-01T14:00:00"`), time.UTC)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)), "got %v", got)

	got, ok = ParseTimeIn(gjson.Parse(`[2024,5,1,14,0,0]`), kst)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC)), "got %v", got)

	t.Log("explicit offsets ignore the configured zone")
	got, ok = ParseTimeIn(gjson.Parse(`"2024-05-01T14:00:00Z"`), kst)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)), "got %v", got)
}

func TestSetServerLocation(t *testing.T) {
	t.Cleanup(func() { SetServerLocation(nil) })

	prevLocal := time.Local
	time.Local = time.FixedZone("KST", 9*3600)
	t.Cleanup(func() { time.Local = prevLocal })

	assert.Equal(t, time.UTC, ServerLocation())
	got, ok := ParseTime(gjson.Parse(`"2024-05-01T14:00:00"`))
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)), "process zone must not leak in: got %v", got)

	ny := time.FixedZone("EDT", -4*3600)
	SetServerLocation(ny)
	assert.Equal(t, ny, ServerLocation())
	got, ok = ParseTime(gjson.Parse(`"2024-05-01T14:00:00"`))
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)), "got %v", got)
}
