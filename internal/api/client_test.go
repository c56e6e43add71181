package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/pawchat/pkg/errcode"
)

type recorded struct {
	method string
	path   string
	header http.Header
}

// backend serves canned responses per path and records requests
type backend struct {
	mu       sync.Mutex
	requests []recorded
	status   map[string]int
	body     map[string]string
	delay    time.Duration
	clockOff time.Duration
}

func newBackend() *backend {
	return &backend{status: map[string]int{}, body: map[string]string{}}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests = append(b.requests, recorded{method: r.Method, path: r.URL.Path, header: r.Header.Clone()})
	status, ok := b.status[r.URL.Path]
	body := b.body[r.URL.Path]
	delay := b.delay
	clockOff := b.clockOff
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	if clockOff != 0 {
		w.Header().Set("Date", time.Now().Add(clockOff).UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (b *backend) last() recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func newTestClient(t *testing.T, b *backend, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	opts = append([]ClientOption{
		WithToken("tkn"),
		WithCookie("SESSION=abc"),
		WithTimeout(time.Second),
		WithOperationId(func() string { return "op-1" }),
	}, opts...)
	c, err := NewClient(srv.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

func TestClient_Headers(t *testing.T) {
	b := newBackend()
	b.body["/members/me"] = `{"data":{"id":7}}`
	c := newTestClient(t, b)

	id, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	req := b.last()
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "Bearer tkn", req.header.Get("Authorization"))
	assert.Equal(t, "SESSION=abc", req.header.Get("Cookie"))
	assert.Equal(t, "op-1", req.header.Get("X-Operation-Id"))
}

func TestClient_MeUnauthorized(t *testing.T) {
	b := newBackend()
	b.status["/members/me"] = http.StatusUnauthorized
	c := newTestClient(t, b)

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, errcode.ErrNotAuthenticated)
}

func TestClient_ListRoomsWithUnread(t *testing.T) {
	b := newBackend()
	b.body["/chat/rooms/list-with-unread"] = `{"code":0,"data":[
		{"id":1,"chatUserId":7,"targetUserId":8,"unreadCount":2,"chatMessages":[{"id":10,"memberId":8},{"bad":true}]},
		{"nope":1}
	]}`
	c := newTestClient(t, b)

	rooms, skipped, err := c.ListRoomsWithUnread(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 2, rooms[0].Room.UnreadCount)
	assert.True(t, rooms[0].HasUnreadAggregate)
}

func TestClient_ListRoomsFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		b := newBackend()
		b.status["/chat/rooms/list-with-unread"] = http.StatusInternalServerError
		c := newTestClient(t, b)

		_, _, err := c.ListRoomsWithUnread(context.Background())
		assert.ErrorIs(t, err, errcode.ErrFetchFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		b := newBackend()
		b.delay = 500 * time.Millisecond
		c := newTestClient(t, b, WithTimeout(50*time.Millisecond))

		_, _, err := c.ListRoomsWithUnread(context.Background())
		assert.ErrorIs(t, err, errcode.ErrFetchTimeout)
	})
}

func TestClient_MarkRead(t *testing.T) {
	b := newBackend()
	b.status["/chat/3/read"] = http.StatusNoContent
	c := newTestClient(t, b)

	require.NoError(t, c.MarkRead(context.Background(), 3))
	assert.Equal(t, http.MethodPost, b.last().method)
	assert.Equal(t, "/chat/3/read", b.last().path)

	b.mu.Lock()
	b.status["/chat/4/read"] = http.StatusBadRequest
	b.mu.Unlock()
	assert.ErrorIs(t, c.MarkRead(context.Background(), 4), errcode.ErrReadFailed)
}

func TestClient_LeaveRoomRequires200(t *testing.T) {
	b := newBackend()
	b.status["/chat/rooms/5/leave"] = http.StatusNoContent
	c := newTestClient(t, b)

	err := c.LeaveRoom(context.Background(), 5)
	assert.ErrorIs(t, err, errcode.ErrLeaveFailed)

	b.mu.Lock()
	b.status["/chat/rooms/5/leave"] = http.StatusOK
	b.mu.Unlock()
	assert.NoError(t, c.LeaveRoom(context.Background(), 5))
}

func TestClient_Credentials(t *testing.T) {
	c, err := NewClient("http://example.invalid")
	require.NoError(t, err)
	assert.False(t, c.HasCredentials())

	c.SetCredentials("", "SESSION=1")
	assert.True(t, c.HasCredentials())
	assert.Equal(t, "SESSION=1", c.Cookie())
	assert.Empty(t, c.Token())
}

func TestClient_ClockSkew(t *testing.T) {
	b := newBackend()
	b.body["/members/me"] = `{"id":7}`
	c := newTestClient(t, b)

	_, known := c.ClockSkew()
	assert.False(t, known)

	_, err := c.Me(context.Background())
	require.NoError(t, err)
	skew, known := c.ClockSkew()
	require.True(t, known)
	assert.InDelta(t, 0, skew.Seconds(), 1.5)

	b.mu.Lock()
	b.clockOff = -90 * time.Second
	b.mu.Unlock()
	_, err = c.Me(context.Background())
	require.NoError(t, err)
	skew, known = c.ClockSkew()
	require.True(t, known)
	assert.InDelta(t, -90, skew.Seconds(), 1.5)
}

func TestClient_ContextEndsWait(t *testing.T) {
	b := newBackend()
	b.delay = 800 * time.Millisecond
	c := newTestClient(t, b, WithTimeout(2*time.Second))

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		start := time.Now()
		_, _, err := c.ListRoomsWithUnread(ctx)
		assert.ErrorIs(t, err, errcode.ErrFetchFailed)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("deadline shorter than the client timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, _, err := c.ListRoomsWithUnread(ctx)
		assert.ErrorIs(t, err, errcode.ErrFetchTimeout)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("already done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, c.MarkRead(ctx, 1), errcode.ErrReadFailed)
	})
}
