package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/pawchat/internal/config"
	"github.com/mbeoliero/pawchat/internal/entity"
)

// fakeBroker speaks enough STOMP over websocket to accept one client
type fakeBroker struct {
	mu      sync.Mutex
	subs    map[string]string // destination -> subscription id
	auth    []string
	writer  *frame.Writer
	writeMu sync.Mutex
	nextMsg int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string]string)}
}

func (b *fakeBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{Subprotocols: stompSubprotocols}
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws := newWsConn(raw, 1<<20, 64, time.Second, time.Minute, 30*time.Second)
	defer ws.Close()

	b.mu.Lock()
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	b.writer = frame.NewWriter(ws)
	b.mu.Unlock()

	reader := frame.NewReader(ws)
	for {
		f, err := reader.Read()
		if err != nil {
			return
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.CONNECT, frame.STOMP:
			b.write(frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "0,0"))
		case frame.SUBSCRIBE:
			b.mu.Lock()
			b.subs[f.Header.Get(frame.Destination)] = f.Header.Get(frame.Id)
			b.mu.Unlock()
		case frame.UNSUBSCRIBE:
			b.mu.Lock()
			for dest, id := range b.subs {
				if id == f.Header.Get(frame.Id) {
					delete(b.subs, dest)
				}
			}
			b.mu.Unlock()
		}
		if receipt := f.Header.Get(frame.Receipt); receipt != "" {
			b.write(frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
		}
		if f.Command == frame.DISCONNECT {
			return
		}
	}
}

func (b *fakeBroker) write(f *frame.Frame) {
	b.mu.Lock()
	w := b.writer
	b.mu.Unlock()

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = w.Write(f)
}

func (b *fakeBroker) destinations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for dest := range b.subs {
		out = append(out, dest)
	}
	sort.Strings(out)
	return out
}

// publish sends body to the subscriber of dest
func (b *fakeBroker) publish(t *testing.T, dest, body string) {
	t.Helper()
	b.mu.Lock()
	id, ok := b.subs[dest]
	b.nextMsg++
	msgId := b.nextMsg
	b.mu.Unlock()
	require.True(t, ok, "no subscription for %s", dest)

	f := frame.New(frame.MESSAGE,
		frame.Destination, dest,
		frame.Subscription, id,
		frame.MessageId, strings.Repeat("m", msgId),
		frame.ContentType, "application/json",
	)
	f.Body = []byte(body)
	b.write(f)
}

type staticCreds struct{}

func (staticCreds) Token() string  { return "tkn" }
func (staticCreds) Cookie() string { return "" }

type topicRecorder struct {
	mu       sync.Mutex
	created  []entity.ChatRoom
	reads    [][2]int64
	messages map[int64][]entity.ChatMessage
}

func newTopicRecorder() *topicRecorder {
	return &topicRecorder{messages: make(map[int64][]entity.ChatMessage)}
}

func (r *topicRecorder) OnRoomCreated(_ context.Context, room entity.ChatRoom) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, room)
}

func (r *topicRecorder) OnReadStatus(_ context.Context, roomId, readerId int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, [2]int64{roomId, readerId})
}

func (r *topicRecorder) OnRoomMessage(_ context.Context, roomId int64, msg entity.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[roomId] = append(r.messages[roomId], msg)
}

func (r *topicRecorder) counts() (created, reads, messages int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msgs := range r.messages {
		messages += len(msgs)
	}
	return len(r.created), len(r.reads), messages
}

func newTestTopics(t *testing.T, broker *fakeBroker, handler TopicHandler) *TopicClient {
	t.Helper()
	srv := httptest.NewServer(broker)
	t.Cleanup(srv.Close)

	client := NewTopicClient(config.BrokerConfig{
		URL:              "ws" + strings.TrimPrefix(srv.URL, "http"),
		TopicPrefix:      "/topic/",
		HandshakeTimeout: time.Second,
		WriteWait:        time.Second,
	}, staticCreds{}, handler)
	t.Cleanup(client.Disconnect)
	return client
}

func TestTopicClient_SubscribesAndDispatches(t *testing.T) {
	broker := newFakeBroker()
	rec := newTopicRecorder()
	client := newTestTopics(t, broker, rec)

	require.NoError(t, client.Connect(context.Background(), []int64{10, 11}))
	assert.True(t, client.Alive())
	assert.True(t, client.Wanted())
	assert.Equal(t, []int64{10, 11}, client.Rooms())

	want := []string{"/topic/10/messages", "/topic/11/messages", "/topic/new-room", "/topic/read-status"}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, broker.destinations())
	}, 2*time.Second, 10*time.Millisecond)

	broker.mu.Lock()
	assert.Equal(t, []string{"Bearer tkn"}, broker.auth)
	broker.mu.Unlock()

	broker.publish(t, "/topic/10/messages", `{"id":5,"memberId":2,"content":"is this your cat?"}`)
	broker.publish(t, "/topic/10/messages", `{"content":"no id"}`)
	broker.publish(t, "/topic/new-room", `{"id":12,"chatUserId":3,"targetUserId":1}`)
	broker.publish(t, "/topic/read-status", `{"roomId":11,"readerId":2}`)

	require.Eventually(t, func() bool {
		created, reads, messages := rec.counts()
		return created == 1 && reads == 1 && messages == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, int64(5), rec.messages[10][0].Id)
	assert.Equal(t, int64(12), rec.created[0].Id)
	assert.Equal(t, [2]int64{11, 2}, rec.reads[0])
	rec.mu.Unlock()
}

func TestTopicClient_SyncRooms(t *testing.T) {
	broker := newFakeBroker()
	client := newTestTopics(t, broker, newTopicRecorder())
	require.NoError(t, client.Connect(context.Background(), []int64{10, 11}))

	client.SyncRooms(context.Background(), []int64{10, 12})

	assert.Equal(t, []int64{10, 12}, client.Rooms())
	want := []string{"/topic/10/messages", "/topic/12/messages", "/topic/new-room", "/topic/read-status"}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, broker.destinations())
	}, 2*time.Second, 10*time.Millisecond)

	t.Log("connecting again while alive only resyncs")
	require.NoError(t, client.Connect(context.Background(), []int64{12}))
	assert.Equal(t, []int64{12}, client.Rooms())
	broker.mu.Lock()
	assert.Len(t, broker.auth, 1)
	broker.mu.Unlock()
}

func TestTopicClient_Disconnect(t *testing.T) {
	broker := newFakeBroker()
	client := newTestTopics(t, broker, newTopicRecorder())
	require.NoError(t, client.Connect(context.Background(), []int64{10}))

	client.Disconnect()

	assert.False(t, client.Alive())
	assert.False(t, client.Wanted())
	assert.Empty(t, client.Rooms())
	assert.NoError(t, client.ReconnectIfDead(context.Background()))
	assert.False(t, client.Alive())

	t.Log("syncing while down only records the wanted rooms")
	client.SyncRooms(context.Background(), []int64{10})
	assert.Empty(t, client.Rooms())
}

func TestTopicClient_NoURL(t *testing.T) {
	client := NewTopicClient(config.BrokerConfig{TopicPrefix: "/topic/"}, nil, nil)

	err := client.Connect(context.Background(), []int64{1})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, client.Alive())
	assert.Equal(t, "/topic/3/messages", client.RoomDestination(3))
}
