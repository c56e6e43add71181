package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/pawchat/internal/codec"
	"github.com/mbeoliero/pawchat/internal/config"
	"github.com/mbeoliero/pawchat/internal/entity"
	"github.com/mbeoliero/pawchat/pkg/constant"
)

// TopicHandler receives normalized broker events
type TopicHandler interface {
	OnRoomCreated(ctx context.Context, room entity.ChatRoom)
	OnReadStatus(ctx context.Context, roomId, readerId int64)
	OnRoomMessage(ctx context.Context, roomId int64, msg entity.ChatMessage)
}

// Credentials returns the session token and cookie for the broker handshake
type Credentials interface {
	Token() string
	Cookie() string
}

// TopicClient is the STOMP subscriber for new-room, read-status and
// per-room message topics.
type TopicClient struct {
	cfg     config.BrokerConfig
	creds   Credentials
	handler TopicHandler
	dialer  *websocket.Dialer

	mu       sync.Mutex
	conn     *stomp.Conn
	ws       *wsConn
	connId   string
	ctx      context.Context
	cancel   context.CancelFunc
	subs     map[string]*stomp.Subscription
	rooms    map[int64]struct{}
	alive    atomic.Bool
	lastErr  error
	wanted   bool
	wantRoom []int64
}

// NewTopicClient creates a broker client; it connects on Connect
func NewTopicClient(cfg config.BrokerConfig, creds Credentials, handler TopicHandler) *TopicClient {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = PongWait
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = PingPeriod
	}
	if cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = (cfg.PongWait * 9) / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = MaxMessageSize
	}
	return &TopicClient{
		cfg:     cfg,
		creds:   creds,
		handler: handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     stompSubprotocols,
		},
		subs:  make(map[string]*stomp.Subscription),
		rooms: make(map[int64]struct{}),
	}
}

// SetHandler replaces the event handler
func (t *TopicClient) SetHandler(handler TopicHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Destination returns the full topic path for name
func (t *TopicClient) Destination(name string) string {
	return t.cfg.TopicPrefix + name
}

// RoomDestination returns the message topic of a room
func (t *TopicClient) RoomDestination(roomId int64) string {
	return t.Destination(fmt.Sprintf(constant.TopicRoomMessage, roomId))
}

// Connect dials the broker and subscribes to the global topics plus the
// given rooms. An alive connection is kept and only resynced.
func (t *TopicClient) Connect(ctx context.Context, roomIds []int64) error {
	var stale []*stomp.Subscription
	var releases []func()
	defer func() {
		unsubscribeAll(ctx, stale)
		for _, release := range releases {
			release()
		}
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.wanted = true
	t.wantRoom = append([]int64(nil), roomIds...)
	if t.alive.Load() {
		stale = t.syncLocked(ctx, roomIds)
		return nil
	}
	releases = append(releases, t.closeLocked())

	if t.cfg.URL == "" {
		t.lastErr = ErrNotConnected
		return fmt.Errorf("broker url not configured: %w", ErrNotConnected)
	}

	header := http.Header{}
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.AcceptVersion(stomp.V12),
		stomp.ConnOpt.HeartBeat(t.cfg.HeartBeat, t.cfg.HeartBeat),
	}
	if t.cfg.Host != "" {
		opts = append(opts, stomp.ConnOpt.Host(t.cfg.Host))
	}
	if t.cfg.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(t.cfg.Login, t.cfg.Passcode))
	}
	if t.creds != nil {
		if token := t.creds.Token(); token != "" {
			header.Set(constant.HeaderAuthorization, constant.BearerPrefix+token)
			opts = append(opts, stomp.ConnOpt.Header(constant.HeaderAuthorization, constant.BearerPrefix+token))
		}
		if cookie := t.creds.Cookie(); cookie != "" {
			header.Set(constant.HeaderCookie, cookie)
		}
	}

	raw, _, err := t.dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		t.lastErr = err
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	ws := newWsConn(raw, t.cfg.MaxMessageSize, t.cfg.WriteChannelSize, t.cfg.WriteWait, t.cfg.PongWait, t.cfg.PingPeriod)

	conn, err := stomp.Connect(ws, opts...)
	if err != nil {
		ws.Close()
		t.lastErr = err
		return fmt.Errorf("failed to connect stomp: %w", err)
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.conn = conn
	t.ws = ws
	t.connId = uuid.NewString()
	t.lastErr = nil
	t.alive.Store(true)

	for _, name := range []string{constant.TopicNewRoom, constant.TopicReadStatus} {
		if err := t.subscribeLocked(t.Destination(name), 0); err != nil {
			releases = append(releases, t.closeLocked())
			t.lastErr = err
			return err
		}
	}
	stale = t.syncLocked(ctx, roomIds)

	log.CtxInfo(ctx, "broker connected: conn_id=%s, rooms=%d", t.connId, len(roomIds))
	return nil
}

// SyncRooms subscribes new rooms and unsubscribes removed ones
func (t *TopicClient) SyncRooms(ctx context.Context, roomIds []int64) {
	t.mu.Lock()
	t.wantRoom = append([]int64(nil), roomIds...)
	if !t.alive.Load() {
		t.mu.Unlock()
		return
	}
	stale := t.syncLocked(ctx, roomIds)
	t.mu.Unlock()

	unsubscribeAll(ctx, stale)
}

// syncLocked diffs room subscriptions against roomIds. The removed
// subscriptions are returned so they can be unsubscribed without t.mu.
func (t *TopicClient) syncLocked(ctx context.Context, roomIds []int64) []*stomp.Subscription {
	var stale []*stomp.Subscription
	want := make(map[int64]struct{}, len(roomIds))
	for _, id := range roomIds {
		want[id] = struct{}{}
		if _, ok := t.rooms[id]; ok {
			continue
		}
		if err := t.subscribeLocked(t.RoomDestination(id), id); err != nil {
			log.CtxWarn(ctx, "subscribe room failed: room_id=%d, error=%v", id, err)
			continue
		}
		t.rooms[id] = struct{}{}
	}

	for id := range t.rooms {
		if _, ok := want[id]; ok {
			continue
		}
		dest := t.RoomDestination(id)
		if sub, ok := t.subs[dest]; ok {
			delete(t.subs, dest)
			stale = append(stale, sub)
		}
		delete(t.rooms, id)
	}
	return stale
}

func unsubscribeAll(ctx context.Context, subs []*stomp.Subscription) {
	for _, sub := range subs {
		if !sub.Active() {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			log.CtxDebug(ctx, "unsubscribe %s: error=%v", sub.Destination(), err)
		}
	}
}

// subscribeLocked subscribes dest and starts its reader; roomId is 0 for
// global topics
func (t *TopicClient) subscribeLocked(dest string, roomId int64) error {
	sub, err := t.conn.Subscribe(dest, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", dest, err)
	}
	t.subs[dest] = sub
	go t.readLoop(t.ctx, t.connId, dest, roomId, sub, t.handler)
	return nil
}

// readLoop dispatches one subscription's messages
func (t *TopicClient) readLoop(ctx context.Context, connId, dest string, roomId int64, sub *stomp.Subscription, handler TopicHandler) {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(ctx, "broker read loop panic: conn_id=%s, destination=%s, error=%v", connId, dest, r)
			t.markDead(connId, ErrPanic)
		}
	}()

	for msg := range sub.C {
		if msg.Err != nil {
			if ctx.Err() == nil && t.subscribed(connId, dest, sub) {
				log.CtxWarn(ctx, "broker subscription error: conn_id=%s, destination=%s, error=%v", connId, dest, msg.Err)
				t.markDead(connId, msg.Err)
			}
			return
		}
		if handler == nil {
			continue
		}
		t.dispatch(ctx, dest, roomId, msg.Body, handler)
	}
}

func (t *TopicClient) dispatch(ctx context.Context, dest string, roomId int64, body []byte, handler TopicHandler) {
	switch dest {
	case t.Destination(constant.TopicNewRoom):
		payload, err := codec.DecodeRoomBytes(body)
		if err != nil {
			log.CtxWarn(ctx, "drop malformed new-room frame: error=%v", err)
			return
		}
		handler.OnRoomCreated(ctx, payload.Room)
	case t.Destination(constant.TopicReadStatus):
		room, reader, err := codec.DecodeReadStatus(body)
		if err != nil {
			log.CtxWarn(ctx, "drop malformed read-status frame: error=%v", err)
			return
		}
		handler.OnReadStatus(ctx, room, reader)
	default:
		msg, err := codec.DecodeMessageBytes(body)
		if err != nil {
			log.CtxWarn(ctx, "drop malformed room message: room_id=%d, error=%v", roomId, err)
			return
		}
		handler.OnRoomMessage(ctx, roomId, msg)
	}
}

func (t *TopicClient) subscribed(connId, dest string, sub *stomp.Subscription) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connId == connId && t.subs[dest] == sub
}

func (t *TopicClient) markDead(connId string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connId == connId {
		t.alive.Store(false)
		t.lastErr = err
	}
}

// Disconnect unsubscribes everything and closes the socket
func (t *TopicClient) Disconnect() {
	t.mu.Lock()
	release := t.closeLocked()
	t.wanted = false
	t.wantRoom = nil
	t.mu.Unlock()

	release()
}

// closeLocked detaches the current connection and returns the function that
// closes it, to be called after t.mu is released.
func (t *TopicClient) closeLocked() func() {
	if t.cancel != nil {
		t.cancel()
	}
	t.alive.Store(false)
	t.subs = make(map[string]*stomp.Subscription)
	t.rooms = make(map[int64]struct{})
	conn, ws := t.conn, t.ws
	t.conn = nil
	t.ws = nil
	t.cancel = nil
	t.connId = ""

	wait := t.cfg.WriteWait
	return func() {
		if conn != nil {
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := conn.Disconnect(); err != nil {
					log.Debug("broker disconnect: %v", err)
				}
			}()
			select {
			case <-done:
			case <-time.After(wait):
				log.Debug("broker disconnect receipt timed out")
			}
		}
		if ws != nil {
			ws.Close()
		}
	}
}

// Wanted reports whether the chat list asked for a connection
func (t *TopicClient) Wanted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wanted
}

// Alive reports whether the broker connection is up
func (t *TopicClient) Alive() bool {
	return t.alive.Load()
}

// Rooms returns the rooms with an active message subscription
func (t *TopicClient) Rooms() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int64, 0, len(t.rooms))
	for id := range t.rooms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LastError returns why the connection last failed
func (t *TopicClient) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// ReconnectIfDead reconnects when the connection was wanted but dropped
func (t *TopicClient) ReconnectIfDead(ctx context.Context) error {
	if t.Alive() {
		return nil
	}
	t.mu.Lock()
	wanted, rooms := t.wanted, t.wantRoom
	t.mu.Unlock()
	if !wanted {
		return nil
	}
	log.CtxInfo(ctx, "broker dead, reconnecting: rooms=%d", len(rooms))
	return t.Connect(ctx, rooms)
}
