package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/pawchat/internal/codec"
	"github.com/mbeoliero/pawchat/internal/entity"
	"github.com/mbeoliero/pawchat/internal/store"
	"github.com/mbeoliero/pawchat/pkg/errcode"
	"github.com/mbeoliero/pawchat/pkg/jwt"
)

// RoomAPI is the REST surface of the chat backend
type RoomAPI interface {
	Me(ctx context.Context) (int64, error)
	ListRoomsWithUnread(ctx context.Context) ([]codec.RoomPayload, int, error)
	MarkRead(ctx context.Context, roomId int64) error
	LeaveRoom(ctx context.Context, roomId int64) error
}

// EventSource is the per-session server-sent event connection
type EventSource interface {
	Connect(ctx context.Context, userId int64) error
	Disconnect()
	Alive() bool
	ReconnectIfDead(ctx context.Context) error
}

// TopicSource is the broker connection, held while the chat list is open
type TopicSource interface {
	Connect(ctx context.Context, roomIds []int64) error
	SyncRooms(ctx context.Context, roomIds []int64)
	Disconnect()
	Alive() bool
	ReconnectIfDead(ctx context.Context) error
}

// SnapshotCache persists the last known room list
type SnapshotCache interface {
	Load(ctx context.Context, userId int64) (store.Snapshot, bool, error)
	Save(ctx context.Context, snap store.Snapshot) error
	Delete(ctx context.Context, userId int64) error
}

// Options holds engine timings
type Options struct {
	RefreshInterval          time.Duration
	CloseRefreshDelay        time.Duration
	FirstMessageRefreshDelay time.Duration
	ReadGrace                time.Duration
	ActionTimeout            time.Duration
	NotifyBuffer             int
	Clock                    func() time.Time
}

func (o *Options) setDefaults() {
	if o.CloseRefreshDelay == 0 {
		o.CloseRefreshDelay = 300 * time.Millisecond
	}
	if o.FirstMessageRefreshDelay == 0 {
		o.FirstMessageRefreshDelay = 500 * time.Millisecond
	}
	if o.ActionTimeout == 0 {
		o.ActionTimeout = 10 * time.Second
	}
	if o.NotifyBuffer == 0 {
		o.NotifyBuffer = 64
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Engine keeps one user's chat rooms in sync across the REST poll, the event
// stream and the broker topics.
type Engine struct {
	api    RoomAPI
	events EventSource
	topics TopicSource
	cache  SnapshotCache
	opts   Options
	store  *store.Store

	mu       sync.Mutex
	epoch    uint64
	running  bool
	listOpen bool
	ctx      context.Context
	cancel   context.CancelFunc
	timers   map[*time.Timer]struct{}
	wg       sync.WaitGroup
	resync   chan struct{}

	refreshing   atomic.Bool
	refreshAgain atomic.Bool

	notifier *notifier
}

// NewEngine creates an engine; transports are attached with SetTransport
func NewEngine(api RoomAPI, cache SnapshotCache, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		api:      api,
		cache:    cache,
		opts:     opts,
		store:    store.New(0, store.WithClock(opts.Clock), store.WithReadGrace(opts.ReadGrace)),
		timers:   make(map[*time.Timer]struct{}),
		notifier: newNotifier(opts.NotifyBuffer),
	}
}

// SetTransport sets the push connections
func (e *Engine) SetTransport(events EventSource, topics TopicSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = events
	e.topics = topics
}

// Start resolves the session user and begins syncing. A running session is
// stopped first.
func (e *Engine) Start(ctx context.Context) error {
	e.Stop()

	if tp, ok := e.api.(interface{ Token() string }); ok && tp.Token() != "" {
		claims, err := jwt.InspectSessionToken(tp.Token())
		if err != nil {
			log.CtxDebug(ctx, "session token not inspectable: %v", err)
		} else if claims.Expired(e.opts.Clock()) {
			log.CtxWarn(ctx, "session token expired at %s", claims.ExpiresAt.Format(time.RFC3339))
			return errcode.ErrTokenExpired
		}
	}

	userId, err := e.api.Me(ctx)
	if err != nil {
		log.CtxWarn(ctx, "resolve session user failed: %v", err)
		return err
	}
	if userId == 0 {
		return errcode.ErrNotAuthenticated
	}

	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	e.running = true
	e.listOpen = false
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.resync = make(chan struct{}, 1)
	e.store.Reset(userId)
	events := e.events
	e.mu.Unlock()

	log.CtxInfo(ctx, "chat session started: user_id=%d, epoch=%d", userId, epoch)

	e.restoreSnapshot(ctx, userId)

	if events != nil {
		if err := events.Connect(ctx, userId); err != nil {
			log.CtxWarn(ctx, "event stream connect failed: user_id=%d, error=%v", userId, err)
		}
	}

	e.goSession(epoch, e.resyncLoop)
	if e.opts.RefreshInterval > 0 {
		e.goSession(epoch, e.tickLoop)
	}

	if err := e.FetchChatRooms(ctx); err != nil {
		log.CtxWarn(ctx, "initial chat room fetch failed: user_id=%d, error=%v", userId, err)
	}
	return nil
}

// Stop ends the session: push connections close, timers stop and responses
// still in flight are discarded. Requests are abandoned, not aborted, so
// Stop does not wait for them.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.listOpen = false
	e.epoch++
	e.cancel()
	for t := range e.timers {
		t.Stop()
	}
	e.timers = make(map[*time.Timer]struct{})
	events, topics := e.events, e.topics
	userId := e.store.UserId()
	e.mu.Unlock()

	if topics != nil {
		topics.Disconnect()
	}
	if events != nil {
		events.Disconnect()
	}
	e.wg.Wait()
	e.store.Reset(0)

	log.Info("chat session stopped: user_id=%d", userId)
}

// Logout stops the session and forgets the user's room snapshot
func (e *Engine) Logout(ctx context.Context) error {
	_, userId := e.session()
	e.Stop()
	if userId == 0 || e.cache == nil {
		return nil
	}
	if err := e.cache.Delete(ctx, userId); err != nil {
		log.CtxWarn(ctx, "delete room snapshot failed: user_id=%d, error=%v", userId, err)
		return err
	}
	log.CtxInfo(ctx, "logged out: user_id=%d", userId)
	return nil
}

// Shutdown stops the session and closes notification subscribers
func (e *Engine) Shutdown() {
	e.Stop()
	e.notifier.close()
}

// session returns the current epoch and user; user is 0 without a session
func (e *Engine) session() (uint64, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return e.epoch, 0
	}
	return e.epoch, e.store.UserId()
}

// goSession runs fn in a goroutine bound to the session epoch; it is a
// no-op once that session ended.
func (e *Engine) goSession(epoch uint64, fn func(ctx context.Context)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.epoch != epoch {
		return false
	}
	ctx := e.ctx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.CtxError(ctx, "session task panic: %v", r)
			}
		}()
		fn(ctx)
	}()
	return true
}

// after runs fn after d unless the session ends first
func (e *Engine) after(epoch uint64, d time.Duration, fn func(ctx context.Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.epoch != epoch {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		e.mu.Lock()
		delete(e.timers, t)
		e.mu.Unlock()
		e.goSession(epoch, fn)
	})
	e.timers[t] = struct{}{}
}

// tickLoop is the backstop poll
func (e *Engine) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RequestRefresh()
		}
	}
}

// resyncLoop diffs broker room subscriptions against the current room set
func (e *Engine) resyncLoop(ctx context.Context) {
	e.mu.Lock()
	resync := e.resync
	e.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-resync:
			e.mu.Lock()
			topics, open := e.topics, e.listOpen
			e.mu.Unlock()
			if topics != nil && open {
				topics.SyncRooms(ctx, e.store.RoomIds())
			}
		}
	}
}

func (e *Engine) restoreSnapshot(ctx context.Context, userId int64) {
	if e.cache == nil {
		return
	}
	snap, found, err := e.cache.Load(ctx, userId)
	if err != nil {
		log.CtxWarn(ctx, "load room snapshot failed: user_id=%d, error=%v", userId, err)
		return
	}
	if found && e.store.Restore(snap) {
		log.CtxInfo(ctx, "room snapshot restored: user_id=%d, rooms=%d", userId, len(snap.Rooms))
	}
}

func (e *Engine) saveSnapshot(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Save(ctx, e.store.Snapshot()); err != nil {
		log.CtxWarn(ctx, "save room snapshot failed: %v", err)
	}
}

// UserId returns the session user, 0 without a session
func (e *Engine) UserId() int64 {
	_, userId := e.session()
	return userId
}

// Running reports whether a session is active
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ChatListOpen reports whether the chat list is open
func (e *Engine) ChatListOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listOpen
}

// Rooms returns the rooms ordered by recent activity
func (e *Engine) Rooms() []entity.ChatRoom {
	return e.store.Rooms()
}

// Room returns one room
func (e *Engine) Room(roomId int64) (entity.ChatRoom, bool) {
	return e.store.Room(roomId)
}

// OpenRooms returns the tracked windows
func (e *Engine) OpenRooms() []entity.OpenChatRoom {
	return e.store.OpenRooms()
}

// TotalUnread sums the unread counts
func (e *Engine) TotalUnread() int {
	return e.store.TotalUnread()
}

// LastError returns the last user-visible refresh error
func (e *Engine) LastError() string {
	return e.store.LastError()
}
