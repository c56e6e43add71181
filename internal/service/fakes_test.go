package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mbeoliero/pawchat/internal/codec"
	"github.com/mbeoliero/pawchat/internal/entity"
	"github.com/mbeoliero/pawchat/internal/store"
)

type fakeAPI struct {
	mu        sync.Mutex
	userId    int64
	meErr     error
	token     string
	rooms     []codec.RoomPayload
	listErr   error
	listCalls int
	leaveErr  error
	readCalls []int64
	left      []int64
	skew      time.Duration

	// block, when set, holds the next list call until release is closed
	block   bool
	entered chan struct{}
	release chan struct{}
}

func newFakeAPI(userId int64, rooms ...entity.ChatRoom) *fakeAPI {
	api := &fakeAPI{userId: userId}
	api.setRooms(rooms...)
	return api
}

func (f *fakeAPI) setRooms(rooms ...entity.ChatRoom) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = f.rooms[:0:0]
	for _, r := range rooms {
		f.rooms = append(f.rooms, codec.RoomPayload{Room: r, HasUnreadAggregate: true})
	}
}

func (f *fakeAPI) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeAPI) ClockSkew() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.skew, f.skew != 0
}

func (f *fakeAPI) Me(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userId, f.meErr
}

func (f *fakeAPI) ListRoomsWithUnread(ctx context.Context) ([]codec.RoomPayload, int, error) {
	f.mu.Lock()
	f.listCalls++
	rooms := append([]codec.RoomPayload(nil), f.rooms...)
	err := f.listErr
	block := f.block
	f.block = false
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if block {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if err != nil {
		return nil, 0, err
	}
	return rooms, 0, nil
}

func (f *fakeAPI) MarkRead(_ context.Context, roomId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls = append(f.readCalls, roomId)
	return nil
}

func (f *fakeAPI) LeaveRoom(_ context.Context, roomId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leaveErr != nil {
		return f.leaveErr
	}
	f.left = append(f.left, roomId)
	return nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeAPI) reads() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.readCalls...)
}

// holdNextList makes the next list call wait until the returned func runs
func (f *fakeAPI) holdNextList() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = true
	f.entered = make(chan struct{})
	f.release = make(chan struct{})
	ch := f.release
	return f.entered, func() { close(ch) }
}

type fakeEvents struct {
	mu         sync.Mutex
	userId     int64
	alive      bool
	connects   int
	connectErr error
}

func (f *fakeEvents) Connect(_ context.Context, userId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.userId = userId
	f.alive = true
	return nil
}

func (f *fakeEvents) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
}

func (f *fakeEvents) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeEvents) ReconnectIfDead(ctx context.Context) error {
	userId, alive, _ := f.state()
	if alive {
		return nil
	}
	return f.Connect(ctx, userId)
}

func (f *fakeEvents) state() (int64, bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userId, f.alive, f.connects
}

type fakeTopics struct {
	mu         sync.Mutex
	alive      bool
	rooms      []int64
	syncs      int
	connectErr error
}

func (f *fakeTopics) Connect(_ context.Context, roomIds []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.alive = true
	f.rooms = append([]int64(nil), roomIds...)
	return nil
}

func (f *fakeTopics) SyncRooms(_ context.Context, roomIds []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	f.rooms = append([]int64(nil), roomIds...)
}

func (f *fakeTopics) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	f.rooms = nil
}

func (f *fakeTopics) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeTopics) ReconnectIfDead(context.Context) error {
	return nil
}

func (f *fakeTopics) subscribed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.rooms...)
}

type fakeCache struct {
	mu    sync.Mutex
	snaps map[int64]store.Snapshot
	saves int
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[int64]store.Snapshot)}
}

func (f *fakeCache) Load(_ context.Context, userId int64) (store.Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[userId]
	return snap, ok, nil
}

func (f *fakeCache) Save(_ context.Context, snap store.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.snaps[snap.UserId] = snap
	return nil
}

func (f *fakeCache) Delete(_ context.Context, userId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snaps, userId)
	return nil
}

func (f *fakeCache) saved(userId int64) (store.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[userId]
	return snap, ok
}

var errBoom = errors.New("boom")
