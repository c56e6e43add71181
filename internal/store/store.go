package store

import (
	"sync"
	"time"

	"github.com/mbeoliero/pawchat/internal/entity"
	"github.com/mbeoliero/pawchat/internal/reconcile"
)

// Store holds the room state of the current session. Every mutation is one
// reducer step swapped in under the lock; callers run the returned effects
// after the call returns.
type Store struct {
	mu      sync.RWMutex
	state   reconcile.State
	reducer reconcile.Reducer
	now     func() time.Time
	lastErr string
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the time source used to stamp local mutations
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithReadGrace sets how long a local read-zero survives a refresh
func WithReadGrace(d time.Duration) Option {
	return func(s *Store) {
		s.reducer.ReadGrace = d
	}
}

// New creates a store for a user
func New(userId int64, opts ...Option) *Store {
	s := &Store{
		state: reconcile.NewState(userId),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply runs one event through the reducer
func (s *Store) Apply(evt reconcile.Event) []reconcile.Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, effects := s.reducer.Apply(s.state, evt)
	s.state = next
	return effects
}

// Now returns the store clock's current time
func (s *Store) Now() time.Time {
	return s.now()
}

// Rooms returns all rooms ordered by most recent activity
func (s *Store) Rooms() []entity.ChatRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SortedRooms()
}

// Room returns a copy of one room
func (s *Store) Room(roomId int64) (entity.ChatRoom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Room(roomId)
}

// RoomIds returns the known room ids
func (s *Store) RoomIds() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RoomIds()
}

// ReplaceAll merges a REST refresh issued at requestedAt
func (s *Store) ReplaceAll(rooms []reconcile.ServerRoom, requestedAt time.Time) []reconcile.Effect {
	return s.Apply(reconcile.RoomsRefreshed{Rooms: rooms, RequestedAt: requestedAt})
}

// UpsertRoomMessage appends a pushed message unless its id is already known
func (s *Store) UpsertRoomMessage(roomId int64, msg entity.ChatMessage) []reconcile.Effect {
	return s.Apply(reconcile.MessageArrived{RoomId: roomId, Message: msg, At: s.now()})
}

// SetUnreadZero zeroes the room's unread count
func (s *Store) SetUnreadZero(roomId int64) []reconcile.Effect {
	return s.Apply(reconcile.UnreadZeroed{RoomId: roomId, At: s.now()})
}

// RemoveRoom drops a room after a confirmed leave
func (s *Store) RemoveRoom(roomId int64) []reconcile.Effect {
	return s.Apply(reconcile.RoomLeft{RoomId: roomId})
}

// Enter focuses a room window
func (s *Store) Enter(room entity.ChatRoom) []reconcile.Effect {
	return s.Apply(reconcile.RoomEntered{Room: room, At: s.now()})
}

// Close removes a room window
func (s *Store) Close(roomId int64) []reconcile.Effect {
	return s.Apply(reconcile.RoomClosed{RoomId: roomId})
}

// OpenRooms returns the tracked chat windows
func (s *Store) OpenRooms() []entity.OpenChatRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.OpenRooms()
}

// IsOpen reports whether the room is the focused window
func (s *Store) IsOpen(roomId int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Tracker.IsOpen(roomId)
}

// TotalUnread sums unread counts
func (s *Store) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.TotalUnread()
}

// UserId returns the session user the state belongs to
func (s *Store) UserId() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UserId
}

// Reset drops all state and starts over for userId
func (s *Store) Reset(userId int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = reconcile.NewState(userId)
	s.lastErr = ""
}

// SetError records a user-visible error string
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}

// LastError returns the last recorded error, empty after a successful refresh
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
