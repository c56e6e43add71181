package store

import (
	"time"

	"github.com/mbeoliero/pawchat/internal/entity"
	"github.com/mbeoliero/pawchat/internal/reconcile"
)

// Snapshot is the persisted last-known room list of a user
type Snapshot struct {
	UserId  int64             `json:"userId"`
	Rooms   []entity.ChatRoom `json:"rooms"`
	SavedAt time.Time         `json:"savedAt"`
}

// Snapshot captures the current room list
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		UserId:  s.state.UserId,
		Rooms:   s.state.SortedRooms(),
		SavedAt: s.now(),
	}
}

// Restore seeds an empty store with a snapshot of the same user. It returns
// false when the snapshot belongs to someone else or the store already has rooms.
func (s *Store) Restore(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.UserId != s.state.UserId || len(s.state.Rooms) > 0 {
		return false
	}

	rooms := make([]reconcile.ServerRoom, 0, len(snap.Rooms))
	for _, room := range snap.Rooms {
		rooms = append(rooms, reconcile.ServerRoom{Room: room, HasUnreadAggregate: true})
	}
	next, _ := s.reducer.Apply(s.state, reconcile.RoomsRefreshed{Rooms: rooms, RequestedAt: snap.SavedAt})
	s.state = next
	return true
}
