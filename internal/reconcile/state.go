package reconcile

import (
	"sort"
	"time"

	"github.com/mbeoliero/pawchat/internal/entity"
)

// State is the full chat state of one session. A State is never mutated in
// place: reducers copy the maps they change and clone the rooms they touch.
type State struct {
	UserId        int64
	Rooms         map[int64]*entity.ChatRoom
	Left          map[int64]struct{}
	Tracker       Tracker
	LastRefreshAt time.Time
	// ServerSkew is the backend clock minus the local clock, learned from
	// REST responses. Local times plus ServerSkew are comparable with
	// server timestamps.
	ServerSkew time.Duration
}

// NewState creates an empty state for a user
func NewState(userId int64) State {
	return State{
		UserId: userId,
		Rooms:  make(map[int64]*entity.ChatRoom),
		Left:   make(map[int64]struct{}),
	}
}

// clone copies the top-level maps; rooms stay shared until touched
func (s State) clone() State {
	next := s
	next.Rooms = make(map[int64]*entity.ChatRoom, len(s.Rooms))
	for id, room := range s.Rooms {
		next.Rooms[id] = room
	}
	next.Left = make(map[int64]struct{}, len(s.Left))
	for id := range s.Left {
		next.Left[id] = struct{}{}
	}
	return next
}

// HasLeft reports whether the user left the room in this session
func (s State) HasLeft(roomId int64) bool {
	_, ok := s.Left[roomId]
	return ok
}

// Room returns a copy of the room
func (s State) Room(roomId int64) (entity.ChatRoom, bool) {
	room, ok := s.Rooms[roomId]
	if !ok {
		return entity.ChatRoom{}, false
	}
	return *room.Clone(), true
}

// SortedRooms returns copies of all rooms ordered by recent activity
func (s State) SortedRooms() []entity.ChatRoom {
	rooms := make([]entity.ChatRoom, 0, len(s.Rooms))
	for _, room := range s.Rooms {
		rooms = append(rooms, *room.Clone())
	}
	entity.SortRooms(rooms)
	return rooms
}

// RoomIds returns the known room ids in ascending order
func (s State) RoomIds() []int64 {
	ids := make([]int64, 0, len(s.Rooms))
	for id := range s.Rooms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TotalUnread sums unread counts across rooms
func (s State) TotalUnread() int {
	total := 0
	for _, room := range s.Rooms {
		total += room.UnreadCount
	}
	return total
}

// OpenRooms returns the tracked windows with room data taken from the store
func (s State) OpenRooms() []entity.OpenChatRoom {
	open := s.Tracker.Rooms()
	for i := range open {
		if room, ok := s.Rooms[open[i].Id]; ok {
			open[i].ChatRoom = *room.Clone()
		}
	}
	return open
}
