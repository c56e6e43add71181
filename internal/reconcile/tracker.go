package reconcile

import "github.com/mbeoliero/pawchat/internal/entity"

// Tracker records rooms that have a chat window, at most one of them focused.
// Tracker values are immutable: every operation returns a new Tracker.
type Tracker struct {
	rooms []entity.OpenChatRoom
}

// Enter focuses room, adding it when untracked and unfocusing every other window
func (t Tracker) Enter(room entity.ChatRoom) Tracker {
	next := make([]entity.OpenChatRoom, 0, len(t.rooms)+1)
	found := false
	for _, open := range t.rooms {
		open.IsOpen = open.Id == room.Id
		if open.IsOpen {
			found = true
		}
		next = append(next, open)
	}
	if !found {
		next = append(next, entity.OpenChatRoom{ChatRoom: *room.Clone(), IsOpen: true})
	}
	return Tracker{rooms: next}
}

// Close stops tracking the room
func (t Tracker) Close(roomId int64) Tracker {
	next := make([]entity.OpenChatRoom, 0, len(t.rooms))
	for _, open := range t.rooms {
		if open.Id != roomId {
			next = append(next, open)
		}
	}
	return Tracker{rooms: next}
}

// IsOpen reports whether the room is the focused window
func (t Tracker) IsOpen(roomId int64) bool {
	for _, open := range t.rooms {
		if open.Id == roomId {
			return open.IsOpen
		}
	}
	return false
}

// Tracked reports whether the room has a window, focused or not
func (t Tracker) Tracked(roomId int64) bool {
	for _, open := range t.rooms {
		if open.Id == roomId {
			return true
		}
	}
	return false
}

// Focused returns the focused room id, if any
func (t Tracker) Focused() (int64, bool) {
	for _, open := range t.rooms {
		if open.IsOpen {
			return open.Id, true
		}
	}
	return 0, false
}

// Rooms returns a copy of the tracked windows in the order they were opened
func (t Tracker) Rooms() []entity.OpenChatRoom {
	out := make([]entity.OpenChatRoom, len(t.rooms))
	copy(out, t.rooms)
	return out
}

// Len returns the number of tracked windows
func (t Tracker) Len() int {
	return len(t.rooms)
}
