package reconcile

import (
	"time"

	"github.com/mbeoliero/pawchat/internal/entity"
)

// Reducer applies events to a State. It performs no I/O: network calls,
// timers and notifications are returned as effects.
type Reducer struct {
	// ReadGrace keeps a local zero when a refresh was requested less than
	// ReadGrace after it, since the server may not have seen the read yet.
	// It also bounds how late a message may arrive after a read and still
	// be treated as covered by it.
	ReadGrace time.Duration
}

// Apply returns the state after evt and the side effects it requires
func (r Reducer) Apply(s State, evt Event) (State, []Effect) {
	switch e := evt.(type) {
	case RoomsRefreshed:
		return r.refreshed(s, e)
	case MessageArrived:
		return r.messageArrived(s, e)
	case MessageSignaled:
		return s, messageSignaled(s, e)
	case ReadStatusChanged:
		return readStatusChanged(s, e)
	case UnreadZeroed:
		next, changed := zero(s, e.RoomId, e.At)
		if !changed {
			return next, nil
		}
		return next, []Effect{{Kind: EffectRoomsChanged, RoomId: e.RoomId}}
	case RoomCreated:
		return roomCreated(s, e)
	case RoomEntered:
		return roomEntered(s, e)
	case RoomClosed:
		return roomClosed(s, e)
	case RoomLeft:
		return roomLeft(s, e)
	default:
		return s, nil
	}
}

// refreshed merges a REST refresh into the state by union of room ids.
// Rooms missing from the payload are kept; left rooms are not revived.
func (r Reducer) refreshed(s State, e RoomsRefreshed) (State, []Effect) {
	if e.RequestedAt.Before(s.LastRefreshAt) {
		return s, nil
	}

	next := s.clone()
	next.LastRefreshAt = e.RequestedAt
	if e.SkewKnown {
		next.ServerSkew = e.ServerSkew
	}
	added := false
	for _, sr := range e.Rooms {
		id := sr.Room.Id
		if !sr.Room.Involves(s.UserId) || s.HasLeft(id) {
			continue
		}
		local, exists := s.Rooms[id]
		if !exists {
			added = true
		}
		next.Rooms[id] = r.merge(s, local, sr, e.RequestedAt)
	}

	effects := []Effect{{Kind: EffectRoomsChanged}}
	if added {
		effects = append(effects, Effect{Kind: EffectResubscribe})
	}
	return next, effects
}

// merge combines the server view of a room with the local one. Unread
// precedence: open window > recent local zero > server aggregate (or a
// recompute from read flags), plus messages pushed after the refresh was
// requested. Anything that arrived earlier is already in the server count,
// whether or not the payload carries the message itself.
func (r Reducer) merge(s State, local *entity.ChatRoom, sr ServerRoom, requestedAt time.Time) *entity.ChatRoom {
	room := sr.Room.Clone()
	room.Local = false

	base := room.UnreadCount
	if !sr.HasUnreadAggregate {
		base = room.CountUnread(s.UserId)
	}

	if local == nil {
		if s.Tracker.IsOpen(room.Id) {
			base = 0
		}
		room.UnreadCount = base
		return room
	}

	pushed := 0
	for _, msg := range local.ChatMessages {
		if entity.ContainsMessage(room.ChatMessages, msg.Id) {
			continue
		}
		room.ChatMessages = append(room.ChatMessages, msg)
		if !msg.IsFrom(s.UserId) && msg.ReceivedAt.After(requestedAt) && msg.ReceivedAt.After(local.ZeroedAt) {
			pushed++
		}
	}

	room.ZeroedAt = local.ZeroedAt
	room.ModifiedDate = entity.Later(room.ModifiedDate, local.ModifiedDate)

	switch {
	case s.Tracker.IsOpen(room.Id):
		room.UnreadCount = 0
	case !local.ZeroedAt.IsZero() && local.ZeroedAt.After(requestedAt.Add(-r.ReadGrace)):
		room.UnreadCount = pushed
	default:
		room.UnreadCount = base + pushed
	}
	return room
}

// messageArrived applies a per-room topic message
func (r Reducer) messageArrived(s State, e MessageArrived) (State, []Effect) {
	if s.HasLeft(e.RoomId) {
		return s, nil
	}
	current, ok := s.Rooms[e.RoomId]
	if !ok {
		return s, []Effect{{Kind: EffectRefresh, RoomId: e.RoomId}}
	}
	if entity.ContainsMessage(current.ChatMessages, e.Message.Id) {
		return s, nil
	}

	msg := e.Message
	if msg.CreatedDate.IsZero() {
		msg.CreatedDate = e.At.Add(s.ServerSkew)
	}
	covered := r.covered(s, current, msg, e.At)
	if !covered {
		msg.ReceivedAt = e.At
	}

	room := current.Clone()
	room.ChatMessages = append(room.ChatMessages, msg)
	isSelf := msg.IsFrom(s.UserId)
	isOpen := s.Tracker.IsOpen(room.Id)
	isFirst := len(room.ChatMessages) == 1

	effects := []Effect{{Kind: EffectRoomsChanged, RoomId: room.Id}}
	switch {
	case isFirst && !isSelf:
		if isOpen {
			room.UnreadCount = 0
			room.ZeroedAt = entity.Later(room.ZeroedAt, e.At)
			effects = append(effects, Effect{Kind: EffectReadAck, RoomId: room.Id})
		} else if !covered {
			room.UnreadCount++
		}
		effects = append(effects,
			Effect{Kind: EffectScheduleRefresh, RoomId: room.Id, Delay: DelayFirstMessage},
			Effect{Kind: EffectNewActivity, RoomId: room.Id},
		)
	case isSelf:
		// own messages never change the unread count
	case isOpen:
		room.UnreadCount = 0
		room.ZeroedAt = entity.Later(room.ZeroedAt, e.At)
		effects = append(effects, Effect{Kind: EffectReadAck, RoomId: room.Id})
	case !covered:
		room.UnreadCount++
	}

	room.ModifiedDate = entity.Later(room.ModifiedDate, msg.CreatedDate)

	next := s.clone()
	next.Rooms[room.Id] = room
	return next, effects
}

// covered reports whether a read zeroed before msg arrived already includes
// it. The message must arrive within ReadGrace of the zero and be written
// before it; the write time is compared in server time using ServerSkew.
func (r Reducer) covered(s State, room *entity.ChatRoom, msg entity.ChatMessage, arrivedAt time.Time) bool {
	if room.ZeroedAt.IsZero() || arrivedAt.After(room.ZeroedAt.Add(r.ReadGrace)) {
		return false
	}
	return !msg.CreatedDate.After(room.ZeroedAt.Add(s.ServerSkew))
}

// messageSignaled decides what an event-stream message notice needs
func messageSignaled(s State, e MessageSignaled) []Effect {
	if e.SenderId == s.UserId || s.Tracker.IsOpen(e.RoomId) || s.HasLeft(e.RoomId) {
		return nil
	}
	return []Effect{{Kind: EffectRefresh, RoomId: e.RoomId}}
}

// readStatusChanged zeroes the room whoever the reader is; topic reads also refresh
func readStatusChanged(s State, e ReadStatusChanged) (State, []Effect) {
	next, changed := zero(s, e.RoomId, e.At)
	var effects []Effect
	if changed {
		effects = append(effects, Effect{Kind: EffectRoomsChanged, RoomId: e.RoomId})
	}
	if e.Source == SourceTopic {
		effects = append(effects, Effect{Kind: EffectRefresh, RoomId: e.RoomId})
	}
	return next, effects
}

// zero sets the unread count to 0 and records when; unknown rooms are ignored
func zero(s State, roomId int64, at time.Time) (State, bool) {
	current, ok := s.Rooms[roomId]
	if !ok {
		return s, false
	}
	zeroedAt := entity.Later(current.ZeroedAt, at)
	if current.UnreadCount == 0 && zeroedAt.Equal(current.ZeroedAt) {
		return s, false
	}

	room := current.Clone()
	room.UnreadCount = 0
	room.ZeroedAt = zeroedAt

	next := s.clone()
	next.Rooms[roomId] = room
	return next, current.UnreadCount != 0
}

// roomCreated inserts a room announced on the new-room topic
func roomCreated(s State, e RoomCreated) (State, []Effect) {
	id := e.Room.Id
	if !e.Room.Involves(s.UserId) || s.HasLeft(id) {
		return s, nil
	}
	if _, exists := s.Rooms[id]; exists {
		return s, nil
	}

	room := e.Room.Clone()
	room.ChatMessages = []entity.ChatMessage{}
	room.UnreadCount = 0
	room.Local = true
	if room.ModifiedDate.IsZero() {
		room.ModifiedDate = e.At
	}

	next := s.clone()
	next.Rooms[id] = room
	return next, []Effect{
		{Kind: EffectRoomsChanged, RoomId: id},
		{Kind: EffectResubscribe},
	}
}

// roomEntered focuses the room window, zeroes it and asks for a read-ack
func roomEntered(s State, e RoomEntered) (State, []Effect) {
	id := e.Room.Id
	next := s.clone()
	delete(next.Left, id)
	next.Tracker = s.Tracker.Enter(e.Room)

	effects := []Effect{
		{Kind: EffectRoomsChanged, RoomId: id},
		{Kind: EffectReadAck, RoomId: id},
	}

	room, exists := s.Rooms[id]
	if exists {
		room = room.Clone()
	} else {
		room = e.Room.Clone()
		if room.ChatMessages == nil {
			room.ChatMessages = []entity.ChatMessage{}
		}
		room.Local = true
		effects = append(effects, Effect{Kind: EffectResubscribe})
	}
	room.UnreadCount = 0
	room.ZeroedAt = entity.Later(room.ZeroedAt, e.At)
	next.Rooms[id] = room
	return next, effects
}

// roomClosed untracks the window and schedules a reconciling refresh
func roomClosed(s State, e RoomClosed) (State, []Effect) {
	if !s.Tracker.Tracked(e.RoomId) {
		return s, nil
	}
	next := s.clone()
	next.Tracker = s.Tracker.Close(e.RoomId)
	return next, []Effect{{Kind: EffectScheduleRefresh, RoomId: e.RoomId, Delay: DelayClose}}
}

// roomLeft removes the room for good in this session
func roomLeft(s State, e RoomLeft) (State, []Effect) {
	next := s.clone()
	delete(next.Rooms, e.RoomId)
	next.Left[e.RoomId] = struct{}{}
	next.Tracker = s.Tracker.Close(e.RoomId)
	return next, []Effect{
		{Kind: EffectRoomsChanged, RoomId: e.RoomId},
		{Kind: EffectResubscribe},
	}
}
