package reconcile

import (
	"time"

	"github.com/mbeoliero/pawchat/internal/entity"
)

// Event is a canonical input to the reducer
type Event interface {
	isEvent()
}

// Source identifies the channel an event arrived on
type Source int

const (
	SourceLocal Source = iota
	SourceStream
	SourceTopic
)

func (s Source) String() string {
	switch s {
	case SourceStream:
		return "sse"
	case SourceTopic:
		return "topic"
	default:
		return "local"
	}
}

// ServerRoom is one room of a REST refresh
type ServerRoom struct {
	Room entity.ChatRoom
	// HasUnreadAggregate is set when the server supplied the unread count
	HasUnreadAggregate bool
}

// RoomsRefreshed carries the result of a REST refresh issued at RequestedAt
type RoomsRefreshed struct {
	Rooms       []ServerRoom
	RequestedAt time.Time
	// ServerSkew replaces State.ServerSkew when SkewKnown is set
	ServerSkew time.Duration
	SkewKnown  bool
}

// MessageArrived is a full message pushed on a per-room topic
type MessageArrived struct {
	RoomId  int64
	Message entity.ChatMessage
	At      time.Time
}

// MessageSignaled is the minimal "a message was posted" notice from the event stream
type MessageSignaled struct {
	RoomId   int64
	SenderId int64
}

// ReadStatusChanged reports that a reader acknowledged the room
type ReadStatusChanged struct {
	RoomId   int64
	ReaderId int64
	Source   Source
	At       time.Time
}

// UnreadZeroed zeroes a room unconditionally
type UnreadZeroed struct {
	RoomId int64
	At     time.Time
}

// RoomCreated announces a new room on the new-room topic
type RoomCreated struct {
	Room entity.ChatRoom
	At   time.Time
}

// RoomEntered is the user opening (or focusing) a chat window
type RoomEntered struct {
	Room entity.ChatRoom
	At   time.Time
}

// RoomClosed is the user closing a chat window
type RoomClosed struct {
	RoomId int64
}

// RoomLeft is a server-confirmed leave
type RoomLeft struct {
	RoomId int64
}

func (RoomsRefreshed) isEvent()    {}
func (MessageArrived) isEvent()    {}
func (MessageSignaled) isEvent()   {}
func (ReadStatusChanged) isEvent() {}
func (UnreadZeroed) isEvent()      {}
func (RoomCreated) isEvent()       {}
func (RoomEntered) isEvent()       {}
func (RoomClosed) isEvent()        {}
func (RoomLeft) isEvent()          {}
