package gateway

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"
)

// Manager owns the push connections of one session
type Manager struct {
	events *EventStream
	topics *TopicClient
}

// Status is a point-in-time view of the push connections
type Status struct {
	StreamAlive  bool    `json:"streamAlive"`
	StreamUserId int64   `json:"streamUserId"`
	StreamError  string  `json:"streamError,omitempty"`
	TopicsWanted bool    `json:"topicsWanted"`
	TopicsAlive  bool    `json:"topicsAlive"`
	TopicRooms   []int64 `json:"topicRooms"`
	TopicsError  string  `json:"topicsError,omitempty"`
}

// NewManager creates a manager over both adapters
func NewManager(events *EventStream, topics *TopicClient) *Manager {
	return &Manager{events: events, topics: topics}
}

// Events returns the SSE listener
func (m *Manager) Events() *EventStream {
	return m.events
}

// Topics returns the broker client
func (m *Manager) Topics() *TopicClient {
	return m.topics
}

// SetHandler routes both adapters to one receiver
func (m *Manager) SetHandler(h interface {
	StreamHandler
	TopicHandler
}) {
	m.events.SetHandler(h)
	m.topics.SetHandler(h)
}

// Connect opens the event stream for userId
func (m *Manager) Connect(ctx context.Context, userId int64) error {
	return m.events.Connect(ctx, userId)
}

// Disconnect closes every connection
func (m *Manager) Disconnect() {
	m.topics.Disconnect()
	m.events.Disconnect()
}

// ReconnectIfDead reopens whichever wanted connection is down
func (m *Manager) ReconnectIfDead(ctx context.Context) error {
	var errs []error
	if err := m.events.ReconnectIfDead(ctx); err != nil {
		log.CtxWarn(ctx, "event stream reconnect failed: error=%v", err)
		errs = append(errs, err)
	}
	if err := m.topics.ReconnectIfDead(ctx); err != nil {
		log.CtxWarn(ctx, "broker reconnect failed: error=%v", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Alive reports whether every wanted connection is up
func (m *Manager) Alive() bool {
	if !m.events.Alive() {
		return false
	}
	return !m.topics.Wanted() || m.topics.Alive()
}

// Status reports connection health
func (m *Manager) Status() Status {
	st := Status{
		StreamAlive:  m.events.Alive(),
		StreamUserId: m.events.UserId(),
		TopicsWanted: m.topics.Wanted(),
		TopicsAlive:  m.topics.Alive(),
		TopicRooms:   m.topics.Rooms(),
	}
	if err := m.events.LastError(); err != nil {
		st.StreamError = err.Error()
	}
	if err := m.topics.LastError(); err != nil {
		st.TopicsError = err.Error()
	}
	return st
}
