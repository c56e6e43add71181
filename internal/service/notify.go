package service

import (
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
)

// Notification is a state change pushed to UI consumers
type Notification struct {
	Kind        string    `json:"kind"`
	RoomId      int64     `json:"roomId,omitempty"`
	Message     string    `json:"message,omitempty"`
	TotalUnread int       `json:"totalUnread"`
	At          time.Time `json:"at"`
}

type notifier struct {
	mu     sync.RWMutex
	size   int
	nextId int
	subs   map[int]chan Notification
	closed bool
}

func newNotifier(size int) *notifier {
	return &notifier{size: size, subs: make(map[int]chan Notification)}
}

// publish delivers n to every subscriber without blocking
func (n *notifier) publish(note Notification) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for id, ch := range n.subs {
		select {
		case ch <- note:
		default:
			log.Warn("notification channel full, dropping: subscriber=%d, kind=%s", id, note.Kind)
		}
	}
}

func (n *notifier) subscribe() (<-chan Notification, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Notification, n.size)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	id := n.nextId
	n.nextId++
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}

// Subscribe returns a notification channel and its cancel function
func (e *Engine) Subscribe() (<-chan Notification, func()) {
	return e.notifier.subscribe()
}
