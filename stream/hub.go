// Package stream fans board changes out to server-sent-event subscribers.
package stream

import (
	"encoding/json"
	"sync"
)

// Event names sent to subscribers.
const (
	EventBoard = "board"
	EventError = "error"
)

// Event is a single server-sent event.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

const defaultBuffer = 16

// Hub keeps the subscribers of every topic. A topic is usually a board
// session key.
type Hub struct {
	buffer int

	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates a hub whose subscriber channels hold up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a subscriber on topic. The returned function removes
// it and closes the channel.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[topic] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[topic]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, topic)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers ev to every subscriber of topic. Subscribers that are
// not keeping up miss the event instead of blocking the sender. It returns
// the number of subscribers that received it.
func (h *Hub) Broadcast(topic string, ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for ch := range h.subs[topic] {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}
