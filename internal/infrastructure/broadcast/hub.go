package broadcast

import (
	"encoding/json"
	"sync"

	"meetrelay/internal/core/events"
)

// Frame is what a subscriber receives: an event frame carries the channel,
// the event tag and the serialized payload. Control frames reuse the shape.
type Frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewFrame serializes an envelope.
func NewFrame(env events.Envelope) (Frame, error) {
	data, err := env.Marshal()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: env.Event, Channel: env.Channel, Data: data}, nil
}

// Subscriber is one consumer with a bounded queue shared by all of its
// channels. A full queue drops frames.
type Subscriber struct {
	mu      sync.Mutex
	send    chan Frame
	closed  bool
	dropped uint64
}

func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 1
	}
	return &Subscriber{send: make(chan Frame, buffer)}
}

// Frames is closed by Close.
func (s *Subscriber) Frames() <-chan Frame {
	return s.send
}

// Dropped returns how many frames were discarded because the queue was full.
func (s *Subscriber) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

func (s *Subscriber) offer(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- f:
		return true
	default:
		s.dropped++
		return false
	}
}

// Hub fans frames out to the subscribers of their channel. Frames
// dispatched one after another reach every subscriber in that order.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[*Subscriber]struct{})}
}

func (h *Hub) Subscribe(channel string, sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.channels[channel] = subs
	}
	subs[sub] = struct{}{}
}

// Unsubscribe reports whether sub was subscribed to channel.
func (h *Hub) Unsubscribe(channel string, sub *Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remove(channel, sub)
}

// UnsubscribeAll removes sub from every channel and returns how many
// subscriptions it held.
func (h *Hub) UnsubscribeAll(sub *Subscriber) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for channel := range h.channels {
		if h.remove(channel, sub) {
			n++
		}
	}
	return n
}

// Caller holds h.mu.
func (h *Hub) remove(channel string, sub *Subscriber) bool {
	subs, ok := h.channels[channel]
	if !ok {
		return false
	}
	if _, ok := subs[sub]; !ok {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
	return true
}

// Dispatch delivers f to the subscribers of f.Channel without blocking and
// returns how many accepted it.
func (h *Hub) Dispatch(f Frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.channels[f.Channel] {
		if sub.offer(f) {
			delivered++
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
