// README: In-process fan-out of events to subscribers (backs the tracking websocket).
package events

import (
	"context"
	"sync"

	"haul/internal/types"
)

const subscriptionBuffer = 32

func BookingTopic(id types.ID) string { return "booking:" + string(id) }
func DriverTopic(id types.ID) string  { return "driver:" + string(id) }

// Hub never blocks a publisher: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

type Subscription struct {
	hub    *Hub
	ch     chan Event
	mu     sync.Mutex
	topics []string
	closed bool
}

// Subscribe registers interest in the given topics. Close must be called.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	s := &Subscription{hub: h, ch: make(chan Event, subscriptionBuffer)}
	for _, t := range topics {
		s.Add(t)
	}
	return s
}

func (s *Subscription) C() <-chan Event { return s.ch }

// Add subscribes to one more topic, e.g. a driver once it is assigned.
func (s *Subscription) Add(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, t := range s.topics {
		if t == topic {
			return
		}
	}
	s.topics = append(s.topics, topic)

	s.hub.mu.Lock()
	set, ok := s.hub.subs[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		s.hub.subs[topic] = set
	}
	set[s] = struct{}{}
	s.hub.mu.Unlock()
}

func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	s.hub.mu.Lock()
	for _, t := range s.topics {
		if set, ok := s.hub.subs[t]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, t)
			}
		}
	}
	s.hub.mu.Unlock()
	close(s.ch)
}

func (h *Hub) Publish(_ context.Context, e Event) error {
	var topics []string
	if e.BookingID != "" {
		topics = append(topics, BookingTopic(e.BookingID))
	}
	if e.DriverID != "" && e.Type == DriverMoved {
		topics = append(topics, DriverTopic(e.DriverID))
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Subscription]struct{})
	for _, t := range topics {
		for s := range h.subs[t] {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			select {
			case s.ch <- e:
			default:
			}
		}
	}
	return nil
}
