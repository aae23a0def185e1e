package chat

import "sync"

const EventMessage = "message"

// Event is pushed to stream subscribers.
type Event struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}

// Hub is an in-process fan-out of chat events keyed by user. Each
// subscription has a bounded buffer; events for a full buffer are dropped so
// a slow client never blocks a sender.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: map[int64]map[*Subscription]struct{}{}, buffer: buffer}
}

type Subscription struct {
	hub    *Hub
	userID int64
	ch     chan Event
	once   sync.Once
}

// C delivers events until Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[s.userID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.userID)
			}
		}
		close(s.ch)
	})
}

func (h *Hub) Subscribe(userID int64) *Subscription {
	s := &Subscription{hub: h, userID: userID, ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[userID]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[userID] = set
	}
	set[s] = struct{}{}
	return s
}

// Publish delivers ev to every subscription of userIDs and returns how many
// deliveries were dropped.
func (h *Hub) Publish(userIDs []int64, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for _, uid := range userIDs {
		for s := range h.subs[uid] {
			select {
			case s.ch <- ev:
			default:
				dropped++
			}
		}
	}
	return dropped
}

// Subscribers returns the number of open subscriptions for userID.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
