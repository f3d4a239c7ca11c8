package notify

import (
	"sync"
	"time"

	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
)

// Event types delivered to agents.
const (
	EventReady        = "ready_for_payment"
	EventHandoff      = "handoff"
	EventUserMessage  = "user_message"
	EventAgentMessage = "agent_message"
)

const defaultBuffer = 32

// Event is one notification on the agent channel.
type Event struct {
	Type       string      `json:"type"`
	SessionID  string      `json:"sessionId"`
	Text       string      `json:"text,omitempty"`
	Category   string      `json:"category,omitempty"`
	Transcript []chat.Turn `json:"transcript,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Hub fans events out to every subscribed agent. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	next   uint64
	buffer int
	closed bool
	log    *logging.Logger
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, log *logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
		log:    log.Sub("notify"),
	}
}

// Subscribe registers a listener. The returned cancel func unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Publish delivers ev to every subscriber that has room for it.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn().Uint64("subscriber", id).Str("type", ev.Type).Str("session", ev.SessionID).Msg("subscriber buffer full, dropping event")
		}
	}
}

// Subscribers returns the number of active listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Later subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, sub := range h.subs {
		sub.close()
		delete(h.subs, id)
	}
}
