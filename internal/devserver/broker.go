package devserver

import (
	"context"
	"sync"
	"time"
)

const (
	EventSessionStarted = "session_started"
	EventSessionEnded   = "session_ended"
	EventFeedbackReady  = "feedback_ready"
)

// Event is a lifecycle change of one interview, fanned out to every socket
// attached to it.
type Event struct {
	Type        string    `json:"type"`
	InterviewID int64     `json:"interviewId"`
	At          time.Time `json:"at"`
}

func newEvent(eventType string, interviewID int64) Event {
	return Event{Type: eventType, InterviewID: interviewID, At: time.Now().UTC()}
}

type Broker interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel of events for the interview and a function
	// that releases it.
	Subscribe(interviewID int64) (<-chan Event, func())
}

// Hub is the in-process broker. Slow subscribers drop events instead of
// blocking publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]map[chan Event]struct{})}
}

func (h *Hub) Subscribe(interviewID int64) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	subs, ok := h.clients[interviewID]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.clients[interviewID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients[interviewID], ch)
			if len(h.clients[interviewID]) == 0 {
				delete(h.clients, interviewID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Broadcast(ev)
	return nil
}

func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients[ev.InterviewID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) subscribers(interviewID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[interviewID])
}
