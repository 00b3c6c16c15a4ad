package progress

import (
	"sync"

	"clarivid/internal/core/domain"
)

const subscriberBuffer = 64

// Hub is the in-process progress channel: one append point per job, any
// number of subscribers. Publishing never blocks; a subscriber that cannot
// keep up loses events (delivery is at most once, with no replay).
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[int]chan domain.Event
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan domain.Event)}
}

// Publish appends an event to the job's channel. Safe for concurrent use by
// multiple scene workers.
func (h *Hub) Publish(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than stall the pipeline.
		}
	}
}

// Subscribe registers a listener for a job's events. The returned cancel
// function must be called when the subscriber goes away; it closes the
// channel. A connected event is delivered first.
func (h *Hub) Subscribe(jobID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[int]chan domain.Event)
	}
	id := h.next
	h.next++
	h.subs[jobID][id] = ch
	h.mu.Unlock()

	ch <- domain.Event{Kind: domain.EventConnected, JobID: jobID}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subs[jobID]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subs, jobID)
			}
		}
	}
	return ch, cancel
}
