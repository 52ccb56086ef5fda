// Package progress fans orchestration events out to connected observers.
// Delivery is fire-and-forget: at most once, best effort, and a slow
// observer never blocks the publisher.
package progress

import (
	"log/slog"
	"sync"
)

// Event channel names.
const (
	EventUpload = "upload-progress"
	EventDelete = "delete-progress"
)

// Statuses carried by events.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Event is one orchestration progress notification.
type Event struct {
	Event      string `json:"event"`
	FileID     string `json:"fileId"`
	ProviderID string `json:"providerId"`
	Status     string `json:"status"`
	URL        string `json:"url,omitempty"`
	Error      string `json:"error,omitempty"`
}

// subscriberBuffer is how many events a subscriber may lag before events
// are dropped for it.
const subscriberBuffer = 16

// Hub is an in-process publish/subscribe fan-out with no retention and no
// delivery guarantee.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	logger      *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		logger:      logger.With(slog.String("component", "progress_hub")),
	}
}

// Subscribe registers a new observer and returns its event channel.
// Observers must Unsubscribe when done.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes the observer and closes its channel.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers the event to every current subscriber without blocking.
// Events for full subscriber buffers are dropped.
func (h *Hub) Publish(event string, e Event) {
	e.Event = event

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			h.logger.Debug("dropping event for slow subscriber",
				slog.String("file_id", e.FileID),
				slog.String("status", e.Status),
			)
		}
	}
}

// SubscriberCount reports how many observers are connected.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
