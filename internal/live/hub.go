// Package live implements the in-process broadcast channel for telemetry
// updates. Multiple clients subscribe to a hub; every published update is
// fanned out to all current subscribers on a best-effort basis with no replay.
package live

import (
	"sync"

	"github.com/google/uuid"
)

// Outbound event names. Downstream consumers key their handling off these.
const (
	EventPositionUpdate = "ReceivePositionUpdate"
	EventRangingUpdate  = "ReceiveRangingUpdate"
	EventMotion         = "ReceiveMotionEvent"
	EventStatusUpdate   = "ReceiveStatusUpdate"
	EventGeofence       = "ReceiveGeofenceEvent"
	EventOffline        = "ReceiveOfflineEvent"
)

// Update is one named event for a tag. Data carries the event-specific
// payload and is serialized as-is for subscribers.
type Update struct {
	Event string `json:"event"`
	TagID string `json:"tag_id"`
	Data  any    `json:"data"`
}

// Hub fans published updates out to subscribers. Publishing never blocks: a
// subscriber whose channel is full misses the update.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan Update
	closed      bool
}

// subscriberBuffer is the per-subscriber channel depth. A slow consumer
// drops updates beyond this rather than stalling the ingestion loop.
const subscriberBuffer = 64

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan Update)}
}

// Subscribe registers a new subscriber and returns its id and channel. The id
// is used to unsubscribe.
func (h *Hub) Subscribe() (string, <-chan Update) {
	id := uuid.NewString()
	ch := make(chan Update, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish delivers the update to every current subscriber without blocking.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- u:
		default:
			// subscriber is full; skip so the publisher never stalls
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close closes all subscriber channels. Subsequent publishes are dropped and
// subsequent subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
