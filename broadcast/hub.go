// Package broadcast is the process-local publish/subscribe channel that
// keeps sibling dashboard views in sync. Signals carry no payload data;
// receivers always re-fetch authoritative state.
package broadcast

import (
	"sync"
	"time"
)

// ChannelName is the well-known channel all dashboard views share.
const ChannelName = "reservations"

// Kind of refresh signal published on the channel.
type Kind string

const (
	KindComplete Kind = "reservation.complete"
	KindChange   Kind = "reservation.change"
	KindCancel   Kind = "reservation.cancel"
)

// Signal is an ephemeral cross-view refresh event.
type Signal struct {
	Kind      Kind      `json:"type"`
	TenantID  string    `json:"tenantId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Hub fans Signals out to every subscriber. Delivery is best-effort: a
// subscriber that cannot keep up has the signal dropped rather than
// blocking the publisher, which is safe because signals only prompt a
// re-fetch of authoritative state.
type Hub struct {
	lock        sync.RWMutex
	subscribers map[int]chan Signal
	nextID      int
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[int]chan Signal),
	}
}

// Publish delivers the signal to all current subscribers.
func (h *Hub) Publish(signal Signal) {
	if signal.Timestamp.IsZero() {
		signal.Timestamp = time.Now()
	}

	h.lock.RLock()
	defer h.lock.RUnlock()
	for _, subscriber := range h.subscribers {
		select {
		case subscriber <- signal:
		default:
		}
	}
}

// Subscribe registers a new listener. The returned cancel function removes
// the listener and closes its channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Signal, func()) {
	h.lock.Lock()
	defer h.lock.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Signal, 8)
	h.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.lock.Lock()
			defer h.lock.Unlock()
			delete(h.subscribers, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Len reports the current subscriber count.
func (h *Hub) Len() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.subscribers)
}
