package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Event is one row-level change notification. It carries no row payload:
// consumers refetch instead of rebuilding state from events.
type Event struct {
	Type       string    `json:"type"`
	Table      string    `json:"table"`
	ID         uuid.UUID `json:"id"`
	LocationID uuid.UUID `json:"location_id"`
}

// room routes events for one table within one location.
type room struct {
	Table      string
	LocationID uuid.UUID
}

// Subscription receives events for one (table, location) filter.
type Subscription struct {
	room room
	C    <-chan Event
	send chan Event
}

// Hub fans change events out to subscribers.
type Hub struct {
	// Subscribers by room
	rooms map[room]map[*Subscription]bool

	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan Event
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[room]map[*Subscription]bool),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for r, subs := range h.rooms {
				for sub := range subs {
					close(sub.send)
				}
				delete(h.rooms, r)
			}
			h.mu.Unlock()
			return

		case sub := <-h.register:
			h.mu.Lock()
			if h.rooms[sub.room] == nil {
				h.rooms[sub.room] = make(map[*Subscription]bool)
			}
			h.rooms[sub.room][sub] = true
			h.mu.Unlock()

		case sub := <-h.unregister:
			h.mu.Lock()
			h.remove(sub)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			r := room{Table: ev.Table, LocationID: ev.LocationID}
			for sub := range h.rooms[r] {
				select {
				case sub.send <- ev:
				default:
					// Subscriber is not draining; drop it rather than stall the feed.
					h.remove(sub)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(sub *Subscription) {
	subs, ok := h.rooms[sub.room]
	if !ok {
		return
	}
	if _, exists := subs[sub]; !exists {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.rooms, sub.room)
	}
}

// Subscribe registers interest in changes to table rows owned by locationID.
// The returned channel is closed on Unsubscribe, on hub shutdown, or when the
// subscriber falls too far behind.
func (h *Hub) Subscribe(table string, locationID uuid.UUID) *Subscription {
	ch := make(chan Event, 64)
	sub := &Subscription{
		room: room{Table: table, LocationID: locationID},
		C:    ch,
		send: ch,
	}
	select {
	case h.register <- sub:
	case <-h.done:
		close(ch)
	}
	return sub
}

// Unsubscribe removes sub. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Publish queues an event for delivery. Events published after shutdown are dropped.
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	case <-h.done:
	}
}

// Subscribers reports the number of live subscriptions for a room.
func (h *Hub) Subscribers(table string, locationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room{Table: table, LocationID: locationID}])
}
