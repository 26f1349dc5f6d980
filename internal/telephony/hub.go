package telephony

import (
	"sync"
	"time"

	"voice-call-agent/pkg/events"
)

// Room event names.
const (
	EventParticipantConnected    = "participant_connected"
	EventParticipantDisconnected = "participant_disconnected"
	// EventDisconnected is the room-level end of the call.
	EventDisconnected = "disconnected"
)

// RoomEvent is one room lifecycle notification.
type RoomEvent struct {
	Name     string
	Room     string
	Identity string
	Reason   DisconnectReason
	At       time.Time
}

// Hub fans provider room events out to the jobs that own the rooms and keeps
// the disconnect reason of participants that already left.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]*events.Bus[RoomEvent]
	departed map[string]map[string]DisconnectReason
	last     map[string]DisconnectReason
	now      func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		rooms:    map[string]*events.Bus[RoomEvent]{},
		departed: map[string]map[string]DisconnectReason{},
		last:     map[string]DisconnectReason{},
		now:      time.Now,
	}
}

// Room returns the event bus for a room, creating it on first use.
func (h *Hub) Room(name string) *events.Bus[RoomEvent] {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.rooms[name]
	if !ok {
		b = events.NewBus[RoomEvent]()
		h.rooms[name] = b
	}
	return b
}

// Forget drops all state kept for a room.
func (h *Hub) Forget(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, name)
	delete(h.departed, name)
	delete(h.last, name)
}

// Departure returns the recorded reason for a participant that left.
func (h *Hub) Departure(room, identity string) (DisconnectReason, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.departed[room][identity]
	return r, ok
}

// Publish records the event and emits it on the room's bus, if any job is
// listening. A room-level disconnect without a reason inherits the reason of
// the last participant that left.
func (h *Hub) Publish(ev RoomEvent) {
	if ev.At.IsZero() {
		ev.At = h.now()
	}

	h.mu.Lock()
	switch ev.Name {
	case EventParticipantDisconnected:
		if h.departed[ev.Room] == nil {
			h.departed[ev.Room] = map[string]DisconnectReason{}
		}
		h.departed[ev.Room][ev.Identity] = ev.Reason
		h.last[ev.Room] = ev.Reason
	case EventDisconnected:
		if ev.Reason == ReasonUnknown {
			if r, ok := h.last[ev.Room]; ok {
				ev.Reason = r
			}
		}
	}
	bus := h.rooms[ev.Room]
	h.mu.Unlock()

	if bus != nil {
		bus.Emit(ev.Name, ev)
	}
}
