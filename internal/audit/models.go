package audit

import (
	"encoding/json"
	"time"
)

// Event is an immutable, append-only record of an operator or worker action.
//
// Events are never updated or deleted. Actor and IP capture are best-effort.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// ActorRole may include hidden roles.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// CallID is the room the action targeted, if any.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	Message  string          `json:"message,omitempty" db:"message"`
	Metadata json.RawMessage `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeLogin        EventType = "login"
	EventTypeLoginFailed  EventType = "login_failed"
	EventTypeCallDispatch EventType = "call_dispatched"
	EventTypeCallEnded    EventType = "call_ended_by_agent"
	EventTypeCallTransfer EventType = "call_transferred"
)
