package calls

import (
	"encoding/json"
	"time"
)

// CallRecord is the persisted row for one call, keyed by CallID (the room name).
//
// Status is a free-form display label ("started", "Call timeout", "User disconnected", ...).
// It is written by the call-start write, replaced by the call-end write and may be touched
// again by enrichment updates. Rows are never deleted here.
type CallRecord struct {
	ID      int64  `json:"id" db:"id"`
	CallID  string `json:"call_id" db:"call_id"`
	ModelID string `json:"model_id" db:"model_id"`
	UserID  int64  `json:"user_id" db:"user_id"`

	Name     string   `json:"name" db:"name"`
	From     string   `json:"from" db:"from_number"`
	To       string   `json:"to" db:"to_number"`
	CallType CallType `json:"call_type" db:"call_type"`
	Status   string   `json:"status" db:"status"`

	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds int        `json:"duration" db:"duration_seconds"`

	Metadata json.RawMessage `json:"metadata,omitempty" db:"metadata"`

	Transferred bool   `json:"transferred" db:"transferred"`
	TransferTo  string `json:"transfer_to,omitempty" db:"transfer_to"`

	Summary       string          `json:"summary,omitempty" db:"summary"`
	TranscriptURL string          `json:"transcript_url,omitempty" db:"transcript_url"`
	RecordingURL  string          `json:"recording_url,omitempty" db:"recording_url"`
	Quality       json.RawMessage `json:"conversation_quality,omitempty" db:"conversation_quality"`
	Entities      json.RawMessage `json:"entities,omitempty" db:"entities"`
	SuccessStatus string          `json:"success_status,omitempty" db:"success_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Completed reports whether the call-end write has landed.
func (r CallRecord) Completed() bool { return r.EndedAt != nil }

// InProgress reports a started call that has not ended yet.
func (r CallRecord) InProgress() bool { return r.EndedAt == nil && r.Status == StatusStarted }

type CallType string

const (
	CallTypeOutbound CallType = "Outbound"
	CallTypeIncoming CallType = "Incoming"
)

// Status labels shared by the lifecycle and the API. Terminal dial labels
// such as "Call failed" are configurable and live with the orchestrator.
const (
	StatusStarted = "started"
	// StatusEnded marks rows that refuse further status/transfer updates.
	StatusEnded = "ended"
)

// Success labels written by post-call evaluation.
const (
	SuccessSuccess      = "Success"
	SuccessFailure      = "Failure"
	SuccessUndetermined = "Undetermined"
)

// DefaultUserID owns every call whose user is unknown.
const DefaultUserID int64 = 0

// CallStart is the input of the call-start write.
type CallStart struct {
	CallID    string
	ModelID   string
	UserID    int64
	Name      string
	From      string
	To        string
	CallType  CallType
	Status    string
	Metadata  map[string]any
	StartedAt time.Time
}

// Transfer describes a hand-off of the call to another destination.
type Transfer struct {
	Transferred bool   `json:"transferred"`
	To          string `json:"to,omitempty"`
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	UserID   *int64
	From     time.Time
	To       time.Time
	Status   string
	CallType CallType
	Limit    int
	Offset   int
}

func (f ListFilter) withDefaults() ListFilter {
	out := f
	if out.Limit <= 0 || out.Limit > 500 {
		out.Limit = 100
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

func (f ListFilter) matches(r CallRecord) bool {
	if f.UserID != nil && r.UserID != *f.UserID {
		return false
	}
	if !f.From.IsZero() && r.StartedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.StartedAt.Before(f.To) {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.CallType != "" && r.CallType != f.CallType {
		return false
	}
	return true
}

func durationSeconds(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
