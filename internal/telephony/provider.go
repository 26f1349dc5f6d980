package telephony

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the telephony surface used by the call lifecycle.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Adapters translate provider errors: SIP dial failures become *DialError.
type Provider interface {
	// CreateOutboundLeg asks the provider to dial a phone number into a room.
	// It returns once the request is accepted, not when the callee answers.
	CreateOutboundLeg(ctx context.Context, leg OutboundLeg) error

	// WaitForParticipant blocks until the participant joins the room. An empty
	// identity waits for the first caller.
	WaitForParticipant(ctx context.Context, room, identity string) (Participant, error)

	// Participant returns a fresh snapshot of a participant.
	Participant(ctx context.Context, room, identity string) (Participant, error)

	DeleteRoom(ctx context.Context, room string) error
}

// OutboundLeg describes one outbound SIP dial into a room.
type OutboundLeg struct {
	Room        string
	TrunkID     string
	Destination string
	Identity    string
	DisplayName string
}

// AttrCallStatus is the participant attribute carrying the SIP call progress
// ("dialing", "ringing", "active", "hangup", ...).
const AttrCallStatus = "sip.callStatus"

const CallStatusActive = "active"

// Participant is a point-in-time snapshot of a room participant.
type Participant struct {
	Identity         string            `json:"identity"`
	Kind             string            `json:"kind,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	DisconnectReason DisconnectReason  `json:"disconnect_reason"`
	// Departed is set when the snapshot was served from the departure
	// record of a participant that already left.
	Departed bool `json:"departed,omitempty"`
}

func (p Participant) CallStatus() string {
	if p.Attributes == nil {
		return ""
	}
	return p.Attributes[AttrCallStatus]
}

var (
	ErrParticipantNotFound = errors.New("telephony: participant not found")
	ErrJoinTimeout         = errors.New("telephony: participant did not join in time")
)

// DialError is a structured SIP failure reported while placing a call.
type DialError struct {
	SIPStatusCode string
	SIPStatus     string
	Message       string
	Err           error
}

func (e *DialError) Error() string {
	if e.SIPStatusCode != "" || e.SIPStatus != "" {
		return fmt.Sprintf("sip dial failed: %s (sip %s %s)", e.Message, e.SIPStatusCode, e.SIPStatus)
	}
	return "sip dial failed: " + e.Message
}

func (e *DialError) Unwrap() error { return e.Err }
