package session

import (
	"context"
	"time"

	"voice-call-agent/internal/telephony"
	"voice-call-agent/pkg/events"
)

// AgentState is the conversational state reported by the agent pipeline.
type AgentState string

const (
	AgentInitializing AgentState = "initializing"
	AgentListening    AgentState = "listening"
	AgentThinking     AgentState = "thinking"
	AgentSpeaking     AgentState = "speaking"
)

func (s AgentState) Valid() bool {
	switch s {
	case AgentInitializing, AgentListening, AgentThinking, AgentSpeaking:
		return true
	default:
		return false
	}
}

// Session event names.
const (
	EventAgentStateChanged     = "agent_state_changed"
	EventUserSpeechDetected    = "user_speech_detected"
	EventConversationItemAdded = "conversation_item_added"
	EventClose                 = "close"
)

// Event is a session notification. Only the fields relevant to Name are set.
type Event struct {
	Name string `json:"name"`

	OldState AgentState `json:"old_state,omitempty"`
	NewState AgentState `json:"new_state,omitempty"`

	Role        string `json:"role,omitempty"`
	Text        string `json:"text,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`

	At time.Time `json:"at"`
}

// Session is one running agent conversation (STT, LLM and TTS live behind it).
type Session interface {
	On(name string, h events.Handler[Event]) (off func())
	Say(ctx context.Context, text string) error
	Close(ctx context.Context) error
}

// Control is the call control handed to the agent's tools.
type Control interface {
	EndCall(ctx context.Context, reason string) error
	// Transfer marks the call as handed off to a human agent at to.
	Transfer(ctx context.Context, to string) error
}

// End reasons used by agent tools.
const (
	EndReasonAgent            = "Call ended"
	EndReasonAnsweringMachine = "Answering machine detected"
)

type StartRequest struct {
	Room        string
	Participant telephony.Participant
	Direction   string
	Metadata    map[string]any
	Control     Control
}

// Factory starts sessions. Implementations own the media pipeline.
type Factory interface {
	Start(ctx context.Context, req StartRequest) (Session, error)
}
