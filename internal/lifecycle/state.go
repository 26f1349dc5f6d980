package lifecycle

import (
	"sync"
	"time"
)

// CallState is the in-memory view of one call, shared by the job, the
// disconnect handlers and the idle watchdog.
//
// Invariants: started and endRecorded each flip false->true at most once,
// and endRecorded is never set on a call that did not start.
type CallState struct {
	mu sync.Mutex

	roomName            string
	participantIdentity string
	started             bool
	endRecorded         bool
	startTime           time.Time
}

func NewCallState(room string) *CallState {
	return &CallState{roomName: room}
}

func (s *CallState) RoomName() string { return s.roomName }

// MarkStarted records the answer time. It returns false if the call was
// already started. An empty identity keeps the current one.
func (s *CallState) MarkStarted(at time.Time, identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	s.startTime = at
	if identity != "" {
		s.participantIdentity = identity
	}
	return true
}

func (s *CallState) SetParticipantIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participantIdentity = identity
}

func (s *CallState) ParticipantIdentity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantIdentity
}

func (s *CallState) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *CallState) EndRecorded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endRecorded
}

// StartTime returns the answer time and whether the call started.
func (s *CallState) StartTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime, s.started
}

// claimEnd is the end-of-call gate: it succeeds once, and only for a
// started call. endRecorded is set before the caller writes anything.
func (s *CallState) claimEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.endRecorded {
		return false
	}
	s.endRecorded = true
	return true
}
