package lifecycle

import (
	"log/slog"
	"sync"
	"time"

	"voice-call-agent/internal/telephony"
	"voice-call-agent/pkg/events"
)

// End-of-call reasons.
const (
	EndCallEnded        = "Call ended"
	EndUserDisconnected = "User disconnected"
	EndUserRejected     = "User rejected call"
	EndUserUnavailable  = "User did not pick"
	EndSystemShutdown   = "System shutdown"
)

// DefaultProperConversation is how long a call must have lasted for a
// client hang-up to count as a normal end.
const DefaultProperConversation = 10 * time.Second

// ClassifyDisconnect maps a disconnect reason to the end reason recorded
// for the call.
func ClassifyDisconnect(reason telephony.DisconnectReason, state *CallState, now time.Time, threshold time.Duration) string {
	switch reason {
	case telephony.ReasonClientInitiated:
		start, started := state.StartTime()
		if started && now.Sub(start) > threshold {
			return EndCallEnded
		}
		return EndUserDisconnected
	case telephony.ReasonUserRejected:
		return EndUserRejected
	case telephony.ReasonUserUnavailable:
		return EndUserUnavailable
	case telephony.ReasonServerShutdown:
		return EndSystemShutdown
	default:
		return EndCallEnded
	}
}

// RoomEvents is the subscription side of a room's event bus.
type RoomEvents interface {
	On(name string, h events.Handler[telephony.RoomEvent]) (off func())
}

// DisconnectHandler reacts to the call's participant or the room going away:
// it stops the idle watchdog and records the end of the call once.
type DisconnectHandler struct {
	state     *CallState
	recorder  *Recorder
	threshold time.Duration
	watchdog  *Task
	now       func() time.Time
	log       *slog.Logger

	wg       sync.WaitGroup
	gone     chan struct{}
	goneOnce sync.Once
}

func NewDisconnectHandler(state *CallState, recorder *Recorder, threshold time.Duration, watchdog *Task, log *slog.Logger) *DisconnectHandler {
	if threshold <= 0 {
		threshold = DefaultProperConversation
	}
	if log == nil {
		log = slog.Default()
	}
	return &DisconnectHandler{
		state:     state,
		recorder:  recorder,
		threshold: threshold,
		watchdog:  watchdog,
		now:       time.Now,
		log:       log,
		gone:      make(chan struct{}),
	}
}

// Register subscribes the handler to the room's events.
func (h *DisconnectHandler) Register(room RoomEvents) (off func()) {
	offParticipant := room.On(telephony.EventParticipantDisconnected, h.onParticipantDisconnected)
	offRoom := room.On(telephony.EventDisconnected, h.onDisconnected)
	return func() {
		offParticipant()
		offRoom()
	}
}

// Gone is closed once the call's participant or the room has gone away.
func (h *DisconnectHandler) Gone() <-chan struct{} { return h.gone }

// Wait blocks until every end-of-call write scheduled by the handler has
// passed the gate.
func (h *DisconnectHandler) Wait() { h.wg.Wait() }

func (h *DisconnectHandler) onParticipantDisconnected(ev telephony.RoomEvent) {
	id := h.state.ParticipantIdentity()
	if id == "" || ev.Identity != id {
		return
	}
	h.terminate(ev.Reason, "participant_disconnected")
}

func (h *DisconnectHandler) onDisconnected(ev telephony.RoomEvent) {
	reason := ev.Reason
	if reason == telephony.ReasonUnknown {
		reason = telephony.ReasonClientInitiated
	}
	h.terminate(reason, "disconnected")
}

func (h *DisconnectHandler) terminate(reason telephony.DisconnectReason, source string) {
	if h.watchdog != nil {
		h.watchdog.Stop()
	}
	end := ClassifyDisconnect(reason, h.state, h.now(), h.threshold)
	h.log.Info("call disconnected", "source", source, "reason", reason.String(), "end_reason", end)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, ok := h.recorder.RecordEndOnce(h.state, end); !ok {
			h.log.Debug("call end not recorded", "end_reason", end, "started", h.state.Started())
		}
	}()
	h.goneOnce.Do(func() { close(h.gone) })
}
