package lifecycle

import (
	"context"
	"testing"
	"time"

	"voice-call-agent/internal/calls"
	"voice-call-agent/internal/telephony"
	"voice-call-agent/pkg/events"
)

func TestClassifyDisconnect(t *testing.T) {
	start := time.Unix(1700000000, 0)
	started := NewCallState("r")
	started.MarkStarted(start, "p")
	notStarted := NewCallState("r")

	cases := []struct {
		name   string
		reason telephony.DisconnectReason
		state  *CallState
		after  time.Duration
		want   string
	}{
		{"long client hang-up", telephony.ReasonClientInitiated, started, 11 * time.Second, EndCallEnded},
		{"short client hang-up", telephony.ReasonClientInitiated, started, 5 * time.Second, EndUserDisconnected},
		{"exactly at threshold", telephony.ReasonClientInitiated, started, 10 * time.Second, EndUserDisconnected},
		{"client hang-up before start", telephony.ReasonClientInitiated, notStarted, time.Minute, EndUserDisconnected},
		{"rejected", telephony.ReasonUserRejected, started, time.Minute, EndUserRejected},
		{"unavailable", telephony.ReasonUserUnavailable, started, time.Minute, EndUserUnavailable},
		{"server shutdown", telephony.ReasonServerShutdown, started, time.Minute, EndSystemShutdown},
		{"room deleted", telephony.ReasonRoomDeleted, started, time.Second, EndCallEnded},
		{"other", telephony.ReasonOther, started, time.Second, EndCallEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyDisconnect(tc.reason, tc.state, start.Add(tc.after), DefaultProperConversation)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func startedCall(env *testEnv, room string) *CallState {
	state := NewCallState(room)
	env.recorder.QueueStart(calls.CallStart{
		CallID:    room,
		ModelID:   "agent",
		Name:      "Outbound Call",
		CallType:  calls.CallTypeOutbound,
		Status:    calls.StatusStarted,
		StartedAt: env.clock.now(),
	})
	state.MarkStarted(env.clock.now(), "+15552223333")
	return state
}

func TestDisconnectHandler_RecordsOnceAndIgnoresOtherParticipants(t *testing.T) {
	env := newTestEnv()
	state := startedCall(env, "call-1")
	env.clock.advance(30 * time.Second)

	watchdog := &Task{}
	h := NewDisconnectHandler(state, env.recorder, 0, watchdog, nil)
	h.now = env.clock.now
	bus := events.NewBus[telephony.RoomEvent]()
	off := h.Register(bus)
	defer off()

	bus.Emit(telephony.EventParticipantDisconnected, telephony.RoomEvent{Identity: "agent-1", Reason: telephony.ReasonClientInitiated})
	select {
	case <-h.Gone():
		t.Fatalf("another participant leaving must not end the call")
	default:
	}

	bus.Emit(telephony.EventParticipantDisconnected, telephony.RoomEvent{Identity: "+15552223333", Reason: telephony.ReasonClientInitiated})
	bus.Emit(telephony.EventDisconnected, telephony.RoomEvent{Reason: telephony.ReasonRoomDeleted})
	h.Wait()

	select {
	case <-h.Gone():
	default:
		t.Fatalf("expected gone to be closed")
	}
	if env.queue.count(OpInsertCallEnd) != 1 {
		t.Fatalf("expected exactly one end write, got %d", env.queue.count(OpInsertCallEnd))
	}
	r, _ := env.store.Get(context.Background(), "call-1")
	if r.Status != EndCallEnded || r.DurationSeconds != 30 || !r.Completed() {
		t.Fatalf("unexpected record: %+v", r)
	}
	if watchdog.Start(context.Background(), func(context.Context) error { return nil }) {
		t.Fatalf("watchdog must be stopped by the disconnect")
	}
}

func TestDisconnectHandler_RoomDisconnectWithoutReason(t *testing.T) {
	env := newTestEnv()
	state := startedCall(env, "call-1")
	env.clock.advance(3 * time.Second)

	h := NewDisconnectHandler(state, env.recorder, 0, nil, nil)
	h.now = env.clock.now
	bus := events.NewBus[telephony.RoomEvent]()
	h.Register(bus)

	bus.Emit(telephony.EventDisconnected, telephony.RoomEvent{})
	h.Wait()

	r, _ := env.store.Get(context.Background(), "call-1")
	if r.Status != EndUserDisconnected {
		t.Fatalf("expected %q, got %q", EndUserDisconnected, r.Status)
	}
}

func TestDisconnectHandler_NotStartedWritesNothing(t *testing.T) {
	env := newTestEnv()
	state := NewCallState("call-1")
	state.SetParticipantIdentity("+15552223333")

	h := NewDisconnectHandler(state, env.recorder, 0, nil, nil)
	bus := events.NewBus[telephony.RoomEvent]()
	h.Register(bus)

	bus.Emit(telephony.EventParticipantDisconnected, telephony.RoomEvent{Identity: "+15552223333", Reason: telephony.ReasonUserRejected})
	h.Wait()

	if env.queue.count(OpInsertCallEnd) != 0 {
		t.Fatalf("no end write expected for a call that never started")
	}
	if state.EndRecorded() {
		t.Fatalf("end must not be recorded")
	}
}

func TestDisconnectHandler_OffUnsubscribes(t *testing.T) {
	env := newTestEnv()
	state := startedCall(env, "call-1")
	h := NewDisconnectHandler(state, env.recorder, 0, nil, nil)
	bus := events.NewBus[telephony.RoomEvent]()
	off := h.Register(bus)
	off()

	if bus.Len(telephony.EventParticipantDisconnected) != 0 || bus.Len(telephony.EventDisconnected) != 0 {
		t.Fatalf("expected handlers to be removed")
	}
}
