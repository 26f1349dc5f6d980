package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"voice-call-agent/internal/calls"
	"voice-call-agent/internal/dbqueue"
)

// Enqueuer schedules persistence work without waiting for it.
type Enqueuer interface {
	Enqueue(name string, fn dbqueue.Func) string
}

// Operation names used for queued writes.
const (
	OpInsertCallStart = "insert_call_start"
	OpInsertCallEnd   = "insert_call_end"
	OpUpdateTransfer  = "update_transfer"
)

// Recorder turns lifecycle transitions into call record writes.
type Recorder struct {
	Queue Enqueuer
	Store calls.Store
	Now   func() time.Time
	Log   *slog.Logger
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Recorder) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// QueueStart enqueues the call-start write and returns the operation id.
func (r *Recorder) QueueStart(in calls.CallStart) string {
	if in.StartedAt.IsZero() {
		in.StartedAt = r.now()
	}
	id := r.Queue.Enqueue(OpInsertCallStart, func(ctx context.Context) (bool, error) {
		if _, err := r.Store.InsertCallStart(ctx, in); err != nil {
			return false, err
		}
		return true, nil
	})
	r.log().Info("call start queued", "room", in.CallID, "status", in.Status, "op_id", id)
	return id
}

// RecordEndOnce enqueues the call-end write if this is the first end for a
// started call. Later or early calls are silent no-ops.
func (r *Recorder) RecordEndOnce(state *CallState, reason string) (string, bool) {
	if !state.claimEnd() {
		return "", false
	}
	room := state.RoomName()
	endedAt := r.now()
	id := r.Queue.Enqueue(OpInsertCallEnd, func(ctx context.Context) (bool, error) {
		return r.Store.InsertCallEnd(ctx, room, reason, endedAt)
	})
	r.log().Info("call end queued", "room", room, "reason", reason, "op_id", id)
	return id, true
}

// QueueTransfer enqueues the hand-off of a running call to to.
func (r *Recorder) QueueTransfer(room, to string) string {
	t := calls.Transfer{Transferred: true, To: to}
	id := r.Queue.Enqueue(OpUpdateTransfer, func(ctx context.Context) (bool, error) {
		return r.Store.UpdateTransfer(ctx, room, t)
	})
	r.log().Info("call transfer queued", "room", room, "transfer_to", to, "op_id", id)
	return id
}

// RecordEndNow writes the call end synchronously through the store, for
// paths where the queue workers may no longer run.
func (r *Recorder) RecordEndNow(ctx context.Context, state *CallState, reason string) (bool, error) {
	if !state.claimEnd() {
		return false, nil
	}
	return r.Store.InsertCallEnd(ctx, state.RoomName(), reason, r.now())
}
