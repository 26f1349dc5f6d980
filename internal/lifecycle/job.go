package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voice-call-agent/internal/session"
	"voice-call-agent/internal/telephony"
	"voice-call-agent/internal/watchdog"
	"voice-call-agent/pkg/events"
	"voice-call-agent/pkg/logger"
)

// Job is one call to run: a room plus its dispatch metadata.
type Job struct {
	Room     string
	Metadata string
}

// RoomHub hands out per-room event buses.
type RoomHub interface {
	Room(name string) *events.Bus[telephony.RoomEvent]
	Forget(name string)
}

// PostCall processes a finished call's transcript.
type PostCall interface {
	Process(ctx context.Context, callID string, transcript *session.Transcript)
}

// RoomRecorder records a room's audio for the length of the call.
type RoomRecorder interface {
	StartRecording(ctx context.Context, room string) (string, error)
}

type RunnerConfig struct {
	OutboundAgentID string
	InboundAgentID  string

	// ProperConversation is the minimum call length for a client hang-up to
	// be recorded as "Call ended" instead of "User disconnected".
	ProperConversation time.Duration

	IdleHangup bool
	Watchdog   watchdog.Config

	// ShutdownTimeout bounds the end-of-job writes and cleanup.
	ShutdownTimeout time.Duration
}

// Runner runs call jobs from dispatch to teardown.
type Runner struct {
	Orchestrator *Orchestrator
	Recorder     *Recorder
	Provider     telephony.Provider
	Rooms        RoomHub
	Sessions     session.Factory
	PostCall     PostCall
	// Recording is optional; nil leaves calls unrecorded.
	Recording RoomRecorder
	Config    RunnerConfig
	Log          *slog.Logger
	Now          func() time.Time
}

func (r *Runner) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// Run executes one job and returns when the call is over. Malformed
// metadata is returned as ErrInvalidMetadata before anything is dialed.
func (r *Runner) Run(ctx context.Context, job Job) error {
	log := r.log().With("room", job.Room)

	meta, err := ParseJobMetadata(job.Metadata)
	if err != nil {
		log.Error("invalid job metadata", "err", err)
		return err
	}
	r.applyDefaults(&meta)
	log = log.With("direction", string(meta.Direction))
	ctx = logger.With(ctx, log)
	log.Info("call job started", "agent_id", meta.AgentID)

	state := NewCallState(job.Room)
	idle := &Task{}
	dh := NewDisconnectHandler(state, r.Recorder, r.Config.ProperConversation, idle, log)
	if r.Now != nil {
		dh.now = r.Now
	}
	defer r.Rooms.Forget(job.Room)
	off := dh.Register(r.Rooms.Room(job.Room))
	defer off()

	var participant *telephony.Participant
	if meta.Outbound() {
		var outcome Outcome
		participant, outcome, err = r.Orchestrator.DialOutbound(ctx, state, meta)
		if err != nil || outcome.Teardown() {
			r.teardown(ctx, job.Room)
			if err != nil {
				log.Error("outbound call failed", "err", err)
			}
			return err
		}
	} else {
		participant, err = r.Orchestrator.AnswerInbound(ctx, state, meta)
		if err != nil {
			log.Error("inbound call failed", "err", err)
			r.teardown(ctx, job.Room)
			return err
		}
	}

	control := &CallControl{state: state, recorder: r.Recorder, provider: r.Provider, log: log}
	sess, err := r.Sessions.Start(ctx, session.StartRequest{
		Room:        job.Room,
		Participant: *participant,
		Direction:   string(meta.Direction),
		Metadata:    meta.Raw,
		Control:     control,
	})
	if err != nil {
		log.Error("session start failed", "err", err)
		r.finish(ctx, log, state, idle, dh, nil, nil)
		return fmt.Errorf("lifecycle: start session: %w", err)
	}

	if r.Recording != nil {
		if id, err := r.Recording.StartRecording(ctx, job.Room); err != nil {
			log.Warn("audio recording not started", "err", err)
		} else {
			log.Info("audio recording started", "egress_id", id)
		}
	}

	transcript := session.NewTranscript()
	offTranscript := transcript.Attach(sess)
	defer offTranscript()

	closed := make(chan struct{})
	var closeOnce sync.Once
	offClose := sess.On(session.EventClose, func(session.Event) { closeOnce.Do(func() { close(closed) }) })
	defer offClose()

	if r.Config.IdleHangup {
		w := watchdog.New(sess, func(ctx context.Context) error {
			return r.Provider.DeleteRoom(ctx, job.Room)
		}, r.Config.Watchdog, log)
		idle.Start(ctx, w.Run)
	}

	select {
	case <-ctx.Done():
		log.Info("call job cancelled")
	case <-dh.Gone():
	case <-closed:
		log.Info("agent session closed")
	}

	r.finish(ctx, log, state, idle, dh, sess, transcript)
	return nil
}

func (r *Runner) applyDefaults(m *JobMetadata) {
	if m.AgentID != "" {
		return
	}
	if m.Outbound() {
		m.AgentID = r.Config.OutboundAgentID
	} else {
		m.AgentID = r.Config.InboundAgentID
	}
	if m.AgentID == "" {
		m.AgentID = "default"
	}
}

func (r *Runner) shutdownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	d := r.Config.ShutdownTimeout
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

func (r *Runner) teardown(ctx context.Context, room string) {
	sctx, cancel := r.shutdownContext(ctx)
	defer cancel()
	if err := r.Provider.DeleteRoom(sctx, room); err != nil {
		logger.From(ctx).Warn("room teardown failed", "err", err)
	}
}

func (r *Runner) finish(ctx context.Context, log *slog.Logger, state *CallState, idle *Task, dh *DisconnectHandler, sess session.Session, transcript *session.Transcript) {
	sctx, cancel := r.shutdownContext(ctx)
	defer cancel()

	// let a pending disconnect claim the end before the shutdown fallback
	dh.Wait()
	ShutdownHook{State: state, Recorder: r.Recorder, Watchdog: idle, Log: log}.Run(sctx)

	if sess != nil {
		if err := sess.Close(sctx); err != nil {
			log.Warn("session close failed", "err", err)
		}
	}
	if err := r.Provider.DeleteRoom(sctx, state.RoomName()); err != nil {
		log.Warn("room cleanup failed", "err", err)
	}
	if r.PostCall != nil && transcript != nil && transcript.Len() > 0 {
		r.PostCall.Process(sctx, state.RoomName(), transcript)
	}
	log.Info("call job finished", "end_recorded", state.EndRecorded())
}

// ErrCallEnded is returned by CallControl for calls whose end is recorded.
var ErrCallEnded = errors.New("lifecycle: call already ended")

// CallControl lets the agent end or transfer the call it is running in.
type CallControl struct {
	state    *CallState
	recorder *Recorder
	provider telephony.Provider
	log      *slog.Logger
}

// EndCall records reason as the end of the call, then hangs up.
func (c *CallControl) EndCall(ctx context.Context, reason string) error {
	if reason == "" {
		reason = session.EndReasonAgent
	}
	if _, ok := c.recorder.RecordEndOnce(c.state, reason); ok {
		c.log.Info("agent ended the call", "reason", reason)
	}
	if err := c.provider.DeleteRoom(ctx, c.state.RoomName()); err != nil {
		return fmt.Errorf("lifecycle: end call: %w", err)
	}
	return nil
}

// Transfer queues the transfer write. Calls that already ended are left
// alone.
func (c *CallControl) Transfer(ctx context.Context, to string) error {
	if c.state.EndRecorded() {
		return ErrCallEnded
	}
	c.recorder.QueueTransfer(c.state.RoomName(), to)
	return nil
}
