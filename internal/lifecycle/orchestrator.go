package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voice-call-agent/internal/calls"
	"voice-call-agent/internal/telephony"
	"voice-call-agent/pkg/logger"
)

// Call-start status labels for outcomes decided while dialing.
const (
	StatusRejected         = "Call rejected"
	StatusNoAnswer         = "User did not pick"
	StatusTimeout          = "Call timeout"
	StatusFailedToInitiate = "Failed to initiate"
)

const (
	DefaultOutboundName = "Outbound Call"
	DefaultInboundName  = "Inbound Call"
)

// DefaultTerminalStatuses maps SIP call statuses that end a dial attempt to
// their status labels.
func DefaultTerminalStatuses() map[string]string {
	return map[string]string{
		"failed":    "Call failed",
		"busy":      "User busy",
		"no-answer": StatusNoAnswer,
	}
}

// DialPolicy holds the outbound dialing parameters.
type DialPolicy struct {
	TrunkID       string
	CallingNumber string

	PollInterval time.Duration
	DialTimeout  time.Duration

	// TerminalStatuses maps sip.callStatus values to labels. An empty label
	// is rendered as "Call <status>".
	TerminalStatuses map[string]string
}

func (p DialPolicy) withDefaults() DialPolicy {
	out := p
	if out.PollInterval <= 0 {
		out.PollInterval = 500 * time.Millisecond
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 45 * time.Second
	}
	if out.TerminalStatuses == nil {
		out.TerminalStatuses = DefaultTerminalStatuses()
	}
	return out
}

// Outcome is the result of bringing a call up.
type Outcome struct {
	Status string
}

func (o Outcome) Answered() bool { return o.Status == calls.StatusStarted }

// Teardown reports that the room must be deleted and no session started.
func (o Outcome) Teardown() bool { return !o.Answered() }

// Orchestrator brings outbound and inbound calls up and records exactly one
// call-start write per attempt.
type Orchestrator struct {
	Provider telephony.Provider
	Recorder *Recorder
	Policy   DialPolicy
	Now      func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// DialOutbound dials meta.Phone into the call's room and waits for an answer.
//
// A nil error with Outcome.Teardown() means the call was not answered; its
// start record already carries the reason. Errors are only returned for
// failures that are not dial outcomes (cancelled context, provider faults).
func (o *Orchestrator) DialOutbound(ctx context.Context, state *CallState, meta JobMetadata) (*telephony.Participant, Outcome, error) {
	policy := o.Policy.withDefaults()
	room := state.RoomName()
	identity := meta.Phone
	state.SetParticipantIdentity(identity)
	log := logger.From(ctx).With("room", room, "identity", identity)

	err := o.Provider.CreateOutboundLeg(ctx, telephony.OutboundLeg{
		Room:        room,
		TrunkID:     policy.TrunkID,
		Destination: meta.Phone,
		Identity:    identity,
		DisplayName: meta.Name,
	})
	if err != nil {
		return o.dialFailed(log, meta, room, fmt.Errorf("lifecycle: create outbound leg: %w", err))
	}

	if _, err := o.Provider.WaitForParticipant(ctx, room, identity); err != nil {
		return o.dialFailed(log, meta, room, fmt.Errorf("lifecycle: wait for participant: %w", err))
	}
	log.Info("outbound participant joined, waiting for answer")

	return o.awaitAnswer(ctx, log, policy, state, meta)
}

func (o *Orchestrator) dialFailed(log *slog.Logger, meta JobMetadata, room string, err error) (*telephony.Participant, Outcome, error) {
	var dialErr *telephony.DialError
	if errors.As(err, &dialErr) {
		log.Error("sip dial failed",
			"err", dialErr.Message,
			"sip_status_code", dialErr.SIPStatusCode,
			"sip_status", dialErr.SIPStatus,
		)
		return nil, o.finish(log, meta, room, StatusFailedToInitiate), nil
	}
	return nil, Outcome{}, err
}

func (o *Orchestrator) awaitAnswer(ctx context.Context, log *slog.Logger, policy DialPolicy, state *CallState, meta JobMetadata) (*telephony.Participant, Outcome, error) {
	room := state.RoomName()
	identity := state.ParticipantIdentity()

	pollCtx, cancel := context.WithTimeout(ctx, policy.DialTimeout)
	defer cancel()
	ticker := time.NewTicker(policy.PollInterval)
	defer ticker.Stop()

	lastStatus := ""
	for {
		p, err := o.Provider.Participant(pollCtx, room, identity)
		switch {
		case err != nil:
			if pollCtx.Err() == nil {
				log.Debug("participant lookup failed", "err", err)
			}
		default:
			if s := p.CallStatus(); s != lastStatus {
				log.Info("call status changed", "from", lastStatus, "to", s)
				lastStatus = s
			}
			if label, done := classifyDial(policy, p); done {
				if label != calls.StatusStarted {
					return nil, o.finish(log, meta, room, label), nil
				}
				state.MarkStarted(o.now(), p.Identity)
				o.Recorder.QueueStart(o.outboundStart(policy, room, meta, label))
				log.Info("call answered")
				return &p, Outcome{Status: label}, nil
			}
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return nil, Outcome{}, ctx.Err()
			}
			log.Warn("call not answered in time", "timeout", policy.DialTimeout.String(), "last_status", lastStatus)
			return nil, o.finish(log, meta, room, StatusTimeout), nil
		case <-ticker.C:
		}
	}
}

// classifyDial maps a participant snapshot to a status label. done is false
// while the call is still ringing.
func classifyDial(policy DialPolicy, p telephony.Participant) (string, bool) {
	status := p.CallStatus()
	if status == telephony.CallStatusActive {
		return calls.StatusStarted, true
	}
	switch p.DisconnectReason {
	case telephony.ReasonUserRejected:
		return StatusRejected, true
	case telephony.ReasonUserUnavailable:
		return StatusNoAnswer, true
	}
	if label, ok := policy.TerminalStatuses[status]; ok && status != "" {
		if label == "" {
			label = "Call " + status
		}
		return label, true
	}
	return "", false
}

func (o *Orchestrator) finish(log *slog.Logger, meta JobMetadata, room, status string) Outcome {
	o.Recorder.QueueStart(o.outboundStart(o.Policy.withDefaults(), room, meta, status))
	log.Info("outbound call not connected", "status", status)
	return Outcome{Status: status}
}

func (o *Orchestrator) outboundStart(policy DialPolicy, room string, meta JobMetadata, status string) calls.CallStart {
	name := meta.Name
	if name == "" {
		name = DefaultOutboundName
	}
	return calls.CallStart{
		CallID:    room,
		ModelID:   meta.AgentID,
		UserID:    meta.UserID,
		Name:      name,
		From:      policy.CallingNumber,
		To:        meta.Phone,
		CallType:  calls.CallTypeOutbound,
		Status:    status,
		Metadata:  meta.Raw,
		StartedAt: o.now(),
	}
}

// AnswerInbound waits for the caller to join and records the call start.
func (o *Orchestrator) AnswerInbound(ctx context.Context, state *CallState, meta JobMetadata) (*telephony.Participant, error) {
	room := state.RoomName()
	p, err := o.Provider.WaitForParticipant(ctx, room, "")
	if err != nil {
		return nil, fmt.Errorf("lifecycle: wait for caller: %w", err)
	}
	now := o.now()
	state.MarkStarted(now, p.Identity)

	o.Recorder.QueueStart(calls.CallStart{
		CallID:    room,
		ModelID:   meta.AgentID,
		UserID:    calls.DefaultUserID,
		Name:      DefaultInboundName,
		From:      p.Identity,
		To:        o.Policy.CallingNumber,
		CallType:  calls.CallTypeIncoming,
		Status:    calls.StatusStarted,
		Metadata:  map[string]any{},
		StartedAt: now,
	})
	logger.From(ctx).Info("inbound caller joined", "room", room, "identity", p.Identity)
	return &p, nil
}
