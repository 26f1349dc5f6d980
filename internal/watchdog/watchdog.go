package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voice-call-agent/internal/session"
)

const (
	DefaultReminderMessage = "Hello? Are you still there?"
	DefaultClosingMessage  = "It seems there is some connection issue, I can not hear anything. Have a good day!"
)

type Config struct {
	// CheckInterval is the listening silence before a reminder is spoken.
	CheckInterval time.Duration
	// HangUpAfter is the listening silence before hanging up, once every
	// reminder has been used.
	HangUpAfter    time.Duration
	PresenceChecks int
	Tick           time.Duration

	ReminderMessage string
	ClosingMessage  string
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:   15 * time.Second,
		HangUpAfter:     10 * time.Second,
		PresenceChecks:  2,
		Tick:            time.Second,
		ReminderMessage: DefaultReminderMessage,
		ClosingMessage:  DefaultClosingMessage,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	out := c
	if out.CheckInterval <= 0 {
		out.CheckInterval = d.CheckInterval
	}
	if out.HangUpAfter <= 0 {
		out.HangUpAfter = d.HangUpAfter
	}
	if out.PresenceChecks < 0 {
		out.PresenceChecks = 0
	}
	if out.Tick <= 0 {
		out.Tick = d.Tick
	}
	if out.ReminderMessage == "" {
		out.ReminderMessage = d.ReminderMessage
	}
	if out.ClosingMessage == "" {
		out.ClosingMessage = d.ClosingMessage
	}
	return out
}

// HangupFunc terminates the call.
type HangupFunc func(ctx context.Context) error

// Watchdog hangs up calls where the user stays silent. While the agent is
// listening it spends its presence checks on reminders, then says goodbye
// and hangs up.
type Watchdog struct {
	sess   session.Session
	hangup HangupFunc
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	mu             sync.Mutex
	agentState     session.AgentState
	userSpeech     bool
	hangUpStart    time.Time
	checkInStart   time.Time
	remainingCheck int
}

func New(s session.Session, hangup HangupFunc, cfg Config, log *slog.Logger) *Watchdog {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Watchdog{
		sess:           s,
		hangup:         hangup,
		cfg:            cfg,
		log:            log.With("component", "watchdog"),
		now:            time.Now,
		agentState:     session.AgentInitializing,
		remainingCheck: cfg.PresenceChecks,
	}
}

// Run watches the session until ctx is cancelled or the call is hung up.
// Cancellation is a normal stop and returns nil.
func (w *Watchdog) Run(ctx context.Context) error {
	w.mu.Lock()
	w.hangUpStart = w.now()
	w.checkInStart = w.hangUpStart
	w.mu.Unlock()

	offState := w.sess.On(session.EventAgentStateChanged, w.onAgentState)
	offSpeech := w.sess.On(session.EventUserSpeechDetected, w.onUserSpeech)
	defer offState()
	defer offSpeech()

	t := time.NewTicker(w.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("watchdog stopped")
			return nil
		case <-t.C:
			if w.check(ctx) {
				return nil
			}
		}
	}
}

func (w *Watchdog) onAgentState(ev session.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agentState = ev.NewState
	switch ev.NewState {
	case session.AgentListening:
		now := w.now()
		w.hangUpStart = now
		w.checkInStart = now
	case session.AgentSpeaking, session.AgentThinking, session.AgentInitializing:
		w.userSpeech = false
	}
}

func (w *Watchdog) onUserSpeech(session.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.userSpeech = true
}

type action int

const (
	actionNone action = iota
	actionRemind
	actionHangUp
)

// decide evaluates one tick. A reminder consumes a presence check and
// restarts the check-in timer; the hang-up timer keeps running.
func (w *Watchdog) decide() action {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.agentState != session.AgentListening || w.userSpeech {
		return actionNone
	}
	now := w.now()
	if now.Sub(w.hangUpStart) > w.cfg.HangUpAfter && w.remainingCheck == 0 {
		return actionHangUp
	}
	if now.Sub(w.checkInStart) > w.cfg.CheckInterval && w.remainingCheck > 0 {
		w.remainingCheck--
		w.checkInStart = now
		return actionRemind
	}
	return actionNone
}

// check runs one tick and reports whether the call was hung up.
func (w *Watchdog) check(ctx context.Context) bool {
	switch w.decide() {
	case actionRemind:
		w.log.Info("user silent, checking presence", "remaining_checks", w.remaining())
		if err := w.sess.Say(ctx, w.cfg.ReminderMessage); err != nil {
			w.log.Warn("presence reminder failed", "err", err)
		}
		return false
	case actionHangUp:
		w.log.Info("user silent, hanging up")
		if err := w.sess.Say(ctx, w.cfg.ClosingMessage); err != nil {
			w.log.Warn("closing message failed", "err", err)
		}
		if w.hangup != nil {
			if err := w.hangup(ctx); err != nil {
				w.log.Error("idle hang-up failed", "err", err)
			}
		}
		return true
	default:
		return false
	}
}

func (w *Watchdog) remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remainingCheck
}
