package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voice-call-agent/pkg/events"
)

// Data topics published into the room.
const (
	TopicSay      = "agent.say"
	TopicTransfer = "agent.transfer"
)

var (
	ErrUnknownSession = errors.New("session: no session for room")
	ErrInvalidEvent   = errors.New("session: invalid event")
)

// Publisher delivers data packets into a room.
type Publisher interface {
	SendData(ctx context.Context, room, topic string, payload []byte) error
}

// Detached is a Factory for calls whose media pipeline runs in a separate
// worker that joined the room. The worker reports session events through
// Deliver and receives speech requests as room data packets.
type Detached struct {
	pub Publisher
	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*detachedSession
}

func NewDetached(pub Publisher, log *slog.Logger) *Detached {
	if log == nil {
		log = slog.Default()
	}
	return &Detached{
		pub:      pub,
		log:      log.With("component", "session"),
		now:      time.Now,
		sessions: map[string]*detachedSession{},
	}
}

func (d *Detached) Start(ctx context.Context, req StartRequest) (Session, error) {
	if req.Room == "" {
		return nil, fmt.Errorf("session: room required")
	}
	s := &detachedSession{
		owner:   d,
		room:    req.Room,
		control: req.Control,
		bus:     events.NewBus[Event](),
	}
	d.mu.Lock()
	old := d.sessions[req.Room]
	d.sessions[req.Room] = s
	d.mu.Unlock()
	if old != nil {
		_ = old.Close(ctx)
	}

	d.log.Info("session started", "room", req.Room, "participant", req.Participant.Identity, "direction", req.Direction)
	return s, nil
}

// Deliver emits a worker-reported event on the room's session.
func (d *Detached) Deliver(room string, ev Event) error {
	if !validEvent(ev) {
		return ErrInvalidEvent
	}
	s, ok := d.lookup(room)
	if !ok {
		return ErrUnknownSession
	}
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	if ev.Name == EventClose {
		return s.Close(context.Background())
	}
	s.bus.Emit(ev.Name, ev)
	return nil
}

// EndCall runs the call control of the room's session on behalf of the worker.
func (d *Detached) EndCall(ctx context.Context, room, reason string) error {
	s, ok := d.lookup(room)
	if !ok {
		return ErrUnknownSession
	}
	if s.control == nil {
		return fmt.Errorf("session: room %s has no call control", room)
	}
	return s.control.EndCall(ctx, reason)
}

type transferPayload struct {
	Action  string `json:"action"`
	Context string `json:"context"`
}

// Transfer records the hand-off through the room's call control and then
// announces it to the room so a human agent can pick the call up.
func (d *Detached) Transfer(ctx context.Context, room, to string) error {
	s, ok := d.lookup(room)
	if !ok {
		return ErrUnknownSession
	}
	if s.control == nil {
		return fmt.Errorf("session: room %s has no call control", room)
	}
	if err := s.control.Transfer(ctx, to); err != nil {
		return err
	}
	if d.pub == nil {
		return nil
	}
	b, err := json.Marshal(transferPayload{Action: "transfer", Context: to})
	if err != nil {
		return err
	}
	return d.pub.SendData(ctx, room, TopicTransfer, b)
}

// Active reports the rooms with a running session.
func (d *Detached) Active() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.sessions))
	for room := range d.sessions {
		out = append(out, room)
	}
	return out
}

func (d *Detached) lookup(room string) (*detachedSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[room]
	return s, ok
}

func (d *Detached) remove(s *detachedSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessions[s.room] == s {
		delete(d.sessions, s.room)
	}
}

func validEvent(ev Event) bool {
	switch ev.Name {
	case EventAgentStateChanged:
		return ev.NewState.Valid()
	case EventUserSpeechDetected, EventClose:
		return true
	case EventConversationItemAdded:
		return ev.Role != ""
	default:
		return false
	}
}

type detachedSession struct {
	owner   *Detached
	room    string
	control Control
	bus     *events.Bus[Event]

	closeOnce sync.Once
}

func (s *detachedSession) On(name string, h events.Handler[Event]) func() {
	return s.bus.On(name, h)
}

type sayPayload struct {
	Text string `json:"text"`
}

func (s *detachedSession) Say(ctx context.Context, text string) error {
	b, err := json.Marshal(sayPayload{Text: text})
	if err != nil {
		return err
	}
	if s.owner.pub == nil {
		return fmt.Errorf("session: no publisher configured")
	}
	return s.owner.pub.SendData(ctx, s.room, TopicSay, b)
}

func (s *detachedSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.owner.remove(s)
		s.bus.Emit(EventClose, Event{Name: EventClose, At: s.owner.now()})
		s.owner.log.Info("session closed", "room", s.room)
	})
	return nil
}
