package lifecycle

import (
	"context"
	"sync"
	"time"

	"voice-call-agent/internal/calls"
	"voice-call-agent/internal/dbqueue"
	"voice-call-agent/internal/session"
	"voice-call-agent/internal/telephony"
	"voice-call-agent/pkg/events"
)

// syncQueue runs every operation inline and remembers its name.
type syncQueue struct {
	mu  sync.Mutex
	ops []string
}

func (q *syncQueue) Enqueue(name string, fn dbqueue.Func) string {
	q.mu.Lock()
	q.ops = append(q.ops, name)
	q.mu.Unlock()
	_, _ = fn(context.Background())
	return name
}

func (q *syncQueue) count(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, op := range q.ops {
		if op == name {
			n++
		}
	}
	return n
}

type fakeProvider struct {
	mu sync.Mutex

	createErr error
	waitErr   error
	joined    telephony.Participant

	// snapshots are returned in order by Participant; the last one repeats.
	snapshots  []telephony.Participant
	lookupErrs []error
	lookups    int

	legs    []telephony.OutboundLeg
	waits   int
	deleted []string
}

func (p *fakeProvider) CreateOutboundLeg(_ context.Context, leg telephony.OutboundLeg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.legs = append(p.legs, leg)
	return p.createErr
}

func (p *fakeProvider) WaitForParticipant(_ context.Context, _ string, identity string) (telephony.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	if p.waitErr != nil {
		return telephony.Participant{}, p.waitErr
	}
	if identity != "" {
		return telephony.Participant{Identity: identity}, nil
	}
	return p.joined, nil
}

func (p *fakeProvider) Participant(ctx context.Context, _ string, _ string) (telephony.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.lookups
	p.lookups++
	if i < len(p.lookupErrs) && p.lookupErrs[i] != nil {
		return telephony.Participant{}, p.lookupErrs[i]
	}
	if len(p.snapshots) == 0 {
		return telephony.Participant{}, telephony.ErrParticipantNotFound
	}
	if i >= len(p.snapshots) {
		i = len(p.snapshots) - 1
	}
	return p.snapshots[i], nil
}

func (p *fakeProvider) DeleteRoom(_ context.Context, room string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, room)
	return nil
}

func (p *fakeProvider) deletedRooms() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deleted...)
}

func sipStatus(s string) telephony.Participant {
	return telephony.Participant{Identity: "+15552223333", Attributes: map[string]string{telephony.AttrCallStatus: s}}
}

type fakeSession struct {
	bus *events.Bus[session.Event]

	mu     sync.Mutex
	said   []string
	closed bool
}

func newFakeSession() *fakeSession { return &fakeSession{bus: events.NewBus[session.Event]()} }

func (s *fakeSession) On(name string, h events.Handler[session.Event]) func() {
	return s.bus.On(name, h)
}

func (s *fakeSession) Say(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, text)
	return nil
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeFactory struct {
	sess    *fakeSession
	err     error
	started chan session.StartRequest
}

func (f *fakeFactory) Start(_ context.Context, req session.StartRequest) (session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.started <- req
	return f.sess, nil
}

type fakePostCall struct {
	mu    sync.Mutex
	calls map[string]string
}

func (f *fakePostCall) Process(_ context.Context, callID string, t *session.Transcript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]string{}
	}
	f.calls[callID] = t.Text()
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	clock    *fixedClock
	queue    *syncQueue
	store    *calls.MemoryStore
	provider *fakeProvider
	recorder *Recorder
	orch     *Orchestrator
}

func newTestEnv() *testEnv {
	c := &fixedClock{t: time.Unix(1700000000, 0).UTC()}
	q := &syncQueue{}
	st := calls.NewMemoryStore(calls.Options{Now: c.now})
	p := &fakeProvider{}
	rec := &Recorder{Queue: q, Store: st, Now: c.now}
	return &testEnv{
		clock:    c,
		queue:    q,
		store:    st,
		provider: p,
		recorder: rec,
		orch: &Orchestrator{
			Provider: p,
			Recorder: rec,
			Policy: DialPolicy{
				TrunkID:       "ST_trunk",
				CallingNumber: "+15550001111",
				PollInterval:  2 * time.Millisecond,
				DialTimeout:   time.Second,
			},
			Now: c.now,
		},
	}
}

func outboundMeta() JobMetadata {
	return JobMetadata{
		Direction: DirectionOutbound,
		Phone:     "+15552223333",
		UserID:    3,
		AgentID:   "agent-outbound",
		Raw:       map[string]any{"phone": "+15552223333"},
	}
}
