package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-call-agent/internal/lifecycle"
)

var (
	ErrInvalidRequest = errors.New("dispatch: invalid request")
	ErrCapacity       = errors.New("dispatch: concurrent call limit reached")
	ErrClosed         = errors.New("dispatch: dispatcher closed")
)

// JobRunner runs one call job to completion.
type JobRunner interface {
	Run(ctx context.Context, job lifecycle.Job) error
}

// OutboundRequest asks for a call to Phone.
type OutboundRequest struct {
	Phone   string         `json:"phone"`
	Name    string         `json:"name,omitempty"`
	UserID  int64          `json:"user_id,omitempty"`
	AgentID string         `json:"agent_id,omitempty"`
	Extra   map[string]any `json:"metadata,omitempty"`
}

// Dispatcher starts call jobs on the process context and tracks which rooms
// have one running.
type Dispatcher struct {
	base    context.Context
	runner  JobRunner
	limiter Limiter
	log     *slog.Logger

	// RoomPrefix names rooms created for outbound calls.
	RoomPrefix string
	newID      func() string

	mu     sync.Mutex
	active map[string]time.Time
	closed bool
	wg     sync.WaitGroup
}

// New returns a dispatcher whose jobs run under base. limiter may be nil for
// no cap.
func New(base context.Context, runner JobRunner, limiter Limiter, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		base:       base,
		runner:     runner,
		limiter:    limiter,
		log:        log,
		RoomPrefix: "call-",
		newID:      uuid.NewString,
		active:     map[string]time.Time{},
	}
}

// DispatchOutbound starts an outbound call job and returns its room name.
func (d *Dispatcher) DispatchOutbound(ctx context.Context, req OutboundRequest) (string, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		return "", fmt.Errorf("%w: phone is required", ErrInvalidRequest)
	}
	meta, err := outboundMetadata(req)
	if err != nil {
		return "", err
	}
	room := d.RoomPrefix + d.newID()
	if _, err := d.start(ctx, room, meta); err != nil {
		return "", err
	}
	return room, nil
}

// StartInbound starts a job for a room created by an inbound dispatch rule.
// Rooms that already have a job are ignored.
func (d *Dispatcher) StartInbound(ctx context.Context, room, metadata string) (bool, error) {
	return d.start(ctx, room, metadata)
}

func (d *Dispatcher) start(ctx context.Context, room, metadata string) (bool, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false, ErrClosed
	}
	if _, ok := d.active[room]; ok {
		d.mu.Unlock()
		return false, nil
	}
	d.active[room] = time.Now()
	d.mu.Unlock()

	if d.limiter != nil {
		ok, err := d.limiter.Acquire(ctx)
		if err != nil || !ok {
			d.remove(room)
			if err != nil {
				return false, fmt.Errorf("dispatch: acquire call slot: %w", err)
			}
			return false, ErrCapacity
		}
	}

	d.wg.Add(1)
	go d.run(room, metadata)
	return true, nil
}

func (d *Dispatcher) run(room, metadata string) {
	defer d.wg.Done()
	defer d.remove(room)
	if d.limiter != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(d.base), 5*time.Second)
			defer cancel()
			if err := d.limiter.Release(ctx); err != nil {
				d.log.Warn("call slot release failed", "room", room, "err", err)
			}
		}()
	}
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("call job panicked", "room", room, "panic", fmt.Sprint(p))
		}
	}()

	if err := d.runner.Run(d.base, lifecycle.Job{Room: room, Metadata: metadata}); err != nil {
		d.log.Error("call job failed", "room", room, "err", err)
	}
}

func (d *Dispatcher) remove(room string) {
	d.mu.Lock()
	delete(d.active, room)
	d.mu.Unlock()
}

// Active returns the rooms with a running job, sorted.
func (d *Dispatcher) Active() []string {
	d.mu.Lock()
	out := make([]string, 0, len(d.active))
	for room := range d.active {
		out = append(out, room)
	}
	d.mu.Unlock()
	slices.Sort(out)
	return out
}

// Close refuses new jobs and waits for running ones, or for ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reservedMetadataKeys are set from OutboundRequest fields only, so caller
// metadata cannot change the direction or identity of the job.
var reservedMetadataKeys = map[string]struct{}{
	"phone":     {},
	"call_type": {},
	"direction": {},
	"name":      {},
	"user_id":   {},
	"agent_id":  {},
	"model_id":  {},
}

func outboundMetadata(req OutboundRequest) (string, error) {
	meta := map[string]any{}
	for k, v := range req.Extra {
		if _, ok := reservedMetadataKeys[k]; !ok {
			meta[k] = v
		}
	}
	meta["phone"] = req.Phone
	meta["call_type"] = string(lifecycle.DirectionOutbound)
	meta["direction"] = string(lifecycle.DirectionOutbound)
	if req.Name != "" {
		meta["name"] = req.Name
	}
	if req.UserID != 0 {
		meta["user_id"] = req.UserID
	}
	if req.AgentID != "" {
		meta["agent_id"] = req.AgentID
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("%w: metadata: %v", ErrInvalidRequest, err)
	}
	return string(b), nil
}
