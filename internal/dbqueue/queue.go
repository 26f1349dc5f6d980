package dbqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Func is one unit of persistence work. Returning false or an error marks
// the attempt as failed.
type Func func(ctx context.Context) (bool, error)

// Operation is an enqueued unit of work. It is immutable once enqueued.
type Operation struct {
	ID         string
	Name       string
	EnqueuedAt time.Time

	fn Func
}

// Result describes how an operation finished.
type Result struct {
	ID       string
	Name     string
	Attempts int
	Err      error
}

func (r Result) OK() bool { return r.Err == nil }

type Options struct {
	Workers int
	Retry   RetryPolicy
	Logger  *slog.Logger

	// OnDone is called after every operation leaves the queue.
	OnDone func(Result)
	Now    func() time.Time
}

// Queue is an unbounded FIFO of persistence operations drained by a fixed
// pool of workers. Enqueue never waits for the work to run.
//
// Failed operations are retried per the RetryPolicy, then logged and
// dropped. They are never re-queued.
type Queue struct {
	base context.Context
	opts Options
	log  *slog.Logger

	mu    sync.Mutex
	items []Operation

	wake  chan struct{}
	start sync.Once
	seq   atomic.Uint64

	// pending counts operations from Enqueue until their worker is done.
	pending atomic.Int64
}

// New returns a queue whose workers live until ctx is cancelled. Workers
// are started on the first Enqueue.
func New(ctx context.Context, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Queue{
		base: ctx,
		opts: opts,
		log:  l.With("component", "dbqueue"),
		wake: make(chan struct{}, 1),
	}
}

// Enqueue appends fn and returns the operation id.
func (q *Queue) Enqueue(name string, fn Func) string {
	q.start.Do(q.startWorkers)

	now := q.opts.Now()
	op := Operation{
		ID:         fmt.Sprintf("%s_%d_%d", name, now.UnixMilli(), q.seq.Add(1)),
		Name:       name,
		EnqueuedAt: now,
		fn:         fn,
	}

	q.pending.Add(1)
	q.mu.Lock()
	q.items = append(q.items, op)
	q.mu.Unlock()

	q.signal()
	q.log.Debug("db operation enqueued", "op_id", op.ID, "op", name)
	return op.ID
}

// Pending reports operations that are queued or still being attempted.
func (q *Queue) Pending() int { return int(q.pending.Load()) }

// Drain waits until no operation is queued or running, polling every
// interval. It returns ctx's error if ctx ends first. Workers keep running.
func (q *Queue) Drain(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for q.Pending() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("dbqueue: drain with %d pending: %w", q.Pending(), ctx.Err())
		case <-t.C:
		}
	}
	return nil
}

// Len reports the number of operations waiting for a worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) startWorkers() {
	for i := 0; i < q.opts.Workers; i++ {
		go q.worker(i)
	}
	q.log.Info("db queue started", "workers", q.opts.Workers)
}

func (q *Queue) pop() (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Operation{}, false
	}
	op := q.items[0]
	q.items[0] = Operation{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// hand the wakeup to the next idle worker
		q.signal()
	}
	return op, true
}

func (q *Queue) worker(n int) {
	for {
		if q.base.Err() != nil {
			return
		}
		op, ok := q.pop()
		if !ok {
			select {
			case <-q.base.Done():
				return
			case <-q.wake:
			}
			continue
		}
		q.run(n, op)
	}
}

func (q *Queue) run(worker int, op Operation) {
	defer q.pending.Add(-1)
	log := q.log.With("op_id", op.ID, "op", op.Name, "worker", worker)

	attempts, err := q.opts.Retry.Do(q.base, op.fn, func(attempt int, err error) {
		log.Warn("db operation attempt failed", "attempt", attempt, "err", err)
	})
	if err != nil {
		log.Error("db operation failed", "attempts", attempts, "err", err)
	} else {
		log.Debug("db operation done", "attempts", attempts, "queued_ms", q.opts.Now().Sub(op.EnqueuedAt).Milliseconds())
	}

	if q.opts.OnDone != nil {
		q.opts.OnDone(Result{ID: op.ID, Name: op.Name, Attempts: attempts, Err: err})
	}
}
