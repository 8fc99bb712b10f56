// Package workerpool provides a bounded, autoscaling pool for
// concurrent sub-task execution with queue backpressure.
//
// Submission is a lock-free channel fast path; scaling decisions are
// guarded by a pool-wide lock. The active worker count never leaves
// the configured [min, max] interval.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/observability"
)

// Sentinel errors for pool operations.
var (
	// ErrQueueFull is the backpressure signal: the queue has reached
	// its configured limit and the caller should retry later.
	ErrQueueFull = errors.New("worker pool queue full")

	// ErrPoolClosed is returned by Submit after Close has begun.
	ErrPoolClosed = errors.New("worker pool closed")
)

// TaskFunc is one unit of pool work.
type TaskFunc func(ctx context.Context) (any, error)

// Handle tracks one submitted task.
type Handle struct {
	// ID uniquely identifies the submission.
	ID string

	done   chan struct{}
	result any
	err    error
}

// Done returns a channel closed when the task has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result blocks until the task finishes and returns its outcome.
func (h *Handle) Result() (any, error) {
	<-h.done
	return h.result, h.err
}

// Config holds pool sizing and autoscaling settings.
type Config struct {
	// MinWorkers is the lower worker bound (default: 2).
	MinWorkers int

	// MaxWorkers is the upper worker bound (default: 16).
	MaxWorkers int

	// QueueLimit caps the pending queue; Submit fails fast beyond it
	// (default: 64).
	QueueLimit int

	// ScaleUpThreshold is the busy fraction above which workers are
	// added (default: 0.8).
	ScaleUpThreshold float64

	// ScaleDownThreshold is the busy fraction below which idle workers
	// are drained (default: 0.3).
	ScaleDownThreshold float64

	// Interval is the autoscale loop period (default: 10s).
	Interval time.Duration

	// NewTicker builds the autoscale timer. Injectable for tests;
	// defaults to time.NewTicker.
	NewTicker func(d time.Duration) *time.Ticker

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) defaults() error {
	if c.MinWorkers == 0 {
		c.MinWorkers = 2
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 16
	}
	if c.MinWorkers < 1 || c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("workerpool: invalid bounds [%d, %d]", c.MinWorkers, c.MaxWorkers)
	}
	if c.QueueLimit == 0 {
		c.QueueLimit = 64
	}
	if c.ScaleUpThreshold == 0 {
		c.ScaleUpThreshold = 0.8
	}
	if c.ScaleDownThreshold == 0 {
		c.ScaleDownThreshold = 0.3
	}
	if c.Interval == 0 {
		c.Interval = 10 * time.Second
	}
	if c.NewTicker == nil {
		c.NewTicker = time.NewTicker
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// State is a point-in-time pool snapshot.
type State struct {
	MinWorkers    int     `json:"min_workers"`
	MaxWorkers    int     `json:"max_workers"`
	ActiveWorkers int     `json:"active_workers"`
	QueueDepth    int     `json:"queue_depth"`
	Utilization   float64 `json:"utilization"`
}

// item is one queued submission.
type item struct {
	handle *Handle
	fn     TaskFunc
	ctx    context.Context
}

// Pool executes sub-tasks on a bounded set of workers.
type Pool struct {
	cfg   Config
	queue chan *item

	// reserve is queue headroom only SubmitPriority may use.
	reserve int

	// scaleMu guards worker count changes; Submit never takes it.
	scaleMu sync.Mutex
	active  int
	busy    atomic.Int64

	quit chan struct{} // tokens consumed by workers asked to retire

	closed      atomic.Bool
	forceCtx    context.Context
	forceCancel context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a pool and starts MinWorkers workers. The autoscale loop
// is started separately via Run so tests control it deterministically.
func New(cfg Config) (*Pool, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}

	forceCtx, forceCancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:         cfg,
		queue:       make(chan *item, cfg.QueueLimit),
		reserve:     cfg.QueueLimit / 4,
		quit:        make(chan struct{}, cfg.MaxWorkers),
		forceCtx:    forceCtx,
		forceCancel: forceCancel,
	}

	p.scaleMu.Lock()
	p.addWorkersLocked(cfg.MinWorkers)
	p.scaleMu.Unlock()

	return p, nil
}

// Submit enqueues a task. It fails fast with ErrQueueFull once the
// queue reaches its ordinary share of the limit (a quarter is held
// back for SubmitPriority) and ErrPoolClosed after shutdown has begun.
func (p *Pool) Submit(ctx context.Context, fn TaskFunc) (*Handle, error) {
	return p.submit(ctx, fn, false)
}

// SubmitPriority enqueues a task that may use the reserved queue
// headroom, so hinted work is still admitted while ordinary
// submissions are being pushed back.
func (p *Pool) SubmitPriority(ctx context.Context, fn TaskFunc) (*Handle, error) {
	return p.submit(ctx, fn, true)
}

func (p *Pool) submit(ctx context.Context, fn TaskFunc, priority bool) (*Handle, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if fn == nil {
		return nil, fmt.Errorf("workerpool: nil task")
	}
	if !priority && len(p.queue) >= p.cfg.QueueLimit-p.reserve {
		return nil, ErrQueueFull
	}

	h := &Handle{
		ID:   uuid.NewString(),
		done: make(chan struct{}),
	}

	select {
	case p.queue <- &item{handle: h, fn: fn, ctx: ctx}:
		observability.PoolQueueDepth.Set(float64(len(p.queue)))
		return h, nil
	default:
		return nil, ErrQueueFull
	}
}

// State returns a snapshot of the pool.
func (p *Pool) State() State {
	p.scaleMu.Lock()
	active := p.active
	p.scaleMu.Unlock()

	busy := p.busy.Load()
	var util float64
	if active > 0 {
		util = float64(busy) / float64(active)
	}

	return State{
		MinWorkers:    p.cfg.MinWorkers,
		MaxWorkers:    p.cfg.MaxWorkers,
		ActiveWorkers: active,
		QueueDepth:    len(p.queue),
		Utilization:   util,
	}
}

// Close drains the pool: no new submissions are accepted, in-flight
// and queued tasks run until the drain context expires, then the
// remainder is force-cancelled. Any handle still queued when the
// workers retire is completed with ErrPoolClosed so no caller blocks
// forever.
func (p *Pool) Close(drainCtx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPoolClosed
	}

	var drainErr error

	// Wait for queued and running work to finish, or the drain deadline.
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for len(p.queue) > 0 || p.busy.Load() > 0 {
		if drainCtx.Err() != nil {
			p.forceCancel()
			drainErr = drainCtx.Err()
			break
		}
		select {
		case <-drainCtx.Done():
		case <-tick.C:
		}
	}

	// Retire every worker.
	p.scaleMu.Lock()
	n := p.active
	p.scaleMu.Unlock()
	for i := 0; i < n; i++ {
		p.quit <- struct{}{}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-drainCtx.Done():
		p.forceCancel()
		<-done
		if drainErr == nil {
			drainErr = drainCtx.Err()
		}
	}

	// Fail anything a late Submit slipped into the queue.
	for {
		select {
		case it := <-p.queue:
			it.handle.err = ErrPoolClosed
			close(it.handle.done)
		default:
			return drainErr
		}
	}
}

// worker consumes queue items until asked to retire. Retirement is
// re-checked at consumption time: scale-down ticks may leave stale
// quit tokens behind, and honoring one at min size would break the
// lower bound.
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			p.scaleMu.Lock()
			if !p.closed.Load() && p.active <= p.cfg.MinWorkers {
				p.scaleMu.Unlock()
				continue
			}
			p.active--
			observability.PoolActiveWorkers.Set(float64(p.active))
			p.scaleMu.Unlock()
			return
		case it := <-p.queue:
			observability.PoolQueueDepth.Set(float64(len(p.queue)))
			p.run(it)
		}
	}
}

// run executes one item with panic isolation: a task that panics is
// recorded as failed without taking the worker down, so the pool never
// drops below min.
func (p *Pool) run(it *item) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	taskCtx := it.ctx
	if taskCtx == nil {
		taskCtx = context.Background()
	}
	execCtx, cancel := context.WithCancel(taskCtx)
	defer cancel()
	stop := context.AfterFunc(p.forceCtx, cancel)
	defer stop()

	func() {
		defer func() {
			if r := recover(); r != nil {
				it.handle.err = api.NewEngineCrashError(fmt.Sprintf("task panic: %v", r))
				p.cfg.Logger.Error("pool task panicked", "task", it.handle.ID, "panic", r)
			}
		}()
		it.handle.result, it.handle.err = it.fn(execCtx)
	}()

	close(it.handle.done)
}

// addWorkersLocked starts n workers. Must be called with scaleMu held.
func (p *Pool) addWorkersLocked(n int) {
	for i := 0; i < n; i++ {
		p.active++
		p.wg.Add(1)
		go p.worker()
	}
	observability.PoolActiveWorkers.Set(float64(p.active))
}
