package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
)

func newTestPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Close(ctx)
	})
	return p
}

func TestPool_SubmitAndResult(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 2, MaxWorkers: 4})

	h, err := p.Submit(context.Background(), func(_ context.Context) (any, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	res, err := h.Result()
	if err != nil {
		t.Fatalf("task failed: %v", err)
	}
	if res != "done" {
		t.Errorf("unexpected result %v", res)
	}
	if h.ID == "" {
		t.Error("handle must carry an ID")
	}
}

func TestPool_QueueBackpressure(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueLimit: 2})

	release := make(chan struct{})
	block := func(_ context.Context) (any, error) {
		<-release
		return nil, nil
	}

	// Occupy the single worker.
	if _, err := p.Submit(context.Background(), block); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitFor(t, func() bool { return p.busy.Load() == 1 })

	// Fill the queue.
	for i := 0; i < 2; i++ {
		if _, err := p.Submit(context.Background(), block); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}

	// Next submission must fail fast, not block.
	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), block)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("expected ErrQueueFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked instead of failing fast")
	}

	close(release)
}

// A quarter of the queue is held back for priority submissions: once
// ordinary Submit is pushed back, SubmitPriority still gets in until
// the hard limit.
func TestPool_PrioritySubmitUsesReserve(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueLimit: 8})

	release := make(chan struct{})
	block := func(_ context.Context) (any, error) {
		<-release
		return nil, nil
	}

	// Occupy the single worker.
	if _, err := p.Submit(context.Background(), block); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitFor(t, func() bool { return p.busy.Load() == 1 })

	// Fill the ordinary share of the queue (limit 8 minus reserve 2).
	for i := 0; i < 6; i++ {
		if _, err := p.Submit(context.Background(), block); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	if _, err := p.Submit(context.Background(), block); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("ordinary submit must be pushed back at the soft limit, got %v", err)
	}

	// Priority work fits into the reserve.
	for i := 0; i < 2; i++ {
		if _, err := p.SubmitPriority(context.Background(), block); err != nil {
			t.Fatalf("priority submit %d failed: %v", i, err)
		}
	}
	if _, err := p.SubmitPriority(context.Background(), block); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("priority submit past the hard limit must fail, got %v", err)
	}

	close(release)
}

func TestPool_PanicIsolation(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 2, MaxWorkers: 4})

	h, err := p.Submit(context.Background(), func(_ context.Context) (any, error) {
		panic("engine blew up")
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, taskErr := h.Result()
	var coordErr *api.CoordError
	if !errors.As(taskErr, &coordErr) {
		t.Fatalf("expected CoordError, got %T: %v", taskErr, taskErr)
	}
	if coordErr.Type != api.ErrorTypeEngineCrash {
		t.Errorf("expected engine_crash, got %s", coordErr.Type)
	}

	// The worker survived the panic and still serves tasks.
	h2, err := p.Submit(context.Background(), func(_ context.Context) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("submit after panic failed: %v", err)
	}
	if res, err := h2.Result(); err != nil || res != 42 {
		t.Fatalf("pool unusable after panic: res=%v err=%v", res, err)
	}

	if got := p.State().ActiveWorkers; got < 2 {
		t.Errorf("panic must not kill workers, active=%d", got)
	}
}

// A burst of 40 tasks against min=4/max=32 scales the pool up within a
// single autoscale interval and never past max.
func TestPool_ScalesUpUnderBurst(t *testing.T) {
	p := newTestPool(t, Config{
		MinWorkers: 4,
		MaxWorkers: 32,
		QueueLimit: 64,
		Interval:   5 * time.Millisecond,
	})

	if got := p.State().ActiveWorkers; got != 4 {
		t.Fatalf("expected 4 initial workers, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	release := make(chan struct{})
	var wg sync.WaitGroup
	handles := make([]*Handle, 0, 40)
	for i := 0; i < 40; i++ {
		h, err := p.Submit(context.Background(), func(_ context.Context) (any, error) {
			<-release
			return nil, nil
		})
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		handles = append(handles, h)
	}

	// Watch the bounds while the pool reacts to the burst.
	stopWatch := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stopWatch:
				return
			default:
			}
			s := p.State()
			if s.ActiveWorkers < 4 || s.ActiveWorkers > 32 {
				t.Errorf("worker count %d left bounds [4, 32]", s.ActiveWorkers)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	waitFor(t, func() bool { return p.State().ActiveWorkers == 32 })

	close(release)
	for i, h := range handles {
		if _, err := h.Result(); err != nil {
			t.Errorf("task %d failed: %v", i, err)
		}
	}
	close(stopWatch)
	wg.Wait()
}

func TestPool_ScalesDownWhenIdle(t *testing.T) {
	p := newTestPool(t, Config{
		MinWorkers: 2,
		MaxWorkers: 16,
		QueueLimit: 32,
		Interval:   5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	release := make(chan struct{})
	for i := 0; i < 16; i++ {
		if _, err := p.Submit(context.Background(), func(_ context.Context) (any, error) {
			<-release
			return nil, nil
		}); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	waitFor(t, func() bool { return p.State().ActiveWorkers > 2 })

	close(release)

	// With nothing to do the pool drains back to min, never below.
	waitFor(t, func() bool { return p.State().ActiveWorkers == 2 })
	time.Sleep(20 * time.Millisecond)
	if got := p.State().ActiveWorkers; got != 2 {
		t.Errorf("pool must settle at min workers, got %d", got)
	}
}

func TestPool_CloseDrainsQueuedWork(t *testing.T) {
	p, err := New(Config{MinWorkers: 2, MaxWorkers: 4, QueueLimit: 16})
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}

	var mu sync.Mutex
	completed := 0
	handles := make([]*Handle, 0, 8)
	for i := 0; i < 8; i++ {
		h, err := p.Submit(context.Background(), func(_ context.Context) (any, error) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			completed++
			mu.Unlock()
			return nil, nil
		})
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		handles = append(handles, h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	mu.Lock()
	got := completed
	mu.Unlock()
	if got != 8 {
		t.Errorf("graceful close must drain the queue, completed %d of 8", got)
	}
	for i, h := range handles {
		if _, err := h.Result(); err != nil {
			t.Errorf("drained task %d failed: %v", i, err)
		}
	}

	if _, err := p.Submit(context.Background(), func(_ context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("submit after close must fail with ErrPoolClosed, got %v", err)
	}
	if err := p.Close(ctx); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("double close must report ErrPoolClosed, got %v", err)
	}
}

func TestPool_CloseForceCancelsAfterDeadline(t *testing.T) {
	p, err := New(Config{MinWorkers: 1, MaxWorkers: 1, QueueLimit: 4})
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}

	h, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done() // honors cancellation, otherwise runs forever
		return nil, ctx.Err()
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitFor(t, func() bool { return p.busy.Load() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Close(ctx); err == nil {
		t.Fatal("close past the drain deadline must report an error")
	}

	if _, taskErr := h.Result(); taskErr == nil {
		t.Error("force-cancelled task should observe its context error")
	}
}

func TestNew_RejectsInvalidBounds(t *testing.T) {
	if _, err := New(Config{MinWorkers: 8, MaxWorkers: 2}); err == nil {
		t.Fatal("min > max must be rejected")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met within deadline")
		case <-time.After(time.Millisecond):
		}
	}
}
