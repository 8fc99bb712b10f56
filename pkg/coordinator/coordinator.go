package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/creative"
	"github.com/dirigent-dev/dirigent/pkg/ledger"
	"github.com/dirigent-dev/dirigent/pkg/observability"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/recall"
	"github.com/dirigent-dev/dirigent/pkg/workerpool"
)

// ErrShuttingDown is returned by Execute once Shutdown has begun.
var ErrShuttingDown = errors.New("coordinator shutting down")

// Config holds coordination timing.
type Config struct {
	// CoordinationTimeout bounds a whole task when it carries no
	// deadline of its own (default: 60s).
	CoordinationTimeout time.Duration

	// MergeReserve is carved out of the global budget before engines
	// are dispatched so merging never races the deadline (default: 250ms).
	MergeReserve time.Duration

	// CreativeCount is the candidate batch size used when a creative
	// spec does not set one (default: 3).
	CreativeCount int

	// CreativeTimeout caps one generation batch. The remaining task
	// budget still applies when it is shorter (default: 30s).
	CreativeTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.CoordinationTimeout <= 0 {
		c.CoordinationTimeout = 60 * time.Second
	}
	if c.MergeReserve <= 0 {
		c.MergeReserve = 250 * time.Millisecond
	}
	if c.CreativeCount <= 0 {
		c.CreativeCount = 3
	}
	if c.CreativeTimeout <= 0 {
		c.CreativeTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Coordinator dispatches tasks to engines and merges their results.
type Coordinator struct {
	cfg       Config
	router    *provider.Router
	pool      *workerpool.Pool
	recall    *recall.Store
	generator *creative.Generator
	ledger    ledger.Ledger

	inflight *inFlightRegistry
	closed   atomic.Bool
	wg       sync.WaitGroup
}

func New(cfg Config, router *provider.Router, pool *workerpool.Pool, store *recall.Store, generator *creative.Generator, led ledger.Ledger) *Coordinator {
	cfg.defaults()
	return &Coordinator{
		cfg:       cfg,
		router:    router,
		pool:      pool,
		recall:    store,
		generator: generator,
		ledger:    led,
		inflight:  newInFlightRegistry(),
	}
}

// invocation is one engine dispatch within a task.
type invocation struct {
	engine    api.EngineName
	mandatory bool
	run       func(ctx context.Context) *api.EngineResult
}

// Execute runs one task to a result. The error return is only used
// for tasks that never start (invalid, or arriving during shutdown);
// every started task yields a CoordinationResult, even on timeout.
func (c *Coordinator) Execute(ctx context.Context, task *api.Task) (*api.CoordinationResult, error) {
	if c.closed.Load() {
		return nil, ErrShuttingDown
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = api.NewTaskID()
	}

	c.wg.Add(1)
	defer c.wg.Done()

	start := time.Now()
	status := api.TaskStatus("")
	status = c.advance(task.ID, status, api.TaskStatusCreated)

	deadline := start.Add(c.cfg.CoordinationTimeout)
	if !task.Deadline.IsZero() && task.Deadline.Before(deadline) {
		deadline = task.Deadline
	}
	globalCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	c.inflight.register(task.ID, cancel)
	defer c.inflight.remove(task.ID)

	status = c.advance(task.ID, status, api.TaskStatusDispatching)

	invocations := c.plan(task)
	subBudget := time.Until(deadline) - c.cfg.MergeReserve
	if subBudget <= 0 {
		subBudget = time.Millisecond
	}

	type outcome struct {
		res *api.EngineResult
		// expired marks an engine that failed because its slice of the
		// global budget ran out, which counts as a coordination timeout.
		expired bool
	}
	results := make(chan outcome, len(invocations))
	for _, inv := range invocations {
		go func() {
			engCtx, engCancel := context.WithTimeout(globalCtx, subBudget)
			defer engCancel()
			engStart := time.Now()
			r := inv.run(engCtx)
			r.Engine = inv.engine
			r.Latency = time.Since(engStart)
			results <- outcome{
				res:     r,
				expired: r.Err != nil && errors.Is(engCtx.Err(), context.DeadlineExceeded),
			}
		}()
	}

	status = c.advance(task.ID, status, api.TaskStatusAwaitingEngines)

	engines := make(map[api.EngineName]*api.EngineResult, len(invocations))
	timedOut := false
join:
	for len(engines) < len(invocations) {
		select {
		case out := <-results:
			engines[out.res.Engine] = out.res
			if out.expired {
				timedOut = true
			}
		case <-globalCtx.Done():
			timedOut = true
			break join
		}
	}

	// Pick up anything that finished while the deadline fired.
drain:
	for {
		select {
		case out := <-results:
			engines[out.res.Engine] = out.res
		default:
			break drain
		}
	}

	res := &api.CoordinationResult{
		TaskID:           task.ID,
		Engines:          engines,
		LatencyBreakdown: make(map[api.EngineName]time.Duration, len(engines)),
	}
	for name, er := range engines {
		res.LatencyBreakdown[name] = er.Latency
		if er.Err != nil {
			res.Errors = append(res.Errors, er.Err)
		}
		if er.Completion != nil {
			res.ProviderUsed = er.Completion.ProviderID
			res.CostIncurred += er.Completion.Cost
		}
	}

	if timedOut {
		status = c.advance(task.ID, status, api.TaskStatusTimedOut)
		res.Errors = append(res.Errors, api.NewCoordinationTimeoutError(
			fmt.Sprintf("deadline exceeded after %v", time.Since(start).Round(time.Millisecond))))
	} else {
		status = c.advance(task.ID, status, api.TaskStatusMerging)
		status = c.advance(task.ID, status, merge(invocations, engines))
	}
	res.Status = status
	res.TotalLatency = time.Since(start)

	observability.CoordinationDuration.WithLabelValues(string(task.Kind), string(status)).
		Observe(res.TotalLatency.Seconds())
	c.cfg.Logger.Info("task coordinated",
		"task", task.ID, "kind", task.Kind, "status", status,
		"latency", res.TotalLatency, "cost", res.CostIncurred)

	return res, nil
}

// merge derives the terminal status from engine outcomes: any failed
// mandatory engine fails the task; failed or partial optional engines
// degrade it.
func merge(invocations []invocation, engines map[api.EngineName]*api.EngineResult) api.TaskStatus {
	degraded := false
	for _, inv := range invocations {
		er, ok := engines[inv.engine]
		if !ok {
			if inv.mandatory {
				return api.TaskStatusFailed
			}
			degraded = true
			continue
		}
		if er.Err != nil {
			if inv.mandatory && er.Err.Fatal() {
				return api.TaskStatusFailed
			}
			degraded = true
			continue
		}
		if er.Recall != nil && er.Recall.Degraded {
			degraded = true
		}
		if er.Creative != nil && er.Creative.Partial {
			degraded = true
		}
		if er.Parallel != nil {
			for _, sub := range er.Parallel.Outputs {
				if sub.Err != "" {
					degraded = true
				}
			}
		}
	}
	if degraded {
		return api.TaskStatusDegraded
	}
	return api.TaskStatusCompleted
}

// Cancel cancels an in-flight task. Returns false for unknown IDs.
func (c *Coordinator) Cancel(taskID string) bool {
	return c.inflight.cancel(taskID)
}

// InFlight returns the number of tasks currently executing.
func (c *Coordinator) InFlight() int {
	return c.inflight.len()
}

// TotalCost reports accumulated spend from the usage ledger.
func (c *Coordinator) TotalCost(ctx context.Context) (float64, error) {
	return c.ledger.TotalCost(ctx, ledger.Filter{})
}

// Shutdown stops intake and waits for in-flight tasks until the drain
// deadline, then force-cancels the remainder.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrShuttingDown
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.inflight.cancelAll()
		<-done
		return ctx.Err()
	}
}

// plan maps a task kind to its engine invocations.
func (c *Coordinator) plan(task *api.Task) []invocation {
	switch task.Kind {
	case api.TaskKindCompletion:
		return []invocation{c.routerInvocation(task.Completion, true)}
	case api.TaskKindRecall:
		return []invocation{c.recallInvocation(task.Recall, true)}
	case api.TaskKindParallel:
		return []invocation{c.poolInvocation(task.Parallel, task.PriorityHint)}
	case api.TaskKindCreative:
		return []invocation{c.creativeInvocation(task.Creative, true)}
	case api.TaskKindComposite:
		invs := []invocation{c.routerInvocation(&task.Composite.Completion, true)}
		if task.Composite.Recall != nil {
			invs = append(invs, c.recallInvocation(task.Composite.Recall, false))
		}
		if task.Composite.Creative != nil {
			invs = append(invs, c.creativeInvocation(task.Composite.Creative, false))
		}
		return invs
	}
	return nil
}

func (c *Coordinator) routerInvocation(spec *api.CompletionSpec, mandatory bool) invocation {
	return invocation{
		engine:    api.EngineRouter,
		mandatory: mandatory,
		run: func(ctx context.Context) *api.EngineResult {
			route, err := c.router.RouteCompletion(ctx, &provider.CompletionRequest{
				Model:     spec.Model,
				Prompt:    spec.Prompt,
				MaxTokens: spec.MaxTokens,
			})
			if err != nil {
				return &api.EngineResult{Err: toCoordError(err)}
			}
			return &api.EngineResult{Completion: &api.CompletionResult{
				Text:       route.Response.Text,
				ProviderID: route.ProviderID,
				Model:      route.Response.Model,
				TokensIn:   route.Response.TokensIn,
				TokensOut:  route.Response.TokensOut,
				Cost:       route.Cost,
			}}
		},
	}
}

func (c *Coordinator) recallInvocation(spec *api.RecallSpec, mandatory bool) invocation {
	return invocation{
		engine:    api.EngineRecall,
		mandatory: mandatory,
		run: func(ctx context.Context) *api.EngineResult {
			res, err := c.recall.Query(ctx, recall.Query{
				Key:    spec.Key,
				Vector: spec.Vector,
				TopK:   spec.TopK,
			})
			if err != nil {
				return &api.EngineResult{Err: toCoordError(err)}
			}
			er := &api.EngineResult{Recall: res}
			if res.Degraded {
				er.Err = api.NewRecallDegradedError("recall answered past its latency budget")
			}
			return er
		},
	}
}

func (c *Coordinator) poolInvocation(spec *api.ParallelSpec, priorityHint int) invocation {
	// A hinted task may use the pool's reserved queue headroom.
	submit := c.pool.Submit
	if priorityHint > 0 {
		submit = c.pool.SubmitPriority
	}
	return invocation{
		engine:    api.EnginePool,
		mandatory: true,
		run: func(ctx context.Context) *api.EngineResult {
			handles := make([]*workerpool.Handle, len(spec.Prompts))
			outputs := make([]api.SubTaskResult, len(spec.Prompts))
			for i, prompt := range spec.Prompts {
				h, err := submit(ctx, func(taskCtx context.Context) (any, error) {
					route, err := c.router.RouteCompletion(taskCtx, &provider.CompletionRequest{Prompt: prompt})
					if err != nil {
						return nil, err
					}
					return route.Response.Text, nil
				})
				if err != nil {
					// Backpressure fails the whole batch up front.
					if errors.Is(err, workerpool.ErrQueueFull) {
						return &api.EngineResult{Err: api.NewQueueFullError(
							fmt.Sprintf("pool rejected sub-task %d", i))}
					}
					return &api.EngineResult{Err: toCoordError(err)}
				}
				handles[i] = h
			}

			for i, h := range handles {
				select {
				case <-h.Done():
					out, err := h.Result()
					outputs[i] = api.SubTaskResult{Index: i}
					if err != nil {
						outputs[i].Err = err.Error()
					} else if text, ok := out.(string); ok {
						outputs[i].Output = text
					}
				case <-ctx.Done():
					outputs[i] = api.SubTaskResult{Index: i, Err: ctx.Err().Error()}
				}
			}
			return &api.EngineResult{Parallel: &api.ParallelResult{Outputs: outputs}}
		},
	}
}

func (c *Coordinator) creativeInvocation(spec *api.CreativeSpec, mandatory bool) invocation {
	return invocation{
		engine:    api.EngineGenerator,
		mandatory: mandatory,
		run: func(ctx context.Context) *api.EngineResult {
			count := spec.Count
			if count <= 0 {
				count = c.cfg.CreativeCount
			}
			timeout := c.cfg.CreativeTimeout
			if d, ok := ctx.Deadline(); ok {
				if remaining := time.Until(d); remaining < timeout {
					timeout = remaining
				}
			}
			res, err := c.generator.Generate(ctx, spec.Prompt, count, timeout)
			if err != nil {
				return &api.EngineResult{Err: toCoordError(err)}
			}
			er := &api.EngineResult{Creative: res}
			if res.Partial {
				er.Err = api.NewGenerationPartialError("generation timed out with a partial batch")
			}
			return er
		},
	}
}

// advance applies one lifecycle transition. An invalid transition is a
// programming error; it is logged and the target status kept so the
// task still terminates.
func (c *Coordinator) advance(taskID string, from, to api.TaskStatus) api.TaskStatus {
	if err := api.ValidateTaskTransition(from, to); err != nil {
		c.cfg.Logger.Error("invalid task transition",
			"task", taskID, "from", from, "to", to, "error", err)
	}
	return to
}

func toCoordError(err error) *api.CoordError {
	var coordErr *api.CoordError
	if errors.As(err, &coordErr) {
		return coordErr
	}
	var exhausted *api.ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Coord()
	}
	return api.NewProviderUnavailableError("", err.Error())
}
