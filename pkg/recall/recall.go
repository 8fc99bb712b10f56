package recall

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
)

// DefaultLatencyBudget applies when a query does not set its own.
const DefaultLatencyBudget = 100 * time.Millisecond

// Query describes one retrieval. Exactly one of Key or Vector drives
// the search; TopK limits the result size (default 5).
type Query struct {
	Key           string
	Vector        []float32
	TopK          int
	LatencyBudget time.Duration
}

// Backend performs the actual search. Implementations must honor
// context cancellation.
type Backend interface {
	Search(ctx context.Context, q Query) ([]api.RecallEntry, error)
}

// Store wraps a backend with latency-budget enforcement.
type Store struct {
	backend Backend
	budget  time.Duration
	logger  *slog.Logger
}

// NewStore creates a store. budget is the default latency budget used
// when a query does not carry its own; zero means DefaultLatencyBudget.
func NewStore(backend Backend, budget time.Duration, logger *slog.Logger) *Store {
	if budget <= 0 {
		budget = DefaultLatencyBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, budget: budget, logger: logger}
}

// Query runs the backend search under the latency budget. When the
// budget expires before the backend answers, the result carries
// Degraded=true and whatever entries were available (none, for a
// single-shot backend); the caller is never blocked past the budget.
func (s *Store) Query(ctx context.Context, q Query) (*api.RecallResult, error) {
	if q.TopK <= 0 {
		q.TopK = 5
	}
	budget := q.LatencyBudget
	if budget <= 0 {
		budget = s.budget
	}

	start := time.Now()
	searchCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		entries []api.RecallEntry
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		entries, err := s.backend.Search(searchCtx, q)
		done <- outcome{entries: entries, err: err}
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if searchCtx.Err() != nil {
				return s.degraded(start, budget), nil
			}
			return nil, out.err
		}
		return &api.RecallResult{
			Entries: Order(out.entries, q.TopK),
			Latency: time.Since(start),
		}, nil
	case <-timer.C:
		// Backend overran the budget; cancel it and answer degraded.
		return s.degraded(start, budget), nil
	case <-ctx.Done():
		// Caller cancellation is not a budget breach.
		return nil, ctx.Err()
	}
}

func (s *Store) degraded(start time.Time, budget time.Duration) *api.RecallResult {
	s.logger.Warn("recall budget exceeded", "budget", budget)
	return &api.RecallResult{
		Entries:  []api.RecallEntry{},
		Latency:  time.Since(start),
		Degraded: true,
	}
}

// Order sorts entries by descending score and truncates to topK.
// Backends append in insertion order, so a stable sort leaves
// score ties resolved by most-recent insertion when the backend
// emits newest entries first.
func Order(entries []api.RecallEntry, topK int) []api.RecallEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > topK {
		entries = entries[:topK]
	}
	return entries
}
