package ledger

import (
	"context"
	"time"
)

// Record is one provider attempt in the cost ledger. Immutable once
// appended.
type Record struct {
	ID         string        `json:"id"`
	ProviderID string        `json:"provider_id"`
	TokensIn   int           `json:"tokens_in"`
	TokensOut  int           `json:"tokens_out"`
	Cost       float64       `json:"cost"`
	Latency    time.Duration `json:"latency"`
	Success    bool          `json:"success"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Filter narrows List and TotalCost queries. Zero values match
// everything.
type Filter struct {
	ProviderID  string
	Since       time.Time
	SuccessOnly bool
}

// Ledger is the append-only usage store. Append calls for the same
// provider are serialized; implementations must never interleave
// partial writes.
type Ledger interface {
	// Append writes one immutable record. Returns ErrConflict if a
	// record with the same ID already exists.
	Append(ctx context.Context, rec *Record) error

	// List returns records matching the filter, oldest first.
	List(ctx context.Context, f Filter) ([]*Record, error)

	// TotalCost sums the cost of records matching the filter.
	TotalCost(ctx context.Context, f Filter) (float64, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backing resources.
	Close() error
}
