// Package memory provides an in-memory implementation of ledger.Ledger
// for testing and lightweight deployments. Records are lost when the
// process restarts.
package memory

import (
	"context"
	"sync"

	"github.com/dirigent-dev/dirigent/pkg/ledger"
)

// Ledger is an in-memory append-only usage ledger. Appends for the
// same provider are serialized by a per-provider mutex so records for
// one provider are never interleaved; reads return copies so appended
// records stay immutable.
type Ledger struct {
	mu      sync.RWMutex
	records []*ledger.Record
	byID    map[string]struct{}

	// provMu serializes appends per provider ID.
	provMuMu sync.Mutex
	provMu   map[string]*sync.Mutex
}

// Ensure Ledger implements ledger.Ledger at compile time.
var _ ledger.Ledger = (*Ledger)(nil)

// New creates a new empty in-memory ledger.
func New() *Ledger {
	return &Ledger{
		byID:   make(map[string]struct{}),
		provMu: make(map[string]*sync.Mutex),
	}
}

// Append writes one immutable record.
func (l *Ledger) Append(_ context.Context, rec *ledger.Record) error {
	if rec == nil || rec.ID == "" || rec.ProviderID == "" {
		return ledger.ErrInvalidRecord
	}

	pm := l.providerMutex(rec.ProviderID)
	pm.Lock()
	defer pm.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[rec.ID]; exists {
		return ledger.ErrConflict
	}

	// Store a copy so later mutation of the caller's record cannot
	// alter the ledger.
	cp := *rec
	l.records = append(l.records, &cp)
	l.byID[rec.ID] = struct{}{}
	return nil
}

// List returns records matching the filter, oldest first.
func (l *Ledger) List(_ context.Context, f ledger.Filter) ([]*ledger.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*ledger.Record
	for _, rec := range l.records {
		if !matches(rec, f) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// TotalCost sums the cost of records matching the filter.
func (l *Ledger) TotalCost(_ context.Context, f ledger.Filter) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, rec := range l.records {
		if matches(rec, f) {
			total += rec.Cost
		}
	}
	return total, nil
}

// HealthCheck always returns nil for the in-memory ledger.
func (l *Ledger) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory ledger.
func (l *Ledger) Close() error {
	return nil
}

func (l *Ledger) providerMutex(providerID string) *sync.Mutex {
	l.provMuMu.Lock()
	defer l.provMuMu.Unlock()
	m, ok := l.provMu[providerID]
	if !ok {
		m = &sync.Mutex{}
		l.provMu[providerID] = m
	}
	return m
}

func matches(rec *ledger.Record, f ledger.Filter) bool {
	if f.ProviderID != "" && rec.ProviderID != f.ProviderID {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if f.SuccessOnly && !rec.Success {
		return false
	}
	return true
}
