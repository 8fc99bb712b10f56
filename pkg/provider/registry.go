package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// TieBreak selects the ordering rule for providers that share the same
// priority.
type TieBreak int

const (
	// TieBreakInsertion orders equal-priority providers by
	// registration order. This is the default.
	TieBreakInsertion TieBreak = iota

	// TieBreakID orders equal-priority providers lexicographically by ID.
	TieBreakID
)

// Entry pairs a descriptor with its provider instance.
type Entry struct {
	Descriptor *Descriptor
	Provider   Provider

	seq int // registration order, for tie-breaking
}

// Registry is the ordered catalogue of providers. Descriptor order is
// a total order defining resolution preference.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entries  []*Entry
	byID     map[string]*Entry
	tieBreak TieBreak
	nextSeq  int
}

// NewRegistry creates an empty registry with insertion-order tie-breaking.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Entry),
	}
}

// SetTieBreak configures the equal-priority ordering rule. Must be
// called before registration settles; re-sorting applies immediately.
func (r *Registry) SetTieBreak(tb TieBreak) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tieBreak = tb
	r.sortLocked()
}

// Register adds a provider under the given descriptor.
func (r *Registry) Register(desc *Descriptor, p Provider) error {
	if desc == nil || desc.ID == "" {
		return fmt.Errorf("registry: descriptor with ID is required")
	}
	if p == nil {
		return fmt.Errorf("registry: provider must not be nil")
	}
	if desc.Kind != KindLocal && desc.Kind != KindCloud {
		return fmt.Errorf("registry: unknown provider kind %q", desc.Kind)
	}
	if desc.Kind == KindLocal && desc.CostPerKToken != 0 {
		return fmt.Errorf("registry: local provider %q must have zero cost", desc.ID)
	}
	if desc.Timeout <= 0 {
		desc.Timeout = 30 * time.Second
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[desc.ID]; exists {
		return fmt.Errorf("registry: provider %q already registered", desc.ID)
	}

	e := &Entry{Descriptor: desc, Provider: p, seq: r.nextSeq}
	r.nextSeq++
	r.entries = append(r.entries, e)
	r.byID[desc.ID] = e
	r.sortLocked()
	return nil
}

// ListByPriority returns the entries ascending by priority. Ties are
// broken by the configured tie-break rule. The returned slice is a
// copy; entries themselves are shared.
func (r *Registry) ListByPriority() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Get returns the entry for the given provider ID.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

// IDs returns all registered provider IDs in priority order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e.Descriptor.ID)
	}
	return ids
}

// Close closes every registered provider, returning the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, e := range r.entries {
		if err := e.Provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sortLocked re-sorts entries. Must be called with r.mu held.
func (r *Registry) sortLocked() {
	tb := r.tieBreak
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		if a.Descriptor.Priority != b.Descriptor.Priority {
			return a.Descriptor.Priority < b.Descriptor.Priority
		}
		if tb == TieBreakID {
			return a.Descriptor.ID < b.Descriptor.ID
		}
		return a.seq < b.seq
	})
}
