package coordinator

import (
	"context"
	"sync"
)

// inFlightRegistry maps task IDs to their cancel functions so a task
// can be cancelled explicitly while its engines are still running.
//
// All methods are safe for concurrent access.
type inFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

func newInFlightRegistry() *inFlightRegistry {
	return &inFlightRegistry{entries: make(map[string]context.CancelFunc)}
}

func (r *inFlightRegistry) register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = cancel
}

// cancel cancels a task by ID. Returns false when the ID is unknown,
// either already finished or never started.
func (r *inFlightRegistry) cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, id)
	return true
}

// remove drops a finished task without cancelling it.
func (r *inFlightRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// cancelAll cancels everything still in flight.
func (r *inFlightRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cancel := range r.entries {
		cancel()
		delete(r.entries, id)
	}
}

func (r *inFlightRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
