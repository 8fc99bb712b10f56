// Package memory provides an in-process recall backend with naive
// exact scoring. It is the default backend for single-node
// deployments and tests.
package memory

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/recall"
)

// entry is one stored item. seq is the insertion sequence number used
// to break score ties in favor of the most recent write.
type entry struct {
	id      string
	payload string
	vector  []float32
	seq     uint64
}

// Backend is a mutex-guarded in-memory store.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64
}

var _ recall.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{entries: make(map[string]*entry)}
}

// Upsert stores or replaces an item. Re-writing an ID refreshes its
// insertion sequence, so it wins score ties over older entries.
func (b *Backend) Upsert(id, payload string, vector []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	b.entries[id] = &entry{
		id:      id,
		payload: payload,
		vector:  append([]float32(nil), vector...),
		seq:     b.nextSeq,
	}
}

// Delete removes an item; deleting an unknown ID is a no-op.
func (b *Backend) Delete(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
}

// Len returns the number of stored items.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Search scores every stored entry against the query: cosine
// similarity when the query carries a vector, substring containment
// scoring otherwise. Results come back ordered by descending score
// with ties broken by most-recent insertion.
func (b *Backend) Search(ctx context.Context, q recall.Query) ([]api.RecallEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	scored := make([]*entry, 0, len(b.entries))
	scores := make(map[string]float64, len(b.entries))
	for _, e := range b.entries {
		var score float64
		if len(q.Vector) > 0 {
			score = cosine(q.Vector, e.vector)
		} else {
			score = keyScore(q.Key, e.id, e.payload)
		}
		if score <= 0 {
			continue
		}
		scored = append(scored, e)
		scores[e.id] = score
	}
	b.mu.RUnlock()

	// Newest first, so the stable score sort breaks ties by recency.
	out := make([]api.RecallEntry, 0, len(scored))
	for i := 0; i < len(scored); i++ {
		best := i
		for j := i + 1; j < len(scored); j++ {
			if scored[j].seq > scored[best].seq {
				best = j
			}
		}
		scored[i], scored[best] = scored[best], scored[i]
		out = append(out, api.RecallEntry{
			ID:      scored[i].id,
			Score:   scores[scored[i].id],
			Payload: scored[i].payload,
		})
	}
	return recall.Order(out, q.TopK), nil
}

// keyScore is the naive exact-match heuristic: 1.0 for an ID match,
// otherwise proportional containment of the key in the payload.
func keyScore(key, id, payload string) float64 {
	if key == "" {
		return 0
	}
	if key == id {
		return 1.0
	}
	k, p := strings.ToLower(key), strings.ToLower(payload)
	if !strings.Contains(p, k) {
		return 0
	}
	return float64(len(k)) / float64(len(p))
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
