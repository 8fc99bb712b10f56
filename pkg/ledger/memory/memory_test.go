package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/ledger"
)

func record(providerID string, cost float64, success bool) *ledger.Record {
	return &ledger.Record{
		ID:         api.NewUsageID(),
		ProviderID: providerID,
		TokensIn:   100,
		TokensOut:  50,
		Cost:       cost,
		Latency:    120 * time.Millisecond,
		Success:    success,
		Timestamp:  time.Now(),
	}
}

func TestLedger_AppendAndList(t *testing.T) {
	l := New()
	ctx := context.Background()

	if err := l.Append(ctx, record("local-ollama", 0, true)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := l.Append(ctx, record("cloud-openai", 0.42, true)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := l.Append(ctx, record("cloud-openai", 0.13, false)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	all, err := l.List(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	cloud, err := l.List(ctx, ledger.Filter{ProviderID: "cloud-openai"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cloud) != 2 {
		t.Fatalf("expected 2 cloud records, got %d", len(cloud))
	}

	ok, err := l.List(ctx, ledger.Filter{ProviderID: "cloud-openai", SuccessOnly: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(ok) != 1 {
		t.Fatalf("expected 1 successful cloud record, got %d", len(ok))
	}
}

func TestLedger_DuplicateID(t *testing.T) {
	l := New()
	ctx := context.Background()

	rec := record("local-ollama", 0, true)
	if err := l.Append(ctx, rec); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := l.Append(ctx, rec); !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate ID, got %v", err)
	}
}

func TestLedger_InvalidRecord(t *testing.T) {
	l := New()
	ctx := context.Background()

	if err := l.Append(ctx, nil); !errors.Is(err, ledger.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for nil, got %v", err)
	}
	if err := l.Append(ctx, &ledger.Record{ID: api.NewUsageID()}); !errors.Is(err, ledger.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord without provider, got %v", err)
	}
}

func TestLedger_RecordsImmutable(t *testing.T) {
	l := New()
	ctx := context.Background()

	rec := record("local-ollama", 0, true)
	if err := l.Append(ctx, rec); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// Mutating the caller's copy must not alter the ledger.
	rec.Cost = 999

	out, err := l.List(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if out[0].Cost != 0 {
		t.Fatalf("ledger record mutated through caller reference: cost=%v", out[0].Cost)
	}

	// Mutating a listed record must not alter the ledger either.
	out[0].Cost = 123
	again, _ := l.List(ctx, ledger.Filter{})
	if again[0].Cost != 0 {
		t.Fatalf("ledger record mutated through listed reference: cost=%v", again[0].Cost)
	}
}

func TestLedger_TotalCost(t *testing.T) {
	l := New()
	ctx := context.Background()

	// All-local run: cost must sum to zero.
	for i := 0; i < 5; i++ {
		if err := l.Append(ctx, record("local-ollama", 0, true)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	total, err := l.TotalCost(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("total failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("all-local run must cost 0, got %v", total)
	}

	// A cloud fallback shows up with cost > 0 attributed to its provider.
	if err := l.Append(ctx, record("cloud-openai", 0.5, true)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	total, _ = l.TotalCost(ctx, ledger.Filter{})
	if total <= 0 {
		t.Fatalf("cloud fallback must have cost > 0, got %v", total)
	}
	cloudTotal, _ := l.TotalCost(ctx, ledger.Filter{ProviderID: "cloud-openai"})
	if cloudTotal != 0.5 {
		t.Fatalf("cloud cost must be attributable to the cloud provider, got %v", cloudTotal)
	}
}

func TestLedger_ConcurrentAppends(t *testing.T) {
	l := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Append(ctx, record("local-ollama", 0, true))
			_ = l.Append(ctx, record("cloud-openai", 0.01, true))
		}()
	}
	wg.Wait()

	all, err := l.List(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 100 {
		t.Fatalf("expected 100 records, got %d", len(all))
	}
}
