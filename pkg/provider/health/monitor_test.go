package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestMonitor(probe ProbeFunc) *Monitor {
	m := NewMonitor(Config{}, probe)
	m.Track("local-ollama")
	return m
}

func TestMonitor_DegradedAfterThreeFailures(t *testing.T) {
	m := newTestMonitor(nil)

	m.ReportFailure("local-ollama")
	m.ReportFailure("local-ollama")
	if got := m.State("local-ollama"); got != StateHealthy {
		t.Fatalf("two failures should leave provider healthy, got %s", got)
	}

	m.ReportFailure("local-ollama")
	if got := m.State("local-ollama"); got != StateDegraded {
		t.Fatalf("three consecutive failures should degrade, got %s", got)
	}
}

func TestMonitor_UnhealthyAfterFiveFailures(t *testing.T) {
	m := newTestMonitor(nil)

	for i := 0; i < 4; i++ {
		m.ReportFailure("local-ollama")
	}
	if got := m.State("local-ollama"); got != StateDegraded {
		t.Fatalf("four failures should be degraded, got %s", got)
	}

	m.ReportFailure("local-ollama")
	if got := m.State("local-ollama"); got != StateUnhealthy {
		t.Fatalf("five consecutive failures should be unhealthy, got %s", got)
	}
	if m.State("local-ollama").Routable() {
		t.Fatal("unhealthy provider must not be routable")
	}
}

func TestMonitor_SuccessResetsStreak(t *testing.T) {
	m := newTestMonitor(nil)

	m.ReportFailure("local-ollama")
	m.ReportFailure("local-ollama")
	m.ReportSuccess("local-ollama")
	m.ReportFailure("local-ollama")
	m.ReportFailure("local-ollama")

	if got := m.State("local-ollama"); got != StateHealthy {
		t.Fatalf("interleaved success should reset the failure streak, got %s", got)
	}
}

func TestMonitor_SuccessHealsDegraded(t *testing.T) {
	m := newTestMonitor(nil)

	for i := 0; i < 3; i++ {
		m.ReportFailure("local-ollama")
	}
	m.ReportSuccess("local-ollama")
	if got := m.State("local-ollama"); got != StateHealthy {
		t.Fatalf("request-path success should heal a degraded provider, got %s", got)
	}
}

func TestMonitor_RecoveryViaProbes(t *testing.T) {
	var mu sync.Mutex
	probeErr := errors.New("still down")

	m := NewMonitor(Config{
		ProbeInterval: 5 * time.Millisecond,
		ProbeTimeout:  50 * time.Millisecond,
	}, func(_ context.Context, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		return probeErr
	})
	m.Track("local-ollama")

	for i := 0; i < 5; i++ {
		m.ReportFailure("local-ollama")
	}
	if got := m.State("local-ollama"); got != StateUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// Failing probes keep it unhealthy.
	time.Sleep(30 * time.Millisecond)
	if got := m.State("local-ollama"); got != StateUnhealthy {
		t.Fatalf("failing probes must not recover the provider, got %s", got)
	}

	// Two consecutive successful probes recover it.
	mu.Lock()
	probeErr = nil
	mu.Unlock()

	deadline := time.After(2 * time.Second)
	for m.State("local-ollama") != StateHealthy {
		select {
		case <-deadline:
			t.Fatal("provider did not recover after successful probes")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestMonitor_ProbeFailureResetsProbeStreak(t *testing.T) {
	calls := 0
	var mu sync.Mutex

	// Alternate success/failure: one success is never enough with
	// RecoveryProbes=2, so the provider stays unhealthy.
	m := NewMonitor(Config{
		ProbeInterval: 5 * time.Millisecond,
		ProbeTimeout:  50 * time.Millisecond,
	}, func(_ context.Context, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls%2 == 1 {
			return nil
		}
		return errors.New("flaky")
	})
	m.Track("p")
	for i := 0; i < 5; i++ {
		m.ReportFailure("p")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	if got := m.State("p"); got != StateUnhealthy {
		t.Fatalf("alternating probes must not recover the provider, got %s", got)
	}
}

func TestMonitor_UnknownProviderIsHealthy(t *testing.T) {
	m := newTestMonitor(nil)
	if got := m.State("never-registered"); got != StateHealthy {
		t.Fatalf("unknown providers default to healthy, got %s", got)
	}
	// Reports for unknown providers are ignored, not panics.
	m.ReportFailure("never-registered")
	m.ReportSuccess("never-registered")
}

func TestMonitor_Snapshot(t *testing.T) {
	m := newTestMonitor(nil)
	m.Track("cloud-openai")
	for i := 0; i < 3; i++ {
		m.ReportFailure("cloud-openai")
	}

	snap := m.Snapshot()
	if snap["local-ollama"] != StateHealthy {
		t.Errorf("expected local-ollama healthy, got %s", snap["local-ollama"])
	}
	if snap["cloud-openai"] != StateDegraded {
		t.Errorf("expected cloud-openai degraded, got %s", snap["cloud-openai"])
	}
}
