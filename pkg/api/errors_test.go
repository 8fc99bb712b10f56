package api

import (
	"strings"
	"testing"
)

func TestCoordError_Error(t *testing.T) {
	err := NewInvalidTaskError("kind", "unknown task kind")
	if got := err.Error(); !strings.Contains(got, "kind") || !strings.Contains(got, "invalid_task") {
		t.Errorf("unexpected error string: %q", got)
	}

	noParam := NewQueueFullError("queue limit reached")
	if got := noParam.Error(); strings.Contains(got, "param") {
		t.Errorf("error without param should not mention param: %q", got)
	}
}

func TestCoordError_Fatal(t *testing.T) {
	if NewRecallDegradedError("late").Fatal() {
		t.Error("recall_degraded must not be fatal")
	}
	if NewGenerationPartialError("3 of 5").Fatal() {
		t.Error("generation_partial must not be fatal")
	}
	if !NewEngineCrashError("panic: boom").Fatal() {
		t.Error("engine_crash must be fatal")
	}
}

func TestExhaustedError_Aggregates(t *testing.T) {
	err := NewAllProvidersExhausted([]ProviderAttempt{
		{ProviderID: "local-ollama", Err: "context deadline exceeded"},
		{ProviderID: "cloud-openai", Err: "502 from backend"},
	})

	msg := err.Error()
	if !strings.Contains(msg, "local-ollama") || !strings.Contains(msg, "cloud-openai") {
		t.Errorf("aggregate should name every attempted provider: %q", msg)
	}

	coord := err.Coord()
	if coord.Type != ErrorTypeAllProvidersExhausted {
		t.Errorf("expected all_providers_exhausted, got %s", coord.Type)
	}
}
