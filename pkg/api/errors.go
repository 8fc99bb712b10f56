package api

import (
	"fmt"
	"strings"
)

// ErrorType classifies a coordination error.
type ErrorType string

const (
	// ErrorTypeProviderUnavailable marks a single provider failure.
	// Recoverable via fallback; never surfaced to callers on its own.
	ErrorTypeProviderUnavailable ErrorType = "provider_unavailable"

	// ErrorTypeAllProvidersExhausted means every provider in the chain
	// failed. Surfaced as a task-level failure.
	ErrorTypeAllProvidersExhausted ErrorType = "all_providers_exhausted"

	// ErrorTypeQueueFull is the worker pool backpressure signal.
	// Callers should retry later.
	ErrorTypeQueueFull ErrorType = "queue_full"

	// ErrorTypeRecallDegraded flags a partial or late recall result.
	// Non-fatal.
	ErrorTypeRecallDegraded ErrorType = "recall_degraded"

	// ErrorTypeGenerationPartial flags fewer creative candidates than
	// requested. Non-fatal.
	ErrorTypeGenerationPartial ErrorType = "generation_partial"

	// ErrorTypeCoordinationTimeout means the global deadline fired.
	// Partial results are still returned.
	ErrorTypeCoordinationTimeout ErrorType = "coordination_timeout"

	// ErrorTypeEngineCrash marks a panic inside an executing sub-task.
	// Isolated; the pool continues.
	ErrorTypeEngineCrash ErrorType = "engine_crash"

	// ErrorTypeInvalidTask marks a malformed inbound task.
	ErrorTypeInvalidTask ErrorType = "invalid_task"
)

// CoordError is a structured coordination error with type, code, param,
// and message.
type CoordError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *CoordError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Fatal reports whether the error escalates to task-level failure when
// it comes from a mandatory engine. Degraded-class errors never do.
func (e *CoordError) Fatal() bool {
	switch e.Type {
	case ErrorTypeRecallDegraded, ErrorTypeGenerationPartial:
		return false
	}
	return true
}

// NewInvalidTaskError creates a CoordError for malformed tasks.
func NewInvalidTaskError(param, message string) *CoordError {
	return &CoordError{
		Type:    ErrorTypeInvalidTask,
		Param:   param,
		Message: message,
	}
}

// NewProviderUnavailableError creates a CoordError for a single failed
// provider attempt.
func NewProviderUnavailableError(providerID, message string) *CoordError {
	return &CoordError{
		Type:    ErrorTypeProviderUnavailable,
		Param:   providerID,
		Message: message,
	}
}

// NewQueueFullError creates a CoordError for worker-pool backpressure.
func NewQueueFullError(message string) *CoordError {
	return &CoordError{
		Type:    ErrorTypeQueueFull,
		Message: message,
	}
}

// NewRecallDegradedError creates a CoordError flagging a partial or
// late recall result.
func NewRecallDegradedError(message string) *CoordError {
	return &CoordError{
		Type:    ErrorTypeRecallDegraded,
		Message: message,
	}
}

// NewGenerationPartialError creates a CoordError flagging a partial
// creative batch.
func NewGenerationPartialError(message string) *CoordError {
	return &CoordError{
		Type:    ErrorTypeGenerationPartial,
		Message: message,
	}
}

// NewCoordinationTimeoutError creates a CoordError for a fired global
// deadline.
func NewCoordinationTimeoutError(message string) *CoordError {
	return &CoordError{
		Type:    ErrorTypeCoordinationTimeout,
		Message: message,
	}
}

// NewEngineCrashError creates a CoordError for a recovered panic.
func NewEngineCrashError(message string) *CoordError {
	return &CoordError{
		Type:    ErrorTypeEngineCrash,
		Message: message,
	}
}

// ProviderAttempt records one failed provider attempt during a
// fallback walk.
type ProviderAttempt struct {
	ProviderID string `json:"provider_id"`
	Err        string `json:"error"`
}

// ExhaustedError aggregates the per-attempt errors of a fully failed
// provider chain. It unwraps to a CoordError of type
// all_providers_exhausted.
type ExhaustedError struct {
	Attempts []ProviderAttempt
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.ProviderID, a.Err))
	}
	return fmt.Sprintf("all providers exhausted: [%s]", strings.Join(parts, "; "))
}

// Coord converts the aggregate into its CoordError form.
func (e *ExhaustedError) Coord() *CoordError {
	return &CoordError{
		Type:    ErrorTypeAllProvidersExhausted,
		Message: e.Error(),
	}
}

// NewAllProvidersExhausted creates an ExhaustedError from the attempt log.
func NewAllProvidersExhausted(attempts []ProviderAttempt) *ExhaustedError {
	return &ExhaustedError{Attempts: attempts}
}
