package provider

import "context"

// Provider abstracts a completion backend. The interface is
// protocol-agnostic: each adapter handles its own backend protocol
// internally.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "local-ollama").
	Name() string

	// Complete performs one completion call.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

// CompletionRequest is the backend-facing request, stripped of
// coordination and transport concerns.
type CompletionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// CompletionResponse is the backend's completion result.
type CompletionResponse struct {
	Text      string `json:"text"`
	Model     string `json:"model,omitempty"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
}
