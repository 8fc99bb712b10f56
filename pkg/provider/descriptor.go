package provider

import "time"

// Kind classifies a provider as a free local backend or a paid cloud
// backend. Local completions are recorded at zero cost.
type Kind string

const (
	KindLocal Kind = "local"
	KindCloud Kind = "cloud"
)

// Descriptor describes one registered provider. Descriptors are owned
// by the Registry; health state lives in the health monitor, keyed by
// the descriptor ID.
type Descriptor struct {
	// ID uniquely identifies the provider in the registry, the ledger,
	// and metrics.
	ID string

	// Kind is local or cloud.
	Kind Kind

	// Endpoint is the backend base URL, informational once the adapter
	// is constructed.
	Endpoint string

	// Priority orders the fallback chain; lower is preferred.
	Priority int

	// CostPerKToken is the price per 1000 tokens (input + output).
	// Zero for local providers.
	CostPerKToken float64

	// Timeout bounds each call to this provider.
	Timeout time.Duration
}
