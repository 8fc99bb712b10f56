package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/ledger"
	"github.com/dirigent-dev/dirigent/pkg/observability"
	"github.com/dirigent-dev/dirigent/pkg/provider/health"
)

// HealthSource reports whether a provider may receive request traffic.
// Implemented by health.Monitor.
type HealthSource interface {
	State(providerID string) health.State
	ReportSuccess(providerID string)
	ReportFailure(providerID string)
}

// RouteResult is the outcome of one successful fallback walk.
type RouteResult struct {
	Response   *CompletionResponse
	ProviderID string
	Cost       float64
	Latency    time.Duration

	// Attempts lists the providers that failed before the successful one.
	Attempts []api.ProviderAttempt
}

// Router walks the registry in priority order to satisfy a completion
// request, recording usage and cost for every attempt.
type Router struct {
	registry *Registry
	monitor  HealthSource
	ledger   ledger.Ledger
	logger   *slog.Logger
}

// NewRouter creates a router over the given registry. The monitor and
// ledger must not be nil.
func NewRouter(registry *Registry, monitor HealthSource, l ledger.Ledger, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		monitor:  monitor,
		ledger:   l,
		logger:   logger,
	}
}

// RouteCompletion iterates providers ascending by priority, skipping
// any currently unhealthy. The first success wins and no further
// providers are tried. If the chain is exhausted, the aggregated
// per-attempt errors are returned as an *api.ExhaustedError.
func (r *Router) RouteCompletion(ctx context.Context, req *CompletionRequest) (*RouteResult, error) {
	var attempts []api.ProviderAttempt

	for _, entry := range r.registry.ListByPriority() {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, api.ProviderAttempt{
				ProviderID: entry.Descriptor.ID,
				Err:        "not attempted: " + err.Error(),
			})
			continue
		}

		if !r.monitor.State(entry.Descriptor.ID).Routable() {
			continue
		}

		resp, latency, err := r.attempt(ctx, entry, req)
		if err != nil {
			r.monitor.ReportFailure(entry.Descriptor.ID)
			r.recordUsage(ctx, entry, req, nil, latency, false)
			observability.ProviderCallDuration.
				WithLabelValues(entry.Descriptor.ID, "error").
				Observe(latency.Seconds())

			attempts = append(attempts, api.ProviderAttempt{
				ProviderID: entry.Descriptor.ID,
				Err:        err.Error(),
			})
			r.logger.Warn("provider attempt failed",
				"provider", entry.Descriptor.ID, "latency", latency, "error", err)
			continue
		}

		r.monitor.ReportSuccess(entry.Descriptor.ID)
		cost := r.recordUsage(ctx, entry, req, resp, latency, true)
		observability.ProviderCallDuration.
			WithLabelValues(entry.Descriptor.ID, "success").
			Observe(latency.Seconds())
		if len(attempts) > 0 {
			observability.ProviderFallbacksTotal.
				WithLabelValues(entry.Descriptor.ID).Inc()
		}

		return &RouteResult{
			Response:   resp,
			ProviderID: entry.Descriptor.ID,
			Cost:       cost,
			Latency:    latency,
			Attempts:   attempts,
		}, nil
	}

	return nil, api.NewAllProvidersExhausted(attempts)
}

// Probe issues a minimal completion against the named provider,
// bypassing the health gate. Used by the recovery prober.
func (r *Router) Probe(ctx context.Context, providerID string) error {
	entry, ok := r.registry.Get(providerID)
	if !ok {
		return api.NewProviderUnavailableError(providerID, "not registered")
	}

	callCtx, cancel := context.WithTimeout(ctx, entry.Descriptor.Timeout)
	defer cancel()

	_, err := entry.Provider.Complete(callCtx, &CompletionRequest{
		Prompt:    "ping",
		MaxTokens: 1,
	})
	return err
}

// attempt issues one bounded call against a provider.
func (r *Router) attempt(ctx context.Context, entry *Entry, req *CompletionRequest) (*CompletionResponse, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, entry.Descriptor.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := entry.Provider.Complete(callCtx, req)
	return resp, time.Since(start), err
}

// recordUsage appends one ledger record for the attempt and returns
// the computed cost. Ledger failures are logged, not propagated: a
// completed response is not discarded because accounting lagged.
func (r *Router) recordUsage(ctx context.Context, entry *Entry, req *CompletionRequest, resp *CompletionResponse, latency time.Duration, success bool) float64 {
	rec := &ledger.Record{
		ID:         api.NewUsageID(),
		ProviderID: entry.Descriptor.ID,
		Latency:    latency,
		Success:    success,
		Timestamp:  time.Now(),
	}

	var cost float64
	if resp != nil {
		rec.TokensIn = resp.TokensIn
		rec.TokensOut = resp.TokensOut
		if entry.Descriptor.Kind == KindCloud {
			cost = float64(resp.TokensIn+resp.TokensOut) / 1000 * entry.Descriptor.CostPerKToken
		}
		rec.Cost = cost
	}

	if err := r.ledger.Append(ctx, rec); err != nil {
		r.logger.Error("usage record append failed",
			"provider", entry.Descriptor.ID, "error", err)
	}
	if cost > 0 {
		observability.UsageCostTotal.WithLabelValues(entry.Descriptor.ID).Add(cost)
	}

	return cost
}
