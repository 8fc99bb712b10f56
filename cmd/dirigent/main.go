// Command dirigent runs the engine coordination service: a provider
// fallback router, a bounded worker pool, latency-budgeted recall, and
// candidate generation behind one task API.
//
// Configuration is loaded from a YAML file (see pkg/config for the
// discovery order) with DIRIGENT_* environment overrides.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/config"
	"github.com/dirigent-dev/dirigent/pkg/coordinator"
	"github.com/dirigent-dev/dirigent/pkg/creative"
	"github.com/dirigent-dev/dirigent/pkg/ledger"
	ledgermem "github.com/dirigent-dev/dirigent/pkg/ledger/memory"
	ledgerpg "github.com/dirigent-dev/dirigent/pkg/ledger/postgres"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/provider/health"
	"github.com/dirigent-dev/dirigent/pkg/provider/openaicompat"
	"github.com/dirigent-dev/dirigent/pkg/recall"
	recallmem "github.com/dirigent-dev/dirigent/pkg/recall/memory"
	recallqdrant "github.com/dirigent-dev/dirigent/pkg/recall/qdrant"
	"github.com/dirigent-dev/dirigent/pkg/workerpool"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("dirigent failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Usage ledger.
	var led ledger.Ledger
	switch cfg.Ledger.Type {
	case "postgres":
		pg, err := ledgerpg.New(ctx, ledgerpg.Config{
			DSN:            cfg.Ledger.Postgres.DSN,
			MaxConns:       cfg.Ledger.Postgres.MaxConns,
			MigrateOnStart: true,
		})
		if err != nil {
			return fmt.Errorf("creating postgres ledger: %w", err)
		}
		led = pg
		slog.Info("ledger enabled", "type", "postgres")
	default:
		led = ledgermem.New()
		slog.Info("ledger enabled", "type", "memory")
	}
	defer led.Close()

	// Provider chain.
	registry := provider.NewRegistry()
	defer registry.Close()
	for i, pc := range cfg.Providers {
		client, err := openaicompat.New(openaicompat.Config{
			Name:    pc.ID,
			BaseURL: pc.Endpoint,
			APIKey:  pc.APIKey,
			Model:   pc.Model,
			Timeout: pc.Timeout,
		})
		if err != nil {
			return fmt.Errorf("creating provider %s: %w", pc.ID, err)
		}

		desc := &provider.Descriptor{
			ID:            pc.ID,
			Kind:          provider.Kind(pc.Kind),
			Endpoint:      pc.Endpoint,
			Priority:      pc.EffectivePriority(i),
			CostPerKToken: pc.CostPerKToken,
			Timeout:       pc.Timeout,
		}
		if err := registry.Register(desc, client); err != nil {
			return fmt.Errorf("registering provider %s: %w", pc.ID, err)
		}
	}

	// Health monitor probes through the router; the probe closure is
	// bound before the router exists and resolves at call time.
	var router *provider.Router
	monitor := health.NewMonitor(health.Config{
		FailureThreshold:   cfg.Health.FailureThreshold,
		UnhealthyThreshold: cfg.Health.UnhealthyThreshold,
		RecoveryProbes:     cfg.Health.RecoveryProbes,
		ProbeInterval:      cfg.Health.ProbeInterval,
	}, func(ctx context.Context, providerID string) error {
		return router.Probe(ctx, providerID)
	})
	for _, id := range registry.IDs() {
		monitor.Track(id)
	}
	router = provider.NewRouter(registry, monitor, led, slog.Default())
	go monitor.Run(ctx)

	// Worker pool.
	pool, err := workerpool.New(workerpool.Config{
		MinWorkers:         cfg.Pool.MinWorkers,
		MaxWorkers:         cfg.Pool.MaxWorkers,
		QueueLimit:         cfg.Pool.QueueLimit,
		ScaleUpThreshold:   cfg.Pool.ScaleUpThreshold,
		ScaleDownThreshold: cfg.Pool.ScaleDownThreshold,
		Interval:           cfg.Pool.ScaleInterval,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	go pool.Run(ctx)

	// Recall store.
	var backend recall.Backend
	switch cfg.Recall.Backend {
	case "qdrant":
		backend = recallqdrant.New(cfg.Recall.Qdrant.URL, cfg.Recall.Qdrant.Collection)
		slog.Info("recall enabled", "backend", "qdrant", "url", cfg.Recall.Qdrant.URL)
	default:
		backend = recallmem.New()
		slog.Info("recall enabled", "backend", "memory")
	}
	store := recall.NewStore(backend, cfg.Recall.LatencyBudget, slog.Default())

	// Candidate generator.
	generator := creative.NewGenerator(
		&creative.RouterSource{Router: router},
		creative.Weights{
			Novelty:     cfg.Creative.NoveltyWeight,
			Feasibility: cfg.Creative.FeasibilityWeight,
		},
		slog.Default(),
	)

	coord := coordinator.New(coordinator.Config{
		CoordinationTimeout: cfg.Coordination.Timeout,
		MergeReserve:        cfg.Coordination.MergeReserve,
		CreativeCount:       cfg.Creative.Count,
		CreativeTimeout:     cfg.Creative.GenerationTimeout,
	}, router, pool, store, generator, led)

	// HTTP surface.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tasks", handleSubmit(coord))
	mux.HandleFunc("DELETE /v1/tasks/{id}", handleCancel(coord))
	mux.HandleFunc("GET /v1/state", handleState(coord, pool, monitor))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dirigent starting", "port", cfg.Server.Port, "providers", registry.IDs())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown incomplete", "error", err)
		}
		if err := coord.Shutdown(shutdownCtx); err != nil {
			slog.Warn("coordinator drain incomplete", "error", err)
		}
		return pool.Close(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func handleSubmit(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var task api.Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			writeError(w, http.StatusBadRequest, api.NewInvalidTaskError("body", err.Error()))
			return
		}

		res, err := coord.Execute(r.Context(), &task)
		if err != nil {
			if errors.Is(err, coordinator.ErrShuttingDown) {
				writeError(w, http.StatusServiceUnavailable,
					api.NewQueueFullError("coordinator shutting down"))
				return
			}
			var coordErr *api.CoordError
			if errors.As(err, &coordErr) {
				writeError(w, http.StatusBadRequest, coordErr)
				return
			}
			writeError(w, http.StatusInternalServerError,
				api.NewInvalidTaskError("", err.Error()))
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func handleCancel(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !coord.Cancel(id) {
			writeError(w, http.StatusNotFound,
				api.NewInvalidTaskError("id", fmt.Sprintf("no in-flight task %s", id)))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleState(coord *coordinator.Coordinator, pool *workerpool.Pool, monitor *health.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		totalCost, err := coord.TotalCost(r.Context())
		if err != nil {
			slog.Warn("reading total cost", "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"pool":       pool.State(),
			"providers":  monitor.Snapshot(),
			"in_flight":  coord.InFlight(),
			"total_cost": totalCost,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, coordErr *api.CoordError) {
	writeJSON(w, status, map[string]any{"error": coordErr})
}
