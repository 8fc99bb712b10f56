package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if len(c.Providers) == 0 {
		errs = append(errs, fmt.Errorf("at least one provider is required"))
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("providers[%d].id is required", i))
		} else if seen[p.ID] {
			errs = append(errs, fmt.Errorf("providers[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true

		if p.Endpoint == "" {
			errs = append(errs, fmt.Errorf("providers[%d].endpoint is required", i))
		}
		switch p.Kind {
		case "local", "cloud":
			// valid
		default:
			errs = append(errs, fmt.Errorf("providers[%d].kind must be \"local\" or \"cloud\", got %q", i, p.Kind))
		}
		if p.Kind == "local" && p.CostPerKToken != 0 {
			errs = append(errs, fmt.Errorf("providers[%d]: local providers must have cost_per_ktok 0, got %v", i, p.CostPerKToken))
		}
		if p.CostPerKToken < 0 {
			errs = append(errs, fmt.Errorf("providers[%d].cost_per_ktok must be >= 0, got %v", i, p.CostPerKToken))
		}
	}

	if c.Pool.MinWorkers < 1 || c.Pool.MaxWorkers < c.Pool.MinWorkers {
		errs = append(errs, fmt.Errorf("pool worker bounds [%d, %d] are invalid", c.Pool.MinWorkers, c.Pool.MaxWorkers))
	}
	if c.Pool.QueueLimit < 1 {
		errs = append(errs, fmt.Errorf("pool.queue_limit must be >= 1, got %d", c.Pool.QueueLimit))
	}

	switch c.Recall.Backend {
	case "memory", "qdrant":
		// valid
	default:
		errs = append(errs, fmt.Errorf("recall.backend must be \"memory\" or \"qdrant\", got %q", c.Recall.Backend))
	}
	if c.Recall.Backend == "qdrant" && c.Recall.Qdrant.URL == "" {
		errs = append(errs, fmt.Errorf("recall.qdrant.url is required when recall.backend is \"qdrant\""))
	}

	switch c.Ledger.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("ledger.type must be \"memory\" or \"postgres\", got %q", c.Ledger.Type))
	}
	if c.Ledger.Type == "postgres" {
		if c.Ledger.Postgres.DSN == "" && c.Ledger.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("ledger.postgres.dsn or ledger.postgres.dsn_file is required when ledger.type is \"postgres\""))
		}
	}

	if c.Coordination.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("coordination.timeout must be > 0, got %v", c.Coordination.Timeout))
	}
	if c.Coordination.MergeReserve >= c.Coordination.Timeout {
		errs = append(errs, fmt.Errorf("coordination.merge_reserve %v must be below coordination.timeout %v", c.Coordination.MergeReserve, c.Coordination.Timeout))
	}

	return errors.Join(errs...)
}
