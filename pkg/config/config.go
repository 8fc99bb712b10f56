// Package config provides unified configuration for the dirigent
// coordinator.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (DIRIGENT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the dirigent coordinator.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     []ProviderConfig    `yaml:"providers"`
	Pool          PoolConfig          `yaml:"pool"`
	Recall        RecallConfig        `yaml:"recall"`
	Creative      CreativeConfig      `yaml:"creative"`
	Coordination  CoordinationConfig  `yaml:"coordination"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Health        HealthConfig        `yaml:"health"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// ProviderConfig describes one completion backend in the fallback
// chain. Lower priority values are tried first.
type ProviderConfig struct {
	ID            string        `yaml:"id"`             // required, unique
	Kind          string        `yaml:"kind"`           // "local" or "cloud"
	Endpoint      string        `yaml:"endpoint"`       // required
	Model         string        `yaml:"model"`          // optional default model
	APIKey        string        `yaml:"api_key"`        // optional
	APIKeyFile    string        `yaml:"api_key_file"`   // _file variant for api_key
	Priority      *int          `yaml:"priority"`       // default: list position when omitted
	CostPerKToken float64       `yaml:"cost_per_ktok"`  // must be 0 for kind=local
	Timeout       time.Duration `yaml:"timeout"`        // default: 30s
}

// EffectivePriority returns the configured priority, or the provider's
// position in the chain when the field was omitted. An explicit 0 is
// kept as written.
func (p *ProviderConfig) EffectivePriority(position int) int {
	if p.Priority != nil {
		return *p.Priority
	}
	return position
}

// PoolConfig holds worker pool sizing.
type PoolConfig struct {
	MinWorkers         int           `yaml:"min_workers"`          // default: 2
	MaxWorkers         int           `yaml:"max_workers"`          // default: 16
	QueueLimit         int           `yaml:"queue_limit"`          // default: 64
	ScaleUpThreshold   float64       `yaml:"scale_up_threshold"`   // default: 0.8
	ScaleDownThreshold float64       `yaml:"scale_down_threshold"` // default: 0.3
	ScaleInterval      time.Duration `yaml:"scale_interval"`       // default: 10s
}

// RecallConfig holds memory retrieval settings.
type RecallConfig struct {
	Backend       string        `yaml:"backend"`        // "memory" or "qdrant", default: "memory"
	LatencyBudget time.Duration `yaml:"latency_budget"` // default: 100ms
	Qdrant        QdrantConfig  `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant backend settings.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"` // default: "memories"
}

// CreativeConfig holds candidate generation settings.
type CreativeConfig struct {
	Count             int           `yaml:"count"`              // default: 3
	GenerationTimeout time.Duration `yaml:"generation_timeout"` // default: 30s
	NoveltyWeight     float64       `yaml:"novelty_weight"`     // default: 0.5
	FeasibilityWeight float64       `yaml:"feasibility_weight"` // default: 0.5
}

// CoordinationConfig holds task-level timing.
type CoordinationConfig struct {
	Timeout      time.Duration `yaml:"timeout"`       // default: 60s
	MergeReserve time.Duration `yaml:"merge_reserve"` // default: 250ms
}

// LedgerConfig holds usage ledger settings.
type LedgerConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	DSNFile  string `yaml:"dsn_file"`  // _file variant for dsn
	MaxConns int32  `yaml:"max_conns"` // default: 25
}

// HealthConfig holds provider health monitor settings.
type HealthConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`   // default: 3
	UnhealthyThreshold int           `yaml:"unhealthy_threshold"` // default: 5
	RecoveryProbes     int           `yaml:"recovery_probes"`     // default: 2
	ProbeInterval      time.Duration `yaml:"probe_interval"`      // default: 15s
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Pool: PoolConfig{
			MinWorkers:         2,
			MaxWorkers:         16,
			QueueLimit:         64,
			ScaleUpThreshold:   0.8,
			ScaleDownThreshold: 0.3,
			ScaleInterval:      10 * time.Second,
		},
		Recall: RecallConfig{
			Backend:       "memory",
			LatencyBudget: 100 * time.Millisecond,
			Qdrant: QdrantConfig{
				Collection: "memories",
			},
		},
		Creative: CreativeConfig{
			Count:             3,
			GenerationTimeout: 30 * time.Second,
			NoveltyWeight:     0.5,
			FeasibilityWeight: 0.5,
		},
		Coordination: CoordinationConfig{
			Timeout:      60 * time.Second,
			MergeReserve: 250 * time.Millisecond,
		},
		Ledger: LedgerConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Health: HealthConfig{
			FailureThreshold:   3,
			UnhealthyThreshold: 5,
			RecoveryProbes:     2,
			ProbeInterval:      15 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
