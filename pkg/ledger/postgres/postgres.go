// Package postgres provides a PostgreSQL implementation of
// ledger.Ledger. It uses pgx/v5 for connection pooling. The
// usage_records table is insert-only; nothing ever updates or deletes
// a row, which keeps the audit property of the ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dirigent-dev/dirigent/pkg/ledger"
)

// Ledger is a PostgreSQL-backed usage ledger.
type Ledger struct {
	pool *pgxpool.Pool
}

// Ensure Ledger implements ledger.Ledger at compile time.
var _ ledger.Ledger = (*Ledger)(nil)

// New creates a new PostgreSQL ledger with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	l := &Ledger{pool: pool}

	if cfg.MigrateOnStart {
		if err := l.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return l, nil
}

// Append writes one immutable record. The primary-key constraint on id
// enforces append-only conflict detection; per-provider serialization
// comes from the row-level insert itself.
func (l *Ledger) Append(ctx context.Context, rec *ledger.Record) error {
	if rec == nil || rec.ID == "" || rec.ProviderID == "" {
		return ledger.ErrInvalidRecord
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO usage_records (
			id, provider_id, tokens_in, tokens_out, cost, latency_ms, success, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		rec.ID, rec.ProviderID, rec.TokensIn, rec.TokensOut,
		rec.Cost, rec.Latency.Milliseconds(), rec.Success, rec.Timestamp,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ledger.ErrConflict
		}
		return fmt.Errorf("inserting usage record: %w", err)
	}

	return nil
}

// List returns records matching the filter, oldest first.
func (l *Ledger) List(ctx context.Context, f ledger.Filter) ([]*ledger.Record, error) {
	query := `
		SELECT id, provider_id, tokens_in, tokens_out, cost, latency_ms, success, ts
		FROM usage_records
		WHERE ($1 = '' OR provider_id = $1)
		  AND ($2::timestamptz IS NULL OR ts >= $2)
		  AND (NOT $3 OR success)
		ORDER BY ts ASC, id ASC
	`

	rows, err := l.pool.Query(ctx, query, f.ProviderID, nullTime(f.Since), f.SuccessOnly)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Record
	for rows.Next() {
		var rec ledger.Record
		var latencyMs int64
		if err := rows.Scan(
			&rec.ID, &rec.ProviderID, &rec.TokensIn, &rec.TokensOut,
			&rec.Cost, &latencyMs, &rec.Success, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		rec.Latency = time.Duration(latencyMs) * time.Millisecond
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage records: %w", err)
	}

	return out, nil
}

// TotalCost sums the cost of records matching the filter.
func (l *Ledger) TotalCost(ctx context.Context, f ledger.Filter) (float64, error) {
	var total float64
	err := l.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost), 0)
		FROM usage_records
		WHERE ($1 = '' OR provider_id = $1)
		  AND ($2::timestamptz IS NULL OR ts >= $2)
		  AND (NOT $3 OR success)
	`, f.ProviderID, nullTime(f.Since), f.SuccessOnly).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("summing usage records: %w", err)
	}
	return total, nil
}

// HealthCheck pings the database.
func (l *Ledger) HealthCheck(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// Close releases the connection pool.
func (l *Ledger) Close() error {
	l.pool.Close()
	return nil
}

// isDuplicateKey reports whether the error is a unique-constraint
// violation (SQLSTATE 23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
