package postgres

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/ledger"
)

func init() {
	// Configure testcontainers to use podman when no docker socket is set.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestLedger starts a PostgreSQL container and returns a connected
// Ledger. Tests are skipped if no container runtime is available.
func setupTestLedger(t *testing.T) *Ledger {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("dirigent_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	l, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		l.Close()
	})

	return l
}

func TestLedger_AppendListTotal(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)

	recs := []*ledger.Record{
		{ID: api.NewUsageID(), ProviderID: "local-ollama", TokensIn: 120, TokensOut: 80, Cost: 0, Latency: 90 * time.Millisecond, Success: true, Timestamp: base},
		{ID: api.NewUsageID(), ProviderID: "cloud-openai", TokensIn: 120, TokensOut: 95, Cost: 0.215, Latency: 410 * time.Millisecond, Success: true, Timestamp: base.Add(time.Second)},
		{ID: api.NewUsageID(), ProviderID: "cloud-openai", TokensIn: 120, TokensOut: 0, Cost: 0, Latency: 5 * time.Second, Success: false, Timestamp: base.Add(2 * time.Second)},
	}
	for _, rec := range recs {
		require.NoError(t, l.Append(ctx, rec))
	}

	all, err := l.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, recs[0].ID, all[0].ID, "records should list oldest first")
	assert.Equal(t, 90*time.Millisecond, all[0].Latency)

	cloud, err := l.List(ctx, ledger.Filter{ProviderID: "cloud-openai", SuccessOnly: true})
	require.NoError(t, err)
	require.Len(t, cloud, 1)
	assert.Equal(t, 0.215, cloud[0].Cost)

	total, err := l.TotalCost(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 0.215, total)

	localTotal, err := l.TotalCost(ctx, ledger.Filter{ProviderID: "local-ollama"})
	require.NoError(t, err)
	assert.Zero(t, localTotal, "all-local usage must cost nothing")
}

func TestLedger_DuplicateIDConflict(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	rec := &ledger.Record{
		ID:         api.NewUsageID(),
		ProviderID: "local-ollama",
		Success:    true,
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, l.Append(ctx, rec))
	assert.ErrorIs(t, l.Append(ctx, rec), ledger.ErrConflict)
}

func TestLedger_HealthCheck(t *testing.T) {
	l := setupTestLedger(t)
	assert.NoError(t, l.HealthCheck(context.Background()))
}
