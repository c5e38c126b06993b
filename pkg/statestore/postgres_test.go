package statestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rolewise/rolewise/pkg/models"
)

// newTestStore creates a Postgres store with CI/local environment detection.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
func newTestStore(t *testing.T) *PostgresStore {
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}

	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr != "" {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
	} else {
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	store, err := NewPostgresStore(ctx, connStr)
	require.NoError(t, err)

	t.Cleanup(func() {
		// Shared CI databases persist between tests, so clear our rows.
		_, _ = store.db.ExecContext(ctx, `DELETE FROM workflow_states`)
		_ = store.Close()
	})

	return store
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := sampleState("wf-pg")
	require.NoError(t, store.Save(ctx, "wf-pg", state))

	loaded, err := store.Load(ctx, "wf-pg")
	require.NoError(t, err)
	assert.Equal(t, state.WorkflowID, loaded.WorkflowID)
	assert.Equal(t, state.CurrentStageID, loaded.CurrentStageID)
	assert.Equal(t, state.StageStatuses, loaded.StageStatuses)
	assert.Equal(t, state.SchemaVersion, loaded.SchemaVersion)
	require.Len(t, loaded.Tracker, 1)
	assert.Equal(t, "write_code", loaded.Tracker[0].SkillID)
}

func TestPostgresStoreUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "wf-pg", sampleState("wf-pg")))

	updated := sampleState("wf-pg")
	updated.CurrentStageID = "verify"
	require.NoError(t, store.Save(ctx, "wf-pg", updated))

	loaded, err := store.Load(ctx, "wf-pg")
	require.NoError(t, err)
	assert.Equal(t, "verify", loaded.CurrentStageID)
}

func TestPostgresStoreListPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"wf-a", "wf-a:cp-1", "wf-a:cp-2", "wf-b"} {
		require.NoError(t, store.Save(ctx, key, sampleState("wf-a")))
	}

	checkpoints, err := store.List(ctx, "wf-a:")
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-a:cp-1", "wf-a:cp-2"}, checkpoints)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-a", "wf-a:cp-1", "wf-a:cp-2", "wf-b"}, all)
}

func TestPostgresStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "wf-pg", sampleState("wf-pg")))
	require.NoError(t, store.Delete(ctx, "wf-pg"))

	_, err := store.Load(ctx, "wf-pg")
	assert.ErrorIs(t, err, models.ErrStateNotFound)

	err = store.Delete(ctx, "wf-pg")
	assert.ErrorIs(t, err, models.ErrStateNotFound)
}
