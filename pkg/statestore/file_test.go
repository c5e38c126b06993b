package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolewise/rolewise/pkg/models"
)

func sampleState(workflowID string) *models.ExecutionState {
	state := models.NewExecutionState(workflowID)
	state.CurrentStageID = "implement"
	state.CurrentRoleID = "developer"
	state.CompletedStages = []string{"design"}
	state.StageStatuses["design"] = models.StageCompleted
	state.StageStatuses["implement"] = models.StageInProgress
	state.StageFindings["design"] = []string{"output analysis present"}
	state.ActiveAgents["developer-1"] = "developer"
	state.Tracker = []models.SkillExecution{{
		ID: "e1", SkillID: "write_code", Status: models.ExecutionSuccess,
		StartedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}}
	state.SharedContext = map[string]models.ContextEntry{
		"design": {Value: "v1", Owner: "architect-1",
			Timestamp: time.Date(2026, 8, 20, 10, 1, 0, 0, time.UTC)},
	}
	return state
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	state := sampleState("wf-1")
	require.NoError(t, store.Save(ctx, "wf-1", state))

	loaded, err := store.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
	assert.Equal(t, models.StateSchemaVersion, loaded.SchemaVersion)
}

func TestFileStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "wf-1", sampleState("wf-1")))

	updated := sampleState("wf-1")
	updated.CurrentStageID = "verify"
	require.NoError(t, store.Save(ctx, "wf-1", updated))

	loaded, err := store.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "verify", loaded.CurrentStageID)
}

func TestFileStoreList(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "wf-1", sampleState("wf-1")))
	require.NoError(t, store.Save(ctx, "wf-1:cp-a", sampleState("wf-1")))
	require.NoError(t, store.Save(ctx, "wf-1:cp-b", sampleState("wf-1")))
	require.NoError(t, store.Save(ctx, "wf-2", sampleState("wf-2")))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-1", "wf-1:cp-a", "wf-1:cp-b", "wf-2"}, all)

	checkpoints, err := store.List(ctx, "wf-1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-1:cp-a", "wf-1:cp-b"}, checkpoints)
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "wf-1", sampleState("wf-1")))
	require.NoError(t, store.Delete(ctx, "wf-1"))

	_, err = store.Load(ctx, "wf-1")
	assert.ErrorIs(t, err, models.ErrStateNotFound)

	err = store.Delete(ctx, "wf-1")
	assert.ErrorIs(t, err, models.ErrStateNotFound)
}

func TestFileStoreMissingKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrStateNotFound)
}
