// Package checkpoint snapshots and restores workflow execution state
// through the state store. A checkpoint is a full ExecutionState clone,
// including the bus shared context, stored under
// "{workflow_id}:{checkpoint_id}" alongside the live state blob.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rolewise/rolewise/pkg/bus"
	"github.com/rolewise/rolewise/pkg/events"
	"github.com/rolewise/rolewise/pkg/models"
	"github.com/rolewise/rolewise/pkg/statestore"
)

// ErrSchemaMismatch is returned when a stored snapshot was written by a
// newer engine than the one loading it.
var ErrSchemaMismatch = errors.New("checkpoint schema version is newer than supported")

// ErrCheckpointNotFound is returned when neither a checkpoint id nor a
// checkpoint name matches.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Manager creates and restores checkpoints. Create serializes under an
// exclusive lock so concurrent state mutators never produce a torn
// snapshot.
type Manager struct {
	store     statestore.Store
	bus       *bus.Bus
	publisher *events.Publisher
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus attaches the message bus so snapshots capture its shared
// context and restores replay it back.
func WithBus(b *bus.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithPublisher attaches the event publisher.
func WithPublisher(p *events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// NewManager creates a checkpoint manager over a state store.
func NewManager(store statestore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.With("component", "checkpoint"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key is the store key of one checkpoint snapshot.
func Key(workflowID, checkpointID string) string {
	return workflowID + ":" + checkpointID
}

// Create snapshots state under a fresh checkpoint id. The meta is
// appended to the live state's checkpoint list and to the snapshot
// itself, so the list survives a crash of the live blob.
func (m *Manager) Create(ctx context.Context, state *models.ExecutionState, name string) (models.CheckpointMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta := models.CheckpointMeta{
		ID:        uuid.NewString(),
		Name:      name,
		StageID:   state.CurrentStageID,
		CreatedAt: time.Now().UTC(),
	}

	snapshot := state.Clone()
	if m.bus != nil {
		snapshot.SharedContext = m.bus.ContextSnapshot()
	}
	snapshot.Checkpoints = append(snapshot.Checkpoints, meta)

	if err := m.store.Save(ctx, Key(state.WorkflowID, meta.ID), snapshot); err != nil {
		return models.CheckpointMeta{}, fmt.Errorf("failed to save checkpoint %q: %w", meta.ID, err)
	}

	state.Checkpoints = append(state.Checkpoints, meta)

	m.logger.Info("Checkpoint created",
		"workflow_id", state.WorkflowID, "checkpoint_id", meta.ID,
		"name", name, "stage_id", meta.StageID)
	_ = m.publisher.PublishCheckpointCreated(ctx, events.CheckpointCreatedPayload{
		CheckpointID: meta.ID,
		Name:         name,
		StageID:      meta.StageID,
	})
	return meta, nil
}

// List returns the checkpoints of a workflow ordered by creation time.
// It reads the snapshots themselves, so it works even when the live
// state blob is gone.
func (m *Manager) List(ctx context.Context, workflowID string) ([]models.CheckpointMeta, error) {
	keys, err := m.store.List(ctx, workflowID+":")
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for %q: %w", workflowID, err)
	}

	var metas []models.CheckpointMeta
	for _, key := range keys {
		id := strings.TrimPrefix(key, workflowID+":")
		snapshot, err := m.store.Load(ctx, key)
		if err != nil {
			m.logger.Warn("Skipping unreadable checkpoint", "key", key, "error", err)
			continue
		}
		for _, meta := range snapshot.Checkpoints {
			if meta.ID == id {
				metas = append(metas, meta)
				break
			}
		}
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.Before(metas[j].CreatedAt)
	})
	return metas, nil
}

// Restore loads a snapshot by checkpoint id or name and replays its
// shared context onto the bus. The returned state fully replaces the
// live one.
func (m *Manager) Restore(ctx context.Context, workflowID, ref string) (*models.ExecutionState, error) {
	id, err := m.resolve(ctx, workflowID, ref)
	if err != nil {
		return nil, err
	}

	snapshot, err := m.store.Load(ctx, Key(workflowID, id))
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %q: %w", id, err)
	}
	if snapshot.SchemaVersion > models.StateSchemaVersion {
		return nil, fmt.Errorf("%w: got %d, support up to %d",
			ErrSchemaMismatch, snapshot.SchemaVersion, models.StateSchemaVersion)
	}

	if m.bus != nil {
		m.bus.RestoreContext(snapshot.SharedContext)
	}

	m.logger.Info("Checkpoint restored",
		"workflow_id", workflowID, "checkpoint_id", id,
		"stage_id", snapshot.CurrentStageID)
	return snapshot, nil
}

// Delete removes a checkpoint snapshot by id or name.
func (m *Manager) Delete(ctx context.Context, workflowID, ref string) error {
	id, err := m.resolve(ctx, workflowID, ref)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, Key(workflowID, id)); err != nil {
		return fmt.Errorf("failed to delete checkpoint %q: %w", id, err)
	}
	return nil
}

// resolve maps a checkpoint reference to an id. Ids match directly;
// otherwise the reference is treated as a name and the newest
// checkpoint with that name wins.
func (m *Manager) resolve(ctx context.Context, workflowID, ref string) (string, error) {
	if _, err := m.store.Load(ctx, Key(workflowID, ref)); err == nil {
		return ref, nil
	}

	metas, err := m.List(ctx, workflowID)
	if err != nil {
		return "", err
	}
	for i := len(metas) - 1; i >= 0; i-- {
		if metas[i].Name == ref {
			return metas[i].ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrCheckpointNotFound, ref)
}
