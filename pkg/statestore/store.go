// Package statestore persists workflow execution state. The file store
// is the default; the Postgres store backs deployments that need state
// to survive the host. Both stores key records by state key: a bare
// workflow id for live state, "{workflow_id}:{checkpoint_id}" for
// checkpoints.
package statestore

import (
	"context"

	"github.com/rolewise/rolewise/pkg/models"
)

// Store persists execution state snapshots.
type Store interface {
	// Save writes a snapshot under the key, replacing any previous one.
	Save(ctx context.Context, key string, state *models.ExecutionState) error

	// Load returns the snapshot under the key, or
	// models.ErrStateNotFound.
	Load(ctx context.Context, key string) (*models.ExecutionState, error)

	// List returns all keys with the given prefix, sorted. An empty
	// prefix lists everything.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the snapshot under the key. Deleting a missing key
	// is models.ErrStateNotFound.
	Delete(ctx context.Context, key string) error

	// Close releases store resources.
	Close() error
}
