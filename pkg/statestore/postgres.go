package statestore

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/rolewise/rolewise/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore persists state as JSONB rows keyed by state key.
type PostgresStore struct {
	db     *stdsql.DB
	logger *slog.Logger
}

// NewPostgresStore connects, applies pending migrations, and returns a
// ready store. dsn is a pgx-compatible connection string or URL.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: slog.With("component", "statestore_postgres"),
	}, nil
}

// runMigrations applies embedded migrations. Files are embedded with
// go:embed so deployments need no external migration directory.
func runMigrations(db *stdsql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, state *models.ExecutionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_states (key, schema_version, state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET schema_version = EXCLUDED.schema_version,
		    state = EXCLUDED.state,
		    updated_at = now()`,
		key, state.SchemaVersion, data)
	if err != nil {
		return fmt.Errorf("failed to save state %q: %w", key, err)
	}

	s.logger.Debug("Saved state", "key", key, "bytes", len(data))
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) (*models.ExecutionState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM workflow_states WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrStateNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state %q: %w", key, err)
	}

	var state models.ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt state row for %q: %w", key, err)
	}
	return &state, nil
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM workflow_states WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list state keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_states WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete state %q: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", models.ErrStateNotFound, key)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
