package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/luckfunc/floorbot/internal/models"
)

const DefaultStateName = "tracked_collections"

const (
	schemaQuery = `
	CREATE TABLE IF NOT EXISTS tracker_state (
		name VARCHAR(255) PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`
	loadQuery = `SELECT data FROM tracker_state WHERE name = $1`
	saveQuery = `
	INSERT INTO tracker_state (name, data, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
)

// PostgresStore keeps the state as one JSONB row.
type PostgresStore struct {
	db   *sql.DB
	name string
}

func NewPostgresStore(ctx context.Context, dsn, name string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewPostgresStoreWithDB(db, name)
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStoreWithDB(db *sql.DB, name string) *PostgresStore {
	if name == "" {
		name = DefaultStateName
	}
	return &PostgresStore{db: db, name: name}
}

func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaQuery); err != nil {
		return fmt.Errorf("failed to create tracker_state table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (models.TrackedState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, loadQuery, s.name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TrackedState{}, nil
		}
		return nil, fmt.Errorf("failed to load tracked state: %w", err)
	}
	return decodeState(data)
}

func (s *PostgresStore) Save(ctx context.Context, state models.TrackedState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	// pq sends []byte as bytea, which JSONB rejects.
	if _, err := s.db.ExecContext(ctx, saveQuery, s.name, string(data)); err != nil {
		return fmt.Errorf("failed to save tracked state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
