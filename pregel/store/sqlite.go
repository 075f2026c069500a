package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// Checkpoints are stored as JSON blobs keyed by (workflow_id, superstep).
// Designed for:
//   - Single-node workflows that must survive process restarts
//   - Embedded deployments with no external database
//
// The store uses a single connection with WAL journaling and a busy
// timeout, which is the reliable configuration for the modernc driver
// under concurrent use.
type SQLiteStore[S any] struct {
	db     *sql.DB
	path   string
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a SQLite-backed checkpoint store at
// path. Use ":memory:" for an ephemeral database.
//
// Example:
//
//	st, err := store.NewSQLiteStore[MyState]("checkpoints.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// The modernc driver misbehaves with multiple writer connections.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id TEXT NOT NULL,
			superstep INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(workflow_id, superstep)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}

	index := `
		CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow
		ON checkpoints(workflow_id, superstep)
	`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create checkpoint index: %w", err)
	}
	return nil
}

// Save upserts a checkpoint keyed by (workflow_id, superstep).
func (s *SQLiteStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	if err := s.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	query := `
		INSERT INTO checkpoints (workflow_id, superstep, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workflow_id, superstep) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at
	`
	createdAt := cp.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, query, cp.WorkflowID, cp.Superstep, data, createdAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint for a specific superstep.
func (s *SQLiteStore[S]) Load(ctx context.Context, workflowID string, superstep int) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if err := s.guard(); err != nil {
		return zero, err
	}

	query := `SELECT data FROM checkpoints WHERE workflow_id = ? AND superstep = ?`
	var data []byte
	err := s.db.QueryRowContext(ctx, query, workflowID, superstep).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("workflow %s superstep %d: %w", workflowID, superstep, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var cp Checkpoint[S]
	if err := json.Unmarshal(data, &cp); err != nil {
		return zero, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Latest retrieves the checkpoint with the highest superstep.
func (s *SQLiteStore[S]) Latest(ctx context.Context, workflowID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if err := s.guard(); err != nil {
		return zero, err
	}

	query := `
		SELECT data FROM checkpoints
		WHERE workflow_id = ?
		ORDER BY superstep DESC
		LIMIT 1
	`
	var data []byte
	err := s.db.QueryRowContext(ctx, query, workflowID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}

	var cp Checkpoint[S]
	if err := json.Unmarshal(data, &cp); err != nil {
		return zero, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// List returns the stored supersteps in ascending order.
func (s *SQLiteStore[S]) List(ctx context.Context, workflowID string) ([]int, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT superstep FROM checkpoints
		WHERE workflow_id = ?
		ORDER BY superstep ASC
	`
	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var steps []int
	for rows.Next() {
		var step int
		if err := rows.Scan(&step); err != nil {
			return nil, fmt.Errorf("failed to scan superstep: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return steps, nil
}

// Delete removes one checkpoint. Missing rows are ignored.
func (s *SQLiteStore[S]) Delete(ctx context.Context, workflowID string, superstep int) error {
	if err := s.guard(); err != nil {
		return err
	}

	query := `DELETE FROM checkpoints WHERE workflow_id = ? AND superstep = ?`
	if _, err := s.db.ExecContext(ctx, query, workflowID, superstep); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string { return s.path }

// Close releases the database connection. The store is unusable afterward.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore[S]) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
