package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Designed for:
//   - Production workflows requiring durable, centralized checkpoints
//   - Distributed deployments where multiple workers share a database
//   - Audit trails over checkpoint history
//
// The store uses connection pooling and creates its schema on first use.
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a MySQL-backed checkpoint store.
//
// The DSN format is the go-sql-driver format:
//
//	user:password@tcp(localhost:3306)/workflows?parseTime=true
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("MYSQL_DSN")
//	st, err := store.NewMySQLStore[MyState](dsn)
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			workflow_id VARCHAR(255) NOT NULL,
			superstep INT NOT NULL,
			data JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_workflow (workflow_id),
			UNIQUE KEY unique_workflow_superstep (workflow_id, superstep)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

// Save upserts a checkpoint keyed by (workflow_id, superstep).
func (m *MySQLStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	if err := m.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	query := `
		INSERT INTO checkpoints (workflow_id, superstep, data)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			data = VALUES(data)
	`
	if _, err := m.db.ExecContext(ctx, query, cp.WorkflowID, cp.Superstep, data); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint for a specific superstep.
func (m *MySQLStore[S]) Load(ctx context.Context, workflowID string, superstep int) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if err := m.guard(); err != nil {
		return zero, err
	}

	query := `SELECT data FROM checkpoints WHERE workflow_id = ? AND superstep = ?`
	var data []byte
	err := m.db.QueryRowContext(ctx, query, workflowID, superstep).Scan(&data)
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
func (m *MySQLStore[S]) Latest(ctx context.Context, workflowID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if err := m.guard(); err != nil {
		return zero, err
	}

	query := `
		SELECT data FROM checkpoints
		WHERE workflow_id = ?
		ORDER BY superstep DESC
		LIMIT 1
	`
	var data []byte
	err := m.db.QueryRowContext(ctx, query, workflowID).Scan(&data)
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
func (m *MySQLStore[S]) List(ctx context.Context, workflowID string) ([]int, error) {
	if err := m.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT superstep FROM checkpoints
		WHERE workflow_id = ?
		ORDER BY superstep ASC
	`
	rows, err := m.db.QueryContext(ctx, query, workflowID)
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
func (m *MySQLStore[S]) Delete(ctx context.Context, workflowID string, superstep int) error {
	if err := m.guard(); err != nil {
		return err
	}

	query := `DELETE FROM checkpoints WHERE workflow_id = ? AND superstep = ?`
	if _, err := m.db.ExecContext(ctx, query, workflowID, superstep); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	if err := m.guard(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Close releases the connection pool. The store is unusable afterward.
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func (m *MySQLStore[S]) guard() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
