package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// CreateOperation creates a new operation record
func (s *SQLiteStore) CreateOperation(ctx context.Context, op *Operation) error {
	query := `
		INSERT INTO operations (id, kind, skills, status, conflicts, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		op.ID,
		op.Kind,
		op.Skills,
		op.Status,
		op.Conflicts,
		op.Error,
		op.StartedAt,
		op.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// GetOperation retrieves an operation by ID
func (s *SQLiteStore) GetOperation(ctx context.Context, id string) (*Operation, error) {
	query := `
		SELECT id, kind, skills, status, conflicts, error, started_at, completed_at
		FROM operations
		WHERE id = ?
	`

	op := &Operation{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&op.ID,
		&op.Kind,
		&op.Skills,
		&op.Status,
		&op.Conflicts,
		&op.Error,
		&op.StartedAt,
		&op.CompletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("operation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return op, nil
}

// CompleteOperation finalizes an operation with its outcome
func (s *SQLiteStore) CompleteOperation(ctx context.Context, id string, status OperationStatus, conflicts, errMsg *string) error {
	query := `
		UPDATE operations
		SET status = ?, conflicts = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, status, conflicts, errMsg, &now, id)
	if err != nil {
		return fmt.Errorf("failed to complete operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("operation not found: %s", id)
	}

	return nil
}

// ListOperations lists operations with pagination, newest first
func (s *SQLiteStore) ListOperations(ctx context.Context, limit, offset int) ([]*Operation, error) {
	query := `
		SELECT id, kind, skills, status, conflicts, error, started_at, completed_at
		FROM operations
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*Operation{}
	for rows.Next() {
		op := &Operation{}
		err := rows.Scan(
			&op.ID,
			&op.Kind,
			&op.Skills,
			&op.Status,
			&op.Conflicts,
			&op.Error,
			&op.StartedAt,
			&op.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// AppendEvent appends a new event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *OperationEvent) error {
	query := `
		INSERT INTO operation_events (operation_id, level, message, timestamp)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.OperationID,
		event.Level,
		event.Message,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination
func (s *SQLiteStore) GetEvents(ctx context.Context, operationID *string, level *EventLevel, limit, offset int) ([]*OperationEvent, error) {
	query := `
		SELECT id, operation_id, level, message, timestamp
		FROM operation_events
		WHERE (? IS NULL OR operation_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, operationID, operationID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*OperationEvent{}
	for rows.Next() {
		event := &OperationEvent{}
		err := rows.Scan(
			&event.ID,
			&event.OperationID,
			&event.Level,
			&event.Message,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// RecordResolutionSave records that a conflict resolution was persisted
func (s *SQLiteStore) RecordResolutionSave(ctx context.Context, save *ResolutionSave) error {
	query := `
		INSERT INTO resolution_saves (skills_key, path, source, saved_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		save.SkillsKey,
		save.Path,
		save.Source,
		save.SavedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record resolution save: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get resolution save ID: %w", err)
	}

	save.ID = id
	return nil
}

// ListResolutionSaves lists resolution saves with optional key filter
func (s *SQLiteStore) ListResolutionSaves(ctx context.Context, skillsKey *string, limit, offset int) ([]*ResolutionSave, error) {
	query := `
		SELECT id, skills_key, path, source, saved_at
		FROM resolution_saves
		WHERE (? IS NULL OR skills_key = ?)
		ORDER BY saved_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, skillsKey, skillsKey, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolution saves: %w", err)
	}
	defer rows.Close()

	saves := []*ResolutionSave{}
	for rows.Next() {
		save := &ResolutionSave{}
		err := rows.Scan(
			&save.ID,
			&save.SkillsKey,
			&save.Path,
			&save.Source,
			&save.SavedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolution save: %w", err)
		}
		saves = append(saves, save)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolution saves: %w", err)
	}

	return saves, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
