package stores

import (
	"context"
	"database/sql"
	"time"
)

// OperationStatus represents the status of a mutating operation.
type OperationStatus string

const (
	OperationStatusRunning  OperationStatus = "running"
	OperationStatusSuccess  OperationStatus = "success"
	OperationStatusConflict OperationStatus = "conflict"
	OperationStatusFailed   OperationStatus = "failed"
)

// EventLevel represents the severity level of an event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Operation represents one mutating operation (install, uninstall,
// replay) in the journal.
type Operation struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Skills      string          `json:"skills"` // JSON array of skill names
	Status      OperationStatus `json:"status"`
	Conflicts   *string         `json:"conflicts,omitempty"` // JSON array of paths
	Error       *string         `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// OperationEvent represents an append-only log event scoped to an
// operation.
type OperationEvent struct {
	ID          int64      `json:"id"`
	OperationID *string    `json:"operation_id,omitempty"`
	Level       EventLevel `json:"level"`
	Message     string     `json:"message"`
	Timestamp   time.Time  `json:"timestamp"`
}

// ResolutionSave records that a conflict resolution was persisted to the
// cache, for later audit of where a resolution came from.
type ResolutionSave struct {
	ID        int64     `json:"id"`
	SkillsKey string    `json:"skills_key"` // sorted names joined with "+"
	Path      string    `json:"path"`
	Source    string    `json:"source"` // generated, maintainer, user
	SavedAt   time.Time `json:"saved_at"`
}

// Store defines the interface for the journal persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Operation journal
	CreateOperation(ctx context.Context, op *Operation) error
	GetOperation(ctx context.Context, id string) (*Operation, error)
	CompleteOperation(ctx context.Context, id string, status OperationStatus, conflicts, errMsg *string) error
	ListOperations(ctx context.Context, limit, offset int) ([]*Operation, error)

	// Event operations
	AppendEvent(ctx context.Context, event *OperationEvent) error
	GetEvents(ctx context.Context, operationID *string, level *EventLevel, limit, offset int) ([]*OperationEvent, error)

	// Resolution audit
	RecordResolutionSave(ctx context.Context, save *ResolutionSave) error
	ListResolutionSaves(ctx context.Context, skillsKey *string, limit, offset int) ([]*ResolutionSave, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
