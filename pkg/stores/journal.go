package stores

import (
	"context"
	"encoding/json"
	"time"
)

// Journal adapts a Store to the engine's journaling interface: begin and
// complete rows in the operations table, plus free-form events. All
// methods swallow nothing; the engine decides that journal failures are
// non-fatal.
type Journal struct {
	store Store
}

// NewJournal wraps a store as an operation journal.
func NewJournal(store Store) *Journal {
	return &Journal{store: store}
}

// BeginOperation records the start of a mutating operation.
func (j *Journal) BeginOperation(ctx context.Context, id, kind string, skills []string) error {
	encoded, err := json.Marshal(skills)
	if err != nil {
		return err
	}
	return j.store.CreateOperation(ctx, &Operation{
		ID:        id,
		Kind:      kind,
		Skills:    string(encoded),
		Status:    OperationStatusRunning,
		StartedAt: time.Now().UTC(),
	})
}

// CompleteOperation records the outcome of a mutating operation.
func (j *Journal) CompleteOperation(ctx context.Context, id, status string, conflicts []string, opErr string) error {
	var conflictsJSON *string
	if len(conflicts) > 0 {
		encoded, err := json.Marshal(conflicts)
		if err != nil {
			return err
		}
		s := string(encoded)
		conflictsJSON = &s
	}
	var errMsg *string
	if opErr != "" {
		errMsg = &opErr
	}
	return j.store.CompleteOperation(ctx, id, OperationStatus(status), conflictsJSON, errMsg)
}

// AppendEvent records a free-form event against an operation.
func (j *Journal) AppendEvent(ctx context.Context, opID, level, message string) error {
	var operationID *string
	if opID != "" {
		operationID = &opID
	}
	return j.store.AppendEvent(ctx, &OperationEvent{
		OperationID: operationID,
		Level:       EventLevel(level),
		Message:     message,
		Timestamp:   time.Now().UTC(),
	})
}
