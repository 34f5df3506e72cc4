package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"operations", "operation_events", "resolution_saves"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestOperationCRUD tests operation journal CRUD operations
func TestOperationCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	// Create
	op := &Operation{
		ID:        "op-001",
		Kind:      "install",
		Skills:    `["telegram"]`,
		Status:    OperationStatusRunning,
		StartedAt: now,
	}

	if err := store.CreateOperation(ctx, op); err != nil {
		t.Fatalf("failed to create operation: %v", err)
	}

	// Read
	retrieved, err := store.GetOperation(ctx, op.ID)
	if err != nil {
		t.Fatalf("failed to get operation: %v", err)
	}

	if retrieved.ID != op.ID {
		t.Errorf("expected ID %s, got %s", op.ID, retrieved.ID)
	}
	if retrieved.Kind != op.Kind {
		t.Errorf("expected Kind %s, got %s", op.Kind, retrieved.Kind)
	}
	if retrieved.Status != op.Status {
		t.Errorf("expected Status %s, got %s", op.Status, retrieved.Status)
	}

	// Complete
	errMsg := "replay halted on merge conflicts"
	conflicts := `["src/config.ts"]`
	if err := store.CompleteOperation(ctx, op.ID, OperationStatusConflict, &conflicts, &errMsg); err != nil {
		t.Fatalf("failed to complete operation: %v", err)
	}

	updated, err := store.GetOperation(ctx, op.ID)
	if err != nil {
		t.Fatalf("failed to get updated operation: %v", err)
	}

	if updated.Status != OperationStatusConflict {
		t.Errorf("expected Status %s, got %s", OperationStatusConflict, updated.Status)
	}
	if updated.Error == nil || *updated.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, updated.Error)
	}
	if updated.Conflicts == nil || *updated.Conflicts != conflicts {
		t.Errorf("expected Conflicts %s, got %v", conflicts, updated.Conflicts)
	}
	if updated.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// List
	ops, err := store.ListOperations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list operations: %v", err)
	}
	if len(ops) != 1 {
		t.Errorf("expected 1 operation, got %d", len(ops))
	}
}

// TestCompleteOperationNotFound tests completing a missing operation
func TestCompleteOperationNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	err := store.CompleteOperation(ctx, "missing", OperationStatusSuccess, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing operation")
	}
}

// TestListOperationsOrder tests newest-first ordering and pagination
func TestListOperationsOrder(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"op-a", "op-b", "op-c"} {
		op := &Operation{
			ID:        id,
			Kind:      "replay",
			Skills:    `[]`,
			Status:    OperationStatusSuccess,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateOperation(ctx, op); err != nil {
			t.Fatalf("failed to create operation %s: %v", id, err)
		}
	}

	ops, err := store.ListOperations(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list operations: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(ops))
	}
	if ops[0].ID != "op-c" {
		t.Errorf("expected newest operation first, got %s", ops[0].ID)
	}

	ops, err = store.ListOperations(ctx, 2, 2)
	if err != nil {
		t.Fatalf("failed to list second page: %v", err)
	}
	if len(ops) != 1 || ops[0].ID != "op-a" {
		t.Errorf("expected oldest operation on second page, got %+v", ops)
	}
}

// TestEventAppendAndFilter tests event logging and filtered retrieval
func TestEventAppendAndFilter(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	op := &Operation{
		ID:        "op-events",
		Kind:      "uninstall",
		Skills:    `["discord"]`,
		Status:    OperationStatusRunning,
		StartedAt: now,
	}
	if err := store.CreateOperation(ctx, op); err != nil {
		t.Fatalf("failed to create operation: %v", err)
	}

	opID := op.ID
	events := []*OperationEvent{
		{OperationID: &opID, Level: EventLevelInfo, Message: "backup created", Timestamp: now},
		{OperationID: &opID, Level: EventLevelWarning, Message: "custom patch skipped", Timestamp: now.Add(time.Second)},
		{OperationID: nil, Level: EventLevelInfo, Message: "unscoped event", Timestamp: now.Add(2 * time.Second)},
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if e.ID == 0 {
			t.Error("expected auto-generated event ID")
		}
	}

	// Filter by operation
	scoped, err := store.GetEvents(ctx, &opID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(scoped) != 2 {
		t.Errorf("expected 2 scoped events, got %d", len(scoped))
	}

	// Filter by level
	level := EventLevelWarning
	warnings, err := store.GetEvents(ctx, &opID, &level, 10, 0)
	if err != nil {
		t.Fatalf("failed to get warning events: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Message != "custom patch skipped" {
		t.Errorf("unexpected warning events: %+v", warnings)
	}

	// No filters
	all, err := store.GetEvents(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get all events: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events, got %d", len(all))
	}
}

// TestResolutionSaves tests resolution-save audit records
func TestResolutionSaves(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	saves := []*ResolutionSave{
		{SkillsKey: "discord+telegram", Path: "src/config.ts", Source: "generated", SavedAt: now},
		{SkillsKey: "discord+telegram", Path: "src/index.ts", Source: "generated", SavedAt: now.Add(time.Second)},
		{SkillsKey: "telegram", Path: "src/config.ts", Source: "maintainer", SavedAt: now.Add(2 * time.Second)},
	}
	for _, s := range saves {
		if err := store.RecordResolutionSave(ctx, s); err != nil {
			t.Fatalf("failed to record resolution save: %v", err)
		}
	}

	key := "discord+telegram"
	matched, err := store.ListResolutionSaves(ctx, &key, 10, 0)
	if err != nil {
		t.Fatalf("failed to list resolution saves: %v", err)
	}
	if len(matched) != 2 {
		t.Errorf("expected 2 saves for key, got %d", len(matched))
	}

	all, err := store.ListResolutionSaves(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list all resolution saves: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 saves, got %d", len(all))
	}
}

// TestJournalAdapter tests the engine-facing journal wrapper
func TestJournalAdapter(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	journal := NewJournal(store)

	if err := journal.BeginOperation(ctx, "op-j1", "install", []string{"telegram", "discord"}); err != nil {
		t.Fatalf("failed to begin operation: %v", err)
	}

	op, err := store.GetOperation(ctx, "op-j1")
	if err != nil {
		t.Fatalf("failed to get journaled operation: %v", err)
	}
	if op.Status != OperationStatusRunning {
		t.Errorf("expected running status, got %s", op.Status)
	}
	if op.Skills != `["telegram","discord"]` {
		t.Errorf("unexpected skills encoding: %s", op.Skills)
	}

	if err := journal.AppendEvent(ctx, "op-j1", "info", "backup created"); err != nil {
		t.Fatalf("failed to append journal event: %v", err)
	}

	if err := journal.CompleteOperation(ctx, "op-j1", "conflict", []string{"src/a.ts"}, "halted"); err != nil {
		t.Fatalf("failed to complete operation: %v", err)
	}

	op, err = store.GetOperation(ctx, "op-j1")
	if err != nil {
		t.Fatalf("failed to re-read operation: %v", err)
	}
	if op.Status != OperationStatusConflict {
		t.Errorf("expected conflict status, got %s", op.Status)
	}
	if op.Conflicts == nil || *op.Conflicts != `["src/a.ts"]` {
		t.Errorf("unexpected conflicts encoding: %v", op.Conflicts)
	}
	if op.Error == nil || *op.Error != "halted" {
		t.Errorf("unexpected error: %v", op.Error)
	}
}

// TestTransactionSupport tests basic transaction wrapping
func TestTransactionSupport(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO operations (id, kind, skills, status, started_at) VALUES (?, ?, ?, ?, ?)",
		"op-tx", "replay", "[]", "running", time.Now())
	if err != nil {
		t.Fatalf("failed to insert in transaction: %v", err)
	}

	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to roll back: %v", err)
	}

	if _, err := store.GetOperation(ctx, "op-tx"); err == nil {
		t.Error("expected rolled-back operation to be absent")
	}
}
