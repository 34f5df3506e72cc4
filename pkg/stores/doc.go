// Package stores provides persistence layer implementations for Skillfuse.
// It includes SQLite-based storage with WAL mode, connection pooling,
// and CRUD operations for the operation journal, operation events, and
// resolution-save audit records.
package stores
