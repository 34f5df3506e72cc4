package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillfuse/skillfuse/pkg/backup"
	"github.com/skillfuse/skillfuse/pkg/merge"
	"github.com/skillfuse/skillfuse/pkg/patch"
	"github.com/skillfuse/skillfuse/pkg/resolution"
	"github.com/skillfuse/skillfuse/pkg/skill"
	"github.com/skillfuse/skillfuse/pkg/snapshot"
	"github.com/skillfuse/skillfuse/pkg/state"
	"github.com/skillfuse/skillfuse/pkg/telemetry"
)

// Gate vets a skill installation before any mutation. Implemented by the
// policy engine; a nil gate admits everything.
type Gate interface {
	Check(ctx context.Context, manifest *skill.Manifest, st *state.State) error
}

// Journal records operations and their outcomes for later inspection.
// Journal failures never fail the operation being journaled.
type Journal interface {
	BeginOperation(ctx context.Context, id, kind string, skills []string) error
	CompleteOperation(ctx context.Context, id, status string, conflicts []string, opErr string) error
	AppendEvent(ctx context.Context, opID, level, message string) error
}

// Orchestrator carries the per-installation context threaded through
// every operation: roots, loaded state, the base snapshot, the resolution
// cache, and the merge tool's replay memory. It is built once per
// invocation; no ambient globals.
type Orchestrator struct {
	// Root is the project working tree root.
	Root string

	// MetaDir is the installation metadata directory (lock, state,
	// backups, local resolutions).
	MetaDir string

	// SkillsDir holds skill package directories by name.
	SkillsDir string

	// StatePath is the state document location.
	StatePath string

	Base   *snapshot.Store
	Cache  *resolution.Cache
	Memory merge.ReplayMemory
	State  *state.State
	Hooks  *skill.HookRunner

	Gate    Gate
	Journal Journal

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
	Events  *telemetry.EventPublisher

	// PackageInstallCmd is the best-effort dependency install step run
	// after structured aggregation (argv form).
	PackageInstallCmd []string

	// InstallTimeout bounds the package-manager install subprocess.
	InstallTimeout time.Duration

	// TestTimeout bounds each skill test subprocess.
	TestTimeout time.Duration

	// LockWait bounds how long a second invocation waits for the lock.
	LockWait time.Duration
}

// ReplaySkill pairs a manifest with its package directory on disk.
type ReplaySkill struct {
	Manifest *skill.Manifest
	Dir      string
}

// SkillOutcome is the per-skill result of a replay.
type SkillOutcome struct {
	Success   bool     `json:"success"`
	Conflicts []string `json:"conflicts,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ReplayResult is the structured outcome of a replay. PerSkill only
// contains skills that were attempted: once a skill conflicts, later
// skills are never tried and stay absent.
type ReplayResult struct {
	Success bool `json:"success"`

	// PerSkill maps skill name to its outcome.
	PerSkill map[string]SkillOutcome `json:"per_skill"`

	// Attempted lists skills in the order they were attempted.
	Attempted []string `json:"attempted"`

	// MergeConflicts is the flattened list of conflicted paths.
	MergeConflicts []string `json:"merge_conflicts,omitempty"`

	// Error is the failure reason when the replay failed for a reason
	// other than merge conflicts.
	Error string `json:"error,omitempty"`
}

// Failed marks the result failed with a reason.
func (r *ReplayResult) fail(err error) *ReplayResult {
	r.Success = false
	r.Error = err.Error()
	return r
}

// InstallResult is the structured outcome of a skill installation.
type InstallResult struct {
	Success bool          `json:"success"`
	Skill   string        `json:"skill"`
	Version string        `json:"version,omitempty"`
	Replay  *ReplayResult `json:"replay,omitempty"`
	Error   string        `json:"error,omitempty"`

	// RolledBack reports whether the tree was restored from backup.
	RolledBack bool `json:"rolled_back,omitempty"`

	// ConflictsKept reports that the conflicted tree was left in place
	// for manual resolution instead of being rolled back.
	ConflictsKept bool `json:"conflicts_kept,omitempty"`
}

// UninstallResult is the structured outcome of a skill removal.
type UninstallResult struct {
	Success bool          `json:"success"`
	Skill   string        `json:"skill"`
	Replay  *ReplayResult `json:"replay,omitempty"`
	Error   string        `json:"error,omitempty"`

	RolledBack bool `json:"rolled_back,omitempty"`

	// PatchResults reports the best-effort custom patch re-applications.
	PatchResults []*patch.Result `json:"patch_results,omitempty"`

	// Warning carries non-fatal notes (failed custom patches, skipped
	// steps).
	Warning string `json:"warning,omitempty"`
}

// backupScope is a small alias so orchestration code reads as
// begin/rollback/commit.
type backupScope = backup.Backup
