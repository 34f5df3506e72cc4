package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillfuse/skillfuse/pkg/backup"
	"github.com/skillfuse/skillfuse/pkg/flock"
	"github.com/skillfuse/skillfuse/pkg/state"
	"github.com/skillfuse/skillfuse/pkg/telemetry"
)

// LockFileName is the mutual-exclusion lock inside the metadata dir.
const LockFileName = "lock"

// BackupsDirName holds transactional backups inside the metadata dir.
const BackupsDirName = "backups"

// Install applies a skill on top of the currently applied stack by
// replaying every applied skill plus the new one from base. When the
// replay conflicts, the tree is rolled back unless keepConflicts is set,
// in which case the conflict-marked files are left in place for manual
// resolution (and no state is recorded).
func (o *Orchestrator) Install(ctx context.Context, name string, keepConflicts bool) *InstallResult {
	opID := uuid.New().String()
	ctx, span := o.startSpan(ctx, opID, "install")
	result := o.install(ctx, opID, name, keepConflicts)
	endSpan(span, result.Success, result.Error)
	return result
}

func (o *Orchestrator) install(ctx context.Context, opID, name string, keepConflicts bool) *InstallResult {
	result := &InstallResult{Skill: name}

	rs, err := o.loadSkill(name)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Version = rs.Manifest.Version

	// Preconditions: rejected before any mutation.
	if o.State.Find(name) != nil {
		result.Error = NewPreconditionError(fmt.Sprintf("skill %s is already applied", name)).Error()
		return result
	}
	for _, dep := range rs.Manifest.Depends {
		if o.State.Find(dep) == nil {
			result.Error = NewMissingDependencyError(
				fmt.Sprintf("skill %s depends on %s which is not applied", name, dep), nil).Error()
			return result
		}
	}
	for _, other := range rs.Manifest.Conflicts {
		if o.State.Find(other) != nil {
			result.Error = NewPreconditionError(
				fmt.Sprintf("skill %s conflicts with applied skill %s", name, other)).Error()
			return result
		}
	}
	if o.Gate != nil {
		if err := o.Gate.Check(ctx, rs.Manifest, o.State); err != nil {
			result.Error = NewPreconditionError(fmt.Sprintf("policy rejected install: %v", err)).Error()
			return result
		}
	}

	lock, err := flock.Acquire(ctx, filepath.Join(o.MetaDir, LockFileName), o.LockWait)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = lock.Release() }()

	o.journalBegin(ctx, opID, "install", []string{name})

	replayList, err := o.loadSkills(o.State.AppliedNames())
	if err != nil {
		result.Error = err.Error()
		o.journalComplete(ctx, opID, "install", "failed", nil, result.Error)
		return result
	}
	replayList = append(replayList, rs)

	scope, err := o.beginBackup(replayList)
	if err != nil {
		result.Error = err.Error()
		o.journalComplete(ctx, opID, "install", "failed", nil, result.Error)
		return result
	}

	replayRes := o.Replay(ctx, replayList)
	result.Replay = replayRes

	switch {
	case replayRes.Success:
		if err := o.recordInstall(rs); err != nil {
			_ = scope.Rollback()
			result.RolledBack = true
			result.Error = err.Error()
			o.journalComplete(ctx, opID, "install", "failed", nil, result.Error)
			return result
		}
		_ = scope.Commit()
		result.Success = true
		o.journalComplete(ctx, opID, "install", "success", nil, "")
		if o.Metrics != nil {
			o.Metrics.RecordOperation("install", true)
		}

	case len(replayRes.MergeConflicts) > 0:
		if keepConflicts {
			result.ConflictsKept = true
			result.Error = NewConflictError("replay halted on merge conflicts", replayRes.MergeConflicts).Error()
			_ = scope.Commit()
		} else {
			_ = scope.Rollback()
			result.RolledBack = true
			result.Error = NewConflictError("replay halted on merge conflicts; tree restored", replayRes.MergeConflicts).Error()
		}
		o.journalComplete(ctx, opID, "install", "conflict", replayRes.MergeConflicts, result.Error)
		if o.Metrics != nil {
			o.Metrics.RecordOperation("install", false)
		}

	default:
		_ = scope.Rollback()
		result.RolledBack = true
		result.Error = replayRes.Error
		o.journalComplete(ctx, opID, "install", "failed", nil, result.Error)
		if o.Metrics != nil {
			o.Metrics.RecordOperation("install", false)
		}
	}
	return result
}

// ReplayAll re-applies every currently applied skill from base, repairing
// drift in the working tree. State hashes are refreshed on success.
func (o *Orchestrator) ReplayAll(ctx context.Context) *ReplayResult {
	opID := uuid.New().String()
	ctx, span := o.startSpan(ctx, opID, "replay")
	res := o.replayAll(ctx, opID)
	endSpan(span, res.Success, res.Error)
	return res
}

func (o *Orchestrator) replayAll(ctx context.Context, opID string) *ReplayResult {
	lock, err := flock.Acquire(ctx, filepath.Join(o.MetaDir, LockFileName), o.LockWait)
	if err != nil {
		return (&ReplayResult{PerSkill: map[string]SkillOutcome{}}).fail(err)
	}
	defer func() { _ = lock.Release() }()

	o.journalBegin(ctx, opID, "replay", o.State.AppliedNames())

	replayList, err := o.loadSkills(o.State.AppliedNames())
	if err != nil {
		res := (&ReplayResult{PerSkill: map[string]SkillOutcome{}}).fail(err)
		o.journalComplete(ctx, opID, "replay", "failed", nil, res.Error)
		return res
	}

	scope, err := o.beginBackup(replayList)
	if err != nil {
		res := (&ReplayResult{PerSkill: map[string]SkillOutcome{}}).fail(err)
		o.journalComplete(ctx, opID, "replay", "failed", nil, res.Error)
		return res
	}

	res := o.Replay(ctx, replayList)
	if !res.Success {
		_ = scope.Rollback()
		o.journalComplete(ctx, opID, "replay", "failed", res.MergeConflicts, res.Error)
		return res
	}

	if err := o.State.RefreshHashes(o.Root); err != nil {
		_ = scope.Rollback()
		o.journalComplete(ctx, opID, "replay", "failed", nil, err.Error())
		return res.fail(NewInternalError("failed to refresh state hashes", err))
	}
	if err := o.State.Save(o.StatePath); err != nil {
		_ = scope.Rollback()
		o.journalComplete(ctx, opID, "replay", "failed", nil, err.Error())
		return res.fail(NewInternalError("failed to persist state", err))
	}
	_ = scope.Commit()
	o.journalComplete(ctx, opID, "replay", "success", nil, "")
	return res
}

// beginBackup snapshots every path the replay list or the recorded state
// can touch.
func (o *Orchestrator) beginBackup(replayList []ReplaySkill) (*backupScope, error) {
	paths := collectPaths(replayList)
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
	}
	for _, p := range o.State.TouchedPaths() {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			paths = append(paths, p)
		}
	}
	// Structured targets mutate too.
	for _, p := range []string{packageManifestFile, envFile, servicesFile} {
		if _, ok := seen[p]; !ok {
			paths = append(paths, p)
		}
	}

	scope, err := backup.Begin(o.Root, filepath.Join(o.MetaDir, BackupsDirName), paths)
	if err != nil {
		return nil, NewInternalError("failed to snapshot files for rollback", err)
	}
	return scope, nil
}

// recordInstall appends the applied-skill record and persists state.
func (o *Orchestrator) recordInstall(rs ReplaySkill) error {
	hashes := make(map[string]string)
	for _, p := range rs.Manifest.TouchedPaths() {
		h, err := state.HashFile(filepath.Join(o.Root, filepath.FromSlash(p)))
		if err != nil {
			return NewInternalError(fmt.Sprintf("failed to hash %s", p), err)
		}
		hashes[p] = h
	}

	o.State.AppliedSkills = append(o.State.AppliedSkills, state.AppliedSkill{
		Name:       rs.Manifest.Name,
		Version:    rs.Manifest.Version,
		AppliedAt:  time.Now().UTC(),
		FileHashes: hashes,
	})

	// Earlier skills' files may have been re-merged during the replay.
	if err := o.State.RefreshHashes(o.Root); err != nil {
		return NewInternalError("failed to refresh state hashes", err)
	}
	if err := o.State.Save(o.StatePath); err != nil {
		return NewInternalError("failed to persist state", err)
	}
	return nil
}

// startSpan opens an operation span when a tracer is configured. Without
// one, the span already carried by the context is returned (a no-op span
// for an uninstrumented context) so callers can end it unconditionally.
func (o *Orchestrator) startSpan(ctx context.Context, opID, kind string) (context.Context, trace.Span) {
	if o.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.Tracer.StartOperationSpan(ctx, opID, kind)
}

func endSpan(span trace.Span, success bool, opErr string) {
	if success {
		telemetry.RecordSuccess(span)
	} else {
		telemetry.RecordError(span, errors.New(opErr))
	}
	span.End()
}

func (o *Orchestrator) journalBegin(ctx context.Context, id, kind string, skills []string) {
	if o.Events != nil {
		_ = o.Events.PublishOperationStarted(id, kind, skills)
	}
	if o.Metrics != nil {
		o.Metrics.RecordOperationStarted(kind)
	}
	if o.Journal == nil {
		return
	}
	if err := o.Journal.BeginOperation(ctx, id, kind, skills); err != nil {
		o.Logger.Warn().Err(err).Msg("Failed to journal operation start")
	}
}

func (o *Orchestrator) journalComplete(ctx context.Context, id, kind, status string, conflicts []string, opErr string) {
	if o.Events != nil {
		if status == "success" {
			_ = o.Events.PublishOperationCompleted(id, kind, 0)
		} else {
			_ = o.Events.PublishOperationFailed(id, kind, opErr)
		}
	}
	if o.Journal == nil {
		return
	}
	if err := o.Journal.CompleteOperation(ctx, id, status, conflicts, opErr); err != nil {
		o.Logger.Warn().Err(err).Msg("Failed to journal operation completion")
	}
}
