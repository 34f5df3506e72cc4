package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/skillfuse/skillfuse/pkg/flock"
	"github.com/skillfuse/skillfuse/pkg/patch"
)

// Uninstall removes an applied skill by replaying everything else from
// base. Confirm acknowledges the data-loss warning when the skill carries
// a custom patch; without it the operation is rejected before any
// mutation.
func (o *Orchestrator) Uninstall(ctx context.Context, name string, confirm bool) *UninstallResult {
	opID := uuid.New().String()
	ctx, span := o.startSpan(ctx, opID, "uninstall")
	result := o.uninstall(ctx, opID, name, confirm)
	endSpan(span, result.Success, result.Error)
	return result
}

func (o *Orchestrator) uninstall(ctx context.Context, opID, name string, confirm bool) *UninstallResult {
	result := &UninstallResult{Skill: name}

	// Skills are baked into the base after a rebase and cannot be
	// cleanly subtracted.
	if o.State.RebasedAt != nil {
		result.Error = NewPreconditionError(
			fmt.Sprintf("cannot uninstall individual skills after rebase (rebased at %s)",
				o.State.RebasedAt.Format("2006-01-02"))).Error()
		return result
	}

	record := o.State.Find(name)
	if record == nil {
		result.Error = NewPreconditionError(fmt.Sprintf("skill %s is not applied", name)).Error()
		return result
	}

	if record.CustomPatch != "" && !confirm {
		desc := record.CustomPatchDescription
		if desc == "" {
			desc = record.CustomPatch
		}
		result.Error = NewPreconditionError(fmt.Sprintf(
			"skill %s carries a custom patch (%s) that will be lost; re-run with confirmation to proceed",
			name, desc)).Error()
		return result
	}

	lock, err := flock.Acquire(ctx, filepath.Join(o.MetaDir, LockFileName), o.LockWait)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = lock.Release() }()

	o.journalBegin(ctx, opID, "uninstall", []string{name})

	fail := func(status string, conflicts []string, err error, rollback func() error) *UninstallResult {
		if rollback != nil {
			if rerr := rollback(); rerr != nil {
				o.Logger.Error().Err(rerr).Msg("Backup restore failed")
			} else {
				result.RolledBack = true
			}
		}
		result.Error = err.Error()
		o.journalComplete(ctx, opID, "uninstall", status, conflicts, result.Error)
		if o.Metrics != nil {
			o.Metrics.RecordOperation("uninstall", false)
		}
		return result
	}

	scope, err := o.beginBackup(nil)
	if err != nil {
		return fail("failed", nil, err, nil)
	}

	// All remaining participants must be present before anything moves.
	remaining := make([]string, 0, len(o.State.AppliedSkills)-1)
	for _, n := range o.State.AppliedNames() {
		if n != name {
			remaining = append(remaining, n)
		}
	}
	replayList, err := o.loadSkills(remaining)
	if err != nil {
		return fail("failed", nil, err, scope.Rollback)
	}

	if err := o.resetExclusive(name, record.FileHashes, replayList); err != nil {
		return fail("failed", nil, err, scope.Rollback)
	}

	replayRes := o.Replay(ctx, replayList)
	result.Replay = replayRes
	if !replayRes.Success {
		err := NewInternalError("replay of remaining skills failed: "+replayRes.Error, nil)
		if len(replayRes.MergeConflicts) > 0 {
			err = NewConflictError("replay of remaining skills conflicted", replayRes.MergeConflicts)
		}
		return fail("failed", replayRes.MergeConflicts, err, scope.Rollback)
	}

	result.PatchResults, result.Warning = o.reapplyCustomPatches()

	// A previously passing skill must still pass after the removal.
	for _, rs := range replayList {
		if rs.Manifest.TestCommand == "" {
			continue
		}
		out, err := runShell(ctx, rs.Manifest.TestCommand, o.Root, o.TestTimeout)
		if err != nil {
			verr := NewVerificationError(fmt.Sprintf(
				"tests for remaining skill %s failed after uninstall: %s",
				rs.Manifest.Name, tail(out, 2048)), err)
			return fail("failed", nil, verr, scope.Rollback)
		}
		o.Logger.Debug().Str("skill", rs.Manifest.Name).Msg("Remaining skill tests passed")
	}

	o.State.Remove(name)
	if err := o.State.RefreshHashes(o.Root); err != nil {
		return fail("failed", nil, NewInternalError("failed to refresh state hashes", err), scope.Rollback)
	}
	if err := o.State.Save(o.StatePath); err != nil {
		return fail("failed", nil, NewInternalError("failed to persist state", err), scope.Rollback)
	}
	_ = scope.Commit()

	result.Success = true
	o.journalComplete(ctx, opID, "uninstall", "success", nil, "")
	if o.Metrics != nil {
		o.Metrics.RecordOperation("uninstall", true)
	}
	return result
}

// resetExclusive resets or deletes files only the removed skill touched.
// Shared files stay as-is; the replay resets them itself.
func (o *Orchestrator) resetExclusive(name string, touched map[string]string, remaining []ReplaySkill) error {
	shared := make(map[string]struct{})
	for _, p := range collectPaths(remaining) {
		shared[p] = struct{}{}
	}

	paths := make([]string, 0, len(touched))
	for p := range touched {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		if _, ok := shared[rel]; ok {
			continue
		}
		dst := filepath.Join(o.Root, filepath.FromSlash(rel))
		if o.Base.Has(rel) {
			if err := o.Base.Restore(rel, dst); err != nil {
				return NewInternalError(fmt.Sprintf("failed to reset %s to base", rel), err)
			}
			o.Logger.Debug().Str("path", rel).Str("skill", name).Msg("Reset exclusive file to base")
			continue
		}
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return NewInternalError(fmt.Sprintf("failed to remove %s", rel), err)
		}
		o.Logger.Debug().Str("path", rel).Str("skill", name).Msg("Removed exclusively added file")
	}
	return nil
}

// reapplyCustomPatches re-applies standalone custom modifications after a
// replay. Individual failures are collected as a warning, never fatal.
func (o *Orchestrator) reapplyCustomPatches() ([]*patch.Result, string) {
	if len(o.State.CustomModifications) == 0 {
		return nil, ""
	}
	results := make([]*patch.Result, 0, len(o.State.CustomModifications))
	var failed []string
	for _, cm := range o.State.CustomModifications {
		res := patch.Apply(filepath.Join(o.MetaDir, cm.PatchFile), o.Root)
		results = append(results, res)
		if res.Err != "" || len(res.Failed) > 0 {
			failed = append(failed, cm.PatchFile)
			o.Logger.Warn().Str("patch", cm.PatchFile).Str("error", res.Err).
				Strs("failed_files", res.Failed).Msg("Custom patch did not re-apply cleanly")
		}
	}
	if len(failed) > 0 {
		return results, fmt.Sprintf("custom patches did not re-apply cleanly: %s", strings.Join(failed, ", "))
	}
	return results, ""
}
