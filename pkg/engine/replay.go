package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/skillfuse/skillfuse/pkg/merge"
	"github.com/skillfuse/skillfuse/pkg/skill"
)

// Replay resets every touched file to its base snapshot version and
// re-applies the ordered skill list from scratch. Both installation and
// uninstallation reduce to this; they differ only in which list is
// replayed and what cleanup precedes it.
//
// Replay halts immediately after the first skill that produces an
// unresolved conflict: later skills would merge against conflict-marked
// content. Skills applied before the halt remain applied.
func (o *Orchestrator) Replay(ctx context.Context, skills []ReplaySkill) *ReplayResult {
	result := &ReplayResult{
		Success:  true,
		PerSkill: make(map[string]SkillOutcome, len(skills)),
	}
	if len(skills) == 0 {
		return result
	}

	log := o.Logger.With().Str("component", "replay").Logger()

	// Collect: everything any skill in the list touches.
	paths := collectPaths(skills)

	// Reset: restore to base, or delete paths that exist only as a prior
	// skill's addition. Replay must start from a known-clean ancestor
	// regardless of prior drift.
	for _, p := range paths {
		dst := filepath.Join(o.Root, filepath.FromSlash(p))
		if o.Base.Has(p) {
			if err := o.Base.Restore(p, dst); err != nil {
				return result.fail(NewInternalError("failed to reset file to base", err).WithPaths(p))
			}
			continue
		}
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return result.fail(NewInternalError("failed to remove skill-added file", err).WithPaths(p))
		}
	}
	log.Debug().Int("paths", len(paths)).Msg("Reset touched files to base")

	// Preload: seed the replay memory with any cached resolution for the
	// whole ordered combination. The last skill's directory carries the
	// proposed side most likely to have conflicted.
	lastDir := skills[len(skills)-1].Dir
	if report, err := o.Cache.Load(skillNames(skills), o.Root, lastDir, o.Base, o.Memory); err != nil {
		log.Warn().Err(err).Msg("Resolution preload failed; continuing without cache")
	} else if report.Any() {
		log.Info().
			Str("dir", report.Dir).
			Str("source", string(report.Source)).
			Int("loaded", len(report.Loaded)).
			Int("skipped", len(report.Skipped)).
			Msg("Preloaded cached resolutions")
		if o.Metrics != nil {
			o.Metrics.RecordCacheLoad(len(report.Loaded), len(report.Skipped))
		}
	}

	// Apply each skill in order.
	for _, rs := range skills {
		name := rs.Manifest.Name
		result.Attempted = append(result.Attempted, name)

		outcome, err := o.applySkill(ctx, rs)
		if err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
			result.PerSkill[name] = outcome
			return result.fail(err)
		}
		result.PerSkill[name] = outcome

		if o.Metrics != nil {
			o.Metrics.RecordSkillApplied(name, len(outcome.Conflicts) == 0)
		}

		if len(outcome.Conflicts) > 0 {
			result.Success = false
			result.MergeConflicts = append(result.MergeConflicts, outcome.Conflicts...)
			log.Warn().
				Str("skill", name).
				Strs("conflicts", outcome.Conflicts).
				Msg("Replay halted on unresolved conflicts")
			if o.Events != nil {
				for _, p := range outcome.Conflicts {
					_ = o.Events.PublishMergeConflict("", name, p, 1)
				}
			}
			return result
		}
		log.Info().Str("skill", name).Msg("Skill applied")
		if o.Events != nil {
			_ = o.Events.PublishSkillApplied("", name, rs.Manifest.Version)
		}
	}

	// Aggregate structured operations only when every merge was clean.
	if err := o.aggregateStructured(skills); err != nil {
		return result.fail(err)
	}
	o.runPackageInstall(ctx, skills)

	return result
}

// applySkill executes one skill: file ops, verbatim adds, then three-way
// merges with cached-resolution replay. Conflicted paths are reported in
// the outcome; they are not an error.
func (o *Orchestrator) applySkill(ctx context.Context, rs ReplaySkill) (SkillOutcome, error) {
	name := rs.Manifest.Name
	outcome := SkillOutcome{Success: true}

	hctx := skill.HookContext{
		Skill:       name,
		Version:     rs.Manifest.Version,
		ProjectRoot: o.Root,
	}

	ops := rs.Manifest.FileOps
	if o.Hooks != nil {
		hookOps, err := o.Hooks.Run(ctx, rs.Dir, skill.HookPreApply, hctx)
		if err != nil {
			return outcome, NewInternalError("pre-apply hook failed", err).WithSkill(name)
		}
		ops = append(ops, hookOps...)
	}
	if err := o.runFileOps(rs.Dir, ops); err != nil {
		return outcome, err
	}

	for _, p := range rs.Manifest.Adds {
		src := filepath.Join(rs.Dir, skill.AddDir, filepath.FromSlash(p))
		dst := filepath.Join(o.Root, filepath.FromSlash(p))
		if err := copyVerbatim(src, dst); err != nil {
			return outcome, NewMissingDependencyError(
				fmt.Sprintf("failed to copy added file %s", p), err).WithSkill(name)
		}
	}

	for _, p := range rs.Manifest.Modifies {
		conflicted, err := o.mergeOne(rs, p)
		if err != nil {
			return outcome, err
		}
		if conflicted {
			outcome.Conflicts = append(outcome.Conflicts, p)
		}
	}

	if len(outcome.Conflicts) > 0 {
		outcome.Success = false
		return outcome, nil
	}

	if o.Hooks != nil {
		hookOps, err := o.Hooks.Run(ctx, rs.Dir, skill.HookPostApply, hctx)
		if err != nil {
			return outcome, NewInternalError("post-apply hook failed", err).WithSkill(name)
		}
		if err := o.runFileOps(rs.Dir, hookOps); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// mergeOne three-way merges a single modified file and attempts automatic
// resolution through the replay memory when the merge conflicts.
func (o *Orchestrator) mergeOne(rs ReplaySkill, p string) (conflicted bool, err error) {
	name := rs.Manifest.Name
	currentPath := filepath.Join(o.Root, filepath.FromSlash(p))
	proposedPath := filepath.Join(rs.Dir, skill.ModifyDir, filepath.FromSlash(p))

	proposed, err := os.ReadFile(proposedPath)
	if err != nil {
		return false, NewMissingDependencyError(
			fmt.Sprintf("skill %s declares modify of %s but ships no proposed version", name, p), err)
	}

	current, err := os.ReadFile(currentPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, NewInternalError(fmt.Sprintf("failed to read %s", p), err)
		}
		// Modified file absent from the tree: it was neither in base nor
		// added by an earlier skill in the list.
		return false, NewMissingDependencyError(
			fmt.Sprintf("skill %s modifies %s which does not exist", name, p), nil)
	}

	// Files added by an earlier skill have no base version; merge against
	// an empty ancestor.
	var base []byte
	if o.Base.Has(p) {
		base, err = o.Base.Read(p)
		if err != nil {
			return false, NewInternalError(fmt.Sprintf("failed to read base of %s", p), err)
		}
	}

	res := merge.MergeBytes(current, base, proposed, name)
	if o.Metrics != nil {
		o.Metrics.RecordMerge(name, res.Clean)
	}

	content := res.Content
	if !res.Clean {
		if resolved, ok := o.Memory.LookupByPreimage(res.Preimage()); ok {
			content = resolved
			res = &merge.Result{Clean: true, Content: resolved}
			if o.Metrics != nil {
				o.Metrics.RecordCacheHit()
			}
		} else {
			o.Memory.RecordPreimage(res.Preimage())
			if o.Metrics != nil {
				o.Metrics.RecordCacheMiss()
			}
		}
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(currentPath); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(currentPath, content, mode); err != nil {
		return false, NewInternalError(fmt.Sprintf("failed to write merge result for %s", p), err)
	}
	return !res.Clean, nil
}

// runFileOps executes a skill's non-merge filesystem operations.
func (o *Orchestrator) runFileOps(skillDir string, ops []skill.FileOp) error {
	for _, op := range ops {
		dst := filepath.Join(o.Root, filepath.FromSlash(op.Path))
		switch op.Action {
		case "copy":
			src := filepath.Join(skillDir, filepath.FromSlash(op.Src))
			if err := copyVerbatim(src, dst); err != nil {
				return NewMissingDependencyError(
					fmt.Sprintf("file op copy %s failed", op.Path), err)
			}
		case "delete":
			if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
				return NewInternalError(fmt.Sprintf("file op delete %s failed", op.Path), err)
			}
		case "mkdir":
			if err := os.MkdirAll(dst, opMode(op.Mode, 0o755)); err != nil {
				return NewInternalError(fmt.Sprintf("file op mkdir %s failed", op.Path), err)
			}
		case "chmod":
			if err := os.Chmod(dst, opMode(op.Mode, 0o644)); err != nil {
				return NewInternalError(fmt.Sprintf("file op chmod %s failed", op.Path), err)
			}
		default:
			return NewInternalError(fmt.Sprintf("unknown file op action %q", op.Action), nil)
		}
	}
	return nil
}

func opMode(s string, def os.FileMode) os.FileMode {
	if s == "" {
		return def
	}
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return def
	}
	return os.FileMode(n)
}

func copyVerbatim(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
