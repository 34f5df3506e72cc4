package skill

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Hook function names looked up in a skill package's hooks.star.
const (
	HookPreApply  = "pre_apply"
	HookPostApply = "post_apply"
)

// HookContext is the data passed into a hook invocation.
type HookContext struct {
	Skill       string
	Version     string
	ProjectRoot string
}

// HookRunner executes optional Starlark hook scripts shipped inside a
// skill package. A hook returns a list of file operations which the
// replay orchestrator executes as an extension of the skill's file_ops.
type HookRunner struct {
	timeout time.Duration
}

// NewHookRunner creates a hook runner with the given per-script timeout.
func NewHookRunner(timeout time.Duration) *HookRunner {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HookRunner{timeout: timeout}
}

// Run executes the named hook from the skill package at dir, if the
// package ships a hooks.star and defines the hook. A missing script or a
// missing hook function is not an error; both return an empty op list.
func (hr *HookRunner) Run(ctx context.Context, dir, hook string, hctx HookContext) ([]FileOp, error) {
	script, err := os.ReadFile(filepath.Join(dir, HooksFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read hook script: %w", err)
	}

	evalCtx, cancel := context.WithTimeout(ctx, hr.timeout)
	defer cancel()

	type outcome struct {
		ops []FileOp
		err error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		ops, err := hr.runSync(string(script), hook, hctx)
		resultCh <- outcome{ops: ops, err: err}
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("hook %s timed out after %v", hook, hr.timeout)
	case res := <-resultCh:
		return res.ops, res.err
	}
}

func (hr *HookRunner) runSync(script, hook string, hctx HookContext) ([]FileOp, error) {
	thread := &starlark.Thread{
		Name: "skillfuse",
		Print: func(_ *starlark.Thread, _ string) {
			// Hook output is suppressed; hooks communicate via return values.
		},
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}

	globals, err := starlark.ExecFile(thread, HooksFile, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("hook script failed: %w", err)
	}

	fn, ok := globals[hook]
	if !ok {
		return nil, nil
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("hook %s is not callable", hook)
	}

	arg := starlark.NewDict(3)
	_ = arg.SetKey(starlark.String("skill"), starlark.String(hctx.Skill))
	_ = arg.SetKey(starlark.String("version"), starlark.String(hctx.Version))
	_ = arg.SetKey(starlark.String("project_root"), starlark.String(hctx.ProjectRoot))

	ret, err := starlark.Call(thread, callable, starlark.Tuple{arg}, nil)
	if err != nil {
		return nil, fmt.Errorf("hook %s failed: %w", hook, err)
	}

	return convertHookResult(ret)
}

// convertHookResult converts a hook return value into file operations.
// None means no ops; otherwise a list of dicts with the file_ops keys.
func convertHookResult(v starlark.Value) ([]FileOp, error) {
	if v == starlark.None {
		return nil, nil
	}

	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("hook must return None or a list of ops, got %s", v.Type())
	}

	var ops []FileOp
	iter := list.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		dict, ok := item.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("hook op must be a dict, got %s", item.Type())
		}
		op := FileOp{}
		op.Action = dictString(dict, "action")
		op.Path = dictString(dict, "path")
		op.Src = dictString(dict, "src")
		op.Mode = dictString(dict, "mode")
		if op.Action == "" || op.Path == "" {
			return nil, fmt.Errorf("hook op requires action and path")
		}
		cleaned, err := normalizePath(op.Path)
		if err != nil {
			return nil, err
		}
		op.Path = cleaned
		ops = append(ops, op)
	}
	return ops, nil
}

func dictString(d *starlark.Dict, key string) string {
	v, found, err := d.Get(starlark.String(key))
	if err != nil || !found {
		return ""
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return ""
	}
	return s
}
