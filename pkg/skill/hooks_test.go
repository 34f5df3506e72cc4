package skill

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeHooks(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, HooksFile), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestHookRunner_ReturnsOps(t *testing.T) {
	dir := writeHooks(t, `
def pre_apply(ctx):
    return [
        {"action": "mkdir", "path": "data/" + ctx["skill"], "mode": "0755"},
        {"action": "copy", "path": "config/app.yaml", "src": "templates/app.yaml"},
    ]
`)

	hr := NewHookRunner(5 * time.Second)
	ops, err := hr.Run(context.Background(), dir, HookPreApply, HookContext{
		Skill: "alpha", Version: "1.0.0", ProjectRoot: "/tmp/project",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("ops = %+v, want 2", ops)
	}
	if ops[0].Action != "mkdir" || ops[0].Path != "data/alpha" || ops[0].Mode != "0755" {
		t.Errorf("ops[0] = %+v", ops[0])
	}
	if ops[1].Action != "copy" || ops[1].Src != "templates/app.yaml" {
		t.Errorf("ops[1] = %+v", ops[1])
	}
}

func TestHookRunner_NoneReturn(t *testing.T) {
	dir := writeHooks(t, `
def post_apply(ctx):
    return None
`)

	hr := NewHookRunner(5 * time.Second)
	ops, err := hr.Run(context.Background(), dir, HookPostApply, HookContext{Skill: "alpha"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("ops = %+v, want none", ops)
	}
}

func TestHookRunner_MissingScript(t *testing.T) {
	hr := NewHookRunner(5 * time.Second)
	ops, err := hr.Run(context.Background(), t.TempDir(), HookPreApply, HookContext{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ops != nil {
		t.Errorf("ops = %+v, want nil", ops)
	}
}

func TestHookRunner_MissingFunction(t *testing.T) {
	dir := writeHooks(t, `
def post_apply(ctx):
    return None
`)

	hr := NewHookRunner(5 * time.Second)
	ops, err := hr.Run(context.Background(), dir, HookPreApply, HookContext{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ops != nil {
		t.Errorf("ops = %+v, want nil", ops)
	}
}

func TestHookRunner_InvalidReturn(t *testing.T) {
	dir := writeHooks(t, `
def pre_apply(ctx):
    return "not a list"
`)

	hr := NewHookRunner(5 * time.Second)
	if _, err := hr.Run(context.Background(), dir, HookPreApply, HookContext{}); err == nil {
		t.Fatal("expected an error for a non-list return")
	}
}

func TestHookRunner_OpMissingAction(t *testing.T) {
	dir := writeHooks(t, `
def pre_apply(ctx):
    return [{"path": "x"}]
`)

	hr := NewHookRunner(5 * time.Second)
	_, err := hr.Run(context.Background(), dir, HookPreApply, HookContext{})
	if err == nil || !strings.Contains(err.Error(), "requires action and path") {
		t.Errorf("error = %v", err)
	}
}

func TestHookRunner_OpPathEscape(t *testing.T) {
	dir := writeHooks(t, `
def pre_apply(ctx):
    return [{"action": "delete", "path": "../outside"}]
`)

	hr := NewHookRunner(5 * time.Second)
	_, err := hr.Run(context.Background(), dir, HookPreApply, HookContext{})
	if err == nil || !strings.Contains(err.Error(), "escapes the project root") {
		t.Errorf("error = %v", err)
	}
}

func TestHookRunner_ScriptError(t *testing.T) {
	dir := writeHooks(t, `this is not starlark(`)

	hr := NewHookRunner(5 * time.Second)
	if _, err := hr.Run(context.Background(), dir, HookPreApply, HookContext{}); err == nil {
		t.Fatal("expected an error for a broken script")
	}
}
