package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillfuse/skillfuse/pkg/merge"
	"github.com/skillfuse/skillfuse/pkg/resolution"
	"github.com/skillfuse/skillfuse/pkg/skill"
	"github.com/skillfuse/skillfuse/pkg/snapshot"
	"github.com/skillfuse/skillfuse/pkg/state"
)

const baseAppJS = "line1\nline2\nline3\n"

// newWorkspace builds a full temp installation: a working tree with one
// base-tracked file, its base snapshot, and an orchestrator wired with
// in-memory replay memory and an empty local resolution root.
func newWorkspace(t *testing.T) *Orchestrator {
	t.Helper()

	root := t.TempDir()
	metaDir := filepath.Join(root, ".skillfuse")
	baseDir := filepath.Join(metaDir, "base")
	skillsDir := filepath.Join(root, "skills")
	for _, d := range []string{baseDir, skillsDir, filepath.Join(metaDir, "resolutions")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	writeTreeFile(t, baseDir, "src/app.js", baseAppJS)
	writeTreeFile(t, root, "src/app.js", baseAppJS)

	base, err := snapshot.Open(baseDir)
	if err != nil {
		t.Fatal(err)
	}

	return &Orchestrator{
		Root:      root,
		MetaDir:   metaDir,
		SkillsDir: skillsDir,
		StatePath: filepath.Join(metaDir, state.FileName),
		Base:      base,
		Cache:     resolution.New("", filepath.Join(metaDir, "resolutions")),
		Memory:    merge.NewMemory(),
		State:     &state.State{},
		Hooks:     skill.NewHookRunner(10 * time.Second),
		Logger:    zerolog.Nop(),
	}
}

func writeTreeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readTreeFile(t *testing.T, o *Orchestrator, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(o.Root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

// writeSkill creates a skill package directory: skill.yaml plus any
// package-relative files (add/..., modify/..., hooks.star).
func writeSkill(t *testing.T, o *Orchestrator, name, manifest string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(o.SkillsDir, name)
	writeTreeFile(t, dir, skill.ManifestFileName, manifest)
	for rel, content := range files {
		writeTreeFile(t, dir, rel, content)
	}
}

func loadReplaySkill(t *testing.T, o *Orchestrator, name string) ReplaySkill {
	t.Helper()
	rs, err := o.loadSkill(name)
	if err != nil {
		t.Fatalf("failed to load skill %s: %v", name, err)
	}
	return rs
}
