package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skillfuse/skillfuse/pkg/merge"
	"github.com/skillfuse/skillfuse/pkg/resolution"
	"github.com/skillfuse/skillfuse/pkg/state"
)

func TestReplay_Empty(t *testing.T) {
	o := newWorkspace(t)
	res := o.Replay(context.Background(), nil)
	if !res.Success {
		t.Errorf("result = %+v", res)
	}
	if len(res.Attempted) != 0 {
		t.Errorf("Attempted = %v", res.Attempted)
	}
}

func TestReplay_CleanSequence(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "alpha line1\nline2\nline3\n"})
	writeSkill(t, o, "beta", "skill: beta\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "line1\nline2\nbeta line3\n"})

	skills := []ReplaySkill{loadReplaySkill(t, o, "alpha"), loadReplaySkill(t, o, "beta")}
	res := o.Replay(context.Background(), skills)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Attempted) != 2 || res.Attempted[0] != "alpha" || res.Attempted[1] != "beta" {
		t.Errorf("Attempted = %v", res.Attempted)
	}
	for _, name := range []string{"alpha", "beta"} {
		if !res.PerSkill[name].Success {
			t.Errorf("PerSkill[%s] = %+v", name, res.PerSkill[name])
		}
	}
	if got := readTreeFile(t, o, "src/app.js"); got != "alpha line1\nline2\nbeta line3\n" {
		t.Errorf("merged content = %q", got)
	}
}

// A replay always resets to base first, so running it twice converges to
// the same tree instead of stacking changes.
func TestReplay_Deterministic(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "alpha line1\nline2\nline3\n"})

	skills := []ReplaySkill{loadReplaySkill(t, o, "alpha")}
	for i := 0; i < 3; i++ {
		res := o.Replay(context.Background(), skills)
		if !res.Success {
			t.Fatalf("replay %d: %+v", i, res)
		}
		if got := readTreeFile(t, o, "src/app.js"); got != "alpha line1\nline2\nline3\n" {
			t.Fatalf("replay %d content = %q", i, got)
		}
	}
}

func TestReplay_Adds(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nadds: [src/new.js]\n",
		map[string]string{"add/src/new.js": "added content\n"})

	res := o.Replay(context.Background(), []ReplaySkill{loadReplaySkill(t, o, "alpha")})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if got := readTreeFile(t, o, "src/new.js"); got != "added content\n" {
		t.Errorf("added content = %q", got)
	}
}

func TestReplay_StopOnConflict(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "alpha line1\nline2\nline3\n"})
	writeSkill(t, o, "beta", "skill: beta\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "beta line1\nline2\nline3\n"})
	writeSkill(t, o, "gamma", "skill: gamma\nversion: 1.0.0\nadds: [src/gamma.js]\n",
		map[string]string{"add/src/gamma.js": "gamma\n"})

	skills := []ReplaySkill{
		loadReplaySkill(t, o, "alpha"),
		loadReplaySkill(t, o, "beta"),
		loadReplaySkill(t, o, "gamma"),
	}
	res := o.Replay(context.Background(), skills)
	if res.Success {
		t.Fatal("expected the replay to halt on conflict")
	}
	if len(res.Attempted) != 2 {
		t.Errorf("Attempted = %v, gamma must never be attempted", res.Attempted)
	}
	if _, ok := res.PerSkill["gamma"]; ok {
		t.Error("PerSkill must not contain the skill after the conflict")
	}
	if !res.PerSkill["alpha"].Success {
		t.Errorf("alpha outcome = %+v", res.PerSkill["alpha"])
	}
	beta := res.PerSkill["beta"]
	if beta.Success || len(beta.Conflicts) != 1 || beta.Conflicts[0] != "src/app.js" {
		t.Errorf("beta outcome = %+v", beta)
	}
	if len(res.MergeConflicts) != 1 || res.MergeConflicts[0] != "src/app.js" {
		t.Errorf("MergeConflicts = %v", res.MergeConflicts)
	}

	// Conflict markers stay in the tree for inspection.
	if got := readTreeFile(t, o, "src/app.js"); !merge.HasConflictMarkers([]byte(got)) {
		t.Errorf("working file has no conflict markers:\n%s", got)
	}
	// The skill after the halt left no trace.
	if _, err := os.Stat(filepath.Join(o.Root, "src", "gamma.js")); !os.IsNotExist(err) {
		t.Error("gamma's added file must not exist")
	}
}

func TestReplay_MemoryAutoResolves(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "alpha line1\nline2\nline3\n"})
	writeSkill(t, o, "beta", "skill: beta\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "beta line1\nline2\nline3\n"})

	skills := []ReplaySkill{loadReplaySkill(t, o, "alpha"), loadReplaySkill(t, o, "beta")}

	first := o.Replay(context.Background(), skills)
	if first.Success {
		t.Fatal("first replay should conflict")
	}

	// The conflicted working file is the exact preimage; accept a
	// resolution for it the way a user would.
	preimage := []byte(readTreeFile(t, o, "src/app.js"))
	resolved := []byte("merged line1\nline2\nline3\n")
	token := o.Memory.RecordPreimage(preimage)
	if err := o.Memory.CommitResolution(token, resolved); err != nil {
		t.Fatal(err)
	}

	second := o.Replay(context.Background(), skills)
	if !second.Success {
		t.Fatalf("second replay = %+v", second)
	}
	if got := readTreeFile(t, o, "src/app.js"); got != string(resolved) {
		t.Errorf("content = %q, want the committed resolution", got)
	}
}

func TestReplay_PreloadsCachedResolutions(t *testing.T) {
	o := newWorkspace(t)
	alphaContent := "alpha line1\nline2\nline3\n"
	betaContent := "beta line1\nline2\nline3\n"
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": alphaContent})
	writeSkill(t, o, "beta", "skill: beta\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": betaContent})

	// The conflict beta will hit: alpha's result merged against beta's
	// proposal over the pristine base.
	preimage := merge.MergeBytes([]byte(alphaContent), []byte(baseAppJS), []byte(betaContent), "beta").Preimage()
	if preimage == nil {
		t.Fatal("fixture merge should conflict")
	}
	resolved := "cached line1\nline2\nline3\n"

	baseHash, err := o.Base.Hash("src/app.js")
	if err != nil {
		t.Fatal(err)
	}
	skillHash, err := state.HashFile(filepath.Join(o.SkillDir("beta"), "modify", "src", "app.js"))
	if err != nil {
		t.Fatal(err)
	}
	err = o.Cache.Save([]string{"alpha", "beta"}, []resolution.FileResolution{{
		Path:       "src/app.js",
		Preimage:   preimage,
		Resolution: []byte(resolved),
		Triple: resolution.HashTriple{
			Base: baseHash,
			// The preload verifies the working file right after the reset,
			// when it equals the base content.
			Current: baseHash,
			Skill:   skillHash,
		},
	}}, resolution.Meta{
		Skills:     []string{"alpha", "beta"},
		ApplyOrder: []string{"alpha", "beta"},
		ResolvedAt: time.Now().UTC(),
		Source:     resolution.SourceUser,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	skills := []ReplaySkill{loadReplaySkill(t, o, "alpha"), loadReplaySkill(t, o, "beta")}
	res := o.Replay(context.Background(), skills)
	if !res.Success {
		t.Fatalf("result = %+v, expected the cached resolution to apply", res)
	}
	if got := readTreeFile(t, o, "src/app.js"); got != resolved {
		t.Errorf("content = %q, want %q", got, resolved)
	}
}

func TestReplay_FileOpsAndHooks(t *testing.T) {
	o := newWorkspace(t)
	manifest := `skill: alpha
version: 1.0.0
file_ops:
  - action: mkdir
    path: data/store
    mode: "0755"
`
	hooks := `
def post_apply(ctx):
    return [{"action": "copy", "path": "config/app.conf", "src": "templates/app.conf"}]
`
	writeSkill(t, o, "alpha", manifest, map[string]string{
		"hooks.star":         hooks,
		"templates/app.conf": "configured\n",
	})

	res := o.Replay(context.Background(), []ReplaySkill{loadReplaySkill(t, o, "alpha")})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	info, err := os.Stat(filepath.Join(o.Root, "data", "store"))
	if err != nil || !info.IsDir() {
		t.Errorf("file op mkdir did not run: %v", err)
	}
	if got := readTreeFile(t, o, "config/app.conf"); got != "configured\n" {
		t.Errorf("hook copy content = %q", got)
	}
}

func TestReplay_StructuredAggregation(t *testing.T) {
	o := newWorkspace(t)
	writeTreeFile(t, o.Root, "package.json", `{"name":"app","dependencies":{"react":"^18.0.0"}}`)
	writeTreeFile(t, o.Root, "docker-compose.yml", "services:\n  db:\n    image: postgres:16\n")

	alpha := `skill: alpha
version: 1.0.0
structured:
  package_dependencies:
    react: "^19.0.0"
    yjs: "^13.0.0"
  env_additions:
    FEATURE_B: "on"
    FEATURE_A: "on"
  service_definitions:
    db:
      image: postgres:17
`
	writeSkill(t, o, "alpha", alpha, nil)

	res := o.Replay(context.Background(), []ReplaySkill{loadReplaySkill(t, o, "alpha")})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	// Dependencies are added, never upgraded.
	var pkg map[string]any
	if err := json.Unmarshal([]byte(readTreeFile(t, o, "package.json")), &pkg); err != nil {
		t.Fatal(err)
	}
	deps := pkg["dependencies"].(map[string]any)
	if deps["react"] != "^18.0.0" {
		t.Errorf("react = %v, existing pin must stay", deps["react"])
	}
	if deps["yjs"] != "^13.0.0" {
		t.Errorf("yjs = %v", deps["yjs"])
	}

	// New env keys are appended in sorted order.
	env := readTreeFile(t, o, ".env")
	if env != "FEATURE_A=on\nFEATURE_B=on\n" {
		t.Errorf(".env = %q", env)
	}

	// A skill's service definition replaces the prior one.
	compose := readTreeFile(t, o, "docker-compose.yml")
	if !strings.Contains(compose, "postgres:17") || strings.Contains(compose, "postgres:16") {
		t.Errorf("docker-compose.yml = %q", compose)
	}
}

func TestReplay_StructuredSkippedOnConflict(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "alpha line1\nline2\nline3\n"})
	beta := `skill: beta
version: 1.0.0
modifies: [src/app.js]
structured:
  env_additions:
    SHOULD_NOT_APPEAR: "1"
`
	writeSkill(t, o, "beta", beta, map[string]string{
		"modify/src/app.js": "beta line1\nline2\nline3\n",
	})

	skills := []ReplaySkill{loadReplaySkill(t, o, "alpha"), loadReplaySkill(t, o, "beta")}
	res := o.Replay(context.Background(), skills)
	if res.Success {
		t.Fatal("expected a conflict")
	}
	if _, err := os.Stat(filepath.Join(o.Root, ".env")); !os.IsNotExist(err) {
		t.Error("structured aggregation must not run after a conflicted replay")
	}
}

func TestReplay_MissingModifyTarget(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/ghost.js]\n",
		map[string]string{"modify/src/ghost.js": "content\n"})

	res := o.Replay(context.Background(), []ReplaySkill{loadReplaySkill(t, o, "alpha")})
	if res.Success {
		t.Fatal("expected a failure")
	}
	if !strings.Contains(res.Error, "does not exist") {
		t.Errorf("Error = %q", res.Error)
	}
}
