package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skillfuse/skillfuse/pkg/state"
)

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestBuildStatusReport(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "clean.txt"), []byte("intact\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "edited.txt"), []byte("changed locally\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := &state.State{
		CoreVersion:         "2.4.0",
		SkillsSystemVersion: "1",
		AppliedSkills: []state.AppliedSkill{
			{
				Name:      "alpha",
				Version:   "1.0.0",
				AppliedAt: time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC),
				FileHashes: map[string]string{
					"clean.txt":  hashOf("intact\n"),
					"edited.txt": hashOf("original\n"),
					"gone.txt":   hashOf("deleted\n"),
				},
			},
		},
		CustomModifications: []state.CustomModification{
			{PatchFile: "patches/local.patch"},
		},
	}

	report := buildStatusReport(root, st)
	if report.CoreVersion != "2.4.0" || report.Rebased {
		t.Errorf("report header = %+v", report)
	}
	if len(report.Applied) != 1 {
		t.Fatalf("Applied = %+v", report.Applied)
	}
	if report.Applied[0].AppliedAt != "2025-04-02" || report.Applied[0].Files != 3 {
		t.Errorf("Applied[0] = %+v", report.Applied[0])
	}

	// Drift entries come out in sorted path order.
	if len(report.Drift) != 2 {
		t.Fatalf("Drift = %+v, want edited + gone", report.Drift)
	}
	if report.Drift[0].Path != "edited.txt" || report.Drift[0].Reason != "modified" {
		t.Errorf("Drift[0] = %+v", report.Drift[0])
	}
	if report.Drift[1].Path != "gone.txt" || report.Drift[1].Reason != "missing" {
		t.Errorf("Drift[1] = %+v", report.Drift[1])
	}

	if len(report.CustomModifications) != 1 || report.CustomModifications[0] != "patches/local.patch" {
		t.Errorf("CustomModifications = %v", report.CustomModifications)
	}
}

func TestBuildStatusReport_Rebased(t *testing.T) {
	rebased := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	report := buildStatusReport(t.TempDir(), &state.State{RebasedAt: &rebased})
	if !report.Rebased {
		t.Error("Rebased = false")
	}
}

func TestListSkillDirs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"alpha", "beta", resolutionsDirName} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := listSkillDirs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("names = %v", names)
	}

	names, err = listSkillDirs(filepath.Join(dir, "missing"))
	if err != nil || names != nil {
		t.Errorf("missing dir: names = %v, err = %v", names, err)
	}
}
