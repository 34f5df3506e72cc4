package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/skillfuse/skillfuse/pkg/state"
)

// driftEntry is one detected divergence from the recorded state.
type driftEntry struct {
	Skill  string `json:"skill"`
	Path   string `json:"path"`
	Reason string `json:"reason"` // modified, missing
}

// statusReport is the JSON form of the status output.
type statusReport struct {
	CoreVersion         string         `json:"core_version,omitempty"`
	SkillsSystemVersion string         `json:"skills_system_version,omitempty"`
	Rebased             bool           `json:"rebased"`
	Applied             []appliedEntry `json:"applied"`
	Drift               []driftEntry   `json:"drift,omitempty"`
	CustomModifications []string       `json:"custom_modifications,omitempty"`
}

type appliedEntry struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	AppliedAt   string `json:"applied_at"`
	Files       int    `json:"files"`
	CustomPatch string `json:"custom_patch,omitempty"`
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied skills and drift",
		Long: `Show the installation state: applied skills in application order,
rebase status, custom modifications, and drift.

A file has drifted when its content no longer matches the hash recorded
when its skill was folded in. Drift is repaired by 'skillfuse replay'.`,
		Example: `  # Human-readable status
  skillfuse status

  # Machine-readable status
  skillfuse status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			st, err := state.Load(e.statePath)
			if err != nil {
				return err
			}

			report := buildStatusReport(e.root, st)
			if jsonOutput {
				return printJSON(report)
			}

			if report.CoreVersion != "" {
				fmt.Printf("Core version: %s\n", report.CoreVersion)
			}
			if report.Rebased {
				fmt.Printf("Rebased: yes (individual uninstall disabled)\n")
			}

			if len(report.Applied) == 0 {
				fmt.Println("No skills applied")
			} else {
				fmt.Printf("Applied skills (%d):\n", len(report.Applied))
				for _, a := range report.Applied {
					line := fmt.Sprintf("  %s %s (applied %s, %d files)",
						a.Name, a.Version, a.AppliedAt, a.Files)
					if a.CustomPatch != "" {
						line += " [custom patch]"
					}
					fmt.Println(line)
				}
			}

			if len(report.CustomModifications) > 0 {
				fmt.Printf("\nCustom modifications:\n")
				for _, p := range report.CustomModifications {
					fmt.Printf("  %s\n", p)
				}
			}

			if len(report.Drift) == 0 {
				fmt.Printf("\n✓ No drift detected\n")
				return nil
			}
			fmt.Printf("\n⚠ Drift detected (%d files):\n", len(report.Drift))
			for _, d := range report.Drift {
				fmt.Printf("  %s (%s, skill %s)\n", d.Path, d.Reason, d.Skill)
			}
			fmt.Printf("\nRun 'skillfuse replay' to repair the tree.\n")
			return nil
		},
	}

	return cmd
}

// buildStatusReport compares every recorded file hash against the working
// tree.
func buildStatusReport(root string, st *state.State) *statusReport {
	report := &statusReport{
		CoreVersion:         st.CoreVersion,
		SkillsSystemVersion: st.SkillsSystemVersion,
		Rebased:             st.RebasedAt != nil,
	}

	for _, applied := range st.AppliedSkills {
		report.Applied = append(report.Applied, appliedEntry{
			Name:        applied.Name,
			Version:     applied.Version,
			AppliedAt:   applied.AppliedAt.Format("2006-01-02"),
			Files:       len(applied.FileHashes),
			CustomPatch: applied.CustomPatch,
		})

		paths := make([]string, 0, len(applied.FileHashes))
		for p := range applied.FileHashes {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		for _, p := range paths {
			recorded := applied.FileHashes[p]
			actual, err := state.HashFile(filepath.Join(root, filepath.FromSlash(p)))
			switch {
			case os.IsNotExist(err):
				report.Drift = append(report.Drift, driftEntry{Skill: applied.Name, Path: p, Reason: "missing"})
			case err != nil:
				report.Drift = append(report.Drift, driftEntry{Skill: applied.Name, Path: p, Reason: err.Error()})
			case actual != recorded:
				report.Drift = append(report.Drift, driftEntry{Skill: applied.Name, Path: p, Reason: "modified"})
			}
		}
	}

	for _, cm := range st.CustomModifications {
		report.CustomModifications = append(report.CustomModifications, cm.PatchFile)
	}
	return report
}
