package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skillfuse/skillfuse/pkg/skill"
)

func newOverlapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overlap [skill...]",
		Short: "Report overlapping skill pairs",
		Long: `Report which skill pairs touch the same surface: intersecting
modifies sets or a shared structured package dependency.

Overlapping pairs are the combinations worth exercising together in an
integration matrix; non-overlapping skills compose trivially.`,
		Example: `  # All pairs across the skills dir
  skillfuse overlap

  # Restrict to specific skills
  skillfuse overlap discord-notify telegram-notify audit-log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := newEnv(ctx)
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				names, err = listSkillDirs(e.skillsDir)
				if err != nil {
					return err
				}
			}

			manifests := make([]*skill.Manifest, 0, len(names))
			for _, name := range names {
				m, err := skill.Load(filepath.Join(e.skillsDir, name))
				if err != nil {
					return fmt.Errorf("failed to load skill %s: %w", name, err)
				}
				manifests = append(manifests, m)
			}

			pairs := skill.OverlapMatrix(manifests)
			if jsonOutput {
				return printJSON(pairs)
			}

			if len(pairs) == 0 {
				fmt.Printf("No overlapping pairs among %d skills\n", len(manifests))
				return nil
			}
			fmt.Printf("Overlapping pairs (%d):\n", len(pairs))
			for _, p := range pairs {
				fmt.Printf("  %s + %s\n", p.A, p.B)
			}
			return nil
		},
	}

	return cmd
}
