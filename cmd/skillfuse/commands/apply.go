package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newApplyCommand() *cobra.Command {
	var keepConflicts bool

	cmd := &cobra.Command{
		Use:   "apply <skill>",
		Short: "Apply a skill to the project",
		Long: `Apply a skill on top of the currently applied stack.

This command:
  - Checks preconditions (dependencies, declared conflicts, policies)
  - Takes the exclusive lock and backs up every touched path
  - Replays all applied skills plus the new one from the base snapshot
  - Re-applies cached conflict resolutions automatically
  - Rolls the tree back if the replay halts on an unresolved conflict

With --keep-conflicts the conflict-marked files are left in place for
manual resolution; the skill is not recorded as applied until the
conflicts are resolved and saved.`,
		Example: `  # Apply a skill
  skillfuse apply discord-notify

  # Keep conflict markers in the tree for manual resolution
  skillfuse apply telegram-notify --keep-conflicts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			log.Info().
				Str("skill", name).
				Bool("keep_conflicts", keepConflicts).
				Msg("Applying skill")

			e, err := newOrchestrator(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			res := e.orch.Install(ctx, name, keepConflicts)
			if jsonOutput {
				return printJSON(res)
			}

			if res.Success {
				fmt.Printf("✓ Applied %s %s\n", res.Skill, res.Version)
				return nil
			}

			if res.ConflictsKept && res.Replay != nil {
				fmt.Printf("Merge conflicts left in the tree:\n")
				for _, p := range res.Replay.MergeConflicts {
					fmt.Printf("  %s\n", p)
				}
				fmt.Printf("\nResolve the markers, then save the resolution:\n")
				fmt.Printf("  skillfuse resolutions save %s\n",
					strings.Join(append(e.orch.State.AppliedNames(), name), " "))
				return fmt.Errorf("apply halted on merge conflicts")
			}
			if res.RolledBack {
				fmt.Printf("Tree restored from backup\n")
			}
			return fmt.Errorf("%s", res.Error)
		},
	}

	cmd.Flags().BoolVar(&keepConflicts, "keep-conflicts", false, "leave conflict markers in place instead of rolling back")

	return cmd
}
