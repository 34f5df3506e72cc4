package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-apply every applied skill from the base snapshot",
		Long: `Re-derive the working tree by replaying every applied skill from the
base snapshot in application order.

Replay repairs drift: any manual edit to a skill-touched file is
discarded in favor of the deterministic merge result. State hashes are
refreshed on success; a conflicted or failed replay restores the tree
from backup.`,
		Example: `  # Repair the tree after manual edits
  skillfuse replay`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := newOrchestrator(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			names := e.orch.State.AppliedNames()
			if len(names) == 0 {
				fmt.Println("No skills applied; nothing to replay")
				return nil
			}

			log.Info().Strs("skills", names).Msg("Replaying applied skills")

			res := e.orch.ReplayAll(ctx)
			if jsonOutput {
				return printJSON(res)
			}

			for _, name := range res.Attempted {
				outcome := res.PerSkill[name]
				switch {
				case outcome.Success:
					fmt.Printf("✓ %s\n", name)
				case len(outcome.Conflicts) > 0:
					fmt.Printf("✗ %s (conflicts: %v)\n", name, outcome.Conflicts)
				default:
					fmt.Printf("✗ %s: %s\n", name, outcome.Error)
				}
			}

			if !res.Success {
				if res.Error != "" {
					return fmt.Errorf("%s", res.Error)
				}
				return fmt.Errorf("replay halted on merge conflicts: %v", res.MergeConflicts)
			}
			fmt.Printf("\n✓ Replayed %d skills\n", len(res.Attempted))
			return nil
		},
	}

	return cmd
}
