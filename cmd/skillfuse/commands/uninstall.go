package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newUninstallCommand() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "uninstall <skill>",
		Short: "Remove an applied skill",
		Long: `Remove an applied skill by replaying every other applied skill from
the base snapshot.

This command:
  - Refuses after a rebase (skill changes are baked into the base)
  - Requires --confirm when the skill carries a custom patch
  - Resets or deletes files only this skill touched
  - Replays the remaining skills and re-applies custom patches
  - Runs each remaining skill's test command; a failure rolls back`,
		Example: `  # Remove a skill
  skillfuse uninstall discord-notify

  # Acknowledge that the skill's custom patch will be lost
  skillfuse uninstall discord-notify --confirm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			log.Info().
				Str("skill", name).
				Bool("confirm", confirm).
				Msg("Uninstalling skill")

			e, err := newOrchestrator(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			res := e.orch.Uninstall(ctx, name, confirm)
			if jsonOutput {
				return printJSON(res)
			}

			if res.Success {
				fmt.Printf("✓ Uninstalled %s\n", res.Skill)
				if res.Warning != "" {
					fmt.Printf("⚠ %s\n", res.Warning)
				}
				return nil
			}
			if res.RolledBack {
				fmt.Printf("Tree restored from backup\n")
			}
			return fmt.Errorf("%s", res.Error)
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "acknowledge loss of the skill's custom patch")

	return cmd
}
