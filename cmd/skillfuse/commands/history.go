package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillfuse/skillfuse/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit       int
		operationID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the operation journal",
		Long: `Show past operations from the journal: installs, uninstalls, and
replays with their outcome, conflicted paths, and timing.

With --op the events recorded for a single operation are shown instead.`,
		Example: `  # Recent operations
  skillfuse history

  # Events of one operation
  skillfuse history --op 6dd9a1f2-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			store, err := openJournal(ctx, e.metaDir)
			if err != nil {
				return err
			}
			defer store.Close()

			if operationID != "" {
				events, err := store.GetEvents(ctx, &operationID, nil, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(events)
				}
				if len(events) == 0 {
					fmt.Println("No events recorded for this operation")
					return nil
				}
				for _, ev := range events {
					fmt.Printf("%s  [%s]  %s\n",
						ev.Timestamp.Format(time.RFC3339), ev.Level, ev.Message)
				}
				return nil
			}

			ops, err := store.ListOperations(ctx, limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(ops)
			}
			if len(ops) == 0 {
				fmt.Println("No operations recorded")
				return nil
			}
			for _, op := range ops {
				fmt.Println(formatOperation(op))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	cmd.Flags().StringVar(&operationID, "op", "", "show events for one operation id")

	return cmd
}

// formatOperation renders one journal row as a single line.
func formatOperation(op *stores.Operation) string {
	var skills []string
	_ = json.Unmarshal([]byte(op.Skills), &skills)

	line := fmt.Sprintf("%s  %-9s  %-8s  %v",
		op.StartedAt.Format(time.RFC3339), op.Kind, op.Status, skills)

	if op.Conflicts != nil {
		var conflicts []string
		_ = json.Unmarshal([]byte(*op.Conflicts), &conflicts)
		line += fmt.Sprintf("  conflicts: %v", conflicts)
	}
	if op.Error != nil && *op.Error != "" {
		line += fmt.Sprintf("  error: %s", *op.Error)
	}
	return line + fmt.Sprintf("  (%s)", op.ID)
}
