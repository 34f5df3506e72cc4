package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	rootDir    string
	verbose    bool
	jsonOutput bool

	// Build version, recorded for telemetry resource attributes.
	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skillfuse",
		Short: "Skillfuse - Deterministic Skill Patch Engine",
		Long: `Skillfuse installs, removes, and repairs skill packages on top of a
frozen base snapshot using deterministic three-way merges.

Features:
  - Replay-from-base installs: every operation re-derives the tree
  - diff3 three-way merge with base-section conflict markers
  - Resolution cache keyed by skill combination and input hashes
  - Structured merging of package deps, env vars, and services
  - Policy gating via OPA/rego before any mutation
  - Durable state and an append-only operation journal`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "C", ".", "project root directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newUninstallCommand())
	rootCmd.AddCommand(newReplayCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newOverlapCommand())
	rootCmd.AddCommand(newResolutionsCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
