package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/skillfuse/skillfuse/pkg/skill"
)

func newValidateCommand() *cobra.Command {
	var showOverlaps bool

	cmd := &cobra.Command{
		Use:   "validate [skill...]",
		Short: "Validate skill manifests and configuration",
		Long: `Validate skill package manifests and the tool configuration.

This command checks:
  - skillfuse.cue syntax and schema conformance
  - skill.yaml presence and field validity per package
  - path normalization (no absolute paths, no escapes)
  - pairwise overlaps across the validated skills`,
		Example: `  # Validate every skill package in the skills dir
  skillfuse validate

  # Validate specific skills
  skillfuse validate discord-notify telegram-notify

  # Include the overlap report
  skillfuse validate --overlaps`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// Config parse errors surface here before any manifest work.
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Configuration valid (root: %s)\n", e.root)

			names := args
			if len(names) == 0 {
				names, err = listSkillDirs(e.skillsDir)
				if err != nil {
					return err
				}
			}
			if len(names) == 0 {
				fmt.Println("No skill packages found")
				return nil
			}

			log.Info().Strs("skills", names).Msg("Validating skill manifests")

			var manifests []*skill.Manifest
			invalid := 0
			for _, name := range names {
				m, err := skill.Load(filepath.Join(e.skillsDir, name))
				if err != nil {
					invalid++
					fmt.Printf("✗ %s: %v\n", name, err)
					continue
				}
				fmt.Printf("✓ %s %s (adds: %d, modifies: %d)\n",
					m.Name, m.Version, len(m.Adds), len(m.Modifies))
				manifests = append(manifests, m)
			}

			if showOverlaps {
				pairs := skill.OverlapMatrix(manifests)
				if len(pairs) == 0 {
					fmt.Println("\nNo overlapping skill pairs")
				} else {
					fmt.Printf("\nOverlapping pairs (worth testing together):\n")
					for _, p := range pairs {
						fmt.Printf("  %s + %s\n", p.A, p.B)
					}
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d skill packages failed validation", invalid, len(names))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showOverlaps, "overlaps", false, "report pairwise overlaps")

	return cmd
}

// listSkillDirs lists skill package directory names, skipping the shipped
// resolutions directory.
func listSkillDirs(skillsDir string) ([]string, error) {
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read skills directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == resolutionsDirName {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
