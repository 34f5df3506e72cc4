package commands

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/skillfuse/skillfuse/pkg/config"
	"github.com/skillfuse/skillfuse/pkg/engine"
	"github.com/skillfuse/skillfuse/pkg/state"
)

// defaultConfigTemplate is the starter skillfuse.cue written by init.
const defaultConfigTemplate = `// Skillfuse configuration
skillfuse: {
	meta_dir:   ".skillfuse"
	skills_dir: "skills"

	package_install: command: ["npm", "install"]

	timeouts: {
		install:   "5m"
		test:      "10m"
		lock_wait: "10s"
	}

	policy: {
		enabled: true
		mode:    "enforcing"
	}

	telemetry: {
		log_level:  "info"
		log_format: "console"
	}
}
`

func newInitCommand() *cobra.Command {
	var (
		skipSnapshot bool
		coreVersion  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a Skillfuse workspace",
		Long: `Initialize a Skillfuse workspace in the project root.

This command creates the metadata directory layout, captures the base
snapshot of the current working tree, initializes the operation journal,
and writes the state document and a starter configuration file.

The base snapshot is the frozen merge ancestor for every later skill
application; initialize while the tree is pristine.`,
		Example: `  # Initialize in the current directory
  skillfuse init

  # Initialize another project, recording its core version
  skillfuse init --root ./my-project --core-version 2.1.0

  # Re-create the layout without touching the snapshot
  skillfuse init --skip-snapshot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := newEnv(ctx)
			if err != nil {
				return err
			}

			log.Info().
				Str("root", e.root).
				Bool("skip_snapshot", skipSnapshot).
				Msg("Initializing workspace")

			fmt.Printf("Initializing Skillfuse workspace in %s\n\n", e.root)

			// Step 1: Create directory structure
			dirs := []string{
				e.metaDir,
				filepath.Join(e.metaDir, baseDirName),
				filepath.Join(e.metaDir, resolutionsDirName),
				filepath.Join(e.metaDir, engine.BackupsDirName),
				e.skillsDir,
			}
			for _, dir := range dirs {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
				fmt.Printf("✓ Created directory: %s\n", dir)
			}

			// Step 2: Capture the base snapshot
			if !skipSnapshot {
				n, err := captureBase(e)
				if err != nil {
					return fmt.Errorf("failed to capture base snapshot: %w", err)
				}
				fmt.Printf("✓ Captured base snapshot: %d files\n", n)
			}

			// Step 3: Initialize the operation journal
			store, err := openJournal(ctx, e.metaDir)
			if err != nil {
				return fmt.Errorf("failed to initialize operation journal: %w", err)
			}
			_ = store.Close()
			fmt.Printf("✓ Initialized operation journal: %s\n", filepath.Join(e.metaDir, journalFileName))

			// Step 4: Create the state document
			if _, err := os.Stat(e.statePath); os.IsNotExist(err) {
				st := &state.State{
					SkillsSystemVersion: "1",
					CoreVersion:         coreVersion,
				}
				if err := st.Save(e.statePath); err != nil {
					return fmt.Errorf("failed to write state document: %w", err)
				}
				fmt.Printf("✓ Created state document: %s\n", e.statePath)
			} else {
				fmt.Printf("✓ State document already exists: %s\n", e.statePath)
			}

			// Step 5: Write a starter configuration
			cfgPath := filepath.Join(e.root, config.ConfigFileName)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(defaultConfigTemplate), 0o644); err != nil {
					return fmt.Errorf("failed to write config file: %w", err)
				}
				fmt.Printf("✓ Created config file: %s\n", cfgPath)
			} else {
				fmt.Printf("✓ Config file already exists: %s\n", cfgPath)
			}

			// Done
			fmt.Printf("\n✅ Workspace initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Drop skill packages under %s/\n\n", e.skillsDir)
			fmt.Printf("  2. Validate them:\n")
			fmt.Printf("     skillfuse validate\n\n")
			fmt.Printf("  3. Install one:\n")
			fmt.Printf("     skillfuse apply <skill>\n\n")

			return nil
		},
	}

	cmd.Flags().BoolVar(&skipSnapshot, "skip-snapshot", false, "do not capture the base snapshot")
	cmd.Flags().StringVar(&coreVersion, "core-version", "", "core version to record in the state document")

	return cmd
}

// captureBase copies the working tree into the base snapshot, skipping
// the metadata dir, the skills dir, VCS and dependency dirs, and the tool
// config. Files already present in the snapshot are left untouched so a
// re-run never rewrites history.
func captureBase(e *env) (int, error) {
	baseDir := filepath.Join(e.metaDir, baseDirName)
	skipDirs := map[string]struct{}{
		".git":         {},
		"node_modules": {},
	}

	count := 0
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(e.root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if _, ok := skipDirs[d.Name()]; ok {
				return fs.SkipDir
			}
			if path == e.metaDir || path == e.skillsDir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if rel == config.ConfigFileName {
			return nil
		}

		dst := filepath.Join(baseDir, rel)
		if _, err := os.Stat(dst); err == nil {
			return nil
		}
		if err := copyFile(path, dst); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
