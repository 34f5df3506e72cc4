package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skillfuse/skillfuse/pkg/merge"
	"github.com/skillfuse/skillfuse/pkg/resolution"
	"github.com/skillfuse/skillfuse/pkg/skill"
	"github.com/skillfuse/skillfuse/pkg/snapshot"
	"github.com/skillfuse/skillfuse/pkg/state"
	"github.com/skillfuse/skillfuse/pkg/stores"
)

func newResolutionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolutions",
		Short: "Save and list conflict resolutions",
		Long: `Manage the resolution cache.

A resolution set records, per conflicted file, the conflict-marked merge
output (preimage) and the accepted resolved content, fingerprinted by
the SHA-256 hashes of the merge inputs. Future replays of the same skill
combination re-apply the resolution automatically as long as every hash
still matches.`,
	}

	cmd.AddCommand(newResolutionsSaveCommand())
	cmd.AddCommand(newResolutionsListCommand())

	return cmd
}

func newResolutionsSaveCommand() *cobra.Command {
	var (
		paths  []string
		tested bool
	)

	cmd := &cobra.Command{
		Use:   "save <skill>...",
		Short: "Save resolved conflicts for a skill combination",
		Long: `Save the working tree's resolved files as the resolution set for an
ordered skill combination.

The command re-runs the combination's merges in memory to reconstruct
each conflict-marked preimage, then pairs it with the resolved file in
the working tree. Run it after 'apply --keep-conflicts' once every
conflict marker has been edited away.`,
		Example: `  # Save resolutions for a two-skill combination
  skillfuse resolutions save discord-notify telegram-notify

  # Only save one of the conflicted files, marking it tested
  skillfuse resolutions save discord-notify telegram-notify \
    --path src/router.ts --tested`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := newEnv(ctx)
			if err != nil {
				return err
			}

			base, err := snapshot.Open(filepath.Join(e.metaDir, baseDirName))
			if err != nil {
				return fmt.Errorf("workspace not initialized (run 'skillfuse init' first): %w", err)
			}
			st, err := state.Load(e.statePath)
			if err != nil {
				return err
			}

			wanted := make(map[string]struct{}, len(paths))
			for _, p := range paths {
				wanted[filepath.ToSlash(p)] = struct{}{}
			}

			log.Info().Strs("skills", args).Msg("Reconstructing conflict preimages")

			files, err := reconstructResolutions(e, base, args, wanted)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("combination %s produced no saveable conflicts", resolution.Key(args))
			}

			meta := resolution.Meta{
				Skills:      args,
				ApplyOrder:  args,
				CoreVersion: st.CoreVersion,
				ResolvedAt:  time.Now().UTC(),
				Tested:      tested,
				TestPassed:  tested,
				Source:      resolution.SourceUser,
			}

			cache := resolution.New("", filepath.Join(e.metaDir, resolutionsDirName))
			if err := cache.Save(args, files, meta, nil); err != nil {
				return err
			}

			// Audit trail; losing it never fails the save.
			if store, err := openJournal(ctx, e.metaDir); err == nil {
				key := resolution.Key(args)
				for _, fr := range files {
					_ = store.RecordResolutionSave(ctx, &stores.ResolutionSave{
						SkillsKey: key,
						Path:      fr.Path,
						Source:    string(resolution.SourceUser),
						SavedAt:   time.Now().UTC(),
					})
				}
				_ = store.Close()
			}

			fmt.Printf("✓ Saved %d resolutions under %s\n", len(files), resolution.Key(args))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&paths, "path", nil, "only save these conflicted paths (default: all)")
	cmd.Flags().BoolVar(&tested, "tested", false, "mark the resolution set as tested and passing")

	return cmd
}

// reconstructResolutions replays the combination's merges in memory from
// the base snapshot. Each conflicted path is paired with the resolved
// file currently in the working tree; when wanted is non-empty only those
// paths are saved.
//
// The hash triple records the inputs the cache will see on the next
// replay: the base file (which is also the post-reset working file) and
// the final skill's proposed side, matching the preload verification.
func reconstructResolutions(e *env, base *snapshot.Store, names []string, wanted map[string]struct{}) ([]resolution.FileResolution, error) {
	type loaded struct {
		manifest *skill.Manifest
		dir      string
	}
	skills := make([]loaded, 0, len(names))
	for _, name := range names {
		dir := filepath.Join(e.skillsDir, name)
		m, err := skill.Load(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load skill %s: %w", name, err)
		}
		skills = append(skills, loaded{manifest: m, dir: dir})
	}
	lastDir := skills[len(skills)-1].dir

	contents := make(map[string][]byte)
	var files []resolution.FileResolution

	for _, s := range skills {
		for _, p := range s.manifest.Adds {
			data, err := os.ReadFile(filepath.Join(s.dir, skill.AddDir, filepath.FromSlash(p)))
			if err != nil {
				return nil, fmt.Errorf("skill %s ships no added file %s: %w", s.manifest.Name, p, err)
			}
			contents[p] = data
		}

		for _, p := range s.manifest.Modifies {
			proposed, err := os.ReadFile(filepath.Join(s.dir, skill.ModifyDir, filepath.FromSlash(p)))
			if err != nil {
				return nil, fmt.Errorf("skill %s ships no proposed version of %s: %w", s.manifest.Name, p, err)
			}

			var baseBytes []byte
			if base.Has(p) {
				baseBytes, err = base.Read(p)
				if err != nil {
					return nil, err
				}
			}

			current, ok := contents[p]
			if !ok {
				if baseBytes == nil {
					return nil, fmt.Errorf("skill %s modifies %s which exists neither in base nor as an earlier add", s.manifest.Name, p)
				}
				current = baseBytes
			}

			res := merge.MergeBytes(current, baseBytes, proposed, s.manifest.Name)
			if res.Clean {
				contents[p] = res.Content
				continue
			}

			if len(wanted) > 0 {
				if _, ok := wanted[p]; !ok {
					contents[p] = res.Content
					continue
				}
			}

			fr, err := buildFileResolution(e, base, lastDir, p, res.Preimage())
			if err != nil {
				log.Warn().Str("path", p).Err(err).Msg("Skipping conflicted file")
				contents[p] = res.Content
				continue
			}
			files = append(files, fr)
			contents[p] = fr.Resolution
		}
	}
	return files, nil
}

// buildFileResolution pairs a reconstructed preimage with the resolved
// working-tree file and fingerprints the merge inputs.
func buildFileResolution(e *env, base *snapshot.Store, lastDir, p string, preimage []byte) (resolution.FileResolution, error) {
	resolved, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(p)))
	if err != nil {
		return resolution.FileResolution{}, fmt.Errorf("no resolved file in the working tree: %w", err)
	}
	if merge.HasConflictMarkers(resolved) {
		return resolution.FileResolution{}, fmt.Errorf("working tree file still contains conflict markers")
	}

	baseHash, err := base.Hash(p)
	if err != nil {
		return resolution.FileResolution{}, fmt.Errorf("file is not in the base snapshot; the resolution could never verify: %w", err)
	}
	skillHash, err := state.HashFile(filepath.Join(lastDir, skill.ModifyDir, filepath.FromSlash(p)))
	if err != nil {
		return resolution.FileResolution{}, fmt.Errorf("final skill does not modify this file; the resolution could never verify: %w", err)
	}

	return resolution.FileResolution{
		Path:       p,
		Preimage:   preimage,
		Resolution: resolved,
		Triple: resolution.HashTriple{
			Base:    baseHash,
			Current: baseHash,
			Skill:   skillHash,
		},
	}, nil
}

func newResolutionsListCommand() *cobra.Command {
	var (
		key   string
		audit bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached resolution sets",
		Long: `List resolution sets from both roots: maintainer-shipped sets under
the skills directory and locally saved sets under the metadata
directory. With --audit the journal's save history is shown instead.`,
		Example: `  # All cached sets
  skillfuse resolutions list

  # One combination's save history
  skillfuse resolutions list --audit --key discord-notify+telegram-notify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := newEnv(ctx)
			if err != nil {
				return err
			}

			if audit {
				store, err := openJournal(ctx, e.metaDir)
				if err != nil {
					return err
				}
				defer store.Close()

				var keyFilter *string
				if key != "" {
					keyFilter = &key
				}
				saves, err := store.ListResolutionSaves(ctx, keyFilter, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(saves)
				}
				if len(saves) == 0 {
					fmt.Println("No resolution saves recorded")
					return nil
				}
				for _, s := range saves {
					fmt.Printf("%s  %s  %s  (%s)\n",
						s.SavedAt.Format(time.RFC3339), s.SkillsKey, s.Path, s.Source)
				}
				return nil
			}

			sets := listResolutionSets(
				filepath.Join(e.skillsDir, resolutionsDirName),
				filepath.Join(e.metaDir, resolutionsDirName),
				key,
			)
			if jsonOutput {
				return printJSON(sets)
			}
			if len(sets) == 0 {
				fmt.Println("No cached resolution sets")
				return nil
			}
			for _, s := range sets {
				fmt.Printf("%s  (%s, %d files, resolved %s",
					s.Key, s.Source, s.Files, s.ResolvedAt.Format("2006-01-02"))
				if s.Tested {
					fmt.Printf(", tested")
				}
				fmt.Println(")")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "filter by skill combination key")
	cmd.Flags().BoolVar(&audit, "audit", false, "show the journal's save history instead")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum audit entries")

	return cmd
}

// resolutionSet is one cached set as shown by list.
type resolutionSet struct {
	Key        string    `json:"key"`
	Source     string    `json:"source"`
	Files      int       `json:"files"`
	ResolvedAt time.Time `json:"resolved_at"`
	Tested     bool      `json:"tested"`
}

// listResolutionSets scans the shipped and local roots. Sets without a
// readable meta document are skipped.
func listResolutionSets(shippedRoot, localRoot, keyFilter string) []resolutionSet {
	var sets []resolutionSet
	scan := func(root string, source resolution.Source) {
		entries, err := os.ReadDir(root)
		if err != nil {
			return
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if keyFilter != "" && entry.Name() != keyFilter {
				continue
			}
			data, err := os.ReadFile(filepath.Join(root, entry.Name(), resolution.MetaFileName))
			if err != nil {
				continue
			}
			var meta resolution.Meta
			if err := yaml.Unmarshal(data, &meta); err != nil {
				continue
			}
			sets = append(sets, resolutionSet{
				Key:        entry.Name(),
				Source:     string(source),
				Files:      len(meta.FileHashes),
				ResolvedAt: meta.ResolvedAt,
				Tested:     meta.Tested,
			})
		}
	}
	scan(shippedRoot, resolution.SourceMaintainer)
	scan(localRoot, resolution.SourceGenerated)
	return sets
}
