// Package resolution persists accepted conflict resolutions and replays
// them deterministically. A resolution is keyed by the sorted skill-name
// combination and, per file, by the exact SHA-256 triple of the inputs
// (base, current, skill) that produced the conflict. A record is only
// trusted when all three hashes still match the files on disk; anything
// stale falls back to a fresh merge for that file alone.
package resolution

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skillfuse/skillfuse/pkg/merge"
	"github.com/skillfuse/skillfuse/pkg/skill"
	"github.com/skillfuse/skillfuse/pkg/snapshot"
)

// MetaFileName is the shared provenance document inside a resolution dir.
const MetaFileName = "meta.yaml"

// File suffixes of the per-file record triplet.
const (
	PreimageSuffix   = ".preimage"
	ResolutionSuffix = ".resolution"
	TokenSuffix      = ".preimage.hash"
)

// Source records who produced a resolution set.
type Source string

const (
	SourceGenerated  Source = "generated"
	SourceMaintainer Source = "maintainer"
	SourceUser       Source = "user"
)

// HashTriple is the exact input fingerprint of one conflicting file.
type HashTriple struct {
	Base    string `yaml:"base"`
	Current string `yaml:"current"`
	Skill   string `yaml:"skill"`
}

// Meta is the provenance document shared by a resolution set.
type Meta struct {
	Skills      []string              `yaml:"skills"`
	ApplyOrder  []string              `yaml:"apply_order"`
	CoreVersion string                `yaml:"core_version"`
	ResolvedAt  time.Time             `yaml:"resolved_at"`
	Tested      bool                  `yaml:"tested"`
	TestPassed  bool                  `yaml:"test_passed"`
	Source      Source                `yaml:"resolution_source"`
	FileHashes  map[string]HashTriple `yaml:"file_hashes"`
}

// FileResolution is one resolved conflict handed to Save.
type FileResolution struct {
	// Path is the repository-relative conflicted file.
	Path string

	// Preimage is the conflict-marked content the merge produced.
	Preimage []byte

	// Resolution is the accepted resolved content.
	Resolution []byte

	// Triple fingerprints the merge inputs that produced the conflict.
	Triple HashTriple
}

// Key derives the resolution directory name for a skill combination:
// sorted names joined with "+".
func Key(skills []string) string {
	sorted := make([]string, len(skills))
	copy(sorted, skills)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}

// Cache locates, saves, and loads resolution sets. Two search roots
// exist: a maintainer-shipped read-only root and a locally generated
// writable root, with shipped taking priority on lookup.
type Cache struct {
	shippedRoot string
	localRoot   string
}

// New creates a cache over the two search roots. Either root may be
// empty to disable that side.
func New(shippedRoot, localRoot string) *Cache {
	return &Cache{shippedRoot: shippedRoot, localRoot: localRoot}
}

// Dir returns the resolution directory for a skill combination and its
// source, preferring the shipped root. ok is false when neither root has
// a set for the key.
func (c *Cache) Dir(skills []string) (dir string, source Source, ok bool) {
	key := Key(skills)
	if c.shippedRoot != "" {
		d := filepath.Join(c.shippedRoot, key)
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			return d, SourceMaintainer, true
		}
	}
	if c.localRoot != "" {
		d := filepath.Join(c.localRoot, key)
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			return d, SourceGenerated, true
		}
	}
	return "", "", false
}

// Save writes a resolution set for the skill combination into the local
// root: per file the preimage, the accepted resolution, and the replay
// token sidecar, plus the shared meta document carrying the hash triples.
// It also seeds the given replay memory so the resolutions take effect in
// the current process immediately.
func (c *Cache) Save(skills []string, files []FileResolution, meta Meta, memory merge.ReplayMemory) error {
	if c.localRoot == "" {
		return fmt.Errorf("no writable resolution root configured")
	}
	if len(files) == 0 {
		return fmt.Errorf("no resolutions to save")
	}

	dir := filepath.Join(c.localRoot, Key(skills))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create resolution directory: %w", err)
	}

	if meta.FileHashes == nil {
		meta.FileHashes = make(map[string]HashTriple, len(files))
	}

	for _, fr := range files {
		rel := filepath.FromSlash(fr.Path)
		if err := os.MkdirAll(filepath.Dir(filepath.Join(dir, rel)), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", fr.Path, err)
		}

		if err := os.WriteFile(filepath.Join(dir, rel+PreimageSuffix), fr.Preimage, 0o644); err != nil {
			return fmt.Errorf("failed to write preimage for %s: %w", fr.Path, err)
		}
		if err := os.WriteFile(filepath.Join(dir, rel+ResolutionSuffix), fr.Resolution, 0o644); err != nil {
			return fmt.Errorf("failed to write resolution for %s: %w", fr.Path, err)
		}

		token := merge.PreimageToken(fr.Preimage)
		if err := os.WriteFile(filepath.Join(dir, rel+TokenSuffix), []byte(token), 0o644); err != nil {
			return fmt.Errorf("failed to write replay token for %s: %w", fr.Path, err)
		}

		meta.FileHashes[fr.Path] = fr.Triple

		if memory != nil {
			t := memory.RecordPreimage(fr.Preimage)
			if err := memory.CommitResolution(t, fr.Resolution); err != nil {
				return fmt.Errorf("failed to seed replay memory for %s: %w", fr.Path, err)
			}
		}
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to encode resolution meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write resolution meta: %w", err)
	}
	return nil
}

// LoadReport summarizes a Load: which files were seeded into the replay
// memory and which were skipped as stale or incomplete.
type LoadReport struct {
	Dir     string
	Source  Source
	Loaded  []string
	Skipped []string
}

// Any reports whether at least one file pair was loaded.
func (r *LoadReport) Any() bool {
	return len(r.Loaded) > 0
}

// Load locates the resolution set for the skill combination and seeds the
// replay memory with every file pair whose recorded hash triple matches
// the actual inputs: the base snapshot file, the current working file
// under projectRoot, and the skill's proposed file under skillDir/modify.
// Mismatched, missing-input, or missing-sidecar pairs are skipped
// individually; partial loads are allowed.
func (c *Cache) Load(skills []string, projectRoot, skillDir string, base *snapshot.Store, memory merge.ReplayMemory) (*LoadReport, error) {
	dir, source, ok := c.Dir(skills)
	if !ok {
		return &LoadReport{}, nil
	}

	metaData, err := os.ReadFile(filepath.Join(dir, MetaFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read resolution meta: %w", err)
	}
	var meta Meta
	if err := yaml.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse resolution meta: %w", err)
	}

	report := &LoadReport{Dir: dir, Source: source}

	paths := make([]string, 0, len(meta.FileHashes))
	for p := range meta.FileHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		recorded := meta.FileHashes[p]
		if !c.verifyTriple(p, recorded, projectRoot, skillDir, base) {
			report.Skipped = append(report.Skipped, p)
			continue
		}

		rel := filepath.FromSlash(p)
		preimage, err := os.ReadFile(filepath.Join(dir, rel+PreimageSuffix))
		if err != nil {
			report.Skipped = append(report.Skipped, p)
			continue
		}
		postimage, err := os.ReadFile(filepath.Join(dir, rel+ResolutionSuffix))
		if err != nil {
			report.Skipped = append(report.Skipped, p)
			continue
		}
		tokenData, err := os.ReadFile(filepath.Join(dir, rel+TokenSuffix))
		if err != nil {
			report.Skipped = append(report.Skipped, p)
			continue
		}

		token := memory.RecordPreimage(preimage)
		if token != strings.TrimSpace(string(tokenData)) {
			// Sidecar disagrees with the preimage content; the record was
			// hand-edited and cannot be trusted.
			report.Skipped = append(report.Skipped, p)
			continue
		}
		if err := memory.CommitResolution(token, postimage); err != nil {
			report.Skipped = append(report.Skipped, p)
			continue
		}
		report.Loaded = append(report.Loaded, p)
	}

	return report, nil
}

// verifyTriple checks all three recorded hashes against the actual files.
func (c *Cache) verifyTriple(rel string, recorded HashTriple, projectRoot, skillDir string, base *snapshot.Store) bool {
	baseHash, err := base.Hash(rel)
	if err != nil || baseHash != recorded.Base {
		return false
	}

	currentHash, err := sha256File(filepath.Join(projectRoot, filepath.FromSlash(rel)))
	if err != nil || currentHash != recorded.Current {
		return false
	}

	skillHash, err := sha256File(filepath.Join(skillDir, skill.ModifyDir, filepath.FromSlash(rel)))
	if err != nil || skillHash != recorded.Skill {
		return false
	}
	return true
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
