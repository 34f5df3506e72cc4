// Package state tracks the durable installation state: which skills are
// applied, in what order, what each one touched, and any ad hoc custom
// modifications. One state document exists per installation; it is read
// once at the start of every operation and written atomically at the end.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the state document inside the installation metadata dir.
const FileName = "state.yaml"

// AppliedSkill records one applied skill. FileHashes maps each touched
// repository-relative path to the SHA-256 of its content after this skill
// was folded in; the hashes drive drift detection and resolution-cache
// lookups.
type AppliedSkill struct {
	Name      string    `yaml:"name"`
	Version   string    `yaml:"version"`
	AppliedAt time.Time `yaml:"applied_at"`

	FileHashes map[string]string `yaml:"file_hashes"`

	// CustomPatch references a user patch layered on top of this skill.
	CustomPatch            string `yaml:"custom_patch,omitempty"`
	CustomPatchDescription string `yaml:"custom_patch_description,omitempty"`
}

// CustomModification is an ad hoc patch applied outside the skill system.
type CustomModification struct {
	PatchFile     string   `yaml:"patch_file"`
	FilesModified []string `yaml:"files_modified"`
}

// State is the per-installation state document. AppliedSkills order is
// application order is replay order.
type State struct {
	SkillsSystemVersion string `yaml:"skills_system_version"`
	CoreVersion         string `yaml:"core_version"`

	AppliedSkills []AppliedSkill `yaml:"applied_skills"`

	// RebasedAt, once set, permanently disables individual-skill
	// uninstall: the base itself now contains skill changes and they can
	// no longer be subtracted.
	RebasedAt *time.Time `yaml:"rebased_at,omitempty"`

	CustomModifications []CustomModification `yaml:"custom_modifications,omitempty"`
}

// Load reads the state document at path. A missing file yields an empty
// state so that a fresh installation needs no bootstrap step.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &s, nil
}

// Save writes the state document atomically (temp file + rename).
func (s *State) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Find returns the applied record for a skill name, or nil.
func (s *State) Find(name string) *AppliedSkill {
	for i := range s.AppliedSkills {
		if s.AppliedSkills[i].Name == name {
			return &s.AppliedSkills[i]
		}
	}
	return nil
}

// Remove deletes the applied record for a skill name, preserving order of
// the rest. It reports whether a record was removed.
func (s *State) Remove(name string) bool {
	for i := range s.AppliedSkills {
		if s.AppliedSkills[i].Name == name {
			s.AppliedSkills = append(s.AppliedSkills[:i], s.AppliedSkills[i+1:]...)
			return true
		}
	}
	return false
}

// AppliedNames returns skill names in application order.
func (s *State) AppliedNames() []string {
	names := make([]string, len(s.AppliedSkills))
	for i := range s.AppliedSkills {
		names[i] = s.AppliedSkills[i].Name
	}
	return names
}

// TouchedPaths returns every path recorded by any applied skill or custom
// modification, deduplicated, in first-seen order.
func (s *State) TouchedPaths() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for i := range s.AppliedSkills {
		for p := range s.AppliedSkills[i].FileHashes {
			add(p)
		}
	}
	for _, cm := range s.CustomModifications {
		for _, p := range cm.FilesModified {
			add(p)
		}
	}
	return out
}

// RefreshHashes rehashes every recorded path of every applied skill from
// the files currently on disk under root. Paths missing on disk keep an
// empty hash so drift remains visible.
func (s *State) RefreshHashes(root string) error {
	for i := range s.AppliedSkills {
		for p := range s.AppliedSkills[i].FileHashes {
			h, err := HashFile(filepath.Join(root, filepath.FromSlash(p)))
			if os.IsNotExist(err) {
				s.AppliedSkills[i].FileHashes[p] = ""
				continue
			}
			if err != nil {
				return err
			}
			s.AppliedSkills[i].FileHashes[p] = h
		}
	}
	return nil
}

// HashFile returns the hex SHA-256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
