// Package skill defines the skill manifest model: the declarative
// description of a code transformation (file additions, three-way merges,
// structured operations) that the engine applies on top of a base tree.
package skill

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ManifestFileName is the manifest document inside a skill package directory.
const ManifestFileName = "skill.yaml"

// Well-known subdirectories of a skill package.
const (
	AddDir    = "add"
	ModifyDir = "modify"
	HooksFile = "hooks.star"
)

// Manifest describes a single published skill. Immutable once published;
// identified by (Name, Version).
type Manifest struct {
	// Name is the skill identifier (lowercase, hyphenated).
	Name string `yaml:"skill" validate:"required"`

	// Version is the skill version (semver).
	Version string `yaml:"version" validate:"required"`

	// CoreVersion is the minimum compatible core version.
	CoreVersion string `yaml:"core_version,omitempty"`

	// Adds lists new repository-relative file paths this skill introduces.
	// Order is preserved; files are copied verbatim from the package's
	// add/ directory.
	Adds []string `yaml:"adds,omitempty"`

	// Modifies lists existing files this skill three-way-merges into,
	// using the package's modify/ directory as the proposed side.
	Modifies []string `yaml:"modifies,omitempty"`

	// Conflicts lists skill names that must not be applied together with
	// this one.
	Conflicts []string `yaml:"conflicts,omitempty"`

	// Depends lists skill names that must already be applied.
	Depends []string `yaml:"depends,omitempty"`

	// Structured holds non-text operations handled by dedicated merge
	// rules rather than generic text diff.
	Structured *StructuredOps `yaml:"structured,omitempty"`

	// FileOps lists non-merge filesystem operations executed before the
	// skill's adds and merges.
	FileOps []FileOp `yaml:"file_ops,omitempty" validate:"omitempty,dive"`

	// TestCommand is the skill's own verification command, run after
	// replay-based mutations to confirm the skill still works.
	TestCommand string `yaml:"test_command,omitempty"`
}

// StructuredOps is the closed set of non-text merge operations.
type StructuredOps struct {
	// PackageDependencies maps package name to version requirement,
	// merged into the project's package manifest.
	PackageDependencies map[string]string `yaml:"package_dependencies,omitempty"`

	// EnvAdditions maps environment variable name to value, appended to
	// the project's env file when absent.
	EnvAdditions map[string]string `yaml:"env_additions,omitempty"`

	// ServiceDefinitions maps service name to its definition document,
	// merged into the project's service composition file.
	ServiceDefinitions map[string]map[string]any `yaml:"service_definitions,omitempty"`
}

// FileOp is a single non-merge filesystem operation.
type FileOp struct {
	// Action is one of copy, delete, mkdir, chmod.
	Action string `yaml:"action" validate:"required,oneof=copy delete mkdir chmod"`

	// Path is the repository-relative target path.
	Path string `yaml:"path" validate:"required"`

	// Src is the package-relative source path (copy only).
	Src string `yaml:"src,omitempty"`

	// Mode is the octal file mode (mkdir, chmod).
	Mode string `yaml:"mode,omitempty"`
}

var manifestValidator = validator.New()

// Load reads and validates the manifest of the skill package rooted at dir.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read skill manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse skill manifest: %w", err)
	}

	if err := m.normalize(); err != nil {
		return nil, err
	}

	if err := manifestValidator.Struct(&m); err != nil {
		return nil, fmt.Errorf("skill manifest validation failed: %w", err)
	}

	return &m, nil
}

// normalize cleans all declared paths and rejects paths escaping the
// project root.
func (m *Manifest) normalize() error {
	norm := func(paths []string) error {
		for i, p := range paths {
			cleaned, err := normalizePath(p)
			if err != nil {
				return err
			}
			paths[i] = cleaned
		}
		return nil
	}

	if err := norm(m.Adds); err != nil {
		return err
	}
	if err := norm(m.Modifies); err != nil {
		return err
	}
	for i := range m.FileOps {
		cleaned, err := normalizePath(m.FileOps[i].Path)
		if err != nil {
			return err
		}
		m.FileOps[i].Path = cleaned
	}
	return nil
}

func normalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("empty path in skill manifest")
	}
	cleaned := path.Clean(filepath.ToSlash(p))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes the project root", p)
	}
	return cleaned, nil
}

// TouchedPaths returns the union of Adds and Modifies, Adds first,
// duplicates removed, order preserved.
func (m *Manifest) TouchedPaths() []string {
	seen := make(map[string]struct{}, len(m.Adds)+len(m.Modifies))
	out := make([]string, 0, len(m.Adds)+len(m.Modifies))
	for _, p := range m.Adds {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, p := range m.Modifies {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// AddsSet returns the Adds as a set for membership checks.
func (m *Manifest) AddsSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m.Adds))
	for _, p := range m.Adds {
		set[p] = struct{}{}
	}
	return set
}

// ModifiesSet returns the Modifies as a set for membership checks.
func (m *Manifest) ModifiesSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m.Modifies))
	for _, p := range m.Modifies {
		set[p] = struct{}{}
	}
	return set
}
