package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/skillfuse/skillfuse/pkg/skill"
)

// SkillDir returns the package directory for a skill name.
func (o *Orchestrator) SkillDir(name string) string {
	return filepath.Join(o.SkillsDir, name)
}

// loadSkill loads the manifest of an installed skill package by name.
func (o *Orchestrator) loadSkill(name string) (ReplaySkill, error) {
	dir := o.SkillDir(name)
	if _, err := os.Stat(dir); err != nil {
		return ReplaySkill{}, NewMissingDependencyError(
			fmt.Sprintf("skill package %s not found at %s", name, dir), err)
	}
	m, err := skill.Load(dir)
	if err != nil {
		return ReplaySkill{}, NewMissingDependencyError(
			fmt.Sprintf("skill package %s has no readable manifest", name), err)
	}
	return ReplaySkill{Manifest: m, Dir: dir}, nil
}

// loadSkills loads the packages for an ordered name list. Any missing
// package aborts: replay requires every participant to be present.
func (o *Orchestrator) loadSkills(names []string) ([]ReplaySkill, error) {
	skills := make([]ReplaySkill, 0, len(names))
	for _, name := range names {
		rs, err := o.loadSkill(name)
		if err != nil {
			return nil, err
		}
		skills = append(skills, rs)
	}
	return skills, nil
}

// collectPaths returns the union of adds and modifies across a skill
// list, in first-seen order.
func collectPaths(skills []ReplaySkill) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rs := range skills {
		for _, p := range rs.Manifest.TouchedPaths() {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	return out
}

func skillNames(skills []ReplaySkill) []string {
	names := make([]string, len(skills))
	for i := range skills {
		names[i] = skills[i].Manifest.Name
	}
	return names
}
