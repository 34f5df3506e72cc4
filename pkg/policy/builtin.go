package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		declaredConflictsPolicy(),
		duplicateInstallPolicy(),
		coreVersionPolicy(),
		customPatchOverlapPolicy(),
		rebasedUninstallPolicy(),
	}
}

// declaredConflictsPolicy blocks installing a skill alongside one it
// declares incompatible.
func declaredConflictsPolicy() Policy {
	return Policy{
		Name:        "declared-conflicts",
		Description: "Blocks installing a skill that declares a conflict with an applied skill",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"conflicts", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package skillfuse.policies.conflicts

import rego.v1

deny contains violation if {
	input.skill
	some c in input.skill.conflicts
	some a in input.applied
	a.name == c

	violation := {
		"message": sprintf("skill %s declares a conflict with applied skill %s", [input.skill.name, a.name]),
		"severity": "error",
		"skill": input.skill.name,
	}
}`,
	}
}

// duplicateInstallPolicy blocks installing a skill that is already applied.
func duplicateInstallPolicy() Policy {
	return Policy{
		Name:        "duplicate-install",
		Description: "Blocks installing a skill that is already applied",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"install", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package skillfuse.policies.duplicates

import rego.v1

deny contains violation if {
	input.skill
	input.context.operation == "install"
	some a in input.applied
	a.name == input.skill.name

	violation := {
		"message": sprintf("skill %s version %s is already applied", [a.name, a.version]),
		"severity": "error",
		"skill": input.skill.name,
	}
}`,
	}
}

// coreVersionPolicy enforces the skill's minimum core version.
func coreVersionPolicy() Policy {
	return Policy{
		Name:        "core-version",
		Description: "Blocks installing a skill that requires a newer core version",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"versioning", "compatibility"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package skillfuse.policies.versioning

import rego.v1

deny contains violation if {
	input.skill
	input.skill.core_version != ""
	input.context.core_version != ""

	semver.compare(input.context.core_version, input.skill.core_version) < 0

	violation := {
		"message": sprintf("skill %s requires core version %s but installation is at %s", [input.skill.name, input.skill.core_version, input.context.core_version]),
		"severity": "error",
		"skill": input.skill.name,
	}
}

# Warn about pre-release skill versions.
deny contains violation if {
	input.skill
	regex.match("(alpha|beta|rc)", input.skill.version)

	violation := {
		"message": sprintf("skill %s version %s is a pre-release", [input.skill.name, input.skill.version]),
		"severity": "warning",
		"skill": input.skill.name,
	}
}`,
	}
}

// customPatchOverlapPolicy warns when an install touches files covered by
// a custom patch on an applied skill.
func customPatchOverlapPolicy() Policy {
	return Policy{
		Name:        "custom-patch-overlap",
		Description: "Warns when an install touches files covered by a custom patch",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"patches", "overlap"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package skillfuse.policies.patches

import rego.v1

deny contains violation if {
	input.skill
	some a in input.applied
	a.custom_patch != ""
	some p in a.paths
	p in input.skill.paths

	violation := {
		"message": sprintf("skill %s touches %s which carries a custom patch on skill %s", [input.skill.name, p, a.name]),
		"severity": "warning",
		"skill": input.skill.name,
	}
}`,
	}
}

// rebasedUninstallPolicy blocks uninstalling individual skills after a
// rebase folded them into the base.
func rebasedUninstallPolicy() Policy {
	return Policy{
		Name:        "rebased-uninstall",
		Description: "Blocks uninstalling individual skills after a rebase",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"uninstall", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package skillfuse.policies.rebase

import rego.v1

deny contains violation if {
	input.skill
	input.context.operation == "uninstall"
	input.context.rebased

	violation := {
		"message": sprintf("skill %s cannot be uninstalled after a rebase", [input.skill.name]),
		"severity": "error",
		"skill": input.skill.name,
	}
}`,
	}
}
