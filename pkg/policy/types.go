package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Skill is the skill name the violation refers to.
	Skill string `json:"skill,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed indicates if the operation is allowed.
	Allowed bool `json:"allowed"`

	// Violations lists blocking policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policy warnings that don't block operations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// SkillInput is the candidate skill presented to policies.
type SkillInput struct {
	// Name is the skill identifier.
	Name string `json:"name"`

	// Version is the skill version.
	Version string `json:"version"`

	// CoreVersion is the minimum core version the skill requires.
	CoreVersion string `json:"core_version,omitempty"`

	// Conflicts lists skill names the skill declares incompatible.
	Conflicts []string `json:"conflicts,omitempty"`

	// Depends lists skill names the skill requires.
	Depends []string `json:"depends,omitempty"`

	// Paths lists the repository-relative files the skill touches.
	Paths []string `json:"paths"`
}

// AppliedInput is one already-applied skill presented to policies.
type AppliedInput struct {
	// Name is the skill identifier.
	Name string `json:"name"`

	// Version is the applied version.
	Version string `json:"version"`

	// Paths lists the files the applied skill recorded.
	Paths []string `json:"paths"`

	// CustomPatch references a user patch layered on top of the skill.
	CustomPatch string `json:"custom_patch,omitempty"`
}

// Input represents the input data for policy evaluation.
type Input struct {
	// Skill is the candidate skill being evaluated.
	Skill *SkillInput `json:"skill,omitempty"`

	// Applied lists the skills already applied, in application order.
	Applied []AppliedInput `json:"applied"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Operation is the operation being performed ("install", "uninstall",
	// "replay").
	Operation string `json:"operation,omitempty"`

	// CoreVersion is the installed core version from state.
	CoreVersion string `json:"core_version,omitempty"`

	// Rebased indicates the installation has been rebased.
	Rebased bool `json:"rebased"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Bundle represents a collection of related policies.
type Bundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}
