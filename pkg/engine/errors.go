// Package engine orchestrates skill application: replaying an ordered
// skill list from the base snapshot, uninstalling a skill from a stack,
// and keeping durable state consistent around either. Every mutating
// operation either fully completes or is undone via backup restore.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an operation failure for recovery handling.
type ErrorClass string

const (
	// ErrorClassConflict means a three-way merge could not be fully
	// resolved and no cached resolution matched. Recoverable: the
	// conflicted paths are surfaced for a human or agent to resolve.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassMissingDependency means a referenced skill package or a
	// required input file is absent. The operation aborts and any backup
	// is restored.
	ErrorClassMissingDependency ErrorClass = "missing_dependency"

	// ErrorClassDrift means recorded hashes no longer match reality.
	// Per-file drift is skipped silently; this class surfaces only when
	// drift blocks an operation outright.
	ErrorClassDrift ErrorClass = "drift"

	// ErrorClassPrecondition means the operation was rejected before any
	// mutation: uninstall after rebase, uninstalling a skill that is not
	// applied, or an unconfirmed custom-patch warning.
	ErrorClassPrecondition ErrorClass = "precondition"

	// ErrorClassVerification means a downstream check failed: a skill's
	// test command after replay, or a fatal post-step.
	ErrorClassVerification ErrorClass = "verification"

	// ErrorClassInternal covers unexpected filesystem or encoding
	// failures.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError is a classified operation error with context.
//
//nolint:revive // named to distinguish from standard errors
type EngineError struct {
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`

	// Skill is the skill involved, when known.
	Skill string `json:"skill,omitempty"`

	// Paths lists the files involved (conflicted or missing).
	Paths []string `json:"paths,omitempty"`

	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Skill != "" {
		msg = fmt.Sprintf("%s (skill=%s)", msg, e.Skill)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches on class so callers can branch with errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithSkill attaches the skill name.
func (e *EngineError) WithSkill(name string) *EngineError {
	e.Skill = name
	return e
}

// WithPaths attaches the involved paths.
func (e *EngineError) WithPaths(paths ...string) *EngineError {
	e.Paths = append(e.Paths, paths...)
	return e
}

// NewConflictError creates a conflict-class error.
func NewConflictError(message string, paths []string) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, Paths: paths}
}

// NewMissingDependencyError creates a missing-dependency-class error.
func NewMissingDependencyError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassMissingDependency, Message: message, Err: err}
}

// NewPreconditionError creates a precondition-class error.
func NewPreconditionError(message string) *EngineError {
	return &EngineError{Class: ErrorClassPrecondition, Message: message}
}

// NewVerificationError creates a verification-class error.
func NewVerificationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassVerification, Message: message, Err: err}
}

// NewInternalError creates an internal-class error.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInternal, Message: message, Err: err}
}

// IsClass reports whether err is an EngineError of the given class.
func IsClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
