package config

import (
	"fmt"
	"time"
)

// ConfigFileName is the tool configuration document at the project root.
const ConfigFileName = "skillfuse.cue"

// Config is the parsed tool configuration. Every field has a usable
// default; a missing skillfuse.cue yields Default().
type Config struct {
	// Root is the project working tree root.
	Root string `json:"root,omitempty"`

	// MetaDir is the installation metadata directory, relative to Root.
	MetaDir string `json:"meta_dir,omitempty"`

	// SkillsDir holds skill package directories, relative to Root.
	SkillsDir string `json:"skills_dir,omitempty"`

	// PackageInstall configures the best-effort dependency install step.
	PackageInstall PackageInstallConfig `json:"package_install,omitempty"`

	// Timeouts bounds the engine's subprocesses and lock waits.
	Timeouts TimeoutConfig `json:"timeouts,omitempty"`

	// Policy configures policy enforcement.
	Policy PolicyConfig `json:"policy,omitempty"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// PackageInstallConfig configures the package-manager install step run
// after structured aggregation.
type PackageInstallConfig struct {
	// Command is the install command in argv form.
	Command []string `json:"command,omitempty"`

	// Enabled toggles the install step.
	Enabled *bool `json:"enabled,omitempty"`
}

// TimeoutConfig holds duration strings ("5m", "30s"). Strings keep the
// CUE surface simple; ResolveTimeouts parses them.
type TimeoutConfig struct {
	// Install bounds the package-manager install subprocess.
	Install string `json:"install,omitempty"`

	// Test bounds each skill test subprocess.
	Test string `json:"test,omitempty"`

	// LockWait bounds how long a second invocation waits for the lock.
	LockWait string `json:"lock_wait,omitempty"`
}

// PolicyConfig configures policy enforcement.
type PolicyConfig struct {
	// Enabled indicates if policy enforcement is enabled.
	Enabled bool `json:"enabled"`

	// Paths lists policy file paths.
	Paths []string `json:"paths,omitempty"`

	// Mode is the enforcement mode (advisory, enforcing).
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`
}

// TelemetryConfig configures the observability surface.
type TelemetryConfig struct {
	// LogLevel is the zerolog level name.
	LogLevel string `json:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn error"`

	// LogFormat is json or console.
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=json console"`

	// MetricsEnabled toggles the Prometheus registry.
	MetricsEnabled bool `json:"metrics_enabled,omitempty"`

	// MetricsAddr is the metrics listen address.
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// TracingEnabled toggles OpenTelemetry tracing.
	TracingEnabled bool `json:"tracing_enabled,omitempty"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint.
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
}

// ResolvedTimeouts is TimeoutConfig with the strings parsed.
type ResolvedTimeouts struct {
	Install  time.Duration
	Test     time.Duration
	LockWait time.Duration
}

// ParsedConfig represents the fully parsed configuration from CUE.
type ParsedConfig struct {
	// Config is the tool configuration.
	Config Config `json:"config"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "skillfuse.timeouts").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// Default returns the configuration used when no skillfuse.cue exists.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.MetaDir == "" {
		c.MetaDir = ".skillfuse"
	}
	if c.SkillsDir == "" {
		c.SkillsDir = "skills"
	}
	if len(c.PackageInstall.Command) == 0 {
		c.PackageInstall.Command = []string{"npm", "install"}
	}
	if c.Timeouts.Install == "" {
		c.Timeouts.Install = "5m"
	}
	if c.Timeouts.Test == "" {
		c.Timeouts.Test = "10m"
	}
	if c.Timeouts.LockWait == "" {
		c.Timeouts.LockWait = "10s"
	}
	if c.Policy.Mode == "" {
		c.Policy.Mode = "enforcing"
	}
	if c.Telemetry.LogLevel == "" {
		c.Telemetry.LogLevel = "info"
	}
	if c.Telemetry.LogFormat == "" {
		c.Telemetry.LogFormat = "console"
	}
}

// PackageInstallEnabled reports whether the install step should run.
// Unset means enabled.
func (c *Config) PackageInstallEnabled() bool {
	return c.PackageInstall.Enabled == nil || *c.PackageInstall.Enabled
}

// ResolveTimeouts parses the duration strings.
func (c *Config) ResolveTimeouts() (ResolvedTimeouts, error) {
	var rt ResolvedTimeouts
	var err error

	if rt.Install, err = time.ParseDuration(c.Timeouts.Install); err != nil {
		return rt, fmt.Errorf("invalid install timeout %q: %w", c.Timeouts.Install, err)
	}
	if rt.Test, err = time.ParseDuration(c.Timeouts.Test); err != nil {
		return rt, fmt.Errorf("invalid test timeout %q: %w", c.Timeouts.Test, err)
	}
	if rt.LockWait, err = time.ParseDuration(c.Timeouts.LockWait); err != nil {
		return rt, fmt.Errorf("invalid lock_wait timeout %q: %w", c.Timeouts.LockWait, err)
	}
	return rt, nil
}
