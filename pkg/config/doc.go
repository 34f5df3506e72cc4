// Package config provides CUE configuration parsing for the skillfuse
// tool.
//
// # Overview
//
// The config package loads and validates the optional skillfuse.cue
// document at a project root: roots, timeouts, the package-manager
// install command, policy enforcement settings, and the telemetry
// surface. A missing document yields the defaults.
//
// # Features
//
//   - CUE configuration parsing from files, directories, and inline content
//   - Schema validation with built-in schemas for the tool configuration
//   - Type-safe configuration structures with defaults
//   - Error reporting with file locations and line numbers
//
// # Components
//
// CUEParser: Main parser for CUE configuration files. LoadProject is the
// entry point used by the CLI.
//
// SchemaRegistry: Manages CUE schemas for validation. Provides built-in
// schemas for the configuration sections and supports custom schema
// registration.
//
// # Usage Example
//
//	// Create a new parser
//	parser := config.NewCUEParser()
//
//	// Load the project configuration (defaults if absent)
//	cfg, err := parser.LoadProject(ctx, ".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	timeouts, err := cfg.ResolveTimeouts()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Configuration Structure
//
// A typical skillfuse.cue:
//
//	skillfuse: {
//	    skills_dir: "skills"
//	    package_install: {
//	        command: ["npm", "install"]
//	    }
//	    timeouts: {
//	        install:   "5m"
//	        test:      "10m"
//	        lock_wait: "10s"
//	    }
//	    policy: {
//	        enabled: true
//	        paths: [".skillfuse/policies"]
//	        mode: "enforcing"
//	    }
//	    telemetry: {
//	        log_level:  "info"
//	        log_format: "console"
//	    }
//	}
//
// # Schema Validation
//
// Built-in schemas enforce configuration correctness:
//
//   - Config schema: the whole document
//   - PackageInstall schema: the dependency install step
//   - Timeouts schema: Go duration strings
//   - Policy schema: policy enforcement settings
//   - Telemetry schema: logging, metrics, and tracing settings
//
// Custom schemas can be registered for domain-specific validation.
//
// # Error Handling
//
// All parsing and validation errors include detailed location information:
//
//	ValidationError{
//	    File: "skillfuse.cue",
//	    Line: 12,
//	    Column: 5,
//	    Path: "skillfuse.timeouts",
//	    Message: "invalid duration",
//	    Severity: "error",
//	}
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
