package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Register built-in schemas
	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("config", builtinConfigSchema)
	sr.RegisterSchema("policy", builtinPolicySchema)
	sr.RegisterSchema("telemetry", builtinTelemetrySchema)
	sr.RegisterSchema("package_install", builtinPackageInstallSchema)
	sr.RegisterSchema("timeouts", builtinTimeoutsSchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinConfigSchema = `
// Config schema for the skillfuse tool configuration
#Config: {
	// Root is the project working tree root
	root?: string

	// MetaDir is the installation metadata directory
	meta_dir?: string

	// SkillsDir holds skill package directories
	skills_dir?: string

	// PackageInstall configures the dependency install step
	package_install?: #PackageInstall

	// Timeouts bounds subprocesses and lock waits
	timeouts?: #Timeouts

	// Policy configures policy enforcement
	policy?: #Policy

	// Telemetry configures logging, metrics, and tracing
	telemetry?: #Telemetry
}
`

const builtinPackageInstallSchema = `
// PackageInstall schema for the dependency install step
#PackageInstall: {
	// Command is the install command in argv form
	command?: [...string]

	// Enabled toggles the install step
	enabled?: bool
}
`

const builtinTimeoutsSchema = `
// Timeouts schema; values are Go duration strings
#Timeouts: {
	install?:   string & =~"^[0-9]+(ns|us|ms|s|m|h)$"
	test?:      string & =~"^[0-9]+(ns|us|ms|s|m|h)$"
	lock_wait?: string & =~"^[0-9]+(ns|us|ms|s|m|h)$"
}
`

const builtinPolicySchema = `
// Policy schema for policy enforcement configuration
#Policy: {
	// Enabled indicates if policy enforcement is enabled
	enabled: bool

	// Paths lists policy file paths
	paths?: [...string]

	// Mode is the enforcement mode
	mode?: "advisory" | "enforcing"
}
`

const builtinTelemetrySchema = `
// Telemetry schema for the observability configuration
#Telemetry: {
	log_level?:       "trace" | "debug" | "info" | "warn" | "error"
	log_format?:      "json" | "console"
	metrics_enabled?: bool
	metrics_addr?:    string
	tracing_enabled?: bool
	otlp_endpoint?:   string
}
`

// ValidatePolicy validates a policy configuration against the policy schema.
func (sr *SchemaRegistry) ValidatePolicy(ctx context.Context, policy PolicyConfig) error {
	return sr.ValidateAgainstSchema(ctx, "policy", policy)
}

// ValidateTelemetry validates a telemetry configuration against the telemetry schema.
func (sr *SchemaRegistry) ValidateTelemetry(ctx context.Context, telemetry TelemetryConfig) error {
	return sr.ValidateAgainstSchema(ctx, "telemetry", telemetry)
}
