// Package policy provides Open Policy Agent (OPA) integration for Skillfuse.
//
// This package vets skill operations (install, uninstall, replay) against
// Rego policies before any mutation of the working tree. It includes
// built-in policies for common safety requirements and supports custom
// policy loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Gate - Adapts the engine to the orchestrator's pre-install check
//  3. Loader - Loads policies from files, directories, and bundles
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine and gate:
//
//	logger := zerolog.New(os.Stdout)
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gate := policy.NewGate(engine, logger)
//
// The gate plugs into the orchestrator and is consulted before every
// install:
//
//	if err := gate.Check(ctx, manifest, state); err != nil {
//	    // install blocked by policy
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    ".skillfuse/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = engine.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. declared-conflicts - Blocks installing a skill that declares a
//     conflict with an applied skill
//  2. duplicate-install - Blocks installing an already-applied skill
//  3. core-version - Blocks skills that require a newer core version
//  4. custom-patch-overlap - Warns when an install touches files covered
//     by a custom patch
//  5. rebased-uninstall - Blocks uninstalling individual skills after a
//     rebase
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files:
//
//	package custom.policies.protected
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.skill
//	    some p in input.skill.paths
//	    startswith(p, "migrations/")
//
//	    violation := {
//	        "message": sprintf("skill %s touches protected path %s", [input.skill.name, p]),
//	        "severity": "error",
//	        "skill": input.skill.name,
//	    }
//	}
//
// # Policy Input
//
// Policies see three documents:
//
//  - input.skill: the candidate skill (name, version, core_version,
//    conflicts, depends, paths)
//  - input.applied: already-applied skills (name, version, paths,
//    custom_patch)
//  - input.context: operation, core_version, rebased, timestamp
//
// # Severity Levels
//
// Violations have four severity levels:
//
//  - info: Informational messages
//  - warning: Issues that should be reviewed but don't block operations
//  - error: Issues that block operations
//  - critical: Severe issues requiring immediate attention
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The engine
// uses OPA's PreparedEvalQuery for optimal performance. Caching is implemented
// at both the loader and engine levels.
package policy
