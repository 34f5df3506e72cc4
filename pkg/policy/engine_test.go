package policy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewEngine(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if eng == nil {
		t.Fatal("Engine is nil")
	}

	// Check that built-in policies are loaded
	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"declared-conflicts",
		"duplicate-install",
		"core-version",
		"custom-patch-overlap",
		"rebased-uninstall",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func installInput(skill *SkillInput, applied []AppliedInput) *Input {
	return &Input{
		Skill:   skill,
		Applied: applied,
		Context: &Context{
			Operation:   "install",
			CoreVersion: "2.0.0",
			Timestamp:   time.Now(),
		},
	}
}

func TestEvaluate_DeclaredConflicts(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name            string
		input           *Input
		expectAllowed   bool
		expectViolation bool
	}{
		{
			name: "no conflicts declared",
			input: installInput(
				&SkillInput{Name: "telegram-notify", Version: "1.0.0", Paths: []string{"src/notify.ts"}},
				[]AppliedInput{{Name: "discord-notify", Version: "1.0.0", Paths: []string{"src/notify.ts"}}},
			),
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name: "declared conflict with applied skill",
			input: installInput(
				&SkillInput{
					Name:      "telegram-notify",
					Version:   "1.0.0",
					Conflicts: []string{"discord-notify"},
					Paths:     []string{"src/notify.ts"},
				},
				[]AppliedInput{{Name: "discord-notify", Version: "1.0.0", Paths: []string{"src/notify.ts"}}},
			),
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name: "declared conflict with absent skill",
			input: installInput(
				&SkillInput{
					Name:      "telegram-notify",
					Version:   "1.0.0",
					Conflicts: []string{"slack-notify"},
					Paths:     []string{"src/notify.ts"},
				},
				[]AppliedInput{{Name: "discord-notify", Version: "1.0.0", Paths: []string{"src/notify.ts"}}},
			),
			expectAllowed:   true,
			expectViolation: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Evaluate(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			hasViolation := len(result.Violations) > 0
			if hasViolation != tt.expectViolation {
				t.Errorf("Expected violation=%v, got %v violations: %+v",
					tt.expectViolation, hasViolation, result.Violations)
			}
		})
	}
}

func TestEvaluate_DuplicateInstall(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := installInput(
		&SkillInput{Name: "telegram-notify", Version: "1.1.0", Paths: []string{"src/notify.ts"}},
		[]AppliedInput{{Name: "telegram-notify", Version: "1.0.0", Paths: []string{"src/notify.ts"}}},
	)

	result, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("Expected duplicate install to be rejected")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "duplicate-install" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected a duplicate-install violation, got: %+v", result.Violations)
	}
}

func TestEvaluate_CoreVersion(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name          string
		skillCore     string
		installedCore string
		expectAllowed bool
	}{
		{
			name:          "installation newer than required",
			skillCore:     "1.5.0",
			installedCore: "2.0.0",
			expectAllowed: true,
		},
		{
			name:          "installation matches required",
			skillCore:     "2.0.0",
			installedCore: "2.0.0",
			expectAllowed: true,
		},
		{
			name:          "installation too old",
			skillCore:     "3.0.0",
			installedCore: "2.0.0",
			expectAllowed: false,
		},
		{
			name:          "no requirement declared",
			skillCore:     "",
			installedCore: "2.0.0",
			expectAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &Input{
				Skill: &SkillInput{
					Name:        "telegram-notify",
					Version:     "1.0.0",
					CoreVersion: tt.skillCore,
					Paths:       []string{"src/notify.ts"},
				},
				Applied: nil,
				Context: &Context{
					Operation:   "install",
					CoreVersion: tt.installedCore,
					Timestamp:   time.Now(),
				},
			}

			result, err := eng.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestEvaluate_PreReleaseWarning(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := installInput(
		&SkillInput{Name: "telegram-notify", Version: "1.0.0-beta.1", Paths: []string{"src/notify.ts"}},
		nil,
	)

	result, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	// Pre-release versions warn but do not block.
	if !result.Allowed {
		t.Errorf("Pre-release should not block install. Violations: %+v", result.Violations)
	}

	found := false
	for _, w := range result.Warnings {
		if w.Policy == "core-version" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected a pre-release warning, got: %+v", result.Warnings)
	}
}

func TestEvaluate_CustomPatchOverlap(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := installInput(
		&SkillInput{Name: "telegram-notify", Version: "1.0.0", Paths: []string{"src/router.ts"}},
		[]AppliedInput{{
			Name:        "discord-notify",
			Version:     "1.0.0",
			Paths:       []string{"src/router.ts"},
			CustomPatch: "patches/discord-fix.patch",
		}},
	)

	result, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	// Overlap with a custom patch warns but does not block.
	if !result.Allowed {
		t.Errorf("Custom patch overlap should not block install. Violations: %+v", result.Violations)
	}

	found := false
	for _, w := range result.Warnings {
		if w.Policy == "custom-patch-overlap" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected a custom-patch-overlap warning, got: %+v", result.Warnings)
	}
}

func TestEvaluate_RebasedUninstall(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	input := &Input{
		Skill: &SkillInput{Name: "telegram-notify", Version: "1.0.0", Paths: []string{"src/notify.ts"}},
		Applied: []AppliedInput{
			{Name: "telegram-notify", Version: "1.0.0", Paths: []string{"src/notify.ts"}},
		},
		Context: &Context{
			Operation:   "uninstall",
			CoreVersion: "2.0.0",
			Rebased:     true,
			Timestamp:   time.Now(),
		},
	}

	result, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("Expected uninstall after rebase to be rejected")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "rebased-uninstall" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Expected a rebased-uninstall violation, got: %+v", result.Violations)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policyName := "duplicate-install"

	// Disable the policy
	err = eng.DisablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	policy, err := eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if policy.Enabled {
		t.Error("Policy should be disabled")
	}

	// A duplicate install should now pass
	input := installInput(
		&SkillInput{Name: "telegram-notify", Version: "1.0.0", Paths: []string{"src/notify.ts"}},
		[]AppliedInput{{Name: "telegram-notify", Version: "1.0.0", Paths: []string{"src/notify.ts"}}},
	)

	result, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	for _, v := range result.Violations {
		if v.Policy == policyName {
			t.Error("Disabled policy should not generate violations")
		}
	}

	// Re-enable the policy
	err = eng.EnablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	policy, err = eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if !policy.Enabled {
		t.Error("Policy should be enabled")
	}
}

func TestReloadPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	initialCount := len(eng.ListPolicies())

	// Reload policies
	err = eng.ReloadPolicies(context.Background())
	if err != nil {
		t.Fatalf("Failed to reload policies: %v", err)
	}

	afterReloadCount := len(eng.ListPolicies())

	if initialCount != afterReloadCount {
		t.Errorf("Expected %d policies after reload, got %d", initialCount, afterReloadCount)
	}
}

func TestListPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policies := eng.ListPolicies()

	if len(policies) == 0 {
		t.Fatal("No policies returned")
	}

	// Check that all policies have required fields
	for _, p := range policies {
		if p.Name == "" {
			t.Error("Policy has empty name")
		}
		if p.Rego == "" {
			t.Error("Policy has empty Rego code")
		}
		if p.CreatedAt.IsZero() {
			t.Error("Policy has zero CreatedAt")
		}
	}
}
