package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillfuse/skillfuse/pkg/skill"
	"github.com/skillfuse/skillfuse/pkg/state"
)

// Gate vets skill installs against the policy engine. It satisfies the
// orchestrator's gate interface; warnings are logged, blocking violations
// are returned as an error.
type Gate struct {
	engine *Engine
	logger zerolog.Logger

	// Operation is the operation label presented to policies. Defaults
	// to "install".
	Operation string
}

// NewGate creates a gate over an existing policy engine.
func NewGate(engine *Engine, logger zerolog.Logger) *Gate {
	return &Gate{
		engine:    engine,
		logger:    logger.With().Str("component", "policy-gate").Logger(),
		Operation: "install",
	}
}

// Check evaluates the candidate skill against all enabled policies.
func (g *Gate) Check(ctx context.Context, manifest *skill.Manifest, st *state.State) error {
	input := BuildInput(manifest, st, g.Operation)

	result, err := g.engine.Evaluate(ctx, input)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, w := range result.Warnings {
		g.logger.Warn().
			Str("policy", w.Policy).
			Str("skill", w.Skill).
			Msg(w.Message)
	}

	if !result.Allowed {
		msgs := make([]string, len(result.Violations))
		for i, v := range result.Violations {
			msgs[i] = v.Message
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}

	return nil
}

// BuildInput converts a manifest and state document into policy input.
func BuildInput(manifest *skill.Manifest, st *state.State, operation string) *Input {
	input := &Input{
		Applied: make([]AppliedInput, 0, len(st.AppliedSkills)),
		Context: &Context{
			Operation:   operation,
			CoreVersion: st.CoreVersion,
			Rebased:     st.RebasedAt != nil,
			Timestamp:   time.Now(),
		},
	}

	if manifest != nil {
		input.Skill = &SkillInput{
			Name:        manifest.Name,
			Version:     manifest.Version,
			CoreVersion: manifest.CoreVersion,
			Conflicts:   manifest.Conflicts,
			Depends:     manifest.Depends,
			Paths:       manifest.TouchedPaths(),
		}
	}

	for i := range st.AppliedSkills {
		rec := &st.AppliedSkills[i]
		paths := make([]string, 0, len(rec.FileHashes))
		for p := range rec.FileHashes {
			paths = append(paths, p)
		}
		input.Applied = append(input.Applied, AppliedInput{
			Name:        rec.Name,
			Version:     rec.Version,
			Paths:       paths,
			CustomPatch: rec.CustomPatch,
		})
	}

	return input
}
