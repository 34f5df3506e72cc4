package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/skillfuse/skillfuse/pkg/config"
	"github.com/skillfuse/skillfuse/pkg/engine"
	"github.com/skillfuse/skillfuse/pkg/merge"
	"github.com/skillfuse/skillfuse/pkg/policy"
	"github.com/skillfuse/skillfuse/pkg/resolution"
	"github.com/skillfuse/skillfuse/pkg/skill"
	"github.com/skillfuse/skillfuse/pkg/snapshot"
	"github.com/skillfuse/skillfuse/pkg/state"
	"github.com/skillfuse/skillfuse/pkg/stores"
	"github.com/skillfuse/skillfuse/pkg/telemetry"
)

// Metadata directory layout inside <root>/<meta_dir>.
const (
	baseDirName        = "base"
	resolutionsDirName = "resolutions"
	journalFileName    = "journal.db"
)

// env carries everything a command needs: the parsed configuration, the
// resolved directory layout, and (for mutating commands) a fully wired
// orchestrator.
type env struct {
	cfg       *config.Config
	root      string
	metaDir   string
	skillsDir string
	statePath string

	orch   *engine.Orchestrator
	store  *stores.SQLiteStore
	logger *telemetry.Logger
}

// Close releases resources held open for the command's lifetime.
func (e *env) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// newEnv parses <root>/skillfuse.cue (defaults when the file is absent)
// and resolves the directory layout. No workspace access happens yet.
func newEnv(ctx context.Context) (*env, error) {
	parser := config.NewCUEParser()
	cfg, err := parser.LoadProject(ctx, rootDir)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	e := &env{
		cfg:       cfg,
		root:      root,
		metaDir:   filepath.Join(root, cfg.MetaDir),
		skillsDir: filepath.Join(root, cfg.SkillsDir),
	}
	e.statePath = filepath.Join(e.metaDir, state.FileName)
	return e, nil
}

// newOrchestrator builds the env plus an orchestrator wired with the base
// snapshot, resolution cache, state, hooks, policy gate, and journal. The
// caller must Close the returned env.
func newOrchestrator(ctx context.Context) (*env, error) {
	e, err := newEnv(ctx)
	if err != nil {
		return nil, err
	}

	rt, err := e.cfg.ResolveTimeouts()
	if err != nil {
		return nil, err
	}

	level := e.cfg.Telemetry.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  level,
		Format: e.cfg.Telemetry.LogFormat,
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	e.logger = logger

	base, err := snapshot.Open(filepath.Join(e.metaDir, baseDirName))
	if err != nil {
		return nil, fmt.Errorf("workspace not initialized (run 'skillfuse init' first): %w", err)
	}

	st, err := state.Load(e.statePath)
	if err != nil {
		return nil, err
	}

	// Shipped resolutions live alongside the skill packages; locally
	// generated ones go under the metadata dir.
	cache := resolution.New(
		filepath.Join(e.skillsDir, resolutionsDirName),
		filepath.Join(e.metaDir, resolutionsDirName),
	)

	orch := &engine.Orchestrator{
		Root:      e.root,
		MetaDir:   e.metaDir,
		SkillsDir: e.skillsDir,
		StatePath: e.statePath,

		Base:   base,
		Cache:  cache,
		Memory: merge.NewMemory(),
		State:  st,
		Hooks:  skill.NewHookRunner(rt.Test),

		Logger: logger.Zerolog(),

		InstallTimeout: rt.Install,
		TestTimeout:    rt.Test,
		LockWait:       rt.LockWait,
	}
	if e.cfg.PackageInstallEnabled() {
		orch.PackageInstallCmd = e.cfg.PackageInstall.Command
	}

	zl := logger.Zerolog()

	// The journal is best-effort: when it cannot be opened the operation
	// proceeds without one.
	store, err := openJournal(ctx, e.metaDir)
	if err != nil {
		zl.Warn().Err(err).Msg("Operation journal unavailable; continuing without it")
	} else {
		e.store = store
		orch.Journal = stores.NewJournal(store)
	}

	if e.cfg.Telemetry.MetricsEnabled {
		addr := e.cfg.Telemetry.MetricsAddr
		if addr == "" {
			addr = ":9090"
		}
		metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
			Enabled:       true,
			ListenAddress: addr,
			Path:          "/metrics",
			Namespace:     "skillfuse",
		})
		if err != nil {
			e.Close()
			return nil, err
		}
		orch.Metrics = metrics
	}

	// Disabled tracing yields a no-op provider, so the orchestrator's
	// spans cost nothing unless an OTLP endpoint is configured.
	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:      e.cfg.Telemetry.TracingEnabled,
		Exporter:     "otlp",
		Endpoint:     e.cfg.Telemetry.OTLPEndpoint,
		SamplingRate: 1.0,
		Insecure:     true,
	}, "skillfuse", buildVersion, "cli")
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to configure tracing: %w", err)
	}
	orch.Tracer = tracer

	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to configure event publishing: %w", err)
	}
	events.Subscribe(func(ev telemetry.Event) {
		zl.Debug().
			Str("event", ev.Type).
			Str("operation_id", ev.OperationID).
			Str("skill", ev.Skill).
			Msg(ev.Message)
	}, nil)
	orch.Events = events

	if e.cfg.Policy.Enabled {
		gate, err := newGate(ctx, e.cfg, logger)
		if err != nil {
			e.Close()
			return nil, err
		}
		orch.Gate = gate
	}

	e.orch = orch
	return e, nil
}

// openJournal opens and migrates the SQLite operation journal.
func openJournal(ctx context.Context, metaDir string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: filepath.Join(metaDir, journalFileName),
	})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// newGate builds the policy gate: builtin policies plus any user policy
// paths from the configuration. Advisory mode downgrades violations to
// warnings.
func newGate(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) (engine.Gate, error) {
	eng, err := policy.NewEngine(logger.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}

	gate := policy.NewGate(eng, logger.Zerolog())
	if cfg.Policy.Mode == "advisory" {
		return &advisoryGate{gate: gate, logger: logger.Zerolog()}, nil
	}
	return gate, nil
}

// advisoryGate logs policy violations instead of blocking on them.
type advisoryGate struct {
	gate   *policy.Gate
	logger zerolog.Logger
}

func (g *advisoryGate) Check(ctx context.Context, manifest *skill.Manifest, st *state.State) error {
	if err := g.gate.Check(ctx, manifest, st); err != nil {
		g.logger.Warn().
			Str("skill", manifest.Name).
			Err(err).
			Msg("Policy violations (advisory mode)")
	}
	return nil
}

// printJSON renders a result document to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
