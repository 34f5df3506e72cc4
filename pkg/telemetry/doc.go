// Package telemetry provides comprehensive observability instrumentation for Skillfuse.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging Skillfuse operations.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "skillfuse"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithOperationID("op-123").WithSkill("telegram", "1.2.0")
//	logger.Info("Starting skill installation")
//	logger.WithError(err).Error("Installation failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into operation flow and performance:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    attribute.String("skill.name", name),
//	    attribute.String("operation.kind", "install"),
//	)
//
//	// Record events
//	span.AddEvent("merge.complete")
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track system behavior and performance:
//
//	// Record operation outcomes
//	tel.Metrics.RecordOperationStarted("install")
//	tel.Metrics.RecordOperation("install", true)
//
//	// Record merge outcomes and cache behavior
//	tel.Metrics.RecordMerge("telegram", true)
//	tel.Metrics.RecordCacheHit()
//	tel.Metrics.RecordCacheLoad(3, 1)
//
//	// Record errors
//	tel.Metrics.RecordError("conflict")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	// Publish events
//	tel.Events.PublishOperationStarted(opID, "install", skills)
//	tel.Events.PublishSkillApplied(opID, "telegram", "1.2.0")
//	tel.Events.PublishMergeConflict(opID, "telegram", "src/config.ts", 2)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByOperationID, FilterBySkill
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an operation
//	ic := telemetry.StartOperation(ctx, "replay.execute",
//	    attribute.String("operation.id", opID))
//	defer ic.End(err)
//
//	ic.Logger.Info("Executing replay")
//
//	// Operation context
//	ctx = telemetry.WithOperationContext(ctx, opID, "install", skills)
//	defer telemetry.EndOperationContext(ctx, opID, "install", err)
//
//	// Skill application
//	err := telemetry.RecordSkillApplication(ctx, "telegram", "1.2.0", func() error {
//	    return applySkill(ctx, rs)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
//	// Custom configuration
//	cfg := &telemetry.Config{
//	    ServiceName: "skillfuse",
//	    ServiceVersion: "1.0.0",
//	    Environment: "staging",
//	    Logging: telemetry.LoggingConfig{
//	        Level: "info",
//	        Format: "json",
//	    },
//	    Tracing: telemetry.TracingConfig{
//	        Enabled: true,
//	        Exporter: "otlp",
//	        Endpoint: "otel-collector:4317",
//	        SamplingRate: 0.1,
//	    },
//	    Metrics: telemetry.MetricsConfig{
//	        Enabled: true,
//	        ListenAddress: ":9090",
//	    },
//	}
//
// # Performance Considerations
//
// The telemetry system is designed for minimal overhead:
//
//  - Structured logging uses zerolog's zero-allocation approach
//  - Tracing uses sampling to reduce data volume in production
//  - Metrics use Prometheus's efficient storage format
//  - Events are buffered and batched to reduce I/O
//  - All operations are non-blocking when possible
//
// Typical overhead: <1% CPU, <10MB memory for moderate workloads
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// This ensures:
//  - All buffered events are published
//  - All pending traces are exported
//  - Metrics are finalized
//
// # Integration with the Skillfuse Engine
//
// The engine components automatically integrate with telemetry when available:
//
//  1. Operations: install/uninstall/replay-level tracing and metrics
//  2. Skill applications: per-skill tracing with manifest context
//  3. Merges: merge outcome tracking and conflict classification
//  4. Resolution cache: hit/miss/preload metrics
//  5. Policy engine: policy violation events
//
// # Exporters
//
// Tracing supports multiple exporters:
//
//  - "stdout": Print traces to stdout (development)
//  - "otlp": Export via OTLP/gRPC (production, works with collectors)
//  - "none": Generate traces but don't export (testing)
//
// Configure via TracingConfig.Exporter and TracingConfig.Endpoint
//
// # Common Metrics
//
// Key metrics exposed:
//
//  - skillfuse_operations_started_total{kind}
//  - skillfuse_operations_completed_total{kind,status}
//  - skillfuse_operation_duration_seconds{kind,status}
//  - skillfuse_merges_total{skill,outcome}
//  - skillfuse_merge_conflicts_total{skill}
//  - skillfuse_resolution_cache_hits_total
//  - skillfuse_resolution_cache_misses_total
//  - skillfuse_skills_applied_total{skill,status}
//  - skillfuse_errors_by_class_total{class}
//  - skillfuse_applied_skills
//
// # Best Practices
//
//  1. Always use context to propagate telemetry
//  2. Use component-specific loggers for clarity
//  3. Add meaningful attributes to spans
//  4. Record both success and failure metrics
//  5. Use appropriate log levels
//  6. Filter events to avoid overwhelming subscribers
//  7. Monitor telemetry overhead in production
//  8. Configure sampling for high-volume systems
//  9. Always call defer span.End() after starting a span
//  10. Shut down gracefully to avoid data loss
//
// # Security Considerations
//
//  - Never log sensitive data (credentials, keys, tokens)
//  - Sanitize file paths if they contain user data
//  - Use secure connections (TLS) for trace exporters in production
//  - Limit metrics endpoint access via network policies
//  - Consider event data before adding to audit logs
//
package telemetry
