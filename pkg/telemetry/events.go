package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the Skillfuse system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// OperationID is the associated operation ID, if applicable.
	OperationID string `json:"operation_id,omitempty"`

	// Skill is the associated skill name, if applicable.
	Skill string `json:"skill,omitempty"`

	// Path is the associated file path, if applicable.
	Path string `json:"path,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeOperationStarted   = "operation.started"
	EventTypeOperationCompleted = "operation.completed"
	EventTypeOperationFailed    = "operation.failed"
	EventTypeSkillApplied       = "skill.applied"
	EventTypeSkillFailed        = "skill.failed"
	EventTypeMergeConflict      = "merge.conflict"
	EventTypeResolutionReused   = "resolution.reused"
	EventTypeDriftDetected      = "drift.detected"
	EventTypePolicyViolation    = "policy.violation"
	EventTypeError              = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	// Start the periodic flush goroutine
	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishOperationStarted publishes an operation started event.
func (ep *EventPublisher) PublishOperationStarted(opID, kind string, skills []string) error {
	return ep.Publish(Event{
		Type:        EventTypeOperationStarted,
		Source:      "engine",
		OperationID: opID,
		Message:     fmt.Sprintf("Operation %s started: %s", opID, kind),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"kind":   kind,
			"skills": skills,
		},
	})
}

// PublishOperationCompleted publishes an operation completed event.
func (ep *EventPublisher) PublishOperationCompleted(opID, kind string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:        EventTypeOperationCompleted,
		Source:      "engine",
		OperationID: opID,
		Message:     fmt.Sprintf("Operation %s completed: %s", opID, kind),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"kind":     kind,
			"duration": duration.Seconds(),
		},
	})
}

// PublishOperationFailed publishes an operation failed event.
func (ep *EventPublisher) PublishOperationFailed(opID, kind, reason string) error {
	return ep.Publish(Event{
		Type:        EventTypeOperationFailed,
		Source:      "engine",
		OperationID: opID,
		Message:     fmt.Sprintf("Operation %s failed: %s", opID, reason),
		Level:       EventLevelError,
		Data: map[string]interface{}{
			"kind":   kind,
			"reason": reason,
		},
	})
}

// PublishSkillApplied publishes a skill applied event.
func (ep *EventPublisher) PublishSkillApplied(opID, skill, version string) error {
	return ep.Publish(Event{
		Type:        EventTypeSkillApplied,
		Source:      "engine",
		OperationID: opID,
		Skill:       skill,
		Message:     fmt.Sprintf("Skill %s@%s applied", skill, version),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"version": version,
		},
	})
}

// PublishSkillFailed publishes a skill failed event.
func (ep *EventPublisher) PublishSkillFailed(opID, skill, reason string) error {
	return ep.Publish(Event{
		Type:        EventTypeSkillFailed,
		Source:      "engine",
		OperationID: opID,
		Skill:       skill,
		Message:     fmt.Sprintf("Skill %s failed: %s", skill, reason),
		Level:       EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishMergeConflict publishes a merge conflict event.
func (ep *EventPublisher) PublishMergeConflict(opID, skill, path string, conflicts int) error {
	return ep.Publish(Event{
		Type:        EventTypeMergeConflict,
		Source:      "merge",
		OperationID: opID,
		Skill:       skill,
		Path:        path,
		Message:     fmt.Sprintf("Merge of %s for skill %s produced %d conflicts", path, skill, conflicts),
		Level:       EventLevelWarning,
		Data: map[string]interface{}{
			"conflicts": conflicts,
		},
	})
}

// PublishResolutionReused publishes a cached resolution reuse event.
func (ep *EventPublisher) PublishResolutionReused(opID, skill, path string) error {
	return ep.Publish(Event{
		Type:        EventTypeResolutionReused,
		Source:      "merge",
		OperationID: opID,
		Skill:       skill,
		Path:        path,
		Message:     fmt.Sprintf("Cached resolution reused for %s", path),
		Level:       EventLevelInfo,
	})
}

// PublishDriftDetected publishes a drift detected event.
func (ep *EventPublisher) PublishDriftDetected(skill, path string) error {
	return ep.Publish(Event{
		Type:    EventTypeDriftDetected,
		Source:  "status",
		Skill:   skill,
		Path:    path,
		Message: fmt.Sprintf("Drift detected on %s (recorded by skill %s)", path, skill),
		Level:   EventLevelWarning,
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(skill, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy_engine",
		Skill:   skill,
		Message: fmt.Sprintf("Policy violation for skill %s: %s", skill, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush flushes events periodically.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Trigger flush by draining buffer
			// This is handled by the processEvents goroutine
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByOperationID creates a filter that only allows events for a specific operation.
func FilterByOperationID(opID string) EventFilter {
	return func(event Event) bool {
		return event.OperationID == opID
	}
}

// FilterBySkill creates a filter that only allows events for a specific skill.
func FilterBySkill(skill string) EventFilter {
	return func(event Event) bool {
		return event.Skill == skill
	}
}
