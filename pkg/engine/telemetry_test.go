package engine

import (
	"context"
	"testing"
	"time"

	"github.com/skillfuse/skillfuse/pkg/telemetry"
)

// collectEvents subscribes to the publisher and feeds everything it
// delivers into the returned channel. Delivery happens on subscriber
// goroutines, so assertions drain the channel with a deadline instead of
// inspecting shared state.
func collectEvents(t *testing.T, ep *telemetry.EventPublisher) <-chan telemetry.Event {
	t.Helper()
	ch := make(chan telemetry.Event, 64)
	ep.Subscribe(func(ev telemetry.Event) { ch <- ev }, nil)
	return ch
}

// waitForEvents drains the channel until one event of every wanted type
// has been seen, keyed by type. Delivery order is not guaranteed.
func waitForEvents(t *testing.T, ch <-chan telemetry.Event, types ...string) map[string]telemetry.Event {
	t.Helper()
	want := make(map[string]bool, len(types))
	for _, typ := range types {
		want[typ] = true
	}
	seen := make(map[string]telemetry.Event, len(types))
	deadline := time.After(5 * time.Second)
	for len(seen) < len(want) {
		select {
		case ev := <-ch:
			if want[ev.Type] {
				seen[ev.Type] = ev
			}
		case <-deadline:
			for typ := range want {
				if _, ok := seen[typ]; !ok {
					t.Errorf("no %s event observed", typ)
				}
			}
			t.FailNow()
		}
	}
	return seen
}

func TestInstall_PublishesLifecycleEvents(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "alpha line1\nline2\nline3\n"})

	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	o.Events = events
	ch := collectEvents(t, events)

	res := o.Install(context.Background(), "alpha", false)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	seen := waitForEvents(t, ch,
		telemetry.EventTypeOperationStarted,
		telemetry.EventTypeSkillApplied,
		telemetry.EventTypeOperationCompleted)
	if seen[telemetry.EventTypeOperationStarted].OperationID == "" {
		t.Error("operation.started event has no operation id")
	}
	if skill := seen[telemetry.EventTypeSkillApplied].Skill; skill != "alpha" {
		t.Errorf("skill.applied Skill = %q", skill)
	}
}

func TestInstall_PublishesConflictEvents(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "line1\nalpha line2\nline3\n"})
	writeSkill(t, o, "beta", "skill: beta\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "line1\nbeta line2\nline3\n"})

	if res := o.Install(context.Background(), "alpha", false); !res.Success {
		t.Fatalf("alpha install failed: %+v", res)
	}

	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	o.Events = events
	ch := collectEvents(t, events)

	res := o.Install(context.Background(), "beta", false)
	if res.Success {
		t.Fatal("expected a merge conflict")
	}

	seen := waitForEvents(t, ch,
		telemetry.EventTypeMergeConflict,
		telemetry.EventTypeOperationFailed)
	if path := seen[telemetry.EventTypeMergeConflict].Path; path != "src/app.js" {
		t.Errorf("merge.conflict Path = %q", path)
	}
}

func TestOperations_WithTracerConfigured(t *testing.T) {
	o := newWorkspace(t)
	writeSkill(t, o, "alpha", "skill: alpha\nversion: 1.0.0\nmodifies: [src/app.js]\n",
		map[string]string{"modify/src/app.js": "alpha line1\nline2\nline3\n"})

	// A disabled config yields a no-op provider; spans must still open
	// and close cleanly around every operation.
	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{Enabled: false}, "skillfuse", "test", "test")
	if err != nil {
		t.Fatal(err)
	}
	o.Tracer = tracer

	if res := o.Install(context.Background(), "alpha", false); !res.Success {
		t.Fatalf("install result = %+v", res)
	}
	if res := o.ReplayAll(context.Background()); !res.Success {
		t.Fatalf("replay result = %+v", res)
	}
	if res := o.Uninstall(context.Background(), "alpha", false); !res.Success {
		t.Fatalf("uninstall result = %+v", res)
	}
}
