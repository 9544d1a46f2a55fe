package processor

import (
	"sync"
	"testing"
	"time"

	"github.com/vsm-systems/corevsm/internal/analytics"
	"github.com/vsm-systems/corevsm/internal/eventstore"
	"github.com/vsm-systems/corevsm/internal/patterns"
	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

func testLanes() map[Lane]LaneConfig {
	return map[Lane]LaneConfig{
		LaneHighPriority:    {Concurrency: 2, BatchSize: 1, BatchTimeout: time.Hour},
		LaneNormalPriority:  {Concurrency: 4, BatchSize: 2, BatchTimeout: time.Hour},
		LaneAnalytics:       {Concurrency: 2, BatchSize: 2, BatchTimeout: time.Hour},
		LanePatternMatching: {Concurrency: 2, BatchSize: 2, BatchTimeout: time.Hour},
	}
}

func newEvent(streamID, eventType string, payload vsmvalue.Value) eventstore.Event {
	return eventstore.Event{StreamID: streamID, EventType: eventType, Payload: payload}
}

func TestEnrichAttachesAmbientFields(t *testing.T) {
	event := newEvent("stream-a", "system1.operation.dispatch", vsmvalue.Map(nil))
	received := time.Now().Add(-5 * time.Millisecond)
	now := time.Now()

	enriched := Enrich(event, "gateway", "normal", received, now)

	if enriched.Source != "gateway" {
		t.Fatalf("expected source gateway, got %q", enriched.Source)
	}
	if enriched.CorrelationID == "" {
		t.Fatal("expected a non-empty correlation id")
	}
	if enriched.CorrelationID != eventstore.CorrelationFingerprint("stream-a", "system1.operation.dispatch") {
		t.Fatal("expected correlation id to reuse the store's fingerprint derivation")
	}
	if enriched.PartitionKey != "stream-a" {
		t.Fatalf("expected partition key to default to the stream id, got %q", enriched.PartitionKey)
	}
}

func TestClassifyRoutesByPrefixAndUrgency(t *testing.T) {
	cases := []struct {
		name     string
		priority string
		evtType  string
		urgency  float64
		want     Lane
	}{
		{"explicit high priority", "high", "anything.happened", 0, LaneHighPriority},
		{"algedonic prefix", "normal", "algedonic.pain", 0, LaneHighPriority},
		{"system5 prefix", "normal", "system5.policy.override", 0, LaneHighPriority},
		{"critical infix", "normal", "order.critical.failure", 0, LaneHighPriority},
		{"high urgency payload", "normal", "order.created", 0.95, LaneHighPriority},
		{"metric infix", "normal", "sensor.metric.reading", 0, LaneAnalytics},
		{"analytics prefix", "normal", "analytics.summary", 0, LaneAnalytics},
		{"variety prefix", "normal", "variety.attenuation", 0, LanePatternMatching},
		{"recursion prefix", "normal", "recursion.spawn", 0, LanePatternMatching},
		{"default lane", "normal", "order.shipped", 0.1, LaneNormalPriority},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enriched := Enriched{Event: eventstore.Event{EventType: tc.evtType}, Priority: tc.priority}
			got := Classify(enriched, tc.urgency)
			if got != tc.want {
				t.Fatalf("expected lane %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPayloadUrgencyReadsNumericField(t *testing.T) {
	enriched := Enriched{Event: eventstore.Event{Payload: vsmvalue.Map(map[string]vsmvalue.Value{
		"urgency": vsmvalue.Float64(0.9),
	})}}
	if got := PayloadUrgency(enriched); got != 0.9 {
		t.Fatalf("expected urgency 0.9, got %v", got)
	}

	empty := Enriched{Event: eventstore.Event{Payload: vsmvalue.String("not-a-map")}}
	if got := PayloadUrgency(empty); got != 0 {
		t.Fatalf("expected urgency 0 for non-map payload, got %v", got)
	}
}

func TestLaneRunnerFlushesOnBatchSize(t *testing.T) {
	var mu sync.Mutex
	var flushed []Enriched
	runner := newLaneRunner(LaneConfig{Concurrency: 1, BatchSize: 2, BatchTimeout: time.Hour}, func(batch []Enriched) error {
		mu.Lock()
		flushed = append(flushed, batch...)
		mu.Unlock()
		return nil
	}, nil)
	runner.Run()

	runner.Submit(Enriched{Event: eventstore.Event{EventType: "a"}})
	mu.Lock()
	if len(flushed) != 0 {
		mu.Unlock()
		t.Fatal("expected no flush before batch size reached")
	}
	mu.Unlock()

	runner.Submit(Enriched{Event: eventstore.Event{EventType: "b"}})
	runner.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(flushed) != 2 {
		t.Fatalf("expected a flush of 2 events once batch size reached, got %d", len(flushed))
	}
}

func TestLaneRunnerFlushOnStopDrainsPending(t *testing.T) {
	var mu sync.Mutex
	var flushed []Enriched
	runner := newLaneRunner(LaneConfig{BatchSize: 10, BatchTimeout: time.Hour}, func(batch []Enriched) error {
		mu.Lock()
		flushed = append(flushed, batch...)
		mu.Unlock()
		return nil
	}, nil)
	runner.Run()

	runner.Submit(Enriched{Event: eventstore.Event{EventType: "a"}})
	runner.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(flushed) != 1 {
		t.Fatalf("expected stop to flush the pending event, got %d", len(flushed))
	}
}

func TestLaneRunnerReportsHandlerErrorsAsDeadLetters(t *testing.T) {
	var mu sync.Mutex
	var errored []Enriched
	runner := newLaneRunner(LaneConfig{BatchSize: 1, BatchTimeout: time.Hour}, func(batch []Enriched) error {
		return errFixture
	}, func(batch []Enriched, err error) {
		mu.Lock()
		errored = append(errored, batch...)
		mu.Unlock()
	})
	runner.Run()

	runner.Submit(Enriched{Event: eventstore.Event{EventType: "a"}})
	runner.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(errored) != 1 {
		t.Fatalf("expected the failing batch to be reported once, got %d", len(errored))
	}
}

func TestProcessorHighPriorityPersistsAndBroadcasts(t *testing.T) {
	store := eventstore.New(nil, nil)
	matched := make(chan eventstore.Event, 1)
	matcher := patterns.New(nil)

	var broadcasted []Enriched
	p := New(testLanes(), Dependencies{
		Store:   store,
		Matcher: matcher,
		Broadcast: func(batch []Enriched) {
			broadcasted = append(broadcasted, batch...)
		},
	})

	p.Start()
	event := newEvent("s1-ops", "system5.policy.override", vsmvalue.Map(nil))
	p.Submit(event, "gateway", "normal", time.Now())
	p.Stop()

	if len(broadcasted) != 1 {
		t.Fatalf("expected the high priority lane to broadcast one event, got %d", len(broadcasted))
	}

	meta, ok := store.StreamMeta("s1-ops")
	if !ok || meta.CurrentVersion != 1 {
		t.Fatalf("expected the event to be persisted to stream s1-ops, got meta=%+v ok=%v", meta, ok)
	}
	close(matched)
}

func TestProcessorNormalPriorityBatchesBeforePersisting(t *testing.T) {
	store := eventstore.New(nil, nil)
	var aggregated int
	p := New(testLanes(), Dependencies{
		Store: store,
		UpdateAggregations: func(batch []Enriched) {
			aggregated += len(batch)
		},
	})

	p.Start()
	p.Submit(newEvent("orders-1", "order.created", vsmvalue.Map(nil)), "gateway", "normal", time.Now())
	if meta, ok := store.StreamMeta("orders-1"); ok && meta.CurrentVersion != 0 {
		t.Fatalf("expected no persistence before batch size reached, got version %d", meta.CurrentVersion)
	}

	p.Submit(newEvent("orders-1", "order.shipped", vsmvalue.Map(nil)), "gateway", "normal", time.Now())
	p.Stop()

	meta, ok := store.StreamMeta("orders-1")
	if !ok || meta.CurrentVersion != 2 {
		t.Fatalf("expected both batched events persisted, got meta=%+v ok=%v", meta, ok)
	}
	if aggregated != 2 {
		t.Fatalf("expected aggregations updated with both events, got %d", aggregated)
	}
}

func TestProcessorAnalyticsLaneRecordsEvents(t *testing.T) {
	var recorded []string
	p := New(testLanes(), Dependencies{
		Analytics: &stubRecorder{onRecordEvent: func(eventType string, latencyMs float64) {
			recorded = append(recorded, eventType)
		}},
	})

	p.Start()
	p.Submit(newEvent("s", "sensor.metric.reading", vsmvalue.Map(nil)), "gateway", "normal", time.Now())
	p.Submit(newEvent("s", "sensor.metric.reading", vsmvalue.Map(nil)), "gateway", "normal", time.Now())
	p.Stop()

	if len(recorded) != 2 {
		t.Fatalf("expected both metric events recorded, got %d", len(recorded))
	}
}

func TestProcessorPatternMatchingLaneForwardsBatch(t *testing.T) {
	matcher := patterns.New(nil)
	matcher.AddSpec(patterns.PatternSpec{
		Name:       "variety-burst",
		EventGlobs: []string{"variety.*"},
		Predicate:  func(events []eventstore.Event) bool { return len(events) >= 2 },
		Severity:   patterns.SeverityInfo,
		ActionTag:  "log",
	})
	p := New(testLanes(), Dependencies{Matcher: matcher})

	p.Start()
	p.Submit(newEvent("s", "variety.attenuation", vsmvalue.Map(nil)), "gateway", "normal", time.Now())
	p.Submit(newEvent("s", "variety.amplification", vsmvalue.Map(nil)), "gateway", "normal", time.Now())
	p.Stop()

	if len(matcher.History()) == 0 {
		t.Fatal("expected the pattern matching lane to have forwarded events into the matcher")
	}
}

func TestProcessorDeadLettersOnPersistenceFailure(t *testing.T) {
	store := eventstore.New(nil, nil)
	store.Append("s1-ops", 5, []eventstore.NewEventInput{{EventType: "seed"}}, nil)

	var notified []DeadLetter
	var mu sync.Mutex
	var subsystemErrors int
	recorder := &stubRecorder{onRecordSubsystem: func(kind analytics.SubsystemKind, outcome analytics.SubsystemOutcome, latencyMs float64) {
		mu.Lock()
		defer mu.Unlock()
		if kind == analytics.SubsystemS5 && outcome == analytics.OutcomeError {
			subsystemErrors++
		}
	}}
	p := New(testLanes(), Dependencies{Store: store, Analytics: recorder})
	p.OnDeadLetter(func(dl DeadLetter) {
		notified = append(notified, dl)
	})

	// expectedVersion is stale on purpose below: force a concurrency
	// conflict so the high priority lane's handler returns an error.
	highLane := newLaneRunner(LaneConfig{BatchSize: 1, BatchTimeout: time.Hour}, func(batch []Enriched) error {
		for _, e := range batch {
			if _, err := store.Append(e.Event.StreamID, 5, []eventstore.NewEventInput{{EventType: e.Event.EventType}}, nil); err != nil {
				return err
			}
		}
		return nil
	}, p.onBatchError)
	p.lanes[LaneHighPriority] = highLane
	highLane.Run()

	p.Submit(newEvent("s1-ops", "system5.policy.override", vsmvalue.Map(nil)), "gateway", "normal", time.Now())
	highLane.Stop()

	if len(notified) != 1 {
		t.Fatalf("expected a dead letter notification on append conflict, got %d", len(notified))
	}
	if len(p.DeadLetters()) != 1 {
		t.Fatalf("expected DeadLetters() to report the recorded dead letter, got %d", len(p.DeadLetters()))
	}
	mu.Lock()
	defer mu.Unlock()
	if subsystemErrors != 1 {
		t.Fatalf("expected the dead letter reported as an S5 subsystem error, got %d", subsystemErrors)
	}
}

// stubRecorder is a minimal AnalyticsRecorder fake; nil callbacks are
// simply no-ops, so tests only wire the ones they assert on.
type stubRecorder struct {
	onRecordEvent func(eventType string, latencyMs float64)
	onRecordSubsystem func(kind analytics.SubsystemKind, outcome analytics.SubsystemOutcome, latencyMs float64)
}

func (s *stubRecorder) RecordEvent(eventType string, latencyMs float64) {
	if s.onRecordEvent != nil {
		s.onRecordEvent(eventType, latencyMs)
	}
}

func (s *stubRecorder) RecordSubsystem(kind analytics.SubsystemKind, outcome analytics.SubsystemOutcome, latencyMs float64) {
	if s.onRecordSubsystem != nil {
		s.onRecordSubsystem(kind, outcome, latencyMs)
	}
}

var errFixture = fixtureErr{}

type fixtureErr struct{}

func (fixtureErr) Error() string { return "fixture failure" }
