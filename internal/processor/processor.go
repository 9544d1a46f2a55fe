package processor

import (
	"fmt"
	"sync"
	"time"

	"github.com/vsm-systems/corevsm/internal/analytics"
	"github.com/vsm-systems/corevsm/internal/eventstore"
	"github.com/vsm-systems/corevsm/internal/patterns"
	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

// AnalyticsRecorder is the subset of analytics.Analytics the Processor
// needs, kept as an interface so tests can supply a lightweight fake
// instead of a real Analytics instance.
type AnalyticsRecorder interface {
	RecordEvent(eventType string, latencyMs float64)
	RecordSubsystem(kind analytics.SubsystemKind, outcome analytics.SubsystemOutcome, latencyMs float64)
}

// Dependencies wires the Processor to the rest of the system.
type Dependencies struct {
	Store *eventstore.Store
	Matcher *patterns.Matcher
	Analytics AnalyticsRecorder

	Broadcast func(batch []Enriched)
	PushLiveUpdate func(batch []Enriched)
	UpdateAggregations func(batch []Enriched)
}

// Processor is the Processor component (C3).
type Processor struct {
	deps Dependencies
	lanes map[Lane]*laneRunner

	mu sync.Mutex
	deadLetters []DeadLetter
	onDeadLetter func(DeadLetter)

	now func() time.Time
}

// New constructs a Processor with one laneRunner per lane, configured
// from cfg (typically config.DefaultLanes()).
func New(cfg map[Lane]LaneConfig, deps Dependencies) *Processor {
	p := &Processor{
		deps: deps,
		lanes: make(map[Lane]*laneRunner, 4),
		now: time.Now,
	}

	p.lanes[LaneHighPriority] = newLaneRunner(cfg[LaneHighPriority], p.handleHighPriority, p.onBatchError)
	p.lanes[LaneNormalPriority] = newLaneRunner(cfg[LaneNormalPriority], p.handleNormalPriority, p.onBatchError)
	p.lanes[LaneAnalytics] = newLaneRunner(cfg[LaneAnalytics], p.handleAnalytics, p.onBatchError)
	p.lanes[LanePatternMatching] = newLaneRunner(cfg[LanePatternMatching], p.handlePatternMatching, p.onBatchError)

	return p
}

// OnDeadLetter registers a callback invoked for every dead-letter
// record produced by a failed batch step.
func (p *Processor) OnDeadLetter(fn func(DeadLetter)) {
	p.onDeadLetter = fn
}

// Start begins every lane's timeout-driven flush loop.
func (p *Processor) Start() {
	for _, lane := range p.lanes {
		lane.Run()
	}
}

// Stop ends every lane's flush loop, flushing any remaining batch.
func (p *Processor) Stop() {
	for _, lane := range p.lanes {
		lane.Stop()
	}
}

// Submit enriches, classifies, and queues one raw event for lane
// batching — the Processor's single entry point from the Producer.
func (p *Processor) Submit(event eventstore.Event, source, priority string, receivedAt time.Time) {
	enriched := Enrich(event, source, priority, receivedAt, p.now())
	lane := Classify(enriched, PayloadUrgency(enriched))
	enriched.Lane = lane
	p.lanes[lane].Submit(enriched)
}

// Flush forces every lane to drain its pending batch immediately,
// primarily for tests and graceful shutdown.
func (p *Processor) Flush() {
	for _, lane := range p.lanes {
		lane.Flush()
	}
}

func (p *Processor) handleHighPriority(batch []Enriched) error {
	for _, e := range batch {
		input := eventstore.NewEventInput{
			EventType: e.Event.EventType,
			Payload: e.Event.Payload,
			Metadata: e.Event.Metadata,
		}
		result, err := p.deps.Store.Append(e.Event.StreamID, eventstore.AnyVersion, []eventstore.NewEventInput{input}, nil)
		if err != nil {
			return fmt.Errorf("persist high priority event: %w", err)
		}
		if p.deps.Matcher != nil {
			for _, persisted := range result.Events {
				p.deps.Matcher.CheckCritical(persisted)
			}
		}
	}
	if p.deps.Broadcast != nil {
		p.deps.Broadcast(batch)
	}
	if p.deps.PushLiveUpdate != nil {
		p.deps.PushLiveUpdate(batch)
	}
	return nil
}

func (p *Processor) handleNormalPriority(batch []Enriched) error {
	byStream := make(map[string][]Enriched)
	for _, e := range batch {
		byStream[e.Event.StreamID] = append(byStream[e.Event.StreamID], e)
	}

	for streamID, events := range byStream {
		inputs := make([]eventstore.NewEventInput, len(events))
		for i, e := range events {
			inputs[i] = eventstore.NewEventInput{
				EventType: e.Event.EventType,
				Payload: e.Event.Payload,
				Metadata: e.Event.Metadata,
			}
		}
		result, err := p.deps.Store.Append(streamID, eventstore.AnyVersion, inputs, nil)
		if err != nil {
			return fmt.Errorf("persist normal priority batch: %w", err)
		}
		if p.deps.Matcher != nil {
			for _, persisted := range result.Events {
				p.deps.Matcher.CheckStandard(persisted)
			}
		}
	}

	if p.deps.UpdateAggregations != nil {
		p.deps.UpdateAggregations(batch)
	}
	return nil
}

func (p *Processor) handleAnalytics(batch []Enriched) error {
	if p.deps.Analytics == nil {
		return nil
	}
	for _, e := range batch {
		latencyMs := float64(e.ProcessingStartedAt.Sub(e.ReceivedAt).Milliseconds())
		p.deps.Analytics.RecordEvent(e.Event.EventType, latencyMs)
	}
	return nil
}

func (p *Processor) handlePatternMatching(batch []Enriched) error {
	if p.deps.Matcher == nil {
		return nil
	}
	events := make([]eventstore.Event, len(batch))
	for i, e := range batch {
		events[i] = e.Event
	}
	p.deps.Matcher.ProcessEvents(events)
	return nil
}

// onBatchError records a dead-letter for every event in a failed batch
// and notifies the registered callback, per failure
// semantics: the message is marked failed and the pipeline continues.
func (p *Processor) onBatchError(batch []Enriched, err error) {
	now := p.now()
	for _, e := range batch {
		dl := DeadLetter{Original: e, Error: err.Error(), Timestamp: now, RetryCount: 0}
		p.mu.Lock()
		p.deadLetters = append(p.deadLetters, dl)
		p.mu.Unlock()

		if p.deps.Analytics != nil {
			latencyMs := float64(now.Sub(e.ReceivedAt).Milliseconds())
			if kind, ok := analytics.SubsystemFromEventType(e.Event.EventType); ok {
				p.deps.Analytics.RecordSubsystem(kind, analytics.OutcomeError, latencyMs)
			} else {
				p.deps.Analytics.RecordSubsystem(analytics.SubsystemS1, analytics.OutcomeError, latencyMs)
			}
		}

		if p.deps.Store != nil {
			payload := vsmvalue.String(err.Error())
			_, _ = p.deps.Store.Append(eventstore.DeadLetterStream, eventstore.AnyVersion, []eventstore.NewEventInput{{
				EventType: "processor.dead_letter",
				Payload: payload,
			}}, nil)
		}
		if p.onDeadLetter != nil {
			p.onDeadLetter(dl)
		}
	}
}

// DeadLetters returns a copy of every dead letter recorded so far.
func (p *Processor) DeadLetters() []DeadLetter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DeadLetter(nil), p.deadLetters...)
}
