package main

import (
	"context"
	"strings"
	"time"

	"github.com/vsm-systems/corevsm/internal/analytics"
	"github.com/vsm-systems/corevsm/internal/attention"
	"github.com/vsm-systems/corevsm/internal/broker"
	"github.com/vsm-systems/corevsm/internal/config"
	"github.com/vsm-systems/corevsm/internal/coordinator"
	"github.com/vsm-systems/corevsm/internal/eventstore"
	"github.com/vsm-systems/corevsm/internal/logging"
	"github.com/vsm-systems/corevsm/internal/metrics"
	"github.com/vsm-systems/corevsm/internal/patterns"
	"github.com/vsm-systems/corevsm/internal/processor"
	"github.com/vsm-systems/corevsm/internal/producer"
	"github.com/vsm-systems/corevsm/internal/supervisor"
	"github.com/vsm-systems/corevsm/internal/topics"
	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

// targetBrokerAdapter is the Coordinator's routing destination for
// every outbound broadcast: the Coordinator arbitrates every
// inter-component message before it reaches the Broker Adapter boundary.
const targetBrokerAdapter = "broker_adapter"

// app bundles every wired component plus the ordered, supervisable
// children list, and owns whatever needs releasing on shutdown
// (bolt file handle, broker transport).
type app struct {
	store *eventstore.Store
	matcher *patterns.Matcher
	an *analytics.Analytics
	engine *attention.Engine
	coord *coordinator.Coordinator
	adapter *broker.Adapter
	dashboard *broker.Dashboard
	prod *producer.Producer
	proc *processor.Processor
	snapshots eventstore.SnapshotStore

	children []supervisor.Child
}

func (a *app) close() {
	if a.proc != nil {
		a.proc.Stop()
	}
	if a.adapter != nil {
		_ = a.adapter.Close()
	}
	if closer, ok := a.snapshots.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func wire(cfg *config.Config, registry *metrics.Registry, logger *logging.Logger) (*app, error) {
	snapshots, err := newSnapshotStore(snapshotPath)
	if err != nil {
		return nil, err
	}

	store := eventstore.New(snapshots, nil)
	an := analytics.New(analytics.Config{
		RingCapacity: cfg.Analytics.RingCapacity,
		AnomalySamples: cfg.Analytics.AnomalySamples,
		TrendInterval: cfg.Analytics.TrendInterval,
		DashboardTTL: cfg.Analytics.DashboardTTL,
	})

	transport := newTransport(cfg, logger)
	adapter := broker.New(transport, originNode, broker.WithDeadLetter(func(subject string, event eventstore.Event, err error) {
		logger.Warn("broker handler exhausted retries", logging.String("subject", subject), logging.Error(err))
		_, _ = store.Append(eventstore.DeadLetterStream, eventstore.AnyVersion, []eventstore.NewEventInput{{
			EventType: "broker.dead_letter",
			Payload: vsmvalue.String(err.Error()),
			Metadata: vsmvalue.Metadata{"subject": vsmvalue.String(subject)},
		}}, nil)
	}))

	engine := attention.New(attention.Config{
		Weights: attention.Weights(cfg.AttentionWeights),
		ImmediateWindow: time.Duration(config.DefaultAttentionImmediateMs) * time.Millisecond,
		ShortWindow: time.Duration(config.DefaultAttentionShortMs) * time.Millisecond,
		SustainedWindow: time.Duration(config.DefaultAttentionSustainedMs) * time.Millisecond,
		LongWindow: time.Duration(config.DefaultAttentionLongMs) * time.Millisecond,
		ScaleCap: cfg.AttentionScaleCap,
		FatigueDecayPerTick: cfg.FatigueDecayPerTick,
		ContextDecayFactor: cfg.ContextDecayFactor,
		ContextDecayFloor: cfg.ContextDecayFloor,
		MaintenanceTick: cfg.MaintenanceTick,
		ShiftSettleDelay: cfg.ShiftSettleDelay,
	}, nil, nil)

	coordRules := coordinator.Rules{
		MaxFrequencyPerFlow: cfg.Coordination.MaxFrequencyPerFlow,
		SyncRequiredTypes: cfg.Coordination.SyncRequiredTypes,
		BlockPatterns: cfg.Coordination.BlockPatterns,
		OscillationWindow: cfg.Coordination.OscillationWindow,
		OscillationThreshold: cfg.Coordination.OscillationThreshold,
		DampeningFactor: cfg.Coordination.DampeningFactor,
		SyncTimeout: cfg.SyncTimeout,
	}
	coord := coordinator.New(coordRules, engine, an)

	routeToBroker := func(ctx context.Context, from string, ev eventstore.Event, subject string) {
		decision := coord.Process(coordinator.Message{
			From: from, To: targetBrokerAdapter, Type: ev.EventType,
			Priority: priorityForEventType(ev.EventType),
		})
		if decision.Blocked {
			registry.AttentionFiltered.Inc()
			return
		}
		if decision.Delay > 0 {
			registry.CoordinatorDelayed.Inc()
			time.Sleep(decision.Delay)
		}
		if err := adapter.Publish(ctx, subject, ev); err != nil {
			logger.Warn("publish failed", logging.String("subject", subject), logging.Error(err))
			return
		}
		registry.BrokerPublished.WithLabelValues(subject).Inc()
	}

	matcher := patterns.New(func(match patterns.PatternMatch) {
		registry.PatternMatches.WithLabelValues(match.PatternName).Inc()
		payload := patternMatchPayload(match)
		result, appendErr := store.Append(eventstore.PatternHistoryStream, eventstore.AnyVersion, []eventstore.NewEventInput{{
			EventType: "pattern.matched." + match.PatternName,
			Payload: payload,
		}}, nil)
		if appendErr != nil || len(result.Events) == 0 {
			return
		}
		ev := result.Events[0]
		routeToBroker(context.Background(), "pattern_matcher", ev, topics.EventsPatterns)
		if match.Severity == patterns.SeverityCritical {
			subject := topics.EmergencyResponse
			if match.ActionTag == "limit_recursion" {
				subject = topics.EmergencyRecursion
			}
			routeToBroker(context.Background(), "pattern_matcher", ev, subject)
		}
	})

	prod := producer.New(producer.Config{
		BufferCapacity: cfg.ProducerBufferCapacity,
		PollInterval: cfg.ProducerPollInterval,
		OriginNode: originNode,
	}, nil, registry)

	proc := processor.New(laneConfigs(cfg), processor.Dependencies{
		Store: store,
		Matcher: matcher,
		Analytics: an,
		Broadcast: func(batch []processor.Enriched) {
			for _, e := range batch {
				routeToBroker(context.Background(), "processor", e.Event, topics.EventsHighPriority)
			}
		},
		PushLiveUpdate: func(batch []processor.Enriched) {
			for _, e := range batch {
				routeToBroker(context.Background(), "processor", e.Event, topics.EventsLive)
			}
		},
		UpdateAggregations: func(batch []processor.Enriched) {
			for _, e := range batch {
				an.RecordEvent(e.Event.EventType, float64(e.ProcessingStartedAt.Sub(e.ReceivedAt).Milliseconds()))
			}
		},
	})
	proc.OnDeadLetter(func(dl processor.DeadLetter) {
		registry.ProcessorDeadLetter.WithLabelValues(string(dl.Original.Lane)).Inc()
		routeToBroker(context.Background(), "processor", dl.Original.Event, topics.EventsErrors)
	})

	dashboard := broker.NewDashboard(logger)

	a := &app{
		store: store, matcher: matcher, an: an, engine: engine,
		coord: coord, adapter: adapter, dashboard: dashboard, prod: prod, proc: proc,
		snapshots: snapshots,
	}
	a.children = buildChildren(a, cfg, registry)
	return a, nil
}

func newSnapshotStore(path string) (eventstore.SnapshotStore, error) {
	if path == "" {
		return eventstore.NewMemorySnapshotStore(), nil
	}
	return eventstore.NewBoltSnapshotStore(path)
}

func newTransport(cfg *config.Config, logger *logging.Logger) broker.Transport {
	if !cfg.Broker.Durable {
		return broker.NewMemoryTransport()
	}
	transport, err := broker.NewJetStreamTransport(broker.JetStreamConfig{
		URL: cfg.Broker.URL,
		Prefix: cfg.Broker.Subject,
		Name: originNode,
	})
	if err != nil {
		logger.Warn("jetstream unavailable, falling back to in-process transport", logging.Error(err))
		return broker.NewMemoryTransport()
	}
	return transport
}

func laneConfigs(cfg *config.Config) map[processor.Lane]processor.LaneConfig {
	out := make(map[processor.Lane]processor.LaneConfig, len(cfg.Lanes))
	for name, lc := range cfg.Lanes {
		out[processor.Lane(name)] = processor.LaneConfig{
			Concurrency: lc.Concurrency,
			BatchSize: lc.BatchSize,
			BatchTimeout: lc.BatchTimeout,
		}
	}
	return out
}

func priorityForEventType(eventType string) string {
	if strings.HasPrefix(eventType, "algedonic.") || strings.HasPrefix(eventType, "system5.") {
		return "high"
	}
	return "normal"
}

func patternMatchPayload(match patterns.PatternMatch) vsmvalue.Value {
	return vsmvalue.Map(map[string]vsmvalue.Value{
		"pattern_name": vsmvalue.String(match.PatternName),
		"severity": vsmvalue.String(match.Severity.String()),
		"action_tag": vsmvalue.String(match.ActionTag),
		"confidence": vsmvalue.Float64(match.Confidence),
	})
}
