package main

import (
	"context"
	"time"

	"github.com/vsm-systems/corevsm/internal/config"
	"github.com/vsm-systems/corevsm/internal/metrics"
	"github.com/vsm-systems/corevsm/internal/supervisor"
	"github.com/vsm-systems/corevsm/internal/topics"
)

// dashboardTopics are the subjects the websocket dashboard observer
// mirrors for external consumers, a subset of the full topic list: the
// human-facing ones, not every internal broadcast.
var dashboardTopics = []string{
	topics.EventsLive,
	topics.EventsPatterns,
	topics.AnalyticsInsights,
	topics.EmergencyResponse,
	topics.EmergencyRecursion,
}

// pullBatchSize is how many buffered messages the producer-to-processor
// pump requests on each tick of the demand-pull interface.
const pullBatchSize = 64

// pumpInterval is the cadence of the demand-pull from Producer into
// Processor.Submit; small enough to keep pipeline latency low without
// busy-spinning.
const pumpInterval = 5 * time.Millisecond

// buildChildren returns the supervised children in their required
// startup order. Every Start func blocks until ctx is cancelled, per
// the Child contract in internal/supervisor.
func buildChildren(a *app, cfg *config.Config, registry *metrics.Registry) []supervisor.Child {
	return []supervisor.Child{
		{Name: "event_store", Start: func(ctx context.Context) error {
			sub := a.store.SubscribeAll()
			defer a.store.Unsubscribe(sub)
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-sub.Events():
					if !ok {
						return nil
					}
					a.prod.Ingest(event, "store_subscription")
				}
			}
		}},
		{Name: "producer", Start: func(ctx context.Context) error {
			a.prod.Start(ctx, cfg.ProducerPollInterval)
			ticker := time.NewTicker(pumpInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					a.prod.Stop()
					return nil
				case <-ticker.C:
					for _, msg := range a.prod.Pull(pullBatchSize) {
						priority := priorityForEventType(msg.Event.EventType)
						a.proc.Submit(msg.Event, msg.Source, priority, msg.ReceivedAt)
					}
					registry.BufferFillLevel.Set(a.prod.FillLevel())
				}
			}
		}},
		{Name: "pattern_matcher", Start: func(ctx context.Context) error {
			a.matcher.Run(ctx, 50*time.Millisecond)
			<-ctx.Done()
			return nil
		}},
		{Name: "analytics", Start: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}},
		{Name: "processor", Start: func(ctx context.Context) error {
			a.proc.Start()
			<-ctx.Done()
			a.proc.Flush()
			a.proc.Stop()
			return nil
		}},
		{Name: "coordinator", Start: func(ctx context.Context) error {
			a.engine.Run(ctx)
			<-ctx.Done()
			return nil
		}},
		{Name: "broker_adapter", Start: func(ctx context.Context) error {
			for _, subject := range dashboardTopics {
				if err := a.dashboard.Watch(ctx, a.adapter, subject); err != nil {
					return err
				}
			}
			<-ctx.Done()
			return nil
		}},
	}
}
