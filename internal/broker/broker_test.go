package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

func fastRetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 5 * time.Millisecond
	b.Multiplier = 1.5
	b.RandomizationFactor = 0
	return backoff.WithMaxRetries(b, 3)
}

func TestMemoryTransportDeliversToSubscriber(t *testing.T) {
	transport := NewMemoryTransport()
	received := make(chan eventstore.Event, 1)

	_, err := transport.Subscribe(context.Background(), "orders", func(ctx context.Context, event eventstore.Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := eventstore.Event{StreamID: "orders-1", EventType: "order.created"}
	if err := transport.Publish(context.Background(), "orders", event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.EventType != "order.created" {
			t.Fatalf("unexpected event type %q", got.EventType)
		}
	default:
		t.Fatal("expected synchronous delivery to the subscriber")
	}
}

func TestMemoryTransportUnsubscribeStopsDelivery(t *testing.T) {
	transport := NewMemoryTransport()
	var count int
	sub, _ := transport.Subscribe(context.Background(), "orders", func(ctx context.Context, event eventstore.Event) error {
		count++
		return nil
	})

	transport.Publish(context.Background(), "orders", eventstore.Event{})
	sub.Unsubscribe()
	transport.Publish(context.Background(), "orders", eventstore.Event{})

	if count != 1 {
		t.Fatalf("expected exactly one delivery before unsubscribe, got %d", count)
	}
}

func TestAdapterStampsCausalityOnPublish(t *testing.T) {
	transport := NewMemoryTransport()
	adapter := New(transport, "node-a")

	var got eventstore.Event
	transport.Subscribe(context.Background(), "s1", func(ctx context.Context, event eventstore.Event) error {
		got = event
		return nil
	})

	adapter.Publish(context.Background(), "s1", eventstore.Event{EventType: "system1.operation"})

	if got.Causality.TraceID == "" {
		t.Fatal("expected the adapter to stamp a causality envelope")
	}
	if got.Causality.OriginNode != "node-a" {
		t.Fatalf("expected origin node node-a, got %q", got.Causality.OriginNode)
	}
}

func TestAdapterRetriesBeforeDeadLettering(t *testing.T) {
	transport := NewMemoryTransport()

	var attempts int
	var mu sync.Mutex
	var deadLettered bool

	adapter := New(transport, "node-a",
		WithRetryPolicy(fastRetryPolicy),
		WithDeadLetter(func(subject string, event eventstore.Event, err error) {
			mu.Lock()
			deadLettered = true
			mu.Unlock()
		}),
	)

	adapter.Subscribe(context.Background(), "s1", func(ctx context.Context, event eventstore.Event) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("transient failure")
	})

	transport.Publish(context.Background(), "s1", eventstore.Event{})

	mu.Lock()
	defer mu.Unlock()
	if attempts < 2 {
		t.Fatalf("expected more than one attempt due to retry, got %d", attempts)
	}
	if !deadLettered {
		t.Fatal("expected dead letter callback once retries are exhausted")
	}
}

func TestAdapterSubscribeSucceedsWithoutRetryOnFirstTry(t *testing.T) {
	transport := NewMemoryTransport()
	adapter := New(transport, "node-a")

	var attempts int
	adapter.Subscribe(context.Background(), "s1", func(ctx context.Context, event eventstore.Event) error {
		attempts++
		return nil
	})

	transport.Publish(context.Background(), "s1", eventstore.Event{})

	if attempts != 1 {
		t.Fatalf("expected exactly one attempt on success, got %d", attempts)
	}
}
