// Package broker implements the Broker Adapter (C8): a pluggable
// publish/subscribe boundary between this process and the outside
// world, with causality propagation, ack-after-process, and
// redelivery-on-unacked layered on top of whichever Transport is
// configured. Grounded on the pack's NATS JetStream cluster event bus
// (fluxor's pkg/core/eventbus ClusterJetStreamConfig/clusterJSEventBus:
// durable streams, queue-group fan-out, manual ack with redelivery) for
// the durable transport, and on eventstore-style
// mutex-guarded subscriber fan-out for the in-memory default.
package broker

import (
	"context"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// Handler processes one delivered event. A non-nil error leaves the
// message unacknowledged so the transport (or the adapter's own retry
// policy) can redeliver it.
type Handler func(ctx context.Context, event eventstore.Event) error

// Subscription is returned by Subscribe and released via Unsubscribe.
type Subscription interface {
	Unsubscribe() error
}

// Transport is the pluggable publish/subscribe boundary. Implementations:
// MemoryTransport (in-process default) and JetStreamTransport (durable).
type Transport interface {
	Publish(ctx context.Context, subject string, event eventstore.Event) error
	Subscribe(ctx context.Context, subject string, handler Handler) (Subscription, error)
	Close() error
}
