package broker

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/vsm-systems/corevsm/internal/causality"
	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// DeadLetterFunc is invoked once a handler has exhausted its retry
// budget for a delivered event.
type DeadLetterFunc func(subject string, event eventstore.Event, err error)

// Adapter is the Broker Adapter (C8): it wraps a Transport with
// causality-envelope stamping on publish and a bounded local retry
// (cenkalti/backoff) before a handler failure is allowed to fall
// through to the transport's own redelivery mechanism.
type Adapter struct {
	transport Transport
	originNode string
	retryPolicy func() backoff.BackOff
	onDeadLetter DeadLetterFunc
}

// Option configures an Adapter at construction time.
type Option func(*Adapter)

// WithRetryPolicy overrides the default bounded exponential backoff
// used before a handler failure is surfaced to the transport.
func WithRetryPolicy(factory func() backoff.BackOff) Option {
	return func(a *Adapter) { a.retryPolicy = factory }
}

// WithDeadLetter registers a callback fired when a handler's retries
// are exhausted.
func WithDeadLetter(fn DeadLetterFunc) Option {
	return func(a *Adapter) { a.onDeadLetter = fn }
}

// New constructs an Adapter over transport. originNode identifies this
// process in every causality envelope this adapter originates.
func New(transport Transport, originNode string, opts ...Option) *Adapter {
	a := &Adapter{
		transport: transport,
		originNode: originNode,
		retryPolicy: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Publish forwards event to the underlying transport. event.Causality
// is normally already populated — by internal/producer.Producer.Ingest
// for anything that passed through the Producer, or by whatever
// component appended the event directly to the store otherwise — so
// this is a fallback: it only stamps an envelope (deriving from ctx's
// existing one, or starting a fresh trace) if none arrived.
func (a *Adapter) Publish(ctx context.Context, subject string, event eventstore.Event) error {
	if event.Causality.TraceID == "" {
		env := causality.FromContext(ctx)
		event.Causality = env.Next(a.originNode)
	}
	return a.transport.Publish(ctx, subject, event)
}

// Subscribe registers handler, wrapping it so a transient failure is
// retried locally (bounded) before being surfaced as an unacknowledged
// delivery, and so an exhausted retry budget is reported via the
// registered DeadLetterFunc rather than silently dropped.
func (a *Adapter) Subscribe(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	wrapped := func(ctx context.Context, event eventstore.Event) error {
		policy := backoff.WithContext(a.retryPolicy(), ctx)
		err := backoff.Retry(func() error {
			return handler(ctx, event)
		}, policy)
		if err != nil && a.onDeadLetter != nil {
			a.onDeadLetter(subject, event, err)
		}
		return err
	}
	return a.transport.Subscribe(ctx, subject, wrapped)
}

// Close releases the underlying transport.
func (a *Adapter) Close() error {
	return a.transport.Close()
}
