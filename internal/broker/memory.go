package broker

import (
	"context"
	"sync"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// MemoryTransport is the in-process default Transport: synchronous,
// non-durable delivery to every subscriber of a subject, grounded on
// eventstore.Store's own mutex-guarded subscriber map and non-blocking
// fan-out.
type MemoryTransport struct {
	mu sync.Mutex
	subscribers map[string]map[uint64]Handler
	nextID uint64
	closed bool
}

// NewMemoryTransport constructs an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subscribers: make(map[string]map[uint64]Handler)}
}

// Publish delivers event synchronously to every handler currently
// subscribed to subject. A handler's error is not retried here; the
// Adapter layer owns the retry/ack policy.
func (t *MemoryTransport) Publish(ctx context.Context, subject string, event eventstore.Event) error {
	t.mu.Lock()
	handlers := make([]Handler, 0, len(t.subscribers[subject]))
	for _, h := range t.subscribers[subject] {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, event.Clone()); err != nil {
			return err
		}
	}
	return nil
}

type memorySubscription struct {
	transport *MemoryTransport
	subject string
	id uint64
}

func (s *memorySubscription) Unsubscribe() error {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	if set, ok := s.transport.subscribers[s.subject]; ok {
		delete(set, s.id)
	}
	return nil
}

// Subscribe registers handler for every future Publish on subject.
func (t *MemoryTransport) Subscribe(ctx context.Context, subject string, handler Handler) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	if t.subscribers[subject] == nil {
		t.subscribers[subject] = make(map[uint64]Handler)
	}
	t.subscribers[subject][id] = handler
	return &memorySubscription{transport: t, subject: subject, id: id}, nil
}

// Close marks the transport closed. Existing subscriptions are left
// intact since nothing holds an external connection to release.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
