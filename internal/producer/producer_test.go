package producer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsm-systems/corevsm/internal/causality"
	"github.com/vsm-systems/corevsm/internal/eventstore"
)

func testEvent(eventType string) eventstore.Event {
	return eventstore.Event{EventType: eventType}
}

func TestIngestAndPullFIFO(t *testing.T) {
	p := New(Config{BufferCapacity: 10}, nil, nil)
	p.Ingest(testEvent("a"), "test")
	p.Ingest(testEvent("b"), "test")
	p.Ingest(testEvent("c"), "test")

	pulled := p.Pull(2)
	require.Len(t, pulled, 2)
	assert.Equal(t, "a", pulled[0].Event.EventType)
	assert.Equal(t, "b", pulled[1].Event.EventType)

	remainder := p.Pull(10)
	require.Len(t, remainder, 1)
	assert.Equal(t, "c", remainder[0].Event.EventType)
}

func TestIngestDropsOldestOnOverflow(t *testing.T) {
	p := New(Config{BufferCapacity: 2}, nil, nil)
	p.Ingest(testEvent("a"), "test")
	p.Ingest(testEvent("b"), "test")
	p.Ingest(testEvent("c"), "test")

	snapshot := p.Snapshot()
	assert.Equal(t, int64(1), snapshot.DroppedTotal)
	assert.Equal(t, int64(3), snapshot.ProducedTotal)

	remaining := p.Pull(10)
	require.Len(t, remaining, 2)
	assert.Equal(t, "b", remaining[0].Event.EventType)
	assert.Equal(t, "c", remaining[1].Event.EventType)
}

func TestIngestStampsCausalityWhenAbsent(t *testing.T) {
	p := New(Config{BufferCapacity: 10, OriginNode: "node-a"}, nil, nil)
	p.Ingest(testEvent("a"), "test")

	pulled := p.Pull(1)
	require.Len(t, pulled, 1)
	assert.NotEmpty(t, pulled[0].Event.Causality.TraceID)
	assert.Equal(t, "node-a", pulled[0].Event.Causality.OriginNode)
}

func TestIngestLeavesExistingCausalityUntouched(t *testing.T) {
	p := New(Config{BufferCapacity: 10, OriginNode: "node-a"}, nil, nil)
	event := testEvent("a")
	event.Causality = causality.Envelope{TraceID: "upstream-trace", OriginNode: "node-b"}
	p.Ingest(event, "test")

	pulled := p.Pull(1)
	require.Len(t, pulled, 1)
	assert.Equal(t, "upstream-trace", pulled[0].Event.Causality.TraceID)
	assert.Equal(t, "node-b", pulled[0].Event.Causality.OriginNode)
}

func TestPullMoreThanAvailableReturnsAll(t *testing.T) {
	p := New(Config{BufferCapacity: 5}, nil, nil)
	p.Ingest(testEvent("a"), "test")
	assert.Len(t, p.Pull(100), 1)
	assert.Empty(t, p.Pull(100))
}

func TestExternalPollIngestsEvents(t *testing.T) {
	calls := make(chan struct{}, 4)
	poll := func(ctx context.Context) []eventstore.Event {
		calls <- struct{}{}
		return []eventstore.Event{testEvent("polled")}
	}
	p := New(Config{BufferCapacity: 10}, poll, nil)
	p.Start(context.Background(), 10*time.Millisecond)
	defer p.Stop()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("poll was never invoked")
	}

	time.Sleep(20 * time.Millisecond)
	assert.NotEmpty(t, p.Pull(10))
}
