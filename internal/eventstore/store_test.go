package eventstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

func newTestStore() *Store {
	return New(NewMemorySnapshotStore(), nil)
}

func inputs(eventTypes ...string) []NewEventInput {
	out := make([]NewEventInput, len(eventTypes))
	for i, t := range eventTypes {
		out[i] = NewEventInput{EventType: t, Payload: vsmvalue.Null()}
	}
	return out
}

func TestAppendAssignsGapFreeVersions(t *testing.T) {
	store := newTestStore()

	result, err := store.Append("s1", AnyVersion, inputs("a", "b", "c"), nil)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, int64(3), result.NewVersion)

	events := store.ReadStream("s1", 0, 100)
	require.Len(t, events, 3)
	for i, event := range events {
		assert.Equal(t, int64(i+1), event.StreamVersion)
	}
}

func TestAppendConcurrencyConflict(t *testing.T) {
	store := newTestStore()
	_, err := store.Append("s", AnyVersion, inputs("e1", "e2", "e3", "e4", "e5"), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]AppendResult, 2)
	errs := make([]error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i], errs[i] = store.Append("s", 5, inputs("x1", "x2"), nil)
		}()
	}
	wg.Wait()

	okCount, conflictCount := 0, 0
	for i := range results {
		if results[i].OK {
			okCount++
			assert.Equal(t, int64(7), results[i].NewVersion)
		}
		if results[i].Conflict {
			conflictCount++
			assert.Equal(t, int64(7), results[i].CurrentVersion)
			assert.Error(t, errs[i])
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, conflictCount)

	events := store.ReadStream("s", 0, 100)
	assert.Len(t, events, 7)
}

func TestReadStreamUnknownIsEmpty(t *testing.T) {
	store := newTestStore()
	assert.Empty(t, store.ReadStream("missing", 0, 10))
}

func TestGlobalPositionStrictlyIncreasing(t *testing.T) {
	store := newTestStore()
	_, err := store.Append("a", AnyVersion, inputs("a1"), nil)
	require.NoError(t, err)
	_, err = store.Append("b", AnyVersion, inputs("b1"), nil)
	require.NoError(t, err)
	_, err = store.Append("a", AnyVersion, inputs("a2"), nil)
	require.NoError(t, err)

	all := store.ReadAll(0, 100)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i].GlobalPosition, all[i-1].GlobalPosition)
	}
}

func TestSubscribeAllReceivesCommittedEvents(t *testing.T) {
	store := newTestStore()
	sub := store.SubscribeAll()

	_, err := store.Append("s", AnyVersion, inputs("e1", "e2"), nil)
	require.NoError(t, err)

	received := make([]Event, 0, 2)
	for i := 0; i < 2; i++ {
		received = append(received, <-sub.Events())
	}
	assert.Equal(t, "e1", received[0].EventType)
	assert.Equal(t, "e2", received[1].EventType)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore()
	err := store.SaveSnapshot(Snapshot{StreamID: "s", AggregateVersion: 5, Payload: vsmvalue.String("state")})
	require.NoError(t, err)

	snap, ok, err := store.LoadSnapshot("s")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), snap.AggregateVersion)
}
