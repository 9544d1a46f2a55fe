package eventstore

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

// autoSnapshotGap is the version-gap threshold for automatic snapshots:
// one is taken when version - last_snapshot_version >= 100.
const autoSnapshotGap = 100

// DeadLetterStream and PatternHistoryStream are ordinary streams inside
// this store: dead-lettered events and pattern-match history are just
// reserved stream IDs, not bespoke store types.
const (
	DeadLetterStream = "__dead_letter__"
	PatternHistoryStream = "__pattern_history__"
)

// Reducer folds a stream's events into the payload of its next
// auto-snapshot. Snapshots are advisory, so a nil Reducer simply tracks
// versions without ever emitting snapshot content.
type Reducer func(streamID string, events []Event) vsmvalue.Value

type streamState struct {
	events []Event
	currentVersion int64
	firstTimestamp time.Time
	lastTimestamp time.Time
	snapshotVersion int64
	hasSnapshot bool
}

// Store is the Event Store (C1): an append-only per-stream log with
// optimistic concurrency, grounded on mutex-guarded
// Stream with ...Locked helpers, generalized to many streams, a global
// position index, and check-then-apply conflict detection.
type Store struct {
	mu sync.Mutex

	streams map[string]*streamState
	globalPosition int64

	allSubscribers map[uint64]*Subscription
	streamSubscribers map[string]map[uint64]*Subscription
	nextSubID uint64

	snapshots SnapshotStore
	reduce Reducer
}

// New constructs a Store backed by the given SnapshotStore. Pass
// NewMemorySnapshotStore() for ephemeral use, or a *boltSnapshotStore
// (via NewBoltSnapshotStore) for durability.
func New(snapshots SnapshotStore, reduce Reducer) *Store {
	if snapshots == nil {
		snapshots = NewMemorySnapshotStore()
	}
	return &Store{
		streams: make(map[string]*streamState),
		allSubscribers: make(map[uint64]*Subscription),
		streamSubscribers: make(map[string]map[uint64]*Subscription),
		snapshots: snapshots,
		reduce: reduce,
	}
}

// Append performs a check-then-apply optimistic append. expectedVersion
// is either AnyVersion or the caller's believed current version.
func (s *Store) Append(streamID string, expectedVersion int64, inputs []NewEventInput, metadata vsmvalue.Metadata) (AppendResult, error) {
	if streamID == "" {
		return AppendResult{}, fmt.Errorf("eventstore: stream_id must not be empty")
	}

	s.mu.Lock()
	state, ok := s.streams[streamID]
	if !ok {
		state = &streamState{}
		s.streams[streamID] = state
	}

	if expectedVersion != AnyVersion && expectedVersion != state.currentVersion {
		current := state.currentVersion
		s.mu.Unlock()
		return AppendResult{Conflict: true, CurrentVersion: current}, &ConcurrencyConflictError{StreamID: streamID, CurrentVersion: current}
	}

	now := time.Now().UTC()
	appended := make([]Event, 0, len(inputs))
	for _, in := range inputs {
		state.currentVersion++
		s.globalPosition++

		merged := metadata.Clone()
		if merged == nil {
			merged = vsmvalue.Metadata{}
		}
		merged = merged.Merge(in.Metadata)

		correlationID := in.CorrelationID
		if correlationID == "" {
			correlationID = CorrelationFingerprint(streamID, in.EventType)
		}

		event := Event{
			ID: uuid.New(),
			StreamID: streamID,
			StreamVersion: state.currentVersion,
			GlobalPosition: s.globalPosition,
			EventType: in.EventType,
			Payload: in.Payload,
			Metadata: merged,
			CorrelationID: correlationID,
			CausationID: in.CausationID,
			Timestamp: maxTime(now, state.lastTimestamp),
			Causality: in.Causality,
		}
		state.events = append(state.events, event)
		appended = append(appended, event)

		if state.firstTimestamp.IsZero() {
			state.firstTimestamp = event.Timestamp
		}
		state.lastTimestamp = event.Timestamp
	}

	newVersion := state.currentVersion
	shouldSnapshot := s.reduce != nil && newVersion-state.snapshotVersion >= autoSnapshotGap
	var snapshotEvents []Event
	if shouldSnapshot {
		snapshotEvents = append([]Event(nil), state.events...)
		state.snapshotVersion = newVersion
		state.hasSnapshot = true
	}

	allSubs := make([]*Subscription, 0, len(s.allSubscribers))
	for _, sub := range s.allSubscribers {
		allSubs = append(allSubs, sub)
	}
	streamSubs := make([]*Subscription, 0, len(s.streamSubscribers[streamID]))
	for _, sub := range s.streamSubscribers[streamID] {
		streamSubs = append(streamSubs, sub)
	}
	s.mu.Unlock()

	if shouldSnapshot {
		payload := s.reduce(streamID, snapshotEvents)
		_ = s.snapshots.Save(Snapshot{StreamID: streamID, AggregateVersion: newVersion, Payload: payload, Timestamp: now})
	}

	s.fanOut(allSubs, streamSubs, appended)

	return AppendResult{OK: true, NewVersion: newVersion, Events: appended}, nil
}

func (s *Store) fanOut(allSubs, streamSubs []*Subscription, events []Event) {
	for _, event := range events {
		for _, sub := range allSubs {
			if !sub.deliver(event.Clone()) {
				s.removeSubscriber(sub)
			}
		}
		for _, sub := range streamSubs {
			if !sub.deliver(event.Clone()) {
				s.removeSubscriber(sub)
			}
		}
	}
}

func (s *Store) removeSubscriber(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allSubscribers, sub.id)
	if set, ok := s.streamSubscribers[sub.streamID]; ok {
		delete(set, sub.id)
	}
}

// ReadStream returns events with stream_version > fromVersion, ordered,
// up to maxCount. Unknown streams are treated as empty.
func (s *Store) ReadStream(streamID string, fromVersion int64, maxCount int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.streams[streamID]
	if !ok {
		return nil
	}
	out := make([]Event, 0, maxCount)
	for _, event := range state.events {
		if event.StreamVersion <= fromVersion {
			continue
		}
		out = append(out, event.Clone())
		if len(out) >= maxCount {
			break
		}
	}
	return out
}

// ReadAll returns events in global order starting after fromPosition, up
// to maxCount, supporting cheap tailing across all streams.
func (s *Store) ReadAll(fromPosition int64, maxCount int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, 0, maxCount)
	for position := fromPosition + 1; position <= s.globalPosition && len(out) < maxCount; position++ {
		if event, ok := s.findByGlobalPosition(position); ok {
			out = append(out, event.Clone())
		}
	}
	return out
}

func (s *Store) findByGlobalPosition(position int64) (Event, bool) {
	for _, state := range s.streams {
		for _, event := range state.events {
			if event.GlobalPosition == position {
				return event, true
			}
		}
	}
	return Event{}, false
}

// SaveSnapshot stores an explicit, caller-supplied snapshot.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	s.mu.Lock()
	if state, ok := s.streams[snap.StreamID]; ok {
		state.snapshotVersion = snap.AggregateVersion
		state.hasSnapshot = true
	}
	s.mu.Unlock()
	return s.snapshots.Save(snap)
}

// LoadSnapshot retrieves the current snapshot for a stream, if any.
func (s *Store) LoadSnapshot(streamID string) (Snapshot, bool, error) {
	return s.snapshots.Load(streamID)
}

// StreamMeta reports lifetime bookkeeping for a stream.
func (s *Store) StreamMeta(streamID string) (StreamMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.streams[streamID]
	if !ok {
		return StreamMeta{}, false
	}
	return StreamMeta{
		StreamID: streamID,
		CurrentVersion: state.currentVersion,
		FirstTimestamp: state.firstTimestamp,
		LastTimestamp: state.lastTimestamp,
		SnapshotVersion: state.snapshotVersion,
		HasSnapshot: state.hasSnapshot,
	}, true
}

// SubscribeAll registers a recipient for every event committed to every stream.
func (s *Store) SubscribeAll() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	sub := &Subscription{id: s.nextSubID, kind: SubscribeAll, inbox: make(chan Event, defaultInboxCapacity), active: true}
	s.allSubscribers[sub.id] = sub
	return sub
}

// SubscribeStream registers a recipient for a single stream's events.
func (s *Store) SubscribeStream(streamID string) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	sub := &Subscription{id: s.nextSubID, kind: SubscribeStream, streamID: streamID, inbox: make(chan Event, defaultInboxCapacity), active: true}
	if s.streamSubscribers[streamID] == nil {
		s.streamSubscribers[streamID] = make(map[uint64]*Subscription)
	}
	s.streamSubscribers[streamID][sub.id] = sub
	return sub
}

// Unsubscribe deactivates a subscription and removes it from fan-out.
func (s *Store) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.deactivate()
	s.removeSubscriber(sub)
}

// CorrelationFingerprint derives the stable first-12-hex SHA-256
// fingerprint of a stream id and event type, shared by the store's
// auto-assigned correlation ids and the Processor's enrichment step.
func CorrelationFingerprint(streamID, eventType string) string {
	sum := sha256.Sum256([]byte(streamID + "|" + eventType))
	return fmt.Sprintf("%x", sum)[:12]
}

func maxTime(candidate, floor time.Time) time.Time {
	if floor.IsZero() || candidate.After(floor) {
		return candidate
	}
	return floor
}
