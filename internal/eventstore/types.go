// Package eventstore implements the Event Store (C1): an append-only,
// per-stream log with optimistic concurrency, snapshots, all-stream
// tailing, and subscription fan-out. Grounded on // internal/events/stream.go Stream (per-subscriber pending/ack
// bookkeeping, enforceRetentionLocked, non-blocking fan-out with
// select/default drops), generalized from a single fixed-retention
// combat/radar/game log to a multi-stream, optimistically-concurrent
// store with real persistence behind a pluggable SnapshotStore.
package eventstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/vsm-systems/corevsm/internal/causality"
	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

// AnyVersion requests an append regardless of the stream's current version.
const AnyVersion int64 = -1

// Event is an immutable, once-appended record in a stream.
type Event struct {
	ID uuid.UUID
	StreamID string
	StreamVersion int64
	GlobalPosition int64
	EventType string
	Payload vsmvalue.Value
	Metadata vsmvalue.Metadata
	CorrelationID string
	CausationID string
	Timestamp time.Time
	Causality causality.Envelope
}

// Clone returns a deep, independent copy of e, preserving the
// copy-on-send semantics required across every component boundary.
func (e Event) Clone() Event {
	clone := e
	clone.Payload = e.Payload.Clone()
	clone.Metadata = e.Metadata.Clone()
	return clone
}

// NewEventInput is the caller-supplied shape of an event awaiting append;
// identifiers and ordering fields are assigned by the store.
type NewEventInput struct {
	EventType string
	Payload vsmvalue.Value
	Metadata vsmvalue.Metadata
	CorrelationID string
	CausationID string
	Causality causality.Envelope
}

// Snapshot is an advisory, non-authoritative aggregate summary for a stream.
type Snapshot struct {
	StreamID string
	AggregateVersion int64
	Payload vsmvalue.Value
	Timestamp time.Time
}

// StreamMeta describes the lifetime bookkeeping for one stream.
type StreamMeta struct {
	StreamID string
	CurrentVersion int64
	FirstTimestamp time.Time
	LastTimestamp time.Time
	SnapshotVersion int64
	HasSnapshot bool
}

// AppendResult reports the outcome of an optimistic-concurrency append.
type AppendResult struct {
	OK bool
	NewVersion int64
	Conflict bool
	CurrentVersion int64
	Events []Event
}
