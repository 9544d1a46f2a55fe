// Package processor implements the Processor component (C3): it
// enriches and classifies every event into one of four priority lanes,
// batches within each lane by size or timeout, and dispatches each
// batch to persistence, the Pattern Matcher, and Analytics. Grounded on
// internal/replay.Writer (pending-buffer-plus-cadence
// flush for AppendFrame) for lane batching, and on
// internal/grpc/service.go's per-request concurrency gating for the
// per-lane concurrency limits.
package processor

import (
	"time"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// Lane names one of the four priority buckets events are routed into.
type Lane string

const (
	LaneHighPriority Lane = "high_priority"
	LaneNormalPriority Lane = "normal_priority"
	LaneAnalytics Lane = "analytics"
	LanePatternMatching Lane = "pattern_matching"
)

// Enriched is an event after step 1 of the pipeline: the store event
// plus its ambient enrichment fields.
type Enriched struct {
	Event eventstore.Event
	ReceivedAt time.Time
	ProcessingStartedAt time.Time
	Source string
	Priority string
	CorrelationID string
	PartitionKey string
	Lane Lane
}

// DeadLetter is the record appended to the dead-letter stream when a
// batch step fails.
type DeadLetter struct {
	Original Enriched
	Error string
	Timestamp time.Time
	RetryCount int
}
