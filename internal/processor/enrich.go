package processor

import (
	"time"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// Enrich attaches received_at/processing_started_at/source/priority/
// correlation_id/partition_key to a raw event, per.3 step 1.
// correlation_id reuses the store's own fingerprint derivation so the
// value a message carries in flight matches what the store assigns on
// append.
func Enrich(event eventstore.Event, source, priority string, receivedAt, now time.Time) Enriched {
	return Enriched{
		Event: event,
		ReceivedAt: receivedAt,
		ProcessingStartedAt: now,
		Source: source,
		Priority: priority,
		CorrelationID: eventstore.CorrelationFingerprint(event.StreamID, event.EventType),
		PartitionKey: derivePartitionKey(event.StreamID),
	}
}

// derivePartitionKey mirrors the common partition-key convention where
// the routing key is the originating stream id itself, letting any
// downstream broker shard by it directly.
func derivePartitionKey(streamID string) string {
	return streamID
}
