package eventstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vsm-systems/corevsm/internal/causality"
	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

// wireEvent mirrors Event's exported shape for JSON transport, reusing
// the jsonValue encoding already used by the bolt snapshot store so a
// payload has exactly one on-the-wire representation across persistence
// and the broker adapter.
type wireEvent struct {
	ID uuid.UUID `json:"id"`
	StreamID string `json:"stream_id"`
	StreamVersion int64 `json:"stream_version"`
	GlobalPosition int64 `json:"global_position"`
	EventType string `json:"event_type"`
	Payload json.RawMessage `json:"payload"`
	Metadata map[string]jsonValue `json:"metadata,omitempty"`
	CorrelationID string `json:"correlation_id"`
	CausationID string `json:"causation_id"`
	Timestamp time.Time `json:"timestamp"`
	Causality causality.Envelope `json:"causality"`
}

// EncodeEventJSON serializes an Event for transport across the broker
// adapter (or any other wire boundary outside this process).
func EncodeEventJSON(event Event) ([]byte, error) {
	payloadJSON, err := encodeValue(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("eventstore: encode event payload: %w", err)
	}
	metadata := make(map[string]jsonValue, len(event.Metadata))
	for k, v := range event.Metadata {
		metadata[k] = toJSONValue(v)
	}
	wire := wireEvent{
		ID: event.ID,
		StreamID: event.StreamID,
		StreamVersion: event.StreamVersion,
		GlobalPosition: event.GlobalPosition,
		EventType: event.EventType,
		Payload: payloadJSON,
		Metadata: metadata,
		CorrelationID: event.CorrelationID,
		CausationID: event.CausationID,
		Timestamp: event.Timestamp,
		Causality: event.Causality,
	}
	return json.Marshal(wire)
}

// DecodeEventJSON is the inverse of EncodeEventJSON.
func DecodeEventJSON(data []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, fmt.Errorf("eventstore: unmarshal wire event: %w", err)
	}
	payload, err := decodeValue(wire.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("eventstore: decode event payload: %w", err)
	}
	metadata := make(vsmvalue.Metadata, len(wire.Metadata))
	for k, v := range wire.Metadata {
		metadata[k] = fromJSONValue(v)
	}
	return Event{
		ID: wire.ID,
		StreamID: wire.StreamID,
		StreamVersion: wire.StreamVersion,
		GlobalPosition: wire.GlobalPosition,
		EventType: wire.EventType,
		Payload: payload,
		Metadata: metadata,
		CorrelationID: wire.CorrelationID,
		CausationID: wire.CausationID,
		Timestamp: wire.Timestamp,
		Causality: wire.Causality,
	}, nil
}
