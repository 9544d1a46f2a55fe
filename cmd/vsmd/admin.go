package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vsm-systems/corevsm/internal/eventstore"
	"github.com/vsm-systems/corevsm/internal/logging"
	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

// injectRequest is the direct-API shape for "injected
// events" producer source: the minimum an external caller must supply,
// with identity, ordering and causality filled in by the process.
type injectRequest struct {
	StreamID string `json:"stream_id"`
	EventType string `json:"event_type"`
	Payload json.RawMessage `json:"payload"`
}

// injectHandler admits one directly-injected event into the Producer's
// buffer. Payloads arrive as plain JSON from the caller rather than
// vsmvalue's tagged wire shape, so it's decoded with jsonToValue instead
// of eventstore's wire codec, which round-trips the tagged shape only.
func injectHandler(prod interface{ Ingest(eventstore.Event, string) }, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}
		var req injectRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "decode request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.StreamID == "" || req.EventType == "" {
			http.Error(w, "stream_id and event_type are required", http.StatusBadRequest)
			return
		}

		payload, err := jsonToValue(req.Payload)
		if err != nil {
			http.Error(w, "decode payload: "+err.Error(), http.StatusBadRequest)
			return
		}

		event := eventstore.Event{
			ID: uuid.New(),
			StreamID: req.StreamID,
			EventType: req.EventType,
			Payload: payload,
			Timestamp: time.Now().UTC(),
		}

		prod.Ingest(event, "direct_injection")
		logger.Debug("event injected", logging.String("stream_id", req.StreamID), logging.String("event_type", req.EventType))
		w.WriteHeader(http.StatusAccepted)
	}
}

// jsonToValue decodes an arbitrary JSON document into vsmvalue's tagged
// shape, the inbound counterpart to usual marshal-only
// boundary: everything coming from outside the process gets converted
// into the internal representation exactly once, at the edge.
func jsonToValue(raw json.RawMessage) (vsmvalue.Value, error) {
	if len(raw) == 0 {
		return vsmvalue.Null(), nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return vsmvalue.Value{}, err
	}
	return anyToValue(decoded)
}

func anyToValue(v interface{}) (vsmvalue.Value, error) {
	switch t := v.(type) {
	case nil:
		return vsmvalue.Null(), nil
	case string:
		return vsmvalue.String(t), nil
	case float64:
		return vsmvalue.Float64(t), nil
	case bool:
		return vsmvalue.Bool(t), nil
	case []interface{}:
		items := make([]vsmvalue.Value, len(t))
		for i, item := range t {
			converted, err := anyToValue(item)
			if err != nil {
				return vsmvalue.Value{}, err
			}
			items[i] = converted
		}
		return vsmvalue.List(items...), nil
	case map[string]interface{}:
		entries := make(map[string]vsmvalue.Value, len(t))
		for k, item := range t {
			converted, err := anyToValue(item)
			if err != nil {
				return vsmvalue.Value{}, err
			}
			entries[k] = converted
		}
		return vsmvalue.Map(entries), nil
	default:
		return vsmvalue.Value{}, fmt.Errorf("unsupported JSON value type %T", t)
	}
}
