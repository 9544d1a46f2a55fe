package processor

import "strings"

var patternMatchingPrefixes = []string{
	"variety.",
	"system1.operation.",
	"system2.coordination.",
	"recursion.",
	"chaos.",
	"emergent.",
}

// Classify assigns an enriched event to one of the four lanes by
// priority, event type, and payload urgency. urgency is the payload's
// urgency field (0 if absent); callers extract it from the event
// payload before calling.
func Classify(enriched Enriched, urgency float64) Lane {
	eventType := enriched.Event.EventType

	if enriched.Priority == "high" ||
		strings.HasPrefix(eventType, "algedonic.") ||
		strings.HasPrefix(eventType, "system5.") ||
		strings.Contains(eventType, ".critical.") ||
		urgency > 0.8 {
		return LaneHighPriority
	}

	if strings.Contains(eventType, ".metric.") ||
		strings.Contains(eventType, ".performance.") ||
		strings.HasPrefix(eventType, "analytics.") {
		return LaneAnalytics
	}

	for _, prefix := range patternMatchingPrefixes {
		if strings.HasPrefix(eventType, prefix) {
			return LanePatternMatching
		}
	}

	return LaneNormalPriority
}

// PayloadUrgency reads a numeric "urgency" field out of a payload
// shaped as a vsmvalue map, returning 0 if absent or not a map.
func PayloadUrgency(enriched Enriched) float64 {
	payload := enriched.Event.Payload
	dict, ok := payload.AsMap()
	if !ok {
		return 0
	}
	urgency, ok := dict["urgency"]
	if !ok {
		return 0
	}
	value, _ := urgency.AsFloat64()
	return value
}
