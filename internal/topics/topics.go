// Package topics names the fixed set of broadcast subjects used by the
// Broker Adapter and by in-process fan-out alike. Kept as one canonical
// list rather than scattering string literals across every component.
package topics

import "fmt"

const (
	EventsAll = "events:all"
	EventsHighPriority = "events:high_priority"
	EventsPatterns = "events:patterns"
	EventsErrors = "events:errors"
	EventsLive = "events:live"
	AnalyticsThroughput = "analytics:throughput"
	AnalyticsInsights = "analytics:insights"
	VSMCoordination = "vsm:coordination"
	EmergencyResponse = "emergency:response"
	EmergencyRecursion = "emergency:recursion"
)

// EventsStream returns the per-stream subscription subject for streamID.
func EventsStream(streamID string) string {
	return fmt.Sprintf("events:stream:%s", streamID)
}

// VSMContext returns the per-context coordination subject for id.
func VSMContext(id string) string {
	return fmt.Sprintf("vsm:context:%s", id)
}
