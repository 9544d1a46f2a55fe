// Package analytics implements the Analytics subsystem (C5): rolling
// throughput, latency, distribution, trend, and anomaly tracking over
// the ingested event stream. Grounded on internal/networking.SnapshotMetrics
// (mutex-guarded counters/gauges exposed as point-in-time copies)
// generalized from per-client byte gauges to per-event-type and
// per-subsystem counters, and on internal/replay.Cleaner's
// fixed-capacity retention arithmetic for the 1440-entry throughput ring.
package analytics

import (
	"strings"
	"time"
)

// Trend classifies a 5-minute throughput comparison.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable Trend = "stable"
)

// AnomalyKind distinguishes the two anomaly categories this component tracks.
type AnomalyKind string

const (
	AnomalyThroughput AnomalyKind = "throughput"
	AnomalyLatency AnomalyKind = "latency"
)

// Severity classifies how far an anomaly deviates from baseline.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh Severity = "high"
)

// Anomaly records one deviation detected during a snapshot computation.
type Anomaly struct {
	Kind AnomalyKind
	Severity Severity
	Detail string
	Timestamp time.Time
}

// LatencyStats accumulates count/total/min/max latency, all in
// milliseconds, over every event observed.
type LatencyStats struct {
	Count int64
	Total float64
	Min float64
	Max float64
}

// Avg returns the mean latency in milliseconds, or 0 if no events have
// been observed yet.
func (s LatencyStats) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Total / float64(s.Count)
}

// EventTypeCount is one entry of the top-K event-type distribution.
type EventTypeCount struct {
	EventType string
	Count int64
}

// SubsystemKind is one of the five VSM subsystems tracked independently.
type SubsystemKind string

const (
	SubsystemS1 SubsystemKind = "s1"
	SubsystemS2 SubsystemKind = "s2"
	SubsystemS3 SubsystemKind = "s3"
	SubsystemS4 SubsystemKind = "s4"
	SubsystemS5 SubsystemKind = "s5"
)

// SubsystemOutcome classifies one recorded subsystem event.
type SubsystemOutcome string

const (
	OutcomeOperation SubsystemOutcome = "operation"
	OutcomeError SubsystemOutcome = "error"
	OutcomeTimeout SubsystemOutcome = "timeout"
	OutcomeOverride SubsystemOutcome = "override"
	OutcomeViolation SubsystemOutcome = "violation"
)

// SubsystemStats holds the per-subsystem operation/error/timeout counters
// used for the dashboard view.
type SubsystemStats struct {
	Operations int64
	Errors int64
	Timeouts int64
	Overrides int64
	Violations int64
	AvgLatencyMs float64
}

// AlgedonicSignal classifies a recorded algedonic (pain/pleasure) event.
type AlgedonicSignal string

const (
	AlgedonicPain AlgedonicSignal = "pain"
	AlgedonicPleasure AlgedonicSignal = "pleasure"
)

// AlgedonicStats tracks running pain/pleasure counts and mean intensity.
type AlgedonicStats struct {
	PainCount int64
	PainMeanIntensity float64
	PleasureCount int64
	PleasureMeanIntensity float64
}

// Snapshot is the cached dashboard view produced by Analytics.Snapshot.
type Snapshot struct {
	GeneratedAt time.Time
	EventsProcessed int64
	Latency LatencyStats
	ThroughputNow int64
	Trend Trend
	TopEventTypes []EventTypeCount
	Subsystems map[SubsystemKind]SubsystemStats
	Algedonic AlgedonicStats
	Anomalies []Anomaly
}

// subsystemPrefixes maps the "systemN." event-type prefix convention
// (already used by internal/processor to route lanes) onto the five
// SubsystemKind values tracked here.
var subsystemPrefixes = map[string]SubsystemKind{
	"system1.": SubsystemS1,
	"system2.": SubsystemS2,
	"system3.": SubsystemS3,
	"system4.": SubsystemS4,
	"system5.": SubsystemS5,
}

// SubsystemFromEventType derives a VSM subsystem identity from an
// event's "systemN." prefix. ok is false for event types that don't
// carry one, such as domain events with no subsystem affiliation.
func SubsystemFromEventType(eventType string) (kind SubsystemKind, ok bool) {
	for prefix, k := range subsystemPrefixes {
		if strings.HasPrefix(eventType, prefix) {
			return k, true
		}
	}
	return "", false
}

// AlgedonicFromEventType classifies an "algedonic."-prefixed event type
// as a pain or pleasure signal by looking for those words in the rest
// of the type string, defaulting to pain (the signal this architecture
// exists to surface fastest) when neither appears. ok is false for
// event types outside the algedonic prefix entirely.
func AlgedonicFromEventType(eventType string) (signal AlgedonicSignal, ok bool) {
	if !strings.HasPrefix(eventType, "algedonic.") {
		return "", false
	}
	if strings.Contains(eventType, "pleasure") {
		return AlgedonicPleasure, true
	}
	return AlgedonicPain, true
}
