// Package patterns implements the Pattern Matcher (C4): a sliding-window
// complex-event-processing engine over a restricted glob grammar.
// Grounded on internal/networking/tiers.go
// classify-then-bucket structure (glob classification plays the role
// tier classification played there) and internal/radar/scanner.go's
// sliding-window contact aging.
package patterns

import (
	"time"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// Severity classifies the urgency of a pattern match.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// PatternSpec configures one complex-event pattern.
type PatternSpec struct {
	Name string
	EventGlobs []string
	Predicate func(events []eventstore.Event) bool
	Severity Severity
	ActionTag string
}

// PatternMatch is emitted whenever a PatternSpec's predicate fires.
type PatternMatch struct {
	PatternName string
	Severity Severity
	ActionTag string
	MatchedEvents []eventstore.Event
	Confidence float64
	Timestamp time.Time
}

type windowEntry struct {
	event eventstore.Event
	arrival time.Time
}
