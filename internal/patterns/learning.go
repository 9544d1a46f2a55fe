package patterns

import (
	"fmt"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// sequenceOccurrenceThreshold is the minimum repeat count the optional
// learning mode requires before a 3-event sequence is promoted to a
// synthetic pattern.
const sequenceOccurrenceThreshold = 5

type tripleKey [3]string

// Learn extracts all contiguous 3-event type sequences from a historical
// event sequence; any sequence observed at least
// sequenceOccurrenceThreshold times becomes a synthetic PatternSpec
// whose predicate requires all three types to be present in the window.
func Learn(history []eventstore.Event) []PatternSpec {
	counts := make(map[tripleKey]int)
	for i := 0; i+2 < len(history); i++ {
		key := tripleKey{history[i].EventType, history[i+1].EventType, history[i+2].EventType}
		counts[key]++
	}

	var specs []PatternSpec
	for key, count := range counts {
		if count < sequenceOccurrenceThreshold {
			continue
		}
		key := key
		specs = append(specs, PatternSpec{
			Name: fmt.Sprintf("learned_%s_%s_%s", key[0], key[1], key[2]),
			EventGlobs: []string{key[0], key[1], key[2]},
			Predicate: func(events []eventstore.Event) bool {
				seen := map[string]bool{}
				for _, e := range events {
					seen[e.EventType] = true
				}
				return seen[key[0]] && seen[key[1]] && seen[key[2]]
			},
			Severity: SeverityInfo,
			ActionTag: "learned_sequence",
		})
	}
	return specs
}
