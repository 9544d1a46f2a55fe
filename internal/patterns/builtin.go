package patterns

import (
	"strings"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// BuiltinSpecs returns the canonical pattern set shipped out of the box
// (globs, predicates, severities, action tags).
func BuiltinSpecs() []PatternSpec {
	return []PatternSpec{
		{
			Name: "variety_imbalance",
			EventGlobs: []string{"variety.amplified", "variety.filtered"},
			Predicate: varietyImbalancePredicate,
			Severity: SeverityWarning,
			ActionTag: "rebalance_variety",
		},
		{
			Name: "algedonic_cascade",
			EventGlobs: []string{"algedonic.pain.detected", "system*.*.degraded"},
			Predicate: algedonicCascadePredicate,
			Severity: SeverityCritical,
			ActionTag: "trigger_autonomic_response",
		},
		{
			Name: "recursive_explosion",
			EventGlobs: []string{"recursion.meta_vsm.spawned"},
			Predicate: recursiveExplosionPredicate,
			Severity: SeverityCritical,
			ActionTag: "limit_recursion",
		},
		{
			Name: "coordination_failure",
			EventGlobs: []string{"system2.coordination.failed", "system1.operation.timeout"},
			Predicate: coordinationFailurePredicate,
			Severity: SeverityWarning,
			ActionTag: "restart_coordination",
		},
		{
			Name: "intelligence_overload",
			EventGlobs: []string{"system4.intelligence.analyzed", "system4.analysis.timeout"},
			Predicate: intelligenceOverloadPredicate,
			Severity: SeverityWarning,
			ActionTag: "scale_intelligence",
		},
		{
			Name: "emergent_behavior",
			EventGlobs: []string{"emergent.*", "system*.unexpected.*"},
			Predicate: emergentBehaviorPredicate,
			Severity: SeverityInfo,
			ActionTag: "analyze_emergence",
		},
		{
			Name: "policy_violation_cascade",
			EventGlobs: []string{"system5.policy.violated", "system3.control.override"},
			Predicate: policyViolationCascadePredicate,
			Severity: SeverityCritical,
			ActionTag: "enforce_policies",
		},
	}
}

func countType(events []eventstore.Event, eventType string) int {
	count := 0
	for _, e := range events {
		if e.EventType == eventType {
			count++
		}
	}
	return count
}

func countGlob(events []eventstore.Event, glob string) int {
	count := 0
	for _, e := range events {
		if matchGlob(glob, e.EventType) {
			count++
		}
	}
	return count
}

func varietyImbalancePredicate(events []eventstore.Event) bool {
	amplified := countType(events, "variety.amplified")
	filtered := countType(events, "variety.filtered")
	var ratio float64
	if filtered == 0 {
		ratio = float64(amplified)
	} else {
		ratio = float64(amplified) / float64(filtered)
	}
	return ratio > 3
}

func algedonicCascadePredicate(events []eventstore.Event) bool {
	pain := countType(events, "algedonic.pain.detected")
	degraded := countGlob(events, "system*.*.degraded")
	return pain >= 1 && degraded >= 2
}

func recursiveExplosionPredicate(events []eventstore.Event) bool {
	return countType(events, "recursion.meta_vsm.spawned") > 5
}

func coordinationFailurePredicate(events []eventstore.Event) bool {
	failures := countType(events, "system2.coordination.failed")
	timeouts := countType(events, "system1.operation.timeout")
	return failures >= 3 || timeouts >= 5
}

func intelligenceOverloadPredicate(events []eventstore.Event) bool {
	analyzed := countType(events, "system4.intelligence.analyzed")
	timeouts := countType(events, "system4.analysis.timeout")
	if analyzed == 0 {
		return false
	}
	return float64(timeouts)/float64(analyzed) > 0.3
}

func emergentBehaviorPredicate(events []eventstore.Event) bool {
	combined := 0
	for _, e := range events {
		if strings.HasPrefix(e.EventType, "emergent.") || matchGlob("system*.unexpected.*", e.EventType) {
			combined++
		}
	}
	return combined >= 3
}

func policyViolationCascadePredicate(events []eventstore.Event) bool {
	violations := countType(events, "system5.policy.violated")
	overrides := countType(events, "system3.control.override")
	return violations >= 2 && overrides >= 1
}
