package patterns

import (
	"context"
	"sync"
	"time"

	"github.com/vsm-systems/corevsm/internal/eventstore"
)

// windowDuration is the sliding window length over which pattern matches
// are evaluated.
const windowDuration = 30 * time.Second

// windowCap bounds the number of retained window entries.
const windowCap = 1000

// historyCap bounds the retained match history.
const historyCap = 100

// ActionDispatcher is invoked for every PatternMatch so action_tag can be
// routed to whatever external collaborator handles it (emergency topics,
// autonomic responses, etc). Out of scope beyond this contract.
type ActionDispatcher func(match PatternMatch)

// Matcher is the Pattern Matcher (C4).
type Matcher struct {
	mu sync.Mutex

	window []windowEntry
	specs []PatternSpec
	history []PatternMatch

	pendingStandard []eventstore.Event

	dispatch ActionDispatcher
	now func() time.Time
}

// New constructs a Matcher seeded with the built-in canonical specs.
func New(dispatch ActionDispatcher) *Matcher {
	return &Matcher{
		specs: BuiltinSpecs(),
		dispatch: dispatch,
		now: time.Now,
	}
}

// AddSpec registers an additional, caller-supplied pattern spec. Globs
// must conform to the restricted single-wildcard grammar.
func (m *Matcher) AddSpec(spec PatternSpec) bool {
	for _, glob := range spec.EventGlobs {
		if !ValidateGlob(glob) {
			return false
		}
	}
	m.mu.Lock()
	m.specs = append(m.specs, spec)
	m.mu.Unlock()
	return true
}

func (m *Matcher) addLocked(event eventstore.Event) {
	now := m.now()
	m.window = append(m.window, windowEntry{event: event, arrival: now})
	m.evictLocked(now)
}

func (m *Matcher) evictLocked(now time.Time) {
	cutoff := now.Add(-windowDuration)
	idx := 0
	for idx < len(m.window) && m.window[idx].arrival.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		m.window = append([]windowEntry(nil), m.window[idx:]...)
	}
	if len(m.window) > windowCap {
		excess := len(m.window) - windowCap
		m.window = append([]windowEntry(nil), m.window[excess:]...)
	}
}

// CheckCritical adds event to the window and evaluates only critical
// specs, acting immediately on any match.
func (m *Matcher) CheckCritical(event eventstore.Event) []PatternMatch {
	m.mu.Lock()
	m.addLocked(event)
	var matches []PatternMatch
	now := m.now()
	for _, spec := range m.specs {
		if spec.Severity != SeverityCritical {
			continue
		}
		if match, ok := m.evaluateLocked(spec, now); ok {
			matches = append(matches, match)
		}
	}
	m.mu.Unlock()
	m.recordAndDispatch(matches)
	return matches
}

// CheckStandard adds event to the window and defers evaluation until the
// next FlushStandard call, matching "defer batch evaluation".
func (m *Matcher) CheckStandard(event eventstore.Event) {
	m.mu.Lock()
	m.addLocked(event)
	m.pendingStandard = append(m.pendingStandard, event)
	m.mu.Unlock()
}

// FlushStandard evaluates every spec once against the current window,
// draining events accumulated by CheckStandard since the last flush.
func (m *Matcher) FlushStandard() []PatternMatch {
	m.mu.Lock()
	m.pendingStandard = nil
	now := m.now()
	var matches []PatternMatch
	for _, spec := range m.specs {
		if match, ok := m.evaluateLocked(spec, now); ok {
			matches = append(matches, match)
		}
	}
	m.mu.Unlock()
	m.recordAndDispatch(matches)
	return matches
}

// ProcessEvents adds an entire batch to the window and evaluates every
// spec exactly once.
func (m *Matcher) ProcessEvents(batch []eventstore.Event) []PatternMatch {
	m.mu.Lock()
	for _, event := range batch {
		m.addLocked(event)
	}
	now := m.now()
	var matches []PatternMatch
	for _, spec := range m.specs {
		if match, ok := m.evaluateLocked(spec, now); ok {
			matches = append(matches, match)
		}
	}
	m.mu.Unlock()
	m.recordAndDispatch(matches)
	return matches
}

// Run starts a goroutine that flushes pending check_standard events on
// a fixed cadence until ctx is cancelled, the deferred-batch-evaluation
// half of two evaluation modes. Grounded on the same
// ticker-goroutine idiom as attention.Engine.Run.
func (m *Matcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.FlushStandard()
			}
		}
	}()
}

// evaluateLocked runs the four-step evaluation algorithm: prune expired
// window entries, gather glob-matching events, check the count/value/
// sequence condition, then emit a match if it holds. Caller must hold m.mu.
func (m *Matcher) evaluateLocked(spec PatternSpec, now time.Time) (PatternMatch, bool) {
	relevant := make([]windowEntry, 0, len(m.window))
	for _, entry := range m.window {
		if matchAny(spec.EventGlobs, entry.event.EventType) {
			relevant = append(relevant, entry)
		}
	}
	if len(relevant) < 2 {
		return PatternMatch{}, false
	}

	recent := make([]windowEntry, 0, len(relevant))
	for _, entry := range relevant {
		if now.Sub(entry.arrival) <= windowDuration {
			recent = append(recent, entry)
		}
	}
	if len(recent) < 1 {
		return PatternMatch{}, false
	}

	events := make([]eventstore.Event, len(recent))
	for i, entry := range recent {
		events[i] = entry.event
	}

	if !spec.Predicate(events) {
		return PatternMatch{}, false
	}

	windowMs := float64(windowDuration.Milliseconds())
	var recencySum float64
	for _, entry := range recent {
		ageMs := float64(now.Sub(entry.arrival).Milliseconds())
		recency := 1 - ageMs/windowMs
		recency = clamp01(recency)
		recencySum += recency
	}
	avgRecency := recencySum / float64(len(recent))
	countFactor := min1(float64(len(recent)) / 5)
	confidence := (avgRecency + countFactor) / 2

	return PatternMatch{
		PatternName: spec.Name,
		Severity: spec.Severity,
		ActionTag: spec.ActionTag,
		MatchedEvents: events,
		Confidence: confidence,
		Timestamp: now,
	}, true
}

func (m *Matcher) recordAndDispatch(matches []PatternMatch) {
	if len(matches) == 0 {
		return
	}
	m.mu.Lock()
	for _, match := range matches {
		m.history = append(m.history, match)
	}
	if len(m.history) > historyCap {
		excess := len(m.history) - historyCap
		m.history = append([]PatternMatch(nil), m.history[excess:]...)
	}
	m.mu.Unlock()

	if m.dispatch != nil {
		for _, match := range matches {
			m.dispatch(match)
		}
	}
}

// History returns a copy of the retained match history, newest last.
func (m *Matcher) History() []PatternMatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PatternMatch(nil), m.history...)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
