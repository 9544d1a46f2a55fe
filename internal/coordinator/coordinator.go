package coordinator

import (
	"sync"
	"time"

	"github.com/vsm-systems/corevsm/internal/analytics"
	"github.com/vsm-systems/corevsm/internal/attention"
	"github.com/vsm-systems/corevsm/internal/patterns"
)

// SubsystemRecorder is the subset of analytics.Analytics the Coordinator
// reports to: every arbitrated message yields a Coordination-subsystem
// (S2) operation, violation, or rate-limit outcome, and any
// "algedonic."-prefixed message additionally updates the pain/pleasure
// running mean. A nil recorder (the default in tests) disables this.
type SubsystemRecorder interface {
	RecordSubsystem(kind analytics.SubsystemKind, outcome analytics.SubsystemOutcome, latencyMs float64)
	RecordAlgedonic(signal analytics.AlgedonicSignal, intensity float64)
}

func matchAnyBlockPattern(globs []string, eventType string) bool {
	for _, glob := range globs {
		if patterns.MatchGlob(glob, eventType) {
			return true
		}
	}
	return false
}

// Rules mirrors config.CoordinationConfig, kept local so this package
// doesn't need to import the config package for a handful of scalars.
type Rules struct {
	MaxFrequencyPerFlow float64
	SyncRequiredTypes []string
	BlockPatterns []string
	OscillationWindow time.Duration
	OscillationThreshold float64
	DampeningFactor float64
	SyncTimeout time.Duration
}

// DefaultRules returns literal defaults.
func DefaultRules() Rules {
	return Rules{
		MaxFrequencyPerFlow: 10.0,
		OscillationWindow: 5 * time.Second,
		OscillationThreshold: 0.5,
		DampeningFactor: 0.7,
		SyncTimeout: 2 * time.Second,
	}
}

const defaultInboxCapacity = 64

// Inbox is a non-blocking per-target mailbox, matching // Broker.broadcast per-client channel fan-out.
type Inbox chan Message

// Coordinator is the Coordinator / System-2 component (C7).
type Coordinator struct {
	mu sync.Mutex

	rules Rules
	attention *attention.Engine
	analytics SubsystemRecorder

	inboxes map[string]Inbox

	lastMessageAt map[string]time.Time // per target, for simultaneous_access
	recentFlows map[string]time.Time // per flow key, for circular_dependency
	lockedTargets map[string]bool

	flowTimestamps map[string][]time.Time // per flow, for rate limiting
	oscillation map[string]*oscillationState

	filteredCount int64
	bypassedCount int64
	conflictCounts map[ConflictKind]int64

	now func() time.Time
}

// New constructs a Coordinator. recorder may be nil, which disables
// subsystem/algedonic reporting.
func New(rules Rules, engine *attention.Engine, recorder SubsystemRecorder) *Coordinator {
	return &Coordinator{
		rules: rules,
		attention: engine,
		analytics: recorder,
		inboxes: make(map[string]Inbox),
		lastMessageAt: make(map[string]time.Time),
		recentFlows: make(map[string]time.Time),
		lockedTargets: make(map[string]bool),
		flowTimestamps: make(map[string][]time.Time),
		oscillation: make(map[string]*oscillationState),
		conflictCounts: make(map[ConflictKind]int64),
		now: time.Now,
	}
}

// RegisterInbox attaches a target's mailbox; Process forwards into it.
func (c *Coordinator) RegisterInbox(target string, capacity int) Inbox {
	if capacity <= 0 {
		capacity = defaultInboxCapacity
	}
	inbox := make(Inbox, capacity)
	c.mu.Lock()
	c.inboxes[target] = inbox
	c.mu.Unlock()
	return inbox
}

// LockTarget marks a target as resource-locked, for resource_contention
// detection.
func (c *Coordinator) LockTarget(target string) {
	c.mu.Lock()
	c.lockedTargets[target] = true
	c.mu.Unlock()
}

// UnlockTarget clears a target's resource lock.
func (c *Coordinator) UnlockTarget(target string) {
	c.mu.Lock()
	delete(c.lockedTargets, target)
	c.mu.Unlock()
}

// Process runs one message through the full arbitration pipeline:
// score, filter, conflict detection, rate limiting, synchronization
// gating, and forwarding.
func (c *Coordinator) Process(msg Message) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if matchAnyBlockPattern(c.rules.BlockPatterns, msg.Type) {
		return Decision{Message: msg, Blocked: true, Reason: BlockPattern}
	}

	score := c.attention.Score(attentionMessage(msg))
	msg.AttentionScore = score.Final
	msg.AttentionComponents = score.Components

	if score.Final < 0.2 {
		c.filteredCount++
		return Decision{Message: msg, Blocked: true, Reason: BlockLowAttention}
	}

	conflicts := c.detectConflictsLocked(msg, now)
	var delay time.Duration
	for _, conflict := range conflicts {
		c.conflictCounts[conflict.Kind]++
		if conflict.Delay > delay {
			delay = conflict.Delay
		}
	}

	bypassed := false
	if rateDelay, exceeded, bypass := c.rateLimitLocked(msg, now, score.Final); exceeded {
		if bypass {
			bypassed = true
			c.bypassedCount++
		} else if rateDelay > delay {
			delay = rateDelay
		}
	}

	if c.requiresSync(msg.Type) || score.Final > 0.9 {
		msg.Synchronized = true
	}

	c.recordFlowLocked(msg, now)
	c.recordAnalyticsLocked(msg, conflicts, bypassed, delay, score.Final)

	decision := Decision{
		Message: msg,
		Forwarded: true,
		Conflicts: conflicts,
		Delay: delay,
		Bypassed: bypassed,
	}

	c.forwardLocked(msg)
	return decision
}

// recordAnalyticsLocked reports this message's arbitration outcome
// against the Coordination subsystem (the Coordinator is S2), plus an
// algedonic signal if the message type carries one. Caller must hold
// c.mu.
func (c *Coordinator) recordAnalyticsLocked(msg Message, conflicts []Conflict, bypassed bool, delay time.Duration, attentionScore float64) {
	if c.analytics == nil {
		return
	}

	outcome := analytics.OutcomeOperation
	switch {
	case len(conflicts) > 0:
		outcome = analytics.OutcomeViolation
	case delay > 0 && !bypassed:
		outcome = analytics.OutcomeError
	}
	c.analytics.RecordSubsystem(analytics.SubsystemS2, outcome, float64(delay.Milliseconds()))

	if signal, ok := analytics.AlgedonicFromEventType(msg.Type); ok {
		c.analytics.RecordAlgedonic(signal, attentionScore)
	}
}

func (c *Coordinator) requiresSync(msgType string) bool {
	for _, t := range c.rules.SyncRequiredTypes {
		if t == msgType {
			return true
		}
	}
	return false
}

func (c *Coordinator) recordFlowLocked(msg Message, now time.Time) {
	c.lastMessageAt[msg.To] = now
	c.recentFlows[flowKey(msg.From, msg.To)] = now
}

func (c *Coordinator) forwardLocked(msg Message) {
	inbox, ok := c.inboxes[msg.To]
	if !ok {
		return
	}
	select {
	case inbox <- msg:
	default:
	}
}

// FilteredCount returns the number of messages blocked for low attention.
func (c *Coordinator) FilteredCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filteredCount
}

// BypassedCount returns the number of rate-limit bypasses granted to
// high-attention messages.
func (c *Coordinator) BypassedCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bypassedCount
}

// ConflictCounts returns a copy of the per-kind conflict counters.
func (c *Coordinator) ConflictCounts() map[ConflictKind]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[ConflictKind]int64, len(c.conflictCounts))
	for k, v := range c.conflictCounts {
		out[k] = v
	}
	return out
}

func attentionMessage(msg Message) attention.Message {
	return attention.Message{
		Type: msg.Type,
		Source: msg.From,
		Target: msg.To,
		Priority: msg.Priority,
		Deadline: msg.Deadline,
		ContextID: msg.ContextID,
		RepeatCount: msg.RepeatCount,
		Volume: msg.Volume,
		SourceAuthority: msg.SourceAuthority,
		FieldCount: msg.FieldCount,
		ConversationContinuity: msg.ConversationContinuity,
	}
}
