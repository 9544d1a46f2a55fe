package attention

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Config carries every attention-scoring tunable exposed on the
// CLI/config surface.
type Config struct {
	Weights Weights

	ImmediateWindow time.Duration
	ShortWindow time.Duration
	SustainedWindow time.Duration
	LongWindow time.Duration
	ScaleCap int

	FatigueDecayPerTick float64
	ContextDecayFactor float64
	ContextDecayFloor float64
	MaintenanceTick time.Duration
	ShiftSettleDelay time.Duration
}

// ContextWeightFunc resolves an external relevance weight for a context
// id or source, an out-of-scope collaborator specified only by contract.
type ContextWeightFunc func(idOrSource string) float64

// FocusSimilarityFunc computes similarity in [0,1] between a message and
// the current focus token, falling back to a 0.5 sentinel when no focus
// is set.
type FocusSimilarityFunc func(msg Message, focus string) float64

type contextMemoryEntry struct {
	pattern string
	strength float64
}

// Engine is the Cortical Attention Engine (C6). All state mutation is
// serialized by its own mutex: queried concurrently, but every update
// goes through the same lock as if delivered through a single mailbox.
type Engine struct {
	mu sync.Mutex

	cfg Config

	windows map[Scale][]windowEntry

	state State
	fatigue float64
	focus string

	wasFatigued bool
	shiftDeadline time.Time
	shiftPending bool

	contextMemory map[string]*contextMemoryEntry

	runningAvgSum float64
	runningAvgCount int64
	topSalience []Score
	topSalienceCap int

	contextWeight ContextWeightFunc
	focusSimilarity FocusSimilarityFunc

	now func() time.Time
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{Novelty: 0.30, Urgency: 0.25, Relevance: 0.20, Intensity: 0.15, Coherence: 0.10},
		ImmediateWindow: 100 * time.Millisecond,
		ShortWindow: 1 * time.Second,
		SustainedWindow: 10 * time.Second,
		LongWindow: 60 * time.Second,
		ScaleCap: 1000,
		FatigueDecayPerTick: 0.01,
		ContextDecayFactor: 0.95,
		ContextDecayFloor: 0.01,
		MaintenanceTick: 1 * time.Second,
		ShiftSettleDelay: 100 * time.Millisecond,
	}
}

// New constructs an Engine. Either callback may be nil to fall back to
// a flat 0.5 default for context_weight and focus_similarity.
func New(cfg Config, contextWeight ContextWeightFunc, focusSimilarity FocusSimilarityFunc) *Engine {
	if contextWeight == nil {
		contextWeight = func(string) float64 { return 0.5 }
	}
	if focusSimilarity == nil {
		focusSimilarity = func(Message, string) float64 { return 0.5 }
	}
	return &Engine{
		cfg: cfg,
		windows: make(map[Scale][]windowEntry),
		state: StateDistributed,
		contextMemory: make(map[string]*contextMemoryEntry),
		topSalienceCap: 20,
		contextWeight: contextWeight,
		focusSimilarity: focusSimilarity,
		now: time.Now,
	}
}

func (e *Engine) scaleWindow(scale Scale) time.Duration {
	switch scale {
	case ScaleImmediate:
		return e.cfg.ImmediateWindow
	case ScaleShort:
		return e.cfg.ShortWindow
	case ScaleSustained:
		return e.cfg.SustainedWindow
	default:
		return e.cfg.LongWindow
	}
}

func contentHash(msg Message) string {
	sum := sha256.Sum256([]byte(msg.Type + "|" + msg.Source + "|" + msg.Target))
	return fmt.Sprintf("%x", sum)
}

// Score computes the attention_score and applies its side effects: a
// window append when the final score exceeds 0.3, a running-average
// update for every score, and a top-K update when it exceeds 0.8. This
// is the operation the Event Pipeline calls once per message in flight.
func (e *Engine) Score(msg Message) Score {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.resolvePendingShiftLocked(now)

	score, hash := e.computeLocked(msg, now)
	e.applySideEffectsLocked(score, hash, now)
	return score
}

// Peek computes the attention_score as a pure read of the current
// snapshot, with no side effects. filter() uses Peek so that repeated
// filtering of an already-filtered set is idempotent (R3) and a given
// engine snapshot always scores the same message identically (P6).
func (e *Engine) Peek(msg Message) Score {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	score, _ := e.computeLocked(msg, now)
	return score
}

func (e *Engine) computeLocked(msg Message, now time.Time) (Score, string) {
	hash := contentHash(msg)
	components := Components{
		Novelty: e.noveltyLocked(hash, now),
		Urgency: urgency(msg),
		Relevance: e.relevance(msg),
		Intensity: intensity(msg),
		Coherence: e.coherenceLocked(msg),
	}

	weighted := e.cfg.Weights.Novelty*components.Novelty +
		e.cfg.Weights.Urgency*components.Urgency +
		e.cfg.Weights.Relevance*components.Relevance +
		e.cfg.Weights.Intensity*components.Intensity +
		e.cfg.Weights.Coherence*components.Coherence

	fatigueFactor := 1 - 0.5*e.fatigue
	final := clamp01(weighted * e.state.multiplier() * fatigueFactor)

	return Score{Message: msg, Final: final, Components: components}, hash
}

func (e *Engine) applySideEffectsLocked(score Score, hash string, now time.Time) {
	if score.Final > 0.3 {
		for _, scale := range allScales {
			e.appendWindowLocked(scale, windowEntry{arrival: now, score: score.Final, hash: hash}, now)
		}
	}

	e.runningAvgSum += score.Final
	e.runningAvgCount++
	if score.Final > 0.8 {
		e.topSalience = append(e.topSalience, score)
		sort.Slice(e.topSalience, func(i, j int) bool { return e.topSalience[i].Final > e.topSalience[j].Final })
		if len(e.topSalience) > e.topSalienceCap {
			e.topSalience = e.topSalience[:e.topSalienceCap]
		}
	}
}

func (e *Engine) noveltyLocked(hash string, now time.Time) float64 {
	product := 1.0
	for _, scale := range allScales {
		count := 0
		for _, entry := range e.windows[scale] {
			if entry.hash == hash {
				count++
			}
		}
		product *= math.Exp(-0.5 * float64(count))
	}
	_ = now
	return product
}

func urgency(msg Message) float64 {
	switch msg.Priority {
	case "critical":
		return 1.0
	case "high":
		return 0.8
	}
	if msg.Deadline != nil {
		msToDeadline := float64(time.Until(*msg.Deadline).Milliseconds())
		return 1 - clamp01(msToDeadline/60000)
	}
	switch msg.Type {
	case "alarm", "alert", "emergency":
		return 0.9
	}
	return 0.3
}

func (e *Engine) relevance(msg Message) float64 {
	idOrSource := msg.ContextID
	if idOrSource == "" {
		idOrSource = msg.Source
	}
	focus := e.focus
	if focus == "" {
		focus = "0.5"
	}
	best := math.Max(e.contextWeight(idOrSource), e.focusSimilarity(msg, focus))
	best = math.Max(best, msg.ConversationContinuity)
	if msg.ConversationContinuity > 0.3 {
		best += 0.2
	}
	return clamp01(best)
}

func intensity(msg Message) float64 {
	score := 0.5
	if msg.Volume == "high" {
		score += 0.2
	}
	if msg.RepeatCount > 3 {
		score += 0.1
	}
	if msg.SourceAuthority == "high" {
		score += 0.15
	}
	if msg.FieldCount > 10 {
		score += 0.05
	}
	return clamp01(score)
}

func (e *Engine) coherenceLocked(msg Message) float64 {
	sum := 0.0
	for _, entry := range e.contextMemory {
		if entry.pattern == msg.Type {
			sum += entry.strength
		}
	}
	return clamp01(sum)
}

// Reinforce strengthens (or seeds) a learned context-memory pattern,
// the input the maintenance tick's decay operates on.
func (e *Engine) Reinforce(pattern string, strength float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.contextMemory[pattern]
	if !ok {
		entry = &contextMemoryEntry{pattern: pattern}
		e.contextMemory[pattern] = entry
	}
	entry.strength = clamp01(entry.strength + strength)
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
