package attention

import "time"

// ShiftAttention moves current focus to newFocus. Cost is zero for a
// no-op shift; otherwise 0.1 plus a similarity-weighted penalty. The
// engine enters StateShifting immediately and settles to StateFocused
// after cfg.ShiftSettleDelay, resolved lazily on the next call that
// touches engine state (Score, MaintenanceTick, or another ShiftAttention).
func (e *Engine) ShiftAttention(newFocus string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.resolvePendingShiftLocked(now)

	if newFocus == e.focus {
		return 0
	}

	similarity := e.focusSimilarity(Message{Type: newFocus}, e.focus)
	cost := 0.1 + 0.2*(1-similarity)

	e.focus = newFocus
	e.state = StateShifting
	e.shiftPending = true
	e.shiftDeadline = now.Add(e.cfg.ShiftSettleDelay)

	e.fatigue = clamp01(e.fatigue + cost)

	return cost
}

// resolvePendingShiftLocked transitions StateShifting to StateFocused
// once the settle delay has elapsed. Caller must hold e.mu.
func (e *Engine) resolvePendingShiftLocked(now time.Time) {
	if e.shiftPending && !now.Before(e.shiftDeadline) {
		e.shiftPending = false
		if e.state == StateShifting {
			e.state = StateFocused
		}
	}
}

// Focus returns the current focus token.
func (e *Engine) Focus() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focus
}

// CurrentState returns the engine's coarse operating mode.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolvePendingShiftLocked(e.now())
	return e.state
}

// Fatigue returns the current fatigue level in [0,1].
func (e *Engine) Fatigue() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatigue
}
