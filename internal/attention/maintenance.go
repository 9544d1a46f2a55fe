package attention

import (
	"context"
	"time"
)

// MaintenanceTick runs one pass of fatigue decay, context-memory decay,
// window sweeping, and state transitions, mirroring // bots.Controller reconcile-toward-a-target loop but on a fixed 1s
// cadence (cfg.MaintenanceTick) instead of an external target.
func (e *Engine) MaintenanceTick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.resolvePendingShiftLocked(now)

	e.fatigue -= e.cfg.FatigueDecayPerTick
	if e.fatigue < 0 {
		e.fatigue = 0
	}

	for key, entry := range e.contextMemory {
		entry.strength *= e.cfg.ContextDecayFactor
		if entry.strength < e.cfg.ContextDecayFloor {
			delete(e.contextMemory, key)
		}
	}

	e.sweepWindowsLocked(now)

	switch {
	case e.fatigue > 0.7:
		e.state = StateFatigued
		e.wasFatigued = true
	case e.wasFatigued && e.fatigue < 0.2:
		e.state = StateRecovering
		e.wasFatigued = false
	case e.state == StateRecovering && e.fatigue < 0.1:
		e.state = StateDistributed
	}
}

// Run starts a goroutine ticking MaintenanceTick every cfg.MaintenanceTick
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.MaintenanceTick
	if interval <= 0 {
		interval = DefaultConfig().MaintenanceTick
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.MaintenanceTick()
			}
		}
	}()
}
