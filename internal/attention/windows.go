package attention

import "time"

// appendWindowLocked records a salient arrival in one temporal-scale
// window, evicting the oldest entry once ScaleCap is reached (a ring
// behavior, not age-based — age-based sweeping happens on the
// maintenance tick).
func (e *Engine) appendWindowLocked(scale Scale, entry windowEntry, now time.Time) {
	w := append(e.windows[scale], entry)
	cap := e.cfg.ScaleCap
	if cap > 0 && len(w) > cap {
		w = w[len(w)-cap:]
	}
	e.windows[scale] = w
}

// sweepWindowsLocked drops entries older than twice their scale's window
// size, per the maintenance tick rule in.
func (e *Engine) sweepWindowsLocked(now time.Time) {
	for _, scale := range allScales {
		maxAge := 2 * e.scaleWindow(scale)
		entries := e.windows[scale]
		idx := 0
		for idx < len(entries) && now.Sub(entries[idx].arrival) > maxAge {
			idx++
		}
		if idx > 0 {
			e.windows[scale] = append([]windowEntry(nil), entries[idx:]...)
		}
	}
}
