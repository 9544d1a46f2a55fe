package coordinator

import (
	"time"

	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

const oscillationCrisisThreshold = 5

type oscSignal struct {
	arrival time.Time
	value float64
	numeric bool
	rising bool
}

type oscillationState struct {
	signals []oscSignal
	crisisWindow []time.Time
}

// DampSignal runs one flow's numeric or non-numeric signal through the
// oscillation damper, shifting the Attention Engine's focus to
// "oscillation_crisis" when the flow has oscillated more than 5 times
// within the window.
func (c *Coordinator) DampSignal(from, to string, payload vsmvalue.Value, score float64) (vsmvalue.Value, bool) {
	c.mu.Lock()
	flow := flowKey(from, to)
	now := c.now()
	damped, dampened, crisis := c.recordOscillationLocked(flow, payload, score, now)
	c.mu.Unlock()

	if crisis && c.attention != nil {
		c.attention.ShiftAttention("oscillation_crisis")
	}
	return damped, dampened
}

// recordOscillationLocked folds one payload into the flow's 5s
// oscillation window, applies dampening when oscillation is detected,
// and reports whether the flow just crossed into crisis (more than 5
// detections within the window). Caller must hold c.mu.
func (c *Coordinator) recordOscillationLocked(flow string, payload vsmvalue.Value, score float64, now time.Time) (vsmvalue.Value, bool, bool) {
	state, ok := c.oscillation[flow]
	if !ok {
		state = &oscillationState{}
		c.oscillation[flow] = state
	}

	cutoff := now.Add(-c.rules.OscillationWindow)
	state.signals = evictOscSignals(state.signals, cutoff)
	state.crisisWindow = evictTimes(state.crisisWindow, cutoff)

	numValue, isNumeric := payload.AsFloat64()
	rising := false
	if isNumeric && len(state.signals) > 0 {
		rising = numValue > state.signals[len(state.signals)-1].value
	}
	state.signals = append(state.signals, oscSignal{arrival: now, value: numValue, numeric: isNumeric, rising: rising})

	if !oscillationDetected(state.signals, c.rules.OscillationThreshold) {
		return payload, false, false
	}

	state.crisisWindow = append(state.crisisWindow, now)
	crisis := len(state.crisisWindow) > oscillationCrisisThreshold

	if !isNumeric {
		return payload, true, crisis
	}

	dampeningFactor := c.rules.DampeningFactor + 0.3*score
	return vsmvalue.Float64(numValue * dampeningFactor), true, crisis
}

// oscillationDetected treats the fraction of direction changes over the
// window as a normalized variance proxy: a flow oscillating more than
// threshold of the time is flagged.
func oscillationDetected(signals []oscSignal, threshold float64) bool {
	if len(signals) < 3 {
		return false
	}
	changes := 0
	for i := 2; i < len(signals); i++ {
		if signals[i].numeric && signals[i-1].numeric && signals[i].rising != signals[i-1].rising {
			changes++
		}
	}
	ratio := float64(changes) / float64(len(signals)-2)
	return ratio > threshold
}

func evictOscSignals(signals []oscSignal, cutoff time.Time) []oscSignal {
	idx := 0
	for idx < len(signals) && signals[idx].arrival.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return signals
	}
	return append([]oscSignal(nil), signals[idx:]...)
}

func evictTimes(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && times[idx].Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return times
	}
	return append([]time.Time(nil), times[idx:]...)
}
