package attention

import "sort"

// Filter scores every message against the current snapshot (via Peek,
// not Score — filtering must not itself alter the state it filters by)
// and returns those at or above threshold, sorted by descending score.
// Satisfies P7 (every returned score meets threshold) and R3 (filtering
// an already-filtered set at the same threshold is a no-op), since Peek
// is a pure function of engine snapshot plus message content.
func (e *Engine) Filter(messages []Message, threshold float64) []Score {
	scores := make([]Score, 0, len(messages))
	for _, msg := range messages {
		score := e.Peek(msg)
		if score.Final >= threshold {
			scores = append(scores, score)
		}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Final > scores[j].Final })
	return scores
}

// AverageScore returns the running mean of every Final score computed so
// far, or 0 if none have been scored.
func (e *Engine) AverageScore() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runningAvgCount == 0 {
		return 0
	}
	return e.runningAvgSum / float64(e.runningAvgCount)
}

// TopSalience returns a copy of the retained high-salience (score > 0.8)
// scores, highest first.
func (e *Engine) TopSalience() []Score {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Score(nil), e.topSalience...)
}
