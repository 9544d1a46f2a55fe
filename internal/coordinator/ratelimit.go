package coordinator

import "time"

const rateLimitWindow = time.Second

// rateLimitLocked implements per-flow rate limiting:
// effective limit = base*(1+score); over limit, a high-attention
// message (score>0.8) bypasses, otherwise it is delayed by
// 100*(2-score) ms. Caller must hold c.mu.
func (c *Coordinator) rateLimitLocked(msg Message, now time.Time, score float64) (delay time.Duration, exceeded bool, bypass bool) {
	flow := flowKey(msg.From, msg.To)
	cutoff := now.Add(-rateLimitWindow)

	timestamps := c.flowTimestamps[flow]
	pruned := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	pruned = append(pruned, now)
	c.flowTimestamps[flow] = pruned

	limit := c.rules.MaxFrequencyPerFlow * (1 + score)
	if float64(len(pruned)) <= limit {
		return 0, false, false
	}

	if score > 0.8 {
		return 0, true, true
	}
	return time.Duration(100*(2-score)) * time.Millisecond, true, false
}
