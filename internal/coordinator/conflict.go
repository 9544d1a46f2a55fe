package coordinator

import "time"

const simultaneousAccessWindow = 10 * time.Millisecond

const resourceRequestType = "resource_request"

// detectConflictsLocked implements the three conflict classes from
//. Caller must hold c.mu.
func (c *Coordinator) detectConflictsLocked(msg Message, now time.Time) []Conflict {
	var conflicts []Conflict
	flow := flowKey(msg.From, msg.To)

	if last, ok := c.lastMessageAt[msg.To]; ok && now.Sub(last) < simultaneousAccessWindow {
		conflicts = append(conflicts, c.resolveConflictLocked(ConflictSimultaneousAccess, flow, msg, now))
	}

	reverse := flowKey(msg.To, msg.From)
	if _, ok := c.recentFlows[reverse]; ok {
		conflicts = append(conflicts, c.resolveConflictLocked(ConflictCircularDependency, flow, msg, now))
	}

	if msg.Type == resourceRequestType && c.lockedTargets[msg.To] {
		conflicts = append(conflicts, c.resolveConflictLocked(ConflictResourceContention, flow, msg, now))
	}

	return conflicts
}

// resolveConflictLocked records a conflict with its resolution delay:
// 20ms when attention favors the message (score>0.7), 50ms otherwise.
func (c *Coordinator) resolveConflictLocked(kind ConflictKind, flow string, msg Message, now time.Time) Conflict {
	delay := 50 * time.Millisecond
	if msg.AttentionScore > 0.7 {
		delay = 20 * time.Millisecond
	}
	return Conflict{Kind: kind, Flow: flow, Delay: delay, Time: now}
}
