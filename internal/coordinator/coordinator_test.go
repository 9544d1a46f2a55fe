package coordinator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsm-systems/corevsm/internal/analytics"
	"github.com/vsm-systems/corevsm/internal/attention"
	"github.com/vsm-systems/corevsm/internal/vsmvalue"
)

type recordedSubsystem struct {
	kind analytics.SubsystemKind
	outcome analytics.SubsystemOutcome
}

type stubRecorder struct {
	subsystems []recordedSubsystem
	algedonic []analytics.AlgedonicSignal
}

func (s *stubRecorder) RecordSubsystem(kind analytics.SubsystemKind, outcome analytics.SubsystemOutcome, latencyMs float64) {
	s.subsystems = append(s.subsystems, recordedSubsystem{kind: kind, outcome: outcome})
}

func (s *stubRecorder) RecordAlgedonic(signal analytics.AlgedonicSignal, intensity float64) {
	s.algedonic = append(s.algedonic, signal)
}

func newTestCoordinator() (*Coordinator, *attention.Engine) {
	engine := attention.New(attention.DefaultConfig(), nil, nil)
	coord := New(DefaultRules(), engine, nil)
	return coord, engine
}

func TestLowAttentionMessageIsBlocked(t *testing.T) {
	coord, engine := newTestCoordinator()
	coord.RegisterInbox("target", 8)

	// Exhaust the engine into a fatigued state so even a routine message
	// scores below the 0.2 filter threshold.
	for _, focus := range []string{"a", "b", "a", "b", "a"} {
		engine.ShiftAttention(focus)
	}
	engine.MaintenanceTick()

	decision := coord.Process(Message{From: "s1", To: "target", Type: "routine.heartbeat"})
	assert.True(t, decision.Blocked)
	assert.Equal(t, BlockLowAttention, decision.Reason)
	assert.EqualValues(t, 1, coord.FilteredCount())
}

func TestHighAttentionMessageForwardsToInbox(t *testing.T) {
	coord, _ := newTestCoordinator()
	inbox := coord.RegisterInbox("target", 8)

	decision := coord.Process(Message{From: "s1", To: "target", Type: "algedonic.pain.detected"})
	assert.True(t, decision.Forwarded)
	assert.False(t, decision.Blocked)

	select {
	case msg := <-inbox:
		assert.Equal(t, "algedonic.pain.detected", msg.Type)
	default:
		t.Fatal("expected message to be forwarded")
	}
}

func TestSimultaneousAccessConflictDetected(t *testing.T) {
	coord, _ := newTestCoordinator()
	coord.RegisterInbox("target", 8)
	fixed := time.Now()
	coord.now = func() time.Time { return fixed }

	coord.Process(Message{From: "s1", To: "target", Type: "system1.alarm"})

	coord.now = func() time.Time { return fixed.Add(2 * time.Millisecond) }
	decision := coord.Process(Message{From: "s2", To: "target", Type: "system1.alarm"})

	require.NotEmpty(t, decision.Conflicts)
	assert.Equal(t, ConflictSimultaneousAccess, decision.Conflicts[0].Kind)
}

func TestCircularDependencyConflictDetected(t *testing.T) {
	coord, _ := newTestCoordinator()
	coord.RegisterInbox("a", 8)
	coord.RegisterInbox("b", 8)

	coord.Process(Message{From: "a", To: "b", Type: "system1.alarm"})
	decision := coord.Process(Message{From: "b", To: "a", Type: "system1.alarm"})

	var found bool
	for _, c := range decision.Conflicts {
		if c.Kind == ConflictCircularDependency {
			found = true
		}
	}
	assert.True(t, found)
}

func TestResourceContentionConflictDetected(t *testing.T) {
	coord, _ := newTestCoordinator()
	coord.RegisterInbox("target", 8)
	coord.LockTarget("target")

	decision := coord.Process(Message{From: "s1", To: "target", Type: resourceRequestType})

	var found bool
	for _, c := range decision.Conflicts {
		if c.Kind == ConflictResourceContention {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRateLimitBypassesHighAttentionMessages(t *testing.T) {
	coord, _ := newTestCoordinator()
	coord.RegisterInbox("target", 256)
	coord.rules.MaxFrequencyPerFlow = 1

	// Each message gets its own type so its novelty (and so its score)
	// stays high; the flow key is From->To, so all ten share one rate
	// limit.
	for i := 0; i < 10; i++ {
		coord.Process(Message{
			From: "s1", To: "target", Type: fmt.Sprintf("algedonic.pain.detected.%d", i),
			Priority: "critical", Volume: "high", SourceAuthority: "high",
			ConversationContinuity: 0.9,
		})
	}

	assert.Greater(t, coord.BypassedCount(), int64(0))
}

func TestSyncRequiredTypeMarksSynchronized(t *testing.T) {
	coord, _ := newTestCoordinator()
	coord.RegisterInbox("target", 8)
	coord.rules.SyncRequiredTypes = []string{"system2.coordination.required"}

	decision := coord.Process(Message{From: "s1", To: "target", Type: "system2.coordination.required"})
	assert.True(t, decision.Message.Synchronized)
}

func TestOscillationDamperReducesNumericSignal(t *testing.T) {
	coord, _ := newTestCoordinator()
	values := []float64{10, 1, 10, 1, 10, 1, 10}

	var lastDamped vsmvalue.Value
	var dampened bool
	for _, v := range values {
		lastDamped, dampened = coord.DampSignal("s1", "s2", vsmvalue.Float64(v), 0.5)
	}

	assert.True(t, dampened)
	dampedValue, _ := lastDamped.AsFloat64()
	assert.Less(t, dampedValue, 10.0)
}

func TestSynchronizeOperationsCompletedWhenAllAck(t *testing.T) {
	coord, _ := newTestCoordinator()
	requester := func(ctx context.Context, contextID string) (Ack, error) {
		return Ack{Fingerprint: "fp-" + contextID, UpdatedAt: time.Now()}, nil
	}

	var synced []string
	syncer := func(contextID string, aligned Ack) {
		synced = append(synced, contextID)
	}

	result := coord.SynchronizeOperations("sync-1", []string{"s1", "s2", "s3"}, requester, syncer)
	assert.Equal(t, SyncCompleted, result.Status)
	assert.Greater(t, result.Effectiveness, 0.0)
}

func TestProcessReportsSubsystemAndAlgedonicOutcomes(t *testing.T) {
	engine := attention.New(attention.DefaultConfig(), nil, nil)
	recorder := &stubRecorder{}
	coord := New(DefaultRules(), engine, recorder)
	coord.RegisterInbox("a", 8)
	coord.RegisterInbox("b", 8)

	coord.Process(Message{From: "s1", To: "a", Type: "algedonic.pain.detected"})
	require.Len(t, recorder.subsystems, 1)
	assert.Equal(t, analytics.SubsystemS2, recorder.subsystems[0].kind)
	assert.Equal(t, analytics.OutcomeOperation, recorder.subsystems[0].outcome)
	require.Len(t, recorder.algedonic, 1)
	assert.Equal(t, analytics.AlgedonicPain, recorder.algedonic[0])

	coord.Process(Message{From: "a", To: "b", Type: "system1.alarm"})
	coord.Process(Message{From: "b", To: "a", Type: "system1.alarm"})
	last := recorder.subsystems[len(recorder.subsystems)-1]
	assert.Equal(t, analytics.OutcomeViolation, last.outcome)
}

func TestSynchronizeOperationsFailedWhenNoneAck(t *testing.T) {
	coord, _ := newTestCoordinator()
	requester := func(ctx context.Context, contextID string) (Ack, error) {
		return Ack{}, context.DeadlineExceeded
	}

	result := coord.SynchronizeOperations("sync-2", []string{"s1", "s2"}, requester, nil)
	assert.Equal(t, SyncFailed, result.Status)
	assert.Equal(t, 0.0, result.Effectiveness)
}
