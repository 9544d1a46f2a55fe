package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalytics() *Analytics {
	cfg := DefaultConfig()
	cfg.DashboardTTL = 0 // disable caching so tests observe every recompute
	return New(cfg)
}

func TestRecordEventAccumulatesLatencyStats(t *testing.T) {
	a := newTestAnalytics()
	a.RecordEvent("system1.operation.started", 10)
	a.RecordEvent("system1.operation.started", 30)
	a.RecordEvent("system2.coordination.failed", 5)

	snap := a.Snapshot()
	assert.EqualValues(t, 3, snap.EventsProcessed)
	assert.Equal(t, 5.0, snap.Latency.Min)
	assert.Equal(t, 30.0, snap.Latency.Max)
	assert.InDelta(t, 15.0, snap.Latency.Avg(), 1e-9)
}

func TestTopEventTypesOrderedByCount(t *testing.T) {
	a := newTestAnalytics()
	for i := 0; i < 5; i++ {
		a.RecordEvent("frequent.type", 1)
	}
	a.RecordEvent("rare.type", 1)

	snap := a.Snapshot()
	require.NotEmpty(t, snap.TopEventTypes)
	assert.Equal(t, "frequent.type", snap.TopEventTypes[0].EventType)
	assert.EqualValues(t, 5, snap.TopEventTypes[0].Count)
}

func TestSubsystemStatsCountOutcomesAndEWMALatency(t *testing.T) {
	a := newTestAnalytics()
	a.RecordSubsystem(SubsystemS3, OutcomeOperation, 100)
	a.RecordSubsystem(SubsystemS3, OutcomeOperation, 200)
	a.RecordSubsystem(SubsystemS3, OutcomeError, 50)

	snap := a.Snapshot()
	stats := snap.Subsystems[SubsystemS3]
	assert.EqualValues(t, 2, stats.Operations)
	assert.EqualValues(t, 1, stats.Errors)
	assert.InDelta(t, 0.2*50+0.8*(0.2*200+0.8*100), stats.AvgLatencyMs, 1e-9)
}

func TestAlgedonicRunningMean(t *testing.T) {
	a := newTestAnalytics()
	a.RecordAlgedonic(AlgedonicPain, 0.8)
	a.RecordAlgedonic(AlgedonicPain, 0.4)
	a.RecordAlgedonic(AlgedonicPleasure, 0.6)

	snap := a.Snapshot()
	assert.EqualValues(t, 2, snap.Algedonic.PainCount)
	assert.InDelta(t, 0.6, snap.Algedonic.PainMeanIntensity, 1e-9)
	assert.EqualValues(t, 1, snap.Algedonic.PleasureCount)
	assert.InDelta(t, 0.6, snap.Algedonic.PleasureMeanIntensity, 1e-9)
}

func TestSnapshotIsCachedWithinTTL(t *testing.T) {
	a := New(Config{RingCapacity: 1440, AnomalySamples: 5, TrendInterval: 5 * time.Minute, DashboardTTL: time.Minute})
	fixed := time.Now()
	a.now = func() time.Time { return fixed }

	a.RecordEvent("a", 1)
	first := a.Snapshot()

	a.RecordEvent("b", 1)
	second := a.Snapshot()

	assert.Equal(t, first.EventsProcessed, second.EventsProcessed)

	a.now = func() time.Time { return fixed.Add(2 * time.Minute) }
	third := a.Snapshot()
	assert.EqualValues(t, 2, third.EventsProcessed)
}

func TestThroughputAnomalyDetectedOnSpike(t *testing.T) {
	a := newTestAnalytics()
	fixed := time.Now()
	a.now = func() time.Time { return fixed }

	baseMinute := fixed.Unix() / 60
	trailingCounts := []int{2, 3, 2, 3, 2}
	for i, m := 0, baseMinute-5; m < baseMinute; i, m = i+1, m+1 {
		for j := 0; j < trailingCounts[i]; j++ {
			a.ring.record(m)
		}
	}
	for i := 0; i < 50; i++ {
		a.ring.record(baseMinute)
	}

	anomalies := a.computeAnomaliesLocked(fixed, baseMinute)
	require.NotEmpty(t, anomalies)
	assert.Equal(t, AnomalyThroughput, anomalies[0].Kind)
}

func TestLatencyAnomalyOnBlowout(t *testing.T) {
	a := newTestAnalytics()
	for i := 0; i < 9; i++ {
		a.RecordEvent("a", 10)
	}
	a.RecordEvent("a", 200)

	snap := a.Snapshot()
	var found bool
	for _, an := range snap.Anomalies {
		if an.Kind == AnomalyLatency {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTrendIncreasingWhenRecentThroughputRises(t *testing.T) {
	a := newTestAnalytics()
	fixed := time.Now()
	a.now = func() time.Time { return fixed }
	baseMinute := fixed.Unix() / 60

	for m := baseMinute - 10; m < baseMinute-5; m++ {
		a.ring.record(m)
	}
	for m := baseMinute - 5; m < baseMinute; m++ {
		for i := 0; i < 5; i++ {
			a.ring.record(m)
		}
	}

	trend := a.computeTrendLocked(baseMinute)
	assert.Equal(t, TrendIncreasing, trend)
}

func TestThroughputRingWrapsAtCapacity(t *testing.T) {
	r := newThroughputRing(4)
	r.record(0)
	r.record(4) // same slot as minute 0, one lap later
	assert.EqualValues(t, 1, r.at(4))
	assert.EqualValues(t, 0, r.at(0))
}
