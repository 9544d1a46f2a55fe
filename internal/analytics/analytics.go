package analytics

import (
	"sort"
	"sync"
	"time"
)

// subsystemEWMAAlpha weights a subsystem's latest observed latency
// against its running average to produce an exponentially weighted
// moving average.
const subsystemEWMAAlpha = 0.2

// topEventTypesLimit bounds the distribution reported in a snapshot;
// the full distribution is tracked unbounded internally.
const topEventTypesLimit = 10

// Analytics is the Analytics subsystem (C5): it absorbs every processed
// event and subsystem signal and exposes a cached, periodically
// recomputed dashboard snapshot.
type Analytics struct {
	mu sync.Mutex

	ringCapacity int
	anomalySamples int
	trendInterval time.Duration
	dashboardTTL time.Duration

	ring *throughputRing

	eventsProcessed int64
	latency LatencyStats
	eventTypeCounts map[string]int64

	subsystems map[SubsystemKind]*SubsystemStats
	algedonic AlgedonicStats

	lastTrend Trend
	trendComputed int64 // unix minute of last trend recomputation
	cachedSnapshot *Snapshot
	cachedAt time.Time

	now func() time.Time
}

// Config mirrors config.AnalyticsConfig, kept local to avoid this
// package importing the config package for four scalars.
type Config struct {
	RingCapacity int
	AnomalySamples int
	TrendInterval time.Duration
	DashboardTTL time.Duration
}

// DefaultConfig returns literal defaults.
func DefaultConfig() Config {
	return Config{
		RingCapacity: 1440,
		AnomalySamples: 5,
		TrendInterval: 5 * time.Minute,
		DashboardTTL: 30 * time.Second,
	}
}

// New constructs an Analytics instance.
func New(cfg Config) *Analytics {
	if cfg.AnomalySamples <= 0 {
		cfg.AnomalySamples = DefaultConfig().AnomalySamples
	}
	return &Analytics{
		ringCapacity: cfg.RingCapacity,
		anomalySamples: cfg.AnomalySamples,
		trendInterval: cfg.TrendInterval,
		dashboardTTL: cfg.DashboardTTL,
		ring: newThroughputRing(cfg.RingCapacity),
		eventTypeCounts: make(map[string]int64),
		subsystems: make(map[SubsystemKind]*SubsystemStats),
		lastTrend: TrendStable,
		now: time.Now,
	}
}

func (a *Analytics) currentMinute() int64 {
	return a.now().Unix() / 60
}

// RecordEvent absorbs one processed event: overall counts, latency
// stats, event-type distribution, and the current minute's throughput
// bucket.
func (a *Analytics) RecordEvent(eventType string, latencyMs float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.eventsProcessed++
	a.latency.Count++
	a.latency.Total += latencyMs
	if a.latency.Count == 1 || latencyMs < a.latency.Min {
		a.latency.Min = latencyMs
	}
	if latencyMs > a.latency.Max {
		a.latency.Max = latencyMs
	}
	a.eventTypeCounts[eventType]++
	a.ring.record(a.currentMinute())
}

// RecordSubsystem absorbs one subsystem-scoped signal: an operation,
// error, timeout, override, or policy violation, with its latency
// folded into that subsystem's exponential average.
func (a *Analytics) RecordSubsystem(kind SubsystemKind, outcome SubsystemOutcome, latencyMs float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats, ok := a.subsystems[kind]
	if !ok {
		stats = &SubsystemStats{}
		a.subsystems[kind] = stats
	}
	switch outcome {
	case OutcomeOperation:
		stats.Operations++
	case OutcomeError:
		stats.Errors++
	case OutcomeTimeout:
		stats.Timeouts++
	case OutcomeOverride:
		stats.Overrides++
	case OutcomeViolation:
		stats.Violations++
	}
	if stats.Operations+stats.Errors+stats.Timeouts == 1 {
		stats.AvgLatencyMs = latencyMs
	} else {
		stats.AvgLatencyMs = subsystemEWMAAlpha*latencyMs + (1-subsystemEWMAAlpha)*stats.AvgLatencyMs
	}
}

// RecordAlgedonic absorbs one pain or pleasure signal, updating the
// running mean intensity for its kind.
func (a *Analytics) RecordAlgedonic(signal AlgedonicSignal, intensity float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch signal {
	case AlgedonicPain:
		a.algedonic.PainCount++
		a.algedonic.PainMeanIntensity += (intensity - a.algedonic.PainMeanIntensity) / float64(a.algedonic.PainCount)
	case AlgedonicPleasure:
		a.algedonic.PleasureCount++
		a.algedonic.PleasureMeanIntensity += (intensity - a.algedonic.PleasureMeanIntensity) / float64(a.algedonic.PleasureCount)
	}
}

// computeTrendLocked compares the mean of the 5 minutes ending the
// minute before "now" to the preceding 5 minutes, using ±10%
// thresholds. Caller must hold a.mu.
func (a *Analytics) computeTrendLocked(nowMinute int64) Trend {
	previous5 := a.ring.window(nowMinute-6, 5)
	last5 := a.ring.window(nowMinute-1, 5)

	prevMean := mean(previous5)
	lastMean := mean(last5)
	if prevMean == 0 {
		if lastMean == 0 {
			return TrendStable
		}
		return TrendIncreasing
	}

	delta := (lastMean - prevMean) / prevMean
	switch {
	case delta > 0.10:
		return TrendIncreasing
	case delta < -0.10:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// computeAnomaliesLocked checks the two anomaly classes this component
// tracks: current-minute throughput deviation (by σ over the trailing N
// samples) and max-latency-vs-mean blowout. Caller must hold a.mu.
func (a *Analytics) computeAnomaliesLocked(nowMinute time.Time, minute int64) []Anomaly {
	var anomalies []Anomaly

	trailing := a.ring.window(minute-1, a.anomalySamples)
	sigma := stddev(trailing)
	baseline := mean(trailing)
	current := float64(a.ring.at(minute))

	if sigma > 0 {
		deviation := current - baseline
		if deviation < 0 {
			deviation = -deviation
		}
		switch {
		case deviation > 3*sigma:
			anomalies = append(anomalies, Anomaly{Kind: AnomalyThroughput, Severity: SeverityHigh, Detail: "throughput deviates >3σ from trailing baseline", Timestamp: nowMinute})
		case deviation > 2*sigma:
			anomalies = append(anomalies, Anomaly{Kind: AnomalyThroughput, Severity: SeverityMedium, Detail: "throughput deviates >2σ from trailing baseline", Timestamp: nowMinute})
		}
	}

	if avg := a.latency.Avg(); avg > 0 && a.latency.Max > 5*avg {
		anomalies = append(anomalies, Anomaly{Kind: AnomalyLatency, Severity: SeverityHigh, Detail: "max latency exceeds 5x mean", Timestamp: nowMinute})
	}

	return anomalies
}

func (a *Analytics) topEventTypesLocked() []EventTypeCount {
	entries := make([]EventTypeCount, 0, len(a.eventTypeCounts))
	for eventType, count := range a.eventTypeCounts {
		entries = append(entries, EventTypeCount{EventType: eventType, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].EventType < entries[j].EventType
	})
	if len(entries) > topEventTypesLimit {
		entries = entries[:topEventTypesLimit]
	}
	return entries
}

// Snapshot returns the dashboard view, recomputing trend and anomalies
// at most once per dashboardTTL (default 30s).
func (a *Analytics) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.cachedSnapshot != nil && now.Sub(a.cachedAt) < a.dashboardTTL {
		return *a.cachedSnapshot
	}

	minute := a.currentMinute()
	if a.trendInterval <= 0 {
		a.trendInterval = DefaultConfig().TrendInterval
	}
	trendIntervalMinutes := int64(a.trendInterval / time.Minute)
	if trendIntervalMinutes <= 0 {
		trendIntervalMinutes = 5
	}
	if minute-a.trendComputed >= trendIntervalMinutes {
		a.lastTrend = a.computeTrendLocked(minute)
		a.trendComputed = minute
	}

	subsystems := make(map[SubsystemKind]SubsystemStats, len(a.subsystems))
	for kind, stats := range a.subsystems {
		subsystems[kind] = *stats
	}

	snapshot := Snapshot{
		GeneratedAt: now,
		EventsProcessed: a.eventsProcessed,
		Latency: a.latency,
		ThroughputNow: a.ring.at(minute),
		Trend: a.lastTrend,
		TopEventTypes: a.topEventTypesLocked(),
		Subsystems: subsystems,
		Algedonic: a.algedonic,
		Anomalies: a.computeAnomaliesLocked(now, minute),
	}

	a.cachedSnapshot = &snapshot
	a.cachedAt = now
	return snapshot
}
