package analytics

// minuteBucket is one per-minute throughput counter slot. The minute
// field disambiguates stale slots from a prior lap of the ring, the
// same pattern internal/replay.Cleaner uses mod-time comparisons to
// decide whether an artefact survives a sweep.
type minuteBucket struct {
	minute int64
	count int64
}

// throughputRing is a fixed-capacity rotating buffer of per-minute event
// counts, sized to cover a 24h retention window at cfg.RingCapacity
// (default 1440 = 24h * 60m).
type throughputRing struct {
	buckets []minuteBucket
	capacity int
}

func newThroughputRing(capacity int) *throughputRing {
	if capacity <= 0 {
		capacity = 1440
	}
	return &throughputRing{buckets: make([]minuteBucket, capacity), capacity: capacity}
}

func (r *throughputRing) index(minute int64) int {
	idx := minute % int64(r.capacity)
	if idx < 0 {
		idx += int64(r.capacity)
	}
	return int(idx)
}

// record increments the counter for the given minute, resetting the slot
// first if it belonged to an earlier lap of the ring.
func (r *throughputRing) record(minute int64) {
	idx := r.index(minute)
	if r.buckets[idx].minute != minute {
		r.buckets[idx] = minuteBucket{minute: minute}
	}
	r.buckets[idx].count++
}

// at returns the recorded count for a given minute, or 0 if that slot
// has since been overwritten by a later lap or was never written.
func (r *throughputRing) at(minute int64) int64 {
	idx := r.index(minute)
	if r.buckets[idx].minute != minute {
		return 0
	}
	return r.buckets[idx].count
}

// window returns counts for the n minutes ending at (and including)
// minute, oldest first.
func (r *throughputRing) window(minute int64, n int) []int64 {
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = r.at(minute - int64(n-1-i))
	}
	return out
}
