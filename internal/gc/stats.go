package gc

import "time"

// Stats is the cumulative collector statistics snapshot returned to the
// runtime.
type Stats struct {
	MinorCollections uint64 `json:"minor_collections"`
	MajorCollections uint64 `json:"major_collections"`
	FullCollections  uint64 `json:"full_collections"`

	BytesAllocated uint64 `json:"bytes_allocated"`
	BytesFreed     uint64 `json:"bytes_freed"`

	PromotedToSurvivor uint64 `json:"promoted_to_survivor"`
	PromotedToOld      uint64 `json:"promoted_to_old"`

	LastPauseNs uint64 `json:"last_pause_ns"`
	AvgPauseNs  uint64 `json:"avg_pause_ns"`
	MaxPauseNs  uint64 `json:"max_pause_ns"`

	WriteBarriers uint64 `json:"write_barriers"`
}

// RegionUsage reports one region's byte accounting.
type RegionUsage struct {
	Used  uint64 `json:"used"`
	Total uint64 `json:"total"`
}

// MemoryUsage reports per-region used/total bytes.
type MemoryUsage struct {
	Nursery     RegionUsage `json:"nursery"`
	Survivor    RegionUsage `json:"survivor"`
	OldGen      RegionUsage `json:"old_gen"`
	LargeObject RegionUsage `json:"large_object"`
}

// pauseTracker accumulates stop-the-world pause durations.
type pauseTracker struct {
	last  time.Duration
	max   time.Duration
	total time.Duration
	count uint64
}

func (p *pauseTracker) record(d time.Duration) {
	p.last = d
	p.total += d
	p.count++

	if d > p.max {
		p.max = d
	}
}

func (p *pauseTracker) avg() time.Duration {
	if p.count == 0 {
		return 0
	}

	return p.total / time.Duration(p.count)
}
