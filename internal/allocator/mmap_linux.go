//go:build linux

package allocator

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// MmapAllocator hands out chunks backed by anonymous private mappings.
// Releasing a chunk unmaps it immediately, returning the pages to the
// kernel rather than to the Go heap.
type MmapAllocator struct {
	config *Config
	chunks map[*byte][]byte // live mapping base -> full mapping
	stats  Stats
	mu     sync.Mutex
}

// NewMmapAllocator creates an mmap-backed chunk allocator.
func NewMmapAllocator(opts ...Option) *MmapAllocator {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	return &MmapAllocator{
		config: config,
		chunks: make(map[*byte][]byte),
	}
}

// pageSize is fixed at mapping granularity; chunk sizes are rounded up to it.
const pageSize = 4096

// AllocChunk maps a zeroed chunk of at least size bytes.
func (ma *MmapAllocator) AllocChunk(size int) ([]byte, error) {
	if size <= 0 {
		return nil, &AllocError{Message: "invalid chunk size", Requested: size}
	}

	aligned := alignUp(size, pageSize)

	ma.mu.Lock()
	defer ma.mu.Unlock()

	if ma.config.MemoryLimit > 0 && ma.stats.BytesInUse+uint64(aligned) > ma.config.MemoryLimit {
		return nil, &AllocError{
			Message:   "memory limit exceeded",
			Requested: aligned,
			Limit:     ma.config.MemoryLimit,
		}
	}

	mapping, err := unix.Mmap(-1, 0, aligned,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, &AllocError{Message: fmt.Sprintf("mmap failed: %v", err), Requested: aligned}
	}

	ma.chunks[&mapping[0]] = mapping

	ma.stats.TotalAllocated += uint64(aligned)
	ma.stats.BytesInUse += uint64(aligned)
	ma.stats.AllocCount++

	if ma.stats.BytesInUse > ma.stats.PeakBytes {
		ma.stats.PeakBytes = ma.stats.BytesInUse
	}

	return mapping, nil
}

// Release unmaps a chunk previously obtained from AllocChunk.
func (ma *MmapAllocator) Release(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	ma.mu.Lock()
	defer ma.mu.Unlock()

	mapping, ok := ma.chunks[&chunk[0]]
	if !ok {
		return fmt.Errorf("allocator: release of unmapped chunk (%d bytes)", len(chunk))
	}

	delete(ma.chunks, &chunk[0])

	size := uint64(len(mapping))
	if err := unix.Munmap(mapping); err != nil {
		return fmt.Errorf("allocator: munmap failed: %w", err)
	}

	ma.stats.TotalReleased += size
	ma.stats.BytesInUse -= size
	ma.stats.ReleaseCount++

	return nil
}

// Stats returns cumulative allocation statistics.
func (ma *MmapAllocator) Stats() Stats {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	return ma.stats
}
