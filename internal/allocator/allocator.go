// Package allocator provides the backing memory source for the Tephra
// runtime's garbage collector. Regions of the managed heap (old-generation
// chunks, large-object boxes) are carved out of chunks obtained here.
// Two implementations are provided: a portable allocator backed by Go
// slices, and an mmap-backed allocator on Linux.
package allocator

import (
	"fmt"
	"sync"
)

// ChunkAllocator is the interface the collector allocates backing memory
// through. Chunk exhaustion is fatal from the collector's point of view:
// implementations return an error wrapping ErrOutOfMemory and perform no
// retry or degradation of their own.
type ChunkAllocator interface {
	// AllocChunk returns a zeroed chunk of at least size bytes.
	AllocChunk(size int) ([]byte, error)
	// Release returns a chunk previously obtained from AllocChunk.
	Release(chunk []byte) error
	// Stats reports cumulative allocation statistics.
	Stats() Stats
}

// Stats provides chunk allocation statistics.
type Stats struct {
	TotalAllocated uint64 // Cumulative bytes handed out
	TotalReleased  uint64 // Cumulative bytes returned
	BytesInUse     uint64 // Currently outstanding bytes
	PeakBytes      uint64 // High-water mark of outstanding bytes
	AllocCount     uint64 // Number of AllocChunk calls that succeeded
	ReleaseCount   uint64 // Number of Release calls that succeeded
}

// AllocError reports a failed chunk operation.
type AllocError struct {
	Message   string
	Requested int
	Limit     uint64
}

// Error implements the error interface.
func (e *AllocError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("allocator: %s (requested=%d, limit=%d)", e.Message, e.Requested, e.Limit)
	}

	return fmt.Sprintf("allocator: %s (requested=%d)", e.Message, e.Requested)
}

// Unwrap lets callers match the failure class with errors.Is.
func (e *AllocError) Unwrap() error { return ErrOutOfMemory }

// ErrOutOfMemory is the sentinel wrapped by every exhaustion failure.
var ErrOutOfMemory = fmt.Errorf("out of memory")

// Config controls allocator behavior.
type Config struct {
	MemoryLimit    uint64 // Maximum outstanding bytes, 0 means unlimited
	Alignment      int    // Chunk size alignment, power of two
	EnableTracking bool   // Track individual chunks for double-release detection
}

// Option mutates a Config.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		MemoryLimit:    0,
		Alignment:      8,
		EnableTracking: true,
	}
}

// WithMemoryLimit caps the outstanding bytes the allocator will hand out.
func WithMemoryLimit(limit uint64) Option {
	return func(c *Config) { c.MemoryLimit = limit }
}

// WithAlignment sets the chunk size alignment.
func WithAlignment(alignment int) Option {
	return func(c *Config) { c.Alignment = alignment }
}

// WithTracking toggles per-chunk tracking.
func WithTracking(enabled bool) Option {
	return func(c *Config) { c.EnableTracking = enabled }
}

// alignUp aligns a size up to the nearest multiple of alignment.
func alignUp(size, alignment int) int {
	return (size + alignment - 1) &^ (alignment - 1)
}

// SystemAllocator hands out chunks backed by Go slices. It is the portable
// default and the fallback wherever the mmap allocator is unavailable.
type SystemAllocator struct {
	config *Config
	chunks map[*byte]int // live chunk base -> length, when tracking
	stats  Stats
	mu     sync.Mutex
}

// NewSystemAllocator creates a slice-backed chunk allocator.
func NewSystemAllocator(opts ...Option) *SystemAllocator {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	return &SystemAllocator{
		config: config,
		chunks: make(map[*byte]int),
	}
}

// AllocChunk returns a zeroed chunk of at least size bytes.
func (sa *SystemAllocator) AllocChunk(size int) ([]byte, error) {
	if size <= 0 {
		return nil, &AllocError{Message: "invalid chunk size", Requested: size}
	}

	aligned := alignUp(size, sa.config.Alignment)

	sa.mu.Lock()
	defer sa.mu.Unlock()

	if sa.config.MemoryLimit > 0 && sa.stats.BytesInUse+uint64(aligned) > sa.config.MemoryLimit {
		return nil, &AllocError{
			Message:   "memory limit exceeded",
			Requested: aligned,
			Limit:     sa.config.MemoryLimit,
		}
	}

	chunk := make([]byte, aligned)

	if sa.config.EnableTracking {
		sa.chunks[&chunk[0]] = aligned
	}

	sa.stats.TotalAllocated += uint64(aligned)
	sa.stats.BytesInUse += uint64(aligned)
	sa.stats.AllocCount++

	if sa.stats.BytesInUse > sa.stats.PeakBytes {
		sa.stats.PeakBytes = sa.stats.BytesInUse
	}

	return chunk, nil
}

// Release returns a chunk to the allocator. With tracking enabled an
// unknown or doubly released chunk is rejected.
func (sa *SystemAllocator) Release(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	sa.mu.Lock()
	defer sa.mu.Unlock()

	size := len(chunk)

	if sa.config.EnableTracking {
		tracked, ok := sa.chunks[&chunk[0]]
		if !ok {
			return fmt.Errorf("allocator: release of untracked chunk (%d bytes)", size)
		}

		size = tracked
		delete(sa.chunks, &chunk[0])
	}

	sa.stats.TotalReleased += uint64(size)
	sa.stats.BytesInUse -= uint64(size)
	sa.stats.ReleaseCount++

	return nil
}

// Stats returns cumulative allocation statistics.
func (sa *SystemAllocator) Stats() Stats {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	return sa.stats
}

// ActiveChunks returns the number of outstanding tracked chunks.
func (sa *SystemAllocator) ActiveChunks() int {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	return len(sa.chunks)
}
