//go:build linux

package allocator

// NewDefault returns the preferred chunk allocator for this platform.
// On Linux that is the mmap-backed allocator.
func NewDefault(opts ...Option) ChunkAllocator {
	return NewMmapAllocator(opts...)
}
