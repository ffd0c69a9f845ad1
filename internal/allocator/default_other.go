//go:build !linux

package allocator

// NewDefault returns the preferred chunk allocator for this platform.
// Platforms without the mmap allocator fall back to Go slices.
func NewDefault(opts ...Option) ChunkAllocator {
	return NewSystemAllocator(opts...)
}
