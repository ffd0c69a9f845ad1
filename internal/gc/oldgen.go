package gc

import (
	"github.com/tephra-lang/tephra/internal/allocator"
)

const (
	// numSizeClasses segregates free blocks into power-of-two buckets
	// from 16 B up to 512 KiB.
	numSizeClasses = 16
	minBlockSize   = 16

	// minChunkSize is the smallest backing chunk requested from the
	// underlying allocator.
	minChunkSize = 1 << 20
)

// sizeClassFor returns the smallest class whose capacity holds size.
func sizeClassFor(size int) int {
	class := 0
	for c := minBlockSize; c < size && class < numSizeClasses-1; c <<= 1 {
		class++
	}

	return class
}

// classCapacity returns the block capacity of a size class.
func classCapacity(class int) int { return minBlockSize << class }

// oldBlock is one entry of the old generation's side block table. Free-list
// membership and linkage live here, never inside the freed payload bytes.
type oldBlock struct {
	chunk  uint32 // owning chunk index
	offset uint32 // byte offset within the chunk
	size   uint32 // block size in bytes
	addr   uint64 // logical heap address, stable for the block's lifetime
	free   bool
	epoch  uint32 // bumped on every free to invalidate stale handles
	hdr    Header
}

// FragmentationInfo is the result of a Coalesce pass.
type FragmentationInfo struct {
	TotalFreeBytes     uint64
	FreeBlockCount     int
	AvgFreeBlockSize   float64
	FragmentationRatio float64
}

// OldGeneration is the long-lived-object region: a segregated free-list
// allocator over chunks obtained from the backing allocator. Objects live
// here until a major collection frees them. Blocks are tracked in a side
// table; each carries a logical heap address so the card table can cover
// the region.
type OldGeneration struct {
	backing   allocator.ChunkAllocator
	chunks    [][]byte
	blocks    []oldBlock
	freeLists [numSizeClasses][]uint32 // LIFO stacks of block indices

	addrBase  uint64 // start of this space's logical address range
	addrNext  uint64 // logical address of the next chunk
	addrLimit uint64 // exclusive end of the range; 0 means unbounded

	totalSize  uint64 // bytes held in backing chunks
	usedBytes  uint64
	allocCount uint64
	freeCount  uint64

	lastFragmentation FragmentationInfo
}

// newOldGeneration creates an empty old generation over the logical
// address range [addrBase, addrLimit). Growing past the limit would let
// blocks alias another space's cards, so it is a hard allocation failure.
func newOldGeneration(backing allocator.ChunkAllocator, addrBase, addrLimit uint64) *OldGeneration {
	return &OldGeneration{
		backing:   backing,
		addrBase:  addrBase,
		addrNext:  addrBase,
		addrLimit: addrLimit,
	}
}

// Alloc finds or creates a block of at least size bytes.
//
// Policy is segregated best-fit-within-class: compute the class for the
// aligned request, then scan classes upward (never downward) for the first
// non-empty free list whose head block fits. Leftover space above the
// minimum block size is split off and pushed onto its own class's list.
// When no free block anywhere fits, a fresh backing chunk is carved.
func (o *OldGeneration) Alloc(size int, kind PayloadKind) (Ref, error) {
	aligned := alignUp(size, allocAlign)

	idx, ok := o.takeFreeBlock(aligned)
	if !ok {
		var err error

		idx, err = o.growChunk(aligned)
		if err != nil {
			return Ref{}, err
		}
	}

	o.splitBlock(idx, uint32(aligned))

	b := &o.blocks[idx]
	b.free = false
	b.hdr = Header{
		Size: uint32(size),
		Gen:  GenOld,
		Kind: kind,
	}

	o.usedBytes += uint64(b.size)
	o.allocCount++

	return Ref{space: SpaceOld, index: idx, epoch: b.epoch}, nil
}

// takeFreeBlock pops the first fitting free-list head at or above the
// request's class.
func (o *OldGeneration) takeFreeBlock(aligned int) (uint32, bool) {
	for class := sizeClassFor(aligned); class < numSizeClasses; class++ {
		list := o.freeLists[class]
		if len(list) == 0 {
			continue
		}

		head := list[len(list)-1]
		if int(o.blocks[head].size) < aligned {
			continue
		}

		o.freeLists[class] = list[:len(list)-1]

		return head, true
	}

	return 0, false
}

// growChunk obtains a new backing chunk and carves a block covering it.
// Backing exhaustion is fatal and propagated unchanged.
func (o *OldGeneration) growChunk(aligned int) (uint32, error) {
	chunkSize := minChunkSize
	if aligned > chunkSize {
		chunkSize = aligned
	}

	if o.addrLimit > 0 && o.addrNext+uint64(chunkSize) > o.addrLimit {
		return 0, &CollectorError{
			Message: "old generation logical address range exhausted",
			Code:    ErrCodeOutOfMemory,
			Size:    chunkSize,
		}
	}

	chunk, err := o.backing.AllocChunk(chunkSize)
	if err != nil {
		return 0, outOfMemory(chunkSize, err)
	}

	o.chunks = append(o.chunks, chunk)
	o.totalSize += uint64(len(chunk))

	addr := o.addrNext
	o.addrNext += uint64(len(chunk))

	o.blocks = append(o.blocks, oldBlock{
		chunk:  uint32(len(o.chunks) - 1),
		offset: 0,
		size:   uint32(len(chunk)),
		addr:   addr,
		free:   true,
		epoch:  1,
	})

	return uint32(len(o.blocks) - 1), nil
}

// splitBlock trims the block at idx to want bytes, pushing the remainder
// onto the free list of its own class when it is worth tracking.
func (o *OldGeneration) splitBlock(idx uint32, want uint32) {
	b := &o.blocks[idx]

	remainder := b.size - want
	if remainder < minBlockSize {
		return
	}

	rest := oldBlock{
		chunk:  b.chunk,
		offset: b.offset + want,
		size:   remainder,
		addr:   b.addr + uint64(want),
		free:   true,
		epoch:  1,
	}
	b.size = want

	o.blocks = append(o.blocks, rest)
	restIdx := uint32(len(o.blocks) - 1)
	o.pushFree(restIdx)
}

// pushFree pushes a block onto the free list for its own size class.
func (o *OldGeneration) pushFree(idx uint32) {
	class := sizeClassFor(int(o.blocks[idx].size))
	o.freeLists[class] = append(o.freeLists[class], idx)
}

// Free returns a block to its size class's free list. O(1), no merging of
// adjacent blocks.
func (o *OldGeneration) Free(idx uint32) {
	b := &o.blocks[idx]
	if b.free {
		return
	}

	b.free = true
	b.epoch++
	b.hdr = Header{}

	o.usedBytes -= uint64(b.size)
	o.freeCount++
	o.pushFree(idx)
}

// Coalesce walks every free list and derives an approximate fragmentation
// estimate. It does not physically merge adjacent blocks; the free lists
// are left untouched. The ratio is 1 - avg_free_block_size/total_free_bytes.
func (o *OldGeneration) Coalesce() FragmentationInfo {
	var info FragmentationInfo

	for class := range o.freeLists {
		for _, idx := range o.freeLists[class] {
			info.TotalFreeBytes += uint64(o.blocks[idx].size)
			info.FreeBlockCount++
		}
	}

	if info.FreeBlockCount > 0 && info.TotalFreeBytes > 0 {
		info.AvgFreeBlockSize = float64(info.TotalFreeBytes) / float64(info.FreeBlockCount)
		info.FragmentationRatio = 1.0 - info.AvgFreeBlockSize/float64(info.TotalFreeBytes)
	}

	o.lastFragmentation = info

	return info
}

// header resolves a handle against the block table.
func (o *OldGeneration) header(r Ref) (*Header, bool) {
	if r.space != SpaceOld || int(r.index) >= len(o.blocks) {
		return nil, false
	}

	b := &o.blocks[r.index]
	if b.free || b.epoch != r.epoch {
		return nil, false
	}

	return &b.hdr, true
}

// payload returns the payload bytes of the block at idx.
func (o *OldGeneration) payload(idx uint32) []byte {
	b := &o.blocks[idx]

	return o.chunks[b.chunk][b.offset : b.offset+b.hdr.Size]
}

// addrOf returns the logical heap address of the block at idx.
func (o *OldGeneration) addrOf(idx uint32) uint64 { return o.blocks[idx].addr }

// Used returns the bytes held by live blocks.
func (o *OldGeneration) Used() uint64 { return o.usedBytes }

// TotalSize returns the bytes held in backing chunks.
func (o *OldGeneration) TotalSize() uint64 { return o.totalSize }

// Utilization returns the live-byte ratio of the chunked backing.
func (o *OldGeneration) Utilization() float64 {
	if o.totalSize == 0 {
		return 0
	}

	return float64(o.usedBytes) / float64(o.totalSize)
}

// releaseChunks returns every backing chunk to the allocator. Only used on
// collector shutdown.
func (o *OldGeneration) releaseChunks() {
	for _, chunk := range o.chunks {
		_ = o.backing.Release(chunk)
	}

	o.chunks = nil
	o.blocks = nil
	o.totalSize = 0
	o.usedBytes = 0

	for class := range o.freeLists {
		o.freeLists[class] = nil
	}
}
