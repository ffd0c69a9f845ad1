package gc

import (
	"github.com/tephra-lang/tephra/internal/allocator"
)

// largeObject is one individually boxed allocation above the large-object
// threshold, backed by its own chunk.
type largeObject struct {
	data  []byte
	addr  uint64
	epoch uint32
	live  bool
	hdr   Header
}

// LargeObjectSpace manages objects too big for the nursery. Each is a
// standalone box with its own header; reclamation is plain mark-and-sweep.
type LargeObjectSpace struct {
	backing   allocator.ChunkAllocator
	objects   []largeObject
	free      []uint32 // recycled slots
	addrNext  uint64
	addrLimit uint64 // exclusive end of the logical range; 0 means unbounded

	totalBytes uint64
	count      int
	allocCount uint64
	sweepCount uint64
}

// newLargeObjectSpace creates an empty space over the logical address
// range [addrBase, addrLimit). A box past the limit would alias another
// space's cards, so crossing it is a hard allocation failure.
func newLargeObjectSpace(backing allocator.ChunkAllocator, addrBase, addrLimit uint64) *LargeObjectSpace {
	return &LargeObjectSpace{
		backing:   backing,
		addrNext:  addrBase,
		addrLimit: addrLimit,
	}
}

// Alloc boxes a new large object. Slot insert is O(1); the payload chunk
// comes straight from the backing allocator and exhaustion propagates.
func (l *LargeObjectSpace) Alloc(size int, kind PayloadKind) (Ref, error) {
	span := uint64(alignUp(size, cardSize))
	if l.addrLimit > 0 && l.addrNext+span > l.addrLimit {
		return Ref{}, &CollectorError{
			Message: "large-object logical address range exhausted",
			Code:    ErrCodeOutOfMemory,
			Size:    size,
		}
	}

	chunk, err := l.backing.AllocChunk(size)
	if err != nil {
		return Ref{}, outOfMemory(size, err)
	}

	obj := largeObject{
		data:  chunk,
		addr:  l.addrNext,
		epoch: 1,
		live:  true,
		hdr: Header{
			Size: uint32(size),
			Gen:  GenLarge,
			Kind: kind,
		},
	}
	l.addrNext += span

	var idx uint32
	if n := len(l.free); n > 0 {
		idx = l.free[n-1]
		l.free = l.free[:n-1]
		obj.epoch = l.objects[idx].epoch + 1
		l.objects[idx] = obj
	} else {
		l.objects = append(l.objects, obj)
		idx = uint32(len(l.objects) - 1)
	}

	l.totalBytes += uint64(size)
	l.count++
	l.allocCount++

	return Ref{space: SpaceLarge, index: idx, epoch: obj.epoch}, nil
}

// freeSlot releases one box. O(1) slot remove.
func (l *LargeObjectSpace) freeSlot(idx uint32) {
	obj := &l.objects[idx]
	if !obj.live {
		return
	}

	l.totalBytes -= uint64(obj.hdr.Size)
	l.count--

	_ = l.backing.Release(obj.data)
	obj.data = nil
	obj.live = false
	obj.epoch++
	obj.hdr = Header{}

	l.free = append(l.free, idx)
}

// MarkAll resets every live object's mark to white. Root marking may then
// blacken some of them externally before Sweep runs.
func (l *LargeObjectSpace) MarkAll() {
	for i := range l.objects {
		if l.objects[i].live {
			l.objects[i].hdr.Mark = MarkWhite
		}
	}
}

// Sweep reclaims every still-white object, invoking finalize on each, and
// rewhitens survivors for the next cycle. Returns total bytes freed.
func (l *LargeObjectSpace) Sweep(finalize func(*Header, []byte)) uint64 {
	var freed uint64

	for i := range l.objects {
		obj := &l.objects[i]
		if !obj.live {
			continue
		}

		if obj.hdr.Mark == MarkWhite {
			freed += uint64(obj.hdr.Size)
			finalize(&obj.hdr, obj.data[:obj.hdr.Size])
			l.freeSlot(uint32(i))

			continue
		}

		obj.hdr.Mark = MarkWhite
	}

	l.sweepCount++

	return freed
}

// header resolves a handle against the slot table.
func (l *LargeObjectSpace) header(r Ref) (*Header, bool) {
	if r.space != SpaceLarge || int(r.index) >= len(l.objects) {
		return nil, false
	}

	obj := &l.objects[r.index]
	if !obj.live || obj.epoch != r.epoch {
		return nil, false
	}

	return &obj.hdr, true
}

// payload returns the payload bytes of the box at idx.
func (l *LargeObjectSpace) payload(idx uint32) []byte {
	obj := &l.objects[idx]

	return obj.data[:obj.hdr.Size]
}

// addrOf returns the logical heap address of the box at idx.
func (l *LargeObjectSpace) addrOf(idx uint32) uint64 { return l.objects[idx].addr }

// Used returns the bytes held by live boxes.
func (l *LargeObjectSpace) Used() uint64 { return l.totalBytes }

// Count returns the number of live boxes.
func (l *LargeObjectSpace) Count() int { return l.count }

// releaseAll returns every live box to the backing allocator. Only used on
// collector shutdown.
func (l *LargeObjectSpace) releaseAll() {
	for i := range l.objects {
		if l.objects[i].live {
			l.freeSlot(uint32(i))
		}
	}
}
