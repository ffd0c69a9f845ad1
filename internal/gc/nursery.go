package gc

// Nursery is the bump-pointer region new objects are born into. Allocation
// advances a single cursor; there is no per-object bookkeeping beyond the
// header arena, and the whole region is rewound after each minor
// collection.
type Nursery struct {
	buf        []byte
	bump       int
	headers    []Header
	epoch      uint32
	allocCount uint64 // allocations since the last reset
}

// newNursery creates a nursery over a fixed buffer.
func newNursery(size int, epoch uint32) *Nursery {
	return &Nursery{
		buf:     make([]byte, size),
		headers: make([]Header, 0, 64),
		epoch:   epoch,
	}
}

// Alloc carves size payload bytes off the bump cursor. Exhaustion is not
// an error: the false return tells the orchestrator to collect.
func (n *Nursery) Alloc(size int, kind PayloadKind) (Ref, bool) {
	aligned := alignUp(size, allocAlign)
	if n.bump+aligned > len(n.buf) {
		return Ref{}, false
	}

	off := n.bump
	n.bump += aligned
	n.allocCount++

	n.headers = append(n.headers, Header{
		Size:       uint32(size),
		Gen:        GenNursery,
		Kind:       kind,
		payloadOff: uint32(off),
	})

	return Ref{space: SpaceNursery, index: uint32(len(n.headers) - 1), epoch: n.epoch}, true
}

// header resolves a slot index against the current epoch.
func (n *Nursery) header(r Ref) (*Header, bool) {
	if r.space != SpaceNursery || r.epoch != n.epoch || int(r.index) >= len(n.headers) {
		return nil, false
	}

	return &n.headers[r.index], true
}

// payload returns the payload bytes of a header in this nursery.
func (n *Nursery) payload(h *Header) []byte {
	return n.buf[h.payloadOff : h.payloadOff+h.Size]
}

// Used returns the bytes consumed since the last reset.
func (n *Nursery) Used() int { return n.bump }

// Capacity returns the nursery buffer size.
func (n *Nursery) Capacity() int { return len(n.buf) }

// AllocationCount returns the allocations since the last reset.
func (n *Nursery) AllocationCount() uint64 { return n.allocCount }

// NeedsCollection reports whether utilization has reached the threshold.
func (n *Nursery) NeedsCollection(threshold float64) bool {
	if len(n.buf) == 0 {
		return false
	}

	return float64(n.bump)/float64(len(n.buf)) >= threshold
}

// Reset rewinds the bump cursor and empties the header arena. Payload
// bytes are left stale; nothing can reach them once the cursor moves back
// and the epoch advances.
func (n *Nursery) Reset(epoch uint32) {
	n.bump = 0
	n.allocCount = 0
	n.headers = n.headers[:0]
	n.epoch = epoch
}
