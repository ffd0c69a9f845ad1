package gc

// survivorBuf is one half of the survivor pair: a bump buffer plus its
// header arena, stamped with the epoch its handles were issued under.
type survivorBuf struct {
	buf     []byte
	bump    int
	headers []Header
	epoch   uint32
}

func (b *survivorBuf) reset(epoch uint32) {
	b.bump = 0
	b.headers = b.headers[:0]
	b.epoch = epoch
}

// SurvivorSpace holds objects that outlived one nursery collection but
// have not reached promotion age. It is a pair of equally sized buffers: a
// copying pass evacuates live objects into "to", then the buffers flip.
type SurvivorSpace struct {
	from *survivorBuf
	to   *survivorBuf
}

// newSurvivorSpace creates the buffer pair, each of size bytes.
func newSurvivorSpace(size int, fromEpoch, toEpoch uint32) *SurvivorSpace {
	return &SurvivorSpace{
		from: &survivorBuf{buf: make([]byte, size), epoch: fromEpoch},
		to:   &survivorBuf{buf: make([]byte, size), epoch: toEpoch},
	}
}

// CopyObject evacuates one live object into the "to" buffer. An already
// forwarded header yields the existing target, never a second copy, so
// object identity is preserved within one collection pass. A full "to"
// buffer is reported as failure; the caller promotes the object to the
// old generation instead.
func (s *SurvivorSpace) CopyObject(src *Header, payload []byte) (Ref, bool) {
	if src.Forwarded {
		return src.ForwardTo, true
	}

	aligned := alignUp(int(src.Size), allocAlign)
	if s.to.bump+aligned > len(s.to.buf) {
		return Ref{}, false
	}

	off := s.to.bump
	s.to.bump += aligned
	copy(s.to.buf[off:off+int(src.Size)], payload)

	dup := *src
	dup.Gen = GenSurvivor
	dup.Mark = MarkWhite
	dup.Forwarded = false
	dup.ForwardTo = Ref{}
	dup.payloadOff = uint32(off)
	dup.bumpAge()

	s.to.headers = append(s.to.headers, dup)

	ref := Ref{space: SpaceSurvivor, index: uint32(len(s.to.headers) - 1), epoch: s.to.epoch}
	src.Forwarded = true
	src.ForwardTo = ref

	return ref, true
}

// header resolves a handle against either buffer by epoch. During a
// collection both sides hold live headers; after a flip only handles
// stamped with a current epoch resolve.
func (s *SurvivorSpace) header(r Ref) (*Header, bool) {
	if r.space != SpaceSurvivor {
		return nil, false
	}

	for _, b := range [2]*survivorBuf{s.from, s.to} {
		if r.epoch == b.epoch && int(r.index) < len(b.headers) {
			return &b.headers[r.index], true
		}
	}

	return nil, false
}

// payload returns the payload bytes of a header known to live in the
// buffer stamped with the given epoch.
func (s *SurvivorSpace) payload(h *Header, epoch uint32) []byte {
	if epoch == s.from.epoch {
		return s.from.buf[h.payloadOff : h.payloadOff+h.Size]
	}

	return s.to.buf[h.payloadOff : h.payloadOff+h.Size]
}

// Flip swaps the buffer roles after an evacuation pass. The emptied side
// becomes the next "to" buffer under a fresh epoch; its object tracking is
// discarded and rebuilt on the next pass.
func (s *SurvivorSpace) Flip(toEpoch uint32) {
	s.from, s.to = s.to, s.from
	s.to.reset(toEpoch)
}

// Used returns the bytes held across both buffers.
func (s *SurvivorSpace) Used() int { return s.from.bump + s.to.bump }

// Capacity returns the combined size of both buffers.
func (s *SurvivorSpace) Capacity() int { return len(s.from.buf) + len(s.to.buf) }
