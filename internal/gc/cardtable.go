package gc

import "math/bits"

// cardSize is the granularity of the write barrier's dirty tracking: one
// bit of the table covers one 512-byte card of the old/large logical
// address range.
const (
	cardSize  = 512
	cardShift = 9
)

// CardTable is the bitmap consulted during minor-collection root scanning
// so the collector never touches clean old-generation memory. It is sized
// once over a fixed base/span pair and cleared, not reallocated, after
// every minor collection.
type CardTable struct {
	base uint64
	span uint64
	bits []byte

	markCount uint64 // first-time clean->dirty transitions, cumulative
}

// newCardTable creates a table covering span bytes starting at base.
func newCardTable(base, span uint64) *CardTable {
	cards := (span + cardSize - 1) >> cardShift

	return &CardTable{
		base: base,
		span: span,
		bits: make([]byte, (cards+7)/8),
	}
}

// cardIndex maps a logical address to its card, or false when the address
// falls outside the covered range.
func (ct *CardTable) cardIndex(addr uint64) (uint64, bool) {
	if addr < ct.base || addr >= ct.base+ct.span {
		return 0, false
	}

	return (addr - ct.base) >> cardShift, true
}

// MarkDirty sets the card covering addr. Reports whether this was a
// first-time transition for the card.
func (ct *CardTable) MarkDirty(addr uint64) bool {
	card, ok := ct.cardIndex(addr)
	if !ok {
		return false
	}

	mask := byte(1) << (card & 7)
	if ct.bits[card>>3]&mask != 0 {
		return false
	}

	ct.bits[card>>3] |= mask
	ct.markCount++

	return true
}

// IsDirty reports whether the card covering addr is set.
func (ct *CardTable) IsDirty(addr uint64) bool {
	card, ok := ct.cardIndex(addr)
	if !ok {
		return false
	}

	return ct.bits[card>>3]&(byte(1)<<(card&7)) != 0
}

// ClearCard clears the card covering addr.
func (ct *CardTable) ClearCard(addr uint64) {
	card, ok := ct.cardIndex(addr)
	if !ok {
		return
	}

	ct.bits[card>>3] &^= byte(1) << (card & 7)
}

// ClearAll clears every card. The bitmap is reused, not reallocated.
func (ct *CardTable) ClearAll() {
	clear(ct.bits)
}

// CardCount returns the number of cards the table covers.
func (ct *CardTable) CardCount() int {
	return int((ct.span + cardSize - 1) >> cardShift)
}

// DirtyCardCount returns the number of currently dirty cards.
func (ct *CardTable) DirtyCardCount() int {
	count := 0
	for _, b := range ct.bits {
		count += bits.OnesCount8(b)
	}

	return count
}

// MarkCount returns the cumulative number of clean-to-dirty transitions.
func (ct *CardTable) MarkCount() uint64 { return ct.markCount }

// DirtyRanges returns a lazy iterator over the address ranges of the dirty
// cards, in ascending order. The iterator is finite and non-restartable;
// it skips whole zero bytes of the bitmap so sparse dirty sets cost little.
func (ct *CardTable) DirtyRanges() *DirtyIter {
	return &DirtyIter{ct: ct}
}

// DirtyIter walks the dirty cards of one CardTable snapshot.
type DirtyIter struct {
	ct      *CardTable
	byteIdx int
	pending byte // remaining set bits of the current byte
}

// Next yields the next dirty card as a [start, end) logical address range.
// Each range is exactly one card, truncated at the covered region's end.
func (it *DirtyIter) Next() (start, end uint64, ok bool) {
	for {
		if it.pending == 0 {
			// Skip clean bytes wholesale.
			for it.byteIdx < len(it.ct.bits) && it.ct.bits[it.byteIdx] == 0 {
				it.byteIdx++
			}

			if it.byteIdx >= len(it.ct.bits) {
				return 0, 0, false
			}

			it.pending = it.ct.bits[it.byteIdx]
			it.byteIdx++
		}

		card := uint64(it.byteIdx-1)*8 + uint64(bits.TrailingZeros8(it.pending))
		it.pending &= it.pending - 1
		start = it.ct.base + card*cardSize
		if start >= it.ct.base+it.ct.span {
			continue // padding bits past the last card
		}

		end = start + cardSize
		if limit := it.ct.base + it.ct.span; end > limit {
			end = limit
		}

		return start, end, true
	}
}
