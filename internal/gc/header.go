// Package gc implements the generational garbage collector of the Tephra
// runtime: a bump-allocated nursery, a copying survivor space, a
// segregated-free-list old generation, a large-object space, and a
// card-table write barrier tracking old-to-young references.
//
// Managed objects are addressed by handle (Ref), not by raw pointer: a Ref
// names a slot in the arena of one heap space, qualified by an epoch
// counter so that a handle held across a collection resolves to "moved"
// or "reclaimed" instead of to recycled memory.
package gc

import "math"

// Generation identifies the heap space an object currently belongs to.
// Transitions are monotonic: nursery -> survivor -> old. Large objects
// never change generation.
type Generation uint8

const (
	GenNursery Generation = iota
	GenSurvivor
	GenOld
	GenLarge
)

// String returns the generation name.
func (g Generation) String() string {
	switch g {
	case GenNursery:
		return "nursery"
	case GenSurvivor:
		return "survivor"
	case GenOld:
		return "old"
	case GenLarge:
		return "large"
	default:
		return "unknown"
	}
}

// Mark is the tri-color mark state used during collection.
type Mark uint8

const (
	MarkWhite Mark = iota // Not yet reached
	MarkGray              // Reached, children pending
	MarkBlack             // Reached, children scanned
)

// String returns the mark color name.
func (m Mark) String() string {
	switch m {
	case MarkWhite:
		return "white"
	case MarkGray:
		return "gray"
	case MarkBlack:
		return "black"
	default:
		return "unknown"
	}
}

// PayloadKind is the closed set of managed payload variants. Reclamation
// behavior is resolved per kind through the collector's finalizer table,
// never through a per-object function pointer.
type PayloadKind uint8

const (
	KindScalar PayloadKind = iota
	KindString
	KindArray
	KindObject
	KindResource

	kindCount
)

// String returns the payload kind name.
func (k PayloadKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// FinalizerFunc is invoked with an object's payload bytes when the object
// is reclaimed. A nil entry in the table means cleanup is skipped for that
// kind.
type FinalizerFunc func(payload []byte)

// FinalizerTable maps each payload kind to its drop behavior.
type FinalizerTable [kindCount]FinalizerFunc

// maxAge is the cap on an object's recorded age.
const maxAge = ^uint8(0)

// maxAllocSize is the largest payload a Header can describe. Requests
// above it are rejected rather than silently truncated.
const maxAllocSize = math.MaxUint32

// allocAlign is the alignment every payload allocation is rounded to.
const allocAlign = 8

// Space identifies which arena a Ref resolves against.
type Space uint8

const (
	SpaceNone Space = iota
	SpaceNursery
	SpaceSurvivor
	SpaceOld
	SpaceLarge
)

// Ref is a handle to a managed object: an arena slot plus the epoch the
// slot was valid in. The zero Ref is the nil handle.
type Ref struct {
	space Space
	index uint32
	epoch uint32
}

// IsNil reports whether the handle is the nil handle.
func (r Ref) IsNil() bool { return r.space == SpaceNone }

// HeapSpace returns the arena the handle points into.
func (r Ref) HeapSpace() Space { return r.space }

// Header holds the collector's per-object metadata. Headers live in side
// arenas parallel to the payload buffers; Size counts payload bytes only.
// Once Forwarded is set the slot's payload is dead and ForwardTo names the
// authoritative copy.
type Header struct {
	Size      uint32
	Age       uint8
	Mark      Mark
	Gen       Generation
	Kind      PayloadKind
	Forwarded bool
	ForwardTo Ref

	refs       []Ref  // child handles, maintained through WriteRef
	payloadOff uint32 // payload offset within the owning buffer
}

// Refs returns the object's child handles. The returned slice is owned by
// the collector and must not be retained across a collection.
func (h *Header) Refs() []Ref { return h.refs }

// bumpAge increments the age, saturating at the cap.
func (h *Header) bumpAge() {
	if h.Age < maxAge {
		h.Age++
	}
}

// alignUp aligns a size up to the nearest multiple of alignment.
func alignUp(size, alignment int) int {
	return (size + alignment - 1) &^ (alignment - 1)
}
