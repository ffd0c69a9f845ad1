package gc

import (
	"time"

	"github.com/tephra-lang/tephra/internal/allocator"
)

// GenerationalGC owns every heap region, the root set, the remembered set
// and the card table, and drives the collection cycles.
//
// The design is strictly stop-the-world and single-mutator: Alloc may run
// a full minor collection inline before it returns, and the collector is
// not safe for concurrent use from multiple mutator threads without
// external synchronization. The forwarding protocol assumes no concurrent
// reader, so no internal locking is provided.
//
// After any minor collection every handle the mutator held into the
// nursery or the previous survivor "from" buffer is stale: it must be
// re-resolved through Forwarded (if the object moved) or treated as
// reclaimed (if it was unreached and destroyed). The collector rewrites
// only its own root list's contents.
type GenerationalGC struct {
	config  Config
	backing allocator.ChunkAllocator

	nursery  *Nursery
	survivor *SurvivorSpace
	oldGen   *OldGeneration
	large    *LargeObjectSpace
	cards    *CardTable
	remset   *rememberedSet

	roots   []Ref
	rootIdx map[Ref]int

	// forward is the forwarding log of the most recent collection pass,
	// consulted by the mutator to re-resolve handles held across a pause.
	forward map[Ref]Ref

	stats  Stats
	pauses pauseTracker

	epochCounter uint32
}

// New creates a collector on top of the given backing allocator.
func New(backing allocator.ChunkAllocator, opts ...Option) (*GenerationalGC, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	g := &GenerationalGC{
		config:  config,
		backing: backing,
		remset:  newRememberedSet(),
		rootIdx: make(map[Ref]int),
		forward: make(map[Ref]Ref),
	}

	g.nursery = newNursery(config.NurserySize, g.nextEpoch())
	g.survivor = newSurvivorSpace(config.SurvivorSize, g.nextEpoch(), g.nextEpoch())
	g.cards = newCardTable(cardBase, config.CardSpan)

	// The logical address range is shared: the old generation owns the
	// bottom half, large-object boxes the top half. Each space enforces
	// its own boundary so no two objects can ever alias a card.
	half := cardBase + config.CardSpan/2
	g.oldGen = newOldGeneration(backing, cardBase, half)
	g.large = newLargeObjectSpace(backing, half, cardBase+config.CardSpan)

	return g, nil
}

func (g *GenerationalGC) nextEpoch() uint32 {
	g.epochCounter++

	return g.epochCounter
}

// Alloc allocates a managed object of size payload bytes.
//
// Requests at or above the large-object threshold go to the large-object
// space. Everything else is born in the nursery; when the nursery is full
// a minor collection runs inline and the allocation is retried. If the
// retry still fails the object is allocated straight into the old
// generation, skipping nursery residency and the aging path entirely.
func (g *GenerationalGC) Alloc(size int, kind PayloadKind) (Ref, error) {
	if size <= 0 {
		return Ref{}, &CollectorError{
			Message: "allocation size must be positive",
			Code:    ErrCodeInvalidSize,
			Size:    size,
		}
	}

	if uint64(size) > maxAllocSize {
		return Ref{}, &CollectorError{
			Message: "allocation size exceeds the maximum object size",
			Code:    ErrCodeInvalidSize,
			Size:    size,
		}
	}

	if size >= g.config.LargeObjectThreshold {
		ref, err := g.large.Alloc(size, kind)
		if err != nil {
			return Ref{}, err
		}

		g.stats.BytesAllocated += uint64(size)

		return ref, nil
	}

	if ref, ok := g.nursery.Alloc(size, kind); ok {
		g.stats.BytesAllocated += uint64(size)

		return ref, nil
	}

	if err := g.CollectMinor(); err != nil {
		return Ref{}, err
	}

	if ref, ok := g.nursery.Alloc(size, kind); ok {
		g.stats.BytesAllocated += uint64(size)

		return ref, nil
	}

	// Tenure at birth: the nursery is still full after collecting.
	ref, err := g.oldGen.Alloc(size, kind)
	if err != nil {
		return Ref{}, err
	}

	g.stats.BytesAllocated += uint64(size)

	return ref, nil
}

// Resolve returns the header a handle names, or false when the handle is
// stale (its object moved or was reclaimed). The returned pointer is
// invalidated by the next allocation or collection and must not be held
// across either.
func (g *GenerationalGC) Resolve(r Ref) (*Header, bool) {
	switch r.space {
	case SpaceNursery:
		return g.nursery.header(r)
	case SpaceSurvivor:
		return g.survivor.header(r)
	case SpaceOld:
		return g.oldGen.header(r)
	case SpaceLarge:
		return g.large.header(r)
	default:
		return nil, false
	}
}

// Payload returns the payload bytes of a live object. Same lifetime rule
// as Resolve.
func (g *GenerationalGC) Payload(r Ref) ([]byte, bool) {
	h, ok := g.Resolve(r)
	if !ok {
		return nil, false
	}

	switch r.space {
	case SpaceNursery:
		return g.nursery.payload(h), true
	case SpaceSurvivor:
		return g.survivor.payload(h, r.epoch), true
	case SpaceOld:
		return g.oldGen.payload(r.index), true
	case SpaceLarge:
		return g.large.payload(r.index), true
	default:
		return nil, false
	}
}

// Forwarded re-resolves a handle that went stale in the most recent
// collection. The second return is false when the object was reclaimed
// rather than moved.
func (g *GenerationalGC) Forwarded(r Ref) (Ref, bool) {
	nr, ok := g.forward[r]

	return nr, ok
}

// WriteBarrier must be called on every pointer store the mutator performs.
// A card is dirtied and the pair remembered only when the source is old or
// large and the target is young: same-generation and young-to-old stores
// cannot hide a young object from a minor collection, so tracking them
// would only inflate the dirty set.
func (g *GenerationalGC) WriteBarrier(source, target Ref) {
	g.stats.WriteBarriers++

	hs, ok := g.Resolve(source)
	if !ok {
		return
	}

	ht, ok := g.Resolve(target)
	if !ok {
		return
	}

	if hs.Gen != GenOld && hs.Gen != GenLarge {
		return
	}

	if ht.Gen != GenNursery && ht.Gen != GenSurvivor {
		return
	}

	g.remset.add(source, target)

	if addr, ok := g.addrOfRef(source); ok {
		g.cards.MarkDirty(addr)
	}
}

// WriteRef stores a child handle into an object's reference slot and runs
// the write barrier for the store.
func (g *GenerationalGC) WriteRef(source Ref, slot int, target Ref) error {
	h, ok := g.Resolve(source)
	if !ok {
		return &CollectorError{Message: "stale source handle", Code: ErrCodeInvalidRef}
	}

	if slot < 0 {
		return &CollectorError{Message: "negative reference slot", Code: ErrCodeInvalidRef}
	}

	for len(h.refs) <= slot {
		h.refs = append(h.refs, Ref{})
	}

	h.refs[slot] = target
	g.WriteBarrier(source, target)

	return nil
}

// AddRoot registers an externally reachable object. The collector never
// infers roots: the interpreter registers every stack and global slot it
// wants kept alive.
func (g *GenerationalGC) AddRoot(r Ref) {
	if _, ok := g.rootIdx[r]; ok {
		return
	}

	g.rootIdx[r] = len(g.roots)
	g.roots = append(g.roots, r)
}

// RemoveRoot unregisters a root.
func (g *GenerationalGC) RemoveRoot(r Ref) {
	i, ok := g.rootIdx[r]
	if !ok {
		return
	}

	last := len(g.roots) - 1
	g.roots[i] = g.roots[last]
	g.rootIdx[g.roots[i]] = i
	g.roots = g.roots[:last]
	delete(g.rootIdx, r)
}

// Roots returns a copy of the current root list.
func (g *GenerationalGC) Roots() []Ref {
	out := make([]Ref, len(g.roots))
	copy(out, g.roots)

	return out
}

// ShouldCollect reports whether either utilization trigger has fired.
func (g *GenerationalGC) ShouldCollect() bool {
	if g.nursery.NeedsCollection(g.config.NurseryGCThreshold) {
		return true
	}

	return g.oldGen.Utilization() >= g.config.OldGenGCThreshold
}

// ApplyTuning swaps in the dynamically adjustable thresholds. Region sizes
// are fixed at construction and are not affected.
func (g *GenerationalGC) ApplyTuning(t Tuning) {
	g.config.PromotionAge = t.PromotionAge
	g.config.NurseryGCThreshold = t.NurseryGCThreshold
	g.config.OldGenGCThreshold = t.OldGenGCThreshold
}

// CurrentTuning returns the active dynamic thresholds.
func (g *GenerationalGC) CurrentTuning() Tuning {
	return Tuning{
		PromotionAge:       g.config.PromotionAge,
		NurseryGCThreshold: g.config.NurseryGCThreshold,
		OldGenGCThreshold:  g.config.OldGenGCThreshold,
	}
}

// Config returns a copy of the active configuration.
func (g *GenerationalGC) Config() Config { return g.config }

// addrOfRef returns the logical heap address of an old/large object.
func (g *GenerationalGC) addrOfRef(r Ref) (uint64, bool) {
	if _, ok := g.Resolve(r); !ok {
		return 0, false
	}

	switch r.space {
	case SpaceOld:
		return g.oldGen.addrOf(r.index), true
	case SpaceLarge:
		return g.large.addrOf(r.index), true
	default:
		return 0, false
	}
}

// finalize dispatches the per-kind drop behavior for a reclaimed object.
// Kinds without an installed finalizer are skipped.
func (g *GenerationalGC) finalize(h *Header, payload []byte) {
	if fn := g.config.Finalizers[h.Kind]; fn != nil {
		fn(payload)
	}
}

// CollectMinor runs one stop-the-world minor collection:
//
//  1. Young marks are reset to white, then every root is marked black.
//     The mark is shallow: children are not traced. Objects reachable only
//     through a live object's fields rely on the remembered set to survive.
//  2. Every remembered-set entry is marked black, source and target both.
//  3. Live nursery and survivor objects are evacuated: promoted to the
//     old generation at promotion age or when the survivor "to" buffer is
//     full, copied into the survivor space otherwise. Unreached objects
//     are finalized and counted as freed.
//  4. The nursery is reset, the survivor buffers flip, and the remembered
//     set and card table are cleared.
func (g *GenerationalGC) CollectMinor() error {
	start := time.Now()

	g.forward = make(map[Ref]Ref)
	g.whitenYoung()

	for _, r := range g.roots {
		if h, ok := g.Resolve(r); ok {
			h.Mark = MarkBlack
		}
	}

	g.markRemembered()

	freed, err := g.evacuateYoung()
	if err != nil {
		return err
	}

	g.fixupReferences()

	g.nursery.Reset(g.nextEpoch())
	g.survivor.Flip(g.nextEpoch())
	g.remset.clear()
	g.cards.ClearAll()

	g.stats.MinorCollections++
	g.stats.BytesFreed += freed
	g.pauses.record(time.Since(start))

	return nil
}

// whitenYoung clears marks left on young objects by an earlier major
// trace, so each minor collection decides liveness from this pause's
// roots and remembered set only.
func (g *GenerationalGC) whitenYoung() {
	for i := range g.nursery.headers {
		g.nursery.headers[i].Mark = MarkWhite
	}

	from := g.survivor.from
	for i := range from.headers {
		from.headers[i].Mark = MarkWhite
	}
}

// markRemembered blackens every remembered-set entry, source and target
// both. Marking is unconditional: the pair log alone decides survival, so
// the card bitmap's state can never cost a live young object. Cards remain
// a scan accelerator for diagnostics, not a liveness input.
func (g *GenerationalGC) markRemembered() {
	for _, e := range g.remset.entries {
		if h, ok := g.Resolve(e.source); ok {
			h.Mark = MarkBlack
		}

		if h, ok := g.Resolve(e.target); ok {
			h.Mark = MarkBlack
		}
	}
}

// evacuateYoung walks the nursery and the active survivor buffer, copying
// marked objects forward and finalizing the rest. Returns bytes freed.
func (g *GenerationalGC) evacuateYoung() (uint64, error) {
	var freed uint64

	evacuate := func(h *Header, payload []byte, self Ref) error {
		if h.Forwarded {
			return nil
		}

		if h.Mark != MarkBlack {
			g.finalize(h, payload)
			freed += uint64(h.Size)

			return nil
		}

		if h.Age >= g.config.PromotionAge {
			return g.promote(h, payload, self)
		}

		ref, ok := g.survivor.CopyObject(h, payload)
		if !ok {
			// The "to" buffer is full; tenure the object instead.
			return g.promote(h, payload, self)
		}

		g.forward[self] = ref
		g.stats.PromotedToSurvivor++

		return nil
	}

	for i := range g.nursery.headers {
		h := &g.nursery.headers[i]
		self := Ref{space: SpaceNursery, index: uint32(i), epoch: g.nursery.epoch}

		if err := evacuate(h, g.nursery.payload(h), self); err != nil {
			return freed, err
		}
	}

	from := g.survivor.from
	for i := range from.headers {
		h := &from.headers[i]
		self := Ref{space: SpaceSurvivor, index: uint32(i), epoch: from.epoch}
		payload := from.buf[h.payloadOff : h.payloadOff+h.Size]

		if err := evacuate(h, payload, self); err != nil {
			return freed, err
		}
	}

	return freed, nil
}

// promote moves one live young object into the old generation.
func (g *GenerationalGC) promote(h *Header, payload []byte, self Ref) error {
	ref, err := g.oldGen.Alloc(int(h.Size), h.Kind)
	if err != nil {
		return err
	}

	copy(g.oldGen.payload(ref.index), payload)

	promoted := &g.oldGen.blocks[ref.index].hdr
	promoted.Age = h.Age
	promoted.bumpAge()
	promoted.Mark = MarkWhite
	promoted.refs = h.refs

	h.Forwarded = true
	h.ForwardTo = ref
	g.forward[self] = ref
	g.stats.PromotedToOld++

	return nil
}

// fixupReferences remaps child handles and the root list through the
// forwarding log, so every surviving object's fields name the moved
// copies. This is the handle-model equivalent of chasing forwarding
// pointers; it changes no liveness decision.
func (g *GenerationalGC) fixupReferences() {
	remap := func(refs []Ref) {
		for i, r := range refs {
			if nr, ok := g.forward[r]; ok {
				refs[i] = nr
			}
		}
	}

	for i := range g.survivor.to.headers {
		remap(g.survivor.to.headers[i].refs)
	}

	for i := range g.oldGen.blocks {
		if !g.oldGen.blocks[i].free {
			remap(g.oldGen.blocks[i].hdr.refs)
		}
	}

	for i := range g.large.objects {
		if g.large.objects[i].live {
			remap(g.large.objects[i].hdr.refs)
		}
	}

	for i, r := range g.roots {
		if nr, ok := g.forward[r]; ok {
			g.roots[i] = nr
			delete(g.rootIdx, r)
			g.rootIdx[nr] = i
		}
	}
}

// CollectMajor runs a minor collection, then a full mark-sweep over the
// old generation and the large-object space: every mark is reset to
// white, reachability is deep-traced from the roots (children followed
// recursively, unlike the minor pass), unreached objects are finalized
// and returned to their free lists, and a fragmentation estimate is
// taken.
func (g *GenerationalGC) CollectMajor() error {
	if err := g.CollectMinor(); err != nil {
		return err
	}

	start := time.Now()

	for i := range g.oldGen.blocks {
		if !g.oldGen.blocks[i].free {
			g.oldGen.blocks[i].hdr.Mark = MarkWhite
		}
	}

	g.large.MarkAll()

	g.markDeep()

	var freed uint64

	for i := range g.oldGen.blocks {
		b := &g.oldGen.blocks[i]
		if b.free {
			continue
		}

		if b.hdr.Mark == MarkWhite {
			g.finalize(&b.hdr, g.oldGen.payload(uint32(i)))
			freed += uint64(b.size)
			g.oldGen.Free(uint32(i))

			continue
		}

		b.hdr.Mark = MarkWhite
	}

	freed += g.large.Sweep(g.finalize)

	g.oldGen.Coalesce()

	g.stats.MajorCollections++
	g.stats.BytesFreed += freed
	g.pauses.record(time.Since(start))

	return nil
}

// markDeep runs the tri-color trace from the roots, following children
// recursively with an explicit work stack.
func (g *GenerationalGC) markDeep() {
	stack := make([]Ref, len(g.roots))
	copy(stack, g.roots)

	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		h, ok := g.Resolve(r)
		if !ok || h.Mark == MarkBlack {
			continue
		}

		h.Mark = MarkGray
		stack = append(stack, h.refs...)
		h.Mark = MarkBlack
	}
}

// CollectFull is currently identical to CollectMajor: this design has no
// additional old-generation compaction step.
func (g *GenerationalGC) CollectFull() error {
	if err := g.CollectMajor(); err != nil {
		return err
	}

	g.stats.FullCollections++

	return nil
}

// Stats returns the cumulative statistics snapshot.
func (g *GenerationalGC) Stats() Stats {
	s := g.stats
	s.LastPauseNs = uint64(g.pauses.last.Nanoseconds())
	s.MaxPauseNs = uint64(g.pauses.max.Nanoseconds())
	s.AvgPauseNs = uint64(g.pauses.avg().Nanoseconds())

	return s
}

// MemoryUsage returns per-region used/total bytes.
func (g *GenerationalGC) MemoryUsage() MemoryUsage {
	return MemoryUsage{
		Nursery: RegionUsage{
			Used:  uint64(g.nursery.Used()),
			Total: uint64(g.nursery.Capacity()),
		},
		Survivor: RegionUsage{
			Used:  uint64(g.survivor.Used()),
			Total: uint64(g.survivor.Capacity()),
		},
		OldGen: RegionUsage{
			Used:  g.oldGen.Used(),
			Total: g.oldGen.TotalSize(),
		},
		LargeObject: RegionUsage{
			Used:  g.large.Used(),
			Total: g.large.Used(),
		},
	}
}

// FragmentationInfo returns the estimate taken by the last Coalesce pass.
func (g *GenerationalGC) FragmentationInfo() FragmentationInfo {
	return g.oldGen.lastFragmentation
}

// Shutdown returns every backing chunk to the allocator. The collector
// must not be used afterwards.
func (g *GenerationalGC) Shutdown() {
	g.large.releaseAll()
	g.oldGen.releaseChunks()
}
