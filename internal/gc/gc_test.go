package gc

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/tephra-lang/tephra/internal/allocator"
)

func newTestGC(t *testing.T, opts ...Option) *GenerationalGC {
	t.Helper()

	base := []Option{
		WithNurserySize(64 << 10),
		WithSurvivorSize(16 << 10),
	}

	g, err := New(allocator.NewSystemAllocator(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Cleanup(g.Shutdown)

	return g
}

// refreshRef re-resolves a handle through the forwarding log of the most
// recent collection, the way the interpreter must after every pause.
func refreshRef(g *GenerationalGC, r Ref) Ref {
	if nr, ok := g.Forwarded(r); ok {
		return nr
	}

	return r
}

// makeOld allocates a rooted object and runs minor collections until it is
// promoted to the old generation.
func makeOld(t *testing.T, g *GenerationalGC, size int, kind PayloadKind) Ref {
	t.Helper()

	ref, err := g.Alloc(size, kind)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	g.AddRoot(ref)

	for i := 0; i < int(g.config.PromotionAge)+2; i++ {
		if err := g.CollectMinor(); err != nil {
			t.Fatalf("CollectMinor failed: %v", err)
		}

		ref = refreshRef(g, ref)

		h, ok := g.Resolve(ref)
		if !ok {
			t.Fatal("rooted object lost during promotion")
		}

		if h.Gen == GenOld {
			return ref
		}
	}

	t.Fatal("object never promoted to old generation")

	return Ref{}
}

// TestAllocRouting tests size-based routing between regions.
func TestAllocRouting(t *testing.T) {
	g := newTestGC(t)

	t.Run("SmallToNursery", func(t *testing.T) {
		ref, err := g.Alloc(64, KindScalar)
		if err != nil {
			t.Fatalf("Alloc failed: %v", err)
		}

		h, ok := g.Resolve(ref)
		if !ok {
			t.Fatal("fresh handle did not resolve")
		}

		if h.Gen != GenNursery {
			t.Errorf("fresh small object should be generation nursery, got %v", h.Gen)
		}
	})

	t.Run("LargeToLargeSpace", func(t *testing.T) {
		ref, err := g.Alloc(DefaultLargeObjectThreshold, KindString)
		if err != nil {
			t.Fatalf("Alloc failed: %v", err)
		}

		h, ok := g.Resolve(ref)
		if !ok {
			t.Fatal("fresh handle did not resolve")
		}

		if h.Gen != GenLarge {
			t.Errorf("threshold-sized object should be generation large, got %v", h.Gen)
		}
	})

	t.Run("InvalidSize", func(t *testing.T) {
		for _, size := range []int{0, -5} {
			_, err := g.Alloc(size, KindScalar)

			var cerr *CollectorError
			if !errors.As(err, &cerr) || cerr.Code != ErrCodeInvalidSize {
				t.Errorf("Alloc(%d) should fail with InvalidSize, got %v", size, err)
			}
		}
	})

	t.Run("Oversized", func(t *testing.T) {
		// Beyond what a header can describe; must be rejected, never
		// truncated into a smaller allocation
		size := int(uint64(math.MaxUint32) + 1)

		_, err := g.Alloc(size, KindString)

		var cerr *CollectorError
		if !errors.As(err, &cerr) || cerr.Code != ErrCodeInvalidSize {
			t.Errorf("oversized Alloc should fail with InvalidSize, got %v", err)
		}
	})
}

// TestCollectMinor tests the core survival and reclamation properties of a
// minor collection.
func TestCollectMinor(t *testing.T) {
	g := newTestGC(t)

	rooted, err := g.Alloc(128, KindArray)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	payload, _ := g.Payload(rooted)
	for i := range payload {
		payload[i] = byte(i)
	}

	want := bytes.Clone(payload)

	g.AddRoot(rooted)

	doomed, err := g.Alloc(64, KindScalar)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	t.Run("NurseryEmpty", func(t *testing.T) {
		if g.nursery.Used() != 0 {
			t.Errorf("nursery used should be 0 after minor collection, got %d", g.nursery.Used())
		}
	})

	t.Run("SurvivorMoved", func(t *testing.T) {
		// The old handle is stale; the forwarding log re-resolves it
		if _, ok := g.Resolve(rooted); ok {
			t.Error("pre-collection handle should be stale")
		}

		moved, ok := g.Forwarded(rooted)
		if !ok {
			t.Fatal("rooted object should have a forwarding entry")
		}

		h, ok := g.Resolve(moved)
		if !ok {
			t.Fatal("forwarded handle did not resolve")
		}

		if h.Gen != GenSurvivor {
			t.Errorf("survivor of one collection should be generation survivor, got %v", h.Gen)
		}

		if h.Age != 1 {
			t.Errorf("age should be incremented by exactly 1, got %d", h.Age)
		}

		got, _ := g.Payload(moved)
		if !bytes.Equal(got, want) {
			t.Error("payload bytes not preserved across evacuation")
		}
	})

	t.Run("UnrootedReclaimed", func(t *testing.T) {
		if _, ok := g.Resolve(doomed); ok {
			t.Error("unrooted nursery object should be reclaimed")
		}

		if _, ok := g.Forwarded(doomed); ok {
			t.Error("reclaimed object must not have a forwarding entry")
		}
	})

	t.Run("RootListRewritten", func(t *testing.T) {
		roots := g.Roots()
		if len(roots) != 1 {
			t.Fatalf("expected 1 root, got %d", len(roots))
		}

		if _, ok := g.Resolve(roots[0]); !ok {
			t.Error("root list should name the moved copy")
		}
	})
}

// TestAgePromotion tests the promotion-age policy: one age step per
// survived collection, then tenure into the old generation.
func TestAgePromotion(t *testing.T) {
	g := newTestGC(t, WithPromotionAge(2))

	ref, err := g.Alloc(96, KindObject)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	g.AddRoot(ref)

	wantGens := []Generation{GenSurvivor, GenSurvivor, GenOld}
	for i, wantGen := range wantGens {
		if err := g.CollectMinor(); err != nil {
			t.Fatalf("CollectMinor %d failed: %v", i, err)
		}

		ref = refreshRef(g, ref)

		h, ok := g.Resolve(ref)
		if !ok {
			t.Fatalf("rooted object lost after collection %d", i)
		}

		if h.Gen != wantGen {
			t.Errorf("after collection %d: generation %v, want %v", i+1, h.Gen, wantGen)
		}
	}

	if g.Stats().PromotedToOld != 1 {
		t.Errorf("expected 1 promotion to old, got %d", g.Stats().PromotedToOld)
	}

	// Promotion is monotonic: further minors leave the object in old
	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	if h, ok := g.Resolve(ref); !ok || h.Gen != GenOld {
		t.Error("old-generation object must not move in a minor collection")
	}
}

// TestDestructorOnce tests that a reclaimed object's finalizer runs
// exactly once, during the collection that reclaims it.
func TestDestructorOnce(t *testing.T) {
	calls := 0
	g := newTestGC(t, WithFinalizer(KindResource, func(payload []byte) {
		calls++
	}))

	if _, err := g.Alloc(64, KindResource); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	// A kind without a finalizer is simply skipped
	if _, err := g.Alloc(64, KindScalar); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	if calls != 1 {
		t.Fatalf("finalizer should run exactly once at reclamation, ran %d times", calls)
	}

	// Later collections must not re-finalize
	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	if err := g.CollectMajor(); err != nil {
		t.Fatalf("CollectMajor failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("finalizer re-ran, total %d calls", calls)
	}
}

// TestDirectToOldFallback tests tenure-at-birth: when the nursery cannot
// hold the request even after a minor collection, the object goes straight
// to the old generation.
func TestDirectToOldFallback(t *testing.T) {
	g := newTestGC(t, WithNurserySize(128), WithSurvivorSize(128))

	// Below the large threshold but beyond the nursery's capacity
	ref, err := g.Alloc(512, KindArray)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	h, ok := g.Resolve(ref)
	if !ok {
		t.Fatal("fresh handle did not resolve")
	}

	if h.Gen != GenOld {
		t.Errorf("double nursery exhaustion should tenure at birth, got generation %v", h.Gen)
	}

	if h.Age != 0 {
		t.Errorf("tenured-at-birth object skips the aging path, age should be 0, got %d", h.Age)
	}

	if g.Stats().MinorCollections == 0 {
		t.Error("the failed nursery attempt should have triggered a minor collection")
	}
}

// TestWriteBarrierPolicy verifies dirty marking over all 16 generation
// pairs: a card is dirtied and the pair remembered iff the source is old
// or large and the target is nursery or survivor.
func TestWriteBarrierPolicy(t *testing.T) {
	g := newTestGC(t)

	oldRef := makeOld(t, g, 64, KindObject)

	survivorRef, err := g.Alloc(64, KindObject)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	g.AddRoot(survivorRef)

	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	oldRef = refreshRef(g, oldRef)
	survivorRef = refreshRef(g, survivorRef)

	nurseryRef, err := g.Alloc(64, KindObject)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	largeRef, err := g.Alloc(DefaultLargeObjectThreshold, KindObject)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	byGen := map[Generation]Ref{
		GenNursery:  nurseryRef,
		GenSurvivor: survivorRef,
		GenOld:      oldRef,
		GenLarge:    largeRef,
	}

	for gen, ref := range byGen {
		if h, ok := g.Resolve(ref); !ok || h.Gen != gen {
			t.Fatalf("fixture for generation %v is wrong", gen)
		}
	}

	gens := []Generation{GenNursery, GenSurvivor, GenOld, GenLarge}

	for _, srcGen := range gens {
		for _, dstGen := range gens {
			wantDirty := (srcGen == GenOld || srcGen == GenLarge) &&
				(dstGen == GenNursery || dstGen == GenSurvivor)

			remBefore := g.remset.len()
			barriersBefore := g.Stats().WriteBarriers

			g.WriteBarrier(byGen[srcGen], byGen[dstGen])

			if g.Stats().WriteBarriers != barriersBefore+1 {
				t.Errorf("%v->%v: barrier counter not incremented", srcGen, dstGen)
			}

			gotDirty := g.remset.len() == remBefore+1
			if gotDirty != wantDirty {
				t.Errorf("%v->%v: remembered=%v, want %v", srcGen, dstGen, gotDirty, wantDirty)
			}
		}
	}

	// The matching stores also dirtied the sources' cards
	if addr, ok := g.addrOfRef(byGen[GenOld]); !ok || !g.cards.IsDirty(addr) {
		t.Error("old-generation source's card should be dirty")
	}

	if addr, ok := g.addrOfRef(byGen[GenLarge]); !ok || !g.cards.IsDirty(addr) {
		t.Error("large-object source's card should be dirty")
	}
}

// TestRememberedSetKeepsYoungAlive tests that an unrooted young object
// referenced from a tenured one survives the minor collection through the
// remembered set.
func TestRememberedSetKeepsYoungAlive(t *testing.T) {
	g := newTestGC(t)

	parent := makeOld(t, g, 64, KindObject)

	child, err := g.Alloc(64, KindString)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	if err := g.WriteRef(parent, 0, child); err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}

	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	moved, ok := g.Forwarded(child)
	if !ok {
		t.Fatal("remembered child should survive the minor collection")
	}

	h, ok := g.Resolve(moved)
	if !ok || h.Gen != GenSurvivor {
		t.Error("remembered child should have been evacuated to the survivor space")
	}

	// The parent's reference slot was remapped to the moved copy
	ph, ok := g.Resolve(parent)
	if !ok {
		t.Fatal("rooted parent lost")
	}

	if ph.Refs()[0] != moved {
		t.Error("parent's child slot should name the moved copy")
	}
}

// TestRememberedSetIndependentOfCards tests that remembered pairs keep
// their targets alive on their own. The card bitmap is a diagnostic over a
// bounded logical range; its state, including a source card that was
// cleared or never dirtied, must not cost a live young object.
func TestRememberedSetIndependentOfCards(t *testing.T) {
	g := newTestGC(t)

	parent := makeOld(t, g, 64, KindObject)

	child, err := g.Alloc(64, KindString)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	if err := g.WriteRef(parent, 0, child); err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}

	g.cards.ClearAll()

	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	moved, ok := g.Forwarded(child)
	if !ok {
		t.Fatal("remembered child reclaimed because its source card was clean")
	}

	if _, ok := g.Resolve(moved); !ok {
		t.Fatal("moved child did not resolve")
	}
}

// TestMajorTraceDoesNotPinYoung tests that marks left on survivor objects
// by a major collection's deep trace do not carry into the next minor
// collection's liveness decision.
func TestMajorTraceDoesNotPinYoung(t *testing.T) {
	finalized := 0
	g := newTestGC(t, WithFinalizer(KindResource, func([]byte) {
		finalized++
	}))

	ref, err := g.Alloc(64, KindResource)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	g.AddRoot(ref)

	if err := g.CollectMajor(); err != nil {
		t.Fatalf("CollectMajor failed: %v", err)
	}

	ref = refreshRef(g, ref)
	g.RemoveRoot(ref)

	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	if _, ok := g.Forwarded(ref); ok {
		t.Error("unrooted survivor object should not outlive the next minor collection")
	}

	if finalized != 1 {
		t.Errorf("finalizer should run at the reclaiming collection, ran %d times", finalized)
	}
}

// TestShallowMinorMarking pins down the minor collection's shallow-mark
// contract: root marking does NOT trace children, so a young object
// reachable only through a young parent's fields — with no remembered-set
// entry, since young-to-young stores are not barrier-tracked — is
// reclaimed even though a full trace would have kept it. This asymmetry
// with the major collection's deep trace is deliberate, documented
// behavior.
func TestShallowMinorMarking(t *testing.T) {
	g := newTestGC(t)

	parent, err := g.Alloc(64, KindObject)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	g.AddRoot(parent)

	child, err := g.Alloc(64, KindString)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	if err := g.WriteRef(parent, 0, child); err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}

	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	if _, ok := g.Forwarded(parent); !ok {
		t.Fatal("rooted parent should survive")
	}

	if _, ok := g.Forwarded(child); ok {
		t.Fatal("transitively reachable young object survived a shallow minor mark; " +
			"this collector intentionally does not trace children in minor collections")
	}
}

// TestCollectMajor tests the deep-traced mark-sweep over old and large
// spaces.
func TestCollectMajor(t *testing.T) {
	finalized := 0
	g := newTestGC(t, WithFinalizer(KindResource, func([]byte) {
		finalized++
	}))

	keptOld := makeOld(t, g, 64, KindObject)
	doomedOld := makeOld(t, g, 64, KindResource)

	// An object reachable only through a rooted object's fields: the deep
	// trace must keep it where the shallow minor mark would not
	chained := makeOld(t, g, 64, KindScalar)
	if err := g.WriteRef(keptOld, 0, chained); err != nil {
		t.Fatalf("WriteRef failed: %v", err)
	}

	g.RemoveRoot(chained)

	keptLarge, err := g.Alloc(16<<10, KindString)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	g.AddRoot(keptLarge)

	doomedLarge, err := g.Alloc(16<<10, KindResource)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	g.RemoveRoot(doomedOld)

	freedBefore := g.Stats().BytesFreed

	if err := g.CollectMajor(); err != nil {
		t.Fatalf("CollectMajor failed: %v", err)
	}

	t.Run("UnreachedSwept", func(t *testing.T) {
		if _, ok := g.Resolve(doomedOld); ok {
			t.Error("unrooted old object should be swept")
		}

		if _, ok := g.Resolve(doomedLarge); ok {
			t.Error("unrooted large object should be swept")
		}

		if finalized != 2 {
			t.Errorf("expected 2 finalizations, got %d", finalized)
		}

		if g.Stats().BytesFreed <= freedBefore {
			t.Error("freed bytes should grow after a major collection")
		}
	})

	t.Run("ReachableKept", func(t *testing.T) {
		if _, ok := g.Resolve(keptOld); !ok {
			t.Error("rooted old object should survive")
		}

		if _, ok := g.Resolve(keptLarge); !ok {
			t.Error("rooted large object should survive")
		}

		if _, ok := g.Resolve(chained); !ok {
			t.Error("deep trace should keep objects reachable through fields")
		}
	})

	t.Run("FreedBlockReusable", func(t *testing.T) {
		total := g.oldGen.TotalSize()

		ref, err := g.oldGen.Alloc(64, KindObject)
		if err != nil {
			t.Fatalf("Alloc failed: %v", err)
		}

		if g.oldGen.TotalSize() != total {
			t.Error("swept block should satisfy the next old-gen allocation")
		}

		g.oldGen.Free(ref.index)
	})

	t.Run("FragmentationEstimated", func(t *testing.T) {
		info := g.FragmentationInfo()
		if info.FreeBlockCount == 0 {
			t.Error("major collection should leave free blocks to estimate over")
		}
	})
}

// TestCollectFull tests that the full collection is the major collection
// plus nothing: no compaction step exists in this design.
func TestCollectFull(t *testing.T) {
	g := newTestGC(t)

	if err := g.CollectFull(); err != nil {
		t.Fatalf("CollectFull failed: %v", err)
	}

	stats := g.Stats()
	if stats.FullCollections != 1 {
		t.Errorf("expected 1 full collection, got %d", stats.FullCollections)
	}

	if stats.MajorCollections != 1 {
		t.Errorf("full collection should run the major path, got %d majors", stats.MajorCollections)
	}

	if stats.MinorCollections != 1 {
		t.Errorf("major collection should run the minor path, got %d minors", stats.MinorCollections)
	}
}

// TestRoots tests explicit root registration.
func TestRoots(t *testing.T) {
	g := newTestGC(t)

	ref, err := g.Alloc(64, KindScalar)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	g.AddRoot(ref)
	g.AddRoot(ref) // duplicate registration is a no-op

	if len(g.Roots()) != 1 {
		t.Fatalf("expected 1 root, got %d", len(g.Roots()))
	}

	g.RemoveRoot(ref)

	if len(g.Roots()) != 0 {
		t.Fatalf("expected 0 roots after removal, got %d", len(g.Roots()))
	}

	// Without its root the object is reclaimed
	if err := g.CollectMinor(); err != nil {
		t.Fatalf("CollectMinor failed: %v", err)
	}

	if _, ok := g.Resolve(ref); ok {
		t.Error("unrooted object should be reclaimed")
	}
}

// TestShouldCollect tests the utilization triggers.
func TestShouldCollect(t *testing.T) {
	g := newTestGC(t, WithNurserySize(1024), WithNurseryGCThreshold(0.5))

	if g.ShouldCollect() {
		t.Error("fresh collector should not need collection")
	}

	for i := 0; i < 5; i++ {
		if _, err := g.Alloc(128, KindScalar); err != nil {
			t.Fatalf("Alloc failed: %v", err)
		}
	}

	if !g.ShouldCollect() {
		t.Error("nursery above threshold should trigger collection")
	}
}

// TestApplyTuning tests dynamic threshold updates.
func TestApplyTuning(t *testing.T) {
	g := newTestGC(t)

	g.ApplyTuning(Tuning{
		PromotionAge:       1,
		NurseryGCThreshold: 0.5,
		OldGenGCThreshold:  0.9,
	})

	got := g.CurrentTuning()
	if got.PromotionAge != 1 || got.NurseryGCThreshold != 0.5 || got.OldGenGCThreshold != 0.9 {
		t.Errorf("tuning not applied: %+v", got)
	}

	// The new promotion age takes effect on the next collections
	ref, err := g.Alloc(64, KindObject)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	g.AddRoot(ref)

	for i := 0; i < 2; i++ {
		if err := g.CollectMinor(); err != nil {
			t.Fatalf("CollectMinor failed: %v", err)
		}

		ref = refreshRef(g, ref)
	}

	if h, ok := g.Resolve(ref); !ok || h.Gen != GenOld {
		t.Error("promotion age 1 should tenure after the second collection")
	}
}

// TestMemoryUsage tests the per-region accounting snapshot.
func TestMemoryUsage(t *testing.T) {
	g := newTestGC(t)

	if _, err := g.Alloc(100, KindScalar); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	if _, err := g.Alloc(16<<10, KindString); err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	usage := g.MemoryUsage()

	if usage.Nursery.Used == 0 || usage.Nursery.Total != 64<<10 {
		t.Errorf("nursery usage wrong: %+v", usage.Nursery)
	}

	if usage.Survivor.Total != 2*(16<<10) {
		t.Errorf("survivor total should cover both buffers: %+v", usage.Survivor)
	}

	if usage.LargeObject.Used != 16<<10 {
		t.Errorf("large usage wrong: %+v", usage.LargeObject)
	}
}

// TestStatsPauses tests pause accounting across collections.
func TestStatsPauses(t *testing.T) {
	g := newTestGC(t)

	for i := 0; i < 3; i++ {
		if _, err := g.Alloc(256, KindScalar); err != nil {
			t.Fatalf("Alloc failed: %v", err)
		}

		if err := g.CollectMinor(); err != nil {
			t.Fatalf("CollectMinor failed: %v", err)
		}
	}

	stats := g.Stats()

	if stats.MinorCollections != 3 {
		t.Errorf("expected 3 minor collections, got %d", stats.MinorCollections)
	}

	if stats.MaxPauseNs < stats.LastPauseNs {
		t.Error("max pause cannot be below the last pause")
	}

	if stats.BytesAllocated == 0 {
		t.Error("allocated bytes should be tracked")
	}

	if stats.BytesFreed == 0 {
		t.Error("unrooted allocations should count as freed")
	}
}

// BenchmarkAlloc measures the nursery fast path with periodic collection.
func BenchmarkAlloc(b *testing.B) {
	g, err := New(allocator.NewSystemAllocator())
	if err != nil {
		b.Fatal(err)
	}
	defer g.Shutdown()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Alloc(64, KindScalar); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCollectMinor measures the pause for a nursery of short-lived
// objects.
func BenchmarkCollectMinor(b *testing.B) {
	g, err := New(allocator.NewSystemAllocator())
	if err != nil {
		b.Fatal(err)
	}
	defer g.Shutdown()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < 1000; j++ {
			if _, err := g.Alloc(64, KindScalar); err != nil {
				b.Fatal(err)
			}
		}

		if err := g.CollectMinor(); err != nil {
			b.Fatal(err)
		}
	}
}
