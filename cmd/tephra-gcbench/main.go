// Command tephra-gcbench drives a synthetic allocation workload against
// the Tephra generational collector and reports the resulting statistics.
// It can expose the collector's telemetry endpoints over HTTP or HTTP/3
// while the workload runs, and hot-apply tuning-file changes between
// collections.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tephra-lang/tephra/internal/allocator"
	"github.com/tephra-lang/tephra/internal/gc"
	"github.com/tephra-lang/tephra/internal/gctune"
	"github.com/tephra-lang/tephra/internal/telemetry"
)

func main() {
	var (
		nurserySize  = flag.Int("nursery", gc.DefaultNurserySize, "nursery size in bytes")
		survivorSize = flag.Int("survivor", gc.DefaultSurvivorSize, "survivor buffer size in bytes")
		objects      = flag.Int("objects", 200000, "objects to allocate")
		minSize      = flag.Int("min-size", 16, "minimum object size in bytes")
		maxSize      = flag.Int("max-size", 1024, "maximum object size in bytes")
		surviveRatio = flag.Float64("survive", 0.05, "fraction of objects kept rooted")
		liveSet      = flag.Int("live-set", 2000, "maximum rooted objects")
		majors       = flag.Int("majors", 2, "explicit major collections at the end")
		seed         = flag.Int64("seed", 1, "workload random seed")
		telemAddr    = flag.String("telemetry", "", "serve telemetry on this address (empty = off)")
		useHTTP3     = flag.Bool("http3", false, "serve telemetry over HTTP/3 instead of HTTP/1")
		tuneFile     = flag.String("tune", "", "tuning file to load and watch (empty = off)")
	)
	flag.Parse()

	opts := []gc.Option{
		gc.WithNurserySize(*nurserySize),
		gc.WithSurvivorSize(*survivorSize),
	}

	if *tuneFile != "" {
		snap, err := gctune.Load(*tuneFile)
		if err != nil {
			log.Fatalf("tuning file: %v", err)
		}

		opts = append(opts, tuningOptions(snap)...)
	}

	heap, err := gc.New(allocator.NewDefault(), opts...)
	if err != nil {
		log.Fatalf("collector init: %v", err)
	}
	defer heap.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)

	if *telemAddr != "" {
		stop, addr, err := startTelemetry(heap, *telemAddr, *useHTTP3)
		if err != nil {
			log.Fatalf("telemetry: %v", err)
		}

		log.Printf("telemetry on %s", addr)

		group.Go(func() error {
			<-ctx.Done()

			return stop()
		})
	}

	var tuneC <-chan gctune.Snapshot

	if *tuneFile != "" {
		watcher, err := gctune.NewWatcher(*tuneFile)
		if err != nil {
			log.Fatalf("tuning watcher: %v", err)
		}
		defer watcher.Close()

		tuneC = watcher.Snapshots()

		group.Go(func() error {
			for {
				select {
				case err := <-watcher.Errors():
					log.Printf("tuning reload rejected: %v", err)
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	// The collector is single-mutator: the entire workload, including
	// applying tuning snapshots, runs on this one goroutine.
	group.Go(func() error {
		defer cancel()

		return runWorkload(heap, workloadParams{
			objects:      *objects,
			minSize:      *minSize,
			maxSize:      *maxSize,
			surviveRatio: *surviveRatio,
			liveSet:      *liveSet,
			majors:       *majors,
			seed:         *seed,
		}, tuneC)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("workload: %v", err)
	}

	report(heap)
}

type workloadParams struct {
	objects      int
	minSize      int
	maxSize      int
	surviveRatio float64
	liveSet      int
	majors       int
	seed         int64
}

func runWorkload(heap *gc.GenerationalGC, p workloadParams, tuneC <-chan gctune.Snapshot) error {
	rng := rand.New(rand.NewSource(p.seed))
	kinds := []gc.PayloadKind{gc.KindScalar, gc.KindString, gc.KindArray, gc.KindObject}

	var live []gc.Ref

	refresh := func() {
		// Handles held across a collection are stale once the object
		// moved; re-resolve them through the forwarding log.
		for i, r := range live {
			if nr, ok := heap.Forwarded(r); ok {
				live[i] = nr
			}
		}
	}

	start := time.Now()

	for i := 0; i < p.objects; i++ {
		select {
		case snap := <-tuneC:
			if snap.NurserySize > 0 || snap.SurvivorSize > 0 || snap.LargeObjectThreshold > 0 {
				log.Printf("tuning reload: region sizes only take effect at startup, ignoring")
			}

			heap.ApplyTuning(gc.Tuning{
				PromotionAge:       snap.PromotionAge,
				NurseryGCThreshold: snap.NurseryGCThreshold,
				OldGenGCThreshold:  snap.OldGenGCThreshold,
			})
			log.Printf("tuning applied: %+v", heap.CurrentTuning())
		default:
		}

		size := p.minSize
		if p.maxSize > p.minSize {
			size += rng.Intn(p.maxSize - p.minSize + 1)
		}

		ref, err := heap.Alloc(size, kinds[rng.Intn(len(kinds))])
		if err != nil {
			return fmt.Errorf("alloc %d bytes: %w", size, err)
		}

		refresh()

		if payload, ok := heap.Payload(ref); ok {
			for j := range payload {
				payload[j] = byte(i)
			}
		}

		if rng.Float64() < p.surviveRatio {
			heap.AddRoot(ref)
			live = append(live, ref)

			if len(live) > p.liveSet {
				heap.RemoveRoot(live[0])
				live = live[1:]
			}
		}

		// Occasionally store the new object into a tenured one so the
		// write barrier and remembered set see realistic traffic.
		if len(live) > 0 && i%97 == 0 {
			src := live[rng.Intn(len(live))]
			if h, ok := heap.Resolve(src); ok && (h.Gen == gc.GenOld || h.Gen == gc.GenLarge) {
				if err := heap.WriteRef(src, 0, ref); err != nil {
					return err
				}
			}
		}

		if heap.ShouldCollect() {
			if err := heap.CollectMinor(); err != nil {
				return err
			}

			refresh()
		}
	}

	for i := 0; i < p.majors; i++ {
		if err := heap.CollectMajor(); err != nil {
			return err
		}

		refresh()
	}

	log.Printf("workload finished in %s", time.Since(start).Round(time.Millisecond))

	return nil
}

func startTelemetry(heap *gc.GenerationalGC, addr string, useHTTP3 bool) (func() error, string, error) {
	if useHTTP3 {
		tlsCfg, err := telemetry.SelfSignedTLS()
		if err != nil {
			return nil, "", err
		}

		srv := telemetry.NewHTTP3Server(addr, tlsCfg, telemetry.Handler(heap))

		bound, err := srv.Start()
		if err != nil {
			return nil, "", err
		}

		return srv.Stop, bound + " (http/3)", nil
	}

	bound, shutdown, err := telemetry.StartDebugHTTP(heap, addr)
	if err != nil {
		return nil, "", err
	}

	stop := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		return shutdown(ctx)
	}

	return stop, bound, nil
}

func tuningOptions(snap *gctune.Snapshot) []gc.Option {
	var opts []gc.Option

	if snap.NurserySize > 0 {
		opts = append(opts, gc.WithNurserySize(snap.NurserySize))
	}

	if snap.SurvivorSize > 0 {
		opts = append(opts, gc.WithSurvivorSize(snap.SurvivorSize))
	}

	if snap.LargeObjectThreshold > 0 {
		opts = append(opts, gc.WithLargeObjectThreshold(snap.LargeObjectThreshold))
	}

	if snap.PromotionAge > 0 {
		opts = append(opts, gc.WithPromotionAge(snap.PromotionAge))
	}

	if snap.NurseryGCThreshold > 0 {
		opts = append(opts, gc.WithNurseryGCThreshold(snap.NurseryGCThreshold))
	}

	if snap.OldGenGCThreshold > 0 {
		opts = append(opts, gc.WithOldGenGCThreshold(snap.OldGenGCThreshold))
	}

	return opts
}

func report(heap *gc.GenerationalGC) {
	stats := heap.Stats()
	usage := heap.MemoryUsage()
	frag := heap.FragmentationInfo()

	fmt.Printf("collections: minor=%d major=%d full=%d\n",
		stats.MinorCollections, stats.MajorCollections, stats.FullCollections)
	fmt.Printf("bytes:       allocated=%d freed=%d\n", stats.BytesAllocated, stats.BytesFreed)
	fmt.Printf("promotions:  survivor=%d old=%d\n", stats.PromotedToSurvivor, stats.PromotedToOld)
	fmt.Printf("pauses:      last=%dns avg=%dns max=%dns\n",
		stats.LastPauseNs, stats.AvgPauseNs, stats.MaxPauseNs)
	fmt.Printf("barriers:    %d\n", stats.WriteBarriers)
	fmt.Printf("usage:       nursery=%d/%d survivor=%d/%d old=%d/%d large=%d/%d\n",
		usage.Nursery.Used, usage.Nursery.Total,
		usage.Survivor.Used, usage.Survivor.Total,
		usage.OldGen.Used, usage.OldGen.Total,
		usage.LargeObject.Used, usage.LargeObject.Total)
	fmt.Printf("old-gen:     free_blocks=%d free_bytes=%d fragmentation=%.3f\n",
		frag.FreeBlockCount, frag.TotalFreeBytes, frag.FragmentationRatio)
}
