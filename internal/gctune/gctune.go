// Package gctune loads and hot-reloads the collector tuning file. The
// file is JSON; the dynamic subset (promotion age, collection thresholds)
// can be re-applied to a running collector, while region sizes only take
// effect at startup.
package gctune

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
)

// RuntimeVersion is the version of this runtime build, checked against the
// tuning file's requires_runtime constraint.
const RuntimeVersion = "0.4.2"

// File is the on-disk tuning document. Zero-valued fields keep their
// defaults.
type File struct {
	NurserySize          int     `json:"nursery_size"`
	SurvivorSize         int     `json:"survivor_size"`
	LargeObjectThreshold int     `json:"large_object_threshold"`
	PromotionAge         int     `json:"promotion_age"`
	NurseryGCThreshold   float64 `json:"nursery_gc_threshold"`
	OldGenGCThreshold    float64 `json:"old_gen_gc_threshold"`

	// RequiresRuntime is an optional semver constraint the runtime
	// version must satisfy, e.g. ">=0.4.0 <1.0.0".
	RequiresRuntime string `json:"requires_runtime"`
}

// Snapshot is a validated tuning state.
type Snapshot struct {
	NurserySize          int
	SurvivorSize         int
	LargeObjectThreshold int
	PromotionAge         uint8
	NurseryGCThreshold   float64
	OldGenGCThreshold    float64
}

// Load reads and validates a tuning file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gctune: reading %s: %w", path, err)
	}

	return Parse(data)
}

// Parse validates a tuning document.
func Parse(data []byte) (*Snapshot, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("gctune: invalid tuning document: %w", err)
	}

	if f.RequiresRuntime != "" {
		if err := checkRuntimeConstraint(f.RequiresRuntime); err != nil {
			return nil, err
		}
	}

	snap := &Snapshot{
		NurserySize:          f.NurserySize,
		SurvivorSize:         f.SurvivorSize,
		LargeObjectThreshold: f.LargeObjectThreshold,
		PromotionAge:         uint8(f.PromotionAge),
		NurseryGCThreshold:   f.NurseryGCThreshold,
		OldGenGCThreshold:    f.OldGenGCThreshold,
	}

	if err := snap.validate(f.PromotionAge); err != nil {
		return nil, err
	}

	return snap, nil
}

// checkRuntimeConstraint verifies the runtime version satisfies the
// document's semver constraint.
func checkRuntimeConstraint(constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("gctune: invalid requires_runtime %q: %w", constraint, err)
	}

	v := semver.MustParse(RuntimeVersion)
	if !c.Check(v) {
		return fmt.Errorf("gctune: runtime %s does not satisfy requires_runtime %q",
			RuntimeVersion, constraint)
	}

	return nil
}

func (s *Snapshot) validate(rawPromotionAge int) error {
	if s.NurserySize < 0 || s.SurvivorSize < 0 || s.LargeObjectThreshold < 0 {
		return fmt.Errorf("gctune: sizes must be non-negative")
	}

	if rawPromotionAge < 0 || rawPromotionAge > 255 {
		return fmt.Errorf("gctune: promotion_age must be in [0, 255], got %d", rawPromotionAge)
	}

	if s.NurseryGCThreshold < 0 || s.NurseryGCThreshold > 1 {
		return fmt.Errorf("gctune: nursery_gc_threshold must be in [0, 1], got %g", s.NurseryGCThreshold)
	}

	if s.OldGenGCThreshold < 0 || s.OldGenGCThreshold > 1 {
		return fmt.Errorf("gctune: old_gen_gc_threshold must be in [0, 1], got %g", s.OldGenGCThreshold)
	}

	return nil
}
