package gc

import "fmt"

// Defaults for the collector configuration.
const (
	DefaultNurserySize          = 2 << 20  // 2 MiB
	DefaultSurvivorSize         = 512 << 10 // 512 KiB per buffer
	DefaultLargeObjectThreshold = 8 << 10  // 8 KiB
	DefaultPromotionAge         = 3
	DefaultNurseryGCThreshold   = 0.8
	DefaultOldGenGCThreshold    = 0.7

	// defaultCardSpan is the logical address span the card table covers,
	// shared between the old generation and the large-object space.
	defaultCardSpan = 256 << 20 // 256 MiB -> 64 KiB bitmap

	// cardBase is where the logical old/large address range starts. Kept
	// away from zero so the nil address can never land on a card.
	cardBase = uint64(1) << 20
)

// Config holds the collector's tunables.
type Config struct {
	NurserySize          int     // Nursery buffer bytes
	SurvivorSize         int     // Bytes per survivor buffer
	LargeObjectThreshold int     // Allocations at or above go to the large space
	PromotionAge         uint8   // Survivals before promotion to old
	NurseryGCThreshold   float64 // Nursery utilization triggering minor GC
	OldGenGCThreshold    float64 // Old-gen utilization triggering major GC
	CardSpan             uint64  // Logical span the card table covers

	Finalizers FinalizerTable // Per-kind drop behavior
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the configuration used when no options override it.
func DefaultConfig() Config {
	return Config{
		NurserySize:          DefaultNurserySize,
		SurvivorSize:         DefaultSurvivorSize,
		LargeObjectThreshold: DefaultLargeObjectThreshold,
		PromotionAge:         DefaultPromotionAge,
		NurseryGCThreshold:   DefaultNurseryGCThreshold,
		OldGenGCThreshold:    DefaultOldGenGCThreshold,
		CardSpan:             defaultCardSpan,
	}
}

// Validate rejects configurations the collector cannot run with.
func (c *Config) Validate() error {
	if c.NurserySize <= 0 {
		return fmt.Errorf("gc: nursery size must be positive, got %d", c.NurserySize)
	}

	if c.SurvivorSize <= 0 {
		return fmt.Errorf("gc: survivor size must be positive, got %d", c.SurvivorSize)
	}

	if c.LargeObjectThreshold <= 0 {
		return fmt.Errorf("gc: large object threshold must be positive, got %d", c.LargeObjectThreshold)
	}

	if c.NurseryGCThreshold <= 0 || c.NurseryGCThreshold > 1 {
		return fmt.Errorf("gc: nursery GC threshold must be in (0, 1], got %g", c.NurseryGCThreshold)
	}

	if c.OldGenGCThreshold <= 0 || c.OldGenGCThreshold > 1 {
		return fmt.Errorf("gc: old-gen GC threshold must be in (0, 1], got %g", c.OldGenGCThreshold)
	}

	if c.CardSpan < cardSize {
		return fmt.Errorf("gc: card span must cover at least one card, got %d", c.CardSpan)
	}

	// Each space gets half the span; the old generation's half must hold
	// at least one backing chunk or promotion could never succeed.
	if c.CardSpan/2 < minChunkSize {
		return fmt.Errorf("gc: card span %d too small, the old generation's half must hold a %d-byte chunk",
			c.CardSpan, minChunkSize)
	}

	return nil
}

// WithNurserySize sets the nursery buffer size in bytes.
func WithNurserySize(size int) Option {
	return func(c *Config) { c.NurserySize = size }
}

// WithSurvivorSize sets the per-buffer survivor size in bytes.
func WithSurvivorSize(size int) Option {
	return func(c *Config) { c.SurvivorSize = size }
}

// WithLargeObjectThreshold sets the large-object routing threshold.
func WithLargeObjectThreshold(size int) Option {
	return func(c *Config) { c.LargeObjectThreshold = size }
}

// WithPromotionAge sets the survivals needed before promotion to old.
func WithPromotionAge(age uint8) Option {
	return func(c *Config) { c.PromotionAge = age }
}

// WithNurseryGCThreshold sets the minor-collection trigger ratio.
func WithNurseryGCThreshold(ratio float64) Option {
	return func(c *Config) { c.NurseryGCThreshold = ratio }
}

// WithOldGenGCThreshold sets the major-collection trigger ratio.
func WithOldGenGCThreshold(ratio float64) Option {
	return func(c *Config) { c.OldGenGCThreshold = ratio }
}

// WithCardSpan sets the logical span covered by the card table.
func WithCardSpan(span uint64) Option {
	return func(c *Config) { c.CardSpan = span }
}

// WithFinalizer installs the drop behavior for one payload kind.
func WithFinalizer(kind PayloadKind, fn FinalizerFunc) Option {
	return func(c *Config) { c.Finalizers[kind] = fn }
}

// Tuning is the dynamically adjustable subset of the configuration. Region
// sizes are fixed at construction and cannot be retuned.
type Tuning struct {
	PromotionAge       uint8
	NurseryGCThreshold float64
	OldGenGCThreshold  float64
}
