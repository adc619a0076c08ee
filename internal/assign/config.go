package assign

import (
	"errors"
	"fmt"
	"strings"

	"voxelsmith.ai/internal/progress"
)

var (
	// ErrEmptyCollection means there is no block left to choose from after
	// exclusions.
	ErrEmptyCollection = errors.New("assign: block collection is empty")
	ErrInvalidConfig   = errors.New("assign: invalid config")
)

type DitherMode int

const (
	DitherOff DitherMode = iota
	DitherRandom
	DitherOrdered
)

func (m DitherMode) String() string {
	switch m {
	case DitherOff:
		return "off"
	case DitherRandom:
		return "random"
	case DitherOrdered:
		return "ordered"
	default:
		return fmt.Sprintf("DitherMode(%d)", int(m))
	}
}

func ParseDitherMode(s string) (DitherMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return DitherOff, nil
	case "random":
		return DitherRandom, nil
	case "ordered":
		return DitherOrdered, nil
	default:
		return 0, fmt.Errorf("%w: unknown dithering mode %q", ErrInvalidConfig, s)
	}
}

// FallablePolicy decides what happens to blocks that fall under gravity.
type FallablePolicy int

const (
	// FallableDoNothing keeps them and reports unsupported ones as a warning.
	FallableDoNothing FallablePolicy = iota
	// FallableReplaceFallable swaps out every fallable block.
	FallableReplaceFallable
	// FallableReplaceFalling swaps out only fallable blocks with nothing below.
	FallableReplaceFalling
)

func (p FallablePolicy) String() string {
	switch p {
	case FallableDoNothing:
		return "do-nothing"
	case FallableReplaceFallable:
		return "replace-fallable"
	case FallableReplaceFalling:
		return "replace-falling"
	default:
		return fmt.Sprintf("FallablePolicy(%d)", int(p))
	}
}

func ParseFallablePolicy(s string) (FallablePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "do-nothing":
		return FallableDoNothing, nil
	case "replace-fallable":
		return FallableReplaceFallable, nil
	case "replace-falling":
		return FallableReplaceFalling, nil
	default:
		return 0, fmt.Errorf("%w: unknown fallable policy %q", ErrInvalidConfig, s)
	}
}

type Dithering struct {
	Mode DitherMode
	// Magnitude is the peak-to-peak perturbation in colour units [0,1].
	Magnitude float64
}

type Lighting struct {
	Enabled bool
	// Threshold is the sky light level (0-15) at or below which a visible
	// block is swapped for an emissive one.
	Threshold int
}

type Config struct {
	// Resolution is the number of levels per channel colours are binned to
	// before matching. 255 keeps full 8-bit precision.
	Resolution          int
	Dithering           Dithering
	ErrorWeight         float64
	ContextualAveraging bool
	Fallable            FallablePolicy
	Exclude             []string
	Lighting            Lighting
	Seed                int64

	Progress progress.Reporter
}

func (c Config) Validate() error {
	if c.Resolution < 1 || c.Resolution > 255 {
		return fmt.Errorf("%w: resolution must be in [1,255] (got %d)", ErrInvalidConfig, c.Resolution)
	}
	if c.ErrorWeight < 0 || c.ErrorWeight > 1 {
		return fmt.Errorf("%w: error weight must be in [0,1] (got %g)", ErrInvalidConfig, c.ErrorWeight)
	}
	switch c.Dithering.Mode {
	case DitherOff, DitherRandom, DitherOrdered:
	default:
		return fmt.Errorf("%w: dithering mode %v", ErrInvalidConfig, c.Dithering.Mode)
	}
	if c.Dithering.Magnitude < 0 || c.Dithering.Magnitude > 1 {
		return fmt.Errorf("%w: dithering magnitude must be in [0,1] (got %g)", ErrInvalidConfig, c.Dithering.Magnitude)
	}
	switch c.Fallable {
	case FallableDoNothing, FallableReplaceFallable, FallableReplaceFalling:
	default:
		return fmt.Errorf("%w: fallable policy %v", ErrInvalidConfig, c.Fallable)
	}
	if c.Lighting.Threshold < 0 || c.Lighting.Threshold > maxLight {
		return fmt.Errorf("%w: light threshold must be in [0,%d] (got %d)", ErrInvalidConfig, maxLight, c.Lighting.Threshold)
	}
	return nil
}
