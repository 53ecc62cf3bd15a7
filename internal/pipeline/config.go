package pipeline

import (
	"fmt"

	"github.com/banshee-data/lanespray/internal/frame"
	"github.com/banshee-data/lanespray/internal/lanes"
	"github.com/banshee-data/lanespray/internal/vegetation"
)

// Config is the immutable per-run configuration of a Processor.
type Config struct {
	Strategy     vegetation.Strategy
	ExGThreshold int16
	Hybrid       vegetation.HybridParams
	BottomFrac   float32
	Controller   lanes.ControllerConfig
}

// DefaultConfig returns the field defaults for n lanes.
func DefaultConfig(n int) Config {
	return Config{
		Strategy:     vegetation.StrategyHybrid,
		ExGThreshold: vegetation.DefaultExGThreshold,
		Hybrid:       vegetation.DefaultHybridParams(),
		BottomFrac:   0.3,
		Controller:   lanes.DefaultControllerConfig(n),
	}
}

// Lanes returns the configured lane count.
func (c Config) Lanes() int { return c.Controller.Lanes }

// Validate checks every field before any frame is processed.
func (c Config) Validate() error {
	if !(c.BottomFrac >= 0 && c.BottomFrac <= 1) {
		return fmt.Errorf("%w: bottom_frac %v outside [0,1]", frame.ErrInvalidInput, c.BottomFrac)
	}
	switch c.Strategy {
	case vegetation.StrategyThreshold, vegetation.StrategyHybrid:
	default:
		return fmt.Errorf("%w: unknown strategy %v", frame.ErrInvalidInput, c.Strategy)
	}
	return c.Controller.Validate()
}
