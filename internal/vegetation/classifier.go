package vegetation

import (
	"fmt"
	"strings"

	"github.com/banshee-data/lanespray/internal/frame"
)

// Strategy selects the per-pixel classification rule.
type Strategy int

const (
	StrategyThreshold Strategy = iota
	StrategyHybrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyThreshold:
		return "threshold"
	case StrategyHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy accepts "threshold" (alias "exg") or "hybrid".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "threshold", "exg":
		return StrategyThreshold, nil
	case "hybrid", "":
		return StrategyHybrid, nil
	default:
		return 0, fmt.Errorf("%w: unsupported vegetation strategy %q", frame.ErrInvalidInput, s)
	}
}

// Classifier applies one fixed strategy to whole frames.
type Classifier struct {
	strategy  Strategy
	threshold int16
	hybrid    HybridParams
}

// NewClassifier returns a classifier for the given strategy. threshold is used
// by StrategyThreshold and hybrid by StrategyHybrid.
func NewClassifier(strategy Strategy, threshold int16, hybrid HybridParams) (*Classifier, error) {
	switch strategy {
	case StrategyThreshold, StrategyHybrid:
	default:
		return nil, fmt.Errorf("%w: unknown strategy %d", frame.ErrInvalidInput, int(strategy))
	}
	return &Classifier{strategy: strategy, threshold: threshold, hybrid: hybrid}, nil
}

// Strategy returns the configured strategy.
func (c *Classifier) Strategy() Strategy { return c.strategy }

// Mask classifies rgb into mask. len(mask) must equal len(rgb)/3.
func (c *Classifier) Mask(rgb, mask []byte) error {
	switch c.strategy {
	case StrategyThreshold:
		return ExGMask(rgb, mask, c.threshold)
	case StrategyHybrid:
		return HybridMask(rgb, mask, c.hybrid)
	default:
		return fmt.Errorf("%w: unknown strategy %d", frame.ErrInvalidInput, int(c.strategy))
	}
}

// MaskFrame classifies f into mask, which must hold exactly width*height entries.
func (c *Classifier) MaskFrame(f *frame.Frame, mask []byte) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if len(mask) != f.Pixels() {
		return fmt.Errorf("%w: mask length %d, want %d for %dx%d",
			frame.ErrInvalidInput, len(mask), f.Pixels(), f.Width, f.Height)
	}
	return c.Mask(f.Data, mask)
}
