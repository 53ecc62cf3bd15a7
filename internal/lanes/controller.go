package lanes

import (
	"fmt"

	"github.com/banshee-data/lanespray/internal/frame"
)

// ControllerConfig holds the timing and threshold parameters of a
// Controller. It is copied at construction and never mutated afterwards.
type ControllerConfig struct {
	Lanes      int
	MinRatio   float32
	FireMs     uint32
	HoldoffMs  uint32
	Hysteresis float32
}

// DefaultControllerConfig returns field-tested timing for a boom with n lanes.
func DefaultControllerConfig(n int) ControllerConfig {
	return ControllerConfig{
		Lanes:      n,
		MinRatio:   0.008,
		FireMs:     60,
		HoldoffMs:  200,
		Hysteresis: 0.5,
	}
}

// Validate reports configuration that would make the controller ill-defined.
func (c ControllerConfig) Validate() error {
	if c.Lanes <= 0 {
		return fmt.Errorf("%w: lane count %d", frame.ErrInvalidInput, c.Lanes)
	}
	if !(c.MinRatio >= 0 && c.MinRatio <= 1) {
		return fmt.Errorf("%w: min_ratio %v outside [0,1]", frame.ErrInvalidInput, c.MinRatio)
	}
	if !(c.Hysteresis >= 0 && c.Hysteresis <= 1) {
		return fmt.Errorf("%w: hysteresis %v outside [0,1]", frame.ErrInvalidInput, c.Hysteresis)
	}
	return nil
}

// ArmedThreshold is the trigger ratio for a lane that fired on its last
// idle evaluation.
func (c ControllerConfig) ArmedThreshold() float32 {
	return c.MinRatio * (1 - c.Hysteresis)
}

// DisarmedThreshold is the trigger ratio for a lane that did not.
func (c ControllerConfig) DisarmedThreshold() float32 {
	return c.MinRatio * (1 + c.Hysteresis)
}

// Phase is the timing phase of one lane.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFiring
	PhaseCooldown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFiring:
		return "firing"
	case PhaseCooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// LaneState is a snapshot of one lane's controller state.
type LaneState struct {
	Phase       Phase
	RemainingMs uint32
	Armed       bool
}

// Controller is the per-lane timing state machine. A lane turns on as soon
// as its ratio crosses the trigger threshold, stays on for at least FireMs,
// is then held off for at least HoldoffMs, and may re-trigger afterwards at
// the lower armed threshold.
//
// A Controller is owned by a single goroutine and is not safe for
// concurrent use.
type Controller struct {
	cfg      ControllerConfig
	phase    []Phase
	fireRem  []uint32
	coolRem  []uint32
	armed    []bool
	armedThr float32
	idleThr  float32
}

// NewController validates cfg and returns a controller with every lane idle
// and disarmed.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		cfg:      cfg,
		phase:    make([]Phase, cfg.Lanes),
		fireRem:  make([]uint32, cfg.Lanes),
		coolRem:  make([]uint32, cfg.Lanes),
		armed:    make([]bool, cfg.Lanes),
		armedThr: cfg.ArmedThreshold(),
		idleThr:  cfg.DisarmedThreshold(),
	}, nil
}

// Config returns the controller's configuration.
func (c *Controller) Config() ControllerConfig { return c.cfg }

// Lanes returns the number of lanes.
func (c *Controller) Lanes() int { return c.cfg.Lanes }

// Update advances every lane by dtMs and evaluates ratios. It returns one
// actuation boolean per lane. len(ratios) must equal the lane count.
func (c *Controller) Update(ratios []float32, dtMs uint32) ([]bool, error) {
	states := make([]bool, c.cfg.Lanes)
	if err := c.UpdateInto(states, ratios, dtMs); err != nil {
		return nil, err
	}
	return states, nil
}

// UpdateInto is Update writing into states, which must have one entry per lane.
func (c *Controller) UpdateInto(states []bool, ratios []float32, dtMs uint32) error {
	n := c.cfg.Lanes
	if len(ratios) != n {
		return fmt.Errorf("%w: got %d ratios for %d lanes", frame.ErrInvalidInput, len(ratios), n)
	}
	if len(states) != n {
		return fmt.Errorf("%w: got %d state slots for %d lanes", frame.ErrInvalidInput, len(states), n)
	}
	for lane := 0; lane < n; lane++ {
		states[lane] = c.step(lane, ratios[lane], dtMs)
	}
	return nil
}

func (c *Controller) step(lane int, ratio float32, dtMs uint32) bool {
	// The phase is stored explicitly so that a zero-length fire window
	// still passes through cooldown.
	switch c.phase[lane] {
	case PhaseFiring:
		if c.fireRem[lane] > dtMs {
			c.fireRem[lane] -= dtMs
			return true
		}
		// Fire window exhausted: off this frame, holdoff starts now.
		c.fireRem[lane] = 0
		c.phase[lane] = PhaseCooldown
		c.coolRem[lane] = c.cfg.HoldoffMs
		return false
	case PhaseCooldown:
		if c.coolRem[lane] > dtMs {
			c.coolRem[lane] -= dtMs
			return false
		}
		// Holdoff expired within this step; the lane is evaluated as idle
		// immediately.
		c.coolRem[lane] = 0
		c.phase[lane] = PhaseIdle
	}

	thr := c.idleThr
	if c.armed[lane] {
		thr = c.armedThr
	}
	if ratio >= thr {
		c.armed[lane] = true
		c.phase[lane] = PhaseFiring
		c.fireRem[lane] = c.cfg.FireMs
		return true
	}
	c.armed[lane] = false
	return false
}

// States returns a snapshot of every lane's phase.
func (c *Controller) States() []LaneState {
	out := make([]LaneState, c.cfg.Lanes)
	for i := range out {
		out[i] = LaneState{Phase: c.phase[i], Armed: c.armed[i]}
		switch c.phase[i] {
		case PhaseFiring:
			out[i].RemainingMs = c.fireRem[i]
		case PhaseCooldown:
			out[i].RemainingMs = c.coolRem[i]
		}
	}
	return out
}

// Reset returns every lane to idle and disarmed.
func (c *Controller) Reset() {
	for i := range c.fireRem {
		c.phase[i] = PhaseIdle
		c.fireRem[i] = 0
		c.coolRem[i] = 0
		c.armed[i] = false
	}
}
