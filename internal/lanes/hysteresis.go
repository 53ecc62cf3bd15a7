package lanes

import (
	"fmt"

	"github.com/banshee-data/lanespray/internal/frame"
)

// HysteresisReducer is a stateful boolean lane reducer. A lane that is off
// turns on when its ratio reaches OnRatio; a lane that is on stays on until
// its ratio falls below OffRatio. It has no notion of time.
type HysteresisReducer struct {
	onRatio  float32
	offRatio float32
	on       []bool
	ratios   []float32
}

// NewHysteresisReducer returns a reducer for n lanes, all initially off.
// offRatio must not exceed onRatio.
func NewHysteresisReducer(n int, onRatio, offRatio float32) (*HysteresisReducer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: lane count %d", frame.ErrInvalidInput, n)
	}
	if !(offRatio >= 0 && offRatio <= onRatio && onRatio <= 1) {
		return nil, fmt.Errorf("%w: hysteresis ratios on=%v off=%v", frame.ErrInvalidInput, onRatio, offRatio)
	}
	return &HysteresisReducer{
		onRatio:  onRatio,
		offRatio: offRatio,
		on:       make([]bool, n),
		ratios:   make([]float32, n),
	}, nil
}

// Reduce computes lane ratios over the bottom band and updates each lane's
// on/off state. The returned slice is owned by the caller.
func (h *HysteresisReducer) Reduce(mask []byte, width, height int, bottomFrac float32) ([]bool, error) {
	if err := ReduceLanesInto(h.ratios, mask, width, height, bottomFrac); err != nil {
		return nil, err
	}
	return h.Step(h.ratios)
}

// Step applies precomputed ratios. len(ratios) must equal the lane count.
func (h *HysteresisReducer) Step(ratios []float32) ([]bool, error) {
	if len(ratios) != len(h.on) {
		return nil, fmt.Errorf("%w: got %d ratios for %d lanes", frame.ErrInvalidInput, len(ratios), len(h.on))
	}
	out := make([]bool, len(h.on))
	for i, r := range ratios {
		if h.on[i] {
			h.on[i] = r >= h.offRatio
		} else {
			h.on[i] = r >= h.onRatio
		}
		out[i] = h.on[i]
	}
	return out, nil
}

// Reset turns every lane off.
func (h *HysteresisReducer) Reset() {
	for i := range h.on {
		h.on[i] = false
	}
}
