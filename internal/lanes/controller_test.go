package lanes

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanespray/internal/frame"
)

func TestControllerTimingSequence(t *testing.T) {
	cfg := DefaultControllerConfig(4)
	cfg.FireMs = 40
	cfg.HoldoffMs = 100
	cfg.MinRatio = 0.01
	cfg.Hysteresis = 0.5
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	steps := []struct {
		name   string
		ratios []float32
		dt     uint32
		want   []bool
	}{
		{"first frame triggers lane 0", []float32{0.02, 0, 0, 0}, 0, []bool{true, false, false, false}},
		{"fire window holds through ratio drop", []float32{0, 0, 0, 0}, 20, []bool{true, false, false, false}},
		{"fire window exhausted", []float32{0, 0, 0, 0}, 20, []bool{false, false, false, false}},
		{"cooldown blocks retrigger", []float32{0.02, 0, 0, 0}, 20, []bool{false, false, false, false}},
		{"cooldown expiry retriggers in same update", []float32{0.02, 0, 0, 0}, 80, []bool{true, false, false, false}},
	}
	for _, s := range steps {
		got, err := ctrl.Update(s.ratios, s.dt)
		require.NoError(t, err, s.name)
		if diff := cmp.Diff(got, s.want); diff != "" {
			t.Fatalf("%s: states mismatch (-got +want):\n%s", s.name, diff)
		}
	}
}

func TestControllerHysteresisThresholds(t *testing.T) {
	cfg := ControllerConfig{Lanes: 1, MinRatio: 0.1, FireMs: 10, HoldoffMs: 0, Hysteresis: 0.5}
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	// Disarmed threshold is 0.15.
	got, _ := ctrl.Update([]float32{0.12}, 0)
	assert.Equal(t, []bool{false}, got)

	got, _ = ctrl.Update([]float32{0.15}, 0)
	assert.Equal(t, []bool{true}, got, "ties trigger")

	// Burn through the fire window. Holdoff is zero, so the next update is
	// an idle evaluation at the armed threshold 0.05.
	got, _ = ctrl.Update([]float32{0}, 10)
	assert.Equal(t, []bool{false}, got)

	got, _ = ctrl.Update([]float32{0.06}, 1)
	assert.Equal(t, []bool{true}, got, "armed lane retriggers below min_ratio")

	got, _ = ctrl.Update([]float32{0}, 10)
	assert.Equal(t, []bool{false}, got)

	// A failed idle evaluation disarms the lane.
	got, _ = ctrl.Update([]float32{0.01}, 1)
	assert.Equal(t, []bool{false}, got)
	got, _ = ctrl.Update([]float32{0.06}, 1)
	assert.Equal(t, []bool{false}, got, "disarmed lane needs 0.15")
}

func TestControllerStates(t *testing.T) {
	cfg := ControllerConfig{Lanes: 2, MinRatio: 0.01, FireMs: 40, HoldoffMs: 100, Hysteresis: 0.5}
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	_, err = ctrl.Update([]float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Equal(t, []LaneState{
		{Phase: PhaseFiring, RemainingMs: 40, Armed: true},
		{Phase: PhaseIdle},
	}, ctrl.States())

	_, err = ctrl.Update([]float32{1, 0}, 50)
	require.NoError(t, err)
	assert.Equal(t, []LaneState{
		{Phase: PhaseCooldown, RemainingMs: 100, Armed: true},
		{Phase: PhaseIdle},
	}, ctrl.States())

	ctrl.Reset()
	assert.Equal(t, []LaneState{{Phase: PhaseIdle}, {Phase: PhaseIdle}}, ctrl.States())
}

func TestControllerSaturatingTime(t *testing.T) {
	cfg := ControllerConfig{Lanes: 1, MinRatio: 0.01, FireMs: 40, HoldoffMs: 100, Hysteresis: 0}
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	_, _ = ctrl.Update([]float32{1}, 0)
	got, _ := ctrl.Update([]float32{1}, ^uint32(0))
	assert.Equal(t, []bool{false}, got)
	st := ctrl.States()[0]
	assert.Equal(t, PhaseCooldown, st.Phase)
	assert.Equal(t, uint32(100), st.RemainingMs)

	got, _ = ctrl.Update([]float32{1}, ^uint32(0))
	assert.Equal(t, []bool{true}, got)
}

func TestControllerInvalidInput(t *testing.T) {
	_, err := NewController(ControllerConfig{Lanes: 0})
	assert.True(t, errors.Is(err, frame.ErrInvalidInput))

	_, err = NewController(ControllerConfig{Lanes: 4, MinRatio: 0.01, Hysteresis: 1.5})
	assert.True(t, errors.Is(err, frame.ErrInvalidInput))

	ctrl, err := NewController(DefaultControllerConfig(4))
	require.NoError(t, err)
	_, err = ctrl.Update([]float32{0, 0}, 0)
	assert.True(t, errors.Is(err, frame.ErrInvalidInput))
	assert.Equal(t, make([]LaneState, 4), ctrl.States(), "rejected update must not touch state")
}

func TestControllerDefaults(t *testing.T) {
	cfg := DefaultControllerConfig(4)
	assert.Equal(t, ControllerConfig{Lanes: 4, MinRatio: 0.008, FireMs: 60, HoldoffMs: 200, Hysteresis: 0.5}, cfg)
	assert.LessOrEqual(t, cfg.ArmedThreshold(), cfg.DisarmedThreshold())
}

// Under arbitrary frame timing a lane stays on for at least FireMs once
// triggered and stays off for at least HoldoffMs once released.
func TestControllerMinimumWindows(t *testing.T) {
	tests := []struct {
		name   string
		fireMs uint32
		holdMs uint32
	}{
		{"default windows", 60, 200},
		{"zero fire window", 0, 200},
		{"zero holdoff", 60, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(99))
			cfg := ControllerConfig{Lanes: 1, MinRatio: 0.01, FireMs: tt.fireMs, HoldoffMs: tt.holdMs, Hysteresis: 0.5}

			for trial := 0; trial < 20; trial++ {
				ctrl, err := NewController(cfg)
				require.NoError(t, err)

				var now, onAt, offAt uint64
				prev := false
				released := false
				for i := 0; i < 500; i++ {
					dt := uint32(rng.Intn(50))
					now += uint64(dt)
					ratio := float32(0)
					if rng.Intn(4) != 0 {
						ratio = 1
					}
					got, err := ctrl.Update([]float32{ratio}, dt)
					require.NoError(t, err)
					on := got[0]

					switch {
					case on && !prev:
						if released && now-offAt < uint64(cfg.HoldoffMs) {
							t.Fatalf("trial %d: retriggered %dms after release, holdoff is %dms", trial, now-offAt, cfg.HoldoffMs)
						}
						onAt = now
					case !on && prev:
						if now-onAt < uint64(cfg.FireMs) {
							t.Fatalf("trial %d: released after %dms, fire window is %dms", trial, now-onAt, cfg.FireMs)
						}
						offAt = now
						released = true
					}
					prev = on
				}
			}
		})
	}
}

func TestControllerZeroFireWindowHoldsOff(t *testing.T) {
	cfg := ControllerConfig{Lanes: 1, MinRatio: 0.01, FireMs: 0, HoldoffMs: 200, Hysteresis: 0.5}
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	steps := []struct {
		dt    uint32
		want  bool
		phase Phase
	}{
		{0, true, PhaseFiring},
		{10, false, PhaseCooldown},
		{10, false, PhaseCooldown},
		{180, false, PhaseCooldown},
		{10, true, PhaseFiring},
	}
	for i, s := range steps {
		got, err := ctrl.Update([]float32{1}, s.dt)
		require.NoError(t, err)
		assert.Equal(t, []bool{s.want}, got, "step %d", i)
		assert.Equal(t, s.phase, ctrl.States()[0].Phase, "step %d", i)
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "firing", PhaseFiring.String())
	assert.Equal(t, "cooldown", PhaseCooldown.String())
	assert.Equal(t, "Phase(7)", Phase(7).String())
}
