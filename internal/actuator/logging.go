package actuator

import (
	"strings"

	"github.com/banshee-data/lanespray/internal/monitoring"
)

var log = monitoring.Component("actuator")

// Logging is a diagnostic actuator that drives no hardware. Lane transitions
// go to the diag stream and the full per-frame state to the trace stream.
type Logging struct {
	prev []bool
}

func (l *Logging) Apply(ratios []float32, states []bool) error {
	if err := checkLanes(ratios, states); err != nil {
		return err
	}
	if len(l.prev) != len(states) {
		l.prev = make([]bool, len(states))
	}
	for i, on := range states {
		if on == l.prev[i] {
			continue
		}
		if on {
			log.Diag().Int("lane", i).Float32("ratio", ratios[i]).Msg("mock valve open")
		} else {
			log.Diag().Int("lane", i).Float32("ratio", ratios[i]).Msg("mock valve closed")
		}
		l.prev[i] = on
	}
	if log.TraceEnabled() {
		log.Trace().Str("lanes", laneString(states)).Floats32("ratios", ratios).Msg("apply")
	}
	return nil
}

// laneString renders states as e.g. "X..X".
func laneString(states []bool) string {
	var b strings.Builder
	for _, s := range states {
		if s {
			b.WriteByte('X')
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
