package journal

import (
	"time"

	"github.com/banshee-data/lanespray/internal/actuator"
)

// Recorder is an actuator decorator that journals lane transitions.
type Recorder struct {
	next    actuator.Actuator
	journal *Journal
	now     func() time.Time
	prev    []bool
	seq     uint64
}

// Wrap returns an actuator that forwards every frame to next and queues an
// event to j whenever a lane turns on (fire) or off (release). A nil next
// behaves like actuator.Nop and a nil j forwards without journaling. The
// decision is journaled even when next fails.
func Wrap(next actuator.Actuator, j *Journal) *Recorder {
	if next == nil {
		next = actuator.Nop{}
	}
	return &Recorder{next: next, journal: j, now: time.Now}
}

func (r *Recorder) Apply(ratios []float32, states []bool) error {
	err := r.next.Apply(ratios, states)
	if r.journal == nil || len(ratios) != len(states) {
		return err
	}
	r.seq++
	if len(r.prev) != len(states) {
		r.prev = make([]bool, len(states))
	}
	var at time.Time
	for lane, on := range states {
		if on == r.prev[lane] {
			continue
		}
		if at.IsZero() {
			at = r.now()
		}
		kind := KindRelease
		if on {
			kind = KindFire
		}
		r.journal.Record(Event{Seq: r.seq, Lane: lane, Kind: kind, Ratio: ratios[lane], At: at})
		r.prev[lane] = on
	}
	return err
}

// Close closes the wrapped actuator. The journal is closed by its owner.
func (r *Recorder) Close() error {
	return actuator.Close(r.next)
}
