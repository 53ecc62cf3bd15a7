// Package actuator defines the hardware sink driven by the spray pipeline and
// the implementations the command wires in: a serial relay board, diagnostic
// and recording mocks, a locator mode that never sprays, and fan-out.
package actuator

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/lanespray/internal/frame"
)

// Actuator receives the per-lane ratios and on/off decisions for one frame.
//
// Apply is called once per frame from the pipeline goroutine. It must return
// promptly and must not sleep for a spray duration; timing belongs to the lane
// controller. Implementations must not retain ratios or states after Apply
// returns because the caller reuses them.
type Actuator interface {
	Apply(ratios []float32, states []bool) error
}

// ErrWriteFailed reports that the hardware accepted fewer bytes than sent.
var ErrWriteFailed = errors.New("actuator write failed")

// Error is returned by actuators when driving hardware fails. Lane is -1 when
// the failure is not specific to one lane.
type Error struct {
	Lane int
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Lane >= 0 {
		return fmt.Sprintf("actuator %s lane %d: %v", e.Op, e.Lane, e.Err)
	}
	return fmt.Sprintf("actuator %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func checkLanes(ratios []float32, states []bool) error {
	if len(ratios) != len(states) {
		return &Error{Lane: -1, Op: "apply", Err: fmt.Errorf("%w: %d ratios but %d states",
			frame.ErrInvalidInput, len(ratios), len(states))}
	}
	return nil
}

// Nop discards every frame.
type Nop struct{}

func (Nop) Apply(ratios []float32, states []bool) error {
	return checkLanes(ratios, states)
}

// Locator forwards ratios to Next with every lane forced off. It lets the
// decision stream be journaled or plotted while nothing sprays.
type Locator struct {
	Next Actuator

	off []bool
}

// NewLocator wraps next. A nil next behaves like Nop.
func NewLocator(next Actuator) *Locator {
	if next == nil {
		next = Nop{}
	}
	return &Locator{Next: next}
}

func (l *Locator) Apply(ratios []float32, states []bool) error {
	if err := checkLanes(ratios, states); err != nil {
		return err
	}
	if len(l.off) != len(states) {
		l.off = make([]bool, len(states))
	}
	return l.Next.Apply(ratios, l.off)
}

// Close closes Next if it is closable.
func (l *Locator) Close() error {
	return Close(l.Next)
}

// Multi applies every frame to each actuator in order. All actuators see
// every frame even when an earlier one fails; the errors are joined.
type Multi []Actuator

func (m Multi) Apply(ratios []float32, states []bool) error {
	var errs []error
	for _, a := range m {
		if err := a.Apply(ratios, states); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every closable member and joins the errors.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		if err := Close(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes a if it implements io.Closer.
func Close(a Actuator) error {
	if c, ok := a.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
