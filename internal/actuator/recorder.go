package actuator

import "sync"

// Call is one recorded Apply invocation.
type Call struct {
	Ratios []float32
	States []bool
}

// Recorder is an Actuator that records every call. It is safe for concurrent
// use and is intended for tests.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	errs   map[int]error
	closed bool
}

// FailOn makes the n-th Apply call (zero based) return err. The call is
// still recorded.
func (r *Recorder) FailOn(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errs == nil {
		r.errs = make(map[int]error)
	}
	r.errs[n] = err
}

func (r *Recorder) Apply(ratios []float32, states []bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.calls)
	r.calls = append(r.calls, Call{
		Ratios: append([]float32(nil), ratios...),
		States: append([]bool(nil), states...),
	})
	return r.errs[n]
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// States returns only the recorded state vectors.
func (r *Recorder) States() [][]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]bool, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.States
	}
	return out
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
