package pipeline

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/lanespray/internal/actuator"
	"github.com/banshee-data/lanespray/internal/frame"
	"github.com/banshee-data/lanespray/internal/lanes"
	"github.com/banshee-data/lanespray/internal/monitoring"
	"github.com/banshee-data/lanespray/internal/vegetation"
)

// Observer receives the outcome of every processed frame. It runs on the
// pipeline goroutine and must not retain ratios or states.
type Observer interface {
	ObserveFrame(seq uint64, at time.Time, ratios []float32, states []bool)
}

// Clock returns the current time. Tests inject a fake to control dt.
type Clock func() time.Time

// Option configures a Processor.
type Option func(*Processor)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(p *Processor) { p.clock = c }
}

// WithMetrics records frame counters into m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithObserver adds an observer. Observers are called in the order added.
func WithObserver(o Observer) Option {
	return func(p *Processor) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// Result is the outcome of one Process call.
type Result struct {
	Seq    uint64
	Ratios []float32
	States []bool
	DtMs   uint32
	// ActuatorErr is set when the actuator rejected the frame. The
	// controller state has still advanced.
	ActuatorErr error
}

// Processor runs the per-frame stages synchronously. It owns the lane
// controller state and must be used from one goroutine.
type Processor struct {
	cfg        Config
	classifier *vegetation.Classifier
	ctrl       *lanes.Controller
	act        actuator.Actuator
	clock      Clock
	metrics    *monitoring.Metrics
	observers  []Observer

	mask   []byte
	ratios []float32
	states []bool
	prev   []bool
	last   time.Time
	primed bool
}

// NewProcessor validates cfg and builds the stages. act must not be nil.
func NewProcessor(cfg Config, act actuator.Actuator, opts ...Option) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if act == nil {
		return nil, fmt.Errorf("%w: nil actuator", frame.ErrInvalidInput)
	}
	classifier, err := vegetation.NewClassifier(cfg.Strategy, cfg.ExGThreshold, cfg.Hybrid)
	if err != nil {
		return nil, err
	}
	ctrl, err := lanes.NewController(cfg.Controller)
	if err != nil {
		return nil, err
	}
	n := cfg.Lanes()
	p := &Processor{
		cfg:        cfg,
		classifier: classifier,
		ctrl:       ctrl,
		act:        act,
		clock:      time.Now,
		ratios:     make([]float32, n),
		states:     make([]bool, n),
		prev:       make([]bool, n),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the processor configuration.
func (p *Processor) Config() Config { return p.cfg }

// LaneStates returns a snapshot of the controller state.
func (p *Processor) LaneStates() []lanes.LaneState { return p.ctrl.States() }

// Process runs one frame through every stage. An invalid frame returns an
// error wrapping frame.ErrInvalidInput and leaves all state untouched. An
// actuator failure is not returned as an error; it is logged, counted and
// reported in Result.ActuatorErr so the caller keeps feeding frames.
func (p *Processor) Process(f *frame.Frame) (Result, error) {
	start := p.clock()
	if err := f.Validate(); err != nil {
		p.metrics.ObserveRejected()
		return Result{}, err
	}
	if f.Width < p.cfg.Lanes() {
		p.metrics.ObserveRejected()
		return Result{}, fmt.Errorf("%w: frame width %d narrower than %d lanes",
			frame.ErrInvalidInput, f.Width, p.cfg.Lanes())
	}

	if cap(p.mask) < f.Pixels() {
		p.mask = make([]byte, f.Pixels())
	}
	mask := p.mask[:f.Pixels()]
	if err := p.classifier.Mask(f.Data, mask); err != nil {
		p.metrics.ObserveRejected()
		return Result{}, err
	}
	if err := lanes.ReduceLanesInto(p.ratios, mask, f.Width, f.Height, p.cfg.BottomFrac); err != nil {
		p.metrics.ObserveRejected()
		return Result{}, err
	}

	now := p.clock()
	dt := uint32(0)
	if p.primed {
		dt = elapsedMs(p.last, now)
	}
	p.last = now
	p.primed = true

	if err := p.ctrl.UpdateInto(p.states, p.ratios, dt); err != nil {
		// Lane counts are fixed at construction; this is unreachable with a
		// validated config.
		return Result{}, err
	}
	for lane, on := range p.states {
		if on && !p.prev[lane] {
			p.metrics.ObserveFire(lane)
		}
	}
	copy(p.prev, p.states)

	res := Result{
		Seq:    f.Seq,
		Ratios: append([]float32(nil), p.ratios...),
		States: append([]bool(nil), p.states...),
		DtMs:   dt,
	}
	if err := p.act.Apply(p.ratios, p.states); err != nil {
		res.ActuatorErr = err
		p.metrics.ObserveActuatorError()
		opsf("frame %d: actuator apply failed: %v", f.Seq, err)
	}
	for _, o := range p.observers {
		o.ObserveFrame(f.Seq, now, p.ratios, p.states)
	}
	p.metrics.ObserveFrame(p.clock().Sub(start), dt, p.states)
	if log.TraceEnabled() {
		log.Trace().Uint64("seq", f.Seq).Uint32("dt_ms", dt).
			Floats32("ratios", p.ratios).Interface("states", p.states).Msg("frame")
	}
	return res, nil
}

// elapsedMs truncates now-last to whole milliseconds. A clock that went
// backwards yields 0; gaps beyond MaxUint32 saturate.
func elapsedMs(last, now time.Time) uint32 {
	d := now.Sub(last)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ms)
}
