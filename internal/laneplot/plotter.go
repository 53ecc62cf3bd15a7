// Package laneplot records per-lane coverage ratios and valve states during a
// run and renders them as PNG time series after the run ends.
package laneplot

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/lanespray/internal/monitoring"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var log = monitoring.Component("laneplot")

const (
	// DefaultMaxSamples bounds memory for long runs; later frames are counted
	// but not stored.
	DefaultMaxSamples = 100_000

	RatiosFile = "lane_ratios.png"
	StatesFile = "lane_states.png"
)

// Sample is one recorded frame.
type Sample struct {
	Seq    uint64
	At     time.Time
	Ratios []float32
	States []bool
}

// LaneSummary aggregates one lane over the recorded samples.
type LaneSummary struct {
	Lane      int
	MeanRatio float64
	MaxRatio  float64
	DutyCycle float64 // fraction of frames with the valve on
	Fires     int     // off->on transitions
}

// Plotter collects samples from the pipeline. It is safe for concurrent use;
// ObserveFrame is called from the pipeline goroutine while Summary may be read
// from elsewhere.
type Plotter struct {
	mu         sync.Mutex
	lanes      int
	maxSamples int
	minRatio   float64
	samples    []Sample
	skipped    int
	truncated  int
}

// New returns a Plotter for n lanes. minRatio, when positive, is drawn as a
// reference line on the ratio plot.
func New(n int, minRatio float64) *Plotter {
	return &Plotter{
		lanes:      n,
		maxSamples: DefaultMaxSamples,
		minRatio:   minRatio,
	}
}

// SetMaxSamples changes the storage cap. Zero or less means unbounded.
func (p *Plotter) SetMaxSamples(n int) {
	p.mu.Lock()
	p.maxSamples = n
	p.mu.Unlock()
}

// ObserveFrame copies ratios and states. Frames with the wrong lane count are
// skipped.
func (p *Plotter) ObserveFrame(seq uint64, at time.Time, ratios []float32, states []bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(ratios) != p.lanes || len(states) != p.lanes {
		p.skipped++
		if p.skipped == 1 {
			log.Opsf("frame %d: got %d ratios/%d states, want %d lanes; not plotted",
				seq, len(ratios), len(states), p.lanes)
		}
		return
	}
	if p.maxSamples > 0 && len(p.samples) >= p.maxSamples {
		p.truncated++
		if p.truncated == 1 {
			log.Diagf("plot buffer full at %d samples", p.maxSamples)
		}
		return
	}
	p.samples = append(p.samples, Sample{
		Seq:    seq,
		At:     at,
		Ratios: append([]float32(nil), ratios...),
		States: append([]bool(nil), states...),
	})
}

// Len returns the number of stored samples.
func (p *Plotter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.samples)
}

// Skipped returns how many frames were not stored, either for a lane count
// mismatch or because the buffer was full.
func (p *Plotter) Skipped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped + p.truncated
}

// Summary returns one entry per lane. With no samples every value is zero.
func (p *Plotter) Summary() []LaneSummary {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]LaneSummary, p.lanes)
	if len(p.samples) == 0 {
		for lane := range out {
			out[lane].Lane = lane
		}
		return out
	}

	ratios := make([]float64, len(p.samples))
	on := make([]float64, len(p.samples))
	for lane := range out {
		fires := 0
		prev := false
		for i, s := range p.samples {
			ratios[i] = float64(s.Ratios[lane])
			on[i] = 0
			if s.States[lane] {
				on[i] = 1
				if !prev {
					fires++
				}
			}
			prev = s.States[lane]
		}
		out[lane] = LaneSummary{
			Lane:      lane,
			MeanRatio: stat.Mean(ratios, nil),
			MaxRatio:  floats.Max(ratios),
			DutyCycle: floats.Sum(on) / float64(len(on)),
			Fires:     fires,
		}
	}
	return out
}

// GeneratePlots writes RatiosFile and StatesFile into dir. It returns the
// number of files written; with no samples nothing is written.
func (p *Plotter) GeneratePlots(dir string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if dir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(p.samples) == 0 {
		return 0, nil
	}

	colors := generateColors(p.lanes)
	start := p.samples[0].At

	pRatio := plot.New()
	pRatio.Title.Text = "Lane coverage ratio"
	pRatio.X.Label.Text = "Time (s)"
	pRatio.Y.Label.Text = "Green fraction"
	pRatio.Y.Min = 0

	pState := plot.New()
	pState.Title.Text = "Valve state"
	pState.X.Label.Text = "Time (s)"
	pState.Y.Label.Text = "Lane"

	for lane := 0; lane < p.lanes; lane++ {
		ratioPts := make(plotter.XYs, len(p.samples))
		statePts := make(plotter.XYs, len(p.samples))
		for i, s := range p.samples {
			x := s.At.Sub(start).Seconds()
			ratioPts[i] = plotter.XY{X: x, Y: float64(s.Ratios[lane])}
			// Offset each lane so the step traces stack without overlapping.
			y := float64(lane)
			if s.States[lane] {
				y += 0.8
			}
			statePts[i] = plotter.XY{X: x, Y: y}
		}
		label := fmt.Sprintf("lane %d", lane)

		ratioLine, err := plotter.NewLine(ratioPts)
		if err != nil {
			return 0, err
		}
		ratioLine.Color = colors[lane]
		ratioLine.Width = vg.Points(1)
		pRatio.Add(ratioLine)
		pRatio.Legend.Add(label, ratioLine)

		stateLine, err := plotter.NewLine(statePts)
		if err != nil {
			return 0, err
		}
		stateLine.Color = colors[lane]
		stateLine.Width = vg.Points(1)
		stateLine.StepStyle = plotter.PostStep
		pState.Add(stateLine)
		pState.Legend.Add(label, stateLine)
	}

	if p.minRatio > 0 {
		end := p.samples[len(p.samples)-1].At.Sub(start).Seconds()
		ref, err := plotter.NewLine(plotter.XYs{{X: 0, Y: p.minRatio}, {X: end, Y: p.minRatio}})
		if err != nil {
			return 0, err
		}
		ref.Color = color.Gray{Y: 96}
		ref.Width = vg.Points(1)
		ref.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		pRatio.Add(ref)
		pRatio.Legend.Add("min ratio", ref)
	}

	for _, pl := range []*plot.Plot{pRatio, pState} {
		pl.Legend.Top = true
		pl.Legend.Left = false
		pl.Legend.XOffs = -10
		pl.Legend.YOffs = -10
	}

	if err := pRatio.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(dir, RatiosFile)); err != nil {
		return 0, fmt.Errorf("save ratio plot: %w", err)
	}
	if err := pState.Save(14*vg.Inch, 6*vg.Inch, filepath.Join(dir, StatesFile)); err != nil {
		return 1, fmt.Errorf("save state plot: %w", err)
	}
	return 2, nil
}

// generateColors spreads n hues evenly around the HSL wheel.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
