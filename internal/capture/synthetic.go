package capture

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banshee-data/lanespray/internal/frame"
)

// Pattern selects what a Synthetic source draws.
type Pattern int

const (
	// PatternAlternate toggles between an all-green and an all-red frame.
	PatternAlternate Pattern = iota
	// PatternStripe sweeps a green vertical stripe across a brown field.
	PatternStripe
)

// ParsePattern accepts "alternate" or "stripe".
func ParsePattern(s string) (Pattern, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alternate", "":
		return PatternAlternate, nil
	case "stripe":
		return PatternStripe, nil
	default:
		return 0, fmt.Errorf("%w: unknown synthetic pattern %q", frame.ErrInvalidInput, s)
	}
}

func (p Pattern) String() string {
	switch p {
	case PatternAlternate:
		return "alternate"
	case PatternStripe:
		return "stripe"
	default:
		return fmt.Sprintf("Pattern(%d)", int(p))
	}
}

// Synthetic generates frames of a fixed size.
type Synthetic struct {
	Width    int
	Height   int
	Interval time.Duration // delay between frames; 0 sends as fast as the consumer accepts
	Frames   int           // number of frames to emit; 0 is unbounded
	Pattern  Pattern

	started atomic.Bool
}

// NewSynthetic returns a source with a 33ms frame interval.
func NewSynthetic(width, height int, pattern Pattern) *Synthetic {
	return &Synthetic{Width: width, Height: height, Interval: 33 * time.Millisecond, Pattern: pattern}
}

// Start implements frame.Source.
func (s *Synthetic) Start(ctx context.Context) <-chan *frame.Frame {
	ch := make(chan *frame.Frame, frame.QueueCapacity)
	if !s.started.CompareAndSwap(false, true) {
		log.Opsf("synthetic source started twice")
		close(ch)
		return ch
	}
	if s.Width <= 0 || s.Height <= 0 {
		log.Opsf("synthetic source has invalid geometry %dx%d", s.Width, s.Height)
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)
		var tick <-chan time.Time
		if s.Interval > 0 {
			ticker := time.NewTicker(s.Interval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for seq := uint64(1); s.Frames == 0 || seq <= uint64(s.Frames); seq++ {
			f := s.render(seq)
			f.Captured = time.Now()
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			}
		}
		log.Diagf("synthetic source finished after %d frames", s.Frames)
	}()
	return ch
}

func (s *Synthetic) render(seq uint64) *frame.Frame {
	f := frame.New(s.Width, s.Height)
	f.Seq = seq
	switch s.Pattern {
	case PatternStripe:
		f.Fill(110, 80, 60)
		stripe := s.Width / 8
		if stripe < 1 {
			stripe = 1
		}
		x0 := int((seq - 1) * uint64(stripe) % uint64(s.Width))
		for y := 0; y < s.Height; y++ {
			for x := x0; x < x0+stripe && x < s.Width; x++ {
				f.SetPixel(x, y, 40, 200, 40)
			}
		}
	default:
		if seq%2 == 1 {
			f.Fill(0, 255, 0)
		} else {
			f.Fill(255, 0, 0)
		}
	}
	return f
}
