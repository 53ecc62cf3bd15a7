package pipeline

import (
	"context"
	"errors"

	"github.com/banshee-data/lanespray/internal/actuator"
	"github.com/banshee-data/lanespray/internal/frame"
)

// Run starts src and processes its frames on the calling goroutine until
// the source closes its channel. Cancelling ctx stops the source, which then
// closes the channel; Run has no cancellation of its own. A closed channel
// is normal shutdown and Run returns nil.
func (p *Processor) Run(ctx context.Context, src frame.Source) error {
	if src == nil {
		return errors.New("pipeline: nil frame source")
	}
	frames := src.Start(ctx)
	var processed, rejected, actErrs uint64
	for f := range frames {
		res, err := p.Process(f)
		if err != nil {
			rejected++
			opsf("frame %d rejected: %v", seqOf(f), err)
			continue
		}
		processed++
		if res.ActuatorErr != nil {
			actErrs++
		}
	}
	diagf("frame source closed: processed=%d rejected=%d actuator_errors=%d", processed, rejected, actErrs)
	return nil
}

// Run builds a Processor for cfg and act and runs it against src.
func Run(ctx context.Context, src frame.Source, act actuator.Actuator, cfg Config, opts ...Option) error {
	p, err := NewProcessor(cfg, act, opts...)
	if err != nil {
		return err
	}
	diagf("pipeline starting: lanes=%d strategy=%v bottom_frac=%.2f", cfg.Lanes(), cfg.Strategy, cfg.BottomFrac)
	return p.Run(ctx, src)
}

func seqOf(f *frame.Frame) uint64 {
	if f == nil {
		return 0
	}
	return f.Seq
}
