package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanespray/internal/actuator"
	"github.com/banshee-data/lanespray/internal/frame"
)

// sliceSource emits a fixed list of frames.
type sliceSource struct {
	frames []*frame.Frame
}

func (s *sliceSource) Start(ctx context.Context) <-chan *frame.Frame {
	ch := make(chan *frame.Frame, frame.QueueCapacity)
	go func() {
		defer close(ch)
		for _, f := range s.frames {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func TestRunProcessesInOrderUntilClose(t *testing.T) {
	var frames []*frame.Frame
	for seq := uint64(1); seq <= 20; seq++ {
		frames = append(frames, laneFrame(seq, int(seq%4)))
	}
	bad := frame.New(4, 2)
	bad.Seq = 99
	bad.Data = bad.Data[:3]
	frames = append(frames[:10], append([]*frame.Frame{bad}, frames[10:]...)...)

	rec := &actuator.Recorder{}
	obs := &recordingObserver{}
	err := Run(context.Background(), &sliceSource{frames: frames}, rec, testConfig(), WithObserver(obs))
	require.NoError(t, err)

	require.Len(t, obs.seqs, 20)
	for i, seq := range obs.seqs {
		assert.Equal(t, uint64(i+1), seq, "frames must be processed in delivery order")
	}
	assert.Len(t, rec.Calls(), 20)
}

func TestRunStopsWhenSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &endlessSource{}
	done := make(chan error, 1)
	rec := &actuator.Recorder{}
	go func() {
		done <- Run(ctx, src, rec, testConfig())
	}()

	deadline := time.After(2 * time.Second)
	for len(rec.Calls()) < 5 {
		select {
		case <-deadline:
			t.Fatal("pipeline did not process frames")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the source closed")
	}
}

type endlessSource struct{}

func (endlessSource) Start(ctx context.Context) <-chan *frame.Frame {
	ch := make(chan *frame.Frame, frame.QueueCapacity)
	go func() {
		defer close(ch)
		for seq := uint64(1); ; seq++ {
			select {
			case ch <- laneFrame(seq, 0):
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Controller.Hysteresis = -1
	err := Run(context.Background(), &sliceSource{}, actuator.Nop{}, cfg)
	assert.ErrorIs(t, err, frame.ErrInvalidInput)
}
