// Package frame defines the per-cycle data handed from acquisition to the
// spray pipeline: interleaved RGB frames, the source contract that produces
// them, and the InvalidInput error shared by every geometry check.
package frame

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput reports malformed geometry or configuration. It is never
// silently corrected; callers match it with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// QueueCapacity is the capacity of the channel between an acquisition
// goroutine and the pipeline. A full queue blocks the producer.
const QueueCapacity = 2

// Frame is one interleaved 8-bit RGB image. It is produced by a Source,
// consumed once by the pipeline and then discarded.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Seq      uint64
	Captured time.Time
}

// New allocates a zeroed frame of the given size.
func New(width, height int) *Frame {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Frame{
		Data:   make([]byte, width*height*3),
		Width:  width,
		Height: height,
	}
}

// Pixels returns width*height.
func (f *Frame) Pixels() int {
	return f.Width * f.Height
}

// Validate checks that the buffer length equals width*height*3.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidInput)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: frame geometry %dx%d", ErrInvalidInput, f.Width, f.Height)
	}
	if want := f.Width * f.Height * 3; len(f.Data) != want {
		return fmt.Errorf("%w: rgb buffer has %d bytes, want %d for %dx%d",
			ErrInvalidInput, len(f.Data), want, f.Width, f.Height)
	}
	return nil
}

// Fill paints every pixel with the same colour.
func (f *Frame) Fill(r, g, b uint8) {
	for i := 0; i+2 < len(f.Data); i += 3 {
		f.Data[i] = r
		f.Data[i+1] = g
		f.Data[i+2] = b
	}
}

// SetPixel writes one pixel. Out of range coordinates are ignored.
func (f *Frame) SetPixel(x, y int, r, g, b uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := (y*f.Width + x) * 3
	f.Data[i] = r
	f.Data[i+1] = g
	f.Data[i+2] = b
}

// Source produces frames on a bounded channel.
//
// Start spawns at most one acquisition goroutine. The returned channel has
// capacity QueueCapacity and sends block when it is full, so a slow consumer
// back-pressures acquisition instead of dropping frames. The channel is
// closed when the source is exhausted or ctx is cancelled; a closed channel
// is the pipeline's normal shutdown signal. A Source must not be started
// twice.
type Source interface {
	Start(ctx context.Context) <-chan *Frame
}
