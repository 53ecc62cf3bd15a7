package actuator

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/lanespray/internal/frame"
)

// SerialPorter is the minimal port surface the relay needs. It lets tests run
// without hardware.
type SerialPorter interface {
	io.Writer
	io.Closer
}

// MaxRelayChannel is the highest relay channel addressable by the 32 bit
// command mask.
const MaxRelayChannel = 31

// PortOptions describes the serial connection to the relay board.
type PortOptions struct {
	BaudRate int    `toml:"baud_rate"`
	DataBits int    `toml:"data_bits"`
	StopBits int    `toml:"stop_bits"`
	Parity   string `toml:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("%w: data bits %d must be between 5 and 8", frame.ErrInvalidInput, opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("%w: stop bits %d, supported values are 1 or 2", frame.ErrInvalidInput, opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("%w: parity %q, expected N, E, or O", frame.ErrInvalidInput, opts.Parity)
	}

	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the options into the go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// PortOpener opens a serial port. OpenSerialPort is the production opener.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)

// OpenSerialPort opens path with go.bug.st/serial.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// SerialRelay drives a relay board over a serial line. Every Apply writes the
// complete output state as one ASCII line, "M" followed by the upper-case hex
// channel mask and a newline, so a lost write is corrected by the next frame.
type SerialRelay struct {
	mu       sync.Mutex
	port     SerialPorter
	channels []int
	buf      []byte
	closed   bool
}

// IdentityChannels maps lane i to relay channel i.
func IdentityChannels(n int) []int {
	ch := make([]int, n)
	for i := range ch {
		ch[i] = i
	}
	return ch
}

// NewSerialRelay binds lane i to relay channel channels[i].
func NewSerialRelay(port SerialPorter, channels []int) (*SerialRelay, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil serial port", frame.ErrInvalidInput)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no relay channels", frame.ErrInvalidInput)
	}
	seen := make(map[int]int, len(channels))
	for lane, ch := range channels {
		if ch < 0 || ch > MaxRelayChannel {
			return nil, fmt.Errorf("%w: lane %d mapped to relay channel %d, valid range 0-%d",
				frame.ErrInvalidInput, lane, ch, MaxRelayChannel)
		}
		if prev, dup := seen[ch]; dup {
			return nil, fmt.Errorf("%w: lanes %d and %d share relay channel %d", frame.ErrInvalidInput, prev, lane, ch)
		}
		seen[ch] = lane
	}
	return &SerialRelay{
		port:     port,
		channels: append([]int(nil), channels...),
		buf:      make([]byte, 0, 16),
	}, nil
}

// OpenSerialRelay opens path with opener and wraps it in a SerialRelay. A nil
// opener uses OpenSerialPort.
func OpenSerialRelay(path string, opts PortOptions, channels []int, opener PortOpener) (*SerialRelay, error) {
	if opener == nil {
		opener = OpenSerialPort
	}
	port, err := opener(path, opts)
	if err != nil {
		return nil, err
	}
	relay, err := NewSerialRelay(port, channels)
	if err != nil {
		port.Close()
		return nil, err
	}
	return relay, nil
}

// Lanes returns the number of lanes the relay is bound to.
func (s *SerialRelay) Lanes() int { return len(s.channels) }

// Mask returns the relay bitmask for states.
func (s *SerialRelay) Mask(states []bool) uint32 {
	var m uint32
	for lane, on := range states {
		if on && lane < len(s.channels) {
			m |= 1 << uint(s.channels[lane])
		}
	}
	return m
}

func (s *SerialRelay) Apply(ratios []float32, states []bool) error {
	if err := checkLanes(ratios, states); err != nil {
		return err
	}
	if len(states) != len(s.channels) {
		return &Error{Lane: -1, Op: "apply", Err: fmt.Errorf("%w: %d states for %d relay channels",
			frame.ErrInvalidInput, len(states), len(s.channels))}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &Error{Lane: -1, Op: "write", Err: io.ErrClosedPipe}
	}
	return s.writeMask(s.Mask(states))
}

func (s *SerialRelay) writeMask(mask uint32) error {
	s.buf = append(s.buf[:0], 'M')
	s.buf = strconv.AppendUint(s.buf, uint64(mask), 16)
	s.buf = append(s.buf, '\n')
	for i := 1; i < len(s.buf)-1; i++ {
		if c := s.buf[i]; c >= 'a' && c <= 'f' {
			s.buf[i] = c - 'a' + 'A'
		}
	}

	n, err := s.port.Write(s.buf)
	if err != nil {
		return &Error{Lane: -1, Op: "write", Err: err}
	}
	if n != len(s.buf) {
		return &Error{Lane: -1, Op: "write", Err: fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, len(s.buf))}
	}
	return nil
}

// Close switches every relay off and closes the port. It is safe to call
// more than once.
func (s *SerialRelay) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	offErr := s.writeMask(0)
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("close serial port: %w", err)
	}
	return offErr
}
