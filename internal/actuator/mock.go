package actuator

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// TestableSerialPort implements SerialPorter with configurable behaviour for
// testing relay output without hardware.
type TestableSerialPort struct {
	mu sync.Mutex

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// WriteLatency adds a delay to each Write call
	WriteLatency time.Duration

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes the next Write accept only this many bytes
	ShortWrite int

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// WriteCalls records the number of Write calls
	WriteCalls int
}

// NewTestableSerialPort creates a new TestableSerialPort.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{WriteBuffer: bytes.NewBuffer(nil)}
}

// Write appends to the write buffer, optionally simulating latency and errors.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	if t.WriteLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.WriteLatency)
		t.mu.Lock()
	}

	if t.ShortWrite > 0 && t.ShortWrite < len(p) {
		n := t.ShortWrite
		t.ShortWrite = 0
		return t.WriteBuffer.Write(p[:n])
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// Lines returns the newline-terminated lines written so far.
func (t *TestableSerialPort) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var lines []string
	for _, l := range bytes.SplitAfter(t.WriteBuffer.Bytes(), []byte("\n")) {
		if len(l) > 0 {
			lines = append(lines, string(l))
		}
	}
	return lines
}

// IsClosed reports whether Close was called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}
