// Package monitoring carries the logging streams and Prometheus metrics
// shared by every lanespray package.
//
// Logging is split into three streams:
//
//	ops    actionable warnings, errors, dropped data
//	diag   day-to-day diagnostics and tuning context
//	trace  per-frame telemetry
//
// Each stream is a zerolog logger that may be nil (disabled). Packages get a
// named handle with Component and log through it; writers can be swapped at
// any time with SetLogWriters.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type streams struct {
	ops   *zerolog.Logger
	diag  *zerolog.Logger
	trace *zerolog.Logger
}

var current atomic.Pointer[streams]

func init() {
	SetLogWriters(ConsoleWriter(os.Stderr), ConsoleWriter(os.Stderr), nil)
}

// SetLogWriters configures the three logging streams. Pass nil for any
// writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	current.Store(&streams{
		ops:   newLogger(ops, zerolog.WarnLevel, "ops"),
		diag:  newLogger(diag, zerolog.InfoLevel, "diag"),
		trace: newLogger(trace, zerolog.DebugLevel, "trace"),
	})
}

// SetLegacyLogger routes all three streams to a single writer.
// Pass nil to disable all logging.
func SetLegacyLogger(w io.Writer) {
	SetLogWriters(w, w, w)
}

func newLogger(w io.Writer, level zerolog.Level, stream string) *zerolog.Logger {
	if w == nil {
		return nil
	}
	l := zerolog.New(w).Level(level).With().Timestamp().Str("stream", stream).Logger()
	return &l
}

// ConsoleWriter wraps w in zerolog's human readable console format.
func ConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

// Level selects how many streams are enabled.
type Level int

const (
	LevelOps Level = iota
	LevelDiag
	LevelTrace
)

// ParseLevel accepts ops, diag or trace.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ops":
		return LevelOps, nil
	case "diag", "":
		return LevelDiag, nil
	case "trace":
		return LevelTrace, nil
	default:
		return LevelDiag, fmt.Errorf("unknown log level %q: expected ops, diag or trace", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelOps:
		return "ops"
	case LevelDiag:
		return "diag"
	case LevelTrace:
		return "trace"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Configure enables the streams up to level on w. When jsonOut is false the
// output uses the console format.
func Configure(level Level, w io.Writer, jsonOut bool) {
	if w == nil {
		SetLogWriters(nil, nil, nil)
		return
	}
	if !jsonOut {
		w = ConsoleWriter(w)
	}
	var diag, trace io.Writer
	if level >= LevelDiag {
		diag = w
	}
	if level >= LevelTrace {
		trace = w
	}
	SetLogWriters(w, diag, trace)
}

// Logger is a component-scoped handle on the shared streams.
type Logger struct {
	component string
}

// Component returns a logger that tags every event with name.
func Component(name string) Logger {
	return Logger{component: name}
}

func event(l *zerolog.Logger, lvl zerolog.Level, component string) *zerolog.Event {
	if l == nil {
		return nil
	}
	return l.WithLevel(lvl).Str("component", component)
}

// Ops starts an event on the ops stream. The event is nil, and every method
// on it a no-op, when the stream is disabled.
func (l Logger) Ops() *zerolog.Event {
	return event(current.Load().ops, zerolog.WarnLevel, l.component)
}

// Diag starts an event on the diag stream.
func (l Logger) Diag() *zerolog.Event {
	return event(current.Load().diag, zerolog.InfoLevel, l.component)
}

// Trace starts an event on the trace stream.
func (l Logger) Trace() *zerolog.Event {
	return event(current.Load().trace, zerolog.DebugLevel, l.component)
}

// TraceEnabled reports whether the trace stream is live, so callers can skip
// building per-frame fields.
func (l Logger) TraceEnabled() bool {
	return current.Load().trace != nil
}

// Opsf logs a formatted message to the ops stream.
func (l Logger) Opsf(format string, args ...interface{}) {
	l.Ops().Msgf(format, args...)
}

// Diagf logs a formatted message to the diag stream.
func (l Logger) Diagf(format string, args ...interface{}) {
	l.Diag().Msgf(format, args...)
}

// Tracef logs a formatted message to the trace stream.
func (l Logger) Tracef(format string, args ...interface{}) {
	l.Trace().Msgf(format, args...)
}
