// Package journal records spray decisions to a sqlite database.
//
// A Journal owns one session row per run and a single writer goroutine. Wrap
// decorates an actuator so that every lane transition is queued to the
// writer without blocking the control loop; when the queue is full the event
// is dropped and counted.
package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/lanespray/internal/monitoring"
)

var log = monitoring.Component("journal")

// DefaultBuffer is the writer queue length used when Options.Buffer is 0.
const DefaultBuffer = 256

// Kind is the type of a lane transition.
type Kind string

const (
	KindFire    Kind = "fire"
	KindRelease Kind = "release"
)

// Event is one recorded lane transition.
type Event struct {
	ID        string
	SessionID string
	Seq       uint64
	Lane      int
	Kind      Kind
	Ratio     float32
	At        time.Time
}

// Session describes one run of the controller.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is open
	Lanes     int
	Locator   bool
	Note      string
}

// Options configures Open.
type Options struct {
	Lanes   int
	Locator bool
	Note    string
	Buffer  int
	Metrics *monitoring.Metrics
}

// Journal is a sqlite-backed spray event log.
type Journal struct {
	db      *sql.DB
	session string
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	done    chan struct{}
	dropped atomic.Uint64
	written atomic.Uint64
	pending atomic.Int64
}

// Open opens or creates the database at path, applies migrations and starts
// a new session.
func Open(path string, opts Options) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One connection serialises the writer goroutine and readers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal %s: %w", pragma, err)
		}
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	j := &Journal{
		db:      db,
		session: uuid.NewString(),
		metrics: opts.Metrics,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	_, err = db.Exec(
		`INSERT INTO sessions (session_id, started_at, lane_count, locator, note) VALUES (?, ?, ?, ?, ?)`,
		j.session, time.Now().UnixNano(), opts.Lanes, opts.Locator, opts.Note,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal session: %w", err)
	}
	go j.writer()
	log.Diagf("journal session %s opened at %s", j.session, path)
	return j, nil
}

// SessionID returns the id of the session opened by this Journal.
func (j *Journal) SessionID() string { return j.session }

// Dropped returns the number of events discarded because the queue was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Record queues e without blocking. It returns false when the event was
// dropped because the queue is full or the journal is closed.
func (j *Journal) Record(e Event) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return false
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.SessionID = j.session
	j.pending.Add(1)
	select {
	case j.events <- e:
		return true
	default:
		j.pending.Add(-1)
		if j.dropped.Add(1) == 1 {
			log.Opsf("journal queue full; dropping events")
		}
		j.metrics.ObserveJournalDrop()
		return false
	}
}

func (j *Journal) writer() {
	defer close(j.done)
	for e := range j.events {
		j.write(e)
		j.pending.Add(-1)
	}
}

func (j *Journal) write(e Event) {
	_, err := j.db.Exec(
		`INSERT INTO spray_events (event_id, session_id, seq, lane, kind, ratio, at_ns) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, int64(e.Seq), e.Lane, string(e.Kind), float64(e.Ratio), e.At.UnixNano(),
	)
	if err != nil {
		log.Opsf("journal write failed for lane %d %s: %v", e.Lane, e.Kind, err)
		return
	}
	j.written.Add(1)
}

// Events returns every event of a session in sequence order.
func (j *Journal) Events(sessionID string) ([]Event, error) {
	rows, err := j.db.Query(
		`SELECT event_id, session_id, seq, lane, kind, ratio, at_ns
		   FROM spray_events WHERE session_id = ? ORDER BY seq, lane`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query journal events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			seq   int64
			kind  string
			ratio float64
			atNs  int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &seq, &e.Lane, &kind, &ratio, &atNs); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		e.Seq = uint64(seq)
		e.Kind = Kind(kind)
		e.Ratio = float32(ratio)
		e.At = time.Unix(0, atNs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sessions lists every recorded session, oldest first.
func (j *Journal) Sessions() ([]Session, error) {
	rows, err := j.db.Query(
		`SELECT session_id, started_at, ended_at, lane_count, locator, note
		   FROM sessions ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("query journal sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &started, &ended, &s.Lanes, &s.Locator, &s.Note); err != nil {
			return nil, fmt.Errorf("scan journal session: %w", err)
		}
		s.StartedAt = time.Unix(0, started)
		if ended.Valid {
			s.EndedAt = time.Unix(0, ended.Int64)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Flush blocks until every queued event has been written or timeout
// elapses. It reports whether the queue drained.
func (j *Journal) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for j.pending.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// Close stops accepting events, drains the queue, ends the session and
// closes the database. It is safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.events)
	j.mu.Unlock()

	<-j.done
	_, endErr := j.db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, time.Now().UnixNano(), j.session)
	if n := j.dropped.Load(); n > 0 {
		log.Opsf("journal session %s closed with %d dropped events", j.session, n)
	}
	log.Diagf("journal session %s closed: %d events written", j.session, j.written.Load())
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	if endErr != nil {
		return fmt.Errorf("end journal session: %w", endErr)
	}
	return nil
}
