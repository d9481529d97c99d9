package eventlog

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

const DefaultCapacity = 500

// Entry is a human-readable notification. Entries are never modified after
// they are appended.
type Entry struct {
	ID      uuid.UUID `json:"id"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	// Timestamp is the server-supplied value, kept verbatim.
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Received  time.Time       `json:"received"`
}

// TimestampText renders the server timestamp for display.
func (e Entry) TimestampText() string {
	if len(e.Timestamp) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Timestamp, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(e.Timestamp))
}

// Log is an append-only ring of entries. When full, the oldest entry is
// evicted. A capacity of zero or less keeps every entry.
type Log struct {
	buf      []Entry
	start    int
	n        int
	capacity int
	dropped  uint64

	now func() time.Time
}

func New(capacity int) *Log {
	l := &Log{capacity: capacity, now: time.Now}
	if capacity > 0 {
		l.buf = make([]Entry, capacity)
	}
	return l
}

// Append stores e, filling ID and Received when unset, and returns the stored entry.
func (l *Log) Append(e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Received.IsZero() {
		e.Received = l.now()
	}

	if l.capacity <= 0 {
		l.buf = append(l.buf, e)
		l.n++
		return e
	}
	if l.n < l.capacity {
		l.buf[(l.start+l.n)%l.capacity] = e
		l.n++
		return e
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % l.capacity
	l.dropped++
	return e
}

// Entries returns a copy, oldest first.
func (l *Log) Entries() []Entry {
	out := make([]Entry, l.n)
	if l.capacity <= 0 {
		copy(out, l.buf)
		return out
	}
	for i := 0; i < l.n; i++ {
		out[i] = l.buf[(l.start+i)%l.capacity]
	}
	return out
}

func (l *Log) Len() int { return l.n }

// Dropped counts entries evicted to respect the capacity.
func (l *Log) Dropped() uint64 { return l.dropped }
