// Package archive copies event-log entries into Postgres. It is write-only:
// nothing is read back into the mirror.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"btmonitor/internal/eventlog"
)

const (
	DefaultQueueSize = 1024
	writeTimeout     = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS monitor_events (
	id          UUID PRIMARY KEY,
	level       TEXT NOT NULL,
	message     TEXT NOT NULL,
	server_ts   TEXT,
	received_at TIMESTAMPTZ NOT NULL
)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Archive queues entries and writes them from a single background worker.
type Archive struct {
	db  execer
	log *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan eventlog.Entry

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Open connects to Postgres using a connection string such as DATABASE_URL.
func Open(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func New(db *sql.DB, logger *zap.Logger, queueSize int) *Archive {
	return newArchive(db, logger, queueSize)
}

func newArchive(db execer, logger *zap.Logger, queueSize int) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Archive{
		db:    db,
		log:   logger.Named("archive"),
		queue: make(chan eventlog.Entry, queueSize),
	}
}

func (a *Archive) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create monitor_events: %w", err)
	}
	return nil
}

// Record queues e without blocking. It reports false when the queue is full
// or the archive is closed; the entry is then dropped.
func (a *Archive) Record(e eventlog.Entry) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- e:
		return true
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			a.log.Warn("archive queue full, dropping events", zap.Uint64("dropped", n))
		}
		return false
	}
}

// Run writes queued entries until Close drains the queue or ctx is cancelled.
func (a *Archive) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-a.queue:
			if !ok {
				return
			}
			if err := a.insert(ctx, e); err != nil {
				a.failed.Add(1)
				a.log.Warn("archive write failed", zap.Error(err))
				continue
			}
			a.written.Add(1)
		}
	}
}

// Close stops accepting entries. Run finishes what is already queued.
func (a *Archive) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
}

func (a *Archive) Written() uint64 { return a.written.Load() }
func (a *Archive) Dropped() uint64 { return a.dropped.Load() }
func (a *Archive) Failed() uint64  { return a.failed.Load() }

func (a *Archive) insert(ctx context.Context, e eventlog.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var serverTS sql.NullString
	if ts := e.TimestampText(); ts != "" {
		serverTS = sql.NullString{String: ts, Valid: true}
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO monitor_events (id, level, message, server_ts, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, e.ID.String(), e.Level, e.Message, serverTS, e.Received.UTC())
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}
