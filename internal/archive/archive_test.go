package archive

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"btmonitor/internal/eventlog"
)

type fakeExec struct {
	mu    sync.Mutex
	calls []fakeCall
	fail  error
	block chan struct{}
}

type fakeCall struct {
	query string
	args  []any
}

func (f *fakeExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{query: query, args: args})
	if f.fail != nil {
		return nil, f.fail
	}
	return driverResult{}, nil
}

func (f *fakeExec) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

type driverResult struct{}

func (driverResult) LastInsertId() (int64, error) { return 0, nil }
func (driverResult) RowsAffected() (int64, error) { return 1, nil }

func entry(msg string, ts string) eventlog.Entry {
	e := eventlog.Entry{
		ID:       uuid.New(),
		Level:    eventlog.LevelWarning,
		Message:  msg,
		Received: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if ts != "" {
		e.Timestamp = []byte(ts)
	}
	return e
}

func runArchive(a *Archive) (wait func()) {
	done := make(chan struct{})
	go func() {
		a.Run(context.Background())
		close(done)
	}()
	return func() { <-done }
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeExec{}
	a := newArchive(db, nil, 4)
	if err := a.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	calls := db.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].query, "CREATE TABLE IF NOT EXISTS monitor_events") {
		t.Fatalf("calls = %+v", calls)
	}

	db.fail = errors.New("permission denied")
	if err := a.EnsureSchema(context.Background()); err == nil || !errors.Is(err, db.fail) {
		t.Fatalf("EnsureSchema error = %v", err)
	}
}

func TestRecordAndDrain(t *testing.T) {
	db := &fakeExec{}
	a := newArchive(db, nil, 8)
	wait := runArchive(a)

	first := entry("monster wolf died", `"2024-05-01T12:00:09Z"`)
	if !a.Record(first) || !a.Record(entry("tick overrun", "")) {
		t.Fatalf("Record refused with room in the queue")
	}
	a.Close()
	wait()

	calls := db.Calls()
	if len(calls) != 2 || a.Written() != 2 {
		t.Fatalf("calls = %d written = %d", len(calls), a.Written())
	}
	args := calls[0].args
	if args[0] != first.ID.String() || args[1] != eventlog.LevelWarning || args[2] != "monster wolf died" {
		t.Fatalf("args = %v", args)
	}
	if ts := args[3].(sql.NullString); !ts.Valid || ts.String != "2024-05-01T12:00:09Z" {
		t.Fatalf("server_ts = %+v", ts)
	}
	if ts := calls[1].args[3].(sql.NullString); ts.Valid {
		t.Fatalf("missing timestamp stored as %+v", ts)
	}

	if a.Record(entry("late", "")) {
		t.Fatalf("Record accepted after Close")
	}
	a.Close()
}

func TestRecordDropsWhenFull(t *testing.T) {
	db := &fakeExec{block: make(chan struct{})}
	a := newArchive(db, nil, 2)

	// No worker yet, so the queue fills.
	for i := 0; i < 2; i++ {
		if !a.Record(entry("queued", "")) {
			t.Fatalf("entry %d refused", i)
		}
	}
	if a.Record(entry("overflow", "")) {
		t.Fatalf("Record accepted past capacity")
	}
	if a.Dropped() != 1 {
		t.Fatalf("Dropped = %d", a.Dropped())
	}

	close(db.block)
	wait := runArchive(a)
	a.Close()
	wait()
	if a.Written() != 2 {
		t.Fatalf("Written = %d", a.Written())
	}
}

func TestWriteFailureIsCounted(t *testing.T) {
	db := &fakeExec{fail: errors.New("connection refused")}
	a := newArchive(db, nil, 2)
	wait := runArchive(a)
	a.Record(entry("x", ""))
	a.Close()
	wait()
	if a.Failed() != 1 || a.Written() != 0 {
		t.Fatalf("Failed = %d Written = %d", a.Failed(), a.Written())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a := newArchive(&fakeExec{}, nil, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run ignored cancellation")
	}
}
