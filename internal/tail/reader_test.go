package tail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmdvm-dashboard/backend/internal/backfill"
	"github.com/mmdvm-dashboard/backend/internal/livelog"
	"github.com/mmdvm-dashboard/backend/internal/models"
	"github.com/mmdvm-dashboard/backend/internal/state"
)

type flushCounter struct{ flushes int }

func (f *flushCounter) Flush() { f.flushes++ }

func testSource(dir string) Source {
	return Source{Name: "MMDVMHost", Producer: models.ProducerMMDVMHost, Dir: dir, FileRoot: "MMDVM"}
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatal(err)
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPathForDay(t *testing.T) {
	src := testSource("/var/log/mmdvm")
	day := time.Date(2025, 11, 2, 14, 0, 0, 0, time.Local)
	want := filepath.Join("/var/log/mmdvm", "MMDVM-2025-11-02.log")
	if got := src.PathForDay(day); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestReaderBackfillsThenTails(t *testing.T) {
	dir := t.TempDir()
	src := testSource(dir)
	today := src.PathForDay(time.Now())

	// Pre-existing content must be learned via backfill, not re-parsed by
	// the tail loop.
	appendLine(t, today, "M: 2025-11-02 08:00:00.000 Mode set to DMR")

	store := state.New()
	flusher := &flushCounter{}
	r := NewReader(src, store, backfill.HostTargets, flusher, nil, nil)
	r.SetPoll(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	if !waitFor(t, time.Second, func() bool { return store.CurrentMode() == "DMR" }) {
		t.Fatalf("backfill did not recover mode, got %s", store.CurrentMode())
	}
	if flusher.flushes != 1 {
		t.Errorf("expected one flush after backfill, got %d", flusher.flushes)
	}

	// A newly appended line is picked up by polling.
	appendLine(t, today, "M: 2025-11-02 09:00:00.000 Mode set to YSF")
	if !waitFor(t, time.Second, func() bool { return store.CurrentMode() == "YSF" }) {
		t.Fatalf("tail did not pick up appended line, mode=%s", store.CurrentMode())
	}
}

func TestReaderBackfillDayBound(t *testing.T) {
	dir := t.TempDir()
	src := testSource(dir)
	twoDaysAgo := time.Now().AddDate(0, 0, -2)
	appendLine(t, src.PathForDay(twoDaysAgo),
		fmt.Sprintf("M: %s Mode set to DMR", twoDaysAgo.Format("2006-01-02 15:04:05.000")))

	run := func(days int) string {
		store := state.New()
		r := NewReader(src, store, backfill.HostTargets, nil, nil, nil)
		r.SetPoll(10 * time.Millisecond)
		r.SetDays(days)
		ctx, cancel := context.WithCancel(context.Background())
		go r.Run(ctx)
		// Backfill runs synchronously before the first poll, so a short
		// wait is enough either way.
		waitFor(t, 300*time.Millisecond, func() bool { return store.CurrentMode() == "DMR" })
		cancel()
		return store.CurrentMode()
	}

	if got := run(2); got != "IDLE" {
		t.Errorf("2-day bound should not reach a file from two days ago, got %s", got)
	}
	if got := run(3); got != "DMR" {
		t.Errorf("3-day bound should recover the mode, got %s", got)
	}
}

func TestReaderHandlesTruncation(t *testing.T) {
	dir := t.TempDir()
	src := testSource(dir)
	today := src.PathForDay(time.Now())
	appendLine(t, today, "M: 2025-11-02 08:00:00.000 Mode set to DMR")

	store := state.New()
	r := NewReader(src, store, nil, nil, nil, nil)
	r.SetPoll(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	if !waitFor(t, time.Second, func() bool { return store.CurrentMode() == "IDLE" }) {
		t.Fatal("reader did not start")
	}

	// Truncate in place, as logrotate's copytruncate does, then write a
	// fresh line. The cursor must reset and the new line must be seen.
	if err := os.Truncate(today, 0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	appendLine(t, today, "M: 2025-11-02 09:00:00.000 Mode set to P25")

	if !waitFor(t, time.Second, func() bool { return store.CurrentMode() == "P25" }) {
		t.Fatalf("tail did not recover after truncation, mode=%s", store.CurrentMode())
	}
}

func TestReaderWaitsForMissingFile(t *testing.T) {
	dir := t.TempDir()
	src := testSource(dir)

	store := state.New()
	live := livelog.NewViewer(10)
	r := NewReader(src, store, nil, nil, live, nil)
	r.SetPoll(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	// The file appears after startup; a live reader must pick it up once
	// the size grows past the (zero) cursor.
	today := src.PathForDay(time.Now())
	appendLine(t, today, "M: 2025-11-02 09:00:00.000 Mode set to NXDN")

	if !waitFor(t, time.Second, func() bool { return store.CurrentMode() == "NXDN" }) {
		t.Fatalf("reader did not resume when file appeared, mode=%s", store.CurrentMode())
	}
	if !waitFor(t, time.Second, func() bool { return live.Len() == 1 }) {
		t.Errorf("expected line in live log buffer, got %d", live.Len())
	}
}

func TestReaderSkipsPartialLines(t *testing.T) {
	dir := t.TempDir()
	src := testSource(dir)
	today := src.PathForDay(time.Now())
	appendLine(t, today, "M: 2025-11-02 08:00:00.000 startup noise")

	store := state.New()
	r := NewReader(src, store, nil, nil, nil, nil)
	r.SetPoll(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Write a line in two chunks with no newline between polls. Nothing
	// must be parsed until the newline lands.
	f, err := os.OpenFile(today, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(f, "M: 2025-11-02 09:00:00.000 Mode set")
	f.Close()
	time.Sleep(50 * time.Millisecond)
	if store.CurrentMode() != "IDLE" {
		t.Fatalf("partial line must not be parsed, mode=%s", store.CurrentMode())
	}

	appendLine(t, today, " to DMR")
	if !waitFor(t, time.Second, func() bool { return store.CurrentMode() == "DMR" }) {
		t.Fatalf("completed line was not parsed, mode=%s", store.CurrentMode())
	}
}
