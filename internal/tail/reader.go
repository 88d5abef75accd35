// Package tail follows MMDVM-style dated log files and feeds parsed events
// into the state store.
//
// Each Reader owns exactly one log source. On startup it backfills state
// from historical files, then polls the current file for appended bytes.
// Rotation is detected by file truncation (size below the cursor) and by
// the dated filename rolling over at midnight.
package tail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmdvm-dashboard/backend/internal/backfill"
	"github.com/mmdvm-dashboard/backend/internal/livelog"
	"github.com/mmdvm-dashboard/backend/internal/models"
	"github.com/mmdvm-dashboard/backend/internal/parser"
	"github.com/mmdvm-dashboard/backend/internal/state"
)

const (
	// DefaultPoll is the steady-state poll interval.
	DefaultPoll = 500 * time.Millisecond
	// errBackoff is the poll interval after a read error.
	errBackoff = 5 * time.Second
	// pathRecheck is how often the expected dated filename is recomputed.
	pathRecheck = time.Minute
)

// Source describes one dated log stream, e.g. MMDVM-2026-08-31.log in Dir.
type Source struct {
	Name     string
	Producer models.Producer
	Dir      string
	FileRoot string
}

// PathForDay returns the expected log path for the given day.
func (s Source) PathForDay(day time.Time) string {
	name := fmt.Sprintf("%s-%s.log", s.FileRoot, day.Format("2006-01-02"))
	return filepath.Join(s.Dir, name)
}

// Flusher is the broadcast side the reader pokes once backfill completes.
type Flusher interface {
	Flush()
}

// Reader tails a single Source into the store and the live log buffer.
type Reader struct {
	source  Source
	store   *state.Store
	flusher Flusher
	live    *livelog.Viewer
	targets func() *backfill.Targets
	days    int
	poll    time.Duration
	log     *zap.Logger

	path   string
	cursor int64
	carry  []byte
}

// NewReader builds a reader for source. targets supplies the backfill
// targets for this producer; flusher and live may be nil.
func NewReader(source Source, store *state.Store, targets func() *backfill.Targets, flusher Flusher, live *livelog.Viewer, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{
		source:  source,
		store:   store,
		flusher: flusher,
		live:    live,
		targets: targets,
		days:    backfill.DefaultDayBound,
		poll:    DefaultPoll,
		log:     log.With(zap.String("source", source.Name)),
	}
}

// SetPoll overrides the poll interval; useful in tests.
func (r *Reader) SetPoll(d time.Duration) {
	if d > 0 {
		r.poll = d
	}
}

// SetDays overrides how many calendar days the startup backfill walks.
func (r *Reader) SetDays(days int) {
	if days > 0 {
		r.days = days
	}
}

// Run backfills, then tails the source until ctx is cancelled.
func (r *Reader) Run(ctx context.Context) {
	r.backfill(ctx)

	// Position at the end of today's file so only new lines are parsed;
	// backfill already covered the existing content.
	r.path = r.source.PathForDay(time.Now())
	if info, err := os.Stat(r.path); err == nil {
		r.cursor = info.Size()
		r.log.Info("tailing log", zap.String("path", r.path), zap.Int64("offset", r.cursor))
	} else {
		r.log.Info("waiting for log file", zap.String("path", r.path))
	}

	interval := r.poll
	lastPathCheck := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if time.Since(lastPathCheck) >= pathRecheck {
			lastPathCheck = time.Now()
			r.checkDailyRollover()
		}

		switch err := r.readNew(); {
		case err == nil:
			interval = r.poll
		case errors.Is(err, os.ErrNotExist):
			// Waiting: the periodic path check resumes us once the
			// file (or the next day's file) appears.
			interval = r.poll
		default:
			r.log.Warn("log read failed", zap.Error(err))
			interval = errBackoff
		}
	}
}

func (r *Reader) backfill(ctx context.Context) {
	if r.targets == nil {
		return
	}
	targets := r.targets()
	scanner := backfill.NewScanner(r.store, r.source.Producer, r.log)
	scanner.ScanDays(r.source.PathForDay, r.days, targets)
	if ctx.Err() != nil {
		return
	}
	if r.flusher != nil {
		r.flusher.Flush()
	}
}

// checkDailyRollover switches to the next dated file once it exists.
func (r *Reader) checkDailyRollover() {
	expected := r.source.PathForDay(time.Now())
	if expected == r.path {
		return
	}
	if _, err := os.Stat(expected); err != nil {
		return
	}
	// Drain what remains of the old file before switching.
	if err := r.readNew(); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.Warn("drain of rotated log failed", zap.Error(err))
	}
	r.log.Info("log rolled over", zap.String("path", expected))
	r.path = expected
	r.cursor = 0
	r.carry = nil
}

// readNew reads bytes appended since the cursor and processes complete lines.
func (r *Reader) readNew() error {
	info, err := os.Stat(r.path)
	if err != nil {
		return err
	}
	size := info.Size()
	if size < r.cursor {
		// Truncated or replaced in place; start over.
		r.log.Info("log truncated, restarting", zap.String("path", r.path))
		r.cursor = 0
		r.carry = nil
	}
	if size == r.cursor {
		return nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(r.cursor, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, size-r.cursor)
	n, err := io.ReadFull(f, buf)
	if n > 0 {
		r.cursor += int64(n)
		r.consume(buf[:n])
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// consume splits chunk into lines, keeping a trailing partial line for the
// next read.
func (r *Reader) consume(chunk []byte) {
	data := append(r.carry, chunk...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		r.handleLine(strings.TrimRight(string(data[:idx]), "\r"))
		data = data[idx+1:]
	}
	r.carry = append([]byte(nil), data...)
}

func (r *Reader) handleLine(line string) {
	if line == "" {
		return
	}
	if r.live != nil {
		r.live.AddLine(line, r.source.Name)
	}
	ev, ok := parser.Normalize(r.source.Producer, line)
	if !ok {
		return
	}
	r.store.Apply(ev)
}
