// Package backfill reconstructs current state from historical logs.
//
// At startup a tail reader knows nothing: the repeater's mode was set
// hours ago, a gateway may have linked to its reflector days ago, and the
// only ground truth is whatever the rotated log files still hold. The
// scanner walks dated files backward from today, reading each file's most
// recent lines in reverse, and stops the moment every requested fact is
// resolved.
package backfill

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mmdvm-dashboard/backend/internal/models"
	"github.com/mmdvm-dashboard/backend/internal/parser"
	"github.com/mmdvm-dashboard/backend/internal/state"
)

// DefaultMaxLines is how many trailing lines of one file a scan inspects.
const DefaultMaxLines = 2000

// DefaultDayBound is how many calendar days back the walk goes.
const DefaultDayBound = 14

// Scanner scans one producer's historical logs into the state store.
// Events applied during a scan never trigger broadcasts; the caller
// flushes one snapshot when the scan is done.
type Scanner struct {
	store    *state.Store
	producer models.Producer
	maxLines int
	log      *zap.Logger
}

// NewScanner creates a scanner for one producer.
func NewScanner(store *state.Store, producer models.Producer, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		store:    store,
		producer: producer,
		maxLines: DefaultMaxLines,
		log:      log,
	}
}

// SetMaxLines overrides the per-file line budget.
func (s *Scanner) SetMaxLines(n int) {
	if n > 0 {
		s.maxLines = n
	}
}

// ScanFile inspects up to maxLines trailing lines of one file, newest
// first, resolving targets and applying resolving events to the store.
// It stops early once every target is resolved. A missing file is not an
// error; there is simply nothing to learn from it.
func (s *Scanner) ScanFile(path string, targets *Targets) error {
	lines, err := tailLines(path, s.maxLines)
	if err != nil {
		return err
	}

	for i := len(lines) - 1; i >= 0 && !targets.AllResolved(); i-- {
		ev, ok := parser.Normalize(s.producer, lines[i])
		if !ok {
			continue
		}
		// Only events that resolve a still-open target are applied:
		// anything older would overwrite newer state already recovered.
		if targets.Resolve(ev) {
			s.store.ApplyBackfill(ev)
		}
	}
	return nil
}

// ScanDays walks dated files backward from today for up to days days,
// stopping as soon as every target is resolved. pathForDay maps a date to
// that day's log path. Targets still unresolved at the end are explicitly
// marked unknown in the store.
func (s *Scanner) ScanDays(pathForDay func(day time.Time) string, days int, targets *Targets) {
	if days <= 0 {
		days = DefaultDayBound
	}

	today := time.Now()
	for i := 0; i < days && !targets.AllResolved(); i++ {
		day := today.AddDate(0, 0, -i)
		path := pathForDay(day)
		if err := s.ScanFile(path, targets); err != nil {
			s.log.Debug("backfill scan skipped file",
				zap.String("path", path), zap.Error(err))
		}
	}

	if unresolved := targets.Unresolved(); len(unresolved) > 0 {
		s.log.Info("backfill exhausted day bound",
			zap.String("producer", string(s.producer)),
			zap.Strings("unresolved", unresolved))
		targets.FinishUnresolved(s.store)
	}
}

// tailLines returns at most maxLines from the end of the file, in file
// order. A missing file yields no lines and no error.
func tailLines(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}
