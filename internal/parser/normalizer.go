// Package parser turns raw log lines into typed events.
//
// Normalization is a pure function of (producer, line): header extraction,
// severity mapping, then a first-match walk over the producer's pattern
// table. It performs no I/O, which lets the tail reader and the backfill
// scanner share it and makes it directly testable.
package parser

import (
	"strings"
	"time"

	"github.com/mmdvm-dashboard/backend/internal/models"
	"github.com/mmdvm-dashboard/backend/internal/patterns"
)

// levelForCode maps the single-letter severity prefix of MMDVM-family logs
// to a normalized level.
var levelForCode = map[byte]models.Level{
	'M': models.LevelInfo,
	'I': models.LevelInfo,
	'S': models.LevelInfo,
	'D': models.LevelDebug,
	'W': models.LevelWarning,
	'E': models.LevelError,
	'F': models.LevelFatal,
}

// ParseHeader splits the mandatory "L: 2025-01-15 12:00:00.000 message"
// header off a log line. Returns false if the header does not parse.
func ParseHeader(line string) (models.RawLine, bool) {
	// Shortest valid line: "M: " + 23-char timestamp.
	if len(line) < 26 || line[1] != ':' {
		return models.RawLine{}, false
	}

	level, ok := levelForCode[line[0]]
	if !ok {
		return models.RawLine{}, false
	}

	rest := strings.TrimLeft(line[2:], " ")
	if len(rest) < 23 {
		return models.RawLine{}, false
	}

	ts, err := FastTimestamp(rest[:23])
	if err != nil {
		return models.RawLine{}, false
	}

	message := strings.TrimLeft(rest[23:], " ")
	if message == "" {
		return models.RawLine{}, false
	}

	return models.RawLine{Level: level, Timestamp: ts, Message: message}, true
}

// Normalize parses a line for the given producer and returns the typed
// event it carries, if any. A line whose header parses but whose message
// matches no pattern yields (nil, false); that is the common case, not an
// error.
func Normalize(producer models.Producer, line string) (models.Event, bool) {
	raw, ok := ParseHeader(line)
	if !ok {
		return nil, false
	}
	return Match(producer, raw)
}

// Match runs an already-split line against the producer's pattern table.
func Match(producer models.Producer, raw models.RawLine) (models.Event, bool) {
	for _, p := range patterns.ForProducer(producer) {
		if m := p.Regex.FindStringSubmatch(raw.Message); m != nil {
			return p.Build(m, raw.Timestamp), true
		}
	}
	return nil, false
}

// FastTimestamp parses "2006-01-02 15:04:05.000" without time.Parse.
// The format is fixed across every producer, and the readers call this for
// every line, so the manual parse is worth it.
func FastTimestamp(ts string) (time.Time, error) {
	if len(ts) < 19 {
		return time.Time{}, errTimestamp(ts)
	}

	year := parseInt4(ts[0:4])
	month := parseInt2(ts[5:7])
	day := parseInt2(ts[8:10])
	hour := parseInt2(ts[11:13])
	min := parseInt2(ts[14:16])
	sec := parseInt2(ts[17:19])

	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || min < 0 || min > 59 || sec < 0 || sec > 59 {
		// Fall back for oddly formatted edge cases.
		return time.Parse("2006-01-02 15:04:05.999999999", ts)
	}

	var nsec int
	if len(ts) > 20 && ts[19] == '.' {
		frac := ts[20:]
		fracLen := len(frac)
		if fracLen > 9 {
			frac = frac[:9]
			fracLen = 9
		}
		nsec = parseIntN(frac, fracLen)
		for i := fracLen; i < 9; i++ {
			nsec *= 10
		}
	}

	return time.Date(year, time.Month(month), day, hour, min, sec, nsec, time.Local), nil
}

type errTimestamp string

func (e errTimestamp) Error() string { return "bad timestamp: " + string(e) }

func parseInt2(s string) int {
	if len(s) != 2 {
		return -1
	}
	d1, d2 := s[0]-'0', s[1]-'0'
	if d1 > 9 || d2 > 9 {
		return -1
	}
	return int(d1)*10 + int(d2)
}

func parseInt4(s string) int {
	if len(s) != 4 {
		return -1
	}
	d1, d2, d3, d4 := s[0]-'0', s[1]-'0', s[2]-'0', s[3]-'0'
	if d1 > 9 || d2 > 9 || d3 > 9 || d4 > 9 {
		return -1
	}
	return int(d1)*1000 + int(d2)*100 + int(d3)*10 + int(d4)
}

func parseIntN(s string, n int) int {
	result := 0
	for i := 0; i < n; i++ {
		d := s[i] - '0'
		if d > 9 {
			return 0
		}
		result = result*10 + int(d)
	}
	return result
}
