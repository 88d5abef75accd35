// Package livelog keeps a small ring of recent raw log lines for display.
//
// This is deliberately dumb: no state machine, only cheap mode/level
// tagging so the frontend can color lines. The real parsing happens in the
// normalizer; this buffer exists so the dashboard can show the raw stream.
package livelog

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// Entry is one display line.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
	Mode      string `json:"mode"`
	Level     string `json:"level"`
}

var modePatterns = []struct {
	mode  string
	regex *regexp.Regexp
}{
	{"DMR", regexp.MustCompile(`(?i)\bDMR(?:\sSlot\s[12])?\b`)},
	{"DSTAR", regexp.MustCompile(`(?i)\bD-?Star\b`)},
	{"YSF", regexp.MustCompile(`(?i)\b(?:YSF|System\s+Fusion)\b`)},
	{"P25", regexp.MustCompile(`(?i)\bP25\b`)},
	{"NXDN", regexp.MustCompile(`(?i)\bNXDN\b`)},
	{"FM", regexp.MustCompile(`(?i)\bFM\b`)},
	{"POCSAG", regexp.MustCompile(`(?i)\bPOCSAG\b`)},
}

var (
	errorPattern = regexp.MustCompile(`(?i)\b(?:ERROR|FATAL|FAIL)\b`)
	warnPattern  = regexp.MustCompile(`(?i)\b(?:WARN|WARNING)\b`)
	tsPattern    = regexp.MustCompile(`^[MDISEWF]:\s*(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2})`)
)

// Viewer is a concurrency-safe fixed-size line buffer.
type Viewer struct {
	mu       sync.Mutex
	buf      []Entry
	start    int
	count    int
	maxLines int
}

// NewViewer creates a viewer keeping at most maxLines lines.
func NewViewer(maxLines int) *Viewer {
	if maxLines < 1 {
		maxLines = 500
	}
	return &Viewer{buf: make([]Entry, maxLines), maxLines: maxLines}
}

// AddLine tags and buffers one raw line. Blank lines are dropped.
func (v *Viewer) AddLine(line, source string) {
	text := strings.TrimSpace(line)
	if text == "" {
		return
	}

	entry := Entry{
		Timestamp: extractTimestamp(text),
		Text:      text,
		Mode:      detectMode(text, source),
		Level:     detectLevel(text),
	}

	v.mu.Lock()
	idx := (v.start + v.count) % v.maxLines
	v.buf[idx] = entry
	if v.count < v.maxLines {
		v.count++
	} else {
		v.start = (v.start + 1) % v.maxLines
	}
	v.mu.Unlock()
}

// RecentLines returns the most recent count lines in arrival order.
func (v *Viewer) RecentLines(count int) []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := v.count
	if count > 0 && count < n {
		n = count
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		idx := (v.start + v.count - n + i) % v.maxLines
		out[i] = v.buf[idx]
	}
	return out
}

// Len reports the number of buffered lines.
func (v *Viewer) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.count
}

func extractTimestamp(line string) string {
	if m := tsPattern.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return time.Now().Format("2006-01-02 15:04:05")
}

func detectMode(line, source string) string {
	for _, p := range modePatterns {
		if p.regex.MatchString(line) {
			return p.mode
		}
	}
	switch {
	case strings.Contains(source, "DMRGateway"):
		return "DMR"
	case strings.Contains(source, "YSFGateway"):
		return "YSF"
	case strings.Contains(source, "P25Gateway"):
		return "P25"
	case strings.Contains(source, "NXDNGateway"):
		return "NXDN"
	}
	return "SYSTEM"
}

func detectLevel(line string) string {
	if errorPattern.MatchString(line) {
		return "ERROR"
	}
	if warnPattern.MatchString(line) {
		return "WARN"
	}
	return "INFO"
}

// ColorScheme is the mode/level palette the frontend renders with.
func ColorScheme() map[string]map[string]string {
	return map[string]map[string]string{
		"modes": {
			"DMR":    "#00ff00",
			"DSTAR":  "#00ffff",
			"YSF":    "#ffff00",
			"P25":    "#ff8800",
			"NXDN":   "#ff00ff",
			"FM":     "#ffffff",
			"POCSAG": "#8888ff",
			"SYSTEM": "#888888",
		},
		"levels": {
			"ERROR": "#ff0000",
			"WARN":  "#ffaa00",
			"INFO":  "#ffffff",
		},
	}
}
