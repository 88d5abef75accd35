package config

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const processCacheTTL = time.Second

// ProcessChecker reports whether the monitored daemons are running. It asks
// systemctl first and falls back to scanning ps output, caching results
// briefly since the overlay refresh and the API may both ask per tick.
type ProcessChecker struct {
	mu        sync.Mutex
	cache     map[string]bool
	checkedAt time.Time

	// runCommand is swappable for tests.
	runCommand func(timeout time.Duration, name string, args ...string) (string, error)
}

// NewProcessChecker creates a checker backed by systemctl and ps.
func NewProcessChecker() *ProcessChecker {
	return &ProcessChecker{
		cache:      make(map[string]bool),
		runCommand: runCommand,
	}
}

func runCommand(timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

// CheckAll checks every named process in one pass and returns a map of
// name to running. Results are cached for one second.
func (p *ProcessChecker) CheckAll(names []string) map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.checkedAt) < processCacheTTL {
		results := make(map[string]bool, len(names))
		for _, name := range names {
			results[name] = p.cache[name]
		}
		return results
	}

	results := make(map[string]bool, len(names))

	for _, name := range names {
		out, err := p.runCommand(time.Second, "systemctl", "is-active", name)
		results[name] = err == nil && strings.TrimSpace(out) == "active"
	}

	// ps fallback covers daemons started outside systemd.
	if out, err := p.runCommand(2*time.Second, "ps", "aux"); err == nil {
		processList := strings.ToLower(out)
		for _, name := range names {
			if !results[name] && strings.Contains(processList, strings.ToLower(name)) {
				results[name] = true
			}
		}
	}

	p.cache = results
	p.checkedAt = time.Now()
	return results
}

// IsRunning checks a single process using the shared cache.
func (p *ProcessChecker) IsRunning(name string) bool {
	return p.CheckAll([]string{name})[name]
}
