package models

import (
	"fmt"
	"time"
)

// TransmissionRecord is one voice transmission, live or historical.
// Duration is zero until the transmission ends.
type TransmissionRecord struct {
	Mode        string    `json:"mode"`
	Slot        int       `json:"slot"` // 0 when the mode has no slots
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Network     string    `json:"network,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	Duration    float64   `json:"duration"` // seconds
	Active      bool      `json:"active"`
}

// Key identifies a transmission among the active set. A second start for
// the same key replaces the prior active record.
func (t TransmissionRecord) Key() string {
	return TransmissionKey(t.Mode, t.Slot, t.Source)
}

// TransmissionKey builds the active-set key for (mode, slot, source).
func TransmissionKey(mode string, slot int, source string) string {
	return fmt.Sprintf("%s/%d/%s", mode, slot, source)
}
