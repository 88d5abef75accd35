package livelog

import (
	"fmt"
	"testing"
)

func TestAddLineAndRecent(t *testing.T) {
	v := NewViewer(10)
	v.AddLine("M: 2025-11-02 10:30:15.123 DMR Slot 2, received network voice header from G4KLX to TG 235", "MMDVMHost")
	v.AddLine("   ", "MMDVMHost") // blank, dropped
	v.AddLine("E: 2025-11-02 10:30:16.000 Error returned from recvfrom", "YSFGateway")

	if v.Len() != 2 {
		t.Fatalf("expected 2 buffered lines, got %d", v.Len())
	}

	lines := v.RecentLines(0)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Mode != "DMR" || lines[0].Level != "INFO" {
		t.Errorf("unexpected tagging: %+v", lines[0])
	}
	if lines[0].Timestamp != "2025-11-02 10:30:15" {
		t.Errorf("expected header timestamp, got %q", lines[0].Timestamp)
	}
	if lines[1].Level != "ERROR" {
		t.Errorf("FAIL line should tag ERROR, got %+v", lines[1])
	}
}

func TestModeFromSourceFallback(t *testing.T) {
	v := NewViewer(10)
	v.AddLine("I: 2025-11-02 10:30:15.000 Starting the gateway", "P25Gateway")
	lines := v.RecentLines(1)
	if lines[0].Mode != "P25" {
		t.Errorf("expected mode from source name, got %q", lines[0].Mode)
	}
}

func TestRingEviction(t *testing.T) {
	v := NewViewer(5)
	for i := 0; i < 12; i++ {
		v.AddLine(fmt.Sprintf("I: 2025-11-02 10:00:%02d.000 line %d", i, i), "MMDVMHost")
	}
	if v.Len() != 5 {
		t.Fatalf("expected buffer capped at 5, got %d", v.Len())
	}
	lines := v.RecentLines(0)
	if lines[0].Text != "I: 2025-11-02 10:00:07.000 line 7" {
		t.Errorf("expected oldest retained line to be 7, got %q", lines[0].Text)
	}
	if lines[4].Text != "I: 2025-11-02 10:00:11.000 line 11" {
		t.Errorf("expected newest line 11, got %q", lines[4].Text)
	}
}

func TestRecentLinesLimit(t *testing.T) {
	v := NewViewer(10)
	for i := 0; i < 6; i++ {
		v.AddLine(fmt.Sprintf("I: 2025-11-02 10:00:%02d.000 line %d", i, i), "MMDVMHost")
	}
	lines := v.RecentLines(2)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[1].Text != "I: 2025-11-02 10:00:05.000 line 5" {
		t.Errorf("expected the two newest lines, got %q", lines[1].Text)
	}
}

func TestColorScheme(t *testing.T) {
	colors := ColorScheme()
	if colors["modes"]["DMR"] == "" {
		t.Error("expected DMR mode color")
	}
	if colors["levels"]["ERROR"] == "" {
		t.Error("expected ERROR level color")
	}
}
