package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeINI(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func hasString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

func TestReadMMDVMConfig(t *testing.T) {
	path := writeINI(t, "MMDVM.ini", `
[General]
Callsign=N0CALL
Id=1234567
Duplex=1

[Info]
RXFrequency=435000000
TXFrequency=435000000
Power=1
Location="Somewhere, USA"
Description="Test hotspot"
URL=https://example.com

[Log]
FilePath=/var/log/pi-star
FileRoot=MMDVM

[D-Star]
Enable=0

[DMR]
Enable=1
ColorCode=1

[System Fusion]
Enable=1

[P25]
Enable=1

[NXDN]
Enable=0

[DMR Network]
Enable=1
Address=127.0.0.1

[System Fusion Network]
Enable=1

[P25 Network]
Enable=0
`)

	cfg, err := ReadMMDVMConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, mode := range []string{"DMR", "YSF", "P25"} {
		if !hasString(cfg.EnabledModes, mode) {
			t.Errorf("expected mode %s enabled, got %v", mode, cfg.EnabledModes)
		}
	}
	for _, mode := range []string{"D-Star", "NXDN", "FM", "POCSAG"} {
		if hasString(cfg.EnabledModes, mode) {
			t.Errorf("mode %s should not be enabled", mode)
		}
	}
	if !hasString(cfg.EnabledNetworks, "DMR") || !hasString(cfg.EnabledNetworks, "YSF") {
		t.Errorf("expected DMR and YSF networks enabled, got %v", cfg.EnabledNetworks)
	}
	if hasString(cfg.EnabledNetworks, "P25") {
		t.Error("P25 network is disabled and should not be listed")
	}

	if cfg.LogDir != "/var/log/pi-star" {
		t.Errorf("unexpected log dir %q", cfg.LogDir)
	}
	if cfg.LogRoot != "MMDVM" {
		t.Errorf("unexpected log root %q", cfg.LogRoot)
	}

	if cfg.Station.Callsign != "N0CALL" {
		t.Errorf("unexpected callsign %q", cfg.Station.Callsign)
	}
	if cfg.Station.DMRID != "1234567" {
		t.Errorf("unexpected DMR ID %q", cfg.Station.DMRID)
	}
	if cfg.Station.Location != "Somewhere, USA" {
		t.Errorf("quotes not stripped from location: %q", cfg.Station.Location)
	}
}

func TestReadMMDVMConfigMissing(t *testing.T) {
	// Loose mode: a missing file parses as empty, nothing enabled.
	cfg, err := ReadMMDVMConfig(filepath.Join(t.TempDir(), "nope.ini"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.EnabledModes) != 0 || len(cfg.EnabledNetworks) != 0 {
		t.Errorf("expected nothing enabled, got %v / %v", cfg.EnabledModes, cfg.EnabledNetworks)
	}
	if cfg.LogDir != "/var/log/mmdvm" {
		t.Errorf("expected default log dir, got %q", cfg.LogDir)
	}
}

func TestReadDMRGatewayConfig(t *testing.T) {
	path := writeINI(t, "DMRGateway.ini", `
[General]
Timeout=10

[Log]
FilePath=/var/log/pi-star
FileRoot=DMRGateway

[DMR Network 1]
Enabled=1
Name=BrandMeister
Address=3102.master.brandmeister.network

[DMR Network 2]
Enabled=0
Name=DMR+

[XLX Network]
Enabled=1

[GPSD]
Enable=0
`)

	cfg, err := ReadDMRGatewayConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Enabled {
		t.Error("expected gateway enabled")
	}

	bm, ok := cfg.Features["BrandMeister"]
	if !ok {
		t.Fatalf("expected BrandMeister network, got %v", cfg.Features)
	}
	if bm.Kind != "network" || bm.Section != "DMR Network 1" {
		t.Errorf("unexpected BrandMeister feature %+v", bm)
	}

	if _, ok := cfg.Features["DMR+"]; ok {
		t.Error("disabled network should not be listed")
	}

	xlx, ok := cfg.Features["XLX Network"]
	if !ok {
		t.Fatal("expected XLX Network feature")
	}
	if xlx.Kind != "feature" {
		t.Errorf("XLX Network without DMR Network prefix is a feature, got %q", xlx.Kind)
	}

	if _, ok := cfg.Features["GPSD"]; ok {
		t.Error("disabled feature should not be listed")
	}

	if cfg.LogRoot != "DMRGateway" {
		t.Errorf("unexpected log root %q", cfg.LogRoot)
	}
}

func TestReadYSFGatewayConfig(t *testing.T) {
	path := writeINI(t, "YSFGateway.ini", `
[Network]
Startup=Alabama-Link
InactivityTimeout=10

[YSF Network]
Enable=1

[FCS Network]
Enable=1

[APRS]
Enable=1

[Log]
FileRoot=YSFGateway
`)

	cfg, err := ReadYSFGatewayConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	ysf, ok := cfg.Features["YSF Network"]
	if !ok {
		t.Fatal("expected YSF Network feature")
	}
	if ysf.Kind != "network" {
		t.Errorf("unexpected kind %q", ysf.Kind)
	}
	if ysf.StartupReflector != "Alabama-Link" {
		t.Errorf("expected startup reflector from [Network], got %q", ysf.StartupReflector)
	}

	fcs, ok := cfg.Features["FCS Network"]
	if !ok {
		t.Fatal("expected FCS Network feature")
	}
	if fcs.Kind != "network" || fcs.StartupReflector != "" {
		t.Errorf("unexpected FCS feature %+v", fcs)
	}

	if aprs, ok := cfg.Features["APRS"]; !ok || aprs.Kind != "feature" {
		t.Errorf("expected APRS feature, got %+v", cfg.Features)
	}
}

func TestReadYSFGatewayCommentedStartup(t *testing.T) {
	// A commented-out startup reflector must not leak through.
	path := writeINI(t, "YSFGateway.ini", `
[Network]
Startup=#Alabama-Link

[YSF Network]
Enable=1
`)

	cfg, err := ReadYSFGatewayConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Features["YSF Network"].StartupReflector; got != "" {
		t.Errorf("commented startup leaked through: %q", got)
	}
}

func TestReadP25GatewayConfig(t *testing.T) {
	path := writeINI(t, "P25Gateway.ini", `
[Network]
Enable=1
Static=10200

[Voice]
Enabled=1

[Log]
FileRoot=P25Gateway
`)

	cfg, err := ReadP25GatewayConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	net, ok := cfg.Features["Network"]
	if !ok {
		t.Fatal("expected Network feature")
	}
	if net.Kind != "network" || net.StaticReflector != "10200" {
		t.Errorf("unexpected network feature %+v", net)
	}
	if voice, ok := cfg.Features["Voice"]; !ok || voice.Kind != "feature" {
		t.Errorf("expected Voice feature, got %+v", cfg.Features)
	}
}

func TestReadNXDNGatewayConfig(t *testing.T) {
	path := writeINI(t, "NXDNGateway.ini", `
[Network]
Enable=1
`)

	cfg, err := ReadNXDNGatewayConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Enabled {
		t.Error("expected gateway enabled")
	}
	if net, ok := cfg.Features["NXDN Network"]; !ok || net.Kind != "network" {
		t.Errorf("expected NXDN Network feature, got %+v", cfg.Features)
	}
	if cfg.LogRoot != "NXDNGateway" {
		t.Errorf("unexpected log root %q", cfg.LogRoot)
	}
}

func TestReadNXDNGatewayDisabled(t *testing.T) {
	path := writeINI(t, "NXDNGateway.ini", `
[Network]
Enable=0
`)

	cfg, err := ReadNXDNGatewayConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enabled {
		t.Error("expected gateway disabled")
	}
	if len(cfg.Features) != 0 {
		t.Errorf("expected no features, got %v", cfg.Features)
	}
}
