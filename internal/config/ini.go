package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/mmdvm-dashboard/backend/internal/models"
)

// iniLoadOptions tolerates the quirks of real MMDVM configs: duplicate
// keys, commented-out junk, missing files.
var iniLoadOptions = ini.LoadOptions{
	Loose:                   true,
	AllowShadows:            true,
	SkipUnrecognizableLines: true,
}

// modeSections maps MMDVM.ini mode section names to dashboard mode labels.
var modeSections = []struct {
	section string
	mode    string
}{
	{"D-Star", "D-Star"},
	{"DMR", "DMR"},
	{"System Fusion", "YSF"},
	{"P25", "P25"},
	{"NXDN", "NXDN"},
	{"POCSAG", "POCSAG"},
	{"FM", "FM"},
}

// MMDVMConfig is the parsed view of MMDVM.ini.
type MMDVMConfig struct {
	Path            string
	EnabledModes    []string
	EnabledNetworks []string
	LogDir          string
	LogRoot         string
	Station         models.StationInfo
}

// ReadMMDVMConfig parses MMDVM.ini. A missing file yields an empty config
// rather than an error: the dashboard still runs, showing nothing enabled.
func ReadMMDVMConfig(path string) (*MMDVMConfig, error) {
	f, err := ini.LoadSources(iniLoadOptions, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	cfg := &MMDVMConfig{
		Path:    path,
		LogDir:  "/var/log/mmdvm",
		LogRoot: "MMDVM",
	}

	for _, ms := range modeSections {
		if sec, err := f.GetSection(ms.section); err == nil {
			if sec.Key("Enable").MustBool(false) {
				cfg.EnabledModes = append(cfg.EnabledModes, ms.mode)
			}
		}
		if sec, err := f.GetSection(ms.section + " Network"); err == nil {
			if sec.Key("Enable").MustBool(false) {
				cfg.EnabledNetworks = append(cfg.EnabledNetworks, ms.mode)
			}
		}
	}

	if sec, err := f.GetSection("Log"); err == nil {
		cfg.LogDir = sec.Key("FilePath").MustString(cfg.LogDir)
		cfg.LogRoot = sec.Key("FileRoot").MustString(cfg.LogRoot)
	}

	if sec, err := f.GetSection("General"); err == nil {
		cfg.Station.Callsign = unquote(sec.Key("Callsign").String())
		cfg.Station.DMRID = unquote(sec.Key("Id").String())
	}
	if sec, err := f.GetSection("Info"); err == nil {
		cfg.Station.RXFrequency = sec.Key("RXFrequency").String()
		cfg.Station.TXFrequency = sec.Key("TXFrequency").String()
		cfg.Station.Power = sec.Key("Power").String()
		cfg.Station.Location = unquote(sec.Key("Location").String())
		cfg.Station.Description = unquote(sec.Key("Description").String())
		cfg.Station.URL = sec.Key("URL").String()
	}

	return cfg, nil
}

// GatewayConfig is the parsed view of one gateway INI.
type GatewayConfig struct {
	Path     string
	Enabled  bool
	Features map[string]models.GatewayFeature
	LogDir   string
	LogRoot  string
}

// ReadDMRGatewayConfig parses DMRGateway.ini. Every section carrying an
// Enable/Enabled key counts; "DMR Network ..." sections are networks (their
// Name key is the label), everything else is a feature.
func ReadDMRGatewayConfig(path string) (*GatewayConfig, error) {
	return readGateway(path, "DMRGateway", func(_ *ini.File, sec *ini.Section) (string, models.GatewayFeature, bool) {
		name := sec.Name()
		if !strings.HasPrefix(name, "DMR Network") {
			return name, models.GatewayFeature{Kind: "feature", Section: name}, true
		}
		label := sec.Key("Name").MustString(name)
		return label, models.GatewayFeature{Kind: "network", Section: name}, true
	})
}

// ReadYSFGatewayConfig parses YSFGateway.ini. "YSF Network" and
// "FCS Network" are networks; the YSF Network label carries the startup
// reflector from the [Network] section when one is set.
func ReadYSFGatewayConfig(path string) (*GatewayConfig, error) {
	return readGateway(path, "YSFGateway", func(f *ini.File, sec *ini.Section) (string, models.GatewayFeature, bool) {
		name := sec.Name()
		if name != "YSF Network" && name != "FCS Network" {
			return name, models.GatewayFeature{Kind: "feature", Section: name}, true
		}
		feature := models.GatewayFeature{Kind: "network", Section: name}
		if name == "YSF Network" {
			if netSec, err := f.GetSection("Network"); err == nil {
				startup := strings.TrimSpace(netSec.Key("Startup").String())
				if startup != "" && !strings.HasPrefix(startup, "#") {
					feature.StartupReflector = startup
				}
			}
		}
		return name, feature, true
	})
}

// ReadP25GatewayConfig parses P25Gateway.ini. The network section carries a
// static reflector ID when one is configured; P25 reflectors never confirm
// the link, so its live status stays unknown.
func ReadP25GatewayConfig(path string) (*GatewayConfig, error) {
	return readGateway(path, "P25Gateway", func(_ *ini.File, sec *ini.Section) (string, models.GatewayFeature, bool) {
		name := sec.Name()
		if name != "Network" && name != "P25 Network" {
			return name, models.GatewayFeature{Kind: "feature", Section: name}, true
		}
		return name, models.GatewayFeature{
			Kind:            "network",
			Section:         name,
			StaticReflector: strings.TrimSpace(sec.Key("Static").String()),
		}, true
	})
}

// ReadNXDNGatewayConfig parses NXDNGateway.ini, which only distinguishes
// the single [Network] section.
func ReadNXDNGatewayConfig(path string) (*GatewayConfig, error) {
	f, err := ini.LoadSources(iniLoadOptions, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	cfg := newGatewayConfig(path, "NXDNGateway", f)
	if sec, err := f.GetSection("Network"); err == nil && sec.Key("Enable").MustBool(false) {
		cfg.Enabled = true
		cfg.Features["NXDN Network"] = models.GatewayFeature{Kind: "network", Section: "Network"}
	}
	return cfg, nil
}

// readGateway scans every INI section with an Enable/Enabled key and lets
// classify decide the feature label and shape.
func readGateway(path, defaultRoot string, classify func(*ini.File, *ini.Section) (string, models.GatewayFeature, bool)) (*GatewayConfig, error) {
	f, err := ini.LoadSources(iniLoadOptions, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	cfg := newGatewayConfig(path, defaultRoot, f)
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		if !sec.HasKey("Enable") && !sec.HasKey("Enabled") {
			continue
		}
		if !sec.Key("Enable").MustBool(false) && !sec.Key("Enabled").MustBool(false) {
			continue
		}
		label, feature, ok := classify(f, sec)
		if !ok {
			continue
		}
		cfg.Features[label] = feature
		cfg.Enabled = true
	}
	return cfg, nil
}

func newGatewayConfig(path, defaultRoot string, f *ini.File) *GatewayConfig {
	cfg := &GatewayConfig{
		Path:     path,
		Features: make(map[string]models.GatewayFeature),
		LogDir:   "/var/log/mmdvm",
		LogRoot:  defaultRoot,
	}
	if sec, err := f.GetSection("Log"); err == nil {
		cfg.LogDir = sec.Key("FilePath").MustString(cfg.LogDir)
		cfg.LogRoot = sec.Key("FileRoot").MustString(cfg.LogRoot)
	}
	return cfg
}

func unquote(s string) string {
	return strings.Trim(s, `"'`)
}
