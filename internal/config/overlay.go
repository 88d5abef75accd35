package config

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mmdvm-dashboard/backend/internal/models"
)

// LogSource is one dated log stream derived from the INI files. The caller
// turns these into tail readers.
type LogSource struct {
	Name     string
	Producer models.Producer
	Dir      string
	FileRoot string
}

// Manager owns the INI readers and the process checker and produces the
// config overlay merged into live state. INIs are re-read on every Reload
// so edits on disk show up without a dashboard restart.
type Manager struct {
	cfg     *AppConfig
	checker *ProcessChecker
	log     *zap.Logger

	mu       sync.Mutex
	mmdvm    *MMDVMConfig
	gateways map[string]*GatewayConfig
}

// NewManager creates a manager and performs the initial INI read.
func NewManager(cfg *AppConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		checker:  NewProcessChecker(),
		log:      log,
		gateways: make(map[string]*GatewayConfig),
	}
	m.Reload()
	return m
}

// Reload re-reads every configured INI file. Unreadable files keep the
// previous parse.
func (m *Manager) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mmdvm, err := ReadMMDVMConfig(m.cfg.IniPaths.MMDVM); err == nil {
		m.mmdvm = mmdvm
	} else {
		m.log.Warn("failed to read MMDVM.ini", zap.Error(err))
	}

	readers := []struct {
		key  string
		path string
		read func(string) (*GatewayConfig, error)
	}{
		{"dmr", m.cfg.IniPaths.DMRGateway, ReadDMRGatewayConfig},
		{"ysf", m.cfg.IniPaths.YSFGateway, ReadYSFGatewayConfig},
		{"p25", m.cfg.IniPaths.P25Gateway, ReadP25GatewayConfig},
		{"nxdn", m.cfg.IniPaths.NXDNGateway, ReadNXDNGatewayConfig},
	}
	for _, r := range readers {
		if r.path == "" {
			continue
		}
		gw, err := r.read(r.path)
		if err != nil {
			m.log.Warn("failed to read gateway ini", zap.String("gateway", r.key), zap.Error(err))
			continue
		}
		m.gateways[r.key] = gw
	}
}

// Overlay checks process liveness and returns the enablement overlay. It
// never reports live connection state; that belongs to the log monitor.
func (m *Manager) Overlay() models.ConfigOverlay {
	m.mu.Lock()
	defer m.mu.Unlock()

	processes := map[string]string{
		"host": m.cfg.Processes.MMDVMHost,
		"dmr":  m.cfg.Processes.DMRGateway,
		"ysf":  m.cfg.Processes.YSFGateway,
		"p25":  m.cfg.Processes.P25Gateway,
		"nxdn": m.cfg.Processes.NXDNGateway,
	}
	names := make([]string, 0, len(processes))
	for _, name := range processes {
		names = append(names, name)
	}
	running := m.checker.CheckAll(names)

	overlay := models.ConfigOverlay{
		HostRunning: running[processes["host"]],
		Gateways:    make(map[string]models.GatewayStatus),
	}
	if m.mmdvm != nil {
		overlay.EnabledModes = append([]string(nil), m.mmdvm.EnabledModes...)
		overlay.EnabledNetworks = append([]string(nil), m.mmdvm.EnabledNetworks...)
		overlay.Station = m.mmdvm.Station
	}
	for key, gw := range m.gateways {
		features := make(map[string]models.GatewayFeature, len(gw.Features))
		for label, feature := range gw.Features {
			features[label] = feature
		}
		overlay.Gateways[key] = models.GatewayStatus{
			Running:  running[processes[key]],
			Enabled:  gw.Enabled,
			Features: features,
		}
	}
	return overlay
}

// LogSources lists the dated log streams to monitor: the host always, each
// gateway only when its INI enables something.
func (m *Manager) LogSources() []LogSource {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sources []LogSource
	if m.mmdvm != nil {
		sources = append(sources, LogSource{
			Name:     "MMDVMHost",
			Producer: models.ProducerMMDVMHost,
			Dir:      m.mmdvm.LogDir,
			FileRoot: m.mmdvm.LogRoot,
		})
	}

	producers := map[string]struct {
		name     string
		producer models.Producer
	}{
		"dmr":  {"DMRGateway", models.ProducerDMRGateway},
		"ysf":  {"YSFGateway", models.ProducerYSFGateway},
		"p25":  {"P25Gateway", models.ProducerP25Gateway},
		"nxdn": {"NXDNGateway", models.ProducerNXDNGateway},
	}
	for _, key := range []string{"dmr", "ysf", "p25", "nxdn"} {
		gw, ok := m.gateways[key]
		if !ok || !gw.Enabled {
			continue
		}
		p := producers[key]
		sources = append(sources, LogSource{
			Name:     p.name,
			Producer: p.producer,
			Dir:      gw.LogDir,
			FileRoot: gw.LogRoot,
		})
	}
	return sources
}
