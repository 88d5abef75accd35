package models

import "time"

// LinkStatus is the three-valued connection state of a network link.
// Unknown is deliberately distinct from Disconnected: some gateways never
// log a positive acknowledgment, so "enabled but unverified" must not be
// collapsed into true or false.
type LinkStatus string

const (
	LinkUnknown      LinkStatus = "unknown"
	LinkConnected    LinkStatus = "connected"
	LinkDisconnected LinkStatus = "disconnected"
)

// NetworkLink is the per-network connection state. Target (a reflector or
// master name) is retained only while connected.
type NetworkLink struct {
	Status LinkStatus `json:"status"`
	Target string     `json:"target,omitempty"`
}

// GatewayStatus is overlay data for one gateway process, derived from its
// INI file and a process check rather than from logs.
type GatewayStatus struct {
	Running  bool                      `json:"running"`
	Enabled  bool                      `json:"enabled"`
	Features map[string]GatewayFeature `json:"features,omitempty"`
}

// GatewayFeature is one enabled stanza in a gateway INI: either a network
// (whose live status comes from the state store) or a plain feature flag.
type GatewayFeature struct {
	Kind             string `json:"kind"` // "network" or "feature"
	Section          string `json:"section"`
	StartupReflector string `json:"startupReflector,omitempty"`
	StaticReflector  string `json:"staticReflector,omitempty"`
}

// StationInfo is station/modem metadata from MMDVM.ini.
type StationInfo struct {
	Callsign    string `json:"callsign,omitempty"`
	DMRID       string `json:"dmrId,omitempty"`
	RXFrequency string `json:"rxFrequency,omitempty"`
	TXFrequency string `json:"txFrequency,omitempty"`
	Power       string `json:"power,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// SystemStatus is the aggregate snapshot owned by the state store.
type SystemStatus struct {
	CurrentMode      string                   `json:"currentMode"`
	ModemConnected   bool                     `json:"modemConnected"`
	ModemDescription string                   `json:"modemDescription,omitempty"`
	Networks         map[string]NetworkLink   `json:"networks"`
	LastUpdate       time.Time                `json:"lastUpdate"`

	HostRunning  bool                     `json:"hostRunning"`
	EnabledModes []string                 `json:"enabledModes"`
	Gateways     map[string]GatewayStatus `json:"gateways"`
	Station      StationInfo              `json:"station"`

	Display []string `json:"display,omitempty"` // virtual LCD lines, when the display server is enabled

	ActiveTransmissions int            `json:"activeTransmissions"`
	TotalCallsToday     int            `json:"totalCallsToday"`
	CallsByMode         map[string]int `json:"callsByMode"`
	DistinctSources     int            `json:"distinctSources"`
}

// ConfigOverlay is the enablement data merged into SystemStatus from the
// INI readers. It carries what the config says should exist, never what
// the logs say is live.
type ConfigOverlay struct {
	HostRunning     bool
	EnabledModes    []string
	EnabledNetworks []string
	Gateways        map[string]GatewayStatus
	Station         StationInfo
}

// ActivityEvent is one entry in the bounded dashboard event history.
type ActivityEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// Snapshot is the immutable view handed to subscribers. Built once per
// broadcast; never mutated after construction.
type Snapshot struct {
	Status      SystemStatus         `json:"status"`
	Active      []TransmissionRecord `json:"activeTransmissions"`
	RecentCalls []TransmissionRecord `json:"recentCalls"`
	Events      []ActivityEvent      `json:"events"`
}
