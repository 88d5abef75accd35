// Package models contains domain types for the MMDVM dashboard backend.
package models

import "time"

// Producer identifies which program wrote a log line.
type Producer string

const (
	ProducerMMDVMHost   Producer = "mmdvmhost"
	ProducerDMRGateway  Producer = "dmrgateway"
	ProducerYSFGateway  Producer = "ysfgateway"
	ProducerP25Gateway  Producer = "p25gateway"
	ProducerNXDNGateway Producer = "nxdngateway"
)

// Level is a normalized log severity.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
	LevelFatal   Level = "FATAL"
)

// RawLine is one log record after header extraction, before pattern matching.
type RawLine struct {
	Level     Level
	Timestamp time.Time
	Message   string
}

// Event is the closed set of typed events the normalizer produces and the
// state store consumes. The marker method keeps the variant set closed so
// the store's type switch stays exhaustive.
type Event interface {
	isEvent()
	Time() time.Time
}

// ModeChanged reports the repeater switching its active protocol.
type ModeChanged struct {
	Mode string
	At   time.Time
}

// NetworkLinkChanged reports a gateway or host network link transition.
// Target is only meaningful when Status is LinkConnected.
type NetworkLinkChanged struct {
	Network string
	Status  LinkStatus
	Target  string
	At      time.Time
}

// TransmissionStarted reports a voice header / transmission start.
type TransmissionStarted struct {
	Mode        string
	Slot        int
	Source      string
	Destination string
	Network     string
	At          time.Time
}

// TransmissionEnded reports the end of a voice transmission.
type TransmissionEnded struct {
	Mode   string
	Slot   int
	Source string
	At     time.Time
}

// ModemInfoReceived reports the modem firmware handshake line.
type ModemInfoReceived struct {
	ProtocolVersion string
	Description     string
	At              time.Time
}

func (ModeChanged) isEvent()          {}
func (NetworkLinkChanged) isEvent()   {}
func (TransmissionStarted) isEvent()  {}
func (TransmissionEnded) isEvent()    {}
func (ModemInfoReceived) isEvent()    {}

func (e ModeChanged) Time() time.Time         { return e.At }
func (e NetworkLinkChanged) Time() time.Time  { return e.At }
func (e TransmissionStarted) Time() time.Time { return e.At }
func (e TransmissionEnded) Time() time.Time   { return e.At }
func (e ModemInfoReceived) Time() time.Time   { return e.At }
