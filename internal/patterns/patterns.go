// Package patterns holds the per-producer log pattern tables.
//
// Each producer maps to an ordered list of matchers over the message part
// of a log line (after the severity/timestamp header). Order matters:
// several matchers textually overlap, and the first match wins. Adding a
// producer or event means adding entries here and nowhere else.
package patterns

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmdvm-dashboard/backend/internal/models"
)

// Pattern is one named matcher plus the transform that turns its capture
// groups into a typed event.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
	Build func(m []string, at time.Time) models.Event
}

// canonicalModes maps producer spellings of a mode to the short code the
// rest of the system uses.
var canonicalModes = map[string]string{
	"idle":          "IDLE",
	"dmr":           "DMR",
	"d-star":        "D-Star",
	"dstar":         "D-Star",
	"system fusion": "YSF",
	"fusion":        "YSF",
	"ysf":           "YSF",
	"p25":           "P25",
	"nxdn":          "NXDN",
	"fm":            "FM",
	"pocsag":        "POCSAG",
	"lockout":       "LOCKOUT",
	"error":         "ERROR",
}

// CanonicalMode normalizes a mode name captured from log text. Unrecognized
// names pass through upper-cased so they stay visible rather than vanishing.
func CanonicalMode(raw string) string {
	if mode, ok := canonicalModes[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return mode
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}

// IdleMode is the designated idle mode; a transition to it clears every
// active transmission.
const IdleMode = "IDLE"

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// txStart builds a TransmissionStarted transform for slotless modes.
func txStart(mode string, srcGroup, dstGroup int) func([]string, time.Time) models.Event {
	return func(m []string, at time.Time) models.Event {
		return models.TransmissionStarted{
			Mode:        mode,
			Source:      strings.TrimSpace(m[srcGroup]),
			Destination: strings.TrimSpace(m[dstGroup]),
			At:          at,
		}
	}
}

// txEnd builds a TransmissionEnded transform for slotless modes.
func txEnd(mode string, srcGroup int) func([]string, time.Time) models.Event {
	return func(m []string, at time.Time) models.Event {
		ev := models.TransmissionEnded{Mode: mode, At: at}
		if srcGroup > 0 {
			ev.Source = strings.TrimSpace(m[srcGroup])
		}
		return ev
	}
}

// hostNetwork builds a host-side "Connection to X opened" transform.
func hostNetwork(network string) func([]string, time.Time) models.Event {
	return func(m []string, at time.Time) models.Event {
		return models.NetworkLinkChanged{
			Network: network,
			Status:  models.LinkConnected,
			Target:  m[1],
			At:      at,
		}
	}
}

var mmdvmHostPatterns = []Pattern{
	{
		Name:  "mode_change",
		Regex: regexp.MustCompile(`Mode set to (.+)`),
		Build: func(m []string, at time.Time) models.Event {
			return models.ModeChanged{Mode: CanonicalMode(m[1]), At: at}
		},
	},
	{
		Name:  "modem_connected",
		Regex: regexp.MustCompile(`MMDVM protocol version: (\d+), description: (.+)`),
		Build: func(m []string, at time.Time) models.Event {
			return models.ModemInfoReceived{ProtocolVersion: m[1], Description: m[2], At: at}
		},
	},
	{
		Name:  "dmr_network_connected",
		Regex: regexp.MustCompile(`DMR, Connection to ([^\s]+) opened`),
		Build: hostNetwork("DMR"),
	},
	{
		Name:  "p25_network_connected",
		Regex: regexp.MustCompile(`P25, Connection to ([^\s]+) opened`),
		Build: hostNetwork("P25"),
	},
	{
		Name:  "ysf_network_connected",
		Regex: regexp.MustCompile(`YSF, Connection to ([^\s]+) opened`),
		Build: hostNetwork("YSF"),
	},
	{
		Name:  "nxdn_network_connected",
		Regex: regexp.MustCompile(`NXDN, Connection to ([^\s]+) opened`),
		Build: hostNetwork("NXDN"),
	},
	// Transmission ends precede starts: the end lines contain the longer
	// literal and must not be shadowed by looser start matchers.
	{
		Name:  "dmr_end",
		Regex: regexp.MustCompile(`DMR Slot (\d), received (network|RF) end of voice transmission from ([A-Z0-9]+) to TG\s*(\d+)`),
		Build: func(m []string, at time.Time) models.Event {
			return models.TransmissionEnded{Mode: "DMR", Slot: atoi(m[1]), Source: m[3], At: at}
		},
	},
	{
		Name:  "dmr_rx",
		Regex: regexp.MustCompile(`DMR Slot (\d), received (network|RF) voice header from ([A-Z0-9]+) to TG\s*(\d+)`),
		Build: func(m []string, at time.Time) models.Event {
			return models.TransmissionStarted{
				Mode: "DMR", Slot: atoi(m[1]), Source: m[3], Destination: "TG " + m[4], At: at,
			}
		},
	},
	{
		Name:  "dstar_end",
		Regex: regexp.MustCompile(`D-Star, end of transmission`),
		Build: txEnd("D-Star", 0),
	},
	{
		Name:  "dstar_rx",
		Regex: regexp.MustCompile(`D-Star, received (?:header|data) from ([A-Z0-9]+)\s+/([A-Z0-9]+)\s+to\s+([A-Z0-9]+)`),
		Build: txStart("D-Star", 1, 3),
	},
	{
		Name:  "ysf_end",
		Regex: regexp.MustCompile(`YSF, received (network|RF) end of transmission from ([A-Z0-9\s]+?)\s+to DG-ID\s+(\d+)`),
		Build: txEnd("YSF", 2),
	},
	{
		Name:  "ysf_rx",
		Regex: regexp.MustCompile(`YSF, received (network|RF) header from ([A-Z0-9\s]+?)\s+to DG-ID\s+(\d+)`),
		Build: func(m []string, at time.Time) models.Event {
			return models.TransmissionStarted{
				Mode: "YSF", Source: strings.TrimSpace(m[2]), Destination: "DG-ID " + m[3], At: at,
			}
		},
	},
	{
		Name:  "p25_end",
		Regex: regexp.MustCompile(`P25, received (network|RF) end of voice transmission from ([A-Z0-9]+) to TG\s*(\d+)`),
		Build: txEnd("P25", 2),
	},
	{
		Name:  "p25_rx",
		Regex: regexp.MustCompile(`P25, received (network|RF) (?:voice transmission|header) from ([A-Z0-9]+) to TG\s*(\d+)`),
		Build: func(m []string, at time.Time) models.Event {
			return models.TransmissionStarted{
				Mode: "P25", Source: m[2], Destination: "TG " + m[3], At: at,
			}
		},
	},
	{
		Name:  "nxdn_end",
		Regex: regexp.MustCompile(`NXDN, received (network|RF) end of transmission from ([A-Z0-9]+) to (?:TG\s*)?(\d+)`),
		Build: txEnd("NXDN", 2),
	},
	{
		Name:  "nxdn_rx",
		Regex: regexp.MustCompile(`NXDN, received (network|RF) (?:voice|data) (?:header|transmission) from ([A-Z0-9]+) to (?:TG\s*)?(\d+)`),
		Build: func(m []string, at time.Time) models.Event {
			return models.TransmissionStarted{
				Mode: "NXDN", Source: m[2], Destination: "TG " + m[3], At: at,
			}
		},
	},
}

var dmrGatewayPatterns = []Pattern{
	{
		Name:  "mmdvm_connected",
		Regex: regexp.MustCompile(`MMDVM has connected`),
		Build: func(m []string, at time.Time) models.Event {
			return models.NetworkLinkChanged{Network: "MMDVM", Status: models.LinkConnected, At: at}
		},
	},
	{
		Name:  "network_connected",
		Regex: regexp.MustCompile(`(.+), Logged into the master successfully`),
		Build: func(m []string, at time.Time) models.Event {
			return models.NetworkLinkChanged{
				Network: strings.TrimSpace(m[1]), Status: models.LinkConnected, At: at,
			}
		},
	},
	{
		Name:  "network_disconnected",
		Regex: regexp.MustCompile(`(.+), Closing DMR Network`),
		Build: func(m []string, at time.Time) models.Event {
			return models.NetworkLinkChanged{
				Network: strings.TrimSpace(m[1]), Status: models.LinkDisconnected, At: at,
			}
		},
	},
}

// ysfStylePatterns covers both YSFGateway and NXDNGateway, which share a
// log format. The network argument names the link the events land on.
func ysfStylePatterns(network string) []Pattern {
	return []Pattern{
		{
			Name:  "mmdvm_connected",
			Regex: regexp.MustCompile(`Link successful to MMDVM`),
			Build: func(m []string, at time.Time) models.Event {
				return models.NetworkLinkChanged{Network: "MMDVM", Status: models.LinkConnected, At: at}
			},
		},
		{
			Name:  "network_reconnected",
			Regex: regexp.MustCompile(`Automatic \(re-\)connection to (\d+) - "(.+?)"`),
			Build: func(m []string, at time.Time) models.Event {
				return models.NetworkLinkChanged{
					Network: network, Status: models.LinkConnected, Target: strings.TrimSpace(m[2]), At: at,
				}
			},
		},
		{
			Name:  "network_connect_requested",
			Regex: regexp.MustCompile(`Connect to (.+) has been requested`),
			Build: func(m []string, at time.Time) models.Event {
				// Intent only; the log carries no positive acknowledgment.
				return models.NetworkLinkChanged{
					Network: network, Status: models.LinkUnknown, Target: strings.TrimSpace(m[1]), At: at,
				}
			},
		},
		{
			Name:  "network_disconnected",
			Regex: regexp.MustCompile(`Disconnect has been requested`),
			Build: func(m []string, at time.Time) models.Event {
				return models.NetworkLinkChanged{Network: network, Status: models.LinkDisconnected, At: at}
			},
		},
		{
			Name:  "link_failed",
			Regex: regexp.MustCompile(`Link has failed`),
			Build: func(m []string, at time.Time) models.Event {
				return models.NetworkLinkChanged{Network: network, Status: models.LinkDisconnected, At: at}
			},
		},
		{
			Name:  "network_connected",
			Regex: regexp.MustCompile(`Linked to (.+?)\s*$`),
			Build: func(m []string, at time.Time) models.Event {
				return models.NetworkLinkChanged{
					Network: network, Status: models.LinkConnected, Target: strings.TrimSpace(m[1]), At: at,
				}
			},
		},
	}
}

var p25GatewayPatterns = []Pattern{
	{
		Name:  "mmdvm_connected",
		Regex: regexp.MustCompile(`Opening Rpt network connection`),
		Build: func(m []string, at time.Time) models.Event {
			return models.NetworkLinkChanged{Network: "MMDVM", Status: models.LinkConnected, At: at}
		},
	},
	{
		Name:  "mmdvm_disconnected",
		Regex: regexp.MustCompile(`Closing Rpt network connection`),
		Build: func(m []string, at time.Time) models.Event {
			return models.NetworkLinkChanged{Network: "MMDVM", Status: models.LinkDisconnected, At: at}
		},
	},
	{
		Name:  "network_connected",
		Regex: regexp.MustCompile(`linked to reflector (\d+)`),
		Build: func(m []string, at time.Time) models.Event {
			return models.NetworkLinkChanged{
				Network: "P25", Status: models.LinkConnected, Target: m[1], At: at,
			}
		},
	},
	{
		Name:  "network_opening",
		Regex: regexp.MustCompile(`Opening P25 network connection`),
		Build: func(m []string, at time.Time) models.Event {
			return models.NetworkLinkChanged{Network: "P25", Status: models.LinkUnknown, At: at}
		},
	},
	{
		Name:  "network_disconnected",
		Regex: regexp.MustCompile(`Closing P25 network connection`),
		Build: func(m []string, at time.Time) models.Event {
			return models.NetworkLinkChanged{Network: "P25", Status: models.LinkDisconnected, At: at}
		},
	},
	{
		Name:  "link_failed",
		Regex: regexp.MustCompile(`Error returned from recvfrom`),
		Build: func(m []string, at time.Time) models.Event {
			return models.NetworkLinkChanged{Network: "P25", Status: models.LinkDisconnected, At: at}
		},
	},
}

var byProducer = map[models.Producer][]Pattern{
	models.ProducerMMDVMHost:   mmdvmHostPatterns,
	models.ProducerDMRGateway:  dmrGatewayPatterns,
	models.ProducerYSFGateway:  ysfStylePatterns("YSF"),
	models.ProducerP25Gateway:  p25GatewayPatterns,
	models.ProducerNXDNGateway: ysfStylePatterns("NXDN"),
}

// ForProducer returns the ordered pattern list for a producer, or nil for
// an unknown producer.
func ForProducer(p models.Producer) []Pattern {
	return byProducer[p]
}
