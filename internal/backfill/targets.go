package backfill

import (
	"github.com/mmdvm-dashboard/backend/internal/models"
	"github.com/mmdvm-dashboard/backend/internal/state"
)

// Target is one named fact a startup scan tries to recover from history.
type Target struct {
	Name string
	// Resolves reports whether the event settles this fact. Because the
	// scan walks newest-first, the first resolving event is the most
	// recent one and wins.
	Resolves func(ev models.Event) bool
	// MarkUnknown records an explicit "unknown" for this fact when the
	// whole day walk ends without resolving it. May be nil for facts that
	// have no unknown representation (e.g. current mode keeps its
	// default).
	MarkUnknown func(store *state.Store)
}

// Targets tracks which facts are still unresolved during one scan. It is
// scoped to a single reader's startup and discarded afterwards.
type Targets struct {
	targets  []*Target
	resolved map[string]bool
}

// NewTargets builds a target set.
func NewTargets(targets ...*Target) *Targets {
	return &Targets{
		targets:  targets,
		resolved: make(map[string]bool, len(targets)),
	}
}

// Resolve checks the event against every unresolved target, marking those
// it settles. It reports whether the event resolved anything — the caller
// only applies resolving events, so an older event can never overwrite the
// newer state already recovered.
func (t *Targets) Resolve(ev models.Event) bool {
	hit := false
	for _, target := range t.targets {
		if t.resolved[target.Name] {
			continue
		}
		if target.Resolves(ev) {
			t.resolved[target.Name] = true
			hit = true
		}
	}
	return hit
}

// AllResolved reports whether nothing is left to look for.
func (t *Targets) AllResolved() bool {
	return len(t.resolved) == len(t.targets)
}

// Unresolved returns the names of targets still open.
func (t *Targets) Unresolved() []string {
	var names []string
	for _, target := range t.targets {
		if !t.resolved[target.Name] {
			names = append(names, target.Name)
		}
	}
	return names
}

// FinishUnresolved marks every still-open target explicitly unknown in the
// store. Called once the day bound is exhausted; unknown is a real status,
// not a silent default.
func (t *Targets) FinishUnresolved(store *state.Store) {
	for _, target := range t.targets {
		if !t.resolved[target.Name] && target.MarkUnknown != nil {
			target.MarkUnknown(store)
		}
	}
}

// HostTargets is what an MMDVMHost log scan looks for: the last operating
// mode and the modem handshake.
func HostTargets() *Targets {
	return NewTargets(
		&Target{
			Name: "current_mode",
			Resolves: func(ev models.Event) bool {
				_, ok := ev.(models.ModeChanged)
				return ok
			},
		},
		&Target{
			Name: "modem_info",
			Resolves: func(ev models.Event) bool {
				_, ok := ev.(models.ModemInfoReceived)
				return ok
			},
		},
	)
}

// GatewayTargets is what a gateway log scan looks for: the gateway's link
// to MMDVMHost and its network/reflector connection. network names the
// link whose absence is marked unknown (empty for gateways whose network
// names are dynamic, like DMRGateway masters).
func GatewayTargets(network string) *Targets {
	targets := []*Target{
		{
			Name: "mmdvm_link",
			Resolves: func(ev models.Event) bool {
				link, ok := ev.(models.NetworkLinkChanged)
				return ok && link.Network == "MMDVM"
			},
		},
		{
			Name: "network_connection",
			Resolves: func(ev models.Event) bool {
				link, ok := ev.(models.NetworkLinkChanged)
				return ok && link.Network != "MMDVM"
			},
		},
	}
	if network != "" {
		targets[1].MarkUnknown = func(store *state.Store) {
			store.MarkUnknown(network)
		}
	}
	return NewTargets(targets...)
}
