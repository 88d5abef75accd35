// Package state owns the authoritative system snapshot.
//
// The Store is the single shared resource between the tail readers, the
// backfill scanner, the config overlay refresher, the display server and
// the API. Every mutation goes through Apply or one of the overlay
// setters; reads get defensive copies. Mutations that change nothing
// observable do not advance LastUpdate and do not schedule a broadcast.
package state

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmdvm-dashboard/backend/internal/models"
	"github.com/mmdvm-dashboard/backend/internal/patterns"
)

// Notifier is told after every observable mutation. The broadcast hub
// implements it; tests substitute a counter.
type Notifier interface {
	Notify()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithHistorySizes overrides the bounded history capacities.
func WithHistorySizes(recentCalls, events int) Option {
	return func(s *Store) {
		s.recentCalls = newRing[models.TransmissionRecord](recentCalls)
		s.events = newRing[models.ActivityEvent](events)
	}
}

// Store holds the live system state and applies normalized events to it.
type Store struct {
	mu sync.Mutex

	log      *zap.Logger
	notifier Notifier

	status      models.SystemStatus
	active      map[string]models.TransmissionRecord
	recentCalls *ring[models.TransmissionRecord]
	events      *ring[models.ActivityEvent]

	statsDay string
	sources  map[string]struct{}
}

// New creates a Store. The notifier may be nil while wiring; SetNotifier
// attaches the broadcast hub once it exists.
func New(opts ...Option) *Store {
	s := &Store{
		log: zap.NewNop(),
		status: models.SystemStatus{
			CurrentMode: patterns.IdleMode,
			Networks:    make(map[string]models.NetworkLink),
			Gateways:    make(map[string]models.GatewayStatus),
			CallsByMode: make(map[string]int),
		},
		active:      make(map[string]models.TransmissionRecord),
		recentCalls: newRing[models.TransmissionRecord](50),
		events:      newRing[models.ActivityEvent](100),
		sources:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetNotifier attaches the broadcast scheduler. Call before starting any
// readers.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Apply applies one event and schedules a broadcast if anything observable
// changed.
func (s *Store) Apply(ev models.Event) {
	s.apply(ev, true)
}

// ApplyBackfill applies one event during a startup backfill scan. The
// effect on state is identical to Apply, but no broadcast is scheduled:
// the caller broadcasts once when the whole scan is done, instead of
// replaying days of history at subscribers.
func (s *Store) ApplyBackfill(ev models.Event) {
	s.apply(ev, false)
}

func (s *Store) apply(ev models.Event, broadcast bool) {
	s.mu.Lock()
	var changed bool
	switch e := ev.(type) {
	case models.ModeChanged:
		changed = s.applyModeChanged(e)
	case models.NetworkLinkChanged:
		changed = s.applyNetworkLinkChanged(e)
	case models.TransmissionStarted:
		changed = s.applyTransmissionStarted(e)
	case models.TransmissionEnded:
		changed = s.applyTransmissionEnded(e)
	case models.ModemInfoReceived:
		changed = s.applyModemInfo(e)
	}
	if changed {
		s.touch()
	}
	notifier := s.notifier
	s.mu.Unlock()

	if changed && broadcast && notifier != nil {
		notifier.Notify()
	}
}

func (s *Store) touch() {
	now := time.Now()
	if !now.After(s.status.LastUpdate) {
		now = s.status.LastUpdate.Add(time.Nanosecond)
	}
	s.status.LastUpdate = now
}

func (s *Store) applyModeChanged(e models.ModeChanged) bool {
	if e.Mode == "" || e.Mode == s.status.CurrentMode {
		return false
	}
	old := s.status.CurrentMode
	s.status.CurrentMode = e.Mode

	s.addEvent(e.At, "mode_change", "mmdvmhost",
		fmt.Sprintf("Mode changed from %s to %s", old, e.Mode))
	s.log.Info("mode changed", zap.String("from", old), zap.String("to", e.Mode))

	if e.Mode == patterns.IdleMode {
		s.clearActive(e.At)
	}
	return true
}

// clearActive ends every active transmission, whatever its mode. Called on
// a transition to the idle mode.
func (s *Store) clearActive(at time.Time) {
	for key, tx := range s.active {
		tx.Active = false
		tx.Duration = at.Sub(tx.StartedAt).Seconds()
		if tx.Duration < 0 {
			tx.Duration = 0
		}
		s.finishRecentCall(tx)
		s.addEvent(at, "transmission_end", tx.Mode,
			fmt.Sprintf("%s → %s ended (%.1fs)", tx.Source, tx.Destination, tx.Duration))
		delete(s.active, key)
	}
	s.status.ActiveTransmissions = 0
}

func (s *Store) applyNetworkLinkChanged(e models.NetworkLinkChanged) bool {
	if e.Network == "" {
		return false
	}
	link := models.NetworkLink{Status: e.Status, Target: e.Target}
	if link.Status == models.LinkDisconnected {
		// A link never holds a target while disconnected.
		link.Target = ""
	}
	if current, ok := s.status.Networks[e.Network]; ok && current == link {
		return false
	}
	s.status.Networks[e.Network] = link

	msg := fmt.Sprintf("%s %s", e.Network, link.Status)
	if link.Target != "" {
		msg = fmt.Sprintf("%s %s to %s", e.Network, link.Status, link.Target)
	}
	s.addEvent(e.At, "network_link", e.Network, msg)
	s.log.Info("network link changed",
		zap.String("network", e.Network),
		zap.String("status", string(link.Status)),
		zap.String("target", link.Target))
	return true
}

func (s *Store) applyTransmissionStarted(e models.TransmissionStarted) bool {
	if e.Mode == "" || e.Source == "" {
		return false
	}
	tx := models.TransmissionRecord{
		Mode:        e.Mode,
		Slot:        e.Slot,
		Source:      e.Source,
		Destination: e.Destination,
		Network:     e.Network,
		StartedAt:   e.At,
		Active:      true,
	}

	// A restart of the same key replaces the active record but still
	// counts: each header is a call.
	s.active[tx.Key()] = tx
	s.status.ActiveTransmissions = len(s.active)
	s.recentCalls.push(tx)

	s.rollStatsDay(e.At)
	s.status.TotalCallsToday++
	s.status.CallsByMode[e.Mode]++
	s.sources[e.Source] = struct{}{}
	s.status.DistinctSources = len(s.sources)

	s.addEvent(e.At, "transmission_start", e.Mode,
		fmt.Sprintf("%s → %s on %s", e.Source, e.Destination, e.Mode))
	s.log.Info("transmission started",
		zap.String("mode", e.Mode),
		zap.Int("slot", e.Slot),
		zap.String("source", e.Source),
		zap.String("destination", e.Destination))
	return true
}

func (s *Store) applyTransmissionEnded(e models.TransmissionEnded) bool {
	// Some producers log an end without a source (D-Star). End everything
	// active for the mode in that case.
	var keys []string
	if e.Source == "" {
		for key, tx := range s.active {
			if tx.Mode == e.Mode {
				keys = append(keys, key)
			}
		}
	} else {
		keys = append(keys, models.TransmissionKey(e.Mode, e.Slot, e.Source))
	}

	changed := false
	for _, key := range keys {
		tx, ok := s.active[key]
		if !ok {
			continue // ending a key that is not active is a no-op
		}
		tx.Active = false
		tx.Duration = e.At.Sub(tx.StartedAt).Seconds()
		if tx.Duration < 0 {
			tx.Duration = 0
		}
		s.finishRecentCall(tx)
		delete(s.active, key)
		s.addEvent(e.At, "transmission_end", tx.Mode,
			fmt.Sprintf("%s → %s ended (%.1fs)", tx.Source, tx.Destination, tx.Duration))
		s.log.Info("transmission ended",
			zap.String("mode", tx.Mode),
			zap.String("source", tx.Source),
			zap.Float64("duration", tx.Duration))
		changed = true
	}
	if changed {
		s.status.ActiveTransmissions = len(s.active)
	}
	return changed
}

// finishRecentCall marks the matching history entry ended. The active set
// holds copies, so the ring's record must be closed out separately or it
// would report the call as live with zero duration forever.
func (s *Store) finishRecentCall(tx models.TransmissionRecord) {
	s.recentCalls.update(func(rec *models.TransmissionRecord) bool {
		if rec.Active && rec.Key() == tx.Key() && rec.StartedAt.Equal(tx.StartedAt) {
			rec.Active = false
			rec.Duration = tx.Duration
			return true
		}
		return false
	})
}

func (s *Store) applyModemInfo(e models.ModemInfoReceived) bool {
	desc := e.Description
	if e.ProtocolVersion != "" {
		desc = fmt.Sprintf("%s (protocol %s)", e.Description, e.ProtocolVersion)
	}
	if s.status.ModemConnected && s.status.ModemDescription == desc {
		return false
	}
	s.status.ModemConnected = true
	s.status.ModemDescription = desc
	s.addEvent(e.At, "modem_info", "mmdvmhost", "Modem connected: "+desc)
	return true
}

// rollStatsDay resets the daily counters when the calendar day advances.
func (s *Store) rollStatsDay(at time.Time) {
	day := at.Format("2006-01-02")
	if s.statsDay == day {
		return
	}
	if s.statsDay != "" {
		s.status.TotalCallsToday = 0
		s.status.CallsByMode = make(map[string]int)
		s.sources = make(map[string]struct{})
		s.status.DistinctSources = 0
	}
	s.statsDay = day
}

func (s *Store) addEvent(at time.Time, eventType, source, message string) {
	s.events.push(models.ActivityEvent{
		Timestamp: at,
		Type:      eventType,
		Source:    source,
		Message:   message,
	})
}

// SetOverlay merges config-derived enablement data into the status.
// Networks the config enables are created as Unknown if the logs have not
// said anything yet; live statuses derived from logs are never overwritten.
func (s *Store) SetOverlay(overlay models.ConfigOverlay) {
	s.mu.Lock()
	changed := false

	if s.status.HostRunning != overlay.HostRunning {
		s.status.HostRunning = overlay.HostRunning
		changed = true
	}
	if !equalStrings(s.status.EnabledModes, overlay.EnabledModes) {
		s.status.EnabledModes = append([]string(nil), overlay.EnabledModes...)
		changed = true
	}
	for _, network := range overlay.EnabledNetworks {
		if _, ok := s.status.Networks[network]; !ok {
			s.status.Networks[network] = models.NetworkLink{Status: models.LinkUnknown}
			changed = true
		}
	}
	if !equalGateways(s.status.Gateways, overlay.Gateways) {
		s.status.Gateways = copyGateways(overlay.Gateways)
		changed = true
	}
	if s.status.Station != overlay.Station {
		s.status.Station = overlay.Station
		changed = true
	}

	if changed {
		s.touch()
	}
	notifier := s.notifier
	s.mu.Unlock()

	if changed && notifier != nil {
		notifier.Notify()
	}
}

// MarkUnknown records that a backfill exhausted its day bound without
// resolving a network's state. Existing knowledge is kept; only a missing
// entry becomes explicitly Unknown.
func (s *Store) MarkUnknown(network string) {
	s.mu.Lock()
	if _, ok := s.status.Networks[network]; !ok {
		s.status.Networks[network] = models.NetworkLink{Status: models.LinkUnknown}
		s.touch()
	}
	s.mu.Unlock()
}

// SetDisplay replaces the virtual display lines from the display server.
func (s *Store) SetDisplay(lines []string) {
	s.mu.Lock()
	if equalStrings(s.status.Display, lines) {
		s.mu.Unlock()
		return
	}
	s.status.Display = append([]string(nil), lines...)
	s.touch()
	notifier := s.notifier
	s.mu.Unlock()

	if notifier != nil {
		notifier.Notify()
	}
}

// Status returns a copy of the current system status.
func (s *Store) Status() models.SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyStatusLocked()
}

// Active returns the active transmissions, most recent start first.
func (s *Store) Active() []models.TransmissionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

// RecentCalls returns up to limit recent calls, newest first.
func (s *Store) RecentCalls(limit int) []models.TransmissionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentCalls.newestFirst(limit)
}

// Events returns up to limit recent activity events, newest first.
func (s *Store) Events(limit int) []models.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.newestFirst(limit)
}

// Snapshot builds the immutable view handed to subscribers.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Snapshot{
		Status:      s.copyStatusLocked(),
		Active:      s.activeLocked(),
		RecentCalls: s.recentCalls.newestFirst(10),
		Events:      s.events.newestFirst(20),
	}
}

// NetworkStatus reports the recorded state of one network link.
func (s *Store) NetworkStatus(network string) (models.NetworkLink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.status.Networks[network]
	return link, ok
}

// CurrentMode reports the current operating mode.
func (s *Store) CurrentMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.CurrentMode
}

func (s *Store) copyStatusLocked() models.SystemStatus {
	status := s.status
	status.Networks = make(map[string]models.NetworkLink, len(s.status.Networks))
	for k, v := range s.status.Networks {
		status.Networks[k] = v
	}
	status.CallsByMode = make(map[string]int, len(s.status.CallsByMode))
	for k, v := range s.status.CallsByMode {
		status.CallsByMode[k] = v
	}
	status.Gateways = copyGateways(s.status.Gateways)
	status.EnabledModes = append([]string(nil), s.status.EnabledModes...)
	status.Display = append([]string(nil), s.status.Display...)
	return status
}

func (s *Store) activeLocked() []models.TransmissionRecord {
	out := make([]models.TransmissionRecord, 0, len(s.active))
	for _, tx := range s.active {
		out = append(out, tx)
	}
	// Newest start first for display.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartedAt.After(out[j-1].StartedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalGateways(a, b map[string]models.GatewayStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for name, ga := range a {
		gb, ok := b[name]
		if !ok || ga.Running != gb.Running || ga.Enabled != gb.Enabled {
			return false
		}
		if len(ga.Features) != len(gb.Features) {
			return false
		}
		for fname, fa := range ga.Features {
			if fb, ok := gb.Features[fname]; !ok || fa != fb {
				return false
			}
		}
	}
	return true
}

func copyGateways(in map[string]models.GatewayStatus) map[string]models.GatewayStatus {
	out := make(map[string]models.GatewayStatus, len(in))
	for name, gw := range in {
		features := make(map[string]models.GatewayFeature, len(gw.Features))
		for fname, f := range gw.Features {
			features[fname] = f
		}
		gw.Features = features
		out[name] = gw
	}
	return out
}
