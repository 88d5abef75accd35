// Package broadcast delivers state snapshots to subscribers.
//
// Mutations do not send synchronously. Notify schedules a delivery after a
// short debounce window; notifications arriving while one is pending ride
// on it. When the timer fires, one snapshot is built and fanned out. A
// content hash of the last delivered snapshot suppresses deliveries where
// the net state did not change.
package broadcast

import (
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmdvm-dashboard/backend/internal/models"
)

// DefaultDebounce is the delay between the first notification of a burst
// and the delivery that covers it.
const DefaultDebounce = 300 * time.Millisecond

// Subscriber receives snapshots. A Send error drops the subscriber.
type Subscriber interface {
	ID() string
	Send(snapshot models.Snapshot) error
}

// SnapshotSource produces the current snapshot at delivery time. The state
// store implements it.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// Hub owns the debounce timer and the subscriber set.
type Hub struct {
	mu sync.Mutex

	log      *zap.Logger
	source   SnapshotSource
	debounce time.Duration

	timer   *time.Timer
	pending bool
	stopped bool

	lastHash [sha256.Size]byte
	hasLast  bool

	subscribers map[string]Subscriber
}

// NewHub creates a hub over the given snapshot source.
func NewHub(source SnapshotSource, debounce time.Duration, log *zap.Logger) *Hub {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:         log,
		source:      source,
		debounce:    debounce,
		subscribers: make(map[string]Subscriber),
	}
}

// Notify schedules a delivery. Safe to call from any goroutine; repeated
// calls within the debounce window coalesce into one delivery.
func (h *Hub) Notify() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.pending {
		return
	}
	h.pending = true
	h.timer = time.AfterFunc(h.debounce, h.deliver)
}

// Flush delivers immediately, cancelling any pending timer. Used after a
// backfill completes so subscribers get the resolved snapshot at once.
func (h *Hub) Flush() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.pending = true
	h.mu.Unlock()
	h.deliver()
}

// Stop cancels any pending delivery. Further notifications are ignored.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.pending = false
}

// Subscribe adds a subscriber and sends it the current snapshot.
func (h *Hub) Subscribe(sub Subscriber) {
	h.mu.Lock()
	h.subscribers[sub.ID()] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	h.log.Info("subscriber added", zap.String("id", sub.ID()), zap.Int("total", count))

	if err := sub.Send(h.source.Snapshot()); err != nil {
		h.log.Warn("initial send failed, dropping subscriber",
			zap.String("id", sub.ID()), zap.Error(err))
		h.Unsubscribe(sub.ID())
	}
}

// Unsubscribe removes a subscriber. Removing an absent ID is a no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	count := len(h.subscribers)
	h.mu.Unlock()
	h.log.Info("subscriber removed", zap.String("id", id), zap.Int("remaining", count))
}

// SubscriberCount reports the current number of subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) deliver() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.pending = false
	h.mu.Unlock()

	snapshot := h.source.Snapshot()
	hash := hashSnapshot(snapshot)

	h.mu.Lock()
	if h.hasLast && hash == h.lastHash {
		// Events canceled each other out since the last delivery.
		h.mu.Unlock()
		return
	}
	h.lastHash = hash
	h.hasLast = true

	subs := make([]Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Send(snapshot); err != nil {
			h.log.Warn("delivery failed, dropping subscriber",
				zap.String("id", sub.ID()), zap.Error(err))
			h.Unsubscribe(sub.ID())
		}
	}
}

// hashSnapshot hashes the serialized snapshot with LastUpdate zeroed, so
// that the timestamp alone never makes two otherwise-identical snapshots
// look different. JSON is used because it serializes map keys in sorted
// order, which keeps the hash stable.
func hashSnapshot(snapshot models.Snapshot) [sha256.Size]byte {
	snapshot.Status.LastUpdate = time.Time{}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(data)
}
