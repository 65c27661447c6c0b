package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// subscriberSendTimeout bounds how long Publish waits on one subscriber
// before treating it as dead.
const subscriberSendTimeout = time.Second

// AlertBus is a non-blocking pub/sub distribution point for Alerts.
// Publishes are serialized, so subscribers observe alerts in publish
// order; a subscriber that cannot keep up is dropped rather than allowed
// to stall the bus.
type AlertBus struct {
	pubMu  sync.Mutex // held for a whole Publish so deliveries never interleave
	mu     sync.Mutex
	subs   map[int]chan Alert
	nextID int
	logger *zap.Logger
}

// NewAlertBus builds an empty AlertBus.
func NewAlertBus(logger *zap.Logger) *AlertBus {
	return &AlertBus{subs: make(map[int]chan Alert), logger: logger.Named("alertbus")}
}

// Subscribe registers a new listener with the given channel buffer size
// and returns the channel plus an Unsubscribe func.
func (b *AlertBus) Subscribe(bufferSize int) (<-chan Alert, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Alert, bufferSize)
	b.subs[id] = ch

	return ch, func() { b.unsubscribe(id) }
}

func (b *AlertBus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers alert to every current subscriber, in a fixed snapshot
// order taken under lock. A subscriber whose channel is still full after
// subscriberSendTimeout is considered dead: its channel is closed and it
// is removed from the bus.
func (b *AlertBus) Publish(alert Alert) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	snapshot := make(map[int]chan Alert, len(ids))
	for _, id := range ids {
		snapshot[id] = b.subs[id]
	}
	b.mu.Unlock()

	for _, id := range ids {
		ch := snapshot[id]
		select {
		case ch <- alert:
		case <-time.After(subscriberSendTimeout):
			b.logger.Warn("alert subscriber timed out, dropping it", zap.Int("subscriber_id", id))
			b.unsubscribe(id)
		}
	}
}

// SubscriberCount reports the number of live subscribers, mostly useful
// for tests and diagnostics.
func (b *AlertBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
