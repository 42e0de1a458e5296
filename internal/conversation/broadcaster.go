// ABOUTME: In-memory fan-out of conversation state to UI subscribers
// ABOUTME: Each subscriber holds only the latest state; older undelivered states are replaced

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// StateBroadcaster publishes State snapshots to any number of subscribers.
// A slow subscriber never blocks the publisher: its pending state is
// replaced by the newer one.
type StateBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan State // subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewStateBroadcaster creates a broadcaster. Pass nil logger for default.
func NewStateBroadcaster(logger *slog.Logger) *StateBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateBroadcaster{
		subscribers: make(map[string]chan State),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber and returns its channel and id. The
// subscription is removed when ctx is cancelled.
func (b *StateBroadcaster) Subscribe(ctx context.Context) (<-chan State, string) {
	subID := uuid.New().String()
	ch := make(chan State, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish delivers s to every subscriber, replacing any state it has not
// consumed yet.
func (b *StateBroadcaster) Publish(s State) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		offer(ch, s.Clone())
	}
}

// Deliver sends s to a single subscriber.
func (b *StateBroadcaster) Deliver(subID string, s State) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if ch, ok := b.subscribers[subID]; ok {
		offer(ch, s.Clone())
	}
}

func offer(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	// full: drop the stale state, then retry once
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *StateBroadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close closes every subscriber channel; later subscriptions are closed immediately.
func (b *StateBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
