// ABOUTME: Size-bounded set of message identities already shown to the visitor
// ABOUTME: Lets the transcript print each message once although every poll returns full history

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// DefaultMaxSize bounds how many identities a Tracker keeps.
const DefaultMaxSize = 10000

type entry struct {
	createdAt time.Time
	element   *list.Element
}

// Tracker remembers which messages have been seen, keyed by Message.Key.
// When full, the oldest identity is evicted and its creation time becomes a
// floor: unseen messages created before the floor are treated as seen, so
// eviction never causes old history to be shown again.
type Tracker struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // keys in insertion order (oldest at front)
	maxSize int
	floor   time.Time
}

// New creates a tracker holding at most maxSize identities.
// A non-positive maxSize selects DefaultMaxSize.
func New(maxSize int) *Tracker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Tracker{
		seen:    make(map[string]*entry),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Seen reports whether m has already been marked.
func (t *Tracker) Seen(m supportapi.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seenLocked(m)
}

// Filter returns the messages of msgs not seen before, in input
// order, and marks them as seen.
func (t *Tracker) Filter(msgs []supportapi.Message) []supportapi.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []supportapi.Message
	for _, m := range msgs {
		if t.seenLocked(m) {
			continue
		}
		t.markLocked(m)
		fresh = append(fresh, m)
	}
	return fresh
}

// MarkAll marks every message as seen without returning anything, used to
// skip history the visitor has already read.
func (t *Tracker) MarkAll(msgs []supportapi.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range msgs {
		if !t.seenLocked(m) {
			t.markLocked(m)
		}
	}
}

// Reset forgets everything, for when the conversation starts over.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[string]*entry)
	t.order.Init()
	t.floor = time.Time{}
}

// Len returns the number of remembered identities.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

func (t *Tracker) seenLocked(m supportapi.Message) bool {
	if _, ok := t.seen[m.Key()]; ok {
		return true
	}
	return !t.floor.IsZero() && m.CreatedAt.Before(t.floor)
}

// markLocked must be called with mu held and only for unseen messages.
func (t *Tracker) markLocked(m supportapi.Message) {
	if len(t.seen) >= t.maxSize {
		t.evictOldest()
	}
	key := m.Key()
	t.seen[key] = &entry{
		createdAt: m.CreatedAt.Time,
		element:   t.order.PushBack(key),
	}
}

func (t *Tracker) evictOldest() {
	front := t.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	if e, ok := t.seen[key]; ok && e.createdAt.After(t.floor) {
		t.floor = e.createdAt
	}
	t.order.Remove(front)
	delete(t.seen, key)
}
