// ABOUTME: In-memory session store for tests and ephemeral runs
// ABOUTME: Counts operations so tests can assert on persistence behaviour

package session

import (
	"sync"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	session *supportapi.Session
	saves   int
	clears  int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith returns a store pre-seeded with s.
func NewMemoryStoreWith(s supportapi.Session) *MemoryStore {
	return &MemoryStore{session: &s}
}

func (m *MemoryStore) Load() (supportapi.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.ID == "" {
		m.session = nil
		return supportapi.Session{}, false
	}
	return *m.session, true
}

func (m *MemoryStore) Save(s supportapi.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	m.saves++
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.clears++
}

// Counts returns how many times Save and Clear were called.
func (m *MemoryStore) Counts() (saves, clears int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves, m.clears
}
