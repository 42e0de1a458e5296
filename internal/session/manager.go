// ABOUTME: Manager owns the current support session: load, create once, persist, reset
// ABOUTME: Concurrent creation requests share a single in-flight call via singleflight

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// ErrReset is returned to callers waiting on a creation that was superseded
// by Reset before it completed.
var ErrReset = errors.New("session creation superseded by reset")

// Creator creates a new server-side session. *supportapi.Client satisfies it.
type Creator interface {
	CreateSession(ctx context.Context, meta supportapi.Metadata) (supportapi.Session, error)
}

// State is the lifecycle position of the managed session.
type State int

const (
	Absent State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

const defaultCreateTimeout = 30 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithAutoCreate controls whether NewManager starts creating a session when
// none is persisted. Defaults to true.
func WithAutoCreate(enabled bool) Option {
	return func(m *Manager) { m.autoCreate = enabled }
}

// WithMetadata sets the client metadata sent with every session creation.
func WithMetadata(meta supportapi.Metadata) Option {
	return func(m *Manager) { m.metadata = meta }
}

// WithCreateTimeout bounds a single creation call. The call runs detached
// from the caller's cancellation so that one impatient waiter does not fail
// everyone sharing the flight.
func WithCreateTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.createTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager holds at most one session and guarantees at most one creation
// request is in flight per generation. Reset bumps the generation.
type Manager struct {
	store         Store
	creator       Creator
	metadata      supportapi.Metadata
	autoCreate    bool
	createTimeout time.Duration
	logger        *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	session *supportapi.Session
	loading bool
	err     error
	gen     uint64

	changes chan struct{}
}

// NewManager loads the persisted session from store. When none exists and
// auto-create is enabled, creation starts in the background using ctx.
func NewManager(ctx context.Context, store Store, creator Creator, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		creator:       creator,
		autoCreate:    true,
		createTimeout: defaultCreateTimeout,
		logger:        slog.Default(),
		changes:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session_manager")

	if s, ok := store.Load(); ok {
		m.session = &s
		m.logger.Debug("restored support session", "session_id", s.ID)
		return m
	}

	if m.autoCreate {
		m.mu.Lock()
		m.loading = true
		m.mu.Unlock()
		go func() {
			if _, err := m.Refresh(ctx); err != nil && !errors.Is(err, ErrReset) {
				m.logger.Warn("initial session creation failed", "error", err)
			}
		}()
	}
	return m
}

// Refresh creates a new session, persists it and makes it current. Callers
// arriving while a creation is in flight wait for and share its result.
func (m *Manager) Refresh(ctx context.Context) (supportapi.Session, error) {
	m.mu.Lock()
	gen := m.gen
	m.loading = true
	m.mu.Unlock()
	m.notify()

	ch := m.group.DoChan(flightKey(gen), func() (any, error) {
		return m.create(ctx, gen)
	})

	select {
	case <-ctx.Done():
		return supportapi.Session{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return supportapi.Session{}, res.Err
		}
		return res.Val.(supportapi.Session), nil
	}
}

// Ensure returns the current session, creating one when absent.
func (m *Manager) Ensure(ctx context.Context) (supportapi.Session, error) {
	if s, ok := m.Session(); ok {
		return s, nil
	}
	return m.Refresh(ctx)
}

func (m *Manager) create(ctx context.Context, gen uint64) (supportapi.Session, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.createTimeout)
	defer cancel()

	s, err := m.creator.CreateSession(cctx, m.metadata)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		if err == nil {
			m.logger.Debug("discarding session created before reset", "session_id", s.ID)
		}
		return supportapi.Session{}, ErrReset
	}

	if err != nil {
		m.store.Clear()
		m.session = nil
		m.loading = false
		m.err = err
		m.mu.Unlock()
		m.notify()
		m.logger.Warn("failed to create support session", "error", err)
		return supportapi.Session{}, fmt.Errorf("creating support session: %w", err)
	}

	m.store.Save(s)
	m.session = &s
	m.loading = false
	m.err = nil
	m.mu.Unlock()
	m.notify()
	m.logger.Info("support session created", "session_id", s.ID)
	return s, nil
}

// Reset discards the current session and any in-flight creation. A creation
// that finishes afterwards is dropped and its waiters receive ErrReset.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.group.Forget(flightKey(m.gen))
	m.gen++
	m.store.Clear()
	m.session = nil
	m.loading = false
	m.err = nil
	m.mu.Unlock()
	m.notify()
	m.logger.Debug("support session reset")
}

// Session returns the current session, if any.
func (m *Manager) Session() (supportapi.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return supportapi.Session{}, false
	}
	return *m.session, true
}

// State reports the lifecycle position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.session != nil:
		return Ready
	case m.loading:
		return Loading
	default:
		return Absent
	}
}

// Loading reports whether a creation is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Err returns the error of the last failed creation, cleared on success or reset.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Changes delivers a signal whenever the session, loading flag or error
// changes. Signals coalesce; the channel is meant for a single consumer.
func (m *Manager) Changes() <-chan struct{} {
	return m.changes
}

func (m *Manager) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

func flightKey(gen uint64) string {
	return "create-" + strconv.FormatUint(gen, 10)
}
