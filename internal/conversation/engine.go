// ABOUTME: Engine keeps the local conversation view in sync with the support backend
// ABOUTME: Polls snapshots, runs visitor actions, and recovers when the session disappears

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// DefaultPollInterval is how often Run re-fetches the conversation.
const DefaultPollInterval = 1500 * time.Millisecond

// DefaultCategory is the ticket category used when none is configured.
const DefaultCategory = "General"

// Action errors, returned before any network call.
var (
	ErrNoTicket           = errors.New("no active ticket")
	ErrTicketNotClosed    = errors.New("ticket is not closed")
	ErrNameRequired       = errors.New("name is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrIssueRequired      = errors.New("issue description is required")
	ErrInvalidPriority    = errors.New("priority must be low, medium or high")
	ErrSessionUnavailable = errors.New("support session unavailable")
)

// API is the subset of the support backend the engine talks to.
// *supportapi.Client satisfies it.
type API interface {
	FetchConversation(ctx context.Context, sessionID string) (*supportapi.Snapshot, error)
	SendMessage(ctx context.Context, sessionID string, in supportapi.MessageInput) (*supportapi.SendResult, error)
	CloseTicket(ctx context.Context, ticketID int64) (*supportapi.TicketActionResult, error)
	ReopenTicket(ctx context.Context, ticketID int64) (*supportapi.TicketActionResult, error)
	NewTicket(ctx context.Context, sessionID string) (*supportapi.TicketActionResult, error)
}

// SessionProvider owns the current session. *session.Manager satisfies it.
type SessionProvider interface {
	Session() (supportapi.Session, bool)
	Ensure(ctx context.Context) (supportapi.Session, error)
	Refresh(ctx context.Context) (supportapi.Session, error)
	Reset()
	Loading() bool
	Err() error
	Changes() <-chan struct{}
}

// TicketInput is what the visitor fills in to open a ticket.
type TicketInput struct {
	Name     string
	Email    string
	Issue    string
	Priority supportapi.Priority
	Category string
}

// Validate checks the required fields without touching the network.
func (in TicketInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return ErrNameRequired
	case strings.TrimSpace(in.Email) == "":
		return ErrEmailRequired
	case strings.TrimSpace(in.Issue) == "":
		return ErrIssueRequired
	case !in.Priority.Valid():
		return ErrInvalidPriority
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithDefaultCategory sets the category used for ticket submissions that
// do not name one.
func WithDefaultCategory(category string) Option {
	return func(e *Engine) {
		if category != "" {
			e.defaultCategory = category
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine reconciles server snapshots with the visitor's actions. All state
// mutation happens under mu; mu is never held across a network call, so the
// poller and foreground actions may interleave and the last write wins.
type Engine struct {
	api             API
	sessions        SessionProvider
	pollInterval    time.Duration
	defaultCategory string
	logger          *slog.Logger
	broadcaster     *StateBroadcaster

	mu        sync.Mutex
	st        State
	loadedFor string // session id of the last handled fetch

	// publishMu orders publications: a state is read and handed to the
	// broadcaster as one step, so the last one out reflects the last update.
	publishMu sync.Mutex
}

// NewEngine creates an engine. Call Run to start polling.
func NewEngine(api API, sessions SessionProvider, opts ...Option) *Engine {
	e := &Engine{
		api:             api,
		sessions:        sessions,
		pollInterval:    DefaultPollInterval,
		defaultCategory: DefaultCategory,
		logger:          slog.Default(),
		st:              initialState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "conversation")
	e.broadcaster = NewStateBroadcaster(e.logger)
	return e
}

// State returns a copy of the current view, with session fields merged in
// from the session provider.
func (e *Engine) State() State {
	e.mu.Lock()
	s := e.st.Clone()
	e.mu.Unlock()

	if sess, ok := e.sessions.Session(); ok {
		s.Session = &sess
	}
	s.IsSessionLoading = e.sessions.Loading()
	s.IsInitializing = s.IsInitializing || s.IsSessionLoading
	if s.Error == "" {
		if err := e.sessions.Err(); err != nil {
			s.Error = err.Error()
		}
	}
	return s
}

// Subscribe returns a channel receiving the current state immediately and
// every later change. Only the newest undelivered state is kept.
func (e *Engine) Subscribe(ctx context.Context) <-chan State {
	ch, id := e.broadcaster.Subscribe(ctx)
	e.broadcaster.Deliver(id, e.State())
	return ch
}

// Close ends all subscriptions.
func (e *Engine) Close() {
	e.broadcaster.Close()
}

// Run loads the conversation and then re-fetches it every poll interval
// until ctx is cancelled. Session changes trigger an immediate fetch.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Debug("conversation sync started", "poll_interval", e.pollInterval)
	e.fetch(ctx, true)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("conversation sync stopped")
			return nil
		case <-ticker.C:
			e.poll(ctx)
		case <-e.sessions.Changes():
			e.sessionChanged(ctx)
		}
	}
}

func (e *Engine) poll(ctx context.Context) {
	e.mu.Lock()
	busy := e.st.Busy()
	e.mu.Unlock()
	if busy {
		e.logger.Debug("skipping poll during foreground action")
		return
	}
	if _, ok := e.sessions.Session(); !ok {
		return
	}
	e.fetch(ctx, true)
}

func (e *Engine) sessionChanged(ctx context.Context) {
	sess, ok := e.sessions.Session()
	e.mu.Lock()
	loaded := e.loadedFor
	e.mu.Unlock()

	if ok && sess.ID != loaded {
		e.fetch(ctx, true)
		return
	}
	e.publish()
}

// fetch loads the snapshot for the current session and replaces ticket and
// messages. A 404 triggers recovery when allowed. Results for a session that
// stopped being current while the request was in flight are dropped.
func (e *Engine) fetch(ctx context.Context, allowRecovery bool) error {
	sess, ok := e.sessions.Session()
	if !ok {
		e.update(func(s *State) {
			s.Ticket = nil
			s.Messages = []supportapi.Message{}
			s.IsInitializing = false
			s.IsConnected = false
		})
		return nil
	}

	snap, err := e.api.FetchConversation(ctx, sess.ID)

	if cur, ok := e.sessions.Session(); !ok || cur.ID != sess.ID {
		e.logger.Debug("dropping conversation for stale session", "session_id", sess.ID)
		return nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if supportapi.IsNotFound(err) && allowRecovery {
			return e.recover(ctx, err)
		}
		e.logger.Warn("failed to load conversation", "session_id", sess.ID, "error", err)
		e.update(func(s *State) {
			s.IsInitializing = false
			s.IsConnected = false
			s.Error = err.Error()
		})
		return err
	}

	msgs := sortMessages(snap.Messages)
	e.update(func(s *State) {
		if s.IsTyping && agentMessageCount(msgs) > agentMessageCount(s.Messages) {
			s.IsTyping = false
		}
		s.Ticket = snap.Ticket
		s.Messages = msgs
		s.IsInitializing = false
		s.IsConnected = true
		s.Error = ""
		e.loadedFor = sess.ID
	})
	return nil
}

// recover treats the session as destroyed server-side: local state is
// dropped, a new session is created and fetched once.
func (e *Engine) recover(ctx context.Context, cause error) error {
	e.logger.Info("support session gone, starting a new one", "error", cause)

	e.sessions.Reset()
	e.update(func(s *State) {
		s.Ticket = nil
		s.Messages = []supportapi.Message{}
		s.IsTyping = false
		s.IsConnected = false
		s.IsInitializing = true
		s.Error = ""
		e.loadedFor = ""
	})

	if _, err := e.sessions.Refresh(ctx); err != nil {
		e.update(func(s *State) {
			s.IsInitializing = false
			s.Error = err.Error()
		})
		return err
	}
	return e.fetch(ctx, false)
}

// fail records an action error, or recovers on 404. The error is returned
// either way.
func (e *Engine) fail(ctx context.Context, err error) error {
	if supportapi.IsNotFound(err) {
		if rerr := e.recover(ctx, err); rerr != nil {
			e.logger.Warn("session recovery failed", "error", rerr)
		}
		return err
	}
	e.update(func(s *State) { s.Error = err.Error() })
	return err
}

func (e *Engine) ensureSession(ctx context.Context) (supportapi.Session, error) {
	sess, err := e.sessions.Ensure(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
		e.update(func(s *State) { s.Error = err.Error() })
		return supportapi.Session{}, err
	}
	return sess, nil
}

// refetch runs the fetch that follows a successful action. Its failure is
// already recorded in state and does not fail the action.
func (e *Engine) refetch(ctx context.Context) {
	if err := e.fetch(ctx, true); err != nil {
		e.logger.Debug("refresh after action failed", "error", err)
	}
}

// SendMessage posts a visitor message on the current ticket. Blank text is
// ignored.
func (e *Engine) SendMessage(ctx context.Context, text string) error {
	body := strings.TrimSpace(text)
	if body == "" {
		return nil
	}

	sess, err := e.ensureSession(ctx)
	if err != nil {
		return err
	}

	var category *string
	e.update(func(s *State) {
		if s.Ticket != nil {
			category = s.Ticket.Category
		}
		s.IsSending = true
		s.Error = ""
	})
	defer e.update(func(s *State) { s.IsSending = false })

	res, err := e.api.SendMessage(ctx, sess.ID, supportapi.MessageInput{
		Body:     body,
		Category: category,
	})
	if err != nil {
		return e.fail(ctx, err)
	}
	e.logger.Debug("message sent", "ticket_id", res.TicketID, "message_id", res.MessageID)

	e.update(func(s *State) {
		if s.Ticket != nil && s.Ticket.Status == supportapi.TicketStatusClaimed {
			s.IsTyping = true
		}
	})

	e.refetch(ctx)
	return nil
}

// SubmitTicket opens a ticket with the visitor's contact details. The issue
// text becomes the first message.
func (e *Engine) SubmitTicket(ctx context.Context, in TicketInput) error {
	if err := in.Validate(); err != nil {
		e.update(func(s *State) { s.Error = err.Error() })
		return err
	}

	sess, err := e.ensureSession(ctx)
	if err != nil {
		return err
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = e.defaultCategory
	}

	e.update(func(s *State) {
		s.IsSubmittingTicket = true
		s.Error = ""
	})
	defer e.update(func(s *State) { s.IsSubmittingTicket = false })

	res, err := e.api.SendMessage(ctx, sess.ID, supportapi.MessageInput{
		Body:         strings.TrimSpace(in.Issue),
		Category:     &category,
		Priority:     in.Priority,
		ContactName:  strings.TrimSpace(in.Name),
		ContactEmail: strings.TrimSpace(in.Email),
	})
	if err != nil {
		return e.fail(ctx, err)
	}
	e.logger.Info("ticket submitted", "ticket_id", res.TicketID)

	e.refetch(ctx)
	return nil
}

// CloseTicket closes the current ticket.
func (e *Engine) CloseTicket(ctx context.Context) error {
	ticket := e.currentTicket()
	if ticket == nil {
		return ErrNoTicket
	}
	return e.ticketAction(ctx, "close", func() (*supportapi.TicketActionResult, error) {
		return e.api.CloseTicket(ctx, ticket.ID)
	})
}

// ReopenTicket reopens the current ticket once it has been closed.
func (e *Engine) ReopenTicket(ctx context.Context) error {
	ticket := e.currentTicket()
	if ticket == nil {
		return ErrNoTicket
	}
	if ticket.Active() {
		return ErrTicketNotClosed
	}
	return e.ticketAction(ctx, "reopen", func() (*supportapi.TicketActionResult, error) {
		return e.api.ReopenTicket(ctx, ticket.ID)
	})
}

// OpenNewTicket keeps the session but asks the server to close any active
// ticket and start a fresh one.
func (e *Engine) OpenNewTicket(ctx context.Context) error {
	sess, err := e.ensureSession(ctx)
	if err != nil {
		return err
	}
	return e.ticketAction(ctx, "new", func() (*supportapi.TicketActionResult, error) {
		return e.api.NewTicket(ctx, sess.ID)
	})
}

func (e *Engine) ticketAction(ctx context.Context, name string, call func() (*supportapi.TicketActionResult, error)) error {
	e.update(func(s *State) {
		s.IsSubmittingTicket = true
		s.Error = ""
	})
	defer e.update(func(s *State) { s.IsSubmittingTicket = false })

	res, err := call()
	if err != nil {
		return e.fail(ctx, err)
	}
	e.logger.Info("ticket updated", "action", name, "ticket_id", res.TicketID)

	e.refetch(ctx)
	return nil
}

// StartNewConversation drops the current session and everything shown for
// it, then creates a new session.
func (e *Engine) StartNewConversation(ctx context.Context) error {
	e.sessions.Reset()

	e.mu.Lock()
	e.st = initialState()
	e.st.IsInitializing = false
	e.loadedFor = ""
	e.mu.Unlock()
	e.publish()

	if _, err := e.sessions.Refresh(ctx); err != nil {
		err = fmt.Errorf("starting new conversation: %w", err)
		e.update(func(s *State) { s.Error = err.Error() })
		return err
	}
	return nil
}

// RefreshAll makes sure a session exists and fetches the conversation now.
func (e *Engine) RefreshAll(ctx context.Context) error {
	if _, err := e.ensureSession(ctx); err != nil {
		return err
	}
	return e.fetch(ctx, true)
}

func (e *Engine) currentTicket() *supportapi.Ticket {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st.Ticket == nil {
		return nil
	}
	t := *e.st.Ticket
	return &t
}

func (e *Engine) update(fn func(*State)) {
	e.mu.Lock()
	fn(&e.st)
	e.mu.Unlock()
	e.publish()
}

func (e *Engine) publish() {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	e.broadcaster.Publish(e.State())
}
