// ABOUTME: In-memory fake of the support backend for local development and E2E tests
// ABOUTME: Holds sessions, tickets and messages; agent-side actions are exposed as dev hooks

package fakeapi

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// Errors returned by the in-process hooks; the HTTP layer maps them to statuses.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrAlreadyClaimed  = errors.New("ticket already claimed")
	ErrNotClaimed      = errors.New("ticket is not claimed")
	ErrEmptyBody       = errors.New("message body is required")
)

var priorityLevels = map[supportapi.Priority]int{
	supportapi.PriorityLow:    0,
	supportapi.PriorityMedium: 1,
	supportapi.PriorityHigh:   2,
}

type sessionRecord struct {
	id        string
	meta      supportapi.Metadata
	createdAt time.Time
	lastSeen  time.Time
}

type ticketRecord struct {
	id           int64
	sessionID    string
	status       supportapi.TicketStatus
	category     *string
	priority     int
	agentID      *int64
	contactName  *string
	contactEmail *string
	createdAt    time.Time
	claimedAt    *time.Time
	closedAt     *time.Time
}

type messageRecord struct {
	id        int64
	ticketID  int64
	sessionID string
	sender    supportapi.Sender
	body      string
	createdAt time.Time
}

// Server is a fake support backend. The zero value is not usable; call New.
type Server struct {
	mu           sync.Mutex
	sessions     map[string]*sessionRecord
	tickets      map[int64]*ticketRecord
	messages     []*messageRecord
	nextTicketID int64
	nextMsgID    int64

	now    func() time.Time
	logger *slog.Logger
	router *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces time.Now, mainly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty fake backend.
func New(opts ...Option) *Server {
	s := &Server{
		sessions:     make(map[string]*sessionRecord),
		tickets:      make(map[int64]*ticketRecord),
		nextTicketID: 1,
		nextMsgID:    1,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "fakeapi")
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API under /api.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) clock() time.Time {
	return s.now().UTC()
}

// CreateSession registers a new session and returns its id.
func (s *Server) CreateSession(meta supportapi.Metadata) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	id := uuid.New().String()
	s.sessions[id] = &sessionRecord{id: id, meta: meta, createdAt: now, lastSeen: now}
	return id
}

// DropSession deletes a session and everything attached to it, simulating
// server-side expiry.
func (s *Server) DropSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	for tid, t := range s.tickets {
		if t.sessionID == id {
			delete(s.tickets, tid)
		}
	}
	s.messages = slices.DeleteFunc(s.messages, func(m *messageRecord) bool { return m.sessionID == id })
	return nil
}

// conversation returns the latest ticket and all messages of a session.
func (s *Server) conversation(sessionID string) (*ticketRecord, []*messageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	sess.lastSeen = s.clock()

	var latest *ticketRecord
	for _, t := range s.tickets {
		if t.sessionID == sessionID && (latest == nil || t.id > latest.id) {
			latest = t
		}
	}
	var latestCopy *ticketRecord
	if latest != nil {
		cp := *latest
		latestCopy = &cp
	}

	var msgs []*messageRecord
	for _, m := range s.messages {
		if m.sessionID == sessionID {
			cp := *m
			msgs = append(msgs, &cp)
		}
	}
	return latestCopy, msgs, nil
}

// postVisitorMessage appends a visitor message to the session's active
// ticket, opening a ticket first when there is none.
func (s *Server) postVisitorMessage(sessionID string, in supportapi.MessageInput) (ticketID, messageID int64, err error) {
	if in.Body == "" {
		return 0, 0, ErrEmptyBody
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, 0, ErrSessionNotFound
	}
	now := s.clock()
	sess.lastSeen = now

	t := s.activeTicketLocked(sessionID)
	if t == nil {
		t = s.openTicketLocked(sessionID, now)
		t.category = in.Category
		t.priority = priorityLevels[in.Priority]
		if in.ContactName != "" {
			name := in.ContactName
			t.contactName = &name
		}
		if in.ContactEmail != "" {
			email := in.ContactEmail
			t.contactEmail = &email
		}
		s.logger.Info("ticket opened", "ticket_id", t.id, "session_id", sessionID)
	}

	m := s.appendMessageLocked(t, supportapi.SenderVisitor, in.Body, now)
	return t.id, m.id, nil
}

// CloseTicket closes a ticket. Closing a closed ticket is a no-op.
func (s *Server) CloseTicket(id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return "", ErrTicketNotFound
	}
	if t.status == supportapi.TicketStatusClosed {
		return "Ticket already closed", nil
	}
	now := s.clock()
	t.status = supportapi.TicketStatusClosed
	t.closedAt = &now
	return "Ticket closed successfully", nil
}

// ReopenTicket reopens a closed ticket and unassigns its agent.
func (s *Server) ReopenTicket(id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return "", ErrTicketNotFound
	}
	if t.status != supportapi.TicketStatusClosed {
		return "Ticket is not closed", nil
	}
	t.status = supportapi.TicketStatusOpen
	t.closedAt = nil
	t.agentID = nil
	return "Ticket reopened successfully", nil
}

// NewTicket closes every ticket of the session and opens an empty one.
func (s *Server) NewTicket(sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return 0, ErrSessionNotFound
	}
	now := s.clock()
	for _, t := range s.tickets {
		if t.sessionID == sessionID && t.status != supportapi.TicketStatusClosed {
			t.status = supportapi.TicketStatusClosed
			closed := now
			t.closedAt = &closed
		}
	}
	return s.openTicketLocked(sessionID, now).id, nil
}

// Claim assigns an agent to an unassigned ticket.
func (s *Server) Claim(ticketID, agentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return ErrTicketNotFound
	}
	if t.agentID != nil {
		return ErrAlreadyClaimed
	}
	now := s.clock()
	t.agentID = &agentID
	t.status = supportapi.TicketStatusClaimed
	t.claimedAt = &now
	return nil
}

// AgentReply posts an agent message on a claimed ticket.
func (s *Server) AgentReply(ticketID int64, body string) (int64, error) {
	if body == "" {
		return 0, ErrEmptyBody
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return 0, ErrTicketNotFound
	}
	if t.status != supportapi.TicketStatusClaimed {
		return 0, ErrNotClaimed
	}
	return s.appendMessageLocked(t, supportapi.SenderAgent, body, s.clock()).id, nil
}

func (s *Server) activeTicketLocked(sessionID string) *ticketRecord {
	var latest *ticketRecord
	for _, t := range s.tickets {
		if t.sessionID != sessionID || t.status == supportapi.TicketStatusClosed {
			continue
		}
		if latest == nil || t.id > latest.id {
			latest = t
		}
	}
	return latest
}

func (s *Server) openTicketLocked(sessionID string, now time.Time) *ticketRecord {
	t := &ticketRecord{
		id:        s.nextTicketID,
		sessionID: sessionID,
		status:    supportapi.TicketStatusOpen,
		createdAt: now,
	}
	s.nextTicketID++
	s.tickets[t.id] = t
	return t
}

func (s *Server) appendMessageLocked(t *ticketRecord, sender supportapi.Sender, body string, now time.Time) *messageRecord {
	m := &messageRecord{
		id:        s.nextMsgID,
		ticketID:  t.id,
		sessionID: t.sessionID,
		sender:    sender,
		body:      body,
		createdAt: now,
	}
	s.nextMsgID++
	s.messages = append(s.messages, m)
	return m
}
