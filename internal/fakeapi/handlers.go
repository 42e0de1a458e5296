// ABOUTME: Gin routes and JSON wire encoding for the fake support backend
// ABOUTME: Mirrors the real backend: {"detail": ...} errors, naive UTC timestamps, numeric ids

package fakeapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// naiveLayout matches the zone-less ISO timestamps the real backend emits.
const naiveLayout = "2006-01-02T15:04:05.999999"

type wireTicket struct {
	ID              int64   `json:"id"`
	SessionID       string  `json:"sessionId"`
	Status          string  `json:"status"`
	Category        *string `json:"category"`
	Priority        int     `json:"priority"`
	AssignedAgentID *int64  `json:"assignedAgentId"`
	ContactName     *string `json:"contactName"`
	ContactEmail    *string `json:"contactEmail"`
	CreatedAt       string  `json:"createdAt"`
	ClaimedAt       *string `json:"claimedAt"`
	ClosedAt        *string `json:"closedAt"`
}

type wireMessage struct {
	ID        int64   `json:"id"`
	TicketID  int64   `json:"ticketId"`
	SessionID string  `json:"sessionId"`
	Sender    string  `json:"sender"`
	Body      *string `json:"body"`
	CreatedAt string  `json:"createdAt"`
}

type sendRequest struct {
	Body         string  `json:"body"`
	Category     *string `json:"category"`
	Priority     string  `json:"priority"`
	ContactName  string  `json:"contact_name"`
	ContactEmail string  `json:"contact_email"`
}

type claimRequest struct {
	AgentID int64 `json:"agent_id"`
}

type agentMessageRequest struct {
	Body string `json:"body"`
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/session", s.handleCreateSession)
		api.GET("/session/:id", s.handleConversation)
		api.DELETE("/session/:id", s.handleDropSession)
		api.POST("/session/:id/messages", s.handleSendMessage)
		api.POST("/session/:id/new-ticket", s.handleNewTicket)
		api.POST("/tickets/:id/close", s.handleCloseTicket)
		api.POST("/tickets/:id/reopen", s.handleReopenTicket)

		// agent-side hooks, not part of the widget contract
		api.POST("/tickets/:id/claim", s.handleClaim)
		api.POST("/tickets/:id/agent-messages", s.handleAgentMessage)
	}
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var meta supportapi.Metadata
	if err := c.ShouldBindJSON(&meta); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid session payload"})
		return
	}
	id := s.CreateSession(meta)
	s.logger.Info("session created", "session_id", id, "locale", meta.Locale)
	c.JSON(http.StatusOK, gin.H{"session_id": id})
}

func (s *Server) handleConversation(c *gin.Context) {
	ticket, msgs, err := s.conversation(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, encodeMessage(m))
	}
	resp := gin.H{"messages": out}
	if ticket != nil {
		resp["ticket"] = encodeTicket(ticket)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDropSession(c *gin.Context) {
	if err := s.DropSession(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid message payload"})
		return
	}

	ticketID, messageID, err := s.postVisitorMessage(c.Param("id"), supportapi.MessageInput{
		Body:         strings.TrimSpace(req.Body),
		Category:     req.Category,
		Priority:     supportapi.Priority(strings.ToLower(req.Priority)),
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ticket_id": ticketID, "message_id": messageID})
}

func (s *Server) handleNewTicket(c *gin.Context) {
	id, err := s.NewTicket(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ticket_id": id, "message": "New ticket created successfully"})
}

func (s *Server) handleCloseTicket(c *gin.Context) {
	s.ticketAction(c, s.CloseTicket)
}

func (s *Server) handleReopenTicket(c *gin.Context) {
	s.ticketAction(c, s.ReopenTicket)
}

func (s *Server) ticketAction(c *gin.Context, action func(int64) (string, error)) {
	id, ok := ticketParam(c)
	if !ok {
		return
	}
	msg, err := action(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ticket_id": id, "message": msg})
}

func (s *Server) handleClaim(c *gin.Context) {
	id, ok := ticketParam(c)
	if !ok {
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid claim payload"})
		return
	}
	if req.AgentID == 0 {
		req.AgentID = 1
	}
	if err := s.Claim(id, req.AgentID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ticket_id": id})
}

func (s *Server) handleAgentMessage(c *gin.Context) {
	id, ok := ticketParam(c)
	if !ok {
		return
	}
	var req agentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid message payload"})
		return
	}
	msgID, err := s.AgentReply(id, strings.TrimSpace(req.Body))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ticket_id": id, "message_id": msgID})
}

func ticketParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid ticket id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
	case errors.Is(err, ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Ticket not found"})
	case errors.Is(err, ErrEmptyBody):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Message body is required"})
	case errors.Is(err, ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"detail": "Ticket already claimed"})
	case errors.Is(err, ErrNotClaimed):
		c.JSON(http.StatusConflict, gin.H{"detail": "Ticket is not claimed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(naiveLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func encodeTicket(t *ticketRecord) wireTicket {
	return wireTicket{
		ID:              t.id,
		SessionID:       t.sessionID,
		Status:          string(t.status),
		Category:        t.category,
		Priority:        t.priority,
		AssignedAgentID: t.agentID,
		ContactName:     t.contactName,
		ContactEmail:    t.contactEmail,
		CreatedAt:       formatTime(t.createdAt),
		ClaimedAt:       formatTimePtr(t.claimedAt),
		ClosedAt:        formatTimePtr(t.closedAt),
	}
}

func encodeMessage(m *messageRecord) wireMessage {
	body := m.body
	return wireMessage{
		ID:        m.id,
		TicketID:  m.ticketID,
		SessionID: m.sessionID,
		Sender:    string(m.sender),
		Body:      &body,
		CreatedAt: formatTime(m.createdAt),
	}
}
