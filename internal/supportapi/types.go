// ABOUTME: Wire types for the support backend: sessions, tickets, messages, snapshots
// ABOUTME: Handles numeric-or-string ids and the backend's zone-less timestamps

package supportapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TicketStatus is the server-driven lifecycle state of a ticket.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusClaimed TicketStatus = "claimed"
	TicketStatusClosed  TicketStatus = "closed"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderVisitor Sender = "visitor"
	SenderAgent   Sender = "agent"
	SenderSystem  Sender = "system"
)

// Priority is the visitor-facing ticket priority sent with a ticket submission.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Session is the opaque identifier correlating this client to a server-side conversation.
type Session struct {
	ID string `json:"sessionId"`
}

// Metadata is sent when creating a session.
type Metadata struct {
	Locale    string `json:"locale,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

// Ticket is the server-owned support request record.
type Ticket struct {
	ID              int64        `json:"id"`
	SessionID       string       `json:"sessionId"`
	Status          TicketStatus `json:"status"`
	Category        *string      `json:"category"`
	Priority        int          `json:"priority"`
	AssignedAgentID *int64       `json:"assignedAgentId"`
	ContactName     *string      `json:"contactName"`
	ContactEmail    *string      `json:"contactEmail"`
	CreatedAt       Timestamp    `json:"createdAt"`
	ClaimedAt       *Timestamp   `json:"claimedAt"`
	ClosedAt        *Timestamp   `json:"closedAt"`
}

// Active reports whether the ticket has not been closed.
func (t *Ticket) Active() bool {
	return t != nil && t.Status != TicketStatusClosed
}

// Message is a single immutable conversation entry.
type Message struct {
	ID        string    `json:"id"`
	TicketID  int64     `json:"ticketId"`
	SessionID string    `json:"sessionId"`
	Sender    Sender    `json:"sender"`
	Body      *string   `json:"body"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Key returns the identity used for rendering and de-duplication.
func (m Message) Key() string {
	return m.ID + "@" + m.CreatedAt.Format(time.RFC3339Nano)
}

// Text returns the message body, or "" when the body is null.
func (m Message) Text() string {
	if m.Body == nil {
		return ""
	}
	return *m.Body
}

// UnmarshalJSON accepts the message id either as a JSON number or a string.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var raw struct {
		alias
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.alias)
	id, err := decodeID(raw.ID)
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	m.ID = id
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Snapshot is the full conversation state returned by a single fetch.
type Snapshot struct {
	Ticket   *Ticket   `json:"ticket"`
	Messages []Message `json:"messages"`
}

// MessageInput is the body of a visitor message. Ticket submissions use the
// same call with the contact fields filled in.
type MessageInput struct {
	Body         string   `json:"body"`
	Category     *string  `json:"category,omitempty"`
	Priority     Priority `json:"priority,omitempty"`
	ContactName  string   `json:"contact_name,omitempty"`
	ContactEmail string   `json:"contact_email,omitempty"`
}

// SendResult is returned after a message is accepted.
type SendResult struct {
	OK        bool   `json:"ok"`
	TicketID  int64  `json:"ticket_id"`
	MessageID string `json:"message_id"`
}

// UnmarshalJSON accepts message_id as a number or a string.
func (r *SendResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		OK        bool            `json:"ok"`
		TicketID  int64           `json:"ticket_id"`
		MessageID json.RawMessage `json:"message_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := decodeID(raw.MessageID)
	if err != nil {
		return fmt.Errorf("message_id: %w", err)
	}
	*r = SendResult{OK: raw.OK, TicketID: raw.TicketID, MessageID: id}
	return nil
}

// TicketActionResult is returned by close, reopen and new-ticket calls.
type TicketActionResult struct {
	OK       bool   `json:"ok"`
	TicketID int64  `json:"ticket_id"`
	Message  string `json:"message"`
}

// naiveLayouts are tried after RFC 3339 for timestamps without a zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Timestamp is a time.Time that decodes the backend's timestamp formats.
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses RFC 3339 or a zone-less ISO timestamp (read as UTC).
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{t}, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// UnmarshalJSON decodes a JSON string timestamp; null leaves the zero value.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// MarshalJSON encodes the timestamp as RFC 3339.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.Time.UTC().Format(time.RFC3339Nano))
}
