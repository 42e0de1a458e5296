// ABOUTME: State is the read-only view of the conversation exposed to the UI layer
// ABOUTME: Values handed out are deep copies so callers can never mutate engine state

package conversation

import (
	"slices"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// State is a point-in-time view of the conversation and its transient flags.
type State struct {
	Session  *supportapi.Session
	Ticket   *supportapi.Ticket
	Messages []supportapi.Message

	// IsInitializing is true until the first fetch for the current session
	// has been handled, and while a session is being created.
	IsInitializing   bool
	IsSessionLoading bool
	IsSending        bool
	// IsSubmittingTicket covers every ticket action: submit, close, reopen, new.
	IsSubmittingTicket bool
	// IsTyping is a guess: armed when the visitor writes to a claimed ticket,
	// cleared once more agent messages show up.
	IsTyping    bool
	IsConnected bool

	Error string
}

// Busy reports whether a foreground action is in flight.
func (s State) Busy() bool {
	return s.IsSending || s.IsSubmittingTicket
}

// CanReopen reports whether the current ticket is closed.
func (s State) CanReopen() bool {
	return s.Ticket != nil && s.Ticket.Status == supportapi.TicketStatusClosed
}

// Clone returns a copy that shares no memory with s.
func (s State) Clone() State {
	out := s
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	if s.Ticket != nil {
		t := *s.Ticket
		out.Ticket = &t
	}
	out.Messages = slices.Clone(s.Messages)
	if out.Messages == nil {
		out.Messages = []supportapi.Message{}
	}
	return out
}

func initialState() State {
	return State{
		Messages:       []supportapi.Message{},
		IsInitializing: true,
	}
}
