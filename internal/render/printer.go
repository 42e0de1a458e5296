// ABOUTME: Terminal transcript printer for the support conversation
// ABOUTME: Colours messages by sender and prints status lines, notices and errors

package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/Mundir-Doom/loop-support/internal/conversation"
	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// Printer writes a human-readable transcript to a terminal.
type Printer struct {
	mu       sync.Mutex
	out      io.Writer
	location *time.Location

	visitor *color.Color
	agent   *color.Color
	system  *color.Color
	dim     *color.Color
	warn    *color.Color
	errc    *color.Color
	ok      *color.Color
}

// Option configures a Printer.
type Option func(*Printer)

// WithColor forces colour output on or off. By default fatih/color decides
// from the terminal and NO_COLOR.
func WithColor(enabled bool) Option {
	return func(p *Printer) {
		for _, c := range p.colors() {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// WithLocation sets the zone message times are shown in (default time.Local).
func WithLocation(loc *time.Location) Option {
	return func(p *Printer) {
		if loc != nil {
			p.location = loc
		}
	}
}

// New creates a Printer writing to out.
func New(out io.Writer, opts ...Option) *Printer {
	p := &Printer{
		out:      out,
		location: time.Local,
		visitor:  color.New(color.FgCyan, color.Bold),
		agent:    color.New(color.FgGreen, color.Bold),
		system:   color.New(color.FgYellow),
		dim:      color.New(color.Faint),
		warn:     color.New(color.FgYellow),
		errc:     color.New(color.FgRed),
		ok:       color.New(color.FgGreen),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Printer) colors() []*color.Color {
	return []*color.Color{p.visitor, p.agent, p.system, p.dim, p.warn, p.errc, p.ok}
}

// SenderLabel is the name shown in front of a message.
func SenderLabel(s supportapi.Sender) string {
	switch s {
	case supportapi.SenderVisitor:
		return "You"
	case supportapi.SenderAgent:
		return "Agent"
	case supportapi.SenderSystem:
		return "System"
	default:
		return string(s)
	}
}

// Message prints one message as "[15:04] Sender: body". Agent and system
// bodies are treated as markdown and flattened.
func (p *Printer) Message(m supportapi.Message) {
	body := m.Text()
	if m.Sender != supportapi.SenderVisitor {
		body = PlainText(body)
	}

	label := p.labelColor(m.Sender).Sprint(SenderLabel(m.Sender) + ":")
	stamp := p.dim.Sprintf("[%s]", m.CreatedAt.In(p.location).Format("15:04"))

	var b strings.Builder
	lines := strings.Split(body, "\n")
	fmt.Fprintf(&b, "%s %s %s\n", stamp, label, lines[0])
	indent := strings.Repeat(" ", len("[15:04] "))
	for _, line := range lines[1:] {
		fmt.Fprintf(&b, "%s%s\n", indent, line)
	}
	p.println(strings.TrimSuffix(b.String(), "\n"))
}

// println writes one complete entry. Safe for concurrent use.
func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

// Messages prints each message in order.
func (p *Printer) Messages(msgs []supportapi.Message) {
	for _, m := range msgs {
		p.Message(m)
	}
}

func (p *Printer) labelColor(s supportapi.Sender) *color.Color {
	switch s {
	case supportapi.SenderVisitor:
		return p.visitor
	case supportapi.SenderAgent:
		return p.agent
	default:
		return p.system
	}
}

// Status prints the one-line conversation summary.
func (p *Printer) Status(s conversation.State) {
	p.println(p.dim.Sprint(StatusLine(s)))
}

// Typing prints the agent typing hint.
func (p *Printer) Typing() {
	p.println(p.dim.Sprint("Agent is typing..."))
}

// Notice prints an informational line.
func (p *Printer) Notice(format string, args ...any) {
	p.println(p.ok.Sprintf(format, args...))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.println(p.warn.Sprintf(format, args...))
}

// Error prints an error line prefixed with "Error: ".
func (p *Printer) Error(msg string) {
	p.println(p.errc.Sprint("Error: "+msg))
}

// StatusLine summarises ticket, typing, connection and activity flags, e.g.
// "ticket #7 claimed | agent typing | connected".
func StatusLine(s conversation.State) string {
	var parts []string

	switch {
	case s.Ticket != nil:
		t := "ticket #" + fmt.Sprint(s.Ticket.ID) + " " + string(s.Ticket.Status)
		if s.Ticket.Category != nil && *s.Ticket.Category != "" {
			t += " (" + *s.Ticket.Category + ")"
		}
		parts = append(parts, t)
	case s.IsInitializing:
		parts = append(parts, "loading")
	default:
		parts = append(parts, "no ticket")
	}

	if s.IsTyping {
		parts = append(parts, "agent typing")
	}
	switch {
	case s.IsSending:
		parts = append(parts, "sending")
	case s.IsSubmittingTicket:
		parts = append(parts, "updating ticket")
	}

	if s.IsConnected {
		parts = append(parts, "connected")
	} else {
		parts = append(parts, "offline")
	}
	return strings.Join(parts, " | ")
}
