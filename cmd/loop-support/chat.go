// ABOUTME: Interactive chat command: live transcript plus slash commands for tickets
// ABOUTME: Runs the sync loop, the transcript printer and the input reader side by side

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Mundir-Doom/loop-support/internal/conversation"
	"github.com/Mundir-Doom/loop-support/internal/dedupe"
	"github.com/Mundir-Doom/loop-support/internal/render"
	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

var errQuit = errors.New("quit")

const chatHelp = `Commands:
  /ticket     Open a ticket with your contact details
  /close      Close the current ticket
  /reopen     Reopen a closed ticket
  /newticket  Start a new ticket in this conversation
  /new        Start a new conversation (new session)
  /refresh    Reload the conversation now
  /status     Show ticket and connection status
  /help       Show this help
  /quit       Leave the chat
Anything else is sent as a message.`

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive support conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags, appOptions{
				autoCreate: true,
				stdout:     cmd.OutOrStdout(),
				stderr:     cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			defer a.Close()

			a.printer.Notice("Connected to %s. Type /help for commands.", a.cfg.API.BaseURL)
			return runChat(cmd.Context(), a.engine, a.printer, cmd.InOrStdin())
		},
	}
}

// chatSession owns the input side of an interactive chat.
type chatSession struct {
	engine  *conversation.Engine
	printer *render.Printer
	lines   <-chan string
}

func runChat(ctx context.Context, engine *conversation.Engine, printer *render.Printer, in io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)

	c := &chatSession{engine: engine, printer: printer, lines: readLines(in)}
	updates := engine.Subscribe(ctx)

	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return watchState(ctx, updates, printer) })
	g.Go(func() error { return c.inputLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLines feeds stdin lines to a channel, closed at EOF. The goroutine
// blocks on the reader and is not tied to a context.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// watchState prints what changed between consecutive states: new messages,
// ticket status, the typing hint and errors.
func watchState(ctx context.Context, updates <-chan conversation.State, printer *render.Printer) error {
	seen := dedupe.New(0)
	var (
		sessionID string
		status    supportapi.TicketStatus
		typing    bool
		lastErr   string
	)

	for {
		var st conversation.State
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			st = s
		}

		if st.Session != nil && st.Session.ID != sessionID {
			if sessionID != "" {
				seen.Reset()
				printer.Notice("New conversation started.")
			}
			sessionID = st.Session.ID
		}

		printer.Messages(seen.Filter(st.Messages))

		if st.Ticket != nil && st.Ticket.Status != status {
			if status != "" {
				printer.Notice("Ticket #%d is now %s.", st.Ticket.ID, st.Ticket.Status)
			}
			status = st.Ticket.Status
		}
		if st.IsTyping && !typing {
			printer.Typing()
		}
		typing = st.IsTyping

		if st.Error != "" && st.Error != lastErr {
			printer.Error(st.Error)
		}
		lastErr = st.Error
	}
}

func (c *chatSession) inputLoop(ctx context.Context) error {
	for {
		line, err := c.next(ctx)
		if err != nil {
			return err
		}
		if err := c.handle(ctx, line); err != nil {
			return err
		}
	}
}

// next returns the next input line, or errQuit at EOF.
func (c *chatSession) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", errQuit
		}
		return line, nil
	}
}

// parseCommand splits "/cmd rest" into its name and argument. Lines that do
// not start with a slash yield an empty name.
func parseCommand(line string) (name, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func (c *chatSession) handle(ctx context.Context, line string) error {
	name, arg := parseCommand(line)

	var err error
	switch name {
	case "":
		err = c.engine.SendMessage(ctx, arg)
	case "quit", "exit":
		return errQuit
	case "help":
		c.printer.Notice("%s", chatHelp)
	case "status":
		c.printer.Status(c.engine.State())
	case "refresh":
		err = c.engine.RefreshAll(ctx)
	case "close":
		err = c.engine.CloseTicket(ctx)
	case "reopen":
		err = c.engine.ReopenTicket(ctx)
	case "newticket":
		err = c.engine.OpenNewTicket(ctx)
	case "new":
		err = c.engine.StartNewConversation(ctx)
	case "ticket":
		err = c.ticketForm(ctx, arg)
	default:
		c.printer.Warn("Unknown command /%s. Type /help for commands.", name)
	}

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errQuit) {
			return err
		}
		// errors recorded in state are already printed by watchState
		if err.Error() != c.engine.State().Error {
			c.printer.Error(err.Error())
		}
	}
	return nil
}

// ticketForm asks for the ticket fields one line at a time. An issue given
// after /ticket is used as the description.
func (c *chatSession) ticketForm(ctx context.Context, issue string) error {
	in := conversation.TicketInput{Issue: issue}

	fields := []struct {
		prompt string
		dst    *string
		skip   bool
	}{
		{prompt: "Name", dst: &in.Name},
		{prompt: "Email", dst: &in.Email},
		{prompt: "Category (blank for default)", dst: &in.Category},
		{prompt: "Describe the issue", dst: &in.Issue, skip: issue != ""},
	}
	for _, f := range fields {
		if f.skip {
			continue
		}
		c.printer.Notice("%s:", f.prompt)
		line, err := c.next(ctx)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(line)
	}

	c.printer.Notice("Priority (low, medium, high) [medium]:")
	line, err := c.next(ctx)
	if err != nil {
		return err
	}
	in.Priority = supportapi.PriorityMedium
	if p := strings.ToLower(strings.TrimSpace(line)); p != "" {
		in.Priority = supportapi.Priority(p)
	}

	if err := c.engine.SubmitTicket(ctx, in); err != nil {
		return err
	}
	c.printer.Notice("Ticket submitted.")
	return nil
}
