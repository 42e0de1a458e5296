// ABOUTME: One-shot subcommands: send, ticket submit/close/reopen/new, session show/reset, status
// ABOUTME: Each loads the conversation once, performs its action and prints the result

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mundir-Doom/loop-support/internal/conversation"
	"github.com/Mundir-Doom/loop-support/internal/render"
	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// withApp builds the app for a one-shot command. Sessions are only created
// when the command needs one.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(context.Context, *app) error) error {
	a, err := newApp(cmd.Context(), flags, appOptions{
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func newSendCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message to support",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				return errors.New("message is empty")
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.engine.RefreshAll(ctx); err != nil {
					return err
				}
				if err := a.engine.SendMessage(ctx, text); err != nil {
					return err
				}
				st := a.engine.State()
				if st.Ticket != nil {
					a.printer.Notice("Message sent on ticket #%d.", st.Ticket.ID)
				} else {
					a.printer.Notice("Message sent.")
				}
				return nil
			})
		},
	}
}

func newTicketCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Submit or change the state of your support ticket",
	}

	var in conversation.TicketInput
	var priority string
	submit := &cobra.Command{
		Use:   "submit [issue]",
		Short: "Open a ticket with your contact details",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				in.Issue = strings.Join(args, " ")
			}
			in.Priority = supportapi.Priority(strings.ToLower(priority))
			if err := in.Validate(); err != nil {
				return err
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.engine.RefreshAll(ctx); err != nil {
					return err
				}
				if err := a.engine.SubmitTicket(ctx, in); err != nil {
					return err
				}
				return printTicket(a.printer, a.engine.State(), "submitted")
			})
		},
	}
	submit.Flags().StringVar(&in.Name, "name", "", "your name (required)")
	submit.Flags().StringVar(&in.Email, "email", "", "your email address (required)")
	submit.Flags().StringVar(&in.Issue, "issue", "", "describe the issue (or pass it as arguments)")
	submit.Flags().StringVar(&in.Category, "category", "", "ticket category (default from config)")
	submit.Flags().StringVar(&priority, "priority", string(supportapi.PriorityMedium), "low, medium or high")

	cmd.AddCommand(
		submit,
		ticketActionCmd(flags, "close", "Close the current ticket", "closed", (*conversation.Engine).CloseTicket),
		ticketActionCmd(flags, "reopen", "Reopen the current ticket after it was closed", "reopened", (*conversation.Engine).ReopenTicket),
		ticketActionCmd(flags, "new", "Close any active ticket and start a new one", "opened", (*conversation.Engine).OpenNewTicket),
	)
	return cmd
}

func ticketActionCmd(flags *rootFlags, use, short, verb string, action func(*conversation.Engine, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.engine.RefreshAll(ctx); err != nil {
					return err
				}
				if err := action(a.engine, ctx); err != nil {
					return err
				}
				return printTicket(a.printer, a.engine.State(), verb)
			})
		},
	}
}

func printTicket(p *render.Printer, st conversation.State, verb string) error {
	if st.Ticket == nil {
		p.Notice("Ticket %s.", verb)
		return nil
	}
	p.Notice("Ticket #%d %s (status: %s).", st.Ticket.ID, verb, st.Ticket.Status)
	return nil
}

func newSessionCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset the stored support session",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the stored session id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, flags, func(_ context.Context, a *app) error {
					sess, ok := a.sessions.Session()
					if !ok {
						a.printer.Warn("No stored session.")
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "session: %s\nstorage: %s (%s)\n",
						sess.ID, a.cfg.Storage.Driver, a.cfg.Storage.Path)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Forget the stored session; the next command starts a new conversation",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, flags, func(_ context.Context, a *app) error {
					a.sessions.Reset()
					a.printer.Notice("Session cleared.")
					return nil
				})
			},
		},
	)
	return cmd
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the support backend and show the current ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "backend: %s ", a.client.BaseURL())
				if err := a.client.Health(ctx); err != nil {
					a.printer.Error(fmt.Sprintf("unreachable (%v)", err))
					return nil
				}
				a.printer.Notice("ok")

				if _, ok := a.sessions.Session(); !ok {
					a.printer.Warn("No stored session. Run 'loop-support chat' to start one.")
					return nil
				}
				if err := a.engine.RefreshAll(ctx); err != nil {
					return err
				}
				st := a.engine.State()
				if st.Session != nil {
					fmt.Fprintf(out, "session: %s\n", st.Session.ID)
				}
				a.printer.Status(st)
				fmt.Fprintf(out, "messages: %d\n", len(st.Messages))
				return nil
			})
		},
	}
}
