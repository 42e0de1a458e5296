// ABOUTME: Package conversation keeps the visitor's view of a support conversation current
// ABOUTME: Engine polls snapshots, runs actions, and fans state out to subscribers

// Package conversation reconciles the support backend's conversation
// snapshots with actions taken by the visitor.
//
// # Engine
//
// An Engine is built from an API (usually *supportapi.Client) and a
// SessionProvider (usually *session.Manager):
//
//	engine := conversation.NewEngine(client, manager,
//		conversation.WithPollInterval(cfg.Support.PollInterval),
//		conversation.WithDefaultCategory(cfg.Support.DefaultCategory))
//	go engine.Run(ctx)
//
// Run fetches the snapshot on start, then every poll interval. Each fetch
// replaces the ticket and message list wholesale; messages are sorted by
// creation time. A poll is skipped while a send or ticket action is in
// flight. The skip is advisory: a poll already running may still land
// after the action's own refresh, and the next poll corrects it.
//
// Actions:
//
//   - SendMessage: post a visitor message (blank text is ignored)
//   - SubmitTicket: validate contact details, then send the issue as the first message
//   - CloseTicket / ReopenTicket: change the current ticket's status
//   - OpenNewTicket: replace the current ticket, keeping the session
//   - StartNewConversation: drop the session and start over
//   - RefreshAll: make sure a session exists and fetch now
//
// # Session recovery
//
// A 404 from any call means the session no longer exists on the server.
// The engine resets the session, clears the ticket and messages, creates a
// new session and fetches once for it. Any other failure is recorded in
// State.Error and leaves the session and ticket alone.
//
// # Typing indicator
//
// IsTyping is a client-side guess. It turns on when a message is accepted
// on a claimed ticket and turns off when a fetch sees more agent messages
// than before.
//
// # Subscribing
//
// Subscribe returns a channel carrying State copies. A subscriber that falls
// behind sees only the newest state.
package conversation
