// ABOUTME: Root cobra command and the wiring shared by every subcommand
// ABOUTME: Builds config, logger, session store, API client, session manager and engine

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mundir-Doom/loop-support/internal/config"
	"github.com/Mundir-Doom/loop-support/internal/conversation"
	"github.com/Mundir-Doom/loop-support/internal/render"
	"github.com/Mundir-Doom/loop-support/internal/session"
	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

type rootFlags struct {
	configPath string
	logLevel   string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "loop-support",
		Short:         "Talk to Loop support from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/loop-support/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable coloured output")

	cmd.AddCommand(
		newChatCmd(flags),
		newSendCmd(flags),
		newTicketCmd(flags),
		newSessionCmd(flags),
		newStatusCmd(flags),
		newVersionCmd(),
	)
	return cmd
}

// app holds everything a command needs to talk to the support backend.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    session.Store
	client   *supportapi.Client
	sessions *session.Manager
	engine   *conversation.Engine
	printer  *render.Printer

	closers []func() error
}

type appOptions struct {
	autoCreate bool
	stdout     io.Writer
	stderr     io.Writer
}

func newApp(ctx context.Context, flags *rootFlags, opts appOptions) (*app, error) {
	if opts.stdout == nil {
		opts.stdout = os.Stdout
	}
	if opts.stderr == nil {
		opts.stderr = os.Stderr
	}

	cfg, err := config.Resolve(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	logger := setupLogger(cfg.Logging, opts.stderr)

	a := &app{cfg: cfg, logger: logger}

	a.store, err = a.openStore()
	if err != nil {
		return nil, err
	}

	a.client, err = supportapi.New(cfg.API.BaseURL,
		supportapi.WithTimeout(cfg.API.Timeout),
		supportapi.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	userAgent := cfg.Client.UserAgent
	if userAgent == "" {
		userAgent = "loop-support/" + version
	}
	a.sessions = session.NewManager(ctx, a.store, a.client,
		session.WithAutoCreate(opts.autoCreate),
		session.WithMetadata(supportapi.Metadata{
			Locale:    cfg.Client.Locale,
			UserAgent: userAgent,
			Referer:   cfg.Client.Referer,
		}),
		session.WithLogger(logger),
	)

	a.engine = conversation.NewEngine(a.client, a.sessions,
		conversation.WithPollInterval(cfg.Support.PollInterval),
		conversation.WithDefaultCategory(cfg.Support.DefaultCategory),
		conversation.WithLogger(logger),
	)
	a.closers = append(a.closers, func() error {
		a.engine.Close()
		return nil
	})

	a.printer = render.New(opts.stdout, colorOption(flags.noColor)...)
	return a, nil
}

func colorOption(noColor bool) []render.Option {
	if noColor {
		return []render.Option{render.WithColor(false)}
	}
	return nil
}

func (a *app) openStore() (session.Store, error) {
	switch a.cfg.Storage.Driver {
	case "memory":
		return session.NewMemoryStore(), nil
	case "sqlite":
		st, err := session.NewSQLiteStore(a.cfg.Storage.Path, a.logger)
		if err != nil {
			return nil, fmt.Errorf("opening session database: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	default:
		return session.NewFileStore(a.cfg.Storage.Path, a.logger), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing resource", "error", err)
		}
	}
	a.closers = nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "loop-support %s\n", version)
		},
	}
}
