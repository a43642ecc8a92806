// Package cmd implements the arbor-cli commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"arbor/internal/config"
	"arbor/internal/engine"
	"arbor/internal/logging"
)

// session holds what the commands share. Inside the interactive shell the
// engine is already running and client is set; one-shot commands open their
// own engine.
type session struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
	client *engine.Client
}

// NewRootCmd builds the command tree around s
func NewRootCmd(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:   "arbor-cli",
		Short: "Command-line client for an arbor tree",
		Long: `arbor-cli edits a hierarchical node tree stored in SQLite.

Nodes are created through working copies and every change goes through the
command processor, so the shell subcommand can undo and redo across commands.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip initialization for help commands and inside a running shell
			if cmd.Name() == "help" || cmd.Name() == "completion" || s.client != nil {
				return nil
			}
			return s.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&s.configPath, "config", "c", config.Path(), "path to the config file")
	root.PersistentFlags().StringVar(&s.dbPath, "db", "", "path to the SQLite database (overrides the config)")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newCreateCmd(s),
		newRenameCmd(s),
		newUpdateCmd(s),
		newMoveCmd(s),
		newDuplicateCmd(s),
		newTrashCmd(s),
		newRecoverCmd(s),
		newDeleteCmd(s),
		newListCmd(s),
		newTreeCmd(s),
		newGetCmd(s),
		newPathCmd(s),
		newSearchCmd(s),
		newTypesCmd(s),
		newDraftsCmd(s),
		newCopyCmd(s),
		newPasteCmd(s),
		newExportCmd(s),
		newImportCmd(s),
		newUndoCmd(s),
		newRedoCmd(s),
		newShellCmd(s),
		newWatchCmd(s),
		newTUICmd(s),
	)
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd(&session{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the config and applies the flag overrides
func (s *session) load(stderr io.Writer) error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	if s.dbPath != "" {
		cfg.Database = config.ExpandHome(s.dbPath)
	}
	if s.logLevel != "" {
		cfg.Log.Level = s.logLevel
	}
	// A CLI run is short lived; the scrape endpoint belongs to arbor-mcp
	cfg.Metrics.Enabled = false
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr, Component: "arbor-cli"})
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.logger = logger
	return nil
}

// run hands fn a client of a running engine, opening one for the duration
// of the call unless the shell already has one
func (s *session) run(fn func(ctx context.Context, c *engine.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if s.client != nil {
			return fn(ctx, s.client)
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		e, err := engine.Open(ctx, s.cfg, s.logger)
		if err != nil {
			return err
		}
		defer e.Close()
		return e.Do(ctx, fn)
	}
}
