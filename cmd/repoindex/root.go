package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/repoindex/internal/app"
	"github.com/dshills/repoindex/internal/config"
	"github.com/dshills/repoindex/internal/logging"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "repoindex",
		Short: "Incremental repository indexing and semantic code search",
		Long: `repoindex splits source files into chunks, embeds them and stores the vectors
so a repository can be searched with natural language. Re-indexing only
re-embeds files whose content changed.

Example usage:
  repoindex index .                          # Index current directory
  repoindex search -r myproject "retry logic" # Search it
  repoindex serve                            # Run the MCP server on stdio`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if c.logLevel != "" {
				cfg.Logging.Level = c.logLevel
			}
			logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			if err != nil {
				return err
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is ~/.config/repoindex/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newIndexCmd(c),
		newSearchCmd(c),
		newStatusCmd(c),
		newResetCmd(c),
		newServeCmd(c),
		newVersionCmd(),
	)
	return root
}

// open wires the configured backends. The caller closes the App.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
