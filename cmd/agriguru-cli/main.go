// Package main provides the AgriGuru CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shivas758/agriguru/internal/app"
	"github.com/shivas758/agriguru/internal/config"
	"github.com/shivas758/agriguru/internal/observability"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// newRootCmd builds the command tree. Flags bind to package state, so
// callers build a fresh tree per invocation.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agriguru",
		Short: "AgriGuru CLI for mandi price lookups, sync, and administration",
		Long: `AgriGuru CLI answers agricultural market price questions from the
command line using the same resolution cascade as the API.

Use this tool to:
- Resolve a price question from flags or free text
- Check market names against the catalog and list nearby markets
- Read stored prices and export trends to Excel
- Sync today's prices or backfill past days from the open-data source
- Apply database migrations

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is normal.
			_ = godotenv.Load()

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logFormat := "console"
			if outputJSON {
				logFormat = "json"
			}
			level := cfg.Observability.LogLevel
			if verbose {
				level = "debug"
			} else if !outputJSON {
				level = "warn"
			}

			logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      logFormat,
				Output:      cmd.ErrOrStderr(),
				ServiceName: "agriguru-cli",
			})
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(newResolveCmd())
	root.AddCommand(newValidateMarketCmd())
	root.AddCommand(newNearbyCmd())
	root.AddCommand(newLatestCmd())
	root.AddCommand(newTrendCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newBackfillCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp wires the services. The LLM is only required by commands that
// read free text; the others run without a key.
func openApp(ctx context.Context, needLLM bool) (*app.App, error) {
	if !needLLM && cfg.LLM.APIKey == "" {
		cfg.LLM.Enabled = false
	}
	a, err := app.New(ctx, cfg, logger, app.Options{Migrate: true})
	if err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}
	return a, nil
}

func newUI(cmd *cobra.Command) *UI {
	return NewUI(cmd.OutOrStdout(), outputJSON, noColor)
}

// printJSON writes v to the command's output.
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
