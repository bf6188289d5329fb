package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"financial-diagnostics/config"
	"financial-diagnostics/internal/app"
	"financial-diagnostics/internal/logging"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "finratio",
	Short: "finratio operates the financial ratio derivation engine",
	Long: `finratio is the operator tool for the ratio engine. It applies schema
migrations, recomputes company series on demand, flips publication flags,
re-runs series whose last recompute failed and serves the HTTP API.

Configuration is read from the config file, then .env, then environment
variables such as DATABASE_URL and REDIS_ADDRESS.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
		logger = app.InitLogging(cfg.Logging)
		return nil
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.json", "config file")
}

// withApp builds the services, runs fn and releases everything afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// printJSON writes v to the command's stdout.
func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
