package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/app"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/config"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/services"
	"github.com/spf13/cobra"
)

var Version = "dev"

// exitConfig is returned when a run aborted on a configuration problem
const exitConfig = 2

func main() {
	rootCmd := &cobra.Command{
		Use:           "recover",
		Short:         "Operator tooling for vote payment reconciliation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Directory containing config.yaml")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(materializeCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(settleCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if services.IsConfigurationError(err) {
			os.Exit(exitConfig)
		}
		os.Exit(1)
	}
}

// openApp loads configuration and wires the services for one command
func openApp(cmd *cobra.Command) (*app.App, error) {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, &services.ConfigError{Component: "config", Err: err}
	}
	config.SetupLogging(cfg.LogLevel)

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}
