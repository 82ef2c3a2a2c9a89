package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"meeting-booking-api/internal/config"
	"meeting-booking-api/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "meeting-booking-api",
		Short:         "Book meetings for groups of users with conflict checks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newBookCmd())

	return root
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log := logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		AddSource: cfg.LogAddSource,
		Service:   "meeting-booking-api",
	})
	return cfg, log, nil
}
