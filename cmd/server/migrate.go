package main

import (
	"github.com/spf13/cobra"

	"meeting-booking-api/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("migrations applied", "driver", cfg.DBDriver)
			return nil
		},
	}
}
