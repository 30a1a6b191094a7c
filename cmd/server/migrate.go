package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/money-tracker/config"
	"github.com/warp/money-tracker/logging"
)

func migrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if cfg.DB.Driver == config.DriverMemory {
				return errors.New("the memory driver has no schema to migrate")
			}
			log, err := logging.New(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer log.Sync()

			// Opening a SQL store applies pending migrations.
			st, err := openStore(cfg.DB, log)
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
