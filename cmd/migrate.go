package cmd

import (
	"nudfans-backend/db"
	"nudfans-backend/utils"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := db.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if err := db.Migrate(database); err != nil {
				return err
			}
			utils.LogSuccess("Database migrated")
			return nil
		},
	}
}
