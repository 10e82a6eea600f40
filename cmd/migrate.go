package cmd

import (
	"github.com/spf13/cobra"

	"example.com/safegear/services/ppe/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := db.Connect(&cfg.Database)
		if err != nil {
			return err
		}

		if err := db.Migrate(conn); err != nil {
			return err
		}

		log.Info("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
