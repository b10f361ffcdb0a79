package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Run database migrations to set up or update the database schema.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		db := openDB(cfg)
		defer db.Close() //nolint: errcheck

		if err := db.Migrate(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database migrations completed successfully! (%s)\n", cfg.Database.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
