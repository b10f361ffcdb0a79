package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/spf13/cobra"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate the configuration and the service connections",
	Long:  `Load the configuration and ask every enabled service for its system status.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		if err := cfg.RequireService(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Config OK (database %s, output %s)\n", cfg.Database.Path, cfg.Export.OutputDir)

		var errs []error
		for _, name := range cfg.EnabledServices() {
			src, err := newSource(cfg, database.ServiceKind(name), nil)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			version, err := src.SystemStatus(cmd.Context())
			if err != nil {
				log.Error("Service unreachable", "service", name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			fmt.Fprintf(out, "%s OK (version %s)\n", name, version)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(validateConfigCmd)
}
