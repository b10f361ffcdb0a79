package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/arrscore/internal/cache"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/jon4hz/arrscore/internal/exporter"
	"github.com/jon4hz/arrscore/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveCmdFlags struct {
	RunNow bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Export the enabled services on a schedule",
	Long:  `Run an export of every enabled service on the cron schedule in export.schedule until interrupted.`,
	Example: `arrscore serve --config config.yml
arrscore serve -c /path/to/config.yml --run-now --log-level debug`,
	Args: cobra.NoArgs,
	RunE: startServer,
}

func init() {
	serveCmd.Flags().BoolVar(&serveCmdFlags.RunNow, "run-now", false, "Export every service once right after starting")
	rootCmd.AddCommand(serveCmd)
}

func startServer(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	if err := cfg.RequireService(); err != nil {
		return err
	}

	db := openDB(cfg)
	defer db.Close() //nolint: errcheck

	sched, err := scheduler.New()
	if err != nil {
		return err
	}

	backend := cache.New(cfg.Cache)
	exp := exporter.New(db, cfg.Export,
		exporter.WithAnalyzer(newAnalyzer(cfg, db)),
		exporter.WithProgress(false),
	)

	for _, name := range cfg.EnabledServices() {
		service := database.ServiceKind(name)
		src, err := newSource(cfg, service, backend)
		if err != nil {
			return err
		}
		if err := sched.AddCronJob(
			"export_"+name,
			fmt.Sprintf("Export %s", name),
			cfg.Export.Schedule,
			func(ctx context.Context) error {
				_, err := exp.Run(ctx, src)
				return err
			},
			serveCmdFlags.RunNow,
		); err != nil {
			return fmt.Errorf("failed to add %s export job: %w", name, err)
		}
	}

	for _, job := range sched.Jobs() {
		log.Info("Scheduled export", "job", job.Name, "schedule", job.Schedule)
	}
	log.Info("arrscore started successfully")

	if err := sched.Run(cmd.Context()); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	log.Info("shutting down gracefully...")
	return nil
}
