package cmd

import (
	"fmt"

	"github.com/jon4hz/arrscore/internal/analyzer"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/jon4hz/arrscore/internal/report"
	"github.com/spf13/cobra"
)

var reportCmdFlags struct {
	Service   string
	OutputDir string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the health report from the stored scores",
	Long:  `Analyze the stored snapshot of a service and write the HTML and JSON health report without contacting the service.`,
	Example: `arrscore report --service radarr
arrscore report --service sonarr --output-dir ./reports`,
	Args: cobra.NoArgs,
	RunE: renderReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportCmdFlags.Service, "service", "s", "", "Service to report on (radarr or sonarr)")
	reportCmd.Flags().StringVarP(&reportCmdFlags.OutputDir, "output-dir", "o", "", "Directory for the reports, defaults to export.output_dir")
	_ = reportCmd.MarkFlagRequired("service")

	rootCmd.AddCommand(reportCmd)
}

func renderReport(cmd *cobra.Command, _ []string) error {
	service, err := database.ParseServiceKind(reportCmdFlags.Service)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	db := openDB(cfg)
	defer db.Close() //nolint: errcheck

	health, err := newAnalyzer(cfg, db).GenerateHealthReport(cmd.Context(), service, analyzer.ReportOptions{
		IncludeTrends:         true,
		IncludeFileCategories: true,
	})
	if err != nil {
		return fmt.Errorf("failed to generate health report: %w", err)
	}
	recs, err := db.GetScoreRecords(cmd.Context(), service)
	if err != nil {
		return fmt.Errorf("failed to load score records: %w", err)
	}

	dir := cfg.Export.OutputDir
	if reportCmdFlags.OutputDir != "" {
		dir = reportCmdFlags.OutputDir
	}
	files, err := report.NewWriter(dir).WriteAll(service, []string{config.OutputFormatHTML, config.OutputFormatJSON}, recs, health)
	for _, path := range files {
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return err
}
