package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/arrscore/internal/cache"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/jon4hz/arrscore/internal/exporter"
	"github.com/spf13/cobra"
)

var exportCmdFlags struct {
	URL        string
	APIKey     string
	OutputDir  string
	Formats    []string
	MaxWorkers int
	NoCache    bool
	NoAnalyze  bool
}

func newExportCmd(service database.ServiceKind, example string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(service),
		Short: fmt.Sprintf("Export the custom format scores of %s", service),
		Long: fmt.Sprintf(`Fetch every %s file with its custom formats and scores, store the snapshot
and its history, and write the configured reports.`, service),
		Example: example,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, service)
		},
	}

	cmd.Flags().StringVar(&exportCmdFlags.URL, "url", "", fmt.Sprintf("%s URL, overrides the config file", service))
	cmd.Flags().StringVar(&exportCmdFlags.APIKey, "api-key", "", fmt.Sprintf("%s API key, overrides the config file", service))
	cmd.Flags().StringVarP(&exportCmdFlags.OutputDir, "output-dir", "o", "", "Directory for the reports")
	cmd.Flags().StringSliceVar(&exportCmdFlags.Formats, "formats", nil, "Output formats ("+strings.Join(config.OutputFormats, ", ")+")")
	cmd.Flags().IntVar(&exportCmdFlags.MaxWorkers, "max-workers", 0, "Number of concurrent fetches")
	cmd.Flags().BoolVar(&exportCmdFlags.NoCache, "no-cache", false, "Disable the API response cache")
	cmd.Flags().BoolVar(&exportCmdFlags.NoAnalyze, "no-analyze", false, "Skip the health report")
	return cmd
}

func init() {
	rootCmd.AddCommand(
		newExportCmd(database.ServiceRadarr, `arrscore radarr --url http://localhost:7878 --api-key xxx
arrscore radarr --formats csv,json --no-analyze`),
		newExportCmd(database.ServiceSonarr, `arrscore sonarr --url http://localhost:8989 --api-key xxx
arrscore sonarr --max-workers 5 --output-dir ./reports`),
	)
}

func runExport(cmd *cobra.Command, service database.ServiceKind) error {
	cfg := loadConfig()
	if err := applyExportFlags(cmd, cfg, service); err != nil {
		return err
	}

	db := openDB(cfg)
	defer db.Close() //nolint: errcheck

	var backend *cache.Backend
	if !exportCmdFlags.NoCache {
		backend = cache.New(cfg.Cache)
	}
	src, err := newSource(cfg, service, backend)
	if err != nil {
		return err
	}

	exp := exporter.New(db, cfg.Export, exporter.WithAnalyzer(newAnalyzer(cfg, db)))
	summary, err := exp.Run(cmd.Context(), src)
	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		return err
	}
	log.Info("Export completed", "service", service)
	return nil
}

// applyExportFlags lets the command line override the config file.
func applyExportFlags(cmd *cobra.Command, cfg *config.Config, service database.ServiceKind) error {
	svc := cfg.Service(string(service))
	if svc == nil {
		svc = &config.ServiceConfig{}
		switch service {
		case database.ServiceRadarr:
			cfg.Radarr = svc
		case database.ServiceSonarr:
			cfg.Sonarr = svc
		}
	}
	if exportCmdFlags.URL != "" {
		svc.URL = strings.TrimSuffix(strings.TrimSpace(exportCmdFlags.URL), "/")
	}
	if exportCmdFlags.APIKey != "" {
		svc.APIKey = strings.TrimSpace(exportCmdFlags.APIKey)
	}
	svc.Enabled = true

	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.Export.OutputDir = exportCmdFlags.OutputDir
	}
	if flags.Changed("formats") {
		formats := make([]string, 0, len(exportCmdFlags.Formats))
		for _, f := range exportCmdFlags.Formats {
			f = strings.ToLower(strings.TrimSpace(f))
			if !slices.Contains(config.OutputFormats, f) {
				return fmt.Errorf("invalid format %q: must be one of %s", f, strings.Join(config.OutputFormats, ", "))
			}
			formats = append(formats, f)
		}
		cfg.Export.Formats = formats
	}
	if flags.Changed("max-workers") {
		if exportCmdFlags.MaxWorkers < 1 {
			return fmt.Errorf("--max-workers must be at least 1")
		}
		cfg.Export.MaxWorkers = exportCmdFlags.MaxWorkers
	}
	if exportCmdFlags.NoAnalyze {
		cfg.Export.Analyze = false
	}
	return nil
}
