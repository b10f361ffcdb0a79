package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/dustin/go-humanize"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/mergestat/timediff"
	"github.com/spf13/cobra"
)

var dbStatsCmd = &cobra.Command{
	Use:   "db-stats",
	Short: "Show database statistics",
	Long:  `Display library statistics and recent export runs for every service.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()
		db := openDB(cfg)
		defer db.Close() //nolint: errcheck

		out := cmd.OutOrStdout()
		for _, service := range []database.ServiceKind{database.ServiceRadarr, database.ServiceSonarr} {
			stats, err := db.CalculateLibraryStats(cmd.Context(), service)
			if err != nil {
				return fmt.Errorf("failed to get %s statistics: %w", service, err)
			}
			runStats, err := db.GetExportRunStats(cmd.Context(), service)
			if err != nil {
				return fmt.Errorf("failed to get %s export run stats: %w", service, err)
			}

			fmt.Fprintf(out, "%s\n", service)
			printLibraryStats(out, stats)
			printRunStats(out, runStats)

			runs, err := db.GetExportRuns(cmd.Context(), service, 5)
			if err == nil && len(runs) > 0 {
				fmt.Fprintln(out, "  Recent export runs:")
				for _, run := range runs {
					duration := "-"
					if d := run.Duration(); d != nil {
						duration = d.Round(time.Second).String()
					}
					fmt.Fprintf(out, "    %s  %-9s  %s  files %d (new %d, updated %d, failed %d)  %s\n",
						run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Status, timediff.TimeDiff(run.StartedAt),
						run.FilesProcessed, run.FilesNew, run.FilesUpdated, run.FilesFailed, duration)
				}
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbStatsCmd)
}

func printLibraryStats(out io.Writer, stats *database.LibraryStatistics) {
	if stats.TotalFiles == 0 {
		fmt.Fprintln(out, "  No files stored")
		return
	}
	fmt.Fprintf(out, "  Files:          %s\n", humanize.Comma(int64(stats.TotalFiles)))
	fmt.Fprintf(out, "  Average score:  %.1f (median %.1f, min %d, max %d)\n", stats.AverageScore, stats.MedianScore, stats.MinScore, stats.MaxScore)
	fmt.Fprintf(out, "  Scores:         %d positive, %d zero, %d negative\n",
		stats.FilesWithPositiveScores, stats.FilesWithZeroScores, stats.FilesWithNegativeScores)
	if size, err := safecast.Convert[uint64](stats.TotalSizeBytes); err == nil && size > 0 {
		fmt.Fprintf(out, "  Total size:     %s (avg %.2f GB)\n", humanize.IBytes(size), stats.AvgFileSizeGB)
	}
	for _, p := range stats.QualityProfiles {
		fmt.Fprintf(out, "  Profile %-20s %6d files, avg %.1f\n", p.Name, p.FileCount, p.AverageScore)
	}
}

func printRunStats(out io.Writer, stats *database.ExportRunStats) {
	fmt.Fprintf(out, "  Export runs:    %d (%d completed, %d failed)\n", stats.TotalRuns, stats.CompletedRuns, stats.FailedRuns)
	fmt.Fprintf(out, "  Files exported: %s\n", humanize.Comma(stats.TotalFilesProcessed))
	if stats.AverageDuration != nil {
		fmt.Fprintf(out, "  Average run:    %s\n", stats.AverageDuration.Round(time.Second))
	}
	if stats.LastCompletedRun != nil {
		fmt.Fprintf(out, "  Last completed: %s\n", timediff.TimeDiff(*stats.LastCompletedRun))
	}
}
