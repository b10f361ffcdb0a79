package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/arrscore/internal/analyzer"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/jon4hz/arrscore/internal/report"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var analyzeCmdFlags struct {
	Service  string
	MinScore int
	Limit    int
	Output   string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "List upgrade candidates from the stored scores",
	Long: `Rank the stored files of a service by how much they would benefit from an upgrade.
Only files scoring at or below --min-score are considered.`,
	Example: `arrscore analyze --service radarr
arrscore analyze --service sonarr --min-score 0 --limit 50 --output candidates.json`,
	Args: cobra.NoArgs,
	RunE: analyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeCmdFlags.Service, "service", "s", "", "Service to analyze (radarr or sonarr)")
	analyzeCmd.Flags().IntVar(&analyzeCmdFlags.MinScore, "min-score", 0, "Score threshold, defaults to analysis.min_score_threshold")
	analyzeCmd.Flags().IntVarP(&analyzeCmdFlags.Limit, "limit", "n", 0, "Number of candidates to print, defaults to analysis.candidate_limit")
	analyzeCmd.Flags().StringVarP(&analyzeCmdFlags.Output, "output", "o", "", "Also write the candidates to this JSON file")
	_ = analyzeCmd.MarkFlagRequired("service")

	rootCmd.AddCommand(analyzeCmd)
}

func analyze(cmd *cobra.Command, _ []string) error {
	service, err := database.ParseServiceKind(analyzeCmdFlags.Service)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	db := openDB(cfg)
	defer db.Close() //nolint: errcheck

	a := newAnalyzer(cfg, db)
	minScore := a.Options().MinScoreThreshold
	if cmd.Flags().Changed("min-score") {
		minScore = analyzeCmdFlags.MinScore
	}
	limit := cfg.Analysis.CandidateLimit
	if cmd.Flags().Changed("limit") {
		limit = analyzeCmdFlags.Limit
	}

	candidates, err := a.IdentifyUpgradeCandidates(cmd.Context(), service, minScore)
	if err != nil {
		return fmt.Errorf("failed to identify upgrade candidates: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d %s upgrade candidates with a score of %d or less\n\n", len(candidates), service, minScore)
	shown := candidates
	if limit > 0 {
		shown = lo.Slice(candidates, 0, limit)
	}
	for i, c := range shown {
		gain := "-"
		if c.PotentialScoreGain != nil {
			gain = fmt.Sprintf("+%d", *c.PotentialScoreGain)
		}
		fmt.Fprintf(out, "%3d. [%s] %s\n", i+1, c.PriorityLabel(), c.Record.DisplayName())
		fmt.Fprintf(out, "     score %d, potential gain %s, profile %s\n", c.Record.TotalScore, gain, c.Record.QualityProfileName)
		fmt.Fprintf(out, "     %s\n", c.Reason)
		if c.Recommendation != "" {
			fmt.Fprintf(out, "     -> %s\n", c.Recommendation)
		}
	}
	if len(shown) < len(candidates) {
		fmt.Fprintf(out, "\n... and %d more\n", len(candidates)-len(shown))
	}

	if analyzeCmdFlags.Output != "" {
		if err := writeCandidates(analyzeCmdFlags.Output, candidates); err != nil {
			return err
		}
		log.Info("Wrote upgrade candidates", "path", analyzeCmdFlags.Output)
	}
	return nil
}

func writeCandidates(path string, candidates []analyzer.UpgradeCandidate) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close() //nolint: errcheck

	if candidates == nil {
		candidates = []analyzer.UpgradeCandidate{}
	}
	return report.WriteJSON(f, candidates)
}
