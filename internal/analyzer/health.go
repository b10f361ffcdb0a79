package analyzer

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/samber/lo"
)

// HealthReportVersion is bumped whenever the report layout changes.
const HealthReportVersion = 1

// FileCategory names a group of notable files attached to a report.
type FileCategory string

const (
	CategoryZeroScore    FileCategory = "zero_score"
	CategoryLargestFiles FileCategory = "largest_files"
)

// HealthFactors are the three normalized inputs of the health score, each 0 to 100.
type HealthFactors struct {
	AverageScore   float64 `json:"average_score"`
	PositiveShare  float64 `json:"positive_share"`
	CandidateRatio float64 `json:"candidate_ratio"`
}

// HistoricalAnalysis summarizes score transitions over a trailing window.
type HistoricalAnalysis struct {
	Days         int                   `json:"days"`
	Improvements int                   `json:"improvements"`
	Degradations int                   `json:"degradations"`
	NetChange    int                   `json:"net_change"`
	Recent       []database.ScoreTrend `json:"recent"`
}

// HealthReport is the versioned result of a library health analysis.
type HealthReport struct {
	Version     int                  `json:"version"`
	Service     database.ServiceKind `json:"service"`
	GeneratedAt time.Time            `json:"generated_at"`

	HealthScore float64       `json:"health_score"`
	Grade       string        `json:"grade"`
	Factors     HealthFactors `json:"factors"`

	TotalFiles          int                         `json:"total_files"`
	Statistics          *database.LibraryStatistics `json:"statistics"`
	TotalCandidates     int                         `json:"total_candidates"`
	CriticalCandidates  int                         `json:"critical_candidates"`
	UpgradeCandidates   []UpgradeCandidate          `json:"upgrade_candidates"`
	QualityProfiles     []ProfileAnalysis           `json:"quality_profiles"`
	FormatEffectiveness []FormatEffectiveness       `json:"format_effectiveness"`
	Recommendations     []string                    `json:"recommendations"`
	Achievements        []string                    `json:"achievements"`
	Warnings            []string                    `json:"warnings"`

	// Trends is only set when requested.
	Trends *HistoricalAnalysis `json:"trends,omitempty"`
	// FileCategories is only set when requested.
	FileCategories map[FileCategory][]database.ScoreRecord `json:"file_categories,omitempty"`
}

// ReportOptions select the optional parts of a health report.
type ReportOptions struct {
	// IncludeTrends adds the historical analysis.
	IncludeTrends bool
	// IncludeFileCategories adds the zero score and largest file lists.
	IncludeFileCategories bool
	// CategoryLimit caps each file category. 0 means 10.
	CategoryLimit int
}

// AverageScoreFactor maps the library average onto 0 to 100.
func AverageScoreFactor(avg float64) float64 {
	switch {
	case avg > 50:
		return 100
	case avg > 0:
		return 75 + avg/50*25
	case avg > -50:
		return 50 + (avg+50)/50*25
	default:
		return max(0, 25+(avg+100)/50*25)
	}
}

// ComputeFactors derives the health factors from the library figures.
func ComputeFactors(avg float64, positive, total, candidates int) HealthFactors {
	denom := float64(max(total, 1))
	return HealthFactors{
		AverageScore:   AverageScoreFactor(avg),
		PositiveShare:  float64(positive) / denom * 100,
		CandidateRatio: max(0, 100-float64(candidates)/denom*200),
	}
}

// Score is the unweighted mean of the factors.
func (f HealthFactors) Score() float64 {
	return (f.AverageScore + f.PositiveShare + f.CandidateRatio) / 3
}

// Grade maps a health score to a letter grade.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// GenerateHealthReport combines statistics, candidates, profile and format analysis
// into one report. It fails only when the store can't be read.
func (a *Analyzer) GenerateHealthReport(ctx context.Context, service database.ServiceKind, ro ReportOptions) (*HealthReport, error) {
	stats, err := a.db.CalculateLibraryStats(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate library stats: %w", err)
	}
	candidates, err := a.IdentifyUpgradeCandidates(ctx, service, a.opts.MinScoreThreshold)
	if err != nil {
		return nil, err
	}
	profiles, err := a.AnalyzeQualityProfiles(ctx, service)
	if err != nil {
		return nil, err
	}
	formats, err := a.AnalyzeCustomFormatEffectiveness(ctx, service)
	if err != nil {
		return nil, err
	}

	factors := ComputeFactors(stats.AverageScore, stats.FilesWithPositiveScores, stats.TotalFiles, len(candidates))
	score := factors.Score()
	critical := lo.CountBy(candidates, func(c UpgradeCandidate) bool { return c.Priority == PriorityCritical })

	report := &HealthReport{
		Version:             HealthReportVersion,
		Service:             service,
		GeneratedAt:         time.Now().UTC(),
		HealthScore:         score,
		Grade:               Grade(score),
		Factors:             factors,
		TotalFiles:          stats.TotalFiles,
		Statistics:          stats,
		TotalCandidates:     len(candidates),
		CriticalCandidates:  critical,
		UpgradeCandidates:   limit(candidates, a.opts.CandidateLimit),
		QualityProfiles:     profiles,
		FormatEffectiveness: limit(formats, a.opts.FormatLimit),
		Recommendations:     []string{},
		Achievements:        []string{},
		Warnings:            []string{},
	}

	switch {
	case stats.AverageScore > 50:
		report.Achievements = append(report.Achievements, "Excellent average library score")
	case stats.AverageScore < -20:
		report.Warnings = append(report.Warnings, "Poor average library score needs attention")
		report.Recommendations = append(report.Recommendations, "Review and optimize quality profile scoring")
	}

	positiveShare := factors.PositiveShare / 100
	switch {
	case positiveShare > 0.8:
		report.Achievements = append(report.Achievements, "Most files have positive quality scores")
	case positiveShare < 0.5:
		report.Warnings = append(report.Warnings, "Many files have negative scores")
		report.Recommendations = append(report.Recommendations, "Focus on upgrading files with negative scores first")
	}

	if critical > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d files need immediate attention", critical))
		report.Recommendations = append(report.Recommendations, "Prioritize upgrading critical files with very low scores")
	}

	if ro.IncludeTrends {
		trends, err := a.AnalyzeTrends(ctx, service, a.opts.TrendDays)
		if err != nil {
			log.Warn("Skipping historical analysis", "service", service, "error", err)
		} else {
			report.Trends = trends
			switch {
			case trends.NetChange > 0:
				report.Achievements = append(report.Achievements, fmt.Sprintf("Library quality improving: %d net improvements", trends.NetChange))
			case trends.NetChange < -5:
				report.Warnings = append(report.Warnings, "Library quality declining")
				report.Recommendations = append(report.Recommendations, "Investigate why scores are degrading")
			}
		}
	}

	if ro.IncludeFileCategories {
		report.FileCategories = a.fileCategories(ctx, service, ro.CategoryLimit)
	}

	log.Info("Generated library health report",
		"service", service,
		"score", fmt.Sprintf("%.1f", score),
		"grade", report.Grade,
		"candidates", len(candidates),
	)
	return report, nil
}

// AnalyzeTrends counts improvements and degradations over the last days.
func (a *Analyzer) AnalyzeTrends(ctx context.Context, service database.ServiceKind, days int) (*HistoricalAnalysis, error) {
	trends, err := a.db.GetScoreTrends(ctx, days, service)
	if err != nil {
		return nil, fmt.Errorf("failed to get score trends: %w", err)
	}

	h := &HistoricalAnalysis{Days: days, Recent: limit(trends, 10)}
	for _, t := range trends {
		switch t.ChangeKind {
		case database.ChangeImproved:
			h.Improvements++
		case database.ChangeDegraded:
			h.Degradations++
		}
	}
	h.NetChange = h.Improvements - h.Degradations
	return h, nil
}

func (a *Analyzer) fileCategories(ctx context.Context, service database.ServiceKind, n int) map[FileCategory][]database.ScoreRecord {
	if n <= 0 {
		n = 10
	}
	categories := make(map[FileCategory][]database.ScoreRecord, 2)

	zero, err := a.db.GetZeroScoreFiles(ctx, service, n)
	if err != nil {
		log.Warn("Skipping zero score files", "service", service, "error", err)
	} else {
		categories[CategoryZeroScore] = zero
	}

	sized, err := a.db.GetFilesWithSizeData(ctx, service, 0)
	if err != nil {
		log.Warn("Skipping largest files", "service", service, "error", err)
	} else {
		categories[CategoryLargestFiles] = limit(largestFirst(sized), n)
	}
	return categories
}

func largestFirst(recs []database.ScoreRecord) []database.ScoreRecord {
	sorted := slices.Clone(recs)
	slices.SortStableFunc(sorted, func(x, y database.ScoreRecord) int {
		return cmp.Compare(*y.SizeBytes, *x.SizeBytes)
	})
	return sorted
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	if items == nil {
		return []T{}
	}
	return items
}
