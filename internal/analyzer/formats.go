package analyzer

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/jon4hz/arrscore/internal/database"
)

// Impact ratings of a custom format.
const (
	ImpactHigh     = "high"
	ImpactMedium   = "medium"
	ImpactLow      = "low"
	ImpactNegative = "negative"
)

// FormatEffectiveness relates a custom format to the scores of the files carrying it.
type FormatEffectiveness struct {
	FormatName string `json:"format_name"`
	// UsageCount counts every occurrence of the format.
	UsageCount int `json:"usage_count"`
	// AverageContribution is the mean total score of the files carrying the format.
	AverageContribution float64  `json:"average_contribution"`
	FilesWithFormat     int      `json:"files_with_format"`
	Impact              string   `json:"impact"`
	Recommendations     []string `json:"recommendations"`
}

// Impact maps an average contribution to an impact rating.
func Impact(avg float64) string {
	switch {
	case avg > 50:
		return ImpactHigh
	case avg > 10:
		return ImpactMedium
	case avg >= 0:
		return ImpactLow
	default:
		return ImpactNegative
	}
}

// AnalyzeCustomFormatEffectiveness aggregates every format seen in the library.
//
// Each file's total score is credited to every format it carries, not the format's own
// score, so a format is judged by the overall quality of the files it shows up on.
// The result is sorted by average contribution, highest first.
func (a *Analyzer) AnalyzeCustomFormatEffectiveness(ctx context.Context, service database.ServiceKind) ([]FormatEffectiveness, error) {
	recs, err := a.db.GetScoreRecords(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("failed to get score records: %w", err)
	}

	type acc struct {
		count int
		total int
		files map[string]struct{}
	}
	formats := make(map[string]*acc)
	for _, rec := range recs {
		for _, f := range rec.CustomFormats {
			name := f.Name
			if name == "" {
				name = "Unknown"
			}
			s, ok := formats[name]
			if !ok {
				s = &acc{files: make(map[string]struct{})}
				formats[name] = s
			}
			s.count++
			s.total += rec.TotalScore
			s.files[rec.UniqueIdentifier] = struct{}{}
		}
	}

	result := make([]FormatEffectiveness, 0, len(formats))
	for name, s := range formats {
		avg := float64(s.total) / float64(s.count)
		result = append(result, FormatEffectiveness{
			FormatName:          name,
			UsageCount:          s.count,
			AverageContribution: avg,
			FilesWithFormat:     len(s.files),
			Impact:              Impact(avg),
			Recommendations:     formatRecommendations(avg, s.count),
		})
	}

	slices.SortFunc(result, func(x, y FormatEffectiveness) int {
		return cmp.Or(cmp.Compare(y.AverageContribution, x.AverageContribution), cmp.Compare(x.FormatName, y.FormatName))
	})
	return result, nil
}

func formatRecommendations(avg float64, usage int) []string {
	switch {
	case avg < -20:
		return []string{"Consider removing or reducing score weight"}
	case avg > 100 && usage < 10:
		return []string{"Highly effective but underutilized - promote this format"}
	case usage > 100 && math.Abs(avg) < 5:
		return []string{"High usage but low impact - review necessity"}
	}
	return []string{}
}
