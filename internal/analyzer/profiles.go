package analyzer

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/jon4hz/arrscore/internal/database"
	"github.com/samber/lo"
)

// Score distribution buckets of a quality profile, best first.
const (
	BucketExcellent = "excellent (>100)"
	BucketGood      = "good (50-100)"
	BucketAverage   = "average (0-50)"
	BucketPoor      = "poor (-50-0)"
	BucketTerrible  = "terrible (<-50)"
)

// Buckets lists the distribution buckets in display order.
var Buckets = []string{BucketExcellent, BucketGood, BucketAverage, BucketPoor, BucketTerrible}

// Effectiveness ratings.
const (
	RatingExcellent = "excellent"
	RatingGood      = "good"
	RatingFair      = "fair"
	RatingPoor      = "poor"
)

// ProfileAnalysis describes how well one quality profile performs.
type ProfileAnalysis struct {
	ProfileName       string         `json:"profile_name"`
	FileCount         int            `json:"file_count"`
	AverageScore      float64        `json:"average_score"`
	ScoreDistribution map[string]int `json:"score_distribution"`
	Issues            []string       `json:"issues"`
	Recommendations   []string       `json:"recommendations"`
	Rating            string         `json:"rating"`
}

// Bucket returns the distribution bucket of a score.
func Bucket(score int) string {
	switch {
	case score > 100:
		return BucketExcellent
	case score >= 50:
		return BucketGood
	case score >= 0:
		return BucketAverage
	case score >= -50:
		return BucketPoor
	default:
		return BucketTerrible
	}
}

// Rating maps an average score to an effectiveness rating.
func Rating(avg float64) string {
	switch {
	case avg > 75:
		return RatingExcellent
	case avg > 25:
		return RatingGood
	case avg > -10:
		return RatingFair
	default:
		return RatingPoor
	}
}

// AnalyzeQualityProfiles rates every quality profile that has at least one file,
// best average first.
func (a *Analyzer) AnalyzeQualityProfiles(ctx context.Context, service database.ServiceKind) ([]ProfileAnalysis, error) {
	recs, err := a.db.GetScoreRecords(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("failed to get score records: %w", err)
	}
	if len(recs) == 0 {
		return []ProfileAnalysis{}, nil
	}

	libraryAvg := lo.MeanBy(recs, func(r database.ScoreRecord) float64 { return float64(r.TotalScore) })
	byProfile := lo.GroupBy(recs, func(r database.ScoreRecord) string { return r.QualityProfileName })

	analyses := make([]ProfileAnalysis, 0, len(byProfile))
	for name, files := range byProfile {
		analyses = append(analyses, analyzeProfile(name, files, libraryAvg))
	}

	slices.SortFunc(analyses, func(x, y ProfileAnalysis) int {
		return cmp.Or(cmp.Compare(y.AverageScore, x.AverageScore), cmp.Compare(x.ProfileName, y.ProfileName))
	})
	return analyses, nil
}

func analyzeProfile(name string, files []database.ScoreRecord, libraryAvg float64) ProfileAnalysis {
	dist := make(map[string]int, len(Buckets))
	for _, b := range Buckets {
		dist[b] = 0
	}
	sum := 0
	for _, f := range files {
		dist[Bucket(f.TotalScore)]++
		sum += f.TotalScore
	}

	count := len(files)
	avg := float64(sum) / float64(max(count, 1))
	pa := ProfileAnalysis{
		ProfileName:       name,
		FileCount:         count,
		AverageScore:      avg,
		ScoreDistribution: dist,
		Issues:            []string{},
		Recommendations:   []string{},
		Rating:            Rating(avg),
	}

	poorShare := float64(dist[BucketPoor]+dist[BucketTerrible]) / float64(max(count, 1))
	if poorShare >= 0.3 {
		pa.Issues = append(pa.Issues, fmt.Sprintf("%.1f%% of files have poor scores", poorShare*100))
		pa.Recommendations = append(pa.Recommendations, "Review custom format priorities and scoring")
	}
	if avg < libraryAvg-20 {
		pa.Issues = append(pa.Issues, "Below library average performance")
		pa.Recommendations = append(pa.Recommendations, "Consider adjusting format weights or cutoffs")
	}
	return pa
}
