package database

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/log"
)

const bytesPerGB = 1024 * 1024 * 1024

// ProfileStats aggregates the files of one quality profile.
type ProfileStats struct {
	Name         string  `json:"name"`
	FileCount    int     `json:"file_count"`
	AverageScore float64 `json:"average_score"`
}

// FormatUsage aggregates one custom format across the library.
type FormatUsage struct {
	Name string `json:"name"`
	// Count is the number of files carrying the format.
	Count int `json:"count"`
	// AverageScore is the mean of the format's own score.
	AverageScore float64 `json:"average_score"`
}

// LibraryStatistics is computed on demand from the current snapshots.
type LibraryStatistics struct {
	Service      ServiceKind `json:"service"`
	CalculatedAt time.Time   `json:"calculated_at"`

	TotalFiles              int     `json:"total_files"`
	AverageScore            float64 `json:"average_score"`
	MedianScore             float64 `json:"median_score"`
	MinScore                int     `json:"min_score"`
	MaxScore                int     `json:"max_score"`
	FilesWithPositiveScores int     `json:"files_with_positive_scores"`
	FilesWithNegativeScores int     `json:"files_with_negative_scores"`
	FilesWithZeroScores     int     `json:"files_with_zero_scores"`

	QualityProfiles []ProfileStats `json:"quality_profiles"`
	CustomFormats   []FormatUsage  `json:"custom_formats"`

	TotalSizeBytes int64   `json:"total_size_bytes"`
	TotalSizeGB    float64 `json:"total_size_gb"`
	AvgFileSizeGB  float64 `json:"avg_file_size_gb"`

	ResolutionDistribution map[string]int `json:"resolution_distribution"`
	CodecDistribution      map[string]int `json:"codec_distribution"`
}

// CalculateLibraryStats computes the statistics of a service's current snapshots.
func (c *Client) CalculateLibraryStats(ctx context.Context, service ServiceKind) (*LibraryStatistics, error) {
	var recs []ScoreRecord
	if err := c.snapshots(ctx, service).
		Select("id", "unique_identifier", "total_score", "custom_formats", "quality_profile_name",
			"resolution", "codec", "size_bytes").
		Find(&recs).Error; err != nil {
		log.Error("failed to load snapshots for statistics", "service", service, "error", err)
		return nil, err
	}

	stats := Summarize(service, recs)
	stats.CalculatedAt = c.now()
	return stats, nil
}

// Summarize computes library statistics over the given snapshots.
// An empty input yields zero values, never an error.
func Summarize(service ServiceKind, recs []ScoreRecord) *LibraryStatistics {
	stats := &LibraryStatistics{
		Service:                service,
		CalculatedAt:           time.Now().UTC(),
		TotalFiles:             len(recs),
		QualityProfiles:        []ProfileStats{},
		CustomFormats:          []FormatUsage{},
		ResolutionDistribution: make(map[string]int),
		CodecDistribution:      make(map[string]int),
	}
	if len(recs) == 0 {
		return stats
	}

	type profileAcc struct {
		count int
		sum   int
	}
	type formatAcc struct {
		count int
		sum   int
	}
	profiles := make(map[string]*profileAcc)
	formats := make(map[string]*formatAcc)
	scores := make([]int, 0, len(recs))

	sum := 0
	stats.MinScore = recs[0].TotalScore
	stats.MaxScore = recs[0].TotalScore

	for i := range recs {
		r := &recs[i]
		score := r.TotalScore
		scores = append(scores, score)
		sum += score
		stats.MinScore = min(stats.MinScore, score)
		stats.MaxScore = max(stats.MaxScore, score)

		switch {
		case score > 0:
			stats.FilesWithPositiveScores++
		case score < 0:
			stats.FilesWithNegativeScores++
		default:
			stats.FilesWithZeroScores++
		}

		p, ok := profiles[r.QualityProfileName]
		if !ok {
			p = &profileAcc{}
			profiles[r.QualityProfileName] = p
		}
		p.count++
		p.sum += score

		for _, f := range r.CustomFormats {
			acc, ok := formats[f.Name]
			if !ok {
				acc = &formatAcc{}
				formats[f.Name] = acc
			}
			acc.count++
			acc.sum += f.Score
		}

		if r.SizeBytes != nil && *r.SizeBytes > 0 {
			stats.TotalSizeBytes += *r.SizeBytes
		}
		if r.Resolution != "" {
			stats.ResolutionDistribution[r.Resolution]++
		}
		if r.Codec != "" {
			stats.CodecDistribution[r.Codec]++
		}
	}

	stats.AverageScore = float64(sum) / float64(len(recs))
	stats.MedianScore = median(scores)

	for name, p := range profiles {
		stats.QualityProfiles = append(stats.QualityProfiles, ProfileStats{
			Name:         name,
			FileCount:    p.count,
			AverageScore: float64(p.sum) / float64(p.count),
		})
	}
	slices.SortFunc(stats.QualityProfiles, func(a, b ProfileStats) int {
		return cmp.Or(cmp.Compare(b.FileCount, a.FileCount), cmp.Compare(a.Name, b.Name))
	})

	for name, f := range formats {
		stats.CustomFormats = append(stats.CustomFormats, FormatUsage{
			Name:         name,
			Count:        f.count,
			AverageScore: float64(f.sum) / float64(f.count),
		})
	}
	slices.SortFunc(stats.CustomFormats, func(a, b FormatUsage) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Name, b.Name))
	})

	stats.TotalSizeGB = float64(stats.TotalSizeBytes) / bytesPerGB
	stats.AvgFileSizeGB = stats.TotalSizeGB / float64(max(stats.TotalFiles, 1))

	return stats
}

func median(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}
