// Package analyzer derives upgrade candidates, profile and format effectiveness
// and the library health report from the stored score snapshots.
//
// The analyzer only reads from the store. It keeps no state between calls.
package analyzer

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/samber/lo"
)

// Priorities of upgrade candidates. Lower is more severe.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
)

const bytesPerGB = 1024 * 1024 * 1024

// Options tune the analyzer.
type Options struct {
	// MinScoreThreshold is the score at or below which a file is considered at all.
	MinScoreThreshold int
	// CandidateLimit caps the candidates kept in the health report.
	CandidateLimit int
	// FormatLimit caps the formats kept in the health report.
	FormatLimit int
	// TrendDays is the window of the historical analysis.
	TrendDays int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MinScoreThreshold: -50,
		CandidateLimit:    20,
		FormatLimit:       15,
		TrendDays:         30,
	}
}

// OptionsFromConfig builds options from the analysis config. Unset values keep their defaults.
func OptionsFromConfig(cfg *config.AnalysisConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	opts.MinScoreThreshold = cfg.MinScoreThreshold
	if cfg.TrendDays > 0 {
		opts.TrendDays = cfg.TrendDays
	}
	return opts
}

// Analyzer computes statistics and rankings over a store.
type Analyzer struct {
	db   database.Reader
	opts Options
}

// New creates an analyzer reading from db.
func New(db database.Reader, opts Options) *Analyzer {
	return &Analyzer{db: db, opts: opts}
}

// Options returns the options of the analyzer.
func (a *Analyzer) Options() Options {
	return a.opts
}

// UpgradeCandidate is a file that one or more heuristics flagged for replacement.
type UpgradeCandidate struct {
	Record database.ScoreRecord `json:"record"`
	// Reason joins the messages of every triggered heuristic.
	Reason string `json:"reason"`
	// Priority is the most severe priority of the triggered heuristics.
	Priority int `json:"priority"`
	// PotentialScoreGain is a rough estimate; nil when no heuristic produced one.
	PotentialScoreGain *int `json:"potential_score_gain,omitempty"`
	// Recommendation is the first suggestion a heuristic made.
	Recommendation string `json:"recommendation,omitempty"`
}

// PriorityLabel returns a readable name of the candidate's priority.
func (c UpgradeCandidate) PriorityLabel() string {
	switch c.Priority {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// candidateContext is the library-wide data every heuristic compares against.
type candidateContext struct {
	avgScore      float64
	avgFileSizeGB float64
}

// IdentifyUpgradeCandidates returns the files at or below minScore that trigger at least
// one heuristic, most severe first and, within a priority, largest estimated gain first.
func (a *Analyzer) IdentifyUpgradeCandidates(ctx context.Context, service database.ServiceKind, minScore int) ([]UpgradeCandidate, error) {
	low, err := a.db.GetUpgradeCandidates(ctx, minScore, service)
	if err != nil {
		return nil, fmt.Errorf("failed to get low scoring files: %w", err)
	}
	stats, err := a.db.CalculateLibraryStats(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate library stats: %w", err)
	}

	lc := candidateContext{avgScore: stats.AverageScore, avgFileSizeGB: stats.AvgFileSizeGB}
	candidates := make([]UpgradeCandidate, 0, len(low))
	for _, rec := range low {
		if c, ok := evaluate(rec, lc); ok {
			candidates = append(candidates, c)
		}
	}

	slices.SortStableFunc(candidates, func(x, y UpgradeCandidate) int {
		return cmp.Or(
			cmp.Compare(x.Priority, y.Priority),
			cmp.Compare(gainOf(y), gainOf(x)),
		)
	})

	log.Debug("Identified upgrade candidates", "service", service, "lowScoring", len(low), "candidates", len(candidates))
	return candidates, nil
}

func gainOf(c UpgradeCandidate) int {
	if c.PotentialScoreGain == nil {
		return 0
	}
	return *c.PotentialScoreGain
}

// evaluate runs every heuristic against rec. The bool is false when none triggered.
func evaluate(rec database.ScoreRecord, lc candidateContext) (UpgradeCandidate, bool) {
	var reasons []string
	priority := PriorityLow
	var gain *int
	recommendation := ""

	gap := lc.avgScore - float64(rec.TotalScore)
	switch {
	case gap > 100:
		reasons = append(reasons, fmt.Sprintf("Score %.0f points below library average", gap))
		priority = min(priority, PriorityCritical)
		gain = lo.ToPtr(int(gap * 0.7))
	case gap > 50:
		reasons = append(reasons, fmt.Sprintf("Score %.0f points below library average", gap))
		priority = min(priority, PriorityHigh)
		gain = lo.ToPtr(int(gap * 0.5))
	case gap > 20:
		reasons = append(reasons, "Score below library average")
		priority = min(priority, PriorityMedium)
	}

	negative := lo.Filter(rec.CustomFormats, func(f database.CustomFormat, _ int) bool {
		return f.Score < 0
	})
	if len(negative) > 0 {
		reasons = append(reasons, fmt.Sprintf("Has %d negative-scoring format(s)", len(negative)))
		worst := lo.MinBy(negative, func(x, y database.CustomFormat) bool { return x.Score < y.Score })
		switch {
		case worst.Score < -50:
			priority = min(priority, PriorityCritical)
		case worst.Score < -20:
			priority = min(priority, PriorityHigh)
		}
		recommendation = fmt.Sprintf("Replace release to avoid '%s' format (score: %d)", worst.Name, worst.Score)
	}

	if rec.SizeBytes != nil && *rec.SizeBytes > 0 && lc.avgFileSizeGB > 0 {
		sizeGB := float64(*rec.SizeBytes) / bytesPerGB
		if sizeGB > lc.avgFileSizeGB*2 && rec.TotalScore < 0 {
			reasons = append(reasons, "Large file with poor quality score")
			priority = min(priority, PriorityHigh)
			if recommendation == "" {
				recommendation = "Consider replacing with higher quality, smaller release"
			}
		}
	}

	if strings.Contains(rec.Resolution, "2160p") && !lo.SomeBy(rec.CustomFormats, isHDRFormat) {
		reasons = append(reasons, "4K file missing HDR formats")
		priority = min(priority, PriorityMedium)
		if recommendation == "" {
			recommendation = "Look for HDR10 or Dolby Vision release"
		}
	}

	if len(reasons) == 0 {
		return UpgradeCandidate{}, false
	}
	return UpgradeCandidate{
		Record:             rec,
		Reason:             strings.Join(reasons, "; "),
		Priority:           priority,
		PotentialScoreGain: gain,
		Recommendation:     recommendation,
	}, true
}

// isHDRFormat reports whether a format name marks HDR or Dolby Vision content.
func isHDRFormat(f database.CustomFormat) bool {
	name := strings.ToUpper(f.Name)
	if strings.Contains(name, "HDR") || strings.Contains(name, "DOLBY VISION") {
		return true
	}
	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return (r < 'A' || r > 'Z') && (r < '0' || r > '9')
	})
	return slices.Contains(tokens, "DV")
}
