package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/jon4hz/arrscore/internal/analyzer"
	"github.com/jon4hz/arrscore/internal/arr"
	"github.com/jon4hz/arrscore/internal/arr/radarr"
	"github.com/jon4hz/arrscore/internal/arr/sonarr"
	"github.com/jon4hz/arrscore/internal/cache"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/jon4hz/arrscore/internal/exporter"
)

// openDB opens the configured database. Failing to open or migrate it ends the command.
func openDB(cfg *config.Config) *database.Client {
	var opts []database.Option
	if cfg.Retry != nil {
		opts = append(opts, database.WithRetryPolicy(&database.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Multiplier:  cfg.Retry.Multiplier,
		}))
	}
	db, err := database.New(cfg.Database.Path, opts...)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	return db
}

func newAnalyzer(cfg *config.Config, db database.Reader) *analyzer.Analyzer {
	return analyzer.New(db, analyzer.OptionsFromConfig(cfg.Analysis))
}

// newSource builds the source of a service. backend may be nil to disable response caching.
func newSource(cfg *config.Config, service database.ServiceKind, backend *cache.Backend) (arr.Source, error) {
	svc := cfg.Service(string(service))
	if svc == nil {
		return nil, fmt.Errorf("%s is not configured", service)
	}
	if err := svc.Validate(string(service)); err != nil {
		return nil, err
	}

	pacer := exporter.NewLimiter(cfg.Export.RateLimit)
	switch service {
	case database.ServiceRadarr:
		return radarr.NewRadarr(radarr.NewClient(svc), svc, backend, pacer), nil
	case database.ServiceSonarr:
		return sonarr.NewSonarr(sonarr.NewClient(svc), svc, backend, pacer), nil
	}
	return nil, fmt.Errorf("unknown service %q", service)
}

func printSummary(w io.Writer, s *exporter.Summary) {
	fmt.Fprintf(w, "\n%s export summary\n", s.Service)
	fmt.Fprintf(w, "  Items:      %s\n", humanize.Comma(int64(s.Items)))
	fmt.Fprintf(w, "  Processed:  %s\n", humanize.Comma(int64(s.Counts.Processed)))
	fmt.Fprintf(w, "  New:        %d\n", s.Counts.New)
	fmt.Fprintf(w, "  Updated:    %d\n", s.Counts.Updated)
	fmt.Fprintf(w, "  Unchanged:  %d\n", s.Counts.Unchanged)
	fmt.Fprintf(w, "  Failed:     %d\n", s.Counts.Failed)
	fmt.Fprintf(w, "  Duration:   %s\n", s.Duration.Round(100*time.Millisecond))

	if h := s.Health; h != nil {
		fmt.Fprintf(w, "\nLibrary health: %.1f/100 (%s)\n", h.HealthScore, h.Grade)
		if h.Statistics != nil {
			fmt.Fprintf(w, "  Average score: %.1f, median %.1f\n", h.Statistics.AverageScore, h.Statistics.MedianScore)
		}
		fmt.Fprintf(w, "  Upgrade candidates: %d (%d critical)\n", h.TotalCandidates, h.CriticalCandidates)
		for _, msg := range h.Warnings {
			fmt.Fprintf(w, "  ! %s\n", msg)
		}
		for _, msg := range h.Achievements {
			fmt.Fprintf(w, "  * %s\n", msg)
		}
	}

	if len(s.Files) > 0 {
		fmt.Fprintln(w, "\nFiles written:")
		for _, path := range s.Files {
			fmt.Fprintf(w, "  %s\n", path)
		}
	}
}
