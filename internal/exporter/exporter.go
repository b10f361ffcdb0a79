// Package exporter runs an export: it fetches every item of a source with a bounded
// worker pool, stores the resulting score records and writes the configured outputs.
package exporter

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/arrscore/internal/analyzer"
	"github.com/jon4hz/arrscore/internal/arr"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/jon4hz/arrscore/internal/report"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// NewLimiter returns a pacer allowing perSecond requests per second.
// It returns nil when perSecond is not positive, which disables pacing.
func NewLimiter(perSecond float64) arr.Pacer {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
}

// Result is the outcome of fetching one item. It carries the item it belongs to.
type Result struct {
	Item    arr.Item
	Records []database.ScoreRecord
	Err     error
}

// Summary describes a finished export.
type Summary struct {
	RunID    string
	Service  database.ServiceKind
	Items    int
	Counts   database.ExportRunCounts
	Records  []database.ScoreRecord
	Health   *analyzer.HealthReport
	Files    []string
	Duration time.Duration
}

// Exporter runs exports against one store.
type Exporter struct {
	db       database.DB
	cfg      *config.ExportConfig
	analyzer *analyzer.Analyzer
	writer   *report.Writer
	progress bool
}

// Option configures an exporter.
type Option func(*Exporter)

// WithAnalyzer overrides the analyzer used after an export.
func WithAnalyzer(a *analyzer.Analyzer) Option {
	return func(e *Exporter) {
		e.analyzer = a
	}
}

// WithProgress controls the progress bar. It is only ever drawn on a terminal.
func WithProgress(enabled bool) Option {
	return func(e *Exporter) {
		e.progress = enabled
	}
}

// New creates an exporter.
func New(db database.DB, cfg *config.ExportConfig, opts ...Option) *Exporter {
	e := &Exporter{
		db:       db,
		cfg:      cfg,
		analyzer: analyzer.New(db, analyzer.DefaultOptions()),
		writer:   report.NewWriter(cfg.OutputDir),
		progress: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run exports every item of src. Item and record failures are logged and counted;
// Run only fails when the items can't be listed or the context is cancelled.
func (e *Exporter) Run(ctx context.Context, src arr.Source) (*Summary, error) {
	start := time.Now()
	service := src.Service()
	summary := &Summary{Service: service}

	run, err := e.db.StartExportRun(ctx, service)
	if err != nil {
		log.Warn("Failed to record export run start", "service", service, "error", err)
	} else {
		summary.RunID = run.ID
	}

	src.ResetRun(ctx)

	items, err := src.ListItems(ctx)
	if err != nil {
		e.completeRun(ctx, summary, err)
		return nil, fmt.Errorf("failed to list %s items: %w", service, err)
	}
	summary.Items = len(items)
	log.Info("Starting export", "service", service, "items", len(items), "workers", e.cfg.MaxWorkers)

	results := e.fetchAll(ctx, src, items)
	records := e.consume(ctx, results, len(items), summary)
	summary.Records = records

	if err := ctx.Err(); err != nil {
		e.completeRun(ctx, summary, err)
		return summary, fmt.Errorf("export of %s interrupted: %w", service, err)
	}
	e.completeRun(ctx, summary, nil)

	if e.cfg.Analyze {
		health, err := e.analyzer.GenerateHealthReport(ctx, service, analyzer.ReportOptions{
			IncludeTrends:         true,
			IncludeFileCategories: true,
		})
		if err != nil {
			log.Error("Failed to generate health report", "service", service, "error", err)
		} else {
			summary.Health = health
		}
	}

	files, err := e.writer.WriteAll(service, e.cfg.Formats, records, summary.Health)
	if err != nil {
		log.Error("Failed to write some outputs", "service", service, "error", err)
	}
	summary.Files = files

	summary.Duration = time.Since(start)
	log.Info("Export finished",
		"service", service,
		"processed", summary.Counts.Processed,
		"new", summary.Counts.New,
		"updated", summary.Counts.Updated,
		"unchanged", summary.Counts.Unchanged,
		"failed", summary.Counts.Failed,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary, nil
}

// fetchAll fans the items out over the worker pool. The returned channel is closed
// once every scheduled fetch finished. Cancelling ctx stops scheduling new fetches.
func (e *Exporter) fetchAll(ctx context.Context, src arr.Source, items []arr.Item) <-chan Result {
	results := make(chan Result, max(e.cfg.MaxWorkers, 1))

	go func() {
		defer close(results)

		g := new(errgroup.Group)
		g.SetLimit(max(e.cfg.MaxWorkers, 1))
		for _, item := range items {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				recs, err := src.Fetch(ctx, item)
				results <- Result{Item: item, Records: recs, Err: err}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return results
}

// consume stores the records as they arrive, batch by batch, and returns every
// record it received in display order.
func (e *Exporter) consume(ctx context.Context, results <-chan Result, total int, summary *Summary) []database.ScoreRecord {
	bar := newProgress(e.progress, total, fmt.Sprintf("Exporting %s", summary.Service))
	batchSize := max(e.cfg.BatchSize, 1)
	batch := make([]database.ScoreRecord, 0, batchSize)
	var all []database.ScoreRecord

	for res := range results {
		bar.Add(1)
		if res.Err != nil {
			if !errors.Is(res.Err, context.Canceled) {
				log.Error("Failed to fetch item", "service", summary.Service, "id", res.Item.ID, "title", res.Item.Label, "error", res.Err)
			}
			summary.Counts.Failed++
			continue
		}

		all = append(all, res.Records...)
		batch = append(batch, res.Records...)
		if len(batch) >= batchSize {
			e.flush(ctx, batch, &summary.Counts)
			batch = batch[:0]
		}
	}
	e.flush(ctx, batch, &summary.Counts)
	bar.Finish()

	slices.SortFunc(all, func(a, b database.ScoreRecord) int {
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.UniqueIdentifier, b.UniqueIdentifier))
	})
	return all
}

// flush stores a batch in one transaction. When the batch fails as a whole the
// records are retried one by one so a single bad record can't sink the others.
func (e *Exporter) flush(ctx context.Context, batch []database.ScoreRecord, counts *database.ExportRunCounts) {
	if len(batch) == 0 {
		return
	}
	// cancellation must not lose records that were already fetched
	ctx = context.WithoutCancel(ctx)
	counts.Processed += len(batch)

	res, err := e.db.StoreBatch(ctx, batch)
	if err == nil {
		counts.Failed += res.Skipped
		addChanges(counts, res.Changes)
		return
	}

	log.Warn("Batch store failed, storing records one by one", "records", len(batch), "error", err)
	for i := range batch {
		kind, err := e.db.Store(ctx, batch[i])
		if err != nil {
			log.Error("failed to store score record", "uid", batch[i].UniqueIdentifier, "error", err)
			counts.Failed++
			continue
		}
		addChanges(counts, map[database.ChangeKind]int{kind: 1})
	}
}

func addChanges(counts *database.ExportRunCounts, changes map[database.ChangeKind]int) {
	for kind, n := range changes {
		switch kind {
		case database.ChangeNewFile:
			counts.New += n
		case database.ChangeImproved, database.ChangeDegraded:
			counts.Updated += n
		case database.ChangeUnchanged:
			counts.Unchanged += n
		}
	}
}

func (e *Exporter) completeRun(ctx context.Context, summary *Summary, runErr error) {
	if summary.RunID == "" {
		return
	}
	status := database.ExportRunCompleted
	var msg *string
	if runErr != nil {
		status = database.ExportRunFailed
		m := runErr.Error()
		msg = &m
	}
	if err := e.db.CompleteExportRun(context.WithoutCancel(ctx), summary.RunID, status, summary.Counts, msg); err != nil {
		log.Warn("Failed to record export run completion", "run", summary.RunID, "error", err)
	}
}
