package database

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExportRunStatus represents the state of an export run.
type ExportRunStatus string

const (
	ExportRunRunning   ExportRunStatus = "running"
	ExportRunCompleted ExportRunStatus = "completed"
	ExportRunFailed    ExportRunStatus = "failed"
)

// ExportRun records one export of a service.
type ExportRun struct {
	ID             string          `gorm:"primaryKey"`
	Service        ServiceKind     `gorm:"not null;index"`
	StartedAt      time.Time       `gorm:"not null;index"`
	CompletedAt    *time.Time
	Status         ExportRunStatus `gorm:"not null;index"`
	FilesProcessed int
	FilesNew       int
	FilesUpdated   int
	FilesUnchanged int
	FilesFailed    int
	ErrorMessage   *string
}

// Duration returns how long the run took, or nil while it is still running.
func (r *ExportRun) Duration() *time.Duration {
	if r.CompletedAt == nil {
		return nil
	}
	d := r.CompletedAt.Sub(r.StartedAt)
	return &d
}

// ExportRunCounts are the per-file outcomes of a run.
type ExportRunCounts struct {
	Processed int
	New       int
	Updated   int
	Unchanged int
	Failed    int
}

// ExportRunStats summarizes all runs of a service.
type ExportRunStats struct {
	TotalRuns           int64
	CompletedRuns       int64
	FailedRuns          int64
	TotalFilesProcessed int64
	LastCompletedRun    *time.Time
	AverageDuration     *time.Duration
}

// StartExportRun creates a running export run.
func (c *Client) StartExportRun(ctx context.Context, service ServiceKind) (*ExportRun, error) {
	run := &ExportRun{
		ID:        uuid.NewString(),
		Service:   service,
		StartedAt: c.now(),
		Status:    ExportRunRunning,
	}
	if err := c.write(ctx, "start export run", func(tx *gorm.DB) error {
		return tx.Create(run).Error
	}); err != nil {
		log.Error("failed to start export run", "service", service, "error", err)
		return nil, err
	}
	return run, nil
}

// CompleteExportRun marks a run as finished and stores its counts.
func (c *Client) CompleteExportRun(ctx context.Context, id string, status ExportRunStatus, counts ExportRunCounts, errorMessage *string) error {
	completedAt := c.now()
	err := c.write(ctx, "complete export run", func(tx *gorm.DB) error {
		result := tx.Model(&ExportRun{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"completed_at":    completedAt,
				"status":          status,
				"files_processed": counts.Processed,
				"files_new":       counts.New,
				"files_updated":   counts.Updated,
				"files_unchanged": counts.Unchanged,
				"files_failed":    counts.Failed,
				"error_message":   errorMessage,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("export run %s not found", id)
		}
		return nil
	})
	if err != nil {
		log.Error("failed to complete export run", "id", id, "error", err)
		return err
	}
	return nil
}

// GetExportRuns returns the most recent runs first. An empty service returns runs of all services.
func (c *Client) GetExportRuns(ctx context.Context, service ServiceKind, limit int) ([]ExportRun, error) {
	query := c.db.WithContext(ctx).Order("started_at DESC")
	if service != "" {
		query = query.Where("service = ?", service)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []ExportRun
	if err := query.Find(&runs).Error; err != nil {
		log.Error("failed to get export runs", "error", err)
		return nil, err
	}
	return runs, nil
}

// GetExportRunStats aggregates all runs of a service.
func (c *Client) GetExportRunStats(ctx context.Context, service ServiceKind) (*ExportRunStats, error) {
	runs, err := c.GetExportRuns(ctx, service, 0)
	if err != nil {
		return nil, err
	}

	stats := &ExportRunStats{TotalRuns: int64(len(runs))}
	var total time.Duration
	var finished int64
	for i := range runs {
		run := &runs[i]
		stats.TotalFilesProcessed += int64(run.FilesProcessed)
		switch run.Status {
		case ExportRunCompleted:
			stats.CompletedRuns++
			if run.CompletedAt != nil && (stats.LastCompletedRun == nil || run.CompletedAt.After(*stats.LastCompletedRun)) {
				stats.LastCompletedRun = run.CompletedAt
			}
		case ExportRunFailed:
			stats.FailedRuns++
		}
		if d := run.Duration(); d != nil {
			total += *d
			finished++
		}
	}
	if finished > 0 {
		avg := total / time.Duration(finished)
		stats.AverageDuration = &avg
	}
	return stats, nil
}
