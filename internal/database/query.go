package database

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

func (c *Client) snapshots(ctx context.Context, service ServiceKind) *gorm.DB {
	query := c.db.WithContext(ctx).Model(&ScoreRecord{})
	if service != "" {
		query = query.Where("service = ?", service)
	}
	return query
}

// GetScoreRecord returns the current snapshot of an identifier.
func (c *Client) GetScoreRecord(ctx context.Context, uid string) (*ScoreRecord, error) {
	var rec ScoreRecord
	if err := c.db.WithContext(ctx).Where("unique_identifier = ?", uid).First(&rec).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get score record", "uid", uid, "error", err)
		}
		return nil, err
	}
	return &rec, nil
}

// GetScoreRecords returns all current snapshots of a service in display order.
func (c *Client) GetScoreRecords(ctx context.Context, service ServiceKind) ([]ScoreRecord, error) {
	var recs []ScoreRecord
	if err := c.snapshots(ctx, service).
		Order("title ASC, season_number ASC, episode_number ASC").
		Find(&recs).Error; err != nil {
		log.Error("failed to get score records", "service", service, "error", err)
		return nil, err
	}
	return recs, nil
}

// GetUpgradeCandidates returns snapshots scoring at or below maxScore, lowest score first.
// This is only a pre-filter; the analyzer decides which of them are real candidates.
func (c *Client) GetUpgradeCandidates(ctx context.Context, maxScore int, service ServiceKind) ([]ScoreRecord, error) {
	var recs []ScoreRecord
	if err := c.snapshots(ctx, service).
		Where("total_score <= ?", maxScore).
		Order("total_score ASC, title ASC").
		Find(&recs).Error; err != nil {
		log.Error("failed to get upgrade candidates", "service", service, "error", err)
		return nil, err
	}
	return recs, nil
}

// GetZeroScoreFiles returns snapshots with a total score of exactly zero, most recent first.
// A limit of 0 returns all of them.
func (c *Client) GetZeroScoreFiles(ctx context.Context, service ServiceKind, limit int) ([]ScoreRecord, error) {
	query := c.snapshots(ctx, service).
		Where("total_score = 0").
		Order("recorded_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []ScoreRecord
	if err := query.Find(&recs).Error; err != nil {
		log.Error("failed to get zero score files", "service", service, "error", err)
		return nil, err
	}
	return recs, nil
}

// GetFilesWithSizeData returns snapshots with a known size, best score first, then largest.
func (c *Client) GetFilesWithSizeData(ctx context.Context, service ServiceKind, limit int) ([]ScoreRecord, error) {
	query := c.snapshots(ctx, service).
		Where("size_bytes > 0").
		Order("total_score DESC, size_bytes DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []ScoreRecord
	if err := query.Find(&recs).Error; err != nil {
		log.Error("failed to get files with size data", "service", service, "error", err)
		return nil, err
	}
	return recs, nil
}
