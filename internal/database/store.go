package database

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchResult summarizes a StoreBatch call.
type BatchResult struct {
	// Stored is the number of records written.
	Stored int
	// Skipped is the number of records that were logged and left out.
	Skipped int
	// Changes counts the stored records by change kind.
	Changes map[ChangeKind]int
}

// Store ingests one score record in its own transaction.
// It is safe to call from many goroutines; writes are serialized.
func (c *Client) Store(ctx context.Context, rec ScoreRecord) (ChangeKind, error) {
	if err := rec.Validate(); err != nil {
		log.Error("refusing to store score record", "uid", rec.UniqueIdentifier, "error", err)
		return "", err
	}

	var kind ChangeKind
	err := c.write(ctx, "store "+rec.UniqueIdentifier, func(tx *gorm.DB) error {
		r := rec
		var err error
		kind, err = c.writeRecord(tx, &r)
		return err
	})
	if err != nil {
		log.Error("failed to store score record", "uid", rec.UniqueIdentifier, "error", err)
		return "", err
	}
	return kind, nil
}

// StoreBatch ingests many records in one transaction. A record that fails
// validation or its own write is logged and skipped; the rest still commit.
func (c *Client) StoreBatch(ctx context.Context, recs []ScoreRecord) (BatchResult, error) {
	var result BatchResult
	err := c.write(ctx, fmt.Sprintf("store batch of %d", len(recs)), func(tx *gorm.DB) error {
		result = BatchResult{Changes: make(map[ChangeKind]int)}

		for i := range recs {
			r := recs[i]
			if err := r.Validate(); err != nil {
				log.Error("skipping invalid score record in batch", "uid", r.UniqueIdentifier, "error", err)
				result.Skipped++
				continue
			}

			var kind ChangeKind
			err := tx.Transaction(func(sp *gorm.DB) error {
				var err error
				kind, err = c.writeRecord(sp, &r)
				return err
			})
			if err != nil {
				if IsBusyError(err) {
					return err
				}
				log.Error("skipping score record in batch", "uid", r.UniqueIdentifier, "error", err)
				result.Skipped++
				continue
			}

			result.Stored++
			result.Changes[kind]++
		}
		return nil
	})
	if err != nil {
		log.Error("failed to store score record batch", "count", len(recs), "error", err)
		return BatchResult{}, err
	}
	return result, nil
}

// write runs fn in a transaction under the process-wide write lock, retrying on contention.
func (c *Client) write(ctx context.Context, name string, fn func(tx *gorm.DB) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.retry.Do(ctx, name, func() error {
		return c.db.WithContext(ctx).Transaction(fn)
	})
}

// writeRecord reconciles, diffs and writes one record, appending to the ledger
// unless the score is unchanged.
func (c *Client) writeRecord(tx *gorm.DB, rec *ScoreRecord) (ChangeKind, error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = c.now()
	}
	formats, err := encodeFormats(rec.CustomFormats)
	if err != nil {
		return "", err
	}
	rec.CustomFormatsJSON = formats

	if err := c.reconcile(tx, rec); err != nil {
		return "", err
	}

	var existing ScoreRecord
	result := tx.Where("unique_identifier = ?", rec.UniqueIdentifier).Limit(1).Find(&existing)
	if result.Error != nil {
		return "", fmt.Errorf("failed to look up snapshot: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		rec.ID = 0
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unique_identifier"}},
			UpdateAll: true,
		}).Create(rec).Error; err != nil {
			return "", fmt.Errorf("failed to insert snapshot: %w", err)
		}
		if err := c.appendHistory(tx, &ScoreHistory{
			UniqueIdentifier:  rec.UniqueIdentifier,
			FileID:            rec.FileID,
			TotalScore:        rec.TotalScore,
			ChangeKind:        ChangeNewFile,
			CustomFormatsJSON: rec.CustomFormatsJSON,
		}); err != nil {
			return "", fmt.Errorf("failed to append history: %w", err)
		}
		return ChangeNewFile, nil
	}

	previous := existing.TotalScore
	kind := ClassifyChange(&previous, rec.TotalScore)

	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	if err := tx.Save(rec).Error; err != nil {
		return "", fmt.Errorf("failed to update snapshot: %w", err)
	}

	if kind == ChangeUnchanged {
		return kind, nil
	}
	if err := c.appendHistory(tx, &ScoreHistory{
		UniqueIdentifier:  rec.UniqueIdentifier,
		FileID:            rec.FileID,
		TotalScore:        rec.TotalScore,
		PreviousScore:     &previous,
		ChangeKind:        kind,
		CustomFormatsJSON: rec.CustomFormatsJSON,
	}); err != nil {
		return "", fmt.Errorf("failed to append history: %w", err)
	}
	return kind, nil
}
