package database

import (
	"fmt"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// reconcile retires snapshots of the same logical item that still point at an
// older physical file. Each one gets a REMOVED ledger entry tied to its old file id.
// Rows under a different identifier are deleted; the row sharing rec's identifier is
// left for the caller to update in place.
//
// Failures are logged and never block the incoming write. Only contention is
// returned, so the retry policy can run the whole write again.
func (c *Client) reconcile(tx *gorm.DB, rec *ScoreRecord) error {
	err := tx.Transaction(func(tx *gorm.DB) error {
		stale, err := findStale(tx, rec)
		if err != nil {
			return err
		}
		if len(stale) > 1 {
			log.Warn("found more superseded snapshots than expected",
				"uid", rec.UniqueIdentifier,
				"count", len(stale),
			)
		}

		for i := range stale {
			old := &stale[i]
			previous := old.TotalScore
			if err := c.appendHistory(tx, &ScoreHistory{
				UniqueIdentifier:  old.UniqueIdentifier,
				FileID:            old.FileID,
				TotalScore:        0,
				PreviousScore:     &previous,
				ChangeKind:        ChangeRemoved,
				CustomFormatsJSON: old.CustomFormatsJSON,
				Notes:             NoteSupersededByUpgrade,
			}); err != nil {
				return fmt.Errorf("failed to record removal of %s: %w", old.UniqueIdentifier, err)
			}

			if old.UniqueIdentifier == rec.UniqueIdentifier {
				continue
			}
			if err := tx.Delete(&ScoreRecord{}, old.ID).Error; err != nil {
				return fmt.Errorf("failed to delete superseded snapshot %s: %w", old.UniqueIdentifier, err)
			}
			log.Debug("retired superseded snapshot", "uid", old.UniqueIdentifier, "file_id", old.FileID)
		}
		return nil
	})
	if err != nil {
		if IsBusyError(err) {
			return err
		}
		log.Warn("failed to reconcile superseded snapshots", "uid", rec.UniqueIdentifier, "error", err)
	}
	return nil
}

// findStale returns the snapshots of rec's logical item whose file id differs from rec's.
func findStale(tx *gorm.DB, rec *ScoreRecord) ([]ScoreRecord, error) {
	query := tx.Model(&ScoreRecord{}).
		Where("service = ?", rec.Service).
		Where("file_id <> ?", rec.FileID)

	switch rec.Service {
	case ServiceRadarr:
		if rec.MovieID == nil {
			return nil, nil
		}
		query = query.Where("movie_id = ?", *rec.MovieID)
	case ServiceSonarr:
		if rec.SeriesID == nil || rec.SeasonNumber == nil || rec.EpisodeNumber == nil {
			return nil, nil
		}
		query = query.Where("series_id = ? AND season_number = ? AND episode_number = ?",
			*rec.SeriesID, *rec.SeasonNumber, *rec.EpisodeNumber)
	default:
		return nil, nil
	}

	var stale []ScoreRecord
	if err := query.Order("id ASC").Find(&stale).Error; err != nil {
		return nil, fmt.Errorf("failed to query superseded snapshots: %w", err)
	}
	return stale, nil
}
