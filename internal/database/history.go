package database

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// ErrLedgerImmutable is returned when something tries to change a ledger entry.
var ErrLedgerImmutable = errors.New("score history is append-only")

// ChangeKind represents the kind of score transition recorded in the ledger.
type ChangeKind string

const (
	// ChangeImproved indicates the score went up.
	ChangeImproved ChangeKind = "improved"
	// ChangeDegraded indicates the score went down.
	ChangeDegraded ChangeKind = "degraded"
	// ChangeNewFile indicates the first snapshot of an identifier.
	ChangeNewFile ChangeKind = "new_file"
	// ChangeRemoved indicates a snapshot was retired because its file was replaced.
	ChangeRemoved ChangeKind = "removed"
	// ChangeUnchanged indicates the score did not move. It is never written to the ledger.
	ChangeUnchanged ChangeKind = "unchanged"
)

// NoteSupersededByUpgrade is attached to REMOVED entries written by the reconciler.
const NoteSupersededByUpgrade = "superseded by upgrade"

// ClassifyChange compares the stored score with an incoming one.
// A nil previous score means the identifier has never been seen.
func ClassifyChange(previous *int, current int) ChangeKind {
	switch {
	case previous == nil:
		return ChangeNewFile
	case current > *previous:
		return ChangeImproved
	case current < *previous:
		return ChangeDegraded
	default:
		return ChangeUnchanged
	}
}

// ScoreHistory is one append-only ledger entry.
type ScoreHistory struct {
	ID               uint   `gorm:"primaryKey"`
	UniqueIdentifier string `gorm:"not null;index:idx_score_history_uid_time,priority:1"`
	// FileID is the physical file the entry refers to.
	FileID            int32
	Timestamp         time.Time  `gorm:"not null;index;index:idx_score_history_uid_time,priority:2"`
	TotalScore        int        `gorm:"not null"`
	PreviousScore     *int
	ChangeKind        ChangeKind `gorm:"not null;index"`
	CustomFormatsJSON string     `gorm:"column:custom_formats_json;type:text"`
	Notes             string
}

// TableName keeps the table name independent of the Go type name.
func (ScoreHistory) TableName() string {
	return "score_history"
}

// BeforeUpdate rejects updates of ledger entries.
func (ScoreHistory) BeforeUpdate(_ *gorm.DB) error {
	return ErrLedgerImmutable
}

// BeforeDelete rejects deletes of ledger entries.
func (ScoreHistory) BeforeDelete(_ *gorm.DB) error {
	return ErrLedgerImmutable
}

// ScoreTrend is a ledger entry joined with the current snapshot for display.
type ScoreTrend struct {
	ScoreHistory
	Title   string
	Service ServiceKind
}

func (c *Client) appendHistory(tx *gorm.DB, entry *ScoreHistory) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now()
	}
	return tx.Create(entry).Error
}

// GetHistory returns every ledger entry of an identifier in insertion order.
func (c *Client) GetHistory(ctx context.Context, uid string) ([]ScoreHistory, error) {
	var entries []ScoreHistory
	if err := c.db.WithContext(ctx).
		Where("unique_identifier = ?", uid).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		log.Error("failed to get score history", "uid", uid, "error", err)
		return nil, err
	}
	return entries, nil
}

// GetScoreTrends returns improvements and degradations from the trailing window, newest first.
func (c *Client) GetScoreTrends(ctx context.Context, days int, service ServiceKind) ([]ScoreTrend, error) {
	cutoff := c.now().AddDate(0, 0, -days)

	query := c.db.WithContext(ctx).
		Table("score_history AS h").
		Select("h.*, m.title AS title, m.service AS service").
		Joins("JOIN media_files m ON m.unique_identifier = h.unique_identifier").
		Where("h.timestamp >= ?", cutoff).
		Where("h.change_kind IN ?", []ChangeKind{ChangeImproved, ChangeDegraded})
	if service != "" {
		query = query.Where("m.service = ?", service)
	}

	var trends []ScoreTrend
	if err := query.Order("h.timestamp DESC, h.id DESC").Scan(&trends).Error; err != nil {
		log.Error("failed to get score trends", "error", err)
		return nil, err
	}
	return trends, nil
}
