package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// ErrInvalidRecord is returned for score records that can't be stored.
var ErrInvalidRecord = errors.New("invalid score record")

// ServiceKind identifies the application a record was exported from.
// The empty value means "all services" in queries that accept it.
type ServiceKind string

const (
	// ServiceRadarr is the movie service.
	ServiceRadarr ServiceKind = "radarr"
	// ServiceSonarr is the episode service.
	ServiceSonarr ServiceKind = "sonarr"
)

// Valid reports whether s is a known service.
func (s ServiceKind) Valid() bool {
	return s == ServiceRadarr || s == ServiceSonarr
}

// ParseServiceKind parses a service name as given on the command line.
func ParseServiceKind(s string) (ServiceKind, error) {
	kind := ServiceKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", fmt.Errorf("unknown service %q (expected radarr or sonarr)", s)
	}
	return kind, nil
}

// CustomFormat is a single custom format matched by a file.
type CustomFormat struct {
	Name     string   `json:"name"`
	Score    int      `json:"score"`
	FormatID int32    `json:"format_id"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ScoreRecord is the scoring snapshot of one media file.
// A row in media_files is the current snapshot of one logical item.
type ScoreRecord struct {
	ID               uint        `gorm:"primaryKey"`
	UniqueIdentifier string      `gorm:"uniqueIndex;not null"`
	Service          ServiceKind `gorm:"not null;index"`
	FileID           int32       `gorm:"not null;index"`
	Title            string      `gorm:"not null"`
	RelativePath     string
	TotalScore       int `gorm:"not null;index"`
	// CustomFormats is kept in order. It is persisted as JSON in CustomFormatsJSON.
	CustomFormats      []CustomFormat `gorm:"-"`
	CustomFormatsJSON  string         `gorm:"column:custom_formats;type:text"`
	QualityProfileID   int32
	QualityProfileName string `gorm:"index"`
	Quality            string
	Codec              string
	Resolution         string
	SizeBytes          *int64
	RecordedAt         time.Time `gorm:"not null;index"`
	FileModifiedAt     *time.Time

	// Movie service
	MovieID *int32 `gorm:"index"`
	Year    int32
	ImdbID  string
	TmdbID  int32

	// Episode service
	SeriesID      *int32 `gorm:"index:idx_media_files_episode,priority:1"`
	SeasonNumber  *int32 `gorm:"index:idx_media_files_episode,priority:2"`
	EpisodeNumber *int32 `gorm:"index:idx_media_files_episode,priority:3"`
	EpisodeTitle  string
	TvdbID        int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the table name independent of the Go type name.
func (ScoreRecord) TableName() string {
	return "media_files"
}

// AfterFind decodes the stored format list. A corrupt list is logged and
// dropped so one bad row never fails a whole query.
func (r *ScoreRecord) AfterFind(_ *gorm.DB) error {
	formats, err := decodeFormats(r.CustomFormatsJSON)
	if err != nil {
		log.Warn("skipping malformed custom formats", "uid", r.UniqueIdentifier, "error", err)
		r.CustomFormats = nil
		return nil
	}
	r.CustomFormats = formats
	return nil
}

// Validate checks that the record carries everything the store needs.
func (r *ScoreRecord) Validate() error {
	if r.UniqueIdentifier == "" {
		return fmt.Errorf("%w: missing unique identifier", ErrInvalidRecord)
	}
	if !r.Service.Valid() {
		return fmt.Errorf("%w: unknown service %q", ErrInvalidRecord, r.Service)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: missing title for %s", ErrInvalidRecord, r.UniqueIdentifier)
	}
	switch r.Service {
	case ServiceRadarr:
		if r.MovieID == nil {
			return fmt.Errorf("%w: movie record %s has no movie id", ErrInvalidRecord, r.UniqueIdentifier)
		}
	case ServiceSonarr:
		if r.SeriesID == nil || r.SeasonNumber == nil || r.EpisodeNumber == nil {
			return fmt.Errorf("%w: episode record %s needs series, season and episode", ErrInvalidRecord, r.UniqueIdentifier)
		}
	}
	return nil
}

// DisplayName returns the title shown in reports.
func (r *ScoreRecord) DisplayName() string {
	if r.Service != ServiceSonarr || r.SeasonNumber == nil || r.EpisodeNumber == nil {
		return r.Title
	}
	name := fmt.Sprintf("%s - S%02dE%02d", r.Title, *r.SeasonNumber, *r.EpisodeNumber)
	if r.EpisodeTitle != "" {
		name += " - " + r.EpisodeTitle
	}
	return name
}

// MovieIdentifier derives the identifier of a movie. It never includes the file id,
// so a re-download keeps the same identifier.
func MovieIdentifier(movieID int32) string {
	return fmt.Sprintf("%s:%d", ServiceRadarr, movieID)
}

// EpisodeIdentifier derives the identifier of an episode.
func EpisodeIdentifier(seriesID, season, episode int32) string {
	return fmt.Sprintf("%s:%d:S%02dE%02d", ServiceSonarr, seriesID, season, episode)
}

func encodeFormats(formats []CustomFormat) (string, error) {
	if formats == nil {
		formats = []CustomFormat{}
	}
	data, err := json.Marshal(formats)
	if err != nil {
		return "", fmt.Errorf("failed to encode custom formats: %w", err)
	}
	return string(data), nil
}

func decodeFormats(data string) ([]CustomFormat, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var formats []CustomFormat
	if err := json.Unmarshal([]byte(data), &formats); err != nil {
		return nil, err
	}
	return formats, nil
}
