package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jon4hz/arrscore/internal/analyzer"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/samber/lo"
)

// ExportVersion is bumped whenever the JSON layout changes.
const ExportVersion = 1

// ExportInfo describes a JSON export.
type ExportInfo struct {
	Service    database.ServiceKind `json:"service"`
	ExportedAt time.Time            `json:"exported_at"`
	TotalFiles int                  `json:"total_files"`
	Version    int                  `json:"version"`
}

// ExportFile is the JSON form of a score record.
type ExportFile struct {
	UniqueIdentifier   string                  `json:"unique_identifier"`
	FileID             int32                   `json:"file_id"`
	Title              string                  `json:"title"`
	DisplayName        string                  `json:"display_name"`
	RelativePath       string                  `json:"relative_path"`
	TotalScore         int                     `json:"total_score"`
	CustomFormats      []database.CustomFormat `json:"custom_formats"`
	QualityProfileID   int32                   `json:"quality_profile_id"`
	QualityProfileName string                  `json:"quality_profile_name"`
	Quality            string                  `json:"quality,omitempty"`
	Codec              string                  `json:"codec,omitempty"`
	Resolution         string                  `json:"resolution,omitempty"`
	SizeBytes          *int64                  `json:"size_bytes,omitempty"`
	RecordedAt         time.Time               `json:"recorded_at"`
	FileModifiedAt     *time.Time              `json:"file_modified_at,omitempty"`

	MovieID *int32 `json:"movie_id,omitempty"`
	Year    int32  `json:"year,omitempty"`
	ImdbID  string `json:"imdb_id,omitempty"`
	TmdbID  int32  `json:"tmdb_id,omitempty"`

	SeriesID      *int32 `json:"series_id,omitempty"`
	SeasonNumber  *int32 `json:"season_number,omitempty"`
	EpisodeNumber *int32 `json:"episode_number,omitempty"`
	EpisodeTitle  string `json:"episode_title,omitempty"`
	TvdbID        int32  `json:"tvdb_id,omitempty"`
}

// Export is the document written by WriteJSON.
type Export struct {
	Info   ExportInfo             `json:"export_info"`
	Files  []ExportFile           `json:"files"`
	Health *analyzer.HealthReport `json:"health_report,omitempty"`
}

// NewExport builds the JSON document of an export.
func NewExport(service database.ServiceKind, ts time.Time, recs []database.ScoreRecord, health *analyzer.HealthReport) Export {
	return Export{
		Info: ExportInfo{
			Service:    service,
			ExportedAt: ts,
			TotalFiles: len(recs),
			Version:    ExportVersion,
		},
		Files:  lo.Map(recs, func(r database.ScoreRecord, _ int) ExportFile { return toExportFile(&r) }),
		Health: health,
	}
}

func toExportFile(r *database.ScoreRecord) ExportFile {
	formats := r.CustomFormats
	if formats == nil {
		formats = []database.CustomFormat{}
	}
	return ExportFile{
		UniqueIdentifier:   r.UniqueIdentifier,
		FileID:             r.FileID,
		Title:              r.Title,
		DisplayName:        r.DisplayName(),
		RelativePath:       r.RelativePath,
		TotalScore:         r.TotalScore,
		CustomFormats:      formats,
		QualityProfileID:   r.QualityProfileID,
		QualityProfileName: r.QualityProfileName,
		Quality:            r.Quality,
		Codec:              r.Codec,
		Resolution:         r.Resolution,
		SizeBytes:          r.SizeBytes,
		RecordedAt:         r.RecordedAt,
		FileModifiedAt:     r.FileModifiedAt,
		MovieID:            r.MovieID,
		Year:               r.Year,
		ImdbID:             r.ImdbID,
		TmdbID:             r.TmdbID,
		SeriesID:           r.SeriesID,
		SeasonNumber:       r.SeasonNumber,
		EpisodeNumber:      r.EpisodeNumber,
		EpisodeTitle:       r.EpisodeTitle,
		TvdbID:             r.TvdbID,
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
