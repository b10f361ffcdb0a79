package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jon4hz/arrscore/internal/database"
)

// RecordedAtLayout formats the Recorded_At column.
const RecordedAtLayout = "2006-01-02 15:04:05"

const bytesPerGB = 1024 * 1024 * 1024

var (
	movieColumns = []string{
		"Title", "Year", "File", "Total_Score", "Quality_Profile", "Quality", "Resolution",
		"Codec", "Size_GB", "IMDB_ID", "TMDB_ID", "Custom_Formats", "Recorded_At",
	}
	episodeColumns = []string{
		"Series", "Season", "Episode", "Episode_Title", "File", "Total_Score", "Quality_Profile",
		"Quality", "Resolution", "Codec", "Size_GB", "TVDB_ID", "Custom_Formats", "Recorded_At",
	}
)

// Columns returns the CSV header of a service.
func Columns(service database.ServiceKind) []string {
	if service == database.ServiceSonarr {
		return episodeColumns
	}
	return movieColumns
}

// FormatList renders formats as "name (+N); name (-N)".
func FormatList(formats []database.CustomFormat) string {
	parts := make([]string, 0, len(formats))
	for _, f := range formats {
		parts = append(parts, fmt.Sprintf("%s (%+d)", f.Name, f.Score))
	}
	return strings.Join(parts, "; ")
}

// SizeGB renders a size in GiB with two decimals, or "" when unknown.
func SizeGB(size *int64) string {
	if size == nil || *size <= 0 {
		return ""
	}
	return strconv.FormatFloat(float64(*size)/bytesPerGB, 'f', 2, 64)
}

// WriteCSV writes one row per record.
func WriteCSV(w io.Writer, service database.ServiceKind, recs []database.ScoreRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(service)); err != nil {
		return err
	}
	for i := range recs {
		if err := cw.Write(row(service, &recs[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(service database.ServiceKind, r *database.ScoreRecord) []string {
	recorded := r.RecordedAt.Format(RecordedAtLayout)
	if service == database.ServiceSonarr {
		return []string{
			r.Title,
			optionalInt(r.SeasonNumber),
			optionalInt(r.EpisodeNumber),
			r.EpisodeTitle,
			r.RelativePath,
			strconv.Itoa(r.TotalScore),
			r.QualityProfileName,
			r.Quality,
			r.Resolution,
			r.Codec,
			SizeGB(r.SizeBytes),
			nonZero(r.TvdbID),
			FormatList(r.CustomFormats),
			recorded,
		}
	}
	return []string{
		r.Title,
		nonZero(r.Year),
		r.RelativePath,
		strconv.Itoa(r.TotalScore),
		r.QualityProfileName,
		r.Quality,
		r.Resolution,
		r.Codec,
		SizeGB(r.SizeBytes),
		r.ImdbID,
		nonZero(r.TmdbID),
		FormatList(r.CustomFormats),
		recorded,
	}
}

func optionalInt(v *int32) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(int(*v))
}

func nonZero(v int32) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(int(v))
}
