package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jon4hz/arrscore/internal/analyzer"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func movieRecord() database.ScoreRecord {
	return database.ScoreRecord{
		UniqueIdentifier:   database.MovieIdentifier(7),
		Service:            database.ServiceRadarr,
		FileID:             70,
		Title:              "Heat",
		RelativePath:       "Heat (1995)/Heat.mkv",
		TotalScore:         50,
		CustomFormats:      []database.CustomFormat{{Name: "x264", Score: -10}, {Name: "REMUX", Score: 60}},
		QualityProfileName: "HD-1080p",
		Quality:            "Bluray-1080p",
		Resolution:         "1080p",
		Codec:              "x264",
		SizeBytes:          lo.ToPtr(int64(3 * 1024 * 1024 * 1024 / 2)),
		RecordedAt:         fixedNow,
		MovieID:            lo.ToPtr(int32(7)),
		Year:               1995,
		ImdbID:             "tt0113277",
		TmdbID:             949,
	}
}

func episodeRecord() database.ScoreRecord {
	return database.ScoreRecord{
		UniqueIdentifier:   database.EpisodeIdentifier(3, 1, 2),
		Service:            database.ServiceSonarr,
		FileID:             31,
		Title:              "Severance",
		EpisodeTitle:       "Half Loop",
		RelativePath:       "Season 01/Severance - S01E02.mkv",
		TotalScore:         -20,
		QualityProfileName: "WEB-2160p",
		Resolution:         "2160p",
		RecordedAt:         fixedNow,
		SeriesID:           lo.ToPtr(int32(3)),
		SeasonNumber:       lo.ToPtr(int32(1)),
		EpisodeNumber:      lo.ToPtr(int32(2)),
		TvdbID:             371980,
	}
}

func healthReport() *analyzer.HealthReport {
	return &analyzer.HealthReport{
		Version:     analyzer.HealthReportVersion,
		Service:     database.ServiceRadarr,
		GeneratedAt: fixedNow,
		HealthScore: 82.4,
		Grade:       "B",
		TotalFiles:  1,
		Statistics:  &database.LibraryStatistics{TotalFiles: 1, AverageScore: 50, TotalSizeBytes: 1024},
		UpgradeCandidates: []analyzer.UpgradeCandidate{{
			Record:         movieRecord(),
			Reason:         "Low custom format score",
			Priority:       analyzer.PriorityHigh,
			Recommendation: "Search for a release with Heat formats",
		}},
		TotalCandidates: 1,
		QualityProfiles: []analyzer.ProfileAnalysis{{
			ProfileName:       "HD-1080p",
			FileCount:         1,
			AverageScore:      50,
			ScoreDistribution: map[string]int{analyzer.BucketGood: 1},
			Rating:            analyzer.RatingGood,
		}},
		Achievements: []string{"No files without custom formats"},
		Trends:       &analyzer.HistoricalAnalysis{Days: 30, Improvements: 2, NetChange: 2},
		FileCategories: map[analyzer.FileCategory][]database.ScoreRecord{
			analyzer.CategoryLargestFiles: {movieRecord()},
		},
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "radarr_scores_20240309_140507.csv", FileName(database.ServiceRadarr, fixedNow, "csv"))
	assert.Equal(t, "sonarr_scores_20240309_140507.html", FileName(database.ServiceSonarr, fixedNow, "html"))
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "x264 (-10); REMUX (+60)", FormatList(movieRecord().CustomFormats))
	assert.Empty(t, FormatList(nil))
}

func TestSizeGB(t *testing.T) {
	assert.Equal(t, "1.50", SizeGB(lo.ToPtr(int64(3*1024*1024*1024/2))))
	assert.Empty(t, SizeGB(nil))
	assert.Empty(t, SizeGB(lo.ToPtr(int64(0))))
}

func TestWriteCSVMovies(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, database.ServiceRadarr, []database.ScoreRecord{movieRecord()}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Columns(database.ServiceRadarr), rows[0])

	row := lo.SliceToMap(rows[0], func(col string) (string, int) { return col, lo.IndexOf(rows[0], col) })
	data := rows[1]
	assert.Equal(t, "Heat", data[row["Title"]])
	assert.Equal(t, "1995", data[row["Year"]])
	assert.Equal(t, "50", data[row["Total_Score"]])
	assert.Equal(t, "1.50", data[row["Size_GB"]])
	assert.Equal(t, "949", data[row["TMDB_ID"]])
	assert.Equal(t, "x264 (-10); REMUX (+60)", data[row["Custom_Formats"]])
	assert.Equal(t, "2024-03-09 14:05:07", data[row["Recorded_At"]])
}

func TestWriteCSVEpisodes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, database.ServiceSonarr, []database.ScoreRecord{episodeRecord()}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, episodeColumns, rows[0])
	assert.Equal(t, []string{
		"Severance", "1", "2", "Half Loop", "Season 01/Severance - S01E02.mkv", "-20", "WEB-2160p",
		"", "2160p", "", "", "371980", "", "2024-03-09 14:05:07",
	}, rows[1])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	recs := []database.ScoreRecord{episodeRecord()}
	require.NoError(t, WriteJSON(&buf, NewExport(database.ServiceSonarr, fixedNow, recs, nil)))

	var got Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, database.ServiceSonarr, got.Info.Service)
	assert.Equal(t, 1, got.Info.TotalFiles)
	assert.Equal(t, ExportVersion, got.Info.Version)
	assert.Nil(t, got.Health)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "sonarr:3:S01E02", got.Files[0].UniqueIdentifier)
	assert.Equal(t, "Severance - S01E02 - Half Loop", got.Files[0].DisplayName)
	assert.Equal(t, -20, got.Files[0].TotalScore)
	assert.Empty(t, got.Files[0].CustomFormats)
	assert.NotContains(t, buf.String(), "health_report")
	assert.Contains(t, buf.String(), `"custom_formats": []`)
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, healthReport()))

	out := buf.String()
	assert.Contains(t, out, `class="grade grade-good">B<`)
	assert.Contains(t, out, "82.4")
	assert.Contains(t, out, "Heat")
	assert.Contains(t, out, "Low custom format score")
	assert.Contains(t, out, "No files without custom formats")
	assert.Contains(t, out, "Last 30 days")
	assert.Contains(t, out, "largest_files")
	assert.Contains(t, out, "1.5 GiB")
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewWriter(dir)
	w.now = func() time.Time { return fixedNow }

	paths, err := w.WriteAll(database.ServiceRadarr, config.OutputFormats, []database.ScoreRecord{movieRecord()}, healthReport())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "radarr_scores_20240309_140507.csv"),
		filepath.Join(dir, "radarr_scores_20240309_140507.json"),
		filepath.Join(dir, "radarr_scores_20240309_140507.html"),
	}, paths)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	var export Export
	require.NoError(t, json.Unmarshal(data, &export))
	require.NotNil(t, export.Health)
	assert.Equal(t, "B", export.Health.Grade)
}

func TestWriteAllSkipsWhatItCannotRender(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.now = func() time.Time { return fixedNow }

	paths, err := w.WriteAll(database.ServiceSonarr, config.OutputFormats, nil, nil)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], ".json"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteAllNoFormats(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never")
	paths, err := NewWriter(dir).WriteAll(database.ServiceRadarr, nil, []database.ScoreRecord{movieRecord()}, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.NoDirExists(t, dir)
}
