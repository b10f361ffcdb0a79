package database

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyChange(t *testing.T) {
	tests := []struct {
		name     string
		previous *int
		current  int
		want     ChangeKind
	}{
		{name: "first sighting", previous: nil, current: 0, want: ChangeNewFile},
		{name: "higher", previous: lo.ToPtr(10), current: 25, want: ChangeImproved},
		{name: "lower", previous: lo.ToPtr(25), current: -10, want: ChangeDegraded},
		{name: "equal", previous: lo.ToPtr(10), current: 10, want: ChangeUnchanged},
		{name: "zero to zero", previous: lo.ToPtr(0), current: 0, want: ChangeUnchanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyChange(tt.previous, tt.current))
		})
	}
}

func TestIdentifiers(t *testing.T) {
	assert.Equal(t, "radarr:42", MovieIdentifier(42))
	assert.Equal(t, "sonarr:7:S01E02", EpisodeIdentifier(7, 1, 2))
	assert.Equal(t, "sonarr:7:S00E12", EpisodeIdentifier(7, 0, 12))
}

func TestParseServiceKind(t *testing.T) {
	kind, err := ParseServiceKind(" Radarr ")
	require.NoError(t, err)
	assert.Equal(t, ServiceRadarr, kind)

	kind, err = ParseServiceKind("sonarr")
	require.NoError(t, err)
	assert.Equal(t, ServiceSonarr, kind)

	_, err = ParseServiceKind("lidarr")
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	movie := movieRecord(1, 1, 0)
	assert.Equal(t, "Movie 1", movie.DisplayName())

	ep := episodeRecord(3, 2, 5, 1, 0)
	assert.Equal(t, "Series 3 - S02E05 - Pilot", ep.DisplayName())

	ep.EpisodeTitle = ""
	assert.Equal(t, "Series 3 - S02E05", ep.DisplayName())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ScoreRecord)
		episode bool
		wantErr bool
	}{
		{name: "valid movie", mutate: func(*ScoreRecord) {}},
		{name: "valid episode", mutate: func(*ScoreRecord) {}, episode: true},
		{name: "missing identifier", mutate: func(r *ScoreRecord) { r.UniqueIdentifier = "" }, wantErr: true},
		{name: "unknown service", mutate: func(r *ScoreRecord) { r.Service = "lidarr" }, wantErr: true},
		{name: "blank title", mutate: func(r *ScoreRecord) { r.Title = "  " }, wantErr: true},
		{name: "movie without id", mutate: func(r *ScoreRecord) { r.MovieID = nil }, wantErr: true},
		{name: "episode without season", mutate: func(r *ScoreRecord) { r.SeasonNumber = nil }, episode: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := movieRecord(1, 1, 0)
			if tt.episode {
				rec = episodeRecord(1, 1, 1, 1, 0)
			}
			tt.mutate(&rec)

			err := rec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecord)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFormatsEncoding(t *testing.T) {
	data, err := encodeFormats(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", data)

	formats, err := decodeFormats("")
	require.NoError(t, err)
	assert.Nil(t, formats)

	_, err = decodeFormats("{")
	assert.Error(t, err)
}

func TestMedian(t *testing.T) {
	assert.Zero(t, median(nil))
	assert.Equal(t, 3.0, median([]int{5, 3, 1}))
	assert.Equal(t, 2.5, median([]int{4, 1, 3, 2}))
}
