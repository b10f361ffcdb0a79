package arr

import (
	"context"
	"errors"
	"testing"

	"github.com/jon4hz/arrscore/internal/cache"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormats(t *testing.T) {
	profile := cache.Profile{ID: 1, FormatScores: map[int32]int{3: -10, 7: 60}}
	got := Formats([]FormatRef{{ID: 7, Name: "REMUX"}, {ID: 3, Name: "x-264"}, {ID: 9}}, profile)

	assert.Equal(t, []database.CustomFormat{
		{Name: "REMUX", Score: 60, FormatID: 7},
		{Name: "x-264", Score: -10, FormatID: 3},
		{Name: "Unknown", Score: 0, FormatID: 9},
	}, got)

	assert.Empty(t, Formats(nil, profile))
}

func TestTotalScore(t *testing.T) {
	formats := []database.CustomFormat{{Score: 60}, {Score: -10}}

	tests := []struct {
		name     string
		reported int32
		formats  []database.CustomFormat
		want     int
	}{
		{name: "reported score wins", reported: 35, formats: formats, want: 35},
		{name: "negative reported score", reported: -20, formats: formats, want: -20},
		{name: "zero falls back to sum", reported: 0, formats: formats, want: 50},
		{name: "zero without formats", reported: 0, want: 0},
		{name: "formats netting to zero", reported: 0, formats: []database.CustomFormat{{Score: 10}, {Score: -10}}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TotalScore(tt.reported, tt.formats))
		})
	}
}

func TestResolution(t *testing.T) {
	tests := []struct {
		height    int32
		mediaInfo string
		want      string
	}{
		{2160, "", "2160p"},
		{2000, "", "1440p"},
		{1080, "1920x1080", "1080p"},
		{800, "", "720p"},
		{576, "", "480p"},
		{360, "", "360p"},
		{0, " 1920x800 ", "1920x800"},
		{0, "", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolution(tt.height, tt.mediaInfo), "height %d", tt.height)
	}
}

func TestCodec(t *testing.T) {
	assert.Equal(t, "x265", Codec("x265", "EAC3"))
	assert.Equal(t, "Audio: FLAC", Codec("", "FLAC"))
	assert.Equal(t, "", Codec(" ", ""))
}

func TestSizePtr(t *testing.T) {
	assert.Nil(t, SizePtr(0))
	assert.Nil(t, SizePtr(-1))
	require.NotNil(t, SizePtr(42))
	assert.Equal(t, int64(42), *SizePtr(42))
}

type pacerFunc func(ctx context.Context) error

func (f pacerFunc) Wait(ctx context.Context) error { return f(ctx) }

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), nil))

	calls := 0
	assert.NoError(t, Wait(context.Background(), pacerFunc(func(context.Context) error {
		calls++
		return nil
	})))
	assert.Equal(t, 1, calls)

	err := Wait(context.Background(), pacerFunc(func(context.Context) error { return errors.New("burst") }))
	assert.ErrorContains(t, err, "rate limiter")
}
