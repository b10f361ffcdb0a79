// Package arr turns *arr API responses into score records.
package arr

import (
	"context"
	"fmt"
	"strings"

	"github.com/jon4hz/arrscore/internal/cache"
	"github.com/jon4hz/arrscore/internal/database"
)

// Item is one unit of fetch work: a movie for radarr, a whole series for sonarr.
type Item struct {
	// ID is the movie or series id.
	ID int32
	// FileID is the movie file id. It is zero for series.
	FileID int32
	// Label is used in logs and progress output.
	Label string
}

// Source exports the score records of one service.
type Source interface {
	// Service returns the service kind of the records this source produces.
	Service() database.ServiceKind
	// ListItems returns every item that has at least one file.
	ListItems(ctx context.Context) ([]Item, error)
	// Fetch builds the score records of a single item.
	Fetch(ctx context.Context, item Item) ([]database.ScoreRecord, error)
	// SystemStatus returns the version reported by the service.
	SystemStatus(ctx context.Context) (string, error)
	// ResetRun drops state that must not outlive an export run, like the profile cache.
	ResetRun(ctx context.Context)
}

// Pacer delays API requests. *rate.Limiter implements it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Wait blocks on p if it is set.
func Wait(ctx context.Context, p Pacer) error {
	if p == nil {
		return nil
	}
	if err := p.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// FormatRef is a custom format matched by a file, as the API reports it.
type FormatRef struct {
	ID   int32
	Name string
}

// Formats attaches each matched format's score from the item's quality profile.
// Formats the profile doesn't score get 0. The order of refs is kept.
func Formats(refs []FormatRef, profile cache.Profile) []database.CustomFormat {
	formats := make([]database.CustomFormat, 0, len(refs))
	for _, ref := range refs {
		name := ref.Name
		if name == "" {
			name = "Unknown"
		}
		formats = append(formats, database.CustomFormat{
			Name:     name,
			Score:    profile.FormatScores[ref.ID],
			FormatID: ref.ID,
		})
	}
	return formats
}

// TotalScore returns the score the service reported for a file. When that score is
// exactly 0 it falls back to the sum of the format scores.
//
// A reported 0 can't be told apart from formats that really net to zero, so in
// that case the sum wins even when it disagrees.
func TotalScore(reported int32, formats []database.CustomFormat) int {
	if reported != 0 {
		return int(reported)
	}
	total := 0
	for _, f := range formats {
		total += f.Score
	}
	return total
}

// Resolution maps a quality's vertical resolution to a label. A height of 0
// falls back to the media info resolution string.
func Resolution(height int32, mediaInfoResolution string) string {
	switch {
	case height >= 2160:
		return "2160p"
	case height >= 1440:
		return "1440p"
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	case height >= 480:
		return "480p"
	case height > 0:
		return fmt.Sprintf("%dp", height)
	}
	return strings.TrimSpace(mediaInfoResolution)
}

// Codec prefers the video codec and falls back to the audio codec.
func Codec(videoCodec, audioCodec string) string {
	if v := strings.TrimSpace(videoCodec); v != "" {
		return v
	}
	if a := strings.TrimSpace(audioCodec); a != "" {
		return "Audio: " + a
	}
	return ""
}

// SizePtr returns nil for unknown sizes.
func SizePtr(size int64) *int64 {
	if size <= 0 {
		return nil
	}
	return &size
}
