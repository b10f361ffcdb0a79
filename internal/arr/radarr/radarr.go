package radarr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	radarrAPI "github.com/devopsarr/radarr-go/radarr"
	"github.com/jon4hz/arrscore/internal/arr"
	"github.com/jon4hz/arrscore/internal/cache"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/samber/lo"
)

var _ arr.Source = (*Radarr)(nil)

// Cache key prefixes.
const (
	MoviesCachePrefix    = "radarr-movies-"
	MovieFileCachePrefix = "radarr-moviefile-"
	ProfilesCachePrefix  = "radarr-profiles-"
)

type Radarr struct {
	client *radarrAPI.APIClient
	cfg    *config.ServiceConfig
	pacer  arr.Pacer
	now    func() time.Time

	moviesCache   *cache.PrefixedCache[[]radarrAPI.MovieResource]
	fileCache     *cache.PrefixedCache[radarrAPI.MovieFileResource]
	profilesCache *cache.PrefixedCache[[]cache.Profile]
	profiles      *cache.ProfileCache

	mu     sync.RWMutex
	movies map[int32]radarrAPI.MovieResource
}

// NewClient creates an API client for the configured server.
func NewClient(cfg *config.ServiceConfig) *radarrAPI.APIClient {
	rcfg := radarrAPI.NewConfiguration()
	rcfg.Servers[0].URL = cfg.URL
	return radarrAPI.NewAPIClient(rcfg)
}

// NewRadarr creates a movie source. backend and pacer may be nil.
func NewRadarr(client *radarrAPI.APIClient, cfg *config.ServiceConfig, backend *cache.Backend, pacer arr.Pacer) *Radarr {
	r := &Radarr{
		client:        client,
		cfg:           cfg,
		pacer:         pacer,
		now:           func() time.Time { return time.Now().UTC() },
		moviesCache:   cache.NewPrefixedCache[[]radarrAPI.MovieResource](backend, MoviesCachePrefix),
		fileCache:     cache.NewPrefixedCache[radarrAPI.MovieFileResource](backend, MovieFileCachePrefix),
		profilesCache: cache.NewPrefixedCache[[]cache.Profile](backend, ProfilesCachePrefix),
		movies:        make(map[int32]radarrAPI.MovieResource),
	}
	r.profiles = cache.NewProfileCache(r.loadProfiles)
	return r
}

func radarrAuthCtx(ctx context.Context, cfg *config.ServiceConfig) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		return ctx
	}
	return context.WithValue(
		ctx,
		radarrAPI.ContextAPIKeys,
		map[string]radarrAPI.APIKey{
			"X-Api-Key": {Key: cfg.APIKey},
		},
	)
}

func (r *Radarr) Service() database.ServiceKind {
	return database.ServiceRadarr
}

// ResetRun drops the quality profiles loaded during the previous run.
func (r *Radarr) ResetRun(_ context.Context) {
	r.profiles.Invalidate()
}

// ListItems returns every movie that has a file.
func (r *Radarr) ListItems(ctx context.Context) ([]arr.Item, error) {
	movies, err := r.moviesCache.GetOrLoad(ctx, "all", r.listMovies)
	if err != nil {
		return nil, fmt.Errorf("failed to get Radarr movies: %w", err)
	}

	index := make(map[int32]radarrAPI.MovieResource, len(movies))
	items := make([]arr.Item, 0, len(movies))
	for _, m := range movies {
		if !m.GetHasFile() {
			continue
		}
		file := m.GetMovieFile()
		if file.GetId() == 0 {
			continue
		}
		index[m.GetId()] = m
		items = append(items, arr.Item{
			ID:     m.GetId(),
			FileID: file.GetId(),
			Label:  m.GetTitle(),
		})
	}

	r.mu.Lock()
	r.movies = index
	r.mu.Unlock()

	log.Info("Collected Radarr movies", "movies", len(movies), "withFiles", len(items))
	return items, nil
}

// Fetch loads the file of a movie and builds its score record.
func (r *Radarr) Fetch(ctx context.Context, item arr.Item) ([]database.ScoreRecord, error) {
	r.mu.RLock()
	movie, ok := r.movies[item.ID]
	r.mu.RUnlock()
	if !ok {
		m, err := r.getMovie(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get Radarr movie %d: %w", item.ID, err)
		}
		movie = *m
	}

	file, err := r.fileCache.GetOrLoad(ctx, item.FileID, func(ctx context.Context) (radarrAPI.MovieFileResource, error) {
		return r.getMovieFile(ctx, item.FileID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get Radarr movie file %d: %w", item.FileID, err)
	}

	return []database.ScoreRecord{r.record(ctx, movie, file)}, nil
}

func (r *Radarr) record(ctx context.Context, movie radarrAPI.MovieResource, file radarrAPI.MovieFileResource) database.ScoreRecord {
	profileID := movie.GetQualityProfileId()
	profile, _, err := r.profiles.Get(ctx, profileID)
	if err != nil {
		log.Warn("Failed to resolve Radarr quality profile, format scores default to 0", "profile", profileID, "error", err)
	}

	refs := lo.Map(file.GetCustomFormats(), func(cf radarrAPI.CustomFormatResource, _ int) arr.FormatRef {
		return arr.FormatRef{ID: cf.GetId(), Name: cf.GetName()}
	})
	formats := arr.Formats(refs, profile)

	qualityModel := file.GetQuality()
	quality := qualityModel.GetQuality()
	mediaInfo := file.GetMediaInfo()

	title := movie.GetTitle()
	if title == "" {
		title = "N/A"
	}

	movieID := movie.GetId()
	rec := database.ScoreRecord{
		UniqueIdentifier:   database.MovieIdentifier(movieID),
		Service:            database.ServiceRadarr,
		FileID:             file.GetId(),
		Title:              title,
		RelativePath:       file.GetRelativePath(),
		TotalScore:         arr.TotalScore(file.GetCustomFormatScore(), formats),
		CustomFormats:      formats,
		QualityProfileID:   profileID,
		QualityProfileName: r.profiles.Name(ctx, profileID),
		Quality:            quality.GetName(),
		Codec:              arr.Codec(mediaInfo.GetVideoCodec(), mediaInfo.GetAudioCodec()),
		Resolution:         arr.Resolution(quality.GetResolution(), mediaInfo.GetResolution()),
		SizeBytes:          arr.SizePtr(file.GetSize()),
		RecordedAt:         r.now(),
		MovieID:            &movieID,
		Year:               movie.GetYear(),
		ImdbID:             movie.GetImdbId(),
		TmdbID:             movie.GetTmdbId(),
	}
	if added := file.GetDateAdded(); !added.IsZero() {
		rec.FileModifiedAt = &added
	}
	return rec
}

// SystemStatus returns the Radarr version.
func (r *Radarr) SystemStatus(ctx context.Context) (string, error) {
	if err := arr.Wait(ctx, r.pacer); err != nil {
		return "", err
	}
	status, resp, err := r.client.SystemAPI.GetSystemStatus(radarrAuthCtx(ctx, r.cfg)).Execute()
	if err != nil {
		return "", fmt.Errorf("failed to get Radarr system status: %w", err)
	}
	defer resp.Body.Close() //nolint: errcheck
	return status.GetVersion(), nil
}

func (r *Radarr) listMovies(ctx context.Context) ([]radarrAPI.MovieResource, error) {
	if err := arr.Wait(ctx, r.pacer); err != nil {
		return nil, err
	}
	movies, resp, err := r.client.MovieAPI.ListMovie(radarrAuthCtx(ctx, r.cfg)).Execute()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint: errcheck
	return movies, nil
}

func (r *Radarr) getMovie(ctx context.Context, id int32) (*radarrAPI.MovieResource, error) {
	if err := arr.Wait(ctx, r.pacer); err != nil {
		return nil, err
	}
	movie, resp, err := r.client.MovieAPI.GetMovieById(radarrAuthCtx(ctx, r.cfg), id).Execute()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint: errcheck
	return movie, nil
}

func (r *Radarr) getMovieFile(ctx context.Context, id int32) (radarrAPI.MovieFileResource, error) {
	if err := arr.Wait(ctx, r.pacer); err != nil {
		return radarrAPI.MovieFileResource{}, err
	}
	file, resp, err := r.client.MovieFileAPI.GetMovieFileById(radarrAuthCtx(ctx, r.cfg), id).Execute()
	if err != nil {
		return radarrAPI.MovieFileResource{}, err
	}
	defer resp.Body.Close() //nolint: errcheck
	return *file, nil
}

func (r *Radarr) loadProfiles(ctx context.Context) ([]cache.Profile, error) {
	return r.profilesCache.GetOrLoad(ctx, "all", func(ctx context.Context) ([]cache.Profile, error) {
		if err := arr.Wait(ctx, r.pacer); err != nil {
			return nil, err
		}
		profiles, resp, err := r.client.QualityProfileAPI.ListQualityProfile(radarrAuthCtx(ctx, r.cfg)).Execute()
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint: errcheck

		log.Debug("Loaded Radarr quality profiles", "count", len(profiles))
		return lo.Map(profiles, func(p radarrAPI.QualityProfileResource, _ int) cache.Profile {
			scores := make(map[int32]int, len(p.GetFormatItems()))
			for _, item := range p.GetFormatItems() {
				scores[item.GetFormat()] = int(item.GetScore())
			}
			return cache.Profile{ID: p.GetId(), Name: p.GetName(), FormatScores: scores}
		}), nil
	})
}
