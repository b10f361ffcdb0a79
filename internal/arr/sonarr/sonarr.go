package sonarr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	sonarrAPI "github.com/devopsarr/sonarr-go/sonarr"
	"github.com/jon4hz/arrscore/internal/arr"
	"github.com/jon4hz/arrscore/internal/cache"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/samber/lo"
)

var _ arr.Source = (*Sonarr)(nil)

// Cache key prefixes.
const (
	SeriesCachePrefix       = "sonarr-series-"
	EpisodesCachePrefix     = "sonarr-episodes-"
	EpisodeFilesCachePrefix = "sonarr-episodefiles-"
	ProfilesCachePrefix     = "sonarr-profiles-"
)

type Sonarr struct {
	client *sonarrAPI.APIClient
	cfg    *config.ServiceConfig
	pacer  arr.Pacer
	now    func() time.Time

	seriesCache   *cache.PrefixedCache[[]sonarrAPI.SeriesResource]
	episodesCache *cache.PrefixedCache[[]sonarrAPI.EpisodeResource]
	filesCache    *cache.PrefixedCache[[]sonarrAPI.EpisodeFileResource]
	profilesCache *cache.PrefixedCache[[]cache.Profile]
	profiles      *cache.ProfileCache

	mu     sync.RWMutex
	series map[int32]sonarrAPI.SeriesResource
}

// NewClient creates an API client for the configured server.
func NewClient(cfg *config.ServiceConfig) *sonarrAPI.APIClient {
	scfg := sonarrAPI.NewConfiguration()
	scfg.Servers[0].URL = cfg.URL
	return sonarrAPI.NewAPIClient(scfg)
}

// NewSonarr creates an episode source. backend and pacer may be nil.
func NewSonarr(client *sonarrAPI.APIClient, cfg *config.ServiceConfig, backend *cache.Backend, pacer arr.Pacer) *Sonarr {
	s := &Sonarr{
		client:        client,
		cfg:           cfg,
		pacer:         pacer,
		now:           func() time.Time { return time.Now().UTC() },
		seriesCache:   cache.NewPrefixedCache[[]sonarrAPI.SeriesResource](backend, SeriesCachePrefix),
		episodesCache: cache.NewPrefixedCache[[]sonarrAPI.EpisodeResource](backend, EpisodesCachePrefix),
		filesCache:    cache.NewPrefixedCache[[]sonarrAPI.EpisodeFileResource](backend, EpisodeFilesCachePrefix),
		profilesCache: cache.NewPrefixedCache[[]cache.Profile](backend, ProfilesCachePrefix),
		series:        make(map[int32]sonarrAPI.SeriesResource),
	}
	s.profiles = cache.NewProfileCache(s.loadProfiles)
	return s
}

func sonarrAuthCtx(ctx context.Context, cfg *config.ServiceConfig) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		return ctx
	}
	return context.WithValue(
		ctx,
		sonarrAPI.ContextAPIKeys,
		map[string]sonarrAPI.APIKey{
			"X-Api-Key": {Key: cfg.APIKey},
		},
	)
}

func (s *Sonarr) Service() database.ServiceKind {
	return database.ServiceSonarr
}

// ResetRun drops the quality profiles loaded during the previous run.
func (s *Sonarr) ResetRun(_ context.Context) {
	s.profiles.Invalidate()
}

// ListItems returns one item per series. Series whose statistics report no
// episode files are skipped.
func (s *Sonarr) ListItems(ctx context.Context) ([]arr.Item, error) {
	series, err := s.seriesCache.GetOrLoad(ctx, "all", s.listSeries)
	if err != nil {
		return nil, fmt.Errorf("failed to get Sonarr series: %w", err)
	}

	index := make(map[int32]sonarrAPI.SeriesResource, len(series))
	items := make([]arr.Item, 0, len(series))
	for _, serie := range series {
		stats := serie.GetStatistics()
		if stats.HasEpisodeFileCount() && stats.GetEpisodeFileCount() == 0 {
			continue
		}
		index[serie.GetId()] = serie
		items = append(items, arr.Item{
			ID:    serie.GetId(),
			Label: serie.GetTitle(),
		})
	}

	s.mu.Lock()
	s.series = index
	s.mu.Unlock()

	log.Info("Collected Sonarr series", "series", len(series), "withFiles", len(items))
	return items, nil
}

// Fetch builds one score record per episode of the series that has a file.
func (s *Sonarr) Fetch(ctx context.Context, item arr.Item) ([]database.ScoreRecord, error) {
	s.mu.RLock()
	serie, ok := s.series[item.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sonarr series %d was not listed in this run", item.ID)
	}

	episodes, err := s.episodesCache.GetOrLoad(ctx, item.ID, func(ctx context.Context) ([]sonarrAPI.EpisodeResource, error) {
		return s.getEpisodes(ctx, item.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get episodes of series %d: %w", item.ID, err)
	}

	files, err := s.filesCache.GetOrLoad(ctx, item.ID, func(ctx context.Context) ([]sonarrAPI.EpisodeFileResource, error) {
		return s.getEpisodeFiles(ctx, item.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get episode files of series %d: %w", item.ID, err)
	}
	filesByID := lo.KeyBy(files, func(f sonarrAPI.EpisodeFileResource) int32 {
		return f.GetId()
	})

	records := make([]database.ScoreRecord, 0, len(files))
	for _, episode := range episodes {
		if !episode.GetHasFile() || episode.GetEpisodeFileId() == 0 {
			continue
		}
		file, ok := filesByID[episode.GetEpisodeFileId()]
		if !ok {
			log.Warn("Episode references an unknown file",
				"series", serie.GetTitle(),
				"season", episode.GetSeasonNumber(),
				"episode", episode.GetEpisodeNumber(),
				"fileID", episode.GetEpisodeFileId(),
			)
			continue
		}
		records = append(records, s.record(ctx, serie, episode, file))
	}
	return records, nil
}

func (s *Sonarr) record(ctx context.Context, serie sonarrAPI.SeriesResource, episode sonarrAPI.EpisodeResource, file sonarrAPI.EpisodeFileResource) database.ScoreRecord {
	profileID := serie.GetQualityProfileId()
	profile, _, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		log.Warn("Failed to resolve Sonarr quality profile, format scores default to 0", "profile", profileID, "error", err)
	}

	refs := lo.Map(file.GetCustomFormats(), func(cf sonarrAPI.CustomFormatResource, _ int) arr.FormatRef {
		return arr.FormatRef{ID: cf.GetId(), Name: cf.GetName()}
	})
	formats := arr.Formats(refs, profile)

	qualityModel := file.GetQuality()
	quality := qualityModel.GetQuality()
	mediaInfo := file.GetMediaInfo()

	title := serie.GetTitle()
	if title == "" {
		title = "N/A"
	}

	seriesID := serie.GetId()
	season := episode.GetSeasonNumber()
	number := episode.GetEpisodeNumber()
	rec := database.ScoreRecord{
		UniqueIdentifier:   database.EpisodeIdentifier(seriesID, season, number),
		Service:            database.ServiceSonarr,
		FileID:             file.GetId(),
		Title:              title,
		RelativePath:       file.GetRelativePath(),
		TotalScore:         arr.TotalScore(file.GetCustomFormatScore(), formats),
		CustomFormats:      formats,
		QualityProfileID:   profileID,
		QualityProfileName: s.profiles.Name(ctx, profileID),
		Quality:            quality.GetName(),
		Codec:              arr.Codec(mediaInfo.GetVideoCodec(), mediaInfo.GetAudioCodec()),
		Resolution:         arr.Resolution(quality.GetResolution(), mediaInfo.GetResolution()),
		SizeBytes:          arr.SizePtr(file.GetSize()),
		RecordedAt:         s.now(),
		SeriesID:           &seriesID,
		SeasonNumber:       &season,
		EpisodeNumber:      &number,
		EpisodeTitle:       episode.GetTitle(),
		TvdbID:             serie.GetTvdbId(),
		Year:               serie.GetYear(),
	}
	if added := file.GetDateAdded(); !added.IsZero() {
		rec.FileModifiedAt = &added
	}
	return rec
}

// SystemStatus returns the Sonarr version.
func (s *Sonarr) SystemStatus(ctx context.Context) (string, error) {
	if err := arr.Wait(ctx, s.pacer); err != nil {
		return "", err
	}
	status, resp, err := s.client.SystemAPI.GetSystemStatus(sonarrAuthCtx(ctx, s.cfg)).Execute()
	if err != nil {
		return "", fmt.Errorf("failed to get Sonarr system status: %w", err)
	}
	defer resp.Body.Close() //nolint: errcheck
	return status.GetVersion(), nil
}

func (s *Sonarr) listSeries(ctx context.Context) ([]sonarrAPI.SeriesResource, error) {
	if err := arr.Wait(ctx, s.pacer); err != nil {
		return nil, err
	}
	series, resp, err := s.client.SeriesAPI.ListSeries(sonarrAuthCtx(ctx, s.cfg)).IncludeSeasonImages(false).Execute()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint: errcheck
	return series, nil
}

// getEpisodes retrieves all episodes for a specific series.
func (s *Sonarr) getEpisodes(ctx context.Context, seriesID int32) ([]sonarrAPI.EpisodeResource, error) {
	if err := arr.Wait(ctx, s.pacer); err != nil {
		return nil, err
	}
	episodes, resp, err := s.client.EpisodeAPI.ListEpisode(sonarrAuthCtx(ctx, s.cfg)).
		SeriesId(seriesID).
		Execute()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint: errcheck
	return episodes, nil
}

// getEpisodeFiles retrieves all episode files for a specific series.
func (s *Sonarr) getEpisodeFiles(ctx context.Context, seriesID int32) ([]sonarrAPI.EpisodeFileResource, error) {
	if err := arr.Wait(ctx, s.pacer); err != nil {
		return nil, err
	}
	episodeFiles, resp, err := s.client.EpisodeFileAPI.ListEpisodeFile(sonarrAuthCtx(ctx, s.cfg)).
		SeriesId(seriesID).
		Execute()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint: errcheck
	return episodeFiles, nil
}

func (s *Sonarr) loadProfiles(ctx context.Context) ([]cache.Profile, error) {
	return s.profilesCache.GetOrLoad(ctx, "all", func(ctx context.Context) ([]cache.Profile, error) {
		if err := arr.Wait(ctx, s.pacer); err != nil {
			return nil, err
		}
		profiles, resp, err := s.client.QualityProfileAPI.ListQualityProfile(sonarrAuthCtx(ctx, s.cfg)).Execute()
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint: errcheck

		log.Debug("Loaded Sonarr quality profiles", "count", len(profiles))
		return lo.Map(profiles, func(p sonarrAPI.QualityProfileResource, _ int) cache.Profile {
			scores := make(map[int32]int, len(p.GetFormatItems()))
			for _, item := range p.GetFormatItems() {
				scores[item.GetFormat()] = int(item.GetScore())
			}
			return cache.Profile{ID: p.GetId(), Name: p.GetName(), FormatScores: scores}
		}), nil
	})
}
