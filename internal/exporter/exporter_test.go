package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jon4hz/arrscore/internal/arr"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/jon4hz/arrscore/internal/database/mock"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// fakeSource serves a fixed set of movies.
type fakeSource struct {
	items   []arr.Item
	scores  map[int32]int
	failing map[int32]bool
	listErr error

	fetches atomic.Int32
	resets  atomic.Int32
}

func newFakeSource(scores map[int32]int) *fakeSource {
	src := &fakeSource{scores: scores, failing: map[int32]bool{}}
	for id := int32(1); id <= int32(len(scores)); id++ {
		src.items = append(src.items, arr.Item{ID: id, FileID: id * 10, Label: fmt.Sprintf("Movie %d", id)})
	}
	return src
}

func (f *fakeSource) Service() database.ServiceKind { return database.ServiceRadarr }

func (f *fakeSource) ListItems(context.Context) ([]arr.Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeSource) Fetch(_ context.Context, item arr.Item) ([]database.ScoreRecord, error) {
	f.fetches.Add(1)
	if f.failing[item.ID] {
		return nil, fmt.Errorf("movie %d: boom", item.ID)
	}
	return []database.ScoreRecord{{
		UniqueIdentifier:   database.MovieIdentifier(item.ID),
		Service:            database.ServiceRadarr,
		FileID:             item.FileID,
		Title:              item.Label,
		TotalScore:         f.scores[item.ID],
		QualityProfileName: "HD-1080p",
		Resolution:         "1080p",
		RecordedAt:         time.Now().UTC(),
		MovieID:            lo.ToPtr(item.ID),
	}}, nil
}

func (f *fakeSource) SystemStatus(context.Context) (string, error) { return "5.0.0", nil }

func (f *fakeSource) ResetRun(context.Context) { f.resets.Add(1) }

// ExporterTestSuite runs exports against the in-memory store.
type ExporterTestSuite struct {
	suite.Suite
	db  *mock.MockDB
	cfg *config.ExportConfig
	src *fakeSource
}

func TestExporterTestSuite(t *testing.T) {
	suite.Run(t, new(ExporterTestSuite))
}

// SetupTest runs before each test
func (s *ExporterTestSuite) SetupTest() {
	s.db = mock.NewMockDB()
	s.cfg = &config.ExportConfig{
		OutputDir:  s.T().TempDir(),
		MaxWorkers: 2,
		BatchSize:  10,
	}
	s.src = newFakeSource(map[int32]int{1: 100, 2: -20, 3: 0})
}

func (s *ExporterTestSuite) exporter() *Exporter {
	return New(s.db, s.cfg, WithProgress(false))
}

func (s *ExporterTestSuite) lastRun() database.ExportRun {
	runs, err := s.db.GetExportRuns(context.Background(), database.ServiceRadarr, 1)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	return runs[0]
}

func (s *ExporterTestSuite) TestRunStoresEveryRecord() {
	summary, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)

	s.Equal(3, summary.Items)
	s.Equal(database.ExportRunCounts{Processed: 3, New: 3}, summary.Counts)
	s.Equal([]string{"Movie 1", "Movie 2", "Movie 3"},
		lo.Map(summary.Records, func(r database.ScoreRecord, _ int) string { return r.Title }))
	s.EqualValues(1, s.src.resets.Load())
	s.Equal(1, s.db.StoreBatchCalls)

	recs, err := s.db.GetScoreRecords(context.Background(), database.ServiceRadarr)
	s.Require().NoError(err)
	s.Len(recs, 3)

	run := s.lastRun()
	s.Equal(summary.RunID, run.ID)
	s.Equal(database.ExportRunCompleted, run.Status)
	s.Equal(3, run.FilesProcessed)
	s.Equal(3, run.FilesNew)
	s.NotNil(run.CompletedAt)
	s.Nil(run.ErrorMessage)
}

func (s *ExporterTestSuite) TestSecondRunClassifiesChanges() {
	_, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)

	s.src.scores[1] = 150
	s.src.scores[2] = -40
	summary, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)
	s.Equal(database.ExportRunCounts{Processed: 3, Updated: 2, Unchanged: 1}, summary.Counts)
}

func (s *ExporterTestSuite) TestFailedItemIsCounted() {
	s.src.failing[2] = true

	summary, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)
	s.Equal(database.ExportRunCounts{Processed: 2, New: 2, Failed: 1}, summary.Counts)
	s.Len(summary.Records, 2)
	s.EqualValues(3, s.src.fetches.Load())
	s.Equal(1, s.lastRun().FilesFailed)
}

func (s *ExporterTestSuite) TestBatchSize() {
	s.cfg.BatchSize = 1

	_, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)
	s.Equal(3, s.db.StoreBatchCalls)
}

func (s *ExporterTestSuite) TestBatchFailureFallsBackToSingleStores() {
	s.db.StoreBatchError = errors.New("database is locked")

	summary, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)
	s.Equal(database.ExportRunCounts{Processed: 3, New: 3}, summary.Counts)

	recs, err := s.db.GetScoreRecords(context.Background(), database.ServiceRadarr)
	s.Require().NoError(err)
	s.Len(recs, 3)
}

func (s *ExporterTestSuite) TestStoreFailuresAreCounted() {
	s.db.StoreBatchError = errors.New("database is locked")
	s.db.StoreError = errors.New("database is locked")

	summary, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)
	s.Equal(database.ExportRunCounts{Processed: 3, Failed: 3}, summary.Counts)
}

func (s *ExporterTestSuite) TestListFailureFailsTheRun() {
	s.src.listErr = errors.New("connection refused")

	summary, err := s.exporter().Run(context.Background(), s.src)
	s.Require().Error(err)
	s.Nil(summary)
	s.ErrorIs(err, s.src.listErr)

	run := s.lastRun()
	s.Equal(database.ExportRunFailed, run.Status)
	s.Require().NotNil(run.ErrorMessage)
	s.Contains(*run.ErrorMessage, "connection refused")
}

func (s *ExporterTestSuite) TestRunStartFailureIsNotFatal() {
	s.db.StartExportRunError = errors.New("no such table")

	summary, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)
	s.Empty(summary.RunID)
	s.Equal(3, summary.Counts.New)
}

func (s *ExporterTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := s.exporter().Run(ctx, s.src)
	s.Require().ErrorIs(err, context.Canceled)
	s.Require().NotNil(summary)
	s.Zero(summary.Counts.Processed)
	s.Zero(s.src.fetches.Load())
	s.Equal(database.ExportRunFailed, s.lastRun().Status)
}

func (s *ExporterTestSuite) TestWritesOutputs() {
	s.cfg.Formats = config.OutputFormats
	s.cfg.Analyze = true

	summary, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)
	s.Require().NotNil(summary.Health)
	s.Equal(3, summary.Health.TotalFiles)
	s.NotNil(summary.Health.Trends)
	s.Require().Len(summary.Files, 3)
	for _, path := range summary.Files {
		s.FileExists(path)
	}

	entries, err := os.ReadDir(s.cfg.OutputDir)
	s.Require().NoError(err)
	s.Len(entries, 3)
}

func (s *ExporterTestSuite) TestWithoutAnalysisHTMLIsSkipped() {
	s.cfg.Formats = config.OutputFormats

	summary, err := s.exporter().Run(context.Background(), s.src)
	s.Require().NoError(err)
	s.Nil(summary.Health)
	s.Len(summary.Files, 2)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	assert.Nil(t, NewLimiter(-1))

	p := NewLimiter(100)
	require.NotNil(t, p)
	require.NoError(t, arr.Wait(context.Background(), p))
}

func TestProgressIsNilSafe(t *testing.T) {
	p := newProgress(false, 10, "test")
	assert.NotPanics(t, func() {
		p.Add(1)
		p.Finish()
	})
}
