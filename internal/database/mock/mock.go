package mock

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jon4hz/arrscore/internal/database"
	"gorm.io/gorm"
)

var _ database.DB = (*MockDB)(nil)

// MockDB is an in-memory implementation of database.DB for testing.
// It does not reconcile replaced files.
type MockDB struct {
	mu sync.RWMutex

	records map[string]database.ScoreRecord
	history []database.ScoreHistory
	runs    map[string]*database.ExportRun
	nextID  uint

	// Now is used for ledger timestamps and trend windows.
	Now func() time.Time

	// Error simulation
	StoreError                 error
	StoreBatchError            error
	GetScoreRecordsError       error
	GetUpgradeCandidatesError  error
	GetZeroScoreFilesError     error
	GetFilesWithSizeDataError  error
	GetScoreTrendsError        error
	CalculateLibraryStatsError error
	StartExportRunError        error
	CompleteExportRunError     error

	// StoreBatchCalls counts StoreBatch invocations.
	StoreBatchCalls int
}

// NewMockDB creates a new MockDB instance.
func NewMockDB() *MockDB {
	return &MockDB{
		records: make(map[string]database.ScoreRecord),
		runs:    make(map[string]*database.ExportRun),
		nextID:  1,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddRecords puts snapshots into the mock without touching the ledger.
func (m *MockDB) AddRecords(recs ...database.ScoreRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range recs {
		if rec.ID == 0 {
			rec.ID = m.nextID
			m.nextID++
		}
		m.records[rec.UniqueIdentifier] = rec
	}
}

// AddHistory appends raw ledger entries.
func (m *MockDB) AddHistory(entries ...database.ScoreHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if e.ID == 0 {
			e.ID = m.nextID
			m.nextID++
		}
		m.history = append(m.history, e)
	}
}

// Migrate is a no-op.
func (m *MockDB) Migrate() error { return nil }

// Close is a no-op.
func (m *MockDB) Close() error { return nil }

// Writer

func (m *MockDB) Store(_ context.Context, rec database.ScoreRecord) (database.ChangeKind, error) {
	if m.StoreError != nil {
		return "", m.StoreError
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store(rec), nil
}

func (m *MockDB) StoreBatch(_ context.Context, recs []database.ScoreRecord) (database.BatchResult, error) {
	m.mu.Lock()
	m.StoreBatchCalls++
	m.mu.Unlock()

	if m.StoreBatchError != nil {
		return database.BatchResult{}, m.StoreBatchError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result := database.BatchResult{Changes: make(map[database.ChangeKind]int)}
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			result.Skipped++
			continue
		}
		result.Stored++
		result.Changes[m.store(rec)]++
	}
	return result, nil
}

func (m *MockDB) store(rec database.ScoreRecord) database.ChangeKind {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = m.Now()
	}

	existing, ok := m.records[rec.UniqueIdentifier]
	var previous *int
	if ok {
		rec.ID = existing.ID
		previous = &existing.TotalScore
	} else {
		rec.ID = m.nextID
		m.nextID++
	}
	kind := database.ClassifyChange(previous, rec.TotalScore)
	m.records[rec.UniqueIdentifier] = rec

	if kind != database.ChangeUnchanged {
		m.history = append(m.history, database.ScoreHistory{
			ID:               m.nextID,
			UniqueIdentifier: rec.UniqueIdentifier,
			FileID:           rec.FileID,
			Timestamp:        m.Now(),
			TotalScore:       rec.TotalScore,
			PreviousScore:    previous,
			ChangeKind:       kind,
		})
		m.nextID++
	}
	return kind
}

// Reader

func (m *MockDB) GetScoreRecord(_ context.Context, uid string) (*database.ScoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[uid]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &rec, nil
}

func (m *MockDB) GetScoreRecords(_ context.Context, service database.ServiceKind) ([]database.ScoreRecord, error) {
	if m.GetScoreRecordsError != nil {
		return nil, m.GetScoreRecordsError
	}
	recs := m.filter(service, func(database.ScoreRecord) bool { return true })
	slices.SortFunc(recs, func(a, b database.ScoreRecord) int {
		return cmp.Or(
			cmp.Compare(a.Title, b.Title),
			cmp.Compare(deref(a.SeasonNumber), deref(b.SeasonNumber)),
			cmp.Compare(deref(a.EpisodeNumber), deref(b.EpisodeNumber)),
		)
	})
	return recs, nil
}

func (m *MockDB) GetUpgradeCandidates(_ context.Context, maxScore int, service database.ServiceKind) ([]database.ScoreRecord, error) {
	if m.GetUpgradeCandidatesError != nil {
		return nil, m.GetUpgradeCandidatesError
	}
	recs := m.filter(service, func(r database.ScoreRecord) bool { return r.TotalScore <= maxScore })
	slices.SortFunc(recs, func(a, b database.ScoreRecord) int {
		return cmp.Or(cmp.Compare(a.TotalScore, b.TotalScore), cmp.Compare(a.Title, b.Title))
	})
	return recs, nil
}

func (m *MockDB) GetZeroScoreFiles(_ context.Context, service database.ServiceKind, limit int) ([]database.ScoreRecord, error) {
	if m.GetZeroScoreFilesError != nil {
		return nil, m.GetZeroScoreFilesError
	}
	recs := m.filter(service, func(r database.ScoreRecord) bool { return r.TotalScore == 0 })
	slices.SortFunc(recs, func(a, b database.ScoreRecord) int {
		return cmp.Or(b.RecordedAt.Compare(a.RecordedAt), cmp.Compare(b.ID, a.ID))
	})
	return truncate(recs, limit), nil
}

func (m *MockDB) GetFilesWithSizeData(_ context.Context, service database.ServiceKind, limit int) ([]database.ScoreRecord, error) {
	if m.GetFilesWithSizeDataError != nil {
		return nil, m.GetFilesWithSizeDataError
	}
	recs := m.filter(service, func(r database.ScoreRecord) bool { return r.SizeBytes != nil && *r.SizeBytes > 0 })
	slices.SortFunc(recs, func(a, b database.ScoreRecord) int {
		return cmp.Or(cmp.Compare(b.TotalScore, a.TotalScore), cmp.Compare(*b.SizeBytes, *a.SizeBytes))
	})
	return truncate(recs, limit), nil
}

func (m *MockDB) GetScoreTrends(_ context.Context, days int, service database.ServiceKind) ([]database.ScoreTrend, error) {
	if m.GetScoreTrendsError != nil {
		return nil, m.GetScoreTrendsError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.Now().AddDate(0, 0, -days)
	var trends []database.ScoreTrend
	for _, h := range m.history {
		if h.Timestamp.Before(cutoff) {
			continue
		}
		if h.ChangeKind != database.ChangeImproved && h.ChangeKind != database.ChangeDegraded {
			continue
		}
		rec, ok := m.records[h.UniqueIdentifier]
		if !ok || (service != "" && rec.Service != service) {
			continue
		}
		trends = append(trends, database.ScoreTrend{ScoreHistory: h, Title: rec.Title, Service: rec.Service})
	}
	slices.SortFunc(trends, func(a, b database.ScoreTrend) int {
		return cmp.Or(b.Timestamp.Compare(a.Timestamp), cmp.Compare(b.ID, a.ID))
	})
	return trends, nil
}

func (m *MockDB) GetHistory(_ context.Context, uid string) ([]database.ScoreHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []database.ScoreHistory
	for _, h := range m.history {
		if h.UniqueIdentifier == uid {
			entries = append(entries, h)
		}
	}
	return entries, nil
}

func (m *MockDB) CalculateLibraryStats(_ context.Context, service database.ServiceKind) (*database.LibraryStatistics, error) {
	if m.CalculateLibraryStatsError != nil {
		return nil, m.CalculateLibraryStatsError
	}
	return database.Summarize(service, m.filter(service, func(database.ScoreRecord) bool { return true })), nil
}

// Export runs

func (m *MockDB) StartExportRun(_ context.Context, service database.ServiceKind) (*database.ExportRun, error) {
	if m.StartExportRunError != nil {
		return nil, m.StartExportRunError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	run := &database.ExportRun{
		ID:        uuid.NewString(),
		Service:   service,
		StartedAt: m.Now(),
		Status:    database.ExportRunRunning,
	}
	m.runs[run.ID] = run
	cp := *run
	return &cp, nil
}

func (m *MockDB) CompleteExportRun(_ context.Context, id string, status database.ExportRunStatus, counts database.ExportRunCounts, errorMessage *string) error {
	if m.CompleteExportRunError != nil {
		return m.CompleteExportRunError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("export run %s not found", id)
	}
	completedAt := m.Now()
	run.CompletedAt = &completedAt
	run.Status = status
	run.FilesProcessed = counts.Processed
	run.FilesNew = counts.New
	run.FilesUpdated = counts.Updated
	run.FilesUnchanged = counts.Unchanged
	run.FilesFailed = counts.Failed
	run.ErrorMessage = errorMessage
	return nil
}

func (m *MockDB) GetExportRuns(_ context.Context, service database.ServiceKind, limit int) ([]database.ExportRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var runs []database.ExportRun
	for _, run := range m.runs {
		if service == "" || run.Service == service {
			runs = append(runs, *run)
		}
	}
	slices.SortFunc(runs, func(a, b database.ExportRun) int { return b.StartedAt.Compare(a.StartedAt) })
	return truncate(runs, limit), nil
}

func (m *MockDB) GetExportRunStats(ctx context.Context, service database.ServiceKind) (*database.ExportRunStats, error) {
	runs, err := m.GetExportRuns(ctx, service, 0)
	if err != nil {
		return nil, err
	}
	stats := &database.ExportRunStats{TotalRuns: int64(len(runs))}
	for i := range runs {
		stats.TotalFilesProcessed += int64(runs[i].FilesProcessed)
		switch runs[i].Status {
		case database.ExportRunCompleted:
			stats.CompletedRuns++
			stats.LastCompletedRun = runs[i].CompletedAt
		case database.ExportRunFailed:
			stats.FailedRuns++
		}
	}
	return stats, nil
}

func (m *MockDB) filter(service database.ServiceKind, keep func(database.ScoreRecord) bool) []database.ScoreRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]database.ScoreRecord, 0, len(m.records))
	for _, rec := range m.records {
		if service != "" && rec.Service != service {
			continue
		}
		if keep(rec) {
			recs = append(recs, rec)
		}
	}
	return recs
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func deref(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}
