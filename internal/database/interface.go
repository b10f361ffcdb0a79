package database

import "context"

// Reader is the read side of the store. Analysis and reporting only need this.
type Reader interface {
	GetScoreRecord(ctx context.Context, uid string) (*ScoreRecord, error)
	GetScoreRecords(ctx context.Context, service ServiceKind) ([]ScoreRecord, error)
	GetUpgradeCandidates(ctx context.Context, maxScore int, service ServiceKind) ([]ScoreRecord, error)
	GetZeroScoreFiles(ctx context.Context, service ServiceKind, limit int) ([]ScoreRecord, error)
	GetFilesWithSizeData(ctx context.Context, service ServiceKind, limit int) ([]ScoreRecord, error)
	GetScoreTrends(ctx context.Context, days int, service ServiceKind) ([]ScoreTrend, error)
	GetHistory(ctx context.Context, uid string) ([]ScoreHistory, error)
	CalculateLibraryStats(ctx context.Context, service ServiceKind) (*LibraryStatistics, error)
}

// Writer ingests score records.
type Writer interface {
	Store(ctx context.Context, rec ScoreRecord) (ChangeKind, error)
	StoreBatch(ctx context.Context, recs []ScoreRecord) (BatchResult, error)
}

// ExportRunDB tracks export runs.
type ExportRunDB interface {
	StartExportRun(ctx context.Context, service ServiceKind) (*ExportRun, error)
	CompleteExportRun(ctx context.Context, id string, status ExportRunStatus, counts ExportRunCounts, errorMessage *string) error
	GetExportRuns(ctx context.Context, service ServiceKind, limit int) ([]ExportRun, error)
	GetExportRunStats(ctx context.Context, service ServiceKind) (*ExportRunStats, error)
}

// DB is the full database interface.
type DB interface {
	Reader
	Writer
	ExportRunDB

	Migrate() error
	Close() error
}
