package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var _ DB = (*Client)(nil) // Ensure Client implements DB

// Client wraps the gorm.DB instance.
type Client struct {
	db    *gorm.DB
	retry *RetryPolicy
	now   func() time.Time

	// writeMu serializes every mutating transaction. Readers don't take it,
	// the WAL journal keeps them from blocking behind a writer.
	writeMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy sets the policy used when sqlite reports a busy or locked database.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Client) {
		if p != nil {
			c.retry = p
		}
	}
}

// WithClock overrides the clock used for ledger timestamps and trend windows.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a new database connection and performs migrations.
func New(dbpath string, opts ...Option) (*Client, error) {
	if dir := filepath.Dir(dbpath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn(dbpath)), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	c := &Client{
		db:    db,
		retry: DefaultRetryPolicy(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.Migrate(); err != nil {
		return nil, err
	}

	return c, nil
}

// dsn enables the write-ahead log so readers are never blocked by the single writer.
func dsn(path string) string {
	return path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
}

// Migrate creates or updates the schema.
func (c *Client) Migrate() error {
	if err := c.db.AutoMigrate(
		&ScoreRecord{},
		&ScoreHistory{},
		&ExportRun{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
