// Package store is the on-disk cache of API responses and vote state,
// kept in a single SQLite database shared by reference count.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zfogg/photostream/cli/pkg/logger"
	"github.com/zfogg/photostream/cli/pkg/metrics"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrClosed is returned when the connection has been released by every
// holder
var ErrClosed = errors.New("store: connection closed")

// Connection is a reference-counted handle on the cache database
type Connection struct {
	mu      sync.Mutex
	path    string
	db      *gorm.DB
	refs    int
	metrics *metrics.Metrics
}

var (
	openMu sync.Mutex
	open   = map[string]*Connection{}
)

// Open returns the connection for path, opening the database on first use.
// Every Open must be paired with a Close.
func Open(path string) (*Connection, error) {
	openMu.Lock()
	defer openMu.Unlock()

	if c, ok := open[path]; ok {
		if err := c.Acquire(); err == nil {
			return c, nil
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	c := &Connection{path: path, db: db, refs: 1, metrics: metrics.Get()}
	open[path] = c
	logger.Debug("Cache database opened", "path", path)
	return c, nil
}

func openDB(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&PhotoRow{}, &CommentRow{}); err != nil {
		return fmt.Errorf("failed to migrate cache tables: %w", err)
	}
	for _, table := range []string{likesTable, votesTable} {
		if err := db.Table(table).AutoMigrate(&FlagRow{}); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", table, err)
		}
	}
	return nil
}

// Acquire adds a holder to an open connection
func (c *Connection) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		return ErrClosed
	}
	c.refs++
	return nil
}

// Close releases one holder; the last one closes the database
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.refs == 0 {
		c.mu.Unlock()
		return ErrClosed
	}
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return nil
	}
	db := c.db
	c.db = nil
	c.mu.Unlock()

	openMu.Lock()
	if open[c.path] == c {
		delete(open, c.path)
	}
	openMu.Unlock()

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	logger.Debug("Cache database closed", "path", c.path)
	return sqlDB.Close()
}

// Refs returns the number of holders
func (c *Connection) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// Path returns the database file path
func (c *Connection) Path() string {
	return c.path
}

// DB returns the gorm handle while the connection is open
func (c *Connection) DB() (*gorm.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, ErrClosed
	}
	return c.db, nil
}

// Photos returns the cached stream pages
func (c *Connection) Photos() *PhotoTable {
	return &PhotoTable{conn: c}
}

// Comments returns the cached comment lists
func (c *Connection) Comments() *CommentTable {
	return &CommentTable{conn: c}
}

// Likes returns the like state per photo
func (c *Connection) Likes() *LikeTable {
	return &LikeTable{flagTable{conn: c, table: likesTable}}
}

// Votes returns whether this installation voted per photo
func (c *Connection) Votes() *VoteTable {
	return &VoteTable{flagTable{conn: c, table: votesTable}}
}

// Counts returns the row count of every table
func (c *Connection) Counts() (map[string]int64, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, 4)
	for _, t := range []struct {
		name  string
		query *gorm.DB
	}{
		{PhotoRow{}.TableName(), db.Model(&PhotoRow{})},
		{CommentRow{}.TableName(), db.Model(&CommentRow{})},
		{likesTable, db.Table(likesTable)},
		{votesTable, db.Table(votesTable)},
	} {
		var n int64
		if err := t.query.Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", t.name, err)
		}
		counts[t.name] = n
	}
	return counts, nil
}

// Clear empties every table
func (c *Connection) Clear() error {
	for _, clear := range []func() error{
		c.Photos().Clear,
		c.Comments().Clear,
		c.Likes().Clear,
		c.Votes().Clear,
	} {
		if err := clear(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) lookup(table string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.metrics.CacheLookupsTotal.WithLabelValues(table, result).Inc()
}
