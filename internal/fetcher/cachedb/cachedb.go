// Package cachedb maintains a small SQLite ledger of HTTP cache entries,
// purely for CLI introspection (`funee cache ls`/`funee cache rm`). It is
// never consulted by the Fetcher to decide staleness: the on-disk body
// file is the only source of truth for that. gorm's query surface covers
// everything here, since this package only ever does simple
// upsert/list/delete, not raw SQL.
package cachedb

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is one row of the ledger: a record of a successful http(s)://
// fetch, independent of whether its body file still exists on disk.
type Entry struct {
	URL       string `gorm:"primaryKey"`
	Host      string `gorm:"index"`
	BodyPath  string
	FetchedAt time.Time
	Bytes     int64
}

// DB wraps the gorm handle for the ledger database.
type DB struct {
	gdb *gorm.DB
}

// Open opens (creating if absent) the ledger database at path.
func Open(path string) (*DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &DB{gdb: gdb}, nil
}

// Upsert records a successful fetch, replacing any prior entry for the
// same URL.
func (d *DB) Upsert(e Entry) error {
	return d.gdb.Save(&e).Error
}

// List returns every ledger entry, most recently fetched first.
func (d *DB) List() ([]Entry, error) {
	var entries []Entry
	err := d.gdb.Order("fetched_at desc").Find(&entries).Error
	return entries, err
}

// Delete removes the ledger row for url. It does not touch the body file
// on disk; callers remove that separately.
func (d *DB) Delete(url string) error {
	return d.gdb.Delete(&Entry{}, "url = ?", url).Error
}

// Close releases the underlying database connection.
func (d *DB) Close() error {
	sqlDB, err := d.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
