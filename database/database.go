// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds the database configuration
type Config struct {
	Logger *slog.Logger
	// DataDir is the persistent data directory. When empty, both the
	// blob and metadata stores run in memory, which is useful for
	// testing and ephemeral sales.
	DataDir string
}

// Database combines a badger blob store holding per-account records
// with a sqlite metadata store holding the small global state rows and
// the append-only contribution log. It implements both sale.Store and
// vault.Store.
type Database struct {
	logger   *slog.Logger
	blob     *badger.DB
	metadata *gorm.DB
	dataDir  string
}

// New creates a database instance with optional persistence using the
// provided data directory
func New(cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	db := &Database{
		logger:  cfg.Logger,
		dataDir: cfg.DataDir,
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if err := db.openBlob(); err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	if err := db.openMetadata(); err != nil {
		db.blob.Close()
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}
	if err := db.metadata.AutoMigrate(
		&SaleStateModel{},
		&VaultStateModel{},
		&ContributionLogModel{},
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating metadata store: %w", err)
	}
	return db, nil
}

func (d *Database) openBlob() error {
	var badgerOpts badger.Options
	if d.dataDir == "" {
		// No dataDir, use in-memory config
		badgerOpts = badger.DefaultOptions("").
			WithLogger(newBadgerLogger(d.logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(d.dataDir, "blob")).
			WithLogger(newBadgerLogger(d.logger)).
			WithLoggingLevel(badger.WARNING)
	}
	blobDb, err := badger.Open(badgerOpts)
	if err != nil {
		return err
	}
	d.blob = blobDb
	return nil
}

func (d *Database) openMetadata() error {
	var dsn string
	if d.dataDir == "" {
		// In-memory database, useful for testing
		// cache=shared allows multiple connections to share the same in-memory database
		dsn = "file::memory:?cache=shared"
	} else {
		dsn = filepath.Join(d.dataDir, "metadata.sqlite")
	}
	metadataDb, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return err
	}
	d.metadata = metadataDb
	return nil
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		if sqlDb, sqlErr := d.metadata.DB(); sqlErr == nil {
			err = errors.Join(err, sqlDb.Close())
		}
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// badgerLogger adapts slog to the badger logging interface
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(fmt.Sprintf(format, args...), "component", "blobdb")
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(fmt.Sprintf(format, args...), "component", "blobdb")
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.logger.Info(fmt.Sprintf(format, args...), "component", "blobdb")
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...), "component", "blobdb")
}
