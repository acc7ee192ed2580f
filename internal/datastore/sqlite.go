package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/visiongate/visiongate/internal/conf"
	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
)

// SQLiteStore is the embedded single-file backend.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

func (store *SQLiteStore) Open() error {
	path := store.Settings.Output.SQLite.Path
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", dir).
			Build()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormLogger(store.debug),
		TranslateError: true,
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	// SQLite serializes writers; a single connection avoids lock contention
	// errors under concurrent upserts.
	sqlDB, err := db.DB()
	if err != nil {
		return errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	sqlDB.SetMaxOpenConns(1)

	store.DB = db
	logging.ForService("datastore").Info("sqlite store opened", "path", path)
	return performAutoMigration(db, store.debug, "sqlite", path)
}

func gormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Silent
	if debug {
		level = gormlogger.Warn
	}
	return gormlogger.New(
		slogWriter{},
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}

type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	logging.ForService("datastore").Debug("gorm", "msg", fmt.Sprintf(format, args...))
}
