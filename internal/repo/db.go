// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and PostgreSQL, tracing instrumentation, and
// schema migrations.
package repo

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-price-watcher/internal/domain"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured backend. target is a file path for
// sqlite and a DSN for postgres. A nil gl keeps GORM's default logger.
func Open(driver, target string, gl logger.Interface) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(driver) {
	case DriverSQLite, "":
		db, err = openSQLite(target, gl)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(target), gormConfig(gl))
	default:
		return nil, fmt.Errorf("repo: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("repo: install tracing plugin: %w", err)
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database with the default GORM
// logger and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	return Open(DriverSQLite, path, nil)
}

func openSQLite(path string, gl logger.Interface) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	return gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig(gl))
}

// sqliteDSN appends per-connection PRAGMAs so every pooled connection gets
// them, not only the first one.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

func gormConfig(gl logger.Interface) *gorm.Config {
	cfg := &gorm.Config{}
	if gl != nil {
		cfg.Logger = gl
	}
	return cfg
}

// AutoMigrate creates or updates the subscription, price history and
// idempotency tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Subscription{},
		&domain.PriceObservation{},
		&domain.Idempotency{},
	)
}
