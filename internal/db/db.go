package db

import (
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"timeline/internal/models"
)

// sqliteDriver is the database/sql name registered by modernc.org/sqlite.
const sqliteDriver = "sqlite"

// Options tunes Open.
type Options struct {
	Debug     bool      // log every SQL statement
	LogOutput io.Writer // defaults to stdout
}

// Open connects to PostgreSQL when dsn is a postgres:// URL and to a SQLite
// file (or file: URI) otherwise.
func Open(dsn string, opts Options) (*gorm.DB, error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	level := logger.Warn
	if opts.Debug {
		level = logger.Info
	}
	cfg := &gorm.Config{
		Logger: logger.New(log.New(out, "[GORM] ", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}

	if IsPostgres(dsn) {
		d, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return d, ping(d)
	}

	if dsn == "" {
		dsn = "data/timeline.db"
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	d, err := gorm.Open(&sqlite.Dialector{DriverName: sqliteDriver, DSN: withPragmas(dsn)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := d.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	return d, ping(d)
}

// Migrate creates or updates the schema for every model.
func Migrate(d *gorm.DB) error {
	if err := d.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(d *gorm.DB) error {
	sqlDB, err := d.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ping(d *gorm.DB) error {
	sqlDB, err := d.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// IsPostgres reports whether dsn is a PostgreSQL URL; anything else is SQLite.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// withPragmas turns on foreign keys and a busy timeout for every connection
// modernc opens, and stores times in a sortable format.
func withPragmas(dsn string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_time_format", "sqlite")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + q.Encode()
}
