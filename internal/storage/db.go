package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shivas758/agriguru/internal/config"
)

// Driver names as registered with database/sql.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := sqlx.Open(DriverPostgres, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		return ping(ctx, db)
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.SQLite.Path, cfg.SQLite.JournalMode)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens a SQLite database. Pass ":memory:" for a private
// in-memory database; it is pinned to a single connection so every query
// sees the same data.
func OpenSQLite(ctx context.Context, path, journalMode string) (*sqlx.DB, error) {
	dsn := path
	if path != ":memory:" {
		params := []string{"_busy_timeout=5000", "_foreign_keys=on"}
		if journalMode != "" {
			params = append(params, "_journal_mode="+journalMode)
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = "file:" + path + sep + strings.Join(params, "&")
	}

	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return ping(ctx, db)
}

func ping(ctx context.Context, db *sqlx.DB) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", db.DriverName(), err)
	}
	return db, nil
}

func isPostgres(db *sqlx.DB) bool {
	return db.DriverName() == DriverPostgres
}
