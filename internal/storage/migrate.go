package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationManager applies the embedded schema migrations. Files ending in
// _sqlite.sql replace their base migration on SQLite and are ignored on
// PostgreSQL.
type MigrationManager struct {
	db    *sqlx.DB
	files fs.FS
}

// MigrationStatus represents the status of migrations.
type MigrationStatus struct {
	UpToDate bool
	Applied  []string
	Pending  []string
	Total    int
}

// NewMigrationManager creates a migration manager over the embedded files.
func NewMigrationManager(db *sqlx.DB) *MigrationManager {
	sub, _ := fs.Sub(migrationFS, "migrations")
	return &MigrationManager{db: db, files: sub}
}

// Migrate brings the schema up to date and returns the versions applied.
func Migrate(ctx context.Context, db *sqlx.DB) ([]string, error) {
	m := NewMigrationManager(db)
	status, err := m.CheckMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.RunMigrations(ctx, status); err != nil {
		return nil, err
	}
	return status.Pending, nil
}

// CheckMigrations checks the current migration status.
func (m *MigrationManager) CheckMigrations(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	versions, err := m.listVersions()
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var applied []string
	if err := m.db.SelectContext(ctx, &applied, "SELECT version FROM schema_migrations ORDER BY version"); err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	status := &MigrationStatus{Applied: applied, Total: len(versions)}
	for _, v := range versions {
		if !done[v] {
			status.Pending = append(status.Pending, v)
		}
	}
	status.UpToDate = len(status.Pending) == 0
	return status, nil
}

// RunMigrations runs all pending migrations, each in its own transaction.
func (m *MigrationManager) RunMigrations(ctx context.Context, status *MigrationStatus) error {
	pending := append([]string(nil), status.Pending...)
	sort.Strings(pending)

	for _, version := range pending {
		if err := m.runMigration(ctx, version); err != nil {
			return fmt.Errorf("run migration %s: %w", version, err)
		}
	}
	return nil
}

func (m *MigrationManager) ensureSchemaMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`
	if isPostgres(m.db) {
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`
	}
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// listVersions returns migration base names, e.g. "0001_init".
func (m *MigrationManager) listVersions() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		base := strings.TrimSuffix(strings.TrimSuffix(name, ".sql"), "_sqlite")
		if !seen[base] {
			seen[base] = true
			versions = append(versions, base)
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func (m *MigrationManager) fileFor(version string) string {
	if !isPostgres(m.db) {
		candidate := version + "_sqlite.sql"
		if _, err := fs.Stat(m.files, candidate); err == nil {
			return candidate
		}
	}
	return version + ".sql"
}

func (m *MigrationManager) runMigration(ctx context.Context, version string) error {
	body, err := fs.ReadFile(m.files, m.fileFor(version))
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), version); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
