package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/shivas758/agriguru/internal/domain"
)

// CommodityRepository stores canonical commodity names and their aliases.
type CommodityRepository struct {
	db *sqlx.DB
}

// NewCommodityRepository creates a new commodity repository.
func NewCommodityRepository(db *sqlx.DB) *CommodityRepository {
	return &CommodityRepository{db: db}
}

// Upsert stores a commodity and replaces its alias list.
func (r *CommodityRepository) Upsert(ctx context.Context, entry domain.CommodityEntry) error {
	name := CanonicalName(entry.Name)
	if name == "" {
		return fmt.Errorf("commodity name is required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commodity upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		"INSERT INTO commodities (name) VALUES (?) ON CONFLICT (name) DO NOTHING"), name); err != nil {
		return fmt.Errorf("insert commodity: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(
		"DELETE FROM commodity_aliases WHERE commodity = ?"), name); err != nil {
		return fmt.Errorf("clear aliases: %w", err)
	}
	for i, alias := range entry.Aliases {
		alias = CanonicalName(alias)
		if alias == "" || alias == name {
			continue
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO commodity_aliases (alias, commodity, position) VALUES (?, ?, ?)
			ON CONFLICT (alias) DO UPDATE SET commodity = excluded.commodity, position = excluded.position`),
			alias, name, i); err != nil {
			return fmt.Errorf("insert alias %s: %w", alias, err)
		}
	}
	return tx.Commit()
}

// Lookup resolves a canonical name or alias to its commodity entry.
func (r *CommodityRepository) Lookup(ctx context.Context, name string) (*domain.CommodityEntry, error) {
	var canonical string
	err := r.db.GetContext(ctx, &canonical, r.db.Rebind(`
		SELECT name FROM commodities WHERE LOWER(name) = LOWER(?)
		UNION
		SELECT commodity FROM commodity_aliases WHERE LOWER(alias) = LOWER(?)`), name, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup commodity: %w", err)
	}

	entry := &domain.CommodityEntry{Name: canonical}
	if err := r.db.SelectContext(ctx, &entry.Aliases, r.db.Rebind(
		"SELECT alias FROM commodity_aliases WHERE commodity = ? ORDER BY position, alias"), canonical); err != nil {
		return nil, fmt.Errorf("load aliases: %w", err)
	}
	return entry, nil
}

// List returns every known commodity name.
func (r *CommodityRepository) List(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names, "SELECT name FROM commodities ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list commodities: %w", err)
	}
	return names, nil
}
