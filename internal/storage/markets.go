package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/textsim"
)

const marketColumns = "market, district, state, latitude, longitude, is_active"

// MarketRepository is the market catalog.
type MarketRepository struct {
	db *sqlx.DB
}

// NewMarketRepository creates a new market repository.
func NewMarketRepository(db *sqlx.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

// Get returns one catalog entry.
func (r *MarketRepository) Get(ctx context.Context, state, district, market string) (*domain.MarketEntry, error) {
	var row marketRow
	query := r.db.Rebind(`SELECT ` + marketColumns + ` FROM markets
		WHERE LOWER(state) = LOWER(?) AND LOWER(district) = LOWER(?) AND LOWER(market) = LOWER(?)`)
	err := r.db.GetContext(ctx, &row, query, state, district, market)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market: %w", err)
	}
	m := row.toDomain()
	return &m, nil
}

// FindByName returns active entries whose name equals name, narrowed by
// state and district when given.
func (r *MarketRepository) FindByName(ctx context.Context, name, state, district string) ([]domain.MarketEntry, error) {
	clauses := []string{"is_active = ?", "LOWER(market) = LOWER(?)"}
	args := []interface{}{true, strings.TrimSpace(name)}
	if state != "" {
		clauses = append(clauses, "LOWER(state) = LOWER(?)")
		args = append(args, strings.TrimSpace(state))
	}
	if district != "" {
		clauses = append(clauses, "LOWER(district) = LOWER(?)")
		args = append(args, strings.TrimSpace(district))
	}
	return r.selectMarkets(ctx, "SELECT "+marketColumns+" FROM markets"+where(clauses)+" ORDER BY state, district, market", args...)
}

// minContainsLen keeps one- and two-letter names from matching most of
// the catalog.
const minContainsLen = 3

// FindContaining returns active entries whose name contains name
// case-insensitively, narrowed by state and district when given. Upstream
// names often carry a qualifier, as in "Hubli (Amaragol)".
func (r *MarketRepository) FindContaining(ctx context.Context, name, state, district string) ([]domain.MarketEntry, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len([]rune(name)) < minContainsLen {
		return nil, nil
	}
	clauses := []string{"is_active = ?", `LOWER(market) LIKE ? ESCAPE '\'`}
	args := []interface{}{true, "%" + escapeLike(name) + "%"}
	if state != "" {
		clauses = append(clauses, "LOWER(state) = LOWER(?)")
		args = append(args, strings.TrimSpace(state))
	}
	if district != "" {
		clauses = append(clauses, "LOWER(district) = LOWER(?)")
		args = append(args, strings.TrimSpace(district))
	}
	return r.selectMarkets(ctx, "SELECT "+marketColumns+" FROM markets"+where(clauses)+" ORDER BY state, district, market LIMIT 50", args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Candidates returns the bounded set of active entries worth scoring
// against name: those sharing a trigram or the first letter with it.
func (r *MarketRepository) Candidates(ctx context.Context, name string) ([]domain.MarketEntry, error) {
	norm := textsim.Normalize(name)
	if norm == "" {
		return nil, nil
	}
	prefix := string([]rune(norm)[:1]) + "%"

	if isPostgres(r.db) {
		return r.selectMarkets(ctx, `SELECT `+marketColumns+` FROM markets
			WHERE is_active = ? AND (similarity(LOWER(market), ?) > 0 OR LOWER(market) LIKE ?)
			ORDER BY similarity(LOWER(market), ?) DESC, market
			LIMIT 500`, true, norm, prefix, norm)
	}

	all, err := r.selectMarkets(ctx, "SELECT "+marketColumns+" FROM markets WHERE is_active = ? ORDER BY state, district, market", true)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		mn := textsim.Normalize(m.Market)
		if strings.HasPrefix(mn, prefix[:len(prefix)-1]) || textsim.SharesTrigram(mn, norm) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListInDistrict returns active markets in one district.
func (r *MarketRepository) ListInDistrict(ctx context.Context, state, district string, limit int) ([]domain.MarketEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"is_active = ?", "LOWER(district) = LOWER(?)"}
	args := []interface{}{true, district}
	if state != "" {
		clauses = append(clauses, "LOWER(state) = LOWER(?)")
		args = append(args, state)
	}
	args = append(args, limit)
	return r.selectMarkets(ctx, "SELECT "+marketColumns+" FROM markets"+where(clauses)+" ORDER BY market LIMIT ?", args...)
}

// ListWithCoordinates returns active markets that can take part in
// distance scans, optionally within one state.
func (r *MarketRepository) ListWithCoordinates(ctx context.Context, state string) ([]domain.MarketEntry, error) {
	clauses := []string{"is_active = ?", "latitude IS NOT NULL", "longitude IS NOT NULL"}
	args := []interface{}{true}
	if state != "" {
		clauses = append(clauses, "LOWER(state) = LOWER(?)")
		args = append(args, state)
	}
	return r.selectMarkets(ctx, "SELECT "+marketColumns+" FROM markets"+where(clauses)+" ORDER BY state, district, market", args...)
}

// Upsert inserts catalog entries or refreshes them. Existing coordinates are
// kept when the update carries none.
func (r *MarketRepository) Upsert(ctx context.Context, entries []domain.MarketEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin market upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := tx.Rebind(`
		INSERT INTO markets (market, district, state, latitude, longitude, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (state, district, market) DO UPDATE SET
			latitude = COALESCE(excluded.latitude, markets.latitude),
			longitude = COALESCE(excluded.longitude, markets.longitude),
			is_active = excluded.is_active,
			updated_at = CURRENT_TIMESTAMP`)

	for _, m := range entries {
		var lat, lon *float64
		if m.HasCoordinates() {
			lat, lon = &m.Coordinates.Latitude, &m.Coordinates.Longitude
		}
		if _, err := tx.ExecContext(ctx, query,
			CanonicalName(m.Market), CanonicalName(m.District), CanonicalName(m.State),
			lat, lon, m.IsActive,
		); err != nil {
			return fmt.Errorf("upsert market %s: %w", m.Market, err)
		}
	}
	return tx.Commit()
}

// RefreshFromPrices adds every market seen in the price table since `since`
// to the catalog and returns how many entries were new.
func (r *MarketRepository) RefreshFromPrices(ctx context.Context, since time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO markets (market, district, state, is_active)
		SELECT DISTINCT market, district, state, TRUE FROM market_prices WHERE price_date >= ?
		ON CONFLICT (state, district, market) DO NOTHING`), dateArg(since))
	if err != nil {
		return 0, fmt.Errorf("refresh market catalog: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of catalog entries.
func (r *MarketRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM markets"); err != nil {
		return 0, fmt.Errorf("count markets: %w", err)
	}
	return n, nil
}

func (r *MarketRepository) selectMarkets(ctx context.Context, query string, args ...interface{}) ([]domain.MarketEntry, error) {
	var rows []marketRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select markets: %w", err)
	}
	out := make([]domain.MarketEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
