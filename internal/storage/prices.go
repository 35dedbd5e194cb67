package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/textsim"
)

const priceColumns = `price_date, state, district, market, commodity, variety, grade,
	min_price, max_price, modal_price, arrival_quantity`

// PriceRepository is the persistent price store.
type PriceRepository struct {
	db *sqlx.DB
}

// NewPriceRepository creates a new price repository.
func NewPriceRepository(db *sqlx.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// GetLatest returns the newest row per (commodity, market, variety) that
// matches the filter, newest first.
func (r *PriceRepository) GetLatest(ctx context.Context, f PriceFilter, limit int) ([]domain.PriceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses, args := filterClause(f)
	// Ranking happens in the database so a busy commodity cannot crowd
	// others out of the result.
	query := "SELECT " + priceColumns + " FROM (SELECT " + priceColumns +
		", ROW_NUMBER() OVER (PARTITION BY LOWER(TRIM(commodity)), LOWER(TRIM(market)), LOWER(TRIM(variety))" +
		" ORDER BY price_date DESC, grade) AS rn FROM market_prices" + where(clauses) +
		") ranked WHERE rn = 1 ORDER BY price_date DESC, commodity, market, variety LIMIT ?"
	args = append(args, limit)

	rows, err := r.selectPrices(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get latest prices: %w", err)
	}
	return rows, nil
}

// GetOnDate returns the rows recorded for exactly day.
func (r *PriceRepository) GetOnDate(ctx context.Context, f PriceFilter, day time.Time) ([]domain.PriceRecord, error) {
	clauses, args := filterClause(f)
	clauses = append([]string{"price_date = ?"}, clauses...)
	args = append([]interface{}{dateArg(day)}, args...)

	query := "SELECT " + priceColumns + " FROM market_prices" + where(clauses) +
		" ORDER BY commodity, market, variety"
	rows, err := r.selectPrices(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get prices on %s: %w", dateArg(day), err)
	}
	return rows, nil
}

// GetLastAvailable finds the most recent day strictly before `before` with
// rows matching the filter and returns those rows. Rows outside the
// filter's location are dropped even if the query returned them.
func (r *PriceRepository) GetLastAvailable(ctx context.Context, f PriceFilter, before time.Time) ([]domain.PriceRecord, time.Time, error) {
	clauses, args := filterClause(f)
	clauses = append([]string{"price_date < ?"}, clauses...)
	args = append([]interface{}{dateArg(before)}, args...)

	var last sqlDate
	query := r.db.Rebind("SELECT MAX(price_date) FROM market_prices" + where(clauses))
	if err := r.db.GetContext(ctx, &last, query, args...); err != nil {
		return nil, time.Time{}, fmt.Errorf("find last available date: %w", err)
	}
	if !last.Valid {
		return nil, time.Time{}, nil
	}

	rows, err := r.GetOnDate(ctx, f, last.Time)
	if err != nil {
		return nil, time.Time{}, err
	}

	loc := f.Location()
	kept := rows[:0]
	for _, rec := range rows {
		if loc.Contains(rec.Location()) {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		return nil, time.Time{}, nil
	}
	return kept, last.Time, nil
}

type trendRow struct {
	Commodity string          `db:"commodity"`
	PriceDate sqlDate         `db:"price_date"`
	AvgModal  decimal.Decimal `db:"avg_modal"`
	MinPrice  decimal.Decimal `db:"min_price"`
	MaxPrice  decimal.Decimal `db:"max_price"`
	Samples   int             `db:"samples"`
}

// GetTrend returns per-day aggregates over the window, one series per
// commodity. Commodities are never averaged together.
func (r *PriceRepository) GetTrend(ctx context.Context, q TrendQuery) ([]domain.TrendSeries, error) {
	days := q.Days
	if days <= 0 {
		days = 30
	}
	until := q.Until
	if until.IsZero() {
		until = domain.Day(time.Now()).AddDate(0, 0, 1)
	}
	from := domain.Day(until).AddDate(0, 0, -days)

	clauses, args := filterClause(PriceFilter{
		Commodity: q.Commodity, State: q.State, District: q.District, Market: q.Market,
	})
	clauses = append([]string{"price_date >= ?", "price_date < ?"}, clauses...)
	args = append([]interface{}{dateArg(from), dateArg(until)}, args...)

	query := r.db.Rebind(`SELECT commodity, price_date,
			AVG(modal_price) AS avg_modal,
			MIN(min_price) AS min_price,
			MAX(max_price) AS max_price,
			COUNT(*) AS samples
		FROM market_prices` + where(clauses) + `
		GROUP BY commodity, price_date
		ORDER BY commodity, price_date`)

	var rows []trendRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get trend: %w", err)
	}

	var series []domain.TrendSeries
	for _, row := range rows {
		if len(series) == 0 || series[len(series)-1].Commodity != row.Commodity {
			series = append(series, domain.TrendSeries{Commodity: row.Commodity})
		}
		s := &series[len(series)-1]
		s.Points = append(s.Points, domain.TrendPoint{
			Date:     row.PriceDate.Time,
			AvgModal: row.AvgModal.Round(2),
			MinPrice: row.MinPrice,
			MaxPrice: row.MaxPrice,
			Samples:  row.Samples,
		})
	}
	return series, nil
}

// SearchFuzzy finds rows whose market name is trigram-similar to q.Market,
// best match first.
func (r *PriceRepository) SearchFuzzy(ctx context.Context, q FuzzyQuery) ([]PriceMatch, error) {
	if strings.TrimSpace(q.Market) == "" {
		return nil, nil
	}
	if q.MinSimilarity <= 0 {
		q.MinSimilarity = 0.3
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}

	clauses, args := filterClause(PriceFilter{Commodity: q.Commodity, State: q.State, District: q.District})
	if !q.From.IsZero() {
		clauses = append(clauses, "price_date >= ?")
		args = append(args, dateArg(q.From))
	}
	if !q.To.IsZero() {
		clauses = append(clauses, "price_date < ?")
		args = append(args, dateArg(q.To))
	}

	if isPostgres(r.db) {
		return r.searchFuzzyTrigram(ctx, q, clauses, args)
	}
	return r.searchFuzzyScan(ctx, q, clauses, args)
}

type fuzzyRow struct {
	priceRow
	Similarity float64 `db:"sim"`
}

func (r *PriceRepository) searchFuzzyTrigram(ctx context.Context, q FuzzyQuery, clauses []string, args []interface{}) ([]PriceMatch, error) {
	clauses = append(clauses, "similarity(LOWER(market), LOWER(?)) >= ?")
	query := r.db.Rebind("SELECT " + priceColumns + ", similarity(LOWER(market), LOWER(?)) AS sim FROM market_prices" +
		where(clauses) + " ORDER BY sim DESC, price_date DESC, commodity LIMIT ?")
	full := append([]interface{}{q.Market}, args...)
	full = append(full, q.Market, q.MinSimilarity, q.Limit)

	var rows []fuzzyRow
	if err := r.db.SelectContext(ctx, &rows, query, full...); err != nil {
		return nil, fmt.Errorf("fuzzy price search: %w", err)
	}
	out := make([]PriceMatch, 0, len(rows))
	for _, row := range rows {
		out = append(out, PriceMatch{Record: row.toDomain(), Similarity: row.Similarity})
	}
	return out, nil
}

// searchFuzzyScan scores distinct market names in Go; SQLite has no
// trigram extension.
func (r *PriceRepository) searchFuzzyScan(ctx context.Context, q FuzzyQuery, clauses []string, args []interface{}) ([]PriceMatch, error) {
	var names []string
	query := r.db.Rebind("SELECT DISTINCT market FROM market_prices" + where(clauses))
	if err := r.db.SelectContext(ctx, &names, query, args...); err != nil {
		return nil, fmt.Errorf("fuzzy market scan: %w", err)
	}

	scores := make(map[string]float64)
	var matched []string
	for _, name := range names {
		if s := textsim.TrigramSimilarity(name, q.Market); s >= q.MinSimilarity {
			scores[strings.ToLower(name)] = s
			matched = append(matched, name)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(matched)), ",")
	rowClauses := append(append([]string(nil), clauses...), "market IN ("+placeholders+")")
	rowArgs := append([]interface{}(nil), args...)
	for _, m := range matched {
		rowArgs = append(rowArgs, m)
	}
	rows, err := r.selectPrices(ctx, "SELECT "+priceColumns+" FROM market_prices"+where(rowClauses), rowArgs...)
	if err != nil {
		return nil, fmt.Errorf("fuzzy price rows: %w", err)
	}

	out := make([]PriceMatch, 0, len(rows))
	for _, rec := range rows {
		out = append(out, PriceMatch{Record: rec, Similarity: scores[strings.ToLower(rec.Market)]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if !out[i].Record.Date.Equal(out[j].Record.Date) {
			return out[i].Record.Date.After(out[j].Record.Date)
		}
		return out[i].Record.Commodity < out[j].Record.Commodity
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Upsert inserts or updates records on their natural key in one transaction.
// Names are stored in canonical form so differently cased upstream spellings
// land on the same row.
func (r *PriceRepository) Upsert(ctx context.Context, records []domain.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO market_prices (`+priceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (price_date, state, district, market, commodity, variety) DO UPDATE SET
			grade = excluded.grade,
			min_price = excluded.min_price,
			max_price = excluded.max_price,
			modal_price = excluded.modal_price,
			arrival_quantity = excluded.arrival_quantity,
			updated_at = CURRENT_TIMESTAMP`))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.Date.IsZero() || rec.Market == "" || rec.Commodity == "" {
			continue
		}
		_, err := stmt.ExecContext(ctx,
			dateArg(rec.Date),
			CanonicalName(rec.State),
			CanonicalName(rec.District),
			CanonicalName(rec.Market),
			CanonicalName(rec.Commodity),
			CanonicalName(rec.Variety),
			strings.TrimSpace(rec.Grade),
			rec.MinPrice,
			rec.MaxPrice,
			rec.ModalPrice,
			rec.ArrivalQuantity,
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", rec.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Count returns the number of stored rows matching the filter.
func (r *PriceRepository) Count(ctx context.Context, f PriceFilter) (int, error) {
	clauses, args := filterClause(f)
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind("SELECT COUNT(*) FROM market_prices"+where(clauses)), args...); err != nil {
		return 0, fmt.Errorf("count prices: %w", err)
	}
	return n, nil
}

func (r *PriceRepository) selectPrices(ctx context.Context, query string, args ...interface{}) ([]domain.PriceRecord, error) {
	var rows []priceRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]domain.PriceRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

// VarietyKey groups rows by (commodity, market, variety).
func VarietyKey(r domain.PriceRecord) string {
	return domain.Fold(r.Commodity) + "|" + domain.Fold(r.Market) + "|" + domain.Fold(r.Variety)
}

// CommodityKey groups rows by (commodity, market); used for market overviews.
func CommodityKey(r domain.PriceRecord) string {
	return domain.Fold(r.Commodity) + "|" + domain.Fold(r.Market)
}

// DedupeLatest keeps the newest row for each key. Ties keep the first row
// seen. The result is ordered newest first, then by the input order.
func DedupeLatest(records []domain.PriceRecord, key func(domain.PriceRecord) string) []domain.PriceRecord {
	best := make(map[string]int)
	var out []domain.PriceRecord
	for _, rec := range records {
		k := key(rec)
		if i, ok := best[k]; ok {
			if rec.Date.After(out[i].Date) {
				out[i] = rec
			}
			continue
		}
		best[k] = len(out)
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}
