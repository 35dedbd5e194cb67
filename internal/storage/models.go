// Package storage provides the price store and the market and commodity
// catalogs on top of PostgreSQL or SQLite.
package storage

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/textsim"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// PriceFilter narrows price queries. Empty fields match everything; set
// fields match case-insensitively.
type PriceFilter struct {
	Commodity string
	State     string
	District  string
	Market    string
}

// Location returns the filter's location part.
func (f PriceFilter) Location() domain.Location {
	return domain.Location{State: f.State, District: f.District, Market: f.Market}
}

// TrendQuery selects a window of daily aggregates.
type TrendQuery struct {
	Commodity string
	State     string
	District  string
	Market    string
	Days      int
	Until     time.Time // exclusive; zero means tomorrow in UTC
}

// FuzzyQuery searches price rows whose market name resembles Market.
type FuzzyQuery struct {
	Market        string
	Commodity     string
	State         string
	District      string
	From          time.Time // inclusive
	To            time.Time // exclusive
	MinSimilarity float64
	Limit         int
}

// PriceMatch is a fuzzy search hit.
type PriceMatch struct {
	Record     domain.PriceRecord
	Similarity float64
}

// sqlDate scans DATE columns from either driver: pq yields time.Time,
// go-sqlite3 yields time.Time for declared columns and text for aggregates.
type sqlDate struct {
	Time  time.Time
	Valid bool
}

func (d *sqlDate) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		d.Time, d.Valid = time.Time{}, false
		return nil
	case time.Time:
		d.Time, d.Valid = domain.Day(v), true
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into date", src)
	}
}

func (d *sqlDate) parse(s string) error {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		s = s[:10]
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time, d.Valid = t, true
	return nil
}

// Value implements driver.Valuer so dates bind as YYYY-MM-DD on both drivers.
func (d sqlDate) Value() (driver.Value, error) {
	if !d.Valid {
		return nil, nil
	}
	return d.Time.Format(domain.DateLayout), nil
}

func dateArg(t time.Time) string {
	return domain.Day(t).Format(domain.DateLayout)
}

type priceRow struct {
	PriceDate       sqlDate             `db:"price_date"`
	State           string              `db:"state"`
	District        string              `db:"district"`
	Market          string              `db:"market"`
	Commodity       string              `db:"commodity"`
	Variety         string              `db:"variety"`
	Grade           string              `db:"grade"`
	MinPrice        decimal.Decimal     `db:"min_price"`
	MaxPrice        decimal.Decimal     `db:"max_price"`
	ModalPrice      decimal.Decimal     `db:"modal_price"`
	ArrivalQuantity decimal.NullDecimal `db:"arrival_quantity"`
}

func (r priceRow) toDomain() domain.PriceRecord {
	return domain.PriceRecord{
		Date:            r.PriceDate.Time,
		State:           r.State,
		District:        r.District,
		Market:          r.Market,
		Commodity:       r.Commodity,
		Variety:         r.Variety,
		Grade:           r.Grade,
		MinPrice:        r.MinPrice,
		MaxPrice:        r.MaxPrice,
		ModalPrice:      r.ModalPrice,
		ArrivalQuantity: r.ArrivalQuantity,
	}
}

type marketRow struct {
	Market    string   `db:"market"`
	District  string   `db:"district"`
	State     string   `db:"state"`
	Latitude  *float64 `db:"latitude"`
	Longitude *float64 `db:"longitude"`
	IsActive  bool     `db:"is_active"`
}

func (r marketRow) toDomain() domain.MarketEntry {
	m := domain.MarketEntry{
		Market:   r.Market,
		District: r.District,
		State:    r.State,
		IsActive: r.IsActive,
	}
	if r.Latitude != nil && r.Longitude != nil {
		m.Coordinates = &domain.Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}
	}
	return m
}

// CanonicalName is the stored spelling of a place or commodity name:
// trimmed, single-spaced and Title Cased.
func CanonicalName(s string) string {
	return textsim.TitleCase(strings.Join(strings.Fields(s), " "))
}

// filterClause renders the WHERE fragments for a PriceFilter with ?
// placeholders. The caller rebinds.
func filterClause(f PriceFilter) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(col, val string) {
		if strings.TrimSpace(val) == "" {
			return
		}
		clauses = append(clauses, "LOWER("+col+") = LOWER(?)")
		args = append(args, strings.TrimSpace(val))
	}
	add("commodity", f.Commodity)
	add("state", f.State)
	add("district", f.District)
	add("market", f.Market)
	return clauses, args
}
