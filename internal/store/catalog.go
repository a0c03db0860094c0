package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// UpsertCatalogEntry writes the screener-facing snapshot row for a ticker.
// This is the only write path for catalog_entries; the live tickers table
// is never joined at query time, so a screener query never blocks on the
// collection pipeline.
func (s *Store) UpsertCatalogEntry(ctx context.Context, e domain.CatalogEntry) error {
	if e.CatalogUpdatedAt.IsZero() {
		e.CatalogUpdatedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO catalog_entries (
			ticker_code, name, market, type, sector, listed_date, is_active,
			last_close, daily_change_pct, volume, weekly_return_pct,
			foreign_net, institution_net, market_cap, per, pbr, dividend_yield, catalog_updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker_code) DO UPDATE SET
			name = excluded.name, market = excluded.market, type = excluded.type,
			sector = excluded.sector, listed_date = excluded.listed_date, is_active = excluded.is_active,
			last_close = excluded.last_close, daily_change_pct = excluded.daily_change_pct,
			volume = excluded.volume, weekly_return_pct = excluded.weekly_return_pct,
			foreign_net = excluded.foreign_net, institution_net = excluded.institution_net,
			market_cap = excluded.market_cap, per = excluded.per, pbr = excluded.pbr,
			dividend_yield = excluded.dividend_yield, catalog_updated_at = excluded.catalog_updated_at
	`, e.TickerCode, e.Name, e.Market, e.Type, e.Sector, e.ListedDate, boolToInt(e.IsActive),
		e.LastClose, e.DailyChangePct, e.Volume, e.WeeklyReturnPct,
		e.ForeignNet, e.InstitutionNet, e.MarketCap, e.PER, e.PBR, e.DividendYield, e.CatalogUpdatedAt.Format(time.RFC3339))
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// CatalogFilter narrows and orders a screener query over catalog_entries.
type CatalogFilter struct {
	Query                  string // substring match on name or ticker code
	Type                   string
	Sector                 string
	MinWeeklyReturn        *float64
	MaxWeeklyReturn        *float64
	ForeignNetPositive     bool
	InstitutionNetPositive bool

	SortBy  string // weekly_return, daily_change_pct, volume, close_price, foreign_net, institution_net, name
	SortAsc bool

	Page     int
	PageSize int
}

var catalogSortColumns = map[string]string{
	"weekly_return":    "weekly_return_pct",
	"daily_change_pct": "daily_change_pct",
	"volume":           "volume",
	"close_price":      "last_close",
	"foreign_net":      "foreign_net",
	"institution_net":  "institution_net",
	"name":             "name",
}

const catalogEntryColumns = `ticker_code, name, market, type, sector, listed_date, is_active,
	last_close, daily_change_pct, volume, weekly_return_pct,
	foreign_net, institution_net, market_cap, per, pbr, dividend_yield, catalog_updated_at`

func scanCatalogEntry(row interface{ Scan(...interface{}) error }) (domain.CatalogEntry, error) {
	var e domain.CatalogEntry
	var sector, listedDate sql.NullString
	var isActive int
	var updatedAt string
	err := row.Scan(&e.TickerCode, &e.Name, &e.Market, &e.Type, &sector, &listedDate, &isActive,
		&e.LastClose, &e.DailyChangePct, &e.Volume, &e.WeeklyReturnPct,
		&e.ForeignNet, &e.InstitutionNet, &e.MarketCap, &e.PER, &e.PBR, &e.DividendYield, &updatedAt)
	if err != nil {
		return e, err
	}
	e.Sector = sector.String
	e.ListedDate = listedDate.String
	e.IsActive = isActive != 0
	e.CatalogUpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

// QueryCatalog runs a filtered, sorted, paginated query over the screener
// snapshot, returning the matched page and the total match count (for
// paging metadata).
func (s *Store) QueryCatalog(ctx context.Context, f CatalogFilter) ([]domain.CatalogEntry, int, error) {
	where := []string{"1=1"}
	var args []interface{}

	if f.Query != "" {
		where = append(where, "(name LIKE ? OR ticker_code LIKE ?)")
		like := "%" + f.Query + "%"
		args = append(args, like, like)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Sector != "" {
		where = append(where, "sector = ?")
		args = append(args, f.Sector)
	}
	if f.MinWeeklyReturn != nil {
		where = append(where, "weekly_return_pct >= ?")
		args = append(args, *f.MinWeeklyReturn)
	}
	if f.MaxWeeklyReturn != nil {
		where = append(where, "weekly_return_pct <= ?")
		args = append(args, *f.MaxWeeklyReturn)
	}
	if f.ForeignNetPositive {
		where = append(where, "foreign_net > 0")
	}
	if f.InstitutionNetPositive {
		where = append(where, "institution_net > 0")
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM catalog_entries WHERE %s", whereClause)
	if err := s.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperr.StoreUnavailable(err)
	}

	sortCol, ok := catalogSortColumns[f.SortBy]
	if !ok {
		sortCol = "weekly_return_pct"
	}
	dir := "DESC"
	if f.SortAsc {
		dir = "ASC"
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 || pageSize > 50 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT %s FROM catalog_entries WHERE %s ORDER BY %s %s, ticker_code ASC LIMIT ? OFFSET ?`,
		catalogEntryColumns, whereClause, sortCol, dir)
	args = append(args, pageSize, offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.CatalogEntry
	for rows.Next() {
		e, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, 0, apperr.StoreUnavailable(err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// AllCatalogEntries returns the entire catalog snapshot unpaged, used for
// sector grouping and recommendation presets that need the full universe
// in memory.
func (s *Store) AllCatalogEntries(ctx context.Context) ([]domain.CatalogEntry, error) {
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM catalog_entries", catalogEntryColumns))
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.CatalogEntry
	for rows.Next() {
		e, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CatalogSize reports the number of rows in the screener snapshot.
func (s *Store) CatalogSize(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_entries").Scan(&n)
	if err != nil {
		return 0, apperr.StoreUnavailable(err)
	}
	return n, nil
}
