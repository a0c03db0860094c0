package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

const tickerColumns = `code, name, market, type, sector, theme, launch_date, expense_ratio, is_active, added_at,
	purchase_date, purchase_price, quantity, search_keyword, relevance_keywords, sort_order`

// UpsertTicker inserts or updates a ticker's descriptive and watchlist
// metadata.
func (s *Store) UpsertTicker(ctx context.Context, t domain.Ticker) error {
	if t.AddedAt.IsZero() {
		t.AddedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO tickers (code, name, market, type, sector, theme, launch_date, expense_ratio, is_active, added_at,
			purchase_date, purchase_price, quantity, search_keyword, relevance_keywords, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			market = excluded.market,
			type = excluded.type,
			sector = excluded.sector,
			theme = excluded.theme,
			launch_date = excluded.launch_date,
			expense_ratio = excluded.expense_ratio,
			is_active = excluded.is_active,
			purchase_date = excluded.purchase_date,
			purchase_price = excluded.purchase_price,
			quantity = excluded.quantity,
			search_keyword = excluded.search_keyword,
			relevance_keywords = excluded.relevance_keywords,
			sort_order = excluded.sort_order
	`, t.Code, t.Name, t.Market, t.Type, t.Sector, t.Theme, t.LaunchDate, t.ExpenseRatio, boolToInt(t.IsActive), t.AddedAt.Format(time.RFC3339),
		t.PurchaseDate, t.PurchasePrice, t.Quantity, t.SearchKeyword, strings.Join(t.RelevanceKeywords, ","), t.SortOrder)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

func scanTicker(row interface{ Scan(...interface{}) error }) (domain.Ticker, error) {
	var t domain.Ticker
	var sector, theme, launchDate, purchaseDate, searchKeyword, keywords sql.NullString
	var isActive int
	var addedAt string
	err := row.Scan(&t.Code, &t.Name, &t.Market, &t.Type, &sector, &theme, &launchDate, &t.ExpenseRatio, &isActive, &addedAt,
		&purchaseDate, &t.PurchasePrice, &t.Quantity, &searchKeyword, &keywords, &t.SortOrder)
	if err != nil {
		return t, err
	}
	t.Sector = sector.String
	t.Theme = theme.String
	t.LaunchDate = launchDate.String
	t.IsActive = isActive != 0
	t.AddedAt, _ = time.Parse(time.RFC3339, addedAt)
	t.PurchaseDate = purchaseDate.String
	t.SearchKeyword = searchKeyword.String
	if keywords.String != "" {
		t.RelevanceKeywords = strings.Split(keywords.String, ",")
	}
	return t, nil
}

// GetTicker returns a single ticker by code.
func (s *Store) GetTicker(ctx context.Context, code string) (*domain.Ticker, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+tickerColumns+` FROM tickers WHERE code = ?`, code)

	t, err := scanTicker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("ticker %s not found", code)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return &t, nil
}

// ListTickers returns all active tickers (the registered watchlist),
// optionally filtered by market, ordered by the user's chosen sort order.
func (s *Store) ListTickers(ctx context.Context, market string) ([]domain.Ticker, error) {
	query := `SELECT ` + tickerColumns + ` FROM tickers WHERE is_active = 1`
	args := []interface{}{}
	if market != "" {
		query += ` AND market = ?`
		args = append(args, market)
	}
	query += ` ORDER BY sort_order ASC, code ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.Ticker
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTicker removes a ticker and cascades to its market-data tables
// (bars, flows, intraday ticks, news, fundamentals, ETF holdings) and its
// collection state. Catalog entries, alert rules and alert history are kept.
func (s *Store) DeleteTicker(ctx context.Context, code string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM tickers WHERE code = ?`, code)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("ticker %s not found", code)
	}

	cascadeTables := []string{
		"daily_bars", "trading_flows", "intraday_ticks", "news_items",
		"stock_fundamentals", "etf_fundamentals", "etf_holdings", "collection_state",
	}
	for _, table := range cascadeTables {
		col := "ticker_code"
		if table == "etf_holdings" {
			col = "etf_code"
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+col+" = ?", code); err != nil {
			return apperr.StoreUnavailable(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// ReorderTickers applies a new sort_order to each listed ticker code, in
// the order given.
func (s *Store) ReorderTickers(ctx context.Context, codes []string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	defer tx.Rollback()

	for i, code := range codes {
		if _, err := tx.ExecContext(ctx, `UPDATE tickers SET sort_order = ? WHERE code = ?`, i, code); err != nil {
			return apperr.StoreUnavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
