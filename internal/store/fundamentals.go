package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// UpsertStockFundamentals writes valuation metrics for a stock.
func (s *Store) UpsertStockFundamentals(ctx context.Context, f domain.StockFundamentals) error {
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO stock_fundamentals (ticker_code, market_cap, per, pbr, eps, bps, dividend_yield, roe, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker_code) DO UPDATE SET
			market_cap = excluded.market_cap,
			per = excluded.per,
			pbr = excluded.pbr,
			eps = excluded.eps,
			bps = excluded.bps,
			dividend_yield = excluded.dividend_yield,
			roe = excluded.roe,
			updated_at = excluded.updated_at
	`, f.TickerCode, f.MarketCap, f.PER, f.PBR, f.EPS, f.BPS, f.DividendYield, f.ROE, f.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// GetStockFundamentals returns the latest fundamentals for a stock.
func (s *Store) GetStockFundamentals(ctx context.Context, tickerCode string) (*domain.StockFundamentals, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT ticker_code, market_cap, per, pbr, eps, bps, dividend_yield, roe, updated_at
		FROM stock_fundamentals WHERE ticker_code = ?
	`, tickerCode)

	var f domain.StockFundamentals
	var updatedAt string
	err := row.Scan(&f.TickerCode, &f.MarketCap, &f.PER, &f.PBR, &f.EPS, &f.BPS, &f.DividendYield, &f.ROE, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no fundamentals for ticker %s", tickerCode)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &f, nil
}

// UpsertEtfFundamentals writes descriptive metrics for an ETF.
func (s *Store) UpsertEtfFundamentals(ctx context.Context, f domain.EtfFundamentals) error {
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO etf_fundamentals (ticker_code, nav, aum, expense_ratio, tracking_index, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker_code) DO UPDATE SET
			nav = excluded.nav,
			aum = excluded.aum,
			expense_ratio = excluded.expense_ratio,
			tracking_index = excluded.tracking_index,
			updated_at = excluded.updated_at
	`, f.TickerCode, f.NAV, f.AUM, f.ExpenseRatio, f.TrackingIndex, f.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// GetEtfFundamentals returns the latest fundamentals for an ETF.
func (s *Store) GetEtfFundamentals(ctx context.Context, tickerCode string) (*domain.EtfFundamentals, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT ticker_code, nav, aum, expense_ratio, tracking_index, updated_at
		FROM etf_fundamentals WHERE ticker_code = ?
	`, tickerCode)

	var f domain.EtfFundamentals
	var updatedAt string
	err := row.Scan(&f.TickerCode, &f.NAV, &f.AUM, &f.ExpenseRatio, &f.TrackingIndex, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no fundamentals for ticker %s", tickerCode)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &f, nil
}

// ReplaceEtfHoldings atomically replaces the holdings basket for an ETF.
func (s *Store) ReplaceEtfHoldings(ctx context.Context, etfCode string, holdings []domain.EtfHolding) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM etf_holdings WHERE etf_code = ?`, etfCode); err != nil {
		return apperr.StoreUnavailable(err)
	}
	for _, h := range holdings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO etf_holdings (etf_code, holding_code, holding_name, weight_pct)
			VALUES (?, ?, ?, ?)
		`, etfCode, h.HoldingCode, h.HoldingName, h.WeightPct); err != nil {
			return apperr.StoreUnavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// GetEtfHoldings returns the current holdings basket for an ETF, largest
// weight first.
func (s *Store) GetEtfHoldings(ctx context.Context, etfCode string) ([]domain.EtfHolding, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT etf_code, holding_code, holding_name, weight_pct
		FROM etf_holdings WHERE etf_code = ?
		ORDER BY weight_pct DESC
	`, etfCode)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.EtfHolding
	for rows.Next() {
		var h domain.EtfHolding
		if err := rows.Scan(&h.EtfCode, &h.HoldingCode, &h.HoldingName, &h.WeightPct); err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
