package store

import (
	"context"

	"github.com/aristath/kr-market-feed/internal/apperr"
)

// ResetMarketData truncates all collected market data while preserving the
// ticker roster, alert rules, and alert history. Used by test fixtures and
// the administrative reset endpoint.
func (s *Store) ResetMarketData(ctx context.Context) error {
	tables := []string{
		"daily_bars",
		"trading_flows",
		"intraday_ticks",
		"news_items",
		"stock_fundamentals",
		"etf_fundamentals",
		"etf_holdings",
		"collection_state",
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return apperr.StoreUnavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}
