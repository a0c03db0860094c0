package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// UpsertDailyBar writes a bar, computing DailyChangePct against the
// previous trading day's close already stored for this ticker.
func (s *Store) UpsertDailyBar(ctx context.Context, bar domain.DailyBar) error {
	prevClose, err := s.previousClose(ctx, bar.TickerCode, bar.Date)
	if err != nil {
		return err
	}
	if prevClose != 0 {
		bar.DailyChangePct = (bar.Close - prevClose) / prevClose * 100
	} else {
		bar.DailyChangePct = 0
	}
	if bar.CollectedAt.IsZero() {
		bar.CollectedAt = time.Now().UTC()
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO daily_bars (ticker_code, date, open, high, low, close, volume, trading_value, daily_change_pct, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker_code, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			trading_value = excluded.trading_value,
			daily_change_pct = excluded.daily_change_pct,
			collected_at = excluded.collected_at
	`, bar.TickerCode, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.TradingValue, bar.DailyChangePct, bar.CollectedAt.Format(time.RFC3339))
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

func (s *Store) previousClose(ctx context.Context, tickerCode, beforeDate string) (float64, error) {
	var close float64
	err := s.conn.QueryRowContext(ctx, `
		SELECT close FROM daily_bars
		WHERE ticker_code = ? AND date < ?
		ORDER BY date DESC LIMIT 1
	`, tickerCode, beforeDate).Scan(&close)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.StoreUnavailable(err)
	}
	return close, nil
}

// GetBars returns bars for a ticker within [from, to], ascending by date.
func (s *Store) GetBars(ctx context.Context, tickerCode, from, to string) ([]domain.DailyBar, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT ticker_code, date, open, high, low, close, volume, trading_value, daily_change_pct, collected_at
		FROM daily_bars
		WHERE ticker_code = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, tickerCode, from, to)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.DailyBar
	for rows.Next() {
		var b domain.DailyBar
		var collectedAt string
		if err := rows.Scan(&b.TickerCode, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TradingValue, &b.DailyChangePct, &collectedAt); err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		b.CollectedAt, _ = time.Parse(time.RFC3339, collectedAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetLatestBar returns the most recent bar for a ticker.
func (s *Store) GetLatestBar(ctx context.Context, tickerCode string) (*domain.DailyBar, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT ticker_code, date, open, high, low, close, volume, trading_value, daily_change_pct, collected_at
		FROM daily_bars
		WHERE ticker_code = ?
		ORDER BY date DESC LIMIT 1
	`, tickerCode)

	var b domain.DailyBar
	var collectedAt string
	err := row.Scan(&b.TickerCode, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TradingValue, &b.DailyChangePct, &collectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no bars for ticker %s", tickerCode)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	b.CollectedAt, _ = time.Parse(time.RFC3339, collectedAt)
	return &b, nil
}
