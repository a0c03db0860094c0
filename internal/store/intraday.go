package store

import (
	"context"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// UpsertIntradayTick records a quote snapshot. Ticks are kept for the
// rolling retention window; pruning is handled by PruneIntraday.
func (s *Store) UpsertIntradayTick(ctx context.Context, tick domain.IntradayTick) error {
	if tick.Timestamp.IsZero() {
		tick.Timestamp = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO intraday_ticks (ticker_code, ts, price, volume, change_pct)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ticker_code, ts) DO UPDATE SET
			price = excluded.price,
			volume = excluded.volume,
			change_pct = excluded.change_pct
	`, tick.TickerCode, tick.Timestamp.Format(time.RFC3339), tick.Price, tick.Volume, tick.ChangePct)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// GetIntradayTicks returns ticks for a ticker newer than since, ascending.
func (s *Store) GetIntradayTicks(ctx context.Context, tickerCode string, since time.Time) ([]domain.IntradayTick, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT ticker_code, ts, price, volume, change_pct
		FROM intraday_ticks
		WHERE ticker_code = ? AND ts >= ?
		ORDER BY ts ASC
	`, tickerCode, since.Format(time.RFC3339))
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.IntradayTick
	for rows.Next() {
		var t domain.IntradayTick
		var ts string
		if err := rows.Scan(&t.TickerCode, &ts, &t.Price, &t.Volume, &t.ChangePct); err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		t.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// PruneIntraday deletes ticks older than the cutoff, returning the number
// of rows removed.
func (s *Store) PruneIntraday(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM intraday_ticks WHERE ts < ?`, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, apperr.StoreUnavailable(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
