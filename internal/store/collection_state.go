package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// GetCollectionState returns the ingestion progress marker for a ticker
// and data kind, or nil if collection has never run for it.
func (s *Store) GetCollectionState(ctx context.Context, tickerCode, dataKind string) (*domain.CollectionState, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT ticker_code, data_kind, last_price_date, last_success_at, last_error, consecutive_errors
		FROM collection_state WHERE ticker_code = ? AND data_kind = ?
	`, tickerCode, dataKind)

	var cs domain.CollectionState
	var lastPriceDate, lastSuccessAt, lastError sql.NullString
	err := row.Scan(&cs.TickerCode, &cs.DataKind, &lastPriceDate, &lastSuccessAt, &lastError, &cs.ConsecutiveErrors)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	cs.LastPriceDate = lastPriceDate.String
	cs.LastError = lastError.String
	if lastSuccessAt.Valid {
		cs.LastSuccessAt, _ = time.Parse(time.RFC3339, lastSuccessAt.String)
	}
	return &cs, nil
}

// MarkCollectionSuccess records a successful collection run, resetting the
// error counter and advancing last_price_date when priceDate is non-empty.
func (s *Store) MarkCollectionSuccess(ctx context.Context, tickerCode, dataKind, priceDate string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO collection_state (ticker_code, data_kind, last_price_date, last_success_at, last_error, consecutive_errors)
		VALUES (?, ?, ?, ?, '', 0)
		ON CONFLICT(ticker_code, data_kind) DO UPDATE SET
			last_price_date = CASE WHEN excluded.last_price_date != '' THEN excluded.last_price_date ELSE collection_state.last_price_date END,
			last_success_at = excluded.last_success_at,
			last_error = '',
			consecutive_errors = 0
	`, tickerCode, dataKind, priceDate, now)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// MarkCollectionFailure records a failed collection run and increments the
// consecutive-error counter.
func (s *Store) MarkCollectionFailure(ctx context.Context, tickerCode, dataKind string, collectErr error) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO collection_state (ticker_code, data_kind, last_error, consecutive_errors)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(ticker_code, data_kind) DO UPDATE SET
			last_error = excluded.last_error,
			consecutive_errors = collection_state.consecutive_errors + 1
	`, tickerCode, dataKind, collectErr.Error())
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}
