package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// UpsertTradingFlow writes a net investor-flow record for a trading day.
func (s *Store) UpsertTradingFlow(ctx context.Context, f domain.TradingFlow) error {
	if f.CollectedAt.IsZero() {
		f.CollectedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO trading_flows (ticker_code, date, individual_net, foreign_net, institution_net, collected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker_code, date) DO UPDATE SET
			individual_net = excluded.individual_net,
			foreign_net = excluded.foreign_net,
			institution_net = excluded.institution_net,
			collected_at = excluded.collected_at
	`, f.TickerCode, f.Date, f.IndividualNet, f.ForeignNet, f.InstitutionNet, f.CollectedAt.Format(time.RFC3339))
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// GetTradingFlows returns flows for a ticker within [from, to].
func (s *Store) GetTradingFlows(ctx context.Context, tickerCode, from, to string) ([]domain.TradingFlow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT ticker_code, date, individual_net, foreign_net, institution_net, collected_at
		FROM trading_flows
		WHERE ticker_code = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, tickerCode, from, to)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.TradingFlow
	for rows.Next() {
		var f domain.TradingFlow
		var collectedAt string
		if err := rows.Scan(&f.TickerCode, &f.Date, &f.IndividualNet, &f.ForeignNet, &f.InstitutionNet, &collectedAt); err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		f.CollectedAt, _ = time.Parse(time.RFC3339, collectedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetLatestTradingFlow returns the most recent flow record for a ticker.
func (s *Store) GetLatestTradingFlow(ctx context.Context, tickerCode string) (*domain.TradingFlow, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT ticker_code, date, individual_net, foreign_net, institution_net, collected_at
		FROM trading_flows
		WHERE ticker_code = ?
		ORDER BY date DESC LIMIT 1
	`, tickerCode)

	var f domain.TradingFlow
	var collectedAt string
	err := row.Scan(&f.TickerCode, &f.Date, &f.IndividualNet, &f.ForeignNet, &f.InstitutionNet, &collectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no trading flows for ticker %s", tickerCode)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	f.CollectedAt, _ = time.Parse(time.RFC3339, collectedAt)
	return &f, nil
}
