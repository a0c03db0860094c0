package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// CreateAlertRule inserts a new alert rule.
func (s *Store) CreateAlertRule(ctx context.Context, r domain.AlertRule) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO alert_rules (id, ticker_code, alert_type, direction, target_price, memo, is_active, created_at, last_triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, r.ID, r.TickerCode, r.AlertType, r.Direction, r.TargetPrice, r.Memo, boolToInt(r.IsActive), r.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// UpdateAlertRule overwrites the mutable fields of an existing rule.
func (s *Store) UpdateAlertRule(ctx context.Context, r domain.AlertRule) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE alert_rules SET
			alert_type = ?, direction = ?, target_price = ?, memo = ?, is_active = ?
		WHERE id = ?
	`, r.AlertType, r.Direction, r.TargetPrice, r.Memo, boolToInt(r.IsActive), r.ID)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("alert rule %s not found", r.ID)
	}
	return nil
}

func scanAlertRule(row interface{ Scan(...interface{}) error }) (*domain.AlertRule, error) {
	var r domain.AlertRule
	var memo, lastTriggeredAt sql.NullString
	var isActive int
	var createdAt string
	if err := row.Scan(&r.ID, &r.TickerCode, &r.AlertType, &r.Direction, &r.TargetPrice, &memo, &isActive, &createdAt, &lastTriggeredAt); err != nil {
		return nil, err
	}
	r.Memo = memo.String
	r.IsActive = isActive != 0
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastTriggeredAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastTriggeredAt.String)
		r.LastTriggeredAt = &t
	}
	return &r, nil
}

// GetAlertRule returns a single rule by ID.
func (s *Store) GetAlertRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, ticker_code, alert_type, direction, target_price, memo, is_active, created_at, last_triggered_at
		FROM alert_rules WHERE id = ?
	`, id)

	r, err := scanAlertRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("alert rule %s not found", id)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return r, nil
}

// ListAlertRules returns rules for a ticker, optionally restricted to
// active-only.
func (s *Store) ListAlertRules(ctx context.Context, tickerCode string, activeOnly bool) ([]domain.AlertRule, error) {
	query := `SELECT id, ticker_code, alert_type, direction, target_price, memo, is_active, created_at, last_triggered_at FROM alert_rules WHERE ticker_code = ?`
	args := []interface{}{tickerCode}
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.AlertRule
	for rows.Next() {
		r, err := scanAlertRule(rows)
		if err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// DeleteAlertRule removes a rule by ID, cascading to its history rows.
func (s *Store) DeleteAlertRule(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("alert rule %s not found", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_history WHERE rule_id = ?`, id); err != nil {
		return apperr.StoreUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// TouchAlertRuleTriggered advances last_triggered_at to now.
func (s *Store) TouchAlertRuleTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE alert_rules SET last_triggered_at = ? WHERE id = ?`, at.Format(time.RFC3339), id)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// RecentDuplicateTrigger reports whether an identical (rule_id, message)
// trigger was already recorded within the given window, per the
// at-least-once client-delivery contract.
func (s *Store) RecentDuplicateTrigger(ctx context.Context, ruleID, message string, within time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-within).Format(time.RFC3339)
	var count int
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alert_history WHERE rule_id = ? AND message = ? AND triggered_at >= ?
	`, ruleID, message, cutoff).Scan(&count)
	if err != nil {
		return false, apperr.StoreUnavailable(err)
	}
	return count > 0, nil
}

// RecordAlertFired appends a firing to the alert history.
func (s *Store) RecordAlertFired(ctx context.Context, h domain.AlertHistory) error {
	if h.TriggeredAt.IsZero() {
		h.TriggeredAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO alert_history (rule_id, ticker_code, alert_type, message, triggered_at)
		VALUES (?, ?, ?, ?, ?)
	`, h.RuleID, h.TickerCode, h.AlertType, h.Message, h.TriggeredAt.Format(time.RFC3339))
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// GetAlertHistory returns the most recent firings for a ticker, newest
// first.
func (s *Store) GetAlertHistory(ctx context.Context, tickerCode string, limit int) ([]domain.AlertHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, COALESCE(rule_id, ''), ticker_code, alert_type, message, triggered_at
		FROM alert_history WHERE ticker_code = ?
		ORDER BY triggered_at DESC LIMIT ?
	`, tickerCode, limit)
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	defer rows.Close()

	var out []domain.AlertHistory
	for rows.Next() {
		var h domain.AlertHistory
		var triggeredAt string
		if err := rows.Scan(&h.ID, &h.RuleID, &h.TickerCode, &h.AlertType, &h.Message, &triggeredAt); err != nil {
			return nil, apperr.StoreUnavailable(err)
		}
		h.TriggeredAt, _ = time.Parse(time.RFC3339, triggeredAt)
		out = append(out, h)
	}
	return out, rows.Err()
}
