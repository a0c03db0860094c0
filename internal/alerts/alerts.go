// Package alerts implements CRUD and trigger recording for AlertRule (C8).
// Rule evaluation does not run continuously server-side: a caller (the
// frontend, or a future scheduler job) records a trigger, which this
// package appends to history idempotently within a 60s duplicate window and
// uses to advance LastTriggeredAt. Evaluate implements the rule semantics
// so either a future evaluator or this package's own callers can decide
// whether a rule's condition currently holds.
package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

const duplicateWindow = 60 * time.Second

// Alert type and direction constants, per rule semantics.
const (
	TypeBuy            = "buy"
	TypeSell           = "sell"
	TypePriceChange    = "price_change"
	TypeTradingSignal  = "trading_signal"

	DirectionAbove = "above"
	DirectionBelow = "below"
	DirectionBoth  = "both"
)

// Store is the persistence surface this service reads and writes.
type Store interface {
	CreateAlertRule(ctx context.Context, r domain.AlertRule) error
	UpdateAlertRule(ctx context.Context, r domain.AlertRule) error
	GetAlertRule(ctx context.Context, id string) (*domain.AlertRule, error)
	ListAlertRules(ctx context.Context, tickerCode string, activeOnly bool) ([]domain.AlertRule, error)
	DeleteAlertRule(ctx context.Context, id string) error
	TouchAlertRuleTriggered(ctx context.Context, id string, at time.Time) error
	RecentDuplicateTrigger(ctx context.Context, ruleID, message string, within time.Duration) (bool, error)
	RecordAlertFired(ctx context.Context, h domain.AlertHistory) error
	GetAlertHistory(ctx context.Context, tickerCode string, limit int) ([]domain.AlertHistory, error)
	GetLatestBar(ctx context.Context, tickerCode string) (*domain.DailyBar, error)
	GetLatestTradingFlow(ctx context.Context, tickerCode string) (*domain.TradingFlow, error)
}

// Service validates and persists alert rules and trigger history.
type Service struct {
	store Store
	log   zerolog.Logger
}

// New builds a Service over the given Store.
func New(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

func validTypeDirection(alertType, direction string) bool {
	switch alertType {
	case TypeBuy:
		return direction == DirectionBelow
	case TypeSell:
		return direction == DirectionAbove
	case TypePriceChange:
		return direction == DirectionAbove || direction == DirectionBelow || direction == DirectionBoth
	case TypeTradingSignal:
		return direction == DirectionAbove || direction == DirectionBelow || direction == DirectionBoth
	default:
		return false
	}
}

func validateTargetPrice(alertType string, targetPrice float64) error {
	switch alertType {
	case TypeBuy, TypeSell:
		if targetPrice <= 0 {
			return apperr.Validation("target_price must be positive for %s alerts", alertType)
		}
	case TypePriceChange:
		if targetPrice <= 0 || targetPrice > 100 {
			return apperr.Validation("target_price must be in (0,100] for price_change alerts")
		}
	case TypeTradingSignal:
		if targetPrice != 0 {
			return apperr.Validation("target_price must be 0 for trading_signal alerts")
		}
	default:
		return apperr.Validation("unknown alert_type %q", alertType)
	}
	return nil
}

// Create validates and persists a new alert rule, assigning it a uuid.
func (s *Service) Create(ctx context.Context, r domain.AlertRule) (*domain.AlertRule, error) {
	if !validTypeDirection(r.AlertType, r.Direction) {
		return nil, apperr.Validation("direction %q invalid for alert_type %q", r.Direction, r.AlertType)
	}
	if err := validateTargetPrice(r.AlertType, r.TargetPrice); err != nil {
		return nil, err
	}
	if r.TickerCode == "" {
		return nil, apperr.Validation("ticker_code is required")
	}
	r.ID = uuid.NewString()
	r.CreatedAt = time.Now().UTC()
	r.IsActive = true

	if err := s.store.CreateAlertRule(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Update validates and overwrites the mutable fields of an existing rule.
func (s *Service) Update(ctx context.Context, r domain.AlertRule) (*domain.AlertRule, error) {
	if !validTypeDirection(r.AlertType, r.Direction) {
		return nil, apperr.Validation("direction %q invalid for alert_type %q", r.Direction, r.AlertType)
	}
	if err := validateTargetPrice(r.AlertType, r.TargetPrice); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAlertRule(ctx, r); err != nil {
		return nil, err
	}
	return s.store.GetAlertRule(ctx, r.ID)
}

// Get returns a single rule by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.AlertRule, error) {
	return s.store.GetAlertRule(ctx, id)
}

// List returns rules for a ticker.
func (s *Service) List(ctx context.Context, tickerCode string, activeOnly bool) ([]domain.AlertRule, error) {
	return s.store.ListAlertRules(ctx, tickerCode, activeOnly)
}

// Delete removes a rule and its history.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteAlertRule(ctx, id)
}

// TriggerResult is the outcome of recording a fired alert.
type TriggerResult struct {
	Duplicate bool                 `json:"duplicate"`
	History   domain.AlertHistory  `json:"history"`
}

// Trigger records an alert firing, accepting duplicate deliveries
// idempotently: a repeat of the same (rule_id, message) within 60s is
// still recorded but flagged via Duplicate=true, and LastTriggeredAt is
// always advanced.
func (s *Service) Trigger(ctx context.Context, ruleID, tickerCode, alertType, message string) (*TriggerResult, error) {
	rule, err := s.store.GetAlertRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	dup, err := s.store.RecentDuplicateTrigger(ctx, ruleID, message, duplicateWindow)
	if err != nil {
		return nil, err
	}

	h := domain.AlertHistory{
		RuleID:      rule.ID,
		TickerCode:  tickerCode,
		AlertType:   alertType,
		Message:     message,
		TriggeredAt: time.Now().UTC(),
	}
	if err := s.store.RecordAlertFired(ctx, h); err != nil {
		return nil, err
	}
	if err := s.store.TouchAlertRuleTriggered(ctx, rule.ID, h.TriggeredAt); err != nil {
		return nil, err
	}

	return &TriggerResult{Duplicate: dup, History: h}, nil
}

// History returns the most recent firings for a ticker.
func (s *Service) History(ctx context.Context, tickerCode string, limit int) ([]domain.AlertHistory, error) {
	return s.store.GetAlertHistory(ctx, tickerCode, limit)
}

// Evaluate reports whether a rule's condition currently holds, based on the
// latest bar and trading flow for its ticker. It is not invoked by any
// scheduled job in the base design (triggers are client-recorded); it
// exists for a future server-side evaluator and for client correctness.
func (s *Service) Evaluate(ctx context.Context, rule domain.AlertRule) (bool, error) {
	switch rule.AlertType {
	case TypeBuy:
		bar, err := s.store.GetLatestBar(ctx, rule.TickerCode)
		if err != nil || bar == nil {
			return false, err
		}
		return bar.Close <= rule.TargetPrice, nil

	case TypeSell:
		bar, err := s.store.GetLatestBar(ctx, rule.TickerCode)
		if err != nil || bar == nil {
			return false, err
		}
		return bar.Close >= rule.TargetPrice, nil

	case TypePriceChange:
		bar, err := s.store.GetLatestBar(ctx, rule.TickerCode)
		if err != nil || bar == nil {
			return false, err
		}
		switch rule.Direction {
		case DirectionAbove:
			return bar.DailyChangePct >= rule.TargetPrice, nil
		case DirectionBelow:
			return bar.DailyChangePct <= -rule.TargetPrice, nil
		default: // both
			return bar.DailyChangePct >= rule.TargetPrice || bar.DailyChangePct <= -rule.TargetPrice, nil
		}

	case TypeTradingSignal:
		flow, err := s.store.GetLatestTradingFlow(ctx, rule.TickerCode)
		if err != nil || flow == nil {
			return false, err
		}
		switch rule.Direction {
		case DirectionAbove:
			return flow.ForeignNet > 0 && flow.InstitutionNet > 0, nil
		case DirectionBelow:
			return flow.ForeignNet < 0 && flow.InstitutionNet < 0, nil
		default: // both
			return (flow.ForeignNet > 0 && flow.InstitutionNet > 0) || (flow.ForeignNet < 0 && flow.InstitutionNet < 0), nil
		}

	default:
		return false, apperr.Validation("unknown alert_type %q", rule.AlertType)
	}
}
