package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/kr-market-feed/internal/domain"
)

type fakeStore struct {
	rules    map[string]domain.AlertRule
	history  []domain.AlertHistory
	dupWithin map[string]bool
	bars     map[string]*domain.DailyBar
	flows    map[string]*domain.TradingFlow
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rules:     make(map[string]domain.AlertRule),
		dupWithin: make(map[string]bool),
		bars:      make(map[string]*domain.DailyBar),
		flows:     make(map[string]*domain.TradingFlow),
	}
}

func (f *fakeStore) CreateAlertRule(_ context.Context, r domain.AlertRule) error {
	f.rules[r.ID] = r
	return nil
}

func (f *fakeStore) UpdateAlertRule(_ context.Context, r domain.AlertRule) error {
	f.rules[r.ID] = r
	return nil
}

func (f *fakeStore) GetAlertRule(_ context.Context, id string) (*domain.AlertRule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, assertNotFound{}
	}
	return &r, nil
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

func (f *fakeStore) ListAlertRules(_ context.Context, tickerCode string, activeOnly bool) ([]domain.AlertRule, error) {
	return nil, nil
}

func (f *fakeStore) DeleteAlertRule(_ context.Context, id string) error {
	delete(f.rules, id)
	return nil
}

func (f *fakeStore) TouchAlertRuleTriggered(_ context.Context, id string, at time.Time) error {
	r := f.rules[id]
	r.LastTriggeredAt = &at
	f.rules[id] = r
	return nil
}

func (f *fakeStore) RecentDuplicateTrigger(_ context.Context, ruleID, message string, within time.Duration) (bool, error) {
	return f.dupWithin[ruleID+message], nil
}

func (f *fakeStore) RecordAlertFired(_ context.Context, h domain.AlertHistory) error {
	f.history = append(f.history, h)
	f.dupWithin[h.RuleID+h.Message] = true
	return nil
}

func (f *fakeStore) GetAlertHistory(_ context.Context, tickerCode string, limit int) ([]domain.AlertHistory, error) {
	return f.history, nil
}

func (f *fakeStore) GetLatestBar(_ context.Context, tickerCode string) (*domain.DailyBar, error) {
	return f.bars[tickerCode], nil
}

func (f *fakeStore) GetLatestTradingFlow(_ context.Context, tickerCode string) (*domain.TradingFlow, error) {
	return f.flows[tickerCode], nil
}

func TestCreate_RejectsInvalidTargetPriceForBuy(t *testing.T) {
	store := newFakeStore()
	svc := New(store, zerolog.Nop())

	_, err := svc.Create(context.Background(), domain.AlertRule{
		TickerCode: "005930", AlertType: TypeBuy, Direction: DirectionBelow, TargetPrice: 0,
	})
	require.Error(t, err)
}

func TestCreate_RejectsNonZeroTargetPriceForTradingSignal(t *testing.T) {
	store := newFakeStore()
	svc := New(store, zerolog.Nop())

	_, err := svc.Create(context.Background(), domain.AlertRule{
		TickerCode: "005930", AlertType: TypeTradingSignal, Direction: DirectionAbove, TargetPrice: 5,
	})
	require.Error(t, err)
}

func TestCreate_AssignsIDAndPersists(t *testing.T) {
	store := newFakeStore()
	svc := New(store, zerolog.Nop())

	r, err := svc.Create(context.Background(), domain.AlertRule{
		TickerCode: "005930", AlertType: TypeBuy, Direction: DirectionBelow, TargetPrice: 70000,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.True(t, r.IsActive)
}

func TestTrigger_FlagsDuplicateWithinWindow(t *testing.T) {
	store := newFakeStore()
	store.rules["rule-1"] = domain.AlertRule{ID: "rule-1", TickerCode: "005930", AlertType: TypeBuy, Direction: DirectionBelow, TargetPrice: 70000}
	svc := New(store, zerolog.Nop())

	first, err := svc.Trigger(context.Background(), "rule-1", "005930", TypeBuy, "price hit 69000")
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := svc.Trigger(context.Background(), "rule-1", "005930", TypeBuy, "price hit 69000")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	require.Len(t, store.history, 2)
}

func TestEvaluate_BuyBelowTriggersWhenCloseAtOrBelowTarget(t *testing.T) {
	store := newFakeStore()
	store.bars["005930"] = &domain.DailyBar{Close: 69000}
	svc := New(store, zerolog.Nop())

	ok, err := svc.Evaluate(context.Background(), domain.AlertRule{TickerCode: "005930", AlertType: TypeBuy, TargetPrice: 70000})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_TradingSignalBothDirectionMatchesEitherSign(t *testing.T) {
	store := newFakeStore()
	store.flows["005930"] = &domain.TradingFlow{ForeignNet: -100, InstitutionNet: -50}
	svc := New(store, zerolog.Nop())

	ok, err := svc.Evaluate(context.Background(), domain.AlertRule{TickerCode: "005930", AlertType: TypeTradingSignal, Direction: DirectionBoth})
	require.NoError(t, err)
	assert.True(t, ok)
}
