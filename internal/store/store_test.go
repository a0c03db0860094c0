package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:", Profile: ProfileStandard, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertTicker_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTicker(ctx, domain.Ticker{
		Code: "005930", Name: "Samsung Electronics", Market: "KOSPI", Type: "stock", IsActive: true,
	}))

	got, err := s.GetTicker(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, "Samsung Electronics", got.Name)
	assert.True(t, got.IsActive)
}

func TestGetTicker_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetTicker(context.Background(), "999999")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
}

func TestUpsertDailyBar_ComputesChangePctAgainstPreviousClose(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDailyBar(ctx, domain.DailyBar{
		TickerCode: "005930", Date: "2026-07-28", Open: 70000, High: 71000, Low: 69500, Close: 70500, Volume: 1000000, TradingValue: 70500000000,
	}))
	require.NoError(t, s.UpsertDailyBar(ctx, domain.DailyBar{
		TickerCode: "005930", Date: "2026-07-29", Open: 70500, High: 72000, Low: 70000, Close: 71910, Volume: 1100000, TradingValue: 79000000000,
	}))

	latest, err := s.GetLatestBar(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, "2026-07-29", latest.Date)
	assert.InDelta(t, 2.0, latest.DailyChangePct, 0.01)
}

func TestUpsertDailyBar_FirstBarHasZeroChangePct(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDailyBar(ctx, domain.DailyBar{
		TickerCode: "005930", Date: "2026-07-28", Close: 70000,
	}))

	bars, err := s.GetBars(ctx, "005930", "2026-01-01", "2026-12-31")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 0.0, bars[0].DailyChangePct)
}

func TestUpsertNews_DeduplicatesOnURL(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	item := domain.NewsItem{TickerCode: "005930", Title: "headline", URL: "https://example.com/a", PublishedAt: time.Now()}
	inserted, err := s.UpsertNews(ctx, item)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.UpsertNews(ctx, item)
	require.NoError(t, err)
	assert.False(t, inserted)

	news, err := s.GetNews(ctx, "005930", 10)
	require.NoError(t, err)
	assert.Len(t, news, 1)
}

func TestCollectionState_SuccessResetsErrorCounter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkCollectionFailure(ctx, "005930", "bars", assertError("timeout")))
	require.NoError(t, s.MarkCollectionFailure(ctx, "005930", "bars", assertError("timeout")))

	cs, err := s.GetCollectionState(ctx, "005930", "bars")
	require.NoError(t, err)
	assert.Equal(t, 2, cs.ConsecutiveErrors)

	require.NoError(t, s.MarkCollectionSuccess(ctx, "005930", "bars", "2026-07-29"))
	cs, err = s.GetCollectionState(ctx, "005930", "bars")
	require.NoError(t, err)
	assert.Equal(t, 0, cs.ConsecutiveErrors)
	assert.Equal(t, "2026-07-29", cs.LastPriceDate)
}

func TestResetMarketData_ClearsBarsButKeepsTickers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTicker(ctx, domain.Ticker{Code: "005930", Name: "Samsung", Market: "KOSPI", Type: "stock", IsActive: true}))
	require.NoError(t, s.UpsertDailyBar(ctx, domain.DailyBar{TickerCode: "005930", Date: "2026-07-29", Close: 71910}))

	require.NoError(t, s.ResetMarketData(ctx))

	_, err := s.GetLatestBar(ctx, "005930")
	require.Error(t, err)

	ticker, err := s.GetTicker(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, "005930", ticker.Code)
}

func TestQueryCatalog_FiltersByType(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCatalogEntry(ctx, domain.CatalogEntry{TickerCode: "005930", Name: "Samsung", Market: "KOSPI", Type: "stock", LastClose: 71910}))
	require.NoError(t, s.UpsertCatalogEntry(ctx, domain.CatalogEntry{TickerCode: "069500", Name: "KODEX 200", Market: "KOSPI", Type: "etf", LastClose: 35000}))

	entries, total, err := s.QueryCatalog(ctx, CatalogFilter{Type: "stock"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "005930", entries[0].TickerCode)
	assert.Equal(t, 71910.0, entries[0].LastClose)
}

func TestAlertRule_CreateAndDuplicateSuppression(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rule := domain.AlertRule{ID: "rule-1", TickerCode: "005930", AlertType: domain.AlertTypeSell, Direction: domain.DirectionAbove, TargetPrice: 72000, IsActive: true}
	require.NoError(t, s.CreateAlertRule(ctx, rule))

	dup, err := s.RecentDuplicateTrigger(ctx, "rule-1", "price above 72000", 60*time.Second)
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, s.RecordAlertFired(ctx, domain.AlertHistory{RuleID: "rule-1", TickerCode: "005930", AlertType: domain.AlertTypeSell, Message: "price above 72000"}))

	dup, err = s.RecentDuplicateTrigger(ctx, "rule-1", "price above 72000", 60*time.Second)
	require.NoError(t, err)
	assert.True(t, dup)
}

type assertError string

func (e assertError) Error() string { return string(e) }
