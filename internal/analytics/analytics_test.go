package analytics

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
	bars  map[string][]domain.DailyBar
	flows map[string]*domain.TradingFlow
	news  map[string][]domain.NewsItem
}

func (f *fakeStore) GetBars(_ context.Context, tickerCode, from, to string) ([]domain.DailyBar, error) {
	var out []domain.DailyBar
	for _, b := range f.bars[tickerCode] {
		if b.Date >= from && b.Date <= to {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTradingFlows(_ context.Context, tickerCode, from, to string) ([]domain.TradingFlow, error) {
	return nil, nil
}

func (f *fakeStore) GetLatestTradingFlow(_ context.Context, tickerCode string) (*domain.TradingFlow, error) {
	return f.flows[tickerCode], nil
}

func (f *fakeStore) GetNews(_ context.Context, tickerCode string, limit int) ([]domain.NewsItem, error) {
	return f.news[tickerCode], nil
}

func barsClimbingLinearly(ticker string, n int, start, end float64) []domain.DailyBar {
	bars := make([]domain.DailyBar, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	step := (end - start) / float64(n-1)
	for i := 0; i < n; i++ {
		bars[i] = domain.DailyBar{
			TickerCode: ticker,
			Date:       base.AddDate(0, 0, i).Format("2006-01-02"),
			Close:      start + step*float64(i),
		}
	}
	return bars
}

func TestMetrics_AnnualizedReturnSuppressedBelow90Days(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{
		"487240": barsClimbingLinearly("487240", 60, 10000, 10709),
	}}
	svc := New(store, 0, zerolog.Nop())

	m, err := svc.Metrics(context.Background(), "487240", "2025-01-01", "2025-12-31")
	require.NoError(t, err)
	assert.InDelta(t, 7.09, m.PeriodReturn, 0.01)
	assert.Nil(t, m.AnnualizedReturn)
}

func TestMetrics_AnnualizedReturnComputedAbove90Days(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{
		"487240": barsClimbingLinearly("487240", 100, 10000, 11000),
	}}
	svc := New(store, 0, zerolog.Nop())

	m, err := svc.Metrics(context.Background(), "487240", "2025-01-01", "2025-12-31")
	require.NoError(t, err)
	require.NotNil(t, m.AnnualizedReturn)
}

func TestCompare_NormalizationAndPerfectCorrelation(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{
		"t1": {
			{TickerCode: "t1", Date: "2025-01-01", Close: 100},
			{TickerCode: "t1", Date: "2025-01-02", Close: 110},
			{TickerCode: "t1", Date: "2025-01-03", Close: 121},
		},
		"t2": {
			{TickerCode: "t2", Date: "2025-01-01", Close: 200},
			{TickerCode: "t2", Date: "2025-01-02", Close: 210},
			{TickerCode: "t2", Date: "2025-01-03", Close: 231},
		},
	}}
	svc := New(store, 0, zerolog.Nop())

	cmp, err := svc.Compare(context.Background(), []string{"t1", "t2"}, "2025-01-01", "2025-01-03")
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{100, 110, 121}, cmp.NormalizedPrices["t1"], 0.01)
	assert.InDeltaSlice(t, []float64{100, 105, 115.5}, cmp.NormalizedPrices["t2"], 0.01)
	assert.InDelta(t, 1.0, cmp.Correlation["t1"]["t2"], 0.0001)
	assert.Equal(t, 1.0, cmp.Correlation["t1"]["t1"])
}

func TestCompare_RejectsOutOfRangeTickerCount(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{}}
	svc := New(store, 0, zerolog.Nop())

	_, err := svc.Compare(context.Background(), []string{"only-one"}, "2025-01-01", "2025-01-03")
	require.Error(t, err)
}

func TestDCA_CarryForwardAcrossMonths(t *testing.T) {
	bars := []domain.DailyBar{
		{TickerCode: "t1", Date: "2025-01-01", Close: 10000},
		{TickerCode: "t1", Date: "2025-02-01", Close: 11000},
		{TickerCode: "t1", Date: "2025-03-01", Close: 9000},
	}
	store := &fakeStore{bars: map[string][]domain.DailyBar{"t1": bars}}
	svc := New(store, 0, zerolog.Nop())

	result, err := svc.DCA(context.Background(), "t1", 100000, "2025-01-01", "2025-03-01", 1)
	require.NoError(t, err)
	require.Len(t, result.Months, 3)

	assert.Equal(t, int64(10), result.Months[0].SharesBought)
	assert.InDelta(t, 0, result.Months[0].Carry, 0.01)

	assert.Equal(t, int64(9), result.Months[1].SharesBought)
	assert.InDelta(t, 1000, result.Months[1].Carry, 0.01)

	assert.Equal(t, int64(11), result.Months[2].SharesBought)
	assert.InDelta(t, 2000, result.Months[2].Carry, 0.01)

	assert.Equal(t, int64(30), result.TotalShares)
	assert.InDelta(t, 300000, result.TotalInvested, 0.01)
}

func TestDCA_RejectsBuyDayOutOfRange(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{}}
	svc := New(store, 0, zerolog.Nop())

	_, err := svc.DCA(context.Background(), "t1", 100000, "2025-01-01", "2025-03-01", 29)
	require.Error(t, err)

	_, err = svc.DCA(context.Background(), "t1", 100000, "2025-01-01", "2025-03-01", 0)
	require.Error(t, err)
}

func TestPortfolio_ValuationAndRisk(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{
		"t1": {
			{TickerCode: "t1", Date: "2025-01-01", Close: 100},
			{TickerCode: "t1", Date: "2025-01-02", Close: 110},
			{TickerCode: "t1", Date: "2025-01-03", Close: 121},
		},
		"t2": {
			{TickerCode: "t2", Date: "2025-01-01", Close: 200},
			{TickerCode: "t2", Date: "2025-01-02", Close: 190},
			{TickerCode: "t2", Date: "2025-01-03", Close: 195},
		},
	}}
	svc := New(store, 0, zerolog.Nop())

	result, err := svc.Portfolio(context.Background(), []PortfolioHolding{
		{TickerCode: "t1", Weight: 0.5},
		{TickerCode: "t2", Weight: 0.5},
	}, 1_000_000, "2025-01-01", "2025-01-03")
	require.NoError(t, err)
	require.Len(t, result.Dates, 3)

	// t1: 5000 shares at 100, t2: 2500 shares at 200, no remainder.
	assert.InDelta(t, 1_000_000, result.Valuations[0], 0.01)
	assert.InDelta(t, 5000*121+2500*195.0, result.FinalValue, 0.01)

	// Worst daily return per leg: t1 +10%, t2 -5%; weighted 95% CVaR.
	assert.InDelta(t, 0.5*0.10+0.5*(-0.05), result.CVaR95, 0.001)
	// Two trading-day intervals cannot be annualized.
	assert.Nil(t, result.AnnualizedReturn)
}

func TestPortfolio_RejectsEndBeforeStart(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{}}
	svc := New(store, 0, zerolog.Nop())

	_, err := svc.Portfolio(context.Background(), []PortfolioHolding{
		{TickerCode: "t1", Weight: 1.0},
	}, 1_000_000, "2025-01-03", "2025-01-01")
	require.Error(t, err)
}

func TestPortfolio_RejectsTooManyHoldings(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{}}
	svc := New(store, 0, zerolog.Nop())

	holdings := make([]PortfolioHolding, 21)
	for i := range holdings {
		holdings[i] = PortfolioHolding{
			TickerCode: string(rune('a' + i)),
			Weight:     1.0 / 21,
		}
	}
	_, err := svc.Portfolio(context.Background(), holdings, 1_000_000, "2025-01-01", "2025-01-03")
	require.Error(t, err)
}

func TestPortfolio_RejectsWeightsNotSummingToOne(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{}}
	svc := New(store, 0, zerolog.Nop())

	_, err := svc.Portfolio(context.Background(), []PortfolioHolding{
		{TickerCode: "t1", Weight: 0.5},
		{TickerCode: "t2", Weight: 0.3},
	}, 1_000_000, "2025-01-01", "2025-01-03")
	require.Error(t, err)
}

func TestPortfolio_RejectsDuplicateTickers(t *testing.T) {
	store := &fakeStore{bars: map[string][]domain.DailyBar{}}
	svc := New(store, 0, zerolog.Nop())

	_, err := svc.Portfolio(context.Background(), []PortfolioHolding{
		{TickerCode: "t1", Weight: 0.5},
		{TickerCode: "t1", Weight: 0.5},
	}, 1_000_000, "2025-01-01", "2025-01-03")
	require.Error(t, err)
}
