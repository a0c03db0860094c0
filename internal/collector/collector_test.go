package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/cache"
	"github.com/aristath/kr-market-feed/internal/domain"
	"github.com/aristath/kr-market-feed/internal/upstream"
)

type stateKey struct {
	code string
	kind string
}

// memStore is an in-memory Store for driving the collector without SQLite.
type memStore struct {
	mu       sync.Mutex
	tickers  []domain.Ticker
	states   map[stateKey]*domain.CollectionState
	bars     map[string][]domain.DailyBar
	flows    map[string][]domain.TradingFlow
	ticks    []domain.IntradayTick
	news     map[string][]domain.NewsItem
	failures map[stateKey]int
}

func newMemStore(tickers ...domain.Ticker) *memStore {
	return &memStore{
		tickers:  tickers,
		states:   make(map[stateKey]*domain.CollectionState),
		bars:     make(map[string][]domain.DailyBar),
		flows:    make(map[string][]domain.TradingFlow),
		news:     make(map[string][]domain.NewsItem),
		failures: make(map[stateKey]int),
	}
}

func (m *memStore) ListTickers(_ context.Context, _ string) ([]domain.Ticker, error) {
	return m.tickers, nil
}

func (m *memStore) GetTicker(_ context.Context, code string) (*domain.Ticker, error) {
	for _, t := range m.tickers {
		if t.Code == code {
			return &t, nil
		}
	}
	return nil, apperr.NotFound("ticker %s not found", code)
}

func (m *memStore) GetCollectionState(_ context.Context, code, kind string) (*domain.CollectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[stateKey{code, kind}], nil
}

func (m *memStore) MarkCollectionSuccess(_ context.Context, code, kind, priceDate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[stateKey{code, kind}] = &domain.CollectionState{
		TickerCode:    code,
		DataKind:      kind,
		LastPriceDate: priceDate,
		LastSuccessAt: time.Now(),
	}
	return nil
}

func (m *memStore) MarkCollectionFailure(_ context.Context, code, kind string, _ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[stateKey{code, kind}]++
	return nil
}

func (m *memStore) UpsertDailyBar(_ context.Context, bar domain.DailyBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.bars[bar.TickerCode] {
		if b.Date == bar.Date {
			m.bars[bar.TickerCode][i] = bar
			return nil
		}
	}
	m.bars[bar.TickerCode] = append(m.bars[bar.TickerCode], bar)
	return nil
}

func (m *memStore) UpsertTradingFlow(_ context.Context, flow domain.TradingFlow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.flows[flow.TickerCode] {
		if f.Date == flow.Date {
			m.flows[flow.TickerCode][i] = flow
			return nil
		}
	}
	m.flows[flow.TickerCode] = append(m.flows[flow.TickerCode], flow)
	return nil
}

func (m *memStore) UpsertIntradayTick(_ context.Context, tick domain.IntradayTick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, tick)
	return nil
}

func (m *memStore) UpsertNews(_ context.Context, item domain.NewsItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.news[item.TickerCode] {
		if n.URL == item.URL {
			return false, nil
		}
	}
	m.news[item.TickerCode] = append(m.news[item.TickerCode], item)
	return true, nil
}

func (m *memStore) UpsertStockFundamentals(_ context.Context, _ domain.StockFundamentals) error {
	return nil
}

func (m *memStore) UpsertEtfFundamentals(_ context.Context, _ domain.EtfFundamentals) error {
	return nil
}

func (m *memStore) ReplaceEtfHoldings(_ context.Context, _ string, _ []domain.EtfHolding) error {
	return nil
}

func newTestCollector(store Store, client upstream.Client) *Collector {
	return New(store, client, cache.New(cache.Config{}), Config{MaxConcurrency: 1, DefaultDays: 30}, zerolog.Nop())
}

func seedDailyFixture(fx *upstream.FixtureClient, code string, days int) {
	today := todayKST()
	for _, date := range datesBack(today, days) {
		fx.Daily[code+"|"+date] = &upstream.Snapshot{
			Bar:  &domain.DailyBar{TickerCode: code, Date: date, Close: 10000},
			Flow: &domain.TradingFlow{TickerCode: code, Date: date, ForeignNet: 100},
		}
	}
}

func TestComputeActualDays(t *testing.T) {
	today := todayKST()

	assert.Equal(t, 30, computeActualDays("", today, 30), "no prior state fetches full window")
	assert.Equal(t, 0, computeActualDays(today, today, 30), "current state skips")

	threeAgo := time.Now().In(kstLocation()).AddDate(0, 0, -3).Format("2006-01-02")
	assert.Equal(t, 3, computeActualDays(threeAgo, today, 30), "gap smaller than window fetches only the gap")

	yearAgo := time.Now().In(kstLocation()).AddDate(0, 0, -400).Format("2006-01-02")
	assert.Equal(t, 30, computeActualDays(yearAgo, today, 30), "gap larger than window is capped")
}

func TestCollectAll_PopulatesBarsAndState(t *testing.T) {
	store := newMemStore(domain.Ticker{Code: "487240", Name: "Test ETF", Type: "etf", IsActive: true})
	fx := upstream.NewFixtureClient()
	seedDailyFixture(fx, "487240", 30)

	c := newTestCollector(store, fx)

	result, err := c.CollectAll(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, store.bars["487240"], 30)

	state, _ := store.GetCollectionState(context.Background(), "487240", "bars")
	require.NotNil(t, state)
	assert.Equal(t, todayKST(), state.LastPriceDate)
}

func TestCollectAll_SecondRunSkipsCurrentTicker(t *testing.T) {
	store := newMemStore(domain.Ticker{Code: "487240", Name: "Test ETF", Type: "etf", IsActive: true})
	fx := upstream.NewFixtureClient()
	seedDailyFixture(fx, "487240", 30)

	c := newTestCollector(store, fx)

	_, err := c.CollectAll(context.Background(), 30)
	require.NoError(t, err)
	firstCalls := len(fx.Calls)

	result, err := c.CollectAll(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Detail[0].BarsAdded, "up-to-date ticker adds no bars")

	var dailyCalls int
	for _, call := range fx.Calls[firstCalls:] {
		if len(call) >= 10 && call[:10] == "FetchDaily" {
			dailyCalls++
		}
	}
	assert.Zero(t, dailyCalls, "no daily fetches when state is current")
}

func TestCollectAll_HealsThreeDayGap(t *testing.T) {
	store := newMemStore(domain.Ticker{Code: "487240", Name: "Test ETF", Type: "etf", IsActive: true})
	fx := upstream.NewFixtureClient()
	seedDailyFixture(fx, "487240", 30)

	threeAgo := time.Now().In(kstLocation()).AddDate(0, 0, -3).Format("2006-01-02")
	require.NoError(t, store.MarkCollectionSuccess(context.Background(), "487240", "bars", threeAgo))
	require.NoError(t, store.MarkCollectionSuccess(context.Background(), "487240", "flows", threeAgo))

	c := newTestCollector(store, fx)

	res, err := c.CollectAll(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Detail[0].BarsAdded)

	state, _ := store.GetCollectionState(context.Background(), "487240", "bars")
	assert.Equal(t, todayKST(), state.LastPriceDate)
}

func TestCollectAll_NonReentrant(t *testing.T) {
	store := newMemStore(domain.Ticker{Code: "487240", IsActive: true})
	c := newTestCollector(store, upstream.NewFixtureClient())

	atomic.StoreInt32(&c.collecting, 1)
	defer atomic.StoreInt32(&c.collecting, 0)

	_, err := c.CollectAll(context.Background(), 30)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindAlreadyRunning, appErr.Kind)
	assert.Empty(t, store.bars, "failed fast with no side effects")
}

func TestCollectFundamentals_SeparateGate(t *testing.T) {
	store := newMemStore(domain.Ticker{Code: "487240", Type: "etf", IsActive: true})
	c := newTestCollector(store, upstream.NewFixtureClient())

	atomic.StoreInt32(&c.collecting, 1)
	defer atomic.StoreInt32(&c.collecting, 0)

	// A running CollectAll does not block the fundamentals pass.
	_, err := c.CollectFundamentals(context.Background())
	require.NoError(t, err)

	atomic.StoreInt32(&c.collectingFund, 1)
	defer atomic.StoreInt32(&c.collectingFund, 0)
	_, err = c.CollectFundamentals(context.Background())
	require.Error(t, err)
}

func TestCollectTickerNews_EmptyResultDoesNotAdvanceMarker(t *testing.T) {
	store := newMemStore(domain.Ticker{Code: "487240", IsActive: true})
	fx := upstream.NewFixtureClient()

	c := newTestCollector(store, fx)

	added, err := c.CollectTickerNews(context.Background(), "487240")
	require.NoError(t, err)
	assert.Zero(t, added)

	state, _ := store.GetCollectionState(context.Background(), "487240", "news")
	assert.Nil(t, state, "empty news result leaves collection state untouched")
}

func TestCollectTickerNews_DeduplicatesByURL(t *testing.T) {
	store := newMemStore(domain.Ticker{Code: "487240", IsActive: true})
	fx := upstream.NewFixtureClient()
	fx.News["487240"] = []domain.NewsItem{
		{TickerCode: "487240", Title: "a", URL: "https://example.com/a", PublishedAt: time.Now()},
		{TickerCode: "487240", Title: "a-dup", URL: "https://example.com/a", PublishedAt: time.Now()},
		{TickerCode: "487240", Title: "b", URL: "https://example.com/b", PublishedAt: time.Now()},
	}

	c := newTestCollector(store, fx)

	added, err := c.CollectTickerNews(context.Background(), "487240")
	require.NoError(t, err)
	assert.Equal(t, 2, added)
}

func TestCollectAll_CooperativeCancellation(t *testing.T) {
	tickers := make([]domain.Ticker, 5)
	for i := range tickers {
		tickers[i] = domain.Ticker{Code: string(rune('a' + i)), IsActive: true}
	}
	store := newMemStore(tickers...)
	c := newTestCollector(store, upstream.NewFixtureClient())

	// Cancel mid-run through the registry from another goroutine; the
	// terminal state is either completed (if the run won the race) or
	// cancelled.
	done := make(chan Result, 1)
	go func() {
		res, _ := c.CollectAll(context.Background(), 1)
		done <- res
	}()
	c.CancelCollectAll()
	<-done

	snap := c.Registry().Snapshot(JobCollectAll)
	assert.Contains(t, []Status{StatusCompleted, StatusCancelled}, snap.Status)
}
