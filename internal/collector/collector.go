// Package collector orchestrates ingestion runs against the UpstreamClient,
// healing gaps in the store's collection state and reporting progress.
package collector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/cache"
	"github.com/aristath/kr-market-feed/internal/domain"
	"github.com/aristath/kr-market-feed/internal/upstream"
)

// Store is the subset of the store.Store API the Collector depends on.
type Store interface {
	ListTickers(ctx context.Context, market string) ([]domain.Ticker, error)
	GetTicker(ctx context.Context, code string) (*domain.Ticker, error)
	GetCollectionState(ctx context.Context, tickerCode, dataKind string) (*domain.CollectionState, error)
	MarkCollectionSuccess(ctx context.Context, tickerCode, dataKind, priceDate string) error
	MarkCollectionFailure(ctx context.Context, tickerCode, dataKind string, err error) error

	UpsertDailyBar(ctx context.Context, bar domain.DailyBar) error
	UpsertTradingFlow(ctx context.Context, flow domain.TradingFlow) error
	UpsertIntradayTick(ctx context.Context, tick domain.IntradayTick) error
	UpsertNews(ctx context.Context, item domain.NewsItem) (bool, error)
	UpsertStockFundamentals(ctx context.Context, f domain.StockFundamentals) error
	UpsertEtfFundamentals(ctx context.Context, f domain.EtfFundamentals) error
	ReplaceEtfHoldings(ctx context.Context, etfCode string, holdings []domain.EtfHolding) error
}

// Config configures Collector run behavior.
type Config struct {
	MaxConcurrency int
	DefaultDays    int // smart-collection window when the caller doesn't specify one
}

// Collector drives ticker-by-ticker ingestion runs, backfilling gaps
// detected via CollectionState and reporting progress for the duration of
// each run.
type Collector struct {
	store       Store
	upstream    upstream.Client
	cache       *cache.Cache
	log         zerolog.Logger
	maxConc     int
	defaultDays int

	collecting     int32 // single-flight gate for CollectAll, 0=idle 1=running
	collectingFund int32 // separate gate for the fundamentals-only pass

	registry *Registry
}

// New creates a Collector.
func New(store Store, client upstream.Client, c *cache.Cache, cfg Config, log zerolog.Logger) *Collector {
	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 4
	}
	defaultDays := cfg.DefaultDays
	if defaultDays <= 0 {
		defaultDays = 30
	}
	return &Collector{
		store:       store,
		upstream:    client,
		cache:       c,
		log:         log.With().Str("component", "collector").Logger(),
		maxConc:     maxConc,
		defaultDays: defaultDays,
		registry:    NewRegistry(),
	}
}

// Registry exposes the process-wide job progress registry (collect-all,
// catalog-collect, screening-collect) for API layer polling.
func (c *Collector) Registry() *Registry {
	return c.registry
}

// TickerResult is the per-ticker outcome of a CollectAll pass.
type TickerResult struct {
	TickerCode string `json:"tickerCode"`
	BarsAdded  int    `json:"barsAdded"`
	Err        string `json:"error,omitempty"`
}

// Result summarizes the outcome of a completed batch run.
type Result struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Detail    []TickerResult `json:"detail,omitempty"`
}

// CollectAll runs a full ingestion pass across every active ticker,
// refusing to start a second pass while one is already running. For each
// ticker it collects prices, trading flows, news, and fundamentals, in
// that order; an independent per-ticker/per-kind failure never aborts the
// batch. days bounds the smart-collection window (see computeActualDays);
// zero uses the collector's configured default.
func (c *Collector) CollectAll(ctx context.Context, days int) (Result, error) {
	if !atomic.CompareAndSwapInt32(&c.collecting, 0, 1) {
		return Result{}, apperr.AlreadyRunning("a collection run is already in progress")
	}
	defer atomic.StoreInt32(&c.collecting, 0)

	if days <= 0 {
		days = c.defaultDays
	}

	tickers, err := c.store.ListTickers(ctx, "")
	if err != nil {
		return Result{}, err
	}

	progress := c.registry.Begin(JobCollectAll, len(tickers))
	progress.ReportUnthrottled(0, "collect-all", "starting batch collection")

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(c.maxConc)

	var done int32
	var succeeded, failed int32
	results := make([]TickerResult, len(tickers))

	for i, t := range tickers {
		i, t := i, t
		group.Go(func() error {
			if progress.CancelRequested() {
				return nil
			}
			res := c.collectOneTicker(gctx, t, days)
			results[i] = res
			n := atomic.AddInt32(&done, 1)
			if res.Err != "" {
				atomic.AddInt32(&failed, 1)
			} else {
				atomic.AddInt32(&succeeded, 1)
			}
			progress.Report(int(n), "collect-all", fmt.Sprintf("collected %s", t.Code))
			return nil // one ticker's failure never aborts the batch
		})
	}

	_ = group.Wait()

	if progress.CancelRequested() {
		progress.MarkCancelled()
	} else {
		progress.ReportUnthrottled(len(tickers), "collect-all", "batch collection complete")
		progress.Finish()
	}

	return Result{
		Total:     len(tickers),
		Succeeded: int(succeeded),
		Failed:    int(failed),
		Detail:    results,
	}, nil
}

// collectOneTicker collects prices, trading flows, news, and fundamentals
// for a single ticker, in that order. Each data kind's failure is recorded
// independently and does not prevent the next kind from being attempted.
func (c *Collector) collectOneTicker(ctx context.Context, t domain.Ticker, days int) TickerResult {
	res := TickerResult{TickerCode: t.Code}

	barsAdded, err := c.collectPricesAndFlows(ctx, t, days)
	res.BarsAdded = barsAdded
	if err != nil {
		res.Err = err.Error()
		c.log.Warn().Err(err).Str("ticker", t.Code).Msg("price/flow collection failed")
	}

	if _, err := c.collectNews(ctx, t); err != nil {
		c.log.Warn().Err(err).Str("ticker", t.Code).Msg("news collection failed")
		if res.Err == "" {
			res.Err = err.Error()
		}
	}

	if err := c.collectFundamentals(ctx, t); err != nil {
		c.log.Warn().Err(err).Str("ticker", t.Code).Msg("fundamentals collection failed")
		if res.Err == "" {
			res.Err = err.Error()
		}
	}

	return res
}

// computeActualDays implements the smart-collection gap math: if no prior
// state exists, fetch the full requested window; otherwise fetch only the
// gap between the last known date and today, capped at days.
func computeActualDays(lastDate, today string, days int) int {
	if lastDate == "" {
		return days
	}
	loc := kstLocation()
	lastT, err1 := time.ParseInLocation("2006-01-02", lastDate, loc)
	todayT, err2 := time.ParseInLocation("2006-01-02", today, loc)
	if err1 != nil || err2 != nil {
		return days
	}
	gap := int(todayT.Sub(lastT).Hours() / 24)
	if gap <= 0 {
		return 0
	}
	if gap > days {
		return days
	}
	return gap
}

// datesBack returns the n calendar dates ending at today, most-recent-first.
func datesBack(today string, n int) []string {
	if n <= 0 {
		return nil
	}
	loc := kstLocation()
	todayT, err := time.ParseInLocation("2006-01-02", today, loc)
	if err != nil {
		return nil
	}
	dates := make([]string, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, todayT.AddDate(0, 0, -i).Format("2006-01-02"))
	}
	return dates
}

func kstLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.UTC
	}
	return loc
}

func todayKST() string {
	return time.Now().In(kstLocation()).Format("2006-01-02")
}

// collectPricesAndFlows applies smart collection to a single ticker's bars
// and trading flows, which share an upstream fetch per date.
func (c *Collector) collectPricesAndFlows(ctx context.Context, t domain.Ticker, days int) (int, error) {
	today := todayKST()

	barState, err := c.store.GetCollectionState(ctx, t.Code, "bars")
	if err != nil {
		return 0, err
	}
	var lastBarDate string
	if barState != nil {
		lastBarDate = barState.LastPriceDate
	}

	flowState, err := c.store.GetCollectionState(ctx, t.Code, "flows")
	if err != nil {
		return 0, err
	}
	var lastFlowDate string
	if flowState != nil {
		lastFlowDate = flowState.LastPriceDate
	}

	actualBarDays := computeActualDays(lastBarDate, today, days)
	actualFlowDays := computeActualDays(lastFlowDate, today, days)

	fetchDays := actualBarDays
	if actualFlowDays > fetchDays {
		fetchDays = actualFlowDays
	}
	if fetchDays == 0 {
		return 0, nil // both bars and flows are already current
	}

	dates := datesBack(today, fetchDays)

	added := 0
	var lastBarWritten, lastFlowWritten string
	var firstErr error

	for _, date := range dates {
		if date <= lastBarDate && date <= lastFlowDate {
			continue
		}
		snap, err := c.upstream.FetchDaily(ctx, t.Code, date)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			_ = c.store.MarkCollectionFailure(ctx, t.Code, "bars", err)
			continue
		}
		if snap == nil {
			continue
		}
		if snap.Bar != nil && date > lastBarDate {
			if err := c.store.UpsertDailyBar(ctx, *snap.Bar); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			added++
			if snap.Bar.Date > lastBarWritten {
				lastBarWritten = snap.Bar.Date
			}
			c.cache.InvalidateTag("ticker:" + t.Code)
		}
		if snap.Flow != nil && date > lastFlowDate {
			if err := c.store.UpsertTradingFlow(ctx, *snap.Flow); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if snap.Flow.Date > lastFlowWritten {
				lastFlowWritten = snap.Flow.Date
			}
		}
	}

	if lastBarWritten != "" {
		if err := c.store.MarkCollectionSuccess(ctx, t.Code, "bars", lastBarWritten); err != nil {
			return added, err
		}
	}
	if lastFlowWritten != "" {
		if err := c.store.MarkCollectionSuccess(ctx, t.Code, "flows", lastFlowWritten); err != nil {
			return added, err
		}
	}

	return added, firstErr
}

func (c *Collector) collectNews(ctx context.Context, t domain.Ticker) (int, error) {
	state, err := c.store.GetCollectionState(ctx, t.Code, "news")
	if err != nil {
		return 0, err
	}
	since := time.Now().AddDate(0, 0, -7)
	if state != nil && !state.LastSuccessAt.IsZero() {
		since = state.LastSuccessAt
	}

	items, err := c.upstream.FetchNews(ctx, t.Code, since)
	if err != nil {
		_ = c.store.MarkCollectionFailure(ctx, t.Code, "news", err)
		return 0, err
	}
	if len(items) == 0 {
		// empty result: do not treat as failure, but also don't advance the
		// success marker past "now" here — next run uses the same since.
		return 0, nil
	}
	added := 0
	for _, item := range items {
		inserted, err := c.store.UpsertNews(ctx, item)
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}
	}
	return added, c.store.MarkCollectionSuccess(ctx, t.Code, "news", todayKST())
}

func (c *Collector) collectFundamentals(ctx context.Context, t domain.Ticker) error {
	isETF := t.Type == "etf"
	snap, err := c.upstream.FetchFundamentals(ctx, t.Code, isETF)
	if err != nil {
		_ = c.store.MarkCollectionFailure(ctx, t.Code, "fundamentals", err)
		return err
	}
	if snap == nil {
		return nil
	}
	if snap.StockFund != nil {
		if err := c.store.UpsertStockFundamentals(ctx, *snap.StockFund); err != nil {
			return err
		}
	}
	if snap.EtfFund != nil {
		if err := c.store.UpsertEtfFundamentals(ctx, *snap.EtfFund); err != nil {
			return err
		}
	}
	if snap.EtfHoldings != nil {
		if err := c.store.ReplaceEtfHoldings(ctx, t.Code, snap.EtfHoldings); err != nil {
			return err
		}
	}
	c.cache.InvalidateTag("ticker:" + t.Code)
	return c.store.MarkCollectionSuccess(ctx, t.Code, "fundamentals", todayKST())
}

// CollectTicker runs a prices+flows smart collection for a single ticker.
// days bounds the window; zero uses the collector's configured default.
func (c *Collector) CollectTicker(ctx context.Context, code string, days int) (TickerResult, error) {
	t, err := c.store.GetTicker(ctx, code)
	if err != nil {
		return TickerResult{}, err
	}
	if days <= 0 {
		days = c.defaultDays
	}

	added, err := c.collectPricesAndFlows(ctx, *t, days)
	res := TickerResult{TickerCode: code, BarsAdded: added}
	if err != nil {
		res.Err = err.Error()
	}
	return res, err
}

// CollectTickerNews collects fresh news for a single ticker, returning the
// number of newly inserted items.
func (c *Collector) CollectTickerNews(ctx context.Context, code string) (int, error) {
	t, err := c.store.GetTicker(ctx, code)
	if err != nil {
		return 0, err
	}
	added, err := c.collectNews(ctx, *t)
	if err == nil && added > 0 {
		c.cache.InvalidateTag("ticker:" + code)
	}
	return added, err
}

// CollectTickerFundamentals refreshes fundamentals for a single ticker.
func (c *Collector) CollectTickerFundamentals(ctx context.Context, code string) error {
	t, err := c.store.GetTicker(ctx, code)
	if err != nil {
		return err
	}
	return c.collectFundamentals(ctx, *t)
}

// CollectFundamentals runs a fundamentals-only pass across every active
// ticker. It holds its own single-flight gate, so it may run alongside a
// daily CollectAll but never alongside another fundamentals pass.
func (c *Collector) CollectFundamentals(ctx context.Context) (Result, error) {
	if !atomic.CompareAndSwapInt32(&c.collectingFund, 0, 1) {
		return Result{}, apperr.AlreadyRunning("a fundamentals collection run is already in progress")
	}
	defer atomic.StoreInt32(&c.collectingFund, 0)

	tickers, err := c.store.ListTickers(ctx, "")
	if err != nil {
		return Result{}, err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(c.maxConc)

	var succeeded, failed int32
	for _, t := range tickers {
		t := t
		group.Go(func() error {
			if err := c.collectFundamentals(gctx, t); err != nil {
				atomic.AddInt32(&failed, 1)
			} else {
				atomic.AddInt32(&succeeded, 1)
			}
			return nil
		})
	}
	_ = group.Wait()

	return Result{Total: len(tickers), Succeeded: int(succeeded), Failed: int(failed)}, nil
}

// IsCollectingFundamentals reports whether a fundamentals pass currently
// holds its gate.
func (c *Collector) IsCollectingFundamentals() bool {
	return atomic.LoadInt32(&c.collectingFund) == 1
}

// CollectIntraday refreshes the near-real-time quote for every active
// ticker. Unlike CollectAll it does not take the single-flight gate: it is
// meant to run frequently and concurrently with the daily pass.
func (c *Collector) CollectIntraday(ctx context.Context) (Result, error) {
	tickers, err := c.store.ListTickers(ctx, "")
	if err != nil {
		return Result{}, err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(c.maxConc)

	var succeeded, failed int32
	for _, t := range tickers {
		t := t
		group.Go(func() error {
			tick, err := c.upstream.FetchIntraday(gctx, t.Code)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				_ = c.store.MarkCollectionFailure(gctx, t.Code, "intraday", err)
				return nil
			}
			if tick == nil {
				// empty result is not cached and not treated as an error
				return nil
			}
			tick.TickerCode = t.Code
			if err := c.store.UpsertIntradayTick(gctx, *tick); err != nil {
				atomic.AddInt32(&failed, 1)
				return nil
			}
			c.cache.InvalidateTag("ticker:" + t.Code)
			atomic.AddInt32(&succeeded, 1)
			return nil
		})
	}
	_ = group.Wait()

	return Result{Total: len(tickers), Succeeded: int(succeeded), Failed: int(failed)}, nil
}

// CollectTickerIntraday fetches and stores the current quote for a single
// ticker. An empty upstream result is neither stored nor treated as an
// error, so the next read retries discovery.
func (c *Collector) CollectTickerIntraday(ctx context.Context, code string) (*domain.IntradayTick, error) {
	tick, err := c.upstream.FetchIntraday(ctx, code)
	if err != nil {
		_ = c.store.MarkCollectionFailure(ctx, code, "intraday", err)
		return nil, err
	}
	if tick == nil {
		return nil, nil
	}
	tick.TickerCode = code
	if err := c.store.UpsertIntradayTick(ctx, *tick); err != nil {
		return nil, err
	}
	c.cache.InvalidateTag("ticker:" + code)
	return tick, nil
}

// GapHeal backfills missing daily bars for a single ticker between its last
// known price date and today, bounded to at most 365 days, used by
// on-demand read endpoints that detect a local gap (auto_collect=true).
func (c *Collector) GapHeal(ctx context.Context, tickerCode string) (int, error) {
	state, err := c.store.GetCollectionState(ctx, tickerCode, "bars")
	if err != nil {
		return 0, err
	}
	var lastDate string
	if state != nil {
		lastDate = state.LastPriceDate
	}

	today := todayKST()
	actual := computeActualDays(lastDate, today, 365)
	if actual == 0 {
		return 0, nil
	}
	dates := datesBack(today, actual)

	healed := 0
	var lastWritten string
	for _, date := range dates {
		if date <= lastDate {
			continue
		}
		snap, err := c.upstream.FetchDaily(ctx, tickerCode, date)
		if err != nil {
			_ = c.store.MarkCollectionFailure(ctx, tickerCode, "bars", err)
			return healed, err
		}
		if snap == nil || snap.Bar == nil {
			continue
		}
		if err := c.store.UpsertDailyBar(ctx, *snap.Bar); err != nil {
			return healed, err
		}
		healed++
		if snap.Bar.Date > lastWritten {
			lastWritten = snap.Bar.Date
		}
	}
	if lastWritten != "" {
		if err := c.store.MarkCollectionSuccess(ctx, tickerCode, "bars", lastWritten); err != nil {
			return healed, err
		}
		c.cache.InvalidateTag("ticker:" + tickerCode)
	}
	return healed, nil
}

// IsCollecting reports whether a CollectAll run currently holds the
// single-flight gate.
func (c *Collector) IsCollecting() bool {
	return atomic.LoadInt32(&c.collecting) == 1
}

// CancelCollectAll requests cooperative cancellation of the in-flight
// CollectAll run, if any.
func (c *Collector) CancelCollectAll() bool {
	return c.registry.CancelByKind(JobCollectAll)
}

// LatestProgress returns a snapshot of the most recent collect-all run.
func (c *Collector) LatestProgress() (Snapshot, bool) {
	p, ok := c.registry.Get(JobCollectAll)
	if !ok {
		return Snapshot{}, false
	}
	return p.Snapshot(), true
}
