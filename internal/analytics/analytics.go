// Package analytics computes return, risk, and comparison metrics as pure
// functions over Store reads: no upstream fetches, no caching decisions of
// its own (the read-through cache wrapping happens in the server layer).
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
	"github.com/aristath/kr-market-feed/pkg/formulas"
)

func parseDate(date string) (time.Time, error) {
	return time.Parse("2006-01-02", date)
}

const minTradingDaysForAnnualization = 90

// Store is the subset of store.Store Analytics depends on.
type Store interface {
	GetBars(ctx context.Context, tickerCode, from, to string) ([]domain.DailyBar, error)
	GetTradingFlows(ctx context.Context, tickerCode, from, to string) ([]domain.TradingFlow, error)
	GetLatestTradingFlow(ctx context.Context, tickerCode string) (*domain.TradingFlow, error)
	GetNews(ctx context.Context, tickerCode string, limit int) ([]domain.NewsItem, error)
}

// Service computes analytics over a Store.
type Service struct {
	store Store
	log   zerolog.Logger
	rf    float64 // risk-free rate for Sharpe, 0 unless configured
}

// New creates an analytics Service.
func New(store Store, riskFreeRate float64, log zerolog.Logger) *Service {
	return &Service{store: store, rf: riskFreeRate, log: log.With().Str("component", "analytics").Logger()}
}

// Metrics is the return/risk summary for a single ticker over a window.
type Metrics struct {
	TickerCode          string   `json:"tickerCode"`
	From                string   `json:"from"`
	To                  string   `json:"to"`
	TradingDays         int      `json:"tradingDays"`
	PeriodReturn        float64  `json:"periodReturn"`
	AnnualizedReturn     *float64 `json:"annualizedReturn"`
	Volatility          float64  `json:"volatility"`
	AnnualizedVolatility float64 `json:"annualizedVolatility"`
	MaxDrawdown         float64  `json:"maxDrawdown"`
	Sharpe              *float64 `json:"sharpe"`
}

// Metrics computes period/annualized return, volatility, max drawdown, and
// Sharpe ratio for a ticker's bars within [from, to].
func (s *Service) Metrics(ctx context.Context, tickerCode, from, to string) (*Metrics, error) {
	bars, err := s.store.GetBars(ctx, tickerCode, from, to)
	if err != nil {
		return nil, err
	}
	if len(bars) < 2 {
		return nil, apperr.Validation("at least two bars are required to compute metrics")
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	periodReturn := (closes[len(closes)-1]/closes[0] - 1) * 100

	n := len(bars) - 1 // number of trading-day intervals
	m := &Metrics{
		TickerCode:   tickerCode,
		From:         bars[0].Date,
		To:           bars[len(bars)-1].Date,
		TradingDays:  n,
		PeriodReturn: periodReturn,
	}

	if n >= minTradingDaysForAnnualization {
		annualized := (math.Pow(1+periodReturn/100, 365.0/float64(n)) - 1) * 100
		m.AnnualizedReturn = &annualized
	}

	returns := formulas.CalculateReturns(closes)
	m.Volatility = formulas.StdDev(returns)
	m.AnnualizedVolatility = formulas.AnnualizedVolatility(returns)
	m.MaxDrawdown = maxDrawdown(closes)

	if m.AnnualizedReturn != nil && m.AnnualizedVolatility != 0 {
		sharpe := (*m.AnnualizedReturn - s.rf) / m.AnnualizedVolatility
		m.Sharpe = &sharpe
	}

	return m, nil
}

// maxDrawdown returns the minimum (value_t - peak_t) / peak_t over the
// series, expressed as a percent.
func maxDrawdown(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	peak := closes[0]
	worst := 0.0
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak == 0 {
			continue
		}
		dd := (c - peak) / peak
		if dd < worst {
			worst = dd
		}
	}
	return worst * 100
}

// Horizon windows (in trading days) for the Insights strategy signal.
var horizonWindows = map[string]int{
	"short":  20,
	"medium": 60,
	"long":   120,
}

// Strategy labels, Korean per the domain's UI convention.
const (
	StrategyExpand   = "비중확대"
	StrategyHold     = "보유"
	StrategyWatch    = "관망"
	StrategyContract = "비중축소"
)

// Insights is the rule-based summary produced from recent metrics, flows,
// and news for a ticker.
type Insights struct {
	TickerCode string            `json:"tickerCode"`
	Strategy   map[string]string `json:"strategy"` // horizon -> label
	KeyPoints  []string          `json:"keyPoints"`
	RiskFlags  []string          `json:"riskFlags"`
}

func strategyFor(periodReturnPct float64) string {
	switch {
	case periodReturnPct > 10:
		return StrategyExpand
	case periodReturnPct >= 5:
		return StrategyHold
	case periodReturnPct >= -5:
		return StrategyWatch
	default:
		return StrategyContract
	}
}

// Insights computes the strategy/key-points/risk-flags summary for a
// ticker as of asOfDate, using the short/medium/long horizon windows.
func (s *Service) Insights(ctx context.Context, tickerCode, asOfDate string) (*Insights, error) {
	longWindowBars, err := s.barsForWindow(ctx, tickerCode, asOfDate, horizonWindows["long"])
	if err != nil {
		return nil, err
	}
	if len(longWindowBars) < 2 {
		return nil, apperr.Validation("insufficient bar history for insights on %s", tickerCode)
	}

	ins := &Insights{TickerCode: tickerCode, Strategy: map[string]string{}}

	closes := make([]float64, len(longWindowBars))
	for i, b := range longWindowBars {
		closes[i] = b.Close
	}

	for horizon, window := range horizonWindows {
		start := len(closes) - window
		if start < 0 {
			start = 0
		}
		sub := closes[start:]
		if len(sub) < 2 {
			continue
		}
		ret := (sub[len(sub)-1]/sub[0] - 1) * 100
		ins.Strategy[horizon] = strategyFor(ret)
	}

	returns := formulas.CalculateReturns(closes)
	vol := formulas.AnnualizedVolatility(returns)
	mdd := maxDrawdown(closes)
	periodReturn := (closes[len(closes)-1]/closes[0] - 1) * 100

	bandwidth := bollingerBandwidthSignal(closes)

	var keyPoints []string
	keyPoints = append(keyPoints, extremeReturnPoint(periodReturn))
	if point := emaTrendPoint(closes); point != "" {
		keyPoints = append(keyPoints, point)
	}

	flow, err := s.store.GetLatestTradingFlow(ctx, tickerCode)
	if err == nil && flow != nil {
		keyPoints = append(keyPoints, flowDominancePoint(*flow))
	}

	news, err := s.store.GetNews(ctx, tickerCode, 50)
	if err == nil {
		keyPoints = append(keyPoints, newsCountPoint(len(news)))
	}
	ins.KeyPoints = capStrings(keyPoints, 3)

	var riskFlags []string
	if vol > 40 {
		riskFlags = append(riskFlags, "high annualized volatility")
	}
	if mdd < -20 {
		riskFlags = append(riskFlags, "deep drawdown from recent peak")
	}
	if bandwidth != "" {
		riskFlags = append(riskFlags, bandwidth)
	}
	if err == nil {
		if flag := newsKeywordFlag(news); flag != "" {
			riskFlags = append(riskFlags, flag)
		}
	}
	ins.RiskFlags = capStrings(riskFlags, 3)

	return ins, nil
}

func (s *Service) barsForWindow(ctx context.Context, tickerCode, asOfDate string, tradingDays int) ([]domain.DailyBar, error) {
	// Overfetch calendar days to comfortably cover tradingDays trading days,
	// then trim to the tail.
	from := shiftDate(asOfDate, -(tradingDays*2 + 10))
	bars, err := s.store.GetBars(ctx, tickerCode, from, asOfDate)
	if err != nil {
		return nil, err
	}
	if len(bars) > tradingDays {
		bars = bars[len(bars)-tradingDays:]
	}
	return bars, nil
}

func extremeReturnPoint(periodReturnPct float64) string {
	if periodReturnPct >= 0 {
		return "positive period return"
	}
	return "negative period return"
}

func flowDominancePoint(f domain.TradingFlow) string {
	switch {
	case f.ForeignNet > 0 && f.InstitutionNet > 0:
		return "foreign and institutional buying"
	case f.ForeignNet < 0 && f.InstitutionNet < 0:
		return "foreign and institutional selling"
	case f.ForeignNet > 0:
		return "foreign net buying"
	case f.InstitutionNet > 0:
		return "institutional net buying"
	default:
		return "mixed investor flows"
	}
}

func newsCountPoint(n int) string {
	if n == 0 {
		return "no recent news coverage"
	}
	return "active news coverage"
}

var riskKeywords = []string{"소송", "적자", "하락", "경고", "lawsuit", "delisting", "상장폐지"}

func newsKeywordFlag(items []domain.NewsItem) string {
	for _, item := range items {
		for _, kw := range riskKeywords {
			if contains(item.Title, kw) {
				return "negative keyword in recent news titles"
			}
		}
	}
	return ""
}

func contains(haystack, needle string) bool {
	return len(needle) > 0 && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// emaTrendPoint reports where the latest close sits relative to its 20-day
// EMA, when the distance is pronounced enough to matter.
func emaTrendPoint(closes []float64) string {
	dist := formulas.CalculateDistanceFromEMA(closes, 20)
	if dist == nil {
		return ""
	}
	switch {
	case *dist > 0.03:
		return "trading well above 20-day moving average"
	case *dist < -0.03:
		return "trading well below 20-day moving average"
	}
	return ""
}

func bollingerBandwidthSignal(closes []float64) string {
	bands := formulas.CalculateBollingerBands(closes, 20, 2)
	if bands == nil || bands.Middle == 0 {
		return ""
	}
	width := (bands.Upper - bands.Lower) / bands.Middle
	if width > 0.25 {
		return "wide Bollinger band — elevated volatility regime"
	}
	return ""
}

func capStrings(items []string, max int) []string {
	if len(items) <= max {
		return items
	}
	return items[:max]
}

// shiftDate shifts a YYYY-MM-DD date by n calendar days (n may be negative).
func shiftDate(date string, n int) string {
	t, err := parseDate(date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format("2006-01-02")
}

// Compare produces normalized price series, per-ticker statistics, and a
// Pearson correlation matrix for a set of tickers over a shared window.
type Compare struct {
	Tickers          []string                   `json:"tickers"`
	Dates            []string                   `json:"dates"`
	NormalizedPrices map[string][]float64       `json:"normalizedPrices"`
	Stats            map[string]*Metrics        `json:"stats"`
	Correlation      map[string]map[string]float64 `json:"correlation"`
}

// Compare aligns the given tickers on their intersecting trading days and
// computes normalized prices, per-ticker stats, and a correlation matrix.
func (s *Service) Compare(ctx context.Context, tickers []string, from, to string) (*Compare, error) {
	if len(tickers) < 2 || len(tickers) > 20 {
		return nil, apperr.Validation("compare requires between 2 and 20 tickers")
	}

	barsByTicker := make(map[string][]domain.DailyBar, len(tickers))
	for _, t := range tickers {
		bars, err := s.store.GetBars(ctx, t, from, to)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, apperr.Validation("no bars for ticker %s in range", t)
		}
		barsByTicker[t] = bars
	}

	dates := intersectDates(barsByTicker)
	if len(dates) < 2 {
		return nil, apperr.Validation("tickers share fewer than two trading days in range")
	}

	closesByTicker := make(map[string][]float64, len(tickers))
	for _, t := range tickers {
		closes := closesOnDates(barsByTicker[t], dates)
		closesByTicker[t] = closes
	}

	normalized := make(map[string][]float64, len(tickers))
	for _, t := range tickers {
		closes := closesByTicker[t]
		base := closes[0]
		norm := make([]float64, len(closes))
		for i, c := range closes {
			if base != 0 {
				norm[i] = c / base * 100
			}
		}
		normalized[t] = norm
	}

	statsByTicker := make(map[string]*Metrics, len(tickers))
	returnsByTicker := make(map[string][]float64, len(tickers))
	for _, t := range tickers {
		closes := closesByTicker[t]
		periodReturn := (closes[len(closes)-1]/closes[0] - 1) * 100
		returns := formulas.CalculateReturns(closes)
		returnsByTicker[t] = returns
		statsByTicker[t] = &Metrics{
			TickerCode:           t,
			From:                 dates[0],
			To:                   dates[len(dates)-1],
			TradingDays:          len(dates) - 1,
			PeriodReturn:         periodReturn,
			Volatility:           formulas.StdDev(returns),
			AnnualizedVolatility: formulas.AnnualizedVolatility(returns),
			MaxDrawdown:          maxDrawdown(closes),
		}
	}

	corr := make(map[string]map[string]float64, len(tickers))
	for _, a := range tickers {
		corr[a] = make(map[string]float64, len(tickers))
		for _, b := range tickers {
			if a == b {
				corr[a][b] = 1.0
				continue
			}
			corr[a][b] = formulas.Correlation(returnsByTicker[a], returnsByTicker[b])
		}
	}

	return &Compare{
		Tickers:          tickers,
		Dates:            dates,
		NormalizedPrices: normalized,
		Stats:            statsByTicker,
		Correlation:      corr,
	}, nil
}

// intersectDates returns the sorted set of dates present in every ticker's
// bar series.
func intersectDates(barsByTicker map[string][]domain.DailyBar) []string {
	var tickers []string
	for t := range barsByTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	if len(tickers) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, t := range tickers {
		for _, b := range barsByTicker[t] {
			counts[b.Date]++
		}
	}

	var shared []string
	for date, n := range counts {
		if n == len(tickers) {
			shared = append(shared, date)
		}
	}
	sort.Strings(shared)
	return shared
}

func closesOnDates(bars []domain.DailyBar, dates []string) []float64 {
	byDate := make(map[string]float64, len(bars))
	for _, b := range bars {
		byDate[b.Date] = b.Close
	}
	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = byDate[d]
	}
	return out
}
