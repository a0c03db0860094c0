package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
	"github.com/aristath/kr-market-feed/pkg/formulas"
)

const maxSimulationYears = 5

// LumpSumPoint is one day's valuation in a lump-sum simulation series.
type LumpSumPoint struct {
	Date      string  `json:"date"`
	Valuation float64 `json:"valuation"`
}

// LumpSumResult is the outcome of simulating a single buy-and-hold
// investment.
type LumpSumResult struct {
	TickerCode   string         `json:"tickerCode"`
	BuyDate      string         `json:"buyDate"`
	BuyPrice     float64        `json:"buyPrice"`
	Shares       int64          `json:"shares"`
	Remainder    float64        `json:"remainder"`
	Series       []LumpSumPoint `json:"series"`
	MaxGainDate  string         `json:"maxGainDate"`
	MaxLossDate  string         `json:"maxLossDate"`
	FinalValue   float64        `json:"finalValue"`
}

// LumpSum simulates buying as many whole shares as `amount` affords on
// buyDate and holding through the ticker's most recent bar.
func (s *Service) LumpSum(ctx context.Context, tickerCode, buyDate string, amount float64) (*LumpSumResult, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	bars, err := s.store.GetBars(ctx, tickerCode, buyDate, farFutureDate())
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, apperr.NotFound("no bars for %s on or after %s", tickerCode, buyDate)
	}

	buyPrice := bars[0].Close
	shares := int64(math.Floor(amount / buyPrice))
	remainder := amount - float64(shares)*buyPrice

	series := make([]LumpSumPoint, len(bars))
	var maxGainDate, maxLossDate string
	maxGain, maxLoss := math.Inf(-1), math.Inf(1)
	for i, b := range bars {
		v := float64(shares)*b.Close + remainder
		series[i] = LumpSumPoint{Date: b.Date, Valuation: v}
		gain := v - amount
		if gain > maxGain {
			maxGain = gain
			maxGainDate = b.Date
		}
		if gain < maxLoss {
			maxLoss = gain
			maxLossDate = b.Date
		}
	}

	return &LumpSumResult{
		TickerCode:  tickerCode,
		BuyDate:     bars[0].Date,
		BuyPrice:    buyPrice,
		Shares:      shares,
		Remainder:   remainder,
		Series:      series,
		MaxGainDate: maxGainDate,
		MaxLossDate: maxLossDate,
		FinalValue:  series[len(series)-1].Valuation,
	}, nil
}

// DCAMonth is one month's entry in a dollar-cost-averaging simulation.
type DCAMonth struct {
	Date         string  `json:"date"`
	BuyPrice     float64 `json:"buyPrice"`
	SharesBought int64   `json:"sharesBought"`
	Carry        float64 `json:"carry"`
	TotalShares  int64   `json:"totalShares"`
}

// DCAResult is the outcome of a monthly dollar-cost-averaging simulation.
type DCAResult struct {
	TickerCode     string     `json:"tickerCode"`
	Months         []DCAMonth `json:"months"`
	TotalShares    int64      `json:"totalShares"`
	TotalInvested  float64    `json:"totalInvested"`
	AvgBuyPrice    float64    `json:"avgBuyPrice"`
}

// DCA simulates monthly purchases between startDate and endDate (bounded to
// 5 years), buying on the first trading day on or after buyDay each month.
// shares_bought = floor((carry + monthly_amount) / buy_price);
// carry = (carry + monthly_amount) - shares_bought*buy_price.
func (s *Service) DCA(ctx context.Context, tickerCode string, monthlyAmount float64, startDate, endDate string, buyDay int) (*DCAResult, error) {
	if monthlyAmount <= 0 {
		return nil, apperr.Validation("monthlyAmount must be positive")
	}
	if buyDay < 1 || buyDay > 28 {
		return nil, apperr.Validation("buyDay must be between 1 and 28")
	}
	start, err := parseDate(startDate)
	if err != nil {
		return nil, apperr.Validation("invalid startDate")
	}
	end, err := parseDate(endDate)
	if err != nil {
		return nil, apperr.Validation("invalid endDate")
	}
	if !end.After(start) {
		return nil, apperr.Validation("endDate must be after startDate")
	}
	if end.Sub(start) > maxSimulationYears*365*24*time.Hour {
		return nil, apperr.Validation("simulation window exceeds %d years", maxSimulationYears)
	}

	bars, err := s.store.GetBars(ctx, tickerCode, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, apperr.NotFound("no bars for %s in range", tickerCode)
	}
	barsByDate := make(map[string]domain.DailyBar, len(bars))
	dates := make([]string, len(bars))
	for i, b := range bars {
		barsByDate[b.Date] = b
		dates[i] = b.Date
	}
	sort.Strings(dates)

	var months []DCAMonth
	var carry float64
	var totalShares int64
	var totalInvested float64

	cursor := time.Date(start.Year(), start.Month(), buyDay, 0, 0, 0, 0, start.Location())
	if cursor.Before(start) {
		cursor = cursor.AddDate(0, 1, 0)
	}

	for !cursor.After(end) {
		buyDate := firstTradingDayOnOrAfter(dates, cursor.Format("2006-01-02"))
		if buyDate != "" {
			bar := barsByDate[buyDate]
			pool := carry + monthlyAmount
			sharesBought := int64(math.Floor(pool / bar.Close))
			carry = pool - float64(sharesBought)*bar.Close
			totalShares += sharesBought
			totalInvested += monthlyAmount
			months = append(months, DCAMonth{
				Date:         buyDate,
				BuyPrice:     bar.Close,
				SharesBought: sharesBought,
				Carry:        carry,
				TotalShares:  totalShares,
			})
		}
		cursor = cursor.AddDate(0, 1, 0)
	}

	result := &DCAResult{
		TickerCode:    tickerCode,
		Months:        months,
		TotalShares:   totalShares,
		TotalInvested: totalInvested,
	}
	if totalShares > 0 {
		result.AvgBuyPrice = totalInvested / float64(totalShares)
	}
	return result, nil
}

func firstTradingDayOnOrAfter(sortedDates []string, target string) string {
	for _, d := range sortedDates {
		if d >= target {
			return d
		}
	}
	return ""
}

// PortfolioHolding is one weighted constituent of a portfolio simulation
// request.
type PortfolioHolding struct {
	TickerCode string  `json:"tickerCode"`
	Weight     float64 `json:"weight"`
}

// PortfolioResult is the outcome of simulating a weighted basket of
// lump-sum investments. AnnualizedReturn is the CAGR of the valuation
// series (nil for windows too short to annualize); CVaR95 is the
// weight-proportional historical 95% Conditional Value at Risk of the
// constituents' daily returns.
type PortfolioResult struct {
	Holdings         []PortfolioHolding `json:"holdings"`
	Dates            []string           `json:"dates"`
	Valuations       []float64          `json:"valuations"`
	FinalValue       float64            `json:"finalValue"`
	AnnualizedReturn *float64           `json:"annualizedReturn"`
	CVaR95           float64            `json:"cvar95"`
}

const maxPortfolioHoldings = 20

// Portfolio simulates a weighted basket of lump-sum investments, forward-
// filling closes on the union of trading dates across holdings. Weights
// must sum to 1.0 within 1e-6, holdings capped at 20 with no duplicates.
func (s *Service) Portfolio(ctx context.Context, holdings []PortfolioHolding, amount float64, startDate, endDate string) (*PortfolioResult, error) {
	if len(holdings) > maxPortfolioHoldings {
		return nil, apperr.Validation("portfolio supports at most %d holdings", maxPortfolioHoldings)
	}
	seen := make(map[string]bool, len(holdings))
	var weightSum float64
	for _, h := range holdings {
		if seen[h.TickerCode] {
			return nil, apperr.Validation("duplicate ticker %s in portfolio", h.TickerCode)
		}
		seen[h.TickerCode] = true
		weightSum += h.Weight
	}
	if math.Abs(weightSum-1.0) > 1e-6 {
		return nil, apperr.Validation("portfolio weights must sum to 1.0, got %f", weightSum)
	}
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	start, err := parseDate(startDate)
	if err != nil {
		return nil, apperr.Validation("invalid startDate")
	}
	end, err := parseDate(endDate)
	if err != nil {
		return nil, apperr.Validation("invalid endDate")
	}
	if !end.After(start) {
		return nil, apperr.Validation("endDate must be after startDate")
	}
	if end.Sub(start) > maxSimulationYears*365*24*time.Hour {
		return nil, apperr.Validation("simulation window exceeds %d years", maxSimulationYears)
	}

	allDatesSet := make(map[string]bool)
	barsByTicker := make(map[string][]domain.DailyBar, len(holdings))
	for _, h := range holdings {
		bars, err := s.store.GetBars(ctx, h.TickerCode, startDate, endDate)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, apperr.NotFound("no bars for %s in range", h.TickerCode)
		}
		barsByTicker[h.TickerCode] = bars
		for _, b := range bars {
			allDatesSet[b.Date] = true
		}
	}

	var dates []string
	for d := range allDatesSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	valuations := make([]float64, len(dates))
	for _, h := range holdings {
		lumpAmount := h.Weight * amount
		bars := barsByTicker[h.TickerCode]
		buyPrice := bars[0].Close
		shares := math.Floor(lumpAmount / buyPrice)
		remainder := lumpAmount - shares*buyPrice

		closeByDate := make(map[string]float64, len(bars))
		for _, b := range bars {
			closeByDate[b.Date] = b.Close
		}

		lastClose := buyPrice
		for i, d := range dates {
			if c, ok := closeByDate[d]; ok {
				lastClose = c
			}
			if d < bars[0].Date {
				continue
			}
			valuations[i] += shares*lastClose + remainder
		}
	}

	final := 0.0
	if len(valuations) > 0 {
		final = valuations[len(valuations)-1]
	}

	weights := make(map[string]float64, len(holdings))
	returnsByTicker := make(map[string][]float64, len(holdings))
	for _, h := range holdings {
		weights[h.TickerCode] = h.Weight
		closes := make([]float64, len(barsByTicker[h.TickerCode]))
		for i, b := range barsByTicker[h.TickerCode] {
			closes[i] = b.Close
		}
		returnsByTicker[h.TickerCode] = formulas.CalculateReturns(closes)
	}

	return &PortfolioResult{
		Holdings:         holdings,
		Dates:            dates,
		Valuations:       valuations,
		FinalValue:       final,
		AnnualizedReturn: formulas.CAGRFromCloses(valuations, len(dates)-1),
		CVaR95:           formulas.CalculatePortfolioCVaR(weights, returnsByTicker, 0.95),
	}, nil
}

func farFutureDate() string {
	return time.Now().AddDate(10, 0, 0).Format("2006-01-02")
}
