package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// dailyResponse mirrors the upstream JSON shape for a single trading day:
// an OHLCV bar plus the investor net-flow breakdown for the same session.
type dailyResponse struct {
	Date             string  `json:"date"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Close            float64 `json:"close"`
	Volume           int64   `json:"volume"`
	TradingValue     int64   `json:"tradingValue"`
	IndividualNet    int64   `json:"individualNet"`
	ForeignNet       int64   `json:"foreignNet"`
	InstitutionNet   int64   `json:"institutionNet"`
}

// FetchDaily retrieves the end-of-day bar and investor-flow snapshot for a
// ticker on a given trading date (YYYY-MM-DD).
func (c *HTTPClient) FetchDaily(ctx context.Context, tickerCode, date string) (*Snapshot, error) {
	reqURL := fmt.Sprintf("%s/daily/%s?date=%s", c.baseURL, tickerCode, date)

	body, err := c.do(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp dailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseErr("daily", err)
	}

	return &Snapshot{
		Bar: &domain.DailyBar{
			TickerCode:   tickerCode,
			Date:         resp.Date,
			Open:         resp.Open,
			High:         resp.High,
			Low:          resp.Low,
			Close:        resp.Close,
			Volume:       resp.Volume,
			TradingValue: resp.TradingValue,
		},
		Flow: &domain.TradingFlow{
			TickerCode:     tickerCode,
			Date:           resp.Date,
			IndividualNet:  resp.IndividualNet,
			ForeignNet:     resp.ForeignNet,
			InstitutionNet: resp.InstitutionNet,
		},
	}, nil
}

type intradayResponse struct {
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	ChangePct float64 `json:"changePct"`
}

// FetchIntraday retrieves the current quote snapshot for a ticker.
func (c *HTTPClient) FetchIntraday(ctx context.Context, tickerCode string) (*domain.IntradayTick, error) {
	reqURL := fmt.Sprintf("%s/quote/%s", c.baseURL, tickerCode)

	body, err := c.do(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp intradayResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseErr("intraday", err)
	}

	return &domain.IntradayTick{
		TickerCode: tickerCode,
		Timestamp:  time.Now().UTC(),
		Price:      resp.Price,
		Volume:     resp.Volume,
		ChangePct:  resp.ChangePct,
	}, nil
}

type newsResponse struct {
	Items []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Source      string `json:"source"`
		PublishedAt string `json:"publishedAt"`
	} `json:"items"`
}

// FetchNews retrieves news items for a ticker published since the given
// time.
func (c *HTTPClient) FetchNews(ctx context.Context, tickerCode string, since time.Time) ([]domain.NewsItem, error) {
	reqURL := fmt.Sprintf("%s/news/%s?since=%s", c.baseURL, tickerCode, since.Format(time.RFC3339))

	body, err := c.do(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp newsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseErr("news", err)
	}

	out := make([]domain.NewsItem, 0, len(resp.Items))
	for _, item := range resp.Items {
		publishedAt, _ := time.Parse(time.RFC3339, item.PublishedAt)
		out = append(out, domain.NewsItem{
			TickerCode:  tickerCode,
			Title:       item.Title,
			URL:         item.URL,
			Source:      item.Source,
			PublishedAt: publishedAt,
		})
	}
	return out, nil
}

type fundamentalsResponse struct {
	MarketCap     int64   `json:"marketCap"`
	PER           float64 `json:"per"`
	PBR           float64 `json:"pbr"`
	EPS           float64 `json:"eps"`
	BPS           float64 `json:"bps"`
	DividendYield float64 `json:"dividendYield"`
	ROE           float64 `json:"roe"`

	NAV           float64 `json:"nav"`
	AUM           int64   `json:"aum"`
	ExpenseRatio  float64 `json:"expenseRatio"`
	TrackingIndex string  `json:"trackingIndex"`
	Holdings      []struct {
		Code   string  `json:"code"`
		Name   string  `json:"name"`
		Weight float64 `json:"weight"`
	} `json:"holdings"`
}

// FetchFundamentals retrieves valuation metrics for a stock, or
// descriptive metrics and the holdings basket for an ETF.
func (c *HTTPClient) FetchFundamentals(ctx context.Context, tickerCode string, isETF bool) (*Snapshot, error) {
	reqURL := fmt.Sprintf("%s/fundamentals/%s", c.baseURL, tickerCode)

	body, err := c.do(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp fundamentalsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseErr("fundamentals", err)
	}

	if isETF {
		holdings := make([]domain.EtfHolding, 0, len(resp.Holdings))
		for _, h := range resp.Holdings {
			holdings = append(holdings, domain.EtfHolding{
				EtfCode:     tickerCode,
				HoldingCode: h.Code,
				HoldingName: h.Name,
				WeightPct:   h.Weight,
			})
		}
		return &Snapshot{
			EtfFund: &domain.EtfFundamentals{
				TickerCode:    tickerCode,
				NAV:           resp.NAV,
				AUM:           resp.AUM,
				ExpenseRatio:  resp.ExpenseRatio,
				TrackingIndex: resp.TrackingIndex,
			},
			EtfHoldings: holdings,
		}, nil
	}

	return &Snapshot{
		StockFund: &domain.StockFundamentals{
			TickerCode:    tickerCode,
			MarketCap:     resp.MarketCap,
			PER:           resp.PER,
			PBR:           resp.PBR,
			EPS:           resp.EPS,
			BPS:           resp.BPS,
			DividendYield: resp.DividendYield,
			ROE:           resp.ROE,
		},
	}, nil
}

func parseErr(kind string, err error) error {
	return apperr.UpstreamUnavailable(fmt.Sprintf("%s_parse_failed", kind), err)
}
