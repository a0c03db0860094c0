// Package domain holds the entity types shared across the store, collector,
// analytics, screener and API layers.
package domain

import "time"

// Ticker identifies a tradable instrument on the Korean market. The
// registered-watchlist-only fields (PurchaseDate..RelevanceKeywords) are
// user-supplied settings, not upstream data; a Ticker with none of them
// set is still a valid catalog member.
type Ticker struct {
	Code                string    `json:"code"` // 6-digit KRX code, e.g. "005930"
	Name                string    `json:"name"`
	Market              string    `json:"market"` // KOSPI, KOSDAQ
	Type                string    `json:"type"`   // stock, etf
	Sector              string    `json:"sector,omitempty"`
	Theme               string    `json:"theme,omitempty"`
	LaunchDate          string    `json:"launchDate,omitempty"`
	ExpenseRatio        float64   `json:"expenseRatio,omitempty"`
	IsActive            bool      `json:"isActive"`
	AddedAt             time.Time `json:"addedAt"`
	PurchaseDate        string    `json:"purchaseDate,omitempty"`
	PurchasePrice       float64   `json:"purchasePrice,omitempty"`
	Quantity            float64   `json:"quantity,omitempty"`
	SearchKeyword       string    `json:"searchKeyword,omitempty"`
	RelevanceKeywords   []string  `json:"relevanceKeywords,omitempty"`
	SortOrder           int       `json:"sortOrder"`
}

// DailyBar is a single end-of-day OHLCV record plus trading-value and
// day-over-day change derived at write time.
type DailyBar struct {
	TickerCode      string    `json:"tickerCode"`
	Date            string    `json:"date"` // YYYY-MM-DD, KST trading date
	Open            float64   `json:"open"`
	High            float64   `json:"high"`
	Low             float64   `json:"low"`
	Close           float64   `json:"close"`
	Volume          int64     `json:"volume"`
	TradingValue    int64     `json:"tradingValue"`
	DailyChangePct  float64   `json:"dailyChangePct"`
	CollectedAt     time.Time `json:"collectedAt"`
}

// TradingFlow captures net buy/sell amounts by investor class for a trading
// day (individual, foreign, institution).
type TradingFlow struct {
	TickerCode       string    `json:"tickerCode"`
	Date             string    `json:"date"`
	IndividualNet    int64     `json:"individualNet"`
	ForeignNet       int64     `json:"foreignNet"`
	InstitutionNet   int64     `json:"institutionNet"`
	CollectedAt      time.Time `json:"collectedAt"`
}

// IntradayTick is a single near-real-time quote snapshot.
type IntradayTick struct {
	TickerCode  string    `json:"tickerCode"`
	Timestamp   time.Time `json:"timestamp"`
	Price       float64   `json:"price"`
	Volume      int64     `json:"volume"`
	ChangePct   float64   `json:"changePct"`
}

// NewsItem is a single piece of news attached to a ticker, deduplicated on
// URL.
type NewsItem struct {
	ID          int64     `json:"id"`
	TickerCode  string    `json:"tickerCode"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	CollectedAt time.Time `json:"collectedAt"`
}

// StockFundamentals holds valuation and profitability metrics for a stock.
type StockFundamentals struct {
	TickerCode   string    `json:"tickerCode"`
	MarketCap    int64     `json:"marketCap"`
	PER          float64   `json:"per"`
	PBR          float64   `json:"pbr"`
	EPS          float64   `json:"eps"`
	BPS          float64   `json:"bps"`
	DividendYield float64  `json:"dividendYield"`
	ROE          float64   `json:"roe"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// EtfFundamentals holds ETF-specific descriptive metrics.
type EtfFundamentals struct {
	TickerCode   string    `json:"tickerCode"`
	NAV          float64   `json:"nav"`
	AUM          int64     `json:"aum"`
	ExpenseRatio float64   `json:"expenseRatio"`
	TrackingIndex string   `json:"trackingIndex"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// EtfHolding is a single constituent of an ETF's holdings basket.
type EtfHolding struct {
	EtfCode      string  `json:"etfCode"`
	HoldingCode  string  `json:"holdingCode"`
	HoldingName  string  `json:"holdingName"`
	WeightPct    float64 `json:"weightPct"`
}

// CollectionState tracks how far ingestion has progressed for a given
// ticker and data kind, driving gap-healing on the next collection run.
type CollectionState struct {
	TickerCode     string    `json:"tickerCode"`
	DataKind       string    `json:"dataKind"` // bars, flows, intraday, news, fundamentals
	LastPriceDate  string    `json:"lastPriceDate,omitempty"`
	LastSuccessAt  time.Time `json:"lastSuccessAt"`
	LastError      string    `json:"lastError,omitempty"`
	ConsecutiveErrors int    `json:"consecutiveErrors"`
}

// Alert type and direction tag values, per the rule semantics in the system
// design: buy/sell compare against a price target, price_change compares
// against an intraday percent move, trading_signal compares against the
// day's investor flow signs.
const (
	AlertTypeBuy            = "buy"
	AlertTypeSell           = "sell"
	AlertTypePriceChange    = "price_change"
	AlertTypeTradingSignal  = "trading_signal"

	DirectionAbove = "above"
	DirectionBelow = "below"
	DirectionBoth  = "both"
)

// AlertRule is a user-defined condition evaluated against incoming data.
// TargetPrice's meaning depends on AlertType: an absolute price for
// buy/sell, a percent for price_change, and unused (must be zero) for
// trading_signal.
type AlertRule struct {
	ID              string     `json:"id"`
	TickerCode      string     `json:"tickerCode"`
	AlertType       string     `json:"alertType"`
	Direction       string     `json:"direction"`
	TargetPrice     float64    `json:"targetPrice"`
	Memo            string     `json:"memo,omitempty"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
}

// AlertHistory records a single firing of an AlertRule.
type AlertHistory struct {
	ID         int64     `json:"id"`
	RuleID     string    `json:"ruleId"`
	TickerCode string    `json:"tickerCode"`
	AlertType  string    `json:"alertType"`
	Message    string    `json:"message"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

// CatalogEntry is the denormalized, screener-facing projection of a ticker
// joined with its latest bar, flow, and fundamentals. The snapshot columns
// (LastClose..CatalogUpdatedAt) are maintained by the catalog-collect
// background job, not by the daily bar/flow upsert path.
type CatalogEntry struct {
	TickerCode        string    `json:"tickerCode"`
	Name              string    `json:"name"`
	Market            string    `json:"market"`
	Type              string    `json:"type"`
	Sector            string    `json:"sector,omitempty"`
	ListedDate        string    `json:"listedDate,omitempty"`
	IsActive          bool      `json:"isActive"`
	LastClose         float64   `json:"lastClose"`
	DailyChangePct    float64   `json:"dailyChangePct"`
	Volume            int64     `json:"volume"`
	WeeklyReturnPct   float64   `json:"weeklyReturnPct"`
	ForeignNet        int64     `json:"foreignNet"`
	InstitutionNet    int64     `json:"institutionNet"`
	MarketCap         int64     `json:"marketCap,omitempty"`
	PER               float64   `json:"per,omitempty"`
	PBR               float64   `json:"pbr,omitempty"`
	DividendYield     float64   `json:"dividendYield,omitempty"`
	CatalogUpdatedAt  time.Time `json:"catalogUpdatedAt"`
}
