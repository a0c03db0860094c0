package screener

import (
	"context"
	"time"

	"github.com/aristath/kr-market-feed/internal/collector"
	"github.com/aristath/kr-market-feed/internal/domain"
)

// CatalogStore is the store surface the catalog-collect job reads from and
// writes to; a superset of Store that also reaches the per-ticker tables
// the snapshot is denormalized from.
type CatalogStore interface {
	Store
	ListTickers(ctx context.Context, market string) ([]domain.Ticker, error)
	GetBars(ctx context.Context, tickerCode, from, to string) ([]domain.DailyBar, error)
	GetLatestBar(ctx context.Context, tickerCode string) (*domain.DailyBar, error)
	GetLatestTradingFlow(ctx context.Context, tickerCode string) (*domain.TradingFlow, error)
	GetStockFundamentals(ctx context.Context, tickerCode string) (*domain.StockFundamentals, error)
	GetEtfFundamentals(ctx context.Context, tickerCode string) (*domain.EtfFundamentals, error)
	UpsertCatalogEntry(ctx context.Context, e domain.CatalogEntry) error
}

// CollectCatalog rebuilds the catalog_entries snapshot from the latest bar,
// flow, and fundamentals rows for every active ticker. It reports progress
// and honors cooperative cancellation through the same Registry/Progress
// machinery the Collector uses for collect-all, under the given job kind
// (catalog-collect for the settings refresh, screening-collect for the
// scanner's snapshot job).
func (s *Service) CollectCatalog(ctx context.Context, store CatalogStore, registry *collector.Registry, kind string) error {
	tickers, err := store.ListTickers(ctx, "")
	if err != nil {
		return err
	}

	progress := registry.Begin(kind, len(tickers))
	defer progress.Finish()

	for i, t := range tickers {
		if progress.CancelRequested() {
			progress.MarkCancelled()
			return nil
		}
		progress.Report(i+1, "snapshot", t.Code)

		entry, err := buildCatalogEntry(ctx, store, t)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", t.Code).Msg("catalog snapshot skipped")
			continue
		}
		if err := store.UpsertCatalogEntry(ctx, *entry); err != nil {
			s.log.Warn().Err(err).Str("ticker", t.Code).Msg("catalog upsert failed")
		}
	}
	return nil
}

func buildCatalogEntry(ctx context.Context, store CatalogStore, t domain.Ticker) (*domain.CatalogEntry, error) {
	latest, err := store.GetLatestBar(ctx, t.Code)
	if err != nil {
		return nil, err
	}
	entry := &domain.CatalogEntry{
		TickerCode: t.Code,
		Name:       t.Name,
		Market:     t.Market,
		Type:       t.Type,
		Sector:     t.Sector,
		ListedDate: t.LaunchDate,
		IsActive:   t.IsActive,
	}
	if latest == nil {
		return entry, nil
	}
	entry.LastClose = latest.Close
	entry.DailyChangePct = latest.DailyChangePct
	entry.Volume = latest.Volume

	weekAgo := time.Now().AddDate(0, 0, -7).Format("2006-01-02")
	window, err := store.GetBars(ctx, t.Code, weekAgo, latest.Date)
	if err == nil && len(window) > 1 {
		first := window[0].Close
		if first != 0 {
			entry.WeeklyReturnPct = (latest.Close/first - 1) * 100
		}
	}

	if flow, err := store.GetLatestTradingFlow(ctx, t.Code); err == nil && flow != nil {
		entry.ForeignNet = flow.ForeignNet
		entry.InstitutionNet = flow.InstitutionNet
	}

	if t.Type == "etf" {
		if f, err := store.GetEtfFundamentals(ctx, t.Code); err == nil && f != nil {
			// ETF fundamentals carry no PER/PBR/dividend yield; only AUM maps
			// onto the snapshot's market-cap-shaped column.
			entry.MarketCap = f.AUM
		}
	} else {
		if f, err := store.GetStockFundamentals(ctx, t.Code); err == nil && f != nil {
			entry.MarketCap = f.MarketCap
			entry.PER = f.PER
			entry.PBR = f.PBR
			entry.DividendYield = f.DividendYield
		}
	}

	return entry, nil
}
