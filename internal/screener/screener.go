// Package screener implements the filtered/sorted/paged query layer over
// the catalog snapshot (C7), plus sector grouping and named recommendation
// presets. It never touches the upstream or the live tickers table; the
// catalog-collect background job (run through a collector.Registry) is the
// only path that keeps the snapshot fresh.
package screener

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
	"github.com/aristath/kr-market-feed/internal/store"
)

// Store is the subset of store.Store the screener reads from.
type Store interface {
	QueryCatalog(ctx context.Context, f store.CatalogFilter) ([]domain.CatalogEntry, int, error)
	AllCatalogEntries(ctx context.Context) ([]domain.CatalogEntry, error)
}

// Service composes catalog queries, sector rollups, and named presets.
type Service struct {
	store Store
	log   zerolog.Logger
}

// New builds a Service over the given Store.
func New(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// Page is one paginated screener result.
type Page struct {
	Entries    []domain.CatalogEntry `json:"entries"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"pageSize"`
}

const maxPageSize = 50

// Query runs a filtered, sorted, paginated screener query.
func (s *Service) Query(ctx context.Context, f store.CatalogFilter) (*Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > maxPageSize {
		f.PageSize = 20
	}
	entries, total, err := s.store.QueryCatalog(ctx, f)
	if err != nil {
		return nil, err
	}
	return &Page{Entries: entries, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// SectorSummary is a rollup of the catalog by sector.
type SectorSummary struct {
	Sector          string                 `json:"sector"`
	Count           int                    `json:"count"`
	AvgWeeklyReturn float64                `json:"avgWeeklyReturn"`
	Top3            []domain.CatalogEntry  `json:"top3"`
}

// SectorGroups returns count, average weekly return, and top-3 performers
// per sector across the full catalog.
func (s *Service) SectorGroups(ctx context.Context) ([]SectorSummary, error) {
	all, err := s.store.AllCatalogEntries(ctx)
	if err != nil {
		return nil, err
	}

	bySector := make(map[string][]domain.CatalogEntry)
	var order []string
	for _, e := range all {
		sector := e.Sector
		if sector == "" {
			sector = "기타"
		}
		if _, ok := bySector[sector]; !ok {
			order = append(order, sector)
		}
		bySector[sector] = append(bySector[sector], e)
	}
	sort.Strings(order)

	out := make([]SectorSummary, 0, len(order))
	for _, sector := range order {
		entries := bySector[sector]
		sum := 0.0
		for _, e := range entries {
			sum += e.WeeklyReturnPct
		}
		sorted := append([]domain.CatalogEntry(nil), entries...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].WeeklyReturnPct > sorted[j].WeeklyReturnPct })
		top := sorted
		if len(top) > 3 {
			top = top[:3]
		}
		out = append(out, SectorSummary{
			Sector:          sector,
			Count:           len(entries),
			AvgWeeklyReturn: sum / float64(len(entries)),
			Top3:            top,
		})
	}
	return out, nil
}

// Preset names a canned recommendation query.
type Preset string

const (
	PresetWeeklyTop              Preset = "weekly-top"
	PresetForeignBuySurge        Preset = "foreign-buy-surge"
	PresetInstitutionalBuySurge  Preset = "institutional-buy-surge"
	PresetVolumeTop               Preset = "volume-top"
	PresetWeeklyDrop              Preset = "weekly-drop"
)

const presetLimit = 20

// Recommend runs a named preset query over the full catalog.
func (s *Service) Recommend(ctx context.Context, preset Preset) ([]domain.CatalogEntry, error) {
	all, err := s.store.AllCatalogEntries(ctx)
	if err != nil {
		return nil, err
	}

	var filtered []domain.CatalogEntry
	var less func(i, j int) bool

	switch preset {
	case PresetWeeklyTop:
		filtered = all
		less = func(i, j int) bool { return filtered[i].WeeklyReturnPct > filtered[j].WeeklyReturnPct }
	case PresetWeeklyDrop:
		filtered = all
		less = func(i, j int) bool { return filtered[i].WeeklyReturnPct < filtered[j].WeeklyReturnPct }
	case PresetForeignBuySurge:
		for _, e := range all {
			if e.ForeignNet > 0 {
				filtered = append(filtered, e)
			}
		}
		less = func(i, j int) bool { return filtered[i].ForeignNet > filtered[j].ForeignNet }
	case PresetInstitutionalBuySurge:
		for _, e := range all {
			if e.InstitutionNet > 0 {
				filtered = append(filtered, e)
			}
		}
		less = func(i, j int) bool { return filtered[i].InstitutionNet > filtered[j].InstitutionNet }
	case PresetVolumeTop:
		filtered = all
		less = func(i, j int) bool { return filtered[i].Volume > filtered[j].Volume }
	default:
		return nil, apperr.Validation("unknown preset %q", preset)
	}

	sort.Slice(filtered, less)
	if len(filtered) > presetLimit {
		filtered = filtered[:presetLimit]
	}
	return filtered, nil
}
