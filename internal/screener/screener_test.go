package screener

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/kr-market-feed/internal/domain"
	"github.com/aristath/kr-market-feed/internal/store"
)

type fakeCatalogStore struct {
	entries []domain.CatalogEntry
}

func (f *fakeCatalogStore) QueryCatalog(_ context.Context, fl store.CatalogFilter) ([]domain.CatalogEntry, int, error) {
	return f.entries, len(f.entries), nil
}

func (f *fakeCatalogStore) AllCatalogEntries(_ context.Context) ([]domain.CatalogEntry, error) {
	return f.entries, nil
}

func TestSectorGroups_CountsAndTop3(t *testing.T) {
	fs := &fakeCatalogStore{entries: []domain.CatalogEntry{
		{TickerCode: "a", Sector: "반도체", WeeklyReturnPct: 10},
		{TickerCode: "b", Sector: "반도체", WeeklyReturnPct: 5},
		{TickerCode: "c", Sector: "반도체", WeeklyReturnPct: 20},
		{TickerCode: "d", Sector: "화학", WeeklyReturnPct: -3},
	}}
	svc := New(fs, zerolog.Nop())

	groups, err := svc.SectorGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	var semi SectorSummary
	for _, g := range groups {
		if g.Sector == "반도체" {
			semi = g
		}
	}
	assert.Equal(t, 3, semi.Count)
	assert.InDelta(t, 35.0/3.0, semi.AvgWeeklyReturn, 0.01)
	require.Len(t, semi.Top3, 3)
	assert.Equal(t, "c", semi.Top3[0].TickerCode)
}

func TestRecommend_ForeignBuySurgeFiltersAndSorts(t *testing.T) {
	fs := &fakeCatalogStore{entries: []domain.CatalogEntry{
		{TickerCode: "a", ForeignNet: 100},
		{TickerCode: "b", ForeignNet: -50},
		{TickerCode: "c", ForeignNet: 500},
	}}
	svc := New(fs, zerolog.Nop())

	out, err := svc.Recommend(context.Background(), PresetForeignBuySurge)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].TickerCode)
	assert.Equal(t, "a", out[1].TickerCode)
}

func TestRecommend_UnknownPresetRejected(t *testing.T) {
	fs := &fakeCatalogStore{}
	svc := New(fs, zerolog.Nop())

	_, err := svc.Recommend(context.Background(), Preset("bogus"))
	require.Error(t, err)
}

func TestQuery_DefaultsPaging(t *testing.T) {
	fs := &fakeCatalogStore{entries: []domain.CatalogEntry{{TickerCode: "a"}}}
	svc := New(fs, zerolog.Nop())

	page, err := svc.Query(context.Background(), store.CatalogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
}
