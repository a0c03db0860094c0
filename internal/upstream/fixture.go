package upstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/kr-market-feed/internal/domain"
)

// FixtureClient is a Client backed by canned responses, for use in tests
// that exercise the Collector without hitting the network.
type FixtureClient struct {
	mu sync.Mutex

	Daily         map[string]*Snapshot // key: tickerCode|date
	Intraday      map[string]*domain.IntradayTick
	News          map[string][]domain.NewsItem
	Fundamentals  map[string]*Snapshot

	FailDaily        map[string]error
	FailIntraday     map[string]error
	FailNews         map[string]error
	FailFundamentals map[string]error

	Calls []string
}

// NewFixtureClient creates an empty FixtureClient.
func NewFixtureClient() *FixtureClient {
	return &FixtureClient{
		Daily:        make(map[string]*Snapshot),
		Intraday:     make(map[string]*domain.IntradayTick),
		News:         make(map[string][]domain.NewsItem),
		Fundamentals: make(map[string]*Snapshot),
	}
}

func dailyKey(tickerCode, date string) string {
	return tickerCode + "|" + date
}

func (f *FixtureClient) FetchDaily(ctx context.Context, tickerCode, date string) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("FetchDaily(%s,%s)", tickerCode, date))

	if err, ok := f.FailDaily[dailyKey(tickerCode, date)]; ok {
		return nil, err
	}
	snap, ok := f.Daily[dailyKey(tickerCode, date)]
	if !ok {
		return nil, nil
	}
	return snap, nil
}

func (f *FixtureClient) FetchIntraday(ctx context.Context, tickerCode string) (*domain.IntradayTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("FetchIntraday(%s)", tickerCode))

	if err, ok := f.FailIntraday[tickerCode]; ok {
		return nil, err
	}
	tick, ok := f.Intraday[tickerCode]
	if !ok {
		return nil, nil
	}
	cp := *tick
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	return &cp, nil
}

func (f *FixtureClient) FetchNews(ctx context.Context, tickerCode string, since time.Time) ([]domain.NewsItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("FetchNews(%s)", tickerCode))

	if err, ok := f.FailNews[tickerCode]; ok {
		return nil, err
	}
	items := f.News[tickerCode]
	out := make([]domain.NewsItem, 0, len(items))
	for _, item := range items {
		if item.PublishedAt.After(since) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *FixtureClient) FetchFundamentals(ctx context.Context, tickerCode string, isETF bool) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("FetchFundamentals(%s)", tickerCode))

	if err, ok := f.FailFundamentals[tickerCode]; ok {
		return nil, err
	}
	snap, ok := f.Fundamentals[tickerCode]
	if !ok {
		return nil, nil
	}
	return snap, nil
}
