package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

func TestFetchDaily_ParsesSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"date":"2026-07-29","open":70500,"high":72000,"low":70000,"close":71910,"volume":1100000,"tradingValue":79000000000,"individualNet":-1200000000,"foreignNet":900000000,"institutionNet":300000000}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{BaseURL: srv.URL, RequestsPerSecond: 100, MaxRetries: 1}, zerolog.Nop())
	snap, err := c.FetchDaily(context.Background(), "005930", "2026-07-29")
	require.NoError(t, err)
	require.NotNil(t, snap.Bar)
	assert.Equal(t, 71910.0, snap.Bar.Close)
	assert.Equal(t, int64(-1200000000), snap.Flow.IndividualNet)
}

func TestFetchDaily_PermanentErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{BaseURL: srv.URL, RequestsPerSecond: 100, MaxRetries: 3, RetryBaseDelay: time.Millisecond}, zerolog.Nop())
	_, err := c.FetchDaily(context.Background(), "005930", "2026-07-29")
	require.Error(t, err)

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUpstreamUnavailable, appErr.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a permanent 4xx must not be retried")
}

func TestFetchDaily_TransientErrorRetriedThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"date":"2026-07-29","close":71910}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{BaseURL: srv.URL, RequestsPerSecond: 100, MaxRetries: 3, RetryBaseDelay: time.Millisecond}, zerolog.Nop())
	snap, err := c.FetchDaily(context.Background(), "005930", "2026-07-29")
	require.NoError(t, err)
	assert.Equal(t, 71910.0, snap.Bar.Close)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchDaily_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{BaseURL: srv.URL, RequestsPerSecond: 100, MaxRetries: 2, RetryBaseDelay: time.Millisecond}, zerolog.Nop())
	_, err := c.FetchDaily(context.Background(), "005930", "2026-07-29")
	require.Error(t, err)

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUpstreamUnavailable, appErr.Kind)
}

func TestFixtureClient_ReturnsConfiguredSnapshot(t *testing.T) {
	f := NewFixtureClient()
	f.Daily[dailyKey("005930", "2026-07-29")] = &Snapshot{Bar: &domain.DailyBar{TickerCode: "005930", Date: "2026-07-29", Close: 71910}}

	snap, err := f.FetchDaily(context.Background(), "005930", "2026-07-29")
	require.NoError(t, err)
	assert.Equal(t, 71910.0, snap.Bar.Close)
	assert.Len(t, f.Calls, 1)
}
