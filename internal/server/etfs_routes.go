package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/cache"
	"github.com/aristath/kr-market-feed/internal/domain"
)

func (s *Server) mountEtfRoutes(r chi.Router) {
	r.Route("/etfs", func(r chi.Router) {
		r.Get("/", s.handleListTickers)
		r.Get("/compare", s.handleCompare)
		r.Post("/ai-prompt-multi", s.handleAIPromptMulti)
		r.Post("/batch-summary", s.handleBatchSummary)

		r.Get("/{ticker}", s.handleGetTicker)
		r.Get("/{ticker}/prices", s.cached(cache.ClassNormal, s.handlePrices))
		r.Get("/{ticker}/trading-flow", s.cached(cache.ClassNormal, s.handleTradingFlow))
		r.Get("/{ticker}/metrics", s.cached(cache.ClassNormal, s.handleMetrics))
		r.Get("/{ticker}/insights", s.cached(cache.ClassNormal, s.handleInsights))
		r.Get("/{ticker}/intraday", s.cached(cache.ClassFast, s.handleIntraday))
		r.Get("/{ticker}/ai-prompt", s.handleAIPrompt)
		r.Get("/{ticker}/fundamentals", s.cached(cache.ClassSlow, s.handleFundamentals))

		r.With(s.requireAPIKey).Post("/{ticker}/collect", s.handleCollectTicker)
		r.With(s.requireAPIKey).Post("/{ticker}/collect-trading-flow", s.handleCollectTradingFlow)
		r.With(s.requireAPIKey).Post("/{ticker}/collect-intraday", s.handleCollectIntraday)
		r.With(s.requireAPIKey).Post("/{ticker}/collect-fundamentals", s.handleCollectFundamentals)
	})
}

func (s *Server) handleListTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.store.ListTickers(r.Context(), r.URL.Query().Get("market"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickers)
}

func (s *Server) handleGetTicker(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	t, err := s.store.GetTicker(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	from, to := dateRangeOrDays(r)

	// auto_collect heals a detected local gap before serving the window.
	if queryBool(r, "auto_collect", false) {
		if _, err := s.collector.GapHeal(r.Context(), code); err != nil {
			s.log.Warn().Err(err).Str("ticker", code).Msg("gap heal failed, serving stored bars")
		}
	}

	bars, err := s.store.GetBars(r.Context(), code, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bars)
}

func (s *Server) handleTradingFlow(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	from, to := dateRangeOrDays(r)
	flows, err := s.store.GetTradingFlows(r.Context(), code, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	from, to := dateRangeOrDays(r)
	m, err := s.analytics.Metrics(r.Context(), code, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	asOf := r.URL.Query().Get("period")
	if asOf == "" {
		asOf = time.Now().Format("2006-01-02")
	}
	ins, err := s.analytics.Insights(r.Context(), code, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ins)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	tickers := splitCSV(r.URL.Query().Get("tickers"))
	from := r.URL.Query().Get("start_date")
	to := r.URL.Query().Get("end_date")
	cmp, err := s.analytics.Compare(r.Context(), tickers, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleFundamentals(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	t, err := s.store.GetTicker(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	if t.Type == "etf" {
		f, err := s.store.GetEtfFundamentals(r.Context(), code)
		if err != nil {
			writeError(w, err)
			return
		}
		holdings, _ := s.store.GetEtfHoldings(r.Context(), code)
		writeJSON(w, http.StatusOK, map[string]interface{}{"fundamentals": f, "holdings": holdings})
		return
	}
	f, err := s.store.GetStockFundamentals(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleIntraday(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")

	since := time.Now().Add(-24 * time.Hour)
	if target := r.URL.Query().Get("target_date"); target != "" {
		if day, err := time.Parse("2006-01-02", target); err == nil {
			since = day
		}
	}

	if queryBool(r, "auto_collect", false) || queryBool(r, "force_refresh", false) {
		if _, err := s.collector.CollectTickerIntraday(r.Context(), code); err != nil {
			s.log.Warn().Err(err).Str("ticker", code).Msg("intraday refresh failed, serving stored ticks")
		}
	}

	ticks, err := s.store.GetIntradayTicks(r.Context(), code, since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticks)
}

func (s *Server) handleCollectTicker(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	days, err := queryDays(r, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.collector.CollectTicker(r.Context(), code, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCollectTradingFlow(w http.ResponseWriter, r *http.Request) {
	// Flows are collected jointly with prices per ticker (a single upstream
	// round trip returns both); this endpoint is an alias over the same
	// smart-collection path for callers that only care about flows.
	s.handleCollectTicker(w, r)
}

func (s *Server) handleCollectIntraday(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	tick, err := s.collector.CollectTickerIntraday(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickerCode": code, "tick": tick, "collected": tick != nil})
}

func (s *Server) handleCollectFundamentals(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	if err := s.collector.CollectTickerFundamentals(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickerCode": code, "refreshed": true})
}

type batchSummaryRequest struct {
	Tickers   []string `json:"tickers"`
	PriceDays int      `json:"price_days"`
	NewsLimit int      `json:"news_limit"`
}

type batchSummaryCard struct {
	TickerCode string           `json:"tickerCode"`
	Latest     *domain.DailyBar `json:"latest,omitempty"`
	NewsCount  int              `json:"newsCount"`
}

func (s *Server) handleBatchSummary(w http.ResponseWriter, r *http.Request) {
	var req batchSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if len(req.Tickers) == 0 {
		writeError(w, apperr.Validation("tickers is required"))
		return
	}
	if req.NewsLimit <= 0 {
		req.NewsLimit = 5
	}

	cards := make([]batchSummaryCard, 0, len(req.Tickers))
	for _, code := range req.Tickers {
		latest, _ := s.store.GetLatestBar(r.Context(), code)
		news, _ := s.store.GetNews(r.Context(), code, req.NewsLimit)
		cards = append(cards, batchSummaryCard{TickerCode: code, Latest: latest, NewsCount: len(news)})
	}
	writeJSON(w, http.StatusOK, cards)
}

// handleAIPrompt renders a retrieval-augmented-generation prompt string
// summarizing a single ticker's latest metrics and news, for clients that
// forward it to an LLM. The formatting itself carries no business logic.
func (s *Server) handleAIPrompt(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	prompt, err := s.buildAIPrompt(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": prompt})
}

type aiPromptMultiRequest struct {
	Tickers []string `json:"tickers"`
}

func (s *Server) handleAIPromptMulti(w http.ResponseWriter, r *http.Request) {
	var req aiPromptMultiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	prompts := make(map[string]string, len(req.Tickers))
	for _, code := range req.Tickers {
		p, err := s.buildAIPrompt(r.Context(), code)
		if err != nil {
			continue
		}
		prompts[code] = p
	}
	writeJSON(w, http.StatusOK, prompts)
}

func (s *Server) buildAIPrompt(ctx context.Context, code string) (string, error) {
	t, err := s.store.GetTicker(ctx, code)
	if err != nil {
		return "", err
	}
	latest, err := s.store.GetLatestBar(ctx, code)
	if err != nil {
		return "", err
	}
	news, _ := s.store.GetNews(ctx, code, 5)

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %s)\n", t.Name, t.Code, t.Market)
	if latest != nil {
		fmt.Fprintf(&b, "Latest close: %.2f (%+.2f%% on %s)\n", latest.Close, latest.DailyChangePct, latest.Date)
	}
	if len(news) > 0 {
		b.WriteString("Recent news:\n")
		for _, n := range news {
			fmt.Fprintf(&b, "- %s\n", n.Title)
		}
	}
	return b.String(), nil
}
