package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/kr-market-feed/internal/collector"
)

func (s *Server) mountDataRoutes(r chi.Router) {
	r.Route("/data", func(r chi.Router) {
		r.With(s.requireAPIKey).Post("/collect-all", s.handleCollectAll)
		r.With(s.requireAPIKey).Post("/backfill", s.handleBackfill)
		r.Get("/status", s.handleDataStatus)
		r.Get("/scheduler-status", s.handleSchedulerStatus)
		r.Get("/stats", s.handleDataStats)
		r.Get("/cache/stats", s.handleCacheStats)
		r.With(s.requireAPIKey).Delete("/cache/clear", s.handleCacheClear)
		r.With(s.requireAPIKey).Delete("/reset", s.handleDataReset)
		r.With(s.requireAPIKey).Post("/collect-fundamentals", s.handleCollectFundamentalsBatch)
		r.Get("/collect-progress", s.handleCollectProgress)
	})
}

func (s *Server) handleCollectAll(w http.ResponseWriter, r *http.Request) {
	days, err := queryDays(r, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.collector.CollectAll(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	days, err := queryDays(r, 365)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.collector.CollectAll(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDataStatus(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.store.ListTickers(r.Context(), "")
	if err != nil {
		writeError(w, err)
		return
	}

	type tickerState struct {
		TickerCode string      `json:"tickerCode"`
		Bars       interface{} `json:"bars,omitempty"`
		Flows      interface{} `json:"flows,omitempty"`
		News       interface{} `json:"news,omitempty"`
	}

	out := make([]tickerState, 0, len(tickers))
	for _, t := range tickers {
		bars, _ := s.store.GetCollectionState(r.Context(), t.Code, "bars")
		flows, _ := s.store.GetCollectionState(r.Context(), t.Code, "flows")
		news, _ := s.store.GetCollectionState(r.Context(), t.Code, "news")
		out = append(out, tickerState{TickerCode: t.Code, Bars: bars, Flows: flows, News: news})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":      s.scheduler.IsCollecting(),
		"isCollecting": s.scheduler.IsCollecting(),
		"jobs":         s.scheduler.State(),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleDataReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetMarketData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleCollectFundamentalsBatch(w http.ResponseWriter, r *http.Request) {
	result, err := s.collector.CollectFundamentals(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCollectProgress(w http.ResponseWriter, r *http.Request) {
	snap := s.collector.Registry().Snapshot(collector.JobCollectAll)
	writeJSON(w, http.StatusOK, snap)
}
