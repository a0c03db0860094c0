package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/collector"
	"github.com/aristath/kr-market-feed/internal/domain"
	"github.com/aristath/kr-market-feed/internal/store"
)

func (s *Server) mountSettingsRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Route("/stocks", func(r chi.Router) {
			r.Get("/", s.handleListWatchlist)
			r.With(s.requireAPIKey).Post("/", s.handleAddWatchlistStock)
			r.Get("/search", s.handleSearchCatalog)
			r.With(s.requireAPIKey).Post("/reorder", s.handleReorderStocks)
			r.Get("/{ticker}/validate", s.handleValidateTicker)
			r.With(s.requireAPIKey).Put("/{ticker}", s.handleUpdateWatchlistStock)
			r.With(s.requireAPIKey).Delete("/{ticker}", s.handleDeleteWatchlistStock)
		})

		r.With(s.requireAPIKey).Post("/ticker-catalog/collect", s.handleCatalogCollect)
		r.Get("/ticker-catalog/collect-progress", s.handleCatalogCollectProgress)

		r.Get("/api-keys", s.handleGetAPIKeys)
		r.With(s.requireAPIKey).Put("/api-keys", s.handlePutAPIKeys)
	})
}

// handleGetAPIKeys lists stored integration secrets with their values
// masked down to the last four characters.
func (s *Server) handleGetAPIKeys(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	masked := make(map[string]string, len(settings))
	for k, v := range settings {
		masked[k] = maskSecret(v)
	}
	writeJSON(w, http.StatusOK, masked)
}

func maskSecret(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

func (s *Server) handlePutAPIKeys(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	for k, v := range req {
		if k == "" {
			writeError(w, apperr.Validation("setting key must not be empty"))
			return
		}
		if err := s.store.SetSetting(r.Context(), k, v); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleListWatchlist(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.store.ListTickers(r.Context(), "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickers)
}

func (s *Server) handleAddWatchlistStock(w http.ResponseWriter, r *http.Request) {
	var t domain.Ticker
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if t.Code == "" || t.Name == "" {
		writeError(w, apperr.Validation("code and name are required"))
		return
	}
	t.IsActive = true
	if err := s.store.UpsertTicker(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateWatchlistStock(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	var t domain.Ticker
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	t.Code = code
	if err := s.store.UpsertTicker(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteWatchlistStock(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	if err := s.store.DeleteTicker(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleValidateTicker(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	snap, err := s.upstream.FetchDaily(r.Context(), code, "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickerCode": code, "found": snap != nil})
}

func (s *Server) handleSearchCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	typ := r.URL.Query().Get("type")
	page, err := s.screener.Query(r.Context(), catalogFilterFromSearch(q, typ))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page.Entries)
}

func catalogFilterFromSearch(q, typ string) store.CatalogFilter {
	return store.CatalogFilter{
		Query:    strings.TrimSpace(q),
		Type:     typ,
		Page:     1,
		PageSize: 20,
	}
}

type reorderRequest struct {
	Codes []string `json:"codes"`
}

func (s *Server) handleReorderStocks(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if err := s.store.ReorderTickers(r.Context(), req.Codes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

func (s *Server) handleCatalogCollect(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.screener.CollectCatalog(context.Background(), s.store, s.collector.Registry(), collector.JobCatalogCollect); err != nil {
			s.log.Warn().Err(err).Msg("catalog collect failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleCatalogCollectProgress(w http.ResponseWriter, r *http.Request) {
	snap := s.collector.Registry().Snapshot(collector.JobCatalogCollect)
	writeJSON(w, http.StatusOK, snap)
}
