package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/kr-market-feed/internal/cache"
	"github.com/aristath/kr-market-feed/internal/collector"
	"github.com/aristath/kr-market-feed/internal/screener"
	"github.com/aristath/kr-market-feed/internal/store"
)

func (s *Server) mountScannerRoutes(r chi.Router) {
	r.Route("/scanner", func(r chi.Router) {
		r.Get("/", s.cached(cache.ClassSlow, s.handleScannerQuery))
		r.Get("/themes", s.cached(cache.ClassSlow, s.handleScannerThemes))
		r.Get("/recommendations", s.cached(cache.ClassSlow, s.handleScannerRecommendations))
		r.Get("/collect-progress", s.handleScannerCollectProgress)
		r.With(s.requireAPIKey).Post("/collect-data", s.handleScannerCollectData)
		r.With(s.requireAPIKey).Post("/cancel-collect", s.handleScannerCancelCollect)
	})
}

func (s *Server) handleScannerQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.CatalogFilter{
		Query:                  q.Get("q"),
		Type:                   q.Get("type"),
		Sector:                 q.Get("sector"),
		ForeignNetPositive:     queryBool(r, "foreign_net_positive", false),
		InstitutionNetPositive: queryBool(r, "institutional_net_positive", false),
		SortBy:                 q.Get("sort_by"),
		SortAsc:                queryBool(r, "sort_asc", false),
		Page:                   queryInt(r, "page", 1),
		PageSize:               queryInt(r, "page_size", 20),
	}
	if v := q.Get("min_weekly_return"); v != "" {
		min := queryFloat(r, "min_weekly_return", 0)
		f.MinWeeklyReturn = &min
	}
	if v := q.Get("max_weekly_return"); v != "" {
		max := queryFloat(r, "max_weekly_return", 0)
		f.MaxWeeklyReturn = &max
	}

	page, err := s.screener.Query(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleScannerThemes(w http.ResponseWriter, r *http.Request) {
	groups, err := s.screener.SectorGroups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleScannerRecommendations(w http.ResponseWriter, r *http.Request) {
	preset := screener.Preset(r.URL.Query().Get("preset"))
	if preset == "" {
		preset = screener.PresetWeeklyTop
	}
	out, err := s.screener.Recommend(r.Context(), preset)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := queryInt(r, "limit", len(out))
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScannerCollectProgress(w http.ResponseWriter, r *http.Request) {
	snap := s.collector.Registry().Snapshot(collector.JobScreeningCollect)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleScannerCollectData(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.screener.CollectCatalog(context.Background(), s.store, s.collector.Registry(), collector.JobScreeningCollect); err != nil {
			s.log.Warn().Err(err).Msg("scanner collect failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleScannerCancelCollect(w http.ResponseWriter, r *http.Request) {
	ok := s.collector.Registry().CancelByKind(collector.JobScreeningCollect)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}
