package server

import (
	"net/http"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/kr-market-feed/internal/domain"
)

func (s *Server) mountNewsRoutes(r chi.Router) {
	r.Route("/news", func(r chi.Router) {
		r.Get("/{ticker}", s.handleGetNews)
		r.With(s.requireAPIKey).Post("/{ticker}/collect", s.handleCollectNews)
	})
}

type newsResponse struct {
	Items    []domain.NewsItem `json:"items"`
	Analysis *newsAnalysis     `json:"analysis,omitempty"`
}

type newsAnalysis struct {
	Count           int      `json:"count"`
	RiskKeywordHits []string `json:"riskKeywordHits,omitempty"`
}

var riskKeywords = []string{"소송", "적자", "하락", "경고", "lawsuit", "delisting", "상장폐지"}

func (s *Server) handleGetNews(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	limit := queryInt(r, "limit", 50)

	items, err := s.store.GetNews(r.Context(), code, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := newsResponse{Items: items}
	if queryBool(r, "analyze", false) {
		resp.Analysis = analyzeNews(items)
	}
	writeJSON(w, http.StatusOK, resp)
}

func analyzeNews(items []domain.NewsItem) *newsAnalysis {
	a := &newsAnalysis{Count: len(items)}
	seen := make(map[string]bool)
	for _, item := range items {
		for _, kw := range riskKeywords {
			if containsFold(item.Title, kw) && !seen[kw] {
				seen[kw] = true
				a.RiskKeywordHits = append(a.RiskKeywordHits, kw)
			}
		}
	}
	return a
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	if len(n) == 0 || len(n) > len(h) {
		return false
	}
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			if unicode.ToLower(h[i+j]) != unicode.ToLower(n[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (s *Server) handleCollectNews(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	if _, err := queryDays(r, 0); err != nil {
		writeError(w, err)
		return
	}
	added, err := s.collector.CollectTickerNews(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickerCode": code, "itemsAdded": added})
}
