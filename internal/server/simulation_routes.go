package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/kr-market-feed/internal/analytics"
	"github.com/aristath/kr-market-feed/internal/apperr"
)

func (s *Server) mountSimulationRoutes(r chi.Router) {
	r.Route("/simulation", func(r chi.Router) {
		r.Post("/lump-sum", s.handleSimulateLumpSum)
		r.Post("/dca", s.handleSimulateDCA)
		r.Post("/portfolio", s.handleSimulatePortfolio)
	})
}

type lumpSumRequest struct {
	Ticker  string  `json:"ticker"`
	BuyDate string  `json:"buy_date"`
	Amount  float64 `json:"amount"`
}

func (s *Server) handleSimulateLumpSum(w http.ResponseWriter, r *http.Request) {
	var req lumpSumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	result, err := s.analytics.LumpSum(r.Context(), req.Ticker, req.BuyDate, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type dcaRequest struct {
	Ticker        string  `json:"ticker"`
	MonthlyAmount float64 `json:"monthly_amount"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	BuyDay        int     `json:"buy_day"`
}

func (s *Server) handleSimulateDCA(w http.ResponseWriter, r *http.Request) {
	var req dcaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	result, err := s.analytics.DCA(r.Context(), req.Ticker, req.MonthlyAmount, req.StartDate, req.EndDate, req.BuyDay)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type portfolioRequest struct {
	Holdings  []analytics.PortfolioHolding `json:"holdings"`
	Amount    float64                      `json:"amount"`
	StartDate string                       `json:"start_date"`
	EndDate   string                       `json:"end_date"`
}

func (s *Server) handleSimulatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	result, err := s.analytics.Portfolio(r.Context(), req.Holdings, req.Amount, req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
