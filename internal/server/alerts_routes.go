package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/kr-market-feed/internal/apperr"
	"github.com/aristath/kr-market-feed/internal/domain"
)

func (s *Server) mountAlertRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/{ticker}", s.handleListAlerts)
		r.With(s.requireAPIKey).Post("/", s.handleCreateAlert)
		r.With(s.requireAPIKey).Put("/{ruleID}", s.handleUpdateAlert)
		r.With(s.requireAPIKey).Delete("/{ruleID}", s.handleDeleteAlert)
		r.Post("/trigger", s.handleTriggerAlert)
		r.Get("/history/{ticker}", s.handleAlertHistory)
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	activeOnly := queryBool(r, "active_only", false)
	rules, err := s.alerts.List(r.Context(), code, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req domain.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	rule, err := s.alerts.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")
	var req domain.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	req.ID = id
	rule, err := s.alerts.Update(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")
	if err := s.alerts.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type triggerRequest struct {
	RuleID     string `json:"rule_id"`
	TickerCode string `json:"ticker"`
	AlertType  string `json:"alert_type"`
	Message    string `json:"message"`
}

func (s *Server) handleTriggerAlert(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	result, err := s.alerts.Trigger(r.Context(), req.RuleID, req.TickerCode, req.AlertType, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticker")
	limit := queryInt(r, "limit", 50)
	history, err := s.alerts.History(r.Context(), code, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
