package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aristath/kr-market-feed/internal/apperr"
)

// errorBody is the error envelope every non-2xx response uses, per the
// {detail: string|array} contract.
type errorBody struct {
	Detail string `json:"detail"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperr.As(err); ok {
		writeJSON(w, apperr.HTTPStatus(appErr.Kind), errorBody{Detail: appErr.Message, Reason: appErr.Reason})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
}

func apperrAuthRequired() error {
	return apperr.AuthRequired("missing or invalid X-API-Key")
}

// queryDays parses the days query param. An absent param yields def; an
// explicit non-positive or unparsable value is a validation error.
func queryDays(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, apperr.Validation("days must be a positive integer")
	}
	return n, nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
