package server

import (
	"net/http"
	"strings"
	"time"
)

// dateRangeOrDays resolves a from/to date window from either explicit
// start_date/end_date query params, or a days=N window ending today.
func dateRangeOrDays(r *http.Request) (from, to string) {
	q := r.URL.Query()
	if start := q.Get("start_date"); start != "" {
		end := q.Get("end_date")
		if end == "" {
			end = time.Now().Format("2006-01-02")
		}
		return start, end
	}
	days := queryInt(r, "days", 30)
	end := time.Now()
	start := end.AddDate(0, 0, -days)
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
