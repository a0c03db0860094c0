package upstream

import (
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiters hands out a token-bucket limiter per upstream host so a slow
// or rate-limiting host can't starve requests to others.
type hostLimiters struct {
	mu       sync.Mutex
	rate     rate.Limit
	limiters map[string]*rate.Limiter
}

func newHostLimiters(r rate.Limit) *hostLimiters {
	return &hostLimiters{rate: r, limiters: make(map[string]*rate.Limiter)}
}

func (h *hostLimiters) forHost(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		burst := int(h.rate)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(h.rate, burst)
		h.limiters[host] = l
	}
	return l
}
