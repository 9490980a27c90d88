package server

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// maxLimiters caps the per-client limiter table; past it the table is
// cleared rather than tracking last-access times.
const maxLimiters = 10000

// limiterTable hands out one token bucket per client IP.
type limiterTable struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newLimiterTable(rps float64, burst int) *limiterTable {
	if burst < 1 {
		burst = 1
	}
	return &limiterTable{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (t *limiterTable) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.limiters) > maxLimiters {
		t.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := t.limiters[key]
	if !ok {
		l = rate.NewLimiter(t.rate, t.burst)
		t.limiters[key] = l
	}
	return l.Allow()
}

// RateLimit returns middleware enforcing a per-client-IP request budget on
// the routes it wraps. Exhausted clients get 429 with a Retry-After hint.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	table := newLimiterTable(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				key = r.RemoteAddr
			}
			if !table.allow(key) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
