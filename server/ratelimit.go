package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiters keeps one token bucket per client address. Entries idle
// for longer than staleAfter are pruned on access.
type clientLimiters struct {
	mu         sync.Mutex
	clients    map[string]*clientLimiter
	limit      rate.Limit
	burst      int
	staleAfter time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters() *clientLimiters {
	return &clientLimiters{
		clients:    make(map[string]*clientLimiter),
		limit:      rate.Limit(2), // 120 req/min per client
		burst:      30,
		staleAfter: 5 * time.Minute,
	}
}

func (cl *clientLimiters) allow(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	for key, c := range cl.clients {
		if now.Sub(c.lastSeen) > cl.staleAfter {
			delete(cl.clients, key)
		}
	}

	c, ok := cl.clients[host]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[host] = c
	}
	c.lastSeen = now
	return c.limiter.Allow()
}

func rateLimitMiddleware(cl *clientLimiters) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cl.allow(r.RemoteAddr) {
				writeJSON(w, http.StatusTooManyRequests, errBody("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
