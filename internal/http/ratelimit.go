package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles the auth endpoints per client IP so a stalled
// or hostile client cannot hammer the identity provider through us.
type rateLimiter struct {
	perSecond rate.Limit
	burst     int

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func newRateLimiter(perMinute, burst int) *rateLimiter {
	return &rateLimiter{
		perSecond: rate.Limit(float64(perMinute) / 60.0),
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) > 1024 {
			rl.prune(now)
		}
		client = &clientLimiter{limiter: rate.NewLimiter(rl.perSecond, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen = now
	return client.limiter.Allow()
}

// prune drops entries idle long enough to have fully refilled anyway.
// Caller holds the lock.
func (rl *rateLimiter) prune(now time.Time) {
	for key, client := range rl.clients {
		if now.Sub(client.lastSeen) > 10*time.Minute {
			delete(rl.clients, key)
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if key == "" {
			key = r.RemoteAddr
		}
		if !rl.allow(key) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}
