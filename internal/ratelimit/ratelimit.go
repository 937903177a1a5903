// Package ratelimit throttles requests with one token bucket per caller.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/utils"

	"golang.org/x/time/rate"
)

// KeyLimiter keeps one token bucket per key.
type KeyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerMinute allows n requests per minute with a burst of n.
func PerMinute(n int) *KeyLimiter {
	if n <= 0 {
		n = 1
	}
	return &KeyLimiter{
		limiters: make(map[string]*entry),
		rate:     rate.Every(time.Minute / time.Duration(n)),
		burst:    n,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (l *KeyLimiter) Allow(key string) bool {
	return l.getLimiter(key).AllowN(l.now(), 1)
}

func (l *KeyLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.limiters) > 1024 {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.idle {
				delete(l.limiters, k)
			}
		}
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Middleware keys on the authenticated user, falling back to the client IP.
func (l *KeyLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := auth.UserID(r.Context())
		if key == "" {
			key = clientIP(r)
		}
		if !l.Allow(key) {
			w.Header().Set("Retry-After", "60")
			utils.WriteError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
