// Package ratelimit throttles requests per client IP with a token bucket.
package ratelimit

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/expensetrack/expense-api/pkg/errors"
	"github.com/expensetrack/expense-api/pkg/response"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands each client IP its own token bucket sized so that at most
// max requests pass per window. Buckets for IPs idle longer than a window
// are pruned so the table does not grow without bound.
type Limiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration

	mu        sync.Mutex
	clients   map[string]*client
	lastPrune time.Time
}

// New builds a limiter allowing max requests per window for each client IP.
func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:     rate.Limit(float64(max) / window.Seconds()),
		burst:     max,
		window:    window,
		clients:   make(map[string]*client),
		lastPrune: time.Now(),
	}
}

// Middleware rejects requests over the per-IP budget with 429.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP(), time.Now()) {
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (l *Limiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > l.window {
		l.prune(now)
		l.lastPrune = now
	}

	cl, ok := l.clients[key]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now

	return cl.limiter.Allow()
}

// prune drops buckets idle long enough to have refilled completely.
func (l *Limiter) prune(now time.Time) {
	for key, cl := range l.clients {
		if now.Sub(cl.lastSeen) > l.window {
			delete(l.clients, key)
		}
	}
}
