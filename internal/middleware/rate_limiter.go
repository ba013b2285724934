package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/apierror"
	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ── Fixed-window rate limiter ─────────────────────────────────────────────────
// Keyed by device (JWT terminal id) when authenticated, else by client IP.

type rateEntry struct {
	count     int
	windowEnd time.Time
}

type rateLimiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	entries map[string]*rateEntry
	now     func() time.Time
}

const purgeInterval = 5 * time.Minute

// RateLimiter allows limit requests per window per caller. A background
// goroutine purges expired entries so callers that never return do not
// accumulate.
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	rl := &rateLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*rateEntry),
		now:     time.Now,
	}
	go rl.purgeLoop()
	return rl.handle
}

func (rl *rateLimiter) handle(c *gin.Context) {
	key := c.ClientIP()
	if claims := GetClaims(c); claims != nil && claims.TerminalID != "" {
		key = "terminal:" + claims.TerminalID
	}

	allowed, windowEnd := rl.allow(key)
	if !allowed {
		c.Header("Retry-After", windowEnd.UTC().Format(http.TimeFormat))
		c.AbortWithStatusJSON(http.StatusTooManyRequests,
			apierror.New(dto.CodeRateLimited, "too many requests, retry shortly"))
		return
	}
	c.Next()
}

func (rl *rateLimiter) allow(key string) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[key]
	if !ok || now.After(e.windowEnd) {
		e = &rateEntry{windowEnd: now.Add(rl.window)}
		rl.entries[key] = e
	}
	e.count++
	return e.count <= rl.limit, e.windowEnd
}

func (rl *rateLimiter) purgeLoop() {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for range ticker.C {
		rl.purge()
	}
}

func (rl *rateLimiter) purge() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	purged := 0
	for key, e := range rl.entries {
		if now.After(e.windowEnd) {
			delete(rl.entries, key)
			purged++
		}
	}
	if purged > 0 {
		log.Debug().
			Int("purged", purged).
			Int("remaining", len(rl.entries)).
			Msg("rate limiter entries purged")
	}
}
