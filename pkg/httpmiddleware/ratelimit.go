package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max requests per Window and key.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests, e.g. long-lived event streams and health checks.
	Skip func(*http.Request) bool
}

// windowCounter holds the request counts of the current and previous fixed
// windows for one key.
type windowCounter struct {
	prev      float64
	prevStart time.Time
	curr      float64
	currStart time.Time
}

type limiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	counters map[string]*windowCounter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &limiter{cfg: cfg, counters: make(map[string]*windowCounter)}
}

// take records a request for key. The previous window is weighted by the
// fraction of it still covered by the sliding window.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	if !found {
		c = &windowCounter{currStart: now}
		l.counters[key] = c
	}
	if now.Sub(c.currStart) >= l.cfg.Window {
		c.prev, c.prevStart = c.curr, c.currStart
		c.curr, c.currStart = 0, now.Truncate(l.cfg.Window)
		if now.Sub(c.prevStart) >= 2*l.cfg.Window {
			c.prev = 0
		}
	}

	overlap := math.Max(0, 1-now.Sub(c.currStart).Seconds()/l.cfg.Window.Seconds())
	used := c.prev*overlap + c.curr
	reset = c.currStart.Add(l.cfg.Window)
	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	c.curr++
	return max(0, int(float64(l.cfg.Max)-used-1)), reset, true
}

// evict drops counters idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.currStart) >= 2*l.cfg.Window {
			delete(l.counters, key)
		}
	}
}

func (l *limiter) evictLoop(ctx context.Context) {
	t := time.NewTicker(2 * l.cfg.Window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.evict(now)
		}
	}
}

// RateLimit limits requests per client key. Rejected requests get 429 with
// Retry-After; all limited responses carry X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a background eviction loop that
// stops with ctx.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.evictLoop(ctx)
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.cfg.Skip != nil && l.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		remaining, reset, ok := l.take(l.cfg.KeyFunc(r), time.Now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			wait := max(0, time.Until(reset))
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
