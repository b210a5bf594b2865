package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/floroz/winbid/internal/ratelimit"
)

// Metrics is the subset of the collector the HTTP layer reports to
type Metrics interface {
	RateLimited(policy string)
	HTTPRequest(method, route string, status int, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RateLimited(string)                             {}
func (noopMetrics) HTTPRequest(string, string, int, time.Duration) {}

// RequestLogger logs incoming requests with timing
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// RequestMetrics records count and latency per matched route
func RequestMetrics(m Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// KeyFunc extracts the identity a policy is applied to
type KeyFunc func(c *gin.Context) string

func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimit applies a fixed-window policy before the handler runs.
// A failing limiter backend lets the request through.
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Policy, key KeyFunc, m Metrics, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := policy.Check(c.Request.Context(), limiter, key(c))
		if err != nil {
			logger.Error("Rate limiter unavailable, allowing request", "policy", policy.Name, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(policy.Max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			limitErr := &ratelimit.LimitError{Policy: policy.Name, ResetAt: res.ResetAt}
			c.Header("Retry-After", strconv.Itoa(limitErr.RetryAfter(time.Now())))
			m.RateLimited(policy.Name)
			logger.Warn("Rate limit exceeded", "policy", policy.Name, "client_ip", c.ClientIP())
			JSONError(c, http.StatusTooManyRequests, CodeRateLimited, "too many requests, please try again later",
				errorExtras(limitErr))
			return
		}
		c.Next()
	}
}

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Throttle is a per-IP token bucket applied to the whole API
type Throttle struct {
	rps   rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	limiters map[string]*ipLimiter
	now      func() time.Time
}

func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		limiters: make(map[string]*ipLimiter),
		now:      time.Now,
	}
}

func (t *Throttle) get(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.limiters[ip] = l
	}
	l.lastAccess = t.now()
	return l.limiter
}

func (t *Throttle) Middleware(m Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.get(c.ClientIP()).Allow() {
			retry := 1
			if t.rps > 0 {
				retry = int(1/float64(t.rps) + 0.999)
				if retry < 1 {
					retry = 1
				}
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			m.RateLimited("general")
			JSONError(c, http.StatusTooManyRequests, CodeRateLimited, "too many requests, please slow down", nil)
			return
		}
		c.Next()
	}
}

// Cleanup drops limiters idle for longer than the idle period and returns how many were removed
func (t *Throttle) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.idle)
	removed := 0
	for ip, l := range t.limiters {
		if l.lastAccess.Before(cutoff) {
			delete(t.limiters, ip)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup on every tick until ctx is cancelled
func (t *Throttle) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Cleanup()
		}
	}
}

func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}
