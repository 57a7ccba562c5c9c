package middlewares

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Limiter decides whether one more hit for key fits the current window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ok bool, retryAfter time.Duration, err error)
}

// MemoryLimiter is a fixed-window Limiter local to one process.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	clients map[string]*clientBucket
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[key]
	if !ok || now.After(b.windowEnd) {
		l.clients[key] = &clientBucket{count: 1, windowEnd: now.Add(window)}
		return true, 0, nil
	}

	if b.count >= limit {
		return false, b.windowEnd.Sub(now), nil
	}
	b.count++
	return true, 0, nil
}

type RateLimit struct {
	Limiter Limiter
	Limit   int
	Window  time.Duration
	// Prefix namespaces keys when several limits share one Limiter.
	Prefix string
	Logger *slog.Logger
}

// Middleware fails open when the limiter itself errors.
func (rl RateLimit) Middleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	log := rl.Logger
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		if rl.Limiter == nil || rl.Limit <= 0 {
			c.Next()
			return
		}

		key := keyFn(c)
		if key == "" {
			key = clientIP(c)
		}

		ok, retryAfter, err := rl.Limiter.Allow(c.Request.Context(), "ratelimit:"+rl.Prefix+":"+key, rl.Limit, rl.Window)
		if err != nil {
			log.WarnContext(c.Request.Context(), "ratelimit.unavailable", "err", err)
			c.Next()
			return
		}
		if !ok {
			secs := int(retryAfter.Round(time.Second).Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":      "rate_limited",
					"message":   "Too many requests. Please try again shortly.",
					"requestId": c.GetString(CtxRequestID),
				},
			})
			return
		}

		c.Next()
	}
}

func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// KeyByUserOrIP needs RequireAuth earlier in the chain to key by user.
func KeyByUserOrIP(c *gin.Context) string {
	id, ok := UserIDFromContext(c)
	if ok && id != "" {
		return "user:" + id
	}
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)
	if err == nil && host != "" {
		return host
	}
	return ip
}
