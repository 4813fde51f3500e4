package httpapi

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Leganyst/appointment-booking/internal/logger"
)

// Counter считает запросы по ключу в фиксированном окне.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "booking:ratelimit"}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	full := c.prefix + ":" + key
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	// NX: окно считается от первого запроса, а не продлевается каждым.
	pipe.ExpireNX(ctx, full, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

type RateLimiter struct {
	counter  Counter
	requests int
	window   time.Duration
}

func NewRateLimiter(counter Counter, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{counter: counter, requests: requests, window: window}
}

// Middleware ограничивает запросы по IP. Без счётчика или при сбое Redis пропускает.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl == nil || rl.counter == nil || rl.requests <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		key := hashKey("ip:" + clientIP(r))
		n, err := rl.counter.Incr(ctx, key, rl.window)
		if err != nil {
			logger.WarnContext(r.Context(), "rate limit check failed, allowing", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if n > int64(rl.requests) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error: "too many requests, try again later",
				Code:  codeRateLimited,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum[:16])
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i != -1 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
