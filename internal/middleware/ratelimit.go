package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uitrack/uitrack/internal/config"
	"github.com/uitrack/uitrack/internal/metrics"
)

// RateLimitMiddleware combines a process-local token bucket with an
// optional Redis-backed fixed-window budget per client IP. The token
// bucket protects this instance; the Redis window enforces a shared
// per-client budget across instances when a client is provided.
type RateLimitMiddleware struct {
	cfg     config.RateLimitConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	global  *rate.Limiter
	rdb     *redis.Client
}

// NewRateLimitMiddleware creates a new rate limiting middleware. rdb may
// be nil; the Redis window is then skipped.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:    cfg,
		logger: logger,
		global: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		rdb:    rdb,
	}
}

func (rl *RateLimitMiddleware) SetMetrics(m *metrics.Metrics) {
	rl.metrics = m
}

// Handler wraps an http.Handler with rate limiting.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.global.Allow() {
			rl.reject(w, r, "1")
			return
		}

		if rl.rdb != nil && rl.cfg.WindowBudget > 0 {
			ok, err := rl.checkWindowBudget(r)
			if err != nil {
				// Redis being down must not take ingestion with it.
				rl.logger.Warn("window budget check failed", zap.Error(err))
			} else if !ok {
				rl.reject(w, r, strconv.Itoa(int(rl.cfg.Window.Seconds())))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// checkWindowBudget counts this client's requests in the current fixed
// window via INCR and sets the window expiry on first use.
func (rl *RateLimitMiddleware) checkWindowBudget(r *http.Request) (bool, error) {
	key := fmt.Sprintf("uitrack:ratelimit:%s", ClientIP(r))
	ctx := r.Context()

	count, err := rl.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		if err := rl.rdb.Expire(ctx, key, rl.cfg.Window).Err(); err != nil {
			return true, err
		}
	}
	return count <= int64(rl.cfg.WindowBudget), nil
}

func (rl *RateLimitMiddleware) reject(w http.ResponseWriter, r *http.Request, retryAfter string) {
	rl.logger.Warn("rate limit exceeded",
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)
	if rl.metrics != nil {
		rl.metrics.RecordRateLimitHit(r.URL.Path, ClientIP(r))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", retryAfter)
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
