package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按客户端 IP 的令牌桶限流
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func NewRateLimiter(cfg *koanf.Koanf) *RateLimiter {
	return NewRateLimiterWithLimit(cfg.Float64("api.rate-limit"), cfg.Int("api.burst"))
}

func NewRateLimiterWithLimit(perSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[key]
	if !ok {
		l.cleanup(now)
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// cleanup 清理长时间没有请求的客户端
func (l *RateLimiter) cleanup(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > limiterIdleTTL {
			delete(l.visitors, key)
		}
	}
}

func RateLimitMiddleware(limiter *RateLimiter, logger zerolog.Logger) func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			// 处理 CORS 预检请求
			if string(ctx.Method()) == fasthttp.MethodOptions {
				handleCors(ctx)
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}

			clientIP := ctx.RemoteIP().String()
			if forwarded := ctx.Request.Header.Peek("X-Forwarded-For"); len(forwarded) > 0 {
				clientIP = firstForwarded(string(forwarded))
			}

			if !limiter.Allow(clientIP) {
				logger.Debug().Str("ip", clientIP).Str("path", string(ctx.Path())).Msg("rate limited")
				ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
				ctx.SetBody([]byte("Too Many Requests"))
				return
			}

			handleCors(ctx)
			next(ctx)
		}
	}
}

func firstForwarded(header string) string {
	first, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(first)
}

// 处理 CORS 头信息
func handleCors(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	ctx.Response.Header.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
	ctx.Response.Header.Set("Access-Control-Max-Age", "86400")
}
