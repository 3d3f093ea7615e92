package middleware

import (
	"strconv"
	"sync"
	"time"

	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 超过这个时间没有调用的令牌桶会被回收
const bucketIdle = 10 * time.Minute

type bucketKey struct {
	caller string
	tool   string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ToolLimiter 按调用方和工具名限流
//
// 每个 (调用方, 工具) 有独立的令牌桶：一个调用方连续生成图片不会挡住它的
// validate_api_key，也不会影响其他调用方。nil 表示不限流。
type ToolLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	rate    rate.Limit
	burst   int
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewToolLimiter 按配置创建限流器，未启用时返回 nil
func NewToolLimiter(cfg *config.Config) *ToolLimiter {
	if !cfg.Security.RateLimitEnabled {
		return nil
	}
	l := &ToolLimiter{
		buckets: make(map[bucketKey]*bucket),
		rate:    rate.Limit(cfg.Security.RateLimitRPS),
		burst:   cfg.Security.RateLimitRPS,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow 消耗 caller 对 tool 的一个令牌；拒绝时返回需要等待的时间
func (l *ToolLimiter) Allow(caller, tool string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	key := bucketKey{caller: caller, tool: tool}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware 挂在 /v1/tools/:name 上；onReject 在拒绝时以工具名回调，可为 nil
func (l *ToolLimiter) Middleware(onReject func(tool string)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if l == nil {
			return next
		}
		return func(c echo.Context) error {
			tool := c.Param("name")
			ok, wait := l.Allow(c.RealIP(), tool)
			if ok {
				return next(c)
			}

			logger.Warn("工具调用被限流",
				zap.String("tool", tool),
				zap.String("remote_addr", c.RealIP()),
				zap.Duration("retry_after", wait),
			)
			if onReject != nil {
				onReject(tool)
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			return errors.NewRateLimitedError(tool)
		}
	}
}

// Close 停止回收协程，可重复调用
func (l *ToolLimiter) Close() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.done) })
}

func (l *ToolLimiter) sweepLoop() {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *ToolLimiter) sweep() {
	cutoff := l.now().Add(-bucketIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

func (l *ToolLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// retryAfterSeconds 向上取整，至少 1 秒
func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
