package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter 按 key 维护令牌桶，长时间未访问的桶由后台回收。
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	every   rate.Limit
	burst   int
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter 创建限速器并启动回收 goroutine，停服时调用 Stop。
func NewRateLimiter(every rate.Limit, burst int, idle time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		every:   every,
		burst:   burst,
		idle:    idle,
		stop:    make(chan struct{}),
	}
	go l.gc(30 * time.Second)
	return l
}

// Allow 消耗 key 对应桶中的一个令牌。
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idle {
			delete(l.buckets, k)
		}
	}
	return len(l.buckets)
}

func (l *Limiter) gc(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// Stop 停止回收 goroutine，可重复调用。
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// retryAfter 为补满一个令牌所需的秒数。
func (l *Limiter) retryAfter() string {
	if l.every <= 0 {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(l.every))))
}

// RateLimit 按客户端 IP 与路由模板限速，超限返回 429 并附带 Retry-After。
func RateLimit(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + "|" + route
		if l.Allow(key) {
			c.Next()
			return
		}
		log.Warn().Str("ip", c.ClientIP()).Str("route", route).Msg("rate limited")
		c.Header("Retry-After", l.retryAfter())
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	}
}
