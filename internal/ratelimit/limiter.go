// Package ratelimit provides fixed-window rate limiting for the consume API.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Limiter answers whether one more event is allowed for a key within the
// current window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisLimiter counts events in Redis so the limit holds across instances.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow increments the window counter and compares it to limit. The counter
// key carries the window start so stale windows expire on their own.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	windowStart := time.Now().Unix() / int64(window.Seconds())
	counterKey := fmt.Sprintf("ratelimit:%s:%d", key, windowStart)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, counterKey)
	pipe.Expire(ctx, counterKey, window)
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		return false, errExec
	}
	return count.Val() <= int64(limit), nil
}

// MemoryLimiter is the single-instance fallback when Redis is not
// configured. Counters reset on restart.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	start int64
	count int
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	log.Warn("ratelimit: using in-memory limiter, limits are per-instance only")
	return &MemoryLimiter{windows: make(map[string]*memoryWindow)}
}

// Allow increments the in-memory window counter for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	windowStart := time.Now().Unix() / int64(window.Seconds())

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.windows[key]
	if !ok || entry.start != windowStart {
		entry = &memoryWindow{start: windowStart}
		l.windows[key] = entry
	}
	entry.count++

	// Drop windows that have rolled over to bound memory growth.
	if len(l.windows) > 10000 {
		for k, w := range l.windows {
			if w.start != windowStart {
				delete(l.windows, k)
			}
		}
	}
	return entry.count <= limit, nil
}
