package cache

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"
	"time"

	"pigeon-auction/utils"

	"github.com/redis/go-redis/v9"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// RateLimiter implements a sliding-window limit on Redis sorted sets, evaluated atomically in Lua.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	now           func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by c
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
		now:           time.Now,
	}
}

// Allow counts the request and reports whether key is still under limit within window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := rl.now().UnixMicro()
	member := strconv.FormatInt(now, 10) + "-" + utils.GenerateID()

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(key)},
		now,
		window.Microseconds(),
		limit,
		member,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}

// sweepEvery is how many Allow calls pass between full sweeps of idle keys.
const sweepEvery = 1024

// MemoryRateLimiter is a process-local sliding-window limiter used when Redis is not configured.
type MemoryRateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	window map[string]time.Duration
	calls  int
	now    func() time.Time
}

// NewMemoryRateLimiter creates an empty in-memory limiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		hits:   make(map[string][]time.Time),
		window: make(map[string]time.Duration),
		now:    time.Now,
	}
}

// Allow counts the request and reports whether key is still under limit within window.
func (m *MemoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	hits := prune(m.hits[key], now.Add(-window))
	m.window[key] = window
	if len(hits) >= limit {
		m.hits[key] = hits
		return false, nil
	}
	m.hits[key] = append(hits, now)
	return true, nil
}

func (m *MemoryRateLimiter) sweep(now time.Time) {
	for key, hits := range m.hits {
		if kept := prune(hits, now.Add(-m.window[key])); len(kept) == 0 {
			delete(m.hits, key)
			delete(m.window, key)
		} else {
			m.hits[key] = kept
		}
	}
}

// prune drops hits at or before cutoff; hits are in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
