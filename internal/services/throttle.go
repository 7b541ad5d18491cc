package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Throttle limits how often a key may perform an action.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisThrottle shares its counters across server instances.
type RedisThrottle struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

func NewRedisThrottle(client *redis.Client, prefix string, perMinute int) *RedisThrottle {
	return &RedisThrottle{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.PerMinute(perMinute),
		prefix:  prefix,
	}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	res, err := t.limiter.Allow(ctx, t.prefix+key, t.limit)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return res.Allowed > 0, nil
}

const (
	localIdleTTL       = 10 * time.Minute
	localSweepInterval = time.Minute
)

// LocalThrottle keeps one token bucket per key in process memory. Used when
// Redis is not configured. Idle keys are swept at most once per
// localSweepInterval.
type LocalThrottle struct {
	mu        sync.Mutex
	limiters  map[string]*localEntry
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalThrottle allows perMinute actions per key. A non-positive value
// allows everything.
func NewLocalThrottle(perMinute int) *LocalThrottle {
	t := &LocalThrottle{
		limiters: make(map[string]*localEntry),
		limit:    rate.Inf,
		burst:    1,
		now:      time.Now,
	}
	if perMinute > 0 {
		t.limit = rate.Every(time.Minute / time.Duration(perMinute))
		t.burst = perMinute
	}
	return t
}

func (t *LocalThrottle) Allow(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastSweep) >= localSweepInterval {
		t.sweep(now)
	}

	e, ok := t.limiters[key]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

func (t *LocalThrottle) sweep(now time.Time) {
	for k, e := range t.limiters {
		if now.Sub(e.lastSeen) > localIdleTTL {
			delete(t.limiters, k)
		}
	}
	t.lastSweep = now
}
