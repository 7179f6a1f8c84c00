/*
Package limiter provides keyed token-bucket rate limiting.

The chat layer uses it to throttle realtime subscription re-establishment per channel,
and the loopback callback server to limit requests per IP. RunCleanup evicts idle
buckets in the background.
*/
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cfoclient/internal/pkg/logx"
)

// CleanupInterval is how often RunCleanup evicts idle buckets by default.
const CleanupInterval = 3 * time.Minute

// KeyedLimiter holds one token bucket per key.
type KeyedLimiter struct {
	// mu protects the limits map.
	mu sync.RWMutex

	// limits maps a key (a channel name) to its *rate.Limiter.
	limits map[string]*rate.Limiter

	// r is the refill rate of each bucket.
	r rate.Limit

	// b is the burst size of each bucket.
	b int
}

// NewKeyedLimiter creates a limiter allowing b events at once and one event per
// interval afterwards, for each key independently.
func NewKeyedLimiter(interval time.Duration, b int) *KeyedLimiter {
	return &KeyedLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      rate.Every(interval),
		b:      b,
	}
}

// GetLimiter retrieves the bucket for key, creating it on first use.
// Creation uses double-checked locking.
func (k *KeyedLimiter) GetLimiter(key string) *rate.Limiter {
	k.mu.RLock()
	limiter, exists := k.limits[key]
	k.mu.RUnlock()

	if !exists {
		k.mu.Lock()
		limiter, exists = k.limits[key]
		if !exists {
			limiter = rate.NewLimiter(k.r, k.b)
			k.limits[key] = limiter
		}
		k.mu.Unlock()
	}

	return limiter
}

// Allow reports whether an event for key may happen now, consuming a token if so.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.GetLimiter(key).Allow()
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return len(k.limits)
}

// RunCleanup prunes idle buckets every interval until ctx is done.
func (k *KeyedLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := k.Prune()
			logx.Debug("Rate limiter cleanup finished", "removed", count, "active", k.Len())
		}
	}
}

// Prune removes buckets that are full again, i.e. keys idle for at least one refill.
// It returns the number of buckets removed.
func (k *KeyedLimiter) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	count := 0
	now := time.Now()
	for key, limiter := range k.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(k.limits, key)
			count++
		}
	}
	return count
}
