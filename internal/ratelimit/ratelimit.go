// Package ratelimit keeps a token bucket per key. Outbound calls are keyed by
// host (the daemon gateway, image hosts) and inbound API requests by client IP.
package ratelimit

import (
	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// idleTTL is how long an unused bucket is kept. API client IPs come and go.
	idleTTL         = 10 * time.Minute
	cleanupInterval = time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter manages per-key rate limiting.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int

	// now is swapped in tests to age buckets.
	now func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a keyed limiter allowing rps requests per second per key with
// bursts of up to burst requests.
func New(rps float64, burst int) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go krl.cleanup()

	return krl
}

// Allow reports whether a request for key may proceed now. Used for inbound
// requests.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.limiter(key).Allow()
}

// Wait blocks until a request for key may proceed or ctx is done. Used for
// outbound requests.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return krl.limiter(key).Wait(ctx)
}

// WaitURL is Wait keyed by the normalized host of u.
func (krl *KeyedRateLimiter) WaitURL(ctx context.Context, u *url.URL) error {
	return krl.Wait(ctx, HostKey(u))
}

// HostKey returns the bucket key for u: the lower-cased host name, with the
// port only when it is not the scheme's default. "https://Example.com:443/a"
// and "https://example.com/b" share a key.
func HostKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	switch port := u.Port(); {
	case port == "":
		return host
	case port == "80" && u.Scheme == "http", port == "443" && u.Scheme == "https":
		return host
	default:
		return net.JoinHostPort(host, port)
	}
}

// Len returns the number of live buckets.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.buckets)
}

func (krl *KeyedRateLimiter) limiter(key string) *rate.Limiter {
	now := krl.now()

	krl.mu.Lock()
	defer krl.mu.Unlock()

	b, ok := krl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Stop shuts down the cleanup goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case now := <-ticker.C:
			krl.evictIdle(now)
		}
	}
}

// evictIdle drops buckets unused for idleTTL and returns how many went.
func (krl *KeyedRateLimiter) evictIdle(now time.Time) int {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	evicted := 0
	for key, b := range krl.buckets {
		if now.Sub(b.lastSeen) > idleTTL {
			delete(krl.buckets, key)
			evicted++
		}
	}
	return evicted
}
