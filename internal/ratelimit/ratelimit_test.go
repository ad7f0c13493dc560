package ratelimit

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestHostKey(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://Images.Example.com/wp-content/a.png", "images.example.com"},
		{"https://example.com:443/a.png", "example.com"},
		{"http://example.com:80/a.png", "example.com"},
		{"https://example.com:8443/a.png", "example.com:8443"},
		{"http://example.com:443/a.png", "example.com:443"},
		{"http://localhost:55001/api", "localhost:55001"},
		{"http://[::1]:8080/", "[::1]:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, HostKey(mustURL(t, tt.raw)))
		})
	}
}

func TestKeyedRateLimiter_ClientIPBurst(t *testing.T) {
	rl := New(1, 2)
	defer rl.Stop()

	got := []bool{rl.Allow("203.0.113.9"), rl.Allow("203.0.113.9"), rl.Allow("203.0.113.9")}
	assert.Equal(t, []bool{true, true, false}, got)

	assert.True(t, rl.Allow("198.51.100.7"), "another client has its own bucket")
	assert.Equal(t, 2, rl.Len())
}

func TestKeyedRateLimiter_WaitURLSharesHostBucket(t *testing.T) {
	rl := New(0.1, 1)
	defer rl.Stop()

	require.NoError(t, rl.WaitURL(context.Background(), mustURL(t, "https://Blog.Example.com/a.png")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rl.WaitURL(ctx, mustURL(t, "https://blog.example.com:443/b.png"))
	assert.Error(t, err, "same host spelled differently uses the exhausted bucket")

	require.NoError(t, rl.WaitURL(context.Background(), mustURL(t, "https://cdn.example.com/b.png")))
	assert.Equal(t, 2, rl.Len())
}

func TestKeyedRateLimiter_WaitPacesDaemonCalls(t *testing.T) {
	rl := New(10, 1)
	defer rl.Stop()

	daemon := mustURL(t, "http://localhost:55001")
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, rl.WaitURL(ctx, daemon))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "first call uses the burst")

	start = time.Now()
	require.NoError(t, rl.WaitURL(ctx, daemon))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestKeyedRateLimiter_EvictIdle(t *testing.T) {
	rl := New(0.001, 1)
	defer rl.Stop()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	require.True(t, rl.Allow("203.0.113.9"))
	require.False(t, rl.Allow("203.0.113.9"))

	clock = clock.Add(5 * time.Minute)
	rl.Allow("198.51.100.7")

	clock = clock.Add(6 * time.Minute)
	assert.Equal(t, 1, rl.evictIdle(clock))
	assert.Equal(t, 1, rl.Len())

	assert.True(t, rl.Allow("203.0.113.9"), "an evicted client starts with a full bucket")
}
