package keypool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
)

func testPoolConfig(maxPerMin int) common.PoolConfig {
	cfg := common.NewDefaultConfig().Pool
	cfg.MaxRequestsPerMinute = maxPerMin
	return cfg
}

func newTestPool(t *testing.T, keys []string, maxPerMin int) *Pool {
	t.Helper()
	pool, err := New(keys, testPoolConfig(maxPerMin), arbor.NewLogger())
	require.NoError(t, err)
	return pool
}

// fakeClock lets tests advance pool time deterministically
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestNewRequiresKeys(t *testing.T) {
	_, err := New(nil, testPoolConfig(10), arbor.NewLogger())
	assert.Error(t, err)
}

func TestAcquireNeverReturnsRateLimitedCredential(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, 10)
	clock := newFakeClock()
	pool.SetNowFunc(clock.Now)

	first, ok := pool.Acquire()
	require.True(t, ok)

	pool.RecordRateLimited(first.ID(), 30*time.Second)

	for i := 0; i < 20; i++ {
		cred, ok := pool.Acquire()
		require.True(t, ok)
		assert.NotEqual(t, first.ID(), cred.ID(), "rate-limited credential must not be selected")
	}
}

func TestRateLimitExpiresAfterRetryAfter(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa"}, 10)
	clock := newFakeClock()
	pool.SetNowFunc(clock.Now)

	cred, ok := pool.Acquire()
	require.True(t, ok)

	pool.RecordRateLimited(cred.ID(), 30*time.Second)

	_, ok = pool.Acquire()
	assert.False(t, ok, "credential should be unavailable during lockout")

	clock.Advance(29 * time.Second)
	_, ok = pool.Acquire()
	assert.False(t, ok, "credential should still be unavailable just before lockout ends")

	clock.Advance(2 * time.Second)
	recovered, ok := pool.Acquire()
	require.True(t, ok, "credential should be available strictly after lockout")
	assert.Equal(t, cred.ID(), recovered.ID())
}

func TestSlidingWindowCapacity(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa"}, 2)
	clock := newFakeClock()
	pool.SetNowFunc(clock.Now)

	cred, ok := pool.Acquire()
	require.True(t, ok)
	pool.RecordSuccess(cred.ID())
	pool.RecordSuccess(cred.ID())

	_, ok = pool.Acquire()
	assert.False(t, ok, "credential at per-minute cap must be unavailable")

	// The window slides: once the oldest request ages out, capacity returns
	clock.Advance(61 * time.Second)
	_, ok = pool.Acquire()
	assert.True(t, ok)
}

func TestRiskScoringPenalizesRecentRecovery(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, 10)
	clock := newFakeClock()
	pool.SetNowFunc(clock.Now)

	// Rate limit cred-1, then let it recover 5 seconds ago
	pool.RecordRateLimited("cred-1", 10*time.Second)
	clock.Advance(15 * time.Second)

	// Observe the recovery (lazy transition happens on scan)
	many := pool.AcquireMany(0)
	require.Len(t, many, 2)

	clock.Advance(5 * time.Second)

	// cred-2 has no rate-limit history and must rank first
	ranked := pool.AcquireMany(0)
	require.Len(t, ranked, 2)
	assert.Equal(t, "cred-2", ranked[0].ID(), "just-recovered credential must score worse than a clean one")
	assert.Equal(t, "cred-1", ranked[1].ID())

	cred, ok := pool.Acquire()
	require.True(t, ok)
	assert.Equal(t, "cred-2", cred.ID())
}

func TestRiskScoringPrefersLowerUsage(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, 10)

	for i := 0; i < 5; i++ {
		pool.RecordSuccess("cred-1")
	}
	pool.RecordSuccess("cred-2")

	cred, ok := pool.Acquire()
	require.True(t, ok)
	assert.Equal(t, "cred-2", cred.ID())
}

func TestAcquireManyReturnsDistinctSorted(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa", "key-bbbbbbbb", "key-cccccccc"}, 10)

	creds := pool.AcquireMany(2)
	require.Len(t, creds, 2)
	assert.NotEqual(t, creds[0].ID(), creds[1].ID())

	all := pool.AcquireMany(0)
	assert.Len(t, all, 3)

	pool.RecordRateLimited("cred-3", time.Minute)
	assert.Len(t, pool.AcquireMany(0), 2)
}

func TestAcquirePreferredFallsBack(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, 10)

	cred, ok := pool.AcquirePreferred("cred-2")
	require.True(t, ok)
	assert.Equal(t, "cred-2", cred.ID())

	pool.RecordRateLimited("cred-2", time.Minute)
	cred, ok = pool.AcquirePreferred("cred-2")
	require.True(t, ok)
	assert.Equal(t, "cred-1", cred.ID(), "unavailable hint must fall back to risk-scored selection")
}

func TestConcurrentAcquireIsSafe(t *testing.T) {
	keys := []string{"key-aaaaaaaa", "key-bbbbbbbb", "key-cccccccc"}
	pool := newTestPool(t, keys, 100)

	var wg sync.WaitGroup
	results := make(chan string, 300)

	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cred, ok := pool.Acquire(); ok {
				pool.RecordSuccess(cred.ID())
				results <- cred.ID()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	count := 0
	for id := range results {
		seen[id] = true
		count++
	}
	assert.Equal(t, 300, count, "every burst acquire should succeed under capacity")
	assert.LessOrEqual(t, len(seen), len(keys))
}

func TestShouldAbort(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, 10)

	assert.False(t, pool.ShouldAbort())

	pool.RecordRateLimited("cred-1", 10*time.Minute)
	assert.False(t, pool.ShouldAbort(), "one free credential means no abort")

	pool.RecordRateLimited("cred-2", 2*time.Minute)
	assert.False(t, pool.ShouldAbort(), "a credential recovering within 5 minutes means no abort")

	pool.RecordRateLimited("cred-2", 10*time.Minute)
	assert.True(t, pool.ShouldAbort())
}

func TestNextAvailableAt(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa"}, 10)
	clock := newFakeClock()
	pool.SetNowFunc(clock.Now)

	assert.Equal(t, clock.Now(), pool.NextAvailableAt(), "available now")

	pool.RecordRateLimited("cred-1", 45*time.Second)
	assert.Equal(t, clock.Now().Add(45*time.Second), pool.NextAvailableAt())
}

func TestWaitForAvailableReturnsWhenFreed(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa"}, 10)

	pool.RecordRateLimited("cred-1", 200*time.Millisecond)

	start := time.Now()
	cred, ok := pool.WaitForAvailable(context.Background(), 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, "cred-1", cred.ID())
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestWaitForAvailableHonorsContext(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa"}, 10)
	pool.RecordRateLimited("cred-1", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, ok := pool.WaitForAvailable(ctx, time.Minute)
	assert.False(t, ok)
}

func TestSummaryAndStats(t *testing.T) {
	pool := newTestPool(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, 10)

	pool.RecordSuccess("cred-1")
	pool.RecordRateLimited("cred-2", time.Minute)

	assert.Equal(t, "1/2 credentials available, 1 rate limited", pool.Summary())

	stats := pool.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats[0].CurrentRequests)
	assert.Equal(t, int64(1), stats[0].TotalRequests)
	assert.True(t, stats[1].RateLimited)
	assert.Equal(t, "...bbbbbbbb", stats[1].KeySuffix)
}
