package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWindow struct{}

func (failingWindow) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis unavailable")
}

func (failingWindow) Count(context.Context, string, time.Duration) (int, error) {
	return 0, errors.New("redis unavailable")
}

func TestRateLimiter_QueryLimit(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(RateLimiterConfig{QueriesPerHour: 3, MaxConcurrentStreams: 10}, NewMemoryQueryWindow(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		adm, err := l.Admit(ctx, "s1")
		require.NoError(t, err)
		require.True(t, adm.Admitted)
		l.Release("s1")
	}

	adm, err := l.Admit(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, adm.Admitted)
	assert.Equal(t, ReasonQueryLimit, adm.Reason)
	assert.Equal(t, 3, adm.Limit)
	assert.Zero(t, l.ActiveStreams("s1"), "rejected admission must not hold a stream slot")

	var rlErr *RateLimitExceededError
	require.ErrorAs(t, adm.Err(), &rlErr)
	assert.Equal(t, ReasonQueryLimit, rlErr.Reason)

	other, err := l.Admit(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, other.Admitted, "limits are per session")
}

func TestRateLimiter_RollingHour(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(RateLimiterConfig{QueriesPerHour: 2, MaxConcurrentStreams: 10}, NewMemoryQueryWindow(clock.Now))
	ctx := context.Background()

	_, _ = l.Admit(ctx, "s1")
	clock.Advance(30 * time.Minute)
	_, _ = l.Admit(ctx, "s1")
	l.Release("s1")
	l.Release("s1")

	adm, _ := l.Admit(ctx, "s1")
	assert.False(t, adm.Admitted)

	clock.Advance(30*time.Minute + time.Second)
	adm, _ = l.Admit(ctx, "s1")
	assert.True(t, adm.Admitted, "oldest query left the window")

	count, err := l.QueryCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRateLimiter_ConcurrentStreams(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{QueriesPerHour: 100, MaxConcurrentStreams: 2}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		adm, err := l.Admit(ctx, "s1")
		require.NoError(t, err)
		require.True(t, adm.Admitted)
	}

	adm, err := l.Admit(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, adm.Admitted)
	assert.Equal(t, ReasonConcurrentStreams, adm.Reason)

	count, _ := l.QueryCount(ctx, "s1")
	assert.Equal(t, 2, count, "concurrency rejection does not consume query quota")

	l.Release("s1")
	adm, _ = l.Admit(ctx, "s1")
	assert.True(t, adm.Admitted)
}

func TestRateLimiter_ReleaseFuncIsIdempotent(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{QueriesPerHour: 100, MaxConcurrentStreams: 5}, nil)
	ctx := context.Background()
	_, _ = l.Admit(ctx, "s1")
	_, _ = l.Admit(ctx, "s1")

	release := l.ReleaseFunc("s1")
	release()
	release()

	assert.Equal(t, 1, l.ActiveStreams("s1"))
	l.Release("s1")
	l.Release("s1")
	assert.Zero(t, l.ActiveStreams("s1"))
}

func TestRateLimiter_WindowErrorReleasesSlot(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{QueriesPerHour: 100, MaxConcurrentStreams: 1}, failingWindow{})

	_, err := l.Admit(context.Background(), "s1")
	require.Error(t, err)
	assert.Zero(t, l.ActiveStreams("s1"))
}

func TestRateLimiter_ParallelAdmitsNeverExceedCeiling(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{QueriesPerHour: 1000, MaxConcurrentStreams: 5}, nil)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := l.Admit(ctx, "s1")
			if err == nil && adm.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, admitted)
	assert.Equal(t, 5, l.ActiveStreams("s1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(RateLimiterConfig{QueriesPerHour: 10, MaxConcurrentStreams: 10}, NewMemoryQueryWindow(clock.Now))
	ctx := context.Background()
	_, _ = l.Admit(ctx, "old")
	clock.Advance(50 * time.Minute)
	_, _ = l.Admit(ctx, "recent")

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, l.Cleanup())

	count, _ := l.QueryCount(ctx, "recent")
	assert.Equal(t, 1, count)
}
