package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore("", "alphavantage")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCounter_ReserveCommit(t *testing.T) {
	ctx := context.Background()
	c, err := NewCounter(ctx, 2)
	require.NoError(t, err)

	require.True(t, c.Reserve())
	n, err := c.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.True(t, c.Reserve())
	n, err = c.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for i := 0; i < 5; i++ {
		assert.False(t, c.Reserve(), "ceiling reached")
	}
	assert.Equal(t, 2, c.Count())
	assert.Equal(t, 2, c.Limit())
}

func TestCounter_ReleaseDoesNotCount(t *testing.T) {
	ctx := context.Background()
	c, err := NewCounter(ctx, 1)
	require.NoError(t, err)

	require.True(t, c.Reserve())
	assert.False(t, c.Reserve(), "in-flight reservation holds the only slot")

	c.Release()
	assert.Equal(t, 0, c.Count())
	assert.True(t, c.Reserve())
}

func TestCounter_ZeroLimit(t *testing.T) {
	c, err := NewCounter(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, c.Reserve())
}

func TestCounter_ConcurrentReservationsRespectCeiling(t *testing.T) {
	ctx := context.Background()
	c, err := NewCounter(ctx, 10)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Reserve() {
				_, _ = c.Commit(ctx)
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, granted)
	assert.Equal(t, 10, c.Count())
}

func TestCounter_PersistedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

	first, err := NewCounter(ctx, 3, WithStore(store), WithClock(now))
	require.NoError(t, err)
	require.True(t, first.Reserve())
	_, err = first.Commit(ctx)
	require.NoError(t, err)
	require.True(t, first.Reserve())
	_, err = first.Commit(ctx)
	require.NoError(t, err)

	second, err := NewCounter(ctx, 3, WithStore(store), WithClock(now))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count())
	assert.True(t, second.Reserve())
	assert.False(t, second.Reserve())
}

func TestCounter_DayRolloverResetsPersistedCount(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	now := func() time.Time { return current }

	c, err := NewCounter(ctx, 1, WithStore(newStore(t)), WithClock(now))
	require.NoError(t, err)
	require.True(t, c.Reserve())
	_, err = c.Commit(ctx)
	require.NoError(t, err)
	assert.False(t, c.Reserve())

	current = current.Add(2 * time.Minute)
	assert.True(t, c.Reserve(), "new day resets the ceiling")
}

func TestCounter_ProcessScopeIgnoresRollover(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)

	c, err := NewCounter(ctx, 1, WithClock(func() time.Time { return current }))
	require.NoError(t, err)
	require.True(t, c.Reserve())
	_, err = c.Commit(ctx)
	require.NoError(t, err)

	current = current.Add(time.Hour)
	assert.False(t, c.Reserve(), "process-scoped ceiling bounds the whole run")
}
