package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testOptions() Options {
	return Options{
		WindowDuration:   time.Minute,
		FailedLoginTTL:   time.Hour,
		ActivityCapacity: 100,
	}
}

func TestMemoryStore_WindowCountAndPrune(t *testing.T) {
	s := NewMemoryStore(testOptions())
	ctx := context.Background()
	base := time.Unix(1740730536, 0)

	for i := 0; i < 5; i++ {
		admitted, err := s.ReserveRequest(ctx, "10.0.0.1", base.Add(time.Duration(i)*time.Second), 100)
		require.NoError(t, err)
		assert.True(t, admitted)
	}

	count, err := s.CountRequests(ctx, "10.0.0.1", base.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// Reads past the window see nothing; pruning is lazy, no sweep needed.
	count, err = s.CountRequests(ctx, "10.0.0.1", base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStore_ReserveRequestBoundary(t *testing.T) {
	s := NewMemoryStore(testOptions())
	ctx := context.Background()
	now := time.Unix(1740730536, 0)

	for i := 0; i < 3; i++ {
		admitted, err := s.ReserveRequest(ctx, "10.0.0.1", now, 3)
		require.NoError(t, err)
		assert.True(t, admitted)
	}

	admitted, err := s.ReserveRequest(ctx, "10.0.0.1", now, 3)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestMemoryStore_ReserveRequestConcurrentRace(t *testing.T) {
	s := NewMemoryStore(testOptions())
	ctx := context.Background()
	now := time.Unix(1740730536, 0)

	const max = 10
	var admitted int64

	var g errgroup.Group
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			ok, err := s.ReserveRequest(ctx, "10.0.0.1", now, max)
			if err != nil {
				return err
			}
			if ok {
				atomic.AddInt64(&admitted, 1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(max), admitted)
}

func TestMemoryStore_BlockLifecycle(t *testing.T) {
	s := NewMemoryStore(testOptions())
	ctx := context.Background()
	now := time.Unix(1740730536, 0)

	entry, err := s.GetBlock(ctx, "10.0.0.1", now)
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, s.SetBlock(ctx, BlockEntry{
		Address:   "10.0.0.1",
		Reason:    "rate exceeded",
		BlockedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}))

	entry, err = s.GetBlock(ctx, "10.0.0.1", now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "rate exceeded", entry.Reason)

	// Re-blocking overwrites; there is only ever one entry per address.
	require.NoError(t, s.SetBlock(ctx, BlockEntry{
		Address:   "10.0.0.1",
		Reason:    "too many failed logins",
		BlockedAt: now.Add(time.Minute),
		ExpiresAt: now.Add(16 * time.Minute),
	}))

	entry, err = s.GetBlock(ctx, "10.0.0.1", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "too many failed logins", entry.Reason)
	assert.Equal(t, now.Add(16*time.Minute), entry.ExpiresAt)

	// Expired blocks disappear on read.
	entry, err = s.GetBlock(ctx, "10.0.0.1", now.Add(17*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestMemoryStore_FailedLoginTTL(t *testing.T) {
	s := NewMemoryStore(testOptions())
	ctx := context.Background()
	now := time.Unix(1740730536, 0)

	for i := 0; i < 3; i++ {
		entry, err := s.IncrementFailedLogins(ctx, "10.0.0.1", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, i+1, entry.Count)
	}

	count, err := s.FailedLoginCount(ctx, "10.0.0.1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Idle past the TTL the counter is gone, and a new attempt starts fresh.
	count, err = s.FailedLoginCount(ctx, "10.0.0.1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	entry, err := s.IncrementFailedLogins(ctx, "10.0.0.1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Count)
	assert.Equal(t, now.Add(2*time.Hour), entry.FirstAttempt)
}

func TestMemoryStore_ResetFailedLogins(t *testing.T) {
	s := NewMemoryStore(testOptions())
	ctx := context.Background()
	now := time.Unix(1740730536, 0)

	_, err := s.IncrementFailedLogins(ctx, "10.0.0.1", now)
	require.NoError(t, err)
	require.NoError(t, s.ResetFailedLogins(ctx, "10.0.0.1"))

	count, err := s.FailedLoginCount(ctx, "10.0.0.1", now)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStore_ActivityRingEvictsOldest(t *testing.T) {
	opts := testOptions()
	opts.ActivityCapacity = 3
	s := NewMemoryStore(opts)
	ctx := context.Background()
	now := time.Unix(1740730536, 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendActivity(ctx, "10.0.0.1", ActivityRecord{
			Type:      fmt.Sprintf("signal_%d", i),
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := s.RecentActivity(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Newest first; the two oldest entries were evicted.
	assert.Equal(t, "signal_4", records[0].Type)
	assert.Equal(t, "signal_3", records[1].Type)
	assert.Equal(t, "signal_2", records[2].Type)
}

func TestMemoryStore_SweepEvictsExpiredState(t *testing.T) {
	s := NewMemoryStore(testOptions())
	ctx := context.Background()
	now := time.Unix(1740730536, 0)

	_, err := s.ReserveRequest(ctx, "10.0.0.1", now, 10)
	require.NoError(t, err)
	require.NoError(t, s.SetBlock(ctx, BlockEntry{
		Address:   "10.0.0.2",
		Reason:    "rate exceeded",
		BlockedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}))
	_, err = s.IncrementFailedLogins(ctx, "10.0.0.3", now)
	require.NoError(t, err)

	require.NoError(t, s.Sweep(ctx, now.Add(3*time.Hour)))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.windows)
	assert.Empty(t, s.blocks)
	assert.Empty(t, s.failed)
}

func TestMemoryStore_SweepKeepsLiveState(t *testing.T) {
	s := NewMemoryStore(testOptions())
	ctx := context.Background()
	now := time.Unix(1740730536, 0)

	require.NoError(t, s.SetBlock(ctx, BlockEntry{
		Address:   "10.0.0.1",
		Reason:    "rate exceeded",
		BlockedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))

	require.NoError(t, s.Sweep(ctx, now.Add(time.Minute)))

	entry, err := s.GetBlock(ctx, "10.0.0.1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.NotNil(t, entry)
}
