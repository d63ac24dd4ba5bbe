package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*miniredis.Miniredis, Locker) {
	t.Helper()
	return newTestLockerWithWait(t, 50*time.Millisecond)
}

func newTestLockerWithWait(t *testing.T, wait time.Duration) (*miniredis.Miniredis, Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisSlotLocker(client, 2*time.Second, wait)
}

func TestWithSlotLock_ReleasesAfterRun(t *testing.T) {
	mr, locker := newTestLocker(t)
	key := "clinic:c1:2024-06-01:10:00:00"

	ran := false
	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(LockKey(key)))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(LockKey(key)))
}

func TestWithSlotLock_ContendedSlot(t *testing.T) {
	_, locker := newTestLocker(t)
	key := "doctor:d1:2024-07-04:09:30:00"

	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		inner := locker.WithSlotLock(ctx, key, func(context.Context) error {
			t.Fatal("nested critical section must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
}

func TestWithSlotLock_WaitsForRelease(t *testing.T) {
	_, locker := newTestLockerWithWait(t, 2*time.Second)
	key := "clinic:c1:2024-06-01:12:00:00"

	held := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- locker.WithSlotLock(context.Background(), key, func(context.Context) error {
			close(held)
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}()
	<-held

	start := time.Now()
	ran := false
	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	require.NoError(t, <-firstDone)
	assert.True(t, ran)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWithSlotLock_ZeroWaitFailsFast(t *testing.T) {
	mr, locker := newTestLockerWithWait(t, 0)
	key := "doctor:d2:2024-07-04:09:30:00"
	require.NoError(t, mr.Set(LockKey(key), "someone-else"))

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestWithSlotLock_GivesUpWhenContextEnds(t *testing.T) {
	mr, locker := newTestLockerWithWait(t, time.Minute)
	key := "doctor:d3:2024-07-04:09:30:00"
	require.NoError(t, mr.Set(LockKey(key), "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := locker.WithSlotLock(ctx, key, func(context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithSlotLock_PropagatesError(t *testing.T) {
	mr, locker := newTestLocker(t)
	key := "clinic:c1:2024-06-01:11:00:00"
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(LockKey(key)))
}

func TestWithSlotLock_DoesNotReleaseForeignToken(t *testing.T) {
	mr, locker := newTestLocker(t)
	key := "clinic:c2:2024-06-01:10:00:00"

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error {
		// simulate expiry and takeover by another holder
		require.NoError(t, mr.Set(LockKey(key), "someone-else"))
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get(LockKey(key))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestWithSlotLock_EmptyKey(t *testing.T) {
	_, locker := newTestLocker(t)
	err := locker.WithSlotLock(context.Background(), "", func(context.Context) error { return nil })
	assert.Error(t, err)
}
