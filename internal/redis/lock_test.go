package redisclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/appointment-scheduling-core/internal/lock"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisLockerReleasesKey(t *testing.T) {
	mr, rdb := newTestClient(t)
	l := NewRedisDoctorLocker(rdb, 5*time.Second, 100*time.Millisecond)
	doctor := uuid.New()

	err := l.WithDoctorLock(context.Background(), doctor, func(ctx context.Context) error {
		assert.True(t, mr.Exists(lockKey(doctor)))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(lockKey(doctor)))
}

func TestRedisLockerBusyWhileHeld(t *testing.T) {
	mr, rdb := newTestClient(t)
	l := NewRedisDoctorLocker(rdb, 5*time.Second, 60*time.Millisecond)
	doctor := uuid.New()

	require.NoError(t, mr.Set(lockKey(doctor), "someone-else"))

	err := l.WithDoctorLock(context.Background(), doctor, func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.ErrorIs(t, err, lock.ErrBusy)

	got, _ := mr.Get(lockKey(doctor))
	assert.Equal(t, "someone-else", got, "foreign token is never deleted")
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	_, rdb := newTestClient(t)
	l := NewRedisDoctorLocker(rdb, 5*time.Second, 2*time.Second)
	doctor := uuid.New()

	var inside, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithDoctorLock(context.Background(), doctor, func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps)
}
