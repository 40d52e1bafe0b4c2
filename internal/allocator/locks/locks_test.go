package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLock_SerializesSameKey(t *testing.T) {
	l := New()
	ctx := context.Background()

	var inside, maxInside int32
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			unlock, err := l.Lock(ctx, CountryKey("India"))
			if err != nil {
				return err
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, l.Active(), "entries are dropped after release")
}

func TestLock_IndependentKeys(t *testing.T) {
	l := New()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, RegionKey("a"))
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := l.Lock(ctx, RegionKey("b"))
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestLock_ContextCancel(t *testing.T) {
	l := New()

	unlock, err := l.Lock(context.Background(), CountryKey("India"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, CountryKey("india"))
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeConcurrencyConflict))
	assert.True(t, apperrors.IsRetryable(err))

	unlock()
	assert.Zero(t, l.Active())
}

func TestUnlock_Idempotent(t *testing.T) {
	l := New()

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
}

func TestLockAll_OrderedAndReleased(t *testing.T) {
	l := New()
	ctx := context.Background()

	unlock, err := l.LockAll(ctx, CountryKey("India"), RegionKey("r1"))
	require.NoError(t, err)
	assert.Equal(t, 2, l.Active())

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		u, err := l.Lock(ctx, RegionKey("r1"))
		if err == nil {
			close(acquired)
			u()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("region scope acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	wg.Wait()
	assert.Zero(t, l.Active())
}

func TestLockAll_FailureReleasesHeld(t *testing.T) {
	l := New()

	block, err := l.Lock(context.Background(), RegionKey("r1"))
	require.NoError(t, err)
	defer block()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.LockAll(ctx, CountryKey("India"), RegionKey("r1"))
	require.Error(t, err)

	// the country scope must be free again
	u, err := l.Lock(context.Background(), CountryKey("India"))
	require.NoError(t, err)
	u()
}
