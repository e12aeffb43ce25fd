package sequencer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockerExcludesOtherInstances(t *testing.T) {
	mr, client := newRedisClient(t)
	first := NewRedisLocker(client, zerolog.Nop(), WithRetryDelay(5*time.Millisecond))
	second := NewRedisLocker(client, zerolog.Nop(), WithRetryDelay(5*time.Millisecond))
	name := Key{AccountID: "20123456789", PointOfSale: 1, VoucherType: 11}.String()

	unlock, err := first.Lock(context.Background(), name)
	require.NoError(t, err)
	require.True(t, mr.Exists(name))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = second.Lock(ctx, name)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan func(), 1)
	go func() {
		release, err := second.Lock(context.Background(), name)
		assert.NoError(t, err)
		acquired <- release
	}()

	select {
	case <-acquired:
		t.Fatal("second instance acquired a held lease")
	case <-time.After(30 * time.Millisecond):
	}

	unlock()
	select {
	case release := <-acquired:
		require.NotNil(t, release)
		release()
	case <-time.After(2 * time.Second):
		t.Fatal("second instance never acquired the lease")
	}
	require.False(t, mr.Exists(name))
}

func TestRedisLockerLeaseExpiresAndStaleReleaseIsIgnored(t *testing.T) {
	mr, client := newRedisClient(t)
	crashed := NewRedisLocker(client, zerolog.Nop(), WithLeaseTTL(2*time.Second), WithRetryDelay(5*time.Millisecond))
	survivor := NewRedisLocker(client, zerolog.Nop(), WithLeaseTTL(2*time.Second), WithRetryDelay(5*time.Millisecond))
	name := "facturia:voucher-seq:20123456789:1:11"

	staleUnlock, err := crashed.Lock(context.Background(), name)
	require.NoError(t, err)

	mr.FastForward(3 * time.Second)
	require.False(t, mr.Exists(name))

	unlock, err := survivor.Lock(context.Background(), name)
	require.NoError(t, err)

	staleUnlock()
	require.True(t, mr.Exists(name), "stale holder must not delete the new lease")

	unlock()
	require.False(t, mr.Exists(name))
}

func TestRedisLockerSerialisesLocalCallers(t *testing.T) {
	_, client := newRedisClient(t)
	locker := NewRedisLocker(client, zerolog.Nop(), WithRetryDelay(5*time.Millisecond))
	seq := New(locker, nil, zerolog.Nop())
	authority := newFakeAuthority()
	key := Key{AccountID: "20123456789", PointOfSale: 1, VoucherType: 11}

	const workers = 8
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			res, err := seq.Reserve(context.Background(), key)
			if err != nil {
				errs <- err
				return
			}
			defer res.Release()
			next, err := res.NextVoucherNumber(context.Background(), authority)
			if err != nil {
				errs <- err
				return
			}
			errs <- authority.accept(key.PointOfSale, key.VoucherType, next)
		}()
	}
	for i := 0; i < workers; i++ {
		require.NoError(t, <-errs)
	}
	last, err := authority.LastVoucher(context.Background(), 1, 11)
	require.NoError(t, err)
	require.Equal(t, int64(workers), last)
}
