package locks

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_ExclusiveUntilReleased(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "")
	defer client.Close()

	locker := NewRedis(client, nil)
	ctx := context.Background()
	key := PairKey("fan", "creator")

	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:"+key))

	_, err = locker.Acquire(ctx, key)
	assert.Error(t, err, "second acquire must fail while the lock is held")

	other, err := locker.Acquire(ctx, PairKey("fan", "someone-else"))
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mr.Exists("lock:"+key))

	again, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	again()
}

func TestLocal(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "k")
	assert.ErrorIs(t, err, ErrBusy)

	release()
	release2, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release2()
}
