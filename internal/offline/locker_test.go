package offline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockerSerializesKey(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, uuidA)
	require.NoError(t, err)
	require.True(t, mr.Exists(lockKeyPrefix+uuidA))

	short, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(short, uuidA)
	require.Error(t, err)

	other, err := locker.Acquire(ctx, uuidB)
	require.NoError(t, err)
	other()

	release()
	require.False(t, mr.Exists(lockKeyPrefix+uuidA))
	again, err := locker.Acquire(ctx, uuidA)
	require.NoError(t, err)
	again()
}

func TestNilLockerIsNoop(t *testing.T) {
	locker := NewLocker(nil, time.Minute)
	require.Nil(t, locker)
	release, err := locker.Acquire(context.Background(), uuidA)
	require.NoError(t, err)
	release()
}
