package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialOrSkip(t *testing.T) *WindowStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store, err := Dial(ctx, addr)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestWindowStoreAdmitsUpToLimit(t *testing.T) {
	store := dialOrSkip(t)
	ctx := context.Background()
	key := "test-" + uuid.NewString()
	t.Cleanup(func() { store.Client.Del(ctx, keyPrefix+key) })

	start := time.Now()
	for i := 1; i <= 3; i++ {
		u, err := store.Take(ctx, key, start.Add(time.Duration(i)*time.Millisecond), time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, u.Allowed)
		assert.Equal(t, i, u.Count)
	}

	u, err := store.Take(ctx, key, start.Add(10*time.Millisecond), time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, u.Allowed)
	assert.Equal(t, 3, u.Count)
	assert.Equal(t, start.Add(time.Millisecond).UnixMilli(), u.Oldest.UnixMilli())

	u, err = store.Take(ctx, key, start.Add(time.Minute+2*time.Millisecond), time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, u.Allowed)
}
