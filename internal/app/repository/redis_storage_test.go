package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisStorage connects to TEST_REDIS_ADDR and skips when it is unset
// or unreachable.
func setupRedisStorage(t *testing.T) *RedisStorage {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStorage(client)
}

func TestRedisStorage_SetGetDelete(t *testing.T) {
	storage := setupRedisStorage(t)
	ctx := context.Background()
	key := "test:guest_cart:" + uuid.NewString()

	_, err := storage.Get(ctx, key)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	require.NoError(t, storage.Set(ctx, key, `{"lines":[]}`, time.Minute))
	val, err := storage.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"lines":[]}`, val)

	require.NoError(t, storage.Delete(ctx, key))
	_, err = storage.Get(ctx, key)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRedisStorage_GuestCartRoundTrip(t *testing.T) {
	storage := setupRedisStorage(t)
	ctx := context.Background()
	key := GuestCartKey("test", uuid.NewString())
	t.Cleanup(func() { _ = storage.Delete(ctx, key) })

	repo := NewGuestCartRepository(storage, key, time.Minute)
	assert.True(t, repo.Load(ctx).IsEmpty())
}
